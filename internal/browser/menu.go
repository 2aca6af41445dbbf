// internal/browser/menu.go
package browser

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/xkilldash9x/bugreport-cli/api/schemas"
)

// ErrUnknownMenuItem is returned when clicking an id that was never created.
var ErrUnknownMenuItem = errors.New("unknown menu item")

// MenuHandler is notified of clicks on any registered entry.
type MenuHandler func(ctx context.Context, click schemas.MenuClick, tabID int)

// MenuRegistry holds the context menu entries of this process.
type MenuRegistry struct {
	mu       sync.Mutex
	items    []schemas.MenuItem
	handlers []MenuHandler
}

// NewMenuRegistry returns an empty registry.
func NewMenuRegistry() *MenuRegistry {
	return &MenuRegistry{}
}

// Create registers item. Ids are unique within the registry.
func (r *MenuRegistry) Create(item schemas.MenuItem) error {
	if item.ID == "" {
		return errors.New("menu item id is required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, existing := range r.items {
		if existing.ID == item.ID {
			return fmt.Errorf("cannot create menu item with duplicate id %q", item.ID)
		}
	}
	r.items = append(r.items, item)
	return nil
}

// Items returns the registered entries in creation order.
func (r *MenuRegistry) Items() []schemas.MenuItem {
	r.mu.Lock()
	defer r.mu.Unlock()
	return append([]schemas.MenuItem(nil), r.items...)
}

// OnClicked adds a click handler.
func (r *MenuRegistry) OnClicked(fn MenuHandler) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.handlers = append(r.handlers, fn)
}

// Click simulates the user choosing entry id on tab. Handlers run on the
// calling goroutine, in registration order.
func (r *MenuRegistry) Click(ctx context.Context, id string, tab schemas.Tab) error {
	r.mu.Lock()
	found := false
	for _, item := range r.items {
		if item.ID == id {
			found = true
			break
		}
	}
	handlers := append([]MenuHandler(nil), r.handlers...)
	r.mu.Unlock()

	if !found {
		return fmt.Errorf("%w: %q", ErrUnknownMenuItem, id)
	}
	click := schemas.MenuClick{MenuItemID: id, PageURL: tab.URL}
	for _, fn := range handlers {
		fn(ctx, click, tab.ID)
	}
	return nil
}
