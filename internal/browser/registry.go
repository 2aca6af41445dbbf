// internal/browser/registry.go
package browser

import (
	"sync"

	"github.com/chromedp/cdproto/target"
)

// registry tracks open tabs and the order they were activated in.
type registry struct {
	mu       sync.Mutex
	tabs     map[int]*tab
	byTarget map[target.ID]int
	// order holds tab ids, most recently activated last.
	order  []int
	nextID int
}

func newRegistry() *registry {
	return &registry{
		tabs:     make(map[int]*tab),
		byTarget: make(map[target.ID]int),
	}
}

// allocate reserves the next tab id. Ids start at 1 and are never reused.
func (r *registry) allocate() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nextID++
	return r.nextID
}

// add registers t and makes it the active tab.
func (r *registry) add(t *tab) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.tabs[t.id] = t
	if t.targetID != "" {
		r.byTarget[t.targetID] = t.id
	}
	r.order = append(without(r.order, t.id), t.id)
}

func (r *registry) activate(id int) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.tabs[id]; !ok {
		return false
	}
	r.order = append(without(r.order, id), id)
	return true
}

func (r *registry) active() (*tab, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.order) == 0 {
		return nil, false
	}
	return r.tabs[r.order[len(r.order)-1]], true
}

func (r *registry) get(id int) (*tab, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tabs[id]
	return t, ok
}

func (r *registry) lookupTarget(id target.ID) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	tabID, ok := r.byTarget[id]
	return tabID, ok
}

// remove unregisters a tab. Only the first call for an id returns true.
func (r *registry) remove(id int) (*tab, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.tabs[id]
	if !ok {
		return nil, false
	}
	delete(r.tabs, id)
	delete(r.byTarget, t.targetID)
	r.order = without(r.order, id)
	return t, true
}

func (r *registry) all() []*tab {
	r.mu.Lock()
	defer r.mu.Unlock()
	out := make([]*tab, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.tabs[id])
	}
	return out
}

func without(ids []int, id int) []int {
	out := ids[:0:0]
	for _, v := range ids {
		if v != id {
			out = append(out, v)
		}
	}
	return out
}
