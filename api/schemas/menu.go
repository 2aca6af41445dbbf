// File: api/schemas/menu.go
package schemas

// MenuContext names where a context menu entry is shown.
type MenuContext string

const (
	MenuContextPage MenuContext = "page"
	MenuContextAll  MenuContext = "all"
)

// MenuItem is a context menu entry registered by the background context.
type MenuItem struct {
	ID       string        `json:"id"`
	Title    string        `json:"title"`
	Contexts []MenuContext `json:"contexts"`
}

// MenuClick describes a click on a registered entry.
type MenuClick struct {
	MenuItemID string `json:"menuItemId"`
	PageURL    string `json:"pageUrl,omitempty"`
}
