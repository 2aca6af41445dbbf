// File: api/schemas/tab.go
package schemas

// Tab is a browser tab as seen by the background context.
type Tab struct {
	ID    int    `json:"id"`
	URL   string `json:"url"`
	Title string `json:"title"`
}
