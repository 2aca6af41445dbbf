// File: internal/reporting/text.go
package reporting

import (
	"fmt"
	"strings"

	"github.com/xkilldash9x/bugreport-cli/api/schemas"
)

// RecentConsoleLogs is how many console entries the text summary lists.
const RecentConsoleLogs = 10

// Summary renders the plain-text summary of report, ready for pasting into
// an issue tracker.
func Summary(report *schemas.BugReport) string {
	page := report.Page
	var b strings.Builder

	b.WriteString("Bug Report\n")
	b.WriteString("==========\n")
	fmt.Fprintf(&b, "Report ID: %s\n", report.ReportID)
	fmt.Fprintf(&b, "Generated: %s\n\n", report.GeneratedAt)

	b.WriteString("Page Information:\n")
	fmt.Fprintf(&b, "- URL: %s\n", page.URL)
	fmt.Fprintf(&b, "- Title: %s\n", page.Title)
	fmt.Fprintf(&b, "- User Agent: %s\n", page.UserAgent)
	fmt.Fprintf(&b, "- Viewport: %dx%d\n\n", page.Viewport.Width, page.Viewport.Height)

	fmt.Fprintf(&b, "Console Errors (%d):\n", len(page.PageErrors))
	if len(page.PageErrors) == 0 {
		b.WriteString("No errors captured\n")
	}
	for _, e := range page.PageErrors {
		fmt.Fprintf(&b, "[%s] %s\n", e.Timestamp, e.Message)
	}
	b.WriteString("\n")

	b.WriteString("Network Summary:\n")
	fmt.Fprintf(&b, "- Total Requests: %d\n", report.Network.Summary.Total)
	fmt.Fprintf(&b, "- Failed Requests: %d\n\n", report.Network.Summary.Failed)

	b.WriteString("Failed Network Requests:\n")
	failed := schemas.FailedRequests(report.Network.Requests)
	if len(failed) == 0 {
		b.WriteString("No failed requests\n")
	}
	for _, r := range failed {
		fmt.Fprintf(&b, "- [%d] %s %s\n", r.StatusCode, r.Method, r.URL)
	}
	b.WriteString("\n")

	fmt.Fprintf(&b, "Recent Console Logs (last %d):\n", RecentConsoleLogs)
	logs := page.ConsoleLogs
	if len(logs) == 0 {
		b.WriteString("No console logs captured\n")
	}
	if len(logs) > RecentConsoleLogs {
		logs = logs[len(logs)-RecentConsoleLogs:]
	}
	for _, l := range logs {
		fmt.Fprintf(&b, "[%s] %s\n", strings.ToUpper(string(l.Type)), l.Message)
	}
	b.WriteString("\n")

	b.WriteString("Note: For best results, reload the page with the extension active before capturing the report.")
	return strings.TrimSpace(b.String())
}
