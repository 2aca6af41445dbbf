// File: api/schemas/report.go
package schemas

import (
	"fmt"
	"strings"
	"time"
)

// Buffer bounds shared by every context that holds captured data.
const (
	MaxConsoleLogs = 100
	MaxPageErrors  = 20
	MaxNetworkLogs = 100
)

// TimestampLayout renders instants as UTC ISO-8601 with millisecond precision.
const TimestampLayout = "2006-01-02T15:04:05.000Z"

// FormatTimestamp renders t using TimestampLayout.
func FormatTimestamp(t time.Time) string {
	return t.UTC().Format(TimestampLayout)
}

// -- Console Schemas --

// LogType is the console method that produced a LogEntry.
type LogType string

const (
	LogTypeLog   LogType = "log"
	LogTypeWarn  LogType = "warn"
	LogTypeError LogType = "error"
	LogTypeInfo  LogType = "info"
)

// Valid reports whether t is one of the four intercepted console methods.
func (t LogType) Valid() bool {
	switch t {
	case LogTypeLog, LogTypeWarn, LogTypeError, LogTypeInfo:
		return true
	}
	return false
}

// LogEntry is a single console call or uncaught error observed on a page.
type LogEntry struct {
	Type      LogType `json:"type"`
	Timestamp string  `json:"timestamp"`
	Message   string  `json:"message"`
	Stack     string  `json:"stack,omitempty"`
}

// -- Network Schemas --

// Header is a single name/value pair, in the order the browser reported it.
type Header struct {
	Name  string `json:"name"`
	Value string `json:"value"`
}

// RequestBody carries the post data of an intercepted request.
type RequestBody struct {
	MimeType string `json:"mimeType,omitempty"`
	Text     string `json:"text"`
}

// NetworkEntry is one request observed in a tab. Status fields are zero until
// the matching completion arrives.
type NetworkEntry struct {
	ID              string       `json:"id"`
	TabID           int          `json:"tabId"`
	URL             string       `json:"url"`
	Method          string       `json:"method"`
	Type            string       `json:"type"`
	Timestamp       string       `json:"timestamp"`
	RequestBody     *RequestBody `json:"requestBody,omitempty"`
	StatusCode      int          `json:"statusCode,omitempty"`
	StatusLine      string       `json:"statusLine,omitempty"`
	ResponseHeaders []Header     `json:"responseHeaders,omitempty"`
}

// Completed reports whether a response has been recorded for the entry.
func (e NetworkEntry) Completed() bool {
	return e.StatusCode != 0
}

// Failed reports whether the response status is a client or server error.
func (e NetworkEntry) Failed() bool {
	return e.StatusCode >= 400
}

// -- Report Schemas --

// Viewport is the inner size of the page's window.
type Viewport struct {
	Width  int64 `json:"width"`
	Height int64 `json:"height"`
}

// PageData is what the page monitor reports about its document.
type PageData struct {
	URL         string     `json:"url"`
	Title       string     `json:"title"`
	Timestamp   string     `json:"timestamp"`
	UserAgent   string     `json:"userAgent"`
	Viewport    Viewport   `json:"viewport"`
	ConsoleLogs []LogEntry `json:"consoleLogs"`
	PageErrors  []LogEntry `json:"pageErrors"`
}

// NetworkSummary counts the requests included in a report.
type NetworkSummary struct {
	Total  int `json:"total"`
	Failed int `json:"failed"`
}

// NetworkData is the network section of a report.
type NetworkData struct {
	Requests []NetworkEntry `json:"requests"`
	Summary  NetworkSummary `json:"summary"`
}

// BugReport is the unified bundle produced by one capture.
type BugReport struct {
	ReportID    string      `json:"reportId"`
	GeneratedAt string      `json:"generatedAt"`
	Page        PageData    `json:"page"`
	Network     NetworkData `json:"network"`
	// Screenshot is a data URL, e.g. "data:image/png;base64,...".
	Screenshot string `json:"screenshot"`
}

// NewReportID derives a report identifier from the capture instant.
func NewReportID(at time.Time) string {
	return fmt.Sprintf("bug-%d", at.UnixMilli())
}

// Summarize counts total and failed requests.
func Summarize(requests []NetworkEntry) NetworkSummary {
	s := NetworkSummary{Total: len(requests)}
	for _, r := range requests {
		if r.Failed() {
			s.Failed++
		}
	}
	return s
}

// FailedRequests returns the entries with a status of 400 or above, in order.
func FailedRequests(requests []NetworkEntry) []NetworkEntry {
	failed := make([]NetworkEntry, 0)
	for _, r := range requests {
		if r.Failed() {
			failed = append(failed, r)
		}
	}
	return failed
}

// ErrorLogs returns the error-type entries among logs, keeping at most the last n.
func ErrorLogs(logs []LogEntry, n int) []LogEntry {
	errs := make([]LogEntry, 0)
	for _, l := range logs {
		if l.Type == LogTypeError {
			errs = append(errs, l)
		}
	}
	if len(errs) > n {
		errs = errs[len(errs)-n:]
	}
	return errs
}

// ScreenshotData returns the base64 payload of the screenshot, stripping the
// data URL prefix when one is present.
func (r *BugReport) ScreenshotData() string {
	if i := strings.IndexByte(r.Screenshot, ','); i >= 0 && strings.HasPrefix(r.Screenshot, "data:") {
		return r.Screenshot[i+1:]
	}
	return r.Screenshot
}
