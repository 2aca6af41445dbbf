// File: internal/tracker/cdp.go
package tracker

import (
	"context"
	"encoding/base64"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/chromedp"

	"github.com/xkilldash9x/bugreport-cli/api/schemas"
	"github.com/xkilldash9x/bugreport-cli/internal/eventloop"
)

// NetworkAdapter feeds the Network domain events of one tab into a Tracker.
type NetworkAdapter struct {
	tabID     int
	mainFrame cdp.FrameID
	loop      *eventloop.Loop
	tracker   *Tracker
}

// NewNetworkAdapter creates an adapter for tabID. mainFrame is the id of the
// tab's top-level frame, which Chrome makes equal to the target id.
func NewNetworkAdapter(tabID int, mainFrame cdp.FrameID, loop *eventloop.Loop, t *Tracker) *NetworkAdapter {
	return &NetworkAdapter{tabID: tabID, mainFrame: mainFrame, loop: loop, tracker: t}
}

// Attach starts listening on the tab behind tabCtx. The Network domain must be
// enabled separately.
func (a *NetworkAdapter) Attach(tabCtx context.Context) {
	chromedp.ListenTarget(tabCtx, a.handleEvent)
}

func (a *NetworkAdapter) handleEvent(ev interface{}) {
	switch e := ev.(type) {
	case *network.EventRequestWillBeSent:
		if e.Request == nil {
			return
		}
		start := a.requestStart(e)
		var hop *RequestCompleted
		if e.RedirectResponse != nil {
			c := Completion(a.tabID, string(e.RequestID), e.RedirectResponse)
			hop = &c
		}
		a.loop.TryPost(func(context.Context) {
			if hop != nil {
				a.tracker.OnRequestCompleted(*hop)
			}
			a.tracker.OnRequestStart(start)
		})

	case *network.EventResponseReceived:
		if e.Response == nil {
			return
		}
		c := Completion(a.tabID, string(e.RequestID), e.Response)
		a.loop.TryPost(func(context.Context) {
			a.tracker.OnRequestCompleted(c)
		})
	}
}

func (a *NetworkAdapter) requestStart(e *network.EventRequestWillBeSent) RequestStart {
	at := time.Now()
	if e.WallTime != nil {
		at = e.WallTime.Time()
	}
	return RequestStart{
		RequestID: string(e.RequestID),
		TabID:     a.tabID,
		URL:       e.Request.URL,
		Method:    e.Request.Method,
		Type:      resourceType(e.Type, e.FrameID == a.mainFrame),
		At:        at,
		Body:      requestBody(e.Request),
	}
}

// Completion converts a CDP response into a completion record.
func Completion(tabID int, requestID string, resp *network.Response) RequestCompleted {
	return RequestCompleted{
		RequestID:  requestID,
		TabID:      tabID,
		StatusCode: int(resp.Status),
		StatusLine: StatusLine(resp.Protocol, resp.Status, resp.StatusText),
		Headers:    Headers(resp.Headers),
	}
}

// StatusLine renders the HTTP status line, e.g. "HTTP/1.1 404 Not Found".
func StatusLine(protocol string, status int64, text string) string {
	return strings.TrimSpace(fmt.Sprintf("%s %d %s", protocolName(protocol), status, text))
}

func protocolName(p string) string {
	switch strings.ToLower(p) {
	case "", "http/1.1":
		return "HTTP/1.1"
	case "http/1.0":
		return "HTTP/1.0"
	case "h2", "http/2", "http/2.0":
		return "HTTP/2"
	case "h3", "http/3":
		return "HTTP/3"
	default:
		return strings.ToUpper(p)
	}
}

// Headers flattens CDP headers into name/value pairs sorted by name. CDP joins
// repeated headers with newlines; each value becomes its own pair.
func Headers(h network.Headers) []schemas.Header {
	if h == nil {
		return nil
	}
	names := make([]string, 0, len(h))
	for name := range h {
		names = append(names, name)
	}
	sort.Strings(names)

	out := make([]schemas.Header, 0, len(h))
	for _, name := range names {
		switch v := h[name].(type) {
		case string:
			for _, part := range strings.Split(v, "\n") {
				out = append(out, schemas.Header{Name: name, Value: part})
			}
		case nil:
			out = append(out, schemas.Header{Name: name})
		default:
			out = append(out, schemas.Header{Name: name, Value: fmt.Sprint(v)})
		}
	}
	return out
}

func headerValue(h network.Headers, key string) string {
	for name, v := range h {
		if strings.EqualFold(name, key) {
			if s, ok := v.(string); ok {
				return strings.Split(s, "\n")[0]
			}
		}
	}
	return ""
}

// requestBody decodes the post data entries, which CDP sends base64 encoded.
func requestBody(req *network.Request) *schemas.RequestBody {
	if !req.HasPostData || len(req.PostDataEntries) == 0 {
		return nil
	}
	var b strings.Builder
	for _, entry := range req.PostDataEntries {
		if entry == nil {
			continue
		}
		if raw, err := base64.StdEncoding.DecodeString(entry.Bytes); err == nil {
			b.Write(raw)
		} else {
			b.WriteString(entry.Bytes)
		}
	}
	return &schemas.RequestBody{
		MimeType: headerValue(req.Headers, "Content-Type"),
		Text:     b.String(),
	}
}

// resourceType maps CDP resource types onto the request type names used in
// reports.
func resourceType(t network.ResourceType, mainFrame bool) string {
	switch t {
	case network.ResourceTypeDocument:
		if mainFrame {
			return "main_frame"
		}
		return "sub_frame"
	case network.ResourceTypeStylesheet:
		return "stylesheet"
	case network.ResourceTypeScript:
		return "script"
	case network.ResourceTypeImage:
		return "image"
	case network.ResourceTypeFont:
		return "font"
	case network.ResourceTypeMedia:
		return "media"
	case network.ResourceTypeXHR, network.ResourceTypeFetch, network.ResourceTypeEventSource:
		return "xmlhttprequest"
	case network.ResourceTypeWebSocket:
		return "websocket"
	case network.ResourceTypePing:
		return "ping"
	case network.ResourceTypeCSPViolationReport:
		return "csp_report"
	default:
		return "other"
	}
}
