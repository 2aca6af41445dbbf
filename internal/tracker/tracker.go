// File: internal/tracker/tracker.go
package tracker

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/bugreport-cli/api/schemas"
	"github.com/xkilldash9x/bugreport-cli/internal/buffers"
	"github.com/xkilldash9x/bugreport-cli/internal/bus"
	"github.com/xkilldash9x/bugreport-cli/internal/store"
)

// RequestStart describes an outgoing request as it is about to be sent.
type RequestStart struct {
	RequestID string
	TabID     int
	URL       string
	Method    string
	Type      string
	At        time.Time
	Body      *schemas.RequestBody
}

// RequestCompleted carries the response status of a request seen earlier.
type RequestCompleted struct {
	RequestID  string
	TabID      int
	StatusCode int
	StatusLine string
	Headers    []schemas.Header
}

// Tracker keeps a bounded log of network activity per tab and answers the
// network and persistence requests of the report composer. All methods must
// be called from the tracker's event loop.
type Tracker struct {
	logger   *zap.Logger
	local    store.Area
	redactor *Redactor
	now      func() time.Time
	tabs     map[int]*buffers.Ring[schemas.NetworkEntry]
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithRedactor replaces the default header redactor.
func WithRedactor(r *Redactor) Option {
	return func(t *Tracker) { t.redactor = r }
}

// WithClock overrides the time source used for lastReportTime.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// New creates a tracker persisting reports into local.
func New(logger *zap.Logger, local store.Area, opts ...Option) *Tracker {
	t := &Tracker{
		logger:   logger.Named("tracker"),
		local:    local,
		redactor: NewRedactor(),
		now:      time.Now,
		tabs:     make(map[int]*buffers.Ring[schemas.NetworkEntry]),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// OnRequestStart records a new request. Requests that do not belong to a tab
// (service workers, the browser itself) are ignored.
func (t *Tracker) OnRequestStart(r RequestStart) {
	if r.TabID <= 0 {
		return
	}
	ring, ok := t.tabs[r.TabID]
	if !ok {
		ring = buffers.NewRing[schemas.NetworkEntry](schemas.MaxNetworkLogs)
		t.tabs[r.TabID] = ring
	}
	ring.Push(schemas.NetworkEntry{
		ID:          r.RequestID,
		TabID:       r.TabID,
		URL:         r.URL,
		Method:      r.Method,
		Type:        r.Type,
		Timestamp:   schemas.FormatTimestamp(r.At),
		RequestBody: r.Body,
	})
}

// OnRequestCompleted attaches the response status to the matching entry. Ids
// repeat along a redirect chain, so the newest hop still waiting for a status
// wins. Completions for evicted or unknown requests are dropped.
func (t *Tracker) OnRequestCompleted(c RequestCompleted) {
	ring, ok := t.tabs[c.TabID]
	if !ok {
		return
	}
	entry := ring.FindLast(func(e *schemas.NetworkEntry) bool {
		return e.ID == c.RequestID && !e.Completed()
	})
	if entry == nil {
		entry = ring.FindLast(func(e *schemas.NetworkEntry) bool { return e.ID == c.RequestID })
	}
	if entry == nil {
		return
	}
	entry.StatusCode = c.StatusCode
	entry.StatusLine = c.StatusLine
	entry.ResponseHeaders = t.redactor.Filter(c.Headers)
}

// OnTabClosed discards everything recorded for tabID.
func (t *Tracker) OnTabClosed(tabID int) {
	delete(t.tabs, tabID)
}

// Logs returns the entries of tabID, oldest first. Unknown tabs yield an
// empty slice.
func (t *Tracker) Logs(tabID int) []schemas.NetworkEntry {
	ring, ok := t.tabs[tabID]
	if !ok {
		return []schemas.NetworkEntry{}
	}
	return ring.All()
}

// Handle answers tracker requests on the runtime bus.
func (t *Tracker) Handle(ctx context.Context, req schemas.Request, _ bus.Sender, respond bus.Respond) bus.Disposition {
	switch r := req.(type) {
	case schemas.GetNetworkLogs:
		resp, err := schemas.NetworkLogsResponse(t.Logs(r.TabID))
		if err != nil {
			resp = schemas.Failure(err)
		}
		respond(resp)
		return bus.Responded

	case schemas.ClearNetworkLogs:
		// The next request of the tab allocates a fresh buffer.
		delete(t.tabs, r.TabID)
		respond(schemas.OK())
		return bus.Responded

	case schemas.SaveReport:
		if r.Report == nil {
			respond(schemas.Failure(errors.New("no report to save")))
			return bus.Responded
		}
		savedAt := t.now()
		go func() {
			if err := store.SaveLastReport(ctx, t.local, r.Report, savedAt); err != nil {
				t.logger.Error("Failed to persist report.", zap.String("report_id", r.Report.ReportID), zap.Error(err))
				respond(schemas.Failure(fmt.Errorf("failed to save report: %w", err)))
				return
			}
			t.logger.Debug("Report persisted.", zap.String("report_id", r.Report.ReportID))
			respond(schemas.OK())
		}()
		return bus.Pending

	default:
		return bus.NotHandled
	}
}
