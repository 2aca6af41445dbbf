// File: internal/monitor/monitor.go
package monitor

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/bugreport-cli/api/schemas"
	"github.com/xkilldash9x/bugreport-cli/internal/buffers"
	"github.com/xkilldash9x/bugreport-cli/internal/bus"
)

// PageInfo is the document metadata included in a page report.
type PageInfo struct {
	URL       string
	Title     string
	UserAgent string
	Viewport  schemas.Viewport
}

// PageInfoFunc resolves the current document's metadata.
type PageInfoFunc func(ctx context.Context) (PageInfo, error)

// Exception is an uncaught error raised by the page.
type Exception struct {
	Message string
	URL     string
	// Line and Column are 1-based.
	Line   int64
	Column int64
	Stack  string
	At     time.Time
}

// Monitor observes one document's console and answers report requests. All
// methods must be called from the page's event loop.
type Monitor struct {
	logger   *zap.Logger
	logs     *buffers.Ring[schemas.LogEntry]
	pageInfo PageInfoFunc
	now      func() time.Time
	mirror   bool
}

// Option configures a Monitor.
type Option func(*Monitor)

// WithClock overrides the time source used for report timestamps.
func WithClock(now func() time.Time) Option {
	return func(m *Monitor) { m.now = now }
}

// WithMirror copies every recorded entry to the logger at debug level.
func WithMirror(enabled bool) Option {
	return func(m *Monitor) { m.mirror = enabled }
}

// Scope is the lifetime of a single document. A new Scope is created on every
// main-frame navigation; at most one Monitor is ever installed in it.
type Scope struct {
	monitor *Monitor
}

// NewScope starts a fresh document lifetime.
func NewScope() *Scope { return &Scope{} }

// Monitor returns the installed monitor, or nil.
func (s *Scope) Monitor() *Monitor { return s.monitor }

// Install attaches a Monitor to scope. Repeated calls return the monitor
// already installed and report false.
func Install(scope *Scope, logger *zap.Logger, info PageInfoFunc, opts ...Option) (*Monitor, bool) {
	if scope.monitor != nil {
		return scope.monitor, false
	}
	m := &Monitor{
		logger:   logger.Named("page_monitor"),
		logs:     buffers.NewRing[schemas.LogEntry](schemas.MaxConsoleLogs),
		pageInfo: info,
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(m)
	}
	scope.monitor = m
	return m, true
}

// Record appends a console call.
func (m *Monitor) Record(t schemas.LogType, args []Arg, at time.Time) {
	m.push(schemas.LogEntry{
		Type:      t,
		Timestamp: schemas.FormatTimestamp(at),
		Message:   FormatArgs(args),
	})
}

// RecordException appends an uncaught error.
func (m *Monitor) RecordException(e Exception) {
	m.push(schemas.LogEntry{
		Type:      schemas.LogTypeError,
		Timestamp: schemas.FormatTimestamp(e.At),
		Message:   fmt.Sprintf("%s at %s:%d:%d", e.Message, e.URL, e.Line, e.Column),
		Stack:     e.Stack,
	})
}

func (m *Monitor) push(entry schemas.LogEntry) {
	m.logs.Push(entry)
	if m.mirror {
		m.logger.Debug("Console entry.",
			zap.String("type", string(entry.Type)),
			zap.String("message", entry.Message),
		)
	}
}

// Logs returns the buffered entries, oldest first.
func (m *Monitor) Logs() []schemas.LogEntry {
	return m.logs.Last(schemas.MaxConsoleLogs)
}

// Handle answers page monitor requests. Report requests resolve the page
// metadata off the loop and respond later; anything unknown is declined.
func (m *Monitor) Handle(ctx context.Context, req schemas.Request, _ bus.Sender, respond bus.Respond) bus.Disposition {
	switch req.(type) {
	case schemas.GenerateReport:
		all := m.logs.All()
		data := schemas.PageData{
			Timestamp:   schemas.FormatTimestamp(m.now()),
			ConsoleLogs: m.logs.Last(schemas.MaxConsoleLogs),
			PageErrors:  schemas.ErrorLogs(all, schemas.MaxPageErrors),
		}
		if m.pageInfo == nil {
			respond(schemas.PageDataResponse(data))
			return bus.Responded
		}
		go func() {
			info, err := m.pageInfo(ctx)
			if err != nil {
				m.logger.Warn("Failed to resolve page info.", zap.Error(err))
				respond(schemas.Failure(fmt.Errorf("failed to read page info: %w", err)))
				return
			}
			data.URL = info.URL
			data.Title = info.Title
			data.UserAgent = info.UserAgent
			data.Viewport = info.Viewport
			respond(schemas.PageDataResponse(data))
		}()
		return bus.Pending

	case schemas.GetConsoleLogs:
		resp, err := schemas.ConsoleLogsResponse(m.Logs())
		if err != nil {
			resp = schemas.Failure(err)
		}
		respond(resp)
		return bus.Responded

	default:
		return bus.NotHandled
	}
}
