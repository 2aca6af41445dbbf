// File: internal/composer/composer.go
package composer

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/xkilldash9x/bugreport-cli/api/schemas"
	"github.com/xkilldash9x/bugreport-cli/internal/bus"
	"github.com/xkilldash9x/bugreport-cli/internal/reporting"
)

// DefaultPrivilegedSchemes are URL prefixes of pages that cannot be captured.
var DefaultPrivilegedSchemes = []string{"chrome://", "chrome-extension://", "devtools://", "edge://", "about:"}

var (
	// ErrPrivilegedPage is returned for browser internal pages.
	ErrPrivilegedPage = errors.New("Cannot capture data from Chrome internal pages")
	// ErrNoReport is returned by exports before a report was generated.
	ErrNoReport = errors.New("no report generated yet")
	// ErrCopyFailed wraps clipboard failures.
	ErrCopyFailed = errors.New("Failed to copy to clipboard")
)

// Browser is the part of the host the composer needs.
type Browser interface {
	ActiveTab(ctx context.Context) (schemas.Tab, error)
	CaptureVisibleTab(ctx context.Context, tabID int) (string, error)
	UserAgent(ctx context.Context) (string, error)
}

// Messenger sends requests over the message bus.
type Messenger interface {
	SendMessage(ctx context.Context, sender bus.Sender, req schemas.Request) (schemas.Response, error)
	SendTabMessage(ctx context.Context, tabID int, sender bus.Sender, req schemas.Request) (schemas.Response, error)
}

// Saver stores an exported file, possibly asking the user where.
type Saver interface {
	SaveAs(ctx context.Context, suggestedName string, data []byte) (string, error)
}

// Clipboard receives copied text.
type Clipboard interface {
	Copy(text string) error
}

var sender = bus.Sender{Context: "popup"}

// Composer assembles bug reports from the page monitor, the tracker and the
// host, and exports the most recent one. It is not safe for concurrent use;
// the host drives it from a single event loop.
type Composer struct {
	logger     *zap.Logger
	browser    Browser
	messenger  Messenger
	privileged []string
	now        func() time.Time
	status     StatusFunc

	state   State
	current *schemas.BugReport
}

// Option configures a Composer.
type Option func(*Composer)

// WithPrivilegedSchemes replaces the list of URL prefixes refused for capture.
func WithPrivilegedSchemes(schemes []string) Option {
	return func(c *Composer) { c.privileged = schemes }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(c *Composer) { c.now = now }
}

// WithStatus installs the status line callback.
func WithStatus(fn StatusFunc) Option {
	return func(c *Composer) { c.status = fn }
}

// New creates a composer.
func New(logger *zap.Logger, browser Browser, messenger Messenger, opts ...Option) *Composer {
	c := &Composer{
		logger:     logger.Named("composer"),
		browser:    browser,
		messenger:  messenger,
		privileged: DefaultPrivilegedSchemes,
		now:        time.Now,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// State returns the progress of the last generation.
func (c *Composer) State() State { return c.state }

// Current returns the last successfully generated report, or nil.
func (c *Composer) Current() *schemas.BugReport { return c.current }

func (c *Composer) enter(s State, message string) {
	c.state = s
	c.emit(message, ClassInfo)
}

func (c *Composer) emit(message string, class Class) {
	if c.status != nil {
		c.status(Status{State: c.state, Message: message, Class: class})
	}
}

func (c *Composer) fail(err error) error {
	c.state = StateError
	c.logger.Error("Report generation failed.", zap.Error(err))
	c.emit("Error: "+err.Error(), ClassError)
	return err
}

// Generate captures the active tab and builds a report. The report becomes
// Current only once it has been persisted.
func (c *Composer) Generate(ctx context.Context) (*schemas.BugReport, error) {
	c.enter(StateResolvingTab, "Generating bug report...")
	tab, err := c.browser.ActiveTab(ctx)
	if err != nil {
		return nil, c.fail(fmt.Errorf("failed to resolve active tab: %w", err))
	}
	if c.isPrivileged(tab.URL) {
		return nil, c.fail(ErrPrivilegedPage)
	}
	log := c.logger.With(zap.Int("tab_id", tab.ID), zap.String("url", tab.URL))

	c.enter(StateCapturingPage, "Capturing page data...")
	page, err := c.capturePage(ctx, log, tab)
	if err != nil {
		return nil, c.fail(err)
	}

	c.enter(StateCapturingNetwork, "Capturing network logs...")
	resp, err := c.messenger.SendMessage(ctx, sender, schemas.GetNetworkLogs{TabID: tab.ID})
	if err == nil {
		err = resp.Err()
	}
	if err != nil {
		return nil, c.fail(fmt.Errorf("failed to get network logs: %w", err))
	}
	requests, err := resp.NetworkLogs()
	if err != nil {
		return nil, c.fail(err)
	}

	c.enter(StateCapturingScreenshot, "Taking screenshot...")
	screenshot, err := c.browser.CaptureVisibleTab(ctx, tab.ID)
	if err != nil {
		return nil, c.fail(fmt.Errorf("failed to capture screenshot: %w", err))
	}

	c.enter(StateAssembling, "Assembling report...")
	now := c.now()
	report := &schemas.BugReport{
		ReportID:    schemas.NewReportID(now),
		GeneratedAt: schemas.FormatTimestamp(now),
		Page:        page,
		Network: schemas.NetworkData{
			Requests: requests,
			Summary:  schemas.Summarize(requests),
		},
		Screenshot: screenshot,
	}
	log.Info("Report compiled.",
		zap.String("report_id", report.ReportID),
		zap.Int("console_logs", len(page.ConsoleLogs)),
		zap.Int("network_requests", len(requests)),
		zap.Bool("has_screenshot", screenshot != ""),
	)

	c.enter(StatePersisting, "Saving report...")
	resp, err = c.messenger.SendMessage(ctx, sender, schemas.SaveReport{Report: report})
	if err == nil {
		err = resp.Err()
	}
	if err != nil {
		return nil, c.fail(fmt.Errorf("failed to save report: %w", err))
	}

	c.current = report
	c.state = StateDone
	c.emit("Bug report generated successfully!", ClassSuccess)
	return report, nil
}

func (c *Composer) isPrivileged(url string) bool {
	for _, scheme := range c.privileged {
		if scheme != "" && strings.HasPrefix(url, scheme) {
			return true
		}
	}
	return false
}

// capturePage asks the page monitor for its data. A page without a monitor,
// or one that cannot answer, still gets a report with what the host knows.
func (c *Composer) capturePage(ctx context.Context, log *zap.Logger, tab schemas.Tab) (schemas.PageData, error) {
	resp, err := c.messenger.SendTabMessage(ctx, tab.ID, sender, schemas.GenerateReport{})
	if err == nil {
		err = resp.Err()
	}
	if err == nil && resp.Data != nil {
		return *resp.Data, nil
	}
	if ctxErr := ctx.Err(); ctxErr != nil {
		return schemas.PageData{}, ctxErr
	}
	log.Info("Page monitor not responding, using fallback data.", zap.Error(err))

	ua, uaErr := c.browser.UserAgent(ctx)
	if uaErr != nil {
		log.Warn("Failed to read user agent.", zap.Error(uaErr))
	}
	return schemas.PageData{
		URL:         tab.URL,
		Title:       tab.Title,
		Timestamp:   schemas.FormatTimestamp(c.now()),
		UserAgent:   ua,
		Viewport:    schemas.Viewport{},
		ConsoleLogs: []schemas.LogEntry{},
		PageErrors:  []schemas.LogEntry{},
	}, nil
}

var (
	unsafeChars = regexp.MustCompile(`[^a-zA-Z0-9]`)
	underscores = regexp.MustCompile(`_+`)
)

// MaxFilenameLength bounds the sanitized title used as archive name.
const MaxFilenameLength = 100

// ArchiveFilename derives the archive name from the page title. Every
// character outside [A-Za-z0-9] becomes "_", runs collapse, and the result is
// cut to MaxFilenameLength. An empty title falls back to reportID.
func ArchiveFilename(title, reportID string) string {
	name := underscores.ReplaceAllString(unsafeChars.ReplaceAllString(title, "_"), "_")
	if len(name) > MaxFilenameLength {
		name = name[:MaxFilenameLength]
	}
	if name == "" {
		name = reportID
	}
	return name + ".zip"
}

// Export saves the current report as a zip archive and returns its path.
func (c *Composer) Export(ctx context.Context, saver Saver) (string, error) {
	report := c.current
	if report == nil {
		return "", ErrNoReport
	}

	var buf bytes.Buffer
	if err := reporting.WriteArchive(&buf, report); err != nil {
		c.emit("Error creating zip file: "+err.Error(), ClassError)
		return "", fmt.Errorf("failed to create archive: %w", err)
	}
	path, err := saver.SaveAs(ctx, ArchiveFilename(report.Page.Title, report.ReportID), buf.Bytes())
	if err != nil {
		c.emit("Error creating zip file: "+err.Error(), ClassError)
		return "", fmt.Errorf("failed to save archive: %w", err)
	}
	c.emit("Report downloaded as ZIP!", ClassSuccess)
	return path, nil
}

// Copy places the text summary of the current report on the clipboard.
func (c *Composer) Copy(cb Clipboard) error {
	report := c.current
	if report == nil {
		return ErrNoReport
	}
	if err := cb.Copy(reporting.Summary(report)); err != nil {
		c.logger.Warn("Clipboard write failed.", zap.Error(err))
		c.emit(ErrCopyFailed.Error(), ClassError)
		return fmt.Errorf("%w: %w", ErrCopyFailed, err)
	}
	c.emit("Report copied to clipboard!", ClassSuccess)
	return nil
}
