package composer_test

import (
	"context"
	"encoding/json"
	"errors"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest"

	"github.com/xkilldash9x/bugreport-cli/api/schemas"
	"github.com/xkilldash9x/bugreport-cli/internal/bus"
	"github.com/xkilldash9x/bugreport-cli/internal/composer"
	"github.com/xkilldash9x/bugreport-cli/internal/eventloop"
	"github.com/xkilldash9x/bugreport-cli/internal/monitor"
	"github.com/xkilldash9x/bugreport-cli/internal/reporting"
	"github.com/xkilldash9x/bugreport-cli/internal/store"
	"github.com/xkilldash9x/bugreport-cli/internal/tracker"
)

func TestMain(m *testing.M) {
	goleak.VerifyTestMain(m)
}

var fixedNow = time.Date(2025, 10, 26, 10, 0, 0, 123_000_000, time.UTC)

const tabID = 3

type fakeBrowser struct {
	tab     schemas.Tab
	tabErr  error
	shot    string
	shotErr error
	ua      string
}

func (b *fakeBrowser) ActiveTab(context.Context) (schemas.Tab, error) { return b.tab, b.tabErr }
func (b *fakeBrowser) CaptureVisibleTab(_ context.Context, id int) (string, error) {
	return b.shot, b.shotErr
}
func (b *fakeBrowser) UserAgent(context.Context) (string, error) { return b.ua, nil }

type failingArea struct{ store.Area }

func (failingArea) Set(context.Context, map[string]any) error { return errors.New("quota exceeded") }

// harness wires a bus with a tab loop and a tracker loop, the way the host
// does.
type harness struct {
	bus      *bus.Bus
	tabLoop  *eventloop.Loop
	trkLoop  *eventloop.Loop
	tracker  *tracker.Tracker
	local    store.Area
	statuses []composer.Status
	mu       sync.Mutex
}

func newHarness(t *testing.T, local store.Area) *harness {
	t.Helper()
	logger := zaptest.NewLogger(t)
	ctx, cancel := context.WithCancel(context.Background())

	h := &harness{
		bus:     bus.New(logger),
		tabLoop: eventloop.New("tab-3", logger, 64),
		trkLoop: eventloop.New("tracker", logger, 64),
		local:   local,
	}
	h.tracker = tracker.New(logger, local, tracker.WithClock(func() time.Time { return fixedNow }))
	h.bus.Listen(h.trkLoop, h.tracker.Handle)

	var wg sync.WaitGroup
	for _, l := range []*eventloop.Loop{h.tabLoop, h.trkLoop} {
		wg.Add(1)
		go func(l *eventloop.Loop) {
			defer wg.Done()
			_ = l.Run(ctx)
		}(l)
	}
	t.Cleanup(func() {
		cancel()
		wg.Wait()
	})
	return h
}

func openLocal(t *testing.T) store.Area {
	t.Helper()
	s, err := store.OpenSQLite(context.Background(), filepath.Join(t.TempDir(), "storage.db"), zap.NewNop())
	require.NoError(t, err)
	t.Cleanup(func() { _ = s.Close() })
	return s.Area(store.AreaLocal)
}

// installMonitor attaches a page monitor to the tab that records "X failed".
func (h *harness) installMonitor(t *testing.T, info monitor.PageInfoFunc) {
	t.Helper()
	require.NoError(t, h.tabLoop.Do(context.Background(), func(context.Context) {
		m, _ := monitor.Install(monitor.NewScope(), zaptest.NewLogger(t), info, monitor.WithClock(func() time.Time { return fixedNow }))
		m.Record(schemas.LogTypeLog, []monitor.Arg{monitor.Primitive("loading cart")}, fixedNow.Add(-3*time.Second))
		m.Record(schemas.LogTypeError, []monitor.Arg{monitor.Primitive("X failed")}, fixedNow.Add(-time.Second))
		h.bus.ListenTab(tabID, h.tabLoop, m.Handle)
	}))
}

func (h *harness) recordRequests(t *testing.T) {
	t.Helper()
	require.NoError(t, h.trkLoop.Do(context.Background(), func(context.Context) {
		h.tracker.OnRequestStart(tracker.RequestStart{RequestID: "1", TabID: tabID, URL: "https://api.example/items", Method: "GET", Type: "xmlhttprequest", At: fixedNow})
		h.tracker.OnRequestCompleted(tracker.RequestCompleted{RequestID: "1", TabID: tabID, StatusCode: 404, StatusLine: "HTTP/1.1 404 Not Found"})
	}))
}

func (h *harness) composer(t *testing.T, b composer.Browser, opts ...composer.Option) *composer.Composer {
	opts = append([]composer.Option{
		composer.WithClock(func() time.Time { return fixedNow }),
		composer.WithStatus(func(s composer.Status) {
			h.mu.Lock()
			defer h.mu.Unlock()
			h.statuses = append(h.statuses, s)
		}),
	}, opts...)
	return composer.New(zaptest.NewLogger(t), b, h.bus, opts...)
}

func (h *harness) messages() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	out := make([]string, len(h.statuses))
	for i, s := range h.statuses {
		out[i] = s.Message
	}
	return out
}

func (h *harness) last() composer.Status {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.statuses[len(h.statuses)-1]
}

func stubInfo(context.Context) (monitor.PageInfo, error) {
	return monitor.PageInfo{
		URL:       "https://shop.example/cart",
		Title:     "Cart | Shop",
		UserAgent: "PageAgent/1.0",
		Viewport:  schemas.Viewport{Width: 1280, Height: 720},
	}, nil
}

func cartBrowser() *fakeBrowser {
	return &fakeBrowser{
		tab:  schemas.Tab{ID: tabID, URL: "https://shop.example/cart", Title: "Cart | Shop"},
		shot: "data:image/png;base64,iVBORw0KGgo=",
		ua:   "HostAgent/2.0",
	}
}

func TestGenerate_FailedRequestScenario(t *testing.T) {
	h := newHarness(t, openLocal(t))
	h.installMonitor(t, stubInfo)
	h.recordRequests(t)
	c := h.composer(t, cartBrowser())

	report, err := c.Generate(context.Background())
	require.NoError(t, err)

	assert.Equal(t, "bug-1761472800123", report.ReportID)
	assert.Equal(t, "2025-10-26T10:00:00.123Z", report.GeneratedAt)
	assert.Equal(t, "PageAgent/1.0", report.Page.UserAgent)
	require.Len(t, report.Page.PageErrors, 1)
	assert.Equal(t, "X failed", report.Page.PageErrors[0].Message)
	assert.Len(t, report.Page.ConsoleLogs, 2)
	assert.Equal(t, schemas.NetworkSummary{Total: 1, Failed: 1}, report.Network.Summary)
	assert.Equal(t, "data:image/png;base64,iVBORw0KGgo=", report.Screenshot)

	assert.Equal(t, composer.StateDone, c.State())
	assert.Same(t, report, c.Current())
	assert.Equal(t, []string{
		"Generating bug report...",
		"Capturing page data...",
		"Capturing network logs...",
		"Taking screenshot...",
		"Assembling report...",
		"Saving report...",
		"Bug report generated successfully!",
	}, h.messages())
	assert.Equal(t, composer.ClassSuccess, h.last().Class)

	summary := reporting.Summary(c.Current())
	assert.Contains(t, summary, "Console Errors (1):\n[2025-10-26T09:59:59.123Z] X failed")
	assert.Contains(t, summary, "- Failed Requests: 1")
	assert.Contains(t, summary, "- [404] GET https://api.example/items")

	stored, _, err := store.LoadLastReport(context.Background(), h.local)
	require.NoError(t, err)
	assert.Equal(t, report.ReportID, stored.ReportID)
	assert.Equal(t, report.Network.Summary, stored.Network.Summary)
}

func TestGenerate_PrivilegedPage(t *testing.T) {
	for _, url := range []string{"chrome://settings", "chrome-extension://abc/popup.html", "about:blank"} {
		h := newHarness(t, openLocal(t))
		b := cartBrowser()
		b.tab.URL = url
		c := h.composer(t, b)

		report, err := c.Generate(context.Background())
		assert.Nil(t, report)
		assert.ErrorIs(t, err, composer.ErrPrivilegedPage, url)
		assert.Equal(t, composer.StateError, c.State())
		assert.Nil(t, c.Current())
		assert.Equal(t, "Error: Cannot capture data from Chrome internal pages", h.last().Message)
		assert.Equal(t, composer.ClassError, h.last().Class)
	}
}

func TestGenerate_CustomPrivilegedSchemes(t *testing.T) {
	h := newHarness(t, openLocal(t))
	b := cartBrowser()
	b.tab.URL = "about:blank"
	c := h.composer(t, b, composer.WithPrivilegedSchemes([]string{"chrome://"}))

	report, err := c.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "about:blank", report.Page.URL)
}

func TestGenerate_FallbackWithoutMonitor(t *testing.T) {
	h := newHarness(t, openLocal(t))
	c := h.composer(t, cartBrowser())

	report, err := c.Generate(context.Background())
	require.NoError(t, err)

	page := report.Page
	assert.Equal(t, "https://shop.example/cart", page.URL)
	assert.Equal(t, "Cart | Shop", page.Title)
	assert.Equal(t, "HostAgent/2.0", page.UserAgent)
	assert.Equal(t, schemas.Viewport{}, page.Viewport)
	assert.Equal(t, "2025-10-26T10:00:00.123Z", page.Timestamp)
	assert.NotNil(t, page.ConsoleLogs)
	assert.Empty(t, page.ConsoleLogs)
	assert.NotNil(t, page.PageErrors)
	assert.Equal(t, schemas.NetworkSummary{}, report.Network.Summary)
	assert.NotNil(t, report.Network.Requests)
}

func TestGenerate_FallbackWhenMonitorFails(t *testing.T) {
	h := newHarness(t, openLocal(t))
	h.installMonitor(t, func(context.Context) (monitor.PageInfo, error) {
		return monitor.PageInfo{}, errors.New("execution context was destroyed")
	})
	c := h.composer(t, cartBrowser())

	report, err := c.Generate(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "HostAgent/2.0", report.Page.UserAgent)
	assert.Empty(t, report.Page.ConsoleLogs)
}

func TestGenerate_PersistenceFailure(t *testing.T) {
	h := newHarness(t, failingArea{})
	c := h.composer(t, cartBrowser())

	report, err := c.Generate(context.Background())
	assert.Nil(t, report)
	require.Error(t, err)
	assert.Contains(t, err.Error(), "quota exceeded")
	assert.Equal(t, composer.StateError, c.State())
	assert.Nil(t, c.Current(), "current only changes on success")
}

func TestGenerate_ScreenshotFailureKeepsPreviousReport(t *testing.T) {
	h := newHarness(t, openLocal(t))
	b := cartBrowser()
	c := h.composer(t, b)

	first, err := c.Generate(context.Background())
	require.NoError(t, err)

	b.shotErr = errors.New("quota: MAX_CAPTURE_VISIBLE_TAB_CALLS_PER_SECOND")
	_, err = c.Generate(context.Background())
	require.Error(t, err)
	assert.Same(t, first, c.Current())
	assert.Contains(t, h.last().Message, "failed to capture screenshot")
}

func TestArchiveFilename(t *testing.T) {
	long := ""
	for i := 0; i < 30; i++ {
		long += "abcde"
	}
	testCases := []struct {
		name     string
		title    string
		expected string
	}{
		{"Simple", "Cart | Shop", "Cart_Shop.zip"},
		{"CollapsesRuns", "a -- b  ?? c", "a_b_c.zip"},
		{"Unicode", "Café ☕ menu", "Caf_menu.zip"},
		{"Truncated", long, long[:100] + ".zip"},
		{"EmptyFallsBack", "", "bug-1761472800123.zip"},
		{"OnlySymbols", "!!!", "_.zip"},
	}
	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, composer.ArchiveFilename(tt.title, "bug-1761472800123"))
		})
	}
}

type captureSaver struct {
	name string
	data []byte
	err  error
}

func (s *captureSaver) SaveAs(_ context.Context, name string, data []byte) (string, error) {
	s.name, s.data = name, data
	return "/downloads/" + name, s.err
}

type captureClipboard struct {
	text string
	err  error
}

func (c *captureClipboard) Copy(text string) error {
	c.text = text
	return c.err
}

func TestExportAndCopy(t *testing.T) {
	h := newHarness(t, openLocal(t))
	h.installMonitor(t, stubInfo)
	h.recordRequests(t)
	c := h.composer(t, cartBrowser())

	_, err := c.Export(context.Background(), &captureSaver{})
	assert.ErrorIs(t, err, composer.ErrNoReport)
	assert.ErrorIs(t, c.Copy(&captureClipboard{}), composer.ErrNoReport)

	_, err = c.Generate(context.Background())
	require.NoError(t, err)

	saver := &captureSaver{}
	path, err := c.Export(context.Background(), saver)
	require.NoError(t, err)
	assert.Equal(t, "/downloads/Cart_Shop.zip", path)
	assert.Equal(t, "Cart_Shop.zip", saver.name)
	assert.Equal(t, []byte("PK\x03\x04"), saver.data[:4])
	assert.Equal(t, "Report downloaded as ZIP!", h.last().Message)

	cb := &captureClipboard{}
	require.NoError(t, c.Copy(cb))
	assert.Contains(t, cb.text, "Report ID: bug-1761472800123")
	assert.Equal(t, "Report copied to clipboard!", h.last().Message)

	err = c.Copy(&captureClipboard{err: errors.New("not a terminal")})
	assert.ErrorIs(t, err, composer.ErrCopyFailed)
	assert.Equal(t, "Failed to copy to clipboard", h.last().Message)
	assert.Equal(t, composer.ClassError, h.last().Class)
}

func TestState_String(t *testing.T) {
	assert.Equal(t, "capturing_screenshot", composer.StateCapturingScreenshot.String())
	assert.Equal(t, "state(42)", composer.State(42).String())

	raw, err := json.Marshal(composer.StateDone.String())
	require.NoError(t, err)
	assert.Equal(t, `"done"`, string(raw))
}
