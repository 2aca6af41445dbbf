// internal/browser/host.go
package browser

import (
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"sync"
	"time"

	cdpbrowser "github.com/chromedp/cdproto/browser"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/network"
	"github.com/chromedp/cdproto/page"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/xkilldash9x/bugreport-cli/api/schemas"
	"github.com/xkilldash9x/bugreport-cli/internal/bus"
	"github.com/xkilldash9x/bugreport-cli/internal/config"
	"github.com/xkilldash9x/bugreport-cli/internal/eventloop"
	"github.com/xkilldash9x/bugreport-cli/internal/monitor"
	"github.com/xkilldash9x/bugreport-cli/internal/tracker"
)

// ErrNoActiveTab is returned when no tab is open.
var ErrNoActiveTab = errors.New("no active tab")

// ErrUnknownTab is returned for ids that are not open.
var ErrUnknownTab = errors.New("no tab with id")

const (
	tabQueueSize   = 256
	launchTimeout  = 30 * time.Second
	pngDataURLHead = "data:image/png;base64,"
)

// PNGDataURL wraps raw PNG bytes in a data URL.
func PNGDataURL(png []byte) string {
	return pngDataURLHead + base64.StdEncoding.EncodeToString(png)
}

// Host drives a Chrome instance and provides the browser side of the
// system: tabs with a page monitor each, network capture into the tracker,
// screenshots and the browser's user agent.
type Host struct {
	logger      *zap.Logger
	bus         *bus.Bus
	tracker     *tracker.Tracker
	trackerLoop *eventloop.Loop
	monitorOpt  []monitor.Option
	limiter     *rate.Limiter

	// ctx bounds every tab loop.
	ctx           context.Context
	allocCancel   context.CancelFunc
	browserCtx    context.Context
	browserCancel context.CancelFunc

	tabs *registry
	wg   sync.WaitGroup
}

// NewHost launches the browser. Tab loops live until ctx is cancelled or
// Shutdown is called.
func NewHost(ctx context.Context, logger *zap.Logger, cfg config.Interface, b *bus.Bus, tr *tracker.Tracker, trackerLoop *eventloop.Loop) (*Host, error) {
	h := &Host{
		logger:      logger.Named("browser_host"),
		bus:         b,
		tracker:     tr,
		trackerLoop: trackerLoop,
		monitorOpt:  []monitor.Option{monitor.WithMirror(cfg.Monitor().MirrorConsole)},
		limiter:     rate.NewLimiter(rate.Limit(cfg.Capture().ScreenshotRate), 1),
		ctx:         ctx,
		tabs:        newRegistry(),
	}

	h.logger.Info("Initializing browser allocator...", zap.Bool("headless", cfg.Browser().Headless))
	allocCtx, allocCancel := chromedp.NewExecAllocator(ctx, AllocatorOptions(cfg.Browser())...)
	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	h.allocCancel = allocCancel
	h.browserCtx = browserCtx
	h.browserCancel = browserCancel

	// The first Run starts the browser process.
	startCtx, cancelStart := context.WithTimeout(browserCtx, launchTimeout)
	defer cancelStart()
	if err := chromedp.Run(startCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, fmt.Errorf("browser failed to start or respond: %w", err)
	}

	chromedp.ListenBrowser(browserCtx, func(ev interface{}) {
		if e, ok := ev.(*target.EventTargetDestroyed); ok {
			if id, found := h.tabs.lookupTarget(e.TargetID); found {
				h.logger.Debug("Tab target destroyed.", zap.Int("tab_id", id))
				h.forget(id, false)
			}
		}
	})

	h.logger.Info("Browser launched successfully and is responsive.")
	return h, nil
}

// OpenTab creates a tab, instruments it and navigates to url when not empty.
// The new tab becomes the active one.
func (h *Host) OpenTab(ctx context.Context, url string) (schemas.Tab, error) {
	id := h.tabs.allocate()
	tabCtx, cancel := chromedp.NewContext(h.browserCtx)
	if err := chromedp.Run(tabCtx); err != nil {
		cancel()
		return schemas.Tab{}, fmt.Errorf("failed to create tab: %w", err)
	}

	loopCtx, stopLoop := context.WithCancel(h.ctx)
	t := &tab{
		id:         id,
		targetID:   chromedp.FromContext(tabCtx).Target.TargetID,
		logger:     h.logger.With(zap.Int("tab_id", id)),
		ctx:        tabCtx,
		cancel:     cancel,
		loop:       eventloop.New(fmt.Sprintf("tab-%d", id), h.logger, tabQueueSize),
		stopLoop:   stopLoop,
		monitorOpt: h.monitorOpt,
	}
	t.renewScope()

	h.wg.Add(1)
	go func() {
		defer h.wg.Done()
		_ = t.loop.Run(loopCtx)
	}()

	monitor.Attach(tabCtx, t.logger, t.loop, t.currentMonitor)
	t.watchNavigation()
	// Chrome gives the main frame the target's id.
	tracker.NewNetworkAdapter(id, cdp.FrameID(t.targetID), h.trackerLoop, h.tracker).Attach(tabCtx)
	t.unlisten = h.bus.ListenTab(id, t.loop, t.handle)
	h.tabs.add(t)

	if err := t.run(ctx, network.Enable(), runtime.Enable(), page.Enable()); err != nil {
		h.forget(id, true)
		return schemas.Tab{}, fmt.Errorf("failed to enable tab domains: %w", err)
	}
	h.logger.Info("Tab opened.", zap.Int("tab_id", id), zap.String("target_id", string(t.targetID)))

	if url != "" {
		if err := h.Navigate(ctx, id, url); err != nil {
			return schemas.Tab{ID: id}, err
		}
	}
	return h.describe(ctx, t)
}

// Navigate loads url in tab id.
func (h *Host) Navigate(ctx context.Context, id int, url string) error {
	t, ok := h.tabs.get(id)
	if !ok {
		return fmt.Errorf("%w %d", ErrUnknownTab, id)
	}
	if err := t.run(ctx, chromedp.Navigate(url)); err != nil {
		return fmt.Errorf("failed to navigate tab %d to %s: %w", id, url, err)
	}
	return nil
}

// Activate brings tab id to the front and makes it the active tab.
func (h *Host) Activate(ctx context.Context, id int) error {
	t, ok := h.tabs.get(id)
	if !ok {
		return fmt.Errorf("%w %d", ErrUnknownTab, id)
	}
	if err := t.run(ctx, page.BringToFront()); err != nil {
		return fmt.Errorf("failed to activate tab %d: %w", id, err)
	}
	h.tabs.activate(id)
	return nil
}

// ActiveTab returns the most recently opened or activated tab.
func (h *Host) ActiveTab(ctx context.Context) (schemas.Tab, error) {
	t, ok := h.tabs.active()
	if !ok {
		return schemas.Tab{}, ErrNoActiveTab
	}
	return h.describe(ctx, t)
}

func (h *Host) describe(ctx context.Context, t *tab) (schemas.Tab, error) {
	out := schemas.Tab{ID: t.id}
	if err := t.run(ctx, chromedp.Location(&out.URL), chromedp.Title(&out.Title)); err != nil {
		return schemas.Tab{}, fmt.Errorf("failed to read tab %d: %w", t.id, err)
	}
	return out, nil
}

// CaptureVisibleTab screenshots the viewport of tab id as a PNG data URL.
// Calls are rate limited like the extension API they stand in for.
func (h *Host) CaptureVisibleTab(ctx context.Context, id int) (string, error) {
	t, ok := h.tabs.get(id)
	if !ok {
		return "", fmt.Errorf("%w %d", ErrUnknownTab, id)
	}
	if err := h.limiter.Wait(ctx); err != nil {
		return "", fmt.Errorf("screenshot quota: %w", err)
	}

	var buf []byte
	err := t.run(ctx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		buf, err = page.CaptureScreenshot().WithFormat(page.CaptureScreenshotFormatPng).Do(c)
		return err
	}))
	if err != nil {
		return "", fmt.Errorf("failed to capture tab %d: %w", id, err)
	}
	return PNGDataURL(buf), nil
}

// UserAgent returns the browser's default user agent.
func (h *Host) UserAgent(ctx context.Context) (string, error) {
	runCtx, cancel := context.WithCancel(h.browserCtx)
	defer cancel()
	stop := context.AfterFunc(ctx, cancel)
	defer stop()

	var ua string
	err := chromedp.Run(runCtx, chromedp.ActionFunc(func(c context.Context) error {
		var err error
		_, _, _, ua, _, err = cdpbrowser.GetVersion().Do(c)
		return err
	}))
	if err != nil {
		return "", fmt.Errorf("failed to read browser version: %w", err)
	}
	return ua, nil
}

// CloseTab closes tab id and discards its captured data.
func (h *Host) CloseTab(id int) error {
	if _, ok := h.tabs.get(id); !ok {
		return fmt.Errorf("%w %d", ErrUnknownTab, id)
	}
	h.forget(id, true)
	return nil
}

// forget unregisters a tab and tells the tracker it is gone. closeTarget is
// false when the browser already destroyed it.
func (h *Host) forget(id int, closeTarget bool) {
	t, ok := h.tabs.remove(id)
	if !ok {
		return
	}
	if t.unlisten != nil {
		t.unlisten()
	}
	h.bus.DropTab(id)
	h.trackerLoop.TryPost(func(context.Context) {
		h.tracker.OnTabClosed(id)
	})
	t.stopLoop()
	if closeTarget {
		t.cancel()
	} else {
		// Called from the browser's event dispatch; cancelling inline would
		// wait on that same dispatcher.
		go t.cancel()
	}
	h.logger.Info("Tab closed.", zap.Int("tab_id", id))
}

// Shutdown closes every tab and the browser, waiting for tab loops until
// ctx expires.
func (h *Host) Shutdown(ctx context.Context) error {
	h.logger.Info("Browser host shutdown initiated.")
	for _, t := range h.tabs.all() {
		h.forget(t.id, true)
	}

	done := make(chan struct{})
	go func() {
		h.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
	case <-ctx.Done():
		h.logger.Warn("Shutdown deadline exceeded. Forcing browser termination.", zap.Error(ctx.Err()))
	}

	h.browserCancel()
	h.allocCancel()
	return nil
}
