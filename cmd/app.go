// File: cmd/app.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/mitchellh/go-homedir"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/xkilldash9x/bugreport-cli/api/schemas"
	"github.com/xkilldash9x/bugreport-cli/internal/browser"
	"github.com/xkilldash9x/bugreport-cli/internal/bus"
	"github.com/xkilldash9x/bugreport-cli/internal/composer"
	"github.com/xkilldash9x/bugreport-cli/internal/config"
	"github.com/xkilldash9x/bugreport-cli/internal/eventloop"
	"github.com/xkilldash9x/bugreport-cli/internal/store"
	"github.com/xkilldash9x/bugreport-cli/internal/tracker"
)

const (
	loopQueueSize   = 1024
	shutdownTimeout = 10 * time.Second
)

// app holds the running components: storage, the message bus, the tracker
// and composer loops, the browser host and the context menu.
type app struct {
	logger  *zap.Logger
	cfg     config.Interface
	backend store.Backend

	bus          *bus.Bus
	tracker      *tracker.Tracker
	trackerLoop  *eventloop.Loop
	composerLoop *eventloop.Loop
	host         *browser.Host
	menus        *browser.MenuRegistry
	composer     *composer.Composer

	saver     composer.Saver
	clipboard composer.Clipboard

	cancel context.CancelFunc
	group  *errgroup.Group
}

type appOptions struct {
	status    composer.StatusFunc
	saver     composer.Saver
	clipboard composer.Clipboard
}

// openBackend opens the configured storage backend, expanding "~" in sqlite
// paths.
func openBackend(ctx context.Context, cfg config.StorageConfig, logger *zap.Logger) (store.Backend, error) {
	dsn := cfg.DSN
	if cfg.Driver != "postgres" {
		expanded, err := homedir.Expand(dsn)
		if err != nil {
			return nil, fmt.Errorf("failed to expand storage path %q: %w", dsn, err)
		}
		dsn = expanded
	}
	backend, err := store.Open(ctx, cfg.Driver, dsn, logger)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s storage: %w", cfg.Driver, err)
	}
	return backend, nil
}

// startApp brings every component up. The caller must call shutdown.
func startApp(ctx context.Context, logger *zap.Logger, cfg config.Interface, opts appOptions) (a *app, err error) {
	backend, err := openBackend(ctx, cfg.Storage(), logger)
	if err != nil {
		return nil, err
	}

	runCtx, cancel := context.WithCancel(ctx)
	g, gctx := errgroup.WithContext(runCtx)
	a = &app{
		logger:       logger,
		cfg:          cfg,
		backend:      backend,
		bus:          bus.New(logger),
		trackerLoop:  eventloop.New("tracker", logger, loopQueueSize),
		composerLoop: eventloop.New("composer", logger, loopQueueSize),
		menus:        browser.NewMenuRegistry(),
		saver:        opts.saver,
		clipboard:    opts.clipboard,
		cancel:       cancel,
		group:        g,
	}
	defer func() {
		if err != nil {
			a.shutdown()
		}
	}()

	for _, loop := range []*eventloop.Loop{a.trackerLoop, a.composerLoop} {
		g.Go(func() error { return loop.Run(gctx) })
	}

	a.tracker = tracker.New(logger, backend.Area(store.AreaLocal),
		tracker.WithRedactor(tracker.NewRedactor(cfg.Tracker().RedactHeaders...)))
	a.bus.Listen(a.trackerLoop, a.tracker.Handle)

	a.host, err = browser.NewHost(runCtx, logger, cfg, a.bus, a.tracker, a.trackerLoop)
	if err != nil {
		return a, err
	}

	lifecycle := tracker.NewLifecycle(logger, backend.Area(store.AreaSync), a.menus, a.bus, Version)
	reason, err := lifecycle.Startup(ctx)
	if err != nil {
		return a, fmt.Errorf("failed to run startup hooks: %w", err)
	}
	if reason != "" {
		logger.Info("Install state recorded.", zap.String("reason", reason), zap.String("version", Version))
	}
	a.menus.OnClicked(lifecycle.OnMenuClicked)

	composerOpts := []composer.Option{composer.WithPrivilegedSchemes(cfg.Capture().PrivilegedSchemes)}
	if opts.status != nil {
		composerOpts = append(composerOpts, composer.WithStatus(opts.status))
	}
	a.composer = composer.New(logger, a.host, a.bus, composerOpts...)
	return a, nil
}

// shutdown stops the browser, the loops and the storage backend.
func (a *app) shutdown() {
	if a.host != nil {
		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		if err := a.host.Shutdown(ctx); err != nil {
			a.logger.Warn("Browser host shutdown failed.", zap.Error(err))
		}
		cancel()
	}
	a.cancel()
	if err := a.group.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		a.logger.Warn("Event loop exited with error.", zap.Error(err))
	}
	if err := a.backend.Close(); err != nil {
		a.logger.Warn("Failed to close storage.", zap.Error(err))
	}
}

// Generate builds a report for the active tab on the composer loop.
func (a *app) Generate(ctx context.Context) (*schemas.BugReport, error) {
	var (
		report *schemas.BugReport
		genErr error
	)
	if err := a.composerLoop.Do(ctx, func(ctx context.Context) {
		report, genErr = a.composer.Generate(ctx)
	}); err != nil {
		return nil, err
	}
	return report, genErr
}

// Download exports the current report through the app's saver.
func (a *app) Download(ctx context.Context) (string, error) {
	return a.export(ctx, a.saver)
}

func (a *app) export(ctx context.Context, saver composer.Saver) (string, error) {
	if saver == nil {
		return "", errors.New("no download target configured")
	}
	var (
		path      string
		exportErr error
	)
	if err := a.composerLoop.Do(ctx, func(ctx context.Context) {
		path, exportErr = a.composer.Export(ctx, saver)
	}); err != nil {
		return "", err
	}
	return path, exportErr
}

// Copy puts the report summary on the app's clipboard.
func (a *app) Copy(ctx context.Context) error {
	if a.clipboard == nil {
		return errors.New("no clipboard configured")
	}
	var copyErr error
	if err := a.composerLoop.Do(ctx, func(context.Context) {
		copyErr = a.composer.Copy(a.clipboard)
	}); err != nil {
		return err
	}
	return copyErr
}

// Current returns the last generated report.
func (a *app) Current(ctx context.Context) (*schemas.BugReport, error) {
	var report *schemas.BugReport
	err := a.composerLoop.Do(ctx, func(context.Context) {
		report = a.composer.Current()
	})
	return report, err
}

// MenuClick chooses the report entry of the page context menu on the active
// tab.
func (a *app) MenuClick(ctx context.Context) error {
	tab, err := a.host.ActiveTab(ctx)
	if err != nil {
		return err
	}
	return a.menus.Click(ctx, tracker.ReportMenuItem.ID, tab)
}
