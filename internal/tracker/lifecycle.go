// File: internal/tracker/lifecycle.go
package tracker

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/xkilldash9x/bugreport-cli/api/schemas"
	"github.com/xkilldash9x/bugreport-cli/internal/bus"
	"github.com/xkilldash9x/bugreport-cli/internal/store"
)

// Install reasons.
const (
	ReasonInstall = "install"
	ReasonUpdate  = "update"
)

// ReportMenuItem is the page context menu entry that triggers a report.
var ReportMenuItem = schemas.MenuItem{
	ID:       "bugReporter",
	Title:    "Generate Bug Report",
	Contexts: []schemas.MenuContext{schemas.MenuContextPage},
}

// Menus registers context menu entries.
type Menus interface {
	Create(item schemas.MenuItem) error
}

// TabMessenger delivers a request to the listeners of one tab.
type TabMessenger interface {
	SendTabMessage(ctx context.Context, tabID int, sender bus.Sender, req schemas.Request) (schemas.Response, error)
}

// Lifecycle handles install/update bookkeeping and the context menu.
type Lifecycle struct {
	logger    *zap.Logger
	sync      store.Area
	menus     Menus
	messenger TabMessenger
	version   string
}

// NewLifecycle wires the lifecycle hooks. version is the running build.
func NewLifecycle(logger *zap.Logger, sync store.Area, menus Menus, messenger TabMessenger, version string) *Lifecycle {
	return &Lifecycle{
		logger:    logger.Named("lifecycle"),
		sync:      sync,
		menus:     menus,
		messenger: messenger,
		version:   version,
	}
}

// Startup decides whether this run is a fresh install or an update and runs
// OnInstalled accordingly. On a plain restart only the menu is registered
// again, since the registry does not survive the process. The returned reason
// is empty in that case.
func (l *Lifecycle) Startup(ctx context.Context) (string, error) {
	installed, found, err := store.GetString(ctx, l.sync, store.KeyInstalledVersion)
	if err != nil {
		return "", fmt.Errorf("failed to read installed version: %w", err)
	}

	var reason string
	switch {
	case !found:
		reason = ReasonInstall
	case installed != l.version:
		reason = ReasonUpdate
	default:
		return "", l.menus.Create(ReportMenuItem)
	}

	if err := l.OnInstalled(ctx, reason); err != nil {
		return reason, err
	}
	if err := l.sync.Set(ctx, map[string]any{store.KeyInstalledVersion: l.version}); err != nil {
		return reason, fmt.Errorf("failed to record installed version: %w", err)
	}
	return reason, nil
}

// OnInstalled writes the default settings and registers the menu entry.
func (l *Lifecycle) OnInstalled(ctx context.Context, reason string) error {
	l.logger.Info("Extension installed.", zap.String("reason", reason), zap.String("version", l.version))

	if err := l.sync.Set(ctx, map[string]any{
		store.KeyEnabled:      true,
		store.KeyReportFormat: "json",
	}); err != nil {
		return fmt.Errorf("failed to write default settings: %w", err)
	}
	if err := l.menus.Create(ReportMenuItem); err != nil {
		return fmt.Errorf("failed to create context menu: %w", err)
	}
	return nil
}

// OnMenuClicked asks the page monitor of tabID for a report. The answer is
// only logged. Safe to call from any goroutine.
func (l *Lifecycle) OnMenuClicked(ctx context.Context, click schemas.MenuClick, tabID int) {
	if click.MenuItemID != ReportMenuItem.ID {
		return
	}
	log := l.logger.With(zap.Int("tab_id", tabID))

	resp, err := l.messenger.SendTabMessage(ctx, tabID, bus.Sender{Context: "background"}, schemas.GenerateReport{})
	if err != nil {
		log.Warn("Context menu report request failed.", zap.Error(err))
		return
	}
	if err := resp.Err(); err != nil {
		log.Warn("Page monitor could not produce a report.", zap.Error(err))
		return
	}
	fields := []zap.Field{}
	if resp.Data != nil {
		fields = append(fields,
			zap.Int("console_logs", len(resp.Data.ConsoleLogs)),
			zap.Int("page_errors", len(resp.Data.PageErrors)),
		)
	}
	log.Info("Report generated from context menu.", fields...)
}
