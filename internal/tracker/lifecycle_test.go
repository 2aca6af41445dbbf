package tracker_test

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest"
	"go.uber.org/zap/zaptest/observer"

	"github.com/xkilldash9x/bugreport-cli/api/schemas"
	"github.com/xkilldash9x/bugreport-cli/internal/bus"
	"github.com/xkilldash9x/bugreport-cli/internal/store"
	"github.com/xkilldash9x/bugreport-cli/internal/tracker"
)

type recordingMenus struct {
	created []schemas.MenuItem
}

func (m *recordingMenus) Create(item schemas.MenuItem) error {
	m.created = append(m.created, item)
	return nil
}

type stubMessenger struct {
	tabID int
	req   schemas.Request
	resp  schemas.Response
	err   error
}

func (s *stubMessenger) SendTabMessage(_ context.Context, tabID int, _ bus.Sender, req schemas.Request) (schemas.Response, error) {
	s.tabID = tabID
	s.req = req
	return s.resp, s.err
}

func TestLifecycle_Startup(t *testing.T) {
	ctx := context.Background()

	t.Run("first run installs defaults", func(t *testing.T) {
		sync := newMemArea()
		menus := &recordingMenus{}
		l := tracker.NewLifecycle(zaptest.NewLogger(t), sync, menus, &stubMessenger{}, "1.0.0")

		reason, err := l.Startup(ctx)
		require.NoError(t, err)
		assert.Equal(t, tracker.ReasonInstall, reason)
		assert.JSONEq(t, `true`, string(sync.items[store.KeyEnabled]))
		assert.JSONEq(t, `"json"`, string(sync.items[store.KeyReportFormat]))
		assert.JSONEq(t, `"1.0.0"`, string(sync.items[store.KeyInstalledVersion]))
		require.Len(t, menus.created, 1)
		assert.Equal(t, "bugReporter", menus.created[0].ID)
		assert.Equal(t, "Generate Bug Report", menus.created[0].Title)
		assert.Equal(t, []schemas.MenuContext{schemas.MenuContextPage}, menus.created[0].Contexts)
	})

	t.Run("version change is an update", func(t *testing.T) {
		sync := newMemArea()
		require.NoError(t, sync.Set(ctx, map[string]any{store.KeyInstalledVersion: "0.9.0", store.KeyReportFormat: "zip"}))
		l := tracker.NewLifecycle(zaptest.NewLogger(t), sync, &recordingMenus{}, &stubMessenger{}, "1.0.0")

		reason, err := l.Startup(ctx)
		require.NoError(t, err)
		assert.Equal(t, tracker.ReasonUpdate, reason)
		assert.JSONEq(t, `"1.0.0"`, string(sync.items[store.KeyInstalledVersion]))
	})

	t.Run("plain restart only registers the menu", func(t *testing.T) {
		sync := newMemArea()
		require.NoError(t, sync.Set(ctx, map[string]any{store.KeyInstalledVersion: "1.0.0", store.KeyReportFormat: "zip"}))
		menus := &recordingMenus{}
		l := tracker.NewLifecycle(zaptest.NewLogger(t), sync, menus, &stubMessenger{}, "1.0.0")

		reason, err := l.Startup(ctx)
		require.NoError(t, err)
		assert.Empty(t, reason)
		assert.Len(t, menus.created, 1)
		assert.JSONEq(t, `"zip"`, string(sync.items[store.KeyReportFormat]), "settings untouched")
	})

	t.Run("storage failure", func(t *testing.T) {
		sync := newMemArea()
		sync.err = errors.New("offline")
		l := tracker.NewLifecycle(zaptest.NewLogger(t), sync, &recordingMenus{}, &stubMessenger{}, "1.0.0")
		_, err := l.Startup(ctx)
		assert.Error(t, err)
	})
}

func TestLifecycle_OnMenuClicked(t *testing.T) {
	ctx := context.Background()

	t.Run("sends a report request to the tab", func(t *testing.T) {
		core, logs := observer.New(zapcore.InfoLevel)
		messenger := &stubMessenger{resp: schemas.PageDataResponse(schemas.PageData{ConsoleLogs: []schemas.LogEntry{{Message: "a"}}})}
		l := tracker.NewLifecycle(zap.New(core), newMemArea(), &recordingMenus{}, messenger, "1.0.0")

		l.OnMenuClicked(ctx, schemas.MenuClick{MenuItemID: "bugReporter"}, 12)
		assert.Equal(t, 12, messenger.tabID)
		assert.Equal(t, schemas.GenerateReport{}, messenger.req)

		entries := logs.FilterMessage("Report generated from context menu.").All()
		require.Len(t, entries, 1)
		assert.EqualValues(t, 1, entries[0].ContextMap()["console_logs"])
	})

	t.Run("other menu items are ignored", func(t *testing.T) {
		messenger := &stubMessenger{}
		l := tracker.NewLifecycle(zaptest.NewLogger(t), newMemArea(), &recordingMenus{}, messenger, "1.0.0")
		l.OnMenuClicked(ctx, schemas.MenuClick{MenuItemID: "other"}, 12)
		assert.Nil(t, messenger.req)
	})

	t.Run("missing receiver is logged, not fatal", func(t *testing.T) {
		core, logs := observer.New(zapcore.WarnLevel)
		messenger := &stubMessenger{err: bus.ErrNoReceiver}
		l := tracker.NewLifecycle(zap.New(core), newMemArea(), &recordingMenus{}, messenger, "1.0.0")

		l.OnMenuClicked(ctx, schemas.MenuClick{MenuItemID: "bugReporter"}, 3)
		assert.Equal(t, 1, logs.FilterMessage("Context menu report request failed.").Len())
	})
}
