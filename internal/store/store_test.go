package store

import (
	"context"
	"errors"
	"regexp"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5"
	"github.com/pashagolub/pgxmock/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"
)

// flexibleSQLMatcher creates a regex that is insensitive to whitespace for more robust SQL mock testing.
func flexibleSQLMatcher(sql string) string {
	trimmed := strings.TrimSpace(sql)
	return regexp.MustCompile(`\s+`).ReplaceAllString(regexp.QuoteMeta(trimmed), `\s+`)
}

func newMockStore(t *testing.T, logger *zap.Logger) (*Store, pgxmock.PgxPoolIface) {
	t.Helper()
	mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
	require.NoError(t, err)
	t.Cleanup(mockPool.Close)

	mockPool.ExpectPing().WillReturnError(nil)
	mockPool.ExpectExec(flexibleSQLMatcher(sqlCreateTable)).
		WillReturnResult(pgxmock.NewResult("CREATE TABLE", 0))

	s, err := New(context.Background(), mockPool, logger)
	require.NoError(t, err)
	return s, mockPool
}

func TestNewStore(t *testing.T) {
	t.Run("should return error if ping fails", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		pingErr := errors.New("database unavailable")
		mockPool.ExpectPing().WillReturnError(pingErr)

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.ErrorIs(t, err, pingErr, "Error from ping should be propagated")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should fail when the table cannot be created", func(t *testing.T) {
		mockPool, err := pgxmock.NewPool(pgxmock.MonitorPingsOption(true))
		require.NoError(t, err)
		defer mockPool.Close()

		mockPool.ExpectPing().WillReturnError(nil)
		mockPool.ExpectExec(flexibleSQLMatcher(sqlCreateTable)).
			WillReturnError(errors.New("permission denied"))

		_, err = New(context.Background(), mockPool, zap.NewNop())
		require.Error(t, err)
		assert.Contains(t, err.Error(), "failed to create tables")
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPGArea_Set(t *testing.T) {
	ctx := context.Background()

	t.Run("should write every key in one transaction without rollback errors", func(t *testing.T) {
		observedZapCore, observedLogs := observer.New(zapcore.ErrorLevel)
		s, mockPool := newMockStore(t, zap.New(observedZapCore))

		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertItem)).
			WithArgs(AreaSync, KeyEnabled, []byte(`true`), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertItem)).
			WithArgs(AreaSync, KeyReportFormat, []byte(`"json"`), pgxmock.AnyArg()).
			WillReturnResult(pgxmock.NewResult("INSERT", 1))
		mockPool.ExpectCommit()
		mockPool.ExpectRollback().WillReturnError(pgx.ErrTxClosed)

		err := s.Area(AreaSync).Set(ctx, map[string]any{
			KeyReportFormat: "json",
			KeyEnabled:      true,
		})
		require.NoError(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
		assert.Empty(t, observedLogs.All(), "Expected no errors logged on successful commit")
	})

	t.Run("should roll back when a write fails", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())

		writeErr := errors.New("disk full")
		mockPool.ExpectBegin()
		mockPool.ExpectExec(flexibleSQLMatcher(sqlUpsertItem)).
			WithArgs(AreaLocal, KeyLastReportTime, []byte(`1761472800123`), pgxmock.AnyArg()).
			WillReturnError(writeErr)
		mockPool.ExpectRollback()

		err := s.Area(AreaLocal).Set(ctx, map[string]any{KeyLastReportTime: int64(1761472800123)})
		require.Error(t, err)
		assert.ErrorIs(t, err, writeErr)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})

	t.Run("should reject unencodable values before touching the database", func(t *testing.T) {
		s, mockPool := newMockStore(t, zap.NewNop())

		err := s.Area(AreaLocal).Set(ctx, map[string]any{"bad": make(chan int)})
		require.Error(t, err)
		assert.NoError(t, mockPool.ExpectationsWereMet())
	})
}

func TestPGArea_Get(t *testing.T) {
	ctx := context.Background()
	s, mockPool := newMockStore(t, zap.NewNop())

	rows := pgxmock.NewRows([]string{"key", "value"}).
		AddRow(KeyReportFormat, []byte(`"zip"`))
	mockPool.ExpectQuery(flexibleSQLMatcher(sqlSelectItems)).
		WithArgs(AreaSync, []string{KeyReportFormat, KeyInstalledVersion}).
		WillReturnRows(rows)

	items, err := s.Area(AreaSync).Get(ctx, KeyReportFormat, KeyInstalledVersion)
	require.NoError(t, err)
	assert.Len(t, items, 1)
	assert.JSONEq(t, `"zip"`, string(items[KeyReportFormat]))
	_, ok := items[KeyInstalledVersion]
	assert.False(t, ok, "missing keys are absent")
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestPGArea_Remove(t *testing.T) {
	ctx := context.Background()
	s, mockPool := newMockStore(t, zap.NewNop())

	mockPool.ExpectExec(flexibleSQLMatcher(sqlDeleteItems)).
		WithArgs(AreaLocal, []string{KeyLastReport, KeyLastReportTime}).
		WillReturnResult(pgxmock.NewResult("DELETE", 2))

	require.NoError(t, s.Area(AreaLocal).Remove(ctx, KeyLastReport, KeyLastReportTime))
	require.NoError(t, s.Area(AreaLocal).Remove(ctx), "no keys is a no-op")
	assert.NoError(t, mockPool.ExpectationsWereMet())
}

func TestOpen_UnsupportedDriver(t *testing.T) {
	_, err := Open(context.Background(), "redis", "", zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "unsupported storage driver")
}
