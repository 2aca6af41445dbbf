package schemas_test

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/xkilldash9x/bugreport-cli/api/schemas"
)

// -- Test Helpers --

// getTestTime provides a fixed timestamp for reproducible results.
func getTestTime(t *testing.T) time.Time {
	ts, err := time.Parse(time.RFC3339Nano, "2025-10-26T10:00:00.123456789Z")
	require.NoError(t, err, "Test setup failed: unable to parse fixed timestamp")
	return ts
}

func entry(id string, status int) schemas.NetworkEntry {
	return schemas.NetworkEntry{ID: id, URL: "https://example.test/" + id, Method: "GET", StatusCode: status}
}

// -- Test Cases --

func TestFormatTimestamp(t *testing.T) {
	t.Parallel()
	ts := getTestTime(t)
	assert.Equal(t, "2025-10-26T10:00:00.123Z", schemas.FormatTimestamp(ts))

	// Non-UTC instants are normalized.
	loc := time.FixedZone("X", 2*60*60)
	assert.Equal(t, "2025-10-26T10:00:00.123Z", schemas.FormatTimestamp(ts.In(loc)))
}

func TestNewReportID(t *testing.T) {
	t.Parallel()
	ts := getTestTime(t)
	assert.Equal(t, "bug-1761472800123", schemas.NewReportID(ts))
}

func TestSummarize(t *testing.T) {
	t.Parallel()
	testCases := []struct {
		name     string
		requests []schemas.NetworkEntry
		expected schemas.NetworkSummary
	}{
		{"Empty", nil, schemas.NetworkSummary{}},
		{"AllOK", []schemas.NetworkEntry{entry("a", 200), entry("b", 304)}, schemas.NetworkSummary{Total: 2}},
		{
			"Mixed",
			[]schemas.NetworkEntry{entry("a", 200), entry("b", 404), entry("c", 0), entry("d", 500), entry("e", 399)},
			schemas.NetworkSummary{Total: 5, Failed: 2},
		},
	}
	for _, tc := range testCases {
		tt := tc
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			assert.Equal(t, tt.expected, schemas.Summarize(tt.requests))
		})
	}
}

func TestFailedRequests(t *testing.T) {
	t.Parallel()
	requests := []schemas.NetworkEntry{entry("a", 200), entry("b", 404), entry("c", 503)}
	failed := schemas.FailedRequests(requests)
	require.Len(t, failed, 2)
	assert.Equal(t, "b", failed[0].ID)
	assert.Equal(t, "c", failed[1].ID)

	// Never nil, so it renders as an empty JSON array.
	assert.NotNil(t, schemas.FailedRequests(nil))
}

func TestErrorLogs_KeepsLastN(t *testing.T) {
	t.Parallel()
	var logs []schemas.LogEntry
	for i := 0; i < 30; i++ {
		logs = append(logs, schemas.LogEntry{Type: schemas.LogTypeLog, Message: "noise"})
		logs = append(logs, schemas.LogEntry{Type: schemas.LogTypeError, Message: string(rune('A' + i%26))})
	}

	errs := schemas.ErrorLogs(logs, schemas.MaxPageErrors)
	require.Len(t, errs, schemas.MaxPageErrors)
	for _, e := range errs {
		assert.Equal(t, schemas.LogTypeError, e.Type)
	}
	// The oldest ten errors were dropped.
	assert.Equal(t, string(rune('A'+10)), errs[0].Message)
}

func TestLogTypeValid(t *testing.T) {
	t.Parallel()
	for _, lt := range []schemas.LogType{schemas.LogTypeLog, schemas.LogTypeWarn, schemas.LogTypeError, schemas.LogTypeInfo} {
		assert.True(t, lt.Valid(), lt)
	}
	assert.False(t, schemas.LogType("debug").Valid())
	assert.False(t, schemas.LogType("warning").Valid())
}

func TestScreenshotData(t *testing.T) {
	t.Parallel()
	r := &schemas.BugReport{Screenshot: "data:image/png;base64,iVBORw0KGgo="}
	assert.Equal(t, "iVBORw0KGgo=", r.ScreenshotData())

	r.Screenshot = "iVBORw0KGgo="
	assert.Equal(t, "iVBORw0KGgo=", r.ScreenshotData())

	r.Screenshot = ""
	assert.Empty(t, r.ScreenshotData())
}
