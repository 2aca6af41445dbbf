// File: internal/store/area.go
package store

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	jsoniter "github.com/json-iterator/go"

	"github.com/xkilldash9x/bugreport-cli/api/schemas"
)

// Storage area names.
const (
	AreaSync  = "sync"
	AreaLocal = "local"
)

// Well known keys.
const (
	KeyEnabled          = "enabled"
	KeyReportFormat     = "reportFormat"
	KeyInstalledVersion = "installedVersion"
	KeyLastReport       = "lastReport"
	KeyLastReportTime   = "lastReportTime"
)

// ErrNotFound is returned when a requested key has no stored value.
var ErrNotFound = errors.New("store: key not found")

var valueJSON = jsoniter.ConfigCompatibleWithStandardLibrary

// Area is a namespaced key-value store holding JSON values. Missing keys are
// simply absent from the map returned by Get.
type Area interface {
	Get(ctx context.Context, keys ...string) (map[string]json.RawMessage, error)
	// Set writes all items atomically.
	Set(ctx context.Context, items map[string]any) error
	Remove(ctx context.Context, keys ...string) error
}

// Backend hands out the areas of one durable store.
type Backend interface {
	Area(name string) Area
	Close() error
}

// encodeItems serializes every value up front so a bad value fails the whole
// write before anything touches the database.
func encodeItems(items map[string]any) (map[string][]byte, error) {
	out := make(map[string][]byte, len(items))
	for k, v := range items {
		if raw, ok := v.(json.RawMessage); ok {
			if !valueJSON.Valid(raw) {
				return nil, fmt.Errorf("invalid JSON for key %q", k)
			}
			out[k] = raw
			continue
		}
		raw, err := valueJSON.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("failed to encode value for key %q: %w", k, err)
		}
		out[k] = raw
	}
	return out, nil
}

// SaveLastReport records report as the most recently generated one.
func SaveLastReport(ctx context.Context, a Area, report *schemas.BugReport, savedAt time.Time) error {
	if report == nil {
		return errors.New("no report to save")
	}
	return a.Set(ctx, map[string]any{
		KeyLastReport:     report,
		KeyLastReportTime: savedAt.UnixMilli(),
	})
}

// LoadLastReport reads back what SaveLastReport stored.
func LoadLastReport(ctx context.Context, a Area) (*schemas.BugReport, time.Time, error) {
	items, err := a.Get(ctx, KeyLastReport, KeyLastReportTime)
	if err != nil {
		return nil, time.Time{}, err
	}
	raw, ok := items[KeyLastReport]
	if !ok {
		return nil, time.Time{}, fmt.Errorf("%s: %w", KeyLastReport, ErrNotFound)
	}
	var report schemas.BugReport
	if err := valueJSON.Unmarshal(raw, &report); err != nil {
		return nil, time.Time{}, fmt.Errorf("failed to decode stored report: %w", err)
	}

	var savedAt time.Time
	if ts, ok := items[KeyLastReportTime]; ok {
		ms, err := strconv.ParseInt(string(ts), 10, 64)
		if err != nil {
			return nil, time.Time{}, fmt.Errorf("failed to decode %s: %w", KeyLastReportTime, err)
		}
		savedAt = time.UnixMilli(ms).UTC()
	}
	return &report, savedAt, nil
}

// GetString reads a string value. The bool is false when the key is absent.
func GetString(ctx context.Context, a Area, key string) (string, bool, error) {
	items, err := a.Get(ctx, key)
	if err != nil {
		return "", false, err
	}
	raw, ok := items[key]
	if !ok {
		return "", false, nil
	}
	var s string
	if err := valueJSON.Unmarshal(raw, &s); err != nil {
		return "", false, fmt.Errorf("failed to decode %s: %w", key, err)
	}
	return s, true, nil
}
