// File: internal/reporting/archive.go
package reporting

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/klauspost/compress/zip"

	"github.com/xkilldash9x/bugreport-cli/api/schemas"
)

// Archive entry names.
const (
	FileReport         = "bug-report.json"
	FileScreenshot     = "screenshot.png"
	FileConsoleLogs    = "console-logs.json"
	FileNetworkLogs    = "network-logs.json"
	FileFailedRequests = "failed-requests.json"
)

// AuthorizationRedacted replaces authorization header values in exported logs.
const AuthorizationRedacted = "[REDACTED - Authorization header present]"

// NoConsoleLogsNote explains an empty console-logs.json.
const NoConsoleLogsNote = "No console logs captured. Console logs are only captured after the page is reloaded with the extension active."

// File is one entry of a report archive.
type File struct {
	Name string
	Data []byte
}

// reportBody is the report without its screenshot, which ships as its own file.
type reportBody struct {
	ReportID    string              `json:"reportId"`
	GeneratedAt string              `json:"generatedAt"`
	Page        schemas.PageData    `json:"page"`
	Network     schemas.NetworkData `json:"network"`
}

type consoleLog struct {
	Timestamp string `json:"timestamp"`
	Type      string `json:"type"`
	Message   string `json:"message"`
	Stack     string `json:"stack,omitempty"`
}

type consoleNote struct {
	Logs []schemas.LogEntry `json:"logs"`
	Note string             `json:"note"`
}

type networkLog struct {
	Timestamp              string       `json:"timestamp"`
	Method                 string       `json:"method"`
	URL                    string       `json:"url"`
	Type                   string       `json:"type"`
	StatusCode             *int         `json:"statusCode"`
	StatusLine             *string      `json:"statusLine"`
	ResponseHeaders        headerObject `json:"responseHeaders,omitempty"`
	HasAuthorizationHeader bool         `json:"hasAuthorizationHeader,omitempty"`
}

type failedRequest struct {
	Timestamp  string  `json:"timestamp"`
	Method     string  `json:"method"`
	URL        string  `json:"url"`
	Type       string  `json:"type"`
	StatusCode int     `json:"statusCode"`
	StatusLine *string `json:"statusLine"`
}

// headerObject renders headers as a JSON object in first-seen order. A
// repeated name keeps its first position and takes the last value.
type headerObject []schemas.Header

func (h headerObject) MarshalJSON() ([]byte, error) {
	index := make(map[string]int, len(h))
	var merged []schemas.Header
	for _, hdr := range h {
		if i, ok := index[hdr.Name]; ok {
			merged[i].Value = hdr.Value
			continue
		}
		index[hdr.Name] = len(merged)
		merged = append(merged, hdr)
	}

	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, hdr := range merged {
		if i > 0 {
			buf.WriteByte(',')
		}
		name, err := marshalCompact(hdr.Name)
		if err != nil {
			return nil, err
		}
		value, err := marshalCompact(hdr.Value)
		if err != nil {
			return nil, err
		}
		buf.Write(name)
		buf.WriteByte(':')
		buf.Write(value)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func optionalString(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}

func optionalInt(n int) *int {
	if n == 0 {
		return nil
	}
	return &n
}

// ArchiveFiles lays out the archive entries for report, in write order.
func ArchiveFiles(report *schemas.BugReport) ([]File, error) {
	if report == nil {
		return nil, errors.New("no report to export")
	}
	var files []File
	add := func(name string, v any) error {
		data, err := marshalIndent(v)
		if err != nil {
			return fmt.Errorf("failed to encode %s: %w", name, err)
		}
		files = append(files, File{Name: name, Data: data})
		return nil
	}

	if err := add(FileReport, reportBody{
		ReportID:    report.ReportID,
		GeneratedAt: report.GeneratedAt,
		Page:        report.Page,
		Network:     report.Network,
	}); err != nil {
		return nil, err
	}

	if shot := report.ScreenshotData(); shot != "" {
		png, err := base64.StdEncoding.DecodeString(shot)
		if err != nil {
			return nil, fmt.Errorf("failed to decode screenshot: %w", err)
		}
		files = append(files, File{Name: FileScreenshot, Data: png})
	}

	var console any = consoleNote{Logs: []schemas.LogEntry{}, Note: NoConsoleLogsNote}
	if len(report.Page.ConsoleLogs) > 0 {
		entries := make([]consoleLog, len(report.Page.ConsoleLogs))
		for i, l := range report.Page.ConsoleLogs {
			entries[i] = consoleLog{Timestamp: l.Timestamp, Type: string(l.Type), Message: l.Message, Stack: l.Stack}
		}
		console = entries
	}
	if err := add(FileConsoleLogs, console); err != nil {
		return nil, err
	}

	requests := report.Network.Requests
	if len(requests) == 0 {
		return files, nil
	}

	logs := make([]networkLog, len(requests))
	for i, r := range requests {
		logs[i] = networkLog{
			Timestamp:  r.Timestamp,
			Method:     r.Method,
			URL:        r.URL,
			Type:       r.Type,
			StatusCode: optionalInt(r.StatusCode),
			StatusLine: optionalString(r.StatusLine),
		}
		if len(r.ResponseHeaders) == 0 {
			continue
		}
		headers := make(headerObject, len(r.ResponseHeaders))
		for j, h := range r.ResponseHeaders {
			if strings.EqualFold(h.Name, "authorization") {
				h.Value = AuthorizationRedacted
				logs[i].HasAuthorizationHeader = true
			}
			headers[j] = h
		}
		logs[i].ResponseHeaders = headers
	}
	if err := add(FileNetworkLogs, logs); err != nil {
		return nil, err
	}

	failed := []failedRequest{}
	for _, r := range schemas.FailedRequests(requests) {
		failed = append(failed, failedRequest{
			Timestamp:  r.Timestamp,
			Method:     r.Method,
			URL:        r.URL,
			Type:       r.Type,
			StatusCode: r.StatusCode,
			StatusLine: optionalString(r.StatusLine),
		})
	}
	if err := add(FileFailedRequests, failed); err != nil {
		return nil, err
	}
	return files, nil
}

// WriteArchive writes report as a zip archive to w.
func WriteArchive(w io.Writer, report *schemas.BugReport) error {
	files, err := ArchiveFiles(report)
	if err != nil {
		return err
	}

	modified := time.Now()
	if t, err := time.Parse(schemas.TimestampLayout, report.GeneratedAt); err == nil {
		modified = t
	}

	zw := zip.NewWriter(w)
	for _, f := range files {
		fw, err := zw.CreateHeader(&zip.FileHeader{
			Name:     f.Name,
			Method:   zip.Deflate,
			Modified: modified,
		})
		if err != nil {
			return fmt.Errorf("failed to add %s to archive: %w", f.Name, err)
		}
		if _, err := fw.Write(f.Data); err != nil {
			return fmt.Errorf("failed to write %s: %w", f.Name, err)
		}
	}
	if err := zw.Close(); err != nil {
		return fmt.Errorf("failed to finalize archive: %w", err)
	}
	return nil
}

// marshalIndent renders v with two-space indentation, without HTML escaping
// or a trailing newline.
func marshalIndent(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	enc.SetIndent("", "  ")
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}

func marshalCompact(v any) ([]byte, error) {
	var buf bytes.Buffer
	enc := json.NewEncoder(&buf)
	enc.SetEscapeHTML(false)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return bytes.TrimSuffix(buf.Bytes(), []byte("\n")), nil
}
