// File: internal/reporting/reporter.go
package reporting

import (
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"

	"github.com/xkilldash9x/bugreport-cli/api/schemas"
)

// Export formats.
const (
	FormatZip  = "zip"
	FormatJSON = "json"
	FormatText = "text"
)

// Reporter defines the interface for writing a bug report to an output.
type Reporter interface {
	// Write renders a single report.
	Write(report *schemas.BugReport) error
	// Close finalizes the output and closes any underlying resources.
	Close() error
}

// nopWriteCloser wraps an io.Writer and provides a no-op Close method.
type nopWriteCloser struct {
	io.Writer
}

func (nwc *nopWriteCloser) Close() error {
	return nil
}

// Extension returns the file extension for format, including the dot.
func Extension(format string) string {
	switch format {
	case FormatZip:
		return ".zip"
	case FormatJSON:
		return ".json"
	default:
		return ".txt"
	}
}

// NewWriter creates a reporter for format writing to w. The reporter closes w
// when it is an io.WriteCloser.
func NewWriter(format string, w io.Writer) (Reporter, error) {
	wc, ok := w.(io.WriteCloser)
	if !ok {
		wc = &nopWriteCloser{w}
	}
	switch format {
	case FormatZip:
		return &ArchiveReporter{w: wc}, nil
	case FormatJSON:
		return &JSONReporter{w: wc}, nil
	case FormatText:
		return &TextReporter{w: wc}, nil
	default:
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}
}

// New creates a new reporter based on the specified format and output path,
// creating the file on fs. An empty path or "stdout" writes to standard
// output.
func New(fs afero.Fs, format, outputPath string) (Reporter, error) {
	if outputPath == "" || outputPath == "stdout" {
		// Wrap Stdout so Close() is a no-op.
		return NewWriter(format, &nopWriteCloser{os.Stdout})
	}
	if !Supported(format) {
		return nil, fmt.Errorf("unsupported output format: %s", format)
	}

	f, err := fs.Create(outputPath)
	if err != nil {
		return nil, fmt.Errorf("failed to create output file %s: %w", outputPath, err)
	}
	return NewWriter(format, f)
}

// Supported reports whether format is one of the export formats.
func Supported(format string) bool {
	switch format {
	case FormatZip, FormatJSON, FormatText:
		return true
	}
	return false
}

var errAlreadyWritten = errors.New("report already written")

// ArchiveReporter writes the zip archive of a single report.
type ArchiveReporter struct {
	w       io.WriteCloser
	written bool
}

func (r *ArchiveReporter) Write(report *schemas.BugReport) error {
	if r.written {
		return errAlreadyWritten
	}
	r.written = true
	return WriteArchive(r.w, report)
}

func (r *ArchiveReporter) Close() error { return r.w.Close() }

// JSONReporter writes the indented report without its screenshot.
type JSONReporter struct {
	w io.WriteCloser
}

func (r *JSONReporter) Write(report *schemas.BugReport) error {
	if report == nil {
		return errors.New("no report to export")
	}
	data, err := marshalIndent(reportBody{
		ReportID:    report.ReportID,
		GeneratedAt: report.GeneratedAt,
		Page:        report.Page,
		Network:     report.Network,
	})
	if err != nil {
		return fmt.Errorf("failed to encode report: %w", err)
	}
	_, err = r.w.Write(append(data, '\n'))
	return err
}

func (r *JSONReporter) Close() error { return r.w.Close() }

// TextReporter writes the plain-text summary.
type TextReporter struct {
	w io.WriteCloser
}

func (r *TextReporter) Write(report *schemas.BugReport) error {
	if report == nil {
		return errors.New("no report to export")
	}
	_, err := io.WriteString(r.w, Summary(report)+"\n")
	return err
}

func (r *TextReporter) Close() error { return r.w.Close() }
