// File: cmd/output.go
package cmd

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/mattn/go-isatty"
	"github.com/spf13/afero"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bugreport-cli/api/schemas"
	"github.com/xkilldash9x/bugreport-cli/internal/composer"
	"github.com/xkilldash9x/bugreport-cli/internal/config"
	"github.com/xkilldash9x/bugreport-cli/internal/downloads"
	"github.com/xkilldash9x/bugreport-cli/internal/reporting"
	"github.com/xkilldash9x/bugreport-cli/internal/store"
)

// resolveFormat picks the output format: the flag, then export.format from
// the config, then the reportFormat setting stored in the sync area.
func resolveFormat(ctx context.Context, flag string, cfg config.ExportConfig, sync store.Area) (string, error) {
	format := flag
	if format == "" {
		format = cfg.Format
	}
	if format == "" && sync != nil {
		stored, found, err := store.GetString(ctx, sync, store.KeyReportFormat)
		if err != nil {
			return "", err
		}
		if found {
			format = stored
		}
	}
	if format == "" {
		format = reporting.FormatJSON
	}
	switch format {
	case reporting.FormatZip, reporting.FormatJSON, reporting.FormatText:
		return format, nil
	default:
		return "", fmt.Errorf("unsupported output format: %s", format)
	}
}

// fixedSaver writes to one path regardless of the suggested name.
type fixedSaver struct {
	saver *downloads.Saver
	path  string
}

func (f fixedSaver) SaveAs(_ context.Context, _ string, data []byte) (string, error) {
	return f.saver.Save(f.path, data)
}

// newSaver returns the destination for zip archives: output when set,
// otherwise the download directory, asking on the terminal when prompting is
// enabled and stdin is interactive.
func newSaver(fs afero.Fs, logger *zap.Logger, cfg config.ExportConfig, output string, in *os.File, prompt io.Writer) (composer.Saver, error) {
	opts := []downloads.Option{downloads.WithLogger(logger)}
	if output == "" && cfg.Prompt && in != nil && isatty.IsTerminal(in.Fd()) {
		opts = append(opts, downloads.WithPrompt(in, prompt))
	}
	s, err := downloads.New(fs, cfg.Dir, opts...)
	if err != nil {
		return nil, err
	}
	if output != "" {
		return fixedSaver{saver: s, path: output}, nil
	}
	return s, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

// writeReport renders report as JSON or text to output on fs, or to stdout
// when output is empty.
func writeReport(fs afero.Fs, logger *zap.Logger, format, output string, stdout io.Writer, report *schemas.BugReport) (err error) {
	var reporter reporting.Reporter
	if output == "" {
		reporter, err = reporting.NewWriter(format, nopCloser{stdout})
	} else {
		reporter, err = reporting.New(fs, format, output)
	}
	if err != nil {
		return fmt.Errorf("failed to create reporter: %w", err)
	}
	defer func() {
		if closeErr := reporter.Close(); closeErr != nil {
			logger.Warn("Failed to close reporter.", zap.Error(closeErr))
			if err == nil {
				err = closeErr
			}
		}
	}()
	if err := reporter.Write(report); err != nil {
		return fmt.Errorf("failed to write report: %w", err)
	}
	if output != "" {
		logger.Info("Report written.", zap.String("path", output), zap.String("format", format))
	}
	return nil
}

// logStatus mirrors the status line into the log.
func logStatus(logger *zap.Logger) composer.StatusFunc {
	log := logger.Named("status")
	return func(s composer.Status) {
		switch s.Class {
		case composer.ClassError:
			log.Error(s.Message, zap.Stringer("state", s.State))
		default:
			log.Info(s.Message, zap.Stringer("state", s.State))
		}
	}
}

// browserOverride replaces the browser section of a configuration.
type browserOverride struct {
	config.Interface
	browser config.BrowserConfig
}

func (b browserOverride) Browser() config.BrowserConfig { return b.browser }

// withHeadless returns cfg with the headless setting forced.
func withHeadless(cfg config.Interface, headless bool) config.Interface {
	bc := cfg.Browser()
	bc.Headless = headless
	return browserOverride{Interface: cfg, browser: bc}
}
