// File: cmd/last.go
package cmd

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"os"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bugreport-cli/internal/composer"
	"github.com/xkilldash9x/bugreport-cli/internal/config"
	"github.com/xkilldash9x/bugreport-cli/internal/observability"
	"github.com/xkilldash9x/bugreport-cli/internal/reporting"
	"github.com/xkilldash9x/bugreport-cli/internal/store"
)

type lastOptions struct {
	output string
	format string
}

func newLastCmd() *cobra.Command {
	var opts lastOptions

	lastCmd := &cobra.Command{
		Use:   "last",
		Short: "Print or export the most recently generated report",
		Long: `Reads the last report saved by capture or watch from storage, without
starting a browser.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			return runLast(cmd.Context(), observability.GetLogger(), cfg, afero.NewOsFs(), cmd.OutOrStdout(), opts)
		},
	}

	lastCmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default: stdout for json/text, download directory for zip)")
	lastCmd.Flags().StringVarP(&opts.format, "format", "f", "", "report format: zip, json or text")
	return lastCmd
}

// runLast is the testable core of the last command.
func runLast(ctx context.Context, logger *zap.Logger, cfg config.Interface, fs afero.Fs, stdout io.Writer, opts lastOptions) error {
	backend, err := openBackend(ctx, cfg.Storage(), logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := backend.Close(); err != nil {
			logger.Warn("Failed to close storage.", zap.Error(err))
		}
	}()

	report, savedAt, err := store.LoadLastReport(ctx, backend.Area(store.AreaLocal))
	if errors.Is(err, store.ErrNotFound) {
		return errors.New("no report has been generated yet")
	}
	if err != nil {
		return fmt.Errorf("failed to load last report: %w", err)
	}
	logger.Debug("Loaded last report.", zap.String("report_id", report.ReportID), zap.Time("saved_at", savedAt))

	format, err := resolveFormat(ctx, opts.format, cfg.Export(), backend.Area(store.AreaSync))
	if err != nil {
		return err
	}
	if format != reporting.FormatZip {
		return writeReport(fs, logger, format, opts.output, stdout, report)
	}

	var buf bytes.Buffer
	if err := reporting.WriteArchive(&buf, report); err != nil {
		return fmt.Errorf("failed to create archive: %w", err)
	}
	saver, err := newSaver(fs, logger, cfg.Export(), opts.output, os.Stdin, os.Stderr)
	if err != nil {
		return err
	}
	path, err := saver.SaveAs(ctx, composer.ArchiveFilename(report.Page.Title, report.ReportID), buf.Bytes())
	if err != nil {
		return fmt.Errorf("failed to save archive: %w", err)
	}
	_, err = fmt.Fprintln(stdout, path)
	return err
}
