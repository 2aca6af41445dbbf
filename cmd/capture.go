// File: cmd/capture.go
package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bugreport-cli/internal/clipboard"
	"github.com/xkilldash9x/bugreport-cli/internal/config"
	"github.com/xkilldash9x/bugreport-cli/internal/observability"
	"github.com/xkilldash9x/bugreport-cli/internal/reporting"
	"github.com/xkilldash9x/bugreport-cli/internal/store"
)

type captureOptions struct {
	output string
	format string
	copy   bool
	headed bool
	settle time.Duration
}

func newCaptureCmd() *cobra.Command {
	var opts captureOptions

	captureCmd := &cobra.Command{
		Use:   "capture <url>",
		Short: "Open a page, let it settle and generate a bug report",
		Long: `Opens the URL in a fresh tab with the page monitor and network tracker
attached, waits for the page to settle and generates a report.

The report is written as a zip archive, JSON or plain text. JSON and text go
to stdout unless --output is given; zip archives go to the download directory.`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			if !cmd.Flags().Changed("settle") {
				opts.settle = cfg.Capture().Settle
			}
			if opts.headed {
				cfg = withHeadless(cfg, false)
			}
			return runCapture(cmd.Context(), observability.GetLogger(), cfg, args[0], opts)
		},
	}

	captureCmd.Flags().StringVarP(&opts.output, "output", "o", "", "output file (default: stdout for json/text, download directory for zip)")
	captureCmd.Flags().StringVarP(&opts.format, "format", "f", "", "report format: zip, json or text")
	captureCmd.Flags().BoolVar(&opts.copy, "copy", false, "copy the text summary to the clipboard")
	captureCmd.Flags().BoolVar(&opts.headed, "headed", false, "show the browser window")
	captureCmd.Flags().DurationVar(&opts.settle, "settle", 2*time.Second, "time to wait after navigation before generating")
	return captureCmd
}

// runCapture is the testable core of the capture command.
func runCapture(ctx context.Context, logger *zap.Logger, cfg config.Interface, url string, opts captureOptions) (err error) {
	a, err := startApp(ctx, logger, cfg, appOptions{
		status:    logStatus(logger),
		clipboard: clipboard.New(os.Stdout),
	})
	if err != nil {
		return err
	}
	defer a.shutdown()

	format, err := resolveFormat(ctx, opts.format, cfg.Export(), a.backend.Area(store.AreaSync))
	if err != nil {
		return err
	}

	logger.Info("Opening page.", zap.String("url", url))
	if _, err := a.host.OpenTab(ctx, url); err != nil {
		return fmt.Errorf("failed to open %s: %w", url, err)
	}

	if opts.settle > 0 {
		logger.Debug("Waiting for page to settle.", zap.Duration("settle", opts.settle))
		select {
		case <-time.After(opts.settle):
		case <-ctx.Done():
			return ctx.Err()
		}
	}

	report, err := a.Generate(ctx)
	if err != nil {
		return err
	}

	if format == reporting.FormatZip {
		saver, err := newSaver(afero.NewOsFs(), logger, cfg.Export(), opts.output, os.Stdin, os.Stderr)
		if err != nil {
			return err
		}
		path, err := a.export(ctx, saver)
		if err != nil {
			return err
		}
		fmt.Fprintln(os.Stdout, path)
	} else if err := writeReport(afero.NewOsFs(), logger, format, opts.output, os.Stdout, report); err != nil {
		return err
	}

	if opts.copy {
		if err := a.Copy(ctx); err != nil {
			if errors.Is(err, clipboard.ErrNotTerminal) {
				logger.Warn("Clipboard unavailable: stdout is not a terminal.")
			} else {
				logger.Warn("Failed to copy summary.", zap.Error(err))
			}
		}
	}
	return nil
}
