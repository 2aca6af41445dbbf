// File: cmd/watch.go
package cmd

import (
	"context"
	"fmt"
	"os"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/afero"
	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/xkilldash9x/bugreport-cli/internal/clipboard"
	"github.com/xkilldash9x/bugreport-cli/internal/composer"
	"github.com/xkilldash9x/bugreport-cli/internal/config"
	"github.com/xkilldash9x/bugreport-cli/internal/downloads"
	"github.com/xkilldash9x/bugreport-cli/internal/observability"
	"github.com/xkilldash9x/bugreport-cli/internal/popup"
)

const statusBuffer = 16

func newWatchCmd() *cobra.Command {
	var headless bool

	watchCmd := &cobra.Command{
		Use:   "watch [url]",
		Short: "Open a browser window and drive report generation interactively",
		Long: `Opens a visible browser window and a small terminal panel. Browse to the
page showing the problem, then press g to generate a report, d to download it
as a zip archive and c to copy its summary to the clipboard.`,
		Args: cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := getConfigFromContext(cmd.Context())
			if err != nil {
				return err
			}
			var url string
			if len(args) == 1 {
				url = args[0]
			}
			return runWatch(cmd.Context(), observability.GetLogger(), withHeadless(cfg, headless), url)
		},
	}
	watchCmd.Flags().BoolVar(&headless, "headless", false, "run the browser without a window")
	return watchCmd
}

func runWatch(ctx context.Context, logger *zap.Logger, cfg config.Interface, url string) error {
	// The panel owns stdin, so downloads go straight to the download
	// directory without a prompt.
	saver, err := downloads.New(afero.NewOsFs(), cfg.Export().Dir, downloads.WithLogger(logger))
	if err != nil {
		return err
	}

	statuses := make(chan composer.Status, statusBuffer)
	a, err := startApp(ctx, logger, cfg, appOptions{
		status:    popup.StatusSink(statuses),
		saver:     saver,
		clipboard: clipboard.New(os.Stdout),
	})
	if err != nil {
		return err
	}
	defer a.shutdown()

	if _, err := a.host.OpenTab(ctx, url); err != nil {
		return fmt.Errorf("failed to open tab: %w", err)
	}

	program := tea.NewProgram(popup.New(ctx, a, statuses), tea.WithContext(ctx), tea.WithOutput(os.Stdout))
	if _, err := program.Run(); err != nil && ctx.Err() == nil {
		return fmt.Errorf("popup exited with error: %w", err)
	}
	return nil
}
