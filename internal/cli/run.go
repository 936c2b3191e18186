package cli

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/spf13/cobra"
	"golang.org/x/sync/errgroup"
	"golang.org/x/term"

	"github.com/tessro/verse/internal/app"
	"github.com/tessro/verse/internal/browser"
	"github.com/tessro/verse/internal/mpv"
	"github.com/tessro/verse/internal/tui"
)

var runHeadless bool

var runCmd = &cobra.Command{
	Use:   "run",
	Short: "Start verse",
	Long: `Start verse: connect the sources, serve the lyrics page and the control
API, and show the now-playing view when attached to a terminal.

Keyboard shortcuts:
  Space        Play/Pause
  n            Next track
  p            Previous track
  ←/→          Seek back/forward 5%
  Tab          Switch source
  c            Connect the selected source
  ?            Help
  q, Ctrl+C    Quit`,
	Args: cobra.NoArgs,
	RunE: runRun,
}

func init() {
	runCmd.Flags().BoolVar(&runHeadless, "headless", false, "run without the terminal UI")
	rootCmd.AddCommand(runCmd)
}

func runRun(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	interactive := term.IsTerminal(int(os.Stdin.Fd())) && term.IsTerminal(int(os.Stdout.Fd()))
	useTUI := interactive && !runHeadless

	// The TUI owns the terminal, so logs go to a file unless one is set.
	lc := cfg.Log
	if useTUI && lc.File == "" {
		lc.File = filepath.Join(cfg.Storage.DataDir, "verse.log")
	}
	logger, closer, err := newLogger(lc)
	if err != nil {
		return err
	}
	defer func() { _ = closer.Close() }()

	opts := []app.Option{app.WithOpener(browser.Open)}
	if interactive {
		opts = append(opts, app.WithPrompter(mpv.ConfirmPrompt))
	}

	a, err := app.New(ctx, cfg, logger, opts...)
	if err != nil {
		return err
	}
	defer func() { _ = a.Close() }()

	// Connect before the TUI starts so the consent prompt has the terminal.
	a.Connect(ctx)

	if !useTUI {
		logger.Info("verse running", "url", app.BaseURL(cfg))
		return a.Run(ctx)
	}

	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return a.Run(gctx)
	})
	g.Go(func() error {
		defer cancel()
		return tui.Run(gctx, a.Coordinator)
	})
	return g.Wait()
}
