package main

import (
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"syscall"

	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/openmined/docsync/internal/cancel"
	"github.com/openmined/docsync/internal/config"
	"github.com/openmined/docsync/internal/engine"
	"github.com/openmined/docsync/internal/report"
	"github.com/openmined/docsync/internal/runlock"
	"github.com/openmined/docsync/internal/utils"
)

// forceExit ends the process on a second interrupt. Tests replace it.
var forceExit = func(code int) { os.Exit(code) }

func newSyncCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Mirror the local directory into the remote store",
		Long: `Scan the local directory, compare content hashes with the remote store
and upload new or changed files. With --delete, remote documents that no
longer exist locally are removed.

Exit codes: 0 success or nothing to do, 1 transfer failures,
2 configuration error, 130 cancelled.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd)
			if err != nil {
				return err
			}

			// config is valid, errors from here on are not usage errors
			cmd.SilenceUsage = true
			if level, err := config.ParseLevel(cfg.LogLevel); err == nil {
				logLevel.Set(level)
			}

			verbose, _ := cmd.Flags().GetBool("verbose")
			return runSync(cmd, cfg, verbose)
		},
	}

	cmd.Flags().SortFlags = false
	cmd.Flags().Bool("dry-run", false, "show the plan without changing anything")
	cmd.Flags().BoolP("yes", "y", false, "apply the plan without asking")
	cmd.Flags().Bool("delete", false, "delete remote documents missing locally")
	cmd.Flags().IntP("concurrency", "j", 0, "number of transfers in flight (default 8)")
	cmd.Flags().StringP("store", "s", "", "remote store identity")
	cmd.Flags().StringP("endpoint", "e", "", "document store endpoint URL")
	cmd.Flags().String("backend", "", "store backend: http, s3 or memory (default http)")
	cmd.Flags().StringP("dir", "d", "", "local directory to sync (default .)")
	cmd.Flags().StringSlice("include", nil, "glob of files to include, repeatable")
	cmd.Flags().StringSlice("exclude", nil, "glob of files to exclude, repeatable")
	cmd.Flags().BoolP("verbose", "v", false, "list unchanged files in the plan")
	return cmd
}

func runSync(cmd *cobra.Command, cfg *config.Config, verbose bool) error {
	token := cancel.New(cmd.Context())
	stop := cancel.Watch(token, func(os.Signal) {
		fmt.Fprintln(cmd.ErrOrStderr(), red.Render("Interrupted again, exiting now."))
		forceExit(engine.ExitCancelled)
	}, os.Interrupt, syscall.SIGTERM)
	defer stop()

	lock, err := newRunLock(cfg.BaseDir)
	if err != nil {
		return err
	}
	if err := lock.Acquire(); err != nil {
		return err
	}
	defer func() {
		if err := lock.Release(); err != nil {
			slog.Warn("run lock release", "error", err)
		}
	}()

	store, err := newStore(token.Context(), cfg)
	if err != nil {
		return err
	}

	out := cmd.OutOrStdout()
	reporter := report.NewConsole(out, report.Options{Color: colorEnabled(out), Verbose: verbose})

	var confirm engine.Confirmer
	if !cfg.AutoConfirm && isatty.IsTerminal(os.Stdin.Fd()) {
		confirm = confirmPlan(cmd.InOrStdin(), out)
	}

	slog.Debug("sync start", "dir", cfg.BaseDir, "store", cfg.Store, "backend", cfg.Backend, "config", cfg.Path)
	summary, err := engine.New(cfg, store, reporter, confirm).Run(token)
	if err != nil {
		return err
	}

	if code := summary.ExitCode(); code != engine.ExitOK {
		return &exitError{code: code}
	}
	return nil
}

func newRunLock(baseDir string) (*runlock.Lock, error) {
	dir, err := utils.CacheDir("docsync")
	if err != nil {
		return nil, fmt.Errorf("cache dir: %w", err)
	}
	return runlock.New(filepath.Join(dir, "locks"), baseDir)
}

func colorEnabled(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && report.ColorEnabled(f)
}

