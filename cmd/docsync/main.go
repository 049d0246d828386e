package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/joho/godotenv"
	"github.com/lmittmann/tint"
	"github.com/mattn/go-isatty"
	"github.com/spf13/cobra"

	"github.com/openmined/docsync/internal/cancel"
	"github.com/openmined/docsync/internal/config"
	"github.com/openmined/docsync/internal/engine"
	"github.com/openmined/docsync/internal/utils"
	"github.com/openmined/docsync/internal/version"
)

const logFileName = "docsync.log"

// logLevel drives the console handler; it is raised or lowered once the
// config is known. The log file always records debug.
var logLevel = new(slog.LevelVar)

// exitError carries a non-zero exit code out of a command. A nil err means
// the outcome was already reported.
type exitError struct {
	code int
	err  error
}

func (e *exitError) Error() string {
	if e.err != nil {
		return e.err.Error()
	}
	return fmt.Sprintf("exit status %d", e.code)
}

func (e *exitError) Unwrap() error { return e.err }

func newRootCmd() *cobra.Command {
	rootCmd := &cobra.Command{
		Use:           "docsync",
		Short:         "Mirror a local directory into a remote document store",
		Version:       version.Detailed(),
		SilenceErrors: true,
	}
	rootCmd.PersistentFlags().StringP("config", "c", "", "docsync config file")
	rootCmd.PersistentFlags().String("log-level", "", "log level: debug, info, warn, error")
	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &config.Error{Key: "flags", Reason: "invalid arguments", Err: err}
	})

	rootCmd.AddCommand(newInitCmd())
	rootCmd.AddCommand(newSyncCmd())
	rootCmd.AddCommand(newVersionCmd())
	return rootCmd
}

func main() {
	// .env is optional
	_ = godotenv.Load()

	closeLog := setupLogging()
	code := execute(context.Background(), newRootCmd(), os.Args[1:], os.Stderr)
	closeLog()
	os.Exit(code)
}

// execute runs the command tree and maps its error to an exit code.
func execute(ctx context.Context, cmd *cobra.Command, args []string, stderr io.Writer) int {
	cmd.SetArgs(args)
	err := cmd.ExecuteContext(ctx)
	code := exitCode(err)

	var ee *exitError
	if err != nil && (!errors.As(err, &ee) || ee.err != nil) {
		fmt.Fprintf(stderr, "%s %v\n", red.Render("Error:"), err)
		if code == engine.ExitConfig {
			fmt.Fprintln(stderr, gray.Render("Run 'docsync sync --help' for usage."))
		}
	}
	return code
}

func exitCode(err error) int {
	if err == nil {
		return engine.ExitOK
	}
	var ee *exitError
	if errors.As(err, &ee) {
		return ee.code
	}
	if config.IsConfigError(err) {
		return engine.ExitConfig
	}
	if errors.Is(err, cancel.ErrCancelled) || errors.Is(err, context.Canceled) {
		return engine.ExitCancelled
	}
	return engine.ExitFailure
}

// setupLogging sends logs to stderr and to a file in the user cache dir.
// Every record carries the run id.
func setupLogging() (closeFn func()) {
	logLevel.Set(slog.LevelInfo)

	stderrHandler := tint.NewHandler(os.Stderr, &tint.Options{
		Level:      logLevel,
		TimeFormat: "15:04:05.000",
		NoColor:    !isatty.IsTerminal(os.Stderr.Fd()),
	})

	var fileHandler slog.Handler
	closeFn = func() {}

	if dir, err := utils.CacheDir("docsync"); err == nil {
		path := filepath.Join(dir, logFileName)
		file, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
		if err != nil {
			fmt.Fprintf(os.Stderr, "Failed to open log file: %v\n", err)
		} else {
			fileHandler = slog.NewTextHandler(file, &slog.HandlerOptions{Level: slog.LevelDebug})
			closeFn = func() { file.Close() }
		}
	}

	logger := slog.New(utils.NewMultiLogHandler(stderrHandler, fileHandler)).
		With("run", uuid.NewString())
	slog.SetDefault(logger)
	return closeFn
}
