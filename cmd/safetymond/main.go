// Command safetymond is the independent safety monitor process: it
// maps an existing car's shared state region (exiting with an error,
// and leaving no region behind, if none exists) and runs the check
// sequence on every wakeup until terminated.
//
// Usage: safetymond <car_name>
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vertico-systems/vertico/internal/buildinfo"
	"github.com/vertico-systems/vertico/internal/carstate"
	clierrors "github.com/vertico-systems/vertico/internal/errors"
	"github.com/vertico-systems/vertico/internal/observability"
	"github.com/vertico-systems/vertico/internal/output"
	"github.com/vertico-systems/vertico/internal/safety"
)

const usage = "safetymond <car_name>"

func main() {
	os.Exit(run())
}

func run() (exitCode int) {
	out := output.Default()

	rootCmd := newRootCmd(out)
	if err := rootCmd.Execute(); err != nil {
		return handleError(out, err)
	}

	return 0
}

func handleError(out *output.Writer, err error) int {
	var cliErr *clierrors.CLIError
	if clierrors.As(err, &cliErr) {
		out.Failure("%s", cliErr.Message)

		if cliErr.Hint != "" {
			out.Info("%s", cliErr.Hint)
		}

		return cliErr.Code
	}

	out.Failure("%s", err.Error())

	return clierrors.ExitGeneral
}

func newRootCmd(out *output.Writer) *cobra.Command {
	var (
		noColor   bool
		logLevel  string
		logFormat string
		logFile   string
		logStderr string
	)

	rootCmd := &cobra.Command{
		Use:           "safetymond",
		Short:         "Vertico independent safety monitor daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if args[0] == "" {
				return clierrors.BadArgs(usage)
			}

			return runMonitor(cmd.Context(), out, args[0], safetymondFlags{
				noColor:   noColor,
				logLevel:  logLevel,
				logFormat: logFormat,
				logFile:   logFile,
				logStderr: logStderr,
			})
		},
	}

	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: error, warn, info, debug")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: json, text")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "optional structured log file path")
	rootCmd.PersistentFlags().StringVar(&logStderr, "log-stderr", "", "structured logging to stderr: auto, on, off")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &clierrors.CLIError{
			Message: err.Error(),
			Hint:    fmt.Sprintf("usage: %s", usage),
			Code:    clierrors.ExitUsage,
		}
	})

	return rootCmd
}

type safetymondFlags struct {
	noColor   bool
	logLevel  string
	logFormat string
	logFile   string
	logStderr string
}

func runMonitor(ctx context.Context, out *output.Writer, carName string, flags safetymondFlags) error {
	if flags.noColor {
		out.SetNoColor(true)
		color.NoColor = true
	}

	logger, cleanup, err := observability.NewLogger(&observability.Config{
		Level:       pickOrDefault(flags.logLevel, "info"),
		Format:      pickOrDefault(flags.logFormat, "json"),
		LogFile:     flags.logFile,
		StderrMode:  pickOrDefault(flags.logStderr, "auto"),
		SessionID:   uuid.NewString(),
		CommandPath: "safetymond " + carName,
		Version:     buildinfo.Version,
	})
	if err != nil {
		return &clierrors.CLIError{
			Message: fmt.Sprintf("invalid logging configuration: %v", err),
			Code:    clierrors.ExitUsage,
		}
	}

	if cleanup != nil {
		defer cleanup()
	}

	slog.SetDefault(logger)

	region, created, err := carstate.Create(carName)
	if err != nil {
		return clierrors.SharedRegionUnavailable(carName, err)
	}
	defer region.Close()

	if created {
		_ = region.Unlink()

		return clierrors.SharedRegionUnavailable(carName, fmt.Errorf("region does not exist; start carctrld first"))
	}

	mon := &safety.Monitor{Region: region, Stderr: os.Stderr}

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	out.Success("safetymond watching car %s", carName)
	logger.Info("safety monitor running", "car", carName)

	mon.Run(runCtx)

	return nil
}

func pickOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}
