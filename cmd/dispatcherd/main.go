// Command dispatcherd is the central dispatcher process: a
// single TCP listener that registers cars, relays call-pad requests to
// the scheduler, and keeps each car's stop queue moving.
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vertico-systems/vertico/internal/buildinfo"
	"github.com/vertico-systems/vertico/internal/config"
	"github.com/vertico-systems/vertico/internal/dispatcher"
	clierrors "github.com/vertico-systems/vertico/internal/errors"
	"github.com/vertico-systems/vertico/internal/observability"
	"github.com/vertico-systems/vertico/internal/output"
	"github.com/vertico-systems/vertico/internal/ratelimit"
)

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

// handleError renders a CLIError and maps it to the only
// two exit codes a daemon is ever allowed to return:
// ExitUsage for bad arguments, ExitInit for a shared-resource failure.
func handleError(out *output.Writer, err error) int {
	var cliErr *clierrors.CLIError
	if clierrors.As(err, &cliErr) {
		out.Failure("%s", cliErr.Message)

		if cliErr.Hint != "" {
			out.Info("%s", cliErr.Hint)
		}

		return cliErr.Code
	}

	errStr := err.Error()
	if strings.HasPrefix(errStr, "unknown flag") || strings.Contains(errStr, "required flag") {
		out.Failure("%s", errStr)
		return clierrors.ExitUsage
	}

	out.Failure("%s", errStr)

	return clierrors.ExitGeneral
}

func newRootCmd(out *output.Writer) *cobra.Command {
	var (
		listenAddr    string
		introspectAddr string
		noColor       bool
		logLevel      string
		logFormat     string
		logFile       string
		logStderr     string
	)

	rootCmd := &cobra.Command{
		Use:           "dispatcherd",
		Short:         "Vertico central dispatcher daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runDispatcher(cmd.Context(), out, dispatcherFlags{
				listenAddr:     listenAddr,
				introspectAddr: introspectAddr,
				noColor:        noColor,
				logLevel:       logLevel,
				logFormat:      logFormat,
				logFile:        logFile,
				logStderr:      logStderr,
			})
		},
	}

	rootCmd.Flags().StringVar(&listenAddr, "listen", "", "dispatcher TCP listen address (default from config, 127.0.0.1:3000)")
	rootCmd.Flags().StringVar(&introspectAddr, "introspect-listen", "", "optional HTTP introspection address for verticoctl monitor/snapshot (empty disables it)")
	rootCmd.PersistentFlags().BoolVar(&noColor, "no-color", false, "disable colored output")
	rootCmd.PersistentFlags().StringVar(&logLevel, "log-level", "", "log level: error, warn, info, debug")
	rootCmd.PersistentFlags().StringVar(&logFormat, "log-format", "", "log format: json, text")
	rootCmd.PersistentFlags().StringVar(&logFile, "log-file", "", "optional structured log file path")
	rootCmd.PersistentFlags().StringVar(&logStderr, "log-stderr", "", "structured logging to stderr: auto, on, off")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &clierrors.CLIError{
			Message: err.Error(),
			Hint:    fmt.Sprintf("Run '%s --help' for available flags", cmd.CommandPath()),
			Code:    clierrors.ExitUsage,
		}
	})

	rootCmd.AddCommand(newVersionCmd(out))

	return rootCmd
}

type dispatcherFlags struct {
	listenAddr     string
	introspectAddr string
	noColor        bool
	logLevel       string
	logFormat      string
	logFile        string
	logStderr      string
}

func runDispatcher(ctx context.Context, out *output.Writer, flags dispatcherFlags) error {
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
		CommandPath: "dispatcherd",
		Version:     buildinfo.Version,
	})
	if err != nil {
		return &clierrors.CLIError{
			Message: fmt.Sprintf("invalid logging configuration: %v", err),
			Hint:    "use --log-level, --log-format, --log-stderr, --log-file",
			Code:    clierrors.ExitUsage,
		}
	}

	if cleanup != nil {
		defer cleanup()
	}

	slog.SetDefault(logger)

	cfg := config.Load()

	telemetryShutdown, telemetryErr := observability.SetupTelemetry(ctx, &observability.TelemetryConfig{
		Enabled:     cfg.TelemetryEnabled(),
		Endpoint:    cfg.TelemetryOTLPEndpoint(),
		ServiceName: "vertico-dispatcherd",
		Version:     buildinfo.Version,
	})
	if telemetryErr != nil {
		logger.Warn("telemetry initialization failed", "error", telemetryErr.Error())
	}

	if telemetryShutdown != nil {
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()

			_ = telemetryShutdown(shutdownCtx)
		}()
	}

	listenAddr := flags.listenAddr
	if listenAddr == "" {
		listenAddr = cfg.DispatcherListen()
	}

	limiter := ratelimit.NewConnLimiter(cfg.RateLimitPerSecond(), cfg.RateLimitBurst())

	d := dispatcher.New(dispatcher.Config{
		ListenAddr:   listenAddr,
		CarCapacity:  cfg.CarPoolSize(),
		ConnCapacity: cfg.ConnectionPoolSize(),
		QueueDepth:   cfg.QueueDepth(),
		RateLimiter:  limiter,
		Logger:       logger,
	})

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)

	go func() {
		errCh <- d.Run(runCtx)
	}()

	go func() {
		if err := d.ServeIntrospection(runCtx, flags.introspectAddr); err != nil {
			logger.Warn("introspection server stopped", "error", err)
		}
	}()

	logger.Info("dispatcher listening", "addr", listenAddr, "introspect_addr", flags.introspectAddr)
	out.Success("dispatcherd listening on %s", listenAddr)

	if err := <-errCh; err != nil {
		// Run only returns an error when the listen itself failed; accept
		// errors are logged and retried, and cancellation returns nil.
		return clierrors.BindFailed(listenAddr, err)
	}

	return nil
}

func pickOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func newVersionCmd(out *output.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out.Print("dispatcherd %s (protocol %s)\n", buildinfo.Version, buildinfo.ProtocolVersion)
			return nil
		},
	}
}
