// Command carctrld is a single car's controller process: it
// maps (creating if necessary) the car's shared state region, registers
// with the central dispatcher, and drives the door/motion state machine.
//
// Usage: carctrld <name> <lo> <hi> <delay_ms>
package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"

	"github.com/vertico-systems/vertico/internal/buildinfo"
	"github.com/vertico-systems/vertico/internal/carctrl"
	"github.com/vertico-systems/vertico/internal/carstate"
	"github.com/vertico-systems/vertico/internal/config"
	clierrors "github.com/vertico-systems/vertico/internal/errors"
	"github.com/vertico-systems/vertico/internal/floor"
	"github.com/vertico-systems/vertico/internal/observability"
	"github.com/vertico-systems/vertico/internal/output"
)

const usage = "carctrld <name> <lo> <hi> <delay_ms>"

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
		dispatcherAddr string
		noColor        bool
		logLevel       string
		logFormat      string
		logFile        string
		logStderr      string
	)

	rootCmd := &cobra.Command{
		Use:           "carctrld",
		Short:         "Vertico per-car controller daemon",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ExactArgs(4),
		RunE: func(cmd *cobra.Command, args []string) error {
			parsed, err := parseArgs(args)
			if err != nil {
				return err
			}

			return runController(cmd.Context(), out, parsed, carctrldFlags{
				dispatcherAddr: dispatcherAddr,
				noColor:        noColor,
				logLevel:       logLevel,
				logFormat:      logFormat,
				logFile:        logFile,
				logStderr:      logStderr,
			})
		},
	}

	rootCmd.Flags().StringVar(&dispatcherAddr, "dispatcher", "", "dispatcher TCP address (default from config)")
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

type carArgs struct {
	name         string
	lo, hi       int
	delay        time.Duration
}

func parseArgs(args []string) (carArgs, error) {
	name := args[0]

	lo, loErr := parseFloorArg(args[1])
	hi, hiErr := parseFloorArg(args[2])
	delayMS, delayErr := strconv.Atoi(args[3])

	if name == "" || len(name) > 128 || loErr != nil || hiErr != nil || delayErr != nil || lo >= hi || delayMS <= 0 {
		return carArgs{}, clierrors.BadArgs(usage).
			WithHint("lo/hi are floor labels (1-999, B1-B99) or their signed integer form, lo < hi; delay_ms must be positive")
	}

	return carArgs{name: name, lo: lo, hi: hi, delay: time.Duration(delayMS) * time.Millisecond}, nil
}

// parseFloorArg accepts either the textual floor grammar ("3", "B2") or
// the signed integer form ("-2"); both must land inside the valid floor
// domain before the controller ever renders them back into labels.
func parseFloorArg(s string) (int, error) {
	if n, err := floor.ToInt(s); err == nil {
		return n, nil
	}

	n, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}

	if _, err := floor.TryFromInt(n); err != nil {
		return 0, err
	}

	return n, nil
}

type carctrldFlags struct {
	dispatcherAddr string
	noColor        bool
	logLevel       string
	logFormat      string
	logFile        string
	logStderr      string
}

func runController(ctx context.Context, out *output.Writer, car carArgs, flags carctrldFlags) error {
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
		CommandPath: "carctrld " + car.name,
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

	cfg := config.Load()

	dispatcherAddr := flags.dispatcherAddr
	if dispatcherAddr == "" {
		dispatcherAddr = cfg.DispatcherListen()
	}

	region, created, err := carstate.Create(car.name)
	if err != nil {
		return clierrors.SharedRegionUnavailable(car.name, err)
	}

	// Unlink on controller exit: the monitor and any carctl
	// invocation still mapping it keep their view until they close.
	defer func() {
		_ = region.Unlink()
		_ = region.Close()
	}()

	logger.Info("car region mapped", "car", car.name, "created", created, "lo", car.lo, "hi", car.hi)

	ctrl := carctrl.New(carctrl.Config{
		Name:           car.name,
		Lo:             car.lo,
		Hi:             car.hi,
		DispatcherAddr: dispatcherAddr,
		Tick:           car.delay,
		DialTimeout:    cfg.CarDialTimeout(),
		Logger:         logger,
	}, region)

	runCtx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	out.Success("carctrld %s serving floors [%d,%d], tick %s", car.name, car.lo, car.hi, car.delay)

	ctrl.Run(runCtx)

	return nil
}

func pickOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}
