// Command verticoctl is the operator CLI: diagnostics
// (doctor), a live fleet dashboard (monitor), and a postmortem dump
// (snapshot), all built on the dispatcher's monitor-only introspection
// surface and the fixed wire grammar's diagnostic edges.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/google/uuid"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/vertico-systems/vertico/internal/buildinfo"
	"github.com/vertico-systems/vertico/internal/config"
	"github.com/vertico-systems/vertico/internal/doctor"
	clierrors "github.com/vertico-systems/vertico/internal/errors"
	"github.com/vertico-systems/vertico/internal/fleetconfig"
	"github.com/vertico-systems/vertico/internal/observability"
	"github.com/vertico-systems/vertico/internal/output"
	"github.com/vertico-systems/vertico/internal/paths"
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
	if strings.HasPrefix(errStr, "unknown command") || strings.Contains(errStr, "required flag") {
		out.Failure("%s", errStr)
		out.Info("Run 'verticoctl --help' for usage")

		return clierrors.ExitUsage
	}

	out.Failure("%s", errStr)

	return clierrors.ExitGeneral
}

func newRootCmd(out *output.Writer) *cobra.Command {
	var (
		jsonOutput bool
		quiet      bool
		noColor    bool
		logLevel   string
		logFormat  string
		logFile    string
		logStderr  string
	)

	rootCmd := &cobra.Command{
		Use:           "verticoctl",
		Short:         "Vertico operator CLI",
		Long:          "verticoctl diagnoses and observes a running Vertico elevator deployment:\nverticoctl doctor     Diagnose dispatcher/car connectivity\nverticoctl monitor    Live fleet dashboard\nverticoctl snapshot   Postmortem dump of fleet state",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			out.JSON = jsonOutput
			out.Quiet = quiet

			if noColor {
				out.SetNoColor(true)
				color.NoColor = true
			}

			logger, cleanup, err := observability.NewLogger(&observability.Config{
				Level:       pickOrDefault(logLevel, "warn"),
				Format:      pickOrDefault(logFormat, "text"),
				LogFile:     logFile,
				StderrMode:  pickOrDefault(logStderr, "auto"),
				SessionID:   uuid.NewString(),
				CommandPath: cmd.CommandPath(),
				Version:     buildinfo.Version,
			})
			if err != nil {
				return &clierrors.CLIError{
					Message: fmt.Sprintf("invalid logging configuration: %v", err),
					Code:    clierrors.ExitUsage,
				}
			}

			ctx := out.WithContext(cmd.Context())
			ctx = observability.WithLogger(ctx, logger)
			cmd.SetContext(ctx)

			if cleanup != nil {
				prev := cmd.PostRunE
				cmd.PostRunE = func(cmd *cobra.Command, args []string) error {
					if prev != nil {
						if err := prev(cmd, args); err != nil {
							_ = cleanup()
							return err
						}
					}

					return cleanup()
				}
			}

			return nil
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.BoolVar(&jsonOutput, "json", false, "output in JSON format")
	flags.BoolVar(&quiet, "quiet", false, "minimal output")
	flags.BoolVar(&noColor, "no-color", false, "disable colored output")
	addLoggingFlags(flags, &logLevel, &logFormat, &logFile, &logStderr)

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &clierrors.CLIError{
			Message: err.Error(),
			Hint:    fmt.Sprintf("Run '%s --help' for available flags", cmd.CommandPath()),
			Code:    clierrors.ExitUsage,
		}
	})

	rootCmd.AddCommand(newDoctorCmd(out))
	rootCmd.AddCommand(newMonitorCmd(out))
	rootCmd.AddCommand(newSnapshotCmd(out))
	rootCmd.AddCommand(newVersionCmd(out))

	return rootCmd
}

// addLoggingFlags registers the structured-logging flags shared by every
// verticoctl subcommand on fs.
func addLoggingFlags(fs *pflag.FlagSet, level, format, file, stderrMode *string) {
	fs.StringVar(level, "log-level", "", "log level: error, warn, info, debug")
	fs.StringVar(format, "log-format", "", "log format: json, text")
	fs.StringVar(file, "log-file", "", "optional structured log file path")
	fs.StringVar(stderrMode, "log-stderr", "", "structured logging to stderr: auto, on, off")
}

func pickOrDefault(value, fallback string) string {
	if strings.TrimSpace(value) == "" {
		return fallback
	}

	return value
}

func newDoctorCmd(out *output.Writer) *cobra.Command {
	var (
		dispatcherAddr string
		carName        string
		constraint     string
		fleetFile      string
	)

	cmd := &cobra.Command{
		Use:   "doctor",
		Short: "Diagnose dispatcher/car connectivity and fleet completeness",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := config.Load()

			if dispatcherAddr == "" {
				dispatcherAddr = cfg.DispatcherListen()
			}

			if fleetFile == "" {
				if p, err := paths.DefaultFleetConfigFile(); err == nil {
					fleetFile = p
				}
			}

			runner := doctor.New(doctor.Options{
				DispatcherAddr:    dispatcherAddr,
				CarName:           carName,
				ConstraintVersion: constraint,
			})

			results := runner.Run(cmd.Context())

			if out.JSON {
				return out.PrintJSON(results)
			}

			doctor.RenderResults(results, out.Print, out.Success, out.Warning, out.Failure, out.Muted)

			fleet, err := fleetconfig.Load(fleetFile)
			if err == nil && len(fleet.Cars) > 0 {
				registered := map[string]bool{}
				if carName != "" {
					registered[carName] = true
				}

				if missing := fleet.Missing(registered); len(missing) > 0 {
					out.Warning("fleet.yaml expects cars not checked here: %s", strings.Join(missing, ", "))
				}
			}

			passed, failed, warnings := doctor.Summary(results)
			out.Print("\n%d passed, %d warnings, %d failed\n", passed, warnings, failed)

			if failed > 0 {
				return clierrors.New(clierrors.ExitNetwork, "one or more diagnostic checks failed")
			}

			return nil
		},
	}

	cmd.Flags().StringVar(&dispatcherAddr, "dispatcher", "", "dispatcher TCP address (default from config)")
	cmd.Flags().StringVar(&carName, "car", "", "also check this car's shared region")
	cmd.Flags().StringVar(&constraint, "protocol-constraint", "", "semver constraint to check this build's protocol version against, e.g. ^1.0.0")
	cmd.Flags().StringVar(&fleetFile, "fleet-file", "", "path to fleet.yaml (default from XDG config dir)")

	return cmd
}

func newVersionCmd(out *output.Writer) *cobra.Command {
	return &cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if out.JSON {
				return out.PrintJSON(map[string]string{
					"version":  buildinfo.Version,
					"protocol": buildinfo.ProtocolVersion,
				})
			}

			out.Print("verticoctl %s (protocol %s)\n", buildinfo.Version, buildinfo.ProtocolVersion)

			return nil
		},
	}
}
