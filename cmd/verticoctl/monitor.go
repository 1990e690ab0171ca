package main

import (
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	clierrors "github.com/vertico-systems/vertico/internal/errors"
	"github.com/vertico-systems/vertico/internal/fleetconfig"
	"github.com/vertico-systems/vertico/internal/monitor"
	"github.com/vertico-systems/vertico/internal/output"
	"github.com/vertico-systems/vertico/internal/paths"
)

func newMonitorCmd(out *output.Writer) *cobra.Command {
	var (
		endpoint  string
		interval  time.Duration
		fleetFile string
	)

	cmd := &cobra.Command{
		Use:   "monitor",
		Short: "Live fleet dashboard polling the dispatcher's introspection endpoint",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if endpoint == "" {
				return clierrors.New(clierrors.ExitUsage, "--introspect-endpoint is required").
					WithHint("pass the address dispatcherd was started with --introspect-listen, e.g. http://127.0.0.1:3100")
			}

			if fleetFile == "" {
				if p, err := paths.DefaultFleetConfigFile(); err == nil {
					fleetFile = p
				}
			}

			fleet, _ := fleetconfig.Load(fleetFile)

			m := monitor.New(endpoint, interval, fleet)

			p := tea.NewProgram(m)
			_, err := p.Run()

			return err
		},
	}

	cmd.Flags().StringVar(&endpoint, "introspect-endpoint", "", "dispatcherd introspection base URL, e.g. http://127.0.0.1:3100")
	cmd.Flags().DurationVar(&interval, "interval", 2*time.Second, "poll interval")
	cmd.Flags().StringVar(&fleetFile, "fleet-file", "", "path to fleet.yaml (default from XDG config dir)")

	return cmd
}
