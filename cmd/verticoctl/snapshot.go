package main

import (
	"os"
	"time"

	"github.com/spf13/cobra"

	clierrors "github.com/vertico-systems/vertico/internal/errors"
	"github.com/vertico-systems/vertico/internal/output"
	"github.com/vertico-systems/vertico/internal/snapshot"
)

func newSnapshotCmd(out *output.Writer) *cobra.Command {
	var (
		endpoint string
		outPath  string
	)

	cmd := &cobra.Command{
		Use:   "snapshot",
		Short: "Dump the current fleet state as TOML for a postmortem writeup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if endpoint == "" {
				return clierrors.New(clierrors.ExitUsage, "--introspect-endpoint is required").
					WithHint("pass the address dispatcherd was started with --introspect-listen, e.g. http://127.0.0.1:3100")
			}

			fleet, err := snapshot.Fetch(endpoint, snapshotTime())
			if err != nil {
				return clierrors.DispatcherUnreachable(endpoint, err)
			}

			if outPath == "" {
				return snapshot.Write(out.Out, fleet)
			}

			f, err := os.Create(outPath)
			if err != nil {
				return clierrors.New(clierrors.ExitGeneral, "cannot create output file").WithHint(err.Error())
			}
			defer f.Close()

			if err := snapshot.Write(f, fleet); err != nil {
				return err
			}

			out.Success("wrote snapshot to %s", outPath)

			return nil
		},
	}

	cmd.Flags().StringVar(&endpoint, "introspect-endpoint", "", "dispatcherd introspection base URL, e.g. http://127.0.0.1:3100")
	cmd.Flags().StringVar(&outPath, "out", "", "write TOML to this path instead of stdout")

	return cmd
}

// snapshotTime is the one place main.go calls time.Now directly, kept
// out of internal/snapshot so that package stays pure and testable.
func snapshotTime() time.Time {
	return time.Now()
}
