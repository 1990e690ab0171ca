// Command carctl is the thin internal-controls tool: it opens
// a car's shared state region and sets one boolean (or, for up/down, the
// next destination floor) before broadcasting the condition variable.
//
// Usage: carctl <car_name> <op>, op in
// {open, close, stop, service_on, service_off, up, down}.
package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/vertico-systems/vertico/internal/carstate"
	clierrors "github.com/vertico-systems/vertico/internal/errors"
	"github.com/vertico-systems/vertico/internal/floor"
	"github.com/vertico-systems/vertico/internal/output"
)

const usage = "carctl <car_name> <op>, op in {open, close, stop, service_on, service_off, up, down}"

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
	rootCmd := &cobra.Command{
		Use:           "carctl",
		Short:         "Operate one car's internal controls",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runOp(out, args[0], args[1])
		},
	}

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &clierrors.CLIError{
			Message: err.Error(),
			Hint:    fmt.Sprintf("usage: %s", usage),
			Code:    clierrors.ExitUsage,
		}
	})

	return rootCmd
}

func runOp(out *output.Writer, carName, op string) error {
	region, created, err := carstate.Create(carName)
	if err != nil {
		return clierrors.SharedRegionUnavailable(carName, err)
	}
	defer region.Close()

	if created {
		out.Warning("car %s had no region; a fresh one was just created", carName)
	}

	region.Lock()
	defer region.Unlock()

	switch op {
	case "open":
		region.SetOpenButton(1)
	case "close":
		region.SetCloseButton(1)
	case "stop":
		region.SetEmergencyStop(1)
	case "service_on":
		region.SetIndividualServiceMode(1)
	case "service_off":
		region.SetIndividualServiceMode(0)
	case "up", "down":
		if err := applyMove(region, op); err != nil {
			return err
		}
	default:
		return clierrors.BadArgs(usage)
	}

	region.Broadcast()

	out.Success("car %s: %s applied", carName, op)

	return nil
}

// applyMove implements the up/down operations: rejected unless in
// individual-service mode with a Closed door and a stationary car,
// otherwise sets destination_floor to the next floor in that signed-
// integer direction, skipping the non-existent floor 0. Caller holds
// the region lock.
func applyMove(region *carstate.Region, op string) error {
	if region.IndividualServiceMode() != 1 {
		return clierrors.New(clierrors.ExitUsage, "up/down require individual-service mode")
	}

	if region.Status() != carstate.Closed {
		return clierrors.New(clierrors.ExitUsage, "up/down require a Closed door")
	}

	cur, err := floor.ToInt(region.CurrentFloor())
	if err != nil {
		return clierrors.New(clierrors.ExitGeneral, "car's current floor is corrupt")
	}

	if region.CurrentFloor() != region.DestinationFloor() {
		return clierrors.New(clierrors.ExitUsage, "up/down require a stationary car")
	}

	var next int

	switch op {
	case "up":
		next = nextFloor(cur, 1)
	case "down":
		next = nextFloor(cur, -1)
	}

	label, err := floor.TryFromInt(next)
	if err != nil {
		return clierrors.New(clierrors.ExitUsage, fmt.Sprintf("no floor %s of %s", op, region.CurrentFloor()))
	}

	region.SetDestinationFloor(label)

	return nil
}

// nextFloor returns the floor one step from cur in delta's direction
// (+1 up, -1 down), skipping the non-existent floor 0.
func nextFloor(cur, delta int) int {
	next := cur + delta
	if next == 0 {
		next += delta
	}

	return next
}
