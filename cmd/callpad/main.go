// Command callpad is the external call-pad client: it places
// exactly one pickup/destination call with the dispatcher and prints the
// single reply frame it gets back.
//
// Usage: callpad <src> <dst>
package main

import (
	"context"
	"fmt"
	"net"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/vertico-systems/vertico/internal/config"
	clierrors "github.com/vertico-systems/vertico/internal/errors"
	"github.com/vertico-systems/vertico/internal/floor"
	"github.com/vertico-systems/vertico/internal/frame"
	"github.com/vertico-systems/vertico/internal/output"
	"github.com/vertico-systems/vertico/internal/wireproto"
)

const usage = "callpad <src> <dst>"

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
	var dispatcherAddr string

	rootCmd := &cobra.Command{
		Use:           "callpad",
		Short:         "Place one elevator call",
		SilenceUsage:  true,
		SilenceErrors: true,
		Args:          cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCall(cmd.Context(), out, args[0], args[1], dispatcherAddr)
		},
	}

	rootCmd.Flags().StringVar(&dispatcherAddr, "dispatcher", "", "dispatcher TCP address (default from config)")

	rootCmd.SetFlagErrorFunc(func(cmd *cobra.Command, err error) error {
		return &clierrors.CLIError{
			Message: err.Error(),
			Hint:    fmt.Sprintf("usage: %s", usage),
			Code:    clierrors.ExitUsage,
		}
	})

	return rootCmd
}

func runCall(ctx context.Context, out *output.Writer, srcLabel, dstLabel, dispatcherAddr string) error {
	if !floor.Validate(srcLabel) || !floor.Validate(dstLabel) {
		return clierrors.BadArgs(usage).WithHint("floor labels must be 1-999 or B1-B99; 0 is not a floor")
	}

	src, err := floor.ToInt(srcLabel)
	if err != nil {
		return clierrors.BadArgs(usage)
	}

	dst, err := floor.ToInt(dstLabel)
	if err != nil {
		return clierrors.BadArgs(usage)
	}

	if src == dst {
		return clierrors.BadArgs(usage).WithHint("pickup and destination floors must differ")
	}

	if dispatcherAddr == "" {
		dispatcherAddr = config.Load().DispatcherListen()
	}

	dialer := net.Dialer{Timeout: 5 * time.Second}

	conn, err := dialer.DialContext(ctx, "tcp", dispatcherAddr)
	if err != nil {
		return clierrors.DispatcherUnreachable(dispatcherAddr, err)
	}
	defer conn.Close()

	if err := frame.Write(conn, wireproto.EncodeCall(wireproto.Call{Src: src, Dst: dst})); err != nil {
		return clierrors.DispatcherUnreachable(dispatcherAddr, err)
	}

	_ = conn.SetReadDeadline(time.Now().Add(5 * time.Second))

	payload, err := frame.Read(conn)
	if err != nil {
		return clierrors.DispatcherUnreachable(dispatcherAddr, err)
	}

	reply, err := wireproto.ParseCallReply(payload)
	if err != nil {
		return clierrors.New(clierrors.ExitGeneral, "dispatcher sent a malformed reply")
	}

	switch r := reply.(type) {
	case wireproto.CarAssigned:
		out.Success("car %s will serve this call", r.Name)
	case wireproto.Unavailable:
		out.Warning("no car is available for this call")
	}

	return nil
}
