// Package doctor provides diagnostic checks for verticoctl's operator
// surface (`verticoctl doctor`).
//
// This package implements a check framework that validates:
//   - TCP reachability of the configured dispatcher
//   - Presence/openability of a named car's shared-memory region
//   - This build's protocol version against an operator-supplied semver
//     constraint (no version is fetched from the dispatcher)
package doctor

import (
	"context"
	"fmt"
	"net"
	"time"

	"github.com/Masterminds/semver/v3"

	"github.com/vertico-systems/vertico/internal/buildinfo"
	"github.com/vertico-systems/vertico/internal/carstate"
)

// Status represents the result of a diagnostic check.
type Status int

const (
	// StatusPass indicates the check passed.
	StatusPass Status = iota
	// StatusWarn indicates a non-critical issue.
	StatusWarn
	// StatusFail indicates a critical failure.
	StatusFail
)

// Result holds the outcome of a single check.
type Result struct {
	Name    string
	Status  Status
	Message string
	Detail  string // Optional additional detail
}

// Check is a diagnostic check function.
type Check func(ctx context.Context) Result

// Runner executes diagnostic checks.
type Runner struct {
	checks []namedCheck
}

type namedCheck struct {
	name  string
	check Check
}

// Options configures which checks New registers.
type Options struct {
	// DispatcherAddr is the dispatcher's TCP address, e.g. "127.0.0.1:3000".
	// Always checked.
	DispatcherAddr string

	// CarName, if non-empty, is additionally checked for an openable
	// shared-memory region.
	CarName string

	// ConstraintVersion, if non-empty, is a semver constraint (e.g.
	// "^1.0.0") that this build's own buildinfo.ProtocolVersion is
	// checked against. Diagnostic only; the wire grammar itself carries
	// no version field, so no dispatcher's version is consulted.
	ConstraintVersion string

	// DialTimeout bounds the dispatcher reachability probe.
	DialTimeout time.Duration
}

// New creates a diagnostic runner configured per opts.
func New(opts Options) *Runner {
	r := &Runner{}

	r.AddCheck("Dispatcher reachability", checkDispatcherReachable(opts))

	if opts.CarName != "" {
		r.AddCheck("Shared region", checkCarRegion(opts.CarName))
	}

	if opts.ConstraintVersion != "" {
		r.AddCheck("Protocol version", checkProtocolVersion(opts))
	}

	return r
}

// AddCheck registers a diagnostic check.
func (r *Runner) AddCheck(name string, check Check) {
	r.checks = append(r.checks, namedCheck{name: name, check: check})
}

// Run executes all registered checks and returns the results.
func (r *Runner) Run(ctx context.Context) []Result {
	results := make([]Result, 0, len(r.checks))

	for _, nc := range r.checks {
		result := nc.check(ctx)
		result.Name = nc.name
		results = append(results, result)
	}

	return results
}

// Summary returns counts of passed, failed, and warning checks.
func Summary(results []Result) (passed, failed, warnings int) {
	for _, r := range results {
		switch r.Status {
		case StatusPass:
			passed++
		case StatusFail:
			failed++
		case StatusWarn:
			warnings++
		}
	}

	return passed, failed, warnings
}

// checkDispatcherReachable dials the configured dispatcher address.
func checkDispatcherReachable(opts Options) Check {
	return func(ctx context.Context) Result {
		timeout := opts.DialTimeout
		if timeout <= 0 {
			timeout = 3 * time.Second
		}

		start := time.Now()

		dialer := net.Dialer{Timeout: timeout}

		conn, err := dialer.DialContext(ctx, "tcp", opts.DispatcherAddr)
		elapsed := time.Since(start)

		if err != nil {
			return Result{
				Status:  StatusFail,
				Message: opts.DispatcherAddr,
				Detail:  err.Error(),
			}
		}

		_ = conn.Close()

		return Result{
			Status:  StatusPass,
			Message: fmt.Sprintf("%s (%dms)", opts.DispatcherAddr, elapsed.Milliseconds()),
		}
	}
}

// checkCarRegion opens a car's shared region via carstate.Create; if that
// call had to create it, the new region is unlinked again and the check
// warns.
func checkCarRegion(carName string) Check {
	return func(ctx context.Context) Result {
		region, created, err := carstate.Create(carName)
		if err != nil {
			return Result{
				Status:  StatusFail,
				Message: fmt.Sprintf("/car%s", carName),
				Detail:  err.Error(),
			}
		}

		defer func() { _ = region.Close() }()

		if created {
			// This check is not supposed to bring a region into
			// existence; having had to create one here means no
			// controller or monitor has ever mapped it. Remove it again
			// so the probe leaves no trace.
			_ = region.Unlink()

			return Result{
				Status:  StatusWarn,
				Message: fmt.Sprintf("/car%s", carName),
				Detail:  "region did not exist; no controller has mapped this car",
			}
		}

		return Result{
			Status:  StatusPass,
			Message: fmt.Sprintf("/car%s", carName),
		}
	}
}

// checkProtocolVersion compares this build's ProtocolVersion against the
// operator-supplied constraint string. Warns, never fails: the wire
// grammar carries no version field, so this can only ever be advisory.
func checkProtocolVersion(opts Options) Check {
	return func(ctx context.Context) Result {
		current, err := semver.NewVersion(buildinfo.ProtocolVersion)
		if err != nil {
			return Result{
				Status:  StatusWarn,
				Message: buildinfo.ProtocolVersion,
				Detail:  fmt.Sprintf("could not parse this build's own protocol version: %v", err),
			}
		}

		constraint, err := semver.NewConstraint(opts.ConstraintVersion)
		if err != nil {
			return Result{
				Status:  StatusWarn,
				Message: opts.ConstraintVersion,
				Detail:  fmt.Sprintf("invalid constraint: %v", err),
			}
		}

		if !constraint.Check(current) {
			return Result{
				Status:  StatusWarn,
				Message: fmt.Sprintf("%s does not satisfy %s", current, opts.ConstraintVersion),
				Detail:  "this is diagnostic only; the wire grammar carries no version field",
			}
		}

		return Result{
			Status:  StatusPass,
			Message: fmt.Sprintf("%s satisfies %s", current, opts.ConstraintVersion),
		}
	}
}

// RenderResults formats diagnostic results to the given output writer.
func RenderResults(results []Result, printFn, successFn, warningFn, failureFn, mutedFn func(format string, args ...any)) {
	maxNameLen := 0
	for _, r := range results {
		if len(r.Name) > maxNameLen {
			maxNameLen = len(r.Name)
		}
	}

	for _, r := range results {
		symbol := r.Status.Symbol()
		padding := maxNameLen - len(r.Name) + 4

		switch r.Status {
		case StatusPass:
			successFn("%-*s%s", len(r.Name)+padding, r.Name, r.Message)
		case StatusWarn:
			warningFn("%-*s%s", len(r.Name)+padding, r.Name, r.Message)
		case StatusFail:
			failureFn("%-*s%s", len(r.Name)+padding, r.Name, r.Message)
		default:
			printFn("%s %-*s%s\n", symbol, len(r.Name)+padding, r.Name, r.Message)
		}

		if r.Detail != "" {
			mutedFn("    %s", r.Detail)
		}
	}
}

// Symbol returns the status symbol for display.
func (s Status) Symbol() string {
	switch s {
	case StatusPass:
		return checkMark
	case StatusWarn:
		return warningMark
	case StatusFail:
		return xMark
	default:
		return "?"
	}
}

const (
	checkMark   = "✓"
	xMark       = "✗"
	warningMark = "⚠"
)
