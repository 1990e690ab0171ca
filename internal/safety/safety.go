// Package safety implements the independent safety monitor's check
// sequence against a car's shared state region.
package safety

import (
	"context"
	"fmt"
	"io"
	"time"

	"github.com/vertico-systems/vertico/internal/carstate"
	"github.com/vertico-systems/vertico/internal/floor"
)

// Monitor runs the check sequence against one car's region until ctx is
// canceled.
type Monitor struct {
	Region *carstate.Region
	Stderr io.Writer

	// BackoffOnFailure is how long to pause after a mutex/condvar
	// failure before retrying. Zero uses a sensible default.
	BackoffOnFailure time.Duration
}

const defaultBackoff = 200 * time.Millisecond

// Run loops: acquire the lock, wait for a broadcast, run the check
// sequence, release the lock. It returns only when ctx is done.
func (m *Monitor) Run(ctx context.Context) {
	backoff := m.BackoffOnFailure
	if backoff <= 0 {
		backoff = defaultBackoff
	}

	// Shutdown broadcast: the loop below parks in Wait between checks,
	// and cancellation alone wakes nobody on a futex; shutdown is a
	// flag plus a broadcast, and ctx is the flag here.
	go func() {
		<-ctx.Done()

		m.Region.Lock()
		m.Region.Broadcast()
		m.Region.Unlock()
	}()

	// Run one pass immediately: the region may have been created (and
	// its one startup broadcast fired) before this monitor mapped it, so
	// waiting unconditionally first could miss that wakeup and stall the
	// heartbeat refresh indefinitely.
	func() {
		defer m.recoverToEmergency(backoff)

		m.Region.Lock()
		defer m.Region.Unlock()

		RunCheckSequence(m.Region, m.Stderr)
	}()

	for ctx.Err() == nil {
		func() {
			defer m.recoverToEmergency(backoff)

			m.Region.Lock()
			defer m.Region.Unlock()

			// Recheck under the lock: the shutdown broadcast may have
			// fired between the loop condition and acquiring it.
			if ctx.Err() != nil {
				return
			}

			m.Region.Wait()

			if ctx.Err() != nil {
				return
			}

			RunCheckSequence(m.Region, m.Stderr)
		}()
	}
}

// recoverToEmergency implements the "mutex/condition-variable failure"
// branch of the error taxonomy: any panic escaping a single iteration
// (carstate's futex primitives don't normally panic, but a
// corrupted mapping could manifest as one) escalates to emergency mode
// and backs off briefly rather than crashing the monitor process.
func (m *Monitor) recoverToEmergency(backoff time.Duration) {
	if r := recover(); r != nil {
		fmt.Fprintf(m.Stderr, "safety monitor recovered from %v; forcing emergency mode\n", r)

		func() {
			defer func() { _ = recover() }()

			m.Region.Lock()
			defer m.Region.Unlock()
			m.Region.SetEmergencyMode(1)
			m.Region.Broadcast()
		}()

		time.Sleep(backoff)
	}
}

// RunCheckSequence performs the five-step check sequence, in order,
// on a region whose lock the caller already holds. It broadcasts if any
// field changed.
func RunCheckSequence(r *carstate.Region, stderr io.Writer) {
	changed := false

	// 1. Heartbeat refresh.
	if r.SafetySystem() != carstate.HeartbeatFresh {
		r.SetSafetySystem(carstate.HeartbeatFresh)
		changed = true
	}

	// 2. Obstruction handling.
	if r.DoorObstruction() == 1 && r.Status() == carstate.Closing {
		r.SetStatus(carstate.Opening)
		changed = true
	}

	alreadyEmergency := r.EmergencyMode() == 1

	// 3. Emergency stop.
	if r.EmergencyStop() == 1 && !alreadyEmergency {
		fmt.Fprintln(stderr, "The emergency stop button has been pressed!")
		r.SetEmergencyMode(1)
		r.SetEmergencyStop(0)
		alreadyEmergency = true
		changed = true
	}

	// 4. Overload.
	if r.Overload() == 1 && !alreadyEmergency {
		fmt.Fprintln(stderr, "The overload sensor has been tripped!")
		r.SetEmergencyMode(1)
		alreadyEmergency = true
		changed = true
	}

	// 5. Consistency, skipped once latched.
	if !alreadyEmergency {
		snap := r.SnapshotLocked()
		if err := carstate.Validate(snap, floor.Validate); err != nil {
			fmt.Fprintln(stderr, "Data consistency error!")
			r.SetEmergencyMode(1)
			changed = true
		}
	}

	if changed {
		r.Broadcast()
	}
}
