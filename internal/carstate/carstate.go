// Package carstate implements the process-shared car state region:
// the cross-process structure holding one car's live
// state, guarded by a shared mutex and condition variable.
//
// Go cannot safely lay out a libc pthread_mutex_t/pthread_cond_t with
// PTHREAD_PROCESS_SHARED attributes without cgo, since that struct's
// layout is a private part of the C library ABI. As an equivalent
// substitute primitive, this package instead places two
// plain uint32 words at the front of the mapped region — a three-state
// futex mutex word and a generation counter — and drives them with
// golang.org/x/sys/unix.Futex wait/wake, giving the same contract:
// broadcast after every observable write, waiters recheck predicates
// under lock.
package carstate

import (
	"errors"
	"fmt"
)

// Status names, the only five valid values of the Status field.
const (
	Opening = "Opening"
	Open    = "Open"
	Closing = "Closing"
	Closed  = "Closed"
	Between = "Between"
)

// Heartbeat values for the SafetySystem field.
const (
	HeartbeatUninitialized = 0
	HeartbeatFresh         = 1
	HeartbeatStaleFirst    = 2
	HeartbeatStaleSecond   = 3
)

// ErrInconsistent is returned by Validate when a sampled snapshot
// violates one of the region invariants.
var ErrInconsistent = errors.New("carstate: inconsistent snapshot")

// Snapshot is a consistent, lock-protected read of every field in the
// region at one instant.
type Snapshot struct {
	CurrentFloor          string
	DestinationFloor      string
	Status                string
	OpenButton            uint32
	CloseButton           uint32
	DoorObstruction       uint32
	Overload              uint32
	EmergencyStop         uint32
	IndividualServiceMode uint32
	EmergencyMode         uint32
	SafetySystem          uint32
}

// ValidStatus reports whether s is one of the five enumerated door
// states.
func ValidStatus(s string) bool {
	switch s {
	case Opening, Open, Closing, Closed, Between:
		return true
	default:
		return false
	}
}

// Validate checks every region invariant against a snapshot, using
// validateFloor (injected so this package doesn't import internal/floor
// and create an import cycle risk as the domain grows; carstate callers
// in internal/safety already depend on internal/floor and pass its
// Validate function straight through).
func Validate(s Snapshot, validateFloor func(string) bool) error {
	if !validateFloor(s.CurrentFloor) {
		return fmt.Errorf("%w: current_floor %q", ErrInconsistent, s.CurrentFloor)
	}

	if !validateFloor(s.DestinationFloor) {
		return fmt.Errorf("%w: destination_floor %q", ErrInconsistent, s.DestinationFloor)
	}

	if !ValidStatus(s.Status) {
		return fmt.Errorf("%w: status %q", ErrInconsistent, s.Status)
	}

	for name, v := range map[string]uint32{
		"open_button":             s.OpenButton,
		"close_button":            s.CloseButton,
		"door_obstruction":        s.DoorObstruction,
		"overload":                s.Overload,
		"emergency_stop":          s.EmergencyStop,
		"individual_service_mode": s.IndividualServiceMode,
		"emergency_mode":          s.EmergencyMode,
	} {
		if v > 1 {
			return fmt.Errorf("%w: %s = %d", ErrInconsistent, name, v)
		}
	}

	if s.DoorObstruction == 1 && s.Status != Opening && s.Status != Closing {
		return fmt.Errorf("%w: door_obstruction set while status=%s", ErrInconsistent, s.Status)
	}

	return nil
}
