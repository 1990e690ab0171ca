package carctrl

import (
	"testing"
	"time"

	"github.com/vertico-systems/vertico/internal/carstate"
)

func newTestRegion(t *testing.T) *carstate.Region {
	t.Helper()

	r, _, err := carstate.Create("carctrltest_" + t.Name())
	if err != nil {
		t.Fatalf("carstate.Create: %v", err)
	}

	t.Cleanup(func() {
		_ = r.Close()
		_ = r.Unlink()
	})

	return r
}

func newTestController(t *testing.T) *Controller {
	t.Helper()

	return New(Config{
		Name: "A",
		Lo:   -2,
		Hi:   10,
		Tick: 10 * time.Millisecond,
	}, newTestRegion(t))
}

func TestStepToward(t *testing.T) {
	tests := []struct {
		cur, dest, want int
	}{
		{1, 5, 2},
		{5, 1, 4},
		{-1, 1, 1},  // skip 0 going up
		{1, -1, -1}, // skip 0 going down
		{3, 3, 3},   // already there
	}

	for _, tt := range tests {
		if got := stepToward(tt.cur, tt.dest); got != tt.want {
			t.Errorf("stepToward(%d, %d) = %d, want %d", tt.cur, tt.dest, got, tt.want)
		}
	}
}

func TestAdvanceHeartbeat_EscalatesToEmergency(t *testing.T) {
	c := newTestController(t)

	c.advanceHeartbeat() // 0 (uninitialized) -> StaleFirst
	if got := c.region.SafetySystem(); got != carstate.HeartbeatStaleFirst {
		t.Fatalf("after 1st advance, SafetySystem = %d, want %d", got, carstate.HeartbeatStaleFirst)
	}

	c.advanceHeartbeat() // StaleFirst -> StaleSecond
	if got := c.region.SafetySystem(); got != carstate.HeartbeatStaleSecond {
		t.Fatalf("after 2nd advance, SafetySystem = %d, want %d", got, carstate.HeartbeatStaleSecond)
	}

	c.advanceHeartbeat() // StaleSecond -> emergency
	if c.region.EmergencyMode() != 1 {
		t.Fatal("expected emergency_mode = 1 after three stale advances")
	}

	// Latched: a further advance must not touch anything.
	c.advanceHeartbeat()
	if c.region.EmergencyMode() != 1 {
		t.Fatal("emergency_mode must remain latched")
	}
}

func TestAdvanceHeartbeat_RefreshKeepsItFresh(t *testing.T) {
	c := newTestController(t)

	c.region.Lock()
	c.region.SetSafetySystem(carstate.HeartbeatFresh)
	c.region.Unlock()

	c.advanceHeartbeat()
	if got := c.region.SafetySystem(); got != carstate.HeartbeatStaleFirst {
		t.Fatalf("SafetySystem = %d, want %d", got, carstate.HeartbeatStaleFirst)
	}

	// A live safety monitor would reset it to Fresh here; simulate that.
	c.region.Lock()
	c.region.SetSafetySystem(carstate.HeartbeatFresh)
	c.region.Unlock()

	c.advanceHeartbeat()
	if got := c.region.SafetySystem(); got != carstate.HeartbeatStaleFirst {
		t.Fatalf("SafetySystem = %d, want %d (refreshed monitor should reset escalation)", got, carstate.HeartbeatStaleFirst)
	}

	if c.region.EmergencyMode() != 0 {
		t.Fatal("emergency_mode must not latch while the monitor keeps refreshing")
	}
}

func TestMaybeStartDoorOpen_NormalModeRequiresDestinationMatch(t *testing.T) {
	c := newTestController(t)

	c.region.Lock()
	c.region.SetStatus(carstate.Closed)
	c.region.SetCurrentFloor("1")
	c.region.SetDestinationFloor("5")
	c.region.SetOpenButton(1)
	c.region.Unlock()

	snap := c.region.Snapshot()
	c.maybeStartDoorOpen(snap, false)

	if got := c.region.Status(); got != carstate.Closed {
		t.Fatalf("Status = %q, want %q (open_button must be ignored away from destination in normal mode)", got, carstate.Closed)
	}
}

func TestMaybeStartDoorOpen_NormalModeAtDestination(t *testing.T) {
	c := newTestController(t)

	c.region.Lock()
	c.region.SetStatus(carstate.Closed)
	c.region.SetCurrentFloor("3")
	c.region.SetDestinationFloor("3")
	c.region.SetOpenButton(1)
	c.region.Unlock()

	snap := c.region.Snapshot()
	c.maybeStartDoorOpen(snap, false)

	if got := c.region.Status(); got != carstate.Opening {
		t.Fatalf("Status = %q, want %q", got, carstate.Opening)
	}

	if c.region.OpenButton() != 0 {
		t.Fatal("open_button should have been consumed")
	}
}

func TestMaybeStartDoorOpen_IndividualIgnoresDestination(t *testing.T) {
	c := newTestController(t)

	c.region.Lock()
	c.region.SetStatus(carstate.Closed)
	c.region.SetCurrentFloor("1")
	c.region.SetDestinationFloor("9")
	c.region.SetOpenButton(1)
	c.region.Unlock()

	snap := c.region.Snapshot()
	c.maybeStartDoorOpen(snap, true)

	if got := c.region.Status(); got != carstate.Opening {
		t.Fatalf("Status = %q, want %q (individual-service honours open_button regardless of destination)", got, carstate.Opening)
	}
}

func TestStepDoor_OpeningAdvancesToOpenAfterTick(t *testing.T) {
	c := newTestController(t)

	c.region.Lock()
	c.region.SetStatus(carstate.Opening)
	c.region.Unlock()
	c.phaseEnteredAt = time.Now().Add(-2 * c.cfg.Tick) // backdate past the gate

	busy := c.stepDoor(c.region.Snapshot())
	if !busy {
		t.Fatal("stepDoor should report busy while mid door sequence")
	}

	if got := c.region.Status(); got != carstate.Open {
		t.Fatalf("Status = %q, want %q", got, carstate.Open)
	}
}

func TestStepDoor_OpeningWaitsOutTheTick(t *testing.T) {
	c := newTestController(t)

	c.region.Lock()
	c.region.SetStatus(carstate.Opening)
	c.region.Unlock()
	c.phaseEnteredAt = time.Now() // just entered; must not advance yet

	c.stepDoor(c.region.Snapshot())

	if got := c.region.Status(); got != carstate.Opening {
		t.Fatalf("Status = %q, want %q (must wait a full tick before advancing)", got, carstate.Opening)
	}
}

func TestStepDoor_OpenClosesOnButtonPress(t *testing.T) {
	c := newTestController(t)

	c.region.Lock()
	c.region.SetStatus(carstate.Open)
	c.region.SetCloseButton(1)
	c.region.Unlock()
	c.phaseEnteredAt = time.Now()

	c.stepDoor(c.region.Snapshot())

	if got := c.region.Status(); got != carstate.Closing {
		t.Fatalf("Status = %q, want %q", got, carstate.Closing)
	}

	if c.region.CloseButton() != 0 {
		t.Fatal("close_button should have been consumed")
	}
}

func TestStepDoor_OpenTimesOutWithoutButton(t *testing.T) {
	c := newTestController(t)

	c.region.Lock()
	c.region.SetStatus(carstate.Open)
	c.region.Unlock()
	c.phaseEnteredAt = time.Now().Add(-2 * c.cfg.Tick)

	c.stepDoor(c.region.Snapshot())

	if got := c.region.Status(); got != carstate.Closing {
		t.Fatalf("Status = %q, want %q (should close once 2T has elapsed without a button press)", got, carstate.Closing)
	}
}

func TestStepDoor_ClosingAdvancesToClosedAfterTick(t *testing.T) {
	c := newTestController(t)

	c.region.Lock()
	c.region.SetStatus(carstate.Closing)
	c.region.Unlock()
	c.phaseEnteredAt = time.Now().Add(-2 * c.cfg.Tick)

	c.stepDoor(c.region.Snapshot())

	if got := c.region.Status(); got != carstate.Closed {
		t.Fatalf("Status = %q, want %q", got, carstate.Closed)
	}
}

func TestServiceNormalMotion_StepsTowardDestination(t *testing.T) {
	c := newTestController(t)

	c.region.Lock()
	c.region.SetStatus(carstate.Closed)
	c.region.SetCurrentFloor("1")
	c.region.SetDestinationFloor("3")
	c.region.Unlock()

	// First call: Closed -> Between.
	c.serviceNormalMotion(c.region.Snapshot())
	if got := c.region.Status(); got != carstate.Between {
		t.Fatalf("Status = %q, want %q", got, carstate.Between)
	}

	// Second call without backdating must not step yet.
	c.serviceNormalMotion(c.region.Snapshot())
	if got := c.region.CurrentFloor(); got != "1" {
		t.Fatalf("CurrentFloor = %q, want %q (must wait a tick before stepping)", got, "1")
	}

	c.phaseEnteredAt = time.Now().Add(-2 * c.cfg.Tick)
	c.serviceNormalMotion(c.region.Snapshot())
	if got := c.region.CurrentFloor(); got != "2" {
		t.Fatalf("CurrentFloor = %q, want %q", got, "2")
	}

	c.phaseEnteredAt = time.Now().Add(-2 * c.cfg.Tick)
	c.serviceNormalMotion(c.region.Snapshot())
	if got := c.region.CurrentFloor(); got != "3" {
		t.Fatalf("CurrentFloor = %q, want %q", got, "3")
	}

	if got := c.region.Status(); got != carstate.Opening {
		t.Fatalf("Status = %q, want %q (arrival in normal mode opens directly)", got, carstate.Opening)
	}
}

func TestServiceIndividualMotion_ArrivalLandsClosed(t *testing.T) {
	c := newTestController(t)

	c.region.Lock()
	c.region.SetStatus(carstate.Closed)
	c.region.SetCurrentFloor("1")
	c.region.SetDestinationFloor("2")
	c.region.Unlock()

	c.serviceIndividualMotion(c.region.Snapshot())
	if got := c.region.Status(); got != carstate.Between {
		t.Fatalf("Status = %q, want %q", got, carstate.Between)
	}

	c.phaseEnteredAt = time.Now().Add(-2 * c.cfg.Tick)
	c.serviceIndividualMotion(c.region.Snapshot())

	if got := c.region.CurrentFloor(); got != "2" {
		t.Fatalf("CurrentFloor = %q, want %q", got, "2")
	}

	if got := c.region.Status(); got != carstate.Closed {
		t.Fatalf("Status = %q, want %q (individual-service arrival does not auto-open)", got, carstate.Closed)
	}
}

func TestServiceIndividualMotion_RejectsOutOfRange(t *testing.T) {
	c := newTestController(t)

	c.region.Lock()
	c.region.SetStatus(carstate.Closed)
	c.region.SetCurrentFloor("4")
	c.region.SetDestinationFloor("99") // outside [-2,10]
	c.region.Unlock()

	c.serviceIndividualMotion(c.region.Snapshot())

	if got := c.region.DestinationFloor(); got != "4" {
		t.Fatalf("DestinationFloor = %q, want %q (out-of-range destination must snap back to current)", got, "4")
	}

	if got := c.region.Status(); got != carstate.Closed {
		t.Fatalf("Status = %q, want %q (must not start moving toward a rejected destination)", got, carstate.Closed)
	}
}

func TestMaybeAutoOpenOnArrival_RequiresDestChangedFlag(t *testing.T) {
	c := newTestController(t)

	c.region.Lock()
	c.region.SetStatus(carstate.Closed)
	c.region.SetCurrentFloor("5")
	c.region.SetDestinationFloor("5")
	c.region.Unlock()

	c.maybeAutoOpenOnArrival(c.region.Snapshot())
	if got := c.region.Status(); got != carstate.Closed {
		t.Fatalf("Status = %q, want %q (no destChanged flag, should not open)", got, carstate.Closed)
	}

	c.region.Lock()
	c.destChangedLocked = true
	c.region.Unlock()

	c.maybeAutoOpenOnArrival(c.region.Snapshot())
	if got := c.region.Status(); got != carstate.Opening {
		t.Fatalf("Status = %q, want %q", got, carstate.Opening)
	}
}

func TestHandleModeEntry_NotifiesOnlyOnce(t *testing.T) {
	c := newTestController(t)

	// No dispatcher connection: sendFrame fails silently, but notifiedMode
	// bookkeeping must still only fire the transition once.
	c.handleModeEntry("individual")
	if c.notifiedMode != "individual" {
		t.Fatalf("notifiedMode = %q, want %q", c.notifiedMode, "individual")
	}

	c.notifiedMode = "individual" // simulate a second tick still in the mode
	c.handleModeEntry("individual")
	if c.notifiedMode != "individual" {
		t.Fatal("notifiedMode should remain stable across repeated entries")
	}
}
