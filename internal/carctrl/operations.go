package carctrl

import (
	"context"
	"time"

	"github.com/vertico-systems/vertico/internal/carstate"
	"github.com/vertico-systems/vertico/internal/floor"
	"github.com/vertico-systems/vertico/internal/wireproto"
)

// startDoorSpan begins tracing a door-open sequence; a no-op if one is
// already in flight (external actors may retrigger maybeStartDoorOpen
// before the prior sequence closes the span, so the nil check below
// keeps one span per sequence until endDoorSpan clears it).
func (c *Controller) startDoorSpan() {
	if c.doorSpan != nil {
		return
	}

	_, c.doorSpan = tracer.Start(context.Background(), "carctrl.doorOpenSequence")
}

func (c *Controller) endDoorSpan() {
	if c.doorSpan == nil {
		return
	}

	c.doorSpan.End()
	c.doorSpan = nil
}

// runOperationsTask is the controller's operations task: a tick-paced
// loop driving the safety heartbeat, door buttons, mode transitions and
// motion. Every field this task touches outside the region (phaseEnteredAt,
// notifiedMode) belongs to this single goroutine alone.
func (c *Controller) runOperationsTask(ctx context.Context) {
	ticker := time.NewTicker(c.cfg.Tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.tick()
		}
	}
}

func (c *Controller) tick() {
	c.advanceHeartbeat()

	snap := c.region.Snapshot()

	if snap.EmergencyMode == 1 {
		c.handleModeEntry("emergency")
		return
	}

	individual := snap.IndividualServiceMode == 1
	if individual {
		c.handleModeEntry("individual")
	} else {
		c.notifiedMode = ""
	}

	if c.stepDoor(snap) {
		return
	}

	if individual {
		c.maybeStartDoorOpen(snap, true)
	} else {
		c.maybeStartDoorOpen(snap, false)
		c.maybeAutoOpenOnArrival(snap)
	}

	snap = c.region.Snapshot()
	if snap.Status != carstate.Closed && snap.Status != carstate.Between {
		return
	}

	if individual {
		c.serviceIndividualMotion(snap)
	} else {
		c.serviceNormalMotion(snap)
	}
}

// advanceHeartbeat implements "every T, advance the safety heartbeat:
// 1 -> 2 -> 3 -> emergency if the safety monitor never refreshes it."
// The safety monitor resets safety_system to HeartbeatFresh on every
// wake; as long as it keeps doing so faster than this escalation, the
// value never climbs past HeartbeatStaleFirst from this car's own point
// of view.
func (c *Controller) advanceHeartbeat() {
	c.region.Lock()
	defer c.region.Unlock()

	if c.region.EmergencyMode() == 1 {
		return
	}

	switch cur := c.region.SafetySystem(); {
	case cur <= carstate.HeartbeatFresh:
		c.region.SetSafetySystem(carstate.HeartbeatStaleFirst)
	case cur == carstate.HeartbeatStaleFirst:
		c.region.SetSafetySystem(carstate.HeartbeatStaleSecond)
	default:
		c.region.SetEmergencyMode(1)
	}

	c.region.Broadcast()
}

// handleModeEntry sends the one-time notice for entering a special
// mode and closes the dispatcher socket, but only once per entry —
// notifiedMode is cleared again once the car leaves the mode (see tick).
func (c *Controller) handleModeEntry(mode string) {
	if c.notifiedMode == mode {
		return
	}

	c.notifiedMode = mode

	switch mode {
	case "individual":
		_ = c.sendFrame(wireproto.EncodeIndividualService())
	case "emergency":
		_ = c.sendFrame(wireproto.EncodeEmergency())
	}

	c.closeConn()
}

// stepDoor advances the door-open sequence's Opening/Open/Closing
// phases (the absolute-time door schedule, reinterpreted here as
// elapsed-time-since-phase-entry so it's immune to tick jitter or a
// ticker channel catching up after the Open phase's busy-poll wait).
// It reports whether the door is mid-sequence, in which case the
// caller skips button/motion handling for this tick.
func (c *Controller) stepDoor(snap carstate.Snapshot) bool {
	switch snap.Status {
	case carstate.Opening:
		if time.Since(c.phaseEnteredAt) < c.cfg.Tick {
			return true
		}

		c.region.Lock()
		if c.region.Status() == carstate.Opening {
			c.region.SetStatus(carstate.Open)
			c.region.Broadcast()
			c.phaseEnteredAt = time.Now()
		}
		c.region.Unlock()
		c.publishStatus()

		return true

	case carstate.Open:
		c.waitOutOpenPhase()
		return true

	case carstate.Closing:
		if time.Since(c.phaseEnteredAt) < c.cfg.Tick {
			return true
		}

		c.region.Lock()
		if c.region.Status() == carstate.Closing {
			c.region.SetStatus(carstate.Closed)
			c.region.Broadcast()
			c.phaseEnteredAt = time.Now()
		}
		c.region.Unlock()
		c.publishStatus()
		c.endDoorSpan()

		return true

	default:
		return false
	}
}

// waitOutOpenPhase busy-polls at short intervals for an early
// close_button press, otherwise holds the door open until t0+2T
// (one more tick past the time Open was entered). This is the one
// deliberate busy loop in the system.
func (c *Controller) waitOutOpenPhase() {
	deadline := c.phaseEnteredAt.Add(c.cfg.Tick)

	for {
		c.region.Lock()

		if c.region.Status() != carstate.Open {
			c.region.Unlock()
			return
		}

		if c.region.CloseButton() == 1 || !time.Now().Before(deadline) {
			c.region.SetStatus(carstate.Closing)
			c.region.SetCloseButton(0)
			c.region.Broadcast()
			c.phaseEnteredAt = time.Now()
			c.region.Unlock()
			c.publishStatus()

			return
		}

		c.region.Unlock()
		time.Sleep(doorPollInterval)
	}
}

// maybeStartDoorOpen handles the open_button priority rule: honoured
// from Closed at destination in any mode, or from Closed regardless of
// destination in individual-service mode.
func (c *Controller) maybeStartDoorOpen(snap carstate.Snapshot, individual bool) {
	if snap.Status != carstate.Closed || snap.OpenButton != 1 {
		return
	}

	if !individual && snap.CurrentFloor != snap.DestinationFloor {
		return
	}

	c.region.Lock()
	if c.region.Status() == carstate.Closed && c.region.OpenButton() == 1 {
		c.region.SetStatus(carstate.Opening)
		c.region.SetOpenButton(0)
		c.region.Broadcast()
		c.phaseEnteredAt = time.Now()
		c.startDoorSpan()
	}
	c.region.Unlock()
	c.publishStatus()
}

// maybeAutoOpenOnArrival handles the normal-mode case of the dispatcher
// re-ordering the car to a floor it is already parked at: the
// "destination changed" flag is the trigger, not a button.
func (c *Controller) maybeAutoOpenOnArrival(snap carstate.Snapshot) {
	if snap.Status != carstate.Closed || snap.CurrentFloor != snap.DestinationFloor {
		return
	}

	c.region.Lock()
	if !c.destChangedLocked {
		c.region.Unlock()
		return
	}

	c.destChangedLocked = false

	if c.region.Status() == carstate.Closed {
		c.region.SetStatus(carstate.Opening)
		c.region.Broadcast()
		c.phaseEnteredAt = time.Now()
		c.startDoorSpan()
	}
	c.region.Unlock()
	c.publishStatus()
}

// serviceNormalMotion handles normal-mode travel: transition to Between
// when destination differs from current, then step one floor per tick
// until arrival, at which point the door-open sequence starts directly
// (skipping a separate Closed tick: arrival itself is the door-open
// trigger).
func (c *Controller) serviceNormalMotion(snap carstate.Snapshot) {
	if snap.CurrentFloor == snap.DestinationFloor {
		return
	}

	switch snap.Status {
	case carstate.Closed:
		c.region.Lock()
		if c.region.Status() == carstate.Closed {
			c.region.SetStatus(carstate.Between)
			c.region.Broadcast()
			c.phaseEnteredAt = time.Now()
		}
		c.region.Unlock()
		c.publishStatus()

	case carstate.Between:
		c.stepBetween(snap, true)
	}
}

// serviceIndividualMotion handles individual-service travel: identical
// floor-by-floor stepping, but arrival lands as Closed with no
// automatic door-open, and an out-of-range destination is rejected by
// snapping it back to the current floor.
func (c *Controller) serviceIndividualMotion(snap carstate.Snapshot) {
	destN, destErr := floor.ToInt(snap.DestinationFloor)
	if destErr != nil || !floor.InRange(destN, c.cfg.Lo, c.cfg.Hi) {
		c.region.Lock()
		c.region.SetDestinationFloor(c.region.CurrentFloor())
		c.region.Broadcast()
		c.region.Unlock()

		return
	}

	if snap.CurrentFloor == snap.DestinationFloor {
		return
	}

	switch snap.Status {
	case carstate.Closed:
		c.region.Lock()
		if c.region.Status() == carstate.Closed {
			c.region.SetStatus(carstate.Between)
			c.region.Broadcast()
			c.phaseEnteredAt = time.Now()
		}
		c.region.Unlock()
		c.publishStatus()

	case carstate.Between:
		c.stepBetween(snap, false)
	}
}

// stepBetween advances one floor toward destination_floor if at least
// one tick has elapsed since the last step. On arrival in normal mode
// it opens directly into Opening; in individual-service mode it lands
// as Closed with no further action.
func (c *Controller) stepBetween(snap carstate.Snapshot, autoOpenOnArrival bool) {
	if time.Since(c.phaseEnteredAt) < c.cfg.Tick {
		return
	}

	cur, err := floor.ToInt(snap.CurrentFloor)
	if err != nil {
		return
	}

	dest, err := floor.ToInt(snap.DestinationFloor)
	if err != nil {
		return
	}

	next := stepToward(cur, dest)
	arrived := next == dest

	c.region.Lock()
	if c.region.Status() == carstate.Between {
		c.region.SetCurrentFloor(floor.FromInt(next))

		switch {
		case arrived && autoOpenOnArrival:
			c.region.SetStatus(carstate.Opening)
			c.startDoorSpan()
		case arrived:
			c.region.SetStatus(carstate.Closed)
		}

		c.region.Broadcast()
		c.phaseEnteredAt = time.Now()
	}
	c.region.Unlock()
	c.publishStatus()
}

// stepToward returns the next floor label one step from cur toward
// dest, skipping the non-existent floor 0.
func stepToward(cur, dest int) int {
	switch floor.Sign(cur, dest) {
	case floor.Up:
		if cur == -1 {
			return 1
		}

		return cur + 1
	case floor.Down:
		if cur == 1 {
			return -1
		}

		return cur - 1
	default:
		return cur
	}
}
