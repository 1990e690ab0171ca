package dispatcher

import (
	"github.com/vertico-systems/vertico/internal/floor"
)

// planInsertion is the insertion-cost routine: given a
// car's current floor, its existing stop queue, and a new pickup/drop-off
// pair, it returns the queue that would result from inserting the
// request in-route (or appended, if no in-route slot exists) along with
// the pickup index, which doubles as the request's cost (lower index,
// earlier service).
//
// status is accepted but does not change the walk's starting point: a
// car that is Closing or Between is still physically traversing the leg
// from its last-published current_floor to its queue head, and that leg
// is itself a route segment like any other, eligible to carry an
// in-passing pickup. Substituting the queue head for current there would
// manufacture a zero-length first segment and silently drop that leg
// from consideration; the commitment Closing/Between implies (the car
// won't reverse before reaching its head) already falls out of the
// ordinary per-segment direction check below, so no special case is
// needed.
func planInsertion(current int, status string, queue []int, src, dst int) (newQueue []int, pickupIndex int, ok bool) {
	reqDir := floor.Sign(src, dst)
	if reqDir == floor.Idle {
		return nil, 0, false
	}

	pts := make([]int, 0, len(queue)+1)
	pts = append(pts, current)
	pts = append(pts, queue...)

	pickupIdx := -1

	for i := 0; i < len(pts)-1; i++ {
		a, b := pts[i], pts[i+1]
		if floor.Sign(a, b) != reqDir {
			continue
		}

		if inSegment(reqDir, a, b, src) {
			pickupIdx = i
			break
		}
	}

	// Second strategy: the request extends the car's current direction
	// of travel past the end of its queue, before any reversal.
	if pickupIdx == -1 && len(pts) >= 2 {
		a, b := pts[len(pts)-2], pts[len(pts)-1]
		if floor.Sign(a, b) == reqDir && extendsPast(reqDir, b, src) {
			pickupIdx = len(pts) - 1
		}
	}

	if pickupIdx == -1 {
		pickupIdx = len(queue)
	}

	withPickup := make([]int, 0, len(queue)+1)
	withPickup = append(withPickup, queue[:pickupIdx]...)
	withPickup = append(withPickup, src)
	withPickup = append(withPickup, queue[pickupIdx:]...)

	dropIdx := len(withPickup)

	for i := pickupIdx + 1; i < len(withPickup); i++ {
		endpoint := withPickup[i]
		if (reqDir == floor.Up && endpoint >= dst) || (reqDir == floor.Down && endpoint <= dst) {
			dropIdx = i
			break
		}
	}

	dup := false

	for _, v := range withPickup {
		if v == dst {
			dup = true
			break
		}
	}

	if dup {
		return withPickup, pickupIdx, true
	}

	final := make([]int, 0, len(withPickup)+1)
	final = append(final, withPickup[:dropIdx]...)
	final = append(final, dst)
	final = append(final, withPickup[dropIdx:]...)

	return final, pickupIdx, true
}

// inSegment reports whether src lies within the segment (a,b), with
// per-direction inclusivity: up means a <= src < b,
// down means a >= src > b.
func inSegment(dir floor.Direction, a, b, src int) bool {
	if dir == floor.Up {
		return a <= src && src < b
	}

	return a >= src && src > b
}

// extendsPast reports whether src continues past endpoint b in dir's
// direction of travel, used by the current-direction's-last-segment
// insertion strategy.
func extendsPast(dir floor.Direction, b, src int) bool {
	if dir == floor.Up {
		return src >= b
	}

	return src <= b
}
