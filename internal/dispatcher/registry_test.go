package dispatcher

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertico-systems/vertico/internal/carstate"
	"github.com/vertico-systems/vertico/internal/wireproto"
)

func TestRegister_PoolExhaustion(t *testing.T) {
	r := newRegistry(2)

	_, ok := r.register(wireproto.CarRegister{Name: "A", Lo: 1, Hi: 5}, nil)
	require.True(t, ok)

	_, ok = r.register(wireproto.CarRegister{Name: "B", Lo: 1, Hi: 5}, nil)
	require.True(t, ok)

	_, ok = r.register(wireproto.CarRegister{Name: "C", Lo: 1, Hi: 5}, nil)
	assert.False(t, ok)
}

func TestUnregister_FreesSlotForReuse(t *testing.T) {
	r := newRegistry(1)

	slot, ok := r.register(wireproto.CarRegister{Name: "A", Lo: 1, Hi: 5}, nil)
	require.True(t, ok)

	r.unregister(slot)

	_, ok = r.register(wireproto.CarRegister{Name: "B", Lo: 1, Hi: 5}, nil)
	assert.True(t, ok)
}

// Three-car dispatch: Alpha [1,4], Beta [B3,1], Gamma [2,5], each idle at
// its lowest floor, served in the order a lobby full of passengers would
// produce.
func TestSchedule_ThreeCarDispatch(t *testing.T) {
	r := newRegistry(10)

	alpha, ok := r.register(wireproto.CarRegister{Name: "Alpha", Lo: 1, Hi: 4}, nil)
	require.True(t, ok)
	beta, ok := r.register(wireproto.CarRegister{Name: "Beta", Lo: -3, Hi: 1}, nil)
	require.True(t, ok)
	gamma, ok := r.register(wireproto.CarRegister{Name: "Gamma", Lo: 2, Hi: 5}, nil)
	require.True(t, ok)

	r.updateStatus(alpha, wireproto.Status{State: carstate.Closed, Current: 1, Destination: 1})
	r.updateStatus(beta, wireproto.Status{State: carstate.Closed, Current: -3, Destination: -3})
	r.updateStatus(gamma, wireproto.Status{State: carstate.Closed, Current: 2, Destination: 2})

	name, pend, ok := r.schedule(1, 3, 20)
	require.True(t, ok)
	assert.Equal(t, "Alpha", name)
	require.NotNil(t, pend)
	assert.Equal(t, 1, pend.floor)

	name, pend, ok = r.schedule(1, -2, 20)
	require.True(t, ok)
	assert.Equal(t, "Beta", name)
	require.NotNil(t, pend)
	assert.Equal(t, 1, pend.floor)

	name, pend, ok = r.schedule(3, 5, 20)
	require.True(t, ok)
	assert.Equal(t, "Gamma", name)
	require.NotNil(t, pend)
	assert.Equal(t, 3, pend.floor)

	_, _, ok = r.schedule(1, 5, 20)
	assert.False(t, ok, "no single car spans floors 1 through 5")

	_, _, ok = r.schedule(-3, 3, 20)
	assert.False(t, ok, "no single car spans B3 through 3")
}

// Queue insertion preserves direction: a car at 1 with queue [3,7] picks
// up 5→6 in-route, then an opposing 8→2 request lands at the end.
func TestSchedule_InsertionPreservesDirection(t *testing.T) {
	r := newRegistry(10)

	slot, ok := r.register(wireproto.CarRegister{Name: "Solo", Lo: 1, Hi: 10}, nil)
	require.True(t, ok)

	r.updateStatus(slot, wireproto.Status{State: carstate.Closed, Current: 1, Destination: 1})

	_, _, ok = r.schedule(3, 7, 20)
	require.True(t, ok)
	assert.Equal(t, []int{3, 7}, r.snapshotAll()[0].Queue)

	_, pend, ok := r.schedule(5, 6, 20)
	require.True(t, ok)
	assert.Nil(t, pend, "head is still 3, no FLOOR resend due")
	assert.Equal(t, []int{3, 5, 6, 7}, r.snapshotAll()[0].Queue)

	_, pend, ok = r.schedule(8, 2, 20)
	require.True(t, ok)
	assert.Nil(t, pend)
	assert.Equal(t, []int{3, 5, 6, 7, 8, 2}, r.snapshotAll()[0].Queue)
}

func TestSchedule_RespectsQueueDepth(t *testing.T) {
	r := newRegistry(10)

	slot, ok := r.register(wireproto.CarRegister{Name: "Full", Lo: 1, Hi: 10}, nil)
	require.True(t, ok)

	r.updateStatus(slot, wireproto.Status{State: carstate.Closed, Current: 1, Destination: 1})

	_, _, ok = r.schedule(3, 7, 4)
	require.True(t, ok)

	_, _, ok = r.schedule(8, 2, 4)
	require.True(t, ok)

	_, _, ok = r.schedule(9, 4, 4)
	assert.False(t, ok, "a fifth stop would exceed the depth-4 queue")
}

func TestSchedule_TieBreaksOnShorterFinalQueue(t *testing.T) {
	r := newRegistry(10)

	busy, ok := r.register(wireproto.CarRegister{Name: "Busy", Lo: 1, Hi: 10}, nil)
	require.True(t, ok)
	idle, ok := r.register(wireproto.CarRegister{Name: "Idle", Lo: 1, Hi: 10}, nil)
	require.True(t, ok)

	r.updateStatus(busy, wireproto.Status{State: carstate.Closed, Current: 1, Destination: 1})
	r.updateStatus(idle, wireproto.Status{State: carstate.Closed, Current: 1, Destination: 1})

	_, _, ok = r.schedule(8, 2, 20)
	require.True(t, ok)

	// Both cars would serve 2→5 at pickup cost 0 (in-route from floor 1);
	// the idle car wins on the shorter resulting queue.
	name, _, ok := r.schedule(2, 5, 20)
	require.True(t, ok)
	assert.Equal(t, "Idle", name)
}

func TestUpdateStatus_PopsHeadOnArrivalWithDoorOpening(t *testing.T) {
	r := newRegistry(10)

	slot, ok := r.register(wireproto.CarRegister{Name: "Pop", Lo: 1, Hi: 10}, nil)
	require.True(t, ok)

	r.updateStatus(slot, wireproto.Status{State: carstate.Closed, Current: 1, Destination: 1})

	_, _, ok = r.schedule(3, 7, 20)
	require.True(t, ok)

	// Arriving at 3 while Between must not pop; the door has to open first.
	pend := r.updateStatus(slot, wireproto.Status{State: carstate.Between, Current: 3, Destination: 3})
	assert.Nil(t, pend)
	assert.Equal(t, []int{3, 7}, r.snapshotAll()[0].Queue)

	pend = r.updateStatus(slot, wireproto.Status{State: carstate.Opening, Current: 3, Destination: 3})
	require.NotNil(t, pend)
	assert.Equal(t, 7, pend.floor)
	assert.Equal(t, []int{7}, r.snapshotAll()[0].Queue)

	// Popping the final stop leaves nothing to send.
	pend = r.updateStatus(slot, wireproto.Status{State: carstate.Open, Current: 7, Destination: 7})
	assert.Nil(t, pend)
	assert.Empty(t, r.snapshotAll()[0].Queue)
}
