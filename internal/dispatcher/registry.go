package dispatcher

import (
	"net"
	"sync"

	"github.com/vertico-systems/vertico/internal/carstate"
	"github.com/vertico-systems/vertico/internal/floor"
	"github.com/vertico-systems/vertico/internal/wireproto"
)

// carSlot is one entry in the dispatcher's fixed-size car array. The
// zero value is an empty, unused slot.
type carSlot struct {
	inUse        bool
	name         string
	lo, hi       int
	currentFloor int
	status       string
	queue        []int
	conn         net.Conn
	writeMu      *sync.Mutex
}

// pendingSend describes a FLOOR message that must be transmitted to a
// car once the registry mutex protecting this decision has been
// released: the car's socket mutex is never held across
// a registry-mutex-guarded decision, and vice versa.
type pendingSend struct {
	conn  net.Conn
	mu    *sync.Mutex
	floor int
}

func (p *pendingSend) send() {
	if p == nil {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	_ = frameWriteFloor(p.conn, p.floor)
}

// registry is the dispatcher's single-process, multi-thread car array,
// guarded by its own mutex, independent of any per-car socket mutex.
type registry struct {
	mu   sync.Mutex
	cars []carSlot
}

func newRegistry(capacity int) *registry {
	return &registry{cars: make([]carSlot, capacity)}
}

// register allocates the first free slot for a freshly accepted car
// connection. It reports false if the fixed-size car pool is full.
func (r *registry) register(reg wireproto.CarRegister, conn net.Conn) (int, bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	for i := range r.cars {
		if r.cars[i].inUse {
			continue
		}

		r.cars[i] = carSlot{
			inUse:        true,
			name:         reg.Name,
			lo:           reg.Lo,
			hi:           reg.Hi,
			currentFloor: reg.Lo,
			status:       "Unknown",
			conn:         conn,
			writeMu:      &sync.Mutex{},
		}

		return i, true
	}

	return -1, false
}

// unregister frees a car's slot. Called when the car's connection ends
// for any reason: EOF, INDIVIDUAL SERVICE, or EMERGENCY.
func (r *registry) unregister(slot int) {
	r.mu.Lock()
	defer r.mu.Unlock()

	r.cars[slot] = carSlot{}
}

// updateStatus applies a STATUS update from a registered car and, if
// the car had just arrived at the head of its stop queue with its door
// open or opening, pops that stop and reports the new head so the
// caller can send it a fresh FLOOR command.
func (r *registry) updateStatus(slot int, m wireproto.Status) *pendingSend {
	r.mu.Lock()
	defer r.mu.Unlock()

	c := &r.cars[slot]
	if !c.inUse {
		return nil
	}

	c.currentFloor = m.Current
	c.status = m.State

	if len(c.queue) == 0 || c.queue[0] != c.currentFloor {
		return nil
	}

	if m.State != carstate.Open && m.State != carstate.Opening {
		return nil
	}

	c.queue = c.queue[1:]

	if len(c.queue) == 0 {
		return nil
	}

	return &pendingSend{conn: c.conn, mu: c.writeMu, floor: c.queue[0]}
}

// CarSnapshot is a point-in-time, read-only view of one registered
// car's registry entry, used only by the monitor-only introspection
// surface, never by the wire protocol path.
type CarSnapshot struct {
	Name         string
	Lo, Hi       int
	CurrentFloor int
	Status       string
	Queue        []int
}

// snapshotAll returns a copy of every in-use car's registry entry.
func (r *registry) snapshotAll() []CarSnapshot {
	r.mu.Lock()
	defer r.mu.Unlock()

	out := make([]CarSnapshot, 0, len(r.cars))

	for i := range r.cars {
		c := &r.cars[i]
		if !c.inUse {
			continue
		}

		queue := make([]int, len(c.queue))
		copy(queue, c.queue)

		out = append(out, CarSnapshot{
			Name:         c.name,
			Lo:           c.lo,
			Hi:           c.hi,
			CurrentFloor: c.currentFloor,
			Status:       c.status,
			Queue:        queue,
		})
	}

	return out
}

// schedule assigns a pickup/drop-off request to a car: it picks
// the in-use car with the lowest insertion cost (ties broken by lowest
// resulting queue length) among cars that can reach both src and dst
// and whose resulting queue would not exceed queueDepth, commits the
// insertion against that car, and reports its name plus any FLOOR
// message the new queue head requires.
func (r *registry) schedule(src, dst, queueDepth int) (name string, pend *pendingSend, ok bool) {
	r.mu.Lock()
	defer r.mu.Unlock()

	bestIdx := -1
	bestCost := 0
	bestLen := 0

	for i := range r.cars {
		c := &r.cars[i]
		if !c.inUse {
			continue
		}

		if !floor.InRange(src, c.lo, c.hi) || !floor.InRange(dst, c.lo, c.hi) {
			continue
		}

		newQueue, cost, okInsert := planInsertion(c.currentFloor, c.status, c.queue, src, dst)
		if !okInsert || len(newQueue) > queueDepth {
			continue
		}

		finalLen := len(newQueue)

		if bestIdx == -1 || cost < bestCost || (cost == bestCost && finalLen < bestLen) {
			bestIdx, bestCost, bestLen = i, cost, finalLen
		}
	}

	if bestIdx == -1 {
		return "", nil, false
	}

	c := &r.cars[bestIdx]

	prevHead := -1
	hadHead := len(c.queue) > 0

	if hadHead {
		prevHead = c.queue[0]
	}

	newQueue, _, _ := planInsertion(c.currentFloor, c.status, c.queue, src, dst)
	c.queue = newQueue

	var p *pendingSend

	if len(c.queue) > 0 && (!hadHead || c.queue[0] != prevHead) {
		p = &pendingSend{conn: c.conn, mu: c.writeMu, floor: c.queue[0]}
	}

	return c.name, p, true
}
