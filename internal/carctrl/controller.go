// Package carctrl implements the per-car controller: two
// cooperating tasks sharing a car's carstate.Region and a private mutex
// guarding the dispatcher socket. The dispatcher task owns the TCP link
// to the central dispatcher (registration, FLOOR receipt, STATUS push);
// the operations task drives the door and motion state machine in real
// time against an implementation-chosen tick.
package carctrl

import (
	"context"
	"encoding/binary"
	"errors"
	"io"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/vertico-systems/vertico/internal/carstate"
	"github.com/vertico-systems/vertico/internal/floor"
	"github.com/vertico-systems/vertico/internal/frame"
	"github.com/vertico-systems/vertico/internal/observability"
	"github.com/vertico-systems/vertico/internal/wireproto"

	"go.opentelemetry.io/otel/trace"
)

// tracer names the operations worth seeing in a trace waterfall:
// reconnect attempts and the door-open sequence.
var tracer = observability.Tracer("vertico/carctrl")

// errPollTimeout signals that a poll attempt simply had nothing to read
// within its deadline; it is never surfaced to callers of Run.
var errPollTimeout = errors.New("carctrl: poll timeout")

// doorPollInterval is the short-interval busy-poll used only while
// waiting out the door's Open phase for an early close_button press.
const doorPollInterval = 5 * time.Millisecond

// Config configures a Controller.
type Config struct {
	// Name, Lo, Hi identify this car exactly as registered with the
	// dispatcher: "CAR <name> <lo> <hi>".
	Name   string
	Lo, Hi int

	// DispatcherAddr is the dispatcher's TCP address.
	DispatcherAddr string

	// Tick is the operations task's real-time step T (the "delay" CLI
	// argument), and also the dispatcher task's socket poll timeout.
	Tick time.Duration

	// DialTimeout bounds each dispatcher reconnect attempt.
	DialTimeout time.Duration

	Logger *slog.Logger
}

// Controller drives one car's dispatcher link and door/motion state
// machine against a shared carstate.Region.
type Controller struct {
	cfg    Config
	region *carstate.Region

	connMu sync.Mutex
	conn   net.Conn

	// phaseEnteredAt and notifiedMode are touched only by the operations
	// task goroutine; see operations.go.
	phaseEnteredAt time.Time
	notifiedMode   string

	// destChangedLocked records that the dispatcher has ordered a new
	// destination. It is set by the dispatcher task on a FLOOR receipt and
	// cleared by the operations task; both sides only ever touch it
	// while holding the region mutex, piggy-backing on that lock rather
	// than adding a second one.
	destChangedLocked bool

	// doorSpan traces one full door-open sequence end to end (Opening
	// through Closed), touched only by the operations task goroutine.
	doorSpan trace.Span
}

// New constructs a Controller for an already-mapped region.
func New(cfg Config, region *carstate.Region) *Controller {
	if cfg.Tick <= 0 {
		cfg.Tick = 100 * time.Millisecond
	}

	if cfg.DialTimeout <= 0 {
		cfg.DialTimeout = 5 * time.Second
	}

	return &Controller{cfg: cfg, region: region}
}

func (c *Controller) logger() *slog.Logger {
	if c.cfg.Logger != nil {
		return c.cfg.Logger
	}

	return slog.Default()
}

// Run starts the dispatcher and operations tasks and blocks until ctx
// is cancelled and both have returned.
func (c *Controller) Run(ctx context.Context) {
	var wg sync.WaitGroup
	wg.Add(2)

	// Shutdown broadcast: the dispatcher task parks in Wait while the
	// heartbeat is stale or a special mode holds, and once the operations
	// task stops ticking nothing else would ever wake it.
	go func() {
		<-ctx.Done()

		c.region.Lock()
		c.region.Broadcast()
		c.region.Unlock()
	}()

	go func() {
		defer wg.Done()
		c.runDispatcherTask(ctx)
	}()

	go func() {
		defer wg.Done()
		c.runOperationsTask(ctx)
	}()

	wg.Wait()
	c.closeConn()
}

// runDispatcherTask is the controller's dispatcher-link task loop.
func (c *Controller) runDispatcherTask(ctx context.Context) {
	for ctx.Err() == nil {
		c.region.Lock()
		for c.dispatcherShouldWaitLocked() && ctx.Err() == nil {
			c.region.Wait()
		}
		c.region.Unlock()

		if ctx.Err() != nil {
			return
		}

		if !c.hasConn() {
			if err := c.connectDispatcher(ctx); err != nil {
				c.logger().Warn("dispatcher connect failed", "car", c.cfg.Name, "error", err)

				select {
				case <-ctx.Done():
					return
				case <-time.After(c.cfg.Tick):
				}

				continue
			}
		}

		c.pollDispatcher()
	}
}

// dispatcherShouldWaitLocked reports whether the dispatcher task should
// block on the condition variable: stale heartbeat or either special
// mode. Caller must hold the region lock.
func (c *Controller) dispatcherShouldWaitLocked() bool {
	return c.region.SafetySystem() != carstate.HeartbeatFresh ||
		c.region.IndividualServiceMode() == 1 ||
		c.region.EmergencyMode() == 1
}

func (c *Controller) connectDispatcher(ctx context.Context) error {
	ctx, span := tracer.Start(ctx, "carctrl.reconnect")
	defer span.End()

	dialer := net.Dialer{Timeout: c.cfg.DialTimeout}

	conn, err := dialer.DialContext(ctx, "tcp", c.cfg.DispatcherAddr)
	if err != nil {
		return err
	}

	c.setConn(conn)

	if err := c.sendFrame(wireproto.EncodeCarRegister(wireproto.CarRegister{
		Name: c.cfg.Name,
		Lo:   c.cfg.Lo,
		Hi:   c.cfg.Hi,
	})); err != nil {
		c.closeConn()
		return err
	}

	c.publishStatus()

	return nil
}

// pollDispatcher performs one poll-and-handle cycle with a deadline
// equal to the configured tick.
func (c *Controller) pollDispatcher() {
	conn := c.getConn()
	if conn == nil {
		return
	}

	payload, err := readFrameTimeout(conn, c.cfg.Tick)
	if err != nil {
		if errors.Is(err, errPollTimeout) {
			return
		}

		c.closeConn()

		return
	}

	cmd, err := wireproto.ParseFloorCmd(payload)
	if err != nil || !floor.InRange(cmd.N, c.cfg.Lo, c.cfg.Hi) {
		c.closeConn()
		return
	}

	c.region.Lock()
	c.region.SetDestinationFloor(floor.FromInt(cmd.N))
	c.destChangedLocked = true
	c.region.Broadcast()
	c.region.Unlock()
}

// readFrameTimeout reads one framed message from conn, treating a read
// deadline expiring before any bytes of the length prefix arrive as
// errPollTimeout rather than a closed stream. frame.Read cannot make
// this distinction itself (it collapses every read error, including a
// deadline, into ErrClosed), so the length prefix is read here directly
// and only the (short, already-committed) payload read is delegated.
func readFrameTimeout(conn net.Conn, timeout time.Duration) ([]byte, error) {
	if err := conn.SetReadDeadline(time.Now().Add(timeout)); err != nil {
		return nil, err
	}

	var lenBuf [2]byte

	if _, err := io.ReadFull(conn, lenBuf[:]); err != nil {
		var netErr net.Error
		if errors.As(err, &netErr) && netErr.Timeout() {
			return nil, errPollTimeout
		}

		return nil, frame.ErrClosed
	}

	n := binary.BigEndian.Uint16(lenBuf[:])
	if n == 0 {
		return nil, nil
	}

	// The length prefix is already in hand, so the payload is expected
	// promptly; give it a fixed grace period distinct from the outer
	// poll cadence.
	if err := conn.SetReadDeadline(time.Now().Add(5 * time.Second)); err != nil {
		return nil, err
	}

	payload := make([]byte, n)
	if _, err := io.ReadFull(conn, payload); err != nil {
		return nil, frame.ErrClosed
	}

	return payload, nil
}

func (c *Controller) hasConn() bool {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	return c.conn != nil
}

func (c *Controller) getConn() net.Conn {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	return c.conn
}

func (c *Controller) setConn(conn net.Conn) {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	c.conn = conn
}

func (c *Controller) closeConn() {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn != nil {
		_ = c.conn.Close()
		c.conn = nil
	}
}

// sendFrame writes payload to the dispatcher socket under the
// connection mutex, closing and forgetting the connection on error.
func (c *Controller) sendFrame(payload []byte) error {
	c.connMu.Lock()
	defer c.connMu.Unlock()

	if c.conn == nil {
		return frame.ErrClosed
	}

	if err := frame.Write(c.conn, payload); err != nil {
		_ = c.conn.Close()
		c.conn = nil

		return err
	}

	return nil
}

// publishStatus sends a STATUS update built from the region's current
// snapshot. Errors are swallowed: the next reconnect will catch up.
func (c *Controller) publishStatus() {
	snap := c.region.Snapshot()

	cur, err := floor.ToInt(snap.CurrentFloor)
	if err != nil {
		return
	}

	dest, err := floor.ToInt(snap.DestinationFloor)
	if err != nil {
		return
	}

	_ = c.sendFrame(wireproto.EncodeStatus(wireproto.Status{
		State:       snap.Status,
		Current:     cur,
		Destination: dest,
	}))
}
