// Package dispatcher implements the central dispatcher: a
// single TCP listener that registers cars, relays their STATUS updates,
// answers call-pad requests by scheduling against a direction-aware
// insertion-cost routine, and keeps each car's stop queue moving.
package dispatcher

import (
	"context"
	"fmt"
	"log/slog"
	"net"

	"github.com/joeycumines/go-catrate"

	"github.com/vertico-systems/vertico/internal/frame"
	"github.com/vertico-systems/vertico/internal/observability"
	"github.com/vertico-systems/vertico/internal/wireproto"
)

// tracer names the span-producing operations worth seeing in a trace
// waterfall: the accept loop's per-connection handler
// and the scheduler's insertion decision.
var tracer = observability.Tracer("vertico/dispatcher")

// Config configures a Dispatcher.
type Config struct {
	// ListenAddr is the fixed TCP address to accept connections on.
	ListenAddr string

	// CarCapacity bounds the fixed-size car array.
	CarCapacity int

	// ConnCapacity bounds total simultaneous connections, cars and call
	// pads combined.
	ConnCapacity int

	// QueueDepth bounds any single car's stop queue.
	QueueDepth int

	// RateLimiter, if non-nil, is consulted per remote IP on every
	// accepted connection before a connection slot is spent on it.
	RateLimiter *catrate.Limiter

	Logger *slog.Logger
}

// Dispatcher is the central dispatcher process's server loop.
type Dispatcher struct {
	cfg       Config
	registry  *registry
	connSlots chan struct{}
}

// New constructs a Dispatcher, applying the default capacities to
// any unset field.
func New(cfg Config) *Dispatcher {
	if cfg.CarCapacity <= 0 {
		cfg.CarCapacity = 10
	}

	if cfg.ConnCapacity <= 0 {
		cfg.ConnCapacity = 30
	}

	if cfg.QueueDepth <= 0 {
		cfg.QueueDepth = 20
	}

	return &Dispatcher{
		cfg:       cfg,
		registry:  newRegistry(cfg.CarCapacity),
		connSlots: make(chan struct{}, cfg.ConnCapacity),
	}
}

func (d *Dispatcher) logger() *slog.Logger {
	if d.cfg.Logger != nil {
		return d.cfg.Logger
	}

	return slog.Default()
}

// Run listens on cfg.ListenAddr and serves connections until ctx is
// cancelled, at which point the listener is closed and Run returns nil.
func (d *Dispatcher) Run(ctx context.Context) error {
	var lc net.ListenConfig

	ln, err := lc.Listen(ctx, "tcp", d.cfg.ListenAddr)
	if err != nil {
		return fmt.Errorf("dispatcher: listen on %s: %w", d.cfg.ListenAddr, err)
	}

	go func() {
		<-ctx.Done()
		_ = ln.Close()
	}()

	for {
		conn, err := ln.Accept()
		if err != nil {
			if ctx.Err() != nil {
				return nil
			}

			d.logger().Warn("accept failed", "error", err)

			continue
		}

		if !d.allowConn(conn) {
			_ = conn.Close()
			continue
		}

		select {
		case d.connSlots <- struct{}{}:
			go d.handleConn(conn)
		default:
			_ = conn.Close() // connection pool exhausted
		}
	}
}

// allowConn consults the per-remote-IP rate limiter, if configured.
func (d *Dispatcher) allowConn(conn net.Conn) bool {
	if d.cfg.RateLimiter == nil {
		return true
	}

	host, _, err := net.SplitHostPort(conn.RemoteAddr().String())
	if err != nil {
		host = conn.RemoteAddr().String()
	}

	_, ok := d.cfg.RateLimiter.Allow(host)

	return ok
}

func (d *Dispatcher) handleConn(conn net.Conn) {
	ctx, span := tracer.Start(context.Background(), "dispatcher.handleConn")
	defer span.End()

	defer func() {
		<-d.connSlots
		_ = conn.Close()
	}()

	payload, err := frame.Read(conn)
	if err != nil {
		return
	}

	msg, err := wireproto.ParseInitial(payload)
	if err != nil {
		return
	}

	switch m := msg.(type) {
	case wireproto.CarRegister:
		d.serveCar(conn, m)
	case wireproto.Call:
		d.serveCall(ctx, conn, m)
	}
}

// serveCar registers a newly connected car and services its framed
// messages until the connection ends, a special mode notice arrives,
// or a malformed message is seen.
func (d *Dispatcher) serveCar(conn net.Conn, reg wireproto.CarRegister) {
	slot, ok := d.registry.register(reg, conn)
	if !ok {
		d.logger().Warn("car pool exhausted", "name", reg.Name)
		return
	}

	defer d.registry.unregister(slot)

	for {
		payload, err := frame.Read(conn)
		if err != nil {
			return
		}

		msg, err := wireproto.ParseCarMessage(payload)
		if err != nil {
			return
		}

		switch m := msg.(type) {
		case wireproto.Status:
			d.registry.updateStatus(slot, m).send()
		case wireproto.IndividualService, wireproto.Emergency:
			return
		}
	}
}

// serveCall answers a one-shot call-pad request and closes.
func (d *Dispatcher) serveCall(ctx context.Context, conn net.Conn, call wireproto.Call) {
	_, span := tracer.Start(ctx, "dispatcher.schedule")
	defer span.End()

	name, pend, ok := d.registry.schedule(call.Src, call.Dst, d.cfg.QueueDepth)
	if !ok {
		_ = frame.Write(conn, wireproto.EncodeUnavailable())
		return
	}

	if err := frame.Write(conn, wireproto.EncodeCarAssigned(wireproto.CarAssigned{Name: name})); err != nil {
		return
	}

	pend.send()
}

// frameWriteFloor writes a FLOOR <n> message. Every floor value reaching
// here already passed floor.InRange against a registered car's [lo,hi]
// when its stop was queued, so FromInt's panic-on-out-of-range path is
// unreachable in practice.
func frameWriteFloor(conn net.Conn, n int) error {
	return frame.Write(conn, wireproto.EncodeFloor(wireproto.FloorCmd{N: n}))
}
