package dispatcher

import (
	"net"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/vertico-systems/vertico/internal/carstate"
	"github.com/vertico-systems/vertico/internal/frame"
	"github.com/vertico-systems/vertico/internal/wireproto"
)

// spawnConn hands one end of a pipe to the dispatcher's per-connection
// worker, charging a connection slot the way Run's accept loop would.
func spawnConn(t *testing.T, d *Dispatcher) net.Conn {
	t.Helper()

	client, server := net.Pipe()

	select {
	case d.connSlots <- struct{}{}:
	default:
		t.Fatal("connection pool unexpectedly full")
	}

	go d.handleConn(server)

	t.Cleanup(func() { _ = client.Close() })

	return client
}

// waitForCar polls the registry until a car with the given name and
// status appears, or fails the test.
func waitForCar(t *testing.T, d *Dispatcher, name, status string) {
	t.Helper()

	deadline := time.Now().Add(2 * time.Second)

	for time.Now().Before(deadline) {
		for _, c := range d.Snapshot() {
			if c.Name == name && c.Status == status {
				return
			}
		}

		time.Sleep(2 * time.Millisecond)
	}

	t.Fatalf("car %s never reached status %s", name, status)
}

func TestHandleConn_CarRegistrationAndCall(t *testing.T) {
	d := New(Config{})

	car := spawnConn(t, d)

	require.NoError(t, frame.Write(car, wireproto.EncodeCarRegister(wireproto.CarRegister{Name: "Alpha", Lo: 1, Hi: 4})))
	require.NoError(t, frame.Write(car, wireproto.EncodeStatus(wireproto.Status{State: carstate.Closed, Current: 1, Destination: 1})))

	waitForCar(t, d, "Alpha", carstate.Closed)

	// The car must consume its FLOOR command for the call handler to
	// complete: net.Pipe writes block until the peer reads.
	floorCh := make(chan wireproto.FloorCmd, 1)

	go func() {
		payload, err := frame.Read(car)
		if err != nil {
			return
		}

		cmd, err := wireproto.ParseFloorCmd(payload)
		if err != nil {
			return
		}

		floorCh <- cmd
	}()

	pad := spawnConn(t, d)

	require.NoError(t, frame.Write(pad, wireproto.EncodeCall(wireproto.Call{Src: 1, Dst: 3})))

	reply, err := frame.Read(pad)
	require.NoError(t, err)

	parsed, err := wireproto.ParseCallReply(reply)
	require.NoError(t, err)

	assigned, ok := parsed.(wireproto.CarAssigned)
	require.True(t, ok, "expected a CAR reply, got %T", parsed)
	assert.Equal(t, "Alpha", assigned.Name)

	select {
	case cmd := <-floorCh:
		assert.Equal(t, 1, cmd.N)
	case <-time.After(2 * time.Second):
		t.Fatal("car never received its FLOOR command")
	}
}

func TestHandleConn_CallWithNoCarsIsUnavailable(t *testing.T) {
	d := New(Config{})

	pad := spawnConn(t, d)

	require.NoError(t, frame.Write(pad, wireproto.EncodeCall(wireproto.Call{Src: 1, Dst: 3})))

	reply, err := frame.Read(pad)
	require.NoError(t, err)

	parsed, err := wireproto.ParseCallReply(reply)
	require.NoError(t, err)
	assert.IsType(t, wireproto.Unavailable{}, parsed)
}

func TestHandleConn_MalformedInitialFrameCloses(t *testing.T) {
	d := New(Config{})

	conn := spawnConn(t, d)

	require.NoError(t, frame.Write(conn, []byte("HELLO world")))

	_, err := frame.Read(conn)
	assert.ErrorIs(t, err, frame.ErrClosed)
}

func TestHandleConn_CarDeregistersOnEmergency(t *testing.T) {
	d := New(Config{})

	car := spawnConn(t, d)

	require.NoError(t, frame.Write(car, wireproto.EncodeCarRegister(wireproto.CarRegister{Name: "Beta", Lo: 1, Hi: 9})))
	require.NoError(t, frame.Write(car, wireproto.EncodeStatus(wireproto.Status{State: carstate.Closed, Current: 1, Destination: 1})))

	waitForCar(t, d, "Beta", carstate.Closed)

	require.NoError(t, frame.Write(car, wireproto.EncodeEmergency()))

	deadline := time.Now().Add(2 * time.Second)

	for time.Now().Before(deadline) {
		if len(d.Snapshot()) == 0 {
			return
		}

		time.Sleep(2 * time.Millisecond)
	}

	t.Fatal("car was not deregistered after EMERGENCY")
}
