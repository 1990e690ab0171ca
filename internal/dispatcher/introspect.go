package dispatcher

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
)

// Snapshot returns a read-only view of every registered car, for
// verticoctl monitor/snapshot. It never influences
// scheduling or wire behavior.
func (d *Dispatcher) Snapshot() []CarSnapshot {
	return d.registry.snapshotAll()
}

// ServeIntrospection runs an HTTP server on addr exposing GET /cars as a
// JSON array of CarSnapshot, purely for verticoctl's dashboard and
// postmortem dump. It is additive tooling, not part of the framed wire
// grammar: a separate listener, a separate port, JSON instead of the
// framed text protocol. Returns when ctx is cancelled.
func (d *Dispatcher) ServeIntrospection(ctx context.Context, addr string) error {
	if addr == "" {
		<-ctx.Done()
		return nil
	}

	mux := http.NewServeMux()
	mux.HandleFunc("/cars", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_ = json.NewEncoder(w).Encode(d.Snapshot())
	})

	srv := &http.Server{Addr: addr, Handler: mux}

	errCh := make(chan error, 1)

	go func() {
		errCh <- srv.ListenAndServe()
	}()

	select {
	case <-ctx.Done():
		_ = srv.Close()
		<-errCh

		return nil
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}

		return err
	}
}
