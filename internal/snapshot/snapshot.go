// Package snapshot implements verticoctl snapshot's postmortem dump: the
// dispatcher's introspection view serialized as TOML via
// github.com/pelletier/go-toml/v2, for pasting into an incident writeup
// or diffing across two points in time.
package snapshot

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/pelletier/go-toml/v2"
)

// Car is one car's entry in a snapshot dump.
type Car struct {
	Name         string `toml:"name"`
	Lo           int    `toml:"lo"`
	Hi           int    `toml:"hi"`
	CurrentFloor int    `toml:"current_floor"`
	Status       string `toml:"status"`
	Queue        []int  `toml:"queue"`
}

// Fleet is the full document written by verticoctl snapshot.
type Fleet struct {
	TakenAt string `toml:"taken_at"`
	Cars    []Car  `toml:"car"`
}

// Fetch pulls the current fleet view from a dispatcherd introspection
// endpoint (internal/dispatcher's ServeIntrospection). takenAt is passed
// in rather than computed here, since callers in this repo never call
// time.Now directly inside library code that might run under test.
func Fetch(endpoint string, takenAt time.Time) (Fleet, error) {
	client := &http.Client{Timeout: 5 * time.Second}

	resp, err := client.Get(strings.TrimRight(endpoint, "/") + "/cars")
	if err != nil {
		return Fleet{}, fmt.Errorf("snapshot: fetch %s: %w", endpoint, err)
	}
	defer resp.Body.Close()

	var cars []Car
	if err := json.NewDecoder(resp.Body).Decode(&cars); err != nil {
		return Fleet{}, fmt.Errorf("snapshot: decode response from %s: %w", endpoint, err)
	}

	return Fleet{TakenAt: takenAt.UTC().Format(time.RFC3339), Cars: cars}, nil
}

// Write encodes f as TOML to w.
func Write(w io.Writer, f Fleet) error {
	enc := toml.NewEncoder(w)
	if err := enc.Encode(f); err != nil {
		return fmt.Errorf("snapshot: encode toml: %w", err)
	}

	return nil
}
