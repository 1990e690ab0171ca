package carstate

import (
	"testing"

	"github.com/vertico-systems/vertico/internal/floor"
)

func validSnapshot() Snapshot {
	return Snapshot{
		CurrentFloor:     "1",
		DestinationFloor: "1",
		Status:           Closed,
		SafetySystem:     HeartbeatFresh,
	}
}

func TestValidStatus(t *testing.T) {
	for _, s := range []string{Opening, Open, Closing, Closed, Between} {
		if !ValidStatus(s) {
			t.Errorf("ValidStatus(%q) = false", s)
		}
	}

	for _, s := range []string{"", "open", "Unknown", "Closed "} {
		if ValidStatus(s) {
			t.Errorf("ValidStatus(%q) = true", s)
		}
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Snapshot)
		wantOK bool
	}{
		{"defaults", func(s *Snapshot) {}, true},
		{"basement floors", func(s *Snapshot) {
			s.CurrentFloor = "B99"
			s.DestinationFloor = "999"
		}, true},
		{"obstruction while opening", func(s *Snapshot) {
			s.Status = Opening
			s.DoorObstruction = 1
		}, true},
		{"bad current floor", func(s *Snapshot) { s.CurrentFloor = "0" }, false},
		{"bad destination floor", func(s *Snapshot) { s.DestinationFloor = "B0" }, false},
		{"bad status", func(s *Snapshot) { s.Status = "Ajar" }, false},
		{"boolean out of range", func(s *Snapshot) { s.Overload = 2 }, false},
		{"obstruction while closed", func(s *Snapshot) { s.DoorObstruction = 1 }, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			snap := validSnapshot()
			tt.mutate(&snap)

			err := Validate(snap, floor.Validate)
			if tt.wantOK && err != nil {
				t.Fatalf("Validate: unexpected error %v", err)
			}

			if !tt.wantOK && err == nil {
				t.Fatal("Validate: expected an error")
			}
		})
	}
}
