package fleetconfig

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoad_MissingFileIsNotError(t *testing.T) {
	f, err := Load(filepath.Join(t.TempDir(), "does-not-exist.yaml"))
	if err != nil {
		t.Fatalf("Load returned error for missing file: %v", err)
	}

	if len(f.Cars) != 0 {
		t.Errorf("expected empty fleet, got %d cars", len(f.Cars))
	}
}

func TestLoad_ParsesCars(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fleet.yaml")

	contents := "cars:\n  - name: A\n    lo: \"B2\"\n    hi: \"10\"\n  - name: B\n    lo: \"1\"\n    hi: \"20\"\n"
	if err := os.WriteFile(path, []byte(contents), 0o644); err != nil {
		t.Fatalf("failed to write fixture: %v", err)
	}

	f, err := Load(path)
	if err != nil {
		t.Fatalf("Load returned error: %v", err)
	}

	if len(f.Cars) != 2 {
		t.Fatalf("expected 2 cars, got %d", len(f.Cars))
	}

	car, ok := f.Lookup("A")
	if !ok {
		t.Fatal("expected to find car A")
	}

	if car.Lo != "B2" || car.Hi != "10" {
		t.Errorf("car A = %+v, want lo=B2 hi=10", car)
	}

	if _, ok := f.Lookup("missing"); ok {
		t.Error("Lookup(\"missing\") reported found")
	}
}

func TestMissing(t *testing.T) {
	f := &Fleet{Cars: []Car{{Name: "A"}, {Name: "B"}, {Name: "C"}}}

	missing := f.Missing(map[string]bool{"A": true})

	if len(missing) != 2 || missing[0] != "B" || missing[1] != "C" {
		t.Errorf("Missing = %v, want [B C]", missing)
	}
}

func TestMissing_NilFleet(t *testing.T) {
	var f *Fleet

	if missing := f.Missing(map[string]bool{"A": true}); missing != nil {
		t.Errorf("Missing on nil fleet = %v, want nil", missing)
	}
}
