// Package fleetconfig loads the optional fleet.yaml topology hint
// file: a human-edited list of expected car names and
// floor ranges used purely for operator visibility (verticoctl monitor's
// legend, verticoctl doctor's warning about expected cars it did not
// check). Cars always
// self-register with the dispatcher regardless of what
// this file says; it never gates registration.
package fleetconfig

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Car is one expected car entry in fleet.yaml.
type Car struct {
	Name string `yaml:"name"`
	Lo   string `yaml:"lo"`
	Hi   string `yaml:"hi"`
}

// Fleet is the parsed contents of fleet.yaml.
type Fleet struct {
	Cars []Car `yaml:"cars"`
}

// Load reads and parses the fleet topology file at path. A missing file
// is not an error: it returns an empty Fleet, since this file is purely
// optional operator metadata.
func Load(path string) (*Fleet, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		if os.IsNotExist(err) {
			return &Fleet{}, nil
		}

		return nil, fmt.Errorf("fleetconfig: read %s: %w", path, err)
	}

	var f Fleet
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, fmt.Errorf("fleetconfig: parse %s: %w", path, err)
	}

	return &f, nil
}

// Lookup finds a named car's expected entry, if any.
func (f *Fleet) Lookup(name string) (Car, bool) {
	if f == nil {
		return Car{}, false
	}

	for _, c := range f.Cars {
		if c.Name == name {
			return c, true
		}
	}

	return Car{}, false
}

// Missing returns the expected car names in f that are not present among
// registered, used by verticoctl monitor's "not yet registered" legend
// and verticoctl doctor's unchecked-cars warning.
func (f *Fleet) Missing(registered map[string]bool) []string {
	if f == nil {
		return nil
	}

	var missing []string

	for _, c := range f.Cars {
		if !registered[c.Name] {
			missing = append(missing, c.Name)
		}
	}

	return missing
}
