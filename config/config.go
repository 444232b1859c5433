// Package config loads the scanner's operational parameters from a
// YAML file into a frozen params.Model, playing the role
// samoyed/src/config.go gives its parsed, pre-validation structures:
// a plain decoded shape that is then turned into immutable runtime
// configuration.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/hexastorm/core/params"
)

// File is the on-disk shape of a scanner config file, decoded directly
// by yaml.v3 before validation. Field names match the parameter names
// in spec.md §3 rather than Go convention, so config files read the
// way the spec names things.
type File struct {
	RPM          float64 `yaml:"rpm"`
	StartFrac    float64 `yaml:"start_frac"`
	EndFrac      float64 `yaml:"end_frac"`
	SpinupS      float64 `yaml:"spinup_s"`
	StableS      float64 `yaml:"stable_s"`
	Facets       int     `yaml:"facets"`
	Direction    string  `yaml:"direction"` // "forward" or "backward"
	SingleLine   bool    `yaml:"single_line"`
	SingleFacet  bool    `yaml:"single_facet"`
	FMotorHz     float64 `yaml:"f_motor_hz"`
	TicksMove    uint64  `yaml:"ticks_move"`
	Motors       int     `yaml:"motors"`
	BitsPerLine  uint64  `yaml:"bits_per_line"`
}

// Load reads path, decodes it as a File, and freezes it into a
// validated params.Model via params.New.
func Load(path string) (params.Model, error) {
	var data, err = os.ReadFile(path)
	if err != nil {
		return params.Model{}, fmt.Errorf("config: read %s: %w", path, err)
	}

	var f File
	if err := yaml.Unmarshal(data, &f); err != nil {
		return params.Model{}, fmt.Errorf("config: parse %s: %w", path, err)
	}

	return f.toModel()
}

func (f File) toModel() (params.Model, error) {
	var dir = params.Forward
	switch f.Direction {
	case "", "forward":
		dir = params.Forward
	case "backward":
		dir = params.Backward
	default:
		return params.Model{}, fmt.Errorf("config: direction must be \"forward\" or \"backward\", got %q", f.Direction)
	}

	var raw = params.Raw{
		RPM:         f.RPM,
		StartFrac:   f.StartFrac,
		EndFrac:     f.EndFrac,
		SpinupS:     f.SpinupS,
		StableS:     f.StableS,
		Facets:      f.Facets,
		Direction:   dir,
		SingleLine:  f.SingleLine,
		SingleFacet: f.SingleFacet,
		FMotor:      f.FMotorHz,
		TicksMove:   f.TicksMove,
		Motors:      f.Motors,
	}

	var model, err = params.New(raw, f.BitsPerLine)
	if err != nil {
		return params.Model{}, fmt.Errorf("config: %w", err)
	}
	return model, nil
}
