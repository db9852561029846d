package lfsr

import (
	"errors"
	"fmt"
	"strings"
)

// ErrUnknownStandard is returned when a standard name is not recognized
var ErrUnknownStandard = errors.New("unknown standard")

// Standard identifies the register width and the two feedback taps.
// Taps are 1-indexed positions into the register.
type Standard struct {
	Name       string `json:"name"`
	SeedLength int    `json:"seed_length"`
	Taps       [2]int `json:"taps"`
}

// Built-in standards
var (
	TEST = Standard{Name: "TEST", SeedLength: 16, Taps: [2]int{15, 16}}
	V34  = Standard{Name: "V34", SeedLength: 23, Taps: [2]int{18, 23}}
	DVB  = Standard{Name: "DVB", SeedLength: 9, Taps: [2]int{5, 9}}
	BLE  = Standard{Name: "BLE", SeedLength: 7, Taps: [2]int{4, 7}}
)

var standards = []Standard{TEST, V34, DVB, BLE}

// Standards returns the built-in standards in menu order
func Standards() []Standard {
	out := make([]Standard, len(standards))
	copy(out, standards)
	return out
}

// LookupStandard returns the built-in standard with the given name.
// The match is case-insensitive.
func LookupStandard(name string) (Standard, error) {
	for _, s := range standards {
		if strings.EqualFold(s.Name, strings.TrimSpace(name)) {
			return s, nil
		}
	}
	return Standard{}, fmt.Errorf("%w: %q", ErrUnknownStandard, name)
}

// Validate checks 1 <= tap_a < tap_b <= seed_length
func (s Standard) Validate() error {
	if s.SeedLength <= 0 {
		return fmt.Errorf("standard %s: seed length must be positive, got %d", s.Name, s.SeedLength)
	}
	a, b := s.Taps[0], s.Taps[1]
	if a < 1 || a >= b || b > s.SeedLength {
		return fmt.Errorf("standard %s: invalid taps (%d, %d) for seed length %d", s.Name, a, b, s.SeedLength)
	}
	return nil
}

func (s Standard) String() string {
	return fmt.Sprintf("%s(%d,{%d,%d})", s.Name, s.SeedLength, s.Taps[0], s.Taps[1])
}
