// Package channel models the corruption a bit stream suffers in transit.
package channel

import (
	"errors"
	"fmt"
	"math/rand/v2"

	"github.com/mscrnt/scramsim/pkg/bits"
)

// ErrInvalidNoiseModel is returned by Validate for out-of-range parameters
var ErrInvalidNoiseModel = errors.New("invalid noise model")

// Default noise parameters
const (
	DefaultMaxRun          = 5
	DefaultFlipProbability = 0.8
	DefaultBaseErrorRate   = 0.0125
)

// NoiseModel combines run-length-triggered flips with uniform bit errors.
// Once a run of equal output bits reaches MaxRun, the next equal bit is
// flipped with FlipProbability. Every bit is additionally flipped with
// BaseErrorRate.
type NoiseModel struct {
	MaxRun          int     `json:"max_run"`
	FlipProbability float64 `json:"flip_probability"`
	BaseErrorRate   float64 `json:"base_error_rate"`
}

// DefaultNoiseModel returns the standard channel parameters
func DefaultNoiseModel() NoiseModel {
	return NoiseModel{
		MaxRun:          DefaultMaxRun,
		FlipProbability: DefaultFlipProbability,
		BaseErrorRate:   DefaultBaseErrorRate,
	}
}

// Validate checks the parameter ranges
func (m NoiseModel) Validate() error {
	if m.MaxRun < 1 {
		return fmt.Errorf("%w: max run must be at least 1, got %d", ErrInvalidNoiseModel, m.MaxRun)
	}
	if m.FlipProbability < 0 || m.FlipProbability > 1 {
		return fmt.Errorf("%w: flip probability %v outside [0,1]", ErrInvalidNoiseModel, m.FlipProbability)
	}
	if m.BaseErrorRate < 0 || m.BaseErrorRate > 1 {
		return fmt.Errorf("%w: base error rate %v outside [0,1]", ErrInvalidNoiseModel, m.BaseErrorRate)
	}
	return nil
}

// Inject returns a corrupted copy of data. Run length is tracked against the
// previous output bit, so a flip breaks the run it interrupted.
func (m NoiseModel) Inject(rng *rand.Rand, data bits.Bits) bits.Bits {
	out := make(bits.Bits, len(data))
	run := 0
	for i, bit := range data {
		if i > 0 && bit == out[i-1] {
			run++
			if run >= m.MaxRun && rng.Float64() < m.FlipProbability {
				bit ^= 1
				run = 0
			}
		} else {
			run = 0
		}
		if rng.Float64() < m.BaseErrorRate {
			bit ^= 1
		}
		out[i] = bit
	}
	return out
}
