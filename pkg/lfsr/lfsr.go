// Package lfsr implements the two-tap linear-feedback shift register used as
// the key stream source for the scramblers.
package lfsr

import (
	"errors"
	"fmt"

	"github.com/mscrnt/scramsim/pkg/bits"
)

// ErrInvalidSeedLength is returned when a seed does not match the
// standard's register width
var ErrInvalidSeedLength = errors.New("invalid seed length")

// Register is a fixed-width feedback shift register. It is not safe for
// concurrent use; give each goroutine its own Register.
type Register struct {
	std   Standard
	seed  bits.Bits
	state bits.Bits
}

// New creates a register for std. The register holds an all-zero seed until
// Reseed is called.
func New(std Standard) (*Register, error) {
	if err := std.Validate(); err != nil {
		return nil, err
	}
	return &Register{
		std:   std,
		seed:  make(bits.Bits, std.SeedLength),
		state: make(bits.Bits, std.SeedLength),
	}, nil
}

// Standard returns the register's standard
func (r *Register) Standard() Standard {
	return r.std
}

// Seed returns a copy of the current seed
func (r *Register) Seed() bits.Bits {
	return r.seed.Clone()
}

// State returns a copy of the current register contents
func (r *Register) State() bits.Bits {
	return r.state.Clone()
}

// Reseed replaces the seed and resets the state to it
func (r *Register) Reseed(seed bits.Bits) error {
	if len(seed) != r.std.SeedLength {
		return fmt.Errorf("%w: got %d bits, %s needs %d", ErrInvalidSeedLength, len(seed), r.std.Name, r.std.SeedLength)
	}
	r.seed = seed.Clone()
	r.state = seed.Clone()
	return nil
}

// Advance shifts the register by one position and returns the bit that
// leaves it. The feedback bit enters at index 0.
func (r *Register) Advance() uint8 {
	n := len(r.state)
	feedback := r.state[r.std.Taps[0]-1] ^ r.state[r.std.Taps[1]-1]
	copy(r.state[1:], r.state[:n-1])
	r.state[0] = feedback
	return r.state[n-1]
}

// Output restarts from the seed and returns the next length output bits.
// Successive calls return the same sequence until the register is reseeded.
func (r *Register) Output(length int) bits.Bits {
	if length <= 0 {
		return bits.Bits{}
	}
	copy(r.state, r.seed)
	out := make(bits.Bits, length)
	for i := range out {
		out[i] = r.Advance()
	}
	return out
}
