// Package frame builds the synthetic test frames that are pushed through the
// scrambler and the channel model.
package frame

import (
	"fmt"
	"math"
	"math/rand/v2"
	"sort"

	"github.com/mscrnt/scramsim/pkg/bits"
	"github.com/mscrnt/scramsim/pkg/lfsr"
)

// Bounds of the randomly drawn frame length, seed included
const (
	MinFrameLength = 512
	MaxFrameLength = 12144
)

// Frame is a register seed followed by the payload
type Frame struct {
	Seed    bits.Bits
	Payload bits.Bits

	// PayloadOverridden is set when a caller-supplied payload was used
	PayloadOverridden bool
}

// Bits returns seed ‖ payload
func (f Frame) Bits() bits.Bits {
	return bits.Concat(f.Seed, f.Payload)
}

// Len returns the total frame length in bits
func (f Frame) Len() int {
	return len(f.Seed) + len(f.Payload)
}

// Generator draws seeds and payloads and reseeds the register it was given.
// Generate must happen before the caller scrambles the frame, since the
// scrambler keys off the seed installed here.
type Generator struct {
	reg *lfsr.Register
	rng *rand.Rand
}

// NewGenerator creates a generator that owns reg for reseeding
func NewGenerator(reg *lfsr.Register, rng *rand.Rand) *Generator {
	return &Generator{reg: reg, rng: rng}
}

func (g *Generator) randomBits(n int) bits.Bits {
	b := make(bits.Bits, n)
	for i := range b {
		b[i] = uint8(g.rng.IntN(2))
	}
	return b
}

// GenerateSeed returns uniform random bits of the register width.
// The all-zero seed is never returned: it locks the register at zero.
func (g *Generator) GenerateSeed() bits.Bits {
	n := g.reg.Standard().SeedLength
	seed := g.randomBits(n)
	for seed.IsZero() {
		seed = g.randomBits(n)
	}
	return seed
}

// GeneratePayload returns length random bits with constant-value bursts
// written over randomly chosen ranges
func (g *Generator) GeneratePayload(length int) bits.Bits {
	if length <= 0 {
		return bits.Bits{}
	}
	data := g.randomBits(length)

	checkpoints := int(math.Sqrt(float64(length)))
	if checkpoints%2 == 1 {
		checkpoints++
	}

	checks := make([]int, checkpoints)
	for i := range checks {
		checks[i] = g.rng.IntN(length + 1)
	}
	sort.Ints(checks)

	minGap := float64(checkpoints) / 2
	for i := 1; i < len(checks); i += 2 {
		start, stop := checks[i-1], checks[i]
		if float64(stop-start) <= minGap {
			continue
		}
		value := uint8(g.rng.IntN(2))
		for j := start; j < stop; j++ {
			data[j] = value
		}
	}
	return data
}

// PayloadLength draws a frame length and returns the payload share of it,
// rounded down to whole bytes
func (g *Generator) PayloadLength() int {
	n := MinFrameLength + g.rng.IntN(MaxFrameLength-MinFrameLength+1)
	n -= g.reg.Standard().SeedLength
	return n - n%8
}

// Generate builds a new frame and reseeds the register with its seed.
// A non-nil override replaces the generated payload.
func (g *Generator) Generate(override bits.Bits) (Frame, error) {
	length := g.PayloadLength()

	seed := g.GenerateSeed()
	if err := g.reg.Reseed(seed); err != nil {
		return Frame{}, fmt.Errorf("failed to reseed register: %w", err)
	}

	if override != nil {
		return Frame{Seed: seed, Payload: override.Clone(), PayloadOverridden: true}, nil
	}
	return Frame{Seed: seed, Payload: g.GeneratePayload(length)}, nil
}
