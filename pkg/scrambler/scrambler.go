// Package scrambler provides the additive and multiplicative scrambling
// transforms and a registry of the available variants.
package scrambler

import (
	"fmt"

	"github.com/mscrnt/scramsim/pkg/bits"
	"github.com/mscrnt/scramsim/pkg/lfsr"
)

// Scrambler is the interface that all scrambler variants implement.
// Scramble and Descramble each pull len(data) key bits from the register,
// restarting from its current seed.
type Scrambler interface {
	// Name returns the unique name of the variant
	Name() string

	// Description returns a human-readable description
	Description() string

	// Scramble combines data with the key stream
	Scramble(data bits.Bits) bits.Bits

	// Descramble undoes Scramble given the same register seed
	Descramble(data bits.Bits) bits.Bits
}

// Factory builds a scrambler bound to a register
type Factory func(reg *lfsr.Register) Scrambler

// Info provides metadata about a registered variant
type Info struct {
	Name        string `json:"name"`
	Description string `json:"description"`
}

// Names of the built-in variants
const (
	AdditiveName       = "additive"
	MultiplicativeName = "multiplicative"
)

func init() {
	// Register the built-in variants
	_ = Register(AdditiveName, NewAdditive)
	_ = Register(MultiplicativeName, NewMultiplicative)
}

// combine applies fn element-wise to data and a fresh key stream
func combine(reg *lfsr.Register, data bits.Bits, fn func(a, b uint8) uint8) bits.Bits {
	key := reg.Output(len(data))
	out := make(bits.Bits, len(data))
	for i, bit := range data {
		out[i] = fn(bit, key[i])
	}
	return out
}

// Additive adds the key stream modulo 2
type Additive struct {
	reg *lfsr.Register
}

// NewAdditive creates an additive scrambler on reg
func NewAdditive(reg *lfsr.Register) Scrambler {
	return &Additive{reg: reg}
}

// Name returns the variant name
func (s *Additive) Name() string {
	return AdditiveName
}

// Description returns the variant description
func (s *Additive) Description() string {
	return "Adds the LFSR key stream to the data modulo 2"
}

// Scramble returns (data + key) mod 2
func (s *Additive) Scramble(data bits.Bits) bits.Bits {
	return combine(s.reg, data, addMod2)
}

// Descramble returns (data + key) mod 2
func (s *Additive) Descramble(data bits.Bits) bits.Bits {
	return combine(s.reg, data, addMod2)
}

func addMod2(a, b uint8) uint8 {
	return (a + b) % 2
}

// Multiplicative combines the key stream with XOR. At the bit level this is
// the same transform as Additive.
type Multiplicative struct {
	reg *lfsr.Register
}

// NewMultiplicative creates a multiplicative scrambler on reg
func NewMultiplicative(reg *lfsr.Register) Scrambler {
	return &Multiplicative{reg: reg}
}

// Name returns the variant name
func (s *Multiplicative) Name() string {
	return MultiplicativeName
}

// Description returns the variant description
func (s *Multiplicative) Description() string {
	return "XORs the LFSR key stream into the data"
}

// Scramble returns data XOR key
func (s *Multiplicative) Scramble(data bits.Bits) bits.Bits {
	return combine(s.reg, data, xor)
}

// Descramble returns data XOR key
func (s *Multiplicative) Descramble(data bits.Bits) bits.Bits {
	return combine(s.reg, data, xor)
}

func xor(a, b uint8) uint8 {
	return a ^ b
}

// RoundTrip scrambles and descrambles data and reports a mismatch
func RoundTrip(s Scrambler, data bits.Bits) error {
	scrambled := s.Scramble(data)
	descrambled := s.Descramble(scrambled)
	if !descrambled.Equal(data) {
		return fmt.Errorf("%s: descrambled data differs from original in %d of %d bits",
			s.Name(), bits.CountErrors(data, descrambled), len(data))
	}
	return nil
}
