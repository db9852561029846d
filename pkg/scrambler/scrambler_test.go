package scrambler

import (
	"math/rand/v2"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mscrnt/scramsim/pkg/bits"
	"github.com/mscrnt/scramsim/pkg/lfsr"
)

func randomBits(rng *rand.Rand, n int) bits.Bits {
	b := make(bits.Bits, n)
	for i := range b {
		b[i] = uint8(rng.IntN(2))
	}
	return b
}

func randomSeed(rng *rand.Rand, n int) bits.Bits {
	for {
		s := randomBits(rng, n)
		if !s.IsZero() {
			return s
		}
	}
}

func TestRoundTripAllStandards(t *testing.T) {
	rng := rand.New(rand.NewPCG(7, 11))

	for _, std := range lfsr.Standards() {
		for _, name := range List() {
			t.Run(std.Name+"/"+name, func(t *testing.T) {
				reg, err := lfsr.New(std)
				require.NoError(t, err)
				s, err := New(name, reg)
				require.NoError(t, err)

				for i := 0; i < 20; i++ {
					require.NoError(t, reg.Reseed(randomSeed(rng, std.SeedLength)))
					data := randomBits(rng, rng.IntN(2048))
					assert.NoError(t, RoundTrip(s, data))
				}
			})
		}
	}
}

func TestScrambleXorsKeyStream(t *testing.T) {
	reg, err := lfsr.New(lfsr.TEST)
	require.NoError(t, err)
	seed, err := bits.Parse("1111111111111111")
	require.NoError(t, err)
	require.NoError(t, reg.Reseed(seed))

	// key stream for this seed starts with fifteen ones and a zero
	data := make(bits.Bits, 16)
	for _, name := range List() {
		s, err := New(name, reg)
		require.NoError(t, err)
		assert.Equal(t, "1111111111111110", s.Scramble(data).String(), name)
	}
}

func TestVariantsAgree(t *testing.T) {
	rng := rand.New(rand.NewPCG(1, 2))
	reg, err := lfsr.New(lfsr.V34)
	require.NoError(t, err)
	require.NoError(t, reg.Reseed(randomSeed(rng, lfsr.V34.SeedLength)))

	add := NewAdditive(reg)
	mul := NewMultiplicative(reg)
	data := randomBits(rng, 4096)
	assert.Equal(t, add.Scramble(data), mul.Scramble(data))
	assert.Equal(t, add.Descramble(data), mul.Descramble(data))
}

func TestScrambleDoesNotModifyInput(t *testing.T) {
	reg, err := lfsr.New(lfsr.DVB)
	require.NoError(t, err)
	require.NoError(t, reg.Reseed(bits.Bits{1, 0, 0, 0, 0, 0, 0, 0, 1}))

	data := bits.Bits{1, 1, 1, 1, 0, 0, 0, 0}
	orig := data.Clone()
	out := NewAdditive(reg).Scramble(data)
	assert.Equal(t, orig, data)
	assert.Len(t, out, len(data))
	assert.Len(t, NewAdditive(reg).Scramble(nil), 0)
}

func TestRoundTripDetectsMismatch(t *testing.T) {
	reg, err := lfsr.New(lfsr.BLE)
	require.NoError(t, err)
	require.NoError(t, reg.Reseed(bits.Bits{1, 0, 1, 0, 1, 0, 1}))

	err = RoundTrip(&reseeding{Scrambler: NewAdditive(reg), reg: reg}, make(bits.Bits, 64))
	assert.Error(t, err)
}

// reseeding changes the register seed between scramble and descramble,
// breaking the call-order contract
type reseeding struct {
	Scrambler
	reg *lfsr.Register
}

func (r *reseeding) Scramble(data bits.Bits) bits.Bits {
	out := r.Scrambler.Scramble(data)
	_ = r.reg.Reseed(bits.Bits{1, 1, 0, 0, 1, 1, 0})
	return out
}
