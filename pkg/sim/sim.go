// Package sim runs end-to-end transmission trials: frame generation,
// scrambling, channel noise, descrambling and error counting.
package sim

import (
	"fmt"
	"math/rand/v2"

	"github.com/mscrnt/scramsim/pkg/bits"
	"github.com/mscrnt/scramsim/pkg/channel"
	"github.com/mscrnt/scramsim/pkg/frame"
	"github.com/mscrnt/scramsim/pkg/lfsr"
	"github.com/mscrnt/scramsim/pkg/scrambler"
)

// Config describes a simulation
type Config struct {
	Standard  lfsr.Standard      `json:"standard"`
	Scrambler string             `json:"scrambler"`
	Noise     channel.NoiseModel `json:"noise"`

	// Seed for the pseudo-random source; 0 picks a random one
	Seed uint64 `json:"seed"`

	// Payload, when non-nil, replaces every generated frame payload
	Payload bits.Bits `json:"-"`
}

// DefaultConfig returns a TEST/additive configuration with default noise
func DefaultConfig() Config {
	return Config{
		Standard:  lfsr.TEST,
		Scrambler: scrambler.AdditiveName,
		Noise:     channel.DefaultNoiseModel(),
	}
}

// Validate checks the configuration
func (c Config) Validate() error {
	if err := c.Standard.Validate(); err != nil {
		return err
	}
	if _, err := scrambler.Get(c.Scrambler); err != nil {
		return err
	}
	return c.Noise.Validate()
}

// TrialResult holds everything one transmission produced
type TrialResult struct {
	Seed             bits.Bits
	Original         bits.Bits
	Scrambled        bits.Bits
	NoisyUnscrambled bits.Bits
	Descrambled      bits.Bits

	ErrorsUnscrambled int
	ErrorsScrambled   int
	FrameLength       int
}

// UnscrambledRate returns the error rate of the unscrambled path
func (r TrialResult) UnscrambledRate() float64 {
	return bits.ErrorRate(r.ErrorsUnscrambled, r.FrameLength)
}

// ScrambledRate returns the error rate of the scrambled path
func (r TrialResult) ScrambledRate() float64 {
	return bits.ErrorRate(r.ErrorsScrambled, r.FrameLength)
}

// Simulator owns the register, generator and scrambler of one trial sequence.
// It is not safe for concurrent use.
type Simulator struct {
	cfg       Config
	seed      uint64
	rng       *rand.Rand
	reg       *lfsr.Register
	gen       *frame.Generator
	scrambler scrambler.Scrambler
}

// New creates a simulator for cfg
func New(cfg Config) (*Simulator, error) {
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	seed := cfg.Seed
	if seed == 0 {
		seed = rand.Uint64()
	}

	return newSimulator(cfg, seed, rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))
}

// newSimulator builds a simulator around src. seed is only reported.
func newSimulator(cfg Config, seed uint64, src rand.Source) (*Simulator, error) {
	reg, err := lfsr.New(cfg.Standard)
	if err != nil {
		return nil, err
	}
	s, err := scrambler.New(cfg.Scrambler, reg)
	if err != nil {
		return nil, err
	}

	rng := rand.New(src)
	return &Simulator{
		cfg:       cfg,
		seed:      seed,
		rng:       rng,
		reg:       reg,
		gen:       frame.NewGenerator(reg, rng),
		scrambler: s,
	}, nil
}

// Config returns the simulator configuration
func (s *Simulator) Config() Config {
	return s.cfg
}

// Seed returns the seed of the pseudo-random source in use
func (s *Simulator) Seed() uint64 {
	return s.seed
}

// RunTrial generates one frame, sends it over the channel with and without
// scrambling and counts the errors of both paths against the original
func (s *Simulator) RunTrial() (TrialResult, error) {
	f, err := s.gen.Generate(s.cfg.Payload)
	if err != nil {
		return TrialResult{}, fmt.Errorf("failed to generate frame: %w", err)
	}
	original := f.Bits()

	scrambled := s.scrambler.Scramble(original)

	noisyUnscrambled := s.cfg.Noise.Inject(s.rng, original)
	noisyScrambled := s.cfg.Noise.Inject(s.rng, scrambled)

	descrambled := s.scrambler.Descramble(noisyScrambled)

	return TrialResult{
		Seed:              f.Seed,
		Original:          original,
		Scrambled:         scrambled,
		NoisyUnscrambled:  noisyUnscrambled,
		Descrambled:       descrambled,
		ErrorsUnscrambled: bits.CountErrors(original, noisyUnscrambled),
		ErrorsScrambled:   bits.CountErrors(original, descrambled),
		FrameLength:       len(original),
	}, nil
}
