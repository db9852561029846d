package sim

import (
	"context"
	"errors"
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mscrnt/scramsim/pkg/bits"
	"github.com/mscrnt/scramsim/pkg/channel"
	"github.com/mscrnt/scramsim/pkg/lfsr"
	"github.com/mscrnt/scramsim/pkg/scrambler"
)

func testConfig(std lfsr.Standard, name string) Config {
	cfg := DefaultConfig()
	cfg.Standard = std
	cfg.Scrambler = name
	cfg.Seed = 2024
	return cfg
}

func TestConfigValidate(t *testing.T) {
	assert.NoError(t, DefaultConfig().Validate())

	cfg := DefaultConfig()
	cfg.Scrambler = "none"
	assert.Error(t, cfg.Validate())

	cfg = DefaultConfig()
	cfg.Noise.MaxRun = 0
	assert.ErrorIs(t, cfg.Validate(), channel.ErrInvalidNoiseModel)

	cfg = DefaultConfig()
	cfg.Standard = lfsr.Standard{Name: "bad", SeedLength: 4, Taps: [2]int{4, 2}}
	_, err := New(cfg)
	assert.Error(t, err)
}

func TestRunTrialNoiseless(t *testing.T) {
	for _, std := range lfsr.Standards() {
		for _, name := range scrambler.List() {
			t.Run(std.Name+"/"+name, func(t *testing.T) {
				cfg := testConfig(std, name)
				cfg.Noise = channel.NoiseModel{MaxRun: 1 << 30}
				s, err := New(cfg)
				require.NoError(t, err)

				r, err := s.RunTrial()
				require.NoError(t, err)
				assert.Equal(t, r.Original, r.NoisyUnscrambled)
				assert.Equal(t, r.Original, r.Descrambled)
				assert.Zero(t, r.ErrorsUnscrambled)
				assert.Zero(t, r.ErrorsScrambled)
				assert.Equal(t, len(r.Original), r.FrameLength)
				assert.Equal(t, 0, (r.FrameLength-std.SeedLength)%8)
				assert.Equal(t, r.Seed, r.Original[:std.SeedLength])
			})
		}
	}
}

func TestRunTrialCounts(t *testing.T) {
	s, err := New(testConfig(lfsr.V34, scrambler.AdditiveName))
	require.NoError(t, err)

	for i := 0; i < 10; i++ {
		r, err := s.RunTrial()
		require.NoError(t, err)
		assert.Equal(t, bits.CountErrors(r.Original, r.NoisyUnscrambled), r.ErrorsUnscrambled)
		assert.Equal(t, bits.CountErrors(r.Original, r.Descrambled), r.ErrorsScrambled)
		assert.GreaterOrEqual(t, r.UnscrambledRate(), 0.0)
		assert.LessOrEqual(t, r.ScrambledRate(), 1.0)
		assert.NotEqual(t, r.Original, r.Scrambled)
	}
}

func TestRunTrialWithPayload(t *testing.T) {
	cfg := testConfig(lfsr.DVB, scrambler.MultiplicativeName)
	payload, err := bits.Parse("11110000111100001111000011110000")
	require.NoError(t, err)
	cfg.Payload = payload

	s, err := New(cfg)
	require.NoError(t, err)
	r, err := s.RunTrial()
	require.NoError(t, err)
	assert.Equal(t, lfsr.DVB.SeedLength+len(payload), r.FrameLength)
	assert.Equal(t, payload, r.Original[lfsr.DVB.SeedLength:])
}

func TestDeterministicSeed(t *testing.T) {
	a, err := New(testConfig(lfsr.TEST, scrambler.AdditiveName))
	require.NoError(t, err)
	b, err := New(testConfig(lfsr.TEST, scrambler.AdditiveName))
	require.NoError(t, err)

	ra, err := a.RunTrial()
	require.NoError(t, err)
	rb, err := b.RunTrial()
	require.NoError(t, err)
	assert.Equal(t, ra, rb)
	assert.Equal(t, uint64(2024), a.Seed())

	c, err := New(DefaultConfig())
	require.NoError(t, err)
	assert.NotZero(t, c.Seed())
}

// Long constant runs trigger the run-length flips on the unscrambled path,
// while the scrambled stream rarely has them. Scrambling must win on average.
func TestScramblingReducesErrors(t *testing.T) {
	s, err := New(testConfig(lfsr.TEST, scrambler.AdditiveName))
	require.NoError(t, err)

	summary, err := s.Run(context.Background(), 30, 1, nil)
	require.NoError(t, err)
	assert.Equal(t, 30, summary.Trials)
	assert.Less(t, summary.MeanScrambledRate, summary.MeanUnscrambledRate)
	assert.Greater(t, summary.Improvement(), 1.0)
}

func TestRunSink(t *testing.T) {
	s, err := New(testConfig(lfsr.BLE, scrambler.AdditiveName))
	require.NoError(t, err)

	var seen []int
	var results []TrialResult
	sink := SinkFunc(func(i int, r TrialResult) error {
		seen = append(seen, i)
		results = append(results, r)
		return nil
	})

	summary, err := s.Run(context.Background(), 5, 1, sink)
	require.NoError(t, err)
	assert.Equal(t, []int{0, 1, 2, 3, 4}, seen)
	assert.Equal(t, Summarize(results), summary)

	boom := errors.New("disk full")
	summary, err = s.Run(context.Background(), 3, 1, SinkFunc(func(int, TrialResult) error { return boom }))
	assert.ErrorIs(t, err, boom)
	assert.Zero(t, summary.Trials)
}

func TestRunParallelOrderAndDeterminism(t *testing.T) {
	collect := func() ([]TrialResult, Summary) {
		s, err := New(testConfig(lfsr.DVB, scrambler.AdditiveName))
		require.NoError(t, err)

		var seen []int
		var results []TrialResult
		summary, err := s.Run(context.Background(), 17, 4, SinkFunc(func(i int, r TrialResult) error {
			seen = append(seen, i)
			results = append(results, r)
			return nil
		}))
		require.NoError(t, err)
		for i, idx := range seen {
			require.Equal(t, i, idx)
		}
		return results, summary
	}

	r1, s1 := collect()
	r2, s2 := collect()
	require.Len(t, r1, 17)
	assert.Equal(t, r1, r2)
	assert.Equal(t, s1, s2)
	assert.Equal(t, Summarize(r1), s1)
}

func TestRunParallelSinkError(t *testing.T) {
	s, err := New(testConfig(lfsr.BLE, scrambler.AdditiveName))
	require.NoError(t, err)

	boom := errors.New("stop")
	summary, err := s.Run(context.Background(), 50, 3, SinkFunc(func(i int, _ TrialResult) error {
		if i == 4 {
			return boom
		}
		return nil
	}))
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 4, summary.Trials, "rejected trial is not counted")
}

func TestRunParallelLargestSeed(t *testing.T) {
	run := func() Summary {
		cfg := testConfig(lfsr.DVB, scrambler.AdditiveName)
		cfg.Seed = math.MaxUint64
		s, err := New(cfg)
		require.NoError(t, err)
		summary, err := s.Run(context.Background(), 4, 2, nil)
		require.NoError(t, err)
		return summary
	}

	assert.Equal(t, run(), run())
}

func TestRunCancelled(t *testing.T) {
	s, err := New(testConfig(lfsr.BLE, scrambler.AdditiveName))
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err = s.Run(ctx, 10, 1, nil)
	assert.ErrorIs(t, err, context.Canceled)

	_, err = s.Run(context.Background(), -1, 1, nil)
	assert.Error(t, err)

	summary, err := s.Run(context.Background(), 0, 8, nil)
	require.NoError(t, err)
	assert.Zero(t, summary.Trials)
}

func TestSummary(t *testing.T) {
	results := []TrialResult{
		{FrameLength: 100, ErrorsUnscrambled: 10, ErrorsScrambled: 2},
		{FrameLength: 200, ErrorsUnscrambled: 40, ErrorsScrambled: 6},
	}
	s := Summarize(results)
	assert.Equal(t, 2, s.Trials)
	assert.Equal(t, 300, s.TotalBits)
	assert.InDelta(t, 0.15, s.MeanUnscrambledRate, 1e-12)
	assert.InDelta(t, 0.025, s.MeanScrambledRate, 1e-12)
	assert.InDelta(t, 0.1, s.MinUnscrambledRate, 1e-12)
	assert.InDelta(t, 0.2, s.MaxUnscrambledRate, 1e-12)
	assert.InDelta(t, 0.02, s.MinScrambledRate, 1e-12)
	assert.InDelta(t, 0.03, s.MaxScrambledRate, 1e-12)
	assert.InDelta(t, 50.0/8.0, s.Improvement(), 1e-12)

	m := s.Metrics()
	units := MetricUnits()
	for k := range m {
		assert.Contains(t, units, k)
	}
	assert.Zero(t, Summary{ErrorsUnscrambled: 3}.Improvement())
}
