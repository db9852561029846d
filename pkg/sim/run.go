package sim

import (
	"context"
	"fmt"
	"math"
	"math/rand/v2"
	"sync"
)

// Sink receives trial results in trial order
type Sink interface {
	RecordTrial(index int, r TrialResult) error
}

// SinkFunc adapts a function to Sink
type SinkFunc func(index int, r TrialResult) error

// RecordTrial calls f
func (f SinkFunc) RecordTrial(index int, r TrialResult) error {
	return f(index, r)
}

// Summary aggregates error statistics over many trials
type Summary struct {
	Trials            int `json:"trials"`
	TotalBits         int `json:"total_bits"`
	ErrorsUnscrambled int `json:"errors_unscrambled"`
	ErrorsScrambled   int `json:"errors_scrambled"`

	MeanUnscrambledRate float64 `json:"mean_unscrambled_rate"`
	MeanScrambledRate   float64 `json:"mean_scrambled_rate"`
	MinUnscrambledRate  float64 `json:"min_unscrambled_rate"`
	MaxUnscrambledRate  float64 `json:"max_unscrambled_rate"`
	MinScrambledRate    float64 `json:"min_scrambled_rate"`
	MaxScrambledRate    float64 `json:"max_scrambled_rate"`
}

// Add folds one trial into the summary
func (s *Summary) Add(r TrialResult) {
	u, sc := r.UnscrambledRate(), r.ScrambledRate()
	if s.Trials == 0 {
		s.MinUnscrambledRate, s.MaxUnscrambledRate = u, u
		s.MinScrambledRate, s.MaxScrambledRate = sc, sc
	} else {
		s.MinUnscrambledRate = math.Min(s.MinUnscrambledRate, u)
		s.MaxUnscrambledRate = math.Max(s.MaxUnscrambledRate, u)
		s.MinScrambledRate = math.Min(s.MinScrambledRate, sc)
		s.MaxScrambledRate = math.Max(s.MaxScrambledRate, sc)
	}

	// Running means
	n := float64(s.Trials + 1)
	s.MeanUnscrambledRate += (u - s.MeanUnscrambledRate) / n
	s.MeanScrambledRate += (sc - s.MeanScrambledRate) / n

	s.Trials++
	s.TotalBits += r.FrameLength
	s.ErrorsUnscrambled += r.ErrorsUnscrambled
	s.ErrorsScrambled += r.ErrorsScrambled
}

// Improvement returns how many times fewer errors the scrambled path had.
// It is 0 when the scrambled path had no errors.
func (s Summary) Improvement() float64 {
	if s.ErrorsScrambled == 0 {
		return 0
	}
	return float64(s.ErrorsUnscrambled) / float64(s.ErrorsScrambled)
}

// Metrics flattens the summary for storage
func (s Summary) Metrics() map[string]float64 {
	return map[string]float64{
		"trials":                float64(s.Trials),
		"total_bits":            float64(s.TotalBits),
		"errors_unscrambled":    float64(s.ErrorsUnscrambled),
		"errors_scrambled":      float64(s.ErrorsScrambled),
		"mean_unscrambled_rate": s.MeanUnscrambledRate,
		"mean_scrambled_rate":   s.MeanScrambledRate,
		"min_unscrambled_rate":  s.MinUnscrambledRate,
		"max_unscrambled_rate":  s.MaxUnscrambledRate,
		"min_scrambled_rate":    s.MinScrambledRate,
		"max_scrambled_rate":    s.MaxScrambledRate,
		"improvement":           s.Improvement(),
	}
}

// MetricUnits returns the unit of each key in Metrics
func MetricUnits() map[string]string {
	return map[string]string{
		"trials":                "frames",
		"total_bits":            "bits",
		"errors_unscrambled":    "bits",
		"errors_scrambled":      "bits",
		"mean_unscrambled_rate": "ratio",
		"mean_scrambled_rate":   "ratio",
		"min_unscrambled_rate":  "ratio",
		"max_unscrambled_rate":  "ratio",
		"min_scrambled_rate":    "ratio",
		"max_scrambled_rate":    "ratio",
		"improvement":           "x",
	}
}

// Summarize aggregates a slice of results
func Summarize(results []TrialResult) Summary {
	var s Summary
	for _, r := range results {
		s.Add(r)
	}
	return s
}

// Run executes trials and hands each result to sink (which may be nil).
// With workers > 1 every worker gets its own Simulator drawing from a
// separate stream of this one's seed, so no register is shared; results
// still reach the sink in trial order. Only trials the sink accepted are
// counted in the summary.
func (s *Simulator) Run(ctx context.Context, trials, workers int, sink Sink) (Summary, error) {
	if trials < 0 {
		return Summary{}, fmt.Errorf("trial count must not be negative, got %d", trials)
	}
	if workers > trials {
		workers = trials
	}
	if workers <= 1 {
		return s.runSequential(ctx, trials, sink)
	}
	return s.runParallel(ctx, trials, workers, sink)
}

func (s *Simulator) runSequential(ctx context.Context, trials int, sink Sink) (Summary, error) {
	var summary Summary
	for i := 0; i < trials; i++ {
		if err := ctx.Err(); err != nil {
			return summary, err
		}
		r, err := s.RunTrial()
		if err != nil {
			return summary, fmt.Errorf("trial %d: %w", i, err)
		}
		if sink != nil {
			if err := sink.RecordTrial(i, r); err != nil {
				return summary, fmt.Errorf("failed to record trial %d: %w", i, err)
			}
		}
		summary.Add(r)
	}
	return summary, nil
}

type trialOutput struct {
	result TrialResult
	err    error
}

func (s *Simulator) runParallel(ctx context.Context, trials, workers int, sink Sink) (Summary, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	// Build all workers up front so a config error surfaces before any work
	sims := make([]*Simulator, workers)
	for w := range sims {
		// Same seed, one PCG stream per worker; never falls back to a random seed
		ws, err := newSimulator(s.cfg, s.seed, rand.NewPCG(s.seed, uint64(w)+1))
		if err != nil {
			return Summary{}, err
		}
		sims[w] = ws
	}

	outputs := make([]chan trialOutput, workers)
	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		outputs[w] = make(chan trialOutput, 1)
		wg.Add(1)
		go func(w int) {
			defer wg.Done()
			defer close(outputs[w])
			// worker w handles trials w, w+workers, ...
			for i := w; i < trials; i += workers {
				r, err := sims[w].RunTrial()
				select {
				case outputs[w] <- trialOutput{result: r, err: err}:
				case <-ctx.Done():
					return
				}
				if err != nil {
					return
				}
			}
		}(w)
	}

	var summary Summary
	var runErr error
	for i := 0; i < trials; i++ {
		var out trialOutput
		var ok bool
		select {
		case out, ok = <-outputs[i%workers]:
		case <-ctx.Done():
			runErr = ctx.Err()
		}
		if runErr != nil {
			break
		}
		if !ok {
			runErr = fmt.Errorf("trial %d: worker stopped early", i)
			break
		}
		if out.err != nil {
			runErr = fmt.Errorf("trial %d: %w", i, out.err)
			break
		}
		if sink != nil {
			if err := sink.RecordTrial(i, out.result); err != nil {
				runErr = fmt.Errorf("failed to record trial %d: %w", i, err)
				break
			}
		}
		summary.Add(out.result)
	}

	cancel()
	wg.Wait()
	return summary, runErr
}
