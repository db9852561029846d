package db

import (
	"context"
	"fmt"
	"time"

	"github.com/mscrnt/scramsim/pkg/sim"
)

// RecordSimulation runs trials on s and persists the run, every trial and
// the summary metrics. extra, when non-nil, also receives every trial.
// The returned run reflects the final stored state even when the simulation
// failed part way.
func (db *DB) RecordSimulation(ctx context.Context, s *sim.Simulator, trials, workers int, params JSONData, extra sim.Sink) (*Run, sim.Summary, error) {
	cfg := s.Config()

	if params == nil {
		params = make(JSONData)
	}
	params["max_run"] = cfg.Noise.MaxRun
	params["flip_probability"] = cfg.Noise.FlipProbability
	params["base_error_rate"] = cfg.Noise.BaseErrorRate
	params["workers"] = workers
	if cfg.Payload != nil {
		params["payload_bits"] = len(cfg.Payload)
	}

	run, err := db.CreateRun(cfg.Standard.Name, cfg.Scrambler, s.Seed(), params)
	if err != nil {
		return nil, sim.Summary{}, err
	}

	writer, err := db.NewTrialWriter(run.ID)
	if err != nil {
		return run, sim.Summary{}, err
	}

	var sink sim.Sink = writer
	if extra != nil {
		// A trial rejected by extra is not stored either
		sink = sim.SinkFunc(func(i int, r sim.TrialResult) error {
			if err := extra.RecordTrial(i, r); err != nil {
				return err
			}
			return writer.RecordTrial(i, r)
		})
	}

	summary, runErr := s.Run(ctx, trials, workers, sink)

	// Keep whatever trials completed so a partial run can still be inspected
	if err := writer.Commit(); err != nil && runErr == nil {
		runErr = err
	}

	endTime := time.Now()
	run.EndTime = &endTime
	run.Trials = summary.Trials
	run.Success = runErr == nil
	if runErr != nil {
		run.Error = runErr.Error()
	}

	if err := db.UpdateRun(run); err != nil {
		return run, summary, fmt.Errorf("failed to finalize run %d: %w", run.ID, err)
	}

	if summary.Trials > 0 {
		if err := db.CreateResults(run.ID, summary.Metrics(), sim.MetricUnits()); err != nil {
			return run, summary, err
		}
	}

	return run, summary, runErr
}
