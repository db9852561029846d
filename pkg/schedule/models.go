package schedule

import (
	"fmt"
	"time"

	"github.com/mscrnt/scramsim/pkg/db"
	"github.com/mscrnt/scramsim/pkg/lfsr"
	"github.com/mscrnt/scramsim/pkg/sim"
)

// Param keys understood in Schedule.Params
const (
	ParamMaxRun          = "max_run"
	ParamFlipProbability = "flip_probability"
	ParamBaseErrorRate   = "base_error_rate"
	ParamSeed            = "seed"
	ParamWorkers         = "workers"
)

// Schedule represents a recurring simulation batch
type Schedule struct {
	ID          int64       `json:"id"`
	Name        string      `json:"name"`
	Description string      `json:"description"`
	CronExpr    string      `json:"cron_expr"`
	Standard    string      `json:"standard"`
	Scrambler   string      `json:"scrambler"`
	Trials      int         `json:"trials"`
	Params      db.JSONData `json:"params"`
	Enabled     bool        `json:"enabled"`
	LastRunID   *int64      `json:"last_run_id"`
	LastRunTime *time.Time  `json:"last_run_time"`
	NextRunTime *time.Time  `json:"next_run_time"`
	CreatedAt   time.Time   `json:"created_at"`
	UpdatedAt   time.Time   `json:"updated_at"`
}

// ScheduleFilter represents filters for querying schedules
type ScheduleFilter struct {
	Standard string
	Enabled  *bool
	Limit    int
	Offset   int
}

// IsOverdue returns true if the schedule is overdue for execution
func (s *Schedule) IsOverdue() bool {
	if !s.Enabled || s.NextRunTime == nil {
		return false
	}
	return time.Now().After(*s.NextRunTime)
}

// ShouldRun returns true if the schedule should run now
func (s *Schedule) ShouldRun() bool {
	if !s.Enabled {
		return false
	}

	// If never run, should run
	if s.LastRunTime == nil {
		return true
	}

	return s.NextRunTime != nil && time.Now().After(*s.NextRunTime)
}

// SimConfig builds the simulation configuration and worker count the
// schedule describes. Missing params fall back to the defaults.
func (s *Schedule) SimConfig() (sim.Config, int, error) {
	cfg := sim.DefaultConfig()

	std, err := lfsr.LookupStandard(s.Standard)
	if err != nil {
		return cfg, 0, err
	}
	cfg.Standard = std
	if s.Scrambler != "" {
		cfg.Scrambler = s.Scrambler
	}

	workers := 1
	for key, value := range s.Params {
		switch key {
		case ParamMaxRun, ParamFlipProbability, ParamBaseErrorRate, ParamSeed, ParamWorkers:
		default:
			continue
		}

		var n float64
		switch v := value.(type) {
		case float64:
			n = v
		case int:
			n = float64(v)
		case int64:
			n = float64(v)
		case uint64:
			n = float64(v)
		default:
			return cfg, 0, fmt.Errorf("param %s: expected a number, got %T", key, value)
		}

		switch key {
		case ParamMaxRun:
			cfg.Noise.MaxRun = int(n)
		case ParamFlipProbability:
			cfg.Noise.FlipProbability = n
		case ParamBaseErrorRate:
			cfg.Noise.BaseErrorRate = n
		case ParamSeed:
			cfg.Seed = uint64(n)
		case ParamWorkers:
			workers = int(n)
		}
	}

	if s.Trials <= 0 {
		return cfg, 0, fmt.Errorf("trial count must be positive, got %d", s.Trials)
	}
	return cfg, workers, cfg.Validate()
}
