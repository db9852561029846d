package db

import (
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"time"
)

// Run represents one simulation batch
type Run struct {
	ID        int64      `json:"id"`
	Standard  string     `json:"standard"`
	Scrambler string     `json:"scrambler"`
	Seed      uint64     `json:"seed"`
	Trials    int        `json:"trials"`
	Params    JSONData   `json:"params"`
	StartTime time.Time  `json:"start_time"`
	EndTime   *time.Time `json:"end_time"`
	Success   bool       `json:"success"`
	Error     string     `json:"error,omitempty"`
	CreatedAt time.Time  `json:"created_at"`
	UpdatedAt time.Time  `json:"updated_at"`
}

// Trial is the stored outcome of one transmission
type Trial struct {
	ID                int64   `json:"id"`
	RunID             int64   `json:"run_id"`
	Index             int     `json:"index"`
	FrameLength       int     `json:"frame_length"`
	ErrorsUnscrambled int     `json:"errors_unscrambled"`
	ErrorsScrambled   int     `json:"errors_scrambled"`
	RateUnscrambled   float64 `json:"rate_unscrambled"`
	RateScrambled     float64 `json:"rate_scrambled"`
}

// Result represents an aggregate metric of a run
type Result struct {
	ID        int64     `json:"id"`
	RunID     int64     `json:"run_id"`
	Metric    string    `json:"metric"`
	Value     float64   `json:"value"`
	Unit      string    `json:"unit"`
	CreatedAt time.Time `json:"created_at"`
}

// JSONData is a custom type for storing JSON in SQLite
type JSONData map[string]interface{}

// Value implements the driver.Valuer interface
func (j JSONData) Value() (driver.Value, error) {
	if j == nil {
		return nil, nil
	}
	return json.Marshal(j)
}

// Scan implements the sql.Scanner interface
func (j *JSONData) Scan(value interface{}) error {
	if value == nil {
		*j = nil
		return nil
	}

	var data []byte
	switch v := value.(type) {
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan type %T into JSONData", value)
	}

	return json.Unmarshal(data, j)
}

// RunStatus represents the status of a simulation run
type RunStatus string

const (
	RunStatusRunning  RunStatus = "running"
	RunStatusComplete RunStatus = "complete"
	RunStatusFailed   RunStatus = "failed"
)

// GetStatus returns the status of a run
func (r *Run) GetStatus() RunStatus {
	if r.EndTime == nil {
		return RunStatusRunning
	}
	if r.Success {
		return RunStatusComplete
	}
	return RunStatusFailed
}

// Duration returns the duration of the run
func (r *Run) Duration() time.Duration {
	if r.EndTime == nil {
		return 0
	}
	return r.EndTime.Sub(r.StartTime)
}

// RunFilter represents filters for querying runs
type RunFilter struct {
	Standard  string
	Scrambler string
	StartTime *time.Time
	EndTime   *time.Time
	Success   *bool
	Limit     int
	Offset    int
}

// RatePath selects which error rate column an export reads
type RatePath string

const (
	RatePathUnscrambled RatePath = "unscrambled"
	RatePathScrambled   RatePath = "scrambled"
)

// ParseRatePath validates a rate path name
func ParseRatePath(s string) (RatePath, error) {
	switch RatePath(s) {
	case RatePathUnscrambled, RatePathScrambled:
		return RatePath(s), nil
	}
	return "", fmt.Errorf("unknown rate path %q (want %q or %q)", s, RatePathUnscrambled, RatePathScrambled)
}
