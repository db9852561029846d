package db

import (
	"fmt"

	"github.com/mscrnt/scramsim/pkg/sim"
)

// TrialWriter collects the trial results of one run and writes them to the
// trials table in a single transaction on Commit. It implements sim.Sink.
// Nothing is written while the simulation runs, so other runs can be stored
// concurrently.
type TrialWriter struct {
	db      *DB
	runID   int64
	indexes []int
	results []sim.TrialResult
}

var _ sim.Sink = (*TrialWriter)(nil)

// NewTrialWriter returns a writer for the trials of runID. Call Commit or
// Rollback when done.
func (db *DB) NewTrialWriter(runID int64) (*TrialWriter, error) {
	if runID <= 0 {
		return nil, fmt.Errorf("invalid run ID %d", runID)
	}
	return &TrialWriter{db: db, runID: runID}, nil
}

// RecordTrial buffers one trial
func (w *TrialWriter) RecordTrial(index int, r sim.TrialResult) error {
	w.indexes = append(w.indexes, index)
	w.results = append(w.results, r)
	return nil
}

// Count returns the number of trials recorded so far
func (w *TrialWriter) Count() int {
	return len(w.results)
}

// Commit writes the buffered trials and clears the buffer
func (w *TrialWriter) Commit() error {
	if len(w.results) == 0 {
		return nil
	}

	tx, err := w.db.conn.Begin()
	if err != nil {
		return fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	stmt, err := tx.Prepare(
		`INSERT INTO trials (run_id, idx, frame_length, errors_unscrambled, errors_scrambled,
		 rate_unscrambled, rate_scrambled) VALUES (?, ?, ?, ?, ?, ?, ?)`,
	)
	if err != nil {
		return fmt.Errorf("failed to prepare statement: %w", err)
	}
	defer func() { _ = stmt.Close() }()

	for i, r := range w.results {
		_, err := stmt.Exec(
			w.runID, w.indexes[i], r.FrameLength, r.ErrorsUnscrambled, r.ErrorsScrambled,
			r.UnscrambledRate(), r.ScrambledRate(),
		)
		if err != nil {
			return fmt.Errorf("failed to insert trial %d: %w", w.indexes[i], err)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit trials: %w", err)
	}
	w.indexes, w.results = nil, nil
	return nil
}

// Rollback discards the buffered trials
func (w *TrialWriter) Rollback() error {
	w.indexes, w.results = nil, nil
	return nil
}
