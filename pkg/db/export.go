package db

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"strconv"
)

var csvHeaders = []string{
	"Run ID", "Standard", "Scrambler", "Start Time", "Trial", "Frame Length",
	"Errors Unscrambled", "Errors Scrambled", "Rate Unscrambled", "Rate Scrambled",
}

func trialRow(run *Run, t *Trial) []string {
	return []string{
		strconv.FormatInt(run.ID, 10),
		run.Standard,
		run.Scrambler,
		run.StartTime.Format("2006-01-02 15:04:05"),
		strconv.Itoa(t.Index),
		strconv.Itoa(t.FrameLength),
		strconv.Itoa(t.ErrorsUnscrambled),
		strconv.Itoa(t.ErrorsScrambled),
		strconv.FormatFloat(t.RateUnscrambled, 'f', 6, 64),
		strconv.FormatFloat(t.RateScrambled, 'f', 6, 64),
	}
}

func (db *DB) writeRunCSV(w *csv.Writer, run *Run) error {
	trials, err := db.GetTrials(run.ID)
	if err != nil {
		return fmt.Errorf("failed to get trials for run %d: %w", run.ID, err)
	}
	for _, t := range trials {
		if err := w.Write(trialRow(run, t)); err != nil {
			return fmt.Errorf("failed to write row: %w", err)
		}
	}
	return nil
}

// ExportCSV exports the trials of a run to CSV format
func (db *DB) ExportCSV(w io.Writer, runID int64) error {
	run, err := db.GetRun(runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(csvHeaders); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	if err := db.writeRunCSV(csvWriter, run); err != nil {
		return err
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// ExportAllCSV exports the trials of every run to CSV format
func (db *DB) ExportAllCSV(w io.Writer) error {
	runs, err := db.ListRuns(RunFilter{})
	if err != nil {
		return fmt.Errorf("failed to list runs: %w", err)
	}

	csvWriter := csv.NewWriter(w)
	if err := csvWriter.Write(csvHeaders); err != nil {
		return fmt.Errorf("failed to write headers: %w", err)
	}
	for _, run := range runs {
		if err := db.writeRunCSV(csvWriter, run); err != nil {
			return err
		}
	}

	csvWriter.Flush()
	return csvWriter.Error()
}

// ExportJSON exports a run with its metrics and trials to JSON format
func (db *DB) ExportJSON(w io.Writer, runID int64) error {
	run, err := db.GetRun(runID)
	if err != nil {
		return fmt.Errorf("failed to get run: %w", err)
	}

	results, err := db.GetResults(runID)
	if err != nil {
		return fmt.Errorf("failed to get results: %w", err)
	}

	trials, err := db.GetTrials(runID)
	if err != nil {
		return fmt.Errorf("failed to get trials: %w", err)
	}

	export := struct {
		Run     *Run      `json:"run"`
		Results []*Result `json:"results"`
		Trials  []*Trial  `json:"trials"`
	}{
		Run:     run,
		Results: results,
		Trials:  trials,
	}

	encoder := json.NewEncoder(w)
	encoder.SetIndent("", "  ")
	if err := encoder.Encode(export); err != nil {
		return fmt.Errorf("failed to encode JSON: %w", err)
	}

	return nil
}

// ExportRates writes one error rate per line for the selected path, in
// trial order. runID 0 exports every run, oldest first.
func (db *DB) ExportRates(w io.Writer, runID int64, path RatePath) error {
	var runs []*Run
	if runID != 0 {
		run, err := db.GetRun(runID)
		if err != nil {
			return fmt.Errorf("failed to get run: %w", err)
		}
		runs = []*Run{run}
	} else {
		all, err := db.ListRuns(RunFilter{})
		if err != nil {
			return fmt.Errorf("failed to list runs: %w", err)
		}
		for i := len(all) - 1; i >= 0; i-- {
			runs = append(runs, all[i])
		}
	}

	for _, run := range runs {
		trials, err := db.GetTrials(run.ID)
		if err != nil {
			return fmt.Errorf("failed to get trials for run %d: %w", run.ID, err)
		}
		for _, t := range trials {
			rate := t.RateUnscrambled
			if path == RatePathScrambled {
				rate = t.RateScrambled
			}
			if _, err := fmt.Fprintln(w, strconv.FormatFloat(rate, 'g', -1, 64)); err != nil {
				return fmt.Errorf("failed to write rate: %w", err)
			}
		}
	}
	return nil
}
