package main

import (
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/lmittmann/tint"

	"github.com/mscrnt/scramsim/pkg/bits"
	"github.com/mscrnt/scramsim/pkg/db"
)

// setupLogger installs a tint handler on stderr as the default slog logger
func setupLogger(level string) error {
	var lvl slog.Level
	if err := lvl.UnmarshalText([]byte(level)); err != nil {
		return fmt.Errorf("invalid log level %q: %w", level, err)
	}

	slog.SetDefault(slog.New(tint.NewHandler(os.Stderr, &tint.Options{
		Level:      lvl,
		TimeFormat: time.Kitchen,
	})))
	return nil
}

// getDBPath returns the path to the scramsim database file
func getDBPath() string {
	if dbFlag != "" {
		return dbFlag
	}

	if dbPath := os.Getenv("SCRAMSIM_DB_PATH"); dbPath != "" {
		return dbPath
	}

	homeDir, err := os.UserHomeDir()
	if err != nil {
		return "scramsim.db"
	}
	return filepath.Join(homeDir, ".scramsim", "scramsim.db")
}

func openDB() (*db.DB, error) {
	database, err := db.Open(getDBPath())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	return database, nil
}

// loadPayload reads a preloaded payload. A malformed file is reported and
// ignored so the run falls back to generated payloads.
func loadPayload(path string) (bits.Bits, error) {
	if path == "" {
		return nil, nil
	}

	f, err := os.Open(path) // #nosec G304 -- user-specified input file
	if err != nil {
		return nil, fmt.Errorf("failed to open payload file: %w", err)
	}
	defer func() { _ = f.Close() }()

	payload, err := bits.Read(f)
	if errors.Is(err, bits.ErrMalformedBitStream) {
		slog.Warn("ignoring malformed payload, using generated data", "file", path, "error", err)
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read payload file: %w", err)
	}
	if len(payload) == 0 {
		slog.Warn("payload file is empty, using generated data", "file", path)
		return nil, nil
	}

	slog.Info("payload loaded", "file", path, "bits", len(payload))
	return payload, nil
}

// createOutput returns stdout for an empty path, otherwise a new file
func createOutput(path string) (io.WriteCloser, error) {
	if path == "" {
		return nopCloser{os.Stdout}, nil
	}
	f, err := os.Create(path) // #nosec G304 -- user-specified output file
	if err != nil {
		return nil, fmt.Errorf("failed to create output file: %w", err)
	}
	return f, nil
}

type nopCloser struct{ io.Writer }

func (nopCloser) Close() error { return nil }

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func parseInt64(s string) (int64, error) {
	return strconv.ParseInt(strings.TrimSpace(s), 10, 64)
}

// resolveRun returns the given run, or the newest run of a standard when
// latest is set
func resolveRun(database *db.DB, runID int64, latest bool, standard string) (*db.Run, error) {
	if !latest && runID == 0 {
		return nil, fmt.Errorf("either --latest or --run must be specified")
	}

	if latest {
		runs, err := database.ListRuns(db.RunFilter{
			Standard: strings.ToUpper(standard),
			Limit:    1,
		})
		if err != nil {
			return nil, fmt.Errorf("failed to list runs: %w", err)
		}
		if len(runs) == 0 {
			return nil, fmt.Errorf("no runs found")
		}
		return runs[0], nil
	}

	run, err := database.GetRun(runID)
	if err != nil {
		return nil, fmt.Errorf("run %d not found", runID)
	}
	return run, nil
}

// parseDuration accepts time.ParseDuration input plus whole days ("7d")
func parseDuration(s string) (time.Duration, error) {
	if days, ok := strings.CutSuffix(s, "d"); ok {
		n, err := strconv.Atoi(days)
		if err != nil {
			return 0, err
		}
		return time.Duration(n) * 24 * time.Hour, nil
	}
	return time.ParseDuration(s)
}
