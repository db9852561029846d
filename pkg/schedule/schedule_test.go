package schedule

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mscrnt/scramsim/pkg/db"
	"github.com/mscrnt/scramsim/pkg/scrambler"
)

func openStore(t *testing.T) (*db.DB, *Store) {
	t.Helper()
	database, err := db.Open(filepath.Join(t.TempDir(), "schedule.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })
	return database, NewStore(database)
}

func nightly() *Schedule {
	return &Schedule{
		Name:      "nightly-dvb",
		CronExpr:  "0 2 * * *",
		Standard:  "DVB",
		Scrambler: scrambler.MultiplicativeName,
		Trials:    3,
		Params:    db.JSONData{ParamSeed: 99, ParamMaxRun: 4},
		Enabled:   true,
	}
}

func TestParseCron(t *testing.T) {
	_, err := ParseCron("*/5 * * * *")
	assert.NoError(t, err)

	_, err = ParseCron("not a cron")
	assert.Error(t, err)

	// seconds field is not accepted
	_, err = ParseCron("0 0 2 * * *")
	assert.Error(t, err)
}

func TestSimConfig(t *testing.T) {
	s := nightly()
	cfg, workers, err := s.SimConfig()
	require.NoError(t, err)
	assert.Equal(t, "DVB", cfg.Standard.Name)
	assert.Equal(t, scrambler.MultiplicativeName, cfg.Scrambler)
	assert.Equal(t, uint64(99), cfg.Seed)
	assert.Equal(t, 4, cfg.Noise.MaxRun)
	assert.Equal(t, 1, workers)

	s.Params = db.JSONData{ParamFlipProbability: "high"}
	_, _, err = s.SimConfig()
	assert.Error(t, err)

	s.Params = db.JSONData{ParamFlipProbability: 1.5}
	_, _, err = s.SimConfig()
	assert.Error(t, err)

	s.Params = nil
	s.Standard = "WIFI"
	_, _, err = s.SimConfig()
	assert.Error(t, err)

	s.Standard = "BLE"
	s.Trials = 0
	_, _, err = s.SimConfig()
	assert.Error(t, err)
}

func TestStoreCRUD(t *testing.T) {
	_, store := openStore(t)

	s := nightly()
	require.NoError(t, store.Create(s))
	assert.NotZero(t, s.ID)
	require.NotNil(t, s.NextRunTime)
	assert.True(t, s.NextRunTime.After(time.Now()))

	got, err := store.GetByName("nightly-dvb")
	require.NoError(t, err)
	assert.Equal(t, s.ID, got.ID)
	assert.Equal(t, 3, got.Trials)
	assert.EqualValues(t, 99, got.Params[ParamSeed])

	got.Trials = 10
	got.CronExpr = "30 * * * *"
	require.NoError(t, store.Update(got))

	got, err = store.Get(s.ID)
	require.NoError(t, err)
	assert.Equal(t, 10, got.Trials)
	assert.Equal(t, "30 * * * *", got.CronExpr)

	require.NoError(t, store.Disable(s.ID))
	enabled := true
	list, err := store.List(ScheduleFilter{Enabled: &enabled})
	require.NoError(t, err)
	assert.Empty(t, list)

	require.NoError(t, store.Enable(s.ID))
	list, err = store.List(ScheduleFilter{Standard: "DVB"})
	require.NoError(t, err)
	assert.Len(t, list, 1)

	require.NoError(t, store.Delete(s.ID))
	_, err = store.Get(s.ID)
	assert.True(t, errors.Is(err, ErrNotFound))
	assert.True(t, errors.Is(store.Delete(s.ID), ErrNotFound))
}

func TestStoreRejectsInvalid(t *testing.T) {
	_, store := openStore(t)

	bad := nightly()
	bad.CronExpr = "every day"
	assert.Error(t, store.Create(bad))

	bad = nightly()
	bad.Scrambler = "rot13"
	assert.Error(t, store.Create(bad))
}

func TestExecuteRecordsRun(t *testing.T) {
	database, store := openStore(t)

	s := nightly()
	require.NoError(t, store.Create(s))

	runner := NewRunner(database, slog.New(slog.NewTextHandler(io.Discard, nil)))
	run, err := runner.Execute(context.Background(), s)
	require.NoError(t, err)
	require.NotNil(t, run)
	assert.True(t, run.Success)
	assert.Equal(t, 3, run.Trials)
	assert.Equal(t, uint64(99), run.Seed)

	trials, err := database.GetTrials(run.ID)
	require.NoError(t, err)
	assert.Len(t, trials, 3)

	updated, err := store.Get(s.ID)
	require.NoError(t, err)
	require.NotNil(t, updated.LastRunID)
	assert.Equal(t, run.ID, *updated.LastRunID)
	assert.NotNil(t, updated.LastRunTime)
}

func TestRunnerRegistration(t *testing.T) {
	database, store := openStore(t)

	s := nightly()
	require.NoError(t, store.Create(s))
	disabled := nightly()
	disabled.Name = "off"
	disabled.Enabled = false
	require.NoError(t, store.Create(disabled))

	runner := NewRunner(database, slog.New(slog.NewTextHandler(io.Discard, nil)))
	require.NoError(t, runner.Start())
	defer runner.Stop(time.Second)

	assert.Equal(t, 1, runner.ActiveCount())
	assert.Len(t, runner.ListJobs(), 1)

	runner.UnregisterSchedule(s.ID)
	assert.Equal(t, 0, runner.ActiveCount())

	require.NoError(t, runner.RefreshSchedule(s.ID))
	assert.Equal(t, 1, runner.ActiveCount())
}

func TestShouldRun(t *testing.T) {
	past := time.Now().Add(-time.Minute)
	future := time.Now().Add(time.Hour)

	s := &Schedule{Enabled: true}
	assert.True(t, s.ShouldRun())

	s.LastRunTime = &past
	s.NextRunTime = &future
	assert.False(t, s.ShouldRun())
	assert.False(t, s.IsOverdue())

	s.NextRunTime = &past
	assert.True(t, s.ShouldRun())
	assert.True(t, s.IsOverdue())

	s.Enabled = false
	assert.False(t, s.ShouldRun())
}
