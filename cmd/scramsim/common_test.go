package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/mscrnt/scramsim/pkg/bits"
	"github.com/mscrnt/scramsim/pkg/db"
	"github.com/mscrnt/scramsim/pkg/lfsr"
	"github.com/mscrnt/scramsim/pkg/sim"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o600))
	return path
}

func TestLoadPayload(t *testing.T) {
	payload, err := loadPayload("")
	require.NoError(t, err)
	assert.Nil(t, payload)

	payload, err = loadPayload(writeFile(t, "ok.txt", "0110\n"))
	require.NoError(t, err)
	assert.Equal(t, bits.Bits{0, 1, 1, 0}, payload)

	// Malformed and empty files fall back to generated data
	payload, err = loadPayload(writeFile(t, "bad.txt", "01x0"))
	require.NoError(t, err)
	assert.Nil(t, payload)

	payload, err = loadPayload(writeFile(t, "empty.txt", "  \n"))
	require.NoError(t, err)
	assert.Nil(t, payload)

	_, err = loadPayload(filepath.Join(t.TempDir(), "missing.txt"))
	assert.Error(t, err)
}

func TestGetDBPath(t *testing.T) {
	t.Cleanup(func() { dbFlag = "" })

	t.Setenv("SCRAMSIM_DB_PATH", "/tmp/env.db")
	dbFlag = ""
	assert.Equal(t, "/tmp/env.db", getDBPath())

	dbFlag = "/tmp/flag.db"
	assert.Equal(t, "/tmp/flag.db", getDBPath())

	dbFlag = ""
	t.Setenv("SCRAMSIM_DB_PATH", "")
	assert.Equal(t, "scramsim.db", filepath.Base(getDBPath()))
}

func TestParseDuration(t *testing.T) {
	tests := []struct {
		in      string
		want    time.Duration
		wantErr bool
	}{
		{"24h", 24 * time.Hour, false},
		{"7d", 7 * 24 * time.Hour, false},
		{"90m", 90 * time.Minute, false},
		{"xd", 0, true},
		{"soon", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := parseDuration(tt.in)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestResolveRun(t *testing.T) {
	database, err := db.Open(filepath.Join(t.TempDir(), "cli.db"))
	require.NoError(t, err)
	t.Cleanup(func() { _ = database.Close() })

	record := func(std lfsr.Standard) int64 {
		cfg := sim.DefaultConfig()
		cfg.Standard = std
		cfg.Seed = 1
		s, err := sim.New(cfg)
		require.NoError(t, err)
		run, _, err := database.RecordSimulation(context.Background(), s, 1, 1, nil, nil)
		require.NoError(t, err)
		return run.ID
	}
	dvb := record(lfsr.DVB)
	ble := record(lfsr.BLE)

	_, err = resolveRun(database, 0, false, "")
	assert.Error(t, err)

	run, err := resolveRun(database, dvb, false, "")
	require.NoError(t, err)
	assert.Equal(t, dvb, run.ID)

	run, err = resolveRun(database, 0, true, "")
	require.NoError(t, err)
	assert.Equal(t, ble, run.ID)

	run, err = resolveRun(database, 0, true, "dvb")
	require.NoError(t, err)
	assert.Equal(t, dvb, run.ID)

	_, err = resolveRun(database, 999, false, "")
	assert.Error(t, err)
}

func TestRootCommandTree(t *testing.T) {
	root := newRootCmd()
	for _, name := range []string{"simulate", "selftest", "list", "show", "export", "report", "schedule", "cert", "agent"} {
		cmd, _, err := root.Find([]string{name})
		require.NoError(t, err, name)
		assert.Equal(t, name, cmd.Name())
	}
}
