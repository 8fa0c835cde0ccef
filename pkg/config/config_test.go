package config

import (
	"os"
	"path/filepath"
	"testing"
	_ "time/tzdata"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestLoadMissingFileGivesDefaults(t *testing.T) {
	cfg, err := Load(filepath.Join(t.TempDir(), "nope.yaml"))
	require.NoError(t, err)
	assert.Equal(t, DefaultCalendar, cfg.Calendar)
	assert.Equal(t, DefaultCron, cfg.Cron)
	assert.Equal(t, DefaultParallelism, cfg.Parallelism)
	assert.Equal(t, "info", cfg.LogLevel)
}

func TestLoadYAML(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
calendar: Work
calendars:
  alice: Alice Focus
timezone: Europe/Berlin
chunk_minutes: 45
users: [alice, bob]
`), 0o600))

	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Work", cfg.Calendar)
	assert.Equal(t, 45, cfg.ChunkMinutes)
	assert.Equal(t, []string{"alice", "bob"}, cfg.Users)
	assert.Equal(t, "Alice Focus", cfg.CalendarFor("alice"))
	assert.Equal(t, "Work", cfg.CalendarFor("bob"))

	loc, err := cfg.Location()
	require.NoError(t, err)
	assert.Equal(t, "Europe/Berlin", loc.String())
}

func TestLoadRejectsBadTimezone(t *testing.T) {
	path := filepath.Join(t.TempDir(), "config.json")
	require.NoError(t, os.WriteFile(path, []byte(`{"timezone":"Mars/Olympus"}`), 0o600))

	_, err := Load(path)
	assert.Error(t, err)
}

func TestSaveRoundTripJSON(t *testing.T) {
	path := filepath.Join(t.TempDir(), "sub", "config.json")
	in := &Config{Calendar: "Deep", Users: []string{"u1"}, Parallelism: 4}
	require.NoError(t, Save(in, path))

	out, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "Deep", out.Calendar)
	assert.Equal(t, []string{"u1"}, out.Users)
	assert.Equal(t, 4, out.Parallelism)
}
