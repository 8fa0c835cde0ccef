package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type cli struct {
	t    *testing.T
	base []string
}

func newCLI(t *testing.T) *cli {
	dir := t.TempDir()
	return &cli{t: t, base: []string{
		"--config", filepath.Join(dir, "config.yaml"),
		"--db", filepath.Join(dir, "autosched.db"),
		"--user", "alice",
		"--no-calendar",
	}}
}

func (c *cli) run(stdin string, args ...string) (string, error) {
	c.t.Helper()
	var out, errOut bytes.Buffer
	err := run(context.Background(), append(append([]string(nil), c.base...), args...), strings.NewReader(stdin), &out, &errOut)
	return out.String(), err
}

const export = `[
 {"uuid":"11111111-1111-1111-1111-111111111111","description":"Write report","status":"pending","est":"PT1H","priority":"H"},
 {"uuid":"22222222-2222-2222-2222-222222222222","description":"Old thing","status":"completed","est":"PT1H"},
 {"uuid":"33333333-3333-3333-3333-333333333333","description":"Essay","status":"pending","est":"PT2H30M"}
]`

func TestCLIImportScheduleAgenda(t *testing.T) {
	c := newCLI(t)

	out, err := c.run(export, "import")
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 2, already present 0, skipped 1")

	out, err = c.run("", "schedule", "11111111-1111-1111-1111-111111111111")
	require.NoError(t, err)
	assert.Contains(t, out, "Scheduled 11111111-1111-1111-1111-111111111111:")

	out, err = c.run("", "reschedule")
	require.NoError(t, err)
	assert.Contains(t, out, "Scheduled 2, failed 0")

	out, err = c.run("", "agenda")
	require.NoError(t, err)
	assert.Contains(t, out, "Write report")
	assert.Contains(t, out, "Essay (3/3)")

	out, err = c.run("", "conflicts", "--json")
	require.NoError(t, err)
	assert.Equal(t, "[]", strings.TrimSpace(out))

	out, err = c.run("", "schedule", "no-such-task")
	require.NoError(t, err)
	assert.Contains(t, out, "was not scheduled")
}

func TestCLIImportOrg(t *testing.T) {
	c := newCLI(t)
	org := filepath.Join(t.TempDir(), "todo.org")
	require.NoError(t, os.WriteFile(org, []byte(`* TODO [#B] Review budget
  :PROPERTIES:
  :ID: org-1
  :EFFORT: 0:45
  :END:
* DONE Old review
  :PROPERTIES:
  :ID: org-2
  :EFFORT: 0:45
  :END:
`), 0o600))

	out, err := c.run("", "import", "--org", org)
	require.NoError(t, err)
	assert.Contains(t, out, "Imported 1, already present 0, skipped 1")

	out, err = c.run("", "schedule", "org-1")
	require.NoError(t, err)
	assert.Contains(t, out, "Scheduled org-1:")
}

func TestCLIETA(t *testing.T) {
	c := newCLI(t)

	out, err := c.run("", "eta", "--due", "2024-01-10", "--scheduled", "2024-01-05")
	require.NoError(t, err)
	assert.Equal(t, "on_track (+5 days)\n", out)

	out, err = c.run("", "eta", "--due", "2024-01-05T12:00:00Z", "--scheduled", "2024-01-05T09:00:00Z")
	require.NoError(t, err)
	assert.Equal(t, "at_risk (+0 days)\n", out)

	_, err = c.run("", "eta", "--due", "next tuesday")
	assert.Error(t, err)
}

func TestCLIWorkHoursAndSchedules(t *testing.T) {
	c := newCLI(t)

	out, err := c.run("", "workhours", "set", "--start", "08:00", "--end", "12:00", "--days", "saturday,sunday")
	require.NoError(t, err)
	assert.Contains(t, out, "08:00-12:00 on saturday,sunday")

	_, err = c.run("", "workhours", "set", "--start", "12:00", "--end", "08:00")
	assert.Error(t, err)

	_, err = c.run("", "schedules", "add", "deep", "--days", "funday")
	assert.Error(t, err)

	out, err = c.run("", "schedules", "add", "deep", "--start", "06:00", "--end", "08:00")
	require.NoError(t, err)
	assert.Contains(t, out, "Schedule deep: 06:00-08:00")
}

func TestCLIDaemonOnce(t *testing.T) {
	c := newCLI(t)
	_, err := c.run(export, "import")
	require.NoError(t, err)

	_, err = c.run("", "daemon", "--once")
	require.NoError(t, err)

	out, err := c.run("", "agenda")
	require.NoError(t, err)
	assert.Contains(t, out, "Write report")
}

func TestWatchFileDebouncesWrites(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	require.NoError(t, os.WriteFile(path, []byte("cron: '@hourly'\n"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	changed := make(chan struct{}, 1)
	done := make(chan error, 1)
	go func() { done <- watchFile(ctx, path, changed, zerolog.Nop()) }()

	// give the watcher time to register the directory
	time.Sleep(100 * time.Millisecond)
	require.NoError(t, os.WriteFile(filepath.Join(dir, "other.txt"), []byte("x"), 0o600))
	for i := 0; i < 3; i++ {
		require.NoError(t, os.WriteFile(path, []byte("cron: '@daily'\n"), 0o600))
	}

	select {
	case <-changed:
	case <-time.After(5 * time.Second):
		t.Fatal("no reload signal")
	}

	cancel()
	require.NoError(t, <-done)
}
