package store

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/autosched/pkg/model"
)

func newTestSQLite(t *testing.T) *SQLite {
	t.Helper()
	s, err := NewSQLite(filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func eachStore(t *testing.T, fn func(t *testing.T, s Store)) {
	t.Run("memory", func(t *testing.T) { fn(t, NewMemory()) })
	t.Run("sqlite", func(t *testing.T) { fn(t, newTestSQLite(t)) })
}

func at(h, m int) time.Time {
	return time.Date(2024, 3, 5, h, m, 0, 0, time.UTC)
}

func TestNewSQLiteCreatesFile(t *testing.T) {
	dbPath := filepath.Join(t.TempDir(), "nested", "autosched.db")
	s, err := NewSQLite(dbPath)
	require.NoError(t, err)
	defer s.Close()

	_, err = os.Stat(dbPath)
	assert.NoError(t, err)
}

func TestTaskRoundTrip(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		due := at(17, 0).AddDate(0, 0, 3)
		chunk := 45
		task := &model.Task{
			UserID:            "u1",
			WorkspaceID:       "w1",
			Name:              "Write report",
			DurationMinutes:   90,
			DueDate:           &due,
			IsHardDeadline:    true,
			IdealStartTime:    "10:00",
			Priority:          "Big Rock",
			IsAutoScheduled:   true,
			ChunkDurationMins: &chunk,
			TimeSpentMins:     15,
		}
		require.NoError(t, s.CreateTask(ctx, task))
		require.NotEmpty(t, task.ID)

		got, err := s.GetTask(ctx, task.ID)
		require.NoError(t, err)
		require.NotNil(t, got)
		assert.Equal(t, "Write report", got.Name)
		assert.Equal(t, model.StatusActive, got.Status)
		assert.True(t, got.DueDate.Equal(due))
		assert.True(t, got.IsHardDeadline)
		assert.True(t, got.IsAutoScheduled)
		assert.False(t, got.IsReminderOnly)
		assert.Equal(t, 45, *got.ChunkDurationMins)
		assert.Nil(t, got.ScheduledStart)
		assert.Equal(t, model.ETAOnTrack, got.ETAStatus)

		missing, err := s.GetTask(ctx, "nope")
		require.NoError(t, err)
		assert.Nil(t, missing)
	})
}

func TestEligibleAndDeadlineFilters(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		due := at(12, 0)
		tasks := []*model.Task{
			{ID: "a", UserID: "u1", WorkspaceID: "w1", Name: "a", DurationMinutes: 30, IsAutoScheduled: true, DueDate: &due},
			{ID: "b", UserID: "u1", WorkspaceID: "w2", Name: "b", DurationMinutes: 30, IsAutoScheduled: true},
			{ID: "c", UserID: "u1", Name: "c", DurationMinutes: 30, IsAutoScheduled: true, IsReminderOnly: true},
			{ID: "d", UserID: "u1", Name: "d", DurationMinutes: 30, IsAutoScheduled: false, DueDate: &due},
			{ID: "e", UserID: "u1", Name: "e", DurationMinutes: 30, IsAutoScheduled: true, ParentChunkID: "a"},
			{ID: "f", UserID: "u1", Name: "f", DurationMinutes: 30, IsAutoScheduled: true, Status: model.StatusCompleted},
			{ID: "g", UserID: "u2", Name: "g", DurationMinutes: 30, IsAutoScheduled: true},
		}
		for _, task := range tasks {
			require.NoError(t, s.CreateTask(ctx, task))
		}

		got, err := s.ListEligibleTasks(ctx, model.TaskFilter{UserID: "u1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids(got))

		got, err = s.ListEligibleTasks(ctx, model.TaskFilter{UserID: "u1", WorkspaceID: "w2"})
		require.NoError(t, err)
		assert.Equal(t, []string{"b"}, ids(got))

		got, err = s.ListDeadlineTasks(ctx, model.TaskFilter{UserID: "u1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "d"}, ids(got))
	})
}

func TestScheduleUpdatesAndRangeQuery(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		for _, id := range []string{"a", "b", "c"} {
			require.NoError(t, s.CreateTask(ctx, &model.Task{ID: id, UserID: "u1", Name: id, DurationMinutes: 60, IsAutoScheduled: true}))
		}

		eta := model.ETA{DaysOffset: 1, Status: model.ETAAtRisk}
		require.NoError(t, s.UpdateSchedule(ctx, "a", model.ScheduleUpdate{Start: at(9, 0), End: at(10, 0), ETA: eta}))
		require.NoError(t, s.UpdateSchedule(ctx, "b", model.ScheduleUpdate{
			Start: at(14, 0), End: at(15, 0), ETA: eta,
			Chunk: &model.ChunkInfo{DurationMins: 60, TotalChunks: 2, ChunkNumber: 1},
		}))
		assert.ErrorIs(t, s.UpdateSchedule(ctx, "zzz", model.ScheduleUpdate{Start: at(9, 0), End: at(10, 0)}), ErrNotFound)

		got, err := s.GetTask(ctx, "b")
		require.NoError(t, err)
		assert.True(t, got.ScheduledStart.Equal(at(14, 0)))
		assert.Equal(t, 2, *got.TotalChunks)
		assert.Equal(t, 1, *got.ChunkNumber)
		assert.Equal(t, model.ETAAtRisk, got.ETAStatus)

		inRange, err := s.ListScheduledTasks(ctx, "u1", at(9, 30), at(14, 0))
		require.NoError(t, err)
		assert.Equal(t, []string{"a"}, ids(inRange))

		inRange, err = s.ListScheduledTasks(ctx, "u1", at(8, 0), at(18, 0))
		require.NoError(t, err)
		assert.Equal(t, []string{"a", "b"}, ids(inRange))

		require.NoError(t, s.ClearSchedules(ctx, []string{"a", "b"}))
		inRange, err = s.ListScheduledTasks(ctx, "u1", at(8, 0), at(18, 0))
		require.NoError(t, err)
		assert.Empty(t, inRange)

		require.NoError(t, s.UpdateETA(ctx, "c", model.ETA{DaysOffset: -2, Status: model.ETAOverdue}))
		got, err = s.GetTask(ctx, "c")
		require.NoError(t, err)
		assert.Equal(t, -2, got.ETADaysOffset)
		assert.Equal(t, model.ETAOverdue, got.ETAStatus)
	})
}

func TestDeleteChunkChildren(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		require.NoError(t, s.CreateTask(ctx, &model.Task{ID: "p", UserID: "u1", Name: "p", DurationMinutes: 120, IsAutoScheduled: true}))
		require.NoError(t, s.CreateTask(ctx, &model.Task{ID: "p2", UserID: "u1", Name: "p (2/2)", DurationMinutes: 60, IsAutoScheduled: true, ParentChunkID: "p"}))
		require.NoError(t, s.CreateTask(ctx, &model.Task{ID: "q2", UserID: "u1", Name: "q (2/2)", DurationMinutes: 60, IsAutoScheduled: true, ParentChunkID: "q"}))

		n, err := s.DeleteChunkChildren(ctx, []string{"p"})
		require.NoError(t, err)
		assert.Equal(t, 1, n)

		all, err := s.ListTasks(ctx, model.TaskFilter{UserID: "u1"})
		require.NoError(t, err)
		assert.Equal(t, []string{"p", "q2"}, ids(all))
	})
}

func TestSchedulesAndWorkHours(t *testing.T) {
	eachStore(t, func(t *testing.T, s Store) {
		ctx := context.Background()
		cfg := model.ScheduleConfig{StartTime: "07:00", EndTime: "11:00", DaysOfWeek: []time.Weekday{time.Saturday, time.Sunday}}
		require.NoError(t, s.PutSchedule(ctx, "weekend", "u1", cfg))

		got, err := s.GetSchedule(ctx, "weekend")
		require.NoError(t, err)
		assert.Equal(t, cfg, *got)

		none, err := s.GetSchedule(ctx, "other")
		require.NoError(t, err)
		assert.Nil(t, none)

		wh := model.WorkHours{Enabled: true, StartTime: "08:00", EndTime: "16:00", Days: []string{"monday", "tuesday"}}
		require.NoError(t, s.PutWorkHours(ctx, "u1", wh))
		wh.Enabled = false
		require.NoError(t, s.PutWorkHours(ctx, "u1", wh))

		gotWH, err := s.GetWorkHours(ctx, "u1")
		require.NoError(t, err)
		assert.Equal(t, wh, *gotWH)

		noneWH, err := s.GetWorkHours(ctx, "u2")
		require.NoError(t, err)
		assert.Nil(t, noneWH)
	})
}

func ids(tasks []model.Task) []string {
	out := make([]string, len(tasks))
	for i, t := range tasks {
		out[i] = t.ID
	}
	return out
}
