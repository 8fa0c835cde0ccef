// Package store persists tasks, named schedules and work-hour preferences.
//
// Two implementations share the same method set: SQLite for real use and Memory for
// tests and dry runs. Chunk families are stored flat; a child only carries its
// parent's id.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/harrisonrobin/autosched/pkg/model"
)

// ErrNotFound is returned by updates that target a task which does not exist.
var ErrNotFound = errors.New("task not found")

// Store is the full persistence surface used by the CLI and the scheduler.
type Store interface {
	CreateTask(ctx context.Context, t *model.Task) error
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListTasks(ctx context.Context, f model.TaskFilter) ([]model.Task, error)
	ListEligibleTasks(ctx context.Context, f model.TaskFilter) ([]model.Task, error)
	ListDeadlineTasks(ctx context.Context, f model.TaskFilter) ([]model.Task, error)
	ListScheduledTasks(ctx context.Context, userID string, from, to time.Time) ([]model.Task, error)
	UpdateSchedule(ctx context.Context, id string, upd model.ScheduleUpdate) error
	UpdateETA(ctx context.Context, id string, eta model.ETA) error
	ClearSchedules(ctx context.Context, ids []string) error
	DeleteChunkChildren(ctx context.Context, parentIDs []string) (int, error)

	GetSchedule(ctx context.Context, id string) (*model.ScheduleConfig, error)
	PutSchedule(ctx context.Context, id, userID string, cfg model.ScheduleConfig) error
	GetWorkHours(ctx context.Context, userID string) (*model.WorkHours, error)
	PutWorkHours(ctx context.Context, userID string, wh model.WorkHours) error

	Close() error
}

func eligible(t *model.Task) bool {
	return t.IsAutoScheduled && t.Status == model.StatusActive && !t.IsReminderOnly && !t.IsChunkChild()
}

func blocksTime(t *model.Task, userID string, from, to time.Time) bool {
	if t.UserID != userID || !t.IsAutoScheduled || t.Status != model.StatusActive {
		return false
	}
	if t.ScheduledStart == nil || t.ScheduledEnd == nil {
		return false
	}
	return t.ScheduledStart.Before(to) && t.ScheduledEnd.After(from)
}

func intPtr(v int) *int { return &v }
