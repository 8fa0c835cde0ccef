package model

import "time"

const (
	StatusActive    = "active"
	StatusCompleted = "completed"
)

// Task is the schedulable unit. Identity, deadline and priority fields are owned by
// whoever created the task; the scheduling, ETA and chunk fields are written by the engine.
type Task struct {
	ID          string
	UserID      string
	WorkspaceID string
	ProjectID   string
	Name        string
	Status      string

	DurationMinutes int
	DueDate         *time.Time
	IsHardDeadline  bool
	IdealStartTime  string // "HH:MM", empty when there is no preference
	Priority        string
	IsAutoScheduled bool
	IsReminderOnly  bool
	ScheduleID      string
	TimeSpentMins   int

	// Written by the engine
	ScheduledStart    *time.Time
	ScheduledEnd      *time.Time
	ChunkDurationMins *int
	TotalChunks       *int
	ChunkNumber       *int
	ParentChunkID     string
	ETADaysOffset     int
	ETAStatus         ETAStatus

	CreatedAt time.Time
	UpdatedAt time.Time
}

// IsChunkChild reports whether the task was generated by chunk planning.
func (t *Task) IsChunkChild() bool {
	return t.ParentChunkID != ""
}

// RemainingMinutes is the unworked part of the task, never negative.
func (t *Task) RemainingMinutes() int {
	rem := t.DurationMinutes - t.TimeSpentMins
	if rem < 0 {
		return 0
	}
	return rem
}

// ChunkInfo places a task inside a chunk family.
type ChunkInfo struct {
	DurationMins int
	TotalChunks  int
	ChunkNumber  int
}

// ScheduleUpdate is the set of engine-owned fields written after a task is placed.
// A nil Chunk clears any previous chunk bookkeeping on the task.
type ScheduleUpdate struct {
	Start time.Time
	End   time.Time
	ETA   ETA
	Chunk *ChunkInfo
}

// TaskFilter narrows batch queries to one user and optionally one workspace.
type TaskFilter struct {
	UserID      string
	WorkspaceID string
}

// Matches reports whether the task belongs to the filter's user and workspace.
func (f TaskFilter) Matches(t *Task) bool {
	if t.UserID != f.UserID {
		return false
	}
	return f.WorkspaceID == "" || t.WorkspaceID == f.WorkspaceID
}
