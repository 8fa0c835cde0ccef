// Package chunk splits tasks longer than their chunk size into a family of
// sequential sub-tasks, each placed in its own slot.
//
// The original task becomes chunk 1 and keeps its id; chunks 2..N are new tasks
// pointing back at it through ParentChunkID.
package chunk

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/harrisonrobin/autosched/pkg/eta"
	"github.com/harrisonrobin/autosched/pkg/model"
	"github.com/harrisonrobin/autosched/pkg/slots"
)

const DefaultChunkMinutes = 60

type SlotFinder interface {
	FindAvailableSlots(ctx context.Context, q slots.Query) ([]model.TimeSlot, error)
}

type TaskWriter interface {
	UpdateSchedule(ctx context.Context, id string, upd model.ScheduleUpdate) error
	CreateTask(ctx context.Context, t *model.Task) error
}

type Planner struct {
	finder       SlotFinder
	writer       TaskWriter
	defaultChunk int
	now          func() time.Time
	log          zerolog.Logger
}

// NewPlanner returns a planner. defaultChunk applies to tasks without their own
// chunk size; values <= 0 mean DefaultChunkMinutes.
func NewPlanner(finder SlotFinder, writer TaskWriter, defaultChunk int, now func() time.Time, log zerolog.Logger) *Planner {
	if defaultChunk <= 0 {
		defaultChunk = DefaultChunkMinutes
	}
	if now == nil {
		now = time.Now
	}
	return &Planner{finder: finder, writer: writer, defaultChunk: defaultChunk, now: now, log: log}
}

// SizeFor returns the chunk size that applies to t.
func (p *Planner) SizeFor(t *model.Task) int {
	if t.ChunkDurationMins != nil && *t.ChunkDurationMins > 0 {
		return *t.ChunkDurationMins
	}
	return p.defaultChunk
}

// NeedsChunking reports whether t is longer than its chunk size.
func (p *Planner) NeedsChunking(t *model.Task) bool {
	return t.DurationMinutes > p.SizeFor(t)
}

// Plan places the task's remaining work chunk by chunk and persists the family.
// When a chunk cannot be placed planning stops and the chunks found so far are
// kept. A nil result means not even the first chunk fit.
func (p *Planner) Plan(ctx context.Context, task *model.Task, schedule model.ScheduleConfig) (*model.SchedulingResult, error) {
	size := p.SizeFor(task)
	remaining := task.RemainingMinutes()
	if remaining <= 0 {
		return nil, nil
	}
	numChunks := (remaining + size - 1) / size

	var placed []model.TimeSlot
	var prevEnd time.Time
	for i := 0; i < numChunks; i++ {
		minutes := size
		if i == numChunks-1 {
			minutes = remaining - i*size
		}

		candidates, err := p.finder.FindAvailableSlots(ctx, slots.Query{
			UserID:          task.UserID,
			DurationMinutes: minutes,
			Deadline:        task.DueDate,
			Schedule:        schedule,
			IdealStartTime:  task.IdealStartTime,
			IsHardDeadline:  task.IsHardDeadline,
			ExcludeTaskIDs:  []string{task.ID},
			NotBefore:       prevEnd,
		})
		if err != nil {
			return nil, fmt.Errorf("find slot for chunk %d: %w", i+1, err)
		}

		slot, ok := bestAfter(candidates, prevEnd)
		if !ok {
			p.log.Info().Str("task_id", task.ID).Int("chunk", i+1).Int("planned", numChunks).
				Msg("no slot for chunk, keeping partial plan")
			break
		}
		placed = append(placed, slot)
		prevEnd = slot.End
	}

	if len(placed) == 0 {
		return nil, nil
	}
	return p.commit(ctx, task, size, placed)
}

func (p *Planner) commit(ctx context.Context, task *model.Task, size int, placed []model.TimeSlot) (*model.SchedulingResult, error) {
	total := len(placed)
	first := placed[0]
	est := eta.Calculate(&first.Start, task.DueDate, p.now())

	err := p.writer.UpdateSchedule(ctx, task.ID, model.ScheduleUpdate{
		Start: first.Start,
		End:   first.End,
		ETA:   est,
		Chunk: &model.ChunkInfo{DurationMins: size, TotalChunks: total, ChunkNumber: 1},
	})
	if err != nil {
		return nil, fmt.Errorf("update first chunk: %w", err)
	}

	result := &model.SchedulingResult{
		TaskID:         task.ID,
		ScheduledStart: first.Start,
		ScheduledEnd:   first.End,
		ETA:            est,
		Chunks:         []model.ChunkPlacement{{TaskID: task.ID, ChunkNumber: 1, Start: first.Start, End: first.End}},
	}

	for i := 1; i < total; i++ {
		slot := placed[i]
		number := i + 1
		child := &model.Task{
			ID:                uuid.New().String(),
			UserID:            task.UserID,
			WorkspaceID:       task.WorkspaceID,
			ProjectID:         task.ProjectID,
			Name:              fmt.Sprintf("%s (%d/%d)", task.Name, number, total),
			Status:            model.StatusActive,
			DurationMinutes:   int(slot.End.Sub(slot.Start) / time.Minute),
			DueDate:           task.DueDate,
			IsHardDeadline:    task.IsHardDeadline,
			IdealStartTime:    task.IdealStartTime,
			Priority:          task.Priority,
			IsAutoScheduled:   true,
			ScheduleID:        task.ScheduleID,
			ScheduledStart:    timePtr(slot.Start),
			ScheduledEnd:      timePtr(slot.End),
			ChunkDurationMins: intPtr(size),
			TotalChunks:       intPtr(total),
			ChunkNumber:       intPtr(number),
			ParentChunkID:     task.ID,
			ETADaysOffset:     est.DaysOffset,
			ETAStatus:         est.Status,
		}
		if err := p.writer.CreateTask(ctx, child); err != nil {
			return nil, fmt.Errorf("create chunk %d/%d: %w", number, total, err)
		}
		result.Chunks = append(result.Chunks, model.ChunkPlacement{
			TaskID: child.ID, ChunkNumber: number, Start: slot.Start, End: slot.End,
		})
	}

	p.log.Info().Str("task_id", task.ID).Int("chunks", total).Time("start", first.Start).Msg("chunked task scheduled")
	return result, nil
}

// bestAfter returns the highest ranked slot starting strictly after prevEnd.
// A zero prevEnd accepts any slot.
func bestAfter(ranked []model.TimeSlot, prevEnd time.Time) (model.TimeSlot, bool) {
	for _, s := range ranked {
		if prevEnd.IsZero() || s.Start.After(prevEnd) {
			return s, true
		}
	}
	return model.TimeSlot{}, false
}

func timePtr(t time.Time) *time.Time { return &t }

func intPtr(v int) *int { return &v }
