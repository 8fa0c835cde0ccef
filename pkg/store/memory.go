package store

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/harrisonrobin/autosched/pkg/model"
)

type scheduleRow struct {
	userID string
	cfg    model.ScheduleConfig
}

// Memory keeps everything in maps keyed by id. Insertion order is preserved so
// listings are deterministic.
type Memory struct {
	mu        sync.RWMutex
	tasks     map[string]*model.Task
	order     []string
	schedules map[string]scheduleRow
	workHours map[string]model.WorkHours
}

var _ Store = (*Memory)(nil)

func NewMemory() *Memory {
	return &Memory{
		tasks:     make(map[string]*model.Task),
		schedules: make(map[string]scheduleRow),
		workHours: make(map[string]model.WorkHours),
	}
}

func (m *Memory) Close() error { return nil }

func (m *Memory) CreateTask(_ context.Context, t *model.Task) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now().UTC()
	if t.CreatedAt.IsZero() {
		t.CreatedAt = now
	}
	t.UpdatedAt = now
	if t.Status == "" {
		t.Status = model.StatusActive
	}
	if t.ETAStatus == "" {
		t.ETAStatus = model.ETAOnTrack
	}

	cp := *t
	if _, exists := m.tasks[t.ID]; !exists {
		m.order = append(m.order, t.ID)
	}
	m.tasks[t.ID] = &cp
	return nil
}

func (m *Memory) GetTask(_ context.Context, id string) (*model.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	t, ok := m.tasks[id]
	if !ok {
		return nil, nil
	}
	cp := *t
	return &cp, nil
}

func (m *Memory) list(keep func(*model.Task) bool) []model.Task {
	m.mu.RLock()
	defer m.mu.RUnlock()

	var out []model.Task
	for _, id := range m.order {
		if t := m.tasks[id]; keep(t) {
			out = append(out, *t)
		}
	}
	return out
}

func (m *Memory) ListTasks(_ context.Context, f model.TaskFilter) ([]model.Task, error) {
	return m.list(f.Matches), nil
}

func (m *Memory) ListEligibleTasks(_ context.Context, f model.TaskFilter) ([]model.Task, error) {
	return m.list(func(t *model.Task) bool { return f.Matches(t) && eligible(t) }), nil
}

func (m *Memory) ListDeadlineTasks(_ context.Context, f model.TaskFilter) ([]model.Task, error) {
	return m.list(func(t *model.Task) bool {
		return f.Matches(t) && t.Status == model.StatusActive && t.DueDate != nil
	}), nil
}

func (m *Memory) ListScheduledTasks(_ context.Context, userID string, from, to time.Time) ([]model.Task, error) {
	out := m.list(func(t *model.Task) bool { return blocksTime(t, userID, from, to) })
	sort.SliceStable(out, func(i, j int) bool { return out[i].ScheduledStart.Before(*out[j].ScheduledStart) })
	return out, nil
}

func (m *Memory) UpdateSchedule(_ context.Context, id string, upd model.ScheduleUpdate) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	start, end := upd.Start, upd.End
	t.ScheduledStart = &start
	t.ScheduledEnd = &end
	t.ETADaysOffset = upd.ETA.DaysOffset
	t.ETAStatus = upd.ETA.Status
	if upd.Chunk != nil {
		t.ChunkDurationMins = intPtr(upd.Chunk.DurationMins)
		t.TotalChunks = intPtr(upd.Chunk.TotalChunks)
		t.ChunkNumber = intPtr(upd.Chunk.ChunkNumber)
	} else {
		t.TotalChunks = nil
		t.ChunkNumber = nil
	}
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) UpdateETA(_ context.Context, id string, eta model.ETA) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	t, ok := m.tasks[id]
	if !ok {
		return ErrNotFound
	}
	t.ETADaysOffset = eta.DaysOffset
	t.ETAStatus = eta.Status
	t.UpdatedAt = time.Now().UTC()
	return nil
}

func (m *Memory) ClearSchedules(_ context.Context, ids []string) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	for _, id := range ids {
		if t, ok := m.tasks[id]; ok {
			t.ScheduledStart = nil
			t.ScheduledEnd = nil
			t.UpdatedAt = time.Now().UTC()
		}
	}
	return nil
}

func (m *Memory) DeleteChunkChildren(_ context.Context, parentIDs []string) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()

	parents := make(map[string]bool, len(parentIDs))
	for _, id := range parentIDs {
		parents[id] = true
	}

	kept := m.order[:0]
	deleted := 0
	for _, id := range m.order {
		if t := m.tasks[id]; parents[t.ParentChunkID] {
			delete(m.tasks, id)
			deleted++
			continue
		}
		kept = append(kept, id)
	}
	m.order = kept
	return deleted, nil
}

func (m *Memory) GetSchedule(_ context.Context, id string) (*model.ScheduleConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	row, ok := m.schedules[id]
	if !ok {
		return nil, nil
	}
	cfg := row.cfg
	return &cfg, nil
}

func (m *Memory) PutSchedule(_ context.Context, id, userID string, cfg model.ScheduleConfig) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.schedules[id] = scheduleRow{userID: userID, cfg: cfg}
	return nil
}

func (m *Memory) GetWorkHours(_ context.Context, userID string) (*model.WorkHours, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()

	wh, ok := m.workHours[userID]
	if !ok {
		return nil, nil
	}
	return &wh, nil
}

func (m *Memory) PutWorkHours(_ context.Context, userID string, wh model.WorkHours) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.workHours[userID] = wh
	return nil
}
