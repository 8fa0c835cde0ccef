// Package scheduler is the entry point of the auto-scheduling engine.
//
// Batches are deliberately sequential: every placement is persisted before the next
// task searches for a slot, so later tasks see earlier ones as busy time. All work
// for one user is serialized by the orchestrator; different users may run in
// parallel (see RescheduleUsers).
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/harrisonrobin/autosched/pkg/eta"
	"github.com/harrisonrobin/autosched/pkg/model"
	"github.com/harrisonrobin/autosched/pkg/slots"
)

// TaskStore is the persistence port the orchestrator reads and writes through.
type TaskStore interface {
	GetTask(ctx context.Context, id string) (*model.Task, error)
	ListEligibleTasks(ctx context.Context, f model.TaskFilter) ([]model.Task, error)
	ListDeadlineTasks(ctx context.Context, f model.TaskFilter) ([]model.Task, error)
	UpdateSchedule(ctx context.Context, id string, upd model.ScheduleUpdate) error
	UpdateETA(ctx context.Context, id string, e model.ETA) error
	ClearSchedules(ctx context.Context, ids []string) error
	DeleteChunkChildren(ctx context.Context, parentIDs []string) (int, error)
}

type ConfigResolver interface {
	Resolve(ctx context.Context, scheduleID, userID string) model.ScheduleConfig
}

type SlotFinder interface {
	FindAvailableSlots(ctx context.Context, q slots.Query) ([]model.TimeSlot, error)
}

type ChunkPlanner interface {
	NeedsChunking(t *model.Task) bool
	Plan(ctx context.Context, t *model.Task, schedule model.ScheduleConfig) (*model.SchedulingResult, error)
}

// Deps wires an Orchestrator. Now and Log are optional.
type Deps struct {
	Store    TaskStore
	Resolver ConfigResolver
	Finder   SlotFinder
	Planner  ChunkPlanner
	Now      func() time.Time
	Log      zerolog.Logger
}

type Orchestrator struct {
	store    TaskStore
	resolver ConfigResolver
	finder   SlotFinder
	planner  ChunkPlanner
	now      func() time.Time
	log      zerolog.Logger
	locks    *userLocks
}

func New(d Deps) *Orchestrator {
	now := d.Now
	if now == nil {
		now = time.Now
	}
	return &Orchestrator{
		store:    d.Store,
		resolver: d.Resolver,
		finder:   d.Finder,
		planner:  d.Planner,
		now:      now,
		log:      d.Log,
		locks:    newUserLocks(),
	}
}

// CalculateETA is the engine's deadline-risk function evaluated at the current time.
func (o *Orchestrator) CalculateETA(scheduled, deadline *time.Time) model.ETA {
	return eta.Calculate(scheduled, deadline, o.now())
}

// ScheduleTask places one task. A nil result with a nil error means the task is not
// eligible or no slot was found; in the latter case its ETA is still refreshed.
func (o *Orchestrator) ScheduleTask(ctx context.Context, taskID, userID string) (*model.SchedulingResult, error) {
	unlock := o.locks.Lock(userID)
	defer unlock()
	return o.scheduleTask(ctx, taskID, userID)
}

func (o *Orchestrator) scheduleTask(ctx context.Context, taskID, userID string) (*model.SchedulingResult, error) {
	task, err := o.store.GetTask(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("load task %s: %w", taskID, err)
	}
	if task == nil || task.UserID != userID || !task.IsAutoScheduled || task.IsReminderOnly {
		return nil, nil
	}
	log := o.log.With().Str("task_id", task.ID).Str("user_id", userID).Logger()

	schedule := o.resolver.Resolve(ctx, task.ScheduleID, userID)

	removed := 0
	if !task.IsChunkChild() {
		// a previous plan's children would otherwise block or duplicate this one
		if removed, err = o.store.DeleteChunkChildren(ctx, []string{task.ID}); err != nil {
			return nil, fmt.Errorf("delete stale chunks of %s: %w", task.ID, err)
		}
	}
	unscheduled := func() error {
		if removed > 0 {
			if err := o.store.ClearSchedules(ctx, []string{task.ID}); err != nil {
				return fmt.Errorf("clear schedule of %s: %w", task.ID, err)
			}
		}
		return o.markUnscheduled(ctx, log, task)
	}

	if o.planner.NeedsChunking(task) {
		res, err := o.planner.Plan(ctx, task, schedule)
		if err != nil {
			return nil, fmt.Errorf("plan chunks for %s: %w", task.ID, err)
		}
		if res == nil {
			return nil, unscheduled()
		}
		return res, nil
	}

	minutes := task.RemainingMinutes()
	if minutes == 0 {
		return nil, unscheduled()
	}
	candidates, err := o.finder.FindAvailableSlots(ctx, slots.Query{
		UserID:          userID,
		DurationMinutes: minutes,
		Deadline:        task.DueDate,
		Schedule:        schedule,
		IdealStartTime:  task.IdealStartTime,
		IsHardDeadline:  task.IsHardDeadline,
		ExcludeTaskIDs:  []string{task.ID},
	})
	if err != nil {
		return nil, fmt.Errorf("find slots for %s: %w", task.ID, err)
	}
	if len(candidates) == 0 {
		return nil, unscheduled()
	}

	best := candidates[0]
	est := o.CalculateETA(&best.Start, task.DueDate)
	upd := model.ScheduleUpdate{Start: best.Start, End: best.End, ETA: est, Chunk: familyPosition(task)}
	if err := o.store.UpdateSchedule(ctx, task.ID, upd); err != nil {
		return nil, fmt.Errorf("save schedule for %s: %w", task.ID, err)
	}
	log.Debug().Time("start", best.Start).Time("end", best.End).Float64("score", best.Score).
		Str("eta", string(est.Status)).Msg("task scheduled")

	return &model.SchedulingResult{
		TaskID:         task.ID,
		ScheduledStart: best.Start,
		ScheduledEnd:   best.End,
		ETA:            est,
	}, nil
}

// familyPosition keeps a chunk child's place in its family when it is moved on
// its own. Other tasks drop any chunk position left from an earlier plan.
func familyPosition(t *model.Task) *model.ChunkInfo {
	if !t.IsChunkChild() || t.TotalChunks == nil || t.ChunkNumber == nil {
		return nil
	}
	info := &model.ChunkInfo{TotalChunks: *t.TotalChunks, ChunkNumber: *t.ChunkNumber, DurationMins: t.DurationMinutes}
	if t.ChunkDurationMins != nil {
		info.DurationMins = *t.ChunkDurationMins
	}
	return info
}

// markUnscheduled keeps risk reporting accurate for tasks that got no slot.
func (o *Orchestrator) markUnscheduled(ctx context.Context, log zerolog.Logger, task *model.Task) error {
	est := o.CalculateETA(nil, task.DueDate)
	if err := o.store.UpdateETA(ctx, task.ID, est); err != nil {
		return fmt.Errorf("save eta for %s: %w", task.ID, err)
	}
	log.Info().Str("eta", string(est.Status)).Msg("no slot found")
	return nil
}

// RescheduleAll clears and rebuilds the schedule of every eligible task of the user,
// in deadline then priority order. Per-task failures are counted, not returned;
// the error is reserved for failures that prevent the batch from starting.
func (o *Orchestrator) RescheduleAll(ctx context.Context, userID, workspaceID string) (model.BatchResult, error) {
	unlock := o.locks.Lock(userID)
	defer unlock()

	var result model.BatchResult
	filter := model.TaskFilter{UserID: userID, WorkspaceID: workspaceID}
	tasks, err := o.store.ListEligibleTasks(ctx, filter)
	if err != nil {
		return result, fmt.Errorf("list eligible tasks: %w", err)
	}
	SortForScheduling(tasks)

	ids := make([]string, len(tasks))
	for i, t := range tasks {
		ids[i] = t.ID
	}
	if err := o.store.ClearSchedules(ctx, ids); err != nil {
		return result, fmt.Errorf("clear schedules: %w", err)
	}
	if _, err := o.store.DeleteChunkChildren(ctx, ids); err != nil {
		return result, fmt.Errorf("delete chunk children: %w", err)
	}

	for i, t := range tasks {
		if err := ctx.Err(); err != nil {
			result.Failed += len(tasks) - i
			return result, err
		}
		res, err := o.scheduleTask(ctx, t.ID, userID)
		switch {
		case err != nil:
			result.Failed++
			o.log.Error().Err(err).Str("task_id", t.ID).Msg("reschedule failed")
		case res == nil:
			result.Failed++
		default:
			result.Scheduled++
		}
	}

	o.log.Info().Str("user_id", userID).Str("workspace_id", workspaceID).
		Int("scheduled", result.Scheduled).Int("failed", result.Failed).Msg("reschedule complete")
	return result, nil
}

// UpdateAllETAs recomputes the ETA of every active task with a deadline and writes
// only the ones that changed. It returns the number of tasks written.
func (o *Orchestrator) UpdateAllETAs(ctx context.Context, userID, workspaceID string) (int, error) {
	unlock := o.locks.Lock(userID)
	defer unlock()

	tasks, err := o.store.ListDeadlineTasks(ctx, model.TaskFilter{UserID: userID, WorkspaceID: workspaceID})
	if err != nil {
		return 0, fmt.Errorf("list deadline tasks: %w", err)
	}

	updated := 0
	for _, t := range tasks {
		est := o.CalculateETA(t.ScheduledStart, t.DueDate)
		if est.DaysOffset == t.ETADaysOffset && est.Status == t.ETAStatus {
			continue
		}
		if err := o.store.UpdateETA(ctx, t.ID, est); err != nil {
			return updated, fmt.Errorf("save eta for %s: %w", t.ID, err)
		}
		updated++
	}
	o.log.Debug().Str("user_id", userID).Int("updated", updated).Int("checked", len(tasks)).Msg("etas refreshed")
	return updated, nil
}

// CheckDeadlineConflicts reports active deadline tasks whose cached status is
// at_risk or overdue. It does not recompute anything.
func (o *Orchestrator) CheckDeadlineConflicts(ctx context.Context, userID, workspaceID string) ([]model.ConflictReport, error) {
	tasks, err := o.store.ListDeadlineTasks(ctx, model.TaskFilter{UserID: userID, WorkspaceID: workspaceID})
	if err != nil {
		return nil, fmt.Errorf("list deadline tasks: %w", err)
	}

	var reports []model.ConflictReport
	for _, t := range tasks {
		if t.ETAStatus != model.ETAAtRisk && t.ETAStatus != model.ETAOverdue {
			continue
		}
		reports = append(reports, model.ConflictReport{
			TaskID:        t.ID,
			Name:          t.Name,
			Deadline:      *t.DueDate,
			ScheduledDate: t.ScheduledStart,
			Status:        t.ETAStatus,
		})
	}
	return reports, nil
}

// RescheduleUsers runs RescheduleAll for several users, at most parallelism at a
// time. Each user's batch is still sequential. Errors from individual users are
// joined; results are returned for every user that completed.
func (o *Orchestrator) RescheduleUsers(ctx context.Context, userIDs []string, workspaceID string, parallelism int) (map[string]model.BatchResult, error) {
	if parallelism <= 0 {
		parallelism = 1
	}

	var (
		mu      sync.Mutex
		results = make(map[string]model.BatchResult, len(userIDs))
		errs    []error
	)

	var g errgroup.Group
	g.SetLimit(parallelism)
	for _, userID := range userIDs {
		userID := userID
		g.Go(func() error {
			res, err := o.RescheduleAll(ctx, userID, workspaceID)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("user %s: %w", userID, err))
				return nil
			}
			results[userID] = res
			return nil
		})
	}
	_ = g.Wait()

	return results, errors.Join(errs...)
}
