package taskwarrior

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/harrisonrobin/autosched/pkg/model"
	"github.com/harrisonrobin/autosched/pkg/util"
)

// TaskCreator is the slice of the store the importer needs.
type TaskCreator interface {
	GetTask(ctx context.Context, id string) (*model.Task, error)
	CreateTask(ctx context.Context, t *model.Task) error
}

type ImportResult struct {
	Created  int
	Existing int
	Skipped  int
}

var priorities = map[string]string{
	"H": "High",
	"M": "Medium",
	"L": "Low",
}

type Importer struct {
	store TaskCreator
	log   zerolog.Logger
}

func NewImporter(store TaskCreator, log zerolog.Logger) *Importer {
	return &Importer{store: store, log: log}
}

// Import creates an engine task for every new pending or waiting Taskwarrior task.
func (im *Importer) Import(ctx context.Context, tasks []Task, userID, workspaceID string) (ImportResult, error) {
	var (
		res       ImportResult
		converted []*model.Task
	)
	for _, tw := range tasks {
		if tw.Status != PENDING && tw.Status != WAITING {
			res.Skipped++
			continue
		}
		task, err := Convert(tw, userID, workspaceID)
		if err != nil {
			im.log.Warn().Err(err).Str("uuid", tw.UUID).Msg("skipping task")
			res.Skipped++
			continue
		}
		converted = append(converted, task)
	}

	saved, err := im.Save(ctx, converted)
	res.Created, res.Existing = saved.Created, saved.Existing
	res.Skipped += saved.Skipped
	return res, err
}

// Save inserts the active tasks that are not stored yet. Tasks already present
// (by id) are left alone so engine-owned fields survive a re-import.
func (im *Importer) Save(ctx context.Context, tasks []*model.Task) (ImportResult, error) {
	var res ImportResult
	for _, t := range tasks {
		if t.Status != model.StatusActive {
			res.Skipped++
			continue
		}
		existing, err := im.store.GetTask(ctx, t.ID)
		if err != nil {
			return res, fmt.Errorf("lookup %s: %w", t.ID, err)
		}
		if existing != nil {
			res.Existing++
			continue
		}
		if err := im.store.CreateTask(ctx, t); err != nil {
			return res, fmt.Errorf("create %s: %w", t.ID, err)
		}
		res.Created++
	}
	im.log.Info().Int("created", res.Created).Int("existing", res.Existing).Int("skipped", res.Skipped).Msg("import finished")
	return res, nil
}

// Convert maps a Taskwarrior task onto an engine task. A task without an
// estimate cannot be placed and is rejected.
func Convert(tw Task, userID, workspaceID string) (*model.Task, error) {
	est, err := parseDuration(tw.Est)
	if err != nil {
		return nil, fmt.Errorf("est: %w", err)
	}
	if est <= 0 {
		return nil, fmt.Errorf("no estimate")
	}
	spent, err := parseDuration(tw.Act)
	if err != nil {
		return nil, fmt.Errorf("act: %w", err)
	}

	t := &model.Task{
		ID:              tw.UUID,
		UserID:          userID,
		WorkspaceID:     workspaceID,
		ProjectID:       tw.Project,
		Name:            tw.Description,
		Status:          model.StatusActive,
		DurationMinutes: int(est / time.Minute),
		TimeSpentMins:   int(spent / time.Minute),
		IsHardDeadline:  tw.HasTag(TagHardDeadline),
		IsReminderOnly:  tw.HasTag(TagReminder),
		IsAutoScheduled: !tw.HasTag(TagManual),
		ScheduleID:      tw.Schedule,
		Priority:        priorities[strings.ToUpper(tw.Priority)],
	}
	if tw.Due != nil && !tw.Due.IsZero() {
		due := tw.Due.Time
		t.DueDate = &due
	}
	if tw.Ideal != "" {
		if _, err := util.ParseClock(tw.Ideal); err != nil {
			return nil, fmt.Errorf("ideal: %w", err)
		}
		t.IdealStartTime = tw.Ideal
	}
	if tw.Chunk != "" {
		size, err := parseDuration(tw.Chunk)
		if err != nil {
			return nil, fmt.Errorf("chunk: %w", err)
		}
		mins := int(size / time.Minute)
		t.ChunkDurationMins = &mins
	}
	return t, nil
}

// parseDuration takes Taskwarrior's ISO 8601 form (PT1H30M) or a Go duration (1h30m).
func parseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}
	if strings.HasPrefix(s, "P") {
		return util.ParseDuration(s)
	}
	return time.ParseDuration(s)
}
