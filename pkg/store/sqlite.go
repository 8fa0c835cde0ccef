package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	_ "modernc.org/sqlite"

	"github.com/harrisonrobin/autosched/pkg/model"
)

// Timestamps are stored as fixed-width UTC text so range predicates compare correctly.
const timeLayout = "2006-01-02T15:04:05Z"

const taskColumns = `id, user_id, workspace_id, project_id, name, status, duration_minutes, due_date,
	is_hard_deadline, ideal_start_time, priority, is_auto_scheduled, is_reminder_only, schedule_id,
	time_spent_mins, scheduled_start, scheduled_end, chunk_duration_mins, total_chunks, chunk_number,
	parent_chunk_id, eta_days_offset, eta_status, created_at, updated_at`

// SQLite is the database/sql backed store.
type SQLite struct {
	db *sql.DB
}

var _ Store = (*SQLite)(nil)

// NewSQLite opens (creating if needed) the database at dbPath and runs migrations.
// ":memory:" opens a private in-memory database.
func NewSQLite(dbPath string) (*SQLite, error) {
	dsn := ":memory:"
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
			return nil, fmt.Errorf("create db directory: %w", err)
		}
		dsn = dbPath + "?_pragma=journal_mode(WAL)&_pragma=busy_timeout(5000)&_pragma=synchronous(NORMAL)"
	}

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("open db: %w", err)
	}
	// SQLite only supports one writer at a time; one connection also keeps :memory: shared.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	s := &SQLite{db: db}
	if err := s.migrate(); err != nil {
		db.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	return s, nil
}

func (s *SQLite) Close() error {
	return s.db.Close()
}

func (s *SQLite) migrate() error {
	schema := `
	CREATE TABLE IF NOT EXISTS tasks (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		workspace_id TEXT NOT NULL DEFAULT '',
		project_id TEXT NOT NULL DEFAULT '',
		name TEXT NOT NULL,
		status TEXT NOT NULL DEFAULT 'active',
		duration_minutes INTEGER NOT NULL,
		due_date TEXT,
		is_hard_deadline INTEGER NOT NULL DEFAULT 0,
		ideal_start_time TEXT NOT NULL DEFAULT '',
		priority TEXT NOT NULL DEFAULT '',
		is_auto_scheduled INTEGER NOT NULL DEFAULT 0,
		is_reminder_only INTEGER NOT NULL DEFAULT 0,
		schedule_id TEXT NOT NULL DEFAULT '',
		time_spent_mins INTEGER NOT NULL DEFAULT 0,
		scheduled_start TEXT,
		scheduled_end TEXT,
		chunk_duration_mins INTEGER,
		total_chunks INTEGER,
		chunk_number INTEGER,
		parent_chunk_id TEXT NOT NULL DEFAULT '',
		eta_days_offset INTEGER NOT NULL DEFAULT 0,
		eta_status TEXT NOT NULL DEFAULT 'on_track',
		created_at TEXT NOT NULL,
		updated_at TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS schedules (
		id TEXT PRIMARY KEY,
		user_id TEXT NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		days_of_week TEXT NOT NULL
	);

	CREATE TABLE IF NOT EXISTS work_hours (
		user_id TEXT PRIMARY KEY,
		enabled INTEGER NOT NULL,
		start_time TEXT NOT NULL,
		end_time TEXT NOT NULL,
		days TEXT NOT NULL
	);

	CREATE INDEX IF NOT EXISTS idx_tasks_user_scheduled ON tasks(user_id, scheduled_start);
	CREATE INDEX IF NOT EXISTS idx_tasks_parent_chunk ON tasks(parent_chunk_id);
	`
	_, err := s.db.Exec(schema)
	return err
}

// --- Task Operations ---

func (s *SQLite) CreateTask(ctx context.Context, t *model.Task) error {
	if t.ID == "" {
		t.ID = uuid.New().String()
	}
	now := time.Now().UTC().Truncate(time.Second)
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

	_, err := s.db.ExecContext(ctx,
		`INSERT INTO tasks (`+taskColumns+`) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		t.ID, t.UserID, t.WorkspaceID, t.ProjectID, t.Name, t.Status, t.DurationMinutes, fmtTimePtr(t.DueDate),
		t.IsHardDeadline, t.IdealStartTime, t.Priority, t.IsAutoScheduled, t.IsReminderOnly, t.ScheduleID,
		t.TimeSpentMins, fmtTimePtr(t.ScheduledStart), fmtTimePtr(t.ScheduledEnd), nullInt(t.ChunkDurationMins),
		nullInt(t.TotalChunks), nullInt(t.ChunkNumber), t.ParentChunkID, t.ETADaysOffset, string(t.ETAStatus),
		fmtTime(t.CreatedAt), fmtTime(t.UpdatedAt),
	)
	if err != nil {
		return fmt.Errorf("insert task: %w", err)
	}
	return nil
}

// GetTask returns (nil, nil) when the task does not exist.
func (s *SQLite) GetTask(ctx context.Context, id string) (*model.Task, error) {
	row := s.db.QueryRowContext(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = ?`, id)
	t, err := scanTask(row)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query task: %w", err)
	}
	return t, nil
}

func (s *SQLite) ListTasks(ctx context.Context, f model.TaskFilter) ([]model.Task, error) {
	return s.queryTasks(ctx, f, "")
}

func (s *SQLite) ListEligibleTasks(ctx context.Context, f model.TaskFilter) ([]model.Task, error) {
	return s.queryTasks(ctx, f,
		`is_auto_scheduled = 1 AND status = 'active' AND is_reminder_only = 0 AND parent_chunk_id = ''`)
}

func (s *SQLite) ListDeadlineTasks(ctx context.Context, f model.TaskFilter) ([]model.Task, error) {
	return s.queryTasks(ctx, f, `status = 'active' AND due_date IS NOT NULL`)
}

func (s *SQLite) queryTasks(ctx context.Context, f model.TaskFilter, where string) ([]model.Task, error) {
	query := `SELECT ` + taskColumns + ` FROM tasks WHERE user_id = ?`
	args := []interface{}{f.UserID}
	if f.WorkspaceID != "" {
		query += ` AND workspace_id = ?`
		args = append(args, f.WorkspaceID)
	}
	if where != "" {
		query += ` AND ` + where
	}
	query += ` ORDER BY created_at, rowid`
	return s.collect(ctx, query, args...)
}

func (s *SQLite) ListScheduledTasks(ctx context.Context, userID string, from, to time.Time) ([]model.Task, error) {
	return s.collect(ctx,
		`SELECT `+taskColumns+` FROM tasks
		WHERE user_id = ? AND is_auto_scheduled = 1 AND status = 'active'
		AND scheduled_start IS NOT NULL AND scheduled_end IS NOT NULL
		AND scheduled_start < ? AND scheduled_end > ?
		ORDER BY scheduled_start`,
		userID, fmtTime(to), fmtTime(from),
	)
}

func (s *SQLite) collect(ctx context.Context, query string, args ...interface{}) ([]model.Task, error) {
	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("query tasks: %w", err)
	}
	defer rows.Close()

	var tasks []model.Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, fmt.Errorf("scan task: %w", err)
		}
		tasks = append(tasks, *t)
	}
	return tasks, rows.Err()
}

func (s *SQLite) UpdateSchedule(ctx context.Context, id string, upd model.ScheduleUpdate) error {
	var res sql.Result
	var err error
	if upd.Chunk != nil {
		res, err = s.db.ExecContext(ctx,
			`UPDATE tasks SET scheduled_start = ?, scheduled_end = ?, eta_days_offset = ?, eta_status = ?,
			chunk_duration_mins = ?, total_chunks = ?, chunk_number = ?, updated_at = ? WHERE id = ?`,
			fmtTime(upd.Start), fmtTime(upd.End), upd.ETA.DaysOffset, string(upd.ETA.Status),
			upd.Chunk.DurationMins, upd.Chunk.TotalChunks, upd.Chunk.ChunkNumber, fmtTime(time.Now()), id,
		)
	} else {
		res, err = s.db.ExecContext(ctx,
			`UPDATE tasks SET scheduled_start = ?, scheduled_end = ?, eta_days_offset = ?, eta_status = ?,
			total_chunks = NULL, chunk_number = NULL, updated_at = ? WHERE id = ?`,
			fmtTime(upd.Start), fmtTime(upd.End), upd.ETA.DaysOffset, string(upd.ETA.Status), fmtTime(time.Now()), id,
		)
	}
	if err != nil {
		return fmt.Errorf("update schedule: %w", err)
	}
	return expectRow(res)
}

func (s *SQLite) UpdateETA(ctx context.Context, id string, eta model.ETA) error {
	res, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET eta_days_offset = ?, eta_status = ?, updated_at = ? WHERE id = ?`,
		eta.DaysOffset, string(eta.Status), fmtTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("update eta: %w", err)
	}
	return expectRow(res)
}

func (s *SQLite) ClearSchedules(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	args := append([]interface{}{fmtTime(time.Now())}, stringArgs(ids)...)
	_, err := s.db.ExecContext(ctx,
		`UPDATE tasks SET scheduled_start = NULL, scheduled_end = NULL, updated_at = ? WHERE id IN (`+placeholders(len(ids))+`)`,
		args...,
	)
	if err != nil {
		return fmt.Errorf("clear schedules: %w", err)
	}
	return nil
}

func (s *SQLite) DeleteChunkChildren(ctx context.Context, parentIDs []string) (int, error) {
	if len(parentIDs) == 0 {
		return 0, nil
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM tasks WHERE parent_chunk_id IN (`+placeholders(len(parentIDs))+`)`,
		stringArgs(parentIDs)...,
	)
	if err != nil {
		return 0, fmt.Errorf("delete chunk children: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, err
	}
	return int(n), nil
}

// --- Schedule & Preference Operations ---

func (s *SQLite) GetSchedule(ctx context.Context, id string) (*model.ScheduleConfig, error) {
	var cfg model.ScheduleConfig
	var days string
	err := s.db.QueryRowContext(ctx,
		`SELECT start_time, end_time, days_of_week FROM schedules WHERE id = ?`, id,
	).Scan(&cfg.StartTime, &cfg.EndTime, &days)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query schedule: %w", err)
	}
	if err := json.Unmarshal([]byte(days), &cfg.DaysOfWeek); err != nil {
		return nil, fmt.Errorf("decode schedule days: %w", err)
	}
	return &cfg, nil
}

func (s *SQLite) PutSchedule(ctx context.Context, id, userID string, cfg model.ScheduleConfig) error {
	days, err := json.Marshal(cfg.DaysOfWeek)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO schedules (id, user_id, start_time, end_time, days_of_week) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET user_id = excluded.user_id, start_time = excluded.start_time,
		end_time = excluded.end_time, days_of_week = excluded.days_of_week`,
		id, userID, cfg.StartTime, cfg.EndTime, string(days),
	)
	if err != nil {
		return fmt.Errorf("upsert schedule: %w", err)
	}
	return nil
}

func (s *SQLite) GetWorkHours(ctx context.Context, userID string) (*model.WorkHours, error) {
	var wh model.WorkHours
	var days string
	err := s.db.QueryRowContext(ctx,
		`SELECT enabled, start_time, end_time, days FROM work_hours WHERE user_id = ?`, userID,
	).Scan(&wh.Enabled, &wh.StartTime, &wh.EndTime, &days)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("query work hours: %w", err)
	}
	if err := json.Unmarshal([]byte(days), &wh.Days); err != nil {
		return nil, fmt.Errorf("decode work days: %w", err)
	}
	return &wh, nil
}

func (s *SQLite) PutWorkHours(ctx context.Context, userID string, wh model.WorkHours) error {
	days, err := json.Marshal(wh.Days)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO work_hours (user_id, enabled, start_time, end_time, days) VALUES (?, ?, ?, ?, ?)
		ON CONFLICT(user_id) DO UPDATE SET enabled = excluded.enabled, start_time = excluded.start_time,
		end_time = excluded.end_time, days = excluded.days`,
		userID, wh.Enabled, wh.StartTime, wh.EndTime, string(days),
	)
	if err != nil {
		return fmt.Errorf("upsert work hours: %w", err)
	}
	return nil
}

// --- helpers ---

type scanner interface {
	Scan(dest ...interface{}) error
}

func scanTask(sc scanner) (*model.Task, error) {
	var t model.Task
	var due, start, end sql.NullString
	var chunkDur, total, number sql.NullInt64
	var status, createdAt, updatedAt string

	err := sc.Scan(&t.ID, &t.UserID, &t.WorkspaceID, &t.ProjectID, &t.Name, &t.Status, &t.DurationMinutes, &due,
		&t.IsHardDeadline, &t.IdealStartTime, &t.Priority, &t.IsAutoScheduled, &t.IsReminderOnly, &t.ScheduleID,
		&t.TimeSpentMins, &start, &end, &chunkDur, &total, &number,
		&t.ParentChunkID, &t.ETADaysOffset, &status, &createdAt, &updatedAt)
	if err != nil {
		return nil, err
	}
	t.ETAStatus = model.ETAStatus(status)

	if t.DueDate, err = parseNullTime(due); err != nil {
		return nil, err
	}
	if t.ScheduledStart, err = parseNullTime(start); err != nil {
		return nil, err
	}
	if t.ScheduledEnd, err = parseNullTime(end); err != nil {
		return nil, err
	}
	t.ChunkDurationMins = intFromNull(chunkDur)
	t.TotalChunks = intFromNull(total)
	t.ChunkNumber = intFromNull(number)
	if t.CreatedAt, err = time.Parse(timeLayout, createdAt); err != nil {
		return nil, err
	}
	if t.UpdatedAt, err = time.Parse(timeLayout, updatedAt); err != nil {
		return nil, err
	}
	return &t, nil
}

func fmtTime(t time.Time) string {
	return t.UTC().Format(timeLayout)
}

func fmtTimePtr(t *time.Time) interface{} {
	if t == nil {
		return nil
	}
	return fmtTime(*t)
}

func parseNullTime(ns sql.NullString) (*time.Time, error) {
	if !ns.Valid {
		return nil, nil
	}
	t, err := time.Parse(timeLayout, ns.String)
	if err != nil {
		return nil, fmt.Errorf("parse stored time %q: %w", ns.String, err)
	}
	return &t, nil
}

func nullInt(v *int) interface{} {
	if v == nil {
		return nil
	}
	return *v
}

func intFromNull(n sql.NullInt64) *int {
	if !n.Valid {
		return nil
	}
	return intPtr(int(n.Int64))
}

func expectRow(res sql.Result) error {
	n, err := res.RowsAffected()
	if err != nil {
		return err
	}
	if n == 0 {
		return ErrNotFound
	}
	return nil
}

func placeholders(n int) string {
	return strings.TrimSuffix(strings.Repeat("?,", n), ",")
}

func stringArgs(ids []string) []interface{} {
	args := make([]interface{}, len(ids))
	for i, id := range ids {
		args[i] = id
	}
	return args
}
