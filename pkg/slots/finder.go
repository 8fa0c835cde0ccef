// Package slots searches a user's time horizon for free, working-hours slots and
// ranks them.
//
// The search is greedy: it walks working days in order on a 15-minute grid, drops
// candidates that overlap a busy period, scores the first MaxCandidates survivors
// and returns them best first. Chronological order breaks score ties.
package slots

import (
	"context"
	"fmt"
	"math"
	"sort"
	"time"

	"github.com/rs/zerolog"

	"github.com/harrisonrobin/autosched/pkg/model"
	"github.com/harrisonrobin/autosched/pkg/util"
)

const (
	MaxCandidates      = 20
	Step               = 15 * time.Minute
	DefaultHorizon     = 30 * 24 * time.Hour
	SoftDeadlineGrace  = 7 * 24 * time.Hour
	CalendarMaxResults = 2500

	baseScore       = 100.0
	morningBonus    = 20.0
	deadlineDayBump = 10.0
	pastDeadline    = 50.0
)

// CalendarReader reads a user's external calendar.
type CalendarReader interface {
	GetEvents(ctx context.Context, userID string, q model.EventQuery) ([]model.CalendarEvent, error)
}

// TaskSource lists auto-scheduled tasks whose scheduled interval overlaps [from, to).
type TaskSource interface {
	ListScheduledTasks(ctx context.Context, userID string, from, to time.Time) ([]model.Task, error)
}

// Query describes one slot search.
type Query struct {
	UserID          string
	DurationMinutes int
	Deadline        *time.Time
	Schedule        model.ScheduleConfig
	IdealStartTime  string
	IsHardDeadline  bool

	// ExcludeTaskIDs are tasks whose current schedule must not count as busy,
	// normally the task being placed.
	ExcludeTaskIDs []string
	// NotBefore moves the start of the search later than now.
	NotBefore time.Time
}

type Finder struct {
	tasks    TaskSource
	calendar CalendarReader
	loc      *time.Location
	now      func() time.Time
	log      zerolog.Logger
}

type Option func(*Finder)

// WithCalendar enables calendar-derived busy periods. Without it only
// already-scheduled tasks block time.
func WithCalendar(c CalendarReader) Option { return func(f *Finder) { f.calendar = c } }

// WithLocation sets the zone working hours are expressed in.
func WithLocation(loc *time.Location) Option { return func(f *Finder) { f.loc = loc } }

func WithClock(now func() time.Time) Option { return func(f *Finder) { f.now = now } }

func WithLogger(log zerolog.Logger) Option { return func(f *Finder) { f.log = log } }

func NewFinder(tasks TaskSource, opts ...Option) *Finder {
	f := &Finder{
		tasks: tasks,
		loc:   time.Local,
		now:   time.Now,
		log:   zerolog.Nop(),
	}
	for _, opt := range opts {
		opt(f)
	}
	return f
}

// Now returns the finder's clock reading in its location.
func (f *Finder) Now() time.Time {
	return f.now().In(f.loc)
}

// Location returns the zone working hours are interpreted in.
func (f *Finder) Location() *time.Location {
	return f.loc
}

// Window returns the search interval for a query.
func (f *Finder) Window(q Query) (time.Time, time.Time) {
	now := f.Now()
	start := now
	if q.NotBefore.After(start) {
		start = q.NotBefore.In(f.loc)
	}

	var end time.Time
	switch {
	case q.Deadline != nil && q.IsHardDeadline:
		end = q.Deadline.In(f.loc)
	case q.Deadline != nil:
		end = q.Deadline.In(f.loc).Add(SoftDeadlineGrace)
	default:
		end = now.Add(DefaultHorizon)
	}
	return start, end
}

// FindAvailableSlots returns up to MaxCandidates free slots, best first. An empty
// result means nothing fits. Only task store failures are returned as errors.
func (f *Finder) FindAvailableSlots(ctx context.Context, q Query) ([]model.TimeSlot, error) {
	if q.DurationMinutes <= 0 {
		return nil, nil
	}
	workStart, err := util.ParseClock(q.Schedule.StartTime)
	if err != nil {
		return nil, fmt.Errorf("schedule start: %w", err)
	}
	workEnd, err := util.ParseClock(q.Schedule.EndTime)
	if err != nil {
		return nil, fmt.Errorf("schedule end: %w", err)
	}

	from, to := f.Window(q)
	if !to.After(from) {
		return nil, nil
	}

	busy, err := f.busyPeriods(ctx, q, from, to)
	if err != nil {
		return nil, err
	}

	sc := f.scorer(q)
	duration := time.Duration(q.DurationMinutes) * time.Minute

	var found []model.TimeSlot
	for d := util.StartOfDay(from); !d.After(to) && len(found) < MaxCandidates; d = d.AddDate(0, 0, 1) {
		if !q.Schedule.WorksOn(d.Weekday()) {
			continue
		}
		dayStart := util.AtMinute(d, workStart)
		dayEnd := util.AtMinute(d, workEnd)

		cand := dayStart
		if from.After(cand) {
			cand = from
		}
		cand = util.CeilToStep(cand, Step)

		for ; len(found) < MaxCandidates; cand = cand.Add(Step) {
			end := cand.Add(duration)
			if end.After(dayEnd) || end.After(to) {
				break
			}
			if conflicts(busy, cand, end) {
				continue
			}
			found = append(found, model.TimeSlot{Start: cand, End: end, Score: sc(cand)})
		}
	}

	sort.SliceStable(found, func(i, j int) bool { return found[i].Score > found[j].Score })
	return found, nil
}

// busyPeriods merges calendar events and other scheduled tasks in the window,
// sorted by start.
func (f *Finder) busyPeriods(ctx context.Context, q Query, from, to time.Time) ([]model.BusyPeriod, error) {
	var busy []model.BusyPeriod

	if f.calendar != nil {
		events, err := f.calendar.GetEvents(ctx, q.UserID, model.EventQuery{
			TimeMin:    from,
			TimeMax:    to,
			MaxResults: CalendarMaxResults,
		})
		if err != nil {
			f.log.Warn().Err(err).Str("user_id", q.UserID).Msg("calendar unavailable, scheduling without it")
		}
		for _, e := range events {
			bp, err := e.Busy(f.loc)
			if err != nil {
				f.log.Debug().Err(err).Str("event_id", e.ID).Msg("skipping calendar event")
				continue
			}
			if bp.End.After(bp.Start) {
				busy = append(busy, bp)
			}
		}
	}

	tasks, err := f.tasks.ListScheduledTasks(ctx, q.UserID, from, to)
	if err != nil {
		return nil, fmt.Errorf("list scheduled tasks: %w", err)
	}
	excluded := make(map[string]bool, len(q.ExcludeTaskIDs))
	for _, id := range q.ExcludeTaskIDs {
		excluded[id] = true
	}
	for _, t := range tasks {
		if excluded[t.ID] || t.ScheduledStart == nil || t.ScheduledEnd == nil {
			continue
		}
		busy = append(busy, model.BusyPeriod{Start: *t.ScheduledStart, End: *t.ScheduledEnd})
	}

	sort.SliceStable(busy, func(i, j int) bool { return busy[i].Start.Before(busy[j].Start) })
	return busy, nil
}

func conflicts(busy []model.BusyPeriod, start, end time.Time) bool {
	for _, b := range busy {
		if !b.Start.Before(end) {
			// sorted by start: nothing later can overlap
			return false
		}
		if b.Overlaps(start, end) {
			return true
		}
	}
	return false
}

func (f *Finder) scorer(q Query) func(time.Time) float64 {
	ideal := -1
	if q.IdealStartTime != "" {
		m, err := util.ParseClock(q.IdealStartTime)
		if err != nil {
			f.log.Debug().Err(err).Str("ideal_start_time", q.IdealStartTime).Msg("ignoring ideal start time")
		} else {
			ideal = m
		}
	}

	return func(start time.Time) float64 {
		score := baseScore
		if ideal >= 0 {
			score -= math.Abs(float64(util.MinuteOfDay(start)-ideal)) / 2
		}
		if h := start.Hour(); h >= 9 && h < 12 {
			score += morningBonus
		}
		if q.Deadline != nil {
			switch d := util.DaysBetween(*q.Deadline, start); {
			case d < 0:
				score -= pastDeadline
			case d == 0:
				score += deadlineDayBump
			}
		}
		return score
	}
}
