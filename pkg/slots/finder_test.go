package slots

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/harrisonrobin/autosched/pkg/model"
	"github.com/harrisonrobin/autosched/pkg/store"
	"github.com/harrisonrobin/autosched/pkg/workhours"
)

// 2024-03-05 is a Tuesday.
func tue(h, m int) time.Time {
	return time.Date(2024, 3, 5, h, m, 0, 0, time.UTC)
}

type fakeCalendar struct {
	events []model.CalendarEvent
	err    error
	calls  int
}

func (f *fakeCalendar) GetEvents(_ context.Context, _ string, q model.EventQuery) ([]model.CalendarEvent, error) {
	f.calls++
	if f.err != nil {
		return nil, f.err
	}
	return f.events, nil
}

func newFinder(now time.Time, st TaskSource, cal CalendarReader) *Finder {
	opts := []Option{WithLocation(time.UTC), WithClock(func() time.Time { return now })}
	if cal != nil {
		opts = append(opts, WithCalendar(cal))
	}
	return NewFinder(st, opts...)
}

func timed(start, end time.Time) model.CalendarEvent {
	return model.CalendarEvent{Start: model.EventTime{DateTime: start}, End: model.EventTime{DateTime: end}}
}

func TestFirstSlotOnEmptyCalendar(t *testing.T) {
	f := newFinder(tue(8, 0), store.NewMemory(), &fakeCalendar{})
	deadline := tue(8, 0).AddDate(0, 0, 3)

	got, err := f.FindAvailableSlots(context.Background(), Query{
		UserID: "u1", DurationMinutes: 30, Deadline: &deadline, Schedule: workhours.Default(),
	})
	require.NoError(t, err)
	require.Len(t, got, MaxCandidates)
	assert.Equal(t, tue(9, 0), got[0].Start)
	assert.Equal(t, tue(9, 30), got[0].End)
}

func TestCalendarEventPushesFirstSlot(t *testing.T) {
	cal := &fakeCalendar{events: []model.CalendarEvent{timed(tue(9, 0), tue(10, 0))}}
	f := newFinder(tue(8, 0), store.NewMemory(), cal)

	got, err := f.FindAvailableSlots(context.Background(), Query{
		UserID: "u1", DurationMinutes: 60, Schedule: workhours.Default(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, tue(10, 0), got[0].Start)
	for _, s := range got {
		assert.False(t, s.Start.Before(tue(10, 0)) && s.End.After(tue(9, 0)), "slot %v overlaps event", s.Start)
	}
}

func TestAllDayEventBlocksWholeDay(t *testing.T) {
	cal := &fakeCalendar{events: []model.CalendarEvent{{
		Start: model.EventTime{Date: "2024-03-05"},
		End:   model.EventTime{Date: "2024-03-06"},
	}}}
	f := newFinder(tue(8, 0), store.NewMemory(), cal)

	got, err := f.FindAvailableSlots(context.Background(), Query{UserID: "u1", DurationMinutes: 30, Schedule: workhours.Default()})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, tue(9, 0).AddDate(0, 0, 1), got[0].Start)
}

func TestCalendarFailureIsNotFatal(t *testing.T) {
	cal := &fakeCalendar{err: errors.New("calendar: 503")}
	f := newFinder(tue(8, 0), store.NewMemory(), cal)

	got, err := f.FindAvailableSlots(context.Background(), Query{UserID: "u1", DurationMinutes: 30, Schedule: workhours.Default()})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, tue(9, 0), got[0].Start)
	assert.Equal(t, 1, cal.calls)
}

func TestHardDeadlineTooShortReturnsNothing(t *testing.T) {
	f := newFinder(tue(8, 0), store.NewMemory(), nil)
	deadline := tue(8, 0).AddDate(0, 0, 2)

	got, err := f.FindAvailableSlots(context.Background(), Query{
		UserID: "u1", DurationMinutes: 600, Deadline: &deadline, IsHardDeadline: true, Schedule: workhours.Default(),
	})
	require.NoError(t, err)
	assert.Empty(t, got)
}

func TestHardDeadlineBoundsWindow(t *testing.T) {
	f := newFinder(tue(8, 0), store.NewMemory(), nil)
	deadline := tue(10, 0)

	got, err := f.FindAvailableSlots(context.Background(), Query{
		UserID: "u1", DurationMinutes: 30, Deadline: &deadline, IsHardDeadline: true, Schedule: workhours.Default(),
	})
	require.NoError(t, err)
	require.Len(t, got, 3)
	for _, s := range got {
		assert.False(t, s.End.After(deadline))
	}
}

func TestSlotsStayInsideWorkingHours(t *testing.T) {
	fri := time.Date(2024, 3, 8, 16, 0, 0, 0, time.UTC)
	f := newFinder(fri, store.NewMemory(), nil)
	sched := workhours.Default()

	got, err := f.FindAvailableSlots(context.Background(), Query{UserID: "u1", DurationMinutes: 120, Schedule: sched})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, time.Date(2024, 3, 11, 9, 0, 0, 0, time.UTC), got[0].Start)

	for _, s := range got {
		assert.True(t, sched.WorksOn(s.Start.Weekday()), "slot on %s", s.Start.Weekday())
		dayStart := time.Date(s.Start.Year(), s.Start.Month(), s.Start.Day(), 9, 0, 0, 0, time.UTC)
		dayEnd := time.Date(s.Start.Year(), s.Start.Month(), s.Start.Day(), 17, 0, 0, 0, time.UTC)
		assert.False(t, s.Start.Before(dayStart))
		assert.False(t, s.End.After(dayEnd))
		assert.Equal(t, 120*time.Minute, s.End.Sub(s.Start))
		assert.Zero(t, s.Start.Minute()%15)
	}
}

func TestStartRoundsUpToGrid(t *testing.T) {
	f := newFinder(tue(10, 7), store.NewMemory(), nil)

	got, err := f.FindAvailableSlots(context.Background(), Query{UserID: "u1", DurationMinutes: 15, Schedule: workhours.Default()})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, tue(10, 15), got[0].Start)
}

func TestScheduledTasksBlockUnlessExcluded(t *testing.T) {
	ctx := context.Background()
	st := store.NewMemory()
	require.NoError(t, st.CreateTask(ctx, &model.Task{ID: "other", UserID: "u1", Name: "other", DurationMinutes: 120, IsAutoScheduled: true}))
	require.NoError(t, st.UpdateSchedule(ctx, "other", model.ScheduleUpdate{Start: tue(9, 0), End: tue(11, 0)}))
	f := newFinder(tue(8, 0), st, nil)

	got, err := f.FindAvailableSlots(ctx, Query{UserID: "u1", DurationMinutes: 30, Schedule: workhours.Default()})
	require.NoError(t, err)
	assert.Equal(t, tue(11, 0), got[0].Start)

	got, err = f.FindAvailableSlots(ctx, Query{UserID: "u1", DurationMinutes: 30, Schedule: workhours.Default(), ExcludeTaskIDs: []string{"other"}})
	require.NoError(t, err)
	assert.Equal(t, tue(9, 0), got[0].Start)

	got, err = f.FindAvailableSlots(ctx, Query{UserID: "u2", DurationMinutes: 30, Schedule: workhours.Default()})
	require.NoError(t, err)
	assert.Equal(t, tue(9, 0), got[0].Start)
}

func TestIdealStartTimeBiasesRanking(t *testing.T) {
	f := newFinder(tue(8, 0), store.NewMemory(), nil)

	got, err := f.FindAvailableSlots(context.Background(), Query{
		UserID: "u1", DurationMinutes: 30, IdealStartTime: "11:00", Schedule: workhours.Default(),
	})
	require.NoError(t, err)
	require.GreaterOrEqual(t, len(got), 2)
	assert.Equal(t, tue(11, 0), got[0].Start)
	assert.Equal(t, 120.0, got[0].Score)
	assert.Equal(t, 112.5, got[1].Score)
}

func TestDeadlineShapingAndStableTies(t *testing.T) {
	f := newFinder(tue(8, 0), store.NewMemory(), nil)
	yesterday := tue(8, 0).AddDate(0, 0, -1)

	got, err := f.FindAvailableSlots(context.Background(), Query{
		UserID: "u1", DurationMinutes: 60, Deadline: &yesterday, Schedule: workhours.Default(),
	})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	assert.Equal(t, 70.0, got[0].Score)
	assert.Equal(t, tue(9, 0), got[0].Start)

	for i := 1; i < len(got); i++ {
		assert.GreaterOrEqual(t, got[i-1].Score, got[i].Score)
		if got[i-1].Score == got[i].Score {
			assert.True(t, got[i-1].Start.Before(got[i].Start), "ties must stay chronological")
		}
	}

	today := tue(17, 0)
	got, err = f.FindAvailableSlots(context.Background(), Query{
		UserID: "u1", DurationMinutes: 60, Deadline: &today, Schedule: workhours.Default(),
	})
	require.NoError(t, err)
	assert.Equal(t, 130.0, got[0].Score)
}

func TestSlotAfterSoftDeadlineLosesBonus(t *testing.T) {
	f := newFinder(tue(8, 0), store.NewMemory(), nil)
	deadline := tue(12, 0)

	got, err := f.FindAvailableSlots(context.Background(), Query{
		UserID: "u1", DurationMinutes: 60, Deadline: &deadline, Schedule: workhours.Default(),
	})
	require.NoError(t, err)

	scores := make(map[time.Time]float64, len(got))
	for _, s := range got {
		scores[s.Start] = s.Score
	}
	require.Contains(t, scores, tue(11, 0))
	require.Contains(t, scores, tue(13, 0))
	assert.Equal(t, 130.0, scores[tue(11, 0)])
	// an hour late is already past the deadline
	assert.Equal(t, 50.0, scores[tue(13, 0)])
}

func TestNotBeforeMovesSearchStart(t *testing.T) {
	f := newFinder(tue(8, 0), store.NewMemory(), nil)

	got, err := f.FindAvailableSlots(context.Background(), Query{
		UserID: "u1", DurationMinutes: 60, Schedule: workhours.Default(), NotBefore: tue(13, 0),
	})
	require.NoError(t, err)
	require.NotEmpty(t, got)
	for _, s := range got {
		assert.False(t, s.Start.Before(tue(13, 0)))
	}
}

func TestZeroDurationFindsNothing(t *testing.T) {
	f := newFinder(tue(8, 0), store.NewMemory(), nil)
	got, err := f.FindAvailableSlots(context.Background(), Query{UserID: "u1", Schedule: workhours.Default()})
	require.NoError(t, err)
	assert.Empty(t, got)
}
