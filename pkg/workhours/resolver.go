// Package workhours resolves which working-hours policy applies to a task.
//
// Sources are tried in order: a named schedule referenced by the task, the user's
// enabled work-hours preference, then the system default (Mon-Fri, 09:00-17:00).
// Resolution never fails; broken or unreachable sources are logged and skipped.
package workhours

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/harrisonrobin/autosched/pkg/model"
	"github.com/harrisonrobin/autosched/pkg/util"
)

// ScheduleLookup resolves a named schedule. A missing schedule is (nil, nil).
type ScheduleLookup interface {
	GetSchedule(ctx context.Context, scheduleID string) (*model.ScheduleConfig, error)
}

// PreferenceStore reads a user's default work hours. A missing preference is (nil, nil).
type PreferenceStore interface {
	GetWorkHours(ctx context.Context, userID string) (*model.WorkHours, error)
}

var weekdayNames = map[string]time.Weekday{
	"sunday":    time.Sunday,
	"monday":    time.Monday,
	"tuesday":   time.Tuesday,
	"wednesday": time.Wednesday,
	"thursday":  time.Thursday,
	"friday":    time.Friday,
	"saturday":  time.Saturday,
}

// Default is the system fallback policy.
func Default() model.ScheduleConfig {
	return model.ScheduleConfig{
		StartTime:  "09:00",
		EndTime:    "17:00",
		DaysOfWeek: []time.Weekday{time.Monday, time.Tuesday, time.Wednesday, time.Thursday, time.Friday},
	}
}

// WeekdayFromName maps a day name to its index (sunday=0 ... saturday=6).
// Unrecognized names map to Monday.
func WeekdayFromName(name string) time.Weekday {
	if d, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]; ok {
		return d
	}
	return time.Monday
}

func IsWeekdayName(name string) bool {
	_, ok := weekdayNames[strings.ToLower(strings.TrimSpace(name))]
	return ok
}

type Resolver struct {
	schedules ScheduleLookup
	prefs     PreferenceStore
	log       zerolog.Logger
}

func NewResolver(schedules ScheduleLookup, prefs PreferenceStore, log zerolog.Logger) *Resolver {
	return &Resolver{schedules: schedules, prefs: prefs, log: log}
}

// Resolve returns the policy for scheduleID (may be empty) and userID.
func (r *Resolver) Resolve(ctx context.Context, scheduleID, userID string) model.ScheduleConfig {
	if scheduleID != "" && r.schedules != nil {
		cfg, err := r.schedules.GetSchedule(ctx, scheduleID)
		switch {
		case err != nil:
			r.log.Warn().Err(err).Str("schedule_id", scheduleID).Msg("named schedule lookup failed")
		case cfg != nil && valid(*cfg):
			return *cfg
		}
	}

	if r.prefs != nil {
		wh, err := r.prefs.GetWorkHours(ctx, userID)
		switch {
		case err != nil:
			r.log.Warn().Err(err).Str("user_id", userID).Msg("work hours lookup failed")
		case wh != nil && wh.Enabled:
			cfg := FromWorkHours(*wh)
			if valid(cfg) {
				return cfg
			}
			r.log.Warn().Str("user_id", userID).Msg("ignoring malformed work hours preference")
		}
	}

	return Default()
}

// FromWorkHours converts a stored preference to a policy.
func FromWorkHours(wh model.WorkHours) model.ScheduleConfig {
	days := make([]time.Weekday, 0, len(wh.Days))
	seen := make(map[time.Weekday]bool)
	for _, name := range wh.Days {
		d := WeekdayFromName(name)
		if !seen[d] {
			seen[d] = true
			days = append(days, d)
		}
	}
	return model.ScheduleConfig{StartTime: wh.StartTime, EndTime: wh.EndTime, DaysOfWeek: days}
}

func valid(cfg model.ScheduleConfig) bool {
	start, err := util.ParseClock(cfg.StartTime)
	if err != nil {
		return false
	}
	end, err := util.ParseClock(cfg.EndTime)
	if err != nil {
		return false
	}
	return end > start && len(cfg.DaysOfWeek) > 0
}
