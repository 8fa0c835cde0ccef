// Package eta derives the deadline-risk status cached on tasks.
package eta

import (
	"time"

	"github.com/harrisonrobin/autosched/pkg/model"
	"github.com/harrisonrobin/autosched/pkg/util"
)

// Calculate returns how many whole days of slack remain between the effective date
// (the scheduled date, or now when unscheduled) and the deadline.
func Calculate(scheduled, deadline *time.Time, now time.Time) model.ETA {
	if deadline == nil {
		return model.ETA{DaysOffset: 0, Status: model.ETAOnTrack}
	}
	effective := now
	if scheduled != nil {
		effective = *scheduled
	}
	offset := util.DaysBetween(*deadline, effective)
	return model.ETA{DaysOffset: offset, Status: StatusFor(offset)}
}

// StatusFor is the only mapping from day offset to status.
func StatusFor(daysOffset int) model.ETAStatus {
	switch {
	case daysOffset < 0:
		return model.ETAOverdue
	case daysOffset <= 1:
		return model.ETAAtRisk
	default:
		return model.ETAOnTrack
	}
}
