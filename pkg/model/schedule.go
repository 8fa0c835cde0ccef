package model

import "time"

// ETAStatus is the deadline-risk classification cached on a task.
type ETAStatus string

const (
	ETAOnTrack ETAStatus = "on_track"
	ETAAtRisk  ETAStatus = "at_risk"
	ETAOverdue ETAStatus = "overdue"
)

// ETA is the derived deadline position of a task.
type ETA struct {
	DaysOffset int       `json:"days_offset"`
	Status     ETAStatus `json:"status"`
}

// ScheduleConfig is a working-hours policy.
type ScheduleConfig struct {
	StartTime  string         `json:"start_time" yaml:"start_time"`
	EndTime    string         `json:"end_time" yaml:"end_time"`
	DaysOfWeek []time.Weekday `json:"days_of_week" yaml:"days_of_week"`
}

// WorksOn reports whether the weekday is a working day.
func (c ScheduleConfig) WorksOn(d time.Weekday) bool {
	for _, w := range c.DaysOfWeek {
		if w == d {
			return true
		}
	}
	return false
}

// WorkHours is a user's stored default work-hours preference. Days holds weekday
// names as the user entered them.
type WorkHours struct {
	Enabled   bool     `json:"enabled"`
	StartTime string   `json:"start_time"`
	EndTime   string   `json:"end_time"`
	Days      []string `json:"days"`
}

// TimeSlot is a ranked scheduling candidate. Never persisted.
type TimeSlot struct {
	Start time.Time
	End   time.Time
	Score float64
}

// BusyPeriod is an interval a new slot must not overlap.
type BusyPeriod struct {
	Start time.Time
	End   time.Time
}

// Overlaps uses the open-interval test, so touching intervals do not conflict.
func (b BusyPeriod) Overlaps(start, end time.Time) bool {
	return start.Before(b.End) && end.After(b.Start)
}

// SchedulingResult describes where a task (or its first chunk) was placed.
type SchedulingResult struct {
	TaskID         string
	ScheduledStart time.Time
	ScheduledEnd   time.Time
	ETA            ETA
	Chunks         []ChunkPlacement
}

// ChunkPlacement is one placed member of a chunk family.
type ChunkPlacement struct {
	TaskID      string
	ChunkNumber int
	Start       time.Time
	End         time.Time
}

// BatchResult reports the outcome of a full reschedule.
type BatchResult struct {
	Scheduled int `json:"scheduled"`
	Failed    int `json:"failed"`
}

// ConflictReport is the compact projection of a task at risk of missing its deadline.
type ConflictReport struct {
	TaskID        string     `json:"task_id"`
	Name          string     `json:"name"`
	Deadline      time.Time  `json:"deadline"`
	ScheduledDate *time.Time `json:"scheduled_date,omitempty"`
	Status        ETAStatus  `json:"status"`
}
