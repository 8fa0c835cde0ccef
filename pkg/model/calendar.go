package model

import (
	"fmt"
	"time"
)

const allDayLayout = "2006-01-02"

// EventTime is either a timed instant or an all-day date ("2006-01-02").
type EventTime struct {
	DateTime time.Time
	Date     string
}

// CalendarEvent is an external calendar commitment.
type CalendarEvent struct {
	ID      string
	Summary string
	Start   EventTime
	End     EventTime
}

// EventQuery bounds a calendar read.
type EventQuery struct {
	TimeMin    time.Time
	TimeMax    time.Time
	MaxResults int64
}

// Resolve returns the instant an event boundary refers to. All-day dates resolve
// to local midnight in loc.
func (et EventTime) Resolve(loc *time.Location) (time.Time, error) {
	if et.Date != "" {
		d, err := time.ParseInLocation(allDayLayout, et.Date, loc)
		if err != nil {
			return time.Time{}, fmt.Errorf("parse all-day date %q: %w", et.Date, err)
		}
		return d, nil
	}
	if et.DateTime.IsZero() {
		return time.Time{}, fmt.Errorf("event time has neither date nor datetime")
	}
	return et.DateTime, nil
}

// Busy converts the event to a busy period.
func (e CalendarEvent) Busy(loc *time.Location) (BusyPeriod, error) {
	start, err := e.Start.Resolve(loc)
	if err != nil {
		return BusyPeriod{}, err
	}
	end, err := e.End.Resolve(loc)
	if err != nil {
		return BusyPeriod{}, err
	}
	return BusyPeriod{Start: start, End: end}, nil
}
