package util

import (
	"fmt"
	"regexp"
	"strconv"
	"strings"
	"time"
)

const day = 24 * time.Hour

var durationPart = regexp.MustCompile(`(\d+)([HMS])`)

// ParseDuration parses ISO 8601 duration format (PT1H30M) from Taskwarrior JSON export
func ParseDuration(s string) (time.Duration, error) {
	if s == "" {
		return 0, nil
	}

	if len(s) < 2 || s[0] != 'P' {
		return 0, fmt.Errorf("invalid ISO 8601 duration format: %s", s)
	}

	s = s[1:]
	if len(s) == 0 || s[0] != 'T' {
		return 0, fmt.Errorf("invalid ISO 8601 duration (missing T): P%s", s)
	}
	s = s[1:]

	var total time.Duration
	for _, match := range durationPart.FindAllStringSubmatch(s, -1) {
		value, _ := strconv.Atoi(match[1])
		switch match[2] {
		case "H":
			total += time.Duration(value) * time.Hour
		case "M":
			total += time.Duration(value) * time.Minute
		case "S":
			total += time.Duration(value) * time.Second
		}
	}

	if total == 0 {
		return 0, fmt.Errorf("invalid ISO 8601 duration: PT%s", s)
	}

	return total, nil
}

// ParseClock parses an "HH:MM" time of day into minutes after midnight.
func ParseClock(s string) (int, error) {
	parts := strings.Split(strings.TrimSpace(s), ":")
	if len(parts) != 2 {
		return 0, fmt.Errorf("invalid clock %q: want HH:MM", s)
	}
	h, err := strconv.Atoi(parts[0])
	if err != nil || h < 0 || h > 24 {
		return 0, fmt.Errorf("invalid hour in clock %q", s)
	}
	m, err := strconv.Atoi(parts[1])
	if err != nil || m < 0 || m > 59 {
		return 0, fmt.Errorf("invalid minute in clock %q", s)
	}
	if h == 24 && m != 0 {
		return 0, fmt.Errorf("invalid clock %q: past midnight", s)
	}
	return h*60 + m, nil
}

// MinuteOfDay returns the minutes elapsed since local midnight of t.
func MinuteOfDay(t time.Time) int {
	return t.Hour()*60 + t.Minute()
}

// StartOfDay returns midnight of t's calendar day in t's location.
func StartOfDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, t.Location())
}

// AtMinute returns the instant minute minutes after midnight of dayStart's date.
// Using time.Date keeps DST days correct.
func AtMinute(dayStart time.Time, minute int) time.Time {
	y, m, d := dayStart.Date()
	return time.Date(y, m, d, 0, minute, 0, 0, dayStart.Location())
}

// DaysBetween returns the number of whole 24-hour periods from `from` to `to`,
// rounded down. Any instant past `to` gives a negative count.
func DaysBetween(to, from time.Time) int {
	diff := to.Sub(from)
	n := diff / day
	if diff%day < 0 {
		n--
	}
	return int(n)
}

// CeilToStep rounds t up to the next multiple of step measured from local midnight.
// Values already on a boundary are returned unchanged.
func CeilToStep(t time.Time, step time.Duration) time.Time {
	midnight := StartOfDay(t)
	off := t.Sub(midnight)
	if rem := off % step; rem != 0 {
		off += step - rem
	}
	return midnight.Add(off)
}
