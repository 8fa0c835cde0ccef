// Package orgmode reads TODO headings from Org files as schedulable tasks.
//
// A heading is imported when its property drawer carries an :ID: and an :EFFORT:
// (h:mm or minutes). DEADLINE sets the due date, SCHEDULED with a time sets the
// ideal start, and :CHUNK: overrides the chunk size.
package orgmode

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/harrisonrobin/autosched/pkg/model"
)

var (
	headingRegex  = regexp.MustCompile(`^\*+\s+(TODO|DONE)\s*(?:\[#([A-Z])\])?\s*(.*?)(?:\s+:((?:[\w@]+:)+))?\s*$`)
	deadlineRegex = regexp.MustCompile(`DEADLINE:\s+<(\d{4}-\d{2}-\d{2})(?:\s+[A-Za-z]{2,3})?(?:\s+(\d{1,2}:\d{2}))?[^>]*>`)
	scheduleRegex = regexp.MustCompile(`SCHEDULED:\s+<\d{4}-\d{2}-\d{2}(?:\s+[A-Za-z]{2,3})?\s+(\d{1,2}:\d{2})[^>]*>`)
	propertyRegex = regexp.MustCompile(`^:([A-Za-z_]+):\s*(.*)$`)
)

var priorities = map[string]string{
	"A": "High",
	"B": "Medium",
	"C": "Low",
}

// Entry is one parsed heading.
type Entry struct {
	ID         string
	Title      string
	Priority   string
	Tags       []string
	Done       bool
	Deadline   *time.Time
	IdealStart string
	Effort     time.Duration
	Chunk      time.Duration
}

func (e Entry) HasTag(tag string) bool {
	for _, t := range e.Tags {
		if t == tag {
			return true
		}
	}
	return false
}

// ParseFiles parses every file; dates are read in loc.
func ParseFiles(paths []string, loc *time.Location) ([]Entry, error) {
	var all []Entry
	for _, p := range paths {
		f, err := os.Open(p)
		if err != nil {
			return nil, err
		}
		entries, err := Parse(f, loc)
		f.Close()
		if err != nil {
			return nil, fmt.Errorf("%s: %w", p, err)
		}
		all = append(all, entries...)
	}
	return all, nil
}

// Parse returns the complete entries in r. Headings without an ID or effort are
// dropped.
func Parse(r io.Reader, loc *time.Location) ([]Entry, error) {
	scanner := bufio.NewScanner(r)
	var (
		entries []Entry
		current *Entry
	)
	flush := func() {
		if current != nil && current.ID != "" && current.Title != "" && current.Effort > 0 {
			entries = append(entries, *current)
		}
		current = nil
	}

	for scanner.Scan() {
		line := strings.TrimSpace(scanner.Text())

		if strings.HasPrefix(line, "*") {
			flush()
			m := headingRegex.FindStringSubmatch(line)
			if m == nil {
				continue
			}
			current = &Entry{Done: m[1] == "DONE", Priority: m[2], Title: strings.TrimSpace(m[3])}
			if m[4] != "" {
				current.Tags = strings.Split(strings.Trim(m[4], ":"), ":")
			}
			continue
		}
		if current == nil {
			continue
		}

		if m := deadlineRegex.FindStringSubmatch(line); m != nil {
			var (
				d   time.Time
				err error
			)
			if m[2] != "" {
				d, err = time.ParseInLocation("2006-01-02 15:04", m[1]+" "+normalizeClock(m[2]), loc)
			} else {
				// a date-only deadline means the end of that day
				d, err = time.ParseInLocation("2006-01-02", m[1], loc)
				d = d.AddDate(0, 0, 1).Add(-time.Minute)
			}
			if err == nil {
				current.Deadline = &d
			}
		}
		if m := scheduleRegex.FindStringSubmatch(line); m != nil {
			current.IdealStart = normalizeClock(m[1])
		}
		if m := propertyRegex.FindStringSubmatch(line); m != nil {
			switch strings.ToUpper(m[1]) {
			case "ID":
				current.ID = strings.TrimSpace(m[2])
			case "EFFORT":
				if d, err := parseEffort(m[2]); err == nil {
					current.Effort = d
				}
			case "CHUNK":
				if d, err := parseEffort(m[2]); err == nil {
					current.Chunk = d
				}
			}
		}
	}
	flush()

	if err := scanner.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}

// ToTask converts an entry into an engine task for userID.
func ToTask(e Entry, userID, workspaceID string) *model.Task {
	t := &model.Task{
		ID:              e.ID,
		UserID:          userID,
		WorkspaceID:     workspaceID,
		Name:            e.Title,
		Status:          model.StatusActive,
		DurationMinutes: int(e.Effort / time.Minute),
		DueDate:         e.Deadline,
		IsHardDeadline:  e.HasTag("hard"),
		IsReminderOnly:  e.HasTag("reminder"),
		IsAutoScheduled: !e.HasTag("manual"),
		IdealStartTime:  e.IdealStart,
		Priority:        priorities[e.Priority],
	}
	if e.Done {
		t.Status = model.StatusCompleted
	}
	if e.Chunk > 0 {
		mins := int(e.Chunk / time.Minute)
		t.ChunkDurationMins = &mins
	}
	return t
}

// parseEffort reads Org effort values: "1:30", "0:45" or plain minutes.
func parseEffort(s string) (time.Duration, error) {
	s = strings.TrimSpace(s)
	if h, m, ok := strings.Cut(s, ":"); ok {
		hours, err := strconv.Atoi(h)
		if err != nil {
			return 0, err
		}
		mins, err := strconv.Atoi(m)
		if err != nil {
			return 0, err
		}
		return time.Duration(hours)*time.Hour + time.Duration(mins)*time.Minute, nil
	}
	mins, err := strconv.Atoi(s)
	if err != nil {
		return 0, err
	}
	return time.Duration(mins) * time.Minute, nil
}

func normalizeClock(s string) string {
	if len(s) == 4 {
		return "0" + s
	}
	return s
}
