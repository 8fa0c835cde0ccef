package taskwarrior

import (
	"fmt"
	"strings"
	"time"
)

const (
	PENDING   = "pending"
	COMPLETED = "completed"
	WAITING   = "waiting"
	DELETED   = "deleted"
)

// Tags that change how an imported task is scheduled.
const (
	TagHardDeadline = "hard"
	TagReminder     = "reminder"
	TagManual       = "manual"
)

type CustomTime struct {
	time.Time
}

const taskwarriorTimeLayout = "20060102T150405Z"

func (ct *CustomTime) UnmarshalJSON(b []byte) error {
	s := strings.Trim(string(b), `"`)
	if s == "" || s == "0" {
		ct.Time = time.Time{}
		return nil
	}

	t, err := time.Parse(taskwarriorTimeLayout, s)
	if err != nil {
		return fmt.Errorf("failed to parse Taskwarrior time string '%s': %w", s, err)
	}
	ct.Time = t
	return nil
}

func (ct CustomTime) MarshalJSON() ([]byte, error) {
	if ct.Time.IsZero() {
		return []byte(`""`), nil
	}
	return []byte(`"` + ct.Time.Format(taskwarriorTimeLayout) + `"`), nil
}

// Task is one record of `task export`. Est, Act, Ideal, Chunk and Schedule are
// UDAs (uda.est, uda.act, uda.ideal, uda.chunk, uda.schedule).
type Task struct {
	UUID        string      `json:"uuid"`
	Description string      `json:"description"`
	Due         *CustomTime `json:"due,omitempty"`
	Status      string      `json:"status"`
	Project     string      `json:"project,omitempty"`
	Priority    string      `json:"priority,omitempty"`
	Tags        []string    `json:"tags,omitempty"`

	Est      string `json:"est,omitempty"`
	Act      string `json:"act,omitempty"`
	Ideal    string `json:"ideal,omitempty"`
	Chunk    string `json:"chunk,omitempty"`
	Schedule string `json:"schedule,omitempty"`
}

func (t Task) HasTag(tag string) bool {
	for _, x := range t.Tags {
		if x == tag {
			return true
		}
	}
	return false
}
