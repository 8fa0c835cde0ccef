package scheduler

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"

	"github.com/harrisonrobin/autosched/pkg/model"
)

func TestPriorityWeight(t *testing.T) {
	cases := map[string]int{
		"1st Priority":  100,
		"Big Rock":      100,
		"ASAP":          100,
		"High":          80,
		"3rd Priority":  60,
		"Medium":        50,
		"Low":           30,
		"Someday Maybe": 1,
		"":              10,
		"whenever":      10,
	}
	for label, want := range cases {
		assert.Equal(t, want, PriorityWeight(label), label)
	}
}

func TestSortForScheduling(t *testing.T) {
	d1 := time.Date(2024, 3, 6, 0, 0, 0, 0, time.UTC)
	d2 := d1.AddDate(0, 0, 1)
	tasks := []model.Task{
		{ID: "none-low", Priority: "Low"},
		{ID: "d2-low", DueDate: &d2, Priority: "Low"},
		{ID: "none-high", Priority: "High"},
		{ID: "d2-asap", DueDate: &d2, Priority: "ASAP"},
		{ID: "d1-someday", DueDate: &d1, Priority: "Someday Maybe"},
		{ID: "d2-low-2", DueDate: &d2, Priority: "Low"},
	}

	SortForScheduling(tasks)

	var ids []string
	for _, task := range tasks {
		ids = append(ids, task.ID)
	}
	assert.Equal(t, []string{"d1-someday", "d2-asap", "d2-low", "d2-low-2", "none-high", "none-low"}, ids)
}

func TestUserLocksReleaseEntries(t *testing.T) {
	l := newUserLocks()
	unlock := l.Lock("u1")
	other := l.Lock("u2")
	assert.Len(t, l.locks, 2)

	unlock()
	other()
	assert.Empty(t, l.locks)
}
