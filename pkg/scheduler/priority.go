package scheduler

import (
	"sort"

	"github.com/harrisonrobin/autosched/pkg/model"
)

// Two vocabularies are in use: the numbered/"Big Rock" labels and the generic
// High/Medium/Low ones. Both are kept verbatim.
var priorityWeights = map[string]int{
	"1st Priority":  100,
	"Big Rock":      100,
	"ASAP":          100,
	"2nd Priority":  80,
	"High":          80,
	"3rd Priority":  60,
	"Medium":        50,
	"4th Priority":  40,
	"Low":           30,
	"5th Priority":  20,
	"Someday Maybe": 1,
}

const defaultPriorityWeight = 10

// PriorityWeight maps a priority label to its weight; unknown labels weigh 10.
func PriorityWeight(label string) int {
	if w, ok := priorityWeights[label]; ok {
		return w
	}
	return defaultPriorityWeight
}

// SortForScheduling orders tasks by deadline (earliest first, none last), then by
// priority weight (heaviest first). Remaining ties keep their input order.
func SortForScheduling(tasks []model.Task) {
	sort.SliceStable(tasks, func(i, j int) bool {
		a, b := tasks[i], tasks[j]
		switch {
		case a.DueDate != nil && b.DueDate == nil:
			return true
		case a.DueDate == nil && b.DueDate != nil:
			return false
		case a.DueDate != nil && !a.DueDate.Equal(*b.DueDate):
			return a.DueDate.Before(*b.DueDate)
		}
		return PriorityWeight(a.Priority) > PriorityWeight(b.Priority)
	})
}
