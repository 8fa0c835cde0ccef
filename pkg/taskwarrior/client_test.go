package taskwarrior

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseTask(t *testing.T) {
	input := `{
		"uuid": "f45a05b3-c12e-42e5-9c9c-333333333333",
		"description": "Buy milk",
		"status": "pending",
		"due": "20230101T120000Z",
		"project": "Groceries",
		"priority": "H",
		"tags": ["buy", "hard"],
		"est": "PT1H30M",
		"ideal": "10:00"
	}`

	client := NewClient()
	task, err := client.ParseTask(strings.NewReader(input))
	require.NoError(t, err)

	assert.Equal(t, "f45a05b3-c12e-42e5-9c9c-333333333333", task.UUID)
	assert.Equal(t, "Buy milk", task.Description)
	assert.Equal(t, "Groceries", task.Project)
	assert.Equal(t, "PT1H30M", task.Est)
	assert.True(t, task.HasTag(TagHardDeadline))
	assert.False(t, task.HasTag(TagManual))

	expectedDue, _ := time.Parse(time.RFC3339, "2023-01-01T12:00:00Z")
	assert.True(t, task.Due.Time.Equal(expectedDue))
}

func TestParseTasksArrayAndLines(t *testing.T) {
	client := NewClient()

	arr, err := client.ParseTasks(strings.NewReader(` [{"uuid":"a","status":"pending"},{"uuid":"b","status":"pending"}]`))
	require.NoError(t, err)
	assert.Len(t, arr, 2)

	lines, err := client.ParseTasks(strings.NewReader("{\"uuid\":\"a\"}\n{\"uuid\":\"b\"}\n{\"uuid\":\"c\"}\n"))
	require.NoError(t, err)
	assert.Len(t, lines, 3)

	empty, err := client.ParseTasks(strings.NewReader("  \n"))
	require.NoError(t, err)
	assert.Empty(t, empty)

	_, err = client.ParseTasks(strings.NewReader(`{"uuid":`))
	assert.Error(t, err)
}
