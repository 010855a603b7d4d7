package engine

import (
	"strings"
)

// TaskText returns the visible analysis from the task list marker onward.
// Without the marker the whole visible text is returned.
func TaskText(analysis string) string {
	visible := StripReasoning(analysis)
	if i := strings.Index(visible, MarkerTaskList); i >= 0 {
		return strings.TrimSpace(visible[i:])
	}
	return visible
}

// ParseTasks extracts the task descriptions of a task list. A task is a line
// whose first content, after optional list bullets or numbering, is the task
// item marker. Empty items are skipped.
func ParseTasks(text string) []string {
	var tasks []string
	for _, line := range strings.Split(StripReasoning(text), "\n") {
		line = strings.TrimLeft(strings.TrimSpace(line), "-*•0123456789.) \t")
		if !strings.HasPrefix(line, MarkerTaskItem) {
			continue
		}
		task := strings.TrimSpace(strings.TrimPrefix(line, MarkerTaskItem))
		task = strings.TrimLeft(task, ":： ")
		if task != "" {
			tasks = append(tasks, task)
		}
	}
	return tasks
}
