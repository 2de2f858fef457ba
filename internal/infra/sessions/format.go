package sessions

import (
	"fmt"
	"strings"

	"holmes/internal/domain"
)

var taskMarkers = map[domain.TaskStatus]string{
	domain.TaskStatusPending:    "[ ]",
	domain.TaskStatusInProgress: "[~]",
	domain.TaskStatusCompleted:  "[✓]",
	domain.TaskStatusCancelled:  "[-]",
}

// FormatTasks renders a task list for the investigation prompt.
func FormatTasks(tasks []domain.Task) string {
	if len(tasks) == 0 {
		return "No tasks in the investigation plan."
	}
	counts := make(map[domain.TaskStatus]int, len(taskMarkers))
	for _, task := range tasks {
		counts[task.Status]++
	}

	var b strings.Builder
	fmt.Fprintf(&b, "Investigation tasks: %d completed, %d in progress, %d pending, %d cancelled\n\n",
		counts[domain.TaskStatusCompleted],
		counts[domain.TaskStatusInProgress],
		counts[domain.TaskStatusPending],
		counts[domain.TaskStatusCancelled],
	)
	for i, task := range tasks {
		fmt.Fprintf(&b, "%s [%d] %s\n", taskMarkers[task.Status], i+1, task.Content)
	}
	return strings.TrimRight(b.String(), "\n")
}

// FormatHypotheses renders hypotheses with their evidence.
func FormatHypotheses(hypotheses []domain.Hypothesis) string {
	if len(hypotheses) == 0 {
		return "No hypotheses recorded."
	}
	var b strings.Builder
	for _, h := range hypotheses {
		fmt.Fprintf(&b, "- %s (%s): %s\n", h.ID, h.Status, h.Statement)
		for _, evidence := range h.Evidence {
			fmt.Fprintf(&b, "  * %s\n", evidence)
		}
	}
	return strings.TrimRight(b.String(), "\n")
}
