package domain

import "time"

// TaskStatus tracks progress of an investigation task.
type TaskStatus string

const (
	TaskStatusPending    TaskStatus = "pending"
	TaskStatusInProgress TaskStatus = "in_progress"
	TaskStatusCompleted  TaskStatus = "completed"
	TaskStatusCancelled  TaskStatus = "cancelled"
)

// Task is one entry of a session's ordered task list.
type Task struct {
	ID      string     `json:"id"`
	Content string     `json:"content"`
	Status  TaskStatus `json:"status"`
}

// ValidTaskStatus reports whether status is a known task status.
func ValidTaskStatus(status TaskStatus) bool {
	switch status {
	case TaskStatusPending, TaskStatusInProgress, TaskStatusCompleted, TaskStatusCancelled:
		return true
	default:
		return false
	}
}

// HypothesisStatus is the verdict on an investigation hypothesis.
type HypothesisStatus string

const (
	HypothesisPending      HypothesisStatus = "pending"
	HypothesisConfirmed    HypothesisStatus = "confirmed"
	HypothesisRefuted      HypothesisStatus = "refuted"
	HypothesisInconclusive HypothesisStatus = "inconclusive"
)

// ValidHypothesisStatus reports whether status is a known hypothesis status.
func ValidHypothesisStatus(status HypothesisStatus) bool {
	switch status {
	case HypothesisPending, HypothesisConfirmed, HypothesisRefuted, HypothesisInconclusive:
		return true
	default:
		return false
	}
}

// Hypothesis is a candidate root cause tracked across the whole process.
type Hypothesis struct {
	ID        string           `json:"id"`
	Statement string           `json:"statement"`
	Status    HypothesisStatus `json:"status"`
	Evidence  []string         `json:"evidence,omitempty"`
	UpdatedAt time.Time        `json:"updated_at"`
}
