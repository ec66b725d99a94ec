package model

import (
	"strings"
	"time"

	"github.com/bytedance/sonic"
)

// Status represents the board column a task belongs to
type Status string

const (
	StatusPending    Status = "pending"
	StatusInProgress Status = "in-progress"
	StatusCompleted  Status = "completed"
)

// Statuses returns every status in column order
func Statuses() []Status {
	return []Status{StatusPending, StatusInProgress, StatusCompleted}
}

// Valid reports whether s is one of the known statuses
func (s Status) Valid() bool {
	switch s {
	case StatusPending, StatusInProgress, StatusCompleted:
		return true
	}
	return false
}

// Label returns the column heading for a status
func (s Status) Label() string {
	switch s {
	case StatusPending:
		return "To Do"
	case StatusInProgress:
		return "In Progress"
	case StatusCompleted:
		return "Completed"
	default:
		return string(s)
	}
}

// ParseStatus accepts the wire value and a few shorthand spellings
func ParseStatus(s string) (Status, bool) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "pending", "todo", "to-do":
		return StatusPending, true
	case "in-progress", "inprogress", "in_progress", "doing", "progress":
		return StatusInProgress, true
	case "completed", "complete", "done":
		return StatusCompleted, true
	}
	return "", false
}

// Task represents a task owned by the signed-in user
type Task struct {
	ID          string `json:"id"`
	Title       string `json:"title"`
	Description string `json:"description"`
	Status      Status `json:"status"`
	DueDate     Date   `json:"dueDate"`
}

// UnmarshalJSON accepts both "id" and the "_id" spelling some backends use
func (t *Task) UnmarshalJSON(data []byte) error {
	type plain Task
	var aux struct {
		plain
		MongoID string `json:"_id"`
	}
	if err := sonic.ConfigStd.Unmarshal(data, &aux); err != nil {
		return err
	}
	*t = Task(aux.plain)
	if t.ID == "" {
		t.ID = aux.MongoID
	}
	return nil
}

// IsOverdue returns true if the task is past its due date and not completed
func (t *Task) IsOverdue(now time.Time) bool {
	if t.DueDate.IsZero() || t.Status == StatusCompleted {
		return false
	}
	return t.DueDate.Before(Today(now))
}

// IsDueToday returns true if the task is due on now's calendar day
func (t *Task) IsDueToday(now time.Time) bool {
	if t.DueDate.IsZero() {
		return false
	}
	return t.DueDate.Equal(Today(now))
}

// TaskDraft holds the user-editable fields of a task.
// It is the body of both create and field-update requests.
type TaskDraft struct {
	Title       string `json:"title"`
	Description string `json:"description"`
	DueDate     Date   `json:"dueDate"`
}

// Validate checks the required fields before anything is sent
func (d TaskDraft) Validate() error {
	if strings.TrimSpace(d.Title) == "" {
		return &ValidationError{Field: "title", Message: "title is required"}
	}
	if d.DueDate.IsZero() {
		return &ValidationError{Field: "dueDate", Message: "due date is required"}
	}
	return nil
}

// Normalized trims surrounding whitespace from the text fields
func (d TaskDraft) Normalized() TaskDraft {
	d.Title = strings.TrimSpace(d.Title)
	d.Description = strings.TrimSpace(d.Description)
	return d
}

// DraftOf returns the editable fields of an existing task
func DraftOf(t Task) TaskDraft {
	return TaskDraft{Title: t.Title, Description: t.Description, DueDate: t.DueDate}
}
