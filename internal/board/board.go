// Package board keeps the task board in step with the server: it fetches the
// task list, groups it into status columns and reloads it after every change.
package board

import (
	"time"

	"github.com/dori/taskdeck/internal/model"
)

// QueryKey identifies the task-list snapshot in the local cache.
const QueryKey = "tasks:all"

// Board is a snapshot of the server's task list.
type Board struct {
	Tasks     []model.Task `json:"tasks"`
	FetchedAt time.Time    `json:"fetchedAt"`
}

// Column returns the tasks whose status is exactly s, in server order.
func (b Board) Column(s model.Status) []model.Task {
	var out []model.Task
	for _, t := range b.Tasks {
		if t.Status == s {
			out = append(out, t)
		}
	}
	return out
}

// Columns returns the three columns in board order.
func (b Board) Columns() [3][]model.Task {
	var cols [3][]model.Task
	for i, s := range model.Statuses() {
		cols[i] = b.Column(s)
	}
	return cols
}

// Find returns the task with the given id.
func (b Board) Find(id string) (model.Task, bool) {
	for _, t := range b.Tasks {
		if t.ID == id {
			return t, true
		}
	}
	return model.Task{}, false
}

// IsZero reports whether the board has never been loaded.
func (b Board) IsZero() bool {
	return b.Tasks == nil && b.FetchedAt.IsZero()
}

func (b Board) clone() Board {
	if b.Tasks == nil {
		return b
	}
	tasks := make([]model.Task, len(b.Tasks))
	copy(tasks, b.Tasks)
	b.Tasks = tasks
	return b
}
