package api

import (
	"context"
	"net/http"
	"net/url"

	"github.com/dori/taskdeck/internal/model"
)

// ListTasks fetches every task of the signed-in user.
func (c *Client) ListTasks(ctx context.Context) ([]model.Task, error) {
	data, err := c.do(ctx, request{op: "list tasks", method: http.MethodGet, path: "/task", auth: authBearer})
	if err != nil {
		return nil, err
	}

	var doc interface{}
	if err := codec.Unmarshal(data, &doc); err != nil {
		return nil, &model.FetchError{Op: "list tasks", Err: err}
	}
	if err := validateTaskList(doc); err != nil {
		return nil, &model.FetchError{Op: "list tasks", Err: err}
	}

	tasks, err := decode[[]model.Task]("list tasks", data)
	if err != nil {
		return nil, err
	}
	if tasks == nil {
		tasks = []model.Task{}
	}
	return tasks, nil
}

// CreateTask creates a task from a draft. The server assigns the id and the pending status.
func (c *Client) CreateTask(ctx context.Context, draft model.TaskDraft) error {
	draft = draft.Normalized()
	if err := draft.Validate(); err != nil {
		return err
	}
	_, err := c.do(ctx, request{
		op: "create task", method: http.MethodPost, path: "/task/create-task", auth: authBearer, body: draft,
	})
	return err
}

// UpdateStatus moves a task to another column.
func (c *Client) UpdateStatus(ctx context.Context, id string, status model.Status) error {
	if id == "" {
		return &model.ValidationError{Field: "id", Message: "task id is required"}
	}
	if !status.Valid() {
		return &model.ValidationError{Field: "status", Message: "unknown status " + string(status)}
	}
	_, err := c.do(ctx, request{
		op: "update status", method: http.MethodPatch, path: "/task/update-status/" + url.PathEscape(id),
		auth: authBearer, body: map[string]model.Status{"status": status},
	})
	return err
}

// UpdateTask replaces a task's title, description and due date. Status is untouched.
func (c *Client) UpdateTask(ctx context.Context, id string, draft model.TaskDraft) error {
	if id == "" {
		return &model.ValidationError{Field: "id", Message: "task id is required"}
	}
	draft = draft.Normalized()
	if err := draft.Validate(); err != nil {
		return err
	}
	_, err := c.do(ctx, request{
		op: "update task", method: http.MethodPatch, path: "/task/update-task/" + url.PathEscape(id),
		auth: authBearer, body: draft,
	})
	return err
}

// DeleteTask removes a task.
func (c *Client) DeleteTask(ctx context.Context, id string) error {
	if id == "" {
		return &model.ValidationError{Field: "id", Message: "task id is required"}
	}
	_, err := c.do(ctx, request{
		op: "delete task", method: http.MethodDelete, path: "/task/delete-task/" + url.PathEscape(id), auth: authBearer,
	})
	return err
}
