package api

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/dori/taskdeck/internal/model"
	"github.com/dori/taskdeck/internal/stubapi"
)

type staticToken string

func (s staticToken) Token() string { return string(s) }

func newStub(t *testing.T) (*stubapi.Server, *httptest.Server) {
	t.Helper()
	stub := stubapi.New(stubapi.Options{Secret: "test"})
	srv := httptest.NewServer(stub)
	t.Cleanup(srv.Close)
	return stub, srv
}

func signedIn(t *testing.T, stub *stubapi.Server, srv *httptest.Server) *Client {
	t.Helper()
	id, err := stub.SeedUser("Ada", "ada@example.com", "secret1", true)
	if err != nil {
		t.Fatalf("SeedUser: %v", err)
	}
	token, err := stub.IssueToken(id, "ada@example.com", time.Hour)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	return New(srv.URL, WithTokenSource(staticToken(token)))
}

func TestNewAppendsAPIPrefix(t *testing.T) {
	tests := map[string]string{
		"http://localhost:5000":      "http://localhost:5000/api",
		"http://localhost:5000/":     "http://localhost:5000/api",
		"http://localhost:5000/api":  "http://localhost:5000/api",
		"http://localhost:5000/api/": "http://localhost:5000/api",
	}
	for in, want := range tests {
		if got := New(in).BaseURL(); got != want {
			t.Errorf("New(%q).BaseURL() = %q, want %q", in, got, want)
		}
	}
}

func TestLogin(t *testing.T) {
	stub, srv := newStub(t)
	stub.SeedUser("Ada", "ada@example.com", "secret1", true)
	c := New(srv.URL)

	res, err := c.Login(context.Background(), "ada@example.com", "secret1")
	if err != nil {
		t.Fatalf("Login: %v", err)
	}
	if res.Token == "" {
		t.Error("expected a token")
	}
	if res.User == nil || res.User.Name != "Ada" {
		t.Errorf("user = %+v", res.User)
	}
}

func TestLoginWrongCredentials(t *testing.T) {
	stub, srv := newStub(t)
	stub.SeedUser("Ada", "ada@example.com", "secret1", true)
	c := New(srv.URL)

	_, err := c.Login(context.Background(), "ada@example.com", "wrong")
	var fe *model.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %T %v", err, err)
	}
	if fe.Status != http.StatusUnauthorized || fe.Error() != "Invalid email or password." {
		t.Errorf("got status %d message %q", fe.Status, fe.Error())
	}
	if model.IsAuth(err) {
		t.Error("a failed login is not a session error")
	}
}

func TestLoginRequiresFields(t *testing.T) {
	_, srv := newStub(t)
	c := New(srv.URL)

	_, err := c.Login(context.Background(), "", "secret1")
	if !model.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
}

func TestBearerWithoutTokenSkipsNetwork(t *testing.T) {
	stub, srv := newStub(t)
	c := New(srv.URL)

	_, err := c.ListTasks(context.Background())
	if !model.IsAuth(err) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if got := stub.Hits(http.MethodGet, "/api/task"); got != 0 {
		t.Errorf("hits = %d, want 0", got)
	}
}

func TestExpiredTokenIsAuthError(t *testing.T) {
	stub, srv := newStub(t)
	id, _ := stub.SeedUser("Ada", "ada@example.com", "secret1", true)
	expired, _ := stub.IssueToken(id, "ada@example.com", -time.Minute)
	c := New(srv.URL, WithTokenSource(staticToken(expired)))

	_, err := c.ListTasks(context.Background())
	var ae *model.AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected AuthError, got %v", err)
	}
	if ae.Status != http.StatusUnauthorized {
		t.Errorf("status = %d", ae.Status)
	}
}

func TestTaskRoundTrip(t *testing.T) {
	stub, srv := newStub(t)
	c := signedIn(t, stub, srv)
	ctx := context.Background()

	due, _ := model.ParseDate("2025-09-01")
	if err := c.CreateTask(ctx, model.TaskDraft{Title: "Write tests", DueDate: due}); err != nil {
		t.Fatalf("CreateTask: %v", err)
	}

	tasks, err := c.ListTasks(ctx)
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 {
		t.Fatalf("got %d tasks", len(tasks))
	}
	task := tasks[0]
	if task.Title != "Write tests" || task.Status != model.StatusPending || task.DueDate.String() != "2025-09-01" {
		t.Errorf("task = %+v", task)
	}

	if err := c.UpdateStatus(ctx, task.ID, model.StatusCompleted); err != nil {
		t.Fatalf("UpdateStatus: %v", err)
	}
	newDue, _ := model.ParseDate("2025-10-01")
	if err := c.UpdateTask(ctx, task.ID, model.TaskDraft{Title: "Write more tests", DueDate: newDue}); err != nil {
		t.Fatalf("UpdateTask: %v", err)
	}

	tasks, _ = c.ListTasks(ctx)
	if got := tasks[0]; got.Status != model.StatusCompleted || got.Title != "Write more tests" || got.DueDate.String() != "2025-10-01" {
		t.Errorf("after updates: %+v", got)
	}

	if err := c.DeleteTask(ctx, task.ID); err != nil {
		t.Fatalf("DeleteTask: %v", err)
	}
	if err := c.DeleteTask(ctx, task.ID); !IsNotFound(err) {
		t.Errorf("second delete: %v", err)
	}
}

func TestCreateTaskValidatesBeforeSending(t *testing.T) {
	stub, srv := newStub(t)
	c := signedIn(t, stub, srv)

	err := c.CreateTask(context.Background(), model.TaskDraft{Title: "No date"})
	if !model.IsValidation(err) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	if got := stub.Hits(http.MethodPost, "/api/task/create-task"); got != 0 {
		t.Errorf("hits = %d, want 0", got)
	}
}

func TestListTasksRejectsMalformedResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"success":true,"data":[{"title":"no id","status":"pending"}]}`))
	}))
	defer srv.Close()
	c := New(srv.URL, WithTokenSource(staticToken("t")))

	_, err := c.ListTasks(context.Background())
	var fe *model.FetchError
	if !errors.As(err, &fe) {
		t.Fatalf("expected FetchError, got %v", err)
	}
}

func TestListTasksAcceptsMongoIDs(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"data":[{"_id":"abc","title":"t","status":"pending","dueDate":"2025-09-01T00:00:00.000Z"}]}`))
	}))
	defer srv.Close()
	c := New(srv.URL, WithTokenSource(staticToken("t")))

	tasks, err := c.ListTasks(context.Background())
	if err != nil {
		t.Fatalf("ListTasks: %v", err)
	}
	if len(tasks) != 1 || tasks[0].ID != "abc" || tasks[0].DueDate.String() != "2025-09-01" {
		t.Errorf("tasks = %+v", tasks)
	}
}

func TestResetPasswordSendsRawToken(t *testing.T) {
	var gotAuth string
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuth = r.Header.Get("Authorization")
		w.Write([]byte(`{"success":true,"message":"Password reset successfully!"}`))
	}))
	defer srv.Close()
	c := New(srv.URL)

	msg, err := c.ResetPassword(context.Background(), "reset-token", "ada@example.com", "secret2", "secret2")
	if err != nil {
		t.Fatalf("ResetPassword: %v", err)
	}
	if gotAuth != "reset-token" {
		t.Errorf("Authorization = %q", gotAuth)
	}
	if msg != "Password reset successfully!" {
		t.Errorf("message = %q", msg)
	}
}

func TestResetPasswordMismatch(t *testing.T) {
	c := New("http://127.0.0.1:1")
	_, err := c.ResetPassword(context.Background(), "t", "ada@example.com", "a", "b")
	var ve *model.ValidationError
	if !errors.As(err, &ve) || ve.Message != "Passwords do not match. Please try again." {
		t.Fatalf("got %v", err)
	}
}

func TestServerErrorMessage(t *testing.T) {
	stub, srv := newStub(t)
	stub.SeedUser("Ada", "ada@example.com", "secret1", true)
	c := New(srv.URL)

	_, err := c.Register(context.Background(), Registration{Name: "Ada", Email: "ada@example.com", Password: "secret1"})
	if err == nil || err.Error() != "User already exists." {
		t.Fatalf("got %v", err)
	}
}
