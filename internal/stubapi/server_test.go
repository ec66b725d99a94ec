package stubapi

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"
)

func call(t *testing.T, srv *Server, method, path, auth string, body interface{}) (int, map[string]interface{}) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		if err := json.NewEncoder(&buf).Encode(body); err != nil {
			t.Fatalf("encode: %v", err)
		}
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	rec := httptest.NewRecorder()
	srv.ServeHTTP(rec, req)

	var out map[string]interface{}
	if err := json.Unmarshal(rec.Body.Bytes(), &out); err != nil {
		t.Fatalf("decode %s %s: %v (%s)", method, path, err, rec.Body.String())
	}
	return rec.Code, out
}

func TestRegisterVerifyLogin(t *testing.T) {
	srv := New(Options{Secret: "test"})

	code, _ := call(t, srv, http.MethodPost, "/api/user/user-registration", "", map[string]string{
		"name": "Ada", "email": "ada@example.com", "password": "secret1",
	})
	if code != http.StatusCreated {
		t.Fatalf("register status = %d", code)
	}

	code, body := call(t, srv, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "secret1",
	})
	if code != http.StatusForbidden {
		t.Fatalf("unverified login status = %d, body %v", code, body)
	}

	token, ok := srv.VerificationToken("ada@example.com")
	if !ok {
		t.Fatal("expected a verification token")
	}
	code, _ = call(t, srv, http.MethodPost, "/api/auth/email-verification", "", map[string]string{
		"email": "ada@example.com", "token": token,
	})
	if code != http.StatusOK {
		t.Fatalf("verify status = %d", code)
	}

	code, body = call(t, srv, http.MethodPost, "/api/auth/email-verification", "", map[string]string{
		"email": "ada@example.com", "token": token,
	})
	if code != http.StatusBadRequest || body["errorMessage"] != "Your email already verified." {
		t.Fatalf("second verify = %d %v", code, body)
	}

	code, body = call(t, srv, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "secret1",
	})
	if code != http.StatusOK {
		t.Fatalf("login status = %d, body %v", code, body)
	}
	data := body["data"].(map[string]interface{})
	if data["token"] == "" {
		t.Error("expected a token")
	}
}

func TestLoginWrongPassword(t *testing.T) {
	srv := New(Options{Secret: "test"})
	if _, err := srv.SeedUser("Ada", "ada@example.com", "secret1", true); err != nil {
		t.Fatalf("SeedUser: %v", err)
	}

	code, body := call(t, srv, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "nope",
	})
	if code != http.StatusUnauthorized {
		t.Fatalf("status = %d", code)
	}
	if body["errorMessage"] != "Invalid email or password." {
		t.Errorf("errorMessage = %v", body["errorMessage"])
	}
}

func TestTaskRoutesRequireSession(t *testing.T) {
	srv := New(Options{Secret: "test"})
	id, _ := srv.SeedUser("Ada", "ada@example.com", "secret1", true)

	code, _ := call(t, srv, http.MethodGet, "/api/task", "", nil)
	if code != http.StatusUnauthorized {
		t.Errorf("no token: status = %d", code)
	}

	expired, err := srv.IssueToken(id, "ada@example.com", -time.Minute)
	if err != nil {
		t.Fatalf("IssueToken: %v", err)
	}
	code, _ = call(t, srv, http.MethodGet, "/api/task", "Bearer "+expired, nil)
	if code != http.StatusUnauthorized {
		t.Errorf("expired token: status = %d", code)
	}
}

func TestTaskLifecycle(t *testing.T) {
	srv := New(Options{Secret: "test"})
	id, _ := srv.SeedUser("Ada", "ada@example.com", "secret1", true)
	token, _ := srv.IssueToken(id, "ada@example.com", time.Hour)
	auth := "Bearer " + token

	code, body := call(t, srv, http.MethodPost, "/api/task/create-task", auth, map[string]string{
		"title": "Write tests", "description": "", "dueDate": "2025-09-01",
	})
	if code != http.StatusCreated {
		t.Fatalf("create = %d %v", code, body)
	}
	created := body["data"].(map[string]interface{})
	taskID := created["id"].(string)
	if created["status"] != "pending" {
		t.Errorf("new task status = %v", created["status"])
	}

	code, _ = call(t, srv, http.MethodPatch, "/api/task/update-status/"+taskID, auth, map[string]string{"status": "completed"})
	if code != http.StatusOK {
		t.Fatalf("update status = %d", code)
	}
	code, _ = call(t, srv, http.MethodPatch, "/api/task/update-status/"+taskID, auth, map[string]string{"status": "archived"})
	if code != http.StatusBadRequest {
		t.Errorf("invalid status = %d", code)
	}

	_, body = call(t, srv, http.MethodGet, "/api/task", auth, nil)
	list := body["data"].([]interface{})
	if len(list) != 1 || list[0].(map[string]interface{})["status"] != "completed" {
		t.Fatalf("list = %v", list)
	}

	code, _ = call(t, srv, http.MethodDelete, "/api/task/delete-task/"+taskID, auth, nil)
	if code != http.StatusOK {
		t.Fatalf("delete = %d", code)
	}
	code, _ = call(t, srv, http.MethodDelete, "/api/task/delete-task/"+taskID, auth, nil)
	if code != http.StatusNotFound {
		t.Errorf("second delete = %d", code)
	}
	if got := srv.Hits(http.MethodDelete, "/api/task/delete-task/:id"); got != 2 {
		t.Errorf("delete hits = %d, want 2", got)
	}
}

func TestTasksAreScopedToUser(t *testing.T) {
	srv := New(Options{Secret: "test"})
	a, _ := srv.SeedUser("Ada", "ada@example.com", "secret1", true)
	b, _ := srv.SeedUser("Bob", "bob@example.com", "secret1", true)
	ta, _ := srv.IssueToken(a, "ada@example.com", time.Hour)
	tb, _ := srv.IssueToken(b, "bob@example.com", time.Hour)

	call(t, srv, http.MethodPost, "/api/task/create-task", "Bearer "+ta, map[string]string{
		"title": "Ada's", "dueDate": "2025-09-01",
	})
	_, body := call(t, srv, http.MethodGet, "/api/task", "Bearer "+tb, nil)
	if list := body["data"].([]interface{}); len(list) != 0 {
		t.Errorf("bob sees %d tasks", len(list))
	}
}

func TestResetPasswordUsesRawToken(t *testing.T) {
	srv := New(Options{Secret: "test"})
	srv.SeedUser("Ada", "ada@example.com", "secret1", true)

	code, _ := call(t, srv, http.MethodPost, "/api/auth/forget-password", "", map[string]string{"email": "ada@example.com"})
	if code != http.StatusOK {
		t.Fatalf("forgot = %d", code)
	}
	token, ok := srv.ResetToken("ada@example.com")
	if !ok {
		t.Fatal("expected a reset token")
	}

	code, _ = call(t, srv, http.MethodPost, "/api/auth/reset-password", "Bearer "+token, map[string]string{
		"email": "ada@example.com", "newPassword": "secret2",
	})
	if code != http.StatusUnauthorized {
		t.Errorf("bearer-prefixed reset = %d, want 401", code)
	}

	code, _ = call(t, srv, http.MethodPost, "/api/auth/reset-password", token, map[string]string{
		"email": "ada@example.com", "newPassword": "secret2",
	})
	if code != http.StatusOK {
		t.Fatalf("reset = %d", code)
	}

	code, _ = call(t, srv, http.MethodPost, "/api/auth/login", "", map[string]string{
		"email": "ada@example.com", "password": "secret2",
	})
	if code != http.StatusOK {
		t.Errorf("login with new password = %d", code)
	}
}
