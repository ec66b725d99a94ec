package stubapi

import (
	"net/http"
	"strings"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
	"golang.org/x/crypto/bcrypt"

	"github.com/dori/taskdeck/internal/model"
)

const minPasswordLength = 6

type registerRequest struct {
	Name     string `json:"name"`
	Email    string `json:"email"`
	Password string `json:"password"`
}

type credentials struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

type verifyRequest struct {
	Email string `json:"email"`
	Token string `json:"token"`
}

type emailRequest struct {
	Email string `json:"email"`
}

type resetRequest struct {
	Email       string `json:"email"`
	NewPassword string `json:"newPassword"`
}

type statusRequest struct {
	Status model.Status `json:"status"`
}

func (s *Server) handleRegister(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "Invalid request body.")
	}
	email := normalizeEmail(req.Email)
	if strings.TrimSpace(req.Name) == "" || email == "" {
		return failure(c, http.StatusBadRequest, "Name and email are required.")
	}
	if len(req.Password) < minPasswordLength {
		return failure(c, http.StatusBadRequest, "Password must be at least 6 characters.")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.MinCost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if _, exists := s.accounts[email]; exists {
		s.mu.Unlock()
		return failure(c, http.StatusConflict, "User already exists.")
	}
	a := &account{
		ID:           uuid.NewString(),
		Name:         strings.TrimSpace(req.Name),
		Email:        email,
		PasswordHash: hash,
		Verified:     s.auto,
	}
	if !a.Verified {
		a.VerifyToken = uuid.NewString()
	}
	s.accounts[email] = a
	s.mu.Unlock()

	if a.VerifyToken != "" {
		s.logger.Info("verification email", "email", email, "token", a.VerifyToken)
	}
	return success(c, http.StatusCreated, "Registration successful! Please check your email to verify your account.", nil)
}

func (s *Server) handleLogin(c echo.Context) error {
	var req credentials
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "Invalid request body.")
	}

	s.mu.Lock()
	a, ok := s.accounts[normalizeEmail(req.Email)]
	var snapshot account
	if ok {
		snapshot = *a
	}
	s.mu.Unlock()

	if !ok || bcrypt.CompareHashAndPassword(snapshot.PasswordHash, []byte(req.Password)) != nil {
		return failure(c, http.StatusUnauthorized, "Invalid email or password.")
	}
	if !snapshot.Verified {
		return failure(c, http.StatusForbidden, "Please verify your email before logging in.")
	}

	token, err := s.sign(snapshot.ID, snapshot.Email, purposeSession, s.tokenTTL)
	if err != nil {
		return err
	}
	return success(c, http.StatusOK, "Login successful!", map[string]interface{}{
		"token": token,
		"user": model.User{
			ID:         snapshot.ID,
			Name:       snapshot.Name,
			Email:      snapshot.Email,
			Role:       "user",
			IsVerified: true,
		},
	})
}

func (s *Server) handleVerifyEmail(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "Invalid request body.")
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[normalizeEmail(req.Email)]
	if !ok {
		return failure(c, http.StatusNotFound, "User not found.")
	}
	if a.Verified {
		return failure(c, http.StatusBadRequest, "Your email already verified.")
	}
	if req.Token == "" || req.Token != a.VerifyToken {
		return failure(c, http.StatusBadRequest, "Invalid or expired verification token.")
	}
	a.Verified = true
	a.VerifyToken = ""
	return success(c, http.StatusOK, "Email verified successfully!", nil)
}

func (s *Server) handleResendVerification(c echo.Context) error {
	var req emailRequest
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "Invalid request body.")
	}

	s.mu.Lock()
	a, ok := s.accounts[normalizeEmail(req.Email)]
	if !ok {
		s.mu.Unlock()
		return failure(c, http.StatusNotFound, "User not found.")
	}
	if a.Verified {
		s.mu.Unlock()
		return failure(c, http.StatusBadRequest, "Your email already verified.")
	}
	a.VerifyToken = uuid.NewString()
	email, token := a.Email, a.VerifyToken
	s.mu.Unlock()

	s.logger.Info("verification email", "email", email, "token", token)
	return success(c, http.StatusOK, "Verification link resent successfully!", nil)
}

func (s *Server) handleForgotPassword(c echo.Context) error {
	var req emailRequest
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "Invalid request body.")
	}

	s.mu.Lock()
	a, ok := s.accounts[normalizeEmail(req.Email)]
	if !ok {
		s.mu.Unlock()
		return failure(c, http.StatusNotFound, "User not found.")
	}
	id, email := a.ID, a.Email
	s.mu.Unlock()

	token, err := s.sign(id, email, purposeReset, s.resetTTL)
	if err != nil {
		return err
	}

	s.mu.Lock()
	if a, ok := s.accounts[email]; ok {
		a.ResetToken = token
	}
	s.mu.Unlock()

	s.logger.Info("password reset email", "email", email, "token", token)
	return success(c, http.StatusOK, "Password reset link sent to your email.", nil)
}

// handleResetPassword expects the reset token as the raw Authorization header.
func (s *Server) handleResetPassword(c echo.Context) error {
	raw := strings.TrimSpace(c.Request().Header.Get(echo.HeaderAuthorization))
	if raw == "" {
		return failure(c, http.StatusUnauthorized, "Reset link is invalid or expired.")
	}
	cl, err := s.parse(raw, purposeReset)
	if err != nil {
		return failure(c, http.StatusUnauthorized, "Reset link is invalid or expired.")
	}

	var req resetRequest
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "Invalid request body.")
	}
	email := normalizeEmail(req.Email)
	if email != cl.Email {
		return failure(c, http.StatusBadRequest, "Email does not match the reset link.")
	}
	if len(req.NewPassword) < minPasswordLength {
		return failure(c, http.StatusBadRequest, "Password must be at least 6 characters.")
	}
	hash, err := bcrypt.GenerateFromPassword([]byte(req.NewPassword), bcrypt.MinCost)
	if err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	a, ok := s.accounts[email]
	if !ok {
		return failure(c, http.StatusNotFound, "User not found.")
	}
	if a.ResetToken != raw {
		return failure(c, http.StatusUnauthorized, "Reset link is invalid or expired.")
	}
	a.PasswordHash = hash
	a.ResetToken = ""
	return success(c, http.StatusOK, "Password reset successfully!", nil)
}

func (s *Server) handleListTasks(c echo.Context) error {
	uid := c.Get("uid").(string)

	s.mu.Lock()
	tasks := make([]model.Task, len(s.tasks[uid]))
	copy(tasks, s.tasks[uid])
	s.mu.Unlock()

	return success(c, http.StatusOK, "Tasks retrieved successfully.", tasks)
}

func (s *Server) handleCreateTask(c echo.Context) error {
	uid := c.Get("uid").(string)

	var draft model.TaskDraft
	if err := c.Bind(&draft); err != nil {
		return failure(c, http.StatusBadRequest, "Invalid request body.")
	}
	draft = draft.Normalized()
	if err := draft.Validate(); err != nil {
		return failure(c, http.StatusBadRequest, err.Error())
	}

	task := model.Task{
		ID:          uuid.NewString(),
		Title:       draft.Title,
		Description: draft.Description,
		Status:      model.StatusPending,
		DueDate:     draft.DueDate,
	}

	s.mu.Lock()
	s.tasks[uid] = append(s.tasks[uid], task)
	s.mu.Unlock()

	return success(c, http.StatusCreated, "Task created successfully.", task)
}

func (s *Server) handleUpdateStatus(c echo.Context) error {
	uid := c.Get("uid").(string)

	var req statusRequest
	if err := c.Bind(&req); err != nil {
		return failure(c, http.StatusBadRequest, "Invalid request body.")
	}
	if !req.Status.Valid() {
		return failure(c, http.StatusBadRequest, "Invalid status.")
	}

	return s.mutateTask(c, uid, c.Param("id"), "Task status updated.", func(t *model.Task) {
		t.Status = req.Status
	})
}

func (s *Server) handleUpdateTask(c echo.Context) error {
	uid := c.Get("uid").(string)

	var draft model.TaskDraft
	if err := c.Bind(&draft); err != nil {
		return failure(c, http.StatusBadRequest, "Invalid request body.")
	}
	draft = draft.Normalized()
	if err := draft.Validate(); err != nil {
		return failure(c, http.StatusBadRequest, err.Error())
	}

	return s.mutateTask(c, uid, c.Param("id"), "Task updated successfully.", func(t *model.Task) {
		t.Title = draft.Title
		t.Description = draft.Description
		t.DueDate = draft.DueDate
	})
}

func (s *Server) handleDeleteTask(c echo.Context) error {
	uid := c.Get("uid").(string)
	id := c.Param("id")

	s.mu.Lock()
	tasks := s.tasks[uid]
	idx := indexOf(tasks, id)
	if idx < 0 {
		s.mu.Unlock()
		return failure(c, http.StatusNotFound, "Task not found.")
	}
	s.tasks[uid] = append(tasks[:idx:idx], tasks[idx+1:]...)
	s.mu.Unlock()

	return success(c, http.StatusOK, "Task deleted successfully.", nil)
}

func (s *Server) mutateTask(c echo.Context, uid, id, message string, apply func(*model.Task)) error {
	s.mu.Lock()
	tasks := s.tasks[uid]
	idx := indexOf(tasks, id)
	if idx < 0 {
		s.mu.Unlock()
		return failure(c, http.StatusNotFound, "Task not found.")
	}
	apply(&tasks[idx])
	task := tasks[idx]
	s.mu.Unlock()

	return success(c, http.StatusOK, message, task)
}

func indexOf(tasks []model.Task, id string) int {
	for i := range tasks {
		if tasks[i].ID == id {
			return i
		}
	}
	return -1
}
