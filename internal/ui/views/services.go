package views

import (
	"context"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dori/taskdeck/internal/api"
	"github.com/dori/taskdeck/internal/board"
	"github.com/dori/taskdeck/internal/model"
	"github.com/dori/taskdeck/internal/session"
)

// BoardService is what the board screen needs from the synchronizer
type BoardService interface {
	Snapshot() board.Board
	Restore() (board.Board, bool)
	Load(ctx context.Context) (board.Board, error)
	Create(ctx context.Context, draft model.TaskDraft) (board.Board, error)
	ChangeStatus(ctx context.Context, id string, status model.Status) (board.Board, error)
	UpdateFields(ctx context.Context, id string, draft model.TaskDraft) (board.Board, error)
	RequestDelete(id string) (board.PendingDelete, error)
	ConfirmDelete(ctx context.Context, p board.PendingDelete) (board.Board, error)
	CancelDelete(p board.PendingDelete)
	Busy(key string) bool
}

// AuthService is what the account screens need from the API client
type AuthService interface {
	Register(ctx context.Context, r api.Registration) (string, error)
	Login(ctx context.Context, email, password string) (api.LoginResult, error)
	VerifyEmail(ctx context.Context, email, token string) (string, error)
	ResendVerification(ctx context.Context, email string) (string, error)
	ForgotPassword(ctx context.Context, email string) (string, error)
	ResetPassword(ctx context.Context, resetToken, email, newPassword, confirm string) (string, error)
}

// SessionEstablisher stores a new session after login
type SessionEstablisher interface {
	Establish(token string, user *model.User) error
}

// NavigateMsg asks the root model to switch screens. The route guard
// decides where the user actually lands.
type NavigateMsg struct {
	Route session.Route
	// Status is shown on the destination screen
	Status string
	// Email prefills the destination form
	Email string
}

// LogoutMsg asks the root model to end the session
type LogoutMsg struct{}

func navigate(route session.Route, status, email string) tea.Cmd {
	return func() tea.Msg {
		return NavigateMsg{Route: route, Status: status, Email: email}
	}
}
