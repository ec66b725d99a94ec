package views

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dori/taskdeck/internal/api"
	"github.com/dori/taskdeck/internal/model"
	"github.com/dori/taskdeck/internal/session"
)

type fakeAuth struct {
	err     error
	message string
	login   api.LoginResult

	registered []api.Registration
	resends    int
	resets     int
}

func (f *fakeAuth) Register(ctx context.Context, r api.Registration) (string, error) {
	f.registered = append(f.registered, r)
	return f.message, f.err
}

func (f *fakeAuth) Login(ctx context.Context, email, password string) (api.LoginResult, error) {
	return f.login, f.err
}

func (f *fakeAuth) VerifyEmail(ctx context.Context, email, token string) (string, error) {
	return f.message, f.err
}

func (f *fakeAuth) ResendVerification(ctx context.Context, email string) (string, error) {
	f.resends++
	return "Verification email sent", nil
}

func (f *fakeAuth) ForgotPassword(ctx context.Context, email string) (string, error) {
	return f.message, f.err
}

func (f *fakeAuth) ResetPassword(ctx context.Context, token, email, password, confirm string) (string, error) {
	f.resets++
	if password != confirm {
		return "", &model.ValidationError{Field: "confirm", Message: "Passwords do not match. Please try again."}
	}
	return f.message, f.err
}

type fakeEstablisher struct {
	token string
	user  *model.User
	err   error
}

func (f *fakeEstablisher) Establish(token string, user *model.User) error {
	f.token, f.user = token, user
	return f.err
}

type testClock struct{ t time.Time }

func (c *testClock) Now() time.Time { return c.t }

func fillForm(v AuthView, values ...string) AuthView {
	for i, s := range values {
		v.form = v.form.SetValue(i, s)
	}
	return v
}

// submitAuth presses enter and feeds the result back into the view
func submitAuth(t *testing.T, v AuthView) (AuthView, tea.Cmd) {
	t.Helper()
	v, cmd := v.Update(keyPress("enter"))
	if cmd == nil {
		t.Fatal("enter should submit the form")
	}
	return v.Update(cmd())
}

func navigation(t *testing.T, cmd tea.Cmd) NavigateMsg {
	t.Helper()
	if cmd == nil {
		t.Fatal("expected a navigation command")
	}
	nav, ok := cmd().(NavigateMsg)
	if !ok {
		t.Fatalf("got %T, want NavigateMsg", cmd())
	}
	return nav
}

func TestAuthSignupGoesToVerify(t *testing.T) {
	auth := &fakeAuth{message: "User registered. Check your email."}
	v, _ := NewAuthView(AuthSignup, auth, nil, nil).Activate("", "")
	v = fillForm(v, "Ann", "ann@example.com", "secret1")

	_, cmd := submitAuth(t, v)
	nav := navigation(t, cmd)
	if nav.Route != session.RouteVerify {
		t.Errorf("route = %q, want %q", nav.Route, session.RouteVerify)
	}
	if nav.Email != "ann@example.com" || nav.Status != auth.message {
		t.Errorf("navigate = %+v, want email and server message carried over", nav)
	}
	if len(auth.registered) != 1 || auth.registered[0].Name != "Ann" {
		t.Errorf("registered = %+v", auth.registered)
	}
}

func TestAuthFailureShowsServerMessage(t *testing.T) {
	tests := []struct {
		name string
		kind AuthKind
		err  error
		want string
	}{
		{
			name: "server message",
			kind: AuthSignup,
			err:  &model.FetchError{Op: "register", Status: 409, Message: "User already exists"},
			want: "User already exists",
		},
		{
			name: "fallback",
			kind: AuthForgot,
			err:  &model.FetchError{Op: "forgot password", Status: 500},
			want: "Could not send the reset link. Please try again.",
		},
		{
			name: "validation",
			kind: AuthLogin,
			err:  &model.ValidationError{Field: "email", Message: "email is required"},
			want: "email: email is required",
		},
		{
			name: "bad token",
			kind: AuthLogin,
			err:  &model.DecodeError{Err: errors.New("no exp claim")},
			want: "The server returned an unusable session token.",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			v, _ := NewAuthView(tt.kind, &fakeAuth{err: tt.err}, &fakeEstablisher{}, nil).Activate("a@b.c", "")
			v, cmd := submitAuth(t, v)
			if cmd != nil {
				t.Error("a failed request should not navigate")
			}
			if v.errMsg != tt.want {
				t.Errorf("error = %q, want %q", v.errMsg, tt.want)
			}
			if v.busy {
				t.Error("form should accept input again after a failure")
			}
		})
	}
}

func TestAuthAlreadyVerifiedGoesToLogin(t *testing.T) {
	auth := &fakeAuth{err: &model.FetchError{Op: "verify email", Status: 400, Message: alreadyVerified}}
	v, _ := NewAuthView(AuthVerify, auth, nil, nil).Activate("ann@example.com", "")
	v = v.SetSize(80, 24)
	v.form = v.form.SetValue(1, "123456")

	_, cmd := submitAuth(t, v)
	nav := navigation(t, cmd)
	if nav.Route != session.RouteLogin || nav.Email != "ann@example.com" {
		t.Errorf("navigate = %+v, want login with the email", nav)
	}
}

func TestAuthResetPasswordMismatch(t *testing.T) {
	auth := &fakeAuth{message: "Password reset successfully!"}
	v, _ := NewAuthView(AuthReset, auth, nil, nil).Activate("ann@example.com", "")
	v = fillForm(v, "reset-token", "ann@example.com", "newpass1", "newpass2")

	v, cmd := submitAuth(t, v)
	if cmd != nil {
		t.Error("mismatch should not navigate")
	}
	if v.errMsg != "Passwords do not match. Please try again." {
		t.Errorf("error = %q", v.errMsg)
	}

	v = fillForm(v, "reset-token", "ann@example.com", "newpass1", "newpass1")
	_, cmd = submitAuth(t, v)
	if nav := navigation(t, cmd); nav.Route != session.RouteLogin {
		t.Errorf("route = %q, want login", nav.Route)
	}
}

func TestAuthResendCooldown(t *testing.T) {
	clk := &testClock{t: testNow}
	auth := &fakeAuth{}
	v, _ := NewAuthView(AuthVerify, auth, nil, clk.Now).Activate("ann@example.com", "")

	v, cmd := v.Update(keyPress("ctrl+r"))
	if cmd == nil {
		t.Fatal("ctrl+r should resend")
	}
	v, tick := v.Update(cmd())
	if tick == nil {
		t.Error("a successful resend should start the countdown")
	}
	if v.cooldownLeft() != ResendCooldown {
		t.Errorf("cooldown = %s, want %s", v.cooldownLeft(), ResendCooldown)
	}
	if !strings.Contains(v.View(), "Resend in 120s") {
		t.Error("view should show the countdown")
	}

	clk.t = clk.t.Add(30 * time.Second)
	v, cmd = v.Update(keyPress("ctrl+r"))
	if cmd != nil {
		t.Error("resend should be disabled during the cooldown")
	}
	if v.statusMsg != "You can resend in 90s" {
		t.Errorf("status = %q", v.statusMsg)
	}

	clk.t = clk.t.Add(ResendCooldown)
	if _, cmd = v.Update(keyPress("ctrl+r")); cmd == nil {
		t.Error("resend should work again after the cooldown")
	}
	if auth.resends != 1 {
		t.Errorf("resends = %d, want 1", auth.resends)
	}
}

func TestAuthResendNeedsEmail(t *testing.T) {
	v, _ := NewAuthView(AuthVerify, &fakeAuth{}, nil, nil).Activate("", "")
	v, cmd := v.Update(keyPress("ctrl+r"))
	if cmd != nil {
		t.Error("resend without an email should not send")
	}
	if v.errMsg == "" {
		t.Error("expected a prompt for the email")
	}
}

func TestAuthLoginEstablishesSession(t *testing.T) {
	user := &model.User{ID: "u1", Name: "Ann", Email: "ann@example.com"}
	auth := &fakeAuth{login: api.LoginResult{Token: "tok", User: user}}
	est := &fakeEstablisher{}
	v, _ := NewAuthView(AuthLogin, auth, est, nil).Activate("ann@example.com", "")
	if v.Form().Focused() != 1 {
		t.Errorf("focus = %d, want the password field", v.Form().Focused())
	}
	v.form = v.form.SetValue(1, "secret1")

	_, cmd := submitAuth(t, v)
	if est.token != "tok" || est.user != user {
		t.Errorf("established %q %+v", est.token, est.user)
	}
	nav := navigation(t, cmd)
	if nav.Route != session.RouteTasks || nav.Status != "Welcome, Ann" {
		t.Errorf("navigate = %+v", nav)
	}
}

func TestAuthLoginWrongPassword(t *testing.T) {
	auth := &fakeAuth{err: &model.FetchError{Op: "login", Status: 401, Message: "Invalid credentials"}}
	est := &fakeEstablisher{}
	v, _ := NewAuthView(AuthLogin, auth, est, nil).Activate("", "")
	v = fillForm(v, "ann@example.com", "wrong")

	v, cmd := submitAuth(t, v)
	if cmd != nil {
		t.Errorf("wrong password should stay on the form, got %T", cmd())
	}
	if est.token != "" || est.user != nil {
		t.Errorf("session established with %q %+v", est.token, est.user)
	}
	if v.errMsg != "Invalid credentials" {
		t.Errorf("error = %q, want the server message", v.errMsg)
	}
	if v.Kind() != AuthLogin || v.busy {
		t.Errorf("kind = %v, busy = %v; want an idle login form", v.Kind(), v.busy)
	}
	if got := v.Form().Value(0); got != "ann@example.com" {
		t.Errorf("email = %q, want it kept for another try", got)
	}
}

func TestAuthLoginStorageWarning(t *testing.T) {
	auth := &fakeAuth{login: api.LoginResult{Token: "tok", User: &model.User{Name: "Ann"}}}
	est := &fakeEstablisher{err: &session.StorageWarning{Err: errors.New("disk full")}}
	v, _ := NewAuthView(AuthLogin, auth, est, nil).Activate("", "")
	v = fillForm(v, "ann@example.com", "secret1")

	_, cmd := submitAuth(t, v)
	nav := navigation(t, cmd)
	if nav.Route != session.RouteTasks {
		t.Errorf("route = %q, want tasks", nav.Route)
	}
	if !strings.Contains(nav.Status, "disk full") {
		t.Errorf("status = %q, want the storage warning", nav.Status)
	}
}

func TestAuthDropsResultAfterLeaving(t *testing.T) {
	auth := &fakeAuth{message: "sent"}
	v, _ := NewAuthView(AuthForgot, auth, nil, nil).Activate("ann@example.com", "")

	v, cmd := v.Update(keyPress("enter"))
	result := cmd()
	v = v.Deactivate()

	if _, next := v.Update(result); next != nil {
		t.Error("result from an abandoned visit should be ignored")
	}
}

func TestAuthSubmitWhileBusy(t *testing.T) {
	v, _ := NewAuthView(AuthForgot, &fakeAuth{}, nil, nil).Activate("ann@example.com", "")
	v, first := v.Update(keyPress("enter"))
	if first == nil {
		t.Fatal("first enter should submit")
	}
	if _, second := v.Update(keyPress("enter")); second != nil {
		t.Error("second enter should be ignored while busy")
	}
}

func TestAuthShortcuts(t *testing.T) {
	tests := []struct {
		kind AuthKind
		key  string
		want session.Route
	}{
		{AuthLogin, "ctrl+l", session.RouteSignup},
		{AuthLogin, "ctrl+f", session.RouteForgot},
		{AuthSignup, "ctrl+l", session.RouteLogin},
		{AuthReset, "esc", session.RouteHome},
	}

	for _, tt := range tests {
		t.Run(string(tt.kind.Route())+" "+tt.key, func(t *testing.T) {
			v, _ := NewAuthView(tt.kind, &fakeAuth{}, nil, nil).Activate("", "")
			_, cmd := v.Update(keyPress(tt.key))
			if nav := navigation(t, cmd); nav.Route != tt.want {
				t.Errorf("route = %q, want %q", nav.Route, tt.want)
			}
		})
	}
}
