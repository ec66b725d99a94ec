package views

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dori/taskdeck/internal/api"
	"github.com/dori/taskdeck/internal/model"
	"github.com/dori/taskdeck/internal/session"
	"github.com/dori/taskdeck/internal/ui/theme"
)

// ResendCooldown is how long the resend control stays disabled after a resend
const ResendCooldown = 120 * time.Second

// The server's answer to verifying an address twice; it sends the user on to login
const alreadyVerified = "Your email already verified."

// AuthKind selects which account flow an AuthView runs
type AuthKind int

const (
	AuthLogin AuthKind = iota
	AuthSignup
	AuthVerify
	AuthForgot
	AuthReset
)

// Route returns the route the flow is shown on
func (k AuthKind) Route() session.Route {
	switch k {
	case AuthSignup:
		return session.RouteSignup
	case AuthVerify:
		return session.RouteVerify
	case AuthForgot:
		return session.RouteForgot
	case AuthReset:
		return session.RouteReset
	default:
		return session.RouteLogin
	}
}

func (k AuthKind) title() string {
	switch k {
	case AuthSignup:
		return "Create an account"
	case AuthVerify:
		return "Verify your email"
	case AuthForgot:
		return "Forgot password"
	case AuthReset:
		return "Reset password"
	default:
		return "Log in"
	}
}

func (k AuthKind) fields() []FieldSpec {
	email := FieldSpec{Label: "Email", Placeholder: "you@example.com"}
	switch k {
	case AuthSignup:
		return []FieldSpec{
			{Label: "Name", Placeholder: "Your name"},
			email,
			{Label: "Password", Password: true},
		}
	case AuthVerify:
		return []FieldSpec{email, {Label: "Verification code", Placeholder: "from the email"}}
	case AuthForgot:
		return []FieldSpec{email}
	case AuthReset:
		return []FieldSpec{
			{Label: "Reset token", Placeholder: "from the reset email"},
			email,
			{Label: "New password", Password: true},
			{Label: "Confirm password", Password: true},
		}
	default:
		return []FieldSpec{email, {Label: "Password", Password: true}}
	}
}

// emailField returns the index of the email field
func (k AuthKind) emailField() int {
	switch k {
	case AuthSignup, AuthReset:
		return 1
	default:
		return 0
	}
}

// fallback is shown when a failed request carries no server message
func (k AuthKind) fallback() string {
	switch k {
	case AuthSignup:
		return "Registration failed. Please try again."
	case AuthVerify:
		return "Email verification failed. Please try again."
	case AuthForgot:
		return "Could not send the reset link. Please try again."
	case AuthReset:
		return "Password reset failed. Please try again."
	default:
		return "Login failed. Please try again."
	}
}

type authResultMsg struct {
	gen     int
	resend  bool
	message string
	email   string
	user    *model.User
	warning error
	err     error
}

type cooldownTickMsg struct{ gen int }

// AuthView runs one of the account flows: login, signup, email
// verification, forgot password and reset password
type AuthView struct {
	kind    AuthKind
	auth    AuthService
	session SessionEstablisher
	now     func() time.Time
	width   int
	height  int
	gen     int

	form      Form
	busy      bool
	resending bool

	cooldownUntil time.Time

	statusMsg string
	errMsg    string
}

// NewAuthView creates the screen for one account flow
func NewAuthView(kind AuthKind, auth AuthService, establisher SessionEstablisher, now func() time.Time) AuthView {
	if now == nil {
		now = time.Now
	}
	return AuthView{
		kind:    kind,
		auth:    auth,
		session: establisher,
		now:     now,
		form:    NewForm(kind.fields()...),
	}
}

// Kind returns the flow this view runs
func (v AuthView) Kind() AuthKind { return v.kind }

// Activate starts a fresh visit with an empty form. email prefills the
// email field and status is shown above the form.
func (v AuthView) Activate(email, status string) (AuthView, tea.Cmd) {
	v.gen++
	v.busy = false
	v.resending = false
	v.errMsg = ""
	v.statusMsg = status
	v.form = v.form.Reset()
	if email != "" {
		v.form = v.form.SetValue(v.kind.emailField(), email)
		if v.kind.emailField() == 0 && v.form.Len() > 1 {
			v.form = v.form.FocusField(1)
		}
	}
	return v, v.tick()
}

// Deactivate drops results still on their way
func (v AuthView) Deactivate() AuthView {
	v.gen++
	v.busy = false
	v.resending = false
	return v
}

// SetSize sets the view dimensions
func (v AuthView) SetSize(width, height int) AuthView {
	v.width = width
	v.height = height
	return v
}

// Form returns the current form
func (v AuthView) Form() Form { return v.form }

// Update handles messages
func (v AuthView) Update(msg tea.Msg) (AuthView, tea.Cmd) {
	switch msg := msg.(type) {
	case authResultMsg:
		if msg.gen != v.gen {
			return v, nil
		}
		return v.finish(msg)

	case cooldownTickMsg:
		if msg.gen != v.gen {
			return v, nil
		}
		return v, v.tick()

	case tea.KeyMsg:
		switch msg.String() {
		case "enter":
			return v.submit()
		case "esc":
			return v, navigate(session.RouteHome, "", "")
		case "ctrl+r":
			if v.kind == AuthVerify {
				return v.resend()
			}
			return v, nil
		case "ctrl+l":
			switch v.kind {
			case AuthLogin:
				return v, navigate(session.RouteSignup, "", v.email())
			default:
				return v, navigate(session.RouteLogin, "", v.email())
			}
		case "ctrl+f":
			if v.kind == AuthLogin {
				return v, navigate(session.RouteForgot, "", v.email())
			}
			return v, nil
		}
	}

	var cmd tea.Cmd
	v.form, cmd = v.form.Update(msg)
	return v, cmd
}

func (v AuthView) email() string {
	return strings.TrimSpace(v.form.Value(v.kind.emailField()))
}

func (v AuthView) submit() (AuthView, tea.Cmd) {
	if v.busy {
		return v, nil
	}
	v.busy = true
	v.errMsg = ""

	auth, est, gen, kind := v.auth, v.session, v.gen, v.kind
	values := make([]string, v.form.Len())
	for i := range values {
		values[i] = v.form.Value(i)
	}
	email := v.email()

	return v, func() tea.Msg {
		ctx := context.Background()
		res := authResultMsg{gen: gen, email: email}
		switch kind {
		case AuthLogin:
			lr, err := auth.Login(ctx, values[0], values[1])
			if err != nil {
				res.err = err
				break
			}
			if err := est.Establish(lr.Token, lr.User); err != nil {
				if !session.IsStorageWarning(err) {
					res.err = err
					break
				}
				res.warning = err
			}
			res.user = lr.User
		case AuthSignup:
			res.message, res.err = auth.Register(ctx, api.Registration{Name: values[0], Email: values[1], Password: values[2]})
		case AuthVerify:
			res.message, res.err = auth.VerifyEmail(ctx, values[0], values[1])
		case AuthForgot:
			res.message, res.err = auth.ForgotPassword(ctx, values[0])
		case AuthReset:
			res.message, res.err = auth.ResetPassword(ctx, values[0], values[1], values[2], values[3])
		}
		return res
	}
}

func (v AuthView) resend() (AuthView, tea.Cmd) {
	if v.resending {
		return v, nil
	}
	if left := v.cooldownLeft(); left > 0 {
		v.statusMsg = fmt.Sprintf("You can resend in %ds", int(left.Seconds()+0.5))
		return v, nil
	}
	email := v.email()
	if email == "" {
		v.errMsg = "Enter your email address first"
		return v, nil
	}
	v.resending = true
	v.errMsg = ""

	auth, gen := v.auth, v.gen
	return v, func() tea.Msg {
		msg, err := auth.ResendVerification(context.Background(), email)
		return authResultMsg{gen: gen, resend: true, message: msg, email: email, err: err}
	}
}

func (v AuthView) finish(msg authResultMsg) (AuthView, tea.Cmd) {
	if msg.resend {
		v.resending = false
		if msg.err != nil {
			return v.failed(msg)
		}
		v.statusMsg = msg.message
		v.cooldownUntil = v.now().Add(ResendCooldown)
		return v, v.tick()
	}

	v.busy = false
	if msg.err != nil {
		return v.failed(msg)
	}

	switch v.kind {
	case AuthLogin:
		status := "Logged in"
		if name := msg.user.DisplayName(); name != "" {
			status = "Welcome, " + name
		}
		if msg.warning != nil {
			status = "Logged in, but the session could not be saved: " + msg.warning.Error()
		}
		return v, navigate(session.RouteTasks, status, "")
	case AuthSignup:
		return v, navigate(session.RouteVerify, msg.message, msg.email)
	case AuthForgot:
		return v, navigate(session.RouteReset, msg.message, msg.email)
	default:
		return v, navigate(session.RouteLogin, msg.message, msg.email)
	}
}

func (v AuthView) failed(msg authResultMsg) (AuthView, tea.Cmd) {
	text := errorText(msg.err, v.kind.fallback())
	if v.kind == AuthVerify && !msg.resend && text == alreadyVerified {
		return v, navigate(session.RouteLogin, text, msg.email)
	}
	v.errMsg = text
	return v, nil
}

// errorText returns what the user sees for err: the server's message when
// there is one, otherwise fallback
func errorText(err error, fallback string) string {
	var ve *model.ValidationError
	var fe *model.FetchError
	var de *model.DecodeError
	switch {
	case errors.As(err, &ve):
		if ve.Field == "" || strings.HasSuffix(ve.Message, ".") {
			return ve.Message
		}
		return ve.Error()
	case errors.As(err, &fe):
		if fe.Message != "" {
			return fe.Message
		}
		if fe.Err != nil {
			return fmt.Sprintf("%s (%v)", fallback, fe.Err)
		}
		return fallback
	case errors.As(err, &de):
		return "The server returned an unusable session token."
	case err != nil:
		return err.Error()
	}
	return fallback
}

func (v AuthView) cooldownLeft() time.Duration {
	if v.cooldownUntil.IsZero() {
		return 0
	}
	return v.cooldownUntil.Sub(v.now())
}

// tick keeps the cooldown countdown moving while it runs
func (v AuthView) tick() tea.Cmd {
	if v.kind != AuthVerify || v.cooldownLeft() <= 0 {
		return nil
	}
	gen := v.gen
	return tea.Tick(time.Second, func(time.Time) tea.Msg {
		return cooldownTickMsg{gen: gen}
	})
}

// View renders the form
func (v AuthView) View() string {
	styles := theme.Current.Styles

	width := v.width - 10
	if width > 60 {
		width = 60
	}

	var b strings.Builder
	b.WriteString(styles.Title.Render(v.kind.title()))
	b.WriteString("\n")
	if v.statusMsg != "" {
		b.WriteString(styles.SuccessText.Render(v.statusMsg))
		b.WriteString("\n\n")
	}
	b.WriteString(v.form.View(width))
	b.WriteString("\n\n")

	label := "[ " + v.kind.title() + " ]"
	if v.busy {
		b.WriteString(styles.Button.Render("[ Please wait... ]"))
	} else {
		b.WriteString(styles.ButtonActive.Render(label))
	}

	if v.kind == AuthVerify {
		b.WriteString("  ")
		switch left := v.cooldownLeft(); {
		case v.resending:
			b.WriteString(styles.Button.Render("[ Sending... ]"))
		case left > 0:
			b.WriteString(styles.Button.Render(fmt.Sprintf("[ Resend in %ds ]", int(left.Seconds()+0.5))))
		default:
			b.WriteString(styles.Button.Render("[ ctrl+r Resend ]"))
		}
	}

	if v.errMsg != "" {
		b.WriteString("\n\n")
		b.WriteString(styles.ErrorText.Render(v.errMsg))
	}

	b.WriteString("\n\n")
	b.WriteString(styles.HelpDesc.Render(v.hints()))

	return styles.Panel.Render(b.String())
}

func (v AuthView) hints() string {
	switch v.kind {
	case AuthLogin:
		return "tab: next field • enter: log in • ctrl+l: sign up • ctrl+f: forgot password • esc: home"
	case AuthVerify:
		return "tab: next field • enter: verify • ctrl+r: resend • ctrl+l: log in • esc: home"
	default:
		return "tab: next field • enter: submit • ctrl+l: log in • esc: home"
	}
}

// IsInputMode is always true; every key may be typed into the form
func (v AuthView) IsInputMode() bool { return true }
