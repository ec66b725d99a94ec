package views

import (
	"strings"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dori/taskdeck/internal/session"
	"github.com/dori/taskdeck/internal/ui/theme"
)

type menuItem struct {
	label  string
	route  session.Route
	logout bool
}

// HomeView is the landing screen
type HomeView struct {
	width    int
	height   int
	cursor   int
	user     string
	signedIn bool
	status   string
}

// NewHomeView creates the landing screen
func NewHomeView() HomeView {
	return HomeView{}
}

// SetSize sets the view dimensions
func (v HomeView) SetSize(width, height int) HomeView {
	v.width = width
	v.height = height
	return v
}

// SetUser updates who is signed in, if anyone
func (v HomeView) SetUser(name string, signedIn bool) HomeView {
	v.user = name
	v.signedIn = signedIn
	if v.cursor >= len(v.items()) {
		v.cursor = 0
	}
	return v
}

// SetStatus shows a message under the menu
func (v HomeView) SetStatus(msg string) HomeView {
	v.status = msg
	return v
}

func (v HomeView) items() []menuItem {
	if v.signedIn {
		return []menuItem{
			{label: "Task board", route: session.RouteTasks},
			{label: "Log out", logout: true},
		}
	}
	return []menuItem{
		{label: "Log in", route: session.RouteLogin},
		{label: "Sign up", route: session.RouteSignup},
		{label: "Verify email", route: session.RouteVerify},
		{label: "Forgot password", route: session.RouteForgot},
		{label: "Reset password", route: session.RouteReset},
		{label: "Task board", route: session.RouteTasks},
	}
}

// Update handles messages
func (v HomeView) Update(msg tea.Msg) (HomeView, tea.Cmd) {
	keyMsg, ok := msg.(tea.KeyMsg)
	if !ok {
		return v, nil
	}
	items := v.items()
	switch keyMsg.String() {
	case "j", "down":
		if v.cursor < len(items)-1 {
			v.cursor++
		}
	case "k", "up":
		if v.cursor > 0 {
			v.cursor--
		}
	case "enter", " ":
		item := items[v.cursor]
		if item.logout {
			return v, func() tea.Msg { return LogoutMsg{} }
		}
		return v, navigate(item.route, "", "")
	}
	return v, nil
}

// View renders the menu
func (v HomeView) View() string {
	styles := theme.Current.Styles

	var b strings.Builder
	b.WriteString(styles.Title.Render("taskdeck"))
	b.WriteString("\n")
	if v.signedIn {
		b.WriteString(styles.Subtitle.Render("Signed in as " + v.user))
	} else {
		b.WriteString(styles.Subtitle.Render("Plan your day, one column at a time."))
	}
	b.WriteString("\n\n")

	for i, item := range v.items() {
		style := styles.TaskNormal
		prefix := "  "
		if i == v.cursor {
			style = styles.TaskSelected
			prefix = "> "
		}
		b.WriteString(style.Render(prefix + item.label))
		b.WriteString("\n")
	}

	if v.status != "" {
		b.WriteString("\n")
		b.WriteString(styles.InfoText.Render(v.status))
	}

	return styles.Panel.Render(b.String())
}

// IsInputMode returns false; the menu takes single keys only
func (v HomeView) IsInputMode() bool { return false }
