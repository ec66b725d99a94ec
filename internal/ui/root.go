package ui

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/dori/taskdeck/internal/app"
	"github.com/dori/taskdeck/internal/session"
	"github.com/dori/taskdeck/internal/ui/theme"
	"github.com/dori/taskdeck/internal/ui/views"
)

// RootModel is the main application model that manages views
type RootModel struct {
	app    *app.App
	keys   KeyMap
	help   help.Model
	width  int
	height int

	route     session.Route
	homeView  views.HomeView
	authViews map[session.Route]views.AuthView
	boardView views.BoardView

	helpVisible bool

	// Status message
	statusMsg string
	errorMsg  string

	events      chan session.Event
	unsubscribe func()
}

// NewRootModel creates a new root model
func NewRootModel(application *app.App) RootModel {
	h := help.New()
	h.ShowAll = false

	if t, ok := theme.ByName(application.Config.Theme); ok {
		theme.SetTheme(t)
	}

	authViews := make(map[session.Route]views.AuthView)
	for _, kind := range []views.AuthKind{views.AuthLogin, views.AuthSignup, views.AuthVerify, views.AuthForgot, views.AuthReset} {
		authViews[kind.Route()] = views.NewAuthView(kind, application.API, application.Session, time.Now)
	}

	// Session changes arrive on watcher and relay goroutines; the channel
	// hands them to the event loop. A full channel drops the event since
	// the next one carries the same state.
	events := make(chan session.Event, 16)
	unsubscribe := application.Session.Subscribe(func(ev session.Event) {
		select {
		case events <- ev:
		default:
		}
	})

	return RootModel{
		app:         application,
		keys:        DefaultKeyMap(),
		help:        h,
		route:       session.RouteHome,
		homeView:    views.NewHomeView(),
		authViews:   authViews,
		boardView:   views.NewBoardView(application.Board, application.Notifier, time.Now),
		events:      events,
		unsubscribe: unsubscribe,
	}
}

// Close stops listening for session changes
func (m RootModel) Close() {
	if m.unsubscribe != nil {
		m.unsubscribe()
	}
}

// Route returns the screen currently shown
func (m RootModel) Route() session.Route { return m.route }

// Init opens the board when a session exists and the home screen otherwise
func (m RootModel) Init() tea.Cmd {
	start := session.RouteHome
	if _, ok := m.app.Session.Current(); ok {
		start = session.RouteTasks
	}
	return tea.Batch(m.waitForSession(), func() tea.Msg {
		return views.NavigateMsg{Route: start}
	})
}

func (m RootModel) waitForSession() tea.Cmd {
	events := m.events
	return func() tea.Msg {
		ev, ok := <-events
		if !ok {
			return nil
		}
		return SessionEventMsg{Event: ev}
	}
}

// Update handles messages
func (m RootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		m.help.Width = msg.Width

		// Reserve space for header (2 lines) and footer (2 lines)
		contentHeight := m.height - 4
		m.homeView = m.homeView.SetSize(m.width, contentHeight)
		m.boardView = m.boardView.SetSize(m.width, contentHeight)
		for r, v := range m.authViews {
			m.authViews[r] = v.SetSize(m.width, contentHeight)
		}
		return m, nil

	case tea.KeyMsg:
		// Clear status/error on any keypress
		m.statusMsg = ""
		m.errorMsg = ""

		isInputMode := m.isInputMode()

		switch {
		case key.Matches(msg, m.keys.Quit):
			// ctrl+c always quits, but 'q' only quits when not in input mode
			if msg.String() == "ctrl+c" || !isInputMode {
				return m, tea.Quit
			}

		case key.Matches(msg, m.keys.ThemeCycle):
			m.cycleTheme()
			return m, nil
		}

		if m.helpVisible {
			if key.Matches(msg, m.keys.Help, m.keys.Back) {
				m.helpVisible = false
				m.help.ShowAll = false
			}
			return m, nil
		}

		if !isInputMode && key.Matches(msg, m.keys.Help) {
			m.helpVisible = true
			m.help.ShowAll = true
			return m, nil
		}

	case views.NavigateMsg:
		return m.navigate(msg.Route, msg.Status, msg.Email)

	case views.LogoutMsg:
		return m.logout()

	case SessionEventMsg:
		next, cmd := m.onSessionEvent(msg.Event)
		return next, tea.Batch(cmd, m.waitForSession())

	case ErrorMsg:
		m.errorMsg = msg.Err.Error()
		return m, nil

	case StatusMsg:
		m.statusMsg = msg.Message
		return m, nil
	}

	return m.delegate(msg)
}

// delegate sends msg to the active screen. Results addressed to a screen
// that is no longer shown are dropped.
func (m RootModel) delegate(msg tea.Msg) (tea.Model, tea.Cmd) {
	var cmd tea.Cmd
	switch m.route {
	case session.RouteHome:
		m.homeView, cmd = m.homeView.Update(msg)
	case session.RouteTasks:
		m.boardView, cmd = m.boardView.Update(msg)
	default:
		if v, ok := m.authViews[m.route]; ok {
			m.authViews[m.route], cmd = v.Update(msg)
		}
	}
	return m, cmd
}

func (m RootModel) isInputMode() bool {
	switch m.route {
	case session.RouteHome:
		return m.homeView.IsInputMode()
	case session.RouteTasks:
		return m.boardView.IsInputMode()
	default:
		if v, ok := m.authViews[m.route]; ok {
			return v.IsInputMode()
		}
	}
	return false
}

// navigate runs the route guard and switches to the screen it allows
func (m RootModel) navigate(target session.Route, status, email string) (RootModel, tea.Cmd) {
	d := m.app.Guard.Check(target)
	if d.Redirected {
		m.app.Logger.Info("navigation redirected", "from", target, "to", d.Route, "reason", d.Reason)
		if status == "" {
			status = redirectMessage(d)
		}
	}

	m = m.leave()
	m.route = d.Route
	m.helpVisible = false
	m.homeView = m.homeView.SetUser(m.currentUser())

	var cmd tea.Cmd
	switch d.Route {
	case session.RouteHome:
		m.homeView = m.homeView.SetStatus(status)
	case session.RouteTasks:
		m.boardView, cmd = m.boardView.Activate()
		m.boardView = m.boardView.SetStatus(status)
	default:
		if v, ok := m.authViews[d.Route]; ok {
			m.authViews[d.Route], cmd = v.Activate(email, status)
		}
	}
	return m, cmd
}

// leave drops pending work of the screen being left
func (m RootModel) leave() RootModel {
	switch m.route {
	case session.RouteTasks:
		m.boardView = m.boardView.Deactivate()
	case session.RouteHome:
		m.homeView = m.homeView.SetStatus("")
	default:
		if v, ok := m.authViews[m.route]; ok {
			m.authViews[m.route] = v.Deactivate()
		}
	}
	return m
}

func redirectMessage(d session.Decision) string {
	switch {
	case d.TornDown:
		return "Your session has ended (" + d.Reason + "). Please log in again."
	case d.Route == session.RouteLogin:
		return "Please log in to see your tasks."
	}
	return ""
}

func (m RootModel) logout() (RootModel, tea.Cmd) {
	if err := m.app.Session.Teardown(app.ReasonLogout); err != nil {
		m.app.Logger.Warn("logout", "err", err)
	}
	return m.navigate(session.RouteLogin, "You have been logged out.", "")
}

func (m RootModel) onSessionEvent(ev session.Event) (RootModel, tea.Cmd) {
	m.homeView = m.homeView.SetUser(m.currentUser())

	switch ev.Kind {
	case session.EventEstablished:
		if ev.External && (m.route == session.RouteHome || m.route == session.RouteLogin) {
			return m.navigate(session.RouteTasks, "Logged in from another window", "")
		}
	case session.EventTornDown:
		if !m.route.Public() {
			status := "Your session has ended. Please log in again."
			if ev.External {
				status = "You were logged out in another window."
			}
			return m.navigate(m.route, status, "")
		}
	}
	return m, nil
}

func (m RootModel) currentUser() (string, bool) {
	s, ok := m.app.Session.Current()
	if !ok {
		return "", false
	}
	if name := s.User.DisplayName(); name != "" {
		return name, true
	}
	return "signed in", true
}

// View renders the UI
func (m RootModel) View() string {
	if m.width == 0 || m.height == 0 {
		return "Loading..."
	}

	var sections []string
	sections = append(sections, m.renderHeader())

	// Reserve: 1 line for header + 3 lines for footer (status + 2 hint lines)
	contentHeight := m.height - 4
	if m.errorMsg != "" || m.statusMsg != "" {
		contentHeight--
	}

	var content string
	if m.helpVisible {
		content = m.renderHelp()
	} else {
		switch m.route {
		case session.RouteHome:
			content = m.homeView.View()
		case session.RouteTasks:
			content = m.boardView.View()
		default:
			if v, ok := m.authViews[m.route]; ok {
				content = v.View()
			}
		}
	}

	// Ensure content fills available space
	contentLines := strings.Count(content, "\n") + 1
	if contentLines < contentHeight {
		content += strings.Repeat("\n", contentHeight-contentLines)
	}
	sections = append(sections, content)
	sections = append(sections, m.renderFooter())

	return strings.Join(sections, "\n")
}

// renderHeader renders the header bar
func (m RootModel) renderHeader() string {
	styles := theme.Current.Styles
	t := theme.Current.Theme

	title := styles.Header.Render("taskdeck")

	viewStyle := lipgloss.NewStyle().
		Foreground(t.Subtle).
		Padding(0, 1)
	routeIndicator := viewStyle.Render(fmt.Sprintf("[%s]", routeTitle(m.route)))

	right := fmt.Sprintf("theme: %s", t.Name)
	if name, ok := m.currentUser(); ok {
		right = name + " • " + right
	}
	rightSide := viewStyle.Render(right)

	leftSide := lipgloss.JoinHorizontal(lipgloss.Center, title, routeIndicator)
	gap := m.width - lipgloss.Width(leftSide) - lipgloss.Width(rightSide)
	if gap < 0 {
		gap = 0
	}
	return leftSide + strings.Repeat(" ", gap) + rightSide
}

// renderFooter renders the footer/status bar
func (m RootModel) renderFooter() string {
	t := theme.Current.Theme

	var lines []string
	if m.errorMsg != "" {
		lines = append(lines, lipgloss.NewStyle().Foreground(t.Error).Render(m.errorMsg))
	} else if m.statusMsg != "" {
		lines = append(lines, lipgloss.NewStyle().Foreground(t.Info).Render(m.statusMsg))
	}

	switch {
	case m.helpVisible:
		lines = append(lines, m.help.ShortHelpView([]key.Binding{m.keys.Back, m.keys.Quit}))
	case m.route == session.RouteTasks && !m.boardView.IsInputMode():
		lines = append(lines, m.help.ShortHelpView(m.keys.BoardHelp()))
	case m.route == session.RouteTasks:
		lines = append(lines, m.help.ShortHelpView([]key.Binding{m.keys.NextField, m.keys.Submit, m.keys.Back}))
	case m.route == session.RouteHome:
		lines = append(lines, m.help.ShortHelpView([]key.Binding{m.keys.Up, m.keys.Down, m.keys.Submit, m.keys.Help, m.keys.Quit}))
	default:
		lines = append(lines, m.help.ShortHelpView(m.keys.FormHelp()))
	}

	return strings.Join(lines, "\n")
}

// renderHelp renders the help overlay
func (m RootModel) renderHelp() string {
	styles := theme.Current.Styles

	var b strings.Builder
	b.WriteString(styles.Title.Render("taskdeck help"))
	b.WriteString("\n")
	b.WriteString(m.help.FullHelpView(m.keys.FullHelp()))
	b.WriteString("\n\n")
	b.WriteString(styles.HelpDesc.Render("Press ? or esc to close"))
	return b.String()
}

// cycleTheme cycles through available themes
func (m *RootModel) cycleTheme() {
	next := theme.Next(theme.Current.Theme.Name)
	theme.SetTheme(next)
	m.statusMsg = fmt.Sprintf("Theme: %s", next.Name)
}
