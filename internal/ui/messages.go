package ui

import (
	"github.com/dori/taskdeck/internal/session"
)

// routeTitle returns the display name for a route
func routeTitle(r session.Route) string {
	switch r {
	case session.RouteHome:
		return "Home"
	case session.RouteSignup:
		return "Sign up"
	case session.RouteLogin:
		return "Log in"
	case session.RouteForgot:
		return "Forgot password"
	case session.RouteReset:
		return "Reset password"
	case session.RouteVerify:
		return "Verify email"
	case session.RouteTasks:
		return "Tasks"
	default:
		return string(r)
	}
}

// Messages for inter-component communication

// SessionEventMsg carries a session change into the event loop
type SessionEventMsg struct {
	Event session.Event
}

// ErrorMsg contains an error to display
type ErrorMsg struct {
	Err error
}

// StatusMsg contains a status message to display
type StatusMsg struct {
	Message string
}
