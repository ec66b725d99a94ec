package session

import (
	"time"

	"github.com/charmbracelet/log"

	"github.com/dori/taskdeck/internal/logging"
)

// Route names a screen.
type Route string

const (
	RouteHome   Route = "home"
	RouteSignup Route = "signup"
	RouteLogin  Route = "login"
	RouteForgot Route = "forgot-password"
	RouteReset  Route = "reset-password"
	RouteVerify Route = "email-verification"
	RouteTasks  Route = "tasks"
)

// Public reports whether the route can be shown without a session.
func (r Route) Public() bool {
	switch r {
	case RouteHome, RouteSignup, RouteLogin, RouteForgot, RouteReset, RouteVerify:
		return true
	}
	return false
}

// Decision is the outcome of a navigation check.
type Decision struct {
	// Route to show, either the requested one or a redirect
	Route      Route
	Redirected bool
	// TornDown is set when the check ended the session
	TornDown bool
	Reason   string
}

// Guard re-validates the session on every navigation.
type Guard struct {
	holder *Holder
	now    func() time.Time
	logger *log.Logger
}

// NewGuard creates a guard. A nil now uses time.Now.
func NewGuard(h *Holder, now func() time.Time, logger *log.Logger) *Guard {
	if now == nil {
		now = time.Now
	}
	return &Guard{holder: h, now: now, logger: logging.OrDiscard(logger)}
}

// Check decides where a navigation to target ends up. An undecodable or
// expired token ends the session and lands on home; a missing token on a
// protected route lands on login.
func (g *Guard) Check(target Route) Decision {
	if _, err := g.holder.Sync(); err != nil {
		g.logger.Warn("guard sync", "err", err)
	}

	s, ok := g.holder.Current()
	if ok {
		exp, err := DecodeExpiry(s.Token)
		var reason string
		switch {
		case err != nil:
			reason = "session token is malformed"
		case g.now().After(exp):
			reason = "session expired"
		}
		if reason != "" {
			if err := g.holder.Teardown(reason); err != nil {
				g.logger.Warn("teardown", "err", err)
			}
			return g.redirect(target, RouteHome, reason, true)
		}
		return Decision{Route: target}
	}

	if !target.Public() {
		return g.redirect(target, RouteLogin, "login required", false)
	}
	return Decision{Route: target}
}

func (g *Guard) redirect(from, to Route, reason string, tornDown bool) Decision {
	g.logger.Debug("navigation redirected", "from", from, "to", to, "reason", reason)
	return Decision{Route: to, Redirected: from != to, TornDown: tornDown, Reason: reason}
}
