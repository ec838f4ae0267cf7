// Package guard decides whether an authenticated-only or admin-only action
// may proceed for the current session.
package guard

// State is the session view the guard needs
type State interface {
	IsAuthenticated() bool
	IsAdmin() bool
}

// Route is the access metadata of an action
type Route struct {
	RequiresAuth  bool
	RequiresAdmin bool
}

// Redirect is the outcome of Decide
type Redirect int

const (
	// RedirectNone lets the action proceed
	RedirectNone Redirect = iota
	// RedirectLogin sends an anonymous caller to log in
	RedirectLogin
	// RedirectHome sends a non-admin caller back to the default view
	RedirectHome
)

func (r Redirect) String() string {
	switch r {
	case RedirectLogin:
		return "login"
	case RedirectHome:
		return "home"
	default:
		return "none"
	}
}

// Decide checks auth before admin, so an anonymous caller on an admin route
// is sent to log in.
func Decide(s State, r Route) Redirect {
	if r.RequiresAuth && !s.IsAuthenticated() {
		return RedirectLogin
	}
	if r.RequiresAdmin && !s.IsAdmin() {
		return RedirectHome
	}
	return RedirectNone
}
