package route

import (
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/role"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/session"
)

// Kind is the outcome of an authorization decision.
type Kind uint8

const (
	Allow Kind = iota
	RedirectLogin
	RedirectUnauthorized
	// RedirectLanding sends the user to the landing route of their session. It is
	// only produced by [Table.Decide] for the root and unknown routes.
	RedirectLanding
)

func (k Kind) String() string {
	switch k {
	case Allow:
		return "allow"
	case RedirectLogin:
		return "redirect_login"
	case RedirectUnauthorized:
		return "redirect_unauthorized"
	case RedirectLanding:
		return "redirect_landing"
	default:
		return "unknown"
	}
}

// Decision is the result of a guard check. Path is empty for [Allow].
type Decision struct {
	Kind Kind
	Path string
}

// Allowed reports whether the protected content may be shown.
func (d Decision) Allowed() bool {
	return d.Kind == Allow
}

// Intent converts a redirect decision into a replacing navigation intent.
func (d Decision) Intent() (Intent, bool) {
	var reason Reason
	switch d.Kind {
	case RedirectLogin:
		reason = ReasonUnauthenticated
	case RedirectUnauthorized:
		reason = ReasonForbidden
	case RedirectLanding:
		reason = ReasonLanding
	default:
		return Intent{}, false
	}
	return Intent{Path: d.Path, Replace: true, Reason: reason}, true
}

// Decide authorizes sess against allowed. It is a pure function.
//
// A nil session is sent to the login view. A restricted set that does not hold
// the session role, including an empty restricted set, is sent to the
// unauthorized view.
func Decide(allowed role.Set, sess *session.Session) Decision {
	if sess == nil {
		return Decision{Kind: RedirectLogin, Path: Login}
	}
	if !allowed.Contains(sess.Role()) {
		return Decision{Kind: RedirectUnauthorized, Path: Unauthorized}
	}
	return Decision{Kind: Allow}
}

// Guard runs [Decide] and emits the redirect, if any, through nav. A nil nav
// only decides.
func Guard(nav Navigator, allowed role.Set, sess *session.Session) Decision {
	d := Decide(allowed, sess)
	emit(nav, d)
	return d
}

func emit(nav Navigator, d Decision) {
	if nav == nil {
		return
	}
	if in, ok := d.Intent(); ok {
		nav.Navigate(in)
	}
}
