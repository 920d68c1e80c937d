package session

import "github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/role"

// User is the profile record returned by the portal API alongside a token.
type User struct {
	ID        int64     `json:"id"`
	Name      string    `json:"name"`
	Email     string    `json:"email"`
	Role      role.Role `json:"role"`
	CreatedAt string    `json:"created_at,omitempty"`
}

// Session is the authenticated identity held client-side. Token and User are set
// and cleared together.
type Session struct {
	Token string
	User  User
}

// Role returns the capability tag of the session user.
func (s *Session) Role() role.Role {
	if s == nil {
		return ""
	}
	return s.User.Role
}

// State returns the logical store state represented by s. A nil session is
// Anonymous.
func (s *Session) State() State {
	if s == nil {
		return Anonymous
	}
	return Authenticated(s.User.Role)
}

// State is the logical state of a [Store].
type State struct {
	Authenticated bool
	Role          role.Role
}

// Anonymous is the state with no session.
var Anonymous = State{}

// Authenticated returns the state for a session carrying r.
func Authenticated(r role.Role) State {
	return State{Authenticated: true, Role: r}
}

func (s State) String() string {
	if !s.Authenticated {
		return "anonymous"
	}
	return "authenticated(" + string(s.Role) + ")"
}
