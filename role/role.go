package role

import (
	"errors"
	"strings"
)

// ErrUnknownRole is returned by [Parse] for values outside the closed role set.
var ErrUnknownRole = errors.New("unknown role")

// Role is the capability tag carried by a session user.
type Role string

const (
	// Patient is the default self-service role.
	Patient Role = "patient"
	// Doctor is the clinician role.
	Doctor Role = "doctor"
	// Admin is the portal administrator role.
	Admin Role = "admin"
)

var known = [...]Role{Patient, Doctor, Admin}

// All returns the closed role set in declaration order.
func All() []Role {
	out := make([]Role, len(known))
	copy(out, known[:])
	return out
}

// Parse normalizes s and returns the matching role. Values outside the closed set
// return [ErrUnknownRole].
func Parse(s string) (Role, error) {
	r := Role(strings.ToLower(strings.TrimSpace(s)))
	if !r.Valid() {
		return "", ErrUnknownRole
	}
	return r, nil
}

// Valid reports whether r belongs to the closed role set.
func (r Role) Valid() bool {
	_, ok := r.bit()
	return ok
}

func (r Role) String() string {
	return string(r)
}

func (r Role) bit() (int, bool) {
	for i, k := range known {
		if k == r {
			return i, true
		}
	}
	return 0, false
}
