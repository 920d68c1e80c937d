package role

import "strings"

// Set is a capability set: the roles a protected route accepts.
//
// The zero value is unrestricted. Set values are immutable and safe to share.
type Set struct {
	mask       uint8
	restricted bool
}

// Any returns the unrestricted set, admitting every authenticated role.
func Any() Set {
	return Set{}
}

// Only returns a restricted set holding exactly the given roles. Roles outside
// the closed set are ignored, so Only() and Only("nurse") admit nobody.
func Only(roles ...Role) Set {
	s := Set{restricted: true}
	for _, r := range roles {
		if bit, ok := r.bit(); ok {
			s.mask |= 1 << bit
		}
	}
	return s
}

// Restricted reports whether s limits access to specific roles.
func (s Set) Restricted() bool {
	return s.restricted
}

// Contains reports whether r is admitted by s. An unrestricted set admits any
// role, including roles outside the closed set.
func (s Set) Contains(r Role) bool {
	if !s.restricted {
		return true
	}
	bit, ok := r.bit()
	if !ok {
		return false
	}
	return s.mask&(1<<bit) != 0
}

// Roles lists the members of a restricted set. It returns nil for an
// unrestricted set.
func (s Set) Roles() []Role {
	if !s.restricted {
		return nil
	}
	out := make([]Role, 0, len(known))
	for i, r := range known {
		if s.mask&(1<<i) != 0 {
			out = append(out, r)
		}
	}
	return out
}

func (s Set) String() string {
	if !s.restricted {
		return "*"
	}
	roles := s.Roles()
	parts := make([]string, len(roles))
	for i, r := range roles {
		parts[i] = string(r)
	}
	return "{" + strings.Join(parts, ",") + "}"
}
