package route

import (
	"fmt"
	"sort"

	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/role"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/session"
)

// Table maps protected routes to the capability set each accepts. Routes not in
// the table and not public fall back to the root route.
//
// A Table is immutable after construction.
type Table struct {
	routes map[string]role.Set
}

// Entry is one protected route.
type Entry struct {
	Path    string
	Allowed role.Set
}

// NewTable builds a table from entries. Duplicate or public paths are rejected.
func NewTable(entries ...Entry) (*Table, error) {
	t := &Table{routes: make(map[string]role.Set, len(entries))}
	for _, e := range entries {
		p := Clean(e.Path)
		if p == Root || Public(p) {
			return nil, fmt.Errorf("route %q cannot be protected", p)
		}
		if _, dup := t.routes[p]; dup {
			return nil, fmt.Errorf("route %q registered twice", p)
		}
		t.routes[p] = e.Allowed
	}
	return t, nil
}

// DefaultTable returns the portal's role dashboards, each restricted to its
// own role.
func DefaultTable() *Table {
	t, _ := NewTable(
		Entry{Path: PatientDashboard, Allowed: role.Only(role.Patient)},
		Entry{Path: DoctorDashboard, Allowed: role.Only(role.Doctor)},
		Entry{Path: AdminDashboard, Allowed: role.Only(role.Admin)},
	)
	return t
}

// Lookup returns the capability set of a protected path.
func (t *Table) Lookup(path string) (role.Set, bool) {
	if t == nil {
		return role.Set{}, false
	}
	s, ok := t.routes[Clean(path)]
	return s, ok
}

// Paths lists the protected paths in lexical order.
func (t *Table) Paths() []string {
	if t == nil {
		return nil
	}
	out := make([]string, 0, len(t.routes))
	for p := range t.routes {
		out = append(out, p)
	}
	sort.Strings(out)
	return out
}

// Decide authorizes a navigation to path.
//
// Public routes are always allowed. The root route and any unknown route
// redirect to the session's landing route. Protected routes go through [Decide].
func (t *Table) Decide(path string, sess *session.Session) Decision {
	p := Clean(path)
	if Public(p) {
		return Decision{Kind: Allow}
	}
	if allowed, ok := t.Lookup(p); ok {
		return Decide(allowed, sess)
	}

	landing := LandingPath(sess)
	switch landing {
	case Login:
		return Decision{Kind: RedirectLogin, Path: Login}
	case Unauthorized:
		return Decision{Kind: RedirectUnauthorized, Path: Unauthorized}
	}
	return Decision{Kind: RedirectLanding, Path: landing}
}

// Guard runs [Table.Decide] and emits the redirect, if any, through nav.
func (t *Table) Guard(nav Navigator, path string, sess *session.Session) Decision {
	d := t.Decide(path, sess)
	emit(nav, d)
	return d
}
