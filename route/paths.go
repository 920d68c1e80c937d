package route

import (
	"strings"

	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/role"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/session"
)

// Client-visible routes.
const (
	Root         = "/"
	Login        = "/login"
	Signup       = "/signup"
	Unauthorized = "/unauthorized"

	PatientDashboard = "/patient/dashboard"
	DoctorDashboard  = "/doctor/dashboard"
	AdminDashboard   = "/admin/dashboard"
)

var rolePaths = map[role.Role]string{
	role.Patient: PatientDashboard,
	role.Doctor:  DoctorDashboard,
	role.Admin:   AdminDashboard,
}

// RolePath returns the landing route of r, or [Unauthorized] for a role outside
// the closed set.
func RolePath(r role.Role) string {
	if p, ok := rolePaths[r]; ok {
		return p
	}
	return Unauthorized
}

// LandingPath returns the default route for the current session: the login view
// when there is none, otherwise the landing route of its role.
func LandingPath(sess *session.Session) string {
	if sess == nil {
		return Login
	}
	return RolePath(sess.Role())
}

// Public reports whether path is reachable without a session.
func Public(path string) bool {
	switch Clean(path) {
	case Login, Signup, Unauthorized:
		return true
	}
	return false
}

// Clean normalizes a client route: query and fragment are dropped, a leading
// slash is ensured and a trailing one removed.
func Clean(path string) string {
	if i := strings.IndexAny(path, "?#"); i >= 0 {
		path = path[:i]
	}
	path = strings.TrimSpace(path)
	if !strings.HasPrefix(path, "/") {
		path = "/" + path
	}
	if len(path) > 1 {
		path = strings.TrimRight(path, "/")
		if path == "" {
			path = Root
		}
	}
	return path
}
