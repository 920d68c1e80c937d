package apitest

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/mail"
	"strings"
	"unicode/utf8"

	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/role"
)

var errEmailTaken = errors.New("email already registered")

const missingField = "Missing data for required field."

type fieldErrors map[string][]string

func (f fieldErrors) add(field, msg string) {
	f[field] = append(f[field], msg)
}

// decodeBody reads a JSON object. It reports false and answers 400 when the
// body is missing, empty or not an object.
func decodeBody(w http.ResponseWriter, r *http.Request) (map[string]any, bool) {
	var body map[string]any
	if err := json.NewDecoder(r.Body).Decode(&body); err != nil || len(body) == 0 {
		writeMessage(w, http.StatusBadRequest, "No JSON body provided")
		return nil, false
	}
	return body, true
}

func stringField(body map[string]any, name string, errs fieldErrors) (string, bool) {
	raw, present := body[name]
	if !present || raw == nil {
		errs.add(name, missingField)
		return "", false
	}
	s, ok := raw.(string)
	if !ok {
		errs.add(name, "Not a valid string.")
		return "", false
	}
	return s, true
}

func validEmail(s string) bool {
	addr, err := mail.ParseAddress(s)
	return err == nil && addr.Address == s && strings.Contains(s[strings.LastIndex(s, "@"):], ".")
}

func writeValidation(w http.ResponseWriter, errs fieldErrors) {
	writeJSON(w, http.StatusUnprocessableEntity, map[string]any{
		"message": "Validation failed",
		"errors":  errs,
	})
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "env": s.env})
}

func (s *Server) handleRegister(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody(w, r)
	if !ok {
		return
	}

	errs := fieldErrors{}
	name, hasName := stringField(body, "name", errs)
	email, hasEmail := stringField(body, "email", errs)
	password, hasPassword := stringField(body, "password", errs)
	roleName, hasRole := stringField(body, "role", errs)

	if hasName {
		if n := utf8.RuneCountInString(name); n < 2 || n > 120 {
			errs.add("name", "Length must be between 2 and 120.")
		}
	}
	if hasEmail && !validEmail(email) {
		errs.add("email", "Not a valid email address.")
	}
	if hasPassword && utf8.RuneCountInString(password) < 6 {
		errs.add("password", "Shorter than minimum length 6.")
	}
	if hasRole && !role.Role(roleName).Valid() {
		errs.add("role", "Role must be patient, doctor, or admin")
	}
	if len(errs) > 0 {
		writeValidation(w, errs)
		return
	}

	hash, err := hashPassword(s.hasher, password)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}

	s.mu.Lock()
	u, err := s.insertLocked(name, email, hash, role.Role(roleName))
	s.mu.Unlock()
	if errors.Is(err, errEmailTaken) {
		writeMessage(w, http.StatusConflict, "Email already registered")
		return
	}

	s.writeSession(w, http.StatusCreated, "Account created successfully", u)
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	body, ok := decodeBody(w, r)
	if !ok {
		return
	}

	errs := fieldErrors{}
	email, hasEmail := stringField(body, "email", errs)
	password, _ := stringField(body, "password", errs)
	if hasEmail && !validEmail(email) {
		errs.add("email", "Not a valid email address.")
	}
	if len(errs) > 0 {
		writeValidation(w, errs)
		return
	}

	s.mu.Lock()
	u, found := s.users[strings.ToLower(strings.TrimSpace(email))]
	s.mu.Unlock()

	if !found {
		writeMessage(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}
	if match, err := verifyPassword(password, u.passwordHash); err != nil || !match {
		writeMessage(w, http.StatusUnauthorized, "Invalid email or password")
		return
	}

	s.writeSession(w, http.StatusOK, "Login successful", u)
}

func (s *Server) writeSession(w http.ResponseWriter, status int, message string, u *User) {
	token, err := s.tokens.Issue(u.ID, u.Name, u.Role)
	if err != nil {
		writeMessage(w, http.StatusInternalServerError, "Internal server error")
		return
	}
	writeJSON(w, status, map[string]any{
		"message": message,
		"token":   token,
		"user":    u.toDict(),
	})
}

func (s *Server) currentUser(r *http.Request) (*User, bool) {
	c := claimsFrom(r.Context())
	if c == nil {
		return nil, false
	}
	id, err := c.UserID()
	if err != nil {
		return nil, false
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	u, ok := s.byID[id]
	return u, ok
}

func (s *Server) handleProfile(w http.ResponseWriter, r *http.Request) {
	u, ok := s.currentUser(r)
	if !ok {
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"user": u.toDict()})
}

func (s *Server) handlePatientDashboard(w http.ResponseWriter, r *http.Request) {
	u, ok := s.currentUser(r)
	if !ok {
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Welcome to your Patient Dashboard, %s!", u.Name),
		"role":    "patient",
		"data": map[string]any{
			"appointments": []map[string]any{
				{"id": 1, "doctor": "Dr. Smith", "date": "2026-03-10", "status": "Confirmed"},
				{"id": 2, "doctor": "Dr. Lee", "date": "2026-03-22", "status": "Pending"},
			},
			"prescriptions": 3,
			"health_score":  87,
		},
	})
}

func (s *Server) handleDoctorDashboard(w http.ResponseWriter, r *http.Request) {
	u, ok := s.currentUser(r)
	if !ok {
		writeMessage(w, http.StatusNotFound, "User not found")
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{
		"message": fmt.Sprintf("Welcome, %s! Here is your Doctor Dashboard.", u.Name),
		"role":    "doctor",
		"data": map[string]any{
			"today_patients":  8,
			"pending_reviews": 4,
			"schedule": []map[string]string{
				{"time": "09:00", "patient": "Alice Brown", "type": "Check-up"},
				{"time": "11:30", "patient": "Bob Carter", "type": "Follow-up"},
				{"time": "14:00", "patient": "Carol Davis", "type": "Consultation"},
			},
		},
	})
}

func (s *Server) handleAdminDashboard(w http.ResponseWriter, _ *http.Request) {
	s.mu.Lock()
	users := s.usersLocked()
	s.mu.Unlock()

	counts := map[role.Role]int{}
	for _, u := range users {
		counts[u.Role]++
	}
	recent := make([]map[string]any, 0, 5)
	for i := 0; i < len(users) && i < 5; i++ {
		recent = append(recent, users[i].toDict())
	}

	writeJSON(w, http.StatusOK, map[string]any{
		"message": "Admin Control Panel",
		"role":    "admin",
		"data": map[string]any{
			"stats": map[string]int{
				"total_users": len(users),
				"patients":    counts[role.Patient],
				"doctors":     counts[role.Doctor],
				"admins":      counts[role.Admin],
			},
			"recent_users": recent,
		},
	})
}
