package portalauth

import (
	"regexp"
	"strings"

	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/role"
)

const (
	minNameLength     = 2
	minPasswordLength = 6
)

var emailPattern = regexp.MustCompile(`\S+@\S+\.\S+`)

// RegisterRequest is the signup form.
type RegisterRequest struct {
	Name     string
	Email    string
	Password string
	// ConfirmPassword is checked against Password when non-empty.
	ConfirmPassword string
	Role            role.Role
}

type registerPayload struct {
	Name     string    `json:"name"`
	Email    string    `json:"email"`
	Password string    `json:"password"`
	Role     role.Role `json:"role"`
}

type loginPayload struct {
	Email    string `json:"email"`
	Password string `json:"password"`
}

func validateEmail(fields map[string]string, email string) {
	switch {
	case email == "":
		fields["email"] = "Email is required"
	case !emailPattern.MatchString(email):
		fields["email"] = "Enter a valid email"
	}
}

func validateLogin(email, password string) error {
	fields := make(map[string]string, 2)
	validateEmail(fields, email)
	if password == "" {
		fields["password"] = "Password is required"
	}
	return fieldErrors(fields)
}

// validateRegister checks req and returns the payload to send.
func validateRegister(req RegisterRequest) (registerPayload, error) {
	fields := make(map[string]string, 5)

	name := strings.TrimSpace(req.Name)
	switch {
	case name == "":
		fields["name"] = "Full name is required"
	case len([]rune(name)) < minNameLength:
		fields["name"] = "Name must be at least 2 characters"
	}

	validateEmail(fields, req.Email)

	switch {
	case req.Password == "":
		fields["password"] = "Password is required"
	case len([]rune(req.Password)) < minPasswordLength:
		fields["password"] = "Minimum 6 characters"
	}

	if req.ConfirmPassword != "" && req.ConfirmPassword != req.Password {
		fields["confirm"] = "Passwords do not match"
	}

	switch {
	case req.Role == "":
		fields["role"] = "Please select a role"
	case !req.Role.Valid():
		fields["role"] = "Unknown role"
	}

	if err := fieldErrors(fields); err != nil {
		return registerPayload{}, err
	}
	return registerPayload{Name: name, Email: req.Email, Password: req.Password, Role: req.Role}, nil
}

func fieldErrors(fields map[string]string) error {
	if len(fields) == 0 {
		return nil
	}
	return &ValidationError{Fields: fields}
}
