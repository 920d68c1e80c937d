package portalauth

import (
	"errors"
	"sort"
	"strings"
)

var (
	// ErrValidation marks input rejected locally. The request never reaches the
	// network. The concrete error is a [*ValidationError].
	ErrValidation = errors.New("validation failed")
	// ErrInvalidCredentials marks a 4xx answer to login or registration.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrNetwork marks a request that produced no response.
	ErrNetwork = errors.New("network unreachable")
	// ErrServer marks a 5xx answer or a success answer that could not be decoded.
	ErrServer = errors.New("server error")
	// ErrRequestFailed marks any other non-success answer to a protected call.
	ErrRequestFailed = errors.New("request failed")
	// ErrSessionExpired marks a 401 on a protected call. The session has already
	// been cleared and the login redirect emitted.
	ErrSessionExpired = errors.New("session expired")
	// ErrForbidden marks a 403 on a protected call. The unauthorized redirect has
	// already been emitted; the session is unchanged.
	ErrForbidden = errors.New("forbidden")
	// ErrRequestInFlight is returned when the same action is already running.
	ErrRequestInFlight = errors.New("request already in flight")
	// ErrSessionPersistFailed marks a successful exchange whose session could not
	// be stored. The client stays in its previous state.
	ErrSessionPersistFailed = errors.New("session persist failed")
	// ErrSessionInvalidationFailed marks a logout whose persisted copy could not be
	// removed. The in-memory session is gone regardless.
	ErrSessionInvalidationFailed = errors.New("session invalidation failed")
	// ErrClientNotReady is returned before [Client.Initialize] or after
	// [Client.Close].
	ErrClientNotReady = errors.New("client not initialized")
)

// AuthError describes a failed exchange with the portal API.
type AuthError struct {
	// Kind is one of the sentinel errors of this package.
	Kind error
	// Op is the logical action, e.g. "login" or "GET /profile".
	Op string
	// Status is the HTTP status, zero when no response arrived.
	Status int
	// Message is suitable for display: the server's message when it sent one,
	// otherwise a fallback.
	Message string
	// Err is the underlying cause, if any.
	Err error
}

func (e *AuthError) Error() string {
	var b strings.Builder
	b.WriteString(e.Op)
	b.WriteString(": ")
	if e.Kind != nil {
		b.WriteString(e.Kind.Error())
	}
	if e.Message != "" {
		b.WriteString(": ")
		b.WriteString(e.Message)
	}
	if e.Err != nil {
		b.WriteString(": ")
		b.WriteString(e.Err.Error())
	}
	return b.String()
}

// Unwrap exposes both the kind and the cause to [errors.Is] and [errors.As].
func (e *AuthError) Unwrap() []error {
	out := make([]error, 0, 2)
	if e.Kind != nil {
		out = append(out, e.Kind)
	}
	if e.Err != nil {
		out = append(out, e.Err)
	}
	return out
}

// ValidationError lists field-level problems found before any request is sent.
type ValidationError struct {
	// Fields maps a field name to a user-facing message.
	Fields map[string]string
}

func (e *ValidationError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)

	parts := make([]string, len(names))
	for i, name := range names {
		parts[i] = name + ": " + e.Fields[name]
	}
	return ErrValidation.Error() + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() error {
	return ErrValidation
}
