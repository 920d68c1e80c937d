package portalauth

import (
	"context"
	"errors"
	"strings"
	"testing"
)

func TestAuthErrorMatchesKindAndCause(t *testing.T) {
	err := error(&AuthError{Kind: ErrNetwork, Op: "login", Message: loginFallback, Err: context.Canceled})

	if !errors.Is(err, ErrNetwork) || !errors.Is(err, context.Canceled) {
		t.Fatalf("expected kind and cause in chain: %v", err)
	}
	if errors.Is(err, ErrServer) {
		t.Fatal("unexpected kind match")
	}
	msg := err.Error()
	if !strings.HasPrefix(msg, "login: network unreachable") || !strings.Contains(msg, loginFallback) {
		t.Fatalf("unexpected message %q", msg)
	}
}

func TestValidationErrorIsSortedAndMatches(t *testing.T) {
	err := error(&ValidationError{Fields: map[string]string{
		"password": "Password is required",
		"email":    "Email is required",
	}})

	if !errors.Is(err, ErrValidation) {
		t.Fatal("expected ErrValidation in chain")
	}
	want := "validation failed: email: Email is required; password: Password is required"
	if err.Error() != want {
		t.Fatalf("got %q want %q", err.Error(), want)
	}
}
