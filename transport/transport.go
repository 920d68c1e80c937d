package transport

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/route"
)

// RequestIDHeader is set on every outbound request.
const RequestIDHeader = "X-Request-ID"

// DefaultPublicPaths are the API paths sent without credentials and never
// intercepted, relative to the API base path.
var DefaultPublicPaths = []string{"/login", "/register", "/health"}

var (
	ErrMissingTokenSource = errors.New("transport: token source is required")
	ErrMissingInvalidator = errors.New("transport: invalidator is required")
	ErrMissingNavigator   = errors.New("transport: navigator is required")
	ErrMissingLocation    = errors.New("transport: location is required")
)

// TokenSource returns the current bearer token.
type TokenSource interface {
	Token() (string, bool)
}

// Invalidator drops the current session if it still holds token, the bearer
// the rejected request was sent with ("" when none was attached). It reports
// whether a session was dropped.
type Invalidator interface {
	Invalidate(ctx context.Context, token string) (bool, error)
}

// InvalidatorFunc adapts a function to [Invalidator].
type InvalidatorFunc func(ctx context.Context, token string) (bool, error)

func (f InvalidatorFunc) Invalidate(ctx context.Context, token string) (bool, error) {
	return f(ctx, token)
}

// Interception describes a 401 or 403 the transport acted on.
type Interception struct {
	Status    int
	Method    string
	Path      string
	RequestID string
	// Invalidated is true when a 401 dropped a live session.
	Invalidated bool
	// Redirected is true when a navigation intent was emitted.
	Redirected bool
	// Stale is true when a 401 answered a request sent with a token other
	// than the current one. Nothing is dropped and no redirect is emitted.
	Stale bool
	Err        error
}

// Completion describes a finished round trip.
type Completion struct {
	Method    string
	Path      string
	Status    int
	Duration  time.Duration
	RequestID string
	Err       error
}

// Hooks observe transport activity. Nil hooks are skipped.
type Hooks struct {
	Intercepted func(context.Context, Interception)
	Completed   func(context.Context, Completion)
}

// Config wires a [Transport].
type Config struct {
	// Base performs the actual round trip. Defaults to http.DefaultTransport.
	Base        http.RoundTripper
	Tokens      TokenSource
	Invalidator Invalidator
	Navigator   route.Navigator
	Location    route.Location
	// BasePath is the path prefix of the API, e.g. "/api". Public path matching
	// is done on the remainder.
	BasePath string
	// PublicPaths replaces DefaultPublicPaths when non-nil.
	PublicPaths []string
	Logger      *slog.Logger
	Hooks       Hooks
}

// Transport is the authenticated round tripper. It is safe for concurrent use.
type Transport struct {
	base        http.RoundTripper
	tokens      TokenSource
	invalidator Invalidator
	navigator   route.Navigator
	location    route.Location
	basePath    string
	public      map[string]struct{}
	logger      *slog.Logger
	hooks       Hooks
}

// New validates cfg and returns a Transport.
func New(cfg Config) (*Transport, error) {
	switch {
	case cfg.Tokens == nil:
		return nil, ErrMissingTokenSource
	case cfg.Invalidator == nil:
		return nil, ErrMissingInvalidator
	case cfg.Navigator == nil:
		return nil, ErrMissingNavigator
	case cfg.Location == nil:
		return nil, ErrMissingLocation
	}

	base := cfg.Base
	if base == nil {
		base = http.DefaultTransport
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	paths := cfg.PublicPaths
	if paths == nil {
		paths = DefaultPublicPaths
	}
	public := make(map[string]struct{}, len(paths))
	for _, p := range paths {
		public[route.Clean(p)] = struct{}{}
	}

	return &Transport{
		base:        base,
		tokens:      cfg.Tokens,
		invalidator: cfg.Invalidator,
		navigator:   cfg.Navigator,
		location:    cfg.Location,
		basePath:    strings.TrimRight(cfg.BasePath, "/"),
		public:      public,
		logger:      logger,
		hooks:       cfg.Hooks,
	}, nil
}

// Public reports whether an absolute URL path is on the public surface.
func (t *Transport) Public(urlPath string) bool {
	_, ok := t.public[t.apiPath(urlPath)]
	return ok
}

func (t *Transport) apiPath(urlPath string) string {
	p := route.Clean(urlPath)
	if t.basePath != "" {
		if rest, ok := strings.CutPrefix(p, t.basePath); ok && (rest == "" || rest[0] == '/') {
			p = route.Clean(rest)
		}
	}
	return p
}

// RoundTrip implements [http.RoundTripper]. The caller's request is never
// modified.
func (t *Transport) RoundTrip(req *http.Request) (*http.Response, error) {
	ctx := req.Context()
	path := t.apiPath(req.URL.Path)
	_, public := t.public[path]

	out := req.Clone(ctx)
	requestID := out.Header.Get(RequestIDHeader)
	if requestID == "" {
		requestID = uuid.NewString()
		out.Header.Set(RequestIDHeader, requestID)
	}
	var sent string
	if !public {
		if token, ok := t.tokens.Token(); ok {
			sent = token
		}
	}
	if sent != "" {
		out.Header.Set("Authorization", "Bearer "+sent)
	} else {
		out.Header.Del("Authorization")
	}

	start := time.Now()
	resp, err := t.base.RoundTrip(out)

	done := Completion{Method: req.Method, Path: path, Duration: time.Since(start), RequestID: requestID, Err: err}
	if resp != nil {
		done.Status = resp.StatusCode
	}
	t.logger.Debug("api request",
		"method", req.Method,
		"path", path,
		"status", done.Status,
		"request_id", requestID,
		"duration_ms", done.Duration.Milliseconds(),
	)
	if t.hooks.Completed != nil {
		t.hooks.Completed(ctx, done)
	}

	if err != nil || public {
		return resp, err
	}

	switch resp.StatusCode {
	case http.StatusUnauthorized:
		t.handleUnauthorized(ctx, req.Method, path, requestID, sent)
	case http.StatusForbidden:
		t.handleForbidden(ctx, req.Method, path, requestID)
	}
	return resp, nil
}

func (t *Transport) handleUnauthorized(ctx context.Context, method, path, requestID, sent string) {
	ic := Interception{Status: http.StatusUnauthorized, Method: method, Path: path, RequestID: requestID}

	// A cancelled request must not leave a rejected session behind.
	dropped, err := t.invalidator.Invalidate(context.WithoutCancel(ctx), sent)
	ic.Invalidated = dropped
	if err != nil {
		ic.Err = err
		t.logger.Warn("session invalidation failed", "path", path, "request_id", requestID, "error", err)
	}
	if !dropped {
		if current, ok := t.tokens.Token(); ok && current != "" && current != sent {
			ic.Stale = true
		}
	}

	if ic.Stale {
		t.logger.Info("ignoring 401 for a replaced session", "path", path, "request_id", requestID)
	} else {
		if current := route.Clean(t.location.CurrentPath()); current != route.Login {
			t.navigator.Navigate(route.Intent{Path: route.Login, Replace: true, Reason: route.ReasonSessionExpired})
			ic.Redirected = true
		}
		t.logger.Info("session rejected by api", "path", path, "request_id", requestID, "invalidated", dropped, "redirected", ic.Redirected)
	}

	if t.hooks.Intercepted != nil {
		t.hooks.Intercepted(ctx, ic)
	}
}

func (t *Transport) handleForbidden(ctx context.Context, method, path, requestID string) {
	t.navigator.Navigate(route.Intent{Path: route.Unauthorized, Replace: true, Reason: route.ReasonForbidden})
	t.logger.Info("access forbidden by api", "path", path, "request_id", requestID)

	if t.hooks.Intercepted != nil {
		t.hooks.Intercepted(ctx, Interception{
			Status:     http.StatusForbidden,
			Method:     method,
			Path:       path,
			RequestID:  requestID,
			Redirected: true,
		})
	}
}
