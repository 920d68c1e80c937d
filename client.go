package portalauth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"

	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/internal/audit"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/internal/inflight"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/internal/logging"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/role"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/route"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/session"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/transport"
)

// Version is attached to log records. Release builds set it with -ldflags.
var Version = "dev"

const (
	loginFallback    = "Login failed. Please try again."
	registerFallback = "Registration failed. Please try again."

	maxBodyBytes = 1 << 20
)

const (
	stateNew = iota
	stateReady
	stateClosed
)

// Client is the portal session layer: it owns the session store, the
// authenticated HTTP client and the route table. Create one with [New] and
// [Builder.Build]. All methods are safe for concurrent use.
type Client struct {
	config    Config
	store     *session.Store
	transport *transport.Transport
	http      *http.Client
	apiBase   *url.URL
	routes    *route.Table
	navigator route.Navigator
	location  route.Location
	metrics   *Metrics
	audit     *audit.Dispatcher
	logger    *logging.Logger
	inflight  inflight.Group

	// initMu serializes Initialize; mu is never held while observers run.
	initMu sync.Mutex
	mu     sync.Mutex
	state  int
}

// DashboardResponse is the payload of the role dashboards.
type DashboardResponse struct {
	Message string          `json:"message"`
	Role    role.Role       `json:"role"`
	Data    json.RawMessage `json:"data"`
}

type authResponse struct {
	Message string       `json:"message"`
	Token   string       `json:"token"`
	User    session.User `json:"user"`
}

type messageBody struct {
	Message string `json:"message"`
}

// Initialize restores the persisted session and marks the client ready. It
// never fails: missing, partial, corrupt or expired data yields Anonymous.
// Later calls return the current state without reading persistence again.
func (c *Client) Initialize(ctx context.Context) session.State {
	c.initMu.Lock()
	defer c.initMu.Unlock()

	c.mu.Lock()
	st := c.state
	c.mu.Unlock()
	switch st {
	case stateReady:
		return c.store.State()
	case stateClosed:
		return session.Anonymous
	}

	state := c.store.Restore(ctx)
	c.mu.Lock()
	if c.state == stateNew {
		c.state = stateReady
	}
	c.mu.Unlock()

	if sess, ok := c.store.Current(); state.Authenticated && ok {
		c.metrics.Inc(MetricSessionRestored)
		c.emitAudit(ctx, userEvent(AuditSessionRestored, sess.User, true), nil)
		c.logger.Info("session restored", "user_id", sess.User.ID, "role", sess.User.Role)
	} else {
		c.logger.Debug("starting anonymous")
	}
	return state
}

func (c *Client) ready() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != stateReady {
		return ErrClientNotReady
	}
	return nil
}

// Login validates the form, exchanges the credentials for a session and makes
// it current, replacing any existing session. On any failure the session is
// unchanged.
func (c *Client) Login(ctx context.Context, email, password string) (session.User, error) {
	if err := c.ready(); err != nil {
		return session.User{}, err
	}
	if err := validateLogin(email, password); err != nil {
		c.metrics.Inc(MetricValidationFailure)
		return session.User{}, err
	}

	release, ok := c.inflight.TryAcquire("login")
	if !ok {
		c.metrics.Inc(MetricRequestInFlight)
		return session.User{}, &AuthError{Kind: ErrRequestInFlight, Op: "login"}
	}
	defer release()

	user, err := c.authenticate(ctx, "login", "/login", loginPayload{Email: email, Password: password}, loginFallback)
	if err != nil {
		c.metrics.Inc(MetricLoginFailure)
		ev := AuditEvent{EventType: AuditLoginFailure, Metadata: map[string]string{"email": email}}
		var ae *AuthError
		if errors.As(err, &ae) {
			ev.Status = ae.Status
		}
		c.emitAudit(ctx, ev, err)
		c.logger.Info("login failed", "error", err)
		return session.User{}, err
	}

	c.metrics.Inc(MetricLoginSuccess)
	c.emitAudit(ctx, userEvent(AuditLoginSuccess, user, true), nil)
	c.logger.Info("login succeeded", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// Register validates the signup form, creates the account and makes the new
// session current. The contract matches [Client.Login].
func (c *Client) Register(ctx context.Context, req RegisterRequest) (session.User, error) {
	if err := c.ready(); err != nil {
		return session.User{}, err
	}
	payload, err := validateRegister(req)
	if err != nil {
		c.metrics.Inc(MetricValidationFailure)
		return session.User{}, err
	}

	release, ok := c.inflight.TryAcquire("register")
	if !ok {
		c.metrics.Inc(MetricRequestInFlight)
		return session.User{}, &AuthError{Kind: ErrRequestInFlight, Op: "register"}
	}
	defer release()

	user, err := c.authenticate(ctx, "register", "/register", payload, registerFallback)
	if err != nil {
		c.metrics.Inc(MetricRegisterFailure)
		ev := AuditEvent{EventType: AuditRegisterFailure, Metadata: map[string]string{"email": payload.Email, "role": string(payload.Role)}}
		var ae *AuthError
		if errors.As(err, &ae) {
			ev.Status = ae.Status
		}
		c.emitAudit(ctx, ev, err)
		c.logger.Info("registration failed", "error", err)
		return session.User{}, err
	}

	c.metrics.Inc(MetricRegisterSuccess)
	c.emitAudit(ctx, userEvent(AuditRegisterSuccess, user, true), nil)
	c.logger.Info("registration succeeded", "user_id", user.ID, "role", user.Role)
	return user, nil
}

// authenticate posts payload to a public credential endpoint and establishes
// the returned session.
func (c *Client) authenticate(ctx context.Context, op, path string, payload any, fallback string) (session.User, error) {
	body, err := json.Marshal(payload)
	if err != nil {
		return session.User{}, &AuthError{Kind: ErrRequestFailed, Op: op, Err: err}
	}

	req, err := c.newRequest(ctx, http.MethodPost, path, bytes.NewReader(body))
	if err != nil {
		return session.User{}, &AuthError{Kind: ErrNetwork, Op: op, Message: fallback, Err: err}
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return session.User{}, &AuthError{Kind: ErrNetwork, Op: op, Message: fallback, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return session.User{}, &AuthError{Kind: ErrNetwork, Op: op, Status: resp.StatusCode, Message: fallback, Err: err}
	}

	switch {
	case resp.StatusCode >= http.StatusInternalServerError:
		return session.User{}, &AuthError{Kind: ErrServer, Op: op, Status: resp.StatusCode, Message: serverMessage(raw, fallback)}
	case resp.StatusCode >= http.StatusBadRequest:
		return session.User{}, &AuthError{Kind: ErrInvalidCredentials, Op: op, Status: resp.StatusCode, Message: serverMessage(raw, fallback)}
	case resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices:
		return session.User{}, &AuthError{Kind: ErrServer, Op: op, Status: resp.StatusCode, Message: fallback}
	}

	var out authResponse
	if err := json.Unmarshal(raw, &out); err != nil {
		return session.User{}, &AuthError{Kind: ErrServer, Op: op, Status: resp.StatusCode, Message: fallback, Err: err}
	}
	if out.Token == "" || out.User.ID == 0 {
		return session.User{}, &AuthError{Kind: ErrServer, Op: op, Status: resp.StatusCode, Message: fallback, Err: errors.New("response is missing token or user")}
	}

	// A caller that gave up must not end up signed in.
	if err := ctx.Err(); err != nil {
		return session.User{}, &AuthError{Kind: ErrNetwork, Op: op, Message: fallback, Err: err}
	}

	if err := c.store.Establish(ctx, session.Session{Token: out.Token, User: out.User}); err != nil {
		c.logger.Warn("session could not be stored", "op", op, "user_id", out.User.ID, "error", err)
		return session.User{}, &AuthError{Kind: ErrSessionPersistFailed, Op: op, Status: resp.StatusCode, Err: err}
	}
	c.metrics.Inc(MetricSessionCreated)
	return out.User, nil
}

// Logout drops the session from memory and persistence. It is idempotent and
// always leaves the client Anonymous. A persistence failure is reported
// wrapped in [ErrSessionInvalidationFailed].
func (c *Client) Logout(ctx context.Context) error {
	c.mu.Lock()
	closed := c.state == stateClosed
	c.mu.Unlock()
	if closed {
		return ErrClientNotReady
	}

	prev, _ := c.store.Current()
	dropped, err := c.store.Clear(ctx, session.ReasonLogout)
	c.metrics.Inc(MetricLogout)
	if err != nil {
		err = fmt.Errorf("%w: %v", ErrSessionInvalidationFailed, err)
	}

	ev := userEvent(AuditLogout, prev.User, err == nil)
	ev.Metadata = map[string]string{"dropped": strconv.FormatBool(dropped)}
	c.emitAudit(ctx, ev, err)
	if dropped {
		c.logger.Info("logged out", "user_id", prev.User.ID, "role", prev.User.Role)
	}
	return err
}

// invalidate drops the session only while it still holds token, so a 401 for a
// request sent with an older token leaves a newer session alone.
func (c *Client) invalidate(ctx context.Context, token string) (bool, error) {
	dropped, err := c.store.ClearIfToken(ctx, token, session.ReasonInvalidated)
	if dropped {
		c.metrics.Inc(MetricSessionInvalidated)
	}
	if err != nil {
		return dropped, fmt.Errorf("%w: %v", ErrSessionInvalidationFailed, err)
	}
	return dropped, nil
}

func (c *Client) onIntercepted(ctx context.Context, ic transport.Interception) {
	ev := AuditEvent{
		RequestID: ic.RequestID,
		Path:      ic.Path,
		Status:    ic.Status,
		Metadata:  map[string]string{"redirected": strconv.FormatBool(ic.Redirected)},
	}

	switch ic.Status {
	case http.StatusUnauthorized:
		ev.EventType = AuditSessionInvalidated
		ev.Success = ic.Err == nil
		ev.Metadata["invalidated"] = strconv.FormatBool(ic.Invalidated)
		ev.Metadata["stale"] = strconv.FormatBool(ic.Stale)
		c.emitAudit(ctx, ev, ic.Err)
	case http.StatusForbidden:
		c.metrics.Inc(MetricForbidden)
		if sess, ok := c.store.Current(); ok {
			ev.UserID = strconv.FormatInt(sess.User.ID, 10)
			ev.Role = string(sess.User.Role)
		}
		ev.EventType = AuditAccessForbidden
		c.emitAudit(ctx, ev, ErrForbidden)
	}
}

func (c *Client) onCompleted(_ context.Context, done transport.Completion) {
	c.metrics.Observe(MetricRequestLatency, done.Duration)
}

// Get performs an authenticated GET of path, relative to the API base URL,
// and decodes a successful JSON body into out when out is non-nil.
//
// A 401 or 403 has already been handled globally by the time Get returns; the
// error kind is [ErrSessionExpired] or [ErrForbidden] so callers can skip
// their own error display.
func (c *Client) Get(ctx context.Context, path string, out any) error {
	if err := c.ready(); err != nil {
		return err
	}

	op := http.MethodGet + " " + path
	req, err := c.newRequest(ctx, http.MethodGet, path, nil)
	if err != nil {
		return &AuthError{Kind: ErrRequestFailed, Op: op, Err: err}
	}

	resp, err := c.http.Do(req)
	if err != nil {
		return &AuthError{Kind: ErrNetwork, Op: op, Err: err}
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(io.LimitReader(resp.Body, maxBodyBytes))
	if err != nil {
		return &AuthError{Kind: ErrNetwork, Op: op, Status: resp.StatusCode, Err: err}
	}

	if kind := statusKind(resp.StatusCode, c.transport.Public(req.URL.Path)); kind != nil {
		return &AuthError{Kind: kind, Op: op, Status: resp.StatusCode, Message: serverMessage(raw, http.StatusText(resp.StatusCode))}
	}

	if out == nil {
		return nil
	}
	if err := json.Unmarshal(raw, out); err != nil {
		return &AuthError{Kind: ErrServer, Op: op, Status: resp.StatusCode, Err: err}
	}
	return nil
}

func statusKind(status int, public bool) error {
	switch {
	case status >= http.StatusOK && status < http.StatusMultipleChoices:
		return nil
	case status == http.StatusUnauthorized && !public:
		return ErrSessionExpired
	case status == http.StatusForbidden && !public:
		return ErrForbidden
	case status >= http.StatusInternalServerError:
		return ErrServer
	default:
		return ErrRequestFailed
	}
}

// Profile fetches the signed-in user's profile.
func (c *Client) Profile(ctx context.Context) (session.User, error) {
	var out struct {
		User session.User `json:"user"`
	}
	if err := c.Get(ctx, "/profile", &out); err != nil {
		return session.User{}, err
	}
	return out.User, nil
}

// Dashboard fetches the dashboard payload of r.
func (c *Client) Dashboard(ctx context.Context, r role.Role) (DashboardResponse, error) {
	if !r.Valid() {
		return DashboardResponse{}, &ValidationError{Fields: map[string]string{"role": "Unknown role"}}
	}
	var out DashboardResponse
	if err := c.Get(ctx, "/"+string(r)+"/dashboard", &out); err != nil {
		return DashboardResponse{}, err
	}
	return out, nil
}

func (c *Client) newRequest(ctx context.Context, method, path string, body io.Reader) (*http.Request, error) {
	req, err := http.NewRequestWithContext(ctx, method, c.endpoint(path), body)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Accept", "application/json")
	if id := requestIDFromContext(ctx); id != "" {
		req.Header.Set(RequestIDHeader, id)
	}
	return req, nil
}

func (c *Client) endpoint(path string) string {
	return c.apiBase.String() + "/" + strings.TrimLeft(path, "/")
}

func serverMessage(raw []byte, fallback string) string {
	var body messageBody
	if err := json.Unmarshal(raw, &body); err == nil && strings.TrimSpace(body.Message) != "" {
		return body.Message
	}
	return fallback
}

// Guard decides access to the client route path and emits the redirect intent
// when access is denied.
func (c *Client) Guard(path string) route.Decision {
	sess := c.current()
	return c.routes.Guard(c.navigator, path, sess)
}

// Authorize decides access to path without emitting anything.
func (c *Client) Authorize(path string) route.Decision {
	return c.routes.Decide(path, c.current())
}

// GuardRoles applies an ad-hoc role restriction for views outside the route
// table.
func (c *Client) GuardRoles(allowed role.Set) route.Decision {
	return route.Guard(c.navigator, allowed, c.current())
}

// Landing returns the default route for the current session.
func (c *Client) Landing() string {
	return route.LandingPath(c.current())
}

func (c *Client) current() *session.Session {
	sess, ok := c.store.Current()
	if !ok {
		return nil
	}
	return &sess
}

// Subscribe registers fn for every applied session transition and returns a
// function that removes it. Changes are delivered in transition order with no
// lock held, so fn may call Logout; a transition it causes is delivered after
// fn returns.
func (c *Client) Subscribe(fn func(session.Change)) func() {
	return c.store.Subscribe(fn)
}

// State returns the current session state.
func (c *Client) State() session.State {
	return c.store.State()
}

// Session returns a copy of the current session.
func (c *Client) Session() (session.Session, bool) {
	return c.store.Current()
}

// HTTPClient returns the client whose transport attaches the bearer token and
// intercepts 401 and 403 answers. Use it for API calls that [Client.Get] does
// not cover.
func (c *Client) HTTPClient() *http.Client {
	return c.http
}

// Endpoint returns the absolute URL of an API path.
func (c *Client) Endpoint(path string) string {
	return c.endpoint(path)
}

// Routes returns the protected route table.
func (c *Client) Routes() *route.Table {
	return c.routes
}

// Metrics returns the live counters.
func (c *Client) Metrics() *Metrics {
	return c.metrics
}

// MetricsSnapshot copies the current counters.
func (c *Client) MetricsSnapshot() MetricsSnapshot {
	return c.metrics.Snapshot()
}

// AuditDropped returns the number of audit events dropped on a full buffer.
func (c *Client) AuditDropped() uint64 {
	return c.audit.Dropped()
}

// Close flushes pending audit events and stops the client. Persistence is
// owned by the caller and stays open.
func (c *Client) Close() {
	c.mu.Lock()
	if c.state == stateClosed {
		c.mu.Unlock()
		return
	}
	c.state = stateClosed
	c.mu.Unlock()

	c.audit.Close()
	c.http.CloseIdleConnections()
}
