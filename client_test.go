package portalauth

import (
	"context"
	"errors"
	"net/http"
	"sync"
	"testing"
	"time"

	jwtlib "github.com/golang-jwt/jwt/v5"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/internal/apitest"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/role"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/route"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/session"
)

type testEnv struct {
	api         *apitest.Server
	persistence *session.MemoryPersistence
	recorder    *route.Recorder
	client      *Client
}

func newTestEnv(t *testing.T, configure ...func(*Builder)) *testEnv {
	t.Helper()
	env := newUninitializedEnv(t, configure...)
	env.client.Initialize(context.Background())
	return env
}

func newUninitializedEnv(t *testing.T, configure ...func(*Builder)) *testEnv {
	t.Helper()

	api, err := apitest.NewStarted(apitest.Options{})
	if err != nil {
		t.Fatalf("apitest: %v", err)
	}
	t.Cleanup(api.Close)

	env := &testEnv{
		api:         api,
		persistence: session.NewMemoryPersistence(),
		recorder:    route.NewRecorder(route.Root),
	}

	cfg := DefaultConfig()
	cfg.API.BaseURL = api.BaseURL()
	cfg.API.Timeout = 5 * time.Second

	b := New().
		WithConfig(cfg).
		WithPersistence(env.persistence).
		WithNavigator(env.recorder).
		WithLocation(env.recorder)
	for _, fn := range configure {
		fn(b)
	}

	client, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	t.Cleanup(client.Close)
	env.client = client
	return env
}

func (e *testEnv) loginAs(t *testing.T, name, email string, r role.Role) session.User {
	t.Helper()
	if _, err := e.api.AddUser(name, email, "secret-pass", r); err != nil {
		t.Fatalf("AddUser failed: %v", err)
	}
	user, err := e.client.Login(context.Background(), email, "secret-pass")
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	return user
}

func expectKind(t *testing.T, err, kind error) *AuthError {
	t.Helper()
	if !errors.Is(err, kind) {
		t.Fatalf("expected %v, got %v", kind, err)
	}
	var ae *AuthError
	if !errors.As(err, &ae) {
		t.Fatalf("expected *AuthError, got %T", err)
	}
	return ae
}

type flakyPersistence struct {
	*session.MemoryPersistence
	saveErr  error
	clearErr error
}

func (f *flakyPersistence) Save(ctx context.Context, rec session.Record) error {
	if f.saveErr != nil {
		return f.saveErr
	}
	return f.MemoryPersistence.Save(ctx, rec)
}

func (f *flakyPersistence) Clear(ctx context.Context) error {
	if f.clearErr != nil {
		return f.clearErr
	}
	return f.MemoryPersistence.Clear(ctx)
}

func TestBuildRequiresDependencies(t *testing.T) {
	rec := route.NewRecorder(route.Root)
	p := session.NewMemoryPersistence()

	if _, err := New().WithNavigator(rec).WithLocation(rec).Build(); err == nil {
		t.Fatal("expected error without persistence")
	}
	if _, err := New().WithPersistence(p).WithLocation(rec).Build(); err == nil {
		t.Fatal("expected error without navigator")
	}
	if _, err := New().WithPersistence(p).WithNavigator(rec).Build(); err == nil {
		t.Fatal("expected error without location")
	}

	b := New().WithPersistence(p).WithNavigator(rec).WithLocation(rec)
	client, err := b.Build()
	if err != nil {
		t.Fatalf("Build failed: %v", err)
	}
	defer client.Close()
	if _, err := b.Build(); err == nil {
		t.Fatal("expected builder reuse to fail")
	}

	cfg := DefaultConfig()
	cfg.Session.Backend = "floppy"
	if _, err := New().WithConfig(cfg).WithPersistence(p).WithNavigator(rec).WithLocation(rec).Build(); err == nil {
		t.Fatal("expected invalid config to fail")
	}
}

func TestOperationsRequireInitialize(t *testing.T) {
	env := newUninitializedEnv(t)
	ctx := context.Background()

	if _, err := env.client.Login(ctx, apitest.DemoAdminEmail, apitest.DemoAdminPassword); !errors.Is(err, ErrClientNotReady) {
		t.Fatalf("expected ErrClientNotReady, got %v", err)
	}
	if err := env.client.Get(ctx, "/profile", nil); !errors.Is(err, ErrClientNotReady) {
		t.Fatalf("expected ErrClientNotReady, got %v", err)
	}
	if hits := env.api.Hits(http.MethodPost, "/api/login"); hits != 0 {
		t.Fatalf("no request expected before initialize, got %d", hits)
	}

	env.client.Initialize(ctx)
	env.client.Close()
	if _, err := env.client.Login(ctx, apitest.DemoAdminEmail, apitest.DemoAdminPassword); !errors.Is(err, ErrClientNotReady) {
		t.Fatalf("expected ErrClientNotReady after close, got %v", err)
	}
	if err := env.client.Logout(ctx); !errors.Is(err, ErrClientNotReady) {
		t.Fatalf("expected ErrClientNotReady from logout after close, got %v", err)
	}
}

func TestInitializeRestoresPersistedSession(t *testing.T) {
	env := newUninitializedEnv(t)
	token, err := env.api.IssueToken(apitest.DemoAdminEmail)
	if err != nil {
		t.Fatalf("IssueToken failed: %v", err)
	}
	env.persistence.Put(session.TokenKey, token)
	env.persistence.Put(session.UserKey, `{"id":1,"name":"System Admin","email":"admin@healthcare.dev","role":"admin"}`)

	if got := env.client.Initialize(context.Background()); got != session.Authenticated(role.Admin) {
		t.Fatalf("expected authenticated(admin), got %v", got)
	}
	if got := env.client.Landing(); got != route.AdminDashboard {
		t.Fatalf("expected admin landing, got %q", got)
	}
	if got := env.client.Metrics().Value(MetricSessionRestored); got != 1 {
		t.Fatalf("expected one restored session, got %d", got)
	}

	profile, err := env.client.Profile(context.Background())
	if err != nil {
		t.Fatalf("Profile failed: %v", err)
	}
	if profile.Email != apitest.DemoAdminEmail || profile.Role != role.Admin {
		t.Fatalf("unexpected profile %+v", profile)
	}
}

func TestInitializePartialSessionIsAnonymous(t *testing.T) {
	env := newUninitializedEnv(t)
	env.persistence.Put(session.TokenKey, "orphan-token")

	if got := env.client.Initialize(context.Background()); got != session.Anonymous {
		t.Fatalf("expected anonymous, got %v", got)
	}
	if _, ok := env.persistence.Get(session.TokenKey); ok {
		t.Fatal("partial session should have been cleared")
	}
	if got := env.client.Landing(); got != route.Login {
		t.Fatalf("expected login landing, got %q", got)
	}
}

func TestInitializeDiscardsExpiredToken(t *testing.T) {
	expired, err := jwtlib.NewWithClaims(jwtlib.SigningMethodHS256, jwtlib.RegisteredClaims{
		Subject:   "1",
		ExpiresAt: jwtlib.NewNumericDate(time.Now().Add(-time.Hour)),
	}).SignedString([]byte("any-secret"))
	if err != nil {
		t.Fatalf("sign: %v", err)
	}
	user := `{"id":1,"name":"System Admin","email":"admin@healthcare.dev","role":"admin"}`

	env := newUninitializedEnv(t)
	env.persistence.Put(session.TokenKey, expired)
	env.persistence.Put(session.UserKey, user)
	if got := env.client.Initialize(context.Background()); got != session.Anonymous {
		t.Fatalf("expected expired session discarded, got %v", got)
	}

	env = newUninitializedEnv(t, func(b *Builder) {
		cfg := b.config
		cfg.Session.DiscardExpired = false
		b.WithConfig(cfg)
	})
	env.persistence.Put(session.TokenKey, expired)
	env.persistence.Put(session.UserKey, user)
	if got := env.client.Initialize(context.Background()); got != session.Authenticated(role.Admin) {
		t.Fatalf("expected expiry check disabled, got %v", got)
	}

	env = newUninitializedEnv(t)
	env.persistence.Put(session.TokenKey, "opaque-token")
	env.persistence.Put(session.UserKey, user)
	if got := env.client.Initialize(context.Background()); got != session.Authenticated(role.Admin) {
		t.Fatalf("expected opaque token kept, got %v", got)
	}
}

func TestInitializeIsIdempotent(t *testing.T) {
	env := newTestEnv(t)

	env.persistence.Put(session.TokenKey, "late-token")
	env.persistence.Put(session.UserKey, `{"id":9,"name":"Late","email":"late@x.io","role":"doctor"}`)

	if got := env.client.Initialize(context.Background()); got != session.Anonymous {
		t.Fatalf("second initialize must not reload persistence, got %v", got)
	}
}

func TestLoginDemoAdmin(t *testing.T) {
	env := newTestEnv(t)

	user, err := env.client.Login(context.Background(), apitest.DemoAdminEmail, apitest.DemoAdminPassword)
	if err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if user.Role != role.Admin || user.Name != apitest.DemoAdminName {
		t.Fatalf("unexpected user %+v", user)
	}
	if got := env.client.State(); got != session.Authenticated(role.Admin) {
		t.Fatalf("expected authenticated(admin), got %v", got)
	}
	if got := route.RolePath(user.Role); got != route.AdminDashboard {
		t.Fatalf("expected admin dashboard, got %q", got)
	}

	token, ok := env.persistence.Get(session.TokenKey)
	if !ok || token == "" {
		t.Fatal("token not persisted")
	}
	sess, _ := env.client.Session()
	if sess.Token != token {
		t.Fatal("persisted token differs from the in-memory token")
	}

	if env.client.Metrics().Value(MetricLoginSuccess) != 1 || env.client.Metrics().Value(MetricSessionCreated) != 1 {
		t.Fatalf("unexpected metrics %+v", env.client.MetricsSnapshot().Counters)
	}
	if len(env.recorder.Intents()) != 0 {
		t.Fatalf("login must not navigate, got %+v", env.recorder.Intents())
	}
}

func TestLoginWrongPasswordLeavesSessionUnchanged(t *testing.T) {
	env := newTestEnv(t)
	env.recorder.Visit(route.Login)
	ctx := context.Background()

	_, err := env.client.Login(ctx, apitest.DemoAdminEmail, "wrong-password")
	ae := expectKind(t, err, ErrInvalidCredentials)
	if ae.Status != http.StatusUnauthorized || ae.Message != "Invalid email or password" {
		t.Fatalf("unexpected error %+v", ae)
	}
	if env.client.State() != session.Anonymous {
		t.Fatalf("expected anonymous, got %v", env.client.State())
	}
	if rec, _ := env.persistence.Load(ctx); !rec.Empty() {
		t.Fatalf("failed login must not persist, got %+v", rec)
	}
	if len(env.recorder.Intents()) != 0 {
		t.Fatalf("401 on login must not redirect, got %+v", env.recorder.Intents())
	}

	if _, err := env.client.Login(ctx, apitest.DemoAdminEmail, apitest.DemoAdminPassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	_, err = env.client.Login(ctx, apitest.DemoAdminEmail, "wrong-password")
	expectKind(t, err, ErrInvalidCredentials)
	if env.client.State() != session.Authenticated(role.Admin) {
		t.Fatalf("failed login replaced the session: %v", env.client.State())
	}
	if env.client.Metrics().Value(MetricLoginFailure) != 2 {
		t.Fatalf("expected 2 login failures, got %d", env.client.Metrics().Value(MetricLoginFailure))
	}
}

func TestLoginValidationNeverReachesNetwork(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name     string
		email    string
		password string
		fields   map[string]string
	}{
		{"empty", "", "", map[string]string{"email": "Email is required", "password": "Password is required"}},
		{"bad email", "not-an-email", "pw", map[string]string{"email": "Enter a valid email"}},
		{"no password", "a@b.co", "", map[string]string{"password": "Password is required"}},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			_, err := env.client.Login(context.Background(), tc.email, tc.password)
			var ve *ValidationError
			if !errors.As(err, &ve) || !errors.Is(err, ErrValidation) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if len(ve.Fields) != len(tc.fields) {
				t.Fatalf("expected fields %v, got %v", tc.fields, ve.Fields)
			}
			for k, v := range tc.fields {
				if ve.Fields[k] != v {
					t.Fatalf("field %s: expected %q, got %q", k, v, ve.Fields[k])
				}
			}
		})
	}

	if hits := env.api.Hits(http.MethodPost, "/api/login"); hits != 0 {
		t.Fatalf("validation failures reached the api %d times", hits)
	}
	if env.client.Metrics().Value(MetricValidationFailure) != uint64(len(tests)) {
		t.Fatalf("unexpected validation failure count %d", env.client.Metrics().Value(MetricValidationFailure))
	}
}

func TestLoginServerAndNetworkErrors(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	env.api.FailNext(http.MethodPost, "/api/login", http.StatusInternalServerError)
	_, err := env.client.Login(ctx, apitest.DemoAdminEmail, apitest.DemoAdminPassword)
	ae := expectKind(t, err, ErrServer)
	if ae.Status != http.StatusInternalServerError {
		t.Fatalf("unexpected status %d", ae.Status)
	}

	env.api.Close()
	_, err = env.client.Login(ctx, apitest.DemoAdminEmail, apitest.DemoAdminPassword)
	ae = expectKind(t, err, ErrNetwork)
	if ae.Message != "Login failed. Please try again." {
		t.Fatalf("expected fallback message, got %q", ae.Message)
	}
	if env.client.State() != session.Anonymous {
		t.Fatalf("expected anonymous, got %v", env.client.State())
	}
}

func TestLoginSecondConcurrentCallIsRejected(t *testing.T) {
	env := newTestEnv(t)
	release, entered := env.api.Hold(http.MethodPost, "/api/login")
	defer release()

	type result struct {
		user session.User
		err  error
	}
	first := make(chan result, 1)
	go func() {
		u, err := env.client.Login(context.Background(), apitest.DemoAdminEmail, apitest.DemoAdminPassword)
		first <- result{u, err}
	}()

	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("first login never reached the api")
	}

	_, err := env.client.Login(context.Background(), apitest.DemoAdminEmail, apitest.DemoAdminPassword)
	expectKind(t, err, ErrRequestInFlight)

	release()
	res := <-first
	if res.err != nil || res.user.Role != role.Admin {
		t.Fatalf("first login failed: %+v", res)
	}
	if hits := env.api.Hits(http.MethodPost, "/api/login"); hits != 1 {
		t.Fatalf("expected exactly one login request, got %d", hits)
	}
	if env.client.Metrics().Value(MetricRequestInFlight) != 1 {
		t.Fatal("expected in-flight rejection to be counted")
	}
}

func TestLoginCancelledLeavesAnonymous(t *testing.T) {
	env := newTestEnv(t)
	release, entered := env.api.Hold(http.MethodPost, "/api/login")
	defer release()

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		_, err := env.client.Login(ctx, apitest.DemoAdminEmail, apitest.DemoAdminPassword)
		done <- err
	}()
	<-entered
	cancel()

	err := <-done
	expectKind(t, err, ErrNetwork)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled in chain, got %v", err)
	}
	if env.client.State() != session.Anonymous {
		t.Fatalf("cancelled login must not sign in, got %v", env.client.State())
	}
}

func TestRegisterCreatesSession(t *testing.T) {
	env := newTestEnv(t)

	user, err := env.client.Register(context.Background(), RegisterRequest{
		Name:            "  Jane Doe  ",
		Email:           "jane@healthcare.dev",
		Password:        "secret1",
		ConfirmPassword: "secret1",
		Role:            role.Patient,
	})
	if err != nil {
		t.Fatalf("Register failed: %v", err)
	}
	if user.Name != "Jane Doe" || user.Role != role.Patient || user.CreatedAt == "" {
		t.Fatalf("unexpected user %+v", user)
	}
	if env.client.State() != session.Authenticated(role.Patient) {
		t.Fatalf("expected authenticated(patient), got %v", env.client.State())
	}
	if got := route.RolePath(user.Role); got != route.PatientDashboard {
		t.Fatalf("unexpected landing %q", got)
	}

	dash, err := env.client.Dashboard(context.Background(), role.Patient)
	if err != nil {
		t.Fatalf("Dashboard failed: %v", err)
	}
	if dash.Role != role.Patient || dash.Message != "Welcome to your Patient Dashboard, Jane Doe!" || len(dash.Data) == 0 {
		t.Fatalf("unexpected dashboard %+v", dash)
	}
}

func TestRegisterDuplicateEmail(t *testing.T) {
	env := newTestEnv(t)

	_, err := env.client.Register(context.Background(), RegisterRequest{
		Name:     "Another Admin",
		Email:    apitest.DemoAdminEmail,
		Password: "secret1",
		Role:     role.Admin,
	})
	ae := expectKind(t, err, ErrInvalidCredentials)
	if ae.Status != http.StatusConflict || ae.Message != "Email already registered" {
		t.Fatalf("unexpected error %+v", ae)
	}
	if env.client.State() != session.Anonymous {
		t.Fatalf("expected anonymous, got %v", env.client.State())
	}
	if env.client.Metrics().Value(MetricRegisterFailure) != 1 {
		t.Fatal("expected register failure to be counted")
	}
}

func TestRegisterValidation(t *testing.T) {
	env := newTestEnv(t)
	valid := RegisterRequest{Name: "Jane Doe", Email: "jane@x.io", Password: "secret1", Role: role.Doctor}

	tests := []struct {
		name   string
		mutate func(*RegisterRequest)
		field  string
		msg    string
	}{
		{"blank name", func(r *RegisterRequest) { r.Name = "   " }, "name", "Full name is required"},
		{"short name", func(r *RegisterRequest) { r.Name = " J " }, "name", "Name must be at least 2 characters"},
		{"bad email", func(r *RegisterRequest) { r.Email = "jane@x" }, "email", "Enter a valid email"},
		{"short password", func(r *RegisterRequest) { r.Password = "12345" }, "password", "Minimum 6 characters"},
		{"confirm mismatch", func(r *RegisterRequest) { r.ConfirmPassword = "secret2" }, "confirm", "Passwords do not match"},
		{"missing role", func(r *RegisterRequest) { r.Role = "" }, "role", "Please select a role"},
		{"unknown role", func(r *RegisterRequest) { r.Role = "nurse" }, "role", "Unknown role"},
	}
	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			req := valid
			tc.mutate(&req)
			_, err := env.client.Register(context.Background(), req)
			var ve *ValidationError
			if !errors.As(err, &ve) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if ve.Fields[tc.field] != tc.msg || len(ve.Fields) != 1 {
				t.Fatalf("expected %s=%q, got %v", tc.field, tc.msg, ve.Fields)
			}
		})
	}

	if hits := env.api.Hits(http.MethodPost, "/api/register"); hits != 0 {
		t.Fatalf("validation failures reached the api %d times", hits)
	}
}

func TestLogoutIsIdempotent(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	if err := env.client.Logout(ctx); err != nil {
		t.Fatalf("logout from anonymous: %v", err)
	}

	users := map[role.Role]string{
		role.Patient: "p@healthcare.dev",
		role.Doctor:  "d@healthcare.dev",
		role.Admin:   "a@healthcare.dev",
	}
	for r, email := range users {
		env.loginAs(t, "User "+string(r), email, r)
		if err := env.client.Logout(ctx); err != nil {
			t.Fatalf("logout from %s: %v", r, err)
		}
		if err := env.client.Logout(ctx); err != nil {
			t.Fatalf("repeated logout from %s: %v", r, err)
		}
		if env.client.State() != session.Anonymous {
			t.Fatalf("expected anonymous after logout, got %v", env.client.State())
		}
		if rec, _ := env.persistence.Load(ctx); !rec.Empty() {
			t.Fatalf("expected storage cleared, got %+v", rec)
		}
	}
	if got := env.client.Metrics().Value(MetricLogout); got != 7 {
		t.Fatalf("expected 7 logouts counted, got %d", got)
	}
}

func TestLogoutPersistenceFailureStillClearsMemory(t *testing.T) {
	p := &flakyPersistence{MemoryPersistence: session.NewMemoryPersistence()}
	env := newTestEnv(t, func(b *Builder) { b.WithPersistence(p) })
	ctx := context.Background()

	if _, err := env.client.Login(ctx, apitest.DemoAdminEmail, apitest.DemoAdminPassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	p.clearErr = errors.New("disk unplugged")
	err := env.client.Logout(ctx)
	if !errors.Is(err, ErrSessionInvalidationFailed) {
		t.Fatalf("expected ErrSessionInvalidationFailed, got %v", err)
	}
	if env.client.State() != session.Anonymous {
		t.Fatalf("memory must be cleared, got %v", env.client.State())
	}
}

func TestLoginPersistFailureStaysAnonymous(t *testing.T) {
	p := &flakyPersistence{MemoryPersistence: session.NewMemoryPersistence(), saveErr: errors.New("quota exceeded")}
	env := newTestEnv(t, func(b *Builder) { b.WithPersistence(p) })

	_, err := env.client.Login(context.Background(), apitest.DemoAdminEmail, apitest.DemoAdminPassword)
	expectKind(t, err, ErrSessionPersistFailed)
	if env.client.State() != session.Anonymous {
		t.Fatalf("expected anonymous, got %v", env.client.State())
	}
}

func TestProtected401ClearsSessionAndRedirects(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.loginAs(t, "Pat", "pat@healthcare.dev", role.Patient)
	env.recorder.Visit(route.PatientDashboard)

	env.api.FailNext(http.MethodGet, "/api/profile", http.StatusUnauthorized)
	_, err := env.client.Profile(ctx)
	expectKind(t, err, ErrSessionExpired)

	if env.client.State() != session.Anonymous {
		t.Fatalf("expected anonymous, got %v", env.client.State())
	}
	if rec, _ := env.persistence.Load(ctx); !rec.Empty() {
		t.Fatalf("expected storage cleared, got %+v", rec)
	}
	last, ok := env.recorder.Last()
	if !ok || last.Path != route.Login || !last.Replace || last.Reason != route.ReasonSessionExpired {
		t.Fatalf("unexpected intent %+v ok=%v", last, ok)
	}
	if env.client.Metrics().Value(MetricSessionInvalidated) != 1 {
		t.Fatal("expected invalidation to be counted")
	}
}

func TestProtected401OnLoginViewDoesNotRedirect(t *testing.T) {
	env := newTestEnv(t)
	env.loginAs(t, "Doc", "doc@healthcare.dev", role.Doctor)
	env.recorder.Visit(route.Login)

	env.api.FailNext(http.MethodGet, "/api/doctor/dashboard", http.StatusUnauthorized)
	_, err := env.client.Dashboard(context.Background(), role.Doctor)
	expectKind(t, err, ErrSessionExpired)

	if env.client.State() != session.Anonymous {
		t.Fatalf("expected anonymous, got %v", env.client.State())
	}
	if n := len(env.recorder.Intents()); n != 0 {
		t.Fatalf("expected no redirect from the login view, got %d", n)
	}
}

func TestProtected401ForReplacedSessionKeepsNewSession(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()
	env.loginAs(t, "Pat", "pat@healthcare.dev", role.Patient)
	env.recorder.Visit(route.PatientDashboard)

	release, entered := env.api.Hold(http.MethodGet, "/api/profile")
	defer release()
	env.api.FailNext(http.MethodGet, "/api/profile", http.StatusUnauthorized)

	done := make(chan error, 1)
	go func() {
		_, err := env.client.Profile(ctx)
		done <- err
	}()
	select {
	case <-entered:
	case <-time.After(2 * time.Second):
		t.Fatal("profile request never reached the api")
	}

	doctor := env.loginAs(t, "Doc", "doc@healthcare.dev", role.Doctor)
	release()
	if err := <-done; err == nil {
		t.Fatal("expected the rejected profile request to fail")
	}

	if env.client.State() != session.Authenticated(role.Doctor) {
		t.Fatalf("expected the doctor session to survive, got %v", env.client.State())
	}
	if sess, ok := env.client.Session(); !ok || sess.User.ID != doctor.ID {
		t.Fatalf("unexpected session %+v ok=%v", sess, ok)
	}
	if rec, _ := env.persistence.Load(ctx); rec.Empty() {
		t.Fatal("stale 401 cleared storage")
	}
	for _, in := range env.recorder.Intents() {
		if in.Path == route.Login {
			t.Fatalf("stale 401 redirected to login: %+v", env.recorder.Intents())
		}
	}
	if env.client.Metrics().Value(MetricSessionInvalidated) != 0 {
		t.Fatal("stale 401 counted as an invalidation")
	}
}

func TestProtected403RedirectsAndKeepsSession(t *testing.T) {
	env := newTestEnv(t)
	env.loginAs(t, "Pat", "pat@healthcare.dev", role.Patient)
	env.recorder.Visit(route.PatientDashboard)

	_, err := env.client.Dashboard(context.Background(), role.Doctor)
	ae := expectKind(t, err, ErrForbidden)
	if ae.Message != "Access forbidden: insufficient role" {
		t.Fatalf("unexpected message %q", ae.Message)
	}

	if env.client.State() != session.Authenticated(role.Patient) {
		t.Fatalf("403 must keep the session, got %v", env.client.State())
	}
	last, ok := env.recorder.Last()
	if !ok || last.Path != route.Unauthorized || last.Reason != route.ReasonForbidden {
		t.Fatalf("unexpected intent %+v ok=%v", last, ok)
	}
	if env.client.Metrics().Value(MetricForbidden) != 1 {
		t.Fatal("expected forbidden to be counted")
	}
	if d := env.client.Authorize(route.PatientDashboard); !d.Allowed() {
		t.Fatalf("patient dashboard should stay reachable after a 403, got %+v", d)
	}
}

func TestPublicPathStatusesAreNotIntercepted(t *testing.T) {
	env := newTestEnv(t)
	env.loginAs(t, "Pat", "pat@healthcare.dev", role.Patient)

	env.api.FailNext(http.MethodGet, "/api/health", http.StatusUnauthorized)
	err := env.client.Get(context.Background(), "/health", nil)
	expectKind(t, err, ErrRequestFailed)

	if env.client.State() != session.Authenticated(role.Patient) {
		t.Fatalf("public 401 must not clear the session, got %v", env.client.State())
	}
	if len(env.recorder.Intents()) != 0 {
		t.Fatalf("public 401 must not redirect, got %+v", env.recorder.Intents())
	}

	var health struct {
		Status string `json:"status"`
		Env    string `json:"env"`
	}
	if err := env.client.Get(context.Background(), "/health", &health); err != nil {
		t.Fatalf("health failed: %v", err)
	}
	if health.Status != "ok" || health.Env != "development" {
		t.Fatalf("unexpected health %+v", health)
	}
}

func TestGetServerErrorHasNoSideEffect(t *testing.T) {
	env := newTestEnv(t)
	env.loginAs(t, "Doc", "doc@healthcare.dev", role.Doctor)

	env.api.FailNext(http.MethodGet, "/api/doctor/dashboard", http.StatusBadGateway)
	_, err := env.client.Dashboard(context.Background(), role.Doctor)
	expectKind(t, err, ErrServer)

	if env.client.State() != session.Authenticated(role.Doctor) || len(env.recorder.Intents()) != 0 {
		t.Fatal("5xx must not touch the session or navigate")
	}
	if _, err := env.client.Dashboard(context.Background(), "nurse"); !errors.Is(err, ErrValidation) {
		t.Fatalf("expected validation error for unknown role, got %v", err)
	}
}

func TestHTTPClientAttachesBearerToken(t *testing.T) {
	env := newTestEnv(t)
	env.loginAs(t, "Admin Two", "admin2@healthcare.dev", role.Admin)

	resp, err := env.client.HTTPClient().Get(env.client.Endpoint("/admin/dashboard"))
	if err != nil {
		t.Fatalf("GET failed: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("expected 200, got %d", resp.StatusCode)
	}
}

type headerCapture struct {
	mu   sync.Mutex
	base http.RoundTripper
	ids  []string
}

func (h *headerCapture) RoundTrip(req *http.Request) (*http.Response, error) {
	h.mu.Lock()
	h.ids = append(h.ids, req.Header.Get(RequestIDHeader))
	h.mu.Unlock()
	return h.base.RoundTrip(req)
}

func TestRequestIDFromContext(t *testing.T) {
	capture := &headerCapture{base: http.DefaultTransport}
	env := newTestEnv(t, func(b *Builder) { b.WithBaseTransport(capture) })

	ctx := WithRequestID(context.Background(), "req-123")
	if _, err := env.client.Login(ctx, apitest.DemoAdminEmail, apitest.DemoAdminPassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := env.client.Get(context.Background(), "/profile", nil); err != nil {
		t.Fatalf("Get failed: %v", err)
	}

	capture.mu.Lock()
	defer capture.mu.Unlock()
	if len(capture.ids) != 2 || capture.ids[0] != "req-123" || capture.ids[1] == "" || capture.ids[1] == "req-123" {
		t.Fatalf("unexpected request ids %v", capture.ids)
	}
}

func TestGuardUsesRouteTable(t *testing.T) {
	env := newTestEnv(t)

	if d := env.client.Guard(route.DoctorDashboard); d.Kind != route.RedirectLogin {
		t.Fatalf("anonymous: expected redirect login, got %v", d.Kind)
	}
	if last, _ := env.recorder.Last(); last.Path != route.Login {
		t.Fatalf("expected login intent, got %+v", last)
	}

	env.loginAs(t, "Pat", "pat@healthcare.dev", role.Patient)
	before := len(env.recorder.Intents())
	if d := env.client.Authorize(route.DoctorDashboard); d.Kind != route.RedirectUnauthorized {
		t.Fatalf("patient: expected redirect unauthorized, got %v", d.Kind)
	}
	if len(env.recorder.Intents()) != before {
		t.Fatal("Authorize must not navigate")
	}
	if d := env.client.Guard(route.PatientDashboard); !d.Allowed() {
		t.Fatalf("patient: expected allow on own dashboard, got %v", d.Kind)
	}
	if d := env.client.GuardRoles(role.Only(role.Doctor, role.Admin)); d.Kind != route.RedirectUnauthorized {
		t.Fatalf("expected ad-hoc restriction to deny patient, got %v", d.Kind)
	}
	if d := env.client.Guard(route.Root); d.Kind != route.RedirectLanding || d.Path != route.PatientDashboard {
		t.Fatalf("root should land on the patient dashboard, got %+v", d)
	}
}

func TestSubscribeSeesTransitions(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var (
		mu      sync.Mutex
		changes []session.Change
	)
	unsubscribe := env.client.Subscribe(func(c session.Change) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
	})

	if _, err := env.client.Login(ctx, apitest.DemoAdminEmail, apitest.DemoAdminPassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if err := env.client.Logout(ctx); err != nil {
		t.Fatalf("Logout failed: %v", err)
	}
	unsubscribe()
	if _, err := env.client.Login(ctx, apitest.DemoAdminEmail, apitest.DemoAdminPassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}

	mu.Lock()
	defer mu.Unlock()
	if len(changes) != 2 {
		t.Fatalf("expected 2 changes, got %+v", changes)
	}
	if changes[0].Reason != session.ReasonEstablished || changes[0].Current != session.Authenticated(role.Admin) {
		t.Fatalf("unexpected first change %+v", changes[0])
	}
	if changes[1].Reason != session.ReasonLogout || changes[1].Current != session.Anonymous {
		t.Fatalf("unexpected second change %+v", changes[1])
	}
}

func TestSubscriberMayLogOut(t *testing.T) {
	env := newTestEnv(t)
	ctx := context.Background()

	var (
		mu        sync.Mutex
		changes   []session.Change
		logoutErr error
	)
	env.client.Subscribe(func(c session.Change) {
		mu.Lock()
		changes = append(changes, c)
		mu.Unlock()
		if c.Reason == session.ReasonEstablished {
			err := env.client.Logout(ctx)
			mu.Lock()
			logoutErr = err
			mu.Unlock()
		}
	})

	done := make(chan error, 1)
	go func() {
		_, err := env.client.Login(ctx, apitest.DemoAdminEmail, apitest.DemoAdminPassword)
		done <- err
	}()
	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Login failed: %v", err)
		}
	case <-time.After(5 * time.Second):
		t.Fatal("Login blocked on a subscriber calling Logout")
	}

	if env.client.State() != session.Anonymous {
		t.Fatalf("expected anonymous, got %v", env.client.State())
	}
	mu.Lock()
	defer mu.Unlock()
	if logoutErr != nil {
		t.Fatalf("Logout from subscriber failed: %v", logoutErr)
	}
	if len(changes) != 2 || changes[0].Reason != session.ReasonEstablished || changes[1].Reason != session.ReasonLogout {
		t.Fatalf("unexpected changes %+v", changes)
	}
}

func TestLatencyHistogramRecordsRequests(t *testing.T) {
	env := newTestEnv(t, func(b *Builder) { b.WithLatencyHistograms(true) })

	if _, err := env.client.Login(context.Background(), apitest.DemoAdminEmail, apitest.DemoAdminPassword); err != nil {
		t.Fatalf("Login failed: %v", err)
	}
	if _, err := env.client.Profile(context.Background()); err != nil {
		t.Fatalf("Profile failed: %v", err)
	}

	var total uint64
	for _, n := range env.client.MetricsSnapshot().Histograms[MetricRequestLatency] {
		total += n
	}
	if total != 2 {
		t.Fatalf("expected 2 observed requests, got %d", total)
	}
}
