package apitest

import (
	"fmt"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/jwt"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/role"
)

// Demo administrator seeded on start.
const (
	DemoAdminName     = "System Admin"
	DemoAdminEmail    = "admin@healthcare.dev"
	DemoAdminPassword = "Admin@1234"
)

// TokenTTL is the access token lifetime.
const TokenTTL = 8 * time.Hour

// Options configures a [Server].
type Options struct {
	// Env is reported by the health endpoint.
	Env string
	// Secret signs access tokens. A fixed development secret is used when empty.
	Secret []byte
	Logger *slog.Logger
}

// User is a stored account.
type User struct {
	ID           int64
	Name         string
	Email        string
	Role         role.Role
	CreatedAt    time.Time
	passwordHash string
}

func (u *User) toDict() map[string]any {
	return map[string]any{
		"id":         u.ID,
		"name":       u.Name,
		"email":      u.Email,
		"role":       string(u.Role),
		"created_at": u.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000"),
	}
}

type gate struct {
	release     chan struct{}
	entered     chan struct{}
	enteredOnce sync.Once
}

// Server is the fake portal API.
type Server struct {
	env     string
	tokens  *jwt.Manager
	hasher  hasherConfig
	logger  *slog.Logger
	handler http.Handler
	http    *httptest.Server

	mu       sync.Mutex
	users    map[string]*User
	byID     map[int64]*User
	nextID   int64
	failures map[string][]int
	gates    map[string]*gate
	hits     map[string]int
}

// New builds a Server with the demo administrator seeded. Call [Server.Start]
// to listen, or use [Server.Handler] directly.
func New(opts Options) (*Server, error) {
	secret := opts.Secret
	if len(secret) == 0 {
		secret = []byte("jwt-secret-change-in-production")
	}
	tokens, err := jwt.NewManager(jwt.Config{
		AccessTTL:     TokenTTL,
		SigningMethod: jwt.MethodHS256,
		PrivateKey:    secret,
	})
	if err != nil {
		return nil, fmt.Errorf("apitest: token manager: %w", err)
	}
	env := opts.Env
	if env == "" {
		env = "development"
	}
	logger := opts.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}

	s := &Server{
		env:      env,
		tokens:   tokens,
		hasher:   defaultHasherConfig,
		logger:   logger,
		users:    make(map[string]*User),
		byID:     make(map[int64]*User),
		failures: make(map[string][]int),
		gates:    make(map[string]*gate),
		hits:     make(map[string]int),
	}
	if _, err := s.AddUser(DemoAdminName, DemoAdminEmail, DemoAdminPassword, role.Admin); err != nil {
		return nil, err
	}
	s.handler = s.buildRouter()
	return s, nil
}

// Start begins serving on a loopback listener.
func (s *Server) Start() {
	s.http = httptest.NewServer(s.handler)
}

// NewStarted is New followed by Start.
func NewStarted(opts Options) (*Server, error) {
	s, err := New(opts)
	if err != nil {
		return nil, err
	}
	s.Start()
	return s, nil
}

// Close shuts the listener down and releases held requests.
func (s *Server) Close() {
	s.mu.Lock()
	for key, g := range s.gates {
		close(g.release)
		delete(s.gates, key)
	}
	s.mu.Unlock()
	if s.http != nil {
		s.http.Close()
	}
}

// Handler returns the API handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// URL is the server root, e.g. http://127.0.0.1:54321.
func (s *Server) URL() string {
	if s.http == nil {
		return ""
	}
	return s.http.URL
}

// BaseURL is the API base, URL() + "/api".
func (s *Server) BaseURL() string {
	return s.URL() + "/api"
}

// AddUser stores an account directly, bypassing validation.
func (s *Server) AddUser(name, email, password string, r role.Role) (*User, error) {
	hash, err := hashPassword(s.hasher, password)
	if err != nil {
		return nil, fmt.Errorf("apitest: hash password: %w", err)
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.insertLocked(name, email, hash, r)
}

func (s *Server) insertLocked(name, email, hash string, r role.Role) (*User, error) {
	email = strings.ToLower(strings.TrimSpace(email))
	if _, exists := s.users[email]; exists {
		return nil, errEmailTaken
	}
	s.nextID++
	u := &User{
		ID:           s.nextID,
		Name:         strings.TrimSpace(name),
		Email:        email,
		Role:         r,
		CreatedAt:    time.Now(),
		passwordHash: hash,
	}
	s.users[email] = u
	s.byID[u.ID] = u
	return u, nil
}

// DeleteUser removes an account. Tokens already issued stay valid but profile
// lookups for it return 404.
func (s *Server) DeleteUser(email string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if u, ok := s.users[strings.ToLower(email)]; ok {
		delete(s.byID, u.ID)
		delete(s.users, u.Email)
	}
}

// Users returns the stored accounts, newest first.
func (s *Server) Users() []User {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.usersLocked()
}

func (s *Server) usersLocked() []User {
	out := make([]User, 0, len(s.byID))
	for _, u := range s.byID {
		out = append(out, *u)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID > out[j].ID })
	return out
}

// IssueToken signs a token for an existing account.
func (s *Server) IssueToken(email string) (string, error) {
	s.mu.Lock()
	u, ok := s.users[strings.ToLower(email)]
	s.mu.Unlock()
	if !ok {
		return "", fmt.Errorf("apitest: no user %q", email)
	}
	return s.tokens.Issue(u.ID, u.Name, u.Role)
}

// FailNext makes the next requests to method+path answer with the given
// statuses, one per request, before normal handling resumes.
func (s *Server) FailNext(method, path string, statuses ...int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := routeKey(method, path)
	s.failures[key] = append(s.failures[key], statuses...)
}

// Hold makes requests to method+path block until the returned release function
// is called. Entered is closed when the first held request arrives.
func (s *Server) Hold(method, path string) (release func(), entered <-chan struct{}) {
	g := &gate{release: make(chan struct{}), entered: make(chan struct{})}
	key := routeKey(method, path)

	s.mu.Lock()
	s.gates[key] = g
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			if s.gates[key] == g {
				delete(s.gates, key)
				close(g.release)
			}
			s.mu.Unlock()
		})
	}, g.entered
}

// Hits reports how many requests reached method+path.
func (s *Server) Hits(method, path string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.hits[routeKey(method, path)]
}

func routeKey(method, path string) string {
	return strings.ToUpper(method) + " " + strings.TrimRight(path, "/")
}
