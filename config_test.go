package portalauth

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/role"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/route"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/session"
)

func TestDefaultConfigIsValid(t *testing.T) {
	cfg := DefaultConfig()
	if err := cfg.Validate(); err != nil {
		t.Fatalf("default config invalid: %v", err)
	}
	if cfg.API.BaseURL != "http://localhost:5000/api" {
		t.Fatalf("unexpected default base url %q", cfg.API.BaseURL)
	}
	if !cfg.Session.DiscardExpired {
		t.Fatal("expired sessions should be discarded by default")
	}
}

func TestConfigValidate(t *testing.T) {
	tests := []struct {
		name      string
		mutate    func(*Config)
		wantValid bool
	}{
		{
			name:      "https base url valid",
			mutate:    func(c *Config) { c.API.BaseURL = "https://portal.example.com/api/" },
			wantValid: true,
		},
		{
			name:      "relative base url invalid",
			mutate:    func(c *Config) { c.API.BaseURL = "/api" },
			wantValid: false,
		},
		{
			name:      "base url with query invalid",
			mutate:    func(c *Config) { c.API.BaseURL = "http://localhost:5000/api?x=1" },
			wantValid: false,
		},
		{
			name:      "negative timeout invalid",
			mutate:    func(c *Config) { c.API.Timeout = -time.Second },
			wantValid: false,
		},
		{
			name:      "unknown backend invalid",
			mutate:    func(c *Config) { c.Session.Backend = "localstorage" },
			wantValid: false,
		},
		{
			name: "sqlite without path invalid",
			mutate: func(c *Config) {
				c.Session.Backend = BackendSQLite
				c.Session.SQLitePath = " "
			},
			wantValid: false,
		},
		{
			name: "redis with addr valid",
			mutate: func(c *Config) {
				c.Session.Backend = BackendRedis
				c.Session.RedisTTL = 8 * time.Hour
			},
			wantValid: true,
		},
		{
			name:      "blank key prefix invalid",
			mutate:    func(c *Config) { c.Session.KeyPrefix = "" },
			wantValid: false,
		},
		{
			name: "route with unknown role invalid",
			mutate: func(c *Config) {
				c.Routes.Protected = []RouteRule{{Path: "/nurse/dashboard", Roles: []string{"nurse"}}}
			},
			wantValid: false,
		},
		{
			name: "public route cannot be protected",
			mutate: func(c *Config) {
				c.Routes.Protected = []RouteRule{{Path: "/login"}}
			},
			wantValid: false,
		},
		{
			name: "custom routes valid",
			mutate: func(c *Config) {
				c.Routes.Protected = []RouteRule{
					{Path: "/patient/dashboard", Roles: []string{"patient"}},
					{Path: "/settings"},
				}
			},
			wantValid: true,
		},
		{
			name:      "relative public path invalid",
			mutate:    func(c *Config) { c.Transport.PublicPaths = []string{"login"} },
			wantValid: false,
		},
		{
			name: "audit enabled without buffer invalid",
			mutate: func(c *Config) {
				c.Audit.Enabled = true
				c.Audit.BufferSize = 0
			},
			wantValid: false,
		},
		{
			name:      "log format invalid",
			mutate:    func(c *Config) { c.Logging.Format = "xml" },
			wantValid: false,
		},
	}

	for _, tc := range tests {
		t.Run(tc.name, func(t *testing.T) {
			cfg := DefaultConfig()
			tc.mutate(&cfg)
			err := cfg.Validate()
			if tc.wantValid && err != nil {
				t.Fatalf("expected valid config, got %v", err)
			}
			if !tc.wantValid && err == nil {
				t.Fatal("expected invalid config, got nil")
			}
		})
	}
}

func TestConfigRouteTable(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Routes.Protected = []RouteRule{
		{Path: "/doctor/dashboard", Roles: []string{"Doctor", "admin"}},
		{Path: "/settings"},
	}

	table, err := cfg.routeTable()
	if err != nil {
		t.Fatalf("routeTable failed: %v", err)
	}

	allowed, ok := table.Lookup("/doctor/dashboard")
	if !ok || !allowed.Contains(role.Admin) || allowed.Contains(role.Patient) {
		t.Fatalf("unexpected doctor route set %v ok=%v", allowed, ok)
	}
	settings, ok := table.Lookup("/settings")
	if !ok || settings.Restricted() {
		t.Fatalf("expected unrestricted settings route, got %v", settings)
	}
	if _, ok := table.Lookup(route.PatientDashboard); ok {
		t.Fatal("configured routes replace the defaults")
	}
}

func TestCloneConfigIsDeep(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Transport.PublicPaths = []string{"/login"}
	cfg.Routes.Protected = []RouteRule{{Path: "/settings", Roles: []string{"admin"}}}

	out := cloneConfig(cfg)
	cfg.Transport.PublicPaths[0] = "/changed"
	cfg.Routes.Protected[0].Roles[0] = "patient"

	if out.Transport.PublicPaths[0] != "/login" || out.Routes.Protected[0].Roles[0] != "admin" {
		t.Fatalf("clone shares memory with source: %+v", out)
	}
}

func TestLoadConfigFileAndEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "portal.yaml")
	data := `
api:
  base_url: http://api.internal:5000/api
  timeout: 5s
session:
  backend: sqlite
  sqlite_path: /tmp/from-file.db
  redis_ttl: 8h
routes:
  protected:
    - path: /admin/dashboard
      roles: [admin]
logging:
  enabled: true
  format: text
`
	if err := os.WriteFile(path, []byte(data), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	t.Setenv(EnvSQLitePath, "/tmp/from-env.db")
	t.Setenv(EnvLogLevel, "debug")

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}

	if cfg.API.BaseURL != "http://api.internal:5000/api" || cfg.API.Timeout != 5*time.Second {
		t.Fatalf("unexpected api config %+v", cfg.API)
	}
	if cfg.Session.Backend != BackendSQLite || cfg.Session.SQLitePath != "/tmp/from-env.db" {
		t.Fatalf("env override not applied: %+v", cfg.Session)
	}
	if cfg.Session.RedisTTL != 8*time.Hour || cfg.Session.KeyPrefix != "portal" {
		t.Fatalf("unexpected session config %+v", cfg.Session)
	}
	if cfg.Logging.Level != "debug" || cfg.Logging.Format != "text" {
		t.Fatalf("unexpected logging config %+v", cfg.Logging)
	}
	if len(cfg.Routes.Protected) != 1 || cfg.Routes.Protected[0].Roles[0] != "admin" {
		t.Fatalf("unexpected routes %+v", cfg.Routes)
	}
}

func TestLoadConfigWithoutFileUsesDefaults(t *testing.T) {
	t.Setenv(EnvAPIBaseURL, "https://portal.example.com/api")
	t.Setenv(EnvSessionBackend, "REDIS")
	t.Setenv(EnvRedisAddr, "cache:6379")

	cfg, err := LoadConfig("")
	if err != nil {
		t.Fatalf("LoadConfig failed: %v", err)
	}
	if cfg.API.BaseURL != "https://portal.example.com/api" {
		t.Fatalf("unexpected base url %q", cfg.API.BaseURL)
	}
	if cfg.Session.Backend != BackendRedis || cfg.Session.RedisAddr != "cache:6379" {
		t.Fatalf("unexpected session config %+v", cfg.Session)
	}
}

func TestLoadConfigErrors(t *testing.T) {
	if _, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml")); !errors.Is(err, os.ErrNotExist) {
		t.Fatalf("expected not-exist error, got %v", err)
	}

	bad := filepath.Join(t.TempDir(), "bad.yaml")
	if err := os.WriteFile(bad, []byte("api: [unclosed"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(bad); err == nil || !strings.Contains(err.Error(), "parsing config file") {
		t.Fatalf("expected parse error, got %v", err)
	}

	invalid := filepath.Join(t.TempDir(), "invalid.yaml")
	if err := os.WriteFile(invalid, []byte("session:\n  backend: floppy\n"), 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	if _, err := LoadConfig(invalid); err == nil || !strings.Contains(err.Error(), "validating config") {
		t.Fatalf("expected validation error, got %v", err)
	}
}

func TestOpenPersistenceBackends(t *testing.T) {
	ctx := t.Context()

	p, closer, err := OpenPersistence(ctx, SessionConfig{Backend: BackendMemory})
	if err != nil {
		t.Fatalf("memory backend: %v", err)
	}
	if _, ok := p.(*session.MemoryPersistence); !ok {
		t.Fatalf("expected memory persistence, got %T", p)
	}
	_ = closer.Close()

	p, closer, err = OpenPersistence(ctx, SessionConfig{
		Backend:    BackendSQLite,
		SQLitePath: filepath.Join(t.TempDir(), "session.db"),
		KeyPrefix:  "portal",
	})
	if err != nil {
		t.Fatalf("sqlite backend: %v", err)
	}
	if _, ok := p.(*session.SQLitePersistence); !ok {
		t.Fatalf("expected sqlite persistence, got %T", p)
	}
	if err := closer.Close(); err != nil {
		t.Fatalf("close sqlite: %v", err)
	}

	mr := miniredis.RunT(t)
	p, closer, err = OpenPersistence(ctx, SessionConfig{Backend: BackendRedis, RedisAddr: mr.Addr(), KeyPrefix: "portal"})
	if err != nil {
		t.Fatalf("redis backend: %v", err)
	}
	if _, ok := p.(*session.RedisPersistence); !ok {
		t.Fatalf("expected redis persistence, got %T", p)
	}
	_ = closer.Close()

	mr.Close()
	if _, _, err := OpenPersistence(ctx, SessionConfig{Backend: BackendRedis, RedisAddr: mr.Addr(), KeyPrefix: "portal"}); !errors.Is(err, session.ErrPersistenceUnavailable) {
		t.Fatalf("expected unavailable redis, got %v", err)
	}

	if _, _, err := OpenPersistence(ctx, SessionConfig{Backend: "floppy"}); err == nil {
		t.Fatal("expected unknown backend error")
	}
}
