package portalauth

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/role"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/route"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/transport"
)

// Session backends.
const (
	BackendMemory = "memory"
	BackendSQLite = "sqlite"
	BackendRedis  = "redis"
)

// Config is the full client configuration. Obtain defaults from [DefaultConfig]
// or [LoadConfig] and treat it as immutable once passed to [Builder.WithConfig].
type Config struct {
	API       APIConfig       `yaml:"api"`
	Session   SessionConfig   `yaml:"session"`
	Routes    RoutesConfig    `yaml:"routes"`
	Transport TransportConfig `yaml:"transport"`
	Audit     AuditConfig     `yaml:"audit"`
	Metrics   MetricsConfig   `yaml:"metrics"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// APIConfig locates the portal API.
type APIConfig struct {
	// BaseURL is the absolute API root, e.g. http://localhost:5000/api.
	BaseURL string `yaml:"base_url"`
	// Timeout bounds each request. Zero disables the client-side timeout and
	// leaves cancellation to the caller's context.
	Timeout time.Duration `yaml:"timeout"`
}

// SessionConfig selects where the session pair is persisted.
type SessionConfig struct {
	Backend string `yaml:"backend"`
	// KeyPrefix namespaces the persisted entries in Redis and SQLite.
	KeyPrefix  string        `yaml:"key_prefix"`
	SQLitePath string        `yaml:"sqlite_path"`
	RedisAddr  string        `yaml:"redis_addr"`
	RedisDB    int           `yaml:"redis_db"`
	RedisTTL   time.Duration `yaml:"redis_ttl"`
	// DiscardExpired drops a persisted session at startup when its token is a
	// JWT whose exp claim has passed.
	DiscardExpired bool `yaml:"discard_expired"`
}

// RouteRule protects one client route.
type RouteRule struct {
	Path string `yaml:"path"`
	// Roles lists the admitted roles. An empty list admits any signed-in user.
	Roles []string `yaml:"roles"`
}

// RoutesConfig replaces the default route table when Protected is non-empty.
type RoutesConfig struct {
	Protected []RouteRule `yaml:"protected"`
}

// TransportConfig tunes the authenticated transport.
type TransportConfig struct {
	// PublicPaths are API paths, relative to the base URL, sent without
	// credentials and never intercepted. Nil selects the defaults.
	PublicPaths []string `yaml:"public_paths"`
}

// AuditConfig controls audit event dispatch.
type AuditConfig struct {
	Enabled    bool `yaml:"enabled"`
	BufferSize int  `yaml:"buffer_size"`
	DropIfFull bool `yaml:"drop_if_full"`
}

// MetricsConfig controls in-process counters.
type MetricsConfig struct {
	Enabled                 bool `yaml:"enabled"`
	EnableLatencyHistograms bool `yaml:"enable_latency_histograms"`
}

// LoggingConfig controls the structured logger. Logging is off unless Enabled.
type LoggingConfig struct {
	Enabled bool   `yaml:"enabled"`
	Level   string `yaml:"level"`
	Format  string `yaml:"format"`
	Output  string `yaml:"output"`
}

// DefaultConfig returns the defaults: a local API, in-memory persistence,
// expired-token discard, metrics on, audit and logging off.
func DefaultConfig() Config {
	return defaultConfig()
}

func defaultConfig() Config {
	return Config{
		API: APIConfig{
			BaseURL: "http://localhost:5000/api",
			Timeout: 15 * time.Second,
		},
		Session: SessionConfig{
			Backend:        BackendMemory,
			KeyPrefix:      "portal",
			SQLitePath:     "portal-session.db",
			RedisAddr:      "localhost:6379",
			DiscardExpired: true,
		},
		Audit: AuditConfig{
			Enabled:    false,
			BufferSize: 256,
			DropIfFull: true,
		},
		Metrics: MetricsConfig{
			Enabled:                 true,
			EnableLatencyHistograms: false,
		},
		Logging: LoggingConfig{
			Enabled: false,
			Level:   "info",
			Format:  "json",
			Output:  "stderr",
		},
	}
}

func cloneConfig(cfg Config) Config {
	out := cfg
	if cfg.Transport.PublicPaths != nil {
		out.Transport.PublicPaths = append([]string(nil), cfg.Transport.PublicPaths...)
	}
	if cfg.Routes.Protected != nil {
		out.Routes.Protected = make([]RouteRule, len(cfg.Routes.Protected))
		for i, r := range cfg.Routes.Protected {
			out.Routes.Protected[i] = RouteRule{Path: r.Path, Roles: append([]string(nil), r.Roles...)}
		}
	}
	return out
}

// Validate reports the first configuration problem found.
func (c *Config) Validate() error {
	// API
	u, err := url.Parse(c.API.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return errors.New("API BaseURL must be an absolute http(s) URL")
	}
	if u.RawQuery != "" || u.Fragment != "" {
		return errors.New("API BaseURL must not carry a query or fragment")
	}
	if c.API.Timeout < 0 {
		return errors.New("API Timeout must be >= 0")
	}

	// Session
	switch c.Session.Backend {
	case BackendMemory:
	case BackendSQLite:
		if strings.TrimSpace(c.Session.SQLitePath) == "" {
			return errors.New("Session SQLitePath is required for the sqlite backend")
		}
	case BackendRedis:
		if strings.TrimSpace(c.Session.RedisAddr) == "" {
			return errors.New("Session RedisAddr is required for the redis backend")
		}
	default:
		return fmt.Errorf("Session Backend must be %q, %q or %q", BackendMemory, BackendSQLite, BackendRedis)
	}
	if strings.TrimSpace(c.Session.KeyPrefix) == "" {
		return errors.New("Session KeyPrefix must not be blank")
	}
	if c.Session.RedisDB < 0 {
		return errors.New("Session RedisDB must be >= 0")
	}
	if c.Session.RedisTTL < 0 {
		return errors.New("Session RedisTTL must be >= 0")
	}

	// Routes
	if _, err := c.routeTable(); err != nil {
		return err
	}

	// Transport
	for _, p := range c.Transport.PublicPaths {
		if !strings.HasPrefix(p, "/") {
			return fmt.Errorf("Transport public path %q must start with /", p)
		}
	}

	// Audit
	if c.Audit.Enabled && c.Audit.BufferSize <= 0 {
		return errors.New("Audit BufferSize must be > 0 when audit is enabled")
	}

	// Logging
	switch strings.ToLower(c.Logging.Format) {
	case "", "json", "text":
	default:
		return errors.New("Logging Format must be 'json' or 'text'")
	}
	switch strings.ToLower(c.Logging.Output) {
	case "", "stdout", "stderr":
	default:
		return errors.New("Logging Output must be 'stdout' or 'stderr'")
	}

	return nil
}

// routeTable builds the protected route table, falling back to the default
// dashboards when none are configured.
func (c *Config) routeTable() (*route.Table, error) {
	if len(c.Routes.Protected) == 0 {
		return route.DefaultTable(), nil
	}

	entries := make([]route.Entry, 0, len(c.Routes.Protected))
	for _, rule := range c.Routes.Protected {
		allowed := role.Any()
		if len(rule.Roles) > 0 {
			roles := make([]role.Role, 0, len(rule.Roles))
			for _, name := range rule.Roles {
				r, err := role.Parse(name)
				if err != nil {
					return nil, fmt.Errorf("Routes %s: %w: %q", rule.Path, err, name)
				}
				roles = append(roles, r)
			}
			allowed = role.Only(roles...)
		}
		entries = append(entries, route.Entry{Path: rule.Path, Allowed: allowed})
	}

	table, err := route.NewTable(entries...)
	if err != nil {
		return nil, fmt.Errorf("Routes: %w", err)
	}
	return table, nil
}

func (c *Config) publicPaths() []string {
	if c.Transport.PublicPaths == nil {
		return transport.DefaultPublicPaths
	}
	return c.Transport.PublicPaths
}
