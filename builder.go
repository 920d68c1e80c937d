package portalauth

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"

	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/internal/audit"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/internal/logging"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/jwt"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/route"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/session"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/transport"
)

// Builder assembles a [Client]. Configure it during initialization, call
// [Builder.Build] once, and discard it.
type Builder struct {
	config Config

	persistence session.Persistence
	navigator   route.Navigator
	location    route.Location
	base        http.RoundTripper
	auditSink   AuditSink
	logger      *logging.Logger
	routes      *route.Table

	built bool
}

// New returns a Builder holding [DefaultConfig].
func New() *Builder {
	return &Builder{
		config: defaultConfig(),
	}
}

// WithConfig replaces the configuration. cfg is copied.
func (b *Builder) WithConfig(cfg Config) *Builder {
	b.config = cloneConfig(cfg)
	return b
}

// WithPersistence sets the session storage. Required.
func (b *Builder) WithPersistence(p session.Persistence) *Builder {
	b.persistence = p
	return b
}

// WithNavigator sets the sink for redirect intents. Required.
func (b *Builder) WithNavigator(nav route.Navigator) *Builder {
	b.navigator = nav
	return b
}

// WithLocation sets the source of the current client route. Required.
func (b *Builder) WithLocation(loc route.Location) *Builder {
	b.location = loc
	return b
}

// WithBaseTransport sets the round tripper under the authenticated transport.
func (b *Builder) WithBaseTransport(rt http.RoundTripper) *Builder {
	b.base = rt
	return b
}

// WithAuditSink sets the audit destination. It only takes effect when
// Audit.Enabled is set; without a sink, events go to the client logger.
func (b *Builder) WithAuditSink(sink AuditSink) *Builder {
	b.auditSink = sink
	return b
}

// WithLogger overrides the logger built from the Logging configuration.
func (b *Builder) WithLogger(logger *logging.Logger) *Builder {
	b.logger = logger
	return b
}

// WithRouteTable overrides the protected route table from the configuration.
func (b *Builder) WithRouteTable(t *route.Table) *Builder {
	b.routes = t
	return b
}

// WithMetricsEnabled toggles in-process counters.
func (b *Builder) WithMetricsEnabled(enabled bool) *Builder {
	b.config.Metrics.Enabled = enabled
	return b
}

// WithLatencyHistograms toggles the request latency histogram.
func (b *Builder) WithLatencyHistograms(enabled bool) *Builder {
	b.config.Metrics.EnableLatencyHistograms = enabled
	return b
}

// Build validates the configuration and wires the client. The client starts
// uninitialized; call [Client.Initialize] before use.
func (b *Builder) Build() (*Client, error) {
	if b.built {
		return nil, errors.New("builder already used")
	}

	cfg := cloneConfig(b.config)

	switch {
	case b.persistence == nil:
		return nil, errors.New("session persistence required")
	case b.navigator == nil:
		return nil, errors.New("navigator required")
	case b.location == nil:
		return nil, errors.New("location required")
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	// -------- ROUTES --------
	routes := b.routes
	if routes == nil {
		var err error
		if routes, err = cfg.routeTable(); err != nil {
			return nil, err
		}
	}

	// -------- LOGGING --------
	logger := b.logger
	if logger == nil {
		if cfg.Logging.Enabled {
			logger = logging.New(logging.Config{
				Level:  cfg.Logging.Level,
				Format: cfg.Logging.Format,
				Output: cfg.Logging.Output,
			}, Version)
		} else {
			logger = logging.Discard()
		}
	}

	c := &Client{
		config:    cfg,
		routes:    routes,
		navigator: b.navigator,
		location:  b.location,
		metrics:   NewMetrics(cfg.Metrics),
		logger:    logger.Component("client"),
	}
	// -------- AUDIT --------
	sink := b.auditSink
	if sink == nil {
		sink = audit.NewLogSink(logger.Component("audit").Logger)
	}
	c.audit = audit.NewDispatcher(audit.Config{
		Enabled:    cfg.Audit.Enabled,
		BufferSize: cfg.Audit.BufferSize,
		DropIfFull: cfg.Audit.DropIfFull,
	}, sink)

	// -------- SESSION STORE --------
	opts := []session.Option{session.WithLogger(logger.Component("session").Logger)}
	if cfg.Session.DiscardExpired {
		opts = append(opts, session.WithExpiryCheck(jwt.Expired))
	}
	c.store = session.NewStore(b.persistence, opts...)

	// -------- TRANSPORT --------
	base, err := url.Parse(strings.TrimRight(cfg.API.BaseURL, "/"))
	if err != nil {
		return nil, fmt.Errorf("API BaseURL: %w", err)
	}
	c.apiBase = base

	tr, err := transport.New(transport.Config{
		Base:        b.base,
		Tokens:      c.store,
		Invalidator: transport.InvalidatorFunc(c.invalidate),
		Navigator:   b.navigator,
		Location:    b.location,
		BasePath:    base.Path,
		PublicPaths: cfg.publicPaths(),
		Logger:      logger.Component("transport").Logger,
		Hooks: transport.Hooks{
			Intercepted: c.onIntercepted,
			Completed:   c.onCompleted,
		},
	})
	if err != nil {
		return nil, err
	}
	c.transport = tr
	c.http = &http.Client{Transport: tr, Timeout: cfg.API.Timeout}

	b.built = true

	return c, nil
}
