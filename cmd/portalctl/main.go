package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"time"

	"github.com/joho/godotenv"
	portalauth "github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/internal/apitest"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/internal/logging"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/metrics/export/prometheus"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/role"
	"github.com/sakthiviswa/Upper-Limb-Impairment-Monitoring-Platform/route"
)

const usage = `usage: portalctl [flags] <command> [args]

commands:
  login -email E -password P
  register -name N -email E -password P [-confirm P] -role R
  logout
  whoami
  landing
  dashboard [-role R]
  authorize <path>

flags:
`

func main() {
	var (
		configPath = flag.String("config", "", "YAML config file; defaults and env apply when empty")
		envFile    = flag.String("env", ".env", "dotenv file loaded before the config; missing files are ignored")
		backend    = flag.String("backend", "", "session backend override: memory, sqlite or redis")
		mock       = flag.Bool("mock", false, "serve the API from an in-process fake backend")
		verbose    = flag.Bool("v", false, "debug logging to stderr")
		dumpAudit  = flag.Bool("audit", false, "write audit events to stderr as JSON lines")
		dumpMetric = flag.Bool("metrics", false, "print Prometheus metrics to stderr on exit")
	)
	flag.Usage = func() {
		fmt.Fprint(os.Stderr, usage)
		flag.PrintDefaults()
	}
	flag.Parse()

	if flag.NArg() == 0 {
		flag.Usage()
		os.Exit(2)
	}

	if err := godotenv.Load(*envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
		fmt.Fprintf(os.Stderr, "loading %s: %v\n", *envFile, err)
		os.Exit(1)
	}

	cfg, err := portalauth.LoadConfig(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%v\n", err)
		os.Exit(1)
	}
	switch {
	case *backend != "":
		cfg.Session.Backend = strings.ToLower(*backend)
	case cfg.Session.Backend == portalauth.BackendMemory && os.Getenv(portalauth.EnvSessionBackend) == "":
		// A CLI session must outlive the process.
		cfg.Session.Backend = portalauth.BackendSQLite
	}
	if *verbose {
		cfg.Logging.Enabled = true
		cfg.Logging.Level = "debug"
		cfg.Logging.Format = "text"
	}
	if *dumpAudit {
		cfg.Audit.Enabled = true
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	code := run(ctx, cfg, *mock, *dumpAudit, *dumpMetric, flag.Args())
	stop()
	os.Exit(code)
}

func run(ctx context.Context, cfg portalauth.Config, mock, dumpAudit, dumpMetrics bool, args []string) int {
	var logger *logging.Logger
	if cfg.Logging.Enabled {
		logger = logging.New(logging.Config{
			Level:  cfg.Logging.Level,
			Format: cfg.Logging.Format,
			Output: cfg.Logging.Output,
		}, portalauth.Version)
	} else {
		logger = logging.Discard()
	}

	if mock {
		api, err := apitest.NewStarted(apitest.Options{Logger: logger.Component("apitest").Logger})
		if err != nil {
			fmt.Fprintf(os.Stderr, "starting fake API: %v\n", err)
			return 1
		}
		defer api.Close()
		cfg.API.BaseURL = api.BaseURL()
		fmt.Fprintf(os.Stderr, "using fake API at %s (demo admin %s)\n", cfg.API.BaseURL, apitest.DemoAdminEmail)
	}

	persistence, closer, err := portalauth.OpenPersistence(ctx, cfg.Session)
	if err != nil {
		fmt.Fprintf(os.Stderr, "opening session storage: %v\n", err)
		return 1
	}
	defer closer.Close()

	nav := route.NewRecorder(route.Root)
	b := portalauth.New().
		WithConfig(cfg).
		WithPersistence(persistence).
		WithNavigator(nav).
		WithLocation(nav).
		WithLogger(logger)
	if dumpAudit {
		b = b.WithAuditSink(portalauth.NewJSONWriterSink(os.Stderr))
	}
	client, err := b.Build()
	if err != nil {
		fmt.Fprintf(os.Stderr, "building client: %v\n", err)
		return 1
	}
	defer client.Close()

	if dumpMetrics {
		defer func() {
			fmt.Fprint(os.Stderr, prometheus.NewPrometheusExporter(client).Render())
		}()
	}

	state := client.Initialize(ctx)
	logger.Debug("session initialized", "state", state.String())

	cmd, rest := args[0], args[1:]
	switch cmd {
	case "login":
		err = cmdLogin(ctx, client, rest)
	case "register":
		err = cmdRegister(ctx, client, rest)
	case "logout":
		err = client.Logout(ctx)
		if err == nil {
			fmt.Println("logged out")
		}
	case "whoami":
		err = cmdWhoami(ctx, client)
	case "landing":
		fmt.Println(client.Landing())
	case "dashboard":
		err = cmdDashboard(ctx, client, rest)
	case "authorize":
		err = cmdAuthorize(client, nav, rest)
	default:
		fmt.Fprintf(os.Stderr, "unknown command %q\n", cmd)
		flag.Usage()
		return 2
	}

	printIntents(nav)
	if err != nil {
		fmt.Fprintf(os.Stderr, "%s: %v\n", cmd, err)
		return exitCode(err)
	}
	return 0
}

func cmdLogin(ctx context.Context, client *portalauth.Client, args []string) error {
	fs := flag.NewFlagSet("login", flag.ContinueOnError)
	email := fs.String("email", os.Getenv("PORTAL_EMAIL"), "account email")
	password := fs.String("password", os.Getenv("PORTAL_PASSWORD"), "account password")
	if err := fs.Parse(args); err != nil {
		return err
	}

	start := time.Now()
	user, err := client.Login(ctx, *email, *password)
	if err != nil {
		return err
	}
	fmt.Printf("logged in as %s <%s> (%s) in %s\n", user.Name, user.Email, user.Role, time.Since(start).Round(time.Millisecond))
	fmt.Printf("landing: %s\n", client.Landing())
	return nil
}

func cmdRegister(ctx context.Context, client *portalauth.Client, args []string) error {
	fs := flag.NewFlagSet("register", flag.ContinueOnError)
	var req portalauth.RegisterRequest
	var r string
	fs.StringVar(&req.Name, "name", "", "full name")
	fs.StringVar(&req.Email, "email", "", "account email")
	fs.StringVar(&req.Password, "password", "", "password, at least 6 characters")
	fs.StringVar(&req.ConfirmPassword, "confirm", "", "password confirmation")
	fs.StringVar(&r, "role", string(role.Patient), "patient, doctor or admin")
	if err := fs.Parse(args); err != nil {
		return err
	}
	req.Role = role.Role(strings.ToLower(strings.TrimSpace(r)))

	user, err := client.Register(ctx, req)
	if err != nil {
		return err
	}
	fmt.Printf("registered %s <%s> as %s (id %d)\n", user.Name, user.Email, user.Role, user.ID)
	fmt.Printf("landing: %s\n", client.Landing())
	return nil
}

func cmdWhoami(ctx context.Context, client *portalauth.Client) error {
	if _, ok := client.Session(); !ok {
		fmt.Println("anonymous")
		return nil
	}
	user, err := client.Profile(ctx)
	if err != nil {
		return err
	}
	return printJSON(user)
}

func cmdDashboard(ctx context.Context, client *portalauth.Client, args []string) error {
	fs := flag.NewFlagSet("dashboard", flag.ContinueOnError)
	r := fs.String("role", "", "dashboard to fetch; defaults to the session role")
	if err := fs.Parse(args); err != nil {
		return err
	}

	target := role.Role(strings.ToLower(*r))
	if target == "" {
		sess, ok := client.Session()
		if !ok {
			return portalauth.ErrSessionExpired
		}
		target = sess.Role()
	}

	// Guard the client view first so a role mismatch never reaches the API.
	if d := client.Guard(route.RolePath(target)); !d.Allowed() {
		return fmt.Errorf("%w: %s", portalauth.ErrForbidden, d.Kind)
	}
	resp, err := client.Dashboard(ctx, target)
	if err != nil {
		return err
	}
	return printJSON(resp)
}

func cmdAuthorize(client *portalauth.Client, nav *route.Recorder, args []string) error {
	if len(args) != 1 {
		return errors.New("authorize takes exactly one path")
	}
	path := route.Clean(args[0])
	nav.Visit(path)

	d := client.Guard(path)
	if d.Allowed() {
		fmt.Printf("%s: allow\n", path)
		return nil
	}
	fmt.Printf("%s: %s -> %s\n", path, d.Kind, d.Path)
	return nil
}

func printIntents(nav *route.Recorder) {
	for _, in := range nav.Intents() {
		fmt.Fprintf(os.Stderr, "navigate %s (%s, replace=%t)\n", in.Path, in.Reason, in.Replace)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func exitCode(err error) int {
	switch {
	case errors.Is(err, flag.ErrHelp):
		return 0
	case errors.Is(err, portalauth.ErrValidation):
		return 2
	case errors.Is(err, portalauth.ErrInvalidCredentials),
		errors.Is(err, portalauth.ErrSessionExpired),
		errors.Is(err, portalauth.ErrForbidden):
		return 3
	case errors.Is(err, portalauth.ErrNetwork),
		errors.Is(err, portalauth.ErrServer):
		return 4
	default:
		return 1
	}
}
