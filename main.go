package main

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"sync"
	"syscall"
	"time"

	tea "charm.land/bubbletea/v2"
	"github.com/joho/godotenv"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/common/expfmt"
	"github.com/spf13/cobra"

	"github.com/avl-fleet/fleetctl/apiclient"
	"github.com/avl-fleet/fleetctl/services"
	"github.com/avl-fleet/fleetctl/tokenstore"
	"github.com/avl-fleet/fleetctl/tui"
)

var version = "dev"

// globalFlags are the persistent flags shared by every command.
type globalFlags struct {
	configPath string
	env        string
	baseURL    string
	profile    string
	tokenFile  string
	output     string
	logLevel   string
	quiet      bool
	metrics    bool
}

// reportedError is an error the displayer has already shown; main does not
// print it again.
type reportedError struct{ error }

func (e reportedError) Unwrap() error { return e.error }

// result is what a command hands back for printing on stdout.
type result struct {
	value   any
	summary string
}

// action is the body of one command.
type action func(ctx context.Context, s *session) (result, error)

// session is everything a command needs to talk to the fleet API.
type session struct {
	cfg    *Config
	store  *tokenstore.Store
	client *apiclient.Client
	svc    *services.Services
	d      tui.Displayer
	logger *slog.Logger
}

// isTTY reports whether stderr is a character device (interactive terminal).
// We check stderr because the TUI renders to stderr, allowing stdout to be piped.
func isTTY() bool {
	fi, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (fi.Mode() & os.ModeCharDevice) != 0
}

func main() {
	// Load .env file if exists (ignore error if not found)
	_ = godotenv.Load()

	if err := rootCmd().Execute(); err != nil {
		var reported reportedError
		if !errors.As(err, &reported) {
			fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		}
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	f := &globalFlags{}

	cmd := &cobra.Command{
		Use:   "fleetctl",
		Short: "Command-line client for the fleet management API",
		Long: `fleetctl talks to the fleet management API on behalf of a signed-in user.

Access tokens are attached to every request and refreshed automatically
when the API rejects them. When the session cannot be recovered, fleetctl
clears the stored tokens and asks you to run 'fleetctl login' again.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	pf := cmd.PersistentFlags()
	pf.StringVarP(&f.configPath, "config", "c", "", "Config file path (YAML, or FLEETCTL_CONFIG env)")
	pf.StringVar(&f.env, "env", "", "Environment: development, staging or production (or FLEET_ENV env)")
	pf.StringVar(&f.baseURL, "base-url", "", "API base URL, overrides --env (or FLEET_API_URL env)")
	pf.StringVar(&f.profile, "profile", "", "Token profile (or FLEET_PROFILE env)")
	pf.StringVar(&f.tokenFile, "token-file", "", "Token storage file (or FLEET_TOKEN_FILE env)")
	pf.StringVarP(&f.output, "output", "o", formatTable, "Output format: table, json, yaml")
	pf.StringVar(&f.logLevel, "log-level", "warn", "Log level (debug, info, warn, error)")
	pf.BoolVarP(&f.quiet, "quiet", "q", false, "Suppress progress output")
	pf.BoolVar(&f.metrics, "metrics", false, "Print client metrics to stderr when the command finishes")

	cmd.AddCommand(
		loginCmd(f),
		logoutCmd(f),
		statusCmd(f),
		usersCmd(f),
		companiesCmd(f),
		vehiclesCmd(f),
		&cobra.Command{
			Use:   "version",
			Short: "Print version information",
			Run: func(cmd *cobra.Command, _ []string) {
				fmt.Fprintf(cmd.OutOrStdout(), "fleetctl version %s\n", version)
			},
		},
	)

	return cmd
}

// execute runs act with a session whose expiry is reported to the user.
func execute(cmd *cobra.Command, f *globalFlags, act action) error {
	return runAction(cmd, f, act, true)
}

// executeAnonymous runs act without reporting session expiry; used by login,
// where a 401 means bad credentials.
func executeAnonymous(cmd *cobra.Command, f *globalFlags, act action) error {
	return runAction(cmd, f, act, false)
}

func runAction(cmd *cobra.Command, f *globalFlags, act action, watchSession bool) error {
	if err := validFormat(f.output); err != nil {
		return err
	}

	cfg, err := LoadConfig(f.configPath)
	if err != nil {
		return err
	}
	cfg.applyFlags(f)
	if err := cfg.resolve(); err != nil {
		return err
	}
	if !f.quiet {
		warnInsecure(cmd.ErrOrStderr(), cfg.BaseURL)
	}

	logger := newLogger(cmd.ErrOrStderr(), f.logLevel)

	var reg *prometheus.Registry
	if f.metrics {
		reg = prometheus.NewRegistry()
	}

	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	var res result
	err = withDisplayer(cmd.ErrOrStderr(), f.quiet, func(d tui.Displayer) error {
		d.Banner(cfg.Env, cfg.BaseURL)

		s, err := connect(cfg, d, logger, reg)
		if err != nil {
			d.Fatal(err)
			return err
		}
		if watchSession {
			unsubscribe := s.client.OnSessionExpired(func(ev apiclient.SessionEvent) {
				d.SessionExpired(ev.Reason.String())
			})
			defer unsubscribe()
		}

		res, err = act(ctx, s)
		if err != nil {
			d.Fatal(err)
			return err
		}
		d.Done(res.summary)
		return nil
	})

	if reg != nil {
		writeMetrics(cmd.ErrOrStderr(), reg)
	}
	if err != nil {
		if f.quiet {
			return err
		}
		return reportedError{err}
	}
	if res.value == nil {
		return nil
	}
	return render(cmd.OutOrStdout(), f.output, res.value)
}

// withDisplayer picks the progress output for this terminal and runs fn
// with it. Results are printed by the caller after the TUI has exited.
func withDisplayer(w io.Writer, quiet bool, fn func(tui.Displayer) error) error {
	switch {
	case quiet:
		return fn(tui.NoopDisplayer{})
	case !isTTY():
		return fn(tui.NewPlainDisplayer(w))
	}

	// Run TUI program on stderr so stdout pipes are not corrupted
	m := tui.NewModel()
	// WithInput(nil): disable stdin/keyboard input so BubbleTea skips terminal
	// capability queries. Ctrl+C is handled by signal.NotifyContext.
	p := tea.NewProgram(m, tea.WithOutput(os.Stderr), tea.WithInput(nil))

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		if _, err := p.Run(); err != nil {
			fmt.Fprintf(os.Stderr, "TUI error: %v\n", err)
		}
	}()

	err := fn(tui.NewProgramDisplayer(p))
	p.Quit() // let BubbleTea drain terminal query responses before exiting
	wg.Wait()
	return err
}

// connect builds the token store, API client and services for one command.
func connect(cfg *Config, d tui.Displayer, logger *slog.Logger, reg *prometheus.Registry) (*session, error) {
	store := tokenstore.NewFile(cfg.TokenFile, cfg.Profile, tokenstore.WithLogger(logger))

	opts := []apiclient.Option{
		apiclient.WithHTTPClient(newHTTPClient()),
		apiclient.WithTokenStore(store),
		apiclient.WithLogger(logger),
		apiclient.WithHooks(apiclient.Hooks{
			OnRetry: func(ev apiclient.RetryEvent) {
				d.Retrying(ev.Attempt, ev.Delay, ev.Err)
			},
			OnRefreshStart: d.Refreshing,
			OnRefresh: func(ev apiclient.RefreshEvent) {
				if ev.Err != nil {
					d.RefreshFailed(ev.Err)
					return
				}
				d.RefreshOK()
			},
		}),
	}
	if reg != nil {
		opts = append(opts, apiclient.WithMetrics(reg))
	}

	client, err := apiclient.New(cfg.clientConfig(), opts...)
	if err != nil {
		return nil, err
	}

	return &session{
		cfg:    cfg,
		store:  store,
		client: client,
		svc:    services.New(client),
		d:      d,
		logger: logger,
	}, nil
}

func newHTTPClient() *http.Client {
	return &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyFromEnvironment,
			TLSClientConfig: &tls.Config{
				MinVersion: tls.VersionTLS12,
			},
			MaxIdleConns:        10,
			IdleConnTimeout:     90 * time.Second,
			TLSHandshakeTimeout: 10 * time.Second,
		},
	}
}

func newLogger(w io.Writer, level string) *slog.Logger {
	lvl := slog.LevelWarn
	switch strings.ToLower(level) {
	case "debug":
		lvl = slog.LevelDebug
	case "info":
		lvl = slog.LevelInfo
	case "error":
		lvl = slog.LevelError
	}
	return slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: lvl}))
}

// writeMetrics prints everything g gathers in the Prometheus text format.
func writeMetrics(w io.Writer, g prometheus.Gatherer) {
	families, err := g.Gather()
	if err != nil {
		fmt.Fprintf(w, "Warning: failed to gather metrics: %v\n", err)
		return
	}
	for _, mf := range families {
		if _, err := expfmt.MetricFamilyToText(w, mf); err != nil {
			fmt.Fprintf(w, "Warning: failed to write metric %s: %v\n", mf.GetName(), err)
			return
		}
	}
}
