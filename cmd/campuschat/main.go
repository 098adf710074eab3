// campuschat is a terminal client for the campus chat service. It keeps a
// realtime session open while the user is signed in and shows it in a TUI,
// or logs session notifications in --headless mode.
//
// Sign in once with the Google authorization code flow:
//
//	campuschat --auth-url       # prints the consent URL
//	campuschat --login CODE     # exchanges the code, saves the tokens
//	campuschat                  # opens the chat
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/spf13/pflag"

	"github.com/campuschat/client/internal/api"
	"github.com/campuschat/client/internal/auth"
	"github.com/campuschat/client/internal/config"
	"github.com/campuschat/client/internal/messaging"
	"github.com/campuschat/client/internal/metrics"
	"github.com/campuschat/client/internal/tokenstore"
	"github.com/campuschat/client/internal/tui"
	"github.com/campuschat/client/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "error: %v\n", err)
		os.Exit(1)
	}
}

type options struct {
	login    string
	authURL  bool
	logout   bool
	status   bool
	headless bool
	watch    bool
}

func run() error {
	cfg, err := config.Load()
	if err != nil {
		return err
	}

	var opts options
	flagSet := pflag.NewFlagSet("campuschat", pflag.ContinueOnError)
	flagSet.StringVar(&opts.login, "login", "", "exchange a Google authorization `code` for a session and exit")
	flagSet.BoolVar(&opts.authURL, "auth-url", false, "print the Google sign-in URL and exit")
	flagSet.BoolVar(&opts.logout, "logout", false, "forget the saved session and exit")
	flagSet.BoolVar(&opts.status, "status", false, "print account, access window and active chat, then exit")
	flagSet.BoolVar(&opts.headless, "headless", false, "keep the session open and log notifications instead of showing the TUI")
	flagSet.BoolVar(&opts.watch, "watch", false, "print notifications published on NATS by another campuschat process")
	flagSet.StringVar(&cfg.APIURL, "api-url", cfg.APIURL, "backend base URL")
	flagSet.StringVar(&cfg.Profile, "profile", cfg.Profile, "account profile; each profile keeps its own tokens")
	flagSet.StringVar(&cfg.MetricsAddr, "metrics-addr", cfg.MetricsAddr, "serve Prometheus metrics on this address")
	flagSet.StringVar(&cfg.LogFile, "log-file", cfg.LogFile, "write JSON logs to this file")
	flagSet.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "debug, info, warn or error")
	flagSet.BoolP("help", "h", false, "show help")

	if err := flagSet.Parse(os.Args[1:]); err != nil {
		if errors.Is(err, pflag.ErrHelp) {
			printHelp(flagSet)
			return nil
		}
		return err
	}
	if help, _ := flagSet.GetBool("help"); help {
		printHelp(flagSet)
		return nil
	}
	if args := flagSet.Args(); len(args) > 0 {
		return fmt.Errorf("unexpected argument: %s", args[0])
	}
	if err := cfg.Validate(); err != nil {
		return err
	}

	interactive := !opts.headless && !opts.watch && !opts.status &&
		!opts.authURL && !opts.logout && opts.login == ""
	logger, tuiLogs, closeLog, err := newLogger(cfg, interactive)
	if err != nil {
		return err
	}
	defer closeLog()
	slog.SetDefault(logger)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	defer signal.Stop(sigCh)
	go func() {
		select {
		case sig := <-sigCh:
			logger.Info("received signal, shutting down", "signal", sig.String())
			cancel()
		case <-ctx.Done():
		}
	}()

	apiClient, err := api.NewClient(cfg.API(logger))
	if err != nil {
		return err
	}
	if opts.authURL {
		u, err := apiClient.AuthURL(ctx)
		if err != nil {
			return err
		}
		fmt.Println(u)
		return nil
	}

	store, closeStore, err := openStore(cfg)
	if err != nil {
		return err
	}
	defer closeStore()

	provider := auth.NewProvider(apiClient, store, auth.Options{Logger: logger})

	switch {
	case opts.logout:
		if err := provider.Logout(ctx); err != nil {
			return err
		}
		fmt.Println("Signed out.")
		return nil
	case opts.login != "":
		if err := provider.Login(ctx, opts.login); err != nil {
			return err
		}
		fmt.Printf("Signed in as %s.\n", displayName(provider.User()))
		return nil
	}

	if err := provider.Restore(ctx); err != nil {
		return restoreError(err)
	}
	if !provider.IsAuthenticated() {
		return errors.New("not signed in: run campuschat --auth-url, then campuschat --login CODE")
	}

	if opts.status {
		return printStatus(ctx, os.Stdout, apiClient, provider)
	}
	if opts.watch {
		return watch(ctx, cfg, provider.UserID(), logger, os.Stdout)
	}

	return runSession(ctx, cfg, opts, logger, tuiLogs, apiClient, provider)
}

// runSession keeps the realtime session bound to the sign-in state and
// runs the TUI or the headless loop until ctx ends.
func runSession(ctx context.Context, cfg config.Config, opts options, logger *slog.Logger,
	tuiLogs *tui.LogHandler, apiClient *api.Client, provider *auth.Provider) error {

	if cfg.MetricsAddr != "" {
		srv := &http.Server{Addr: cfg.MetricsAddr, Handler: metricsMux(), ReadHeaderTimeout: 5 * time.Second}
		go func() {
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logger.Error("metrics server failed", "addr", cfg.MetricsAddr, "err", err)
			}
		}()
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
			defer cancel()
			_ = srv.Shutdown(shutdownCtx)
		}()
		logger.Info("serving metrics", "addr", cfg.MetricsAddr)
	}

	resume := newResumer(logger)
	sinks := []ws.Sink{resume}

	if natsConfig, ok := cfg.NATS(); ok {
		nc, err := messaging.NewNATSClient(natsConfig, logger)
		if err != nil {
			// Fan-out is optional; the session works without it.
			logger.Warn("notification fan-out disabled", "err", err)
		} else {
			defer nc.Close()
			sinks = append(sinks, messaging.NewNATSPublisher(nc, provider.UserID, logger))
		}
	}

	client := ws.NewClient(cfg.Client(), provider, ws.Options{Logger: logger, Sinks: sinks})
	resume.bind(client)
	defer client.Disconnect()

	sessionCtx, stop := context.WithCancel(ctx)
	defer stop()
	go provider.Run(sessionCtx, cfg.ValidateInterval)
	go auth.Bind(sessionCtx, provider, client)
	go resume.lookup(sessionCtx, apiClient, provider.AccessToken())

	if opts.headless {
		runHeadless(sessionCtx, client, logger)
		return nil
	}
	return tui.Run(sessionCtx, client, tuiLogs)
}

func metricsMux() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("/metrics", metrics.Handler())
	return mux
}

// openStore returns the configured token store and its close function.
func openStore(cfg config.Config) (tokenstore.Store, func(), error) {
	switch cfg.TokenStore {
	case config.StoreRedis:
		s, err := tokenstore.NewRedis(cfg.Redis())
		if err != nil {
			return nil, nil, err
		}
		return s, func() { _ = s.Close() }, nil
	default:
		path, err := cfg.TokenPath()
		if err != nil {
			return nil, nil, err
		}
		return tokenstore.NewFile(path), func() {}, nil
	}
}

// newLogger builds the process logger. The TUI owns the terminal, so in
// interactive mode records go to --log-file, or to the status bar when no
// file is given.
func newLogger(cfg config.Config, interactive bool) (*slog.Logger, *tui.LogHandler, func(), error) {
	level, err := config.ParseLevel(cfg.LogLevel)
	if err != nil {
		return nil, nil, nil, err
	}

	if cfg.LogFile != "" {
		f, err := os.OpenFile(cfg.LogFile, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o600)
		if err != nil {
			return nil, nil, nil, fmt.Errorf("open log file: %w", err)
		}
		h := slog.NewJSONHandler(f, &slog.HandlerOptions{Level: level})
		return slog.New(h), nil, func() { _ = f.Close() }, nil
	}

	if interactive {
		// Only problems are worth interrupting the status bar for.
		h := tui.NewLogHandler(max(level, slog.LevelWarn))
		return slog.New(h), h, func() {}, nil
	}

	h := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	return slog.New(h), nil, func() {}, nil
}

// restoreError turns a failed session restore into a message for the user.
func restoreError(err error) error {
	switch {
	case errors.Is(err, auth.ErrInvalid):
		return errors.New("session expired, sign in again with --auth-url and --login")
	case api.Temporary(err):
		return fmt.Errorf("cannot reach the backend: %w", err)
	default:
		return fmt.Errorf("session check failed: %w", err)
	}
}

func displayName(u *api.User) string {
	if u == nil {
		return "unknown user"
	}
	if u.Email != "" {
		return u.Email
	}
	return "user " + u.ID.String()
}

func printHelp(flagSet *pflag.FlagSet) {
	fmt.Fprintf(os.Stderr, `campuschat - anonymous chat with students from your campus.

Usage:
  campuschat [flags]

Sign in first with --auth-url and --login. Settings can also be given as
CAMPUSCHAT_* environment variables (CAMPUSCHAT_API_URL, CAMPUSCHAT_PROFILE,
CAMPUSCHAT_TOKEN_STORE, CAMPUSCHAT_NATS_URL, ...).

Flags:
%s`, flagSet.FlagUsages())
}
