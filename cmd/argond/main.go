// ABOUTME: Entry point for the argond automation and message-distribution daemon
// ABOUTME: Wires config, store, services, bootstrap synchronizer, and the sandbox engine

package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/fatih/color"

	"github.com/2389/argon/internal/agents"
	"github.com/2389/argon/internal/auth"
	"github.com/2389/argon/internal/config"
	"github.com/2389/argon/internal/engine"
	"github.com/2389/argon/internal/messages"
	"github.com/2389/argon/internal/principal"
	"github.com/2389/argon/internal/schema"
	"github.com/2389/argon/internal/session"
	"github.com/2389/argon/internal/store"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
    __ _ _ __ __ _  ___  _ __
   / _' | '__/ _' |/ _ \| '_ \
  | (_| | | | (_| | (_) | | | |
   \__,_|_|  \__, |\___/|_| |_|
             |___/
`

// getConfigPath returns the path to the argond config file.
// Priority: ARGON_CONFIG env var > XDG_CONFIG_HOME/argon/argond.yaml > ~/.config/argon/argond.yaml
func getConfigPath() string {
	if envPath := os.Getenv("ARGON_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "argond.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "argon", "argond.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: argond <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve      Start the automation core")
		fmt.Println("  init       Create a starter config file")
		fmt.Println("  bootstrap  Create well-known principals and print the system token")
		fmt.Println("  sweep      Run a one-shot expiry sweep")
		os.Exit(1)
	}

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	case "bootstrap":
		err = runBootstrap(ctx)
	case "sweep":
		err = runSweep(ctx)
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// wired bundles the constructed services shared by the subcommands.
type wired struct {
	store    *store.SQLiteStore
	system   *principal.Principal
	service  *principal.Principal
	messages *messages.Service
	agents   *agents.Registry
	tokens   *auth.TokenService
	opener   *session.Opener
}

// wire opens the store and constructs every service from config.
func wire(ctx context.Context, cfg *config.Config) (*wired, error) {
	st, err := store.NewSQLiteStore(cfg.Database.Path)
	if err != nil {
		return nil, fmt.Errorf("opening store: %w", err)
	}

	system, service, err := st.EnsureWellKnown(ctx)
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("ensuring well-known principals: %w", err)
	}

	registry, err := schema.NewRegistry()
	if err != nil {
		st.Close()
		return nil, fmt.Errorf("building schema registry: %w", err)
	}

	msgService := messages.NewService(st, st, registry, service, cfg.Messages.DefaultTTL)
	agentRegistry := agents.NewRegistry(st, st)
	tokens := auth.NewTokenService(st, []byte(cfg.Auth.JWTSecret), cfg.Auth.TokenTTL)

	opener := &session.Opener{
		Tokens:    tokens,
		Directory: st,
		Messages:  msgService,
		Agents:    agentRegistry,
	}

	return &wired{
		store:    st,
		system:   system,
		service:  service,
		messages: msgService,
		agents:   agentRegistry,
		tokens:   tokens,
		opener:   opener,
	}, nil
}

func runServe(ctx context.Context) error {
	// Print banner
	cyan := color.New(color.FgCyan)
	cyan.Print(banner)

	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	setupLogger(cfg.Logging)

	w, err := wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer w.store.Close()

	sync := agents.NewSynchronizer(w.agents, w.system)
	if err := sync.Initialize(ctx); err != nil {
		return fmt.Errorf("bootstrap synchronization: %w", err)
	}

	eng := engine.New(w.agents, w.opener, w.system)
	if cfg.Engine.Enabled {
		if err := eng.Start(ctx); err != nil {
			return fmt.Errorf("starting engine: %w", err)
		}
		defer eng.Stop()
	}

	// Periodic expiry sweep for messages and tokens.
	go runSweepLoop(ctx, w, cfg.Messages.SweepInterval)

	slog.Info("argond running",
		"database", cfg.Database.Path,
		"engine", cfg.Engine.Enabled,
		"sweep_interval", cfg.Messages.SweepInterval,
	)

	<-ctx.Done()
	slog.Info("shutting down")
	return nil
}

func runSweepLoop(ctx context.Context, w *wired, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if _, err := w.messages.SweepExpired(ctx); err != nil {
				slog.Error("expiry sweep failed", "error", err)
			}
			if _, err := w.tokens.CleanupExpired(ctx); err != nil {
				slog.Error("token cleanup failed", "error", err)
			}
		}
	}
}

func runInit() error {
	path := getConfigPath()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config file already exists: %s", path)
	}

	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}

	starter := `database:
  path: ${HOME}/.local/share/argon/argon.db

auth:
  jwt_secret: change-me
  token_ttl: 720h

messages:
  default_ttl: 720h
  sweep_interval: 1m

engine:
  enabled: true

logging:
  level: info
  format: text
`
	if err := os.WriteFile(path, []byte(starter), 0600); err != nil {
		return fmt.Errorf("writing config file: %w", err)
	}

	fmt.Printf("Wrote starter config to %s\n", path)
	return nil
}

func runBootstrap(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	setupLogger(cfg.Logging)

	w, err := wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer w.store.Close()

	token, err := w.tokens.FindOrCreateToken(ctx, w.system)
	if err != nil {
		return fmt.Errorf("minting system token: %w", err)
	}

	fmt.Printf("system principal:  %s\n", w.system.ID)
	fmt.Printf("service principal: %s\n", w.service.ID)
	fmt.Printf("system token:      %s\n", token.Token)
	return nil
}

func runSweep(ctx context.Context) error {
	cfg, err := config.Load(getConfigPath())
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	setupLogger(cfg.Logging)

	w, err := wire(ctx, cfg)
	if err != nil {
		return err
	}
	defer w.store.Close()

	removed, err := w.messages.SweepExpired(ctx)
	if err != nil {
		return fmt.Errorf("expiry sweep: %w", err)
	}

	fmt.Printf("Removed %d expired messages\n", removed)
	return nil
}

// setupLogger configures the default slog logger from config.
func setupLogger(cfg config.Logging) {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}

	opts := &slog.HandlerOptions{Level: level}
	var handler slog.Handler
	if cfg.Format == "json" {
		handler = slog.NewJSONHandler(os.Stderr, opts)
	} else {
		handler = slog.NewTextHandler(os.Stderr, opts)
	}

	slog.SetDefault(slog.New(handler))
}
