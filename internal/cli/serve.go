package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"fintrack/internal/ai"
	"fintrack/internal/chat"
	"fintrack/internal/config"
	"fintrack/internal/database"
	"fintrack/internal/logger"
	"fintrack/internal/router"
	"fintrack/internal/session"
	"fintrack/internal/store"
	"fintrack/internal/task"

	"github.com/google/subcommands"
)

type serveCmd struct {
	addr string
}

func (*serveCmd) Name() string     { return "serve" }
func (*serveCmd) Synopsis() string { return "run the HTTP API" }
func (*serveCmd) Usage() string {
	return `fintrack serve [-addr host:port]

  Serves the /api routes until interrupted. AI scans and chat are enabled
  when ai.api_key or GEMINI_API_KEY is set.
`
}

func (c *serveCmd) SetFlags(f *flag.FlagSet) {
	f.StringVar(&c.addr, "addr", "", "Listen address. Defaults to server.address:server.port.")
}

// aiKey returns the configured Gemini key, or the environment one.
func aiKey(cfg *config.Config) string {
	if cfg.AI.APIKey != "" {
		return cfg.AI.APIKey
	}
	return os.Getenv("GEMINI_API_KEY")
}

func newAI(ctx context.Context, cfg *config.Config) (*ai.Gemini, *chat.Advisor, error) {
	client, err := ai.NewClient(ctx, aiKey(cfg))
	if err != nil {
		return nil, nil, err
	}
	timeout := time.Duration(cfg.AI.TimeoutSec) * time.Second
	ex := ai.NewGemini(client.Models, ai.Options{
		Model:         cfg.AI.Model,
		MaxConcurrent: cfg.AI.MaxConcurrent,
		Timeout:       timeout,
	})
	return ex, chat.NewAdvisor(client.Models, cfg.AI.Model, timeout), nil
}

func (c *serveCmd) Execute(ctx context.Context, _ *flag.FlagSet, _ ...interface{}) subcommands.ExitStatus {
	cfg, err := loadConfig()
	if err != nil {
		return fail("Error loading config: %v", err)
	}
	log := logger.L()

	db, err := database.Init(cfg.Database)
	if err != nil {
		return fail("Error opening database: %v", err)
	}
	if err := database.AutoMigrate(db); err != nil {
		return fail("Error migrating database: %v", err)
	}
	if err := os.MkdirAll(cfg.Backup.Dir, 0o755); err != nil {
		return fail("Error creating backup dir: %v", err)
	}

	ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
	defer stop()

	idle := time.Duration(cfg.Session.IdleMinutes) * time.Minute
	sessions := session.NewManager(store.Backends{DB: db, Hub: store.NewHub(), LocalDir: cfg.Local.Dir}, defaults(cfg), idle)
	tasks := task.NewManager()
	deps := router.Deps{Sessions: sessions, Tasks: tasks, Base: ctx}

	if aiKey(cfg) != "" {
		ex, adv, err := newAI(ctx, cfg)
		if err != nil {
			return fail("Error initializing Gemini's client: %v", err)
		}
		deps.Extractor, deps.Advisor = ex, adv
	} else {
		log.Warn().Msg("ai_disabled")
	}

	go sessions.Run(ctx, time.Minute)
	go tasks.Run(ctx, time.Minute, time.Duration(cfg.Session.TaskRetentionMin)*time.Minute)

	addr := c.addr
	if addr == "" {
		addr = fmt.Sprintf("%s:%d", cfg.Server.Address, cfg.Server.Port)
	}
	srv := &http.Server{
		Addr:              addr,
		Handler:           router.SetupRouter(cfg, db, deps),
		ReadHeaderTimeout: 10 * time.Second,
		// streams end when ctx does
		BaseContext: func(net.Listener) context.Context { return ctx },
	}

	errc := make(chan error, 1)
	go func() {
		log.Info().Str("addr", addr).Msg("server_listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errc <- err
		}
		close(errc)
	}()

	status := subcommands.ExitSuccess
	select {
	case <-ctx.Done():
	case err := <-errc:
		if err != nil {
			log.Error().Err(err).Msg("server_failed")
			status = subcommands.ExitFailure
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("server_shutdown")
	}
	if err := tasks.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("task_shutdown")
	}
	sessions.Shutdown()
	log.Info().Msg("server_stopped")
	return status
}
