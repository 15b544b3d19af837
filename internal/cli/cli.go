// Package cli holds the fintrack subcommands.
package cli

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"strings"

	"fintrack/internal/config"
	"fintrack/internal/logger"
	"fintrack/internal/models"
	"fintrack/internal/parser"
	"fintrack/internal/session"
	"fintrack/internal/store"

	"github.com/charmbracelet/glamour"
	"github.com/google/subcommands"
)

// Commands are registered on the top-level commander by main.
var Commands = []subcommands.Command{
	&serveCmd{},
	&importCmd{},
	&exportCmd{},
	&assistCmd{},
}

var configPath = flag.String("config", "", "Path to config.yaml. Defaults to ./config.yaml when present.")

func loadConfig() (*config.Config, error) {
	cfg, err := config.Load(*configPath)
	if err != nil {
		return nil, err
	}
	logger.Init(cfg.Log.Level)
	return cfg, nil
}

func defaults(cfg *config.Config) session.Defaults {
	d := session.Defaults{Income: cfg.Categories.Income, Expense: cfg.Categories.Expense}
	if !cfg.Categories.AutoRegister {
		d.Policy = parser.FallbackOther
	}
	return d
}

// openGuest opens the device-local session id. The returned manager must
// be shut down by the caller.
func openGuest(cfg *config.Config, id string) (*session.Session, *session.Manager, error) {
	id = strings.TrimSpace(id)
	if id == "" {
		return nil, nil, errors.New("missing -session")
	}
	mgr := session.NewManager(store.Backends{LocalDir: cfg.Local.Dir}, defaults(cfg), 0)
	s, err := mgr.Get(id, models.User{ID: id, Name: "Convidado", IsGuest: true})
	if err != nil {
		mgr.Shutdown()
		return nil, nil, fmt.Errorf("open session %s: %w", id, err)
	}
	return s, mgr, nil
}

func printMarkdown(md string) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle(), glamour.WithWordWrap(80))
	if err == nil {
		var out string
		if out, err = r.Render(md); err == nil {
			fmt.Print(out)
			return
		}
	}
	fmt.Println(md)
}

func fail(format string, args ...any) subcommands.ExitStatus {
	fmt.Fprintf(os.Stderr, format+"\n", args...)
	return subcommands.ExitFailure
}

// withSession runs fn against the guest session named by id.
func withSession(ctx context.Context, id string, fn func(*config.Config, *session.Session) subcommands.ExitStatus) subcommands.ExitStatus {
	cfg, err := loadConfig()
	if err != nil {
		return fail("Error loading config: %v", err)
	}
	s, mgr, err := openGuest(cfg, id)
	if err != nil {
		return fail("Error: %v", err)
	}
	defer mgr.Shutdown()
	return fn(cfg, s)
}
