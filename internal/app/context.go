package app

import (
	"database/sql"
	"fmt"
	"log/slog"

	"jobtrail/internal/config"
	"jobtrail/internal/db"
	"jobtrail/internal/engine"
	"jobtrail/internal/logging"
	"jobtrail/internal/migrate"
	"jobtrail/internal/notify"
)

// Context bundles the opened workspace: database, config, logger and a
// fully wired engine. Shared by the CLI and the server.
type Context struct {
	DB     *sql.DB
	Config *config.Config
	Log    *slog.Logger
	Engine engine.Engine
}

// Load opens the workspace database, applies migrations, loads the
// optional jobtrail.yml and wires the engine with the configured sink.
func Load(workspace string) (*Context, error) {
	if _, err := db.EnsureWorkspace(workspace); err != nil {
		return nil, err
	}
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, err
	}
	if err := migrate.Migrate(conn); err != nil {
		conn.Close()
		return nil, fmt.Errorf("migrate: %w", err)
	}
	cfg, err := config.LoadOptional(workspace)
	if err != nil {
		conn.Close()
		return nil, err
	}
	log := logging.New(cfg.Logging.Level)

	e := engine.New(conn, cfg)
	e.Log = log
	e.Sink = sinkFor(cfg, log)

	return &Context{DB: conn, Config: cfg, Log: log, Engine: e}, nil
}

func (c *Context) Close() error {
	return c.DB.Close()
}

func sinkFor(cfg *config.Config, log *slog.Logger) engine.Sink {
	hook := cfg.Notifications.Webhook
	enabled := hook.Enabled == nil || *hook.Enabled
	if enabled && hook.URL != "" {
		return notify.NewWebhookSink(hook)
	}
	return notify.LogSink{Log: log}
}
