// Package app wires the workspace pieces together: database, migrations,
// key-value medium, config, and the hydrated store.
package app

import (
	"database/sql"
	"fmt"

	"wmsforge/internal/config"
	"wmsforge/internal/db"
	"wmsforge/internal/events"
	"wmsforge/internal/migrate"
	"wmsforge/internal/storage"
	"wmsforge/internal/store"
	"wmsforge/internal/suggest"
)

// Context is a fully resolved workspace: an open database, a hydrated store
// with audit capture, the workspace config, and a catalog-backed suggester.
type Context struct {
	DB        *sql.DB
	Store     *store.Store
	Config    *config.Config
	Suggester *suggest.Canned
	Events    *events.Writer
}

// Resolve opens (creating if needed) the workspace database, runs migrations,
// loads config (falling back to built-in defaults), and hydrates the store.
// actorID overrides the config author id when non-empty.
func Resolve(workspace, actorID string) (*Context, error) {
	conn, err := db.Open(db.Config{Workspace: workspace})
	if err != nil {
		return nil, fmt.Errorf("open workspace db: %w", err)
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
	if actorID == "" {
		actorID = cfg.Author.ID
	}

	w := &events.Writer{DB: conn}
	s := store.New(storage.NewSQLite(conn))
	s.Events = w
	s.ActorID = actorID
	if err := s.Load(); err != nil {
		conn.Close()
		return nil, fmt.Errorf("hydrate store: %w", err)
	}
	return &Context{
		DB:        conn,
		Store:     s,
		Config:    cfg,
		Suggester: suggest.FromConfig(cfg),
		Events:    w,
	}, nil
}

// Close releases the underlying database.
func (c *Context) Close() error {
	if c == nil || c.DB == nil {
		return nil
	}
	return c.DB.Close()
}
