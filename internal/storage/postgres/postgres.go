// Package postgres implements the storage.Backend interface on PostgreSQL.
// When the server cannot be reached the database manager falls back to an
// in-memory SQLite database that is dumped to disk on close.
package postgres

import (
	"fmt"

	"github.com/OCAP2/brakesim/internal/config"
	"github.com/OCAP2/brakesim/internal/database"
	"github.com/OCAP2/brakesim/internal/logging"
	gormstorage "github.com/OCAP2/brakesim/internal/storage/gorm"

	"github.com/rs/zerolog"
)

// Dependencies holds all dependencies for the Postgres storage backend.
type Dependencies struct {
	DB         config.DBConfig
	LogManager *logging.SlogManager
	Logger     zerolog.Logger
	// FallbackPath receives the local SQLite dump when Postgres is down.
	FallbackPath string
}

// Backend wraps the GORM backend with the database manager's connection.
type Backend struct {
	*gormstorage.Backend
	deps    Dependencies
	manager *database.Manager
}

// New creates a new Postgres storage backend. No connection is made
// until Init.
func New(deps Dependencies) *Backend {
	return &Backend{deps: deps}
}

// Init connects, migrates and starts the DB writer goroutine.
func (b *Backend) Init() error {
	b.manager = database.NewManager(b.deps.Logger, b.deps.DB, b.deps.FallbackPath)
	if err := b.manager.Connect(); err != nil {
		return fmt.Errorf("failed to connect to postgres: %w", err)
	}
	if err := b.manager.Setup(); err != nil {
		return fmt.Errorf("failed to setup DB: %w", err)
	}

	b.Backend = gormstorage.New(gormstorage.Dependencies{
		DB:         b.manager.DB,
		LogManager: b.deps.LogManager,
	})
	return b.Backend.Init()
}

// IsLocal reports whether the backend fell back to SQLite.
func (b *Backend) IsLocal() bool {
	return b.manager != nil && b.manager.ShouldSaveLocal
}

// Close writes queued events, dumps a local fallback and closes the
// connection.
func (b *Backend) Close() error {
	if b.Backend == nil {
		return nil
	}
	if err := b.Backend.Close(); err != nil {
		return err
	}
	return b.manager.Close()
}
