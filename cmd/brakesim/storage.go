package main

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"slices"

	"github.com/OCAP2/brakesim/internal/config"
	"github.com/OCAP2/brakesim/internal/database"
	"github.com/OCAP2/brakesim/internal/storage"
	"github.com/OCAP2/brakesim/internal/storage/memory"
	pgstorage "github.com/OCAP2/brakesim/internal/storage/postgres"
	sqlitestorage "github.com/OCAP2/brakesim/internal/storage/sqlite"
	"github.com/OCAP2/brakesim/pkg/core"
)

// readerBackend is a backend that can also read back what it stored.
type readerBackend interface {
	storage.Backend
	storage.Reader
}

func createStorageBackend(storageCfg config.StorageConfig) (readerBackend, error) {
	switch storageCfg.Type {
	case "postgres":
		Logger.Info("Postgres storage backend initialized")
		return pgstorage.New(pgstorage.Dependencies{
			DB:           config.GetDBConfig(),
			LogManager:   SlogManager,
			Logger:       ZLogger,
			FallbackPath: runDBPath(storageCfg.SQLite.DumpDir),
		}), nil

	case "sqlite":
		if err := os.MkdirAll(storageCfg.SQLite.DumpDir, 0755); err != nil {
			return nil, fmt.Errorf("failed to create dump directory: %w", err)
		}
		path := runDBPath(storageCfg.SQLite.DumpDir)
		backend, err := sqlitestorage.New(sqlitestorage.Config{
			DumpInterval: storageCfg.SQLite.DumpInterval,
			DumpPath:     path,
		}, SlogManager)
		if err != nil {
			return nil, fmt.Errorf("failed to create SQLite backend: %w", err)
		}
		Logger.Info("SQLite storage backend initialized", "path", path)
		return backend, nil

	case "memory", "":
		Logger.Info("Memory storage backend initialized", "dir", storageCfg.Memory.OutputDir)
		return memory.New(storageCfg.Memory), nil

	default:
		return nil, fmt.Errorf("unknown storage type %q", storageCfg.Type)
	}
}

// runDBPath names the SQLite file of this run.
func runDBPath(dir string) string {
	if dir == "" {
		return ""
	}
	return filepath.Join(dir, fmt.Sprintf("%s_%s.db", AppName, RunStartTime.UTC().Format("20060102_150405")))
}

// openReader opens everything stored by earlier runs. The returned close
// function releases it.
func openReader(storageCfg config.StorageConfig) (storage.Reader, func() error, error) {
	switch storageCfg.Type {
	case "sqlite":
		paths, err := database.GetBackupDBPaths(storageCfg.SQLite.DumpDir)
		if err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, nil, fmt.Errorf("failed to list SQLite dumps: %w", err)
		}
		var readers multiReader
		var backends []*sqlitestorage.Backend
		closeAll := func() error {
			var errs []error
			for _, b := range backends {
				errs = append(errs, b.Close())
			}
			return errors.Join(errs...)
		}
		for _, path := range paths {
			b, err := sqlitestorage.Open(path, SlogManager)
			if err == nil {
				err = b.Init()
			}
			if err != nil {
				closeAll()
				return nil, nil, err
			}
			backends = append(backends, b)
			readers = append(readers, b)
		}
		Logger.Debug("Opened SQLite dumps", "count", len(paths))
		return readers, closeAll, nil

	case "postgres":
		b := pgstorage.New(pgstorage.Dependencies{
			DB:         config.GetDBConfig(),
			LogManager: SlogManager,
			Logger:     ZLogger,
		})
		if err := b.Init(); err != nil {
			return nil, nil, err
		}
		if b.IsLocal() {
			Logger.Warn("Postgres unreachable, nothing to read")
		}
		return b, b.Close, nil

	default:
		backend, err := createStorageBackend(storageCfg)
		if err != nil {
			return nil, nil, err
		}
		if err := backend.Init(); err != nil {
			return nil, nil, err
		}
		return backend, backend.Close, nil
	}
}

// multiReader reads sessions spread over several stores, e.g. one SQLite
// file per run.
type multiReader []storage.Reader

func (m multiReader) Sessions() ([]core.Session, error) {
	var out []core.Session
	for _, r := range m {
		s, err := r.Sessions()
		if err != nil {
			return nil, err
		}
		out = append(out, s...)
	}
	slices.SortStableFunc(out, func(a, b core.Session) int {
		return b.StartedAt.Compare(a.StartedAt)
	})
	return out, nil
}

func (m multiReader) find(id string) (storage.Reader, core.Session, error) {
	for _, r := range m {
		s, err := r.Session(id)
		if err == nil {
			return r, s, nil
		}
		if !errors.Is(err, storage.ErrNotFound) {
			return nil, core.Session{}, err
		}
	}
	return nil, core.Session{}, fmt.Errorf("session %s: %w", id, storage.ErrNotFound)
}

func (m multiReader) Session(id string) (core.Session, error) {
	_, s, err := m.find(id)
	return s, err
}

func (m multiReader) LatestSnapshot(sessionID string) (core.Snapshot, error) {
	r, _, err := m.find(sessionID)
	if err != nil {
		return core.Snapshot{}, err
	}
	return r.LatestSnapshot(sessionID)
}

func (m multiReader) Snapshots(sessionID string) ([]core.Snapshot, error) {
	r, _, err := m.find(sessionID)
	if err != nil {
		return nil, err
	}
	return r.Snapshots(sessionID)
}

func (m multiReader) BrakeEvents(sessionID string) ([]core.BrakeEvent, error) {
	r, _, err := m.find(sessionID)
	if err != nil {
		return nil, err
	}
	return r.BrakeEvents(sessionID)
}
