package postgres

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/OCAP2/brakesim/internal/config"
	"github.com/OCAP2/brakesim/internal/storage"
	"github.com/OCAP2/brakesim/pkg/core"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// Compile-time interface checks
var (
	_ storage.Backend = (*Backend)(nil)
	_ storage.Reader  = (*Backend)(nil)
)

func unreachable() config.DBConfig {
	return config.DBConfig{Host: "127.0.0.1", Port: "1", Username: "u", Password: "p", Database: "brakesim"}
}

func TestInit_FallsBackToLocal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fallback.db")
	b := New(Dependencies{DB: unreachable(), Logger: zerolog.Nop(), FallbackPath: path})
	require.NoError(t, b.Init())
	assert.True(t, b.IsLocal())

	require.NoError(t, b.StartSession(&core.Session{ID: "s1", Consist: "yard", StartedAt: time.Now().UTC()}))
	snap := &core.Snapshot{SessionID: "s1", SimTime: 1, Cars: []core.CarSnapshot{{CarID: "W1"}}}
	require.NoError(t, b.SaveSnapshot(snap))
	assert.NotZero(t, snap.ID)

	require.NoError(t, b.Close())
	_, err := os.Stat(path)
	assert.NoError(t, err)
}

func TestClose_BeforeInit(t *testing.T) {
	b := New(Dependencies{})
	assert.NoError(t, b.Close())
	assert.False(t, b.IsLocal())
}
