package otel

import (
	"bytes"
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/metric/noop"

	"github.com/OCAP2/brakesim/internal/config"
)

func TestNew_Disabled(t *testing.T) {
	p, err := New(Config{})
	require.NoError(t, err)
	assert.False(t, p.Enabled())
	assert.Nil(t, p.LoggerProvider())
	assert.Equal(t, noop.Meter{}, p.Meter("brakesim"))
	assert.NoError(t, p.Flush(context.Background()))
	assert.NoError(t, p.Shutdown(context.Background()))
}

func TestNew_EnabledWithoutExporter(t *testing.T) {
	_, err := New(Config{Enabled: true, ServiceName: "brakesim"})
	assert.True(t, errors.Is(err, ErrNoExporter))
}

func TestNew_FileExporter(t *testing.T) {
	var buf bytes.Buffer
	p, err := New(Config{
		Enabled:      true,
		ServiceName:  "brakesim",
		BatchTimeout: time.Second,
		LogWriter:    &buf,
		Consist:      "freight",
	})
	require.NoError(t, err)
	require.NotNil(t, p.LoggerProvider())
	assert.NotNil(t, p.Meter("brakesim"))

	ctx := context.Background()
	assert.NoError(t, p.Flush(ctx))
	assert.NoError(t, p.Shutdown(ctx))
}

func TestFromSettings(t *testing.T) {
	var buf bytes.Buffer
	cfg := FromSettings(config.OTelConfig{
		Enabled:      true,
		ServiceName:  "svc",
		BatchTimeout: 5 * time.Second,
		Endpoint:     "localhost:4318",
		Insecure:     true,
	}, &buf, "freight")

	assert.True(t, cfg.Enabled)
	assert.Equal(t, "svc", cfg.ServiceName)
	assert.Equal(t, "localhost:4318", cfg.Endpoint)
	assert.Equal(t, "freight", cfg.Consist)
	assert.Same(t, &buf, cfg.LogWriter)
}
