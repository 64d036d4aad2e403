package cache

import (
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OCAP2/brakesim/internal/brake"
)

func TestParamCache_GetSet(t *testing.T) {
	c := NewParamCache()

	_, ok := c.Get("wagon")
	assert.False(t, ok)

	p := brake.DefaultParams(brake.AirSinglePipe)
	c.Set("Wagon", p)

	got, ok := c.Get("wagon")
	require.True(t, ok, "template names are case insensitive")
	assert.Equal(t, p, got)
	assert.Equal(t, 1, c.Len())
}

func TestParamCache_GetOrParse(t *testing.T) {
	c := NewParamCache()
	calls := 0
	parse := func() (brake.Params, error) {
		calls++
		return brake.DefaultParams(brake.VacuumSinglePipe), nil
	}

	for i := 0; i < 3; i++ {
		p, err := c.GetOrParse("coach", parse)
		require.NoError(t, err)
		assert.Equal(t, brake.VacuumSinglePipe, p.Kind)
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, 1, c.Parses())
}

func TestParamCache_FailedParseNotCached(t *testing.T) {
	c := NewParamCache()
	boom := errors.New("boom")

	_, err := c.GetOrParse("bad", func() (brake.Params, error) { return brake.Params{}, boom })
	assert.ErrorIs(t, err, boom)
	assert.Equal(t, 0, c.Len())

	_, err = c.GetOrParse("bad", func() (brake.Params, error) { return brake.DefaultParams(brake.Manual), nil })
	assert.NoError(t, err)
	assert.Equal(t, 2, c.Parses())
}

func TestParamCache_Reset(t *testing.T) {
	c := NewParamCache()
	c.Set("a", brake.DefaultParams(brake.AirSinglePipe))
	_, _ = c.GetOrParse("b", func() (brake.Params, error) { return brake.DefaultParams(brake.AirTwinPipe), nil })

	c.Reset()
	assert.Equal(t, 0, c.Len())
	assert.Equal(t, 0, c.Parses())
}

func TestParamCache_Concurrent(t *testing.T) {
	c := NewParamCache()
	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			_, _ = c.GetOrParse("shared", func() (brake.Params, error) {
				return brake.DefaultParams(brake.AirSinglePipe), nil
			})
		}()
	}
	wg.Wait()
	assert.Equal(t, 1, c.Parses())
}

func TestCarIndex(t *testing.T) {
	c := NewCarIndex()
	c.Set("L1", 0)
	c.Set("W-1", 1)

	i, ok := c.Get("W-1")
	require.True(t, ok)
	assert.Equal(t, 1, i)

	c.Delete("W-1")
	_, ok = c.Get("W-1")
	assert.False(t, ok)

	c.Reset()
	_, ok = c.Get("L1")
	assert.False(t, ok)
}

func TestSafeCounter(t *testing.T) {
	var c SafeCounter
	var wg sync.WaitGroup
	for i := 0; i < 100; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			c.Inc()
		}()
	}
	wg.Wait()
	assert.Equal(t, 100, c.Value())
	c.Set(5)
	assert.Equal(t, 5, c.Value())
}
