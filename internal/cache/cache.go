// Package cache holds the per-run registries: parsed parameter sets by
// template and car indices by ID.
package cache

import (
	"strings"
	"sync"

	"github.com/OCAP2/brakesim/internal/brake"
)

// ParamCache keeps parsed brake parameters per template so every car built
// from the same template shares one parse. Template names compare case
// insensitively.
type ParamCache struct {
	m      sync.Mutex
	params map[string]brake.Params
	misses SafeCounter
}

func NewParamCache() *ParamCache {
	return &ParamCache{params: make(map[string]brake.Params)}
}

func (c *ParamCache) Reset() {
	c.m.Lock()
	defer c.m.Unlock()
	c.params = make(map[string]brake.Params)
	c.misses.Set(0)
}

func (c *ParamCache) Get(template string) (brake.Params, bool) {
	c.m.Lock()
	defer c.m.Unlock()
	p, ok := c.params[strings.ToLower(template)]
	return p, ok
}

func (c *ParamCache) Set(template string, p brake.Params) {
	c.m.Lock()
	defer c.m.Unlock()
	c.params[strings.ToLower(template)] = p
}

// GetOrParse returns the cached parameters for template, calling parse on
// a miss. A failed parse is not cached.
func (c *ParamCache) GetOrParse(template string, parse func() (brake.Params, error)) (brake.Params, error) {
	key := strings.ToLower(template)
	c.m.Lock()
	defer c.m.Unlock()
	if p, ok := c.params[key]; ok {
		return p, nil
	}
	c.misses.Inc()
	p, err := parse()
	if err != nil {
		return brake.Params{}, err
	}
	c.params[key] = p
	return p, nil
}

func (c *ParamCache) Len() int {
	c.m.Lock()
	defer c.m.Unlock()
	return len(c.params)
}

// Parses reports how many templates were parsed since the last Reset.
func (c *ParamCache) Parses() int { return c.misses.Value() }

// SafeCounter is a thread-safe counter
type SafeCounter struct {
	mu sync.Mutex
	v  int
}

func (c *SafeCounter) Value() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.v
}

func (c *SafeCounter) Set(v int) {
	c.mu.Lock()
	c.v = v
	c.mu.Unlock()
}

func (c *SafeCounter) Inc() {
	c.mu.Lock()
	c.v++
	c.mu.Unlock()
}
