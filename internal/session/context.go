// Package session tracks the run in progress.
package session

import (
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/OCAP2/brakesim/pkg/core"
)

// Context holds the current session
type Context struct {
	mu      sync.RWMutex
	session *core.Session
}

// NewContext creates a Context with no session loaded
func NewContext() *Context {
	return &Context{session: &core.Session{Consist: "No session loaded"}}
}

// Start begins a new session with a fresh ID and makes it current.
func (c *Context) Start(consist string, tickSeconds float64, lead, cars int, family string) *core.Session {
	s := &core.Session{
		ID:          uuid.NewString(),
		Consist:     consist,
		StartedAt:   time.Now().UTC(),
		TickSeconds: tickSeconds,
		Lead:        lead,
		CarCount:    cars,
		Family:      family,
	}
	c.Set(s)
	return s
}

// Get returns the current session
func (c *Context) Get() *core.Session {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session
}

// ID returns the current session ID, empty before Start.
func (c *Context) ID() string {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.session.ID
}

// Set replaces the current session, e.g. when a stored one is resumed.
func (c *Context) Set(s *core.Session) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session = s
}

// End stamps the current session's end time.
func (c *Context) End() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.session.EndedAt = time.Now().UTC()
}
