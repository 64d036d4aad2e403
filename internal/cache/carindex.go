package cache

import "sync"

// CarIndex maps car IDs to their position in the consist
type CarIndex struct {
	mu   sync.RWMutex
	cars map[string]int
}

// NewCarIndex creates a new CarIndex
func NewCarIndex() *CarIndex {
	return &CarIndex{
		cars: make(map[string]int),
	}
}

// Get retrieves a car position by ID
func (c *CarIndex) Get(id string) (int, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	i, ok := c.cars[id]
	return i, ok
}

// Set stores a car position by ID
func (c *CarIndex) Set(id string, index int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cars[id] = index
}

// Delete removes a car by ID
func (c *CarIndex) Delete(id string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	delete(c.cars, id)
}

// Reset clears all cars from the index
func (c *CarIndex) Reset() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cars = make(map[string]int)
}
