package rules

import "sync"

// ProgramCache stores compiled expression programs keyed by expression strings.
type ProgramCache interface {
	Get(key string) (any, bool)
	Set(key string, value any)
}

// MemoryCache is a ProgramCache backed by a sync.Map. Entries live for the
// widget lifetime; options rarely hold more than a handful of expressions.
type MemoryCache struct {
	programs sync.Map
}

// NewMemoryCache constructs an empty cache.
func NewMemoryCache() *MemoryCache {
	return &MemoryCache{}
}

func (c *MemoryCache) Get(key string) (any, bool) {
	return c.programs.Load(key)
}

func (c *MemoryCache) Set(key string, value any) {
	c.programs.Store(key, value)
}
