package resolver

import "sync"

// NameCache maps qualified names to GUIDs for the lifetime of one run
type NameCache struct {
	mu    sync.RWMutex
	names map[string]string
}

// NewNameCache creates an empty cache
func NewNameCache() *NameCache {
	return &NameCache{names: make(map[string]string)}
}

// Get returns the cached GUID for a qualified name
func (c *NameCache) Get(qualifiedName string) (string, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	guid, ok := c.names[qualifiedName]
	return guid, ok
}

// Put records the GUID of a qualified name; empty and placeholder GUIDs are ignored
func (c *NameCache) Put(qualifiedName, guid string) {
	if guid == "" || guid[0] == '-' {
		return
	}
	c.mu.Lock()
	c.names[qualifiedName] = guid
	c.mu.Unlock()
}

// Len returns the number of cached names
func (c *NameCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.names)
}
