package agent

import (
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"
)

// ResultCache memoizes results of side-effect-free tool invocations,
// keyed by tool name and canonicalized arguments. Entries live for the
// process lifetime; there is no eviction.
type ResultCache struct {
	entries map[string]string
	mu      sync.RWMutex
}

// NewResultCache creates an empty ResultCache.
func NewResultCache() *ResultCache {
	return &ResultCache{
		entries: make(map[string]string),
	}
}

// cacheKey builds a deterministic key from the tool name and arguments.
// Arguments are decoded and re-encoded so that key ordering in the JSON
// does not affect the key.
func cacheKey(toolName string, args json.RawMessage) string {
	canonical := []byte("{}")
	if len(args) > 0 {
		var decoded interface{}
		if err := json.Unmarshal(args, &decoded); err == nil {
			if re, err := json.Marshal(decoded); err == nil {
				canonical = re
			}
		} else {
			canonical = args
		}
	}
	sum := sha256.Sum256(canonical)
	return fmt.Sprintf("%s:%x", toolName, sum[:16])
}

// Get returns a cached result. When cacheable is false it always misses.
func (c *ResultCache) Get(toolName string, args json.RawMessage, cacheable bool) (string, bool) {
	if !cacheable {
		return "", false
	}
	c.mu.RLock()
	defer c.mu.RUnlock()
	result, ok := c.entries[cacheKey(toolName, args)]
	return result, ok
}

// Set stores a result. When cacheable is false it is a no-op.
func (c *ResultCache) Set(toolName string, args json.RawMessage, result string, cacheable bool) {
	if !cacheable {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries[cacheKey(toolName, args)] = result
}

// Len returns the number of cached entries.
func (c *ResultCache) Len() int {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return len(c.entries)
}
