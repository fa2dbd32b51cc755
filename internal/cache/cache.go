// Package cache implements the per-transaction Request Cache: a memo of
// known column values keyed by (table, reservedId), scoped to the
// lifetime of one Request Resolver transaction and owned exclusively by it.
package cache

import "fmt"

type key struct {
	table string
	id    any
}

// Cache memoizes partial rows seen during one transaction. It is not
// safe for concurrent use; a transaction's cache is touched only by the
// sequential pipeline steps that own it.
type Cache struct {
	rows map[key]map[string]any
}

// New returns an empty cache.
func New() *Cache {
	return &Cache{rows: make(map[key]map[string]any)}
}

// Add merges values into the cache entry for (table, reservedId), creating
// it if absent. Later values for a property overwrite earlier ones.
func (c *Cache) Add(table string, reservedID any, values map[string]any) {
	k := key{table, reservedID}
	row, ok := c.rows[k]
	if !ok {
		row = make(map[string]any, len(values)+1)
		row["reservedId"] = reservedID
		c.rows[k] = row
	}
	for prop, v := range values {
		row[prop] = v
	}
}

// Uncache drops the entry for (table, reservedId), forcing a fresh read
// on next lookup.
func (c *Cache) Uncache(table string, reservedID any) {
	delete(c.rows, key{table, reservedID})
}

// Read returns a projection of the cached row for (table, reservedId)
// restricted to properties, only if every one of properties is already
// known; any missing property invalidates the lookup entirely (it returns
// false) rather than partially hit, since a caller that asked for a
// column has no way to distinguish "known to be absent" from "not yet
// fetched".
func (c *Cache) Read(table string, reservedID any, properties []string) (map[string]any, bool) {
	row, ok := c.rows[key{table, reservedID}]
	if !ok {
		return nil, false
	}
	out := make(map[string]any, len(properties))
	for _, p := range properties {
		v, known := row[p]
		if !known {
			return nil, false
		}
		out[p] = v
	}
	return out, true
}

// String renders the cache key for diagnostic logging.
func (k key) String() string {
	return fmt.Sprintf("%s#%v", k.table, k.id)
}
