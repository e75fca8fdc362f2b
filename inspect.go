package cachebay

import (
	"sort"
	"strings"

	"github.com/cachebay/cachebay/internal/canonical"
	"github.com/cachebay/cachebay/internal/graph"
)

// ListEntities returns every record id of the given typename currently in
// the store, sorted for deterministic inspection output (spec §6 "inspect:
// enumerate entities (by typename)").
func (c *Cache) ListEntities(typename string) []graph.RecordId {
	prefix := typename + ":"
	var out []graph.RecordId
	for _, id := range c.store.Keys() {
		if strings.HasPrefix(id, prefix) {
			out = append(out, id)
		}
	}
	return out
}

// GetEntity returns a snapshot of the record at id, or nil if absent (spec
// §6 "fetch by id").
func (c *Cache) GetEntity(id graph.RecordId) graph.Record {
	return c.store.GetRecord(id)
}

// ListConnections returns every canonical connection key currently tracked
// (spec §6 "list connections/canonical keys").
func (c *Cache) ListConnections() []graph.RecordId {
	var out []graph.RecordId
	for _, id := range c.store.Keys() {
		if strings.HasPrefix(id, "@connection.") && !strings.HasSuffix(id, "::meta") && !strings.HasSuffix(id, ".pageInfo") {
			out = append(out, id)
		}
	}
	sort.Strings(out)
	return out
}

// DumpOperations returns the source text of every document the compiler has
// compiled and cached (spec §6 "dump operations").
func (c *Cache) DumpOperations() []string {
	docs := c.compiler.CachedDocuments()
	sort.Strings(docs)
	return docs
}

// GCConnections sweeps canonical connections and their constituent pages,
// removing those for which predicate returns true (spec §5 "a
// gc.connections(predicate?) sweeper").
func (c *Cache) GCConnections(predicate func(key graph.RecordId, state canonical.GCState) bool) {
	c.canonical.GC(predicate)
}
