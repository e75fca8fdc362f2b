package graph

import "sync"

// RecordProxy is a live, reactive handle to a single record. The store
// returns the same *RecordProxy for every materialization of a given
// record id while it remains reachable, so consumers can hold references
// across writes and still see up-to-date fields (spec §4.2, §9 "reactive
// proxies with versioned overlay"). The store itself only holds the proxy
// by weak reference (spec §3, §5): once every consumer reference and
// watcher dependency on it is gone, it is eligible for collection and a
// later materialization allocates a new one.
type RecordProxy struct {
	store *Store
	id    RecordId

	mu      sync.RWMutex
	fields  Record // nil once the record has been removed
	version uint64
	removed bool
}

// ID returns the proxy's record id.
func (p *RecordProxy) ID() RecordId { return p.id }

// Get reads a single field, registering a dependency on this record for
// whichever watcher is currently running (spec §4.5 "Reactivity").
func (p *RecordProxy) Get(field string) (interface{}, bool) {
	p.store.trackCurrentWatcher(p.id)
	p.mu.RLock()
	defer p.mu.RUnlock()
	if p.fields == nil {
		return nil, false
	}
	v, ok := p.fields[field]
	return v, ok
}

// Snapshot returns a point-in-time copy of the proxy's fields, registering
// a dependency on the whole record (every field may have been read).
func (p *RecordProxy) Snapshot() Record {
	p.store.trackCurrentWatcher(p.id)
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.fields.Clone()
}

// Version returns the proxy's current overlay version stamp (spec I5).
func (p *RecordProxy) Version() uint64 {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.version
}

// Removed reports whether the underlying record has been deleted.
func (p *RecordProxy) Removed() bool {
	p.mu.RLock()
	defer p.mu.RUnlock()
	return p.removed
}

// applyDiff patches only the fields that changed between old and next,
// preserving proxy identity (spec §4.2 "minimal diff overlay").
func (p *RecordProxy) applyDiff(old, next Record, version uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.fields == nil {
		p.fields = make(Record, len(next))
	}
	for k := range old {
		if _, stillPresent := next[k]; !stillPresent {
			delete(p.fields, k)
		}
	}
	for k, v := range next {
		if existing, had := old[k]; !had || !valuesEqual(existing, v) {
			p.fields[k] = v
		}
	}
	p.version = version
	p.removed = false
}

// applyFull replaces the overlay wholesale; used to repair drift (spec
// §4.2: "If version drifts (e.g., foreign writes), a full overlay
// repairs it").
func (p *RecordProxy) applyFull(next Record, version uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fields = next.Clone()
	p.version = version
	p.removed = false
}

// applyRemoved clears the proxy's fields after the record is deleted.
func (p *RecordProxy) applyRemoved(version uint64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.fields = nil
	p.version = version
	p.removed = true
}
