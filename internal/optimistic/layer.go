// Package optimistic implements optimistic-update layers on top of the
// graph store: a mutation writes through immediately, and its before-image
// is captured per touched record so the layer can be reverted if the
// eventual network result disagrees (spec SPEC_FULL §12 "optimistic
// layering"). Modeled on the teacher's named-transaction lifecycle
// (begin/commit/rollback, one active entry per name, reverted in the
// reverse order touched).
package optimistic

import (
	"fmt"
	"sync"

	"go.uber.org/zap"

	"github.com/cachebay/cachebay/internal/graph"
)

// Writer is the surface a mutation function uses to make optimistic writes
// (spec §4.2 putRecord/removeRecord, replayed through a Layer so they can be
// reverted).
type Writer interface {
	PutRecord(id graph.RecordId, partial graph.Record) bool
	RemoveRecord(id graph.RecordId)
}

// touch records a record's state the first time a layer writes to it, so
// Revert can restore exactly that state.
type touch struct {
	existed bool
	before  graph.Record
}

// Layer is one optimistic mutation's set of writes and their before-images.
type Layer struct {
	id    string
	store *graph.Store

	mu       sync.Mutex
	touched  map[graph.RecordId]*touch
	order    []graph.RecordId
	resolved bool // committed or reverted; no further writes or resolution allowed
}

func newLayer(id string, store *graph.Store) *Layer {
	return &Layer{id: id, store: store, touched: make(map[graph.RecordId]*touch)}
}

// capture records id's pre-write state the first time this layer touches it.
func (l *Layer) capture(id graph.RecordId) {
	if _, already := l.touched[id]; already {
		return
	}
	existing := l.store.GetRecord(id)
	l.touched[id] = &touch{existed: existing != nil, before: existing}
	l.order = append(l.order, id)
}

// PutRecord writes through to the store, capturing id's before-image.
func (l *Layer) PutRecord(id graph.RecordId, partial graph.Record) bool {
	l.mu.Lock()
	if l.resolved {
		l.mu.Unlock()
		return false
	}
	l.capture(id)
	l.mu.Unlock()
	return l.store.PutRecord(id, partial)
}

// RemoveRecord removes through to the store, capturing id's before-image.
func (l *Layer) RemoveRecord(id graph.RecordId) {
	l.mu.Lock()
	if l.resolved {
		l.mu.Unlock()
		return
	}
	l.capture(id)
	l.mu.Unlock()
	l.store.RemoveRecord(id)
}

// Manager tracks active optimistic layers, keyed by id (spec SPEC_FULL §12
// "Optimistic layering"); the Cache facade's ModifyOptimistic picks the id.
type Manager struct {
	store  *graph.Store
	logger *zap.Logger

	mu     sync.Mutex
	layers map[string]*Layer
}

// New creates a Manager bound to store.
func New(store *graph.Store, logger *zap.Logger) *Manager {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Manager{store: store, logger: logger, layers: make(map[string]*Layer)}
}

// Begin starts an optimistic layer under id, immediately running fn against
// it. id must not already be active.
func (m *Manager) Begin(id string, fn func(w Writer)) (*Layer, error) {
	m.mu.Lock()
	if _, exists := m.layers[id]; exists {
		m.mu.Unlock()
		return nil, fmt.Errorf("optimistic: layer %q already active", id)
	}
	layer := newLayer(id, m.store)
	m.layers[id] = layer
	m.mu.Unlock()

	fn(layer)
	return layer, nil
}

// Commit finalizes id's layer, keeping its writes in place (spec: a
// successful network response supersedes the optimistic guess, so nothing
// more needs to change in the store).
func (m *Manager) Commit(id string) error {
	m.mu.Lock()
	layer, exists := m.layers[id]
	if exists {
		delete(m.layers, id)
	}
	m.mu.Unlock()
	if !exists {
		return fmt.Errorf("optimistic: layer %q not found", id)
	}

	layer.mu.Lock()
	layer.resolved = true
	layer.mu.Unlock()
	return nil
}

// Revert undoes id's layer, restoring every touched record's pre-write
// state in the reverse order it was touched (spec SPEC_FULL §12
// "before-image capture").
func (m *Manager) Revert(id string) error {
	m.mu.Lock()
	layer, exists := m.layers[id]
	if exists {
		delete(m.layers, id)
	}
	m.mu.Unlock()
	if !exists {
		return fmt.Errorf("optimistic: layer %q not found", id)
	}

	layer.mu.Lock()
	defer layer.mu.Unlock()
	if layer.resolved {
		return fmt.Errorf("optimistic: layer %q already resolved", id)
	}
	layer.resolved = true

	for i := len(layer.order) - 1; i >= 0; i-- {
		recordID := layer.order[i]
		t := layer.touched[recordID]
		if !t.existed {
			m.store.RemoveRecord(recordID)
			continue
		}
		current := m.store.GetRecord(recordID)
		patch := graph.Record{}
		for k, v := range t.before {
			patch[k] = v
		}
		for k := range current {
			if _, keep := t.before[k]; !keep {
				patch[k] = graph.Delete{}
			}
		}
		m.store.PutRecord(recordID, patch)
	}
	return nil
}

// Active reports whether id names a currently active (unresolved) layer.
func (m *Manager) Active(id string) bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	_, ok := m.layers[id]
	return ok
}
