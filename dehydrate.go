package cachebay

import (
	"encoding/json"
	"fmt"

	"go.uber.org/zap"

	"github.com/cachebay/cachebay/internal/graph"
	"github.com/cachebay/cachebay/internal/persist"
)

// Snapshot is the dehydrate/hydrate wire contract (spec §6): a JSON object
// with a single key "records" whose value is an array of [RecordId, Record]
// pairs. An array (not a map) preserves insertion order across the
// round-trip, which a JSON object's keys do not guarantee.
type Snapshot struct {
	Records []RecordEntry `json:"records"`
}

// RecordEntry is one [RecordId, Record] pair within a Snapshot.
type RecordEntry struct {
	ID     graph.RecordId
	Fields graph.Record
}

// MarshalJSON renders the entry as the literal two-element array the wire
// contract specifies, encoding Ref/Refs sentinels as {"__ref":...}/
// {"__refs":...} (spec §6 "references are the literal objects...").
func (e RecordEntry) MarshalJSON() ([]byte, error) {
	return json.Marshal([2]interface{}{e.ID, encodeWireRecord(e.Fields)})
}

// UnmarshalJSON accepts a two-element array and decodes its second element's
// __ref/__refs sentinels back into graph.Ref/graph.Refs.
func (e *RecordEntry) UnmarshalJSON(data []byte) error {
	var pair [2]json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("cachebay: malformed snapshot entry: %w", err)
	}
	var id string
	if err := json.Unmarshal(pair[0], &id); err != nil {
		return nil // malformed id: tolerate, leave entry empty (spec §7)
	}
	var raw map[string]interface{}
	if err := json.Unmarshal(pair[1], &raw); err != nil {
		return nil // malformed record body: tolerate
	}
	e.ID = id
	e.Fields = decodeWireRecord(raw)
	return nil
}

func encodeWireRecord(rec graph.Record) map[string]interface{} {
	out := make(map[string]interface{}, len(rec))
	for k, v := range rec {
		out[k] = encodeWireValue(v)
	}
	return out
}

func encodeWireValue(v interface{}) interface{} {
	switch t := v.(type) {
	case graph.Ref:
		return map[string]interface{}{"__ref": t.ID}
	case graph.Refs:
		ids := make([]interface{}, len(t.IDs))
		for i, id := range t.IDs {
			ids[i] = id
		}
		return map[string]interface{}{"__refs": ids}
	default:
		return v
	}
}

func decodeWireRecord(raw map[string]interface{}) graph.Record {
	out := make(graph.Record, len(raw))
	for k, v := range raw {
		out[k] = decodeWireValue(v)
	}
	return out
}

func decodeWireValue(v interface{}) interface{} {
	obj, ok := v.(map[string]interface{})
	if !ok {
		return v
	}
	if ref, ok := obj["__ref"].(string); ok && len(obj) == 1 {
		return graph.Ref{ID: ref}
	}
	if rawIDs, ok := obj["__refs"].([]interface{}); ok && len(obj) == 1 {
		ids := make([]graph.RecordId, 0, len(rawIDs))
		for _, raw := range rawIDs {
			if s, ok := raw.(string); ok {
				ids = append(ids, s)
			}
		}
		return graph.Refs{IDs: ids}
	}
	return decodeWireRecord(obj)
}

// Dehydrate returns the full record store as a serializable Snapshot (spec
// §6 "dehydrate() → Snapshot").
func (c *Cache) Dehydrate() Snapshot {
	keys := c.store.Keys()
	records := make([]RecordEntry, 0, len(keys))
	for _, id := range keys {
		records = append(records, RecordEntry{ID: id, Fields: c.store.GetRecord(id)})
	}
	return Snapshot{Records: records}
}

// Hydrate clears the store and restores it from snapshot. Malformed entries
// (nil, non-object, missing fields) are ignored rather than failing the
// whole call (spec §7 "hydrate accepts garbage"). IsHydrating reports true
// for the duration of this call.
func (c *Cache) Hydrate(snapshot Snapshot) {
	c.hydrating = true
	defer func() { c.hydrating = false }()

	c.store.Clear()
	for _, entry := range snapshot.Records {
		if entry.ID == "" || entry.Fields == nil {
			continue
		}
		c.store.PutRecord(entry.ID, entry.Fields)
	}
}

// IsHydrating reports whether a Hydrate call is currently in progress. It
// reports false again as soon as Hydrate returns.
func (c *Cache) IsHydrating() bool { return c.hydrating }

// PersistToDisk writes the current snapshot to the file-backed store
// configured via WithPersistence. It returns an error if persistence was
// not enabled.
func (c *Cache) PersistToDisk() error {
	if c.persistence == nil {
		return fmt.Errorf("cachebay: persistence not enabled (use WithPersistence)")
	}
	snap := c.Dehydrate()
	out := make(persist.Snapshot, len(snap.Records))
	for _, entry := range snap.Records {
		out[entry.ID] = encodeWireRecord(entry.Fields)
	}
	return c.persistence.Save(out)
}

// LoadFromDisk hydrates the store from the file-backed snapshot configured
// via WithPersistence. It returns an error if persistence was not enabled.
func (c *Cache) LoadFromDisk() error {
	if c.persistence == nil {
		return fmt.Errorf("cachebay: persistence not enabled (use WithPersistence)")
	}
	loaded, err := c.persistence.Load()
	if err != nil {
		return err
	}
	records := make([]RecordEntry, 0, len(loaded))
	for id, fields := range loaded {
		records = append(records, RecordEntry{ID: id, Fields: decodeWireRecord(fields)})
	}
	c.Hydrate(Snapshot{Records: records})
	return nil
}

// WatchDisk re-hydrates from disk whenever the snapshot file changes
// externally, via fsnotify (spec SPEC_FULL §11). It returns an error if
// persistence was not enabled.
func (c *Cache) WatchDisk() error {
	if c.persistence == nil {
		return fmt.Errorf("cachebay: persistence not enabled (use WithPersistence)")
	}
	return c.persistence.Watch(func() {
		if err := c.LoadFromDisk(); err != nil {
			c.logger.Warn("cachebay: failed to reload snapshot from disk", zap.Error(err))
		}
	})
}
