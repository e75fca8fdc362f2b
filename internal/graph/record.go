// Package graph implements the flat, versioned record store that backs the
// cache (spec §3, §4.2): a map from record id to field snapshot, reactive
// proxies with a version overlay, and a watcher registry for push-based
// invalidation.
package graph

// RecordId addresses a single record in the store (spec §3).
type RecordId = string

// RootID is the singleton root record for operation roots (Query, Mutation,
// Subscription).
const RootID RecordId = "@"

// Ref is a single-reference value: the literal {"__ref": id}.
type Ref struct {
	ID RecordId
}

// Refs is a reference-list value: the literal {"__refs": [id, ...]}. Order
// is significant and preserved (spec I2).
type Refs struct {
	IDs []RecordId
}

// Delete is the field-deletion sentinel for PutRecord: a field set to
// Delete{} is removed from the record rather than overwritten (spec §3:
// "undefined value deletes a field").
type Delete struct{}

// Record is an ordered field map; values are scalars, nil, Ref, Refs,
// inline maps, or slices of scalars/inline maps.
type Record map[string]interface{}

// Clone returns a shallow field-wise copy of the record.
func (r Record) Clone() Record {
	if r == nil {
		return nil
	}
	out := make(Record, len(r))
	for k, v := range r {
		out[k] = v
	}
	return out
}
