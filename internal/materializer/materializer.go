// Package materializer reconstructs response-shaped trees (or reactive
// proxies) from the graph store by following the refs a compiled plan
// expects to find (spec §4.5).
package materializer

import (
	"go.uber.org/zap"

	"github.com/cachebay/cachebay/internal/canonical"
	"github.com/cachebay/cachebay/internal/compiler"
	"github.com/cachebay/cachebay/internal/graph"
)

// Materializer reads a plan's selections back out of the store, resolving
// @connection fields through the canonical engine (spec §4.5).
type Materializer struct {
	store     *graph.Store
	canonical *canonical.Engine
	logger    *zap.Logger
}

// New creates a Materializer bound to store and canon.
func New(store *graph.Store, canon *canonical.Engine, logger *zap.Logger) *Materializer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Materializer{store: store, canonical: canon, logger: logger}
}

// Result is the outcome of a materialize call (spec §4.5 "materializeDocument
// returns {data, complete}").
type Result struct {
	Data     map[string]interface{}
	Complete bool
}

// MaterializeDocument reads plan's root selections starting from the root
// record (spec §4.5 "materializeDocument(plan, variables)").
func (m *Materializer) MaterializeDocument(plan *compiler.Plan, variables map[string]interface{}) Result {
	complete := true
	data := m.readSelections(graph.RootID, plan.Root, variables, &complete)
	return Result{Data: data, Complete: complete}
}

// MaterializeEntity reads a single entity record's selections (spec §4.6
// "materializeEntity(id, selections, variables)").
func (m *Materializer) MaterializeEntity(id graph.RecordId, selections map[string]*compiler.Selection, variables map[string]interface{}) Result {
	if m.store.GetRecord(id) == nil {
		return Result{Complete: false}
	}
	complete := true
	data := m.readEntityFields(id, selections, variables, &complete)
	return Result{Data: data, Complete: complete}
}

// ReadFragment is an alias for MaterializeEntity under fragment-reading
// naming (spec §4.6 "readFragment(id, fragmentPlan, variables)").
func (m *Materializer) ReadFragment(id graph.RecordId, plan *compiler.Plan, variables map[string]interface{}) Result {
	return m.MaterializeEntity(id, plan.Root, variables)
}

// readSelections reads every selection in sels off the record at parentID.
func (m *Materializer) readSelections(parentID graph.RecordId, sels map[string]*compiler.Selection, variables map[string]interface{}, complete *bool) map[string]interface{} {
	proxy := m.store.MaterializeRecord(parentID)
	if proxy.Removed() {
		*complete = false
		return nil
	}

	out := make(map[string]interface{}, len(sels))
	for responseKey, sel := range sels {
		fieldKey := graph.FieldKey(sel.Field, sel.HasArgs, sel.StringifyArgs(variables))
		raw, ok := proxy.Get(fieldKey)
		if !ok {
			*complete = false
			continue
		}
		out[responseKey] = m.readValue(sel, variables, raw, complete)
	}
	return out
}

// readEntityFields mirrors readSelections but skips id/__typename handling
// specific to root document traversal, materializing directly off id.
func (m *Materializer) readEntityFields(id graph.RecordId, sels map[string]*compiler.Selection, variables map[string]interface{}, complete *bool) map[string]interface{} {
	proxy := m.store.MaterializeRecord(id)
	if proxy.Removed() {
		*complete = false
		return nil
	}

	out := make(map[string]interface{}, len(sels))
	for responseKey, sel := range sels {
		if sel.Field == "__typename" || sel.Field == "id" {
			if v, ok := proxy.Get(sel.Field); ok {
				out[responseKey] = v
			} else {
				*complete = false
			}
			continue
		}
		fieldKey := graph.FieldKey(sel.Field, sel.HasArgs, sel.StringifyArgs(variables))
		raw, ok := proxy.Get(fieldKey)
		if !ok {
			*complete = false
			continue
		}
		out[responseKey] = m.readValue(sel, variables, raw, complete)
	}
	return out
}

// readValue dereferences a stored field value (Ref/Refs/connection canonical
// key/scalar) into response shape (spec §4.5 "dereference").
func (m *Materializer) readValue(sel *compiler.Selection, variables map[string]interface{}, raw interface{}, complete *bool) interface{} {
	switch v := raw.(type) {
	case nil:
		return nil

	case graph.Ref:
		if sel.IsConnection {
			return m.readConnection(sel, variables, v.ID, complete)
		}
		if len(sel.Selections) == 0 {
			return map[string]interface{}{}
		}
		return m.readEntityFields(v.ID, sel.Selections, variables, complete)

	case graph.Refs:
		out := make([]interface{}, 0, len(v.IDs))
		for _, id := range v.IDs {
			out = append(out, m.readEntityFields(id, sel.Selections, variables, complete))
		}
		return out

	case []interface{}:
		return v

	default:
		return v
	}
}

// readConnection resolves a @connection field by reading its canonical
// union record rather than the literal page ref stored on the parent (spec
// §4.4, §4.5 "connection dereference always resolves through the canonical
// key for mode:infinite; mode:page resolves to the concrete page").
func (m *Materializer) readConnection(sel *compiler.Selection, variables map[string]interface{}, pageKey graph.RecordId, complete *bool) interface{} {
	if sel.ConnectionMode == compiler.ConnectionPage {
		// mode:page has no canonical union; the parent's stored ref already
		// points at the one concrete page record to mirror (spec §4.4).
		return m.readConnectionRecord(pageKey, sel, variables, complete)
	}

	filtersJSON := graph.StringifyArgs(sel.CanonicalFilterArgs(variables))
	canonicalKey := connectionKeyFromPage(pageKey, sel.ConnectionKey, filtersJSON)
	return m.readConnectionRecord(canonicalKey, sel, variables, complete)
}

// connectionKeyFromPage recovers the canonical key for the page that
// produced pageKey. Canonical keys are derived purely from (parentID,
// connectionKey, filtersJSON), which the caller already knows; parentID is
// recovered from the page key's struct path prefix (everything before the
// final "." segment the normalizer appended).
func connectionKeyFromPage(pageKey graph.RecordId, connectionKey, filtersJSON string) graph.RecordId {
	parentID := parentOfPageKey(pageKey)
	return canonical.Key(parentID, connectionKey, filtersJSON)
}

// parentOfPageKey strips the trailing "<field>(<args>)" segment the
// normalizer appended when it built a page's structural key as
// "<parentID>.<fieldKey>".
func parentOfPageKey(pageKey graph.RecordId) graph.RecordId {
	for i := len(pageKey) - 1; i >= 0; i-- {
		if pageKey[i] == '.' {
			return pageKey[:i]
		}
	}
	return graph.RootID
}

// readConnectionRecord reads a concrete connection-shaped record (canonical
// or page) — edges, each edge's node and cursor, and pageInfo.
func (m *Materializer) readConnectionRecord(recordID graph.RecordId, sel *compiler.Selection, variables map[string]interface{}, complete *bool) map[string]interface{} {
	proxy := m.store.MaterializeRecord(recordID)
	if proxy.Removed() {
		*complete = false
		return nil
	}

	out := make(map[string]interface{})

	edgesSel := sel.Selections["edges"]
	var nodeSel *compiler.Selection
	if edgesSel != nil {
		nodeSel = edgesSel.Selections["node"]
	}

	if raw, ok := proxy.Get("edges"); ok {
		refs, _ := raw.(graph.Refs)
		edges := make([]interface{}, 0, len(refs.IDs))
		for _, edgeID := range refs.IDs {
			edges = append(edges, m.readEdge(edgeID, edgesSel, nodeSel, variables, complete))
		}
		out["edges"] = edges
	} else {
		*complete = false
	}

	if raw, ok := proxy.Get("pageInfo"); ok {
		if ref, ok := raw.(graph.Ref); ok {
			pageInfoSel := sel.Selections["pageInfo"]
			out["pageInfo"] = m.readEntityFields(ref.ID, pageInfoSel.Selections, variables, complete)
		}
	} else {
		*complete = false
	}

	for responseKey, childSel := range sel.Selections {
		if responseKey == "edges" || responseKey == "pageInfo" {
			continue
		}
		fieldKey := graph.FieldKey(childSel.Field, childSel.HasArgs, childSel.StringifyArgs(variables))
		if raw, ok := proxy.Get(fieldKey); ok {
			out[responseKey] = raw
		}
	}

	return out
}

// readEdge reads one edge record's non-node fields plus its dereferenced
// node.
func (m *Materializer) readEdge(edgeID graph.RecordId, edgesSel, nodeSel *compiler.Selection, variables map[string]interface{}, complete *bool) map[string]interface{} {
	proxy := m.store.MaterializeRecord(edgeID)
	if proxy.Removed() {
		*complete = false
		return nil
	}

	out := make(map[string]interface{})
	if edgesSel != nil {
		for responseKey, childSel := range edgesSel.Selections {
			if responseKey == "node" {
				continue
			}
			fieldKey := graph.FieldKey(childSel.Field, childSel.HasArgs, childSel.StringifyArgs(variables))
			if raw, ok := proxy.Get(fieldKey); ok {
				out[responseKey] = raw
			}
		}
	}

	if raw, ok := proxy.Get("node"); ok {
		if ref, ok := raw.(graph.Ref); ok {
			var nodeSelections map[string]*compiler.Selection
			if nodeSel != nil {
				nodeSelections = nodeSel.Selections
			}
			out["node"] = m.readEntityFields(ref.ID, nodeSelections, variables, complete)
		}
	} else {
		*complete = false
	}

	return out
}
