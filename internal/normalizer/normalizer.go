// Package normalizer walks a GraphQL result using a compiled plan and
// writes the records, edges, and connection pages it describes into the
// graph store (spec §4.3).
package normalizer

import (
	"strconv"

	"go.uber.org/zap"

	"github.com/cachebay/cachebay/internal/canonical"
	"github.com/cachebay/cachebay/internal/compiler"
	"github.com/cachebay/cachebay/internal/graph"
)

// Normalizer writes normalized results into a graph.Store, invoking the
// canonical engine for any @connection fields it encounters.
type Normalizer struct {
	store     *graph.Store
	canonical *canonical.Engine
	logger    *zap.Logger
}

// New creates a Normalizer bound to store and canon.
func New(store *graph.Store, canon *canonical.Engine, logger *zap.Logger) *Normalizer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Normalizer{store: store, canonical: canon, logger: logger}
}

// Input is the argument to Normalize (spec §4.3 "normalizeDocument").
type Input struct {
	Plan      *compiler.Plan
	Variables map[string]interface{}
	Data      map[string]interface{}
	// Origin distinguishes a fresh network result from a cache prewarm
	// replay for the canonical engine's leader-collapse rules (spec §4.4).
	// Defaults to "network".
	Origin string
}

// Normalize writes data into the store according to plan and variables
// (spec §4.3 "Algorithm").
func (n *Normalizer) Normalize(in Input) {
	origin := in.Origin
	if origin == "" {
		origin = "network"
	}
	n.writeSelections(graph.RootID, in.Plan.Root, in.Variables, in.Data, origin)
}

// NormalizeEntity writes obj's selected fields directly onto the record at
// id, using sels as a fragment's root selection map (spec §4.6
// "writeFragment({id, fragment, data, variables})"). Unlike Normalize, which
// always starts at the root record, this targets an arbitrary existing (or
// new) entity record.
func (n *Normalizer) NormalizeEntity(id graph.RecordId, sels map[string]*compiler.Selection, variables map[string]interface{}, data map[string]interface{}, origin string) {
	if origin == "" {
		origin = "network"
	}
	n.writeEntity(id, &compiler.Selection{Selections: sels}, variables, data, origin)
}

// writeSelections writes every selection in sels onto the record at
// parentID, reading source values from data.
func (n *Normalizer) writeSelections(parentID graph.RecordId, sels map[string]*compiler.Selection, variables map[string]interface{}, data map[string]interface{}, origin string) {
	if data == nil {
		return
	}
	patch := graph.Record{}
	for responseKey, sel := range sels {
		value, present := data[responseKey]
		if !present {
			continue // missing field tolerated (spec §7)
		}
		fieldKey := graph.FieldKey(sel.Field, sel.HasArgs, sel.StringifyArgs(variables))
		structPath := parentID + "." + fieldKey
		stored := n.writeValue(parentID, sel, structPath, variables, value, origin)
		if sel.IsConnection && stored == nil && value != nil {
			continue // skipped connection: leave the parent field untouched
		}
		patch[fieldKey] = stored
	}
	if len(patch) > 0 {
		n.store.PutRecord(parentID, patch)
	}
}

// writeValue normalizes a single field's decoded value and returns what
// should be stored for it on the parent record (spec §4.3 steps 3-5).
func (n *Normalizer) writeValue(parentID graph.RecordId, sel *compiler.Selection, structPath string, variables map[string]interface{}, value interface{}, origin string) interface{} {
	switch v := value.(type) {
	case nil:
		return nil

	case map[string]interface{}:
		if sel.IsConnection {
			return n.writeConnection(parentID, sel, structPath, variables, v, origin)
		}
		if id, ok := n.store.Identify(v); ok {
			n.writeEntity(id, sel, variables, v, origin)
			return graph.Ref{ID: id}
		}
		n.writeSelections(structPath, sel.Selections, variables, v, origin)
		n.store.PutRecord(structPath, graph.Record{}) // ensure the record exists even if v has no selected fields
		return graph.Ref{ID: structPath}

	case []interface{}:
		return n.writeArray(sel, structPath, variables, v, origin)

	default:
		return v
	}
}

// writeEntity merges obj's selected fields into the record at id (spec
// §4.3 step 3: "write it as record Typename:id (merge)... Recurse into its
// sub-selection within the entity record").
func (n *Normalizer) writeEntity(id graph.RecordId, sel *compiler.Selection, variables map[string]interface{}, obj map[string]interface{}, origin string) {
	patch := graph.Record{}
	if tn, ok := obj["__typename"]; ok {
		patch["__typename"] = tn
	}
	if idv, ok := obj["id"]; ok {
		patch["id"] = graph.StringifyID(idv)
	}

	for responseKey, childSel := range sel.Selections {
		if responseKey == "__typename" || responseKey == "id" {
			continue
		}
		value, present := obj[responseKey]
		if !present {
			continue
		}
		fieldKey := graph.FieldKey(childSel.Field, childSel.HasArgs, childSel.StringifyArgs(variables))
		structPath := id + "." + fieldKey
		stored := n.writeValue(id, childSel, structPath, variables, value, origin)
		if childSel.IsConnection && stored == nil && value != nil {
			continue // skipped connection: leave the parent field untouched
		}
		patch[fieldKey] = stored
	}

	n.store.PutRecord(id, patch)
}

// writeArray normalizes a plain (non-connection) list field: lists of
// identifiable entities become Refs, everything else is stored inline
// verbatim (spec §3, §4.3 "Edge cases").
func (n *Normalizer) writeArray(sel *compiler.Selection, structPath string, variables map[string]interface{}, arr []interface{}, origin string) interface{} {
	if len(arr) == 0 {
		return []interface{}{}
	}

	allEntities := true
	for _, elem := range arr {
		obj, ok := elem.(map[string]interface{})
		if !ok {
			allEntities = false
			break
		}
		if _, ok := n.store.Identify(obj); !ok {
			allEntities = false
			break
		}
	}

	if allEntities {
		ids := make([]graph.RecordId, 0, len(arr))
		for _, elem := range arr {
			obj := elem.(map[string]interface{})
			id, _ := n.store.Identify(obj)
			n.writeEntity(id, sel, variables, obj, origin)
			ids = append(ids, id)
		}
		return graph.Refs{IDs: ids}
	}

	return arr
}

// writeConnection implements spec §4.3 step 5: write each edge, the
// pageInfo, and the concrete page record, then fold the page into its
// canonical connection. Connections missing edges/pageInfo are skipped
// (spec §7 "Normalizer skips... connections missing edges/pageInfo").
func (n *Normalizer) writeConnection(parentID graph.RecordId, sel *compiler.Selection, pageKey graph.RecordId, variables map[string]interface{}, obj map[string]interface{}, origin string) interface{} {
	rawEdges, hasEdges := obj["edges"].([]interface{})
	pageInfoObj, hasPageInfo := obj["pageInfo"].(map[string]interface{})
	if !hasEdges || !hasPageInfo {
		n.logger.Warn("normalizer: connection missing edges/pageInfo, skipping", zap.String("pageKey", pageKey))
		return nil
	}

	edgesSel := sel.Selections["edges"]
	var nodeSel *compiler.Selection
	if edgesSel != nil {
		nodeSel = edgesSel.Selections["node"]
	}

	edgeIDs := make([]graph.RecordId, 0, len(rawEdges))
	for i, rawEdge := range rawEdges {
		edgeObj, ok := rawEdge.(map[string]interface{})
		if !ok {
			continue
		}
		edgeID := pageKey + ".edges:" + strconv.Itoa(i)
		edgeIDs = append(edgeIDs, edgeID)

		edgeRecord := graph.Record{}
		for k, v := range edgeObj {
			if k == "node" {
				continue
			}
			edgeRecord[k] = v
		}
		if nodeObj, ok := edgeObj["node"].(map[string]interface{}); ok {
			childSel := nodeSel
			if childSel == nil {
				childSel = &compiler.Selection{Field: "node"}
			}
			ref := n.writeValue(edgeID, childSel, edgeID+".node", variables, nodeObj, origin)
			if r, ok := ref.(graph.Ref); ok {
				edgeRecord["node"] = r
			}
		}
		// An edge for the same (pageKey, index) simply overwrites on replay
		// (spec §4.3 "Writing an edge for the same (pageKey,index) replaces
		// it"); PutRecord's field-wise merge handles this naturally.
		n.store.PutRecord(edgeID, edgeRecord)
	}

	pageInfoID := pageKey + ".pageInfo"
	pageInfoSel := sel.Selections["pageInfo"]
	n.writeSelections(pageInfoID, selectionsOrRaw(pageInfoSel, pageInfoObj), variables, pageInfoObj, origin)

	pageRecord := graph.Record{}
	if tn, ok := obj["__typename"]; ok {
		pageRecord["__typename"] = tn
	}
	for responseKey, childSel := range sel.Selections {
		if responseKey == "edges" || responseKey == "pageInfo" {
			continue
		}
		if value, present := obj[responseKey]; present {
			pageRecord[graph.FieldKey(childSel.Field, childSel.HasArgs, childSel.StringifyArgs(variables))] = value
		}
	}
	pageRecord["edges"] = graph.Refs{IDs: edgeIDs}
	pageRecord["pageInfo"] = graph.Ref{ID: pageInfoID}
	n.store.PutRecord(pageKey, pageRecord)

	n.canonical.Update(sel, parentID, variables, pageKey, origin)

	return graph.Ref{ID: pageKey}
}

// selectionsOrRaw returns sel's static sub-selections, or a synthetic
// selection map covering every key present in raw when sel has none (a
// connection's pageInfo sub-selection is optional in the plan but its
// fields still need writing verbatim).
func selectionsOrRaw(sel *compiler.Selection, raw map[string]interface{}) map[string]*compiler.Selection {
	if sel != nil && len(sel.Selections) > 0 {
		return sel.Selections
	}
	out := make(map[string]*compiler.Selection, len(raw))
	for k := range raw {
		out[k] = &compiler.Selection{Field: k}
	}
	return out
}
