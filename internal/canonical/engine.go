// Package canonical implements the canonical connection engine: it merges
// paginated pages of a @connection field into a single, deduplicated,
// ordered union with aggregated pageInfo (spec §4.4).
package canonical

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/cachebay/cachebay/internal/compiler"
	"github.com/cachebay/cachebay/internal/graph"
)

// Engine owns canonical-connection bookkeeping and rebuilds.
type Engine struct {
	store   *graph.Store
	logger  *zap.Logger
	onBuild func(canonicalKey graph.RecordId) // metrics hook, optional
	pages   map[graph.RecordId][]graph.RecordId
}

// New creates an Engine bound to store.
func New(store *graph.Store, logger *zap.Logger) *Engine {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Engine{store: store, logger: logger}
}

// SetOnBuild installs an observability hook invoked once per rebuild.
func (e *Engine) SetOnBuild(fn func(canonicalKey graph.RecordId)) { e.onBuild = fn }

// Key returns the canonical key for a connection rooted at parentID with
// the given connectionKey and filter args (spec §3).
func Key(parentID graph.RecordId, connectionKey string, filterArgsJSON string) graph.RecordId {
	if parentID == graph.RootID {
		return fmt.Sprintf("@connection.%s(%s)", connectionKey, filterArgsJSON)
	}
	return fmt.Sprintf("@connection.%s.%s(%s)", parentID, connectionKey, filterArgsJSON)
}

// MetaKey returns the sibling bookkeeping record key for a canonical key.
func MetaKey(canonicalKey graph.RecordId) graph.RecordId { return canonicalKey + "::meta" }

// PageInfoKey returns the sibling pageInfo record key for a canonical key.
func PageInfoKey(canonicalKey graph.RecordId) graph.RecordId { return canonicalKey + ".pageInfo" }

// Update folds one freshly-normalized page into its canonical connection
// (spec §4.4 "Modes"). origin is "network" or "cache".
func (e *Engine) Update(sel *compiler.Selection, parentID graph.RecordId, variables map[string]interface{}, pageKey graph.RecordId, origin string) graph.RecordId {
	filtersJSON := graph.StringifyArgs(sel.CanonicalFilterArgs(variables))
	canonicalKey := Key(parentID, sel.ConnectionKey, filtersJSON)
	e.trackPage(canonicalKey, pageKey)

	if sel.ConnectionMode == compiler.ConnectionPage {
		e.rebuildPageMode(canonicalKey, pageKey)
		return canonicalKey
	}

	args := sel.BuildArgs(variables)
	hasAfter := args["after"] != nil
	hasBefore := args["before"] != nil
	isLeader := !hasAfter && !hasBefore

	metaKey := MetaKey(canonicalKey)
	meta := metaFromRecord(e.store.GetRecord(metaKey))

	if isLeader && origin == "network" {
		meta = newMeta()
		meta.Pages = []graph.RecordId{pageKey}
		meta.Leader = pageKey
		meta.Hints[pageKey] = "leader"
		meta.Origin[pageKey] = origin
		meta.LastNetworkPage = pageKey
	} else {
		if !meta.hasPage(pageKey) {
			meta.Pages = append(meta.Pages, pageKey)
		}
		meta.Origin[pageKey] = origin

		switch {
		case isLeader:
			if meta.Leader == "" {
				meta.Leader = pageKey
			}
			meta.Hints[pageKey] = "leader"
		case hasBefore:
			meta.Hints[pageKey] = "before"
		case hasAfter:
			meta.Hints[pageKey] = "after"
		default:
			meta.Hints[pageKey] = "after" // unknown role defaults to "after" (spec §9 open question)
		}

		if meta.Leader != "" {
			meta.Hints[meta.Leader] = "leader"
		}
		if origin == "network" {
			meta.LastNetworkPage = pageKey
		}
	}

	e.store.PutRecord(metaKey, meta.toRecord())
	e.rebuild(canonicalKey, meta)
	if e.onBuild != nil {
		e.onBuild(canonicalKey)
	}
	return canonicalKey
}

// orderedPages sequences a canonical connection's constituent pages as
// before-pages (reverse insertion order, outermost first), the leader, then
// after-pages (insertion order) — spec §4.4 "Rebuild algorithm" step 1.
func orderedPages(meta Meta) []graph.RecordId {
	var before, after []graph.RecordId
	for _, p := range meta.Pages {
		if p == meta.Leader {
			continue
		}
		switch meta.Hints[p] {
		case "before":
			before = append(before, p)
		default: // "after" and unknown both land after (spec §9)
			after = append(after, p)
		}
	}
	ordered := make([]graph.RecordId, 0, len(before)+len(after)+1)
	for i := len(before) - 1; i >= 0; i-- {
		ordered = append(ordered, before[i])
	}
	if meta.Leader != "" {
		ordered = append(ordered, meta.Leader)
	}
	ordered = append(ordered, after...)
	return ordered
}

// rebuild walks the ordered page sequence, dedupes edges by node reference
// (first occurrence wins, later occurrences refresh non-structural edge
// fields), and aggregates pageInfo (spec §4.4 "Rebuild algorithm").
func (e *Engine) rebuild(canonicalKey graph.RecordId, meta Meta) {
	pages := orderedPages(meta)

	seenNode := make(map[graph.RecordId]graph.RecordId) // node id -> retained edge id
	var canonicalEdgeIDs []graph.RecordId

	for _, pageKey := range pages {
		page := e.store.GetRecord(pageKey)
		if page == nil {
			continue
		}
		refs, _ := page["edges"].(graph.Refs)
		for _, edgeID := range refs.IDs {
			edge := e.store.GetRecord(edgeID)
			if edge == nil {
				continue
			}
			ref, _ := edge["node"].(graph.Ref)
			nodeID := ref.ID
			if nodeID == "" {
				continue // node missing on this edge (spec §4.3 edge case)
			}
			if retained, dup := seenNode[nodeID]; dup {
				e.refreshEdge(retained, edge)
				continue
			}
			seenNode[nodeID] = edgeID
			canonicalEdgeIDs = append(canonicalEdgeIDs, edgeID)
		}
	}

	canonicalPageInfo := e.aggregatePageInfo(pages)

	extras := graph.Record{}
	extrasSource := meta.LastNetworkPage
	if extrasSource == "" && len(pages) > 0 {
		extrasSource = pages[len(pages)-1]
	}
	if extrasSource != "" {
		if src := e.store.GetRecord(extrasSource); src != nil {
			for k, v := range src {
				if k == "edges" || k == "pageInfo" {
					continue
				}
				extras[k] = v
			}
		}
	}

	canonicalRecord := extras.Clone()
	canonicalRecord["edges"] = graph.Refs{IDs: canonicalEdgeIDs}
	canonicalRecord["pageInfo"] = graph.Ref{ID: PageInfoKey(canonicalKey)}

	e.store.PutRecord(canonicalKey, canonicalRecord)
	e.store.PutRecord(PageInfoKey(canonicalKey), canonicalPageInfo)
}

// refreshEdge merges edge's non-structural fields (everything but node and
// __typename) onto the retained edge record, without re-including it (spec
// I4, §4.4 rebuild step 2).
func (e *Engine) refreshEdge(retainedID graph.RecordId, incoming graph.Record) {
	patch := graph.Record{}
	for k, v := range incoming {
		if k == "node" || k == "__typename" {
			continue
		}
		patch[k] = v
	}
	if len(patch) > 0 {
		e.store.PutRecord(retainedID, patch)
	}
}

func (e *Engine) aggregatePageInfo(pages []graph.RecordId) graph.Record {
	out := graph.Record{
		"startCursor":     nil,
		"hasPreviousPage": false,
		"endCursor":       nil,
		"hasNextPage":     false,
	}
	if len(pages) == 0 {
		return out
	}
	first := e.pageInfoOf(pages[0])
	last := e.pageInfoOf(pages[len(pages)-1])
	if first != nil {
		out["startCursor"] = first["startCursor"]
		out["hasPreviousPage"] = first["hasPreviousPage"]
	}
	if last != nil {
		out["endCursor"] = last["endCursor"]
		out["hasNextPage"] = last["hasNextPage"]
	}
	return out
}

func (e *Engine) pageInfoOf(pageKey graph.RecordId) graph.Record {
	page := e.store.GetRecord(pageKey)
	if page == nil {
		return nil
	}
	ref, ok := page["pageInfo"].(graph.Ref)
	if !ok {
		return nil
	}
	return e.store.GetRecord(ref.ID)
}

// rebuildPageMode mirrors the latest page verbatim into the canonical
// record, with no union/dedup and no meta bookkeeping (spec §4.4 "mode:
// page").
func (e *Engine) rebuildPageMode(canonicalKey, pageKey graph.RecordId) {
	page := e.store.GetRecord(pageKey)
	if page == nil {
		return
	}
	pageInfoRec := graph.Record{}
	if ref, ok := page["pageInfo"].(graph.Ref); ok {
		if rec := e.store.GetRecord(ref.ID); rec != nil {
			pageInfoRec = rec
		}
	}

	canonicalRecord := page.Clone()
	delete(canonicalRecord, "pageInfo")
	canonicalRecord["pageInfo"] = graph.Ref{ID: PageInfoKey(canonicalKey)}

	e.store.PutRecord(canonicalKey, canonicalRecord)
	e.store.PutRecord(PageInfoKey(canonicalKey), pageInfoRec)
	if e.onBuild != nil {
		e.onBuild(canonicalKey)
	}
}
