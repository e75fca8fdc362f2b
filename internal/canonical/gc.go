package canonical

import "github.com/cachebay/cachebay/internal/graph"

// GCState describes the kind of record a GC predicate is being asked about.
type GCState struct {
	Kind          string // "canonical" | "page"
	CanonicalKey  graph.RecordId
}

// trackPage remembers that pageKey has contributed to canonicalKey, so GC
// can later enumerate every page a canonical connection has ever absorbed
// (including ones `mode:"page"` has since overwritten) — spec §5 "A
// gc.connections(predicate?) sweeper drops canonical/meta/page records".
func (e *Engine) trackPage(canonicalKey, pageKey graph.RecordId) {
	if e.pages == nil {
		e.pages = make(map[graph.RecordId][]graph.RecordId)
	}
	for _, p := range e.pages[canonicalKey] {
		if p == pageKey {
			return
		}
	}
	e.pages[canonicalKey] = append(e.pages[canonicalKey], pageKey)
}

// GC sweeps canonical connections and their constituent pages, removing
// those for which predicate returns true. Removing a canonical connection
// also removes every page tracked for it. Only connections whose pages were
// folded in through Update on this Engine are visited; connection records
// that reached the store any other way (for example through hydrate) are not.
func (e *Engine) GC(predicate func(key graph.RecordId, state GCState) bool) {
	for canonicalKey, pageKeys := range e.pages {
		if predicate(canonicalKey, GCState{Kind: "canonical", CanonicalKey: canonicalKey}) {
			for _, pageKey := range pageKeys {
				e.removePage(pageKey)
			}
			e.store.RemoveRecord(canonicalKey)
			e.store.RemoveRecord(PageInfoKey(canonicalKey))
			e.store.RemoveRecord(MetaKey(canonicalKey))
			delete(e.pages, canonicalKey)
			continue
		}

		kept := pageKeys[:0:0]
		for _, pageKey := range pageKeys {
			if predicate(pageKey, GCState{Kind: "page", CanonicalKey: canonicalKey}) {
				e.removePage(pageKey)
				continue
			}
			kept = append(kept, pageKey)
		}
		e.pages[canonicalKey] = kept
	}
}

func (e *Engine) removePage(pageKey graph.RecordId) {
	page := e.store.GetRecord(pageKey)
	if page != nil {
		if refs, ok := page["edges"].(graph.Refs); ok {
			for _, id := range refs.IDs {
				e.store.RemoveRecord(id)
			}
		}
		if ref, ok := page["pageInfo"].(graph.Ref); ok {
			e.store.RemoveRecord(ref.ID)
		}
	}
	e.store.RemoveRecord(pageKey)
}
