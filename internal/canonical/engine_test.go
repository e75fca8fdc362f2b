package canonical

import (
	"testing"

	"github.com/cachebay/cachebay/internal/compiler"
	"github.com/cachebay/cachebay/internal/graph"
)

func connectionSelection(t *testing.T, document string) *compiler.Selection {
	t.Helper()
	c := compiler.New()
	plan, err := c.Compile(document)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	for _, sel := range plan.Root {
		if sel.IsConnection {
			return sel
		}
	}
	t.Fatal("expected a @connection selection in document")
	return nil
}

func putPage(store *graph.Store, pageKey graph.RecordId, nodeIDs []string, startCursor, endCursor string, hasNext, hasPrev bool) {
	pageInfoKey := pageKey + ".pageInfo"
	edgeIDs := make([]graph.RecordId, len(nodeIDs))
	for i, nodeID := range nodeIDs {
		edgeID := graph.RecordId(pageKey + ".edges:" + string(rune('0'+i)))
		edgeIDs[i] = edgeID
		store.PutRecord(edgeID, graph.Record{
			"__typename": "PostEdge",
			"cursor":     nodeID,
			"node":       graph.Ref{ID: graph.RecordId("Post:" + nodeID)},
		})
		store.PutRecord(graph.RecordId("Post:"+nodeID), graph.Record{"id": nodeID, "__typename": "Post"})
	}
	store.PutRecord(pageInfoKey, graph.Record{
		"startCursor":     startCursor,
		"endCursor":       endCursor,
		"hasNextPage":     hasNext,
		"hasPreviousPage": hasPrev,
	})
	store.PutRecord(pageKey, graph.Record{
		"edges":    graph.Refs{IDs: edgeIDs},
		"pageInfo": graph.Ref{ID: pageInfoKey},
	})
}

func TestUpdateInfiniteModeLeaderOnlyBuildsCanonicalUnion(t *testing.T) {
	store := graph.NewStore(graph.IdentityConfig{}, nil)
	e := New(store, nil)
	sel := connectionSelection(t, `
		query {
			posts(first: 2) @connection {
				edges { node { id } }
				pageInfo { hasNextPage hasPreviousPage startCursor endCursor }
			}
		}
	`)

	pageKey := graph.RecordId("@.posts(first:2):page1")
	putPage(store, pageKey, []string{"1", "2"}, "c1", "c2", true, false)

	canonicalKey := e.Update(sel, graph.RootID, map[string]interface{}{}, pageKey, "network")

	rec := store.GetRecord(canonicalKey)
	refs, _ := rec["edges"].(graph.Refs)
	if len(refs.IDs) != 2 {
		t.Fatalf("got %d edges, want 2", len(refs.IDs))
	}
}

func TestUpdateInfiniteModeAfterPageAppendsAndDedupes(t *testing.T) {
	store := graph.NewStore(graph.IdentityConfig{}, nil)
	e := New(store, nil)
	sel := connectionSelection(t, `
		query($after: String) {
			posts(first: 2, after: $after) @connection {
				edges { node { id } }
				pageInfo { hasNextPage hasPreviousPage startCursor endCursor }
			}
		}
	`)

	leaderKey := graph.RecordId("@.posts(first:2):leader")
	putPage(store, leaderKey, []string{"1", "2"}, "c1", "c2", true, false)
	canonicalKey := e.Update(sel, graph.RootID, map[string]interface{}{}, leaderKey, "network")

	afterKey := graph.RecordId("@.posts(first:2,after:c2):after")
	putPage(store, afterKey, []string{"2", "3"}, "c2", "c3", false, true)
	e.Update(sel, graph.RootID, map[string]interface{}{"after": "c2"}, afterKey, "network")

	rec := store.GetRecord(canonicalKey)
	refs, _ := rec["edges"].(graph.Refs)
	if len(refs.IDs) != 3 {
		t.Fatalf("got %d edges, want 3 (node 2 deduped), got refs %v", len(refs.IDs), refs.IDs)
	}

	pageInfo := store.GetRecord(PageInfoKey(canonicalKey))
	if pageInfo["hasNextPage"] != false {
		t.Fatalf("got hasNextPage %v, want false (from last page)", pageInfo["hasNextPage"])
	}
	if pageInfo["startCursor"] != "c1" {
		t.Fatalf("got startCursor %v, want c1 (from first page)", pageInfo["startCursor"])
	}
}

// TestUpdateInfiniteModeBeforePageLeaderMerge exercises the 3-page
// before/leader/after merge (spec §8 Scenario 3): a leader page opens the
// connection, then a "before" page and an "after" page are each folded in,
// and orderedPages must sequence them before-leader-after regardless of
// the order the pages were fetched in.
func TestUpdateInfiniteModeBeforePageLeaderMerge(t *testing.T) {
	store := graph.NewStore(graph.IdentityConfig{}, nil)
	e := New(store, nil)
	sel := connectionSelection(t, `
		query($after: String, $before: String) {
			posts(first: 2, after: $after, before: $before) @connection {
				edges { node { id } }
				pageInfo { hasNextPage hasPreviousPage startCursor endCursor }
			}
		}
	`)

	leaderKey := graph.RecordId("@.posts(first:2):leader")
	putPage(store, leaderKey, []string{"3", "4"}, "c3", "c4", true, true)
	canonicalKey := e.Update(sel, graph.RootID, map[string]interface{}{}, leaderKey, "network")

	// Fetched after the leader, but logically precedes it.
	beforeKey := graph.RecordId("@.posts(first:2,before:c3):before")
	putPage(store, beforeKey, []string{"1", "2"}, "c1", "c2", false, false)
	e.Update(sel, graph.RootID, map[string]interface{}{"before": "c3"}, beforeKey, "network")

	afterKey := graph.RecordId("@.posts(first:2,after:c4):after")
	putPage(store, afterKey, []string{"5", "6"}, "c5", "c6", false, false)
	e.Update(sel, graph.RootID, map[string]interface{}{"after": "c4"}, afterKey, "network")

	rec := store.GetRecord(canonicalKey)
	refs, _ := rec["edges"].(graph.Refs)
	if len(refs.IDs) != 6 {
		t.Fatalf("got %d edges, want 6 (before+leader+after, no overlap), got refs %v", len(refs.IDs), refs.IDs)
	}

	wantNodes := []string{"1", "2", "3", "4", "5", "6"}
	for i, edgeID := range refs.IDs {
		edge := store.GetRecord(edgeID)
		ref, _ := edge["node"].(graph.Ref)
		if ref.ID != graph.RecordId("Post:"+wantNodes[i]) {
			t.Fatalf("edge %d: got node %v, want Post:%s (order must be before, leader, after)", i, ref.ID, wantNodes[i])
		}
	}

	pageInfo := store.GetRecord(PageInfoKey(canonicalKey))
	if pageInfo["startCursor"] != "c1" {
		t.Fatalf("got startCursor %v, want c1 (from first page in merged order)", pageInfo["startCursor"])
	}
	if pageInfo["endCursor"] != "c6" {
		t.Fatalf("got endCursor %v, want c6 (from last page in merged order)", pageInfo["endCursor"])
	}
}

func TestUpdatePageModeMirrorsLatestPageVerbatim(t *testing.T) {
	store := graph.NewStore(graph.IdentityConfig{}, nil)
	e := New(store, nil)
	sel := connectionSelection(t, `
		query {
			posts(first: 2) @connection(mode: "page") {
				edges { node { id } }
				pageInfo { hasNextPage }
			}
		}
	`)

	page1 := graph.RecordId("@.posts(first:2):p1")
	putPage(store, page1, []string{"1", "2"}, "c1", "c2", true, false)
	canonicalKey := e.Update(sel, graph.RootID, map[string]interface{}{}, page1, "network")

	rec := store.GetRecord(canonicalKey)
	refs, _ := rec["edges"].(graph.Refs)
	if len(refs.IDs) != 2 {
		t.Fatalf("got %d edges, want 2", len(refs.IDs))
	}

	page2 := graph.RecordId("@.posts(first:2,after:c2):p2")
	putPage(store, page2, []string{"3", "4"}, "c3", "c4", false, true)
	e.Update(sel, graph.RootID, map[string]interface{}{"after": "c2"}, page2, "network")

	rec = store.GetRecord(canonicalKey)
	refs, _ = rec["edges"].(graph.Refs)
	if len(refs.IDs) != 2 {
		t.Fatalf("got %d edges after second page, want 2 (page mode mirrors, does not union)", len(refs.IDs))
	}
}

func TestGCRemovesCanonicalConnectionAndItsPages(t *testing.T) {
	store := graph.NewStore(graph.IdentityConfig{}, nil)
	e := New(store, nil)
	sel := connectionSelection(t, `
		query {
			posts(first: 2) @connection {
				edges { node { id } }
				pageInfo { hasNextPage }
			}
		}
	`)

	pageKey := graph.RecordId("@.posts(first:2):page1")
	putPage(store, pageKey, []string{"1"}, "c1", "c1", false, false)
	canonicalKey := e.Update(sel, graph.RootID, map[string]interface{}{}, pageKey, "network")

	e.GC(func(key graph.RecordId, state GCState) bool { return true })

	if store.GetRecord(canonicalKey) != nil {
		t.Fatal("expected canonical record to be removed")
	}
	if store.GetRecord(PageInfoKey(canonicalKey)) != nil {
		t.Fatal("expected canonical pageInfo to be removed")
	}
	if store.GetRecord(MetaKey(canonicalKey)) != nil {
		t.Fatal("expected meta record to be removed")
	}
}

func TestGCKeepsRecordsWhenPredicateReturnsFalse(t *testing.T) {
	store := graph.NewStore(graph.IdentityConfig{}, nil)
	e := New(store, nil)
	sel := connectionSelection(t, `
		query {
			posts(first: 2) @connection {
				edges { node { id } }
				pageInfo { hasNextPage }
			}
		}
	`)

	pageKey := graph.RecordId("@.posts(first:2):page1")
	putPage(store, pageKey, []string{"1"}, "c1", "c1", false, false)
	canonicalKey := e.Update(sel, graph.RootID, map[string]interface{}{}, pageKey, "network")

	e.GC(func(key graph.RecordId, state GCState) bool { return false })

	if store.GetRecord(canonicalKey) == nil {
		t.Fatal("expected canonical record to survive")
	}
}

func TestKeyDiffersForRootVsNestedParent(t *testing.T) {
	rootKey := Key(graph.RootID, "posts", "{}")
	nestedKey := Key("User:1", "posts", "{}")
	if rootKey == nestedKey {
		t.Fatal("expected distinct canonical keys for root vs nested parent")
	}
}
