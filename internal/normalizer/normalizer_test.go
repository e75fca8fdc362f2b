package normalizer

import (
	"testing"

	"github.com/cachebay/cachebay/internal/canonical"
	"github.com/cachebay/cachebay/internal/compiler"
	"github.com/cachebay/cachebay/internal/graph"
)

func newFixture() (*graph.Store, *canonical.Engine, *Normalizer, *compiler.Compiler) {
	store := graph.NewStore(graph.IdentityConfig{}, nil)
	canon := canonical.New(store, nil)
	n := New(store, canon, nil)
	c := compiler.New()
	return store, canon, n, c
}

func TestNormalizeWritesScalarsOntoRoot(t *testing.T) {
	store, _, n, c := newFixture()
	plan, err := c.Compile(`query { viewer { id __typename name } }`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	n.Normalize(Input{Plan: plan, Data: map[string]interface{}{
		"viewer": map[string]interface{}{"__typename": "User", "id": "1", "name": "Ada"},
	}})

	rec := store.GetRecord("User:1")
	if rec["name"] != "Ada" {
		t.Fatalf("got %v, want record with name Ada", rec)
	}

	root := store.GetRecord(graph.RootID)
	ref, ok := root["viewer"].(graph.Ref)
	if !ok || ref.ID != "User:1" {
		t.Fatalf("got root.viewer %v, want Ref{User:1}", root["viewer"])
	}
}

func TestNormalizeWritesNestedEntity(t *testing.T) {
	store, _, n, c := newFixture()
	plan, err := c.Compile(`query { post { id __typename title author { id __typename name } } }`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	n.Normalize(Input{Plan: plan, Data: map[string]interface{}{
		"post": map[string]interface{}{
			"__typename": "Post", "id": "1", "title": "Hello",
			"author": map[string]interface{}{"__typename": "User", "id": "2", "name": "Ada"},
		},
	}})

	post := store.GetRecord("Post:1")
	ref, ok := post["author"].(graph.Ref)
	if !ok || ref.ID != "User:2" {
		t.Fatalf("got post.author %v, want Ref{User:2}", post["author"])
	}
	author := store.GetRecord("User:2")
	if author["name"] != "Ada" {
		t.Fatalf("got author %v", author)
	}
}

func TestNormalizeWritesListOfEntitiesAsRefs(t *testing.T) {
	store, _, n, c := newFixture()
	plan, err := c.Compile(`query { users { id __typename name } }`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	n.Normalize(Input{Plan: plan, Data: map[string]interface{}{
		"users": []interface{}{
			map[string]interface{}{"__typename": "User", "id": "1", "name": "Ada"},
			map[string]interface{}{"__typename": "User", "id": "2", "name": "Grace"},
		},
	}})

	root := store.GetRecord(graph.RootID)
	refs, ok := root["users"].(graph.Refs)
	if !ok || len(refs.IDs) != 2 {
		t.Fatalf("got root.users %v, want Refs of length 2", root["users"])
	}
	if refs.IDs[0] != "User:1" || refs.IDs[1] != "User:2" {
		t.Fatalf("got %v, want [User:1 User:2] in order", refs.IDs)
	}
}

func TestNormalizeWritesPlainScalarListInline(t *testing.T) {
	store, _, n, c := newFixture()
	plan, err := c.Compile(`query { tags }`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	n.Normalize(Input{Plan: plan, Data: map[string]interface{}{
		"tags": []interface{}{"go", "graphql"},
	}})

	root := store.GetRecord(graph.RootID)
	got, ok := root["tags"].([]interface{})
	if !ok || len(got) != 2 || got[0] != "go" {
		t.Fatalf("got %v, want inline list [go graphql]", root["tags"])
	}
}

func TestNormalizeWritesInlineStructuralObjectWithoutIdentity(t *testing.T) {
	store, _, n, c := newFixture()
	plan, err := c.Compile(`query { settings { theme } }`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	n.Normalize(Input{Plan: plan, Data: map[string]interface{}{
		"settings": map[string]interface{}{"theme": "dark"},
	}})

	root := store.GetRecord(graph.RootID)
	ref, ok := root["settings"].(graph.Ref)
	if !ok {
		t.Fatalf("got %v, want Ref to a structural path", root["settings"])
	}
	structRec := store.GetRecord(ref.ID)
	if structRec["theme"] != "dark" {
		t.Fatalf("got %v", structRec)
	}
}

func TestNormalizeConnectionWritesEdgesPageInfoAndCanonical(t *testing.T) {
	store, canon, n, c := newFixture()
	plan, err := c.Compile(`
		query {
			posts(first: 2) @connection {
				edges { cursor node { id __typename title } }
				pageInfo { hasNextPage hasPreviousPage startCursor endCursor }
			}
		}
	`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	n.Normalize(Input{Plan: plan, Data: map[string]interface{}{
		"posts": map[string]interface{}{
			"edges": []interface{}{
				map[string]interface{}{"cursor": "c1", "node": map[string]interface{}{"__typename": "Post", "id": "1", "title": "A"}},
				map[string]interface{}{"cursor": "c2", "node": map[string]interface{}{"__typename": "Post", "id": "2", "title": "B"}},
			},
			"pageInfo": map[string]interface{}{
				"hasNextPage": true, "hasPreviousPage": false,
				"startCursor": "c1", "endCursor": "c2",
			},
		},
	}})

	root := store.GetRecord(graph.RootID)
	pageRef, ok := root[`posts({"first":2})`].(graph.Ref)
	if !ok {
		t.Fatalf("got %v, want Ref to the concrete page", root[`posts({"first":2})`])
	}
	page := store.GetRecord(pageRef.ID)
	edgeRefs, _ := page["edges"].(graph.Refs)
	if len(edgeRefs.IDs) != 2 {
		t.Fatalf("got %d edges, want 2", len(edgeRefs.IDs))
	}

	canonicalKey := canonical.Key(graph.RootID, "posts", `{}`)
	canonicalRec := store.GetRecord(canonicalKey)
	if canonicalRec == nil {
		t.Fatal("expected canonical.Update to have created a canonical record")
	}
	canonRefs, _ := canonicalRec["edges"].(graph.Refs)
	if len(canonRefs.IDs) != 2 {
		t.Fatalf("got %d canonical edges, want 2", len(canonRefs.IDs))
	}
}

func TestNormalizeConnectionSkipsWhenMissingEdgesOrPageInfo(t *testing.T) {
	store, _, n, c := newFixture()
	plan, err := c.Compile(`
		query {
			posts(first: 2) @connection {
				edges { node { id } }
				pageInfo { hasNextPage }
			}
		}
	`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	n.Normalize(Input{Plan: plan, Data: map[string]interface{}{
		"posts": map[string]interface{}{
			"pageInfo": map[string]interface{}{"hasNextPage": true},
		},
	}})

	root := store.GetRecord(graph.RootID)
	if _, has := root[`posts({"first":2})`]; has {
		t.Fatalf("expected posts field to be absent when edges missing, got %v", root[`posts({"first":2})`])
	}
}

func TestNormalizeEntityWritesFragmentOntoExistingRecord(t *testing.T) {
	store, _, n, c := newFixture()
	store.PutRecord("Post:1", graph.Record{"id": "1", "__typename": "Post", "title": "A"})

	plan, err := c.Compile(`fragment PostFields on Post { title views }`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	n.NormalizeEntity("Post:1", plan.Root, nil, map[string]interface{}{"title": "B", "views": 10}, "network")

	rec := store.GetRecord("Post:1")
	if rec["title"] != "B" || rec["views"] != 10 {
		t.Fatalf("got %v", rec)
	}
}

func TestNormalizeMissingFieldIsTolerated(t *testing.T) {
	store, _, n, c := newFixture()
	plan, err := c.Compile(`query { viewer { id __typename name email } }`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	n.Normalize(Input{Plan: plan, Data: map[string]interface{}{
		"viewer": map[string]interface{}{"__typename": "User", "id": "1", "name": "Ada"},
	}})

	rec := store.GetRecord("User:1")
	if _, has := rec["email"]; has {
		t.Fatalf("did not expect email field to be written, got %v", rec)
	}
}
