package materializer

import (
	"testing"

	"github.com/cachebay/cachebay/internal/canonical"
	"github.com/cachebay/cachebay/internal/compiler"
	"github.com/cachebay/cachebay/internal/graph"
	"github.com/cachebay/cachebay/internal/normalizer"
)

func newFixture() (*graph.Store, *normalizer.Normalizer, *Materializer, *compiler.Compiler) {
	store := graph.NewStore(graph.IdentityConfig{}, nil)
	canon := canonical.New(store, nil)
	n := normalizer.New(store, canon, nil)
	m := New(store, canon, nil)
	c := compiler.New()
	return store, n, m, c
}

func TestMaterializeDocumentRoundTripsScalarsAndEntity(t *testing.T) {
	_, n, m, c := newFixture()
	plan, err := c.Compile(`query { post { id __typename title author { id __typename name } } }`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	n.Normalize(normalizer.Input{Plan: plan, Data: map[string]interface{}{
		"post": map[string]interface{}{
			"__typename": "Post", "id": "1", "title": "Hello",
			"author": map[string]interface{}{"__typename": "User", "id": "2", "name": "Ada"},
		},
	}})

	result := m.MaterializeDocument(plan, nil)
	if !result.Complete {
		t.Fatal("expected a fully materializable result")
	}
	post, ok := result.Data["post"].(map[string]interface{})
	if !ok || post["title"] != "Hello" {
		t.Fatalf("got %v", result.Data)
	}
	author, ok := post["author"].(map[string]interface{})
	if !ok || author["name"] != "Ada" {
		t.Fatalf("got %v", post)
	}
}

func TestMaterializeDocumentIncompleteOnMissingField(t *testing.T) {
	_, n, m, c := newFixture()
	plan, err := c.Compile(`query { viewer { id __typename name email } }`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	n.Normalize(normalizer.Input{Plan: plan, Data: map[string]interface{}{
		"viewer": map[string]interface{}{"__typename": "User", "id": "1", "name": "Ada"},
	}})

	result := m.MaterializeDocument(plan, nil)
	if result.Complete {
		t.Fatal("expected incomplete result: email was never normalized")
	}
}

func TestMaterializeDocumentIncompleteAfterRemoval(t *testing.T) {
	store, n, m, c := newFixture()
	plan, err := c.Compile(`query { viewer { id __typename name } }`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	n.Normalize(normalizer.Input{Plan: plan, Data: map[string]interface{}{
		"viewer": map[string]interface{}{"__typename": "User", "id": "1", "name": "Ada"},
	}})

	store.RemoveRecord("User:1")

	result := m.MaterializeDocument(plan, nil)
	if result.Complete {
		t.Fatal("expected incomplete result after removing the referenced entity")
	}
}

func TestMaterializeEntityReadsFieldsDirectly(t *testing.T) {
	store, _, m, c := newFixture()
	plan, err := c.Compile(`query { viewer { id __typename name } }`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	store.PutRecord("User:1", graph.Record{"id": "1", "__typename": "User", "name": "Ada"})

	result := m.MaterializeEntity("User:1", plan.Root["viewer"].Selections, nil)
	if !result.Complete || result.Data["name"] != "Ada" {
		t.Fatalf("got %+v", result)
	}
}

func TestMaterializeEntityMissingRecordIsIncomplete(t *testing.T) {
	_, _, m, c := newFixture()
	plan, err := c.Compile(`query { viewer { id __typename name } }`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	result := m.MaterializeEntity("User:999", plan.Root["viewer"].Selections, nil)
	if result.Complete {
		t.Fatal("expected incomplete result for an absent record")
	}
}

func TestReadFragmentAliasesMaterializeEntity(t *testing.T) {
	store, _, m, c := newFixture()
	plan, err := c.Compile(`fragment UserFields on User { id name }`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}
	store.PutRecord("User:1", graph.Record{"id": "1", "__typename": "User", "name": "Ada"})

	result := m.ReadFragment("User:1", plan, nil)
	if !result.Complete || result.Data["name"] != "Ada" {
		t.Fatalf("got %+v", result)
	}
}

func TestMaterializeInfiniteConnectionResolvesThroughCanonicalUnion(t *testing.T) {
	_, n, m, c := newFixture()
	plan, err := c.Compile(`
		query($after: String) {
			posts(first: 2, after: $after) @connection {
				edges { cursor node { id __typename title } }
				pageInfo { hasNextPage hasPreviousPage startCursor endCursor }
			}
		}
	`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	n.Normalize(normalizer.Input{Plan: plan, Data: map[string]interface{}{
		"posts": map[string]interface{}{
			"edges": []interface{}{
				map[string]interface{}{"cursor": "c1", "node": map[string]interface{}{"__typename": "Post", "id": "1", "title": "A"}},
			},
			"pageInfo": map[string]interface{}{
				"hasNextPage": true, "hasPreviousPage": false,
				"startCursor": "c1", "endCursor": "c1",
			},
		},
	}})
	n.Normalize(normalizer.Input{Plan: plan, Variables: map[string]interface{}{"after": "c1"}, Data: map[string]interface{}{
		"posts": map[string]interface{}{
			"edges": []interface{}{
				map[string]interface{}{"cursor": "c2", "node": map[string]interface{}{"__typename": "Post", "id": "2", "title": "B"}},
			},
			"pageInfo": map[string]interface{}{
				"hasNextPage": false, "hasPreviousPage": true,
				"startCursor": "c2", "endCursor": "c2",
			},
		},
	}})

	result := m.MaterializeDocument(plan, nil)
	if !result.Complete {
		t.Fatalf("expected complete result, got %+v", result)
	}
	posts, ok := result.Data["posts"].(map[string]interface{})
	if !ok {
		t.Fatalf("got %v", result.Data)
	}
	edges, ok := posts["edges"].([]interface{})
	if !ok || len(edges) != 2 {
		t.Fatalf("got %v edges, want the union of both pages", posts["edges"])
	}
}

func TestMaterializePageModeResolvesToConcretePage(t *testing.T) {
	_, n, m, c := newFixture()
	plan, err := c.Compile(`
		query {
			posts(first: 2) @connection(mode: "page") {
				edges { node { id } }
				pageInfo { hasNextPage }
			}
		}
	`)
	if err != nil {
		t.Fatalf("compile: %v", err)
	}

	n.Normalize(normalizer.Input{Plan: plan, Data: map[string]interface{}{
		"posts": map[string]interface{}{
			"edges": []interface{}{
				map[string]interface{}{"node": map[string]interface{}{"__typename": "Post", "id": "1"}},
			},
			"pageInfo": map[string]interface{}{"hasNextPage": true},
		},
	}})
	n.Normalize(normalizer.Input{Plan: plan, Variables: map[string]interface{}{"after": "c1"}, Data: map[string]interface{}{
		"posts": map[string]interface{}{
			"edges": []interface{}{
				map[string]interface{}{"node": map[string]interface{}{"__typename": "Post", "id": "2"}},
			},
			"pageInfo": map[string]interface{}{"hasNextPage": false},
		},
	}})

	result := m.MaterializeDocument(plan, map[string]interface{}{"after": "c1"})
	posts, ok := result.Data["posts"].(map[string]interface{})
	if !ok {
		t.Fatalf("got %v", result.Data)
	}
	edges, _ := posts["edges"].([]interface{})
	if len(edges) != 1 {
		t.Fatalf("got %d edges, want 1 (page mode mirrors only the requested page)", len(edges))
	}
}
