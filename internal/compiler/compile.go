package compiler

import (
	"fmt"
	"strconv"
	"sync"

	"github.com/vektah/gqlparser/v2/ast"
	"github.com/vektah/gqlparser/v2/parser"
)

// Compiler compiles GraphQL documents into Plans and caches them by
// document identity (the raw document source), so that repeated
// normalize/materialize calls against the same query pay the parse/compile
// cost once (spec §4.1 "The plan is cached by document identity").
type Compiler struct {
	mu    sync.Mutex
	cache map[string]*Plan
}

// New creates an empty Compiler.
func New() *Compiler {
	return &Compiler{cache: make(map[string]*Plan)}
}

// CachedDocuments returns the source text of every document currently
// cached, for inspect/debug surfaces (spec §6 "dump operations").
func (c *Compiler) CachedDocuments() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.cache))
	for doc := range c.cache {
		out = append(out, doc)
	}
	return out
}

// Compile parses and compiles document, returning a cached Plan on repeat
// calls with the same source text.
func (c *Compiler) Compile(document string) (*Plan, error) {
	c.mu.Lock()
	if plan, ok := c.cache[document]; ok {
		c.mu.Unlock()
		return plan, nil
	}
	c.mu.Unlock()

	plan, err := compileDocument(document)
	if err != nil {
		return nil, err
	}

	c.mu.Lock()
	c.cache[document] = plan
	c.mu.Unlock()
	return plan, nil
}

func compileDocument(document string) (*Plan, error) {
	queryDoc, err := parser.ParseQuery(&ast.Source{Input: document})
	if err != nil {
		return nil, fmt.Errorf("compiler: parse document: %w", err)
	}
	if len(queryDoc.Operations) == 0 {
		if len(queryDoc.Fragments) == 1 {
			return compileFragmentOnly(queryDoc)
		}
		return nil, fmt.Errorf("compiler: document has no operations")
	}

	op := queryDoc.Operations[0]

	kind := OperationQuery
	rootTypename := "Query"
	switch op.Operation {
	case ast.Mutation:
		kind = OperationMutation
		rootTypename = "Mutation"
	case ast.Subscription:
		kind = OperationSubscription
		rootTypename = "Subscription"
	}

	root, err := compileSelectionSet(op.SelectionSet, queryDoc.Fragments, map[string]bool{})
	if err != nil {
		return nil, err
	}

	return &Plan{Kind: kind, RootTypename: rootTypename, Root: root}, nil
}

// compileFragmentOnly supports readFragment/writeFragment, whose source is
// a standalone fragment definition rather than an operation (spec §4.6,
// §7: "fragment source that does not contain exactly one fragment
// definition" is a usage error the caller validates before calling here).
func compileFragmentOnly(queryDoc *ast.QueryDocument) (*Plan, error) {
	frag := queryDoc.Fragments[0]
	root, err := compileSelectionSet(frag.SelectionSet, queryDoc.Fragments, map[string]bool{})
	if err != nil {
		return nil, err
	}
	return &Plan{Kind: OperationQuery, RootTypename: frag.TypeCondition, Root: root}, nil
}

// compileSelectionSet walks a selection set, inlining fragment spreads and
// inline fragments (spec §4.1 "Fragments are inlined at compile time").
// inFlight guards against self-referential fragment cycles.
func compileSelectionSet(set ast.SelectionSet, fragments ast.FragmentDefinitionList, inFlight map[string]bool) (map[string]*Selection, error) {
	out := make(map[string]*Selection)

	for _, sel := range set {
		switch node := sel.(type) {
		case *ast.Field:
			compiled, err := compileField(node, fragments, inFlight)
			if err != nil {
				return nil, err
			}
			out[compiled.ResponseKey] = compiled

		case *ast.FragmentSpread:
			if inFlight[node.Name] {
				return nil, fmt.Errorf("compiler: fragment cycle at %q", node.Name)
			}
			frag := fragments.ForName(node.Name)
			if frag == nil {
				return nil, fmt.Errorf("compiler: unknown fragment %q", node.Name)
			}
			inFlight[node.Name] = true
			nested, err := compileSelectionSet(frag.SelectionSet, fragments, inFlight)
			delete(inFlight, node.Name)
			if err != nil {
				return nil, err
			}
			for k, v := range nested {
				out[k] = v
			}

		case *ast.InlineFragment:
			nested, err := compileSelectionSet(node.SelectionSet, fragments, inFlight)
			if err != nil {
				return nil, err
			}
			for k, v := range nested {
				out[k] = v
			}
		}
	}

	return out, nil
}

func compileField(field *ast.Field, fragments ast.FragmentDefinitionList, inFlight map[string]bool) (*Selection, error) {
	responseKey := field.Alias
	if responseKey == "" {
		responseKey = field.Name
	}

	sel := &Selection{
		ResponseKey: responseKey,
		Field:       field.Name,
		HasArgs:     len(field.Arguments) > 0,
	}

	for _, arg := range field.Arguments {
		expr, err := compileArgValue(arg.Value)
		if err != nil {
			return nil, err
		}
		expr.name = arg.Name
		sel.args = append(sel.args, expr)
	}

	if len(field.SelectionSet) > 0 {
		nested, err := compileSelectionSet(field.SelectionSet, fragments, inFlight)
		if err != nil {
			return nil, err
		}
		sel.Selections = nested
	}

	if dir := field.Directives.ForName("connection"); dir != nil {
		applyConnectionDirective(sel, dir)
	}

	return sel, nil
}

// applyConnectionDirective reads @connection(key: ..., mode: ..., filter:
// [...]) metadata (spec §4.1). Without @connection a field is never treated
// as a connection, even if it declares edges/pageInfo.
func applyConnectionDirective(sel *Selection, dir *ast.Directive) {
	sel.IsConnection = true
	sel.ConnectionKey = sel.Field
	sel.ConnectionMode = ConnectionInfinite
	sel.connectionAllFilters = true

	if keyArg := dir.Arguments.ForName("key"); keyArg != nil && keyArg.Value.Kind == ast.StringValue {
		sel.ConnectionKey = keyArg.Value.Raw
	}
	if modeArg := dir.Arguments.ForName("mode"); modeArg != nil && modeArg.Value.Kind == ast.StringValue {
		if modeArg.Value.Raw == string(ConnectionPage) {
			sel.ConnectionMode = ConnectionPage
		}
	}
	if filterArg := dir.Arguments.ForName("filter"); filterArg != nil && filterArg.Value.Kind == ast.ListValue {
		var filters []string
		for _, child := range filterArg.Value.Children {
			if child.Value.Kind == ast.StringValue {
				filters = append(filters, child.Value.Raw)
			}
		}
		sel.ConnectionFilters = filters
		sel.connectionAllFilters = false
	}
}

// compileArgValue compiles a single AST value into an argExpr: either a
// bound variable reference or a decoded literal.
func compileArgValue(v *ast.Value) (argExpr, error) {
	if v.Kind == ast.Variable {
		return argExpr{isVar: true, varName: v.Raw}, nil
	}
	lit, err := decodeLiteral(v)
	if err != nil {
		return argExpr{}, err
	}
	return argExpr{literal: lit}, nil
}

func decodeLiteral(v *ast.Value) (interface{}, error) {
	switch v.Kind {
	case ast.NullValue:
		return nil, nil
	case ast.StringValue, ast.BlockValue, ast.EnumValue:
		return v.Raw, nil
	case ast.BooleanValue:
		return v.Raw == "true", nil
	case ast.IntValue:
		n, err := strconv.ParseInt(v.Raw, 10, 64)
		if err != nil {
			return nil, fmt.Errorf("compiler: invalid int literal %q: %w", v.Raw, err)
		}
		return n, nil
	case ast.FloatValue:
		f, err := strconv.ParseFloat(v.Raw, 64)
		if err != nil {
			return nil, fmt.Errorf("compiler: invalid float literal %q: %w", v.Raw, err)
		}
		return f, nil
	case ast.ListValue:
		out := make([]interface{}, 0, len(v.Children))
		for _, child := range v.Children {
			elem, err := decodeLiteral(child.Value)
			if err != nil {
				return nil, err
			}
			out = append(out, elem)
		}
		return out, nil
	case ast.ObjectValue:
		out := make(map[string]interface{}, len(v.Children))
		for _, child := range v.Children {
			elem, err := decodeLiteral(child.Value)
			if err != nil {
				return nil, err
			}
			out[child.Name] = elem
		}
		return out, nil
	default:
		return v.Raw, nil
	}
}
