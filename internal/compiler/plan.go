// Package compiler turns a GraphQL document into a static, variable-
// parameterized execution plan (spec §4.1). Parsing is delegated to
// vektah/gqlparser; no schema is loaded or validated against (spec §1
// Non-goals: "no GraphQL execution engine; no schema validation").
package compiler

import "github.com/cachebay/cachebay/internal/graph"

// OperationKind is the kind of GraphQL operation a Plan was compiled from.
type OperationKind string

const (
	OperationQuery        OperationKind = "query"
	OperationMutation     OperationKind = "mutation"
	OperationSubscription OperationKind = "subscription"
)

// ConnectionMode selects how a @connection field's cache reads behave
// (spec §4.1, §4.4).
type ConnectionMode string

const (
	ConnectionInfinite ConnectionMode = "infinite"
	ConnectionPage     ConnectionMode = "page"
)

// argExpr is a single static argument expression: either a literal value or
// a reference to an operation variable, resolved against concrete
// variables by buildArgs.
type argExpr struct {
	name     string
	isVar    bool
	varName  string
	literal  interface{}
}

func (a argExpr) resolve(variables map[string]interface{}) (interface{}, bool) {
	if !a.isVar {
		return a.literal, true
	}
	v, ok := variables[a.varName]
	return v, ok
}

// Selection is one compiled field selection within a Plan (spec §4.1).
type Selection struct {
	// ResponseKey is the alias, or the field name when unaliased.
	ResponseKey string
	// Field is the wire field name (ignoring alias).
	Field string
	// HasArgs is true iff the document wrote any arguments for this
	// selection, independent of what they resolve to.
	HasArgs bool
	args    []argExpr

	// Selections is the static sub-selection map, keyed by response key.
	// Nil for scalar leaf fields.
	Selections map[string]*Selection

	IsConnection      bool
	ConnectionKey     string
	ConnectionMode    ConnectionMode
	ConnectionFilters []string
	// connectionAllFilters is true when ConnectionFilters was left at its
	// default ("all non-pagination args"), so CanonicalFilterArgs must
	// re-derive the filter set from whatever variables are actually bound.
	connectionAllFilters bool
}

// BuildArgs materializes this selection's concrete argument object against
// variables (spec §4.1 "buildArgs(variables)").
func (s *Selection) BuildArgs(variables map[string]interface{}) map[string]interface{} {
	if len(s.args) == 0 {
		return map[string]interface{}{}
	}
	out := make(map[string]interface{}, len(s.args))
	for _, a := range s.args {
		v, ok := a.resolve(variables)
		if !ok {
			continue
		}
		out[a.name] = v
	}
	return out
}

// StringifyArgs yields the canonical JSON key for this selection's
// arguments against variables (spec §4.1 "stringifyArgs(variables)").
func (s *Selection) StringifyArgs(variables map[string]interface{}) string {
	return graph.StringifyArgs(s.BuildArgs(variables))
}

var paginationArgNames = map[string]struct{}{
	"first": {}, "last": {}, "after": {}, "before": {},
}

// CanonicalFilterArgs returns the args object restricted to
// ConnectionFilters (or, when the plan left filters at their default, to
// every non-pagination argument actually present) — used to build the
// canonical connection key (spec §3, §4.4).
func (s *Selection) CanonicalFilterArgs(variables map[string]interface{}) map[string]interface{} {
	built := s.BuildArgs(variables)
	out := make(map[string]interface{})
	if s.connectionAllFilters {
		for k, v := range built {
			if _, isPagination := paginationArgNames[k]; isPagination {
				continue
			}
			out[k] = v
		}
		return out
	}
	for _, name := range s.ConnectionFilters {
		if v, ok := built[name]; ok {
			out[name] = v
		}
	}
	return out
}

// Plan is the compiled, variable-parameterized representation of one
// GraphQL operation or fragment (spec §4.1).
type Plan struct {
	Kind         OperationKind
	RootTypename string
	Root         map[string]*Selection
}
