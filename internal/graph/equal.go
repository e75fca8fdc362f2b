package graph

import "reflect"

// valuesEqual compares two field values for change detection on write
// (spec §4.2: "A write increments versions[id] iff any field actually
// changed").
func valuesEqual(a, b interface{}) bool {
	return reflect.DeepEqual(a, b)
}
