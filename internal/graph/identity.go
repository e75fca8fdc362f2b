package graph

import "fmt"

// KeyFunc derives the resolvable key (the part after "Typename:") from a
// raw decoded object. It returns ok=false when the object cannot be
// identified from this function (spec §4.2 "per-typename id functions").
type KeyFunc func(obj map[string]interface{}) (id string, ok bool)

// IdentityConfig configures record identity (spec §3, §9).
type IdentityConfig struct {
	// KeyFuncs maps a typename (the concrete typename or the canonical
	// interface typename) to a function deriving its id. Typenames with no
	// entry fall back to the "id" field.
	KeyFuncs map[string]KeyFunc
	// Interfaces maps an interface typename to the typenames that implement
	// it. Identity canonicalizes an implementation's typename to its
	// interface name, so that e.g. AudioPost:1 and VideoPost:1 both collapse
	// to Post:1 when Post is declared as their interface.
	Interfaces map[string][]string

	canonicalOf map[string]string
}

func (c *IdentityConfig) ensureInit() {
	if c.canonicalOf != nil {
		return
	}
	c.canonicalOf = make(map[string]string, len(c.Interfaces))
	for iface, impls := range c.Interfaces {
		for _, impl := range impls {
			c.canonicalOf[impl] = iface
		}
	}
}

// Canonicalize returns the typename used for identity purposes.
func (c *IdentityConfig) Canonicalize(typename string) string {
	c.ensureInit()
	if iface, ok := c.canonicalOf[typename]; ok {
		return iface
	}
	return typename
}

// Identify returns the RecordId ("Typename:id") for obj, or ok=false if obj
// cannot be identified (missing/non-string __typename, or no resolvable
// key). obj must already be a decoded JSON-ish map (string keys).
func (c *IdentityConfig) Identify(obj map[string]interface{}) (id RecordId, ok bool) {
	c.ensureInit()

	typenameRaw, present := obj["__typename"]
	if !present {
		return "", false
	}
	typename, isString := typenameRaw.(string)
	if !isString || typename == "" {
		return "", false
	}

	canonical := c.Canonicalize(typename)

	if fn, found := c.KeyFuncs[typename]; found {
		key, ok := fn(obj)
		if !ok || key == "" {
			return "", false
		}
		return canonical + ":" + key, true
	}
	if fn, found := c.KeyFuncs[canonical]; found {
		key, ok := fn(obj)
		if !ok || key == "" {
			return "", false
		}
		return canonical + ":" + key, true
	}

	idRaw, present := obj["id"]
	if !present || idRaw == nil {
		return "", false
	}
	key := StringifyID(idRaw)
	if key == "" {
		return "", false
	}
	return canonical + ":" + key, true
}

// StringifyID coerces a scalar id value to its string form (spec §4.2:
// "id is stringified").
func StringifyID(v interface{}) string {
	switch t := v.(type) {
	case string:
		return t
	case fmt.Stringer:
		return t.String()
	case nil:
		return ""
	default:
		return fmt.Sprintf("%v", t)
	}
}
