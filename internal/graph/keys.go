package graph

import (
	"bytes"
	"fmt"
	"sort"
	"strconv"
)

// StringifyArgs returns the stable-JSON stringification of args, sorted by
// key (including keys whose value is null), used to build the structural
// record-id path segments described in spec §3 (e.g. `field(<argsJSON>)`).
func StringifyArgs(args map[string]interface{}) string {
	var buf bytes.Buffer
	writeJSONValue(&buf, args)
	return buf.String()
}

func writeJSONValue(buf *bytes.Buffer, v interface{}) {
	switch t := v.(type) {
	case nil:
		buf.WriteString("null")
	case string:
		writeJSONString(buf, t)
	case bool:
		if t {
			buf.WriteString("true")
		} else {
			buf.WriteString("false")
		}
	case int:
		buf.WriteString(strconv.Itoa(t))
	case int64:
		buf.WriteString(strconv.FormatInt(t, 10))
	case float64:
		buf.WriteString(strconv.FormatFloat(t, 'g', -1, 64))
	case map[string]interface{}:
		writeJSONObject(buf, t)
	case []interface{}:
		buf.WriteByte('[')
		for i, e := range t {
			if i > 0 {
				buf.WriteByte(',')
			}
			writeJSONValue(buf, e)
		}
		buf.WriteByte(']')
	default:
		fmt.Fprintf(buf, "%v", t)
	}
}

func writeJSONObject(buf *bytes.Buffer, m map[string]interface{}) {
	if len(m) == 0 {
		buf.WriteString("{}")
		return
	}
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	buf.WriteByte('{')
	for i, k := range keys {
		if i > 0 {
			buf.WriteByte(',')
		}
		writeJSONString(buf, k)
		buf.WriteByte(':')
		writeJSONValue(buf, m[k])
	}
	buf.WriteByte('}')
}

func writeJSONString(buf *bytes.Buffer, s string) {
	buf.WriteByte('"')
	for _, r := range s {
		switch r {
		case '"':
			buf.WriteString(`\"`)
		case '\\':
			buf.WriteString(`\\`)
		default:
			buf.WriteRune(r)
		}
	}
	buf.WriteByte('"')
}

// FieldKey returns the field key under which a selection's value is stored
// on its parent record: the bare field name when the selection has no
// arguments, or `field(<argsJSON>)` when it does (spec §4.3 step 2). Whether
// a field "has arguments" is a static, document-level property (did the
// selection write any), independent of whether buildArgs resolves to {}.
func FieldKey(field string, hasArgs bool, argsJSON string) string {
	if !hasArgs {
		return field
	}
	return field + "(" + argsJSON + ")"
}
