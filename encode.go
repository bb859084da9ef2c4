package kaybee

import (
	"encoding/json"

	"github.com/kaybeehq/kaybee/internal/frontmatter"
)

// encodeAttrValue renders a frontmatter value as the text stored in a
// SQL cell: scalars stored raw, lists/maps stored as JSON, per the
// storage backend's "decode as JSON first" contract.
func encodeAttrValue(v frontmatter.Value) string {
	switch v.Kind {
	case frontmatter.List:
		b, _ := json.Marshal(v.List)

		return string(b)
	case frontmatter.Map:
		m := make(map[string]string, len(v.Map))
		for _, e := range v.Map {
			m[e.Key] = e.Value
		}

		b, _ := json.Marshal(m)

		return string(b)
	default:
		return v.Scalar
	}
}

// decodeAttrValue is the inverse of encodeAttrValue: it tries to decode
// the stored text as a JSON list or object first, falling back to a
// raw scalar, per spec.md 4.4 ("if the stored text parses as a JSON
// list or object, the decoded value is returned; otherwise the raw
// string is returned").
func decodeAttrValue(s string) frontmatter.Value {
	var list []string
	if err := json.Unmarshal([]byte(s), &list); err == nil {
		return frontmatter.ListValue(list)
	}

	var obj map[string]string
	if err := json.Unmarshal([]byte(s), &obj); err == nil {
		entries := make([]frontmatter.MapEntry, 0, len(obj))
		for k, v := range obj {
			entries = append(entries, frontmatter.MapEntry{Key: k, Value: v})
		}

		return frontmatter.MapValue(entries)
	}

	return frontmatter.StringValue(s)
}
