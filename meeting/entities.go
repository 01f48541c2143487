package meeting

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
)

// EntityValue is either scalar text ("$2M", "Q3") or a composite record such as a person
// with a role. Composites cannot be compared as plain values, so deduplication goes
// through IdentityKey.
type EntityValue struct {
	Text   string
	Fields map[string]string
}

// Scalar returns a text entity.
func Scalar(s string) EntityValue { return EntityValue{Text: strings.TrimSpace(s)} }

// Composite returns a field-map entity. Empty fields are dropped.
func Composite(fields map[string]string) EntityValue {
	out := make(map[string]string, len(fields))
	for k, v := range fields {
		k = strings.ToLower(strings.TrimSpace(k))
		v = strings.TrimSpace(v)
		if k == "" || v == "" {
			continue
		}
		out[k] = v
	}
	return EntityValue{Fields: out}
}

func (v EntityValue) IsComposite() bool { return v.Fields != nil }

func (v EntityValue) IsZero() bool {
	if v.IsComposite() {
		return len(v.Fields) == 0
	}
	return strings.TrimSpace(v.Text) == ""
}

// identityFields are tried in order to pick the field that names a composite entity.
var identityFields = []string{"name", "title", "label", "value"}

// IdentityKey is the dedup key: normalized text for scalars, the normalized naming field
// for composites, or every field in sorted order when no naming field exists.
func (v EntityValue) IdentityKey() string {
	if !v.IsComposite() {
		return normalizeKey(v.Text)
	}
	for _, f := range identityFields {
		if s := normalizeKey(v.Fields[f]); s != "" {
			return f + "=" + s
		}
	}
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, k+"="+normalizeKey(v.Fields[k]))
	}
	return strings.Join(parts, ";")
}

// String renders the entity for prompts.
func (v EntityValue) String() string {
	if !v.IsComposite() {
		return v.Text
	}
	name := ""
	for _, f := range identityFields {
		if s := v.Fields[f]; s != "" {
			name = s
			break
		}
	}
	var extra []string
	keys := make([]string, 0, len(v.Fields))
	for k := range v.Fields {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		if v.Fields[k] == name {
			continue
		}
		extra = append(extra, k+": "+v.Fields[k])
	}
	switch {
	case name == "":
		return strings.Join(extra, ", ")
	case len(extra) == 0:
		return name
	default:
		return name + " (" + strings.Join(extra, ", ") + ")"
	}
}

func (v EntityValue) MarshalJSON() ([]byte, error) {
	if v.IsComposite() {
		return json.Marshal(v.Fields)
	}
	return json.Marshal(v.Text)
}

func (v *EntityValue) UnmarshalJSON(b []byte) error {
	b = bytes.TrimSpace(b)
	if len(b) == 0 || bytes.Equal(b, []byte("null")) {
		*v = EntityValue{}
		return nil
	}
	switch b[0] {
	case '"':
		var s string
		if err := json.Unmarshal(b, &s); err != nil {
			return err
		}
		*v = Scalar(s)
		return nil
	case '{':
		var raw map[string]any
		if err := json.Unmarshal(b, &raw); err != nil {
			return err
		}
		fields := make(map[string]string, len(raw))
		for k, x := range raw {
			if x == nil {
				continue
			}
			if s, ok := x.(string); ok {
				fields[k] = s
				continue
			}
			fields[k] = fmt.Sprint(x)
		}
		*v = Composite(fields)
		return nil
	default:
		*v = Scalar(string(b))
		return nil
	}
}

// normalizeKey lowercases and collapses whitespace.
func normalizeKey(s string) string {
	return strings.ToLower(strings.Join(strings.Fields(s), " "))
}
