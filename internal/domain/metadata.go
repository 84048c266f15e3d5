package domain

import (
	"encoding/json"
	"fmt"
	"sort"
)

// MetadataKind enumerates the shapes a metadata value can take.
type MetadataKind int

const (
	KindNull MetadataKind = iota
	KindBool
	KindNumber
	KindString
	KindList
	KindMap
)

// Metadata is an opaque, serializable value attached to an action by the
// caller. The store never interprets its contents; it only round-trips them.
// The zero value is null.
type Metadata struct {
	kind MetadataKind
	b    bool
	n    float64
	s    string
	list []Metadata
	m    map[string]Metadata
}

func NullMetadata() Metadata              { return Metadata{} }
func BoolMetadata(v bool) Metadata        { return Metadata{kind: KindBool, b: v} }
func NumberMetadata(v float64) Metadata   { return Metadata{kind: KindNumber, n: v} }
func StringMetadata(v string) Metadata    { return Metadata{kind: KindString, s: v} }
func ListMetadata(vs ...Metadata) Metadata {
	return Metadata{kind: KindList, list: vs}
}

func MapMetadata(m map[string]Metadata) Metadata {
	return Metadata{kind: KindMap, m: m}
}

func (v Metadata) Kind() MetadataKind { return v.kind }
func (v Metadata) IsNull() bool       { return v.kind == KindNull }

// IsZero reports whether the value is null, letting encoding/json omit it.
func (v Metadata) IsZero() bool { return v.IsNull() }

func (v Metadata) Bool() bool     { return v.b }
func (v Metadata) Number() float64 { return v.n }
func (v Metadata) String() string {
	if v.kind == KindString {
		return v.s
	}
	data, _ := json.Marshal(v)
	return string(data)
}

// List returns the elements of a list value, or nil for other kinds.
func (v Metadata) List() []Metadata { return v.list }

// Map returns the entries of a map value, or nil for other kinds.
func (v Metadata) Map() map[string]Metadata { return v.m }

// Equal reports deep equality of two metadata values.
func (v Metadata) Equal(other Metadata) bool {
	if v.kind != other.kind {
		return false
	}
	switch v.kind {
	case KindNull:
		return true
	case KindBool:
		return v.b == other.b
	case KindNumber:
		return v.n == other.n
	case KindString:
		return v.s == other.s
	case KindList:
		if len(v.list) != len(other.list) {
			return false
		}
		for i := range v.list {
			if !v.list[i].Equal(other.list[i]) {
				return false
			}
		}
		return true
	case KindMap:
		if len(v.m) != len(other.m) {
			return false
		}
		for k, val := range v.m {
			ov, ok := other.m[k]
			if !ok || !val.Equal(ov) {
				return false
			}
		}
		return true
	}
	return false
}

func (v Metadata) MarshalJSON() ([]byte, error) {
	switch v.kind {
	case KindNull:
		return []byte("null"), nil
	case KindBool:
		return json.Marshal(v.b)
	case KindNumber:
		return json.Marshal(v.n)
	case KindString:
		return json.Marshal(v.s)
	case KindList:
		if v.list == nil {
			return []byte("[]"), nil
		}
		return json.Marshal(v.list)
	case KindMap:
		// Deterministic key order keeps stored payloads stable.
		keys := make([]string, 0, len(v.m))
		for k := range v.m {
			keys = append(keys, k)
		}
		sort.Strings(keys)

		buf := []byte{'{'}
		for i, k := range keys {
			if i > 0 {
				buf = append(buf, ',')
			}
			kb, err := json.Marshal(k)
			if err != nil {
				return nil, err
			}
			vb, err := json.Marshal(v.m[k])
			if err != nil {
				return nil, err
			}
			buf = append(buf, kb...)
			buf = append(buf, ':')
			buf = append(buf, vb...)
		}
		return append(buf, '}'), nil
	}
	return nil, fmt.Errorf("unknown metadata kind %d", v.kind)
}

func (v *Metadata) UnmarshalJSON(data []byte) error {
	var raw any
	if err := json.Unmarshal(data, &raw); err != nil {
		return fmt.Errorf("failed to decode metadata: %w", err)
	}
	parsed, err := metadataFromAny(raw)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

func metadataFromAny(raw any) (Metadata, error) {
	switch val := raw.(type) {
	case nil:
		return NullMetadata(), nil
	case bool:
		return BoolMetadata(val), nil
	case float64:
		return NumberMetadata(val), nil
	case string:
		return StringMetadata(val), nil
	case []any:
		list := make([]Metadata, len(val))
		for i, item := range val {
			parsed, err := metadataFromAny(item)
			if err != nil {
				return Metadata{}, err
			}
			list[i] = parsed
		}
		return ListMetadata(list...), nil
	case map[string]any:
		m := make(map[string]Metadata, len(val))
		for k, item := range val {
			parsed, err := metadataFromAny(item)
			if err != nil {
				return Metadata{}, err
			}
			m[k] = parsed
		}
		return MapMetadata(m), nil
	}
	return Metadata{}, fmt.Errorf("unsupported metadata value %T", raw)
}
