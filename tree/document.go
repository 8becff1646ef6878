package tree

import (
	"encoding/json"
	"fmt"
	"math"
	"strconv"
)

// Document is a stored record as the backing store sees it.
type Document map[string]any

// Clone returns a deep copy of d with values normalized to their JSON
// representation (numbers become float64, structs become maps).
func (d Document) Clone() Document {
	if d == nil {
		return nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		out := make(Document, len(d))
		for k, v := range d {
			out[k] = v
		}
		return out
	}
	var out Document
	if err := json.Unmarshal(b, &out); err != nil {
		return nil
	}
	return out
}

// IDOf returns the string form of the document's id.
func (l Layout) IDOf(d Document) string {
	return valueString(d[l.ID])
}

// ParentOf returns the document's parent id, "" for roots.
func (l Layout) ParentOf(d Document) string {
	return valueString(d[l.Parent])
}

// PathOf returns the document's path.
func (l Layout) PathOf(d Document) string {
	return valueString(d[l.Path])
}

// WeightOf returns the document's sibling weight, 0 when unset.
func (l Layout) WeightOf(d Document) int {
	n, _ := toFloat(d[l.Weight])
	return int(n)
}

// IsRoot reports whether the document has no parent.
func (l Layout) IsRoot(d Document) bool {
	return l.ParentOf(d) == ""
}

// valueString renders ids; nil becomes "".
func valueString(v any) string {
	switch t := v.(type) {
	case nil:
		return ""
	case string:
		return t
	case float64:
		if t == math.Trunc(t) && math.Abs(t) < 1e15 {
			return strconv.FormatInt(int64(t), 10)
		}
		return strconv.FormatFloat(t, 'f', -1, 64)
	case json.Number:
		return t.String()
	case fmt.Stringer:
		return t.String()
	default:
		return fmt.Sprint(t)
	}
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case float64:
		return n, true
	case float32:
		return float64(n), true
	case int:
		return float64(n), true
	case int32:
		return float64(n), true
	case int64:
		return float64(n), true
	case uint:
		return float64(n), true
	case uint32:
		return float64(n), true
	case uint64:
		return float64(n), true
	case json.Number:
		f, err := n.Float64()
		return f, err == nil
	}
	return 0, false
}

// equalValues compares a stored value with a condition value. Numbers
// compare numerically; everything else by its JSON encoding.
func equalValues(a, b any) bool {
	if fa, ok := toFloat(a); ok {
		fb, ok := toFloat(b)
		return ok && fa == fb
	}
	if _, ok := toFloat(b); ok {
		return false
	}
	if a == nil || b == nil {
		return a == nil && b == nil
	}
	if sa, ok := a.(string); ok {
		sb, ok := b.(string)
		return ok && sa == sb
	}
	ja, errA := json.Marshal(a)
	jb, errB := json.Marshal(b)
	return errA == nil && errB == nil && string(ja) == string(jb)
}

// compareValues orders nil < bool < number < string < everything else.
func compareValues(a, b any) int {
	ra, rb := rank(a), rank(b)
	if ra != rb {
		return ra - rb
	}
	switch ra {
	case 1:
		ba, bb := a.(bool), b.(bool)
		switch {
		case ba == bb:
			return 0
		case !ba:
			return -1
		default:
			return 1
		}
	case 2:
		fa, _ := toFloat(a)
		fb, _ := toFloat(b)
		switch {
		case fa < fb:
			return -1
		case fa > fb:
			return 1
		}
		return 0
	case 3:
		sa, sb := a.(string), b.(string)
		switch {
		case sa < sb:
			return -1
		case sa > sb:
			return 1
		}
		return 0
	}
	return 0
}

func rank(v any) int {
	if v == nil {
		return 0
	}
	if _, ok := v.(bool); ok {
		return 1
	}
	if _, ok := toFloat(v); ok {
		return 2
	}
	if _, ok := v.(string); ok {
		return 3
	}
	return 4
}
