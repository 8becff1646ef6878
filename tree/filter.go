package tree

import (
	"slices"
)

// Filter selects documents. Every set field must match; the zero Filter
// matches every document.
type Filter struct {
	// ID matches the identity field exactly.
	ID string

	// IDIn matches documents whose id is one of the values.
	IDIn []string

	// IDNot excludes the document with this id.
	IDNot string

	// Roots matches documents without a parent.
	Roots bool

	// ParentID matches documents whose parent is this id.
	ParentID string

	// ParentIn matches documents whose parent is one of the values.
	ParentIn []string

	// PathUnder matches paths equal to the value or continuing it with
	// another segment. Used for subtree scans: PathUnder = path+sep+id.
	PathUnder string

	// PathSegment matches paths that contain this id as a whole segment.
	PathSegment string

	// Where holds exact-match conditions on any other field.
	Where map[string]any
}

// IsZero reports whether f matches every document.
func (f Filter) IsZero() bool {
	return f.ID == "" && f.IDIn == nil && f.IDNot == "" && !f.Roots &&
		f.ParentID == "" && f.ParentIn == nil && f.PathUnder == "" &&
		f.PathSegment == "" && len(f.Where) == 0
}

// SortField orders results by one field.
type SortField struct {
	Field string
	Desc  bool
}

// FindOptions shape the result of Find.
type FindOptions struct {
	// Fields restricts returned documents to these fields. The id is always kept.
	Fields []string
	Sort   []SortField

	// Limit caps the result size (0 = no limit).
	Limit int
	Skip  int
}

// Patch describes an UpdateMany change.
type Patch struct {
	Set   map[string]any
	Unset []string
}

// Match reports whether d satisfies f.
func (l Layout) Match(d Document, f Filter) bool {
	l.validate()
	codec := Codec{Sep: l.Separator}
	id := l.IDOf(d)

	if f.ID != "" && id != f.ID {
		return false
	}
	if f.IDIn != nil && !slices.Contains(f.IDIn, id) {
		return false
	}
	if f.IDNot != "" && id == f.IDNot {
		return false
	}
	parent := l.ParentOf(d)
	if f.Roots && parent != "" {
		return false
	}
	if f.ParentID != "" && parent != f.ParentID {
		return false
	}
	if f.ParentIn != nil && !slices.Contains(f.ParentIn, parent) {
		return false
	}
	path := l.PathOf(d)
	if f.PathUnder != "" && !codec.Under(f.PathUnder, path) {
		return false
	}
	if f.PathSegment != "" && !codec.HasSegment(path, f.PathSegment) {
		return false
	}
	for k, v := range f.Where {
		if !equalValues(d[k], v) {
			return false
		}
	}
	return true
}

// Select applies f and opts to docs the way every Store is expected to:
// filter, stable sort, skip, limit, then project. Input order is the
// tie-breaker for equal sort keys.
func (l Layout) Select(docs []Document, f Filter, opts FindOptions) []Document {
	l.validate()
	out := make([]Document, 0, len(docs))
	for _, d := range docs {
		if l.Match(d, f) {
			out = append(out, d)
		}
	}
	if len(opts.Sort) > 0 {
		slices.SortStableFunc(out, func(a, b Document) int {
			for _, s := range opts.Sort {
				var c int
				switch s.Field {
				case l.Path:
					c = compareValues(l.PathOf(a), l.PathOf(b))
				case l.Weight:
					c = l.WeightOf(a) - l.WeightOf(b)
				default:
					c = compareValues(a[s.Field], b[s.Field])
				}
				if s.Desc {
					c = -c
				}
				if c != 0 {
					return c
				}
			}
			return 0
		})
	}
	if opts.Skip > 0 {
		if opts.Skip >= len(out) {
			out = out[:0]
		} else {
			out = out[opts.Skip:]
		}
	}
	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	if len(opts.Fields) > 0 {
		for i, d := range out {
			out[i] = l.Project(d, opts.Fields)
		}
	}
	return out
}

// Project returns a copy of d narrowed to fields plus the id.
func (l Layout) Project(d Document, fields []string) Document {
	if len(fields) == 0 {
		return d
	}
	out := make(Document, len(fields)+1)
	if v, ok := d[l.ID]; ok {
		out[l.ID] = v
	}
	for _, f := range fields {
		if v, ok := d[f]; ok {
			out[f] = v
		}
	}
	return out
}

// Apply returns a copy of d with p applied. The id field is never changed.
func (l Layout) Apply(d Document, p Patch) Document {
	out := make(Document, len(d)+len(p.Set))
	for k, v := range d {
		out[k] = v
	}
	for _, k := range p.Unset {
		if k != l.ID {
			delete(out, k)
		}
	}
	for k, v := range p.Set {
		if k != l.ID {
			out[k] = v
		}
	}
	return out
}
