package tree

import (
	"context"
	"fmt"
)

// QueryOptions narrow the descendant, ancestor, sibling and root getters.
type QueryOptions struct {
	// Condition holds extra exact-match conditions on non-structural fields.
	Condition map[string]any

	// Fields restricts returned documents; the id is always included.
	Fields []string

	// Sort is applied before the default path/weight order.
	Sort []SortField

	Limit int
	Skip  int
}

func (q QueryOptions) find(l Layout, f Filter, defaults ...SortField) (Filter, FindOptions) {
	if len(q.Condition) > 0 {
		where := make(map[string]any, len(q.Condition)+len(f.Where))
		for k, v := range q.Condition {
			where[k] = v
		}
		for k, v := range f.Where {
			where[k] = v
		}
		f.Where = where
	}
	sort := append([]SortField(nil), q.Sort...)
	for _, d := range defaults {
		if !hasSortField(sort, d.Field) {
			sort = append(sort, d)
		}
	}
	fields := q.Fields
	if len(fields) > 0 {
		// The tree builder and predicates need the structural fields.
		fields = append(append([]string(nil), fields...), l.Parent, l.Path, l.Weight)
	}
	return f, FindOptions{Fields: fields, Sort: sort, Limit: q.Limit, Skip: q.Skip}
}

func hasSortField(s []SortField, field string) bool {
	for _, f := range s {
		if f.Field == field {
			return true
		}
	}
	return false
}

func (e *Engine[N]) pathOrder() []SortField {
	return []SortField{{Field: e.layout.Path}, {Field: e.layout.Weight}}
}

func (e *Engine[N]) query(ctx context.Context, what string, f Filter, q QueryOptions, defaults []SortField) ([]N, error) {
	f, opts := q.find(e.layout, f, defaults...)
	docs, err := e.store.Find(ctx, f, opts)
	if err != nil {
		return nil, fmt.Errorf("find %s: %w", what, err)
	}
	return e.nodes.decodeAll(docs)
}

// Parent returns n's parent, or ErrNotFound for a root.
func (e *Engine[N]) Parent(ctx context.Context, n N) (N, error) {
	if n.NodeParentID() == "" {
		var zero N
		return zero, ErrNotFound
	}
	return e.Get(ctx, n.NodeParentID())
}

// DescendantsFilter matches every descendant of n.
func (e *Engine[N]) DescendantsFilter(n N) Filter {
	return e.subtreeFilter(n.NodeID(), n.NodePath())
}

// Descendants returns every node below n, ordered by path then weight.
func (e *Engine[N]) Descendants(ctx context.Context, n N, q QueryOptions) ([]N, error) {
	return e.query(ctx, "descendants", e.DescendantsFilter(n), q, e.pathOrder())
}

// Children returns n's immediate children ordered by weight.
func (e *Engine[N]) Children(ctx context.Context, n N, q QueryOptions) ([]N, error) {
	return e.ChildrenOf(ctx, n.NodeID(), q)
}

// ChildrenOf returns the immediate children of the node id ordered by weight.
func (e *Engine[N]) ChildrenOf(ctx context.Context, id string, q QueryOptions) ([]N, error) {
	return e.query(ctx, "children", Filter{ParentID: id}, q, []SortField{{Field: e.layout.Weight}})
}

// AncestorsFilter matches every ancestor of n. ok is false for roots, which
// have none.
func (e *Engine[N]) AncestorsFilter(n N) (f Filter, ok bool) {
	ids := e.codec.AncestorIDs(n.NodePath())
	if len(ids) == 0 {
		return Filter{}, false
	}
	return Filter{IDIn: ids}, true
}

// Ancestors returns n's ancestors, oldest first.
func (e *Engine[N]) Ancestors(ctx context.Context, n N, q QueryOptions) ([]N, error) {
	f, ok := e.AncestorsFilter(n)
	if !ok {
		return []N{}, nil
	}
	return e.query(ctx, "ancestors", f, q, e.pathOrder())
}

// SiblingsFilter matches every node sharing n's parent, except n.
func (e *Engine[N]) SiblingsFilter(n N) Filter {
	f := Filter{IDNot: n.NodeID()}
	if n.NodeParentID() == "" {
		f.Roots = true
	} else {
		f.ParentID = n.NodeParentID()
	}
	return f
}

// Siblings returns the nodes sharing n's parent, ordered by path then weight.
func (e *Engine[N]) Siblings(ctx context.Context, n N, q QueryOptions) ([]N, error) {
	return e.query(ctx, "siblings", e.SiblingsFilter(n), q, e.pathOrder())
}

// Roots returns every root ordered by weight.
func (e *Engine[N]) Roots(ctx context.Context, q QueryOptions) ([]N, error) {
	return e.query(ctx, "roots", Filter{Roots: true}, q, []SortField{{Field: e.layout.Weight}})
}
