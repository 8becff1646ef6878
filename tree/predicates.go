package tree

import (
	"context"
	"fmt"
)

// IsRoot reports whether n has the root path.
func (e *Engine[N]) IsRoot(n N) bool {
	return n.NodePath() == e.codec.RootPath()
}

// IsRootID reports whether the stored node id is a root.
func (e *Engine[N]) IsRootID(ctx context.Context, id string) (bool, error) {
	d, err := e.lookup(ctx, id)
	if err != nil {
		return false, err
	}
	return e.layout.PathOf(d) == e.codec.RootPath(), nil
}

// IsLeaf reports whether no stored node has n as its parent.
func (e *Engine[N]) IsLeaf(ctx context.Context, n N) (bool, error) {
	return e.IsLeafID(ctx, n.NodeID())
}

// IsLeafID reports whether no stored node has id as its parent.
func (e *Engine[N]) IsLeafID(ctx context.Context, id string) (bool, error) {
	docs, err := e.store.Find(ctx, Filter{ParentID: id}, FindOptions{Fields: []string{e.layout.ID}, Limit: 1})
	if err != nil {
		return false, fmt.Errorf("find children of %s: %w", id, err)
	}
	return len(docs) == 0, nil
}

// IsParentOf reports whether a appears anywhere in b's ancestor chain.
// Despite the name this is an ancestry test of any generation; use
// IsDirectParentOf for immediate parentage.
func (e *Engine[N]) IsParentOf(a, b N) bool {
	return e.codec.HasSegment(b.NodePath(), a.NodeID())
}

// IsParentOfID is IsParentOf with b fetched by id.
func (e *Engine[N]) IsParentOfID(ctx context.Context, a N, bID string) (bool, error) {
	b, err := e.peer(ctx, bID)
	if err != nil {
		return false, err
	}
	return e.codec.HasSegment(e.layout.PathOf(b), a.NodeID()), nil
}

// IsAncestorOf is IsParentOf under its precise name.
func (e *Engine[N]) IsAncestorOf(a, b N) bool {
	return e.IsParentOf(a, b)
}

// IsDirectParentOf reports whether a is b's immediate parent.
func (e *Engine[N]) IsDirectParentOf(a, b N) bool {
	return b.NodeParentID() != "" && b.NodeParentID() == a.NodeID()
}

// IsDescendantOf reports whether b appears anywhere in a's ancestor chain.
func (e *Engine[N]) IsDescendantOf(a, b N) bool {
	return e.codec.HasSegment(a.NodePath(), b.NodeID())
}

// IsDescendantOfID is IsDescendantOf with b given by id. Only a's path is
// consulted, so no fetch is needed.
func (e *Engine[N]) IsDescendantOfID(a N, bID string) bool {
	return e.codec.HasSegment(a.NodePath(), bID)
}

// IsDescendantOfStored reports whether the stored node aID has b in its
// ancestor chain, fetching aID's path once.
func (e *Engine[N]) IsDescendantOfStored(ctx context.Context, aID string, b N) (bool, error) {
	a, err := e.peer(ctx, aID)
	if err != nil {
		return false, err
	}
	return e.codec.HasSegment(e.layout.PathOf(a), b.NodeID()), nil
}

// IsSibling reports whether a and b share the same parent. Two roots are
// siblings.
func (e *Engine[N]) IsSibling(a, b N) bool {
	return a.NodeParentID() == b.NodeParentID()
}

// IsSiblingID is IsSibling with b fetched by id.
func (e *Engine[N]) IsSiblingID(ctx context.Context, a N, bID string) (bool, error) {
	b, err := e.peer(ctx, bID)
	if err != nil {
		return false, err
	}
	return a.NodeParentID() == e.layout.ParentOf(b), nil
}

// peer is the single point fetch a predicate makes for the other side.
func (e *Engine[N]) peer(ctx context.Context, id string) (Document, error) {
	return e.store.FindOne(ctx, Filter{ID: id}, e.layout.Path, e.layout.Parent)
}
