package tree_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/mpath/tree"
)

func TestGetters(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *engine) {
		ctx := context.Background()
		seedFamily(t, e)
		q := tree.QueryOptions{}

		desc, err := e.Descendants(ctx, get(t, e, "R"), q)
		require.NoError(t, err)
		assert.Equal(t, []string{"C1", "C2", "G"}, recordIDs(desc))

		desc, err = e.Descendants(ctx, get(t, e, "C1"), q)
		require.NoError(t, err)
		assert.Equal(t, []string{"G"}, recordIDs(desc))

		kids, err := e.Children(ctx, get(t, e, "R"), q)
		require.NoError(t, err)
		assert.Equal(t, []string{"C1", "C2"}, recordIDs(kids))

		anc, err := e.Ancestors(ctx, get(t, e, "G"), q)
		require.NoError(t, err)
		assert.Equal(t, []string{"R", "C1"}, recordIDs(anc))

		anc, err = e.Ancestors(ctx, get(t, e, "R"), q)
		require.NoError(t, err)
		assert.Empty(t, anc)

		sib, err := e.Siblings(ctx, get(t, e, "C1"), q)
		require.NoError(t, err)
		assert.Equal(t, []string{"C2"}, recordIDs(sib))

		sib, err = e.Siblings(ctx, get(t, e, "R"), q)
		require.NoError(t, err)
		assert.Equal(t, []string{"S"}, recordIDs(sib))

		roots, err := e.Roots(ctx, q)
		require.NoError(t, err)
		assert.Equal(t, []string{"R", "S"}, recordIDs(roots))

		p, err := e.Parent(ctx, get(t, e, "G"))
		require.NoError(t, err)
		assert.Equal(t, "C1", p.ID)

		_, err = e.Parent(ctx, get(t, e, "R"))
		assert.ErrorIs(t, err, tree.ErrNotFound)
	})
}

func TestGetters_QueryOptions(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *engine) {
		ctx := context.Background()
		insert(t, e, "R", "", 0)
		for i, id := range []string{"a", "b", "c", "d"} {
			n := &tree.Record{ID: id, ParentID: "R", Weight: 10 - i}
			n.Set("color", map[bool]string{true: "red", false: "blue"}[i%2 == 0])
			n.Set("name", "node "+id)
			_, err := e.Insert(ctx, n)
			require.NoError(t, err)
		}
		r := get(t, e, "R")

		kids, err := e.Children(ctx, r, tree.QueryOptions{})
		require.NoError(t, err)
		assert.Equal(t, []string{"d", "c", "b", "a"}, recordIDs(kids))

		kids, err = e.Children(ctx, r, tree.QueryOptions{Condition: map[string]any{"color": "red"}})
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "a"}, recordIDs(kids))

		kids, err = e.Children(ctx, r, tree.QueryOptions{Skip: 1, Limit: 2})
		require.NoError(t, err)
		assert.Equal(t, []string{"c", "b"}, recordIDs(kids))

		kids, err = e.Children(ctx, r, tree.QueryOptions{Sort: []tree.SortField{{Field: "name", Desc: true}}})
		require.NoError(t, err)
		assert.Equal(t, []string{"d", "c", "b", "a"}, recordIDs(kids))

		kids, err = e.Children(ctx, r, tree.QueryOptions{Fields: []string{"color"}, Limit: 1})
		require.NoError(t, err)
		require.Len(t, kids, 1)
		assert.Equal(t, "d", kids[0].ID)
		assert.Equal(t, "blue", kids[0].Get("color"))
		assert.Nil(t, kids[0].Get("name"))
		assert.Equal(t, ",R", kids[0].Path)
		assert.Equal(t, 7, kids[0].Weight)
	})
}

func TestPredicates(t *testing.T) {
	forEachBackend(t, func(t *testing.T, e *engine) {
		ctx := context.Background()
		seedFamily(t, e)
		r, s, c1, c2, g := get(t, e, "R"), get(t, e, "S"), get(t, e, "C1"), get(t, e, "C2"), get(t, e, "G")

		assert.True(t, e.IsRoot(r))
		assert.False(t, e.IsRoot(c1))

		ok, err := e.IsRootID(ctx, "S")
		require.NoError(t, err)
		assert.True(t, ok)
		_, err = e.IsRootID(ctx, "missing")
		assert.ErrorIs(t, err, tree.ErrNotFound)

		ok, err = e.IsLeaf(ctx, g)
		require.NoError(t, err)
		assert.True(t, ok)
		ok, err = e.IsLeafID(ctx, "C1")
		require.NoError(t, err)
		assert.False(t, ok)

		assert.True(t, e.IsParentOf(r, g))
		assert.True(t, e.IsAncestorOf(c1, g))
		assert.False(t, e.IsParentOf(c2, g))
		assert.False(t, e.IsParentOf(g, r))
		assert.True(t, e.IsDirectParentOf(c1, g))
		assert.False(t, e.IsDirectParentOf(r, g))

		ok, err = e.IsParentOfID(ctx, r, "G")
		require.NoError(t, err)
		assert.True(t, ok)

		assert.True(t, e.IsDescendantOf(g, r))
		assert.False(t, e.IsDescendantOf(r, g))
		assert.True(t, e.IsDescendantOfID(g, "C1"))
		ok, err = e.IsDescendantOfStored(ctx, "G", r)
		require.NoError(t, err)
		assert.True(t, ok)

		assert.True(t, e.IsSibling(c1, c2))
		assert.True(t, e.IsSibling(r, s))
		assert.False(t, e.IsSibling(c1, g))
		ok, err = e.IsSiblingID(ctx, c2, "C1")
		require.NoError(t, err)
		assert.True(t, ok)
	})
}
