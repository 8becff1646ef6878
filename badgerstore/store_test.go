package badgerstore

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/mpath/tree"
)

func openTestStore(t *testing.T) *Store {
	t.Helper()
	s, err := OpenInMemory(tree.DefaultLayout())
	require.NoError(t, err)
	t.Cleanup(func() { s.Close() })
	return s
}

func doc(id, parent, path string, weight int) tree.Document {
	d := tree.Document{"id": id, "path": path, "_w": weight}
	if parent != "" {
		d["parent_id"] = parent
	} else {
		d["parent_id"] = nil
	}
	return d
}

func ids(docs []tree.Document) []string {
	out := make([]string, len(docs))
	for i, d := range docs {
		out[i], _ = d["id"].(string)
	}
	return out
}

func TestOpen_RequiresPath(t *testing.T) {
	_, err := Open(Config{}, tree.DefaultLayout())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "path is required")
}

func TestOpen_Persistent(t *testing.T) {
	dir := filepath.Join(t.TempDir(), "db")
	ctx := context.Background()

	s, err := Open(DefaultConfig(dir), tree.DefaultLayout())
	require.NoError(t, err)
	_, err = s.Save(ctx, doc("R", "", "", 0))
	require.NoError(t, err)
	require.NoError(t, s.Close())

	_, err = os.Stat(dir)
	require.NoError(t, err)

	s, err = Open(DefaultConfig(dir), tree.DefaultLayout())
	require.NoError(t, err)
	defer s.Close()

	got, err := s.FindOne(ctx, tree.Filter{ID: "R"})
	require.NoError(t, err)
	assert.Equal(t, "R", got["id"])
}

func TestSave_InsertAndReplace(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	saved, err := s.Save(ctx, doc("R", "", "", 2))
	require.NoError(t, err)
	assert.Equal(t, float64(2), saved["_w"])

	d := doc("R", "", "", 5)
	d["name"] = "root"
	_, err = s.Save(ctx, d)
	require.NoError(t, err)

	all, err := s.Find(ctx, tree.Filter{}, tree.FindOptions{})
	require.NoError(t, err)
	require.Len(t, all, 1)
	assert.Equal(t, "root", all[0]["name"])
	assert.Equal(t, float64(5), all[0]["_w"])
}

func TestSave_RequiresID(t *testing.T) {
	s := openTestStore(t)
	_, err := s.Save(context.Background(), tree.Document{"path": ""})
	require.Error(t, err)
}

func TestFind_InsertionOrder(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, d := range []tree.Document{
		doc("R", "", "", 0),
		doc("B", "R", ",R", 0),
		doc("A", "R", ",R", 0),
		doc("C", "B", ",R,B", 0),
	} {
		_, err := s.Save(ctx, d)
		require.NoError(t, err)
	}

	all, err := s.Find(ctx, tree.Filter{}, tree.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"R", "B", "A", "C"}, ids(all))

	sub, err := s.Find(ctx, tree.Filter{PathUnder: ",R"}, tree.FindOptions{
		Sort: []tree.SortField{{Field: "id"}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A", "B", "C"}, ids(sub))
}

func TestFindOne(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	_, err := s.Save(ctx, doc("R", "", "", 0))
	require.NoError(t, err)
	_, err = s.Save(ctx, doc("C", "R", ",R", 0))
	require.NoError(t, err)

	got, err := s.FindOne(ctx, tree.Filter{ID: "C"}, "path")
	require.NoError(t, err)
	assert.Equal(t, tree.Document{"id": "C", "path": ",R"}, got)

	_, err = s.FindOne(ctx, tree.Filter{ID: "C", Roots: true})
	assert.ErrorIs(t, err, tree.ErrNotFound)

	_, err = s.FindOne(ctx, tree.Filter{ID: "missing"})
	assert.ErrorIs(t, err, tree.ErrNotFound)

	got, err = s.FindOne(ctx, tree.Filter{ParentID: "R"})
	require.NoError(t, err)
	assert.Equal(t, "C", got["id"])
}

func TestUpdateMany(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, d := range []tree.Document{
		doc("R", "", "", 0),
		doc("A", "R", ",R", 0),
		doc("B", "R", ",R", 0),
	} {
		_, err := s.Save(ctx, d)
		require.NoError(t, err)
	}

	n, err := s.UpdateMany(ctx, tree.Filter{ParentID: "R"}, tree.Patch{
		Set:   map[string]any{"path": ",X,R", "id": "ignored"},
		Unset: []string{"_w"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, n)

	kids, err := s.Find(ctx, tree.Filter{ParentID: "R"}, tree.FindOptions{})
	require.NoError(t, err)
	require.Len(t, kids, 2)
	for _, k := range kids {
		assert.Equal(t, ",X,R", k["path"])
		assert.NotContains(t, k, "_w")
		assert.NotEqual(t, "ignored", k["id"])
	}

	n, err = s.UpdateMany(ctx, tree.Filter{ParentID: "nobody"}, tree.Patch{Set: map[string]any{"x": 1}})
	require.NoError(t, err)
	assert.Zero(t, n)
}

func TestDeleteMany(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	for _, d := range []tree.Document{
		doc("R", "", "", 0),
		doc("A", "R", ",R", 0),
		doc("G", "A", ",R,A", 0),
	} {
		_, err := s.Save(ctx, d)
		require.NoError(t, err)
	}

	n, err := s.DeleteMany(ctx, tree.Filter{PathSegment: "A"})
	require.NoError(t, err)
	assert.Equal(t, 1, n)

	_, err = s.FindOne(ctx, tree.Filter{ID: "G"})
	assert.ErrorIs(t, err, tree.ErrNotFound)

	// Re-saving a deleted id takes a new slot at the end.
	_, err = s.Save(ctx, doc("G", "R", ",R", 0))
	require.NoError(t, err)
	all, err := s.Find(ctx, tree.Filter{}, tree.FindOptions{})
	require.NoError(t, err)
	assert.Equal(t, []string{"R", "A", "G"}, ids(all))
}

func TestCanceledContext(t *testing.T) {
	s := openTestStore(t)
	ctx, cancel := context.WithCancel(context.Background())
	_, err := s.Save(ctx, doc("R", "", "", 0))
	require.NoError(t, err)
	cancel()

	_, err = s.Save(ctx, doc("S", "", "", 0))
	assert.ErrorIs(t, err, context.Canceled)
	_, err = s.Find(ctx, tree.Filter{}, tree.FindOptions{})
	assert.ErrorIs(t, err, context.Canceled)
}
