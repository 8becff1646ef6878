package tree_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/jacentio/mpath/badgerstore"
	"github.com/jacentio/mpath/memstore"
	"github.com/jacentio/mpath/tree"
)

type engine = tree.Engine[*tree.Record]

// backends lists the stores every engine scenario runs against.
var backends = []struct {
	name string
	open func(t *testing.T) tree.Store
}{
	{"memstore", func(t *testing.T) tree.Store {
		return memstore.New(tree.DefaultLayout())
	}},
	{"badger", func(t *testing.T) tree.Store {
		s, err := badgerstore.OpenInMemory(tree.DefaultLayout())
		require.NoError(t, err)
		t.Cleanup(func() { s.Close() })
		return s
	}},
}

func forEachBackend(t *testing.T, fn func(t *testing.T, e *engine)) {
	for _, b := range backends {
		t.Run(b.name, func(t *testing.T) {
			fn(t, tree.New[*tree.Record](b.open(t), tree.DefaultConfig()))
		})
	}
}

func newMemEngine(t *testing.T) (*engine, *memstore.Store) {
	t.Helper()
	s := memstore.New(tree.DefaultLayout())
	return tree.New[*tree.Record](s, tree.DefaultConfig()), s
}

func insert(t *testing.T, e *engine, id, parent string, weight int) *tree.Record {
	t.Helper()
	n, err := e.Insert(context.Background(), &tree.Record{ID: id, ParentID: parent, Weight: weight})
	require.NoError(t, err)
	return n
}

func get(t *testing.T, e *engine, id string) *tree.Record {
	t.Helper()
	n, err := e.Get(context.Background(), id)
	require.NoError(t, err)
	return n
}

func recordIDs(nodes []*tree.Record) []string {
	out := make([]string, len(nodes))
	for i, n := range nodes {
		out[i] = n.ID
	}
	return out
}

// seedFamily builds:
//
//	R
//	├── C1
//	│   └── G
//	└── C2
//	S
func seedFamily(t *testing.T, e *engine) {
	t.Helper()
	insert(t, e, "R", "", 0)
	insert(t, e, "S", "", 0)
	insert(t, e, "C1", "R", 0)
	insert(t, e, "C2", "R", 1)
	insert(t, e, "G", "C1", 0)
}

// category is a caller-declared node type with a non-default layout.
type category struct {
	Key    string `json:"key"`
	Up     string `json:"up,omitempty"`
	Trail  string `json:"trail"`
	Weight int    `json:"_w"`
	Name   string `json:"name,omitempty"`
}

func (c *category) NodeID() string       { return c.Key }
func (c *category) NodeParentID() string { return c.Up }
func (c *category) NodePath() string     { return c.Trail }
func (c *category) NodeWeight() int      { return c.Weight }

func newCategoryStore(l tree.Layout) tree.Store {
	return memstore.New(l)
}
