package cli

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/mpath/memstore"
	"github.com/jacentio/mpath/tree"
)

// sharedStore returns an Opener that hands every command the same store.
func sharedStore(s tree.Store) Opener {
	return func(context.Context, *Options) (tree.Store, func() error, error) {
		return s, noClose, nil
	}
}

func execute(t *testing.T, s tree.Store, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand(sharedStore(s))
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func mustExecute(t *testing.T, s tree.Store, args ...string) string {
	t.Helper()
	out, err := execute(t, s, args...)
	require.NoError(t, err, "mpath %s", strings.Join(args, " "))
	return out
}

func TestHelpContainsSubcommands(t *testing.T) {
	cmd := NewRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs([]string{"--help"})
	require.NoError(t, cmd.Execute())

	for _, sub := range []string{"insert", "move", "remove", "tree", "rebuild"} {
		assert.Contains(t, out.String(), sub)
	}
}

func TestInsertAndGet(t *testing.T) {
	s := memstore.New(tree.DefaultLayout())
	mustExecute(t, s, "-b", "memory", "insert", "R")
	out := mustExecute(t, s, "-b", "memory", "insert", "C", "--parent", "R", "--weight", "2", "--set", "name=child", "--set", "rank=3")

	var got map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, ",R", got["path"])
	assert.Equal(t, "R", got["parent_id"])
	assert.Equal(t, "child", got["name"])
	assert.Equal(t, float64(3), got["rank"])
	assert.Equal(t, float64(2), got["_w"])

	out = mustExecute(t, s, "-b", "memory", "get", "C")
	require.NoError(t, json.Unmarshal([]byte(out), &got))
	assert.Equal(t, "C", got["id"])
}

func TestInsert_MissingParent(t *testing.T) {
	s := memstore.New(tree.DefaultLayout())
	_, err := execute(t, s, "-b", "memory", "insert", "C", "--parent", "ghost")
	require.ErrorIs(t, err, tree.ErrParentNotFound)
}

func TestMoveAndTree(t *testing.T) {
	s := memstore.New(tree.DefaultLayout())
	mustExecute(t, s, "-b", "memory", "insert", "R")
	mustExecute(t, s, "-b", "memory", "insert", "S")
	mustExecute(t, s, "-b", "memory", "insert", "C", "-p", "R")
	mustExecute(t, s, "-b", "memory", "insert", "G", "-p", "C")

	mustExecute(t, s, "-b", "memory", "move", "C", "S")

	out := mustExecute(t, s, "-b", "memory", "get", "G")
	var g map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &g))
	assert.Equal(t, ",S,C", g["path"])

	out = mustExecute(t, s, "-b", "memory", "tree", "--root", "S", "--array", "--fields", "id")
	var arr []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &arr))
	require.Len(t, arr, 1)
	assert.Equal(t, "S", arr[0]["id"])
	kids := arr[0]["children"].([]any)
	require.Len(t, kids, 1)
	assert.Equal(t, "C", kids[0].(map[string]any)["id"])

	out = mustExecute(t, s, "-b", "memory", "tree")
	var keyed map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &keyed))
	assert.Contains(t, keyed, "R")
	assert.Contains(t, keyed, "S")
	assert.NotContains(t, keyed, "C")

	mustExecute(t, s, "-b", "memory", "move", "C")
	out = mustExecute(t, s, "-b", "memory", "ancestors", "G")
	var anc []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &anc))
	require.Len(t, anc, 1)
	assert.Equal(t, "C", anc[0]["id"])
}

func TestRemoveAndDescendants(t *testing.T) {
	s := memstore.New(tree.DefaultLayout())
	mustExecute(t, s, "-b", "memory", "insert", "R")
	mustExecute(t, s, "-b", "memory", "insert", "C", "-p", "R")
	mustExecute(t, s, "-b", "memory", "insert", "G", "-p", "C")

	out := mustExecute(t, s, "-b", "memory", "descendants", "R")
	var desc []map[string]any
	require.NoError(t, json.Unmarshal([]byte(out), &desc))
	require.Len(t, desc, 2)
	assert.Equal(t, "C", desc[0]["id"])
	assert.Equal(t, "G", desc[1]["id"])

	out = mustExecute(t, s, "-b", "memory", "descendants", "R", "--children")
	require.NoError(t, json.Unmarshal([]byte(out), &desc))
	require.Len(t, desc, 1)

	mustExecute(t, s, "-b", "memory", "remove", "C")
	assert.Equal(t, 1, s.Len())
}

func TestRebuild(t *testing.T) {
	s := memstore.New(tree.DefaultLayout())
	ctx := context.Background()
	for _, d := range []tree.Document{
		{"id": "R", "parent_id": nil, "path": "stale", "_w": 4},
		{"id": "C", "parent_id": "R", "path": "", "_w": 1, "tmp": true},
	} {
		_, err := s.Save(ctx, d)
		require.NoError(t, err)
	}

	out := mustExecute(t, s, "-b", "memory", "rebuild", "--strip", "tmp")
	var report tree.RebuildReport
	require.NoError(t, json.Unmarshal([]byte(out), &report))
	assert.Equal(t, 1, report.Roots)
	assert.Equal(t, 1, report.Updated)

	c, err := s.FindOne(ctx, tree.Filter{ID: "C"})
	require.NoError(t, err)
	assert.Equal(t, ",R", c["path"])
	assert.NotContains(t, c, "tmp")
}

func TestConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "mpath.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
backend: dynamodb
dynamodb:
  table: nodes
  parent_index: by_parent
tree:
  separator: "/"
  map_limit: 9
`), 0o600))

	var seen *Options
	cmd := newRootCommand(func(_ context.Context, o *Options) (tree.Store, func() error, error) {
		seen = o
		return memstore.New(o.Layout()), noClose, nil
	})
	cmd.SetOut(&bytes.Buffer{})
	cmd.SetArgs([]string{"--config", path, "--table", "override", "insert", "R"})
	require.NoError(t, cmd.Execute())

	require.NotNil(t, seen)
	assert.Equal(t, "dynamodb", seen.Backend)
	assert.Equal(t, "override", seen.Table)
	assert.Equal(t, "by_parent", seen.ParentIndex)
	assert.Equal(t, "/", seen.Layout().Separator)
	assert.Equal(t, 9, seen.MapLimit)
}

func TestPrepare_InvalidBackend(t *testing.T) {
	_, err := execute(t, memstore.New(tree.DefaultLayout()), "-b", "nosql", "get", "x")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "invalid --backend")
}

func TestParseAttrs(t *testing.T) {
	got, err := parseAttrs([]string{"a=1", "b=true", "c=x=y", "d=null"})
	require.NoError(t, err)
	assert.Equal(t, map[string]any{"a": float64(1), "b": true, "c": "x=y", "d": nil}, got)

	_, err = parseAttrs([]string{"novalue"})
	require.Error(t, err)
}

type failingWriter struct{ err error }

func (w failingWriter) Write([]byte) (int, error) { return 0, w.err }

func TestMove_PartialCascadeReportsWriteError(t *testing.T) {
	s := memstore.New(tree.DefaultLayout())
	for _, args := range [][]string{{"insert", "R"}, {"insert", "S"}, {"insert", "C", "-p", "R"}, {"insert", "G", "-p", "C"}} {
		mustExecute(t, s, append([]string{"-b", "memory"}, args...)...)
	}

	boom := errors.New("boom")
	s.FailUpdatesWhen(func(d tree.Document) error {
		if d["id"] == "G" {
			return boom
		}
		return nil
	})

	closed := errors.New("stdout closed")
	cmd := newRootCommand(sharedStore(s))
	cmd.SetOut(failingWriter{err: closed})
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs([]string{"-b", "memory", "move", "C", "S"})
	err := cmd.Execute()

	var batch *tree.BatchError
	require.ErrorAs(t, err, &batch)
	assert.Equal(t, []string{"G"}, batch.FailedIDs())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, closed)
}
