package tree_test

import (
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jacentio/mpath/tree"
)

func TestBatchError(t *testing.T) {
	boom := errors.New("boom")
	err := error(&tree.BatchError{
		Op:    "reparent cascade",
		Total: 10,
		Failed: []tree.ItemError{
			{ID: "a", Err: boom},
			{ID: "b", Err: tree.ErrNotFound},
			{ID: "c", Err: boom},
			{ID: "d", Err: &tree.ValidationError{Field: "parent_id", Value: "x", Err: tree.ErrCycle}},
			{ID: "e", Err: boom},
		},
	})

	assert.Equal(t,
		"mpath: reparent cascade: 5 of 10 items failed; a: boom; b: mpath: node not found; c: boom; and 2 more",
		err.Error())
	assert.ErrorIs(t, err, boom)
	assert.ErrorIs(t, err, tree.ErrNotFound)
	assert.ErrorIs(t, err, tree.ErrCycle)
	assert.NotErrorIs(t, err, tree.ErrAlreadyExists)

	var ve *tree.ValidationError
	require.ErrorAs(t, err, &ve)
	assert.Equal(t, "x", ve.Value)

	var batch *tree.BatchError
	require.ErrorAs(t, err, &batch)
	assert.Equal(t, []string{"a", "b", "c", "d", "e"}, batch.FailedIDs())
}

func TestValidationError(t *testing.T) {
	err := &tree.ValidationError{Field: "id", Value: "a,b", Err: tree.ErrInvalidID}

	assert.Equal(t, `mpath: id contains the path separator (id="a,b")`, err.Error())
	assert.ErrorIs(t, err, tree.ErrInvalidID)
}
