package tree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"time"

	"github.com/google/uuid"
)

// Engine keeps materialized paths consistent with parent ids on top of a
// Store. It owns the Layout's parent, path and weight fields; callers own
// every other field.
type Engine[N Node] struct {
	store  Store
	config Config
	layout Layout
	codec  Codec
	nodes  nodeCodec[N]
	locks  *rootLocks
	logger *slog.Logger
}

// New creates a new Engine over s.
func New[N Node](s Store, config Config) *Engine[N] {
	config.validate()
	return &Engine[N]{
		store:  s,
		config: config,
		layout: config.Layout,
		codec:  config.Layout.Codec(),
		nodes:  nodeCodec[N]{layout: config.Layout},
		locks:  newRootLocks(config.LockStripes),
		logger: config.Logger,
	}
}

// Store returns the backing store.
func (e *Engine[N]) Store() Store { return e.store }

// Config returns the validated configuration.
func (e *Engine[N]) Config() Config { return e.config }

// Layout returns the document field layout.
func (e *Engine[N]) Layout() Layout { return e.layout }

// Codec returns the path codec.
func (e *Engine[N]) Codec() Codec { return e.codec }

// Depth returns the depth of n, recomputed from its path.
func (e *Engine[N]) Depth(n N) int { return e.codec.Depth(n.NodePath()) }

// Get returns the node with id, or ErrNotFound.
func (e *Engine[N]) Get(ctx context.Context, id string) (N, error) {
	var zero N
	d, err := e.store.FindOne(ctx, Filter{ID: id})
	if err != nil {
		return zero, err
	}
	return e.nodes.decode(d)
}

// lookup fetches the structural fields of the node with id.
func (e *Engine[N]) lookup(ctx context.Context, id string) (Document, error) {
	return e.store.FindOne(ctx, Filter{ID: id}, e.layout.Path, e.layout.Parent)
}

// fetchParent fetches a parent's path, mapping a miss to a ValidationError.
func (e *Engine[N]) fetchParent(ctx context.Context, parentID string) (Document, error) {
	p, err := e.store.FindOne(ctx, Filter{ID: parentID}, e.layout.Path)
	if errors.Is(err, ErrNotFound) {
		return nil, &ValidationError{Field: e.layout.Parent, Value: parentID, Err: ErrParentNotFound}
	}
	if err != nil {
		return nil, fmt.Errorf("fetch parent %s: %w", parentID, err)
	}
	return p, nil
}

// withRoots resolves the roots a mutation touches, locks them and runs fn.
// When the roots moved between resolving and locking, it retries a bounded
// number of times before running fn under the latest lock.
func (e *Engine[N]) withRoots(ctx context.Context, resolve func(context.Context) ([]string, error), fn func() error) error {
	if len(e.locks.stripes) == 0 {
		if _, err := resolve(ctx); err != nil {
			return err
		}
		return fn()
	}
	for attempt := 0; ; attempt++ {
		roots, err := resolve(ctx)
		if err != nil {
			return err
		}
		unlock := e.locks.lock(roots...)
		again, err := resolve(ctx)
		if err != nil {
			unlock()
			return err
		}
		slices.Sort(roots)
		slices.Sort(again)
		if slices.Equal(roots, again) || attempt == 2 {
			defer unlock()
			return fn()
		}
		unlock()
	}
}

// Insert creates n. A node without an id is assigned a random UUID. Fails
// with ErrAlreadyExists when the id is taken and with a ValidationError
// wrapping ErrParentNotFound when the parent is missing.
func (e *Engine[N]) Insert(ctx context.Context, n N) (N, error) {
	var zero N
	doc, err := e.nodes.encode(n)
	if err != nil {
		return zero, err
	}
	if id := e.layout.IDOf(doc); id != "" {
		_, err := e.lookup(ctx, id)
		if err == nil {
			return zero, ErrAlreadyExists
		}
		if !errors.Is(err, ErrNotFound) {
			return zero, err
		}
	}
	return e.create(ctx, doc)
}

// create assigns the path of a new document and persists it.
func (e *Engine[N]) create(ctx context.Context, doc Document) (N, error) {
	var zero N
	id := e.layout.IDOf(doc)
	if id == "" {
		id = uuid.NewString()
		doc[e.layout.ID] = id
	}
	if !e.codec.ValidID(id) {
		return zero, &ValidationError{Field: e.layout.ID, Value: id, Err: ErrInvalidID}
	}
	if _, ok := doc[e.layout.Weight]; !ok {
		doc[e.layout.Weight] = 0
	}

	parentID := e.layout.ParentOf(doc)
	if parentID == "" {
		doc[e.layout.Parent] = nil
		doc[e.layout.Path] = e.codec.RootPath()
		n, err := e.persist(ctx, doc)
		observeOp("create", err)
		return n, err
	}

	var parent Document
	var out N
	err := e.withRoots(ctx, func(ctx context.Context) ([]string, error) {
		p, err := e.fetchParent(ctx, parentID)
		if err != nil {
			return nil, err
		}
		parent = p
		return []string{e.codec.RootID(e.layout.PathOf(p), parentID)}, nil
	}, func() error {
		doc[e.layout.Path] = e.codec.ChildPath(e.layout.PathOf(parent), parentID)
		n, err := e.persist(ctx, doc)
		out = n
		return err
	})
	observeOp("create", err)
	return out, err
}

func (e *Engine[N]) persist(ctx context.Context, doc Document) (N, error) {
	var zero N
	saved, err := e.store.Save(ctx, doc)
	if err != nil {
		return zero, fmt.Errorf("save %s: %w", e.layout.IDOf(doc), err)
	}
	return e.nodes.decode(saved)
}

// Save inserts n when it is not stored yet, or replaces it. When the stored
// parent differs from n's parent the node is reparented and its whole
// subtree rewritten. The path is engine-owned: on update the stored path is
// kept regardless of what n carries.
//
// A reparent whose cascade partly failed returns the saved node together
// with a *BatchError naming the descendants that were not rewritten.
func (e *Engine[N]) Save(ctx context.Context, n N) (N, error) {
	var zero N
	doc, err := e.nodes.encode(n)
	if err != nil {
		return zero, err
	}
	return e.saveDoc(ctx, doc)
}

func (e *Engine[N]) saveDoc(ctx context.Context, doc Document) (N, error) {
	var zero N
	id := e.layout.IDOf(doc)
	if id == "" {
		return e.create(ctx, doc)
	}
	prev, err := e.lookup(ctx, id)
	if errors.Is(err, ErrNotFound) {
		return e.create(ctx, doc)
	}
	if err != nil {
		return zero, err
	}

	if e.layout.ParentOf(prev) != e.layout.ParentOf(doc) {
		return e.reparentStored(ctx, doc)
	}

	// The stored path is re-read under the root lock, so a cascade from an
	// ancestor's reparent is never overwritten with the path seen earlier.
	var (
		out   N
		moved bool
	)
	err = e.withRoots(ctx, func(ctx context.Context) ([]string, error) {
		p, err := e.lookup(ctx, id)
		if err != nil {
			return nil, err
		}
		prev = p
		return []string{e.codec.RootID(e.layout.PathOf(p), id)}, nil
	}, func() error {
		if e.layout.ParentOf(prev) != e.layout.ParentOf(doc) {
			moved = true
			return nil
		}
		doc[e.layout.Path] = e.layout.PathOf(prev)
		if e.layout.IsRoot(doc) {
			doc[e.layout.Parent] = nil
		}
		n, err := e.persist(ctx, doc)
		out = n
		return err
	})
	if err != nil {
		return zero, err
	}
	if moved {
		// The node itself was reparented meanwhile; doc's parent wins.
		return e.reparentStored(ctx, doc)
	}
	return out, nil
}

// reparentStored reparents doc, cascading from the path currently stored.
func (e *Engine[N]) reparentStored(ctx context.Context, doc Document) (N, error) {
	id := e.layout.IDOf(doc)
	return e.reparent(ctx, doc, func(ctx context.Context) (string, error) {
		p, err := e.lookup(ctx, id)
		if err != nil {
			return "", err
		}
		return e.layout.PathOf(p), nil
	})
}

// SetParent moves n under parentID ("" detaches it into a root) and saves it.
func (e *Engine[N]) SetParent(ctx context.Context, n N, parentID string) (N, error) {
	var zero N
	doc, err := e.nodes.encode(n)
	if err != nil {
		return zero, err
	}
	if parentID == "" {
		doc[e.layout.Parent] = nil
	} else {
		doc[e.layout.Parent] = parentID
	}
	return e.saveDoc(ctx, doc)
}

// AppendChild saves child under parent.
func (e *Engine[N]) AppendChild(ctx context.Context, parent, child N) (N, error) {
	return e.SetParent(ctx, child, parent.NodeID())
}

// AppendChildTo saves child under the node with parentID.
func (e *Engine[N]) AppendChildTo(ctx context.Context, parentID string, child N) (N, error) {
	return e.SetParent(ctx, child, parentID)
}

// Relocate recomputes the path of the stored node id from its stored parent
// and rewrites every descendant recorded under oldPath. It repairs nodes
// whose parent was changed by a writer that bypassed the engine.
func (e *Engine[N]) Relocate(ctx context.Context, id, oldPath string) (N, error) {
	var zero N
	doc, err := e.store.FindOne(ctx, Filter{ID: id})
	if err != nil {
		return zero, err
	}
	return e.reparent(ctx, doc, func(context.Context) (string, error) {
		return oldPath, nil
	})
}

// reparent recomputes doc's path from its parent field, persists it and
// cascades the change to the subtree recorded under the previous path.
func (e *Engine[N]) reparent(ctx context.Context, doc Document, previousPath func(context.Context) (string, error)) (N, error) {
	id := e.layout.IDOf(doc)
	parentID := e.layout.ParentOf(doc)

	var (
		oldPath string
		parent  Document
		out     N
	)
	err := e.withRoots(ctx, func(ctx context.Context) ([]string, error) {
		p, err := previousPath(ctx)
		if err != nil {
			return nil, err
		}
		oldPath = p
		roots := []string{e.codec.RootID(oldPath, id)}
		if parentID == "" {
			return roots, nil
		}
		pd, err := e.fetchParent(ctx, parentID)
		if err != nil {
			return nil, err
		}
		parent = pd
		return append(roots, e.codec.RootID(e.layout.PathOf(pd), parentID)), nil
	}, func() error {
		newPath := e.codec.RootPath()
		if parentID == "" {
			doc[e.layout.Parent] = nil
		} else {
			parentPath := e.layout.PathOf(parent)
			if parentID == id || e.codec.HasSegment(parentPath, id) {
				return &ValidationError{Field: e.layout.Parent, Value: parentID, Err: ErrCycle}
			}
			newPath = e.codec.ChildPath(parentPath, parentID)
		}
		doc[e.layout.Path] = newPath

		n, err := e.persist(ctx, doc)
		if err != nil {
			return err
		}
		out = n
		return e.cascade(ctx, id, oldPath, newPath)
	})
	observeOp("reparent", err)
	return out, err
}

// cascade rewrites the leading oldPath of every descendant of id to newPath.
// One prefix scan finds the whole subtree regardless of depth.
func (e *Engine[N]) cascade(ctx context.Context, id, oldPath, newPath string) error {
	if oldPath == newPath {
		return nil
	}
	start := time.Now()
	defer func() {
		cascadeDuration.WithLabelValues("reparent").Observe(time.Since(start).Seconds())
	}()

	docs, err := e.store.Find(ctx, Filter{PathUnder: e.codec.ChildPath(oldPath, id)}, FindOptions{
		Fields: []string{e.layout.Path},
	})
	if err != nil {
		return fmt.Errorf("find descendants of %s: %w", id, err)
	}

	e.logger.Info("processing reparent cascade",
		"id", id,
		"oldPath", oldPath,
		"newPath", newPath,
		"descendants", len(docs),
	)

	err = forEachLimit(ctx, "reparent cascade", e.config.MapLimit, docs, e.layout.IDOf, func(ctx context.Context, d Document) error {
		rewritten := e.codec.Rebase(e.layout.PathOf(d), oldPath, newPath)
		_, err := e.store.UpdateMany(ctx, Filter{ID: e.layout.IDOf(d)}, Patch{
			Set: map[string]any{e.layout.Path: rewritten},
		})
		if err != nil {
			cascadeRewrites.WithLabelValues("error").Inc()
			e.logger.Warn("failed to rewrite descendant path",
				"id", e.layout.IDOf(d),
				"ancestor", id,
				"error", err,
			)
			return err
		}
		cascadeRewrites.WithLabelValues("ok").Inc()
		return nil
	})

	e.logger.Info("reparent cascade completed",
		"id", id,
		"descendants", len(docs),
		"failed", failedCount(err),
	)
	return err
}

// subtreeFilter matches every descendant of the node id at path. Roots are
// matched by anchored prefix, since their children's paths start directly
// with the separator; other nodes by segment.
func (e *Engine[N]) subtreeFilter(id, path string) Filter {
	if path == "" {
		return Filter{PathUnder: e.codec.ChildPath("", id)}
	}
	return Filter{PathSegment: id}
}

// RemoveDescendants deletes every descendant of n in one bulk operation and
// leaves n itself in place.
func (e *Engine[N]) RemoveDescendants(ctx context.Context, n N) (int, error) {
	return e.ClearSubtree(ctx, n.NodeID(), n.NodePath())
}

// ClearSubtree deletes every descendant of the node id whose path is path.
// A node that has no descendants, or no longer exists, is a no-op. It holds
// the root lock of path, so it never interleaves with a cascade in that tree.
func (e *Engine[N]) ClearSubtree(ctx context.Context, id, path string) (int, error) {
	var count int
	err := e.withRoots(ctx, func(context.Context) ([]string, error) {
		return []string{e.codec.RootID(path, id)}, nil
	}, func() error {
		n, err := e.clearSubtree(ctx, id, path)
		count = n
		return err
	})
	return count, err
}

func (e *Engine[N]) clearSubtree(ctx context.Context, id, path string) (int, error) {
	count, err := e.store.DeleteMany(ctx, e.subtreeFilter(id, path))
	if err != nil {
		return count, fmt.Errorf("delete subtree of %s: %w", id, err)
	}
	subtreeDeleted.Add(float64(count))
	return count, nil
}

// Remove deletes n and its entire subtree. Removing a node that is not
// stored is a no-op.
func (e *Engine[N]) Remove(ctx context.Context, n N) error {
	return e.remove(ctx, n.NodeID(), n.NodePath())
}

// RemoveID deletes the node id and its entire subtree.
func (e *Engine[N]) RemoveID(ctx context.Context, id string) error {
	return e.remove(ctx, id, "")
}

func (e *Engine[N]) remove(ctx context.Context, id, path string) error {
	err := e.withRoots(ctx, func(ctx context.Context) ([]string, error) {
		stored, err := e.lookup(ctx, id)
		switch {
		case err == nil:
			path = e.layout.PathOf(stored)
		case !errors.Is(err, ErrNotFound):
			return nil, err
		}
		return []string{e.codec.RootID(path, id)}, nil
	}, func() error {
		count, err := e.clearSubtree(ctx, id, path)
		if err != nil {
			return err
		}
		if _, err := e.store.DeleteMany(ctx, Filter{ID: id}); err != nil {
			return fmt.Errorf("delete %s: %w", id, err)
		}
		e.logger.Debug("removed node", "id", id, "descendants", count)
		return nil
	})
	observeOp("remove", err)
	return err
}

// RemoveWhere removes every node matching f, each with its subtree, with at
// most MapLimit removals in flight.
func (e *Engine[N]) RemoveWhere(ctx context.Context, f Filter) error {
	docs, err := e.store.Find(ctx, f, FindOptions{Fields: []string{e.layout.Path}})
	if err != nil {
		return fmt.Errorf("find nodes to remove: %w", err)
	}
	return forEachLimit(ctx, "remove", e.config.MapLimit, docs, e.layout.IDOf, func(ctx context.Context, d Document) error {
		return e.remove(ctx, e.layout.IDOf(d), e.layout.PathOf(d))
	})
}

func failedCount(err error) int {
	var batch *BatchError
	if errors.As(err, &batch) {
		return len(batch.Failed)
	}
	return 0
}
