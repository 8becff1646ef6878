package tree

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// RebuildOptions configures Rebuild.
type RebuildOptions struct {
	// Strip lists fields removed from every document before paths are
	// recomputed.
	Strip []string
}

// RebuildReport summarizes a Rebuild.
type RebuildReport struct {
	// Roots is the number of documents declared roots.
	Roots int `json:"roots"`

	// Updated counts documents whose path was recomputed below the roots.
	Updated int `json:"updated"`

	// Levels is the number of frontiers descended.
	Levels int `json:"levels"`
}

// Rebuild recomputes every path from parent ids alone. Documents without a
// parent are reset to root path and weight 0 unconditionally; each level
// below is then set in bulk, breadth first, with at most MapLimit parents
// in flight. Nodes unreachable from a root (orphans, cycles) keep their
// old paths.
//
// Failures while updating one parent's children do not stop the rest of
// the frontier; they are returned together as a *BatchError alongside the
// report of what was done.
func (e *Engine[N]) Rebuild(ctx context.Context, opts RebuildOptions) (*RebuildReport, error) {
	unlock := e.locks.lockAll()
	defer unlock()

	start := time.Now()
	defer func() {
		cascadeDuration.WithLabelValues("rebuild").Observe(time.Since(start).Seconds())
	}()

	report := &RebuildReport{}
	if len(opts.Strip) > 0 {
		if _, err := e.store.UpdateMany(ctx, Filter{}, Patch{Unset: opts.Strip}); err != nil {
			observeOp("rebuild", err)
			return report, fmt.Errorf("strip fields: %w", err)
		}
	}

	roots, err := e.store.UpdateMany(ctx, Filter{Roots: true}, Patch{Set: map[string]any{
		e.layout.Path:   e.codec.RootPath(),
		e.layout.Weight: 0,
	}})
	if err != nil {
		observeOp("rebuild", err)
		return report, fmt.Errorf("reset roots: %w", err)
	}
	report.Roots = roots

	frontier, err := e.store.Find(ctx, Filter{Roots: true}, FindOptions{Fields: []string{e.layout.Path}})
	if err != nil {
		observeOp("rebuild", err)
		return report, fmt.Errorf("find roots: %w", err)
	}

	var failed []ItemError
	total := 0
	// visited guards against cycles among non-root documents.
	visited := make(map[string]bool, len(frontier))
	for _, d := range frontier {
		visited[e.layout.IDOf(d)] = true
	}

	for len(frontier) > 0 {
		report.Levels++
		total += len(frontier)
		var next collector[Document]
		var updated collector[int]

		err := forEachLimit(ctx, "rebuild", e.config.MapLimit, frontier, e.layout.IDOf, func(ctx context.Context, parent Document) error {
			id := e.layout.IDOf(parent)
			n, err := e.store.UpdateMany(ctx, Filter{ParentID: id}, Patch{Set: map[string]any{
				e.layout.Path:   e.codec.ChildPath(e.layout.PathOf(parent), id),
				e.layout.Weight: 0,
			}})
			if err != nil {
				return fmt.Errorf("update children: %w", err)
			}
			updated.add(n)
			if n == 0 {
				return nil
			}
			children, err := e.store.Find(ctx, Filter{ParentID: id}, FindOptions{Fields: []string{e.layout.Path}})
			if err != nil {
				return fmt.Errorf("find children: %w", err)
			}
			next.add(children...)
			return nil
		})
		var batch *BatchError
		if errors.As(err, &batch) {
			failed = append(failed, batch.Failed...)
		}

		for _, n := range updated.items {
			report.Updated += n
		}
		frontier = frontier[:0]
		for _, d := range next.items {
			id := e.layout.IDOf(d)
			if visited[id] {
				continue
			}
			visited[id] = true
			frontier = append(frontier, d)
		}
		e.logger.Debug("rebuild level done", "level", report.Levels, "next", len(frontier))
	}
	rebuildNodes.Add(float64(report.Updated))

	e.logger.Info("rebuild completed",
		"roots", report.Roots,
		"updated", report.Updated,
		"levels", report.Levels,
		"failed", len(failed),
	)

	if len(failed) > 0 {
		err := &BatchError{Op: "rebuild", Total: total, Failed: failed}
		observeOp("rebuild", err)
		return report, err
	}
	observeOp("rebuild", nil)
	return report, nil
}
