// Package memstore provides an in-process document store for the tree engine.
//
// Documents are kept in insertion order, which is the scan order Find uses
// to break sort ties. Values are normalized to their JSON form on write, so
// numbers read back as float64.
package memstore

import (
	"context"
	"sync"

	"github.com/jacentio/mpath/tree"
)

// Store is a goroutine-safe in-memory tree.Store.
type Store struct {
	mu     sync.RWMutex
	layout tree.Layout
	order  []string
	docs   map[string]tree.Document

	// failUpdate, when set, is consulted before every per-document update.
	failUpdate func(tree.Document) error
}

var _ tree.Store = (*Store)(nil)

// New creates an empty Store for layout.
func New(layout tree.Layout) *Store {
	return &Store{
		layout: layout.Normalized(),
		docs:   make(map[string]tree.Document),
	}
}

// FailUpdatesWhen makes UpdateMany fail for documents where fn returns an error.
// Used to exercise partial-failure paths.
func (s *Store) FailUpdatesWhen(fn func(tree.Document) error) {
	s.mu.Lock()
	s.failUpdate = fn
	s.mu.Unlock()
}

// Len returns the number of stored documents.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}

func (s *Store) snapshot() []tree.Document {
	out := make([]tree.Document, 0, len(s.order))
	for _, id := range s.order {
		out = append(out, s.docs[id])
	}
	return out
}

func (s *Store) FindOne(ctx context.Context, f tree.Filter, fields ...string) (tree.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	if f.ID != "" {
		d, ok := s.docs[f.ID]
		if !ok || !s.layout.Match(d, f) {
			return nil, tree.ErrNotFound
		}
		return s.layout.Project(d, fields).Clone(), nil
	}
	found := s.layout.Select(s.snapshot(), f, tree.FindOptions{Fields: fields, Limit: 1})
	if len(found) == 0 {
		return nil, tree.ErrNotFound
	}
	return found[0].Clone(), nil
}

func (s *Store) Find(ctx context.Context, f tree.Filter, opts tree.FindOptions) ([]tree.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	defer s.mu.RUnlock()

	found := s.layout.Select(s.snapshot(), f, opts)
	out := make([]tree.Document, len(found))
	for i, d := range found {
		out[i] = d.Clone()
	}
	return out, nil
}

func (s *Store) UpdateMany(ctx context.Context, f tree.Filter, p tree.Patch) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	count := 0
	for _, d := range s.layout.Select(s.snapshot(), f, tree.FindOptions{}) {
		if s.failUpdate != nil {
			if err := s.failUpdate(d); err != nil {
				return count, err
			}
		}
		s.docs[s.layout.IDOf(d)] = s.layout.Apply(d, p).Clone()
		count++
	}
	return count, nil
}

func (s *Store) DeleteMany(ctx context.Context, f tree.Filter) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	kept := s.order[:0]
	count := 0
	for _, id := range s.order {
		if s.layout.Match(s.docs[id], f) {
			delete(s.docs, id)
			count++
			continue
		}
		kept = append(kept, id)
	}
	s.order = kept
	return count, nil
}

func (s *Store) Save(ctx context.Context, d tree.Document) (tree.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	stored := d.Clone()
	id := s.layout.IDOf(stored)

	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.docs[id]; !ok {
		s.order = append(s.order, id)
	}
	s.docs[id] = stored
	return stored.Clone(), nil
}
