// Package badgerstore persists tree documents in an embedded BadgerDB.
//
// Each document is stored as JSON under a key derived from a monotonically
// increasing sequence number, so iteration order is insertion order. A
// secondary key maps the document id to its sequence number.
//
//	d/<seq>  -> document JSON
//	i/<id>   -> <seq>
package badgerstore

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/jacentio/mpath/tree"
)

var (
	docPrefix = []byte("d/")
	idPrefix  = []byte("i/")
	seqKey    = []byte("meta/seq")
)

// Store is a tree.Store backed by BadgerDB.
type Store struct {
	db     *badger.DB
	seq    *badger.Sequence
	layout tree.Layout
}

var _ tree.Store = (*Store)(nil)

// Open opens (or creates) the database described by cfg.
func Open(cfg Config, layout tree.Layout) (*Store, error) {
	db, err := openDB(cfg)
	if err != nil {
		return nil, err
	}
	s, err := New(db, layout)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

// OpenInMemory opens a throwaway in-memory store.
func OpenInMemory(layout tree.Layout) (*Store, error) {
	return Open(InMemoryConfig(), layout)
}

// New wraps an already-open database.
func New(db *badger.DB, layout tree.Layout) (*Store, error) {
	seq, err := db.GetSequence(seqKey, 128)
	if err != nil {
		return nil, fmt.Errorf("lease sequence: %w", err)
	}
	return &Store{db: db, seq: seq, layout: layout.Normalized()}, nil
}

// Close releases the sequence lease and closes the database.
func (s *Store) Close() error {
	seqErr := s.seq.Release()
	return errors.Join(seqErr, s.db.Close())
}

func docKey(seq uint64) []byte {
	k := make([]byte, len(docPrefix)+8)
	copy(k, docPrefix)
	binary.BigEndian.PutUint64(k[len(docPrefix):], seq)
	return k
}

func idKey(id string) []byte {
	return append(append([]byte(nil), idPrefix...), id...)
}

// entry is a decoded document with its storage key.
type entry struct {
	key []byte
	doc tree.Document
}

func (s *Store) get(txn *badger.Txn, id string) (*entry, error) {
	item, err := txn.Get(idKey(id))
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, tree.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	key, err := item.ValueCopy(nil)
	if err != nil {
		return nil, err
	}
	item, err = txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, tree.ErrNotFound
	}
	if err != nil {
		return nil, err
	}
	var d tree.Document
	if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &d) }); err != nil {
		return nil, fmt.Errorf("decode %s: %w", id, err)
	}
	return &entry{key: key, doc: d}, nil
}

// scan decodes every document in insertion order.
func (s *Store) scan(ctx context.Context) ([]entry, error) {
	var out []entry
	err := s.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = docPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		for it.Rewind(); it.Valid(); it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			item := it.Item()
			var d tree.Document
			if err := item.Value(func(val []byte) error { return json.Unmarshal(val, &d) }); err != nil {
				return fmt.Errorf("decode %x: %w", item.Key(), err)
			}
			out = append(out, entry{key: item.KeyCopy(nil), doc: d})
		}
		return nil
	})
	return out, err
}

// matching returns the entries selected by f, in insertion order.
func (s *Store) matching(ctx context.Context, f tree.Filter) ([]entry, error) {
	if f.ID != "" {
		var e *entry
		err := s.db.View(func(txn *badger.Txn) error {
			var err error
			e, err = s.get(txn, f.ID)
			return err
		})
		if errors.Is(err, tree.ErrNotFound) {
			return nil, nil
		}
		if err != nil {
			return nil, err
		}
		if !s.layout.Match(e.doc, f) {
			return nil, nil
		}
		return []entry{*e}, nil
	}

	all, err := s.scan(ctx)
	if err != nil {
		return nil, err
	}
	out := all[:0]
	for _, e := range all {
		if s.layout.Match(e.doc, f) {
			out = append(out, e)
		}
	}
	return out, nil
}

func docs(entries []entry) []tree.Document {
	out := make([]tree.Document, len(entries))
	for i, e := range entries {
		out[i] = e.doc
	}
	return out
}

func (s *Store) FindOne(ctx context.Context, f tree.Filter, fields ...string) (tree.Document, error) {
	found, err := s.matching(ctx, f)
	if err != nil {
		return nil, err
	}
	if len(found) == 0 {
		return nil, tree.ErrNotFound
	}
	return s.layout.Project(found[0].doc, fields), nil
}

func (s *Store) Find(ctx context.Context, f tree.Filter, opts tree.FindOptions) ([]tree.Document, error) {
	found, err := s.matching(ctx, f)
	if err != nil {
		return nil, err
	}
	return s.layout.Select(docs(found), tree.Filter{}, opts), nil
}

func (s *Store) UpdateMany(ctx context.Context, f tree.Filter, p tree.Patch) (int, error) {
	found, err := s.matching(ctx, f)
	if err != nil {
		return 0, err
	}
	if len(found) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, e := range found {
		b, err := json.Marshal(s.layout.Apply(e.doc, p))
		if err != nil {
			return 0, fmt.Errorf("encode %s: %w", s.layout.IDOf(e.doc), err)
		}
		if err := wb.Set(e.key, b); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return len(found), nil
}

func (s *Store) DeleteMany(ctx context.Context, f tree.Filter) (int, error) {
	found, err := s.matching(ctx, f)
	if err != nil {
		return 0, err
	}
	if len(found) == 0 {
		return 0, nil
	}

	wb := s.db.NewWriteBatch()
	defer wb.Cancel()
	for _, e := range found {
		if err := wb.Delete(e.key); err != nil {
			return 0, err
		}
		if err := wb.Delete(idKey(s.layout.IDOf(e.doc))); err != nil {
			return 0, err
		}
	}
	if err := wb.Flush(); err != nil {
		return 0, err
	}
	return len(found), nil
}

func (s *Store) Save(ctx context.Context, d tree.Document) (tree.Document, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	id := s.layout.IDOf(d)
	if id == "" {
		return nil, fmt.Errorf("save: document has no %q", s.layout.ID)
	}
	b, err := json.Marshal(d)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", id, err)
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		var key []byte
		existing, err := s.get(txn, id)
		switch {
		case err == nil:
			key = existing.key
		case errors.Is(err, tree.ErrNotFound):
			n, err := s.seq.Next()
			if err != nil {
				return fmt.Errorf("next sequence: %w", err)
			}
			key = docKey(n)
			if err := txn.Set(idKey(id), key); err != nil {
				return err
			}
		default:
			return err
		}
		return txn.Set(key, b)
	})
	if err != nil {
		return nil, err
	}

	var stored tree.Document
	if err := json.Unmarshal(b, &stored); err != nil {
		return nil, err
	}
	return stored, nil
}
