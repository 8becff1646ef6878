package tree

import "context"

// Store is the document store contract the engine consumes. Implementations
// must evaluate Filter and FindOptions with the semantics of Layout.Select,
// and return documents in insertion (scan) order unless sorted.
type Store interface {
	// FindOne returns the first matching document, or ErrNotFound.
	// When fields are given the result is projected to them plus the id.
	FindOne(ctx context.Context, f Filter, fields ...string) (Document, error)

	// Find returns every matching document.
	Find(ctx context.Context, f Filter, opts FindOptions) ([]Document, error)

	// UpdateMany applies p to every matching document and returns the count.
	UpdateMany(ctx context.Context, f Filter, p Patch) (int, error)

	// DeleteMany removes every matching document and returns the count.
	DeleteMany(ctx context.Context, f Filter) (int, error)

	// Save inserts d or fully replaces the document with the same id, and
	// returns the document as stored.
	Save(ctx context.Context, d Document) (Document, error)
}
