// Package tree maintains a hierarchy over a flat document collection using
// materialized paths.
//
// Every node stores the chain of its ancestor ids, oldest first, in a path
// string: a child of root R has the path ",R" and a grandchild below child
// C has ",R,C". Roots have the empty path. Ancestor, descendant and sibling
// queries become string prefix and segment matches over the collection.
//
// # Key Features
//
//   - Path assignment on create, with parent validation
//   - Reparent cascade: one prefix scan rewrites the whole moved subtree
//   - Subtree delete in one bulk operation
//   - Structural predicates (root, leaf, ancestor, descendant, sibling)
//   - Keyed and array tree reconstruction, siblings ordered by weight
//   - Full-collection path rebuild from parent ids
//
// # Nodes
//
// The [Engine] is generic over any type implementing [Node]:
//
//	type Node interface {
//	    NodeID() string
//	    NodeParentID() string
//	    NodePath() string
//	    NodeWeight() int
//	}
//
// Nodes cross the store boundary as JSON, so their field tags must match the
// [Layout]. [Record] is a ready-made node for the default layout.
//
// # Storage
//
// The engine only needs the primitive operations of [Store]: point lookups,
// filtered scans, bulk updates, bulk deletes and full-document saves.
// Implementations live in the memstore, badgerstore and dynamostore packages.
//
// # Concurrency
//
// Cascades, RemoveWhere and Rebuild fan out with at most [Config].MapLimit
// store operations in flight. Structural mutations issued through one Engine
// are serialized per tree root; mutations from other processes are not, and
// must be coordinated by the caller.
//
// # Errors
//
//   - [ErrNotFound] - no node matches a point lookup
//   - [ErrParentNotFound] - create or reparent names a missing parent, wrapped in a [ValidationError]
//   - [ErrAlreadyExists] - Insert with a taken id
//   - [ErrCycle] - reparent under the node itself or one of its descendants
//   - [BatchError] - some items of a fan-out failed; the others completed
package tree
