package tree

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"slices"

	"github.com/emirpasic/gods/maps/linkedhashmap"
)

// Tree is a keyed tree level: node id to node, iterated in display order.
// A nil *Tree is an empty level.
type Tree[N Node] struct {
	m *linkedhashmap.Map
}

func newTree[N Node]() *Tree[N] {
	return &Tree[N]{m: linkedhashmap.New()}
}

// Len returns the number of nodes on this level.
func (t *Tree[N]) Len() int {
	if t == nil {
		return 0
	}
	return t.m.Size()
}

// Keys returns the node ids in display order.
func (t *Tree[N]) Keys() []string {
	if t == nil {
		return nil
	}
	keys := make([]string, 0, t.m.Size())
	for _, k := range t.m.Keys() {
		keys = append(keys, k.(string))
	}
	return keys
}

// Get returns the node with id on this level.
func (t *Tree[N]) Get(id string) (*TreeNode[N], bool) {
	if t == nil {
		return nil, false
	}
	v, ok := t.m.Get(id)
	if !ok {
		return nil, false
	}
	return v.(*TreeNode[N]), true
}

// Nodes returns the nodes of this level in display order.
func (t *Tree[N]) Nodes() []*TreeNode[N] {
	if t == nil {
		return nil
	}
	out := make([]*TreeNode[N], 0, t.m.Size())
	for _, v := range t.m.Values() {
		out = append(out, v.(*TreeNode[N]))
	}
	return out
}

func (t *Tree[N]) put(id string, n *TreeNode[N]) { t.m.Put(id, n) }
func (t *Tree[N]) remove(id string)              { t.m.Remove(id) }

// MarshalJSON encodes the level as a JSON object whose key order is the
// display order.
func (t *Tree[N]) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, n := range t.Nodes() {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(n.ID())
		if err != nil {
			return nil, err
		}
		val, err := json.Marshal(n)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

// TreeNode is a node of a keyed tree.
type TreeNode[N Node] struct {
	Node N

	// Fields holds the requested field subset when the tree was built with one.
	Fields Document

	// Children is nil for leaves.
	Children *Tree[N]
}

// ID returns the node's id.
func (n *TreeNode[N]) ID() string { return n.Node.NodeID() }

func (n *TreeNode[N]) MarshalJSON() ([]byte, error) {
	d, err := flatten(n.Node, n.Fields)
	if err != nil {
		return nil, err
	}
	if n.Children.Len() > 0 {
		d["children"] = n.Children
	}
	return json.Marshal(d)
}

// ArrayNode is a node of an array tree.
type ArrayNode[N Node] struct {
	Node   N
	Fields Document

	// Children are ordered by weight; nil for leaves.
	Children []*ArrayNode[N]
}

// ID returns the node's id.
func (n *ArrayNode[N]) ID() string { return n.Node.NodeID() }

func (n *ArrayNode[N]) MarshalJSON() ([]byte, error) {
	d, err := flatten(n.Node, n.Fields)
	if err != nil {
		return nil, err
	}
	if len(n.Children) > 0 {
		d["children"] = n.Children
	}
	return json.Marshal(d)
}

func flatten[N Node](n N, fields Document) (Document, error) {
	if fields != nil {
		d := make(Document, len(fields)+1)
		for k, v := range fields {
			d[k] = v
		}
		return d, nil
	}
	return nodeCodec[N]{layout: DefaultLayout()}.encode(n)
}

// edge links a child to its parent for splicing.
type edge struct {
	index  int
	child  string
	parent string
	depth  int
}

// edges lists a parent link for every node with a parent, deepest first and
// in input order within a depth, so a child is always attached before its
// parent is attached to the grandparent.
func (e *Engine[N]) edges(nodes []N) []edge {
	out := make([]edge, 0, len(nodes))
	for i, n := range nodes {
		if n.NodeParentID() == "" {
			continue
		}
		out = append(out, edge{
			index:  i,
			child:  n.NodeID(),
			parent: n.NodeParentID(),
			depth:  e.codec.Depth(n.NodePath()),
		})
	}
	slices.SortStableFunc(out, func(a, b edge) int {
		if a.depth != b.depth {
			return b.depth - a.depth
		}
		return a.index - b.index
	})
	return out
}

func (e *Engine[N]) narrow(n N, fields []string) (Document, error) {
	if len(fields) == 0 {
		return nil, nil
	}
	d, err := e.nodes.encode(n)
	if err != nil {
		return nil, err
	}
	return e.layout.Project(d, fields), nil
}

// ToTree nests nodes into a keyed tree. Nodes whose parent is outside the
// input stay on the top level, in input order; every children level is
// ordered by weight ascending, ties keeping input order. With fields, each
// node also carries only those fields (plus the id) for encoding.
func (e *Engine[N]) ToTree(nodes []N, fields ...string) (*Tree[N], error) {
	top := newTree[N]()
	all := make(map[string]*TreeNode[N], len(nodes))
	for _, n := range nodes {
		narrowed, err := e.narrow(n, fields)
		if err != nil {
			return nil, err
		}
		tn := &TreeNode[N]{Node: n, Fields: narrowed}
		all[n.NodeID()] = tn
		top.put(n.NodeID(), tn)
	}

	for _, ed := range e.edges(nodes) {
		parent, ok := all[ed.parent]
		if !ok {
			continue
		}
		child := all[ed.child]
		if parent.Children == nil {
			parent.Children = newTree[N]()
		}
		parent.Children.put(ed.child, child)
		top.remove(ed.child)
	}

	for _, tn := range top.Nodes() {
		sortTree(tn)
	}
	return top, nil
}

// sortTree reinserts every children level in weight order.
func sortTree[N Node](tn *TreeNode[N]) {
	if tn.Children.Len() == 0 {
		return
	}
	kids := tn.Children.Nodes()
	slices.SortStableFunc(kids, func(a, b *TreeNode[N]) int {
		return a.Node.NodeWeight() - b.Node.NodeWeight()
	})
	sorted := newTree[N]()
	for _, k := range kids {
		sorted.put(k.ID(), k)
		sortTree(k)
	}
	tn.Children = sorted
}

// ToArrayTree nests nodes into an array tree with the same shape and order
// as ToTree.
func (e *Engine[N]) ToArrayTree(nodes []N, fields ...string) ([]*ArrayNode[N], error) {
	all := make(map[string]*ArrayNode[N], len(nodes))
	order := make([]string, 0, len(nodes))
	for _, n := range nodes {
		narrowed, err := e.narrow(n, fields)
		if err != nil {
			return nil, err
		}
		if _, dup := all[n.NodeID()]; !dup {
			order = append(order, n.NodeID())
		}
		all[n.NodeID()] = &ArrayNode[N]{Node: n, Fields: narrowed}
	}

	attached := make(map[string]bool)
	for _, ed := range e.edges(nodes) {
		parent, ok := all[ed.parent]
		if !ok || attached[ed.child] {
			continue
		}
		parent.Children = append(parent.Children, all[ed.child])
		attached[ed.child] = true
	}

	out := make([]*ArrayNode[N], 0, len(order))
	for _, id := range order {
		if attached[id] {
			continue
		}
		an := all[id]
		sortArray(an)
		out = append(out, an)
	}
	return out, nil
}

func sortArray[N Node](an *ArrayNode[N]) {
	slices.SortStableFunc(an.Children, func(a, b *ArrayNode[N]) int {
		return a.Node.NodeWeight() - b.Node.NodeWeight()
	})
	for _, c := range an.Children {
		sortArray(c)
	}
}

// subtree returns n followed by its descendants.
func (e *Engine[N]) subtree(ctx context.Context, n N, q QueryOptions) ([]N, error) {
	desc, err := e.Descendants(ctx, n, q)
	if err != nil {
		return nil, err
	}
	return append([]N{n}, desc...), nil
}

// Tree returns the keyed tree rooted at n.
func (e *Engine[N]) Tree(ctx context.Context, n N, q QueryOptions) (*Tree[N], error) {
	nodes, err := e.subtree(ctx, n, q)
	if err != nil {
		return nil, err
	}
	return e.ToTree(nodes, q.Fields...)
}

// ArrayTree returns the array tree rooted at n.
func (e *Engine[N]) ArrayTree(ctx context.Context, n N, q QueryOptions) ([]*ArrayNode[N], error) {
	nodes, err := e.subtree(ctx, n, q)
	if err != nil {
		return nil, err
	}
	return e.ToArrayTree(nodes, q.Fields...)
}

func (e *Engine[N]) findOne(ctx context.Context, f Filter) (N, error) {
	var zero N
	d, err := e.store.FindOne(ctx, f)
	if err != nil {
		return zero, err
	}
	return e.nodes.decode(d)
}

// TreeOf returns the keyed tree rooted at the first node matching f.
func (e *Engine[N]) TreeOf(ctx context.Context, f Filter, q QueryOptions) (*Tree[N], error) {
	n, err := e.findOne(ctx, f)
	if err != nil {
		return nil, err
	}
	return e.Tree(ctx, n, q)
}

// ArrayTreeOf returns the array tree rooted at the first node matching f.
func (e *Engine[N]) ArrayTreeOf(ctx context.Context, f Filter, q QueryOptions) ([]*ArrayNode[N], error) {
	n, err := e.findOne(ctx, f)
	if err != nil {
		return nil, err
	}
	return e.ArrayTree(ctx, n, q)
}

func (e *Engine[N]) all(ctx context.Context) ([]N, error) {
	docs, err := e.store.Find(ctx, Filter{}, FindOptions{Sort: e.pathOrder()})
	if err != nil {
		return nil, fmt.Errorf("find all nodes: %w", err)
	}
	return e.nodes.decodeAll(docs)
}

// FullTree returns the keyed tree of the whole collection.
func (e *Engine[N]) FullTree(ctx context.Context) (*Tree[N], error) {
	nodes, err := e.all(ctx)
	if err != nil {
		return nil, err
	}
	return e.ToTree(nodes)
}

// FullArrayTree returns the array tree of the whole collection.
func (e *Engine[N]) FullArrayTree(ctx context.Context) ([]*ArrayNode[N], error) {
	nodes, err := e.all(ctx)
	if err != nil {
		return nil, err
	}
	return e.ToArrayTree(nodes)
}
