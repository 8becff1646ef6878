package tree

import (
	"encoding/json"
	"fmt"
)

// Node is the capability every tree record exposes. Concrete types carry
// their structural fields with JSON tags that match the engine's Layout:
//
//	type Category struct {
//	    ID       string `json:"id"`
//	    ParentID string `json:"parent_id,omitempty"`
//	    Path     string `json:"path"`
//	    Weight   int    `json:"_w"`
//	    Name     string `json:"name"`
//	}
//
// Engines are instantiated with the pointer type, e.g. Engine[*Category].
type Node interface {
	NodeID() string
	NodeParentID() string
	NodePath() string
	NodeWeight() int
}

// Record is a Node with arbitrary extra attributes, for callers that do not
// declare their own type. An Engine stores it under its own Layout's field
// names; Record's JSON form always uses the default names.
type Record struct {
	ID       string
	ParentID string
	Path     string
	Weight   int
	Attrs    map[string]any
}

func (r *Record) NodeID() string       { return r.ID }
func (r *Record) NodeParentID() string { return r.ParentID }
func (r *Record) NodePath() string     { return r.Path }
func (r *Record) NodeWeight() int      { return r.Weight }

// Get returns an extra attribute.
func (r *Record) Get(key string) any { return r.Attrs[key] }

// Set stores an extra attribute.
func (r *Record) Set(key string, v any) {
	if r.Attrs == nil {
		r.Attrs = make(map[string]any)
	}
	r.Attrs[key] = v
}

// MarshalJSON encodes r with the default Layout field names.
func (r *Record) MarshalJSON() ([]byte, error) {
	return json.Marshal(r.Document(DefaultLayout()))
}

func (r *Record) UnmarshalJSON(b []byte) error {
	var d Document
	if err := json.Unmarshal(b, &d); err != nil {
		return err
	}
	*r = RecordFrom(d)
	return nil
}

// Document returns r as a document with l's field names.
func (r *Record) Document(l Layout) Document {
	l.validate()
	d := make(Document, len(r.Attrs)+4)
	for k, v := range r.Attrs {
		d[k] = v
	}
	d[l.ID] = r.ID
	if r.ParentID != "" {
		d[l.Parent] = r.ParentID
	} else {
		d[l.Parent] = nil
	}
	d[l.Path] = r.Path
	d[l.Weight] = r.Weight
	return d
}

// RecordFrom builds a Record from a document using the default Layout.
func RecordFrom(d Document) Record {
	return RecordFromLayout(DefaultLayout(), d)
}

// RecordFromLayout builds a Record from a document with l's field names.
func RecordFromLayout(l Layout, d Document) Record {
	l.validate()
	r := Record{
		ID:       l.IDOf(d),
		ParentID: l.ParentOf(d),
		Path:     l.PathOf(d),
		Weight:   l.WeightOf(d),
	}
	for k, v := range d {
		switch k {
		case l.ID, l.Parent, l.Path, l.Weight:
			continue
		}
		r.Set(k, v)
	}
	return r
}

// nodeCodec moves nodes across the store boundary. *Record is mapped with
// the engine's Layout; other node types go through their JSON tags.
type nodeCodec[N Node] struct {
	layout Layout
}

func (c nodeCodec[N]) encode(n N) (Document, error) {
	if r, ok := any(n).(*Record); ok {
		if r == nil {
			return Document{}, nil
		}
		return r.Document(c.layout), nil
	}
	b, err := json.Marshal(n)
	if err != nil {
		return nil, fmt.Errorf("encode node: %w", err)
	}
	var d Document
	if err := json.Unmarshal(b, &d); err != nil {
		return nil, fmt.Errorf("encode node: %w", err)
	}
	if d == nil {
		d = Document{}
	}
	return d, nil
}

func (c nodeCodec[N]) decode(d Document) (N, error) {
	var n N
	if _, ok := any(n).(*Record); ok {
		r := RecordFromLayout(c.layout, d)
		return any(&r).(N), nil
	}
	b, err := json.Marshal(d)
	if err != nil {
		return n, fmt.Errorf("decode node: %w", err)
	}
	if err := json.Unmarshal(b, &n); err != nil {
		return n, fmt.Errorf("decode node: %w", err)
	}
	return n, nil
}

func (c nodeCodec[N]) decodeAll(docs []Document) ([]N, error) {
	out := make([]N, 0, len(docs))
	for _, d := range docs {
		n, err := c.decode(d)
		if err != nil {
			return nil, err
		}
		out = append(out, n)
	}
	return out, nil
}
