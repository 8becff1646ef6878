package dynamostore

import "github.com/jacentio/mpath/tree"

// Config holds configuration for the Store.
type Config struct {
	// Table is the node table. Its hash key is the layout's id field.
	// Default: "mpath_nodes"
	Table string

	// ParentIndex names a global secondary index whose hash key is the
	// layout's parent field. When set, parent lookups Query the index
	// instead of scanning the table.
	ParentIndex string

	// Layout names the structural fields of stored documents.
	Layout tree.Layout

	// WriteConcurrency caps in-flight UpdateItem calls within one UpdateMany.
	// Default: 8
	// Max: 64
	WriteConcurrency int

	// ConsistentRead enables strongly consistent reads on the table.
	// Index queries are always eventually consistent.
	ConsistentRead bool
}

// DefaultConfig returns defaults for a table named "mpath_nodes".
func DefaultConfig() Config {
	return Config{
		Table:            "mpath_nodes",
		Layout:           tree.DefaultLayout(),
		WriteConcurrency: 8,
		ConsistentRead:   true,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	if c.Table == "" {
		c.Table = "mpath_nodes"
	}
	c.Layout = c.Layout.Normalized()
	if c.WriteConcurrency < 1 {
		c.WriteConcurrency = 8
	}
	if c.WriteConcurrency > 64 {
		c.WriteConcurrency = 64
	}
}
