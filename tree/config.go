package tree

import "log/slog"

// Layout names the document fields the engine owns and the path separator.
type Layout struct {
	// ID is the identity field. Default: "id"
	ID string

	// Parent holds the parent's id; absent, null or "" marks a root. Default: "parent_id"
	Parent string

	// Path holds the materialized ancestor chain. Default: "path"
	Path string

	// Weight orders siblings. Default: "_w"
	Weight string

	// Separator joins ancestor ids inside a path. Default: ","
	Separator string
}

// DefaultLayout returns the field names used when none are configured.
func DefaultLayout() Layout {
	return Layout{
		ID:        "id",
		Parent:    "parent_id",
		Path:      "path",
		Weight:    "_w",
		Separator: ",",
	}
}

func (l *Layout) validate() {
	d := DefaultLayout()
	if l.ID == "" {
		l.ID = d.ID
	}
	if l.Parent == "" {
		l.Parent = d.Parent
	}
	if l.Path == "" {
		l.Path = d.Path
	}
	if l.Weight == "" {
		l.Weight = d.Weight
	}
	if l.Separator == "" {
		l.Separator = d.Separator
	}
}

// Normalized returns the layout with defaults filled in.
func (l Layout) Normalized() Layout {
	l.validate()
	return l
}

// Codec returns the path codec for the layout's separator.
func (l Layout) Codec() Codec {
	return Codec{Sep: l.Normalized().Separator}
}

// Config holds configuration for the Engine.
type Config struct {
	Layout Layout

	// MapLimit caps in-flight store operations during cascades, RemoveWhere
	// and Rebuild.
	// Default: 5
	// Max: 256
	MapLimit int

	// LockStripes is the number of per-root mutex stripes used to serialize
	// structural mutations inside one Engine. Zero or negative disables
	// engine-side serialization.
	// Default: 16
	LockStripes int

	// Logger receives cascade and rebuild events. Nil uses slog.Default().
	Logger *slog.Logger
}

// DefaultConfig returns the defaults: "," separator, mapLimit 5.
func DefaultConfig() Config {
	return Config{
		Layout:      DefaultLayout(),
		MapLimit:    5,
		LockStripes: 16,
	}
}

// validate ensures config values are within acceptable bounds.
func (c *Config) validate() {
	c.Layout.validate()
	if c.MapLimit < 1 {
		c.MapLimit = 5
	}
	if c.MapLimit > 256 {
		c.MapLimit = 256
	}
	if c.LockStripes > 1024 {
		c.LockStripes = 1024
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}
