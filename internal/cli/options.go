package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/jacentio/mpath/tree"
)

// Options holds the global flags, merged with the optional config file.
type Options struct {
	ConfigPath  string
	Backend     string
	DBPath      string
	Table       string
	Region      string
	Profile     string
	ParentIndex string
	Separator   string
	MapLimit    int
	Verbose     bool
}

// fileConfig is the YAML config file layout.
type fileConfig struct {
	Backend string `yaml:"backend"`
	Badger  struct {
		Path string `yaml:"path"`
	} `yaml:"badger"`
	DynamoDB struct {
		Table       string `yaml:"table"`
		Region      string `yaml:"region"`
		Profile     string `yaml:"profile"`
		ParentIndex string `yaml:"parent_index"`
	} `yaml:"dynamodb"`
	Tree struct {
		Separator string `yaml:"separator"`
		MapLimit  int    `yaml:"map_limit"`
	} `yaml:"tree"`
}

func newDefaultOptions() *Options {
	return &Options{
		Backend:  "badger",
		DBPath:   ".mpath",
		Table:    "mpath_nodes",
		MapLimit: 5,
	}
}

// Prepare loads the config file, letting explicitly set flags win, and
// validates the result.
func (o *Options) Prepare(cmd *cobra.Command) error {
	if o.ConfigPath != "" {
		if err := o.loadFile(cmd, o.ConfigPath); err != nil {
			return err
		}
	}

	o.Backend = strings.ToLower(strings.TrimSpace(o.Backend))
	switch o.Backend {
	case "badger":
		if strings.TrimSpace(o.DBPath) == "" {
			return fmt.Errorf("database path is required")
		}
	case "dynamodb":
		if strings.TrimSpace(o.Table) == "" {
			return fmt.Errorf("table is required")
		}
	case "memory":
	default:
		return fmt.Errorf("invalid --backend %q (expected: badger|dynamodb|memory)", o.Backend)
	}
	if o.MapLimit < 1 {
		return fmt.Errorf("map limit must be >= 1")
	}
	return nil
}

func (o *Options) loadFile(cmd *cobra.Command, path string) error {
	b, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("read config: %w", err)
	}
	var fc fileConfig
	if err := yaml.Unmarshal(b, &fc); err != nil {
		return fmt.Errorf("parse config %s: %w", path, err)
	}

	flags := cmd.Flags()
	set := func(name string, dst *string, v string) {
		if v != "" && !flags.Changed(name) {
			*dst = v
		}
	}
	set("backend", &o.Backend, fc.Backend)
	set("db", &o.DBPath, fc.Badger.Path)
	set("table", &o.Table, fc.DynamoDB.Table)
	set("region", &o.Region, fc.DynamoDB.Region)
	set("profile", &o.Profile, fc.DynamoDB.Profile)
	set("parent-index", &o.ParentIndex, fc.DynamoDB.ParentIndex)
	set("separator", &o.Separator, fc.Tree.Separator)
	if fc.Tree.MapLimit > 0 && !flags.Changed("map-limit") {
		o.MapLimit = fc.Tree.MapLimit
	}
	return nil
}

// Layout returns the tree layout for the configured separator.
func (o *Options) Layout() tree.Layout {
	l := tree.DefaultLayout()
	if o.Separator != "" {
		l.Separator = o.Separator
	}
	return l
}

// Logger returns a text logger on stderr, at debug level when verbose.
func (o *Options) Logger(cmd *cobra.Command) *slog.Logger {
	level := slog.LevelWarn
	if o.Verbose {
		level = slog.LevelDebug
	}
	return slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{Level: level}))
}

type optionsKey struct{}

func optionsFrom(cmd *cobra.Command) *Options {
	if cmd == nil {
		return nil
	}
	root := cmd.Root()
	if root == nil {
		root = cmd
	}
	v := root.Context().Value(optionsKey{})
	opts, _ := v.(*Options)
	return opts
}

func withOptionsContext(cmd *cobra.Command, opts *Options) {
	cmd.SetContext(context.WithValue(context.Background(), optionsKey{}, opts))
}

func bindFlags(cmd *cobra.Command, opts *Options) {
	cmd.PersistentFlags().StringVarP(&opts.ConfigPath, "config", "c", opts.ConfigPath, "YAML config file")
	cmd.PersistentFlags().StringVarP(&opts.Backend, "backend", "b", opts.Backend, "storage backend: badger|dynamodb|memory")
	cmd.PersistentFlags().StringVarP(&opts.DBPath, "db", "d", opts.DBPath, "badger database directory")
	cmd.PersistentFlags().StringVar(&opts.Table, "table", opts.Table, "DynamoDB table")
	cmd.PersistentFlags().StringVar(&opts.Region, "region", opts.Region, "AWS region")
	cmd.PersistentFlags().StringVar(&opts.Profile, "profile", opts.Profile, "AWS shared config profile")
	cmd.PersistentFlags().StringVar(&opts.ParentIndex, "parent-index", opts.ParentIndex, "DynamoDB GSI keyed by parent_id")
	cmd.PersistentFlags().StringVar(&opts.Separator, "separator", opts.Separator, "path separator (default \",\")")
	cmd.PersistentFlags().IntVar(&opts.MapLimit, "map-limit", opts.MapLimit, "max in-flight store operations during cascades")
	cmd.PersistentFlags().BoolVarP(&opts.Verbose, "verbose", "v", opts.Verbose, "debug logging to stderr")
}
