package cli

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"github.com/jacentio/mpath/tree"
)

// parseAttrs turns key=value pairs into attributes. Values that parse as
// JSON numbers, booleans or null keep that type; everything else is a string.
func parseAttrs(pairs []string) (map[string]any, error) {
	if len(pairs) == 0 {
		return nil, nil
	}
	out := make(map[string]any, len(pairs))
	for _, p := range pairs {
		k, v, ok := strings.Cut(p, "=")
		if !ok || k == "" {
			return nil, fmt.Errorf("invalid --set %q (expected key=value)", p)
		}
		switch {
		case v == "true" || v == "false":
			out[k] = v == "true"
		case v == "null":
			out[k] = nil
		default:
			if f, err := strconv.ParseFloat(v, 64); err == nil {
				out[k] = f
			} else {
				out[k] = v
			}
		}
	}
	return out, nil
}

func newInsertCommand(r runner) *cobra.Command {
	var (
		parent string
		weight int
		set    []string
	)
	cmd := &cobra.Command{
		Use:   "insert [id]",
		Short: "Insert a node (a random id is assigned when omitted)",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			attrs, err := parseAttrs(set)
			if err != nil {
				return err
			}
			rec := &tree.Record{ParentID: parent, Weight: weight, Attrs: attrs}
			if len(args) == 1 {
				rec.ID = args[0]
			}
			return r.with(cmd, func(ctx context.Context, e *engine) error {
				n, err := e.Insert(ctx, rec)
				if err != nil {
					return err
				}
				return writeJSON(cmd, n)
			})
		},
	}
	cmd.Flags().StringVarP(&parent, "parent", "p", "", "parent id (empty for a root)")
	cmd.Flags().IntVarP(&weight, "weight", "w", 0, "sibling order weight")
	cmd.Flags().StringArrayVar(&set, "set", nil, "extra attribute key=value (repeatable)")
	return cmd
}

func newMoveCommand(r runner) *cobra.Command {
	return &cobra.Command{
		Use:   "move <id> [parent]",
		Short: "Move a node under parent, or make it a root when parent is omitted",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			parent := ""
			if len(args) == 2 {
				parent = args[1]
			}
			return r.with(cmd, func(ctx context.Context, e *engine) error {
				n, err := e.Get(ctx, args[0])
				if err != nil {
					return err
				}
				moved, err := e.SetParent(ctx, n, parent)
				var batch *tree.BatchError
				if errors.As(err, &batch) {
					return errors.Join(err, writeJSON(cmd, moved))
				}
				if err != nil {
					return err
				}
				return writeJSON(cmd, moved)
			})
		},
	}
}

func newRemoveCommand(r runner) *cobra.Command {
	var descendantsOnly bool
	cmd := &cobra.Command{
		Use:   "remove <id>",
		Short: "Remove a node and its subtree",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.with(cmd, func(ctx context.Context, e *engine) error {
				if !descendantsOnly {
					return e.RemoveID(ctx, args[0])
				}
				n, err := e.Get(ctx, args[0])
				if err != nil {
					return err
				}
				count, err := e.RemoveDescendants(ctx, n)
				if err != nil {
					return err
				}
				return writeJSON(cmd, map[string]int{"removed": count})
			})
		},
	}
	cmd.Flags().BoolVar(&descendantsOnly, "descendants", false, "remove only the descendants, keeping the node")
	return cmd
}

func newGetCommand(r runner) *cobra.Command {
	return &cobra.Command{
		Use:   "get <id>",
		Short: "Print a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.with(cmd, func(ctx context.Context, e *engine) error {
				n, err := e.Get(ctx, args[0])
				if err != nil {
					return err
				}
				return writeJSON(cmd, n)
			})
		},
	}
}

func queryFlags(cmd *cobra.Command, q *tree.QueryOptions) {
	cmd.Flags().StringSliceVar(&q.Fields, "fields", nil, "only these fields (comma separated)")
	cmd.Flags().IntVar(&q.Limit, "limit", 0, "max results")
	cmd.Flags().IntVar(&q.Skip, "skip", 0, "skip this many results")
}

func newDescendantsCommand(r runner) *cobra.Command {
	var (
		q         tree.QueryOptions
		immediate bool
	)
	cmd := &cobra.Command{
		Use:   "descendants <id>",
		Short: "List the nodes below a node",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.with(cmd, func(ctx context.Context, e *engine) error {
				var (
					nodes []*tree.Record
					err   error
				)
				if immediate {
					nodes, err = e.ChildrenOf(ctx, args[0], q)
				} else {
					var n *tree.Record
					if n, err = e.Get(ctx, args[0]); err != nil {
						return err
					}
					nodes, err = e.Descendants(ctx, n, q)
				}
				if err != nil {
					return err
				}
				return writeJSON(cmd, nodes)
			})
		},
	}
	queryFlags(cmd, &q)
	cmd.Flags().BoolVar(&immediate, "children", false, "immediate children only")
	return cmd
}

func newAncestorsCommand(r runner) *cobra.Command {
	var q tree.QueryOptions
	cmd := &cobra.Command{
		Use:   "ancestors <id>",
		Short: "List the ancestors of a node, oldest first",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.with(cmd, func(ctx context.Context, e *engine) error {
				n, err := e.Get(ctx, args[0])
				if err != nil {
					return err
				}
				nodes, err := e.Ancestors(ctx, n, q)
				if err != nil {
					return err
				}
				return writeJSON(cmd, nodes)
			})
		},
	}
	queryFlags(cmd, &q)
	return cmd
}

func newTreeCommand(r runner) *cobra.Command {
	var (
		root   string
		array  bool
		fields []string
	)
	cmd := &cobra.Command{
		Use:   "tree",
		Short: "Print the hierarchy as a nested JSON document",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.with(cmd, func(ctx context.Context, e *engine) error {
				q := tree.QueryOptions{Fields: fields}
				switch {
				case root != "" && array:
					t, err := e.ArrayTreeOf(ctx, tree.Filter{ID: root}, q)
					if err != nil {
						return err
					}
					return writeJSON(cmd, t)
				case root != "":
					t, err := e.TreeOf(ctx, tree.Filter{ID: root}, q)
					if err != nil {
						return err
					}
					return writeJSON(cmd, t)
				}

				if len(fields) == 0 {
					if array {
						t, err := e.FullArrayTree(ctx)
						if err != nil {
							return err
						}
						return writeJSON(cmd, t)
					}
					t, err := e.FullTree(ctx)
					if err != nil {
						return err
					}
					return writeJSON(cmd, t)
				}

				docs, err := e.Store().Find(ctx, tree.Filter{}, tree.FindOptions{
					Sort: []tree.SortField{{Field: e.Layout().Path}, {Field: e.Layout().Weight}},
				})
				if err != nil {
					return err
				}
				records := make([]*tree.Record, len(docs))
				for i, d := range docs {
					rec := tree.RecordFrom(d)
					records[i] = &rec
				}
				if array {
					t, err := e.ToArrayTree(records, fields...)
					if err != nil {
						return err
					}
					return writeJSON(cmd, t)
				}
				t, err := e.ToTree(records, fields...)
				if err != nil {
					return err
				}
				return writeJSON(cmd, t)
			})
		},
	}
	cmd.Flags().StringVar(&root, "root", "", "only the subtree rooted at this id")
	cmd.Flags().BoolVar(&array, "array", false, "children as arrays instead of keyed objects")
	cmd.Flags().StringSliceVar(&fields, "fields", nil, "only these fields (comma separated)")
	return cmd
}

func newRebuildCommand(r runner) *cobra.Command {
	var strip []string
	cmd := &cobra.Command{
		Use:   "rebuild",
		Short: "Recompute every path from parent ids",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return r.with(cmd, func(ctx context.Context, e *engine) error {
				report, err := e.Rebuild(ctx, tree.RebuildOptions{Strip: strip})
				if report != nil {
					if werr := writeJSON(cmd, report); werr != nil && err == nil {
						err = werr
					}
				}
				return err
			})
		},
	}
	cmd.Flags().StringSliceVar(&strip, "strip", nil, "fields to remove from every node first")
	return cmd
}
