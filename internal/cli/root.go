// Package cli implements the mpath command line tool.
package cli

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/jacentio/mpath/tree"
)

// NewRootCommand returns the mpath command tree over the real backends.
func NewRootCommand() *cobra.Command {
	return newRootCommand(OpenStore)
}

func newRootCommand(open Opener) *cobra.Command {
	opts := newDefaultOptions()
	cmd := &cobra.Command{
		Use:           "mpath",
		Short:         "Materialized-path hierarchy tool",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	withOptionsContext(cmd, opts)
	bindFlags(cmd, opts)

	cmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if opts := optionsFrom(cmd); opts != nil {
			return opts.Prepare(cmd)
		}
		return nil
	}

	run := runner{open: open}
	cmd.AddCommand(
		newInsertCommand(run),
		newMoveCommand(run),
		newRemoveCommand(run),
		newGetCommand(run),
		newDescendantsCommand(run),
		newAncestorsCommand(run),
		newTreeCommand(run),
		newRebuildCommand(run),
	)
	return cmd
}

type engine = tree.Engine[*tree.Record]

// runner opens the configured store around each command.
type runner struct {
	open Opener
}

func (r runner) with(cmd *cobra.Command, fn func(ctx context.Context, e *engine) error) error {
	opts := optionsFrom(cmd)
	if opts == nil {
		return fmt.Errorf("options missing")
	}
	ctx := cmd.Context()
	s, closeStore, err := r.open(ctx, opts)
	if err != nil {
		return err
	}

	cfg := tree.DefaultConfig()
	cfg.Layout = opts.Layout()
	cfg.MapLimit = opts.MapLimit
	cfg.Logger = opts.Logger(cmd)
	e := tree.New[*tree.Record](s, cfg)

	runErr := fn(ctx, e)
	if err := closeStore(); err != nil && runErr == nil {
		runErr = fmt.Errorf("close store: %w", err)
	}
	return runErr
}

func writeJSON(cmd *cobra.Command, v any) error {
	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
