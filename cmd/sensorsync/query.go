package main

import (
	"context"
	"fmt"
	"io"
	"math"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/bft-labs/sensorsync/internal/adapters/sqlite"
	pkglog "github.com/bft-labs/sensorsync/pkg/log"
)

func newQueryCmd(log zerolog.Logger) *cobra.Command {
	var (
		path     string
		from, to int64
	)

	cmd := &cobra.Command{
		Use:   "query",
		Short: "List indexed tuples whose reference lies in a range",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			if path == "" {
				return fmt.Errorf("index-db is required")
			}
			if from > to {
				return fmt.Errorf("from must not be after to")
			}

			idx, err := sqlite.Open(path, pkglog.NewZerologAdapterWithLogger(log))
			if err != nil {
				return err
			}
			defer idx.Close()

			return printRange(cmd.Context(), cmd.OutOrStdout(), idx, from, to)
		},
	}

	cmd.Flags().StringVar(&path, "index-db", "", "SQLite tuple index to read")
	cmd.Flags().Int64Var(&from, "from", 0, "first reference timestamp (unix ns)")
	cmd.Flags().Int64Var(&to, "to", math.MaxInt64, "last reference timestamp (unix ns)")
	return cmd
}

// printRange writes one line per tuple followed by a total.
func printRange(ctx context.Context, w io.Writer, idx *sqlite.Index, from, to int64) error {
	tuples, err := idx.Range(ctx, from, to)
	if err != nil {
		return err
	}
	for _, t := range tuples {
		fmt.Fprintf(w, "%d spread=%s members=", t.Reference, t.Spread)
		for i, m := range t.Members {
			if i > 0 {
				fmt.Fprint(w, ",")
			}
			fmt.Fprintf(w, "%s@%d", m.Stream, m.Timestamp)
		}
		fmt.Fprintln(w)
	}
	total, err := idx.Count(ctx)
	if err != nil {
		return err
	}
	fmt.Fprintf(w, "%d of %d tuples\n", len(tuples), total)
	return nil
}
