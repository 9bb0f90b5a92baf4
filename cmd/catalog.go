package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/okian/attune/internal/adapters/catalog"
	"github.com/okian/attune/internal/adapters/repository"
)

const defaultSeedSize = 500

func newCatalogCmd() *cobra.Command {
	var dbPath string
	cmd := &cobra.Command{
		Use:   "catalog",
		Short: "Manage the SQLite track catalog",
	}
	cmd.PersistentFlags().StringVar(&dbPath, "db", "attune.db", "SQLite catalog file")

	var size int
	seed := &cobra.Command{
		Use:   "seed",
		Short: "Write reproducible synthetic tracks into the catalog",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if size <= 0 {
				return fmt.Errorf("size must be positive, got %d", size)
			}
			store, err := catalog.Open(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			if err := store.Upsert(cmd.Context(), repository.SyntheticCatalog(size)); err != nil {
				return err
			}
			n, err := store.Count(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "catalog %s holds %d tracks\n", dbPath, n)
			return nil
		},
	}
	seed.Flags().IntVar(&size, "size", defaultSeedSize, "Number of synthetic tracks")

	var limit int
	list := &cobra.Command{
		Use:   "list",
		Short: "Print catalog tracks",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			store, err := catalog.Open(cmd.Context(), dbPath)
			if err != nil {
				return err
			}
			defer func() { _ = store.Close() }()
			tracks, err := store.LoadTracks(cmd.Context())
			if err != nil {
				return err
			}
			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tTITLE\tARTIST\tGENRE\tERA\tENERGY\tVALENCE")
			for i, t := range tracks {
				if limit > 0 && i >= limit {
					break
				}
				f := t.Features
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%d\t%.2f\t%.2f\n", t.ID, t.Title, t.Artist, f.Genre, f.Era, f.Energy, f.Valence)
			}
			return w.Flush()
		},
	}
	list.Flags().IntVar(&limit, "limit", 20, "Maximum tracks to print, 0 for all")

	cmd.AddCommand(seed, list)
	return cmd
}
