package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/openfluke/attrib/attribution"
	"github.com/openfluke/attrib/storage"
)

// compareCmd correlates two stored runs sequence by sequence.
var compareCmd = &cobra.Command{
	Use:   "compare [run-a] [run-b]",
	Short: "Correlate the attribution maps of two stored runs",
	Args:  cobra.ExactArgs(2),
	RunE:  runCompare,
}

func init() {
	compareCmd.Flags().String("db", "attrib.db", "sqlite database path")

	rootCmd.AddCommand(compareCmd)
}

func runCompare(cmd *cobra.Command, args []string) error {
	c, err := loadConfig(cmd)
	if err != nil {
		return err
	}
	ctx := context.Background()
	store := storage.NewSQLiteStore(c.Store.Path)
	if err := store.Init(ctx); err != nil {
		return err
	}
	defer store.Close()

	runs := make([]*attribution.ResultStore, 2)
	for i, id := range args {
		record, ok, err := store.GetRecord(ctx, id)
		if err != nil {
			return err
		}
		if !ok {
			return fmt.Errorf("no run %s in %s", id, c.Store.Path)
		}
		if runs[i], err = attribution.FromRecord(record); err != nil {
			return err
		}
	}

	agreements, err := attribution.Compare(runs[0], runs[1])
	if err != nil {
		return err
	}
	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer w.Flush()
	fmt.Fprintln(w, "SEQUENCE\tPEARSON\tSPEARMAN")
	for _, a := range agreements {
		fmt.Fprintf(w, "%s\t%.4f\t%.4f\n", a.ID, a.Pearson, a.Spearman)
	}
	p, s := attribution.MeanAgreement(agreements)
	fmt.Fprintf(w, "mean\t%.4f\t%.4f\n", p, s)
	return nil
}
