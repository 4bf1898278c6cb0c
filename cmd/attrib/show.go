package main

import (
	"context"
	"fmt"
	"text/tabwriter"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/openfluke/attrib/attribution"
	"github.com/openfluke/attrib/seq"
	"github.com/openfluke/attrib/storage"
)

// showCmd lists stored runs or summarises one of them.
var showCmd = &cobra.Command{
	Use:   "show",
	Short: "List stored attribution runs, summarise one with --run, or print one map with --run and --seq",
	RunE:  runShow,
}

func init() {
	showCmd.Flags().String("db", "attrib.db", "sqlite database path")
	showCmd.Flags().String("run", "", "run id to summarise")
	showCmd.Flags().String("seq", "", "sequence id whose full map to print")
	showCmd.Flags().String("alphabet", "DNA", "DNA or RNA")

	rootCmd.AddCommand(showCmd)
}

func runShow(cmd *cobra.Command, _ []string) error {
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

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
	defer w.Flush()

	runID, _ := cmd.Flags().GetString("run")
	if runID == "" {
		runs, err := store.ListRuns(ctx)
		if err != nil {
			return err
		}
		fmt.Fprintln(w, "RUN\tKEY\tSEQUENCES\tCREATED")
		for _, r := range runs {
			fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.RunID, r.Key, humanize.Comma(int64(r.Sequences)), humanize.Time(r.CreatedAt))
		}
		return nil
	}

	record, ok, err := store.GetRecord(ctx, runID)
	if err != nil {
		return err
	}
	if !ok {
		return fmt.Errorf("no run %s in %s", runID, c.Store.Path)
	}
	res, err := attribution.FromRecord(record)
	if err != nil {
		return err
	}
	alphabet, err := seq.AlphabetByName(c.Alphabet)
	if err != nil {
		return err
	}
	symbol := func(ch int) string {
		if ch < alphabet.Size() {
			return string(alphabet.Symbols[ch])
		}
		return "?"
	}

	if id, _ := cmd.Flags().GetString("seq"); id != "" {
		m, ok := res.Lookup(id)
		if !ok {
			return fmt.Errorf("run %s has no sequence %s", runID, id)
		}
		rows, cols := m.Dims()
		fmt.Fprint(w, "BASE")
		for p := 0; p < cols; p++ {
			fmt.Fprintf(w, "\t%d", p)
		}
		fmt.Fprintln(w)
		for ch := 0; ch < rows; ch++ {
			fmt.Fprint(w, symbol(ch))
			for p := 0; p < cols; p++ {
				fmt.Fprintf(w, "\t%.4f", m.At(ch, p))
			}
			fmt.Fprintln(w)
		}
		return nil
	}

	fmt.Fprintln(w, "SEQUENCE\tMAX\tPOSITION\tBASE")
	for i, id := range res.IDs() {
		m := res.Map(i)
		rows, cols := m.Dims()
		best, bc, bp := m.At(0, 0), 0, 0
		for ch := 0; ch < rows; ch++ {
			for p := 0; p < cols; p++ {
				if v := m.At(ch, p); v > best {
					best, bc, bp = v, ch, p
				}
			}
		}
		fmt.Fprintf(w, "%s\t%.4f\t%d\t%s\n", id, best, bp, symbol(bc))
	}
	return nil
}
