package main

import (
	"fmt"
	"text/tabwriter"

	"github.com/spf13/cobra"
)

var lsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List stored transcripts",
	Long: `List stored transcripts from least to most recently used, with their
size in bytes, followed by the totals.`,
	Args: cobra.NoArgs,
	RunE: runLs,
}

func init() {
	rootCmd.AddCommand(lsCmd)
}

func runLs(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 0, 2, ' ', 0)
	for _, e := range store.Entries() {
		fmt.Fprintf(w, "%s\t%d\n", e.Key, e.Size)
	}
	if err := w.Flush(); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "%d entries, %d of %d bytes\n", store.Len(), store.Size(), store.MaxSize())
	return nil
}
