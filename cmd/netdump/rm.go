package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var rmAll bool

var rmCmd = &cobra.Command{
	Use:   "rm [KEY...]",
	Short: "Remove stored transcripts",
	Long: `Remove the named transcripts, or every transcript with --all.

Examples:
  netdump rm 5d41402abc4b2a76b9719d911017c592
  netdump rm --all`,
	RunE: runRm,
}

func init() {
	rootCmd.AddCommand(rmCmd)
	rmCmd.Flags().BoolVar(&rmAll, "all", false, "remove every transcript")
}

func runRm(cmd *cobra.Command, args []string) error {
	if !rmAll && len(args) == 0 {
		return fmt.Errorf("rm needs a key or --all")
	}
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	if rmAll {
		for _, e := range store.Entries() {
			args = append(args, e.Key)
		}
	}
	for _, key := range args {
		removed, err := store.Remove(key)
		if err != nil {
			return err
		}
		if !removed && !rmAll {
			return fmt.Errorf("no transcript %q", key)
		}
	}
	return store.Flush()
}
