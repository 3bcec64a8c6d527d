package main

import (
	"errors"
	"fmt"
	"io"

	"github.com/spf13/cobra"

	"github.com/netdumpsystems/netdump-go/pkg/disklru"
)

var catCmd = &cobra.Command{
	Use:   "cat KEY...",
	Short: "Print stored transcripts",
	Args:  cobra.MinimumNArgs(1),
	RunE:  runCat,
}

func init() {
	rootCmd.AddCommand(catCmd)
}

func runCat(cmd *cobra.Command, args []string) error {
	store, err := openStore()
	if err != nil {
		return err
	}
	defer store.Close()

	for _, key := range args {
		snap, err := store.Get(key)
		if errors.Is(err, disklru.ErrNotFound) {
			return fmt.Errorf("no transcript %q", key)
		}
		if err != nil {
			return err
		}
		_, err = io.Copy(cmd.OutOrStdout(), snap)
		snap.Close()
		if err != nil {
			return err
		}
	}
	return nil
}
