package main

import (
	"fmt"

	"github.com/spf13/cobra"
)

var purgeCmd = &cobra.Command{
	Use:   "purge ID FROM TO",
	Short: "Delete a credential's sales records in a date range",
	Long: `Delete a credential's sales records with FROM <= date <= TO (YYYY-MM-DD,
inclusive). Pass "" for an open bound. Tasks and sync state are untouched; a
later re-discovery of those dates re-ingests them.`,
	Args: cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := store.PurgeRecords(rootCtx, args[0], args[1], args[2])
		if err != nil {
			return err
		}
		fmt.Printf("Purged %d record(s)\n", n)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(purgeCmd)
}
