package main

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"

	"github.com/spf13/cobra"

	"github.com/salewatch/salewatch/internal/types"
)

var tasksCmd = &cobra.Command{
	Use:   "tasks [ID]",
	Short: "Show task queue counts by status",
	Args:  cobra.MaximumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 1 {
			counts, err := store.TaskCounts(rootCtx, args[0])
			if err != nil {
				return err
			}
			printCounts(args[0], counts)
			return nil
		}

		all, err := store.TaskCountsAll(rootCtx)
		if err != nil {
			return err
		}
		if jsonOutput {
			if all == nil {
				all = map[string]types.TaskCounts{}
			}
			return json.NewEncoder(os.Stdout).Encode(all)
		}
		if len(all) == 0 {
			fmt.Println("Task queue is empty.")
			return nil
		}
		ids := make([]string, 0, len(all))
		for id := range all {
			ids = append(ids, id)
		}
		sort.Strings(ids)
		for _, id := range ids {
			printCounts(id, all[id])
		}
		return nil
	},
}

func printCounts(id string, counts types.TaskCounts) {
	if jsonOutput {
		_ = json.NewEncoder(os.Stdout).Encode(map[string]any{"apiKeyId": id, "counts": counts})
		return
	}
	fmt.Printf("%s  %d pending, %d in progress, %d completed, %d failed\n",
		id, counts.Pending, counts.InProgress, counts.Completed, counts.Failed)
}

func init() {
	rootCmd.AddCommand(tasksCmd)
}
