package main

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/salewatch/salewatch/internal/engine"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Run and inspect sync pipelines",
}

var syncRunCmd = &cobra.Command{
	Use:   "run [ID...]",
	Short: "Sync one or more credentials (all when none given)",
	RunE: func(cmd *cobra.Command, args []string) error {
		if len(args) == 0 {
			results, err := eng.RunSyncAll(rootCtx)
			for _, prog := range results {
				printProgress(prog)
			}
			return err
		}

		var firstErr error
		for _, id := range args {
			prog, err := eng.RunSync(rootCtx, id)
			if err != nil {
				if rootCtx.Err() != nil {
					return err
				}
				if firstErr == nil {
					firstErr = err
				}
				fmt.Fprintf(os.Stderr, "sync %s failed: %v\n", id, err)
				continue
			}
			printProgress(prog)
		}
		return firstErr
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show per-credential sync state and queue counts",
	RunE: func(cmd *cobra.Command, args []string) error {
		creds, err := store.ListCredentials(rootCtx)
		if err != nil {
			return err
		}
		if jsonOutput {
			var out []any
			for _, c := range creds {
				stats, err := store.CredentialStats(rootCtx, c.ID)
				if err != nil {
					return err
				}
				out = append(out, stats)
			}
			return json.NewEncoder(os.Stdout).Encode(out)
		}
		if len(creds) == 0 {
			fmt.Println("No credentials.")
			return nil
		}
		for _, c := range creds {
			stats, err := store.CredentialStats(rootCtx, c.ID)
			if err != nil {
				return err
			}
			last := "never"
			if stats.LastSyncAt != nil {
				last = stats.LastSyncAt.Local().Format(time.RFC3339)
			}
			fmt.Printf("%s  %-24s hw=%d  records=%d", c.ID, c.DisplayName, stats.Highwatermark, stats.RecordCount)
			if stats.FirstDate != "" {
				fmt.Printf("  dates=%s..%s", stats.FirstDate, stats.LastDate)
			}
			fmt.Printf("  last_sync=%s\n", last)
			if stats.Tasks.Total() > 0 {
				fmt.Printf("    tasks: %d pending, %d in progress, %d completed, %d failed\n",
					stats.Tasks.Pending, stats.Tasks.InProgress, stats.Tasks.Completed, stats.Tasks.Failed)
			}
		}
		return nil
	},
}

var syncRetryCmd = &cobra.Command{
	Use:   "retry ID",
	Short: "Reset a credential's failed tasks back to pending",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := eng.RetryFailed(rootCtx, args[0])
		if err != nil {
			return err
		}
		fmt.Printf("Reset %d failed task(s); run 'sw sync run %s' to drain them\n", n, args[0])
		return nil
	},
}

var staleOlderThan time.Duration

var syncResetStaleCmd = &cobra.Command{
	Use:   "reset-stale ID",
	Short: "Reclaim tasks stuck in progress after a crash",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		n, err := store.ResetStaleTasks(rootCtx, args[0], staleOlderThan)
		if err != nil {
			return err
		}
		fmt.Printf("Reclaimed %d stale task(s)\n", n)
		return nil
	},
}

func printProgress(prog *engine.Progress) {
	if prog == nil {
		return
	}
	if jsonOutput {
		_ = json.NewEncoder(os.Stdout).Encode(prog)
		return
	}
	switch prog.Phase {
	case engine.PhaseError:
		fmt.Printf("%s  error: %s\n", prog.APIKeyID, prog.Error)
	default:
		fmt.Printf("%s  dates=%d tasks=%d/%d", prog.APIKeyID, prog.DatesFound, prog.TasksCompleted, prog.TasksTotal)
		if prog.TasksFailed > 0 {
			fmt.Printf(" failed=%d (highwatermark held)", prog.TasksFailed)
		}
		fmt.Printf(" records=%d hw=%d\n", prog.RecordsWritten, prog.Highwatermark)
	}
}

func init() {
	syncResetStaleCmd.Flags().DurationVar(&staleOlderThan, "older-than", 30*time.Minute, "Reclaim tasks in progress longer than this")

	syncCmd.AddCommand(syncRunCmd, syncStatusCmd, syncRetryCmd, syncResetStaleCmd)
	rootCmd.AddCommand(syncCmd)
}
