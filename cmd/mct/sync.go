package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/mcpterm/mcpterm/internal/syncengine"
)

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Control history replication",
}

var syncNowCmd = &cobra.Command{
	Use:   "now",
	Short: "Run one sync cycle and report",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()
		rem, err := a.requireRemote()
		if err != nil {
			return err
		}

		var uid *int64
		if a.user != nil {
			uid = &a.user.ID
		}
		engine, err := syncengine.New(a.local, rem, syncengine.Config{
			UserID:    uid,
			MachineID: a.machineID,
		})
		if err != nil {
			return err
		}

		stats, err := engine.ForceSync(cmd.Context())
		fmt.Printf("Uploaded:   %d (failed %d)\n", stats.Uploaded, stats.UploadFailed)
		fmt.Printf("Downloaded: %d\n", stats.Downloaded)
		fmt.Printf("Conflicts:  %d (skipped %d)\n", stats.Conflicts, stats.Skipped)
		fmt.Printf("Duration:   %s\n", stats.Duration.Round(time.Millisecond))
		return err
	},
}

var syncStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show the sync queue and last outcome",
	RunE: func(cmd *cobra.Command, _ []string) error {
		a, err := openApp(cmd.Context())
		if err != nil {
			return err
		}
		defer a.close()

		if a.remote == nil {
			if a.remoteErr != nil {
				fmt.Printf("Remote: unreachable (%v)\n", a.remoteErr)
			} else {
				fmt.Println("Remote: not configured")
			}
		} else {
			fmt.Println("Remote: connected")
		}

		pending, err := a.local.PendingSyncCount(cmd.Context(), syncengine.DefaultMaxRetries)
		if err != nil {
			return err
		}
		fmt.Printf("Pending uploads: %d\n", pending)

		conflicts, err := a.local.GetConflicts(cmd.Context(), 5)
		if err != nil {
			return err
		}
		if len(conflicts) > 0 {
			fmt.Printf("Recent conflicts:\n")
			for _, c := range conflicts {
				fmt.Printf("  %s  %s  %s\n",
					time.Unix(c.ResolvedAt, 0).Format("2006-01-02 15:04"),
					c.Resolution, c.CommandUUID)
			}
		}
		return nil
	},
}

func init() {
	syncCmd.AddCommand(syncNowCmd, syncStatusCmd)
	rootCmd.AddCommand(syncCmd)
}
