package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/radgate/radgate/internal/reaper"
	"github.com/radgate/radgate/internal/tracker"
)

var cleanupCmd = &cobra.Command{
	Use:   "cleanup",
	Short: "Run one retention pass now",
	Run: func(cmd *cobra.Command, args []string) {
		dataRoot := cfg.DataRootPath(configDir)
		trk := tracker.New(dataRoot, nil)
		counts := reaper.New(dataRoot, cfg.GetRetentionDays(), trk).Cleanup()
		if jsonOutput {
			outputJSON(counts)
			return
		}
		fmt.Printf("Removed %d study dirs, %d history files, %d log files; failed %d stale transfers\n",
			counts.StudyDirs, counts.HistoryFiles, counts.LogFiles, counts.StaleFailed)
	},
}

func init() {
	rootCmd.AddCommand(cleanupCmd)
}
