package main

import (
	"fmt"

	"github.com/dustin/go-humanize"
	"github.com/spf13/cobra"

	"github.com/radgate/radgate/internal/tracker"
	"github.com/radgate/radgate/internal/types"
)

var statsCmd = &cobra.Command{
	Use:   "stats",
	Short: "Show transfer totals per route",
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		trk := tracker.New(cfg.DataRootPath(configDir), nil)

		global := trk.GetGlobalStatistics()
		routeStats, err := s.GetAllRouteStats(rootCtx)
		if err != nil {
			fatalf("reading route stats: %v", err)
		}

		if jsonOutput {
			outputJSON(struct {
				Global tracker.GlobalStatistics `json:"global"`
				Routes []*types.RouteStats      `json:"routes"`
			}{global, routeStats})
			return
		}

		fmt.Printf("Studies on disk: %d incoming, %d processing, %d completed, %d failed\n",
			global.Incoming, global.Processing, global.Completed, global.Failed)
		fmt.Printf("Active transfers: %d\n", global.ActiveTransfers)

		if len(routeStats) == 0 {
			fmt.Println("No route activity recorded")
			return
		}
		fmt.Println()
		fmt.Printf("%-16s %10s %10s %8s %12s %8s\n", "ROUTE", "TRANSFERS", "SUCCESS", "FAILED", "BYTES", "FILES")
		for _, r := range routeStats {
			fmt.Printf("%-16s %10d %10d %8d %12s %8d\n",
				r.AETitle, r.TotalTransfers, r.SuccessfulTransfers, r.FailedTransfers,
				humanize.Bytes(uint64(r.TotalBytes)), r.TotalFiles)
		}
	},
}

func init() {
	rootCmd.AddCommand(statsCmd)
}
