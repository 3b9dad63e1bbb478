package main

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/radgate/radgate/internal/cfind"
	"github.com/radgate/radgate/internal/indexer"
	"github.com/radgate/radgate/internal/storage"
	"github.com/radgate/radgate/internal/timeparsing"
	"github.com/radgate/radgate/internal/types"
)

var (
	reindexClearFirst bool
	reindexFrom       string
	reindexTo         string
	reindexChunk      string
	reindexCallingAE  string
)

var reindexCmd = &cobra.Command{
	Use:   "reindex",
	Short: "Rebuild the study index from disk or a remote archive",
}

var reindexFsCmd = &cobra.Command{
	Use:   "fs <root> <route>",
	Short: "Index DICOM files under a directory, attributing them to a route",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ix := newIndexer(nil)
		jobID, err := ix.StartFilesystemScan(args[0], args[1])
		reportJobStart(ix, jobID, err)
	},
}

var reindexDestCmd = &cobra.Command{
	Use:   "destination <root> <name>",
	Short: "Index a destination's storage subtree",
	Args:  cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		ix := newIndexer(nil)
		jobID, err := ix.StartDestinationScan(args[0], args[1], reindexClearFirst)
		reportJobStart(ix, jobID, err)
	},
}

var reindexRemoteCmd = &cobra.Command{
	Use:   "remote <host:port> <called-ae>",
	Short: "Query a remote archive via C-FIND and index the results",
	Long: `Queries a remote DICOM archive at study and series level. Large date
ranges can be split into chunks (--chunk daily|weekly|monthly|yearly) so each
query stays small. --from/--to accept absolute dates, compact offsets like
-2w, or natural language ("last monday").`,
	Args: cobra.ExactArgs(2),
	Run: func(cmd *cobra.Command, args []string) {
		host, port, err := splitHostPort(args[0])
		if err != nil {
			fatalf("%v", err)
		}

		now := time.Now()
		from, err := timeparsing.ParseDicomDate(reindexFrom, now)
		if err != nil {
			fatalf("--from: %v", err)
		}
		to, err := timeparsing.ParseDicomDate(reindexTo, now)
		if err != nil {
			fatalf("--to: %v", err)
		}

		ix := newIndexer(cfind.NewClient())
		jobID, err := ix.StartRemoteScan(indexer.RemoteScanSpec{
			Params: cfind.Params{
				Host:           host,
				Port:           port,
				CalledAETitle:  args[1],
				CallingAETitle: reindexCallingAE,
			},
			StudyDateFrom: from,
			StudyDateTo:   to,
			ChunkSize:     indexer.ChunkSize(strings.ToUpper(reindexChunk)),
		})
		reportJobStart(ix, jobID, err)
	},
}

var reindexStatusCmd = &cobra.Command{
	Use:   "reindex-status [job-id]",
	Short: "Show the latest (or a specific) reindex job",
	Args:  cobra.MaximumNArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		ix := newIndexer(nil)
		job, err := latestOrNamedJob(ix, args)
		if errors.Is(err, storage.ErrNotFound) {
			fmt.Println("No reindex jobs recorded")
			return
		}
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOutput {
			outputJSON(job)
			return
		}
		fmt.Printf("Job %d: %s\n", job.ID, job.Status)
		if job.TotalFiles > 0 {
			fmt.Printf("  Progress: %d/%d (%d errors)\n", job.Processed, job.TotalFiles, job.Errors)
		} else if job.Processed > 0 {
			fmt.Printf("  Processed: %d (%d errors)\n", job.Processed, job.Errors)
		}
		if job.Message != "" {
			fmt.Printf("  %s\n", job.Message)
		}
		fmt.Printf("  Started: %s\n", job.StartedAt.Format(time.RFC3339))
		if job.CompletedAt != nil {
			fmt.Printf("  Completed: %s\n", job.CompletedAt.Format(time.RFC3339))
		}
	},
}

var reindexCancelCmd = &cobra.Command{
	Use:   "reindex-cancel",
	Short: "Mark an orphaned running reindex job as cancelled",
	Long: `Scans run inside the process that started them and stop on Ctrl-C.
This command cleans up after a crashed scan by marking the latest job row
cancelled so reindex-status stops reporting it as running.`,
	Run: func(cmd *cobra.Command, args []string) {
		s := openStore()
		job, err := s.GetLatestReindexJob(rootCtx)
		if errors.Is(err, storage.ErrNotFound) {
			fmt.Println("No reindex jobs recorded")
			return
		}
		if err != nil {
			fatalf("%v", err)
		}
		if job.CompletedAt != nil {
			fmt.Printf("Job %d already finished (%s)\n", job.ID, job.Status)
			return
		}
		if err := s.UpdateReindexJob(rootCtx, job.ID, types.JobCancelled,
			job.TotalFiles, job.Processed, job.Errors, "Cancelled by user"); err != nil {
			fatalf("cancelling job %d: %v", job.ID, err)
		}
		fmt.Printf("Job %d marked cancelled\n", job.ID)
	},
}

func newIndexer(finder cfind.Finder) *indexer.Indexer {
	return indexer.New(openStore(), finder)
}

func reportJobStart(ix *indexer.Indexer, jobID int64, err error) {
	if errors.Is(err, indexer.ErrJobRunning) {
		fatalf("%v", err)
	}
	if err != nil {
		fatalf("starting scan: %v", err)
	}
	if jsonOutput {
		outputJSON(map[string]int64{"job_id": jobID})
	} else {
		fmt.Printf("Started reindex job %d\n", jobID)
	}
	waitForJob(ix, jobID)
}

// waitForJob blocks until the in-process scan finishes, printing progress.
// Ctrl-C requests a cooperative cancel and keeps waiting for the terminal
// state so the job row is never left dangling.
func waitForJob(ix *indexer.Indexer, jobID int64) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	interrupted := false
	var lastMessage string
	for {
		select {
		case <-rootCtx.Done():
			if !interrupted {
				interrupted = true
				ix.Cancel()
				fmt.Println("Interrupted; cancelling scan")
			}
			time.Sleep(200 * time.Millisecond)
		case <-ticker.C:
		}
		if ix.CurrentJobID() != 0 {
			if job, err := ix.GetJob(rootCtx, jobID); err == nil && job.Message != lastMessage {
				lastMessage = job.Message
				if lastMessage != "" {
					fmt.Printf("  %s\n", lastMessage)
				}
			}
			continue
		}
		job, err := ix.GetJob(rootCtx, jobID)
		if err != nil {
			return
		}
		fmt.Printf("Job %d %s: %s\n", job.ID, job.Status, job.Message)
		return
	}
}

func latestOrNamedJob(ix *indexer.Indexer, args []string) (*types.ReindexJob, error) {
	if len(args) == 1 {
		id, err := strconv.ParseInt(args[0], 10, 64)
		if err != nil {
			return nil, fmt.Errorf("invalid job id %q", args[0])
		}
		return ix.GetJob(rootCtx, id)
	}
	return ix.GetLatestJob(rootCtx)
}

func splitHostPort(s string) (string, int, error) {
	i := strings.LastIndex(s, ":")
	if i <= 0 || i == len(s)-1 {
		return "", 0, fmt.Errorf("expected host:port, got %q", s)
	}
	var port int
	if _, err := fmt.Sscanf(s[i+1:], "%d", &port); err != nil || port <= 0 || port > 65535 {
		return "", 0, fmt.Errorf("invalid port in %q", s)
	}
	return s[:i], port, nil
}

func init() {
	reindexDestCmd.Flags().BoolVar(&reindexClearFirst, "clear", false, "Clear the index before scanning")

	reindexRemoteCmd.Flags().StringVar(&reindexFrom, "from", "", "Earliest study date (inclusive)")
	reindexRemoteCmd.Flags().StringVar(&reindexTo, "to", "", "Latest study date (inclusive)")
	reindexRemoteCmd.Flags().StringVar(&reindexChunk, "chunk", "none", "Date chunking: daily, weekly, monthly, yearly, none")
	reindexRemoteCmd.Flags().StringVar(&reindexCallingAE, "calling-ae", "RADGATE", "Calling AE title for the association")

	reindexCmd.AddCommand(reindexFsCmd, reindexDestCmd, reindexRemoteCmd)
	rootCmd.AddCommand(reindexCmd, reindexStatusCmd, reindexCancelCmd)
}
