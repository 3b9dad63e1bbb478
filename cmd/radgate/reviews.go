package main

import (
	"fmt"
	"os"
	"os/user"
	"time"

	"github.com/spf13/cobra"

	"github.com/radgate/radgate/internal/archive"
	"github.com/radgate/radgate/internal/review"
	"github.com/radgate/radgate/internal/types"
)

var (
	reviewsRoute string
	reviewNotes  string
	reviewReason string
	reviewUser   string
)

var reviewsCmd = &cobra.Command{
	Use:   "reviews",
	Short: "Inspect and decide the pending review queue",
}

var reviewsListCmd = &cobra.Command{
	Use:   "list",
	Short: "List studies waiting for review",
	Run: func(cmd *cobra.Command, args []string) {
		c := newCoordinator()
		var (
			pending []*types.ReviewMetadata
			err     error
		)
		if reviewsRoute != "" {
			pending, err = c.GetPendingReviews(reviewsRoute)
		} else {
			pending, err = c.GetAllPendingReviews()
		}
		if err != nil {
			fatalf("%v", err)
		}
		if jsonOutput {
			outputJSON(pending)
			return
		}
		if len(pending) == 0 {
			fmt.Println("No studies pending review")
			return
		}
		for _, r := range pending {
			fmt.Printf("%s  %s  study %s  submitted %s", r.ReviewID, r.AETitle, r.StudyUID,
				r.SubmittedAt.Format(time.RFC3339))
			if r.PHIFieldsModified > 0 {
				fmt.Printf("  (%d PHI fields modified)", r.PHIFieldsModified)
			}
			fmt.Println()
			for _, w := range r.Warnings {
				fmt.Printf("    warning: %s\n", w)
			}
		}
	},
}

var reviewsApproveCmd = &cobra.Command{
	Use:   "approve <review-id>",
	Short: "Approve a pending study and release it for forwarding",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		c := newCoordinator()
		ok, err := c.ApproveReview(args[0], reviewActor(), reviewNotes)
		if err != nil {
			fatalf("%v", err)
		}
		if !ok {
			fatalf("no pending review with ID %s", args[0])
		}
		fmt.Printf("Review %s approved\n", args[0])
	},
}

var reviewsRejectCmd = &cobra.Command{
	Use:   "reject <review-id>",
	Short: "Reject a pending study, archiving it for audit",
	Args:  cobra.ExactArgs(1),
	Run: func(cmd *cobra.Command, args []string) {
		if reviewReason == "" {
			fatalf("--reason is required when rejecting")
		}
		c := newCoordinator()
		ok, err := c.RejectReview(args[0], reviewActor(), reviewReason)
		if err != nil {
			fatalf("%v", err)
		}
		if !ok {
			fatalf("no pending review with ID %s", args[0])
		}
		fmt.Printf("Review %s rejected\n", args[0])
	},
}

func newCoordinator() *review.Coordinator {
	dataRoot := cfg.DataRootPath(configDir)
	return review.NewCoordinator(dataRoot, archive.NewManager(dataRoot), &approvalForwarder{dataRoot: dataRoot})
}

// reviewActor resolves the identity recorded on review decisions.
// Priority: --user flag > RADGATE_REVIEWER env > OS user.
func reviewActor() string {
	if reviewUser != "" {
		return reviewUser
	}
	if env := os.Getenv("RADGATE_REVIEWER"); env != "" {
		return env
	}
	if u, err := user.Current(); err == nil && u.Username != "" {
		return u.Username
	}
	return "unknown"
}

func init() {
	reviewsListCmd.Flags().StringVar(&reviewsRoute, "route", "", "Limit to one route's queue")
	reviewsApproveCmd.Flags().StringVar(&reviewNotes, "notes", "", "Reviewer notes")
	reviewsRejectCmd.Flags().StringVar(&reviewReason, "reason", "", "Why the study is rejected")
	for _, c := range []*cobra.Command{reviewsApproveCmd, reviewsRejectCmd} {
		c.Flags().StringVar(&reviewUser, "user", "", "Reviewer identity (default: OS user)")
	}

	reviewsCmd.AddCommand(reviewsListCmd, reviewsApproveCmd, reviewsRejectCmd)
	rootCmd.AddCommand(reviewsCmd)
}
