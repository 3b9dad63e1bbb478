package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"path/filepath"

	"github.com/spf13/cobra"

	"github.com/radgate/radgate/internal/archive"
	"github.com/radgate/radgate/internal/config"
	"github.com/radgate/radgate/internal/metrics"
	"github.com/radgate/radgate/internal/reaper"
	"github.com/radgate/radgate/internal/review"
	"github.com/radgate/radgate/internal/telemetry"
	"github.com/radgate/radgate/internal/tracker"
	"github.com/radgate/radgate/internal/types"
)

var routeSubdirs = []string{
	"incoming", "processing", "completed", "failed",
	"pending_review", "rejected", "history", "logs",
}

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the gateway: transfer tracking, metrics, review queue, retention",
	Run: func(cmd *cobra.Command, args []string) {
		routes := loadRoutes()
		s := openStore()
		dataRoot := cfg.DataRootPath(configDir)

		if err := ensureLayout(dataRoot, routes); err != nil {
			fatalf("preparing data root: %v", err)
		}

		agg, err := metrics.NewAggregator(rootCtx, s)
		if err != nil {
			fatalf("starting metrics aggregator: %v", err)
		}
		agg.Start(rootCtx)

		trk := tracker.New(dataRoot, telemetry.WrapObserver(agg))

		archiveMgr := archive.NewManager(dataRoot)
		coordinator := review.NewCoordinator(dataRoot, archiveMgr, &approvalForwarder{dataRoot: dataRoot})
		go func() {
			err := coordinator.Watch(rootCtx, func() {
				log.Printf("serve: pending review queue changed")
			})
			if err != nil && !errors.Is(err, context.Canceled) {
				log.Printf("serve: review watcher stopped: %v", err)
			}
		}()
		telemetry.RegisterPendingReviewsGauge(func() int64 {
			pending, err := coordinator.GetAllPendingReviews()
			if err != nil {
				return 0
			}
			return int64(len(pending))
		})

		reaper.New(dataRoot, cfg.GetRetentionDays(), trk).Start(rootCtx)

		log.Printf("serve: gateway %s up, %d routes, data root %s, retention %d days",
			cfg.GetAETitle(), len(routes), dataRoot, cfg.GetRetentionDays())
		for _, r := range routes {
			log.Printf("serve: route %s -> %d destination(s), review=%v", r.AETitle, len(r.Destinations), r.RequireReview)
		}

		<-rootCtx.Done()
		log.Printf("serve: shutting down")
	},
}

// ensureLayout creates each route's working directories plus the shared
// scripts directory.
func ensureLayout(dataRoot string, routes []config.Route) error {
	if err := os.MkdirAll(filepath.Join(dataRoot, "scripts"), 0o750); err != nil {
		return err
	}
	for _, r := range routes {
		for _, sub := range routeSubdirs {
			if err := os.MkdirAll(filepath.Join(dataRoot, r.AETitle, sub), 0o750); err != nil {
				return err
			}
		}
	}
	return nil
}

// approvalForwarder hands approved studies back to the forwarding pipeline
// by copying their anonymized files into the route's processing directory.
type approvalForwarder struct {
	dataRoot string
}

func (f *approvalForwarder) StudyApproved(rev *types.ReviewMetadata, study *archive.Study) error {
	dest := filepath.Join(f.dataRoot, rev.AETitle, "processing", "study_"+types.SanitizeUID(rev.StudyUID))
	if err := os.MkdirAll(dest, 0o750); err != nil {
		return fmt.Errorf("creating processing dir: %w", err)
	}
	files := study.AnonymizedFiles
	if len(files) == 0 {
		files = study.OriginalFiles
	}
	for _, src := range files {
		if err := copyFile(src, filepath.Join(dest, filepath.Base(src))); err != nil {
			return fmt.Errorf("staging %s: %w", filepath.Base(src), err)
		}
	}
	log.Printf("serve: approved study %s released to %s (%d files)", rev.StudyUID, rev.AETitle, len(files))
	return nil
}

func copyFile(src, dst string) error {
	in, err := os.Open(src) // #nosec G304 - paths come from the archive layout
	if err != nil {
		return err
	}
	defer func() { _ = in.Close() }()

	out, err := os.OpenFile(dst, os.O_WRONLY|os.O_CREATE|os.O_TRUNC, 0o640) // #nosec G304
	if err != nil {
		return err
	}
	if _, err := io.Copy(out, in); err != nil {
		_ = out.Close()
		return err
	}
	return out.Close()
}

func init() {
	rootCmd.AddCommand(serveCmd)
}
