// Package indexer populates the metadata store from bulk scans: local
// filesystem trees, destination subtrees, and remote archives queried over
// C-FIND. At most one job runs at a time; cancellation is cooperative and
// checked between batches, files, chunks, and studies.
package indexer

import (
	"context"
	"errors"
	"log"
	"sync/atomic"

	"github.com/radgate/radgate/internal/cfind"
	"github.com/radgate/radgate/internal/storage"
	"github.com/radgate/radgate/internal/types"
)

const (
	numWorkers = 4
	batchSize  = 100
)

// ErrJobRunning is returned by the Start functions when another job holds
// the single-job slot. The returned job ID identifies the running job.
var ErrJobRunning = errors.New("an index job is already running")

const cancelledMessage = "Cancelled by user"

type runningJob struct {
	id        int64
	cancelled atomic.Bool
}

// Indexer coordinates index scans against one Store.
type Indexer struct {
	store  storage.Store
	finder cfind.Finder

	// current is the single job slot; compare-and-swap guards starts.
	current atomic.Pointer[runningJob]
}

// New creates an indexer. finder may be nil when remote scans are not used.
func New(store storage.Store, finder cfind.Finder) *Indexer {
	return &Indexer{store: store, finder: finder}
}

// Cancel requests cancellation of the running job. Returns false when no
// job is running. Cancellation takes effect at the next batch, file, chunk,
// or study boundary.
func (ix *Indexer) Cancel() bool {
	job := ix.current.Load()
	if job == nil {
		return false
	}
	job.cancelled.Store(true)
	log.Printf("indexer: cancellation requested for job %d", job.id)
	return true
}

// CurrentJobID returns the running job's ID, or 0 when idle.
func (ix *Indexer) CurrentJobID() int64 {
	if job := ix.current.Load(); job != nil {
		return job.id
	}
	return 0
}

// start acquires the single-job slot, creates the job row, and launches run
// on its own goroutine. When another job is running, its ID is returned
// along with ErrJobRunning.
func (ix *Indexer) start(run func(ctx context.Context, job *runningJob)) (int64, error) {
	if cur := ix.current.Load(); cur != nil {
		return cur.id, ErrJobRunning
	}

	// The scan outlives the caller's request; it carries its own context.
	ctx := context.Background()
	rec, err := ix.store.CreateReindexJob(ctx)
	if err != nil {
		return 0, err
	}
	job := &runningJob{id: rec.ID}
	if !ix.current.CompareAndSwap(nil, job) {
		if err := ix.store.UpdateReindexJob(ctx, rec.ID, types.JobFailed, 0, 0, 0,
			"superseded by a concurrently started job"); err != nil {
			log.Printf("indexer: mark superseded job %d: %v", rec.ID, err)
		}
		if cur := ix.current.Load(); cur != nil {
			return cur.id, ErrJobRunning
		}
		return 0, ErrJobRunning
	}

	go func() {
		defer ix.current.CompareAndSwap(job, nil)
		defer func() {
			if r := recover(); r != nil {
				log.Printf("indexer: job %d panicked: %v", job.id, r)
				ix.updateJob(ctx, job.id, types.JobFailed, 0, 0, 0, "internal error")
			}
		}()
		run(ctx, job)
	}()
	return job.id, nil
}

// updateJob writes job progress; failures are logged, never propagated out
// of the scan goroutine.
func (ix *Indexer) updateJob(ctx context.Context, id int64, status types.ReindexJobStatus, total, processed, errs int, message string) {
	err := storage.RetryTransient(ctx, func() error {
		return ix.store.UpdateReindexJob(ctx, id, status, total, processed, errs, message)
	})
	if err != nil {
		log.Printf("indexer: update job %d: %v", id, err)
	}
}

// GetJob returns one job's progress row.
func (ix *Indexer) GetJob(ctx context.Context, id int64) (*types.ReindexJob, error) {
	return ix.store.GetReindexJob(ctx, id)
}

// GetLatestJob returns the most recently started job.
func (ix *Indexer) GetLatestJob(ctx context.Context) (*types.ReindexJob, error) {
	return ix.store.GetLatestReindexJob(ctx)
}
