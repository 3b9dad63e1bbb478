package indexer

import (
	"context"
	"fmt"
	"io/fs"
	"log"
	"path/filepath"
	"sync/atomic"

	"github.com/suyashkumar/dicom"
	"golang.org/x/sync/errgroup"

	"github.com/radgate/radgate/internal/dicomutil"
	"github.com/radgate/radgate/internal/storage"
	"github.com/radgate/radgate/internal/types"
)

// StartFilesystemScan walks root and indexes every DICOM candidate found.
// sourceRoute labels the indexed studies. Returns the job ID.
func (ix *Indexer) StartFilesystemScan(root, sourceRoute string) (int64, error) {
	return ix.start(func(ctx context.Context, job *runningJob) {
		ix.runFilesystemScan(ctx, job, root, sourceRoute, false)
	})
}

// StartDestinationScan indexes a destination's subtree. The source route is
// the destination name rather than anything derived from the path. When
// clearFirst is set the whole index is dropped before scanning.
func (ix *Indexer) StartDestinationScan(root, destinationName string, clearFirst bool) (int64, error) {
	return ix.start(func(ctx context.Context, job *runningJob) {
		ix.runFilesystemScan(ctx, job, root, destinationName, clearFirst)
	})
}

func (ix *Indexer) runFilesystemScan(ctx context.Context, job *runningJob, root, sourceRoute string, clearFirst bool) {
	if clearFirst {
		if err := ix.store.ClearIndex(ctx); err != nil {
			ix.updateJob(ctx, job.id, types.JobFailed, 0, 0, 0, fmt.Sprintf("Scan failed: %v", err))
			return
		}
	}

	files, err := collectCandidates(root)
	if err != nil {
		ix.updateJob(ctx, job.id, types.JobFailed, 0, 0, 0, fmt.Sprintf("Scan failed: %v", err))
		return
	}
	if len(files) == 0 {
		ix.updateJob(ctx, job.id, types.JobCompleted, 0, 0, 0, "No DICOM files found")
		return
	}

	fields, err := ix.store.GetEnabledCustomFields(ctx)
	if err != nil {
		log.Printf("indexer: load custom fields: %v", err)
	}

	total := len(files)
	ix.updateJob(ctx, job.id, types.JobRunning, total, 0, 0, fmt.Sprintf("Indexing %d files", total))

	var processed, errCount atomic.Int64
	for batchStart := 0; batchStart < total; batchStart += batchSize {
		if job.cancelled.Load() {
			ix.updateJob(ctx, job.id, types.JobCancelled, total,
				int(processed.Load()), int(errCount.Load()), cancelledMessage)
			return
		}

		batchEnd := batchStart + batchSize
		if batchEnd > total {
			batchEnd = total
		}

		// Each batch drains fully before the next begins so cancellation
		// and progress have bounded latency.
		g, gctx := errgroup.WithContext(ctx)
		g.SetLimit(numWorkers)
		for _, path := range files[batchStart:batchEnd] {
			g.Go(func() error {
				if job.cancelled.Load() {
					return nil
				}
				if err := ix.indexFile(gctx, path, sourceRoute, fields); err != nil {
					log.Printf("indexer: %s: %v", path, err)
					errCount.Add(1)
				}
				processed.Add(1)
				return nil
			})
		}
		_ = g.Wait()

		ix.updateJob(ctx, job.id, types.JobRunning, total,
			int(processed.Load()), int(errCount.Load()),
			fmt.Sprintf("Indexed %d/%d files", processed.Load(), total))
	}

	if job.cancelled.Load() {
		ix.updateJob(ctx, job.id, types.JobCancelled, total,
			int(processed.Load()), int(errCount.Load()), cancelledMessage)
		return
	}

	if err := ix.store.AggregateStudyCounts(ctx); err != nil {
		log.Printf("indexer: aggregate study counts: %v", err)
	}
	ix.updateJob(ctx, job.id, types.JobCompleted, total,
		int(processed.Load()), int(errCount.Load()),
		fmt.Sprintf("Indexed %d files (%d errors)", processed.Load(), errCount.Load()))
}

// indexFile parses one candidate and upserts its instance, series, and
// study rows. A file missing any of its three UIDs is silently skipped.
func (ix *Indexer) indexFile(ctx context.Context, path, sourceRoute string, fields []*types.CustomField) error {
	meta, ds, err := dicomutil.ExtractFileMeta(path)
	if err != nil {
		return err
	}
	if meta.StudyUID == "" || meta.SeriesUID == "" || meta.SOPInstanceUID == "" {
		return nil
	}

	instance := &types.IndexedInstance{
		SOPInstanceUID: meta.SOPInstanceUID,
		SeriesUID:      meta.SeriesUID,
		SOPClassUID:    meta.SOPClassUID,
		InstanceNumber: meta.InstanceNumber,
		FilePath:       path,
		FileSize:       meta.FileSize,
		FileHash:       meta.FileHash,
	}
	series := &types.IndexedSeries{
		SeriesUID:         meta.SeriesUID,
		StudyUID:          meta.StudyUID,
		Modality:          meta.Modality,
		SeriesNumber:      meta.SeriesNumber,
		SeriesDescription: meta.SeriesDescription,
		BodyPart:          meta.BodyPart,
	}
	study := &types.IndexedStudy{
		StudyUID:           meta.StudyUID,
		PatientID:          meta.PatientID,
		PatientName:        meta.PatientName,
		PatientSex:         meta.PatientSex,
		StudyDate:          meta.StudyDate,
		StudyTime:          meta.StudyTime,
		AccessionNumber:    meta.AccessionNumber,
		StudyDescription:   meta.StudyDescription,
		InstitutionName:    meta.InstitutionName,
		ReferringPhysician: meta.ReferringPhysician,
		SourceRoute:        sourceRoute,
	}

	if err := storage.RetryTransient(ctx, func() error { return ix.store.UpsertInstance(ctx, instance) }); err != nil {
		return err
	}
	if err := storage.RetryTransient(ctx, func() error { return ix.store.UpsertSeries(ctx, series) }); err != nil {
		return err
	}
	if err := storage.RetryTransient(ctx, func() error { return ix.store.UpsertStudy(ctx, study) }); err != nil {
		return err
	}

	ix.applyCustomFields(ctx, meta, ds, fields)
	return nil
}

func (ix *Indexer) applyCustomFields(ctx context.Context, meta *dicomutil.FileMeta, ds *dicom.Dataset, fields []*types.CustomField) {
	for _, f := range fields {
		packed := dicomutil.ParseTag(f.DicomTag)
		if packed == dicomutil.TagNone {
			continue
		}
		el, err := ds.FindElementByTag(dicomutil.ToTag(packed))
		if err != nil || el == nil {
			continue
		}
		value := dicomutil.RenderValue(el.Value)
		if value == "" {
			continue
		}

		var entityUID string
		switch f.Level {
		case types.LevelStudy:
			entityUID = meta.StudyUID
		case types.LevelSeries:
			entityUID = meta.SeriesUID
		case types.LevelInstance:
			entityUID = meta.SOPInstanceUID
		default:
			continue
		}
		if err := ix.store.SetCustomFieldValue(ctx, f.ID, entityUID, value); err != nil {
			log.Printf("indexer: set custom field %d on %s: %v", f.ID, entityUID, err)
		}
	}
}

// collectCandidates walks root and returns every DICOM candidate path. An
// unreadable root fails the whole scan; unreadable subpaths are skipped.
func collectCandidates(root string) ([]string, error) {
	var files []string
	walkErr := filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			if path == root {
				return err
			}
			log.Printf("indexer: skipping %s: %v", path, err)
			return nil
		}
		if d.IsDir() {
			return nil
		}
		if dicomutil.IsCandidate(path) {
			files = append(files, path)
		}
		return nil
	})
	if walkErr != nil {
		return nil, walkErr
	}
	return files, nil
}
