package indexer

import (
	"context"
	"errors"
	"fmt"
	"log"

	"github.com/radgate/radgate/internal/cfind"
	"github.com/radgate/radgate/internal/dicomutil"
	"github.com/radgate/radgate/internal/storage"
	"github.com/radgate/radgate/internal/types"
)

// RemoteScanSpec drives a C-FIND scan against a remote archive.
type RemoteScanSpec struct {
	Params        cfind.Params
	StudyDateFrom string // YYYYMMDD, "" for open
	StudyDateTo   string // YYYYMMDD, "" for open
	ChunkSize     ChunkSize
}

// StartRemoteScan queries a remote archive chunk by chunk, upserting
// study-level matches and their series. Returns the job ID.
func (ix *Indexer) StartRemoteScan(spec RemoteScanSpec) (int64, error) {
	if ix.finder == nil {
		return 0, errors.New("no C-FIND client configured")
	}
	chunks, err := GenerateDateChunks(spec.StudyDateFrom, spec.StudyDateTo, spec.ChunkSize)
	if err != nil {
		return 0, err
	}
	return ix.start(func(ctx context.Context, job *runningJob) {
		ix.runRemoteScan(ctx, job, spec, chunks)
	})
}

func (ix *Indexer) runRemoteScan(ctx context.Context, job *runningJob, spec RemoteScanSpec, chunks []DateChunk) {
	var processed, errCount int

	for i, chunk := range chunks {
		if job.cancelled.Load() {
			ix.updateJob(ctx, job.id, types.JobCancelled, 0, processed, errCount, cancelledMessage)
			return
		}

		ix.updateJob(ctx, job.id, types.JobRunning, 0, processed, errCount,
			fmt.Sprintf("Querying chunk %d/%d: %s", i+1, len(chunks), chunk.label()))

		studies, err := ix.finder.FindStudies(spec.Params, dateRangeFor(chunk))
		if err != nil {
			ix.updateJob(ctx, job.id, types.JobFailed, 0, processed, errCount,
				fmt.Sprintf("Query failed: %v", err))
			return
		}
		if job.cancelled.Load() {
			ix.updateJob(ctx, job.id, types.JobCancelled, 0, processed, errCount, cancelledMessage)
			return
		}

		for _, study := range studies {
			if job.cancelled.Load() {
				ix.updateJob(ctx, job.id, types.JobCancelled, 0, processed, errCount, cancelledMessage)
				return
			}
			if err := ix.indexRemoteStudy(ctx, spec, study); err != nil {
				log.Printf("indexer: remote study %s: %v", study.StudyUID, err)
				errCount++
				continue
			}
			processed++

			if cancelled := ix.indexRemoteSeries(ctx, job, spec, study.StudyUID, &errCount); cancelled {
				ix.updateJob(ctx, job.id, types.JobCancelled, 0, processed, errCount, cancelledMessage)
				return
			}
		}

		ix.updateJob(ctx, job.id, types.JobRunning, 0, processed, errCount,
			fmt.Sprintf("Queried chunk %d/%d: %d studies so far", i+1, len(chunks), processed))
	}

	ix.updateJob(ctx, job.id, types.JobCompleted, 0, processed, errCount,
		fmt.Sprintf("Indexed %d studies (%d errors)", processed, errCount))
}

func (ix *Indexer) indexRemoteStudy(ctx context.Context, spec RemoteScanSpec, r cfind.StudyResult) error {
	study := &types.IndexedStudy{
		StudyUID:           r.StudyUID,
		PatientID:          r.PatientID,
		PatientName:        r.PatientName,
		PatientSex:         r.PatientSex,
		StudyDate:          r.StudyDate,
		StudyTime:          r.StudyTime,
		AccessionNumber:    r.AccessionNumber,
		StudyDescription:   r.StudyDescription,
		Modalities:         r.ModalitiesInStudy,
		InstitutionName:    r.InstitutionName,
		ReferringPhysician: r.ReferringPhysician,
		SourceRoute:        spec.Params.CalledAETitle,
		SeriesCount:        r.NumberOfSeries,
		InstanceCount:      r.NumberOfInstances,
	}
	return storage.RetryTransient(ctx, func() error { return ix.store.UpsertStudy(ctx, study) })
}

// indexRemoteSeries runs the series-level query for one study. Series query
// failures count as errors but do not fail the job; the study row stands.
func (ix *Indexer) indexRemoteSeries(ctx context.Context, job *runningJob, spec RemoteScanSpec, studyUID string, errCount *int) (cancelled bool) {
	series, err := ix.finder.FindSeries(spec.Params, studyUID)
	if err != nil {
		log.Printf("indexer: series query for %s: %v", studyUID, err)
		*errCount++
		return false
	}
	for _, s := range series {
		if job.cancelled.Load() {
			return true
		}
		row := &types.IndexedSeries{
			SeriesUID:         s.SeriesUID,
			StudyUID:          s.StudyUID,
			Modality:          s.Modality,
			SeriesNumber:      s.SeriesNumber,
			SeriesDescription: s.SeriesDescription,
			BodyPart:          s.BodyPart,
			InstanceCount:     s.NumberOfInstances,
		}
		if err := storage.RetryTransient(ctx, func() error { return ix.store.UpsertSeries(ctx, row) }); err != nil {
			log.Printf("indexer: upsert series %s: %v", s.SeriesUID, err)
			*errCount++
		}
	}
	return false
}

func dateRangeFor(c DateChunk) string {
	return dicomutil.BuildDateRange(c.From, c.To)
}
