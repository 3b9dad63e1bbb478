package sqlite

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/radgate/radgate/internal/storage"
	"github.com/radgate/radgate/internal/types"
)

func setupTestStore(t *testing.T) *Store {
	t.Helper()
	store, err := New(context.Background(), filepath.Join(t.TempDir(), "index.db"))
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	t.Cleanup(func() { _ = store.Close() })
	return store
}

func TestUpsertInstanceIdempotent(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	inst := &types.IndexedInstance{
		SOPInstanceUID: "1.2.3.4",
		SeriesUID:      "1.2.3",
		SOPClassUID:    "1.2.840.10008.5.1.4.1.1.2",
		InstanceNumber: 7,
		FilePath:       "/data/a.dcm",
		FileSize:       1024,
		FileHash:       "d41d8cd98f00b204e9800998ecf8427e",
	}
	if err := store.UpsertInstance(ctx, inst); err != nil {
		t.Fatalf("UpsertInstance failed: %v", err)
	}
	if err := store.UpsertInstance(ctx, inst); err != nil {
		t.Fatalf("second UpsertInstance failed: %v", err)
	}

	rows, err := store.GetInstancesForSeries(ctx, "1.2.3")
	if err != nil {
		t.Fatalf("GetInstancesForSeries failed: %v", err)
	}
	if len(rows) != 1 {
		t.Fatalf("expected 1 instance row, got %d", len(rows))
	}
	if rows[0].FileHash != inst.FileHash {
		t.Errorf("hash mismatch: %s", rows[0].FileHash)
	}
}

func TestUpsertStudyLastWriterWins(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.UpsertStudy(ctx, &types.IndexedStudy{StudyUID: "1.2", PatientID: "P1"}); err != nil {
		t.Fatalf("UpsertStudy failed: %v", err)
	}
	if err := store.UpsertStudy(ctx, &types.IndexedStudy{StudyUID: "1.2", PatientID: "P2"}); err != nil {
		t.Fatalf("UpsertStudy failed: %v", err)
	}
	st, err := store.GetStudy(ctx, "1.2")
	if err != nil {
		t.Fatalf("GetStudy failed: %v", err)
	}
	if st.PatientID != "P2" {
		t.Errorf("expected last-writer-wins PatientID P2, got %s", st.PatientID)
	}
}

func TestAggregateStudyCounts(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.UpsertStudy(ctx, &types.IndexedStudy{StudyUID: "s1"}); err != nil {
		t.Fatal(err)
	}
	for _, se := range []*types.IndexedSeries{
		{SeriesUID: "se1", StudyUID: "s1", Modality: "CT"},
		{SeriesUID: "se2", StudyUID: "s1", Modality: "MR"},
	} {
		if err := store.UpsertSeries(ctx, se); err != nil {
			t.Fatal(err)
		}
	}
	for _, in := range []*types.IndexedInstance{
		{SOPInstanceUID: "i1", SeriesUID: "se1", FileSize: 100},
		{SOPInstanceUID: "i2", SeriesUID: "se1", FileSize: 200},
		{SOPInstanceUID: "i3", SeriesUID: "se2", FileSize: 300},
	} {
		if err := store.UpsertInstance(ctx, in); err != nil {
			t.Fatal(err)
		}
	}

	if err := store.AggregateStudyCounts(ctx); err != nil {
		t.Fatalf("AggregateStudyCounts failed: %v", err)
	}

	st, err := store.GetStudy(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if st.SeriesCount != 2 {
		t.Errorf("SeriesCount = %d, want 2", st.SeriesCount)
	}
	if st.InstanceCount != 3 {
		t.Errorf("InstanceCount = %d, want 3", st.InstanceCount)
	}
	if st.TotalSize != 600 {
		t.Errorf("TotalSize = %d, want 600", st.TotalSize)
	}
	if st.Modalities != "CT\\MR" && st.Modalities != "MR\\CT" {
		t.Errorf("Modalities = %q", st.Modalities)
	}

	series, err := store.GetSeriesForStudy(ctx, "s1")
	if err != nil {
		t.Fatal(err)
	}
	for _, se := range series {
		want := 2
		if se.SeriesUID == "se2" {
			want = 1
		}
		if se.InstanceCount != want {
			t.Errorf("series %s InstanceCount = %d, want %d", se.SeriesUID, se.InstanceCount, want)
		}
	}
}

func TestCustomFieldValueReplace(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	f := &types.CustomField{DicomTag: "0008,0060", Type: types.FieldString, Level: types.LevelStudy, Enabled: true}
	if err := store.CreateCustomField(ctx, f); err != nil {
		t.Fatalf("CreateCustomField failed: %v", err)
	}
	if f.ID == 0 {
		t.Fatal("expected assigned field ID")
	}

	if err := store.SetCustomFieldValue(ctx, f.ID, "s1", "CT"); err != nil {
		t.Fatal(err)
	}
	if err := store.SetCustomFieldValue(ctx, f.ID, "s1", "MR"); err != nil {
		t.Fatal(err)
	}
	v, err := store.GetCustomFieldValue(ctx, f.ID, "s1")
	if err != nil {
		t.Fatal(err)
	}
	if v != "MR" {
		t.Errorf("value = %q, want MR", v)
	}

	fields, err := store.GetEnabledCustomFields(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != 1 {
		t.Fatalf("enabled fields = %d, want 1", len(fields))
	}

	if err := store.SetCustomFieldEnabled(ctx, f.ID, false); err != nil {
		t.Fatal(err)
	}
	fields, err = store.GetEnabledCustomFields(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(fields) != 0 {
		t.Errorf("enabled fields after disable = %d, want 0", len(fields))
	}
}

func TestClearIndexCascades(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	f := &types.CustomField{DicomTag: "Modality", Type: types.FieldString, Level: types.LevelStudy, Enabled: true}
	if err := store.CreateCustomField(ctx, f); err != nil {
		t.Fatal(err)
	}
	if err := store.UpsertStudy(ctx, &types.IndexedStudy{StudyUID: "s1"}); err != nil {
		t.Fatal(err)
	}
	if err := store.SetCustomFieldValue(ctx, f.ID, "s1", "CT"); err != nil {
		t.Fatal(err)
	}

	if err := store.ClearIndex(ctx); err != nil {
		t.Fatalf("ClearIndex failed: %v", err)
	}

	if _, err := store.GetStudy(ctx, "s1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound after clear, got %v", err)
	}
	if _, err := store.GetCustomFieldValue(ctx, f.ID, "s1"); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected custom value cleared, got %v", err)
	}
	// Field definitions survive a clear.
	fields, err := store.GetEnabledCustomFields(ctx)
	if err != nil || len(fields) != 1 {
		t.Errorf("field definitions should survive clear: %v, %d", err, len(fields))
	}
}

func TestRouteStatsIncrements(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	if err := store.UpdateRouteStats(ctx, "RTE_A", true, 1000, 10); err != nil {
		t.Fatal(err)
	}
	if err := store.UpdateRouteStats(ctx, "RTE_A", false, 0, 0); err != nil {
		t.Fatal(err)
	}

	rs, err := store.GetRouteStats(ctx, "RTE_A")
	if err != nil {
		t.Fatal(err)
	}
	if rs.TotalTransfers != 2 || rs.SuccessfulTransfers != 1 || rs.FailedTransfers != 1 {
		t.Errorf("unexpected counters: %+v", rs)
	}
	if rs.TotalBytes != 1000 || rs.TotalFiles != 10 {
		t.Errorf("unexpected byte/file counters: %+v", rs)
	}
}

func TestMetricsRoundTrip(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	base := time.Now().Truncate(time.Minute).UnixMilli()
	for i := 0; i < 3; i++ {
		p := &types.MetricPoint{Timestamp: base + int64(i)*60000, Transfers: int64(i)}
		if err := store.RecordMinuteMetric(ctx, p); err != nil {
			t.Fatal(err)
		}
	}
	pts, err := store.GetMinuteMetrics(ctx, 2)
	if err != nil {
		t.Fatal(err)
	}
	if len(pts) != 2 {
		t.Fatalf("expected 2 points, got %d", len(pts))
	}
	// Oldest first within the limited window.
	if pts[0].Timestamp >= pts[1].Timestamp {
		t.Errorf("points not in ascending order: %d, %d", pts[0].Timestamp, pts[1].Timestamp)
	}
	if pts[1].Transfers != 2 {
		t.Errorf("newest point transfers = %d, want 2", pts[1].Transfers)
	}
}

func TestReindexJobLifecycle(t *testing.T) {
	store := setupTestStore(t)
	ctx := context.Background()

	job, err := store.CreateReindexJob(ctx)
	if err != nil {
		t.Fatalf("CreateReindexJob failed: %v", err)
	}
	if job.Status != types.JobRunning {
		t.Errorf("new job status = %s", job.Status)
	}

	if err := store.UpdateReindexJob(ctx, job.ID, types.JobRunning, 100, 40, 1, "Scanning"); err != nil {
		t.Fatal(err)
	}
	got, err := store.GetReindexJob(ctx, job.ID)
	if err != nil {
		t.Fatal(err)
	}
	if got.Processed != 40 || got.TotalFiles != 100 || got.Errors != 1 {
		t.Errorf("progress not persisted: %+v", got)
	}
	if got.CompletedAt != nil {
		t.Error("running job should not have completed_at")
	}

	if err := store.UpdateReindexJob(ctx, job.ID, types.JobCompleted, 100, 100, 1, "Done"); err != nil {
		t.Fatal(err)
	}
	got, err = store.GetLatestReindexJob(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if got.ID != job.ID || got.Status != types.JobCompleted || got.CompletedAt == nil {
		t.Errorf("terminal job not recorded: %+v", got)
	}

	if err := store.UpdateReindexJob(ctx, 9999, types.JobFailed, 0, 0, 0, ""); !errors.Is(err, storage.ErrNotFound) {
		t.Errorf("expected ErrNotFound for unknown job, got %v", err)
	}
}
