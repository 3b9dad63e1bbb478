package review

import (
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/radgate/radgate/internal/archive"
	"github.com/radgate/radgate/internal/types"
)

type recordingCallback struct {
	calls   int
	lastUID string
	files   int
	err     error
}

func (r *recordingCallback) StudyApproved(review *types.ReviewMetadata, study *archive.Study) error {
	r.calls++
	r.lastUID = review.StudyUID
	if study != nil {
		r.files = len(study.OriginalFiles)
	}
	return r.err
}

func newTestCoordinator(t *testing.T, cb ApprovalCallback) (*Coordinator, *archive.Manager, string) {
	t.Helper()
	base := t.TempDir()
	mgr := archive.NewManager(base)
	return NewCoordinator(base, mgr, cb), mgr, base
}

func submitStaged(t *testing.T, c *Coordinator, mgr *archive.Manager, uid string) string {
	t.Helper()
	if _, err := mgr.Stage("RTE_A", uid, archive.CategoryPendingReview, nil); err != nil {
		t.Fatal(err)
	}
	id, err := c.SubmitForReview("RTE_A", uid, "basic.script", 12, []string{"check series 3"})
	if err != nil {
		t.Fatalf("SubmitForReview: %v", err)
	}
	return id
}

func TestSubmitAndQuery(t *testing.T) {
	c, mgr, _ := newTestCoordinator(t, nil)
	id := submitStaged(t, c, mgr, "1.2.3")

	rev, err := c.GetReview(id)
	if err != nil || rev == nil {
		t.Fatalf("GetReview = %v, %v", rev, err)
	}
	if rev.Status != types.ReviewPending || rev.PHIFieldsModified != 12 {
		t.Errorf("review = %+v", rev)
	}
	if rev.ArchivePath == "" {
		t.Error("archive path not recorded")
	}

	if unknown, err := c.GetReview("no-such-id"); err != nil || unknown != nil {
		t.Errorf("GetReview(unknown) = %+v, %v", unknown, err)
	}
}

func TestApproveInvokesCallbackAndDeletesDir(t *testing.T) {
	cb := &recordingCallback{}
	c, mgr, base := newTestCoordinator(t, cb)
	id := submitStaged(t, c, mgr, "1.2.3")

	// Give the study one original so the callback sees the file listing.
	src := filepath.Join(t.TempDir(), "img.dcm")
	if err := os.WriteFile(src, []byte("x"), 0o640); err != nil {
		t.Fatal(err)
	}
	if err := mgr.AddOriginal("RTE_A", "1.2.3", archive.CategoryPendingReview, src); err != nil {
		t.Fatal(err)
	}

	ok, err := c.ApproveReview(id, "reviewer1", "looks clean")
	if err != nil || !ok {
		t.Fatalf("ApproveReview = %v, %v", ok, err)
	}
	if cb.calls != 1 || cb.lastUID != "1.2.3" || cb.files != 1 {
		t.Errorf("callback = %+v", cb)
	}
	if _, err := os.Stat(filepath.Join(base, "RTE_A", "pending_review", "study_1.2.3")); !os.IsNotExist(err) {
		t.Error("pending directory still exists after approval")
	}

	// Second approval is a no-op.
	ok, err = c.ApproveReview(id, "reviewer1", "again")
	if err != nil || ok {
		t.Errorf("second approve = %v, %v, want false", ok, err)
	}
	if cb.calls != 1 {
		t.Errorf("callback calls = %d after no-op approve", cb.calls)
	}
}

func TestApproveDeletesDirEvenWhenCallbackFails(t *testing.T) {
	cb := &recordingCallback{err: errors.New("forwarder down")}
	c, mgr, base := newTestCoordinator(t, cb)
	id := submitStaged(t, c, mgr, "1.2.3")

	ok, err := c.ApproveReview(id, "reviewer1", "")
	if err != nil || !ok {
		t.Fatalf("ApproveReview = %v, %v", ok, err)
	}
	if _, err := os.Stat(filepath.Join(base, "RTE_A", "pending_review", "study_1.2.3")); !os.IsNotExist(err) {
		t.Error("pending directory survived a failing callback")
	}
}

func TestRejectMovesToRejected(t *testing.T) {
	c, mgr, base := newTestCoordinator(t, nil)
	id := submitStaged(t, c, mgr, "1.2.3")

	ok, err := c.RejectReview(id, "reviewer2", "PHI visible in series description")
	if err != nil || !ok {
		t.Fatalf("RejectReview = %v, %v", ok, err)
	}

	rejPath := filepath.Join(base, "RTE_A", "rejected", "study_1.2.3", "rejection_metadata.json")
	if _, err := os.Stat(rejPath); err != nil {
		t.Errorf("rejection metadata missing: %v", err)
	}
	if _, err := os.Stat(filepath.Join(base, "RTE_A", "pending_review", "study_1.2.3")); !os.IsNotExist(err) {
		t.Error("pending directory still exists after rejection")
	}

	rejected, err := c.GetRejectedStudies("RTE_A", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rejected) != 1 || rejected[0].RejectionReason != "PHI visible in series description" {
		t.Errorf("rejected = %+v", rejected)
	}
	if rejected[0].Status != types.ReviewRejected {
		t.Errorf("status = %s", rejected[0].Status)
	}

	// Rejecting again is a no-op.
	ok, err = c.RejectReview(id, "reviewer2", "again")
	if err != nil || ok {
		t.Errorf("second reject = %v, %v, want false", ok, err)
	}
}

func TestPendingQueuesAcrossRoutes(t *testing.T) {
	c, mgr, _ := newTestCoordinator(t, nil)
	submitStaged(t, c, mgr, "1.1.1")
	submitStaged(t, c, mgr, "2.2.2")
	if _, err := mgr.Stage("RTE_B", "3.3.3", archive.CategoryPendingReview, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := c.SubmitForReview("RTE_B", "3.3.3", "basic.script", 0, nil); err != nil {
		t.Fatal(err)
	}

	if n := c.GetPendingReviewCount("RTE_A"); n != 2 {
		t.Errorf("RTE_A pending = %d", n)
	}
	all, err := c.GetAllPendingReviews()
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 3 {
		t.Errorf("all pending = %d", len(all))
	}

	rev, err := c.GetReviewByStudyUID("RTE_B", "3.3.3")
	if err != nil || rev == nil || rev.AETitle != "RTE_B" {
		t.Errorf("GetReviewByStudyUID = %+v, %v", rev, err)
	}
	if rev, _ := c.GetReviewByStudyUID("RTE_B", "missing"); rev != nil {
		t.Errorf("missing study review = %+v", rev)
	}
}

func TestResubmitOverwrites(t *testing.T) {
	c, mgr, _ := newTestCoordinator(t, nil)
	first := submitStaged(t, c, mgr, "1.2.3")
	second, err := c.SubmitForReview("RTE_A", "1.2.3", "strict.script", 20, nil)
	if err != nil {
		t.Fatal(err)
	}
	if first == second {
		t.Error("resubmission should mint a new review id")
	}
	rev, err := c.GetReviewByStudyUID("RTE_A", "1.2.3")
	if err != nil || rev == nil {
		t.Fatal(err)
	}
	if rev.ReviewID != second || rev.ScriptUsed != "strict.script" {
		t.Errorf("review = %+v, want overwritten metadata", rev)
	}
	if n := c.GetPendingReviewCount("RTE_A"); n != 1 {
		t.Errorf("pending count = %d after resubmit", n)
	}
}
