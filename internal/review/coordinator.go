// Package review implements the human approval gate: studies staged under
// pending_review wait for an approve or reject decision. Approval releases
// the study to the forwarding callback and removes the pending directory;
// rejection moves the study to rejected/ with a rejection record.
package review

import (
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/radgate/radgate/internal/archive"
	"github.com/radgate/radgate/internal/types"
)

const (
	reviewMetadataFile    = "review_metadata.json"
	rejectionMetadataFile = "rejection_metadata.json"
)

// ApprovalCallback is invoked synchronously when a review is approved. The
// forward manager implements this; tests swap in a recorder.
type ApprovalCallback interface {
	StudyApproved(review *types.ReviewMetadata, study *archive.Study) error
}

// Coordinator owns the review directories under one data root.
type Coordinator struct {
	baseDir  string
	archive  *archive.Manager
	callback ApprovalCallback

	// mu serializes decisions so approve/reject of the same review cannot
	// interleave.
	mu sync.Mutex
}

// NewCoordinator creates a coordinator. callback may be nil, in which case
// approvals only remove the pending directory.
func NewCoordinator(baseDir string, archiveMgr *archive.Manager, callback ApprovalCallback) *Coordinator {
	return &Coordinator{baseDir: baseDir, archive: archiveMgr, callback: callback}
}

func (c *Coordinator) pendingDir(aeTitle, studyUID string) string {
	return c.archive.StudyDir(aeTitle, studyUID, archive.CategoryPendingReview)
}

// SubmitForReview places a study into the pending queue and returns the
// review ID. A second submission for the same study overwrites the previous
// metadata; idempotency is the caller's responsibility.
func (c *Coordinator) SubmitForReview(aeTitle, studyUID, scriptName string, phiFieldsModified int, warnings []string) (string, error) {
	dir := c.pendingDir(aeTitle, studyUID)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return "", fmt.Errorf("create pending dir: %w", err)
	}
	meta := &types.ReviewMetadata{
		ReviewID:          uuid.NewString(),
		StudyUID:          studyUID,
		AETitle:           aeTitle,
		ArchivePath:       dir,
		SubmittedAt:       time.Now(),
		Status:            types.ReviewPending,
		ScriptUsed:        scriptName,
		PHIFieldsModified: phiFieldsModified,
		Warnings:          warnings,
	}
	if err := writeMetadata(filepath.Join(dir, reviewMetadataFile), meta); err != nil {
		return "", err
	}
	log.Printf("review: study %s on %s submitted for review (%s)", studyUID, aeTitle, meta.ReviewID)
	return meta.ReviewID, nil
}

// ApproveReview marks a pending review approved, invokes the approval
// callback, and deletes the pending directory. A missing or non-pending
// review is a no-op returning false. The pending directory is removed even
// when the callback fails; callback errors are logged.
func (c *Coordinator) ApproveReview(reviewID, userID, notes string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	meta, err := c.findPending(reviewID)
	if err != nil {
		return false, err
	}
	if meta == nil || meta.Status != types.ReviewPending {
		log.Printf("review: approve ignored for %s (not pending)", reviewID)
		return false, nil
	}

	now := time.Now()
	meta.Status = types.ReviewApproved
	meta.ReviewedAt = &now
	meta.ReviewedBy = userID
	meta.ReviewNotes = notes

	// The callback runs before the directory disappears so a crash between
	// the two leaves either a pending directory or a completed handoff.
	if c.callback != nil {
		study, loadErr := c.archive.LoadFrom(meta.AETitle, meta.StudyUID, archive.CategoryPendingReview)
		if loadErr != nil {
			log.Printf("review: load archived study %s: %v", meta.StudyUID, loadErr)
		}
		if err := c.callback.StudyApproved(meta, study); err != nil {
			log.Printf("review: approval callback for %s: %v", reviewID, err)
		}
	}

	if err := os.RemoveAll(c.pendingDir(meta.AETitle, meta.StudyUID)); err != nil {
		return false, fmt.Errorf("remove pending dir: %w", err)
	}
	log.Printf("review: %s approved by %s", reviewID, userID)
	return true, nil
}

// RejectReview moves the pending study to rejected/ and records the reason.
// A missing or non-pending review is a no-op returning false.
func (c *Coordinator) RejectReview(reviewID, userID, reason string) (bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	meta, err := c.findPending(reviewID)
	if err != nil {
		return false, err
	}
	if meta == nil || meta.Status != types.ReviewPending {
		log.Printf("review: reject ignored for %s (not pending)", reviewID)
		return false, nil
	}

	now := time.Now()
	meta.Status = types.ReviewRejected
	meta.ReviewedAt = &now
	meta.ReviewedBy = userID
	meta.RejectionReason = reason

	// The study directory moves wholesale so the original and anonymized
	// files stay available for audit.
	if err := c.archive.Move(meta.AETitle, meta.StudyUID, archive.CategoryPendingReview, archive.CategoryRejected); err != nil {
		return false, err
	}
	rejectedDir := c.archive.StudyDir(meta.AETitle, meta.StudyUID, archive.CategoryRejected)
	meta.ArchivePath = rejectedDir
	if err := os.Remove(filepath.Join(rejectedDir, reviewMetadataFile)); err != nil && !os.IsNotExist(err) {
		return false, fmt.Errorf("remove stale review metadata: %w", err)
	}
	if err := writeMetadata(filepath.Join(rejectedDir, rejectionMetadataFile), meta); err != nil {
		return false, err
	}
	log.Printf("review: %s rejected by %s: %s", reviewID, userID, reason)
	return true, nil
}

// GetPendingReviews lists pending reviews for one route, oldest first.
func (c *Coordinator) GetPendingReviews(aeTitle string) ([]*types.ReviewMetadata, error) {
	reviews, err := c.readReviewDir(aeTitle, archive.CategoryPendingReview, reviewMetadataFile)
	if err != nil {
		return nil, err
	}
	sort.Slice(reviews, func(i, j int) bool {
		return reviews[i].SubmittedAt.Before(reviews[j].SubmittedAt)
	})
	return reviews, nil
}

// GetAllPendingReviews lists pending reviews across every route, oldest first.
func (c *Coordinator) GetAllPendingReviews() ([]*types.ReviewMetadata, error) {
	var all []*types.ReviewMetadata
	for _, ae := range c.routes() {
		reviews, err := c.GetPendingReviews(ae)
		if err != nil {
			return nil, err
		}
		all = append(all, reviews...)
	}
	sort.Slice(all, func(i, j int) bool {
		return all[i].SubmittedAt.Before(all[j].SubmittedAt)
	})
	return all, nil
}

// GetReview finds a pending review by ID across all routes, or nil.
func (c *Coordinator) GetReview(reviewID string) (*types.ReviewMetadata, error) {
	return c.findPending(reviewID)
}

// GetReviewByStudyUID returns the pending review for one study, or nil.
func (c *Coordinator) GetReviewByStudyUID(aeTitle, studyUID string) (*types.ReviewMetadata, error) {
	path := filepath.Join(c.pendingDir(aeTitle, studyUID), reviewMetadataFile)
	meta, err := readMetadata(path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	return meta, err
}

// GetRejectedStudies lists rejection records for one route, newest first.
// limit <= 0 means no limit.
func (c *Coordinator) GetRejectedStudies(aeTitle string, limit int) ([]*types.ReviewMetadata, error) {
	reviews, err := c.readReviewDir(aeTitle, archive.CategoryRejected, rejectionMetadataFile)
	if err != nil {
		return nil, err
	}
	sort.Slice(reviews, func(i, j int) bool {
		ti, tj := reviews[i].ReviewedAt, reviews[j].ReviewedAt
		if ti == nil || tj == nil {
			return tj == nil
		}
		return ti.After(*tj)
	})
	if limit > 0 && len(reviews) > limit {
		reviews = reviews[:limit]
	}
	return reviews, nil
}

// GetPendingReviewCount counts pending reviews for one route.
func (c *Coordinator) GetPendingReviewCount(aeTitle string) int {
	reviews, err := c.GetPendingReviews(aeTitle)
	if err != nil {
		log.Printf("review: count pending for %s: %v", aeTitle, err)
		return 0
	}
	return len(reviews)
}

func (c *Coordinator) findPending(reviewID string) (*types.ReviewMetadata, error) {
	for _, ae := range c.routes() {
		reviews, err := c.readReviewDir(ae, archive.CategoryPendingReview, reviewMetadataFile)
		if err != nil {
			return nil, err
		}
		for _, r := range reviews {
			if r.ReviewID == reviewID {
				return r, nil
			}
		}
	}
	return nil, nil
}

func (c *Coordinator) readReviewDir(aeTitle, category, fileName string) ([]*types.ReviewMetadata, error) {
	dir := filepath.Join(c.baseDir, aeTitle, category)
	entries, err := os.ReadDir(dir)
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", dir, err)
	}
	var reviews []*types.ReviewMetadata
	for _, e := range entries {
		if !e.IsDir() {
			continue
		}
		meta, err := readMetadata(filepath.Join(dir, e.Name(), fileName))
		if errors.Is(err, os.ErrNotExist) {
			continue
		}
		if err != nil {
			log.Printf("review: skipping unreadable metadata in %s: %v", e.Name(), err)
			continue
		}
		reviews = append(reviews, meta)
	}
	return reviews, nil
}

func (c *Coordinator) routes() []string {
	entries, err := os.ReadDir(c.baseDir)
	if err != nil {
		return nil
	}
	var routes []string
	for _, e := range entries {
		if e.IsDir() && e.Name() != "scripts" {
			routes = append(routes, e.Name())
		}
	}
	return routes
}

func readMetadata(path string) (*types.ReviewMetadata, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path derived from route + study UID
	if err != nil {
		return nil, err
	}
	var meta types.ReviewMetadata
	if err := json.Unmarshal(data, &meta); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}
	return &meta, nil
}

func writeMetadata(path string, meta *types.ReviewMetadata) error {
	data, err := json.MarshalIndent(meta, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal review metadata: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("write review metadata: %w", err)
	}
	return os.Rename(tmp, path)
}
