// Package reaper deletes archived study folders, history files, and event
// logs older than the retention window. It runs daily, starting with an
// immediate pass.
package reaper

import (
	"context"
	"log"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// StaleTracker is the slice of the tracker the reaper uses to fail
// transfers stuck in a non-terminal state.
type StaleTracker interface {
	FailStale(maxAge time.Duration) int
}

// staleTransferAge bounds how long a transfer may sit in the active
// registry before the reaper force-fails it.
const staleTransferAge = 24 * time.Hour

// Reaper owns retention cleanup under one data root.
type Reaper struct {
	baseDir       string
	retentionDays int
	tracker       StaleTracker

	trigger chan struct{}
}

// New creates a reaper. tracker may be nil.
func New(baseDir string, retentionDays int, tracker StaleTracker) *Reaper {
	return &Reaper{
		baseDir:       baseDir,
		retentionDays: retentionDays,
		tracker:       tracker,
		trigger:       make(chan struct{}, 1),
	}
}

// Start launches the daily cleanup loop. The first pass runs immediately.
// The loop exits when ctx is cancelled.
func (r *Reaper) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(24 * time.Hour)
		defer ticker.Stop()

		r.safeCleanup()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				r.safeCleanup()
			case <-r.trigger:
				r.safeCleanup()
			}
		}
	}()
}

// TriggerCleanup schedules an immediate cleanup pass. A pass already
// pending coalesces with this one.
func (r *Reaper) TriggerCleanup() {
	select {
	case r.trigger <- struct{}{}:
	default:
	}
}

func (r *Reaper) safeCleanup() {
	defer func() {
		if rec := recover(); rec != nil {
			log.Printf("reaper: cleanup panicked: %v", rec)
		}
	}()
	r.Cleanup()
}

// CleanupCounts tallies one pass's deletions by category.
type CleanupCounts struct {
	StudyDirs    int
	HistoryFiles int
	LogFiles     int
	StaleFailed  int
}

// Cleanup runs one retention pass and returns the deletion counts.
func (r *Reaper) Cleanup() CleanupCounts {
	cutoff := time.Now().AddDate(0, 0, -r.retentionDays)
	var counts CleanupCounts

	entries, err := os.ReadDir(r.baseDir)
	if err != nil {
		log.Printf("reaper: read data root: %v", err)
		return counts
	}
	for _, e := range entries {
		if !e.IsDir() || e.Name() == "scripts" {
			continue
		}
		route := filepath.Join(r.baseDir, e.Name())

		for _, category := range []string{"completed", "failed"} {
			counts.StudyDirs += reapStudyDirs(filepath.Join(route, category), cutoff)
		}
		counts.HistoryFiles += reapFiles(filepath.Join(route, "history"), ".json", cutoff)
		counts.LogFiles += reapFiles(filepath.Join(route, "logs"), ".csv", cutoff)
	}

	if r.tracker != nil {
		counts.StaleFailed = r.tracker.FailStale(staleTransferAge)
	}

	log.Printf("reaper: removed %d study dirs, %d history files, %d log files; failed %d stale transfers",
		counts.StudyDirs, counts.HistoryFiles, counts.LogFiles, counts.StaleFailed)
	return counts
}

func reapStudyDirs(dir string, cutoff time.Time) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	removed := 0
	for _, e := range entries {
		if !e.IsDir() || !strings.HasPrefix(e.Name(), "study_") {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.RemoveAll(path); err != nil {
			log.Printf("reaper: remove %s: %v", path, err)
			continue
		}
		removed++
	}
	return removed
}

func reapFiles(dir, ext string, cutoff time.Time) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	removed := 0
	for _, e := range entries {
		if e.IsDir() || !strings.HasSuffix(e.Name(), ext) {
			continue
		}
		info, err := e.Info()
		if err != nil || !info.ModTime().Before(cutoff) {
			continue
		}
		path := filepath.Join(dir, e.Name())
		if err := os.Remove(path); err != nil {
			log.Printf("reaper: remove %s: %v", path, err)
			continue
		}
		removed++
	}
	return removed
}
