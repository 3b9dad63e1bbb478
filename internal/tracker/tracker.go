// Package tracker maintains the active transfer registry, the per-route
// event logs, and the per-day history files.
//
// A transfer advances RECEIVED -> PROCESSING -> FORWARDING -> terminal
// (COMPLETED | PARTIAL | FAILED). Non-terminal records live only in the
// in-memory registry; terminal records are written exactly once to the
// day's history file and removed from the registry.
package tracker

import (
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/dustin/go-humanize"

	"github.com/radgate/radgate/internal/types"
)

// Observer receives transfer lifecycle notifications (the metrics
// aggregator implements this).
type Observer interface {
	TransferReceived(aeTitle string)
	TransferSucceeded(aeTitle string, bytes int64, files int)
	TransferFailed(aeTitle string)
}

// Tracker is the transfer lifecycle coordinator for all routes under one
// data root.
type Tracker struct {
	baseDir string

	mu     sync.Mutex
	active map[string]*types.TransferRecord

	routes   sync.Mutex
	counters map[string]*routeCounters

	history  *historyWriter
	observer Observer
}

// New creates a tracker rooted at baseDir. observer may be nil.
func New(baseDir string, observer Observer) *Tracker {
	return &Tracker{
		baseDir:  baseDir,
		active:   make(map[string]*types.TransferRecord),
		counters: make(map[string]*routeCounters),
		history:  newHistoryWriter(baseDir),
		observer: observer,
	}
}

// CreateTransfer registers a newly received study and returns its record.
func (t *Tracker) CreateTransfer(aeTitle, studyUID, callingAE string, fileCount int, totalSize int64) *types.TransferRecord {
	now := time.Now()
	rec := &types.TransferRecord{
		TransferID:     types.NewTransferID(aeTitle, studyUID, now),
		AETitle:        aeTitle,
		StudyUID:       studyUID,
		CallingAETitle: callingAE,
		FileCount:      fileCount,
		TotalSize:      totalSize,
		Status:         types.StatusReceived,
		ReceivedAt:     now,
	}

	t.mu.Lock()
	t.active[rec.TransferID] = rec
	t.mu.Unlock()

	t.routeCounters(aeTitle).received.Add(1)
	t.appendEvent(rec, "RECEIVED",
		fmt.Sprintf("%d files, %s from %s", fileCount, humanize.Bytes(uint64(totalSize)), callingAE))
	if t.observer != nil {
		t.observer.TransferReceived(aeTitle)
	}
	return rec.Clone()
}

// StartProcessing advances a transfer to PROCESSING. Unknown or terminal
// transfers are a warning-logged no-op returning false.
func (t *Tracker) StartProcessing(transferID string) bool {
	t.mu.Lock()
	rec, ok := t.active[transferID]
	if !ok || rec.Status != types.StatusReceived {
		t.mu.Unlock()
		log.Printf("tracker: StartProcessing ignored for %s (unknown or wrong state)", transferID)
		return false
	}
	now := time.Now()
	rec.Status = types.StatusProcessing
	rec.ProcessingStartedAt = &now
	snapshot := rec.Clone()
	t.mu.Unlock()

	t.appendEvent(snapshot, "PROCESSING", "")
	return true
}

// StartForwarding advances a transfer to FORWARDING, seeding one PENDING
// result per destination.
func (t *Tracker) StartForwarding(transferID string, destinations []string) bool {
	t.mu.Lock()
	rec, ok := t.active[transferID]
	if !ok || rec.Status.Terminal() {
		t.mu.Unlock()
		log.Printf("tracker: StartForwarding ignored for %s", transferID)
		return false
	}
	now := time.Now()
	rec.Status = types.StatusForwarding
	rec.ForwardingStartedAt = &now
	rec.DestinationResults = make([]*types.DestinationResult, 0, len(destinations))
	for _, d := range destinations {
		rec.DestinationResults = append(rec.DestinationResults, &types.DestinationResult{
			Destination: d,
			Status:      types.DestPending,
		})
	}
	snapshot := rec.Clone()
	t.mu.Unlock()

	t.appendEvent(snapshot, "FORWARDING", fmt.Sprintf("%d destinations", len(destinations)))
	return true
}

// UpdateDestinationResult records progress for one destination and, when
// every destination has finished, performs the terminal transition exactly
// once: overall status computation, history write, registry removal, route
// counter increment.
func (t *Tracker) UpdateDestinationResult(transferID, destination string, status types.DestinationStatus, message string, durationMs int64, filesTransferred int) bool {
	t.mu.Lock()
	rec, ok := t.active[transferID]
	if !ok || rec.Status != types.StatusForwarding {
		t.mu.Unlock()
		log.Printf("tracker: UpdateDestinationResult ignored for %s/%s", transferID, destination)
		return false
	}

	var dr *types.DestinationResult
	for _, d := range rec.DestinationResults {
		if d.Destination == destination {
			dr = d
			break
		}
	}
	if dr == nil {
		t.mu.Unlock()
		log.Printf("tracker: unknown destination %s for transfer %s", destination, transferID)
		return false
	}

	dr.Status = status
	dr.Message = message
	dr.DurationMs = durationMs
	dr.FilesTransferred = filesTransferred
	if status.Done() {
		now := time.Now()
		dr.CompletedAt = &now
	}

	var terminal *types.TransferRecord
	if overall, done := evaluateTerminal(rec); done {
		// Only this invocation observes the transition: the record is
		// removed from the registry while the lock is still held.
		now := time.Now()
		rec.Status = overall
		rec.CompletedAt = &now
		delete(t.active, transferID)
		terminal = rec
	}
	snapshot := rec.Clone()
	t.mu.Unlock()

	t.appendEvent(snapshot, "DESTINATION_"+string(status),
		fmt.Sprintf("%s: %s", destination, message))

	if terminal != nil {
		t.finalize(terminal)
	}
	return true
}

// FailTransfer force-terminates a transfer as FAILED with a top-level reason.
func (t *Tracker) FailTransfer(transferID, reason string) bool {
	t.mu.Lock()
	rec, ok := t.active[transferID]
	if !ok {
		t.mu.Unlock()
		log.Printf("tracker: FailTransfer ignored for unknown %s", transferID)
		return false
	}
	now := time.Now()
	rec.Status = types.StatusFailed
	rec.ErrorMessage = reason
	rec.CompletedAt = &now
	delete(t.active, transferID)
	t.mu.Unlock()

	t.finalize(rec)
	return true
}

// FailStale force-fails active transfers older than maxAge so nothing hangs
// in FORWARDING forever (e.g. a destination added but never updated).
// Returns the number of transfers failed.
func (t *Tracker) FailStale(maxAge time.Duration) int {
	cutoff := time.Now().Add(-maxAge)

	t.mu.Lock()
	var stale []string
	for id, rec := range t.active {
		if rec.ReceivedAt.Before(cutoff) {
			stale = append(stale, id)
		}
	}
	t.mu.Unlock()

	for _, id := range stale {
		t.FailTransfer(id, fmt.Sprintf("stale: no terminal state after %s", maxAge))
	}
	return len(stale)
}

// evaluateTerminal computes the overall status once every destination
// result is SUCCESS or FAILED. COMPLETED iff all SUCCESS; FAILED iff all
// FAILED; PARTIAL otherwise.
func evaluateTerminal(rec *types.TransferRecord) (types.TransferStatus, bool) {
	if len(rec.DestinationResults) == 0 {
		return "", false
	}
	succ, fail := 0, 0
	for _, d := range rec.DestinationResults {
		switch d.Status {
		case types.DestSuccess:
			succ++
		case types.DestFailed:
			fail++
		default:
			return "", false
		}
	}
	switch {
	case fail == 0:
		return types.StatusCompleted, true
	case succ == 0:
		return types.StatusFailed, true
	default:
		return types.StatusPartial, true
	}
}

// finalize performs the post-terminal bookkeeping: route counter, terminal
// event, history append, observer notification. The record is already out
// of the registry, so this runs at most once per transfer.
func (t *Tracker) finalize(rec *types.TransferRecord) {
	rc := t.routeCounters(rec.AETitle)
	switch rec.Status {
	case types.StatusCompleted:
		rc.success.Add(1)
	case types.StatusPartial:
		rc.partial.Add(1)
	case types.StatusFailed:
		rc.failed.Add(1)
	}

	msg := rec.ErrorMessage
	if msg == "" {
		msg = fmt.Sprintf("%d destinations", len(rec.DestinationResults))
	}
	t.appendEvent(rec, string(rec.Status), msg)

	if err := t.history.append(rec); err != nil {
		log.Printf("tracker: history write failed for %s: %v", rec.TransferID, err)
	}

	if t.observer != nil {
		switch rec.Status {
		case types.StatusCompleted:
			t.observer.TransferSucceeded(rec.AETitle, rec.TotalSize, rec.FileCount)
		default:
			t.observer.TransferFailed(rec.AETitle)
		}
	}
}

// GetActiveTransfers lists non-terminal records, optionally filtered by
// route. aeTitle == "" means all routes.
func (t *Tracker) GetActiveTransfers(aeTitle string) []*types.TransferRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	var out []*types.TransferRecord
	for _, rec := range t.active {
		if aeTitle == "" || rec.AETitle == aeTitle {
			out = append(out, rec.Clone())
		}
	}
	return out
}

// GetTransfer returns the active record for id, or nil.
func (t *Tracker) GetTransfer(transferID string) *types.TransferRecord {
	t.mu.Lock()
	defer t.mu.Unlock()
	if rec, ok := t.active[transferID]; ok {
		return rec.Clone()
	}
	return nil
}

// GetTransfersByStudyUID returns all records for a study UID: active ones
// plus matches from each known route's recent history.
func (t *Tracker) GetTransfersByStudyUID(studyUID string) []*types.TransferRecord {
	var out []*types.TransferRecord
	t.mu.Lock()
	for _, rec := range t.active {
		if rec.StudyUID == studyUID {
			out = append(out, rec.Clone())
		}
	}
	t.mu.Unlock()

	for _, ae := range t.knownRoutes() {
		for _, rec := range t.GetTransferHistory(ae, 0) {
			if rec.StudyUID == studyUID {
				out = append(out, rec)
			}
		}
	}
	return dedupeByID(out)
}

func dedupeByID(recs []*types.TransferRecord) []*types.TransferRecord {
	seen := make(map[string]bool, len(recs))
	out := recs[:0]
	for _, r := range recs {
		if !seen[r.TransferID] {
			seen[r.TransferID] = true
			out = append(out, r)
		}
	}
	return out
}
