package tracker

import (
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/radgate/radgate/internal/types"
)

type fakeObserver struct {
	mu        sync.Mutex
	received  int
	succeeded int
	failed    int
	bytes     int64
}

func (f *fakeObserver) TransferReceived(string) {
	f.mu.Lock()
	f.received++
	f.mu.Unlock()
}

func (f *fakeObserver) TransferSucceeded(_ string, bytes int64, _ int) {
	f.mu.Lock()
	f.succeeded++
	f.bytes += bytes
	f.mu.Unlock()
}

func (f *fakeObserver) TransferFailed(string) {
	f.mu.Lock()
	f.failed++
	f.mu.Unlock()
}

func todayHistoryPath(base, ae string) string {
	return filepath.Join(base, ae, "history", "transfers_"+time.Now().Format("2006-01-02")+".json")
}

func readHistoryFile(t *testing.T, path string) *DayHistory {
	t.Helper()
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read history: %v", err)
	}
	var day DayHistory
	if err := json.Unmarshal(data, &day); err != nil {
		t.Fatalf("parse history: %v", err)
	}
	return &day
}

func TestSingleStudyForwardAllSuccess(t *testing.T) {
	base := t.TempDir()
	obs := &fakeObserver{}
	tr := New(base, obs)

	rec := tr.CreateTransfer("RTE_A", "1.2.3", "MODALITY", 10, 1048576)
	if rec.Status != types.StatusReceived {
		t.Fatalf("status = %s", rec.Status)
	}
	if !tr.StartForwarding(rec.TransferID, []string{"dest1", "dest2"}) {
		t.Fatal("StartForwarding failed")
	}
	if !tr.UpdateDestinationResult(rec.TransferID, "dest1", types.DestSuccess, "ok", 500, 10) {
		t.Fatal("update dest1 failed")
	}
	if !tr.UpdateDestinationResult(rec.TransferID, "dest2", types.DestSuccess, "ok", 700, 10) {
		t.Fatal("update dest2 failed")
	}

	if got := tr.GetTransfer(rec.TransferID); got != nil {
		t.Error("terminal record should be removed from the active registry")
	}

	day := readHistoryFile(t, todayHistoryPath(base, "RTE_A"))
	if len(day.Transfers) != 1 {
		t.Fatalf("history entries = %d, want 1", len(day.Transfers))
	}
	if day.Transfers[0].Status != types.StatusCompleted {
		t.Errorf("history status = %s, want COMPLETED", day.Transfers[0].Status)
	}

	stats := tr.GetRouteStatistics("RTE_A")
	if stats.Success != 1 || stats.Partial != 0 || stats.Failed != 0 {
		t.Errorf("route counters = %+v", stats)
	}
	if obs.succeeded != 1 || obs.bytes != 1048576 {
		t.Errorf("observer = %+v", obs)
	}
}

func TestPartialTransfer(t *testing.T) {
	tr := New(t.TempDir(), nil)

	rec := tr.CreateTransfer("RTE_A", "1.2.3", "MODALITY", 10, 1048576)
	tr.StartForwarding(rec.TransferID, []string{"dest1", "dest2"})
	tr.UpdateDestinationResult(rec.TransferID, "dest1", types.DestSuccess, "ok", 500, 10)
	tr.UpdateDestinationResult(rec.TransferID, "dest2", types.DestFailed, "refused", 700, 0)

	stats := tr.GetRouteStatistics("RTE_A")
	if stats.Partial != 1 || stats.Success != 0 || stats.Failed != 0 {
		t.Errorf("route counters = %+v, want partial=1", stats)
	}

	hist := tr.GetTransferHistory("RTE_A", 10)
	if len(hist) != 1 || hist[0].Status != types.StatusPartial {
		t.Errorf("history = %+v", hist)
	}
}

func TestAllDestinationsFailed(t *testing.T) {
	tr := New(t.TempDir(), nil)
	rec := tr.CreateTransfer("RTE_A", "1.2.3", "MOD", 1, 10)
	tr.StartForwarding(rec.TransferID, []string{"d1"})
	tr.UpdateDestinationResult(rec.TransferID, "d1", types.DestFailed, "down", 0, 0)

	stats := tr.GetRouteStatistics("RTE_A")
	if stats.Failed != 1 {
		t.Errorf("failed counter = %d", stats.Failed)
	}
}

func TestExactlyOneTerminalWriteUnderConcurrency(t *testing.T) {
	base := t.TempDir()
	tr := New(base, nil)

	dests := []string{"d0", "d1", "d2", "d3", "d4", "d5", "d6", "d7"}
	rec := tr.CreateTransfer("RTE_C", "9.8.7", "MOD", 1, 1)
	tr.StartForwarding(rec.TransferID, dests)

	var wg sync.WaitGroup
	for _, d := range dests {
		wg.Add(1)
		go func(dest string) {
			defer wg.Done()
			tr.UpdateDestinationResult(rec.TransferID, dest, types.DestSuccess, "ok", 1, 1)
		}(d)
	}
	wg.Wait()

	day := readHistoryFile(t, todayHistoryPath(base, "RTE_C"))
	if len(day.Transfers) != 1 {
		t.Fatalf("history entries = %d, want exactly 1", len(day.Transfers))
	}
	if tr.GetTransfer(rec.TransferID) != nil {
		t.Error("record still in active registry")
	}
	if got := tr.GetRouteStatistics("RTE_C").Success; got != 1 {
		t.Errorf("success counter = %d, want 1", got)
	}
}

func TestFailTransfer(t *testing.T) {
	tr := New(t.TempDir(), nil)
	rec := tr.CreateTransfer("RTE_A", "1.2.3", "MOD", 1, 10)
	if !tr.FailTransfer(rec.TransferID, "anonymization error") {
		t.Fatal("FailTransfer returned false")
	}
	if tr.FailTransfer(rec.TransferID, "again") {
		t.Error("second FailTransfer should be a no-op returning false")
	}
	hist := tr.GetTransferHistory("RTE_A", 1)
	if len(hist) != 1 || hist[0].Status != types.StatusFailed || hist[0].ErrorMessage != "anonymization error" {
		t.Errorf("history = %+v", hist)
	}
}

func TestUpdateUnknownTransferIsNoOp(t *testing.T) {
	tr := New(t.TempDir(), nil)
	if tr.UpdateDestinationResult("nope", "d1", types.DestSuccess, "", 0, 0) {
		t.Error("update of unknown transfer should return false")
	}
	if tr.StartProcessing("nope") {
		t.Error("StartProcessing of unknown transfer should return false")
	}
}

func TestEventCSVFormat(t *testing.T) {
	base := t.TempDir()
	tr := New(base, nil)
	rec := tr.CreateTransfer("RTE_A", "1.2.3", "MOD", 2, 2048)
	tr.StartProcessing(rec.TransferID)

	path := filepath.Join(base, "RTE_A", "logs", "transfers_"+time.Now().Format("2006-01-02")+".csv")
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("read event log: %v", err)
	}
	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	if lines[0] != "timestamp,transfer_id,event,study_uid,message" {
		t.Errorf("header = %q", lines[0])
	}
	if len(lines) != 3 {
		t.Fatalf("lines = %d, want header + 2 events", len(lines))
	}
	if !strings.Contains(lines[1], ",RECEIVED,1.2.3,") {
		t.Errorf("received line = %q", lines[1])
	}
	if !strings.Contains(lines[2], ",PROCESSING,") {
		t.Errorf("processing line = %q", lines[2])
	}
}

func TestFailStale(t *testing.T) {
	tr := New(t.TempDir(), nil)
	rec := tr.CreateTransfer("RTE_A", "1.2.3", "MOD", 1, 1)

	// Nothing is stale yet.
	if n := tr.FailStale(time.Hour); n != 0 {
		t.Errorf("FailStale = %d, want 0", n)
	}
	// Everything older than a negative age is stale.
	if n := tr.FailStale(-time.Second); n != 1 {
		t.Errorf("FailStale = %d, want 1", n)
	}
	if tr.GetTransfer(rec.TransferID) != nil {
		t.Error("stale record should be terminal")
	}
}

func TestGetTransfersByStudyUID(t *testing.T) {
	tr := New(t.TempDir(), nil)
	a := tr.CreateTransfer("RTE_A", "1.2.3", "MOD", 1, 1)
	tr.CreateTransfer("RTE_A", "9.9.9", "MOD", 1, 1)

	// One terminal with the same study UID.
	tr.StartForwarding(a.TransferID, []string{"d1"})
	tr.UpdateDestinationResult(a.TransferID, "d1", types.DestSuccess, "ok", 1, 1)

	time.Sleep(1100 * time.Millisecond) // distinct transfer ID timestamp
	b := tr.CreateTransfer("RTE_A", "1.2.3", "MOD", 1, 1)

	recs := tr.GetTransfersByStudyUID("1.2.3")
	if len(recs) != 2 {
		t.Fatalf("records = %d, want 2 (one active, one historical)", len(recs))
	}
	ids := map[string]bool{recs[0].TransferID: true, recs[1].TransferID: true}
	if !ids[a.TransferID] || !ids[b.TransferID] {
		t.Errorf("unexpected ids: %v", ids)
	}
}

func TestGlobalStatisticsFromDisk(t *testing.T) {
	base := t.TempDir()
	for _, p := range []string{
		"RTE_A/completed/study_1.2.3",
		"RTE_A/completed/study_4.5.6",
		"RTE_A/failed/study_7.8.9",
		"RTE_A/incoming/study_1.1.1",
		"scripts/ignored",
	} {
		if err := os.MkdirAll(filepath.Join(base, p), 0o750); err != nil {
			t.Fatal(err)
		}
	}
	tr := New(base, nil)
	g := tr.GetGlobalStatistics()
	if g.Completed != 2 || g.Failed != 1 || g.Incoming != 1 || g.Processing != 0 {
		t.Errorf("global stats = %+v", g)
	}
	if len(g.Routes) != 1 || g.Routes[0].AETitle != "RTE_A" {
		t.Errorf("routes = %+v", g.Routes)
	}
}
