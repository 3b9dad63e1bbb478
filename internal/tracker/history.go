package tracker

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/radgate/radgate/internal/types"
)

// historyLookbackDays bounds how far back GetTransferHistory walks.
const historyLookbackDays = 30

// DayHistory is the on-disk shape of one route's transfers for one day.
type DayHistory struct {
	Date      string                  `json:"date"` // YYYY-MM-DD
	AETitle   string                  `json:"ae_title"`
	Transfers []*types.TransferRecord `json:"transfers"`
}

// historyWriter serializes read-modify-write per (aeTitle, date) file and
// writes with a tmp+rename discipline so a crash never leaves a torn file.
type historyWriter struct {
	baseDir string

	mu    sync.Mutex
	locks map[string]*sync.Mutex
}

func newHistoryWriter(baseDir string) *historyWriter {
	return &historyWriter{baseDir: baseDir, locks: make(map[string]*sync.Mutex)}
}

func (h *historyWriter) fileLock(path string) *sync.Mutex {
	h.mu.Lock()
	defer h.mu.Unlock()
	l, ok := h.locks[path]
	if !ok {
		l = &sync.Mutex{}
		h.locks[path] = l
	}
	return l
}

func (h *historyWriter) pathFor(aeTitle, date string) string {
	return filepath.Join(h.baseDir, aeTitle, "history", "transfers_"+date+".json")
}

// append adds one terminal record to the day's history file.
func (h *historyWriter) append(rec *types.TransferRecord) error {
	date := rec.CompletedAt.Format("2006-01-02")
	path := h.pathFor(rec.AETitle, date)

	lock := h.fileLock(path)
	lock.Lock()
	defer lock.Unlock()

	day, err := readDayHistory(path)
	if err != nil {
		return err
	}
	if day == nil {
		day = &DayHistory{Date: date, AETitle: rec.AETitle}
	}
	day.Transfers = append(day.Transfers, rec)

	if err := os.MkdirAll(filepath.Dir(path), 0o750); err != nil {
		return fmt.Errorf("create history dir: %w", err)
	}
	data, err := json.MarshalIndent(day, "", "  ")
	if err != nil {
		return fmt.Errorf("marshal history: %w", err)
	}
	tmp := path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o640); err != nil {
		return fmt.Errorf("write history: %w", err)
	}
	return os.Rename(tmp, path)
}

func readDayHistory(path string) (*DayHistory, error) {
	data, err := os.ReadFile(path) // #nosec G304 - path derived from route + date
	if os.IsNotExist(err) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read history: %w", err)
	}
	var day DayHistory
	if err := json.Unmarshal(data, &day); err != nil {
		return nil, fmt.Errorf("parse history %s: %w", path, err)
	}
	return &day, nil
}

// GetHistory returns the history document for one route and date
// (YYYY-MM-DD), or an empty document when none exists.
func (t *Tracker) GetHistory(aeTitle, date string) (*DayHistory, error) {
	path := t.history.pathFor(aeTitle, date)
	lock := t.history.fileLock(path)
	lock.Lock()
	defer lock.Unlock()

	day, err := readDayHistory(path)
	if err != nil {
		return nil, err
	}
	if day == nil {
		day = &DayHistory{Date: date, AETitle: aeTitle}
	}
	return day, nil
}

// GetTransferHistory returns up to limit terminal records for a route,
// newest first, walking back up to 30 days. limit <= 0 means no limit.
func (t *Tracker) GetTransferHistory(aeTitle string, limit int) []*types.TransferRecord {
	var out []*types.TransferRecord
	now := time.Now()
	for i := 0; i < historyLookbackDays; i++ {
		date := now.AddDate(0, 0, -i).Format("2006-01-02")
		day, err := t.GetHistory(aeTitle, date)
		if err != nil {
			continue // unreadable day files are skipped, not fatal
		}
		// Newest first within the day.
		for j := len(day.Transfers) - 1; j >= 0; j-- {
			out = append(out, day.Transfers[j])
			if limit > 0 && len(out) >= limit {
				return out
			}
		}
	}
	return out
}

// GetFailedTransfers returns up to limit FAILED records, newest first.
// aeTitle == "" searches all known routes.
func (t *Tracker) GetFailedTransfers(aeTitle string, limit int) []*types.TransferRecord {
	routes := []string{aeTitle}
	if aeTitle == "" {
		routes = t.knownRoutes()
	}
	var out []*types.TransferRecord
	for _, ae := range routes {
		for _, rec := range t.GetTransferHistory(ae, 0) {
			if rec.Status == types.StatusFailed {
				out = append(out, rec)
			}
		}
	}
	sort.Slice(out, func(i, j int) bool {
		ti, tj := out[i].CompletedAt, out[j].CompletedAt
		if ti == nil || tj == nil {
			return tj == nil
		}
		return ti.After(*tj)
	})
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out
}

// knownRoutes lists first-level directories under the data root, skipping
// the reserved scripts directory.
func (t *Tracker) knownRoutes() []string {
	entries, err := os.ReadDir(t.baseDir)
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
