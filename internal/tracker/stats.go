package tracker

import (
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
)

// routeCounters are process-lifetime counters per route; durable totals come
// from disk (GlobalStatistics) and from the store's route_stats table.
type routeCounters struct {
	received atomic.Int64
	success  atomic.Int64
	partial  atomic.Int64
	failed   atomic.Int64
}

func (t *Tracker) routeCounters(aeTitle string) *routeCounters {
	t.routes.Lock()
	defer t.routes.Unlock()
	rc, ok := t.counters[aeTitle]
	if !ok {
		rc = &routeCounters{}
		t.counters[aeTitle] = rc
	}
	return rc
}

// RouteStatistics is a snapshot of one route's in-process counters.
type RouteStatistics struct {
	AETitle     string  `json:"ae_title"`
	Received    int64   `json:"received"`
	Success     int64   `json:"success"`
	Partial     int64   `json:"partial"`
	Failed      int64   `json:"failed"`
	SuccessRate float64 `json:"success_rate"`
}

// GetRouteStatistics snapshots the counters for one route.
func (t *Tracker) GetRouteStatistics(aeTitle string) RouteStatistics {
	rc := t.routeCounters(aeTitle)
	s := RouteStatistics{
		AETitle:  aeTitle,
		Received: rc.received.Load(),
		Success:  rc.success.Load(),
		Partial:  rc.partial.Load(),
		Failed:   rc.failed.Load(),
	}
	if done := s.Success + s.Partial + s.Failed; done > 0 {
		s.SuccessRate = float64(s.Success) / float64(done)
	}
	return s
}

// GlobalStatistics mixes durable folder counts (which survive restarts)
// with process-lifetime counters. The two views are reported separately and
// never summed.
type GlobalStatistics struct {
	Incoming   int `json:"incoming"`
	Processing int `json:"processing"`
	Completed  int `json:"completed"`
	Failed     int `json:"failed"`

	ActiveTransfers int               `json:"active_transfers"`
	Routes          []RouteStatistics `json:"routes"`
}

// GetGlobalStatistics counts study folders on disk for every route so the
// totals survive process restart, and attaches per-route process counters.
func (t *Tracker) GetGlobalStatistics() GlobalStatistics {
	var g GlobalStatistics
	for _, ae := range t.knownRoutes() {
		g.Incoming += countStudyDirs(filepath.Join(t.baseDir, ae, "incoming"))
		g.Processing += countStudyDirs(filepath.Join(t.baseDir, ae, "processing"))
		g.Completed += countStudyDirs(filepath.Join(t.baseDir, ae, "completed"))
		g.Failed += countStudyDirs(filepath.Join(t.baseDir, ae, "failed"))
		g.Routes = append(g.Routes, t.GetRouteStatistics(ae))
	}

	t.mu.Lock()
	g.ActiveTransfers = len(t.active)
	t.mu.Unlock()
	return g
}

func countStudyDirs(dir string) int {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return 0
	}
	n := 0
	for _, e := range entries {
		if e.IsDir() && strings.HasPrefix(e.Name(), "study_") {
			n++
		}
	}
	return n
}
