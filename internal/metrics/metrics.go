// Package metrics aggregates transfer activity into minute, hour, and day
// buckets. Counters are atomic; a 60-second rollup task snapshots them into
// MetricPoints, persists each point, and prunes the in-memory deques to
// their retention windows (60 minutes, 24 hours, 30 days).
package metrics

import (
	"context"
	"log"
	"sync"
	"sync/atomic"
	"time"

	"github.com/radgate/radgate/internal/storage"
	"github.com/radgate/radgate/internal/types"
)

const (
	minuteMillis = int64(60_000)
	hourMillis   = int64(3_600_000)
	dayMillis    = int64(86_400_000)

	minuteRetention = 60
	hourRetention   = 24
	dayRetention    = 30

	throughputWindow = 5 // minutes
)

// counters is one accumulation window's worth of atomic counters.
type counters struct {
	received   atomic.Int64
	transfers  atomic.Int64
	successful atomic.Int64
	failed     atomic.Int64
	bytes      atomic.Int64
	files      atomic.Int64
}

// drain snapshots the counters into a point stamped at ts and resets them.
func (c *counters) drain(ts int64) *types.MetricPoint {
	return &types.MetricPoint{
		Timestamp:  ts,
		Transfers:  c.transfers.Swap(0),
		Successful: c.successful.Swap(0),
		Failed:     c.failed.Swap(0),
		Bytes:      c.bytes.Swap(0),
		Files:      c.files.Swap(0),
	}
}

// Aggregator collects transfer activity and rolls it up on a fixed cadence.
// It implements tracker.Observer.
type Aggregator struct {
	store storage.Store
	clock func() time.Time

	global   counters
	routesMu sync.Mutex
	routes   map[string]*counters

	mu            sync.RWMutex
	minutes       []*types.MetricPoint
	hours         []*types.MetricPoint
	days          []*types.MetricPoint
	routeMinutes  map[string][]*types.MetricPoint
	routeStats    map[string]*types.RouteStats
	lastHourBase  int64
	lastDayBase   int64
}

// NewAggregator creates an aggregator and hydrates its deques and route
// stats from the store.
func NewAggregator(ctx context.Context, store storage.Store) (*Aggregator, error) {
	a := &Aggregator{
		store:        store,
		clock:        time.Now,
		routes:       make(map[string]*counters),
		routeMinutes: make(map[string][]*types.MetricPoint),
		routeStats:   make(map[string]*types.RouteStats),
	}
	if err := a.hydrate(ctx); err != nil {
		return nil, err
	}
	return a, nil
}

func (a *Aggregator) hydrate(ctx context.Context) error {
	var err error
	if a.minutes, err = a.store.GetMinuteMetrics(ctx, minuteRetention); err != nil {
		return err
	}
	if a.hours, err = a.store.GetHourMetrics(ctx, hourRetention); err != nil {
		return err
	}
	if a.days, err = a.store.GetDayMetrics(ctx, dayRetention); err != nil {
		return err
	}
	if n := len(a.minutes); n > 0 {
		last := a.minutes[n-1].Timestamp
		a.lastHourBase = last - last%hourMillis
		a.lastDayBase = last - last%dayMillis
	}

	stats, err := a.store.GetAllRouteStats(ctx)
	if err != nil {
		return err
	}
	for _, s := range stats {
		a.routeStats[s.AETitle] = s
	}
	return nil
}

// Start launches the rollup task. The supervisor logs panics and keeps the
// cadence; it exits when ctx is cancelled.
func (a *Aggregator) Start(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(time.Minute)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				a.safeRoll(ctx)
			}
		}
	}()
}

func (a *Aggregator) safeRoll(ctx context.Context) {
	defer func() {
		if r := recover(); r != nil {
			log.Printf("metrics: rollup panicked: %v", r)
		}
	}()
	a.roll(ctx, a.clock())
}

func (a *Aggregator) routeCounters(aeTitle string) *counters {
	a.routesMu.Lock()
	defer a.routesMu.Unlock()
	c, ok := a.routes[aeTitle]
	if !ok {
		c = &counters{}
		a.routes[aeTitle] = c
	}
	return c
}

// RecordTransferReceived notes an inbound study. Received counts feed the
// activity gauge only; the transfers column counts completed outcomes.
func (a *Aggregator) RecordTransferReceived(aeTitle string) {
	a.global.received.Add(1)
	a.routeCounters(aeTitle).received.Add(1)
}

// RecordTransferSuccess counts a fully forwarded transfer.
func (a *Aggregator) RecordTransferSuccess(aeTitle string, bytes int64, files int) {
	a.global.transfers.Add(1)
	a.global.successful.Add(1)
	a.global.bytes.Add(bytes)
	a.global.files.Add(int64(files))

	rc := a.routeCounters(aeTitle)
	rc.transfers.Add(1)
	rc.successful.Add(1)
	rc.bytes.Add(bytes)
	rc.files.Add(int64(files))

	a.bumpRouteStats(aeTitle, true, bytes, files)
}

// RecordTransferFailed counts a transfer that ended FAILED or PARTIAL.
func (a *Aggregator) RecordTransferFailed(aeTitle string) {
	a.global.transfers.Add(1)
	a.global.failed.Add(1)

	rc := a.routeCounters(aeTitle)
	rc.transfers.Add(1)
	rc.failed.Add(1)

	a.bumpRouteStats(aeTitle, false, 0, 0)
}

// TransferReceived, TransferSucceeded, and TransferFailed adapt the
// aggregator to the tracker's observer contract.
func (a *Aggregator) TransferReceived(aeTitle string) { a.RecordTransferReceived(aeTitle) }

func (a *Aggregator) TransferSucceeded(aeTitle string, bytes int64, files int) {
	a.RecordTransferSuccess(aeTitle, bytes, files)
}

func (a *Aggregator) TransferFailed(aeTitle string) { a.RecordTransferFailed(aeTitle) }

func (a *Aggregator) bumpRouteStats(aeTitle string, success bool, bytes int64, files int) {
	a.mu.Lock()
	s, ok := a.routeStats[aeTitle]
	if !ok {
		s = &types.RouteStats{AETitle: aeTitle}
		a.routeStats[aeTitle] = s
	}
	s.TotalTransfers++
	if success {
		s.SuccessfulTransfers++
		s.TotalBytes += bytes
		s.TotalFiles += int64(files)
	} else {
		s.FailedTransfers++
	}
	a.mu.Unlock()

	ctx := context.Background()
	err := storage.RetryTransient(ctx, func() error {
		return a.store.UpdateRouteStats(ctx, aeTitle, success, bytes, files)
	})
	if err != nil {
		log.Printf("metrics: persist route stats for %s: %v", aeTitle, err)
	}
}

// roll closes the just-elapsed minute: the counters are drained into a
// point stamped at the previous minute boundary, hour and day boundary
// crossings are detected, and everything is persisted.
func (a *Aggregator) roll(ctx context.Context, now time.Time) {
	nowMillis := now.UnixMilli()
	minuteBase := nowMillis - nowMillis%minuteMillis - minuteMillis

	point := a.global.drain(minuteBase)

	routePoints := make(map[string]*types.MetricPoint)
	a.routesMu.Lock()
	for ae, rc := range a.routes {
		routePoints[ae] = rc.drain(minuteBase)
	}
	a.routesMu.Unlock()

	a.mu.Lock()
	a.minutes = appendPruned(a.minutes, point, minuteRetention)
	for ae, p := range routePoints {
		a.routeMinutes[ae] = appendPruned(a.routeMinutes[ae], p, minuteRetention)
	}

	hourBase := minuteBase - minuteBase%hourMillis
	dayBase := minuteBase - minuteBase%dayMillis

	var hourPoint, dayPoint *types.MetricPoint
	if a.lastHourBase != 0 && hourBase != a.lastHourBase {
		hourPoint = sumWithin(a.minutes, a.lastHourBase, hourMillis)
		a.hours = appendPruned(a.hours, hourPoint, hourRetention)
	}
	if a.lastDayBase != 0 && dayBase != a.lastDayBase {
		dayPoint = sumWithin(a.hours, a.lastDayBase, dayMillis)
		a.days = appendPruned(a.days, dayPoint, dayRetention)
	}
	a.lastHourBase = hourBase
	a.lastDayBase = dayBase
	a.mu.Unlock()

	if err := a.store.RecordMinuteMetric(ctx, point); err != nil {
		log.Printf("metrics: persist minute point: %v", err)
	}
	if hourPoint != nil {
		if err := a.store.RecordHourMetric(ctx, hourPoint); err != nil {
			log.Printf("metrics: persist hour point: %v", err)
		}
		if err := a.store.CleanupOldMetrics(ctx); err != nil {
			log.Printf("metrics: cleanup old metrics: %v", err)
		}
	}
	if dayPoint != nil {
		if err := a.store.RecordDayMetric(ctx, dayPoint); err != nil {
			log.Printf("metrics: persist day point: %v", err)
		}
	}
}

// appendPruned appends p and trims the deque to its retention window.
func appendPruned(deque []*types.MetricPoint, p *types.MetricPoint, keep int) []*types.MetricPoint {
	deque = append(deque, p)
	if len(deque) > keep {
		deque = deque[len(deque)-keep:]
	}
	return deque
}

// sumWithin sums all points with timestamps inside [base, base+width) into
// one point stamped at base.
func sumWithin(points []*types.MetricPoint, base, width int64) *types.MetricPoint {
	out := &types.MetricPoint{Timestamp: base}
	for _, p := range points {
		if p.Timestamp >= base && p.Timestamp < base+width {
			out.Transfers += p.Transfers
			out.Successful += p.Successful
			out.Failed += p.Failed
			out.Bytes += p.Bytes
			out.Files += p.Files
		}
	}
	return out
}

// GetMinuteMetrics returns up to limit minute points, oldest first.
func (a *Aggregator) GetMinuteMetrics(limit int) []*types.MetricPoint {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return tail(a.minutes, limit)
}

// GetHourMetrics returns up to limit hour points, oldest first.
func (a *Aggregator) GetHourMetrics(limit int) []*types.MetricPoint {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return tail(a.hours, limit)
}

// GetDayMetrics returns up to limit day points, oldest first.
func (a *Aggregator) GetDayMetrics(limit int) []*types.MetricPoint {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return tail(a.days, limit)
}

// GetRouteMinuteMetrics returns up to limit minute points for one route.
func (a *Aggregator) GetRouteMinuteMetrics(aeTitle string, limit int) []*types.MetricPoint {
	a.mu.RLock()
	defer a.mu.RUnlock()
	return tail(a.routeMinutes[aeTitle], limit)
}

func tail(points []*types.MetricPoint, limit int) []*types.MetricPoint {
	if limit > 0 && len(points) > limit {
		points = points[len(points)-limit:]
	}
	out := make([]*types.MetricPoint, len(points))
	copy(out, points)
	return out
}

// CurrentThroughput is transfers per minute averaged over the last five
// minute points.
func (a *Aggregator) CurrentThroughput() float64 {
	return a.windowAverage(func(p *types.MetricPoint) int64 { return p.Transfers })
}

// CurrentBytesPerMinute is bytes per minute averaged over the same window.
func (a *Aggregator) CurrentBytesPerMinute() float64 {
	return a.windowAverage(func(p *types.MetricPoint) int64 { return p.Bytes })
}

func (a *Aggregator) windowAverage(field func(*types.MetricPoint) int64) float64 {
	a.mu.RLock()
	defer a.mu.RUnlock()
	points := a.minutes
	if len(points) > throughputWindow {
		points = points[len(points)-throughputWindow:]
	}
	if len(points) == 0 {
		return 0
	}
	var total int64
	for _, p := range points {
		total += field(p)
	}
	return float64(total) / float64(len(points))
}

// RouteSummaries returns the cumulative per-route stats, a snapshot.
func (a *Aggregator) RouteSummaries() []*types.RouteStats {
	a.mu.RLock()
	defer a.mu.RUnlock()
	out := make([]*types.RouteStats, 0, len(a.routeStats))
	for _, s := range a.routeStats {
		cp := *s
		out = append(out, &cp)
	}
	return out
}
