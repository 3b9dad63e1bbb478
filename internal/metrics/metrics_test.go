package metrics

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/radgate/radgate/internal/storage"
	"github.com/radgate/radgate/internal/storage/sqlite"
)

func setupAggregator(t *testing.T) (*Aggregator, storage.Store) {
	t.Helper()
	ctx := context.Background()
	store, err := sqlite.New(ctx, filepath.Join(t.TempDir(), "metrics.db"))
	if err != nil {
		t.Fatalf("open store: %v", err)
	}
	t.Cleanup(func() { store.Close() })

	a, err := NewAggregator(ctx, store)
	if err != nil {
		t.Fatalf("new aggregator: %v", err)
	}
	return a, store
}

func TestMinuteRollup(t *testing.T) {
	a, store := setupAggregator(t)
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		a.RecordTransferSuccess("RTE_A", 1000, 10)
	}
	a.RecordTransferFailed("RTE_A")

	now := time.Date(2024, 3, 7, 14, 5, 12, 0, time.UTC)
	a.roll(ctx, now)

	points := a.GetMinuteMetrics(10)
	if len(points) != 1 {
		t.Fatalf("points = %d", len(points))
	}
	p := points[0]
	if p.Transfers != 4 || p.Successful != 3 || p.Failed != 1 || p.Bytes != 3000 || p.Files != 30 {
		t.Errorf("point = %+v", p)
	}
	wantTS := time.Date(2024, 3, 7, 14, 4, 0, 0, time.UTC).UnixMilli()
	if p.Timestamp != wantTS {
		t.Errorf("timestamp = %d, want previous minute boundary %d", p.Timestamp, wantTS)
	}
	if p.Timestamp%minuteMillis != 0 {
		t.Errorf("timestamp %d not minute-aligned", p.Timestamp)
	}

	persisted, err := store.GetMinuteMetrics(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(persisted) != 1 || persisted[0].Transfers != 4 {
		t.Errorf("persisted = %+v", persisted)
	}
}

func TestZeroRollStillEmitsPoint(t *testing.T) {
	a, _ := setupAggregator(t)
	a.roll(context.Background(), time.Now())

	points := a.GetMinuteMetrics(1)
	if len(points) != 1 {
		t.Fatalf("points = %d", len(points))
	}
	p := points[0]
	if p.Transfers != 0 || p.Bytes != 0 {
		t.Errorf("point = %+v, want all-zero fields", p)
	}
}

func TestHourBoundaryRollup(t *testing.T) {
	a, store := setupAggregator(t)
	ctx := context.Background()

	// Two minutes inside hour 14. Points are stamped at the previous minute
	// boundary, so the roll whose point lands at 15:00 closes hour 14.
	a.RecordTransferSuccess("RTE_A", 100, 1)
	a.roll(ctx, time.Date(2024, 3, 7, 14, 58, 1, 0, time.UTC))
	a.RecordTransferSuccess("RTE_A", 200, 2)
	a.roll(ctx, time.Date(2024, 3, 7, 14, 59, 1, 0, time.UTC))
	a.roll(ctx, time.Date(2024, 3, 7, 15, 0, 30, 0, time.UTC))
	a.roll(ctx, time.Date(2024, 3, 7, 15, 1, 30, 0, time.UTC))

	hours := a.GetHourMetrics(10)
	if len(hours) != 1 {
		t.Fatalf("hour points = %d", len(hours))
	}
	h := hours[0]
	if h.Timestamp%hourMillis != 0 {
		t.Errorf("hour timestamp %d not hour-aligned", h.Timestamp)
	}
	if h.Transfers != 2 || h.Bytes != 300 || h.Files != 3 {
		t.Errorf("hour point = %+v", h)
	}

	persisted, err := store.GetHourMetrics(ctx, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(persisted) != 1 {
		t.Errorf("persisted hour points = %d", len(persisted))
	}
}

func TestDayBoundaryRollup(t *testing.T) {
	a, _ := setupAggregator(t)
	ctx := context.Background()

	a.RecordTransferSuccess("RTE_A", 500, 5)
	a.roll(ctx, time.Date(2024, 3, 7, 23, 59, 5, 0, time.UTC))
	a.roll(ctx, time.Date(2024, 3, 8, 0, 0, 35, 0, time.UTC))
	a.roll(ctx, time.Date(2024, 3, 8, 0, 1, 35, 0, time.UTC))

	days := a.GetDayMetrics(10)
	if len(days) != 1 {
		t.Fatalf("day points = %d", len(days))
	}
	d := days[0]
	if d.Timestamp%dayMillis != 0 {
		t.Errorf("day timestamp %d not day-aligned", d.Timestamp)
	}
	if d.Transfers != 1 || d.Bytes != 500 {
		t.Errorf("day point = %+v", d)
	}
}

func TestMinuteRetentionPruning(t *testing.T) {
	a, _ := setupAggregator(t)
	ctx := context.Background()

	start := time.Date(2024, 3, 7, 10, 0, 1, 0, time.UTC)
	for i := 0; i < minuteRetention+5; i++ {
		a.roll(ctx, start.Add(time.Duration(i)*time.Minute))
	}
	if n := len(a.GetMinuteMetrics(0)); n != minuteRetention {
		t.Errorf("minute deque = %d, want %d", n, minuteRetention)
	}
}

func TestThroughputWindow(t *testing.T) {
	a, _ := setupAggregator(t)
	ctx := context.Background()

	start := time.Date(2024, 3, 7, 10, 0, 1, 0, time.UTC)
	for i := 0; i < 5; i++ {
		a.RecordTransferSuccess("RTE_A", 600, 1)
		a.RecordTransferSuccess("RTE_A", 600, 1)
		a.roll(ctx, start.Add(time.Duration(i)*time.Minute))
	}
	if got := a.CurrentThroughput(); got != 2 {
		t.Errorf("throughput = %v, want 2", got)
	}
	if got := a.CurrentBytesPerMinute(); got != 1200 {
		t.Errorf("bytes/min = %v, want 1200", got)
	}
}

func TestRouteMinuteMetricsAndSummaries(t *testing.T) {
	a, store := setupAggregator(t)
	ctx := context.Background()

	a.RecordTransferSuccess("RTE_A", 100, 1)
	a.RecordTransferFailed("RTE_B")
	a.roll(ctx, time.Now())

	pa := a.GetRouteMinuteMetrics("RTE_A", 10)
	if len(pa) != 1 || pa[0].Successful != 1 {
		t.Errorf("RTE_A points = %+v", pa)
	}
	pb := a.GetRouteMinuteMetrics("RTE_B", 10)
	if len(pb) != 1 || pb[0].Failed != 1 {
		t.Errorf("RTE_B points = %+v", pb)
	}

	summaries := a.RouteSummaries()
	if len(summaries) != 2 {
		t.Fatalf("summaries = %+v", summaries)
	}

	// Cumulative stats are persisted as they change.
	rs, err := store.GetRouteStats(ctx, "RTE_A")
	if err != nil {
		t.Fatal(err)
	}
	if rs.SuccessfulTransfers != 1 || rs.TotalBytes != 100 {
		t.Errorf("persisted route stats = %+v", rs)
	}
}

func TestHydrationFromStore(t *testing.T) {
	ctx := context.Background()
	dbPath := filepath.Join(t.TempDir(), "metrics.db")
	store, err := sqlite.New(ctx, dbPath)
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { store.Close() })

	first, err := NewAggregator(ctx, store)
	if err != nil {
		t.Fatal(err)
	}
	first.RecordTransferSuccess("RTE_A", 100, 1)
	first.roll(ctx, time.Date(2024, 3, 7, 10, 0, 1, 0, time.UTC))

	second, err := NewAggregator(ctx, store)
	if err != nil {
		t.Fatal(err)
	}
	points := second.GetMinuteMetrics(0)
	if len(points) != 1 || points[0].Successful != 1 {
		t.Errorf("hydrated points = %+v", points)
	}
	summaries := second.RouteSummaries()
	if len(summaries) != 1 || summaries[0].TotalTransfers != 1 {
		t.Errorf("hydrated summaries = %+v", summaries)
	}
}
