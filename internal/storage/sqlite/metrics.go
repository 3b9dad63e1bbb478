package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/radgate/radgate/internal/types"
)

// metricTables maps a resolution name to its table and bucket width.
var metricTables = map[string]struct {
	table string
	width time.Duration
	keep  int
}{
	"minute": {"metrics_minute", time.Minute, MinuteRetention},
	"hour":   {"metrics_hour", time.Hour, HourRetention},
	"day":    {"metrics_day", 24 * time.Hour, DayRetention},
}

func (s *Store) recordMetric(ctx context.Context, res string, p *types.MetricPoint) error {
	mt := metricTables[res]
	// Replays of the same bucket (restart inside a minute) accumulate.
	_, err := s.db.ExecContext(ctx, fmt.Sprintf(`
		INSERT INTO %s (timestamp, transfers, successful, failed, bytes, files)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (timestamp) DO UPDATE SET
			transfers = %[1]s.transfers + excluded.transfers,
			successful = %[1]s.successful + excluded.successful,
			failed = %[1]s.failed + excluded.failed,
			bytes = %[1]s.bytes + excluded.bytes,
			files = %[1]s.files + excluded.files`, mt.table),
		p.Timestamp, p.Transfers, p.Successful, p.Failed, p.Bytes, p.Files)
	return wrapDBError("record "+res+" metric", err)
}

func (s *Store) getMetrics(ctx context.Context, res string, limit int) ([]*types.MetricPoint, error) {
	mt := metricTables[res]
	rows, err := s.db.QueryContext(ctx, fmt.Sprintf(`
		SELECT timestamp, transfers, successful, failed, bytes, files
		FROM %s ORDER BY timestamp DESC LIMIT ?`, mt.table), limit)
	if err != nil {
		return nil, wrapDBError("get "+res+" metrics", err)
	}
	defer rows.Close()

	var out []*types.MetricPoint
	for rows.Next() {
		p := &types.MetricPoint{}
		if err := rows.Scan(&p.Timestamp, &p.Transfers, &p.Successful, &p.Failed, &p.Bytes, &p.Files); err != nil {
			return nil, wrapDBError("scan metric", err)
		}
		out = append(out, p)
	}
	if err := rows.Err(); err != nil {
		return nil, wrapDBError("get "+res+" metrics", err)
	}
	// Oldest first for consumers plotting a series.
	for i, j := 0, len(out)-1; i < j; i, j = i+1, j-1 {
		out[i], out[j] = out[j], out[i]
	}
	return out, nil
}

// RecordMinuteMetric appends a minute-resolution point.
func (s *Store) RecordMinuteMetric(ctx context.Context, p *types.MetricPoint) error {
	return s.recordMetric(ctx, "minute", p)
}

// RecordHourMetric appends an hour-resolution point.
func (s *Store) RecordHourMetric(ctx context.Context, p *types.MetricPoint) error {
	return s.recordMetric(ctx, "hour", p)
}

// RecordDayMetric appends a day-resolution point.
func (s *Store) RecordDayMetric(ctx context.Context, p *types.MetricPoint) error {
	return s.recordMetric(ctx, "day", p)
}

// GetMinuteMetrics returns up to limit most recent minute points, oldest first.
func (s *Store) GetMinuteMetrics(ctx context.Context, limit int) ([]*types.MetricPoint, error) {
	return s.getMetrics(ctx, "minute", limit)
}

// GetHourMetrics returns up to limit most recent hour points, oldest first.
func (s *Store) GetHourMetrics(ctx context.Context, limit int) ([]*types.MetricPoint, error) {
	return s.getMetrics(ctx, "hour", limit)
}

// GetDayMetrics returns up to limit most recent day points, oldest first.
func (s *Store) GetDayMetrics(ctx context.Context, limit int) ([]*types.MetricPoint, error) {
	return s.getMetrics(ctx, "day", limit)
}

// CleanupOldMetrics deletes rows older than each resolution's retention
// window, measured from the newest bucket boundary.
func (s *Store) CleanupOldMetrics(ctx context.Context) error {
	now := time.Now()
	for res, mt := range metricTables {
		cutoff := now.Add(-time.Duration(mt.keep) * mt.width).UnixMilli()
		if _, err := s.db.ExecContext(ctx,
			fmt.Sprintf(`DELETE FROM %s WHERE timestamp < ?`, mt.table), cutoff); err != nil {
			return wrapDBError("cleanup "+res+" metrics", err)
		}
	}
	return nil
}
