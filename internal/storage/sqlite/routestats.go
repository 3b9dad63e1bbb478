package sqlite

import (
	"context"

	"github.com/radgate/radgate/internal/types"
)

// UpdateRouteStats atomically increments the cumulative counters for a route.
// The whole increment happens in one statement so concurrent callers cannot
// tear the row.
func (s *Store) UpdateRouteStats(ctx context.Context, aeTitle string, success bool, bytes int64, files int) error {
	okInc := 0
	failInc := 0
	if success {
		okInc = 1
	} else {
		failInc = 1
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO route_stats (ae_title, total_transfers, successful_transfers,
			failed_transfers, total_bytes, total_files)
		VALUES (?, 1, ?, ?, ?, ?)
		ON CONFLICT (ae_title) DO UPDATE SET
			total_transfers = route_stats.total_transfers + 1,
			successful_transfers = route_stats.successful_transfers + excluded.successful_transfers,
			failed_transfers = route_stats.failed_transfers + excluded.failed_transfers,
			total_bytes = route_stats.total_bytes + excluded.total_bytes,
			total_files = route_stats.total_files + excluded.total_files`,
		aeTitle, okInc, failInc, bytes, files)
	return wrapDBError("update route stats", err)
}

// GetRouteStats fetches cumulative counters for one route.
func (s *Store) GetRouteStats(ctx context.Context, aeTitle string) (*types.RouteStats, error) {
	row := s.db.QueryRowContext(ctx, `
		SELECT ae_title, total_transfers, successful_transfers,
		       failed_transfers, total_bytes, total_files
		FROM route_stats WHERE ae_title = ?`, aeTitle)
	rs := &types.RouteStats{}
	err := row.Scan(&rs.AETitle, &rs.TotalTransfers, &rs.SuccessfulTransfers,
		&rs.FailedTransfers, &rs.TotalBytes, &rs.TotalFiles)
	if err != nil {
		return nil, wrapDBError("get route stats", err)
	}
	return rs, nil
}

// GetAllRouteStats returns counters for every known route.
func (s *Store) GetAllRouteStats(ctx context.Context) ([]*types.RouteStats, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT ae_title, total_transfers, successful_transfers,
		       failed_transfers, total_bytes, total_files
		FROM route_stats ORDER BY ae_title`)
	if err != nil {
		return nil, wrapDBError("get all route stats", err)
	}
	defer rows.Close()

	var out []*types.RouteStats
	for rows.Next() {
		rs := &types.RouteStats{}
		if err := rows.Scan(&rs.AETitle, &rs.TotalTransfers, &rs.SuccessfulTransfers,
			&rs.FailedTransfers, &rs.TotalBytes, &rs.TotalFiles); err != nil {
			return nil, wrapDBError("scan route stats", err)
		}
		out = append(out, rs)
	}
	return out, wrapDBError("get all route stats", rows.Err())
}
