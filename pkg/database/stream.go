package database

import (
	"context"
	"encoding/json"
	"fmt"
)

// StreamSnapshotRows streams the rows of one snapshot in sheet order.
// Large sheets never sit fully in memory on this side of the channel, and
// the goroutine stops as soon as ctx is done.
func (db *Database) StreamSnapshotRows(ctx context.Context, id string) (<-chan SnapshotRow, <-chan error) {
	out := make(chan SnapshotRow)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		if db == nil || db.DB == nil {
			errCh <- fmt.Errorf("database unavailable")
			return
		}

		ph := newPlaceholderGenerator(db.Driver)
		query := fmt.Sprintf(`SELECT row_index, cells FROM snapshot_rows WHERE snapshot_id = %s ORDER BY row_index`, ph())
		rows, err := db.DB.QueryContext(ctx, query, id)
		if err != nil {
			errCh <- fmt.Errorf("query snapshot rows: %w", err)
			return
		}
		defer rows.Close()

		for rows.Next() {
			var (
				r     SnapshotRow
				cells string
			)
			if err := rows.Scan(&r.Index, &cells); err != nil {
				errCh <- fmt.Errorf("scan snapshot row: %w", err)
				return
			}
			if err := json.Unmarshal([]byte(cells), &r.Cells); err != nil {
				errCh <- fmt.Errorf("decode snapshot row %d: %w", r.Index, err)
				return
			}
			select {
			case out <- r:
			case <-ctx.Done():
				errCh <- ctx.Err()
				return
			}
		}

		if err := rows.Err(); err != nil {
			errCh <- fmt.Errorf("iterate snapshot rows: %w", err)
		}
	}()

	return out, errCh
}
