package database

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
)

// saveSnapshotPostgreSQLCopy writes the snapshot header with a plain INSERT
// and streams its rows with COPY, all inside one native pgx transaction on a
// dedicated connection.
func (db *Database) saveSnapshotPostgreSQLCopy(ctx context.Context, snap Snapshot, header string, encoded []string) error {
	conn, err := db.DB.Conn(ctx)
	if err != nil {
		return fmt.Errorf("open postgres connection: %w", err)
	}
	defer conn.Close()

	rows := make([][]any, 0, len(encoded))
	for i, cells := range encoded {
		rows = append(rows, []any{snap.ID, int32(i), cells})
	}

	return conn.Raw(func(driverConn any) error {
		direct, ok := driverConn.(*stdlib.Conn)
		if !ok {
			return fmt.Errorf("unexpected postgres driver %T", driverConn)
		}
		pg := direct.Conn()

		tx, err := pg.Begin(ctx)
		if err != nil {
			return fmt.Errorf("begin snapshot tx: %w", err)
		}
		defer tx.Rollback(ctx)

		var newest *int64
		if err := tx.QueryRow(ctx, `SELECT MAX(fetched_at) FROM snapshots`).Scan(&newest); err != nil {
			return fmt.Errorf("read newest snapshot time: %w", err)
		}
		if newest != nil {
			snap.FetchedAt = afterNewest(snap.FetchedAt, *newest, true)
		}

		if _, err := tx.Exec(ctx,
			`INSERT INTO snapshots (id, source, fetched_at, row_count, header, digest) VALUES ($1, $2, $3, $4, $5, $6)`,
			snap.ID, snap.Source, snap.FetchedAt, snap.RowCount, header, snap.Digest); err != nil {
			return fmt.Errorf("insert snapshot: %w", err)
		}
		if _, err := tx.CopyFrom(ctx,
			pgx.Identifier{"snapshot_rows"},
			[]string{"snapshot_id", "row_index", "cells"},
			pgx.CopyFromRows(rows),
		); err != nil {
			return fmt.Errorf("copy snapshot rows: %w", err)
		}
		if err := tx.Commit(ctx); err != nil {
			return fmt.Errorf("commit snapshot: %w", err)
		}
		return nil
	})
}
