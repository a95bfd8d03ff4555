package database

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"
)

// Snapshot describes one stored fetch of the sheet.
type Snapshot struct {
	ID        string   `json:"id"`
	Source    string   `json:"source"`
	FetchedAt int64    `json:"fetchedAt"` // UNIX milliseconds, strictly increasing
	RowCount  int      `json:"rowCount"`
	Header    []string `json:"header"`
	Digest    string   `json:"digest"`
}

// Time returns FetchedAt as a time.Time.
func (s Snapshot) Time() time.Time { return time.UnixMilli(s.FetchedAt) }

// SnapshotRow is one raw sheet row of a snapshot.
type SnapshotRow struct {
	Index int
	Cells []string
}

// Digest fingerprints a sheet so unchanged fetches can be recognised.
func Digest(header []string, rows [][]string) string {
	h := sha256.New()
	write := func(cells []string) {
		for _, c := range cells {
			h.Write([]byte(c))
			h.Write([]byte{0x1f})
		}
		h.Write([]byte{0x1e})
	}
	write(header)
	for _, r := range rows {
		write(r)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// afterNewest keeps fetched_at strictly increasing so that listing by it
// alone follows insertion order, even when two saves share a millisecond or
// the clock steps back.
func afterNewest(at, newest int64, ok bool) int64 {
	if ok && at <= newest {
		return newest + 1
	}
	return at
}

// rowBatch is how many rows go into one multi-row INSERT.
const rowBatch = 200

// SaveSnapshot stores the snapshot and its rows atomically.
func (db *Database) SaveSnapshot(ctx context.Context, snap Snapshot, rows [][]string) error {
	if db == nil || db.DB == nil {
		return fmt.Errorf("database unavailable")
	}
	if snap.ID == "" {
		return fmt.Errorf("snapshot id required")
	}
	header, err := json.Marshal(snap.Header)
	if err != nil {
		return fmt.Errorf("encode header: %w", err)
	}
	encoded := make([]string, len(rows))
	for i, r := range rows {
		b, err := json.Marshal(r)
		if err != nil {
			return fmt.Errorf("encode row %d: %w", i, err)
		}
		encoded[i] = string(b)
	}
	snap.RowCount = len(rows)

	if db.Driver == "pgx" {
		return db.saveSnapshotPostgreSQLCopy(ctx, snap, string(header), encoded)
	}

	tx, err := db.DB.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin snapshot tx: %w", err)
	}
	defer tx.Rollback()

	var newest sql.NullInt64
	if err := tx.QueryRowContext(ctx, `SELECT MAX(fetched_at) FROM snapshots`).Scan(&newest); err != nil {
		return fmt.Errorf("read newest snapshot time: %w", err)
	}
	snap.FetchedAt = afterNewest(snap.FetchedAt, newest.Int64, newest.Valid)

	if _, err := tx.ExecContext(ctx,
		`INSERT INTO snapshots (id, source, fetched_at, row_count, header, digest) VALUES (?, ?, ?, ?, ?, ?)`,
		snap.ID, snap.Source, snap.FetchedAt, snap.RowCount, string(header), snap.Digest); err != nil {
		return fmt.Errorf("insert snapshot: %w", err)
	}

	if db.Driver == "genji" {
		err = insertRowsOneByOne(ctx, tx, snap.ID, encoded)
	} else {
		err = insertRowsBatched(ctx, tx, snap.ID, encoded)
	}
	if err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("commit snapshot: %w", err)
	}
	return nil
}

func insertRowsOneByOne(ctx context.Context, tx *sql.Tx, id string, encoded []string) error {
	stmt, err := tx.PrepareContext(ctx, `INSERT INTO snapshot_rows (snapshot_id, row_index, cells) VALUES (?, ?, ?)`)
	if err != nil {
		return fmt.Errorf("prepare row insert: %w", err)
	}
	defer stmt.Close()
	for i, cells := range encoded {
		if _, err := stmt.ExecContext(ctx, id, i, cells); err != nil {
			return fmt.Errorf("insert row %d: %w", i, err)
		}
	}
	return nil
}

func insertRowsBatched(ctx context.Context, tx *sql.Tx, id string, encoded []string) error {
	for start := 0; start < len(encoded); start += rowBatch {
		end := start + rowBatch
		if end > len(encoded) {
			end = len(encoded)
		}
		var sb strings.Builder
		sb.WriteString(`INSERT INTO snapshot_rows (snapshot_id, row_index, cells) VALUES `)
		args := make([]any, 0, (end-start)*3)
		for i := start; i < end; i++ {
			if i > start {
				sb.WriteByte(',')
			}
			sb.WriteString("(?, ?, ?)")
			args = append(args, id, i, encoded[i])
		}
		if _, err := tx.ExecContext(ctx, sb.String(), args...); err != nil {
			return fmt.Errorf("insert rows %d-%d: %w", start, end-1, err)
		}
	}
	return nil
}

const snapshotColumns = `id, source, fetched_at, row_count, header, digest`

func scanSnapshot(scan func(...any) error) (Snapshot, error) {
	var (
		s      Snapshot
		header string
	)
	if err := scan(&s.ID, &s.Source, &s.FetchedAt, &s.RowCount, &header, &s.Digest); err != nil {
		return Snapshot{}, err
	}
	if err := json.Unmarshal([]byte(header), &s.Header); err != nil {
		return Snapshot{}, fmt.Errorf("decode header of %s: %w", s.ID, err)
	}
	return s, nil
}

// ListSnapshots returns the newest snapshots first, at most limit of them.
func (db *Database) ListSnapshots(ctx context.Context, limit int) ([]Snapshot, error) {
	if limit <= 0 {
		limit = 50
	}
	ph := newPlaceholderGenerator(db.Driver)
	query := fmt.Sprintf(`SELECT %s FROM snapshots ORDER BY fetched_at DESC LIMIT %s`, snapshotColumns, ph())
	rows, err := db.DB.QueryContext(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("list snapshots: %w", err)
	}
	defer rows.Close()

	out := make([]Snapshot, 0, limit)
	for rows.Next() {
		s, err := scanSnapshot(rows.Scan)
		if err != nil {
			return nil, fmt.Errorf("scan snapshot: %w", err)
		}
		out = append(out, s)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate snapshots: %w", err)
	}
	return out, nil
}

// LatestSnapshot returns the most recent snapshot or ErrNoSnapshot.
func (db *Database) LatestSnapshot(ctx context.Context) (Snapshot, error) {
	list, err := db.ListSnapshots(ctx, 1)
	if err != nil {
		return Snapshot{}, err
	}
	if len(list) == 0 {
		return Snapshot{}, ErrNoSnapshot
	}
	return list[0], nil
}

// GetSnapshot returns the metadata of snapshot id or ErrNoSnapshot.
func (db *Database) GetSnapshot(ctx context.Context, id string) (Snapshot, error) {
	ph := newPlaceholderGenerator(db.Driver)
	query := fmt.Sprintf(`SELECT %s FROM snapshots WHERE id = %s`, snapshotColumns, ph())
	s, err := scanSnapshot(db.DB.QueryRowContext(ctx, query, id).Scan)
	if errors.Is(err, sql.ErrNoRows) {
		return Snapshot{}, ErrNoSnapshot
	}
	if err != nil {
		return Snapshot{}, fmt.Errorf("get snapshot %s: %w", id, err)
	}
	return s, nil
}

// LoadSnapshotRows collects every row of a snapshot in sheet order.
func (db *Database) LoadSnapshotRows(ctx context.Context, id string) ([][]string, error) {
	rowsCh, errCh := db.StreamSnapshotRows(ctx, id)
	out := make([][]string, 0, 256)
	for r := range rowsCh {
		out = append(out, r.Cells)
	}
	if err := <-errCh; err != nil {
		return nil, err
	}
	return out, nil
}

// LoadLatest returns the newest snapshot together with its rows.
func (db *Database) LoadLatest(ctx context.Context) (Snapshot, [][]string, error) {
	snap, err := db.LatestSnapshot(ctx)
	if err != nil {
		return Snapshot{}, nil, err
	}
	rows, err := db.LoadSnapshotRows(ctx, snap.ID)
	if err != nil {
		return Snapshot{}, nil, err
	}
	return snap, rows, nil
}

// PruneSnapshots deletes everything but the keep newest snapshots and
// reports how many were removed. keep <= 0 disables pruning.
func (db *Database) PruneSnapshots(ctx context.Context, keep int) (int, error) {
	if keep <= 0 {
		return 0, nil
	}
	rows, err := db.DB.QueryContext(ctx, `SELECT id FROM snapshots ORDER BY fetched_at DESC`)
	if err != nil {
		return 0, fmt.Errorf("list snapshot ids: %w", err)
	}
	var stale []string
	seen := 0
	for rows.Next() {
		var id string
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return 0, fmt.Errorf("scan snapshot id: %w", err)
		}
		seen++
		if seen > keep {
			stale = append(stale, id)
		}
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return 0, fmt.Errorf("iterate snapshot ids: %w", err)
	}
	if len(stale) == 0 {
		return 0, nil
	}

	tx, err := db.DB.BeginTx(ctx, nil)
	if err != nil {
		return 0, fmt.Errorf("begin prune tx: %w", err)
	}
	defer tx.Rollback()
	for _, id := range stale {
		ph := newPlaceholderGenerator(db.Driver)
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM snapshot_rows WHERE snapshot_id = %s`, ph()), id); err != nil {
			return 0, fmt.Errorf("delete rows of %s: %w", id, err)
		}
		ph = newPlaceholderGenerator(db.Driver)
		if _, err := tx.ExecContext(ctx, fmt.Sprintf(`DELETE FROM snapshots WHERE id = %s`, ph()), id); err != nil {
			return 0, fmt.Errorf("delete snapshot %s: %w", id, err)
		}
	}
	if err := tx.Commit(); err != nil {
		return 0, fmt.Errorf("commit prune: %w", err)
	}
	return len(stale), nil
}

// IsNoSnapshot reports whether err means the history is empty.
func IsNoSnapshot(err error) bool { return errors.Is(err, ErrNoSnapshot) }
