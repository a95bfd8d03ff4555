package database

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"
)

func openTestDB(t *testing.T) (*Database, Config) {
	t.Helper()
	cfg := Config{DBType: "sqlite", DBPath: filepath.Join(t.TempDir(), "pocos.sqlite")}
	db, err := NewDatabase(cfg)
	require.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	require.NoError(t, db.InitSchema(cfg))
	return db, cfg
}

func saveSample(t *testing.T, db *Database, at int64, rows [][]string) Snapshot {
	t.Helper()
	header := []string{"Localidade", "Vazão_LH"}
	snap := Snapshot{
		ID:        uuid.NewString(),
		Source:    "file:test.csv",
		FetchedAt: at,
		Header:    header,
		Digest:    Digest(header, rows),
	}
	require.NoError(t, db.SaveSnapshot(context.Background(), snap, rows))
	snap.RowCount = len(rows)
	return snap
}

func TestDSN(t *testing.T) {
	t.Parallel()
	tests := []struct {
		cfg  Config
		want string
	}{
		{Config{DBType: "sqlite", Port: 8765}, "pocos-8765.sqlite"},
		{Config{DBType: " Genji ", DBPath: "/data/h.genji"}, "/data/h.genji"},
		{Config{DBType: "pgx", DBUser: "u", DBPass: "p", DBHost: "db", DBPort: 5432, DBName: "pocos"}, "postgres://u:p@db:5432/pocos?sslmode=prefer"},
		{Config{DBType: "pgx", DBConn: "postgres://x/y", DBHost: "ignored"}, "postgres://x/y"},
	}
	for _, tc := range tests {
		got, err := DSN(tc.cfg)
		if err != nil || got != tc.want {
			t.Errorf("DSN(%+v)=%q,%v want %q", tc.cfg, got, err, tc.want)
		}
	}
	if _, err := DSN(Config{DBType: "oracle"}); err == nil {
		t.Fatal("expected unsupported engine error")
	}
}

func TestPlaceholderGenerator(t *testing.T) {
	t.Parallel()
	pg := newPlaceholderGenerator("pgx")
	if a, b := pg(), pg(); a != "$1" || b != "$2" {
		t.Fatalf("pgx placeholders %q %q", a, b)
	}
	if q := newPlaceholderGenerator("sqlite")(); q != "?" {
		t.Fatalf("sqlite placeholder %q", q)
	}
}

func TestSnapshotRoundTrip(t *testing.T) {
	t.Parallel()
	db, _ := openTestDB(t)
	ctx := context.Background()

	_, err := db.LatestSnapshot(ctx)
	require.True(t, IsNoSnapshot(err), "empty history must report ErrNoSnapshot, got %v", err)

	rows := make([][]string, 0, 450)
	for i := 0; i < 450; i++ {
		rows = append(rows, []string{"Poço", "1200"})
	}
	rows[7] = []string{"Sítio \"Alto\"", ""}
	first := saveSample(t, db, 100, rows[:1])
	second := saveSample(t, db, 200, rows)

	snap, loaded, err := db.LoadLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, second.ID, snap.ID)
	assert.Equal(t, 450, snap.RowCount)
	assert.Equal(t, []string{"Localidade", "Vazão_LH"}, snap.Header)
	assert.Equal(t, time.UnixMilli(200), snap.Time())
	require.Len(t, loaded, 450)
	assert.Equal(t, rows[7], loaded[7])

	list, err := db.ListSnapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, second.ID, list[0].ID)
	assert.Equal(t, first.ID, list[1].ID)
	assert.Equal(t, first.Digest, list[1].Digest)

	got, err := db.GetSnapshot(ctx, first.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, got.RowCount)
	_, err = db.GetSnapshot(ctx, "missing")
	assert.True(t, IsNoSnapshot(err))
}

func TestSnapshotsSavedInSameMillisecond(t *testing.T) {
	t.Parallel()
	db, _ := openTestDB(t)
	ctx := context.Background()

	first := saveSample(t, db, 5000, [][]string{{"A", "1"}})
	second := saveSample(t, db, 5000, [][]string{{"B", "2"}})
	third := saveSample(t, db, 4000, [][]string{{"C", "3"}})

	list, err := db.ListSnapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 3)
	assert.Equal(t, []string{third.ID, second.ID, first.ID}, []string{list[0].ID, list[1].ID, list[2].ID})
	assert.Equal(t, []int64{5002, 5001, 5000}, []int64{list[0].FetchedAt, list[1].FetchedAt, list[2].FetchedAt})

	snap, rows, err := db.LoadLatest(ctx)
	require.NoError(t, err)
	assert.Equal(t, third.ID, snap.ID)
	assert.Equal(t, [][]string{{"C", "3"}}, rows)

	removed, err := db.PruneSnapshots(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, 2, removed)
	latest, err := db.LatestSnapshot(ctx)
	require.NoError(t, err)
	assert.Equal(t, third.ID, latest.ID)
}

func TestPruneSnapshots(t *testing.T) {
	t.Parallel()
	db, _ := openTestDB(t)
	ctx := context.Background()

	var ids []string
	for i := 0; i < 5; i++ {
		ids = append(ids, saveSample(t, db, int64(1000+i), [][]string{{"A", "1"}}).ID)
	}

	removed, err := db.PruneSnapshots(ctx, 2)
	require.NoError(t, err)
	assert.Equal(t, 3, removed)

	list, err := db.ListSnapshots(ctx, 10)
	require.NoError(t, err)
	require.Len(t, list, 2)
	assert.Equal(t, ids[4], list[0].ID)
	assert.Equal(t, ids[3], list[1].ID)

	gone, err := db.LoadSnapshotRows(ctx, ids[0])
	require.NoError(t, err)
	assert.Empty(t, gone)

	removed, err = db.PruneSnapshots(ctx, 0)
	require.NoError(t, err)
	assert.Zero(t, removed)
}

func TestStreamSnapshotRowsStopsOnCancel(t *testing.T) {
	t.Parallel()
	db, _ := openTestDB(t)
	rows := [][]string{{"a"}, {"b"}, {"c"}}
	snap := saveSample(t, db, 1, rows)

	ctx, cancel := context.WithCancel(context.Background())
	out, errs := db.StreamSnapshotRows(ctx, snap.ID)
	first := <-out
	assert.Equal(t, 0, first.Index)
	cancel()
	for range out {
	}
	// Either the stream finished before noticing, or it reports the cancel.
	if err := <-errs; err != nil {
		assert.ErrorIs(t, err, context.Canceled)
	}
}

func TestDigestChangesWithContent(t *testing.T) {
	t.Parallel()
	h := []string{"A"}
	a := Digest(h, [][]string{{"1"}})
	assert.Equal(t, a, Digest(h, [][]string{{"1"}}))
	assert.NotEqual(t, a, Digest(h, [][]string{{"2"}}))
	assert.NotEqual(t, Digest(h, [][]string{{"1", ""}}), Digest(h, [][]string{{"1"}, {""}}))
}

func TestEnsureIndexesAsync(t *testing.T) {
	t.Parallel()
	db, cfg := openTestDB(t)
	done := db.EnsureIndexesAsync(context.Background(), cfg, t.Logf)
	select {
	case <-done:
	case <-time.After(10 * time.Second):
		t.Fatal("index builder did not finish")
	}
	var n int
	require.NoError(t, db.DB.QueryRow(`SELECT COUNT(*) FROM sqlite_master WHERE type='index' AND name LIKE 'idx_snapshots_%'`).Scan(&n))
	assert.Equal(t, 2, n)
}
