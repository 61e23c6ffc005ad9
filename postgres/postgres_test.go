package postgres_test

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/pilosa/stardwh"
	"github.com/pilosa/stardwh/mock"
	"github.com/pilosa/stardwh/postgres"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/require"
)

// fakeDB hands out fakeTxs and remembers them.
type fakeDB struct {
	txs []*fakeTx
	// countDelta is added to the true row count, to simulate lost rows.
	countDelta int64
	failExec   string
}

func (db *fakeDB) Begin(ctx context.Context) (pgx.Tx, error) {
	tx := &fakeTx{db: db}
	db.txs = append(db.txs, tx)
	return tx, nil
}

type fakeTx struct {
	pgx.Tx
	db *fakeDB

	execs      []string
	batches    [][]*pgx.QueuedQuery
	copied     [][]any
	copyCols   []string
	committed  bool
	rolledBack bool
}

func (tx *fakeTx) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	if tx.db.failExec != "" && strings.HasPrefix(sql, tx.db.failExec) {
		return pgconn.CommandTag{}, errors.New("permission denied")
	}
	tx.execs = append(tx.execs, sql)
	return pgconn.CommandTag{}, nil
}

func (tx *fakeTx) SendBatch(ctx context.Context, b *pgx.Batch) pgx.BatchResults {
	tx.batches = append(tx.batches, b.QueuedQueries)
	return fakeResults{}
}

func (tx *fakeTx) CopyFrom(ctx context.Context, table pgx.Identifier, cols []string, src pgx.CopyFromSource) (int64, error) {
	tx.copyCols = cols
	for src.Next() {
		vals, err := src.Values()
		if err != nil {
			return 0, err
		}
		tx.copied = append(tx.copied, vals)
	}
	return int64(len(tx.copied)), src.Err()
}

func (tx *fakeTx) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	n := int64(len(tx.copied))
	for _, b := range tx.batches {
		n += int64(len(b))
	}
	return fakeRow{n: n + tx.db.countDelta}
}

func (tx *fakeTx) Commit(ctx context.Context) error {
	tx.committed = true
	return nil
}

func (tx *fakeTx) Rollback(ctx context.Context) error {
	tx.rolledBack = true
	return nil
}

type fakeResults struct {
	pgx.BatchResults
}

func (fakeResults) Close() error { return nil }

type fakeRow struct {
	n      int64
	exists bool
}

func (r fakeRow) Scan(dest ...any) error {
	switch d := dest[0].(type) {
	case *int64:
		*d = r.n
	case *bool:
		*d = r.exists
	}
	return nil
}

func dateTable() *stardwh.Table {
	d := time.Date(2021, 1, 1, 0, 0, 0, 0, time.UTC)
	return stardwh.DateTable([]stardwh.DateDim{
		stardwh.NewDateDim(1, d),
		stardwh.NewDateDim(2, d.AddDate(0, 0, 1)),
		stardwh.NewDateDim(3, d.AddDate(0, 0, 2)),
	})
}

func factTable() *stardwh.Table {
	one := uint64(1)
	return stardwh.FactTable([]stardwh.Fact{
		{ListingID: &one, LocationID: &one, DateID: 1, DailyPrice: decimal.NewNullDecimal(decimal.RequireFromString("120.50")), DefaultPrice: decimal.NewNullDecimal(decimal.NewFromInt(110)), Occupied: 1},
		{DateID: 2},
	}, stardwh.LocationSurrogate)
}

func TestCreateTableSQL(t *testing.T) {
	sql, err := postgres.CreateTableSQL(stardwh.ListingTable(nil))
	require.NoError(t, err)
	require.Equal(t, `CREATE TABLE "dim_listing" ("listing_id_surrogate" BIGINT PRIMARY KEY, "ListingID_BK" TEXT NOT NULL, "name" TEXT NOT NULL, "property_type" TEXT NOT NULL, "room_type" TEXT NOT NULL, "host" TEXT NOT NULL, "description" TEXT NOT NULL)`, sql)

	sql, err = postgres.CreateTableSQL(factTable())
	require.NoError(t, err)
	require.Contains(t, sql, `"location_id" BIGINT,`)
	require.Contains(t, sql, `"daily_price" NUMERIC,`)
	require.Contains(t, sql, `"occupied_flag" SMALLINT NOT NULL`)

	_, err = postgres.CreateTableSQL(&stardwh.Table{Name: "x", Columns: []stardwh.Column{{Name: "c", Type: stardwh.ColumnType(99)}}})
	require.Error(t, err)
}

func TestInsertSQL(t *testing.T) {
	require.Equal(t,
		`INSERT INTO "dim_date" ("date_id", "full_date", "day", "month", "quarter", "year", "week", "season") VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		postgres.InsertSQL(dateTable()))
}

func TestLoadChunks(t *testing.T) {
	db := &fakeDB{}
	stats := &mock.RecordingStatter{}
	l := postgres.NewLoader(db, postgres.OptChunkSize(2), postgres.OptStatter(stats))

	require.NoError(t, l.Load(context.Background(), dateTable()))
	require.Len(t, db.txs, 1)
	tx := db.txs[0]
	require.True(t, tx.committed)
	require.False(t, tx.rolledBack)
	require.Equal(t, `DROP TABLE IF EXISTS "dim_date"`, tx.execs[0])
	require.True(t, strings.HasPrefix(tx.execs[1], `CREATE TABLE "dim_date"`))
	require.Len(t, tx.batches, 2)
	require.Len(t, tx.batches[0], 2)
	require.Len(t, tx.batches[1], 1)
	require.Equal(t, int64(3), tx.batches[1][0].Arguments[0])
	require.Equal(t, "Winter", tx.batches[1][0].Arguments[7])
	require.Equal(t, int64(3), stats.Counts["load.dim_date"])
	require.Equal(t, float64(3), stats.Gauges["load.dim_date.total"])
}

func TestCopyEncodesDecimals(t *testing.T) {
	db := &fakeDB{}
	l := postgres.NewLoader(db)
	require.NoError(t, l.Copy(context.Background(), factTable()))

	tx := db.txs[0]
	require.True(t, tx.committed)
	require.Equal(t, []string{"listing_id", "location_id", "date_id", "daily_price", "default_price", "occupied_flag"}, tx.copyCols)
	require.Len(t, tx.copied, 2)

	daily, ok := tx.copied[0][3].(pgtype.Numeric)
	require.True(t, ok, "got %T", tx.copied[0][3])
	require.True(t, daily.Valid)
	require.Equal(t, "12050", daily.Int.String())
	require.Equal(t, int32(-2), daily.Exp)

	require.Nil(t, tx.copied[1][0], "unresolved listing")
	require.Nil(t, tx.copied[1][3], "null price")
	require.Equal(t, int16(0), tx.copied[1][5])
}

func TestLoadRollsBack(t *testing.T) {
	t.Run("count mismatch", func(t *testing.T) {
		db := &fakeDB{countDelta: -1}
		err := postgres.NewLoader(db).Load(context.Background(), dateTable())
		require.Error(t, err)
		require.Contains(t, err.Error(), "holds 2 rows after loading 3")
		require.True(t, db.txs[0].rolledBack)
		require.False(t, db.txs[0].committed)
	})
	t.Run("create fails", func(t *testing.T) {
		db := &fakeDB{failExec: "CREATE TABLE"}
		err := postgres.NewLoader(db).Copy(context.Background(), factTable())
		require.Error(t, err)
		require.Contains(t, err.Error(), "creating table")
		require.True(t, db.txs[0].rolledBack)
		require.Empty(t, db.txs[0].copied)
	})
}

func TestLoadAll(t *testing.T) {
	db := &fakeDB{}
	tables := []*stardwh.Table{dateTable(), factTable()}
	require.NoError(t, postgres.NewLoader(db).LoadAll(context.Background(), tables, stardwh.TableFact))
	require.Len(t, db.txs, 2)
	require.Len(t, db.txs[0].batches, 1, "dimension uses batches")
	require.Empty(t, db.txs[0].copied)
	require.Len(t, db.txs[1].copied, 2, "fact table uses copy")
	require.Empty(t, db.txs[1].batches)

	db = &fakeDB{failExec: "DROP TABLE"}
	require.Error(t, postgres.NewLoader(db).LoadAll(context.Background(), tables, stardwh.TableFact))
	require.Len(t, db.txs, 1, "stops at the first failure")
}

type fakeQuerier struct {
	exists bool
	execs  []string
}

func (q *fakeQuerier) Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error) {
	q.execs = append(q.execs, sql)
	return pgconn.CommandTag{}, nil
}

func (q *fakeQuerier) QueryRow(ctx context.Context, sql string, args ...any) pgx.Row {
	return fakeRow{exists: q.exists}
}

func TestCreateDatabase(t *testing.T) {
	q := &fakeQuerier{}
	logs := &mock.RecordingLogger{}
	require.NoError(t, postgres.CreateDatabase(context.Background(), q, "airbnb", logs))
	require.Equal(t, []string{`CREATE DATABASE "airbnb"`}, q.execs)

	q = &fakeQuerier{exists: true}
	require.NoError(t, postgres.CreateDatabase(context.Background(), q, "airbnb", nil))
	require.Empty(t, q.execs)
}
