// Package postgres loads finished tables into PostgreSQL. Every table is
// replaced inside its own transaction, so a failed load leaves the previous
// contents of that table in place.
package postgres

import (
	"context"
	"fmt"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/pilosa/stardwh"
	"github.com/pkg/errors"
	"github.com/shopspring/decimal"
)

// DefaultChunkSize is the number of rows sent per batch.
const DefaultChunkSize = 50000

// maintenanceDB is connected to when the target database must be created.
const maintenanceDB = "postgres"

// Beginner starts transactions. *pgxpool.Pool and *pgx.Conn satisfy it.
type Beginner interface {
	Begin(ctx context.Context) (pgx.Tx, error)
}

// Loader replaces tables in the database behind db.
type Loader struct {
	db        Beginner
	chunkSize int
	log       stardwh.Logger
	stats     stardwh.Statter
}

// LoaderOption is a functional option for NewLoader.
type LoaderOption func(*Loader)

// OptChunkSize sets the number of rows per insert batch.
func OptChunkSize(n int) LoaderOption {
	return func(l *Loader) {
		if n > 0 {
			l.chunkSize = n
		}
	}
}

// OptLogger sets the Loader's logger.
func OptLogger(log stardwh.Logger) LoaderOption {
	return func(l *Loader) {
		l.log = log
	}
}

// OptStatter sets where load progress is reported.
func OptStatter(stats stardwh.Statter) LoaderOption {
	return func(l *Loader) {
		l.stats = stats
	}
}

// NewLoader returns a Loader writing through db.
func NewLoader(db Beginner, opts ...LoaderOption) *Loader {
	l := &Loader{
		db:        db,
		chunkSize: DefaultChunkSize,
		log:       stardwh.NopLogger{},
		stats:     stardwh.NopStatter{},
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Connect opens a connection pool for url and checks that it works.
func Connect(ctx context.Context, url string) (*pgxpool.Pool, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, errors.Wrap(err, "creating pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, errors.Wrap(err, "pinging database")
	}
	return pool, nil
}

// Querier is the part of a connection EnsureDatabase needs.
type Querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// EnsureDatabase creates the database named in url unless it exists. It
// connects to the maintenance database of the same server to do so.
func EnsureDatabase(ctx context.Context, url string, log stardwh.Logger) error {
	cfg, err := pgx.ParseConfig(url)
	if err != nil {
		return errors.Wrap(err, "parsing database url")
	}
	name := cfg.Database
	if name == "" || name == maintenanceDB {
		return nil
	}
	cfg.Database = maintenanceDB
	conn, err := pgx.ConnectConfig(ctx, cfg)
	if err != nil {
		return errors.Wrapf(err, "connecting to %s database", maintenanceDB)
	}
	defer conn.Close(ctx)
	return CreateDatabase(ctx, conn, name, log)
}

// CreateDatabase creates database name through q unless it exists.
func CreateDatabase(ctx context.Context, q Querier, name string, log stardwh.Logger) error {
	var exists bool
	err := q.QueryRow(ctx, "SELECT EXISTS (SELECT 1 FROM pg_database WHERE datname = $1)", name).Scan(&exists)
	if err != nil {
		return errors.Wrap(err, "checking for database")
	}
	if exists {
		return nil
	}
	if _, err := q.Exec(ctx, "CREATE DATABASE "+pgx.Identifier{name}.Sanitize()); err != nil {
		return errors.Wrapf(err, "creating database %s", name)
	}
	if log != nil {
		log.Printf("created database %s", name)
	}
	return nil
}

func columnType(t stardwh.ColumnType) (string, error) {
	switch t {
	case stardwh.BigInt:
		return "BIGINT", nil
	case stardwh.Integer:
		return "INTEGER", nil
	case stardwh.SmallInt:
		return "SMALLINT", nil
	case stardwh.Double:
		return "DOUBLE PRECISION", nil
	case stardwh.Numeric:
		return "NUMERIC", nil
	case stardwh.Text:
		return "TEXT", nil
	case stardwh.Date:
		return "DATE", nil
	default:
		return "", errors.Errorf("unknown column type %d", t)
	}
}

// CreateTableSQL renders the CREATE TABLE statement for t's columns.
func CreateTableSQL(t *stardwh.Table) (string, error) {
	defs := make([]string, 0, len(t.Columns))
	for _, c := range t.Columns {
		typ, err := columnType(c.Type)
		if err != nil {
			return "", errors.Wrapf(err, "column %s", c.Name)
		}
		def := pgx.Identifier{c.Name}.Sanitize() + " " + typ
		switch {
		case c.PrimaryKey:
			def += " PRIMARY KEY"
		case !c.Nullable:
			def += " NOT NULL"
		}
		defs = append(defs, def)
	}
	return fmt.Sprintf("CREATE TABLE %s (%s)", pgx.Identifier{t.Name}.Sanitize(), strings.Join(defs, ", ")), nil
}

// InsertSQL renders the parameterized single row INSERT for t.
func InsertSQL(t *stardwh.Table) string {
	cols := make([]string, len(t.Columns))
	params := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		cols[i] = pgx.Identifier{c.Name}.Sanitize()
		params[i] = fmt.Sprintf("$%d", i+1)
	}
	return fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", pgx.Identifier{t.Name}.Sanitize(), strings.Join(cols, ", "), strings.Join(params, ", "))
}

// encode converts table values pgx has no native encoding for.
func encode(row []interface{}) []interface{} {
	out := make([]interface{}, len(row))
	for i, v := range row {
		switch v := v.(type) {
		case decimal.NullDecimal:
			if !v.Valid {
				out[i] = nil
				continue
			}
			out[i] = numeric(v.Decimal)
		case decimal.Decimal:
			out[i] = numeric(v)
		default:
			out[i] = v
		}
	}
	return out
}

func numeric(d decimal.Decimal) pgtype.Numeric {
	return pgtype.Numeric{Int: d.Coefficient(), Exp: d.Exponent(), Valid: true}
}

// replace runs fill between recreating t and committing, then checks that
// the table holds exactly len(t.Rows) rows.
func (l *Loader) replace(ctx context.Context, t *stardwh.Table, fill func(pgx.Tx) error) (err error) {
	create, err := CreateTableSQL(t)
	if err != nil {
		return err
	}
	tx, err := l.db.Begin(ctx)
	if err != nil {
		return errors.Wrap(err, "beginning transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback(ctx)
		}
	}()

	ident := pgx.Identifier{t.Name}.Sanitize()
	if _, err = tx.Exec(ctx, "DROP TABLE IF EXISTS "+ident); err != nil {
		return errors.Wrap(err, "dropping table")
	}
	if _, err = tx.Exec(ctx, create); err != nil {
		return errors.Wrap(err, "creating table")
	}
	l.stats.Gauge("load."+t.Name+".total", float64(len(t.Rows)), 1)
	if err = fill(tx); err != nil {
		return err
	}

	var n int64
	if err = tx.QueryRow(ctx, "SELECT count(*) FROM "+ident).Scan(&n); err != nil {
		return errors.Wrap(err, "counting rows")
	}
	if n != int64(len(t.Rows)) {
		return errors.Errorf("%s holds %d rows after loading %d", t.Name, n, len(t.Rows))
	}
	if err = tx.Commit(ctx); err != nil {
		return errors.Wrap(err, "committing")
	}
	return nil
}

// Load replaces t, inserting its rows in batches of the chunk size.
func (l *Loader) Load(ctx context.Context, t *stardwh.Table) error {
	insert := InsertSQL(t)
	err := l.replace(ctx, t, func(tx pgx.Tx) error {
		for start := 0; start < len(t.Rows); start += l.chunkSize {
			end := start + l.chunkSize
			if end > len(t.Rows) {
				end = len(t.Rows)
			}
			b := &pgx.Batch{}
			for _, row := range t.Rows[start:end] {
				b.Queue(insert, encode(row)...)
			}
			if err := tx.SendBatch(ctx, b).Close(); err != nil {
				return errors.Wrapf(err, "inserting rows %d to %d", start, end)
			}
			l.stats.Count("load."+t.Name, int64(end-start), 1)
			l.log.Debugf("%s: inserted %d of %d rows", t.Name, end, len(t.Rows))
		}
		return nil
	})
	return errors.Wrapf(err, "loading %s", t.Name)
}

// Copy replaces t, streaming its rows with COPY.
func (l *Loader) Copy(ctx context.Context, t *stardwh.Table) error {
	err := l.replace(ctx, t, func(tx pgx.Tx) error {
		reported := 0
		src := pgx.CopyFromSlice(len(t.Rows), func(i int) ([]any, error) {
			if (i+1)%l.chunkSize == 0 || i+1 == len(t.Rows) {
				l.stats.Count("load."+t.Name, int64(i+1-reported), 1)
				reported = i + 1
			}
			return encode(t.Rows[i]), nil
		})
		n, err := tx.CopyFrom(ctx, pgx.Identifier{t.Name}, t.ColumnNames(), src)
		if err != nil {
			return errors.Wrap(err, "copying rows")
		}
		if n != int64(len(t.Rows)) {
			return errors.Errorf("copied %d of %d rows", n, len(t.Rows))
		}
		return nil
	})
	return errors.Wrapf(err, "copying %s", t.Name)
}

// LoadAll loads tables in order, using Copy for the table named copyTable and
// Load for the rest. It stops at the first failure.
func (l *Loader) LoadAll(ctx context.Context, tables []*stardwh.Table, copyTable string) error {
	for _, t := range tables {
		var err error
		if t.Name == copyTable {
			err = l.Copy(ctx, t)
		} else {
			err = l.Load(ctx, t)
		}
		if err != nil {
			return err
		}
		l.log.Printf("loaded %d rows into %s", len(t.Rows), t.Name)
	}
	return nil
}
