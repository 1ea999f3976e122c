package store

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
)

// Postgres implements RecordStore on a pgx pool.
type Postgres struct {
	pool *pgxpool.Pool
}

// NewPostgres creates a store backed by a pgx pool.
func NewPostgres(ctx context.Context, databaseURL string) (*Postgres, error) {
	pool, err := pgxpool.New(ctx, databaseURL)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	return &Postgres{pool: pool}, nil
}

// Close releases the pool resources.
func (p *Postgres) Close() {
	if p.pool != nil {
		p.pool.Close()
	}
}

const ensureSchemaSQL = `
    CREATE SCHEMA IF NOT EXISTS baymonitor;
    CREATE TABLE IF NOT EXISTS baymonitor.observations (
        ts          timestamptz PRIMARY KEY,
        temperature double precision,
        ph          double precision,
        odo         double precision,
        salinity    double precision,
        depth       double precision,
        latitude    double precision,
        longitude   double precision,
        source      text NOT NULL DEFAULT ''
    )
`

// EnsureSchema creates the observations table if it does not exist.
func (p *Postgres) EnsureSchema(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, ensureSchemaSQL)
	return wrapStoreErr(err)
}

// sqlColumns maps canonical condition fields to table columns. Filters are
// built from this table only, never from raw request input.
var sqlColumns = map[string]string{
	"ts":          "ts",
	"temperature": "temperature",
	"ph":          "ph",
	"odo":         "odo",
	"salinity":    "salinity",
	"depth":       "depth",
}

func buildWhere(conds []Condition) (string, []any, error) {
	clauses := make([]string, 0, len(conds))
	args := make([]any, 0, len(conds))
	for _, c := range conds {
		col, ok := sqlColumns[c.Field]
		if !ok {
			return "", nil, fmt.Errorf("unmapped filter column %q", c.Field)
		}
		if c.Op != OpGTE && c.Op != OpLTE {
			return "", nil, fmt.Errorf("unsupported operator %q", c.Op)
		}
		args = append(args, c.Value)
		clauses = append(clauses, col+" "+string(c.Op)+" $"+strconv.Itoa(len(args)))
	}
	if len(clauses) == 0 {
		return "", args, nil
	}
	return " WHERE " + strings.Join(clauses, " AND "), args, nil
}

// Ping verifies connectivity.
func (p *Postgres) Ping(ctx context.Context) error {
	return wrapStoreErr(p.pool.Ping(ctx))
}

// Count returns the filtered population size, independent of pagination.
func (p *Postgres) Count(ctx context.Context, conds []Condition) (int64, error) {
	where, args, err := buildWhere(conds)
	if err != nil {
		return 0, err
	}
	var count int64
	if err := p.pool.QueryRow(ctx, "SELECT COUNT(*) FROM baymonitor.observations"+where, args...).Scan(&count); err != nil {
		return 0, wrapStoreErr(err)
	}
	return count, nil
}

const observationColumns = "ts, temperature, ph, odo, salinity, depth, latitude, longitude, source"

// Find returns one page of filtered observations. limit <= 0 yields an empty
// page; skip past the end of the collection is legal and also yields one.
func (p *Postgres) Find(ctx context.Context, conds []Condition, skip, limit int, sort Sort) ([]Observation, error) {
	where, args, err := buildWhere(conds)
	if err != nil {
		return nil, err
	}

	orderCol := "ts"
	if sort.Field != "" {
		col, ok := sqlColumns[sort.Field]
		if !ok {
			return nil, fmt.Errorf("unmapped sort column %q", sort.Field)
		}
		orderCol = col
	}
	order := " ORDER BY " + orderCol
	if sort.Desc {
		order += " DESC"
	}

	if limit < 0 {
		limit = 0
	}
	if skip < 0 {
		skip = 0
	}
	args = append(args, limit)
	paging := " LIMIT $" + strconv.Itoa(len(args))
	args = append(args, skip)
	paging += " OFFSET $" + strconv.Itoa(len(args))

	sql := "SELECT " + observationColumns + " FROM baymonitor.observations" + where + order + paging
	rows, err := p.pool.Query(ctx, sql, args...)
	if err != nil {
		return nil, wrapStoreErr(err)
	}
	defer rows.Close()

	items := make([]Observation, 0, limit)
	for rows.Next() {
		var o Observation
		if err := rows.Scan(
			&o.Ts,
			&o.Temperature,
			&o.PH,
			&o.ODO,
			&o.Salinity,
			&o.Depth,
			&o.Latitude,
			&o.Longitude,
			&o.Source,
		); err != nil {
			return nil, wrapStoreErr(err)
		}
		items = append(items, o)
	}
	return items, wrapStoreErr(rows.Err())
}

const upsertSQL = `
    INSERT INTO baymonitor.observations (ts, temperature, ph, odo, salinity, depth, latitude, longitude, source)
    VALUES ($1,$2,$3,$4,$5,$6,$7,$8,$9)
    ON CONFLICT (ts) DO UPDATE
    SET temperature = EXCLUDED.temperature,
        ph = EXCLUDED.ph,
        odo = EXCLUDED.odo,
        salinity = EXCLUDED.salinity,
        depth = EXCLUDED.depth,
        latitude = EXCLUDED.latitude,
        longitude = EXCLUDED.longitude,
        source = EXCLUDED.source
    RETURNING (xmax = 0) AS inserted
`

// UpsertMany replaces-or-inserts records keyed by ts. Re-running the same
// batch leaves the collection unchanged.
func (p *Postgres) UpsertMany(ctx context.Context, recs []Observation) (UpsertResult, error) {
	var result UpsertResult
	if len(recs) == 0 {
		return result, nil
	}

	batch := &pgx.Batch{}
	for _, o := range recs {
		batch.Queue(upsertSQL, o.Ts, o.Temperature, o.PH, o.ODO, o.Salinity, o.Depth, o.Latitude, o.Longitude, o.Source)
	}

	res := p.pool.SendBatch(ctx, batch)
	defer res.Close()

	for range recs {
		var inserted bool
		if err := res.QueryRow().Scan(&inserted); err != nil {
			return result, wrapStoreErr(err)
		}
		if inserted {
			result.Upserted++
		} else {
			result.Modified++
		}
	}
	return result, nil
}

// Reset empties the collection ahead of a full re-clean.
func (p *Postgres) Reset(ctx context.Context) error {
	_, err := p.pool.Exec(ctx, "TRUNCATE baymonitor.observations")
	return wrapStoreErr(err)
}

// wrapStoreErr tags connectivity and timeout failures with ErrUnavailable so
// callers can distinguish degradation from bad queries.
func wrapStoreErr(err error) error {
	if err == nil {
		return nil
	}
	var connErr *pgconn.ConnectError
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || errors.As(err, &connErr) || errors.As(err, &netErr) {
		return fmt.Errorf("%w: %v", ErrUnavailable, err)
	}
	return err
}
