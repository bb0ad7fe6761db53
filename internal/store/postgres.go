package store

import (
	"context"
	"errors"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/rotisserie/eris"

	"github.com/sells-group/member-qa/internal/model"
)

// Pool is the subset of pgxpool.Pool the store uses. pgxmock satisfies it.
type Pool interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// PostgresStore implements Store using pgxpool.
type PostgresStore struct {
	pool    Pool
	closeFn func()
}

// PoolConfig holds optional connection pool tuning parameters.
type PoolConfig struct {
	MaxConns int32 `yaml:"max_conns" mapstructure:"max_conns"`
	MinConns int32 `yaml:"min_conns" mapstructure:"min_conns"`
}

const (
	saveSnapshotSQL = `INSERT INTO member_snapshots (id, signature, fetched_at, record_count, records) VALUES ($1, $2, $3, $4, $5)
		ON CONFLICT (id) DO UPDATE SET signature = EXCLUDED.signature, fetched_at = EXCLUDED.fetched_at,
		record_count = EXCLUDED.record_count, records = EXCLUDED.records`
	latestSnapshotSQL = `SELECT id, signature, fetched_at, records FROM member_snapshots ORDER BY fetched_at DESC LIMIT 1`
	pruneSnapshotsSQL = `DELETE FROM member_snapshots WHERE id NOT IN (
		SELECT id FROM member_snapshots ORDER BY fetched_at DESC LIMIT $1)`
)

// preparedStatements are prepared on each new connection.
var preparedStatements = map[string]string{
	"save_snapshot":   saveSnapshotSQL,
	"latest_snapshot": latestSnapshotSQL,
}

// NewPostgres creates a PostgresStore with a connection pool.
func NewPostgres(ctx context.Context, connString string, poolCfg *PoolConfig) (*PostgresStore, error) {
	pgxCfg, err := pgxpool.ParseConfig(connString)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: parse config")
	}

	maxConns := int32(4)
	minConns := int32(1)
	if poolCfg != nil {
		if poolCfg.MaxConns > 0 {
			maxConns = poolCfg.MaxConns
		}
		if poolCfg.MinConns > 0 {
			minConns = poolCfg.MinConns
		}
	}
	pgxCfg.MaxConns = maxConns
	pgxCfg.MinConns = minConns
	pgxCfg.MaxConnLifetime = 30 * time.Minute
	pgxCfg.MaxConnIdleTime = 5 * time.Minute

	pgxCfg.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		for name, sql := range preparedStatements {
			if _, err := conn.Prepare(ctx, name, sql); err != nil {
				return eris.Wrapf(err, "postgres: prepare %s", name)
			}
		}
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, pgxCfg)
	if err != nil {
		return nil, eris.Wrap(err, "postgres: create pool")
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, eris.Wrap(err, "postgres: ping")
	}
	return &PostgresStore{pool: pool, closeFn: pool.Close}, nil
}

const postgresMigration = `
CREATE TABLE IF NOT EXISTS member_snapshots (
	id           TEXT PRIMARY KEY,
	signature    TEXT NOT NULL DEFAULT '',
	fetched_at   TIMESTAMPTZ NOT NULL,
	record_count INTEGER NOT NULL DEFAULT 0,
	records      JSONB NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_member_snapshots_fetched_at ON member_snapshots(fetched_at DESC);
`

func (s *PostgresStore) Migrate(ctx context.Context) error {
	_, err := s.pool.Exec(ctx, postgresMigration)
	return eris.Wrap(err, "postgres: migrate")
}

func (s *PostgresStore) Close() error {
	if s.closeFn != nil {
		s.closeFn()
	}
	return nil
}

func (s *PostgresStore) SaveSnapshot(ctx context.Context, snap *model.DatasetSnapshot) error {
	if snap == nil {
		return eris.New("postgres: save nil snapshot")
	}
	data, err := marshalRecords(snap.Records)
	if err != nil {
		return eris.Wrap(err, "postgres: save snapshot")
	}
	_, err = s.pool.Exec(ctx, saveSnapshotSQL,
		snap.ID, snap.Signature, snap.FetchedAt.UTC(), len(snap.Records), data,
	)
	return eris.Wrapf(err, "postgres: save snapshot %s", snap.ID)
}

func (s *PostgresStore) LatestSnapshot(ctx context.Context) (*model.DatasetSnapshot, error) {
	var snap model.DatasetSnapshot
	var records []byte

	err := s.pool.QueryRow(ctx, latestSnapshotSQL).Scan(&snap.ID, &snap.Signature, &snap.FetchedAt, &records)
	if errors.Is(err, pgx.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "postgres: latest snapshot")
	}

	snap.FetchedAt = snap.FetchedAt.UTC()
	if snap.Records, err = unmarshalRecords(records); err != nil {
		return nil, eris.Wrapf(err, "postgres: latest snapshot %s", snap.ID)
	}
	return &snap, nil
}

func (s *PostgresStore) PruneSnapshots(ctx context.Context, keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}
	tag, err := s.pool.Exec(ctx, pruneSnapshotsSQL, keep)
	if err != nil {
		return 0, eris.Wrap(err, "postgres: prune snapshots")
	}
	return int(tag.RowsAffected()), nil
}
