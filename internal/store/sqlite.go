package store

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/rotisserie/eris"
	_ "modernc.org/sqlite"

	"github.com/sells-group/member-qa/internal/model"
)

// SQLiteStore implements Store using modernc.org/sqlite.
type SQLiteStore struct {
	db *sql.DB
}

// NewSQLite opens a SQLite database at the given path and configures WAL mode.
func NewSQLite(dsn string) (*SQLiteStore, error) {
	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: open")
	}
	for _, pragma := range []string{
		"PRAGMA journal_mode=WAL",
		"PRAGMA busy_timeout=5000",
		"PRAGMA synchronous=NORMAL",
	} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close() //nolint:errcheck
			return nil, eris.Wrapf(err, "sqlite: exec %s", pragma)
		}
	}
	return &SQLiteStore{db: db}, nil
}

const sqliteMigration = `
CREATE TABLE IF NOT EXISTS member_snapshots (
	id           TEXT PRIMARY KEY,
	signature    TEXT NOT NULL DEFAULT '',
	fetched_at   DATETIME NOT NULL,
	record_count INTEGER NOT NULL DEFAULT 0,
	records      TEXT NOT NULL
);

CREATE INDEX IF NOT EXISTS idx_member_snapshots_fetched_at ON member_snapshots(fetched_at);
`

func (s *SQLiteStore) Migrate(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, sqliteMigration)
	return eris.Wrap(err, "sqlite: migrate")
}

func (s *SQLiteStore) Close() error {
	return s.db.Close()
}

func (s *SQLiteStore) SaveSnapshot(ctx context.Context, snap *model.DatasetSnapshot) error {
	if snap == nil {
		return eris.New("sqlite: save nil snapshot")
	}
	data, err := marshalRecords(snap.Records)
	if err != nil {
		return eris.Wrap(err, "sqlite: save snapshot")
	}
	_, err = s.db.ExecContext(ctx,
		`INSERT INTO member_snapshots (id, signature, fetched_at, record_count, records) VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT(id) DO UPDATE SET signature = excluded.signature, fetched_at = excluded.fetched_at,
		 record_count = excluded.record_count, records = excluded.records`,
		snap.ID, snap.Signature, snap.FetchedAt.UTC(), len(snap.Records), string(data),
	)
	return eris.Wrapf(err, "sqlite: save snapshot %s", snap.ID)
}

func (s *SQLiteStore) LatestSnapshot(ctx context.Context) (*model.DatasetSnapshot, error) {
	var snap model.DatasetSnapshot
	var fetchedAt time.Time
	var records string

	err := s.db.QueryRowContext(ctx,
		`SELECT id, signature, fetched_at, records FROM member_snapshots ORDER BY fetched_at DESC LIMIT 1`,
	).Scan(&snap.ID, &snap.Signature, &fetchedAt, &records)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, nil
	}
	if err != nil {
		return nil, eris.Wrap(err, "sqlite: latest snapshot")
	}

	snap.FetchedAt = fetchedAt.UTC()
	if snap.Records, err = unmarshalRecords([]byte(records)); err != nil {
		return nil, eris.Wrapf(err, "sqlite: latest snapshot %s", snap.ID)
	}
	return &snap, nil
}

func (s *SQLiteStore) PruneSnapshots(ctx context.Context, keep int) (int, error) {
	if keep < 1 {
		keep = 1
	}
	res, err := s.db.ExecContext(ctx,
		`DELETE FROM member_snapshots WHERE id NOT IN (
			SELECT id FROM member_snapshots ORDER BY fetched_at DESC LIMIT ?)`,
		keep,
	)
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: prune snapshots")
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, eris.Wrap(err, "sqlite: rows affected")
	}
	return int(n), nil
}
