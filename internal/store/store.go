// Package store persists the last good member snapshots so a restarted
// process can answer before its first upstream fetch succeeds.
package store

import (
	"context"
	"encoding/json"

	"github.com/rotisserie/eris"

	"github.com/sells-group/member-qa/internal/model"
)

// Store defines snapshot persistence.
type Store interface {
	// SaveSnapshot writes snap, replacing any row with the same ID.
	SaveSnapshot(ctx context.Context, snap *model.DatasetSnapshot) error

	// LatestSnapshot returns the most recently fetched snapshot, or nil
	// when none has been saved.
	LatestSnapshot(ctx context.Context) (*model.DatasetSnapshot, error)

	// PruneSnapshots deletes all but the keep most recent snapshots and
	// returns how many rows were removed.
	PruneSnapshots(ctx context.Context, keep int) (int, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

func marshalRecords(records []model.MemberRecord) ([]byte, error) {
	if records == nil {
		records = []model.MemberRecord{}
	}
	data, err := json.Marshal(records)
	if err != nil {
		return nil, eris.Wrap(err, "marshal records")
	}
	return data, nil
}

func unmarshalRecords(data []byte) ([]model.MemberRecord, error) {
	var records []model.MemberRecord
	if err := json.Unmarshal(data, &records); err != nil {
		return nil, eris.Wrap(err, "unmarshal records")
	}
	return records, nil
}
