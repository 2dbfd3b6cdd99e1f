package storage

import (
	"context"
	"fmt"

	"github.com/roach88/remerge/internal/schema"
	"github.com/roach88/remerge/internal/vclock"
)

// OutgoingRecord is an overlay row with unsynced local state, in the shape
// the sync engine consumes: payload plus causality metadata.
type OutgoingRecord struct {
	Guid            string
	SchemaVersion   string
	Record          schema.LocalRecord
	LocalModifiedMS int64
	IsDeleted       bool
	Status          SyncStatus
	Clock           vclock.VClock
	LastWriter      string
}

// UnsyncedRecords returns every overlay row whose sync status is not Synced,
// tombstones included. This is the read side of the sync contract; the sync
// engine resolves conflicts elsewhere and writes results back to the mirror.
func (s *Store) UnsyncedRecords(ctx context.Context) (records []OutgoingRecord, err error) {
	scope, ctx := s.BeginInterruptScope(ctx)
	defer func() { err = scope.resolve(err) }()
	defer scope.End()

	rows, err := s.db.QueryContext(ctx, `
		SELECT guid, remerge_schema_version, record_data, local_modified_ms,
		       is_deleted, sync_status, vector_clock, last_writer_id
		FROM rec_local
		WHERE sync_status != ?
	`, StatusSynced)
	if err != nil {
		return nil, fmt.Errorf("query unsynced records: %w", err)
	}
	defer rows.Close()

	var out []OutgoingRecord
	for rows.Next() {
		var (
			rec       OutgoingRecord
			raw       string
			rawStatus int64
		)
		if err := rows.Scan(&rec.Guid, &rec.SchemaVersion, &raw, &rec.LocalModifiedMS,
			&rec.IsDeleted, &rawStatus, &rec.Clock, &rec.LastWriter); err != nil {
			return nil, fmt.Errorf("scan unsynced record: %w", err)
		}
		if rec.Status, err = parseSyncStatus(rawStatus); err != nil {
			return nil, err
		}
		if rec.Record, err = decodeRecordData(raw); err != nil {
			return nil, err
		}
		out = append(out, rec)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate unsynced records: %w", err)
	}
	if err := scope.Err(); err != nil {
		return nil, err
	}
	return out, nil
}
