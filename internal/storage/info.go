package storage

import (
	"context"
	"fmt"
)

// StoreInfo summarizes a collection database for inspection tooling.
type StoreInfo struct {
	Collection    string `json:"collection"`
	LocalVersion  string `json:"local_version"`
	NativeVersion string `json:"native_version"`
	ClientID      string `json:"client_id"`
	ChangeCounter int64  `json:"change_counter"`
	LiveRecords   int64  `json:"live_records"`
	UnsyncedRows  int64  `json:"unsynced_rows"`
	SyncLockout   bool   `json:"sync_lockout"`
}

// Info reads the collection metadata and row counts.
func (s *Store) Info(ctx context.Context) (StoreInfo, error) {
	info := StoreInfo{
		Collection:    s.bundle.CollectionName,
		LocalVersion:  s.bundle.Local.Version,
		NativeVersion: s.bundle.Native.Version,
		ClientID:      s.clientID,
	}

	var err error
	if info.ChangeCounter, err = metaGetInt64(ctx, s.db, metaChangeCounter); err != nil {
		return StoreInfo{}, err
	}

	if err := s.db.QueryRowContext(ctx, `
		SELECT
			(SELECT COUNT(*) FROM rec_local WHERE is_deleted = 0) +
			(SELECT COUNT(*) FROM rec_mirror WHERE is_overridden = 0)
	`).Scan(&info.LiveRecords); err != nil {
		return StoreInfo{}, fmt.Errorf("count live records: %w", err)
	}

	if err := s.db.QueryRowContext(ctx,
		`SELECT COUNT(*) FROM rec_local WHERE sync_status != ?`, StatusSynced,
	).Scan(&info.UnsyncedRows); err != nil {
		return StoreInfo{}, fmt.Errorf("count unsynced rows: %w", err)
	}

	if info.SyncLockout, err = s.InSyncLockout(ctx); err != nil {
		return StoreInfo{}, err
	}
	return info, nil
}
