package storage

import "fmt"

// SyncStatus tags an overlay row with how it differs from the last-synced
// state. The values form a total order Synced < Changed < New; local CRUD
// only ever moves a row's status up (see Promote). Only the sync engine may
// reset a row to Synced.
type SyncStatus uint8

const (
	// StatusSynced: the row matches the mirror; nothing to upload.
	StatusSynced SyncStatus = 0

	// StatusChanged: the row was edited or tombstoned since the last sync.
	StatusChanged SyncStatus = 1

	// StatusNew: the row was created locally and has never been synced.
	StatusNew SyncStatus = 2
)

func (s SyncStatus) String() string {
	switch s {
	case StatusSynced:
		return "synced"
	case StatusChanged:
		return "changed"
	case StatusNew:
		return "new"
	}
	return fmt.Sprintf("SyncStatus(%d)", uint8(s))
}

// Promote returns the higher of s and to. This is the only status merge the
// engine performs on writes: a row marked unsynced can never silently drop
// back toward Synced, and an edit to a never-synced row leaves it New.
func (s SyncStatus) Promote(to SyncStatus) SyncStatus {
	if to > s {
		return to
	}
	return s
}

// parseSyncStatus rejects out-of-range persisted bytes.
func parseSyncStatus(raw int64) (SyncStatus, error) {
	if raw < 0 || raw > int64(StatusNew) {
		return 0, &Error{
			Code:    ErrCodeBadSyncStatus,
			Message: fmt.Sprintf("the sync_status column has an illegal value: %d", raw),
		}
	}
	return SyncStatus(raw), nil
}
