package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"time"

	"github.com/roach88/remerge/internal/schema"
	"github.com/roach88/remerge/internal/vclock"
)

// Exists reports whether a live record with the given guid is visible:
// either a non-tombstone overlay row, or a mirror row the overlay has not
// overridden.
func (s *Store) Exists(ctx context.Context, id string) (ok bool, err error) {
	scope, ctx := s.BeginInterruptScope(ctx)
	defer func() { err = scope.resolve(err) }()
	defer scope.End()

	return s.exists(ctx, s.db, id)
}

func (s *Store) exists(ctx context.Context, c conn, id string) (bool, error) {
	var one int
	err := c.QueryRowContext(ctx,
		`SELECT 1 FROM rec_local WHERE guid = ? AND is_deleted = 0`, id).Scan(&one)
	if err == nil {
		return true, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return false, fmt.Errorf("query overlay: %w", err)
	}
	err = c.QueryRowContext(ctx,
		`SELECT 1 FROM rec_mirror WHERE guid = ? AND is_overridden = 0`, id).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("query mirror: %w", err)
	}
	return true, nil
}

// Create validates and stores a brand-new record, returning its guid. Fails
// with ID_NOT_UNIQUE if a live record with the same guid already exists, and
// with DUPLICATE on a dedupe_on collision.
func (s *Store) Create(ctx context.Context, native schema.NativeRecord) (guid string, err error) {
	scope, ctx := s.BeginInterruptScope(ctx)
	defer func() { err = scope.resolve(err) }()
	defer scope.End()

	id, record, err := s.bundle.NativeToLocal(native, schema.Creation())
	if err != nil {
		return "", err
	}
	data, err := encodeRecordData(record)
	if err != nil {
		return "", err
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("create: begin tx: %w", err)
	}
	defer tx.Rollback()

	exists, err := s.exists(ctx, tx, id)
	if err != nil {
		return "", err
	}
	if exists {
		return "", &Error{Code: ErrCodeIDNotUnique, Message: "a record with the given guid already exists", Guid: id}
	}
	dupe, err := s.dupeExists(ctx, tx, id, record)
	if err != nil {
		return "", err
	}
	if dupe {
		return "", &Error{Code: ErrCodeDuplicate, Message: "record violates a dedupe_on constraint", Guid: id}
	}
	if err := scope.Err(); err != nil {
		return "", err
	}

	ctr, err := s.counterBump(ctx, tx)
	if err != nil {
		return "", err
	}
	clock := vclock.New(s.clientID, ctr)

	_, err = tx.ExecContext(ctx, `
		INSERT INTO rec_local (
			guid, remerge_schema_version, record_data, local_modified_ms,
			is_deleted, sync_status, vector_clock, last_writer_id
		) VALUES (?, ?, ?, ?, 0, ?, ?, ?)
	`, id, s.bundle.Local.Version, data, nowMS(), StatusNew, clock, s.clientID)
	if err != nil {
		return "", fmt.Errorf("create: insert overlay: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("create: commit: %w", err)
	}
	return id, nil
}

// GetByID returns the live record for a guid in native shape, or nil if no
// live record exists.
func (s *Store) GetByID(ctx context.Context, id string) (rec schema.NativeRecord, err error) {
	scope, ctx := s.BeginInterruptScope(ctx)
	defer func() { err = scope.resolve(err) }()
	defer scope.End()

	local, ok, err := s.getLocalByID(ctx, s.db, id)
	if err != nil || !ok {
		return nil, err
	}
	return s.bundle.LocalToNative(local)
}

// GetAll returns every live record in native shape. Conversion failures are
// surfaced, not skipped: a row this store cannot convert means the schema
// and the data disagree, which the caller needs to know about.
func (s *Store) GetAll(ctx context.Context) (records []schema.NativeRecord, err error) {
	scope, ctx := s.BeginInterruptScope(ctx)
	defer func() { err = scope.resolve(err) }()
	defer scope.End()

	overlay, err := s.collectRecordData(ctx,
		`SELECT record_data FROM rec_local WHERE is_deleted = 0`)
	if err != nil {
		return nil, err
	}
	if err := scope.Err(); err != nil {
		return nil, err
	}
	mirror, err := s.collectRecordData(ctx,
		`SELECT record_data FROM rec_mirror WHERE is_overridden = 0`)
	if err != nil {
		return nil, err
	}

	out := make([]schema.NativeRecord, 0, len(overlay)+len(mirror))
	for _, raw := range append(overlay, mirror...) {
		local, err := decodeRecordData(raw)
		if err != nil {
			return nil, err
		}
		native, err := s.bundle.LocalToNative(local)
		if err != nil {
			return nil, err
		}
		out = append(out, native)
	}
	return out, nil
}

// UpdateRecord replaces the stored state of the record identified by the
// native record's own-guid field. The overlay is materialized from the
// mirror on first local edit, the mirror is marked overridden, and the row's
// sync status is promoted to at least Changed.
func (s *Store) UpdateRecord(ctx context.Context, native schema.NativeRecord) (err error) {
	scope, ctx := s.BeginInterruptScope(ctx)
	defer func() { err = scope.resolve(err) }()
	defer scope.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("update: begin tx: %w", err)
	}
	defer tx.Rollback()

	prev, err := s.getExistingRecord(ctx, tx, native)
	if err != nil {
		return err
	}

	id, record, err := s.bundle.NativeToLocal(native, schema.Update(prev))
	if err != nil {
		return err
	}
	data, err := encodeRecordData(record)
	if err != nil {
		return err
	}

	dupe, err := s.dupeExists(ctx, tx, id, record)
	if err != nil {
		return err
	}
	if dupe {
		return &Error{Code: ErrCodeDuplicate, Message: "record violates a dedupe_on constraint", Guid: id}
	}
	if err := scope.Err(); err != nil {
		return err
	}

	if err := s.ensureLocalOverlayExists(ctx, tx, id); err != nil {
		return err
	}
	if err := s.markMirrorOverridden(ctx, tx, id); err != nil {
		return err
	}

	status, err := s.overlayStatus(ctx, tx, id)
	if err != nil {
		return err
	}
	clock, err := s.getBumpedVClock(ctx, tx, id)
	if err != nil {
		return err
	}

	res, err := tx.ExecContext(ctx, `
		UPDATE rec_local
		SET local_modified_ms      = ?,
		    record_data            = ?,
		    vector_clock           = ?,
		    last_writer_id         = ?,
		    remerge_schema_version = ?,
		    sync_status            = ?
		WHERE guid = ?
	`, nowMS(), data, clock, s.clientID, s.bundle.Local.Version,
		status.Promote(StatusChanged), id)
	if err != nil {
		return fmt.Errorf("update: write overlay: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update: rows affected: %w", err)
	}
	if n != 1 {
		return corruptf("update touched %d overlay rows for guid %q, want 1", n, id)
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("update: commit: %w", err)
	}
	return nil
}

// DeleteByID tombstones the record. Returns false without writing anything
// if no live record exists. The overlay row survives as a tombstone with a
// cleared payload; if only a mirror row existed, a tombstone overlay is
// cloned from it.
func (s *Store) DeleteByID(ctx context.Context, id string) (deleted bool, err error) {
	scope, ctx := s.BeginInterruptScope(ctx)
	defer func() { err = scope.resolve(err) }()
	defer scope.End()

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return false, fmt.Errorf("delete: begin tx: %w", err)
	}
	defer tx.Rollback()

	exists, err := s.exists(ctx, tx, id)
	if err != nil {
		return false, err
	}
	if !exists {
		return false, nil
	}
	if err := scope.Err(); err != nil {
		return false, err
	}

	clock, err := s.getBumpedVClock(ctx, tx, id)
	if err != nil {
		return false, err
	}
	status, err := s.overlayStatus(ctx, tx, id)
	if err != nil {
		return false, err
	}
	now := nowMS()

	// Tombstone the overlay row if one exists.
	_, err = tx.ExecContext(ctx, `
		UPDATE rec_local
		SET local_modified_ms = ?,
		    sync_status       = ?,
		    is_deleted        = 1,
		    record_data       = '{}',
		    vector_clock      = ?,
		    last_writer_id    = ?
		WHERE guid = ?
	`, now, status.Promote(StatusChanged), clock, s.clientID, id)
	if err != nil {
		return false, fmt.Errorf("delete: tombstone overlay: %w", err)
	}

	if err := s.markMirrorOverridden(ctx, tx, id); err != nil {
		return false, err
	}

	// No overlay row? Clone a tombstone from the mirror's identity fields.
	_, err = tx.ExecContext(ctx, `
		INSERT OR IGNORE INTO rec_local
			(guid, local_modified_ms, is_deleted, sync_status, record_data,
			 vector_clock, last_writer_id, remerge_schema_version)
		SELECT guid, ?, 1, ?, '{}', ?, ?, ?
		FROM rec_mirror
		WHERE guid = ?
	`, now, StatusChanged, clock, s.clientID, s.bundle.Local.Version, id)
	if err != nil {
		return false, fmt.Errorf("delete: insert tombstone: %w", err)
	}

	if err := tx.Commit(); err != nil {
		return false, fmt.Errorf("delete: commit: %w", err)
	}
	return true, nil
}

// counterBump advances the persisted global change counter and returns the
// new value. Negative stored values and overflow are database corruption.
func (s *Store) counterBump(ctx context.Context, c conn) (vclock.Counter, error) {
	ctr, err := metaGetInt64(ctx, c, metaChangeCounter)
	if err != nil {
		return 0, err
	}
	if ctr < 0 {
		return 0, corruptf("negative global change counter: %d", ctr)
	}
	if ctr == math.MaxInt64 {
		return 0, corruptf("global change counter overflow")
	}
	ctr++
	if err := metaPut(ctx, c, metaChangeCounter, ctr); err != nil {
		return 0, err
	}
	return vclock.Counter(ctr), nil
}

// getVClock reads the live row's vector clock, preferring the overlay.
func (s *Store) getVClock(ctx context.Context, c conn, id string) (vclock.VClock, error) {
	var clock vclock.VClock
	err := c.QueryRowContext(ctx,
		`SELECT vector_clock FROM rec_local WHERE guid = ? AND is_deleted = 0`, id).Scan(&clock)
	if err == nil {
		return clock, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("query overlay clock: %w", err)
	}
	err = c.QueryRowContext(ctx,
		`SELECT vector_clock FROM rec_mirror WHERE guid = ? AND is_overridden = 0`, id).Scan(&clock)
	if errors.Is(err, sql.ErrNoRows) {
		// Existence was confirmed earlier in the same transaction.
		return nil, corruptf("no live row for guid %q after existence check", id)
	}
	if err != nil {
		return nil, fmt.Errorf("query mirror clock: %w", err)
	}
	return clock, nil
}

// getBumpedVClock stamps the record's clock with a freshly minted counter
// for the local client. Every local mutation writes one of these.
func (s *Store) getBumpedVClock(ctx context.Context, c conn, id string) (vclock.VClock, error) {
	clock, err := s.getVClock(ctx, c, id)
	if err != nil {
		return nil, err
	}
	ctr, err := s.counterBump(ctx, c)
	if err != nil {
		return nil, err
	}
	return clock.Apply(s.clientID, ctr), nil
}

func (s *Store) getLocalByID(ctx context.Context, c conn, id string) (schema.LocalRecord, bool, error) {
	var raw string
	err := c.QueryRowContext(ctx,
		`SELECT record_data FROM rec_local WHERE guid = ? AND is_deleted = 0`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		err = c.QueryRowContext(ctx,
			`SELECT record_data FROM rec_mirror WHERE guid = ? AND is_overridden = 0`, id).Scan(&raw)
	}
	if errors.Is(err, sql.ErrNoRows) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("query record: %w", err)
	}
	local, err := decodeRecordData(raw)
	if err != nil {
		return nil, false, err
	}
	return local, true, nil
}

// getExistingRecord resolves the record an update targets via the native
// schema's own-guid field. Missing and null are both invalid guids.
func (s *Store) getExistingRecord(ctx context.Context, c conn, rec schema.NativeRecord) (schema.LocalRecord, error) {
	field := s.bundle.Native.OwnGuid()
	id, ok := rec[field.Name].(string)
	if !ok || id == "" {
		return nil, &schema.ValidationError{Code: schema.ErrCodeInvalidGuid, Field: field.Name}
	}
	local, found, err := s.getLocalByID(ctx, c, id)
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, noSuchRecord(id)
	}
	return local, nil
}

// ensureLocalOverlayExists clones the mirror row into the overlay if this is
// the record's first local edit.
func (s *Store) ensureLocalOverlayExists(ctx context.Context, c conn, id string) error {
	var have bool
	err := c.QueryRowContext(ctx,
		`SELECT EXISTS(SELECT 1 FROM rec_local WHERE guid = ?)`, id).Scan(&have)
	if err != nil {
		return fmt.Errorf("query overlay existence: %w", err)
	}
	if have {
		return nil
	}
	slog.Debug("no overlay; cloning one from mirror", "guid", id)
	res, err := c.ExecContext(ctx, `
		INSERT OR IGNORE INTO rec_local
			(guid, record_data, vector_clock, last_writer_id,
			 local_modified_ms, is_deleted, sync_status)
		SELECT guid, record_data, vector_clock, last_writer_id, 0, 0, 0
		FROM rec_mirror
		WHERE guid = ?
	`, id)
	if err != nil {
		return fmt.Errorf("clone mirror to overlay: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("clone mirror to overlay: rows affected: %w", err)
	}
	if n == 0 {
		// Caller already confirmed the record exists somewhere.
		return corruptf("no mirror row to clone for guid %q", id)
	}
	return nil
}

func (s *Store) markMirrorOverridden(ctx context.Context, c conn, id string) error {
	_, err := c.ExecContext(ctx,
		`UPDATE rec_mirror SET is_overridden = 1 WHERE guid = ?`, id)
	if err != nil {
		return fmt.Errorf("mark mirror overridden: %w", err)
	}
	return nil
}

// overlayStatus reads the overlay row's current sync status; absent rows
// report Synced so that Promote starts from the baseline.
func (s *Store) overlayStatus(ctx context.Context, c conn, id string) (SyncStatus, error) {
	var raw int64
	err := c.QueryRowContext(ctx,
		`SELECT sync_status FROM rec_local WHERE guid = ?`, id).Scan(&raw)
	if errors.Is(err, sql.ErrNoRows) {
		return StatusSynced, nil
	}
	if err != nil {
		return 0, fmt.Errorf("query sync status: %w", err)
	}
	return parseSyncStatus(raw)
}

// dupeExists searches live records for a dedupe_on collision with the
// candidate record.
//
// TODO: implement the actual search. The check ships as "no duplicates",
// which is correct for schemas without dedupe_on; once implemented it must
// compare the candidate's DedupeValues against every live record other than
// excludeID.
func (s *Store) dupeExists(ctx context.Context, c conn, excludeID string, rec schema.LocalRecord) (bool, error) {
	return false, nil
}

func (s *Store) collectRecordData(ctx context.Context, query string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("query records: %w", err)
	}
	defer rows.Close()

	var out []string
	for rows.Next() {
		var raw string
		if err := rows.Scan(&raw); err != nil {
			return nil, fmt.Errorf("scan record: %w", err)
		}
		out = append(out, raw)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("iterate records: %w", err)
	}
	return out, nil
}

func encodeRecordData(rec schema.LocalRecord) (string, error) {
	b, err := json.Marshal(rec)
	if err != nil {
		return "", fmt.Errorf("encode record data: %w", err)
	}
	return string(b), nil
}

func decodeRecordData(raw string) (schema.LocalRecord, error) {
	var rec schema.LocalRecord
	if err := json.Unmarshal([]byte(raw), &rec); err != nil {
		return nil, fmt.Errorf("decode record data: %w", err)
	}
	return rec, nil
}

func nowMS() int64 {
	return time.Now().UnixMilli()
}
