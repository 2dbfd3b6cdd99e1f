package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"log/slog"

	"github.com/google/uuid"

	"github.com/roach88/remerge/internal/schema"
)

// loadOrBootstrap reconciles the stored schema/metadata state against the
// caller's native schema. It runs inside the transaction owned by Open, so a
// failure anywhere leaves nothing committed.
//
// First run (no collection-name metadata): install the native schema as the
// sole schema record, mint a client id, and seed the change counter.
//
// Reload: verify the collection name, clear any sync lockout left by a
// previous session, move the stored native version forward if the caller's
// schema was bumped, and parse the stored local schema.
func loadOrBootstrap(ctx context.Context, tx *sql.Tx, native *schema.RecordSchema) (*schema.SchemaBundle, string, error) {
	name, ok, err := metaTryGetString(ctx, tx, metaCollectionName)
	if err != nil {
		return nil, "", err
	}
	if !ok {
		return bootstrap(ctx, tx, native)
	}

	if name != native.Name {
		return nil, "", &Error{
			Code: ErrCodeNameMismatch,
			Message: fmt.Sprintf("schema name %q does not match the collection in this database (%q)",
				native.Name, name),
		}
	}

	localVer, err := metaGetString(ctx, tx, metaLocalSchemaVersion)
	if err != nil {
		return nil, "", err
	}
	nativeVer, err := metaGetString(ctx, tx, metaNativeSchemaVersion)
	if err != nil {
		return nil, "", err
	}
	clientID, err := metaGetString(ctx, tx, metaClientID)
	if err != nil {
		return nil, "", err
	}

	// A fresh session always gets another chance to sync.
	if err := metaDelete(ctx, tx, metaSyncNativeVersionThreshold); err != nil {
		return nil, "", err
	}

	if nativeVer != native.Version {
		// TODO: migrate already-persisted records when the native version
		// moves; for now only the metadata advances.
		slog.Info("native schema version changed",
			"stored", nativeVer, "current", native.Version)
		if err := metaPut(ctx, tx, metaNativeSchemaVersion, native.Version); err != nil {
			return nil, "", err
		}
	}

	var localText string
	err = tx.QueryRowContext(ctx,
		`SELECT schema_text FROM remerge_schemas WHERE version = ?`, localVer).Scan(&localText)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, "", corruptf("no schema record for local version %q", localVer)
	}
	if err != nil {
		return nil, "", fmt.Errorf("load local schema: %w", err)
	}

	local, err := schema.Parse(localText)
	if err != nil {
		return nil, "", err
	}

	return &schema.SchemaBundle{
		CollectionName: name,
		Native:         native,
		Local:          local,
	}, clientID, nil
}

func bootstrap(ctx context.Context, tx *sql.Tx, native *schema.RecordSchema) (*schema.SchemaBundle, string, error) {
	clientID := uuid.New().String()
	if err := metaPut(ctx, tx, metaClientID, clientID); err != nil {
		return nil, "", err
	}
	if err := insertSchemaRecord(ctx, tx, native); err != nil {
		return nil, "", err
	}
	if err := metaPut(ctx, tx, metaLocalSchemaVersion, native.Version); err != nil {
		return nil, "", err
	}
	if err := metaPut(ctx, tx, metaNativeSchemaVersion, native.Version); err != nil {
		return nil, "", err
	}
	if err := metaPut(ctx, tx, metaCollectionName, native.Name); err != nil {
		return nil, "", err
	}
	if err := metaPut(ctx, tx, metaChangeCounter, int64(1)); err != nil {
		return nil, "", err
	}

	slog.Info("bootstrapped collection", "collection", native.Name, "version", native.Version)

	return &schema.SchemaBundle{
		CollectionName: native.Name,
		Native:         native,
		Local:          native,
	}, clientID, nil
}

// insertSchemaRecord writes (or replaces) the schema row for s.Version.
func insertSchemaRecord(ctx context.Context, c conn, s *schema.RecordSchema) error {
	_, err := c.ExecContext(ctx, `
		INSERT OR REPLACE INTO remerge_schemas (is_legacy, version, required_version, schema_text)
		VALUES (?, ?, ?, ?)
	`, s.Legacy, s.Version, s.RequiredVersion, s.Source)
	if err != nil {
		return fmt.Errorf("insert schema record: %w", err)
	}
	return nil
}
