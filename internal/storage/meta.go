package storage

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Well-known metadata keys.
const (
	metaCollectionName      = "remerge/collection-name"
	metaLocalSchemaVersion  = "remerge/local-schema-version"
	metaNativeSchemaVersion = "remerge/native-schema-version"
	metaClientID            = "remerge/client-id"
	metaChangeCounter       = "remerge/change-counter"

	// metaSyncNativeVersionThreshold is set by the sync engine when the
	// server declares a minimum native version above ours; while present,
	// sync runs metadata-only.
	metaSyncNativeVersionThreshold = "remerge/sync-native-version-threshold"
)

// conn is the subset of database/sql shared by *sql.DB and *sql.Tx, so the
// metadata helpers work both inside and outside an explicit transaction.
type conn interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
}

func metaGetString(ctx context.Context, c conn, key string) (string, error) {
	var v string
	err := c.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", corruptf("missing required metadata key %q", key)
	}
	if err != nil {
		return "", fmt.Errorf("get meta %q: %w", key, err)
	}
	return v, nil
}

func metaTryGetString(ctx context.Context, c conn, key string) (string, bool, error) {
	var v string
	err := c.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("get meta %q: %w", key, err)
	}
	return v, true, nil
}

func metaGetInt64(ctx context.Context, c conn, key string) (int64, error) {
	var v int64
	err := c.QueryRowContext(ctx, `SELECT value FROM metadata WHERE key = ?`, key).Scan(&v)
	if errors.Is(err, sql.ErrNoRows) {
		return 0, corruptf("missing required metadata key %q", key)
	}
	if err != nil {
		return 0, fmt.Errorf("get meta %q: %w", key, err)
	}
	return v, nil
}

func metaPut(ctx context.Context, c conn, key string, value any) error {
	_, err := c.ExecContext(ctx,
		`INSERT OR REPLACE INTO metadata (key, value) VALUES (?, ?)`, key, value)
	if err != nil {
		return fmt.Errorf("put meta %q: %w", key, err)
	}
	return nil
}

func metaDelete(ctx context.Context, c conn, key string) error {
	_, err := c.ExecContext(ctx, `DELETE FROM metadata WHERE key = ?`, key)
	if err != nil {
		return fmt.Errorf("delete meta %q: %w", key, err)
	}
	return nil
}
