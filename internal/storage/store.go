package storage

import (
	"context"
	"database/sql"
	_ "embed"
	"fmt"
	"log/slog"
	"path/filepath"
	"sync"

	_ "github.com/mattn/go-sqlite3"

	"github.com/roach88/remerge/internal/schema"
)

//go:embed schema.sql
var schemaSQL string

// Store is the local storage engine for one remerge collection. It owns its
// connection exclusively: a single instance is not safe for unsynchronized
// concurrent mutation, though interruption (see InterruptHandle) may be
// requested from any goroutine.
type Store struct {
	db       *sql.DB
	bundle   *schema.SchemaBundle
	clientID string
	intr     *interruptState
}

// initLocks serializes first-open pragma and DDL setup per database file, so
// concurrently opening two handles to the same file cannot race the setup
// while opens of unrelated collections proceed independently.
var initLocks = struct {
	mu    sync.Mutex
	paths map[string]*sync.Mutex
}{paths: map[string]*sync.Mutex{}}

func initLockFor(path string) *sync.Mutex {
	key := path
	if abs, err := filepath.Abs(path); err == nil {
		key = abs
	}
	initLocks.mu.Lock()
	defer initLocks.mu.Unlock()
	l := initLocks.paths[key]
	if l == nil {
		l = &sync.Mutex{}
		initLocks.paths[key] = l
	}
	return l
}

// Open creates or opens the collection database at path and reconciles it
// against the caller's native schema. On first run the native schema is
// installed as the local schema; on reload the stored local schema is parsed
// and a collection-name mismatch is fatal.
func Open(ctx context.Context, path string, native *schema.RecordSchema) (*Store, error) {
	lock := initLockFor(path)
	lock.Lock()
	defer lock.Unlock()

	db, err := sql.Open("sqlite3", path)
	if err != nil {
		return nil, fmt.Errorf("open database: %w", err)
	}
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connect to database: %w", err)
	}

	// SQLite allows one writer at a time; a second pooled connection would
	// only produce SQLITE_BUSY.
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)

	if err := applyPragmas(ctx, db); err != nil {
		db.Close()
		return nil, err
	}
	if _, err := db.ExecContext(ctx, schemaSQL); err != nil {
		db.Close()
		return nil, fmt.Errorf("apply schema: %w", err)
	}

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("begin bootstrap tx: %w", err)
	}
	defer tx.Rollback()

	bundle, clientID, err := loadOrBootstrap(ctx, tx, native)
	if err != nil {
		db.Close()
		return nil, err
	}
	if err := tx.Commit(); err != nil {
		db.Close()
		return nil, fmt.Errorf("commit bootstrap tx: %w", err)
	}

	slog.Debug("store opened",
		"collection", bundle.CollectionName,
		"local_version", bundle.Local.Version,
		"native_version", bundle.Native.Version)

	return &Store{
		db:       db,
		bundle:   bundle,
		clientID: clientID,
		intr:     newInterruptState(),
	}, nil
}

func applyPragmas(ctx context.Context, db *sql.DB) error {
	pragmas := []string{
		// Must come before the database file is created by any write.
		"PRAGMA page_size = 32768",
		"PRAGMA journal_mode = WAL",
		// Max desired WAL size (2048000) over the page size.
		"PRAGMA wal_autocheckpoint = 62",
		"PRAGMA synchronous = NORMAL",
		"PRAGMA temp_store = 2",
		"PRAGMA busy_timeout = 5000",
		"PRAGMA foreign_keys = ON",
	}
	for _, pragma := range pragmas {
		if _, err := db.ExecContext(ctx, pragma); err != nil {
			return fmt.Errorf("execute %q: %w", pragma, err)
		}
	}
	return nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	return s.db.Close()
}

// Collection returns the collection name this store was opened for.
func (s *Store) Collection() string {
	return s.bundle.CollectionName
}

// Bundle returns the store's schema bundle. The store owns it; a schema
// upgrade swaps the Local pointer.
func (s *Store) Bundle() *schema.SchemaBundle {
	return s.bundle
}

// ClientID returns this installation's stable client identifier.
func (s *Store) ClientID() string {
	return s.clientID
}

// DB exposes the underlying connection for the sync engine. Use the Store
// methods for everything local.
func (s *Store) DB() *sql.DB {
	return s.db
}
