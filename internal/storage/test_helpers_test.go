package storage

import (
	"context"
	"fmt"
	"path/filepath"
	"testing"

	"github.com/roach88/remerge/internal/schema"
)

// notesSchemaText builds a small "notes" schema document at the given
// version, with optional dedupe_on fields.
func notesSchemaText(version string, dedupeOn ...string) string {
	dedupe := ""
	if len(dedupeOn) > 0 {
		dedupe = `, "dedupe_on": [`
		for i, f := range dedupeOn {
			if i > 0 {
				dedupe += ", "
			}
			dedupe += fmt.Sprintf("%q", f)
		}
		dedupe += "]"
	}
	return fmt.Sprintf(`{
		"name": "notes",
		"version": %q,
		"fields": [
			{"name": "id", "type": "own_guid"},
			{"name": "title", "type": "text", "required": true},
			{"name": "rank", "type": "integer", "min": 0},
			{"name": "extra", "type": "untyped_map"}
		]%s
	}`, version, dedupe)
}

func parseNotesSchema(t *testing.T, version string, dedupeOn ...string) *schema.RecordSchema {
	t.Helper()
	return parseSchemaText(t, notesSchemaText(version, dedupeOn...))
}

func parseSchemaText(t *testing.T, text string) *schema.RecordSchema {
	t.Helper()
	s, err := schema.Parse(text)
	if err != nil {
		t.Fatalf("Parse() failed: %v", err)
	}
	return s
}

// openTestStore opens a store over a fresh temp database with notes v1.0.0.
func openTestStore(t *testing.T) *Store {
	t.Helper()
	return openTestStoreAt(t, filepath.Join(t.TempDir(), "test.db"))
}

func openTestStoreAt(t *testing.T, path string) *Store {
	t.Helper()
	s, err := Open(context.Background(), path, parseNotesSchema(t, "1.0.0"))
	if err != nil {
		t.Fatalf("Open() failed: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	return s
}

// changeCounter reads the persisted global change counter.
func changeCounter(t *testing.T, s *Store) int64 {
	t.Helper()
	n, err := metaGetInt64(context.Background(), s.db, metaChangeCounter)
	if err != nil {
		t.Fatalf("read change counter: %v", err)
	}
	return n
}

// insertMirrorRow simulates the sync engine writing a synced record.
func insertMirrorRow(t *testing.T, s *Store, guid, data, clockJSON, writer string) {
	t.Helper()
	_, err := s.db.Exec(`
		INSERT INTO rec_mirror (guid, record_data, vector_clock, last_writer_id, is_overridden)
		VALUES (?, ?, ?, ?, 0)
	`, guid, data, clockJSON, writer)
	if err != nil {
		t.Fatalf("insert mirror row: %v", err)
	}
}
