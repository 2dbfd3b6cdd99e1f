package storage

import (
	"context"
	"math"
	"path/filepath"
	"testing"
)

func TestReload_NativeVersionBumpUpdatesMetadataOnly(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1 := openTestStoreAt(t, path)
	if _, err := s1.Create(ctx, map[string]any{"title": "survivor"}); err != nil {
		t.Fatal(err)
	}
	s1.Close()

	s2, err := Open(ctx, path, parseNotesSchema(t, "1.1.0"))
	if err != nil {
		t.Fatalf("reopen with bumped native schema failed: %v", err)
	}
	defer s2.Close()

	nativeVer, err := metaGetString(ctx, s2.db, metaNativeSchemaVersion)
	if err != nil {
		t.Fatal(err)
	}
	if nativeVer != "1.1.0" {
		t.Errorf("stored native version = %q, want %q", nativeVer, "1.1.0")
	}
	localVer, err := metaGetString(ctx, s2.db, metaLocalSchemaVersion)
	if err != nil {
		t.Fatal(err)
	}
	if localVer != "1.0.0" {
		t.Errorf("stored local version = %q, want untouched %q", localVer, "1.0.0")
	}
	if s2.Bundle().Local.Version != "1.0.0" || s2.Bundle().Native.Version != "1.1.0" {
		t.Errorf("bundle versions = (local %q, native %q), want (1.0.0, 1.1.0)",
			s2.Bundle().Local.Version, s2.Bundle().Native.Version)
	}

	// Existing records are untouched.
	all, err := s2.GetAll(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(all) != 1 || all[0]["title"] != "survivor" {
		t.Errorf("records after native bump = %v", all)
	}
}

func TestReload_ParsesStoredLocalSchema(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")

	s1 := openTestStoreAt(t, path)
	s1.Close()

	s2 := openTestStoreAt(t, path)
	defer s2.Close()

	// The reloaded local schema comes from the stored text, not from the
	// native schema object handed to Open.
	if s2.Bundle().Local == s2.Bundle().Native {
		t.Error("reload should parse the stored local schema")
	}
	if s2.Bundle().Local.Source != notesSchemaText("1.0.0") {
		t.Error("stored schema text does not round-trip")
	}
}

func TestReload_CorruptStoredSchemaIsFatal(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1 := openTestStoreAt(t, path)
	if _, err := s1.db.Exec(
		`UPDATE remerge_schemas SET schema_text = 'not json'`); err != nil {
		t.Fatal(err)
	}
	s1.Close()

	_, err := Open(ctx, path, parseNotesSchema(t, "1.0.0"))
	if err == nil {
		t.Fatal("expected parse error for corrupt stored schema, got nil")
	}
}

func TestReload_ClearsSyncLockout(t *testing.T) {
	path := filepath.Join(t.TempDir(), "test.db")
	ctx := context.Background()

	s1 := openTestStoreAt(t, path)
	if err := metaPut(ctx, s1.db, metaSyncNativeVersionThreshold, "9.0.0"); err != nil {
		t.Fatal(err)
	}
	locked, err := s1.InSyncLockout(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if !locked {
		t.Fatal("expected lockout with threshold above native version")
	}
	s1.Close()

	s2 := openTestStoreAt(t, path)
	defer s2.Close()
	locked, err = s2.InSyncLockout(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if locked {
		t.Error("lockout marker survived a reopen")
	}
}

func TestMetadata_PutGetDelete(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := metaPut(ctx, s.db, "test/key", "v1"); err != nil {
		t.Fatal(err)
	}
	got, err := metaGetString(ctx, s.db, "test/key")
	if err != nil || got != "v1" {
		t.Fatalf("get = (%q, %v), want (v1, nil)", got, err)
	}

	// Put replaces.
	if err := metaPut(ctx, s.db, "test/key", "v2"); err != nil {
		t.Fatal(err)
	}
	if got, _ = metaGetString(ctx, s.db, "test/key"); got != "v2" {
		t.Errorf("get after replace = %q, want v2", got)
	}

	if err := metaDelete(ctx, s.db, "test/key"); err != nil {
		t.Fatal(err)
	}
	_, ok, err := metaTryGetString(ctx, s.db, "test/key")
	if err != nil {
		t.Fatal(err)
	}
	if ok {
		t.Error("key still present after delete")
	}

	// Hard get on a missing key is a corruption-class failure.
	_, err = metaGetString(ctx, s.db, "test/key")
	if !IsCorrupt(err) {
		t.Errorf("get on missing key = %v, want CORRUPT", err)
	}
}

func TestCounterBump_NegativeCounterIsCorrupt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := metaPut(ctx, s.db, metaChangeCounter, int64(-5)); err != nil {
		t.Fatal(err)
	}
	_, err := s.Create(ctx, map[string]any{"title": "x"})
	if !IsCorrupt(err) {
		t.Errorf("create with negative counter = %v, want CORRUPT", err)
	}
}

func TestCounterBump_OverflowIsCorrupt(t *testing.T) {
	s := openTestStore(t)
	ctx := context.Background()

	if err := metaPut(ctx, s.db, metaChangeCounter, int64(math.MaxInt64)); err != nil {
		t.Fatal(err)
	}
	_, err := s.Create(ctx, map[string]any{"title": "x"})
	if !IsCorrupt(err) {
		t.Errorf("create with counter at max = %v, want CORRUPT", err)
	}
	// Nothing committed: the counter is still pinned at max.
	if got := changeCounter(t, s); got != math.MaxInt64 {
		t.Errorf("counter = %d, want unchanged max", got)
	}
}
