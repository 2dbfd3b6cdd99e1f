package storage

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/mod/semver"

	"github.com/roach88/remerge/internal/schema"
)

// UpgradeLocal replaces the active local schema with newLocal. Transitions
// that add dedupe_on fields require re-deduplicating stored records first,
// which is not implemented; those fail with NOT_YET_IMPLEMENTED and leave
// the stored schema and version untouched.
func (s *Store) UpgradeLocal(ctx context.Context, newLocal *schema.RecordSchema) error {
	if schema.UpgradeBetween(s.bundle.Local, newLocal) == schema.UpgradeRequiresDedupe {
		return notYetImplemented("upgrades that add additional items to dedupe_on")
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("upgrade local: begin tx: %w", err)
	}
	defer tx.Rollback()

	if err := insertSchemaRecord(ctx, tx, newLocal); err != nil {
		return err
	}
	if err := metaPut(ctx, tx, metaLocalSchemaVersion, newLocal.Version); err != nil {
		return err
	}
	if err := tx.Commit(); err != nil {
		return fmt.Errorf("upgrade local: commit: %w", err)
	}

	slog.Info("local schema upgraded",
		"collection", s.bundle.CollectionName,
		"from", s.bundle.Local.Version, "to", newLocal.Version)
	s.bundle.Local = newLocal
	return nil
}

// UpgradeRemoteAction is the directive the sync engine hands us when the
// server's schema moved: the schema the server upgraded from, or FreshServer
// when there was no prior state.
type UpgradeRemoteAction struct {
	FreshServer bool
	From        *schema.RecordSchema
}

// UpgradeRemote checks whether the server-side transition is one we can
// follow. Fresh servers and servers with no prior schema need nothing;
// transitions that add dedupe_on fields fail with NOT_YET_IMPLEMENTED.
func (s *Store) UpgradeRemote(action UpgradeRemoteAction) error {
	if action.FreshServer || action.From == nil {
		return nil
	}
	if schema.UpgradeBetween(action.From, s.bundle.Local) == schema.UpgradeRequiresDedupe {
		return notYetImplemented("upgrades that add additional items to dedupe_on")
	}
	return nil
}

// InSyncLockout reports whether the server has declared a minimum native
// version above ours, in which case sync should run metadata-only until the
// application upgrades.
//
// An unparsable stored threshold is logged and discarded rather than
// surfaced: the marker only exists to skip pointless sync attempts, so a bad
// value must not break anything.
func (s *Store) InSyncLockout(ctx context.Context) (bool, error) {
	stored, ok, err := metaTryGetString(ctx, s.db, metaSyncNativeVersionThreshold)
	if err != nil {
		return false, err
	}
	if !ok {
		return false, nil
	}
	if !semver.IsValid("v" + stored) {
		slog.Error("illegal version in sync lockout marker; discarding",
			"key", metaSyncNativeVersionThreshold, "value", stored)
		if err := metaDelete(ctx, s.db, metaSyncNativeVersionThreshold); err != nil {
			return false, err
		}
		return false, nil
	}
	return schema.CompareVersions(s.bundle.Native.Version, stored) < 0, nil
}
