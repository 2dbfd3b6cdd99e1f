package schema

// UpgradeKind classifies a schema-version transition.
type UpgradeKind int

const (
	// UpgradeNoOp: source and target are the same version.
	UpgradeNoOp UpgradeKind = iota

	// UpgradeCompatible: the transition is additive and safe to apply.
	UpgradeCompatible

	// UpgradeRequiresDedupe: the target introduces dedupe_on fields the
	// source did not have. Already-stored records could retroactively
	// collide, so the upgrade must re-deduplicate before it is safe.
	UpgradeRequiresDedupe
)

func (k UpgradeKind) String() string {
	switch k {
	case UpgradeNoOp:
		return "no-op"
	case UpgradeCompatible:
		return "compatible"
	case UpgradeRequiresDedupe:
		return "requires-dedupe"
	}
	return "unknown"
}

// UpgradeBetween classifies the transition from source to target.
func UpgradeBetween(source, target *RecordSchema) UpgradeKind {
	srcDedupe := make(map[string]bool, len(source.DedupeOn))
	for _, name := range source.DedupeOn {
		srcDedupe[name] = true
	}
	for _, name := range target.DedupeOn {
		if !srcDedupe[name] {
			return UpgradeRequiresDedupe
		}
	}
	if CompareVersions(source.Version, target.Version) == 0 {
		return UpgradeNoOp
	}
	return UpgradeCompatible
}
