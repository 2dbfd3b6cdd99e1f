package schema

import (
	"github.com/google/uuid"
)

// NativeRecord is a record in the shape the calling application understands,
// keyed by the native schema's field names.
type NativeRecord map[string]any

// LocalRecord is the same logical record re-projected into the currently
// active local schema's shape. This is what gets persisted.
type LocalRecord map[string]any

// ToLocalReason tells NativeToLocal why the conversion is happening.
// Creation may run creation-only defaulting (notably generating the own
// guid); Update carries the previous local record for fields whose update
// semantics depend on the prior value.
type ToLocalReason struct {
	update bool
	prev   LocalRecord
}

// Creation is the reason for a brand-new record.
func Creation() ToLocalReason { return ToLocalReason{} }

// Update is the reason for an edit of an existing record.
func Update(prev LocalRecord) ToLocalReason {
	return ToLocalReason{update: true, prev: prev}
}

// SchemaBundle pairs the native and local schemas for a collection and owns
// the conversions between them. Native and Local may differ in version while
// a schema upgrade is pending.
type SchemaBundle struct {
	CollectionName string
	Native         *RecordSchema
	Local          *RecordSchema
}

// NativeToLocal validates a native record and projects it into local shape,
// returning the record's guid alongside the converted record.
func (b *SchemaBundle) NativeToLocal(rec NativeRecord, reason ToLocalReason) (string, LocalRecord, error) {
	if rec == nil {
		return "", nil, &ValidationError{Code: ErrCodeNotAnObject}
	}
	var guid string
	out := make(LocalRecord, len(b.Native.Fields))
	for i := range b.Native.Fields {
		f := &b.Native.Fields[i]
		local := f.EffectiveLocalName()

		val, present := rec[f.Name]
		if !present || val == nil {
			switch {
			case f.Type == KindOwnGuid && !reason.update:
				guid = newGuid()
				out[local] = guid
				continue
			case f.Type == KindOwnGuid:
				// Updates must identify the record they edit.
				return "", nil, &ValidationError{Code: ErrCodeInvalidGuid, Field: f.Name}
			case f.Default != nil:
				out[local] = f.Default
				continue
			case f.Required:
				return "", nil, &ValidationError{Code: ErrCodeMissingRequiredField, Field: f.Name}
			default:
				continue
			}
		}

		checked, err := validateValue(f, val)
		if err != nil {
			return "", nil, err
		}
		if f.Type == KindOwnGuid {
			guid = checked.(string)
		}
		if f.Type == KindUntypedMap && reason.update {
			checked = mergeUntypedMap(reason.prev[local], checked.(map[string]any))
		}
		out[local] = checked
	}
	return guid, out, nil
}

// LocalToNative re-projects a stored record into native field names. Local
// fields not declared by the local schema are dropped; validation already
// happened on the way in.
func (b *SchemaBundle) LocalToNative(rec LocalRecord) (NativeRecord, error) {
	if rec == nil {
		return nil, &ValidationError{Code: ErrCodeNotAnObject}
	}
	out := make(NativeRecord, len(rec))
	for i := range b.Local.Fields {
		f := &b.Local.Fields[i]
		if val, ok := rec[f.EffectiveLocalName()]; ok {
			out[f.Name] = val
		}
	}
	return out, nil
}

// DedupeValues extracts the local record's dedupe-key fields, in dedupe_on
// order. Missing fields come back as nil entries so that keysets of unequal
// shape never spuriously collide.
func (b *SchemaBundle) DedupeValues(rec LocalRecord) []any {
	fields := b.Local.DedupeFields()
	out := make([]any, len(fields))
	for i, f := range fields {
		out[i] = rec[f.EffectiveLocalName()]
	}
	return out
}

// mergeUntypedMap lays the new value over the previous one: keys absent from
// the update keep their prior values.
func mergeUntypedMap(prev any, next map[string]any) map[string]any {
	prevMap, ok := prev.(map[string]any)
	if !ok || len(prevMap) == 0 {
		return next
	}
	merged := make(map[string]any, len(prevMap)+len(next))
	for k, v := range prevMap {
		merged[k] = v
	}
	for k, v := range next {
		merged[k] = v
	}
	return merged
}

// newGuid mints a time-sortable UUIDv7 for creation-time guid defaulting.
func newGuid() string {
	return uuid.Must(uuid.NewV7()).String()
}
