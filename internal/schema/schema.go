// Package schema implements the record schema language consumed by the
// storage engine: parsing schema documents, validating records against them,
// and converting records between their native (application-facing) and local
// (on-disk) shapes via SchemaBundle.
package schema

import (
	_ "embed"
	"encoding/json"
	"fmt"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cuejson "cuelang.org/go/encoding/json"
	"golang.org/x/mod/semver"
)

//go:embed schema.cue
var schemaCUE string

// FieldKind identifies the type of a schema field.
type FieldKind string

const (
	KindOwnGuid    FieldKind = "own_guid"
	KindText       FieldKind = "text"
	KindURL        FieldKind = "url"
	KindInteger    FieldKind = "integer"
	KindReal       FieldKind = "real"
	KindBoolean    FieldKind = "boolean"
	KindTimestamp  FieldKind = "timestamp"
	KindUntypedMap FieldKind = "untyped_map"
	KindRecordSet  FieldKind = "record_set"
)

// Field describes one field of a record schema.
type Field struct {
	Name      string    `json:"name"`
	LocalName string    `json:"local_name,omitempty"`
	Type      FieldKind `json:"type"`
	Required  bool      `json:"required,omitempty"`
	Default   any       `json:"default,omitempty"`
	Min       *float64  `json:"min,omitempty"`
	Max       *float64  `json:"max,omitempty"`
	// IDKey is the member key identifying record_set entries.
	IDKey string `json:"id_key,omitempty"`
}

// EffectiveLocalName returns the column-side name for the field: LocalName
// if declared, Name otherwise.
func (f *Field) EffectiveLocalName() string {
	if f.LocalName != "" {
		return f.LocalName
	}
	return f.Name
}

type schemaDoc struct {
	Name            string   `json:"name"`
	Version         string   `json:"version"`
	RequiredVersion string   `json:"required_version,omitempty"`
	Legacy          bool     `json:"legacy,omitempty"`
	Fields          []Field  `json:"fields"`
	DedupeOn        []string `json:"dedupe_on,omitempty"`
}

// RecordSchema is a parsed, semantically-checked schema document.
type RecordSchema struct {
	Name            string
	Version         string
	RequiredVersion string
	Legacy          bool
	Fields          []Field
	DedupeOn        []string
	// Source is the exact text the schema was parsed from; it is what gets
	// persisted in the schemas table.
	Source string

	ownGuid int
}

// Parse validates and decodes a schema document. The text must be a JSON
// object satisfying the embedded CUE definition; semantic rules (semver
// versions, exactly one own_guid field, dedupe_on referential integrity) are
// checked afterwards.
func Parse(text string) (*RecordSchema, error) {
	if err := checkStructure(text); err != nil {
		return nil, err
	}
	var doc schemaDoc
	if err := json.Unmarshal([]byte(text), &doc); err != nil {
		return nil, &ParseError{Message: "decode schema document", Err: err}
	}
	s := &RecordSchema{
		Name:            doc.Name,
		Version:         doc.Version,
		RequiredVersion: doc.RequiredVersion,
		Legacy:          doc.Legacy,
		Fields:          doc.Fields,
		DedupeOn:        doc.DedupeOn,
		Source:          text,
		ownGuid:         -1,
	}
	if s.RequiredVersion == "" {
		s.RequiredVersion = s.Version
	}
	if err := s.check(); err != nil {
		return nil, err
	}
	return s, nil
}

// checkStructure unifies the document with the embedded #Schema definition.
func checkStructure(text string) error {
	ctx := cuecontext.New()
	defs := ctx.CompileString(schemaCUE)
	if err := defs.Err(); err != nil {
		return &ParseError{Message: "compile schema definition", Err: err}
	}
	expr, err := cuejson.Extract("schema.json", []byte(text))
	if err != nil {
		return &ParseError{Message: "schema text is not valid JSON", Err: err}
	}
	doc := ctx.BuildExpr(expr)
	if err := doc.Err(); err != nil {
		return &ParseError{Message: "build schema document", Err: err}
	}
	unified := defs.LookupPath(cue.ParsePath("#Schema")).Unify(doc)
	if err := unified.Validate(cue.Concrete(true), cue.Final()); err != nil {
		return &ParseError{Message: "schema document is malformed", Err: err}
	}
	return nil
}

func (s *RecordSchema) check() error {
	if !semver.IsValid("v" + s.Version) {
		return parseErrorf("version %q is not a valid semver", s.Version)
	}
	if !semver.IsValid("v" + s.RequiredVersion) {
		return parseErrorf("required_version %q is not a valid semver", s.RequiredVersion)
	}
	if CompareVersions(s.RequiredVersion, s.Version) > 0 {
		return parseErrorf("required_version %q is above version %q", s.RequiredVersion, s.Version)
	}

	seen := make(map[string]bool, len(s.Fields))
	for i := range s.Fields {
		f := &s.Fields[i]
		for _, n := range []string{f.Name, f.EffectiveLocalName()} {
			if seen[n] {
				return parseErrorf("duplicate field name %q", n)
			}
		}
		seen[f.Name] = true
		seen[f.EffectiveLocalName()] = true

		switch f.Type {
		case KindOwnGuid:
			if s.ownGuid >= 0 {
				return parseErrorf("more than one own_guid field (%q and %q)",
					s.Fields[s.ownGuid].Name, f.Name)
			}
			if f.Default != nil {
				return parseErrorf("own_guid field %q cannot have a default", f.Name)
			}
			s.ownGuid = i
		case KindRecordSet:
			if f.IDKey == "" {
				return parseErrorf("record_set field %q must declare id_key", f.Name)
			}
		}
		if f.Default != nil {
			if _, err := validateValue(f, f.Default); err != nil {
				return &ParseError{
					Message: fmt.Sprintf("default for field %q does not validate", f.Name),
					Err:     err,
				}
			}
		}
	}
	if s.ownGuid < 0 {
		return parseErrorf("schema %q has no own_guid field", s.Name)
	}

	for _, name := range s.DedupeOn {
		f := s.FieldByName(name)
		if f == nil {
			return parseErrorf("dedupe_on references unknown field %q", name)
		}
		switch f.Type {
		case KindOwnGuid, KindUntypedMap, KindRecordSet:
			return parseErrorf("dedupe_on field %q has undedupable type %q", name, f.Type)
		}
	}
	return nil
}

// OwnGuid returns the schema's declared own-guid field.
func (s *RecordSchema) OwnGuid() *Field {
	return &s.Fields[s.ownGuid]
}

// FieldByName looks a field up by its native name. Returns nil if absent.
func (s *RecordSchema) FieldByName(name string) *Field {
	for i := range s.Fields {
		if s.Fields[i].Name == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// FieldByLocalName looks a field up by its local (on-disk) name.
func (s *RecordSchema) FieldByLocalName(name string) *Field {
	for i := range s.Fields {
		if s.Fields[i].EffectiveLocalName() == name {
			return &s.Fields[i]
		}
	}
	return nil
}

// DedupeFields resolves dedupe_on to the declared fields.
func (s *RecordSchema) DedupeFields() []*Field {
	out := make([]*Field, 0, len(s.DedupeOn))
	for _, name := range s.DedupeOn {
		out = append(out, s.FieldByName(name))
	}
	return out
}

// CompareVersions orders two schema versions. Both must already have passed
// Parse-time semver validation. Returns -1, 0, or +1.
func CompareVersions(a, b string) int {
	return semver.Compare("v"+a, "v"+b)
}
