// Package audit computes field-level change records from entity
// snapshots taken before and after a mutation.
package audit

// NoneDisplay is the rendered value for empty or unset fields.
const NoneDisplay = "Ninguno"

// FieldKind distinguishes plain values from references to other rows.
type FieldKind int

const (
	KindScalar FieldKind = iota
	KindRelation
)

// Field is one tracked attribute of an entity. Relations carry the
// referenced row id in Ref and a human-readable Display; equality for
// relations is decided by Ref, never by Display.
type Field struct {
	Name    string
	Label   string
	Kind    FieldKind
	Display string
	Ref     *string
}

// Empty reports whether the field carries no value worth auditing.
func (f Field) Empty() bool {
	if f.Kind == KindRelation {
		return f.Ref == nil
	}
	return f.Display == "" || f.Display == NoneDisplay
}

// Scalar builds a plain-value field. An empty display renders as
// NoneDisplay in change records.
func Scalar(name, label, display string) Field {
	if display == "" {
		display = NoneDisplay
	}
	return Field{Name: name, Label: label, Kind: KindScalar, Display: display}
}

// Relation builds a reference field. A nil ref means the relation is
// unset and renders as NoneDisplay.
func Relation(name, label string, ref *string, display string) Field {
	if ref == nil || display == "" {
		display = NoneDisplay
	}
	return Field{Name: name, Label: label, Kind: KindRelation, Display: display, Ref: ref}
}

// Snapshot is a point-in-time capture of an entity's tracked fields.
// Label is denormalized into every change record so history stays
// readable after the entity is deleted.
type Snapshot struct {
	EntityType string
	EntityID   string
	Label      string
	SiteID     *string
	Fields     []Field
}

// field returns the named field and whether it exists.
func (s Snapshot) field(name string) (Field, bool) {
	for _, f := range s.Fields {
		if f.Name == name {
			return f, true
		}
	}
	return Field{}, false
}
