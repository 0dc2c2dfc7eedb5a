package audit

import (
	"github.com/gestionequipos/activos-api/internal/models"
)

// DeletionFieldName marks the single change record written when an
// entity is removed.
const (
	DeletionFieldName  = "record"
	DeletionFieldLabel = "Registro completo"
)

// Diff compares two snapshots of the same entity and returns one
// UPDATED change record per field whose value differs. Relations are
// compared by referenced id first, so renaming a referenced row does
// not produce spurious changes, and a ref change whose display text is
// identical emits nothing. Diffing a snapshot against itself yields no
// records. Both snapshots must describe the same entity.
func Diff(before, after Snapshot, actorID *string) []models.ChangeRecord {
	if before.EntityType != after.EntityType || before.EntityID != after.EntityID {
		panic("audit: diff of snapshots from different entities")
	}

	var records []models.ChangeRecord
	for _, next := range after.Fields {
		prev, ok := before.field(next.Name)
		if !ok || fieldsEqual(prev, next) {
			continue
		}
		oldVal := prev.Display
		newVal := next.Display
		records = append(records, models.ChangeRecord{
			EntityType:  after.EntityType,
			EntityID:    after.EntityID,
			EntityLabel: after.Label,
			SiteID:      after.SiteID,
			Action:      models.ChangeUpdated,
			FieldName:   next.Name,
			FieldLabel:  next.Label,
			OldValue:    &oldVal,
			NewValue:    &newVal,
			ActorID:     actorID,
		})
	}
	return records
}

// Creation returns one CREATED change record per non-empty field of a
// freshly inserted entity. Unset fields are skipped rather than logged
// as transitions from nothing to nothing.
func Creation(snap Snapshot, actorID *string) []models.ChangeRecord {
	var records []models.ChangeRecord
	for _, f := range snap.Fields {
		if f.Empty() {
			continue
		}
		newVal := f.Display
		records = append(records, models.ChangeRecord{
			EntityType:  snap.EntityType,
			EntityID:    snap.EntityID,
			EntityLabel: snap.Label,
			SiteID:      snap.SiteID,
			Action:      models.ChangeCreated,
			FieldName:   f.Name,
			FieldLabel:  f.Label,
			NewValue:    &newVal,
			ActorID:     actorID,
		})
	}
	return records
}

// Deletion returns the single DELETED change record written when an
// entity is removed. The notice keeps a human-readable account of what
// disappeared since the source row is gone.
func Deletion(snap Snapshot, notice string, actorID *string) models.ChangeRecord {
	return models.ChangeRecord{
		EntityType:  snap.EntityType,
		EntityID:    snap.EntityID,
		EntityLabel: snap.Label,
		SiteID:      snap.SiteID,
		Action:      models.ChangeDeleted,
		FieldName:   DeletionFieldName,
		FieldLabel:  DeletionFieldLabel,
		OldValue:    &notice,
		ActorID:     actorID,
	}
}

func fieldsEqual(a, b Field) bool {
	if a.Kind == KindRelation || b.Kind == KindRelation {
		if a.Ref == nil && b.Ref == nil {
			return true
		}
		if a.Ref != nil && b.Ref != nil && *a.Ref == *b.Ref {
			return true
		}
		// A relation change that reads identically would produce a
		// record saying nothing changed, so it is suppressed.
		return a.Display == b.Display
	}
	return a.Display == b.Display
}
