package audit

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestionequipos/activos-api/internal/models"
)

func strPtr(s string) *string { return &s }

func equipmentSnap(site *string, siteName, notes string) Snapshot {
	return Snapshot{
		EntityType: EntityEquipment,
		EntityID:   "eq-1",
		Label:      "Laptop (SN-001)",
		SiteID:     site,
		Fields: []Field{
			Scalar("name", "Nombre", "Laptop"),
			Scalar("notes", "Observaciones", notes),
			Relation("site", "Sede", site, siteName),
		},
	}
}

func TestDiffIdenticalSnapshotsYieldsNothing(t *testing.T) {
	snap := equipmentSnap(strPtr("site-1"), "Bogota", "ok")

	records := Diff(snap, snap, nil)
	assert.Empty(t, records)
}

func TestDiffScalarChange(t *testing.T) {
	before := equipmentSnap(strPtr("site-1"), "Bogota", "old note")
	after := equipmentSnap(strPtr("site-1"), "Bogota", "new note")

	actor := strPtr("user-1")
	records := Diff(before, after, actor)
	require.Len(t, records, 1)

	rec := records[0]
	assert.Equal(t, models.ChangeUpdated, rec.Action)
	assert.Equal(t, "notes", rec.FieldName)
	assert.Equal(t, "Observaciones", rec.FieldLabel)
	assert.Equal(t, "old note", *rec.OldValue)
	assert.Equal(t, "new note", *rec.NewValue)
	assert.Equal(t, "user-1", *rec.ActorID)
	assert.Equal(t, EntityEquipment, rec.EntityType)
	assert.Equal(t, "eq-1", rec.EntityID)
	assert.Equal(t, "Laptop (SN-001)", rec.EntityLabel)
}

func TestDiffRelationComparedByID(t *testing.T) {
	// Same site id with a new display name is not a change.
	before := equipmentSnap(strPtr("site-1"), "Bogota", "ok")
	after := equipmentSnap(strPtr("site-1"), "Bogota DC", "ok")
	assert.Empty(t, Diff(before, after, nil))

	// A different site id with a new display name is a change.
	moved := equipmentSnap(strPtr("site-2"), "Medellin", "ok")
	records := Diff(before, moved, nil)
	require.Len(t, records, 1)
	assert.Equal(t, "site", records[0].FieldName)
	assert.Equal(t, "Bogota", *records[0].OldValue)
	assert.Equal(t, "Medellin", *records[0].NewValue)
}

func TestDiffRelationIdenticalDisplaySuppressed(t *testing.T) {
	// A ref change whose rendered value is the same would log
	// "Bogota" to "Bogota", so nothing is written.
	before := equipmentSnap(strPtr("site-1"), "Bogota", "ok")
	after := equipmentSnap(strPtr("site-2"), "Bogota", "ok")

	assert.Empty(t, Diff(before, after, nil))
}

func TestDiffRelationClearedRendersNone(t *testing.T) {
	before := equipmentSnap(strPtr("site-1"), "Bogota", "ok")
	after := equipmentSnap(nil, "", "ok")

	records := Diff(before, after, nil)
	require.Len(t, records, 1)
	assert.Equal(t, "Bogota", *records[0].OldValue)
	assert.Equal(t, NoneDisplay, *records[0].NewValue)
}

func TestDiffDifferentEntitiesPanics(t *testing.T) {
	a := equipmentSnap(nil, "", "ok")
	b := equipmentSnap(nil, "", "ok")
	b.EntityID = "eq-2"

	assert.Panics(t, func() { Diff(a, b, nil) })
}

func TestCreationSkipsEmptyFields(t *testing.T) {
	snap := Snapshot{
		EntityType: EntityEmployee,
		EntityID:   "emp-1",
		Label:      "Ana Diaz",
		Fields: []Field{
			Scalar("full_name", "Nombre completo", "Ana Diaz"),
			Scalar("phone", "Telefono", ""),
			Relation("site", "Sede", nil, ""),
		},
	}

	records := Creation(snap, strPtr("user-1"))
	require.Len(t, records, 1)
	assert.Equal(t, models.ChangeCreated, records[0].Action)
	assert.Equal(t, "full_name", records[0].FieldName)
	assert.Nil(t, records[0].OldValue)
	assert.Equal(t, "Ana Diaz", *records[0].NewValue)
}

func TestDeletionWritesSingleRecord(t *testing.T) {
	snap := Snapshot{
		EntityType: EntityEmployee,
		EntityID:   "emp-1",
		Label:      "Ana Diaz",
	}

	notice := "El empleado 'Ana Diaz' (ID: emp-1) fue eliminado."
	rec := Deletion(snap, notice, nil)

	assert.Equal(t, models.ChangeDeleted, rec.Action)
	assert.Equal(t, DeletionFieldName, rec.FieldName)
	assert.Equal(t, DeletionFieldLabel, rec.FieldLabel)
	assert.Equal(t, notice, *rec.OldValue)
	assert.Nil(t, rec.NewValue)
	assert.Nil(t, rec.ActorID)
}
