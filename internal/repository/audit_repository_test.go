package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestionequipos/activos-api/internal/models"
)

func TestAuditRepositoryInsertMany(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	oldVal := "Bogota"
	newVal := "Medellin"
	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO change_records")).
		WithArgs(sqlmock.AnyArg(), "EQUIPMENT", "eq-1", "Laptop (SN-001)", nil, string(models.ChangeUpdated),
			"site", "Sede", oldVal, newVal, nil, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	records := []models.ChangeRecord{{
		EntityType:  "EQUIPMENT",
		EntityID:    "eq-1",
		EntityLabel: "Laptop (SN-001)",
		Action:      models.ChangeUpdated,
		FieldName:   "site",
		FieldLabel:  "Sede",
		OldValue:    &oldVal,
		NewValue:    &newVal,
	}}
	require.NoError(t, repo.InsertMany(context.Background(), nil, records))
	assert.NotEmpty(t, records[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryInsertManyEmptyIsNoop(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	require.NoError(t, repo.InsertMany(context.Background(), nil, nil))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAuditRepositoryList(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAuditRepository(db)

	entityID := "eq-1"
	rows := sqlmock.NewRows([]string{"id", "entity_type", "entity_id", "entity_label", "site_id", "action",
		"field_name", "field_label", "old_value", "new_value", "actor_id", "actor_name", "created_at"}).
		AddRow("ch-1", "EQUIPMENT", entityID, "Laptop (SN-001)", nil, string(models.ChangeUpdated),
			"site", "Sede", "Bogota", "Medellin", nil, nil, time.Now())

	mock.ExpectQuery("SELECT .+ FROM change_records").
		WithArgs(entityID).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs(entityID).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	records, total, err := repo.List(context.Background(), models.ChangeRecordFilter{EntityID: &entityID})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, records, 1)
	assert.Equal(t, "Medellin", *records[0].NewValue)
	assert.NoError(t, mock.ExpectationsWereMet())
}
