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

func TestEquipmentRepositoryFindByIDForUpdate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEquipmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "serial", "inventory_tag", "name", "brand", "model", "category", "state",
		"availability", "site_id", "assigned_employee_id", "purchase_date", "warranty_until", "last_maintenance_at",
		"next_maintenance_at", "notes", "active", "created_at", "updated_at"}).
		AddRow("eq-1", "SN-001", nil, "Laptop", nil, nil, nil, string(models.EquipmentStateGood),
			string(models.EquipmentAvailable), "site-1", nil, nil, nil, nil, nil, nil, true, time.Now(), time.Now())

	mock.ExpectQuery("SELECT .+ FROM equipment WHERE id = \\$1 FOR UPDATE").
		WithArgs("eq-1").
		WillReturnRows(rows)

	item, err := repo.FindByIDForUpdate(context.Background(), nil, "eq-1")
	require.NoError(t, err)
	assert.Equal(t, "SN-001", item.Serial)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEquipmentRepositoryListFiltersBySite(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEquipmentRepository(db)

	site := "site-1"
	rows := sqlmock.NewRows([]string{"id", "serial", "inventory_tag", "name", "brand", "model", "category", "state",
		"availability", "site_id", "site_name", "assigned_employee_id", "assigned_employee", "purchase_date",
		"warranty_until", "last_maintenance_at", "next_maintenance_at", "notes", "active", "created_at", "updated_at"}).
		AddRow("eq-1", "SN-001", nil, "Laptop", nil, nil, nil, string(models.EquipmentStateGood),
			string(models.EquipmentAvailable), site, "Bogota", nil, nil, nil, nil, nil, nil, nil, true, time.Now(), time.Now())

	mock.ExpectQuery("SELECT .+ FROM equipment e").
		WithArgs(site).
		WillReturnRows(rows)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs(site).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(1))

	items, total, err := repo.List(context.Background(), models.EquipmentFilter{SiteID: &site})
	require.NoError(t, err)
	assert.Equal(t, 1, total)
	require.Len(t, items, 1)
	assert.Equal(t, "Bogota", *items[0].SiteName)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEquipmentRepositoryListFiltersByMaintenanceStatus(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEquipmentRepository(db)

	empty := sqlmock.NewRows([]string{"id", "serial", "inventory_tag", "name", "brand", "model", "category", "state",
		"availability", "site_id", "site_name", "assigned_employee_id", "assigned_employee", "purchase_date",
		"warranty_until", "last_maintenance_at", "next_maintenance_at", "notes", "active", "created_at", "updated_at"})

	mock.ExpectQuery(`SELECT .+ FROM equipment e.+next_maintenance_at IS NOT NULL AND e\.next_maintenance_at < \$1`).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(empty)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs(sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, _, err := repo.List(context.Background(), models.EquipmentFilter{MaintenanceStatus: models.MaintenanceStatusOverdue})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())

	upcoming := sqlmock.NewRows([]string{"id", "serial", "inventory_tag", "name", "brand", "model", "category", "state",
		"availability", "site_id", "site_name", "assigned_employee_id", "assigned_employee", "purchase_date",
		"warranty_until", "last_maintenance_at", "next_maintenance_at", "notes", "active", "created_at", "updated_at"})

	mock.ExpectQuery(`SELECT .+ FROM equipment e.+next_maintenance_at >= \$1 AND e\.next_maintenance_at <= \$2`).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(upcoming)
	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*)")).
		WithArgs(sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(0))

	_, _, err = repo.List(context.Background(), models.EquipmentFilter{MaintenanceStatus: models.MaintenanceStatusUpcoming})
	require.NoError(t, err)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEquipmentRepositorySetMaintenanceDates(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEquipmentRepository(db)

	last := time.Now().UTC()
	next := last.AddDate(0, 0, 180)
	mock.ExpectExec(regexp.QuoteMeta("UPDATE equipment SET last_maintenance_at = $2, next_maintenance_at = $3, updated_at = $4 WHERE id = $1")).
		WithArgs("eq-1", last, next, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	require.NoError(t, repo.SetMaintenanceDates(context.Background(), nil, "eq-1", &last, &next))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestEquipmentRepositoryExistsBySerial(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewEquipmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM equipment WHERE LOWER(serial) = LOWER($1)")).
		WithArgs("SN-001").
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(1))

	exists, err := repo.ExistsBySerial(context.Background(), "SN-001", "")
	require.NoError(t, err)
	assert.True(t, exists)
	assert.NoError(t, mock.ExpectationsWereMet())
}
