package repository

import (
	"context"
	"database/sql"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestionequipos/activos-api/internal/models"
)

func TestAssignmentRepositoryFindOpen(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	rows := sqlmock.NewRows([]string{"id", "asset_type", "asset_id", "asset_label", "employee_id", "employee_label",
		"site_id", "started_at", "ended_at", "end_reason", "decommission", "decommissioned_at", "created_at"}).
		AddRow("as-1", string(models.AssetEquipment), "eq-1", "Laptop (SN-001)", "emp-1", "Ana Diaz",
			"site-1", time.Now(), nil, nil, false, nil, time.Now())

	mock.ExpectQuery("SELECT .+ FROM assignment_records WHERE asset_type = \\$1 AND asset_id = \\$2 AND ended_at IS NULL").
		WithArgs(string(models.AssetEquipment), "eq-1").
		WillReturnRows(rows)

	record, err := repo.FindOpen(context.Background(), nil, models.AssetEquipment, "eq-1")
	require.NoError(t, err)
	assert.True(t, record.Open())
	assert.Equal(t, "Ana Diaz", record.EmployeeLabel)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryFindOpenNone(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectQuery("SELECT .+ FROM assignment_records").
		WithArgs(string(models.AssetEquipment), "eq-9").
		WillReturnError(sql.ErrNoRows)

	_, err := repo.FindOpen(context.Background(), nil, models.AssetEquipment, "eq-9")
	assert.ErrorIs(t, err, sql.ErrNoRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryCloseOpen(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	endedAt := time.Now().UTC()
	mock.ExpectExec(regexp.QuoteMeta("UPDATE assignment_records SET ended_at = $3, end_reason = $4")).
		WithArgs(string(models.AssetEquipment), "eq-1", endedAt, models.AssignmentEndReassigned).
		WillReturnResult(sqlmock.NewResult(0, 1))

	closed, err := repo.CloseOpen(context.Background(), nil, models.AssetEquipment, "eq-1", models.AssignmentEndReassigned, endedAt)
	require.NoError(t, err)
	assert.Equal(t, 1, closed)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryInsert(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO assignment_records")).
		WithArgs(sqlmock.AnyArg(), string(models.AssetEquipment), "eq-1", "Laptop (SN-001)", "emp-1", "Ana Diaz",
			sqlmock.AnyArg(), sqlmock.AnyArg(), nil, nil, false, nil, sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	emp := "emp-1"
	record := &models.AssignmentRecord{
		AssetType:     models.AssetEquipment,
		AssetID:       "eq-1",
		AssetLabel:    "Laptop (SN-001)",
		EmployeeID:    &emp,
		EmployeeLabel: "Ana Diaz",
	}
	require.NoError(t, repo.Insert(context.Background(), nil, record))
	assert.NotEmpty(t, record.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestAssignmentRepositoryCountOpenByEmployee(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewAssignmentRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM assignment_records WHERE employee_id = $1 AND ended_at IS NULL")).
		WithArgs("emp-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(3))

	count, err := repo.CountOpenByEmployee(context.Background(), "emp-1")
	require.NoError(t, err)
	assert.Equal(t, 3, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
