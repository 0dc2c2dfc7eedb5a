package repository

import (
	"context"
	"regexp"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestionequipos/activos-api/internal/models"
)

func newRepoMock(t *testing.T) (*sqlx.DB, sqlmock.Sqlmock, func()) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	return sqlx.NewDb(db, "sqlmock"), mock, func() { db.Close() }
}

func TestMaintenanceRepositoryCreate(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMaintenanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO maintenance_records")).
		WithArgs(sqlmock.AnyArg(), "eq-1", string(models.MaintenancePreventive), string(models.MaintenancePending),
			"clean fans", nil, sqlmock.AnyArg(), nil, nil, nil, nil, nil, sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	record := &models.MaintenanceRecord{
		EquipmentID:    "eq-1",
		Kind:           models.MaintenancePreventive,
		State:          models.MaintenancePending,
		Description:    "clean fans",
		ScheduledStart: time.Now().UTC(),
	}
	err := repo.Create(context.Background(), nil, record)
	require.NoError(t, err)
	assert.NotEmpty(t, record.ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaintenanceRepositoryHasOpenForEquipment(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMaintenanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM maintenance_records WHERE equipment_id = $1 AND state IN ($2, $3) LIMIT 1")).
		WithArgs("eq-1", string(models.MaintenancePending), string(models.MaintenanceInProgress)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}).AddRow(1))

	open, err := repo.HasOpenForEquipment(context.Background(), nil, "eq-1")
	require.NoError(t, err)
	assert.True(t, open)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT 1 FROM maintenance_records WHERE equipment_id = $1 AND state IN ($2, $3) LIMIT 1")).
		WithArgs("eq-2", string(models.MaintenancePending), string(models.MaintenanceInProgress)).
		WillReturnRows(sqlmock.NewRows([]string{"exists"}))

	open, err = repo.HasOpenForEquipment(context.Background(), nil, "eq-2")
	require.NoError(t, err)
	assert.False(t, open)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaintenanceRepositoryUpcoming(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMaintenanceRepository(db)

	until := time.Now().UTC().AddDate(0, 0, 30)
	site := "site-1"
	end := until.AddDate(0, 0, -5)
	rows := sqlmock.NewRows([]string{"id", "equipment_id", "equipment_label", "equipment_serial", "site_id", "kind",
		"state", "description", "technician", "scheduled_start", "scheduled_end", "actual_completion", "cost", "notes",
		"created_by", "created_at", "updated_at"}).
		AddRow("mnt-1", "eq-1", "Laptop (SN-001)", "SN-001", site, string(models.MaintenancePreventive),
			string(models.MaintenancePending), "clean fans", nil, time.Now(), end, nil, nil, nil,
			nil, time.Now(), time.Now())

	mock.ExpectQuery("SELECT .+ FROM maintenance_records m").
		WithArgs(string(models.MaintenancePending), string(models.MaintenanceInProgress), until, site).
		WillReturnRows(rows)

	records, err := repo.Upcoming(context.Background(), &site, until, 10)
	require.NoError(t, err)
	require.Len(t, records, 1)
	assert.Equal(t, "mnt-1", records[0].ID)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaintenanceRepositoryInsertAction(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMaintenanceRepository(db)

	mock.ExpectExec(regexp.QuoteMeta("INSERT INTO maintenance_actions")).
		WithArgs(sqlmock.AnyArg(), "mnt-1", "START", nil, sqlmock.AnyArg(), sqlmock.AnyArg(), sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(1, 1))

	actor := "user-1"
	actorName := "Ana Diaz"
	action := &models.MaintenanceActionLog{
		MaintenanceID: "mnt-1",
		Action:        "START",
		ActorID:       &actor,
		ActorName:     &actorName,
	}
	require.NoError(t, repo.InsertAction(context.Background(), nil, action))
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestMaintenanceRepositoryCountEvidence(t *testing.T) {
	db, mock, cleanup := newRepoMock(t)
	defer cleanup()
	repo := NewMaintenanceRepository(db)

	mock.ExpectQuery(regexp.QuoteMeta("SELECT COUNT(*) FROM maintenance_evidence WHERE maintenance_id = $1")).
		WithArgs("mnt-1").
		WillReturnRows(sqlmock.NewRows([]string{"count"}).AddRow(2))

	count, err := repo.CountEvidence(context.Background(), nil, "mnt-1")
	require.NoError(t, err)
	assert.Equal(t, 2, count)
	assert.NoError(t, mock.ExpectationsWereMet())
}
