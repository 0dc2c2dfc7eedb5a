package service

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestionequipos/activos-api/internal/authz"
	"github.com/gestionequipos/activos-api/internal/models"
	"github.com/gestionequipos/activos-api/pkg/config"
	appErrors "github.com/gestionequipos/activos-api/pkg/errors"
	"github.com/gestionequipos/activos-api/pkg/storage"
)

type txProviderMock struct {
	db *sqlx.DB
}

func newTxProviderMock(t *testing.T) (txProvider, sqlmock.Sqlmock) {
	db, mock, err := sqlmock.New(sqlmock.QueryMatcherOption(sqlmock.QueryMatcherRegexp))
	require.NoError(t, err)
	sqlxdb := sqlx.NewDb(db, "sqlmock")
	t.Cleanup(func() { db.Close() })
	return &txProviderMock{db: sqlxdb}, mock
}

func (t *txProviderMock) BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error) {
	return t.db.BeginTxx(ctx, opts)
}

type maintenanceRepoMock struct {
	record        *models.MaintenanceRecord
	hasOpen       bool
	evidenceCount int
	created       *models.MaintenanceRecord
	updated       *models.MaintenanceRecord
	actions       []models.MaintenanceActionLog
}

func (m *maintenanceRepoMock) List(ctx context.Context, filter models.MaintenanceFilter) ([]models.MaintenanceRecord, int, error) {
	if m.record == nil {
		return []models.MaintenanceRecord{}, 0, nil
	}
	return []models.MaintenanceRecord{*m.record}, 1, nil
}

func (m *maintenanceRepoMock) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.MaintenanceRecord, error) {
	if m.record == nil || m.record.ID != id {
		return nil, sql.ErrNoRows
	}
	clone := *m.record
	return &clone, nil
}

func (m *maintenanceRepoMock) HasOpenForEquipment(ctx context.Context, exec sqlx.ExtContext, equipmentID string) (bool, error) {
	return m.hasOpen, nil
}

func (m *maintenanceRepoMock) Create(ctx context.Context, exec sqlx.ExtContext, record *models.MaintenanceRecord) error {
	record.ID = "mnt-new"
	m.created = record
	stored := *record
	m.record = &stored
	return nil
}

func (m *maintenanceRepoMock) Update(ctx context.Context, exec sqlx.ExtContext, record *models.MaintenanceRecord) error {
	stored := *record
	m.updated = &stored
	m.record = &stored
	return nil
}

func (m *maintenanceRepoMock) Upcoming(ctx context.Context, siteID *string, until time.Time, limit int) ([]models.MaintenanceRecord, error) {
	return []models.MaintenanceRecord{}, nil
}

func (m *maintenanceRepoMock) InsertEvidence(ctx context.Context, exec sqlx.ExtContext, evidence *models.MaintenanceEvidence) error {
	evidence.ID = "ev-new"
	m.evidenceCount++
	return nil
}

func (m *maintenanceRepoMock) FindEvidence(ctx context.Context, id string) (*models.MaintenanceEvidence, error) {
	return nil, sql.ErrNoRows
}

func (m *maintenanceRepoMock) ListEvidence(ctx context.Context, maintenanceID string) ([]models.MaintenanceEvidence, error) {
	return []models.MaintenanceEvidence{}, nil
}

func (m *maintenanceRepoMock) CountEvidence(ctx context.Context, exec sqlx.ExtContext, maintenanceID string) (int, error) {
	return m.evidenceCount, nil
}

func (m *maintenanceRepoMock) DeleteEvidence(ctx context.Context, id string) error {
	return nil
}

func (m *maintenanceRepoMock) InsertAction(ctx context.Context, exec sqlx.ExtContext, action *models.MaintenanceActionLog) error {
	m.actions = append(m.actions, *action)
	return nil
}

func (m *maintenanceRepoMock) ListActions(ctx context.Context, maintenanceID string) ([]models.MaintenanceActionLog, error) {
	return m.actions, nil
}

type maintenanceEquipmentMock struct {
	equipment    *models.Equipment
	availability []models.EquipmentAvailability
	last         *time.Time
	next         *time.Time
}

func (m *maintenanceEquipmentMock) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Equipment, error) {
	if m.equipment == nil || m.equipment.ID != id {
		return nil, sql.ErrNoRows
	}
	clone := *m.equipment
	return &clone, nil
}

func (m *maintenanceEquipmentMock) SetMaintenanceDates(ctx context.Context, exec sqlx.ExtContext, id string, last, next *time.Time) error {
	m.last = last
	m.next = next
	return nil
}

func (m *maintenanceEquipmentMock) SetAvailability(ctx context.Context, exec sqlx.ExtContext, id string, availability models.EquipmentAvailability) error {
	m.availability = append(m.availability, availability)
	return nil
}

type changeWriterMock struct {
	batches [][]models.ChangeRecord
}

func (m *changeWriterMock) InsertMany(ctx context.Context, exec sqlx.ExtContext, records []models.ChangeRecord) error {
	if len(records) > 0 {
		m.batches = append(m.batches, records)
	}
	return nil
}

type evidenceStoreMock struct {
	saved   []string
	deleted []string
}

func (m *evidenceStoreMock) Save(filename string, data []byte) (string, error) {
	m.saved = append(m.saved, filename)
	return filename, nil
}

func (m *evidenceStoreMock) Open(filename string) (*os.File, error) {
	return nil, os.ErrNotExist
}

func (m *evidenceStoreMock) Delete(filename string) error {
	m.deleted = append(m.deleted, filename)
	return nil
}

type maintenanceFixture struct {
	service   *MaintenanceService
	repo      *maintenanceRepoMock
	equipment *maintenanceEquipmentMock
	changes   *changeWriterMock
	store     *evidenceStoreMock
	mock      sqlmock.Sqlmock
}

func newMaintenanceFixture(t *testing.T) *maintenanceFixture {
	tx, mock := newTxProviderMock(t)
	site := "site-1"
	repo := &maintenanceRepoMock{}
	equipment := &maintenanceEquipmentMock{
		equipment: &models.Equipment{
			ID:           "eq-1",
			Serial:       "SN-001",
			Name:         "Laptop Dell",
			State:        models.EquipmentStateGood,
			Availability: models.EquipmentAvailable,
			SiteID:       &site,
			Active:       true,
		},
	}
	changes := &changeWriterMock{}
	store := &evidenceStoreMock{}
	signer := storage.NewSignedURLSigner("test-secret", time.Minute)
	service := NewMaintenanceService(tx, repo, equipment, changes, store, signer, config.EvidenceConfig{
		MaxFileSizeBytes: 1024,
		AllowedMIMEs:     []string{"image/png"},
	}, nil, nil)
	return &maintenanceFixture{service: service, repo: repo, equipment: equipment, changes: changes, store: store, mock: mock}
}

func adminActor() authz.Actor {
	return authz.Actor{UserID: "admin-1", FullName: "Admin General", Admin: true}
}

func (f *maintenanceFixture) seedRecord(state models.MaintenanceState) {
	site := "site-1"
	f.repo.record = &models.MaintenanceRecord{
		ID:             "mnt-1",
		EquipmentID:    "eq-1",
		SiteID:         &site,
		Kind:           models.MaintenancePreventive,
		State:          state,
		Description:    "cambio de disco",
		ScheduledStart: time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC),
	}
}

func TestMaintenanceCreateRejectsSecondOpenRecord(t *testing.T) {
	f := newMaintenanceFixture(t)
	f.repo.hasOpen = true
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.service.Create(context.Background(), adminActor(), CreateMaintenanceRequest{
		EquipmentID: "eq-1",
		Kind:        "CORRECTIVE",
		Description: "pantalla rota",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMaintenanceCreateFlagsEquipment(t *testing.T) {
	f := newMaintenanceFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	record, err := f.service.Create(context.Background(), adminActor(), CreateMaintenanceRequest{
		EquipmentID: "eq-1",
		Kind:        "PREVENTIVE",
		Description: "limpieza general",
	})
	require.NoError(t, err)
	assert.Equal(t, models.MaintenancePending, record.State)
	assert.WithinDuration(t, time.Now().UTC(), record.ScheduledStart, time.Minute, "start date defaults to today")
	require.Len(t, f.equipment.availability, 1)
	assert.Equal(t, models.EquipmentInMaintenance, f.equipment.availability[0])
	require.Len(t, f.repo.actions, 1)
	assert.Equal(t, MaintenanceActionCreate, f.repo.actions[0].Action)
	require.Len(t, f.changes.batches, 1)
	assert.Equal(t, models.ChangeCreated, f.changes.batches[0][0].Action)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMaintenanceCreateRejectsDecommissionedEquipment(t *testing.T) {
	f := newMaintenanceFixture(t)
	f.equipment.equipment.Availability = models.EquipmentDecommissioned
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.service.Create(context.Background(), adminActor(), CreateMaintenanceRequest{
		EquipmentID: "eq-1",
		Kind:        "CORRECTIVE",
		Description: "no enciende",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMaintenanceFinishRequiresEvidence(t *testing.T) {
	f := newMaintenanceFixture(t)
	f.seedRecord(models.MaintenanceInProgress)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.service.Finish(context.Background(), adminActor(), "mnt-1", FinishMaintenanceRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Contains(t, err.Error(), "at least one evidence")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMaintenanceFinishSchedulesNextMaintenance(t *testing.T) {
	f := newMaintenanceFixture(t)
	f.seedRecord(models.MaintenanceInProgress)
	f.repo.evidenceCount = 1
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	completion := time.Date(2026, 3, 10, 15, 0, 0, 0, time.UTC)
	record, err := f.service.Finish(context.Background(), adminActor(), "mnt-1", FinishMaintenanceRequest{
		ActualCompletion: &completion,
	})
	require.NoError(t, err)
	assert.Equal(t, models.MaintenanceFinished, record.State)
	require.NotNil(t, record.ActualCompletion)
	assert.True(t, record.ActualCompletion.Equal(completion))

	require.NotNil(t, f.equipment.last)
	require.NotNil(t, f.equipment.next)
	assert.True(t, f.equipment.last.Equal(completion))
	assert.True(t, f.equipment.next.Equal(completion.Add(180*24*time.Hour)))

	require.Len(t, f.equipment.availability, 1)
	assert.Equal(t, models.EquipmentAvailable, f.equipment.availability[0])
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMaintenanceFinishKeepsScheduledEnd(t *testing.T) {
	f := newMaintenanceFixture(t)
	f.seedRecord(models.MaintenanceInProgress)
	planned := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	f.repo.record.ScheduledEnd = &planned
	f.repo.evidenceCount = 1
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	completion := time.Date(2026, 3, 12, 0, 0, 0, 0, time.UTC)
	record, err := f.service.Finish(context.Background(), adminActor(), "mnt-1", FinishMaintenanceRequest{
		ActualCompletion: &completion,
	})
	require.NoError(t, err)
	require.NotNil(t, record.ScheduledEnd)
	assert.True(t, record.ScheduledEnd.Equal(planned), "planned date must survive the finish")
	assert.True(t, record.ActualCompletion.Equal(completion))
}

func TestMaintenanceFinishTwiceRejected(t *testing.T) {
	f := newMaintenanceFixture(t)
	f.seedRecord(models.MaintenanceFinished)
	f.repo.evidenceCount = 1
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.service.Finish(context.Background(), adminActor(), "mnt-1", FinishMaintenanceRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestMaintenanceFinishFromPending(t *testing.T) {
	f := newMaintenanceFixture(t)
	f.seedRecord(models.MaintenancePending)
	f.repo.evidenceCount = 1
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	completion := time.Date(2026, 3, 2, 0, 0, 0, 0, time.UTC)
	record, err := f.service.Finish(context.Background(), adminActor(), "mnt-1", FinishMaintenanceRequest{
		ActualCompletion: &completion,
	})
	require.NoError(t, err)
	assert.Equal(t, models.MaintenanceFinished, record.State, "a pending maintenance can be finished directly")
	require.NotNil(t, record.ActualCompletion)
	assert.True(t, record.ActualCompletion.Equal(completion))
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMaintenanceCreateRejectsEndBeforeStart(t *testing.T) {
	f := newMaintenanceFixture(t)

	start := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	end := start.AddDate(0, 0, -3)
	_, err := f.service.Create(context.Background(), adminActor(), CreateMaintenanceRequest{
		EquipmentID:    "eq-1",
		Kind:           "PREVENTIVE",
		Description:    "revision general",
		ScheduledStart: &start,
		ScheduledEnd:   &end,
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Contains(t, err.Error(), "cannot precede the start date")
}

func TestMaintenanceUpdateRejectsEndBeforeStart(t *testing.T) {
	f := newMaintenanceFixture(t)
	f.seedRecord(models.MaintenancePending)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	end := f.repo.record.ScheduledStart.AddDate(0, 0, -1)
	_, err := f.service.Update(context.Background(), adminActor(), "mnt-1", UpdateMaintenanceRequest{ScheduledEnd: &end})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Contains(t, err.Error(), "cannot precede the start date")
}

func TestMaintenanceUpdateRejectsStartChange(t *testing.T) {
	f := newMaintenanceFixture(t)
	f.seedRecord(models.MaintenancePending)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	moved := f.repo.record.ScheduledStart.AddDate(0, 0, 5)
	_, err := f.service.Update(context.Background(), adminActor(), "mnt-1", UpdateMaintenanceRequest{ScheduledStart: &moved})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrValidation.Code, appErrors.FromError(err).Code)
	assert.Contains(t, err.Error(), "cannot be changed after creation")
}

func TestMaintenanceStartRequiresPending(t *testing.T) {
	f := newMaintenanceFixture(t)
	f.seedRecord(models.MaintenanceInProgress)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.service.Start(context.Background(), adminActor(), "mnt-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestMaintenanceCancelIdempotent(t *testing.T) {
	f := newMaintenanceFixture(t)
	f.seedRecord(models.MaintenanceCancelled)

	record, err := f.service.Cancel(context.Background(), adminActor(), "mnt-1", CancelMaintenanceRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.MaintenanceCancelled, record.State)
	assert.Empty(t, f.repo.actions, "a repeated cancel must not log a new action")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestMaintenanceCancelFinishedRejected(t *testing.T) {
	f := newMaintenanceFixture(t)
	f.seedRecord(models.MaintenanceFinished)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	_, err := f.service.Cancel(context.Background(), adminActor(), "mnt-1", CancelMaintenanceRequest{})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrInvalidTransition.Code, appErrors.FromError(err).Code)
}

func TestMaintenanceCancelReleasesEquipment(t *testing.T) {
	f := newMaintenanceFixture(t)
	f.seedRecord(models.MaintenancePending)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	record, err := f.service.Cancel(context.Background(), adminActor(), "mnt-1", CancelMaintenanceRequest{})
	require.NoError(t, err)
	assert.Equal(t, models.MaintenanceCancelled, record.State)
	require.Len(t, f.equipment.availability, 1)
	assert.Equal(t, models.EquipmentAvailable, f.equipment.availability[0])
	assert.Nil(t, f.equipment.next, "cancelling must not reschedule maintenance")
}

func TestMaintenanceUpdateTerminalRejected(t *testing.T) {
	f := newMaintenanceFixture(t)
	f.seedRecord(models.MaintenanceFinished)
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	desc := "otro texto"
	_, err := f.service.Update(context.Background(), adminActor(), "mnt-1", UpdateMaintenanceRequest{Description: &desc})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrImmutableRecord.Code, appErrors.FromError(err).Code)
}

func TestMaintenanceUpdateScheduledEndImmutableOnceSet(t *testing.T) {
	f := newMaintenanceFixture(t)
	f.seedRecord(models.MaintenancePending)
	planned := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	f.repo.record.ScheduledEnd = &planned
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	moved := planned.AddDate(0, 0, 7)
	_, err := f.service.Update(context.Background(), adminActor(), "mnt-1", UpdateMaintenanceRequest{ScheduledEnd: &moved})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "cannot be changed once set")
}

func TestMaintenanceUpdateSetsScheduledEndFirstTime(t *testing.T) {
	f := newMaintenanceFixture(t)
	f.seedRecord(models.MaintenancePending)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	planned := time.Date(2026, 3, 5, 0, 0, 0, 0, time.UTC)
	record, err := f.service.Update(context.Background(), adminActor(), "mnt-1", UpdateMaintenanceRequest{ScheduledEnd: &planned})
	require.NoError(t, err)
	require.NotNil(t, record.ScheduledEnd)
	assert.True(t, record.ScheduledEnd.Equal(planned))
}

func TestMaintenanceUpdateCompletionPromotesToFinished(t *testing.T) {
	f := newMaintenanceFixture(t)
	f.seedRecord(models.MaintenanceInProgress)
	f.repo.evidenceCount = 1
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	completion := time.Date(2026, 3, 10, 0, 0, 0, 0, time.UTC)
	record, err := f.service.Update(context.Background(), adminActor(), "mnt-1", UpdateMaintenanceRequest{ActualCompletion: &completion})
	require.NoError(t, err)
	assert.Equal(t, models.MaintenanceFinished, record.State)
	require.Len(t, f.repo.actions, 1)
	assert.Equal(t, MaintenanceActionFinish, f.repo.actions[0].Action)
	require.NotNil(t, f.equipment.next)
}

func TestMaintenanceGetScopeDenied(t *testing.T) {
	f := newMaintenanceFixture(t)
	f.seedRecord(models.MaintenancePending)

	other := "site-2"
	actor := authz.Actor{UserID: "user-1", FullName: "Usuario Sede 2", SiteID: &other}
	_, err := f.service.Get(context.Background(), actor, "mnt-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}

func TestMaintenanceAddEvidenceValidatesUpload(t *testing.T) {
	f := newMaintenanceFixture(t)
	f.seedRecord(models.MaintenanceInProgress)

	_, err := f.service.AddEvidence(context.Background(), adminActor(), "mnt-1", EvidenceUpload{
		FileName:    "foto.png",
		ContentType: "image/png",
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")

	_, err = f.service.AddEvidence(context.Background(), adminActor(), "mnt-1", EvidenceUpload{
		FileName:    "nota.txt",
		ContentType: "text/plain",
		Data:        []byte("x"),
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "not allowed")

	evidence, err := f.service.AddEvidence(context.Background(), adminActor(), "mnt-1", EvidenceUpload{
		FileName:    "foto.png",
		ContentType: "image/png",
		Data:        []byte("png-bytes"),
	})
	require.NoError(t, err)
	assert.Equal(t, int64(len("png-bytes")), evidence.SizeBytes)
	require.Len(t, f.store.saved, 1)
}

func TestMaintenanceAddEvidenceRejectedOnCancelled(t *testing.T) {
	f := newMaintenanceFixture(t)
	f.seedRecord(models.MaintenanceCancelled)

	_, err := f.service.AddEvidence(context.Background(), adminActor(), "mnt-1", EvidenceUpload{
		FileName:    "foto.png",
		ContentType: "image/png",
		Data:        []byte("png-bytes"),
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrImmutableRecord.Code, appErrors.FromError(err).Code)
}

func TestMaintenanceListEmptyScopeReturnsNothing(t *testing.T) {
	f := newMaintenanceFixture(t)
	f.seedRecord(models.MaintenancePending)

	actor := authz.Actor{UserID: "user-1", FullName: "Sin Sede"}
	records, pagination, err := f.service.List(context.Background(), actor, models.MaintenanceFilter{})
	require.NoError(t, err)
	assert.Empty(t, records)
	assert.Equal(t, 0, pagination.TotalCount)
}
