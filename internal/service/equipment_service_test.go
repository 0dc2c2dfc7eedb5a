package service

import (
	"context"
	"database/sql"
	"testing"

	sqlmock "github.com/DATA-DOG/go-sqlmock"
	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestionequipos/activos-api/internal/authz"
	"github.com/gestionequipos/activos-api/internal/models"
	appErrors "github.com/gestionequipos/activos-api/pkg/errors"
)

type equipmentRepoMock struct {
	items        map[string]*models.Equipment
	serialExists bool
}

func (m *equipmentRepoMock) List(ctx context.Context, filter models.EquipmentFilter) ([]models.Equipment, int, error) {
	result := make([]models.Equipment, 0, len(m.items))
	for _, item := range m.items {
		if filter.SiteID != nil && (item.SiteID == nil || *item.SiteID != *filter.SiteID) {
			continue
		}
		result = append(result, *item)
	}
	return result, len(result), nil
}

func (m *equipmentRepoMock) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Equipment, error) {
	item, ok := m.items[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	clone := *item
	return &clone, nil
}

func (m *equipmentRepoMock) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Equipment, error) {
	return m.FindByID(ctx, exec, id)
}

func (m *equipmentRepoMock) ExistsBySerial(ctx context.Context, serial, excludeID string) (bool, error) {
	return m.serialExists, nil
}

func (m *equipmentRepoMock) Create(ctx context.Context, exec sqlx.ExtContext, item *models.Equipment) error {
	item.ID = "eq-new"
	stored := *item
	m.items[item.ID] = &stored
	return nil
}

func (m *equipmentRepoMock) Update(ctx context.Context, exec sqlx.ExtContext, item *models.Equipment) error {
	stored := *item
	m.items[item.ID] = &stored
	return nil
}

type holderLookupMock struct {
	employees map[string]*models.Employee
}

func (m *holderLookupMock) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Employee, error) {
	employee, ok := m.employees[id]
	if !ok {
		return nil, sql.ErrNoRows
	}
	return employee, nil
}

type trackerCall struct {
	asset  AssetRef
	before *HolderRef
	after  *HolderRef
}

type custodyTrackerMock struct {
	observed       []trackerCall
	decommissioned []AssetRef
}

func (m *custodyTrackerMock) Observe(ctx context.Context, exec sqlx.ExtContext, asset AssetRef, before, after *HolderRef) error {
	m.observed = append(m.observed, trackerCall{asset: asset, before: before, after: after})
	return nil
}

func (m *custodyTrackerMock) Decommission(ctx context.Context, exec sqlx.ExtContext, asset AssetRef) error {
	m.decommissioned = append(m.decommissioned, asset)
	return nil
}

type equipmentFixture struct {
	service *EquipmentService
	repo    *equipmentRepoMock
	tracker *custodyTrackerMock
	changes *changeWriterMock
	mock    sqlmock.Sqlmock
}

func newEquipmentFixture(t *testing.T) *equipmentFixture {
	tx, mock := newTxProviderMock(t)
	site := "site-1"
	repo := &equipmentRepoMock{items: map[string]*models.Equipment{
		"eq-1": {
			ID:           "eq-1",
			Serial:       "SN-001",
			Name:         "Laptop Dell",
			State:        models.EquipmentStateGood,
			Availability: models.EquipmentAvailable,
			SiteID:       &site,
			Active:       true,
		},
	}}
	employees := &holderLookupMock{employees: map[string]*models.Employee{
		"emp-1": {ID: "emp-1", FullName: "Ana Gomez", SiteID: &site, Active: true},
		"emp-2": {ID: "emp-2", FullName: "Luis Rios", SiteID: &site, Active: true},
	}}
	changes := &changeWriterMock{}
	tracker := &custodyTrackerMock{}
	service := NewEquipmentService(tx, repo, employees, changes, tracker, nil, nil)
	return &equipmentFixture{service: service, repo: repo, tracker: tracker, changes: changes, mock: mock}
}

func TestEquipmentCreateRejectsDuplicateSerial(t *testing.T) {
	f := newEquipmentFixture(t)
	f.repo.serialExists = true

	_, err := f.service.Create(context.Background(), adminActor(), CreateEquipmentRequest{
		Serial: "SN-001",
		Name:   "Laptop HP",
		State:  "BUENO",
	})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrConflict.Code, appErrors.FromError(err).Code)
}

func TestEquipmentCreatePreAssignedOpensCustody(t *testing.T) {
	f := newEquipmentFixture(t)
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	site := "site-1"
	emp := "emp-1"
	item, err := f.service.Create(context.Background(), adminActor(), CreateEquipmentRequest{
		Serial:             "SN-002",
		Name:               "Laptop HP",
		State:              "BUENO",
		SiteID:             &site,
		AssignedEmployeeID: &emp,
	})
	require.NoError(t, err)
	assert.Equal(t, models.EquipmentAssigned, item.Availability)

	require.Len(t, f.tracker.observed, 1)
	assert.Nil(t, f.tracker.observed[0].before)
	require.NotNil(t, f.tracker.observed[0].after)
	assert.Equal(t, "emp-1", f.tracker.observed[0].after.ID)

	require.Len(t, f.changes.batches, 1)
	assert.Equal(t, models.ChangeCreated, f.changes.batches[0][0].Action)
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEquipmentUpdateReassignmentNotifiesTracker(t *testing.T) {
	f := newEquipmentFixture(t)
	emp1 := "emp-1"
	f.repo.items["eq-1"].AssignedEmployeeID = &emp1
	f.repo.items["eq-1"].Availability = models.EquipmentAssigned
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	emp2 := "emp-2"
	item, err := f.service.Update(context.Background(), adminActor(), "eq-1", UpdateEquipmentRequest{
		AssignedEmployeeID: &emp2,
	})
	require.NoError(t, err)
	assert.Equal(t, "emp-2", *item.AssignedEmployeeID)

	require.Len(t, f.tracker.observed, 1)
	call := f.tracker.observed[0]
	require.NotNil(t, call.before)
	require.NotNil(t, call.after)
	assert.Equal(t, "emp-1", call.before.ID)
	assert.Equal(t, "emp-2", call.after.ID)
}

func TestEquipmentUpdateClearAssignmentReturnsDevice(t *testing.T) {
	f := newEquipmentFixture(t)
	emp1 := "emp-1"
	f.repo.items["eq-1"].AssignedEmployeeID = &emp1
	f.repo.items["eq-1"].Availability = models.EquipmentAssigned
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	item, err := f.service.Update(context.Background(), adminActor(), "eq-1", UpdateEquipmentRequest{
		ClearAssignment: true,
	})
	require.NoError(t, err)
	assert.Nil(t, item.AssignedEmployeeID)
	assert.Equal(t, models.EquipmentAvailable, item.Availability)

	require.Len(t, f.tracker.observed, 1)
	assert.NotNil(t, f.tracker.observed[0].before)
	assert.Nil(t, f.tracker.observed[0].after)
}

func TestEquipmentUpdateRejectsDecommissioned(t *testing.T) {
	f := newEquipmentFixture(t)
	f.repo.items["eq-1"].Active = false
	f.repo.items["eq-1"].Availability = models.EquipmentDecommissioned
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	name := "Laptop Lenovo"
	_, err := f.service.Update(context.Background(), adminActor(), "eq-1", UpdateEquipmentRequest{Name: &name})
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrImmutableRecord.Code, appErrors.FromError(err).Code)
}

func TestEquipmentUpdateRejectsInactiveEmployee(t *testing.T) {
	f := newEquipmentFixture(t)
	site := "site-1"
	f.service.employees.(*holderLookupMock).employees["emp-3"] = &models.Employee{
		ID: "emp-3", FullName: "Ex Empleado", SiteID: &site, Active: false,
	}
	f.mock.ExpectBegin()
	f.mock.ExpectRollback()

	emp := "emp-3"
	_, err := f.service.Update(context.Background(), adminActor(), "eq-1", UpdateEquipmentRequest{
		AssignedEmployeeID: &emp,
	})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "inactive employee")
}

func TestEquipmentDecommissionClosesCustodyAndIsIdempotent(t *testing.T) {
	f := newEquipmentFixture(t)
	emp1 := "emp-1"
	f.repo.items["eq-1"].AssignedEmployeeID = &emp1
	f.repo.items["eq-1"].Availability = models.EquipmentAssigned
	f.mock.ExpectBegin()
	f.mock.ExpectCommit()

	err := f.service.Decommission(context.Background(), adminActor(), "eq-1")
	require.NoError(t, err)

	stored := f.repo.items["eq-1"]
	assert.False(t, stored.Active)
	assert.Equal(t, models.EquipmentDecommissioned, stored.Availability)
	assert.Nil(t, stored.AssignedEmployeeID)
	require.Len(t, f.tracker.decommissioned, 1)

	f.mock.ExpectBegin()
	f.mock.ExpectCommit()
	err = f.service.Decommission(context.Background(), adminActor(), "eq-1")
	require.NoError(t, err)
	assert.Len(t, f.tracker.decommissioned, 1, "repeat decommission must not touch the ledger again")
	assert.NoError(t, f.mock.ExpectationsWereMet())
}

func TestEquipmentListScopedToHomeSite(t *testing.T) {
	f := newEquipmentFixture(t)
	other := "site-2"
	f.repo.items["eq-2"] = &models.Equipment{
		ID: "eq-2", Serial: "SN-900", Name: "Impresora", SiteID: &other, Active: true,
	}

	home := "site-1"
	actor := authz.Actor{UserID: "user-1", FullName: "Usuario Sede 1", SiteID: &home}
	items, _, err := f.service.List(context.Background(), actor, models.EquipmentFilter{})
	require.NoError(t, err)
	require.Len(t, items, 1)
	assert.Equal(t, "eq-1", items[0].ID)
}

func TestEquipmentGetDeniedOutsideScope(t *testing.T) {
	f := newEquipmentFixture(t)
	other := "site-2"
	actor := authz.Actor{UserID: "user-1", FullName: "Usuario Sede 2", SiteID: &other}

	_, err := f.service.Get(context.Background(), actor, "eq-1")
	require.Error(t, err)
	assert.Equal(t, appErrors.ErrForbidden.Code, appErrors.FromError(err).Code)
}
