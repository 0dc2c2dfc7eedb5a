package service

import (
	"context"
	"database/sql"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestionequipos/activos-api/internal/models"
)

type trackerRepoMock struct {
	open      *models.AssignmentRecord
	closed    []string
	inserted  []models.AssignmentRecord
	closedAll int
}

func (m *trackerRepoMock) FindOpen(ctx context.Context, exec sqlx.ExtContext, assetType models.AssetType, assetID string) (*models.AssignmentRecord, error) {
	if m.open == nil {
		return nil, sql.ErrNoRows
	}
	return m.open, nil
}

func (m *trackerRepoMock) CloseOpen(ctx context.Context, exec sqlx.ExtContext, assetType models.AssetType, assetID, reason string, endedAt time.Time) (int, error) {
	m.closed = append(m.closed, reason)
	if m.open == nil {
		return 0, nil
	}
	m.open = nil
	m.closedAll++
	return 1, nil
}

func (m *trackerRepoMock) Insert(ctx context.Context, exec sqlx.ExtContext, record *models.AssignmentRecord) error {
	m.inserted = append(m.inserted, *record)
	m.open = record
	return nil
}

func laptopRef() AssetRef {
	site := "site-1"
	return AssetRef{Type: models.AssetEquipment, ID: "eq-1", Label: "Laptop Dell (SN-001)", SiteID: &site}
}

func TestTrackerObserveSameHolderIsNoop(t *testing.T) {
	repo := &trackerRepoMock{}
	tracker := NewAssignmentTracker(repo, nil)

	holder := &HolderRef{ID: "emp-1", Label: "Ana Gomez"}
	err := tracker.Observe(context.Background(), nil, laptopRef(), holder, &HolderRef{ID: "emp-1", Label: "Ana G."})
	require.NoError(t, err)
	assert.Empty(t, repo.closed)
	assert.Empty(t, repo.inserted)
}

func TestTrackerObserveReassignmentClosesBeforeOpening(t *testing.T) {
	repo := &trackerRepoMock{open: &models.AssignmentRecord{AssetID: "eq-1"}}
	tracker := NewAssignmentTracker(repo, nil)

	before := &HolderRef{ID: "emp-1", Label: "Ana Gomez"}
	after := &HolderRef{ID: "emp-2", Label: "Luis Rios"}
	err := tracker.Observe(context.Background(), nil, laptopRef(), before, after)
	require.NoError(t, err)

	require.Len(t, repo.closed, 1)
	assert.Equal(t, models.AssignmentEndReassigned, repo.closed[0])
	require.Len(t, repo.inserted, 1)
	assert.Equal(t, "emp-2", *repo.inserted[0].EmployeeID)
	assert.Equal(t, "Luis Rios", repo.inserted[0].EmployeeLabel)
	assert.Nil(t, repo.inserted[0].EndedAt)
}

func TestTrackerObserveReturnUsesReturnReason(t *testing.T) {
	repo := &trackerRepoMock{open: &models.AssignmentRecord{AssetID: "eq-1"}}
	tracker := NewAssignmentTracker(repo, nil)

	before := &HolderRef{ID: "emp-1", Label: "Ana Gomez"}
	err := tracker.Observe(context.Background(), nil, laptopRef(), before, nil)
	require.NoError(t, err)

	require.Len(t, repo.closed, 1)
	assert.Equal(t, models.AssignmentEndReturned, repo.closed[0])
	assert.Empty(t, repo.inserted)
}

func TestTrackerObserveFirstAssignmentOnlyOpens(t *testing.T) {
	repo := &trackerRepoMock{}
	tracker := NewAssignmentTracker(repo, nil)

	after := &HolderRef{ID: "emp-1", Label: "Ana Gomez"}
	err := tracker.Observe(context.Background(), nil, laptopRef(), nil, after)
	require.NoError(t, err)

	assert.Empty(t, repo.closed)
	require.Len(t, repo.inserted, 1)
	assert.Equal(t, models.AssetEquipment, repo.inserted[0].AssetType)
	assert.Equal(t, "site-1", *repo.inserted[0].SiteID)
}

func TestTrackerDecommissionClosesAndAppendsTerminalRow(t *testing.T) {
	emp := "emp-1"
	repo := &trackerRepoMock{open: &models.AssignmentRecord{AssetID: "eq-1", EmployeeID: &emp, EmployeeLabel: "Ana Gomez"}}
	tracker := NewAssignmentTracker(repo, nil)

	err := tracker.Decommission(context.Background(), nil, laptopRef())
	require.NoError(t, err)
	require.Len(t, repo.closed, 1)
	assert.Equal(t, models.AssignmentEndDecommissioned, repo.closed[0])

	require.Len(t, repo.inserted, 1)
	terminal := repo.inserted[0]
	assert.True(t, terminal.Decommission)
	require.NotNil(t, terminal.DecommissionedAt)
	require.NotNil(t, terminal.EndedAt)
	assert.Equal(t, models.AssignmentEndDecommissioned, *terminal.EndReason)
	assert.Equal(t, "emp-1", *terminal.EmployeeID)
	assert.Equal(t, "Ana Gomez", terminal.EmployeeLabel)
}

func TestTrackerDecommissionWithoutOpenPeriodOnlyAppendsTerminalRow(t *testing.T) {
	repo := &trackerRepoMock{}
	tracker := NewAssignmentTracker(repo, nil)

	err := tracker.Decommission(context.Background(), nil, laptopRef())
	require.NoError(t, err)
	assert.Empty(t, repo.closed)

	require.Len(t, repo.inserted, 1)
	terminal := repo.inserted[0]
	assert.True(t, terminal.Decommission)
	assert.Nil(t, terminal.EmployeeID)
	require.NotNil(t, terminal.EndedAt)
}
