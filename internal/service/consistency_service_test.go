package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gestionequipos/activos-api/internal/models"
)

type inconsistentListerMock struct {
	records     []models.MaintenanceRecord
	divergences []models.MaintenanceDateDivergence
}

func (m *inconsistentListerMock) ListInconsistent(ctx context.Context) ([]models.MaintenanceRecord, error) {
	return m.records, nil
}

func (m *inconsistentListerMock) ListDateDivergences(ctx context.Context) ([]models.MaintenanceDateDivergence, error) {
	return m.divergences, nil
}

type assignmentScannerMock struct {
	duplicated map[string]int
}

func (m *assignmentScannerMock) CountOpenPerAsset(ctx context.Context) (map[string]int, error) {
	return m.duplicated, nil
}

func TestConsistencyRunHealthy(t *testing.T) {
	service := NewConsistencyService(&inconsistentListerMock{}, &assignmentScannerMock{}, nil)

	report, err := service.Run(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Healthy)
	assert.Zero(t, report.IssueCount)
	assert.Empty(t, report.Issues)
	assert.False(t, report.CheckedAt.IsZero())
}

func TestConsistencyRunFlagsMaintenanceContradictions(t *testing.T) {
	completion := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	label := "Laptop Dell (SN-001)"
	lister := &inconsistentListerMock{records: []models.MaintenanceRecord{
		{ID: "mnt-1", State: models.MaintenanceFinished, EquipmentLabel: &label},
		{ID: "mnt-2", State: models.MaintenancePending, ActualCompletion: &completion},
	}}
	service := NewConsistencyService(lister, &assignmentScannerMock{}, nil)

	report, err := service.Run(context.Background())
	require.NoError(t, err)
	assert.False(t, report.Healthy)
	require.Len(t, report.Issues, 2)
	assert.Equal(t, "maintenance_state", report.Issues[0].Category)
	assert.Contains(t, report.Issues[0].Detail, "no completion date")
	assert.Contains(t, report.Issues[1].Detail, "has a completion date")
}

func TestConsistencyRunFlagsDivergentEquipmentDates(t *testing.T) {
	stale := time.Date(2025, 11, 1, 0, 0, 0, 0, time.UTC)
	completion := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	lister := &inconsistentListerMock{divergences: []models.MaintenanceDateDivergence{{
		EquipmentID:       "eq-1",
		EquipmentLabel:    "Laptop Dell (SN-001)",
		LastMaintenanceAt: &stale,
		LedgerCompletion:  &completion,
	}}}
	service := NewConsistencyService(lister, &assignmentScannerMock{}, nil)

	report, err := service.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Issues, 1)
	issue := report.Issues[0]
	assert.Equal(t, "maintenance_dates", issue.Category)
	assert.Equal(t, "EQUIPMENT", issue.EntityType)
	assert.Equal(t, "eq-1", issue.EntityID)
	assert.Contains(t, issue.Detail, "does not match the newest finished record")
	assert.Contains(t, issue.Detail, completion.Add(180*24*time.Hour).Format(models.DateLayout))
}

func TestConsistencyRunFlagsEquipmentNeverReconciled(t *testing.T) {
	completion := time.Date(2026, 2, 1, 0, 0, 0, 0, time.UTC)
	lister := &inconsistentListerMock{divergences: []models.MaintenanceDateDivergence{{
		EquipmentID:      "eq-2",
		EquipmentLabel:   "Impresora HP (SN-044)",
		LedgerCompletion: &completion,
	}}}
	service := NewConsistencyService(lister, &assignmentScannerMock{}, nil)

	report, err := service.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Issues, 1)
	assert.Contains(t, report.Issues[0].Detail, "none")
}

func TestConsistencyRunFlagsOverlappingAssignments(t *testing.T) {
	scanner := &assignmentScannerMock{duplicated: map[string]int{
		"EQUIPMENT:eq-1": 2,
	}}
	service := NewConsistencyService(&inconsistentListerMock{}, scanner, nil)

	report, err := service.Run(context.Background())
	require.NoError(t, err)
	require.Len(t, report.Issues, 1)
	assert.Equal(t, "assignment_overlap", report.Issues[0].Category)
	assert.Equal(t, "EQUIPMENT:eq-1", report.Issues[0].EntityID)
	assert.Contains(t, report.Issues[0].Detail, "2 open assignment periods")
}
