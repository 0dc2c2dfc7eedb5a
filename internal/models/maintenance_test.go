package models

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func datePtr(year int, month time.Month, day int) *time.Time {
	d := time.Date(year, month, day, 0, 0, 0, 0, time.UTC)
	return &d
}

func TestMaintenanceOverdueFinishedLate(t *testing.T) {
	record := MaintenanceRecord{
		State:            MaintenanceFinished,
		ScheduledEnd:     datePtr(2024, time.January, 10),
		ActualCompletion: datePtr(2024, time.January, 15),
	}
	today := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	assert.True(t, record.Overdue(today), "finishing after the planned date stays overdue")
}

func TestMaintenanceOverdueFinishedOnTime(t *testing.T) {
	record := MaintenanceRecord{
		State:            MaintenanceFinished,
		ScheduledEnd:     datePtr(2024, time.January, 10),
		ActualCompletion: datePtr(2024, time.January, 9),
	}
	today := time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)
	assert.False(t, record.Overdue(today))
}

func TestMaintenanceOverdueOpenPastPlannedDate(t *testing.T) {
	record := MaintenanceRecord{
		State:        MaintenanceInProgress,
		ScheduledEnd: datePtr(2024, time.January, 10),
	}
	assert.True(t, record.Overdue(time.Date(2024, time.January, 11, 0, 0, 0, 0, time.UTC)))
	assert.False(t, record.Overdue(time.Date(2024, time.January, 9, 0, 0, 0, 0, time.UTC)))
}

func TestMaintenanceOverdueWithoutPlannedDate(t *testing.T) {
	record := MaintenanceRecord{State: MaintenancePending}
	assert.False(t, record.Overdue(time.Date(2024, time.June, 1, 0, 0, 0, 0, time.UTC)))
}

func TestMaintenanceOverdueCancelled(t *testing.T) {
	record := MaintenanceRecord{
		State:        MaintenanceCancelled,
		ScheduledEnd: datePtr(2024, time.January, 10),
	}
	assert.False(t, record.Overdue(time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC)))
}

func TestMaintenanceRefreshOverdueSetsDerivedFlag(t *testing.T) {
	record := MaintenanceRecord{
		State:            MaintenanceFinished,
		ScheduledEnd:     datePtr(2024, time.January, 10),
		ActualCompletion: datePtr(2024, time.January, 15),
	}
	record.RefreshOverdue(time.Date(2024, time.February, 1, 0, 0, 0, 0, time.UTC))
	assert.True(t, record.IsOverdue)
}
