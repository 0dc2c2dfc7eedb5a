package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gestionequipos/activos-api/internal/models"
	appErrors "github.com/gestionequipos/activos-api/pkg/errors"
)

type inconsistentMaintenanceLister interface {
	ListInconsistent(ctx context.Context) ([]models.MaintenanceRecord, error)
	ListDateDivergences(ctx context.Context) ([]models.MaintenanceDateDivergence, error)
}

type openAssignmentScanner interface {
	CountOpenPerAsset(ctx context.Context) (map[string]int, error)
}

// ConsistencyService runs a report-only reconciliation over the
// maintenance ledger and the assignment ledger. It flags contradictions
// but never repairs them; fixing data is a human decision.
type ConsistencyService struct {
	maintenance inconsistentMaintenanceLister
	assignments openAssignmentScanner
	logger      *zap.Logger
}

// NewConsistencyService constructs a ConsistencyService.
func NewConsistencyService(maintenance inconsistentMaintenanceLister, assignments openAssignmentScanner, logger *zap.Logger) *ConsistencyService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ConsistencyService{maintenance: maintenance, assignments: assignments, logger: logger}
}

// Run executes every check and returns the combined report.
func (s *ConsistencyService) Run(ctx context.Context) (*models.ConsistencyReport, error) {
	started := time.Now()
	issues := make([]models.ConsistencyIssue, 0)

	maintenanceIssues, err := s.checkMaintenanceStates(ctx)
	if err != nil {
		return nil, err
	}
	issues = append(issues, maintenanceIssues...)

	dateIssues, err := s.checkEquipmentDates(ctx)
	if err != nil {
		return nil, err
	}
	issues = append(issues, dateIssues...)

	assignmentIssues, err := s.checkOpenAssignments(ctx)
	if err != nil {
		return nil, err
	}
	issues = append(issues, assignmentIssues...)

	report := &models.ConsistencyReport{
		Issues:     issues,
		CheckedAt:  started.UTC(),
		DurationMS: time.Since(started).Milliseconds(),
		IssueCount: len(issues),
		Healthy:    len(issues) == 0,
	}
	return report, nil
}

// RunAndLog is the variant wired into the background scheduler. Errors
// and findings go to the log; the job itself never fails the process.
func (s *ConsistencyService) RunAndLog(ctx context.Context) {
	report, err := s.Run(ctx)
	if err != nil {
		s.logger.Error("consistency check failed", zap.Error(err))
		return
	}
	if report.Healthy {
		s.logger.Info("consistency check passed", zap.Int64("duration_ms", report.DurationMS))
		return
	}
	s.logger.Warn("consistency check found issues",
		zap.Int("issue_count", report.IssueCount),
		zap.Int64("duration_ms", report.DurationMS))
	for _, issue := range report.Issues {
		s.logger.Warn("consistency issue",
			zap.String("category", issue.Category),
			zap.String("entity_type", issue.EntityType),
			zap.String("entity_id", issue.EntityID),
			zap.String("detail", issue.Detail))
	}
}

func (s *ConsistencyService) checkMaintenanceStates(ctx context.Context) ([]models.ConsistencyIssue, error) {
	records, err := s.maintenance.ListInconsistent(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scan maintenance records")
	}

	issues := make([]models.ConsistencyIssue, 0, len(records))
	for _, record := range records {
		detail := "finished maintenance has no completion date"
		if record.State != models.MaintenanceFinished && record.ActualCompletion != nil {
			detail = fmt.Sprintf("maintenance in state %s has a completion date", record.State)
		}
		label := ""
		if record.EquipmentLabel != nil {
			label = *record.EquipmentLabel
		}
		issues = append(issues, models.ConsistencyIssue{
			Category:    "maintenance_state",
			EntityType:  "MAINTENANCE",
			EntityID:    record.ID,
			EntityLabel: label,
			Detail:      detail,
		})
	}
	return issues, nil
}

// checkEquipmentDates recomputes each equipment's maintenance dates
// from the finished ledger and reports rows whose denormalized values
// drifted away.
func (s *ConsistencyService) checkEquipmentDates(ctx context.Context) ([]models.ConsistencyIssue, error) {
	divergences, err := s.maintenance.ListDateDivergences(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scan equipment maintenance dates")
	}

	issues := make([]models.ConsistencyIssue, 0, len(divergences))
	for _, d := range divergences {
		detail := fmt.Sprintf("last maintenance date %s does not match the newest finished record (%s)",
			formatDate(d.LastMaintenanceAt), formatDate(d.LedgerCompletion))
		if d.LedgerCompletion != nil {
			expectedNext := d.LedgerCompletion.Add(maintenanceInterval)
			detail += fmt.Sprintf("; expected next maintenance %s, stored %s",
				expectedNext.Format(models.DateLayout), formatDate(d.NextMaintenanceAt))
		}
		issues = append(issues, models.ConsistencyIssue{
			Category:    "maintenance_dates",
			EntityType:  "EQUIPMENT",
			EntityID:    d.EquipmentID,
			EntityLabel: d.EquipmentLabel,
			Detail:      detail,
		})
	}
	return issues, nil
}

func formatDate(t *time.Time) string {
	if t == nil {
		return "none"
	}
	return t.Format(models.DateLayout)
}

func (s *ConsistencyService) checkOpenAssignments(ctx context.Context) ([]models.ConsistencyIssue, error) {
	duplicated, err := s.assignments.CountOpenPerAsset(ctx)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to scan open assignments")
	}

	issues := make([]models.ConsistencyIssue, 0, len(duplicated))
	for key, count := range duplicated {
		issues = append(issues, models.ConsistencyIssue{
			Category:   "assignment_overlap",
			EntityType: "ASSIGNMENT",
			EntityID:   key,
			Detail:     fmt.Sprintf("asset has %d open assignment periods, expected at most one", count),
		})
	}
	return issues, nil
}
