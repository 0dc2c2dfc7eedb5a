package service

import (
	"context"

	"go.uber.org/zap"

	"github.com/gestionequipos/activos-api/internal/authz"
	"github.com/gestionequipos/activos-api/internal/models"
	appErrors "github.com/gestionequipos/activos-api/pkg/errors"
)

type assignmentLister interface {
	List(ctx context.Context, filter models.AssignmentFilter) ([]models.AssignmentRecord, int, error)
}

// AssignmentQueryService exposes the custody ledger for browsing. The
// ledger itself is written only by the AssignmentTracker.
type AssignmentQueryService struct {
	repo   assignmentLister
	logger *zap.Logger
}

// NewAssignmentQueryService constructs an AssignmentQueryService.
func NewAssignmentQueryService(repo assignmentLister, logger *zap.Logger) *AssignmentQueryService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentQueryService{repo: repo, logger: logger}
}

// List returns custody periods within the actor's scope.
func (s *AssignmentQueryService) List(ctx context.Context, actor authz.Actor, filter models.AssignmentFilter) ([]models.AssignmentRecord, *models.Pagination, error) {
	scope := authz.ScopeFor(actor)
	if scope.Empty() {
		return []models.AssignmentRecord{}, &models.Pagination{Page: 1, PageSize: filter.PageSize, TotalCount: 0}, nil
	}
	if !scope.All {
		filter.SiteID = scope.SiteID
	}

	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list assignments")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return records, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}
