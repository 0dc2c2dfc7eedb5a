package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/gestionequipos/activos-api/internal/authz"
	"github.com/gestionequipos/activos-api/internal/models"
	appErrors "github.com/gestionequipos/activos-api/pkg/errors"
)

type changeReader interface {
	List(ctx context.Context, filter models.ChangeRecordFilter) ([]models.ChangeRecord, int, error)
}

// AuditService exposes the change history for browsing. Records are
// written by the mutating services; this one only reads.
type AuditService struct {
	repo   changeReader
	logger *zap.Logger
}

// NewAuditService constructs an AuditService.
func NewAuditService(repo changeReader, logger *zap.Logger) *AuditService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AuditService{repo: repo, logger: logger}
}

// List returns change records within the actor's scope.
func (s *AuditService) List(ctx context.Context, actor authz.Actor, filter models.ChangeRecordFilter) ([]models.ChangeRecord, *models.Pagination, error) {
	scope := authz.ScopeFor(actor)
	if scope.Empty() {
		return []models.ChangeRecord{}, &models.Pagination{Page: 1, PageSize: filter.PageSize, TotalCount: 0}, nil
	}
	if !scope.All {
		filter.SiteID = scope.SiteID
	}

	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list change records")
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

// EntityHistory returns the full audited history for a single record,
// newest first.
func (s *AuditService) EntityHistory(ctx context.Context, actor authz.Actor, entityType, entityID string, page, pageSize int) ([]models.ChangeRecord, *models.Pagination, error) {
	filter := models.ChangeRecordFilter{
		EntityType: &entityType,
		EntityID:   &entityID,
		Page:       page,
		PageSize:   pageSize,
		SortOrder:  "DESC",
	}
	return s.List(ctx, actor, filter)
}

// RecentActivity returns changes from the last few days for the dashboard feed.
func (s *AuditService) RecentActivity(ctx context.Context, actor authz.Actor, days, limit int) ([]models.ChangeRecord, error) {
	if days <= 0 {
		days = 7
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}
	from := time.Now().UTC().AddDate(0, 0, -days)
	records, _, err := s.List(ctx, actor, models.ChangeRecordFilter{
		FromDate:  &from,
		Page:      1,
		PageSize:  limit,
		SortOrder: "DESC",
	})
	return records, err
}
