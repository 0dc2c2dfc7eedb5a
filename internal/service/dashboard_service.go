package service

import (
	"context"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/gestionequipos/activos-api/internal/authz"
	"github.com/gestionequipos/activos-api/internal/models"
	appErrors "github.com/gestionequipos/activos-api/pkg/errors"
)

const dashboardCachePrefix = "dashboard:summary"

type dashboardRepository interface {
	Summary(ctx context.Context, siteID *string, now time.Time) (*models.DashboardSummary, error)
}

type upcomingMaintenanceLister interface {
	Upcoming(ctx context.Context, siteID *string, until time.Time, limit int) ([]models.MaintenanceRecord, error)
}

// DashboardService aggregates landing-page counters. Summaries are
// cached per site since every counter is a table scan.
type DashboardService struct {
	repo        dashboardRepository
	maintenance upcomingMaintenanceLister
	cache       *CacheService
	cacheTTL    time.Duration
	logger      *zap.Logger
}

// NewDashboardService constructs a DashboardService.
func NewDashboardService(repo dashboardRepository, maintenance upcomingMaintenanceLister, cache *CacheService, cacheTTL time.Duration, logger *zap.Logger) *DashboardService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &DashboardService{repo: repo, maintenance: maintenance, cache: cache, cacheTTL: cacheTTL, logger: logger}
}

// Summary returns the counters visible to the actor. The boolean
// reports whether the result came from cache.
func (s *DashboardService) Summary(ctx context.Context, actor authz.Actor) (*models.DashboardSummary, bool, error) {
	scope := authz.ScopeFor(actor)
	if scope.Empty() {
		return nil, false, appErrors.Clone(appErrors.ErrForbidden, "user has no site assigned")
	}

	key := s.cacheKey(scope)
	if s.cache.Enabled() {
		var cached models.DashboardSummary
		hit, err := s.cache.Get(ctx, key, &cached)
		if err == nil && hit {
			return &cached, true, nil
		}
	}

	var siteID *string
	if !scope.All {
		siteID = scope.SiteID
	}

	summary, err := s.repo.Summary(ctx, siteID, time.Now().UTC())
	if err != nil {
		return nil, false, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to build dashboard summary")
	}

	if s.cache.Enabled() {
		if err := s.cache.Set(ctx, key, summary, s.cacheTTL); err != nil {
			s.logger.Warn("failed to cache dashboard summary", zap.Error(err))
		}
	}
	return summary, false, nil
}

// UpcomingMaintenance lists open maintenance due within the window,
// soonest first.
func (s *DashboardService) UpcomingMaintenance(ctx context.Context, actor authz.Actor, days, limit int) ([]models.MaintenanceRecord, error) {
	scope := authz.ScopeFor(actor)
	if scope.Empty() {
		return []models.MaintenanceRecord{}, nil
	}
	if days <= 0 {
		days = 30
	}
	if limit <= 0 || limit > 100 {
		limit = 10
	}

	var siteID *string
	if !scope.All {
		siteID = scope.SiteID
	}

	until := time.Now().UTC().AddDate(0, 0, days)
	records, err := s.maintenance.Upcoming(ctx, siteID, until, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list upcoming maintenance")
	}
	return records, nil
}

// Invalidate drops every cached summary. Called after mutations that
// move the counters.
func (s *DashboardService) Invalidate(ctx context.Context) {
	if !s.cache.Enabled() {
		return
	}
	if err := s.cache.Invalidate(ctx, dashboardCachePrefix+":*"); err != nil {
		s.logger.Warn("failed to invalidate dashboard cache", zap.Error(err))
	}
}

func (s *DashboardService) cacheKey(scope authz.Scope) string {
	if scope.All {
		return dashboardCachePrefix + ":all"
	}
	return fmt.Sprintf("%s:%s", dashboardCachePrefix, *scope.SiteID)
}
