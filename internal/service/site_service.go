package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/gestionequipos/activos-api/internal/audit"
	"github.com/gestionequipos/activos-api/internal/authz"
	"github.com/gestionequipos/activos-api/internal/models"
	appErrors "github.com/gestionequipos/activos-api/pkg/errors"
)

type siteRepository interface {
	List(ctx context.Context, filter models.SiteFilter) ([]models.Site, int, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Site, error)
	Create(ctx context.Context, exec sqlx.ExtContext, site *models.Site) error
	Update(ctx context.Context, exec sqlx.ExtContext, site *models.Site) error
	Deactivate(ctx context.Context, exec sqlx.ExtContext, id string) error
}

// CreateSiteRequest represents payload for creating sites.
type CreateSiteRequest struct {
	Name    string  `json:"name" validate:"required,max=200"`
	Address *string `json:"address" validate:"omitempty,max=300"`
	City    *string `json:"city" validate:"omitempty,max=100"`
}

// UpdateSiteRequest represents payload for updating sites.
type UpdateSiteRequest struct {
	Name    *string `json:"name" validate:"omitempty,max=200"`
	Address *string `json:"address" validate:"omitempty,max=300"`
	City    *string `json:"city" validate:"omitempty,max=100"`
	Active  *bool   `json:"active"`
}

// SiteService manages sites. Site administration is admin-only; regular
// users only ever read their own site. Every mutation carries its
// change records in the same transaction as the write.
type SiteService struct {
	tx        txProvider
	repo      siteRepository
	changes   changeWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewSiteService constructs a SiteService.
func NewSiteService(tx txProvider, repo siteRepository, changes changeWriter, validate *validator.Validate, logger *zap.Logger) *SiteService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &SiteService{tx: tx, repo: repo, changes: changes, validator: validate, logger: logger}
}

// List returns sites plus pagination data.
func (s *SiteService) List(ctx context.Context, filter models.SiteFilter) ([]models.Site, *models.Pagination, error) {
	sites, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list sites")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return sites, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a site by id within the actor's scope.
func (s *SiteService) Get(ctx context.Context, actor authz.Actor, id string) (*models.Site, error) {
	if !actor.CanAccessSite(&id) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "site is outside your scope")
	}
	site, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "site not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load site")
	}
	return site, nil
}

// Create registers a new site.
func (s *SiteService) Create(ctx context.Context, actor authz.Actor, req CreateSiteRequest) (site *models.Site, err error) {
	if err = s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid site payload")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	site = &models.Site{
		Name:    req.Name,
		Address: req.Address,
		City:    req.City,
		Active:  true,
	}
	if err = s.repo.Create(ctx, tx, site); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create site")
		return nil, err
	}

	if err = s.changes.InsertMany(ctx, tx, audit.Creation(audit.SiteSnapshot(site), actorID(actor))); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write change records")
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit site creation")
		return nil, err
	}
	return site, nil
}

// Update modifies a site and audits the field changes.
func (s *SiteService) Update(ctx context.Context, actor authz.Actor, id string, req UpdateSiteRequest) (site *models.Site, err error) {
	if err = s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid site payload")
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	site, err = s.repo.FindByID(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "site not found")
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load site")
		return nil, err
	}

	before := audit.SiteSnapshot(site)

	if req.Name != nil {
		site.Name = *req.Name
	}
	if req.Address != nil {
		site.Address = req.Address
	}
	if req.City != nil {
		site.City = req.City
	}
	if req.Active != nil {
		site.Active = *req.Active
	}

	if err = s.repo.Update(ctx, tx, site); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update site")
		return nil, err
	}

	if err = s.changes.InsertMany(ctx, tx, audit.Diff(before, audit.SiteSnapshot(site), actorID(actor))); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write change records")
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit site update")
		return nil, err
	}
	return site, nil
}

// Deactivate retires a site without deleting it. The change ledger
// keeps one DELETED record telling which location was retired.
func (s *SiteService) Deactivate(ctx context.Context, actor authz.Actor, id string) (err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	site, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "site not found")
			return err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load site")
		return err
	}

	if err = s.repo.Deactivate(ctx, tx, id); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to deactivate site")
		return err
	}

	notice := fmt.Sprintf("La sede '%s' (ID: %s) fue desactivada.", site.Name, site.ID)
	if err = s.changes.InsertMany(ctx, tx, []models.ChangeRecord{audit.Deletion(audit.SiteSnapshot(site), notice, actorID(actor))}); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write change records")
		return err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit site deactivation")
		return err
	}
	return nil
}
