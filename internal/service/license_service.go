package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/gestionequipos/activos-api/internal/audit"
	"github.com/gestionequipos/activos-api/internal/authz"
	"github.com/gestionequipos/activos-api/internal/models"
	appErrors "github.com/gestionequipos/activos-api/pkg/errors"
)

type licenseRepository interface {
	List(ctx context.Context, filter models.LicenseFilter) ([]models.License, int, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.License, error)
	Create(ctx context.Context, exec sqlx.ExtContext, item *models.License) error
	Update(ctx context.Context, exec sqlx.ExtContext, item *models.License) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

// CreateLicenseRequest represents payload for registering a license.
type CreateLicenseRequest struct {
	Software    string     `json:"software" validate:"required,max=200"`
	Key         string     `json:"license_key" validate:"required,max=500"`
	Vendor      *string    `json:"vendor" validate:"omitempty,max=200"`
	Seats       int        `json:"seats" validate:"gte=1"`
	EquipmentID *string    `json:"equipment_id"`
	PurchasedAt *time.Time `json:"purchased_at"`
	ExpiresAt   *time.Time `json:"expires_at"`
	Notes       *string    `json:"notes" validate:"omitempty,max=2000"`
}

// UpdateLicenseRequest represents payload for editing a license.
type UpdateLicenseRequest struct {
	Software       *string    `json:"software" validate:"omitempty,max=200"`
	Key            *string    `json:"license_key" validate:"omitempty,max=500"`
	Vendor         *string    `json:"vendor" validate:"omitempty,max=200"`
	Seats          *int       `json:"seats" validate:"omitempty,gte=1"`
	EquipmentID    *string    `json:"equipment_id"`
	ClearEquipment bool       `json:"clear_equipment"`
	PurchasedAt    *time.Time `json:"purchased_at"`
	ExpiresAt      *time.Time `json:"expires_at"`
	Notes          *string    `json:"notes" validate:"omitempty,max=2000"`
}

// LicenseService manages software licenses. A license inherits the site
// of the equipment it is installed on.
type LicenseService struct {
	tx        txProvider
	repo      licenseRepository
	equipment peripheralEquipmentLookup
	changes   changeWriter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewLicenseService constructs a LicenseService.
func NewLicenseService(tx txProvider, repo licenseRepository, equipment peripheralEquipmentLookup, changes changeWriter, validate *validator.Validate, logger *zap.Logger) *LicenseService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LicenseService{tx: tx, repo: repo, equipment: equipment, changes: changes, validator: validate, logger: logger}
}

// List returns licenses within the actor's scope.
func (s *LicenseService) List(ctx context.Context, actor authz.Actor, filter models.LicenseFilter) ([]models.License, *models.Pagination, error) {
	scope := authz.ScopeFor(actor)
	if scope.Empty() {
		return []models.License{}, &models.Pagination{Page: 1, PageSize: filter.PageSize, TotalCount: 0}, nil
	}
	if !scope.All {
		filter.SiteID = scope.SiteID
	}

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list licenses")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return items, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns a license by id.
func (s *LicenseService) Get(ctx context.Context, actor authz.Actor, id string) (*models.License, error) {
	item, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "license not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load license")
	}
	if item.SiteID != nil && !actor.CanAccessSite(item.SiteID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "license belongs to another site")
	}
	return item, nil
}

// Create registers a license.
func (s *LicenseService) Create(ctx context.Context, actor authz.Actor, req CreateLicenseRequest) (item *models.License, err error) {
	if err = s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid license payload")
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

	if req.EquipmentID != nil {
		if err = s.checkEquipment(ctx, tx, actor, *req.EquipmentID); err != nil {
			return nil, err
		}
	}

	item = &models.License{
		Software:    req.Software,
		Key:         req.Key,
		Vendor:      req.Vendor,
		Seats:       req.Seats,
		EquipmentID: req.EquipmentID,
		PurchasedAt: req.PurchasedAt,
		ExpiresAt:   req.ExpiresAt,
		Notes:       req.Notes,
	}
	if err = s.repo.Create(ctx, tx, item); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create license")
		return nil, err
	}

	created, err := s.repo.FindByID(ctx, tx, item.ID)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload license")
		return nil, err
	}

	if err = s.changes.InsertMany(ctx, tx, audit.Creation(audit.LicenseSnapshot(created), actorID(actor))); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write change records")
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit license creation")
		return nil, err
	}
	return created, nil
}

// Update edits a license and audits the field changes.
func (s *LicenseService) Update(ctx context.Context, actor authz.Actor, id string, req UpdateLicenseRequest) (item *models.License, err error) {
	if err = s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid license payload")
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

	current, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "license not found")
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load license")
		return nil, err
	}
	if current.SiteID != nil && !actor.CanAccessSite(current.SiteID) {
		err = appErrors.Clone(appErrors.ErrForbidden, "license belongs to another site")
		return nil, err
	}

	before := audit.LicenseSnapshot(current)

	if req.Software != nil {
		current.Software = *req.Software
	}
	if req.Key != nil {
		current.Key = *req.Key
	}
	if req.Vendor != nil {
		current.Vendor = req.Vendor
	}
	if req.Seats != nil {
		current.Seats = *req.Seats
	}
	switch {
	case req.ClearEquipment:
		current.EquipmentID = nil
	case req.EquipmentID != nil:
		if err = s.checkEquipment(ctx, tx, actor, *req.EquipmentID); err != nil {
			return nil, err
		}
		current.EquipmentID = req.EquipmentID
	}
	if req.PurchasedAt != nil {
		current.PurchasedAt = req.PurchasedAt
	}
	if req.ExpiresAt != nil {
		current.ExpiresAt = req.ExpiresAt
	}
	if req.Notes != nil {
		current.Notes = req.Notes
	}

	if err = s.repo.Update(ctx, tx, current); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update license")
		return nil, err
	}

	updated, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload license")
		return nil, err
	}

	if err = s.changes.InsertMany(ctx, tx, audit.Diff(before, audit.LicenseSnapshot(updated), actorID(actor))); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write change records")
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit license update")
		return nil, err
	}
	return updated, nil
}

// Delete removes a license and leaves one DELETED change record.
func (s *LicenseService) Delete(ctx context.Context, actor authz.Actor, id string) (err error) {
	current, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}

	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	snap := audit.LicenseSnapshot(current)
	if err = s.repo.Delete(ctx, tx, id); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete license")
		return err
	}

	notice := "La licencia '" + current.Software + "' (ID: " + current.ID + ") fue eliminada."
	if err = s.changes.InsertMany(ctx, tx, []models.ChangeRecord{audit.Deletion(snap, notice, actorID(actor))}); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write change records")
		return err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit license deletion")
		return err
	}
	return nil
}

func (s *LicenseService) checkEquipment(ctx context.Context, exec sqlx.ExtContext, actor authz.Actor, equipmentID string) error {
	equipment, err := s.equipment.FindByID(ctx, exec, equipmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrValidation, "linked equipment not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load linked equipment")
	}
	if !actor.CanAccessSite(equipment.SiteID) {
		return appErrors.Clone(appErrors.ErrForbidden, "linked equipment belongs to another site")
	}
	return nil
}
