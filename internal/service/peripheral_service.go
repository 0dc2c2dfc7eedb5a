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

type peripheralRepository interface {
	List(ctx context.Context, filter models.PeripheralFilter) ([]models.Peripheral, int, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Peripheral, error)
	Create(ctx context.Context, exec sqlx.ExtContext, item *models.Peripheral) error
	Update(ctx context.Context, exec sqlx.ExtContext, item *models.Peripheral) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type peripheralEquipmentLookup interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Equipment, error)
}

// CreatePeripheralRequest represents payload for registering a
// peripheral.
type CreatePeripheralRequest struct {
	Serial             *string `json:"serial" validate:"omitempty,max=100"`
	Name               string  `json:"name" validate:"required,max=200"`
	Type               string  `json:"type" validate:"required,oneof=MOUSE TECLADO MONITOR DIADEMA OTRO"`
	Brand              *string `json:"brand" validate:"omitempty,max=100"`
	State              string  `json:"state" validate:"required,oneof=BUENO REGULAR MALO FUERA_DE_SERVICIO"`
	EquipmentID        *string `json:"equipment_id"`
	AssignedEmployeeID *string `json:"assigned_employee_id"`
	Notes              *string `json:"notes" validate:"omitempty,max=2000"`
}

// UpdatePeripheralRequest represents payload for editing a peripheral.
type UpdatePeripheralRequest struct {
	Serial             *string `json:"serial" validate:"omitempty,max=100"`
	Name               *string `json:"name" validate:"omitempty,max=200"`
	Type               *string `json:"type" validate:"omitempty,oneof=MOUSE TECLADO MONITOR DIADEMA OTRO"`
	Brand              *string `json:"brand" validate:"omitempty,max=100"`
	State              *string `json:"state" validate:"omitempty,oneof=BUENO REGULAR MALO FUERA_DE_SERVICIO"`
	EquipmentID        *string `json:"equipment_id"`
	ClearEquipment     bool    `json:"clear_equipment"`
	AssignedEmployeeID *string `json:"assigned_employee_id"`
	ClearAssignment    bool    `json:"clear_assignment"`
	Notes              *string `json:"notes" validate:"omitempty,max=2000"`
}

// PeripheralService orchestrates peripheral writes through the same
// audited pipeline as equipment. A peripheral's site always follows the
// equipment it hangs from.
type PeripheralService struct {
	tx        txProvider
	repo      peripheralRepository
	equipment peripheralEquipmentLookup
	employees holderLookup
	changes   changeWriter
	tracker   custodyTracker
	validator *validator.Validate
	logger    *zap.Logger
}

// NewPeripheralService constructs a PeripheralService.
func NewPeripheralService(
	tx txProvider,
	repo peripheralRepository,
	equipment peripheralEquipmentLookup,
	employees holderLookup,
	changes changeWriter,
	tracker custodyTracker,
	validate *validator.Validate,
	logger *zap.Logger,
) *PeripheralService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &PeripheralService{
		tx:        tx,
		repo:      repo,
		equipment: equipment,
		employees: employees,
		changes:   changes,
		tracker:   tracker,
		validator: validate,
		logger:    logger,
	}
}

// List returns peripherals within the actor's scope.
func (s *PeripheralService) List(ctx context.Context, actor authz.Actor, filter models.PeripheralFilter) ([]models.Peripheral, *models.Pagination, error) {
	scope := authz.ScopeFor(actor)
	if scope.Empty() {
		return []models.Peripheral{}, &models.Pagination{Page: 1, PageSize: filter.PageSize, TotalCount: 0}, nil
	}
	if !scope.All {
		filter.SiteID = scope.SiteID
	}

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list peripherals")
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

// Get returns a peripheral by id.
func (s *PeripheralService) Get(ctx context.Context, actor authz.Actor, id string) (*models.Peripheral, error) {
	item, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "peripheral not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load peripheral")
	}
	if !actor.CanAccessSite(item.SiteID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "peripheral belongs to another site")
	}
	return item, nil
}

// Create registers a peripheral.
func (s *PeripheralService) Create(ctx context.Context, actor authz.Actor, req CreatePeripheralRequest) (item *models.Peripheral, err error) {
	if err = s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid peripheral payload")
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
		if _, err = s.resolveEquipmentSite(ctx, tx, actor, *req.EquipmentID); err != nil {
			return nil, err
		}
	}

	var holder *HolderRef
	if req.AssignedEmployeeID != nil {
		holder, err = s.resolveEmployee(ctx, tx, *req.AssignedEmployeeID)
		if err != nil {
			return nil, err
		}
	}

	item = &models.Peripheral{
		Serial:             req.Serial,
		Name:               req.Name,
		Type:               models.PeripheralType(req.Type),
		Brand:              req.Brand,
		State:              models.EquipmentState(req.State),
		EquipmentID:        req.EquipmentID,
		AssignedEmployeeID: req.AssignedEmployeeID,
		Notes:              req.Notes,
	}
	if err = s.repo.Create(ctx, tx, item); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create peripheral")
		return nil, err
	}

	created, err := s.repo.FindByID(ctx, tx, item.ID)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload peripheral")
		return nil, err
	}

	if err = s.changes.InsertMany(ctx, tx, audit.Creation(audit.PeripheralSnapshot(created), actorID(actor))); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write change records")
		return nil, err
	}
	if holder != nil {
		if err = s.tracker.Observe(ctx, tx, peripheralAsset(created), nil, holder); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit peripheral creation")
		return nil, err
	}
	return created, nil
}

// Update edits a peripheral, audits the field changes and reconciles
// the custody ledger.
func (s *PeripheralService) Update(ctx context.Context, actor authz.Actor, id string, req UpdatePeripheralRequest) (item *models.Peripheral, err error) {
	if err = s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid peripheral payload")
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
			err = appErrors.Clone(appErrors.ErrNotFound, "peripheral not found")
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load peripheral")
		return nil, err
	}
	if !actor.CanAccessSite(current.SiteID) {
		err = appErrors.Clone(appErrors.ErrForbidden, "peripheral belongs to another site")
		return nil, err
	}

	before := audit.PeripheralSnapshot(current)
	beforeHolder := peripheralHolder(current)

	if req.Serial != nil {
		current.Serial = req.Serial
	}
	if req.Name != nil {
		current.Name = *req.Name
	}
	if req.Type != nil {
		current.Type = models.PeripheralType(*req.Type)
	}
	if req.Brand != nil {
		current.Brand = req.Brand
	}
	if req.State != nil {
		current.State = models.EquipmentState(*req.State)
	}
	switch {
	case req.ClearEquipment:
		current.EquipmentID = nil
	case req.EquipmentID != nil:
		if _, err = s.resolveEquipmentSite(ctx, tx, actor, *req.EquipmentID); err != nil {
			return nil, err
		}
		current.EquipmentID = req.EquipmentID
	}
	if req.Notes != nil {
		current.Notes = req.Notes
	}

	var afterHolder *HolderRef
	switch {
	case req.ClearAssignment:
		current.AssignedEmployeeID = nil
	case req.AssignedEmployeeID != nil:
		afterHolder, err = s.resolveEmployee(ctx, tx, *req.AssignedEmployeeID)
		if err != nil {
			return nil, err
		}
		current.AssignedEmployeeID = req.AssignedEmployeeID
	default:
		afterHolder = beforeHolder
	}

	if err = s.repo.Update(ctx, tx, current); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update peripheral")
		return nil, err
	}

	updated, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload peripheral")
		return nil, err
	}

	if err = s.changes.InsertMany(ctx, tx, audit.Diff(before, audit.PeripheralSnapshot(updated), actorID(actor))); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write change records")
		return nil, err
	}
	if err = s.tracker.Observe(ctx, tx, peripheralAsset(updated), beforeHolder, afterHolder); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit peripheral update")
		return nil, err
	}
	return updated, nil
}

// Delete removes a peripheral. The row disappears but its story stays:
// one DELETED change record plus a closed custody period.
func (s *PeripheralService) Delete(ctx context.Context, actor authz.Actor, id string) (err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	current, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "peripheral not found")
			return err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load peripheral")
		return err
	}
	if !actor.CanAccessSite(current.SiteID) {
		err = appErrors.Clone(appErrors.ErrForbidden, "peripheral belongs to another site")
		return err
	}

	snap := audit.PeripheralSnapshot(current)
	if err = s.tracker.Decommission(ctx, tx, peripheralAsset(current)); err != nil {
		return err
	}
	if err = s.repo.Delete(ctx, tx, id); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete peripheral")
		return err
	}

	notice := fmt.Sprintf("El periferico '%s' (ID: %s) fue eliminado.", current.Name, current.ID)
	if err = s.changes.InsertMany(ctx, tx, []models.ChangeRecord{audit.Deletion(snap, notice, actorID(actor))}); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write change records")
		return err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit peripheral deletion")
		return err
	}
	return nil
}

func (s *PeripheralService) resolveEquipmentSite(ctx context.Context, exec sqlx.ExtContext, actor authz.Actor, equipmentID string) (*string, error) {
	equipment, err := s.equipment.FindByID(ctx, exec, equipmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "linked equipment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load linked equipment")
	}
	if !actor.CanAccessSite(equipment.SiteID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "linked equipment belongs to another site")
	}
	return equipment.SiteID, nil
}

func (s *PeripheralService) resolveEmployee(ctx context.Context, exec sqlx.ExtContext, employeeID string) (*HolderRef, error) {
	employee, err := s.employees.FindByID(ctx, exec, employeeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrValidation, "assigned employee not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load employee")
	}
	if !employee.Active {
		return nil, appErrors.Clone(appErrors.ErrValidation, "cannot assign assets to an inactive employee")
	}
	return &HolderRef{ID: employee.ID, Label: employee.FullName}, nil
}

func peripheralAsset(item *models.Peripheral) AssetRef {
	label := item.Name
	if item.Serial != nil {
		label = fmt.Sprintf("%s (%s)", item.Name, *item.Serial)
	}
	return AssetRef{
		Type:   models.AssetPeripheral,
		ID:     item.ID,
		Label:  label,
		SiteID: item.SiteID,
	}
}

func peripheralHolder(item *models.Peripheral) *HolderRef {
	if item.AssignedEmployeeID == nil {
		return nil
	}
	label := ""
	if item.AssignedEmployee != nil {
		label = *item.AssignedEmployee
	}
	return &HolderRef{ID: *item.AssignedEmployeeID, Label: label}
}
