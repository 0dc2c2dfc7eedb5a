package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/gestionequipos/activos-api/internal/audit"
	"github.com/gestionequipos/activos-api/internal/authz"
	"github.com/gestionequipos/activos-api/internal/models"
	appErrors "github.com/gestionequipos/activos-api/pkg/errors"
	"github.com/gestionequipos/activos-api/pkg/export"
)

type equipmentRepository interface {
	List(ctx context.Context, filter models.EquipmentFilter) ([]models.Equipment, int, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Equipment, error)
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Equipment, error)
	ExistsBySerial(ctx context.Context, serial, excludeID string) (bool, error)
	Create(ctx context.Context, exec sqlx.ExtContext, item *models.Equipment) error
	Update(ctx context.Context, exec sqlx.ExtContext, item *models.Equipment) error
}

type holderLookup interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Employee, error)
}

type custodyTracker interface {
	Observe(ctx context.Context, exec sqlx.ExtContext, asset AssetRef, before, after *HolderRef) error
	Decommission(ctx context.Context, exec sqlx.ExtContext, asset AssetRef) error
}

// CreateEquipmentRequest represents payload for registering a device.
type CreateEquipmentRequest struct {
	Serial             string     `json:"serial" validate:"required,max=100"`
	InventoryTag       *string    `json:"inventory_tag" validate:"omitempty,max=100"`
	Name               string     `json:"name" validate:"required,max=200"`
	Brand              *string    `json:"brand" validate:"omitempty,max=100"`
	Model              *string    `json:"model" validate:"omitempty,max=100"`
	Category           *string    `json:"category" validate:"omitempty,max=100"`
	State              string     `json:"state" validate:"required,oneof=BUENO REGULAR MALO FUERA_DE_SERVICIO"`
	SiteID             *string    `json:"site_id"`
	AssignedEmployeeID *string    `json:"assigned_employee_id"`
	PurchaseDate       *time.Time `json:"purchase_date"`
	WarrantyUntil      *time.Time `json:"warranty_until"`
	Notes              *string    `json:"notes" validate:"omitempty,max=2000"`
}

// UpdateEquipmentRequest represents payload for editing a device.
type UpdateEquipmentRequest struct {
	Serial             *string    `json:"serial" validate:"omitempty,max=100"`
	InventoryTag       *string    `json:"inventory_tag" validate:"omitempty,max=100"`
	Name               *string    `json:"name" validate:"omitempty,max=200"`
	Brand              *string    `json:"brand" validate:"omitempty,max=100"`
	Model              *string    `json:"model" validate:"omitempty,max=100"`
	Category           *string    `json:"category" validate:"omitempty,max=100"`
	State              *string    `json:"state" validate:"omitempty,oneof=BUENO REGULAR MALO FUERA_DE_SERVICIO"`
	SiteID             *string    `json:"site_id"`
	AssignedEmployeeID *string    `json:"assigned_employee_id"`
	ClearAssignment    bool       `json:"clear_assignment"`
	PurchaseDate       *time.Time `json:"purchase_date"`
	WarrantyUntil      *time.Time `json:"warranty_until"`
	Notes              *string    `json:"notes" validate:"omitempty,max=2000"`
}

// EquipmentService orchestrates device writes. Every mutation runs the
// same pipeline: lock the row, capture a before snapshot, apply the
// change, capture an after snapshot, then write the field diff and let
// the custody tracker reconcile assignments, all in one transaction.
type EquipmentService struct {
	tx        txProvider
	repo      equipmentRepository
	employees holderLookup
	changes   changeWriter
	tracker   custodyTracker
	csv       *export.CSVExporter
	pdf       *export.PDFExporter
	validator *validator.Validate
	logger    *zap.Logger
}

// NewEquipmentService constructs an EquipmentService.
func NewEquipmentService(
	tx txProvider,
	repo equipmentRepository,
	employees holderLookup,
	changes changeWriter,
	tracker custodyTracker,
	validate *validator.Validate,
	logger *zap.Logger,
) *EquipmentService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EquipmentService{
		tx:        tx,
		repo:      repo,
		employees: employees,
		changes:   changes,
		tracker:   tracker,
		csv:       export.NewCSVExporter(),
		pdf:       export.NewPDFExporter(),
		validator: validate,
		logger:    logger,
	}
}

// List returns equipment within the actor's scope.
func (s *EquipmentService) List(ctx context.Context, actor authz.Actor, filter models.EquipmentFilter) ([]models.Equipment, *models.Pagination, error) {
	scope := authz.ScopeFor(actor)
	if scope.Empty() {
		return []models.Equipment{}, &models.Pagination{Page: 1, PageSize: filter.PageSize, TotalCount: 0}, nil
	}
	if !scope.All {
		filter.SiteID = scope.SiteID
	}

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list equipment")
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

// Get returns a device by id.
func (s *EquipmentService) Get(ctx context.Context, actor authz.Actor, id string) (*models.Equipment, error) {
	item, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "equipment not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load equipment")
	}
	if !actor.CanAccessSite(item.SiteID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "equipment belongs to another site")
	}
	return item, nil
}

// Create registers a device and, when it comes pre-assigned, opens the
// first custody period.
func (s *EquipmentService) Create(ctx context.Context, actor authz.Actor, req CreateEquipmentRequest) (item *models.Equipment, err error) {
	if err = s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid equipment payload")
	}
	if !actor.CanAccessSite(req.SiteID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "cannot create equipment outside your site")
	}

	exists, err := s.repo.ExistsBySerial(ctx, req.Serial, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check serial")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "serial already registered")
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

	availability := models.EquipmentAvailable
	var holder *HolderRef
	if req.AssignedEmployeeID != nil {
		holder, err = s.resolveHolder(ctx, tx, *req.AssignedEmployeeID, req.SiteID)
		if err != nil {
			return nil, err
		}
		availability = models.EquipmentAssigned
	}

	item = &models.Equipment{
		Serial:             req.Serial,
		InventoryTag:       req.InventoryTag,
		Name:               req.Name,
		Brand:              req.Brand,
		Model:              req.Model,
		Category:           req.Category,
		State:              models.EquipmentState(req.State),
		Availability:       availability,
		SiteID:             req.SiteID,
		AssignedEmployeeID: req.AssignedEmployeeID,
		PurchaseDate:       req.PurchaseDate,
		WarrantyUntil:      req.WarrantyUntil,
		Notes:              req.Notes,
		Active:             true,
	}
	if err = s.repo.Create(ctx, tx, item); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create equipment")
		return nil, err
	}

	created, err := s.repo.FindByID(ctx, tx, item.ID)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload equipment")
		return nil, err
	}

	if err = s.changes.InsertMany(ctx, tx, audit.Creation(audit.EquipmentSnapshot(created), actorID(actor))); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write change records")
		return nil, err
	}
	if holder != nil {
		if err = s.tracker.Observe(ctx, tx, equipmentAsset(created), nil, holder); err != nil {
			return nil, err
		}
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit equipment creation")
		return nil, err
	}
	return created, nil
}

// Update edits a device, audits the field changes and reconciles the
// custody ledger when the holder changed.
func (s *EquipmentService) Update(ctx context.Context, actor authz.Actor, id string, req UpdateEquipmentRequest) (item *models.Equipment, err error) {
	if err = s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid equipment payload")
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

	if _, err = s.repo.FindByIDForUpdate(ctx, tx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "equipment not found")
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock equipment")
		return nil, err
	}

	current, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load equipment")
		return nil, err
	}
	if !actor.CanAccessSite(current.SiteID) {
		err = appErrors.Clone(appErrors.ErrForbidden, "equipment belongs to another site")
		return nil, err
	}
	if !current.Active {
		err = appErrors.Clone(appErrors.ErrImmutableRecord, "decommissioned equipment can no longer be modified")
		return nil, err
	}

	before := audit.EquipmentSnapshot(current)
	beforeHolder := currentHolder(current)

	if req.Serial != nil && *req.Serial != current.Serial {
		var exists bool
		exists, err = s.repo.ExistsBySerial(ctx, *req.Serial, current.ID)
		if err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check serial")
			return nil, err
		}
		if exists {
			err = appErrors.Clone(appErrors.ErrConflict, "serial already registered")
			return nil, err
		}
		current.Serial = *req.Serial
	}
	if req.InventoryTag != nil {
		current.InventoryTag = req.InventoryTag
	}
	if req.Name != nil {
		current.Name = *req.Name
	}
	if req.Brand != nil {
		current.Brand = req.Brand
	}
	if req.Model != nil {
		current.Model = req.Model
	}
	if req.Category != nil {
		current.Category = req.Category
	}
	if req.State != nil {
		current.State = models.EquipmentState(*req.State)
	}
	if req.SiteID != nil {
		if !actor.CanAccessSite(req.SiteID) {
			err = appErrors.Clone(appErrors.ErrForbidden, "cannot move equipment to another site")
			return nil, err
		}
		current.SiteID = req.SiteID
	}
	if req.PurchaseDate != nil {
		current.PurchaseDate = req.PurchaseDate
	}
	if req.WarrantyUntil != nil {
		current.WarrantyUntil = req.WarrantyUntil
	}
	if req.Notes != nil {
		current.Notes = req.Notes
	}

	var afterHolder *HolderRef
	switch {
	case req.ClearAssignment:
		current.AssignedEmployeeID = nil
	case req.AssignedEmployeeID != nil:
		afterHolder, err = s.resolveHolder(ctx, tx, *req.AssignedEmployeeID, current.SiteID)
		if err != nil {
			return nil, err
		}
		current.AssignedEmployeeID = req.AssignedEmployeeID
	default:
		afterHolder = beforeHolder
	}

	if current.Availability != models.EquipmentInMaintenance {
		if current.AssignedEmployeeID != nil {
			current.Availability = models.EquipmentAssigned
		} else {
			current.Availability = models.EquipmentAvailable
		}
	}

	if err = s.repo.Update(ctx, tx, current); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update equipment")
		return nil, err
	}

	updated, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload equipment")
		return nil, err
	}

	if err = s.changes.InsertMany(ctx, tx, audit.Diff(before, audit.EquipmentSnapshot(updated), actorID(actor))); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write change records")
		return nil, err
	}
	if err = s.tracker.Observe(ctx, tx, equipmentAsset(updated), beforeHolder, afterHolder); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit equipment update")
		return nil, err
	}
	return updated, nil
}

// Decommission retires a device. The row survives for history, any open
// custody period is closed and repeat calls are no-ops.
func (s *EquipmentService) Decommission(ctx context.Context, actor authz.Actor, id string) (err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	if _, err = s.repo.FindByIDForUpdate(ctx, tx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "equipment not found")
			return err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock equipment")
		return err
	}

	current, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load equipment")
		return err
	}
	if !actor.CanAccessSite(current.SiteID) {
		err = appErrors.Clone(appErrors.ErrForbidden, "equipment belongs to another site")
		return err
	}
	if !current.Active {
		return tx.Commit()
	}

	before := audit.EquipmentSnapshot(current)
	current.Active = false
	current.Availability = models.EquipmentDecommissioned
	current.AssignedEmployeeID = nil

	if err = s.repo.Update(ctx, tx, current); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to decommission equipment")
		return err
	}

	updated, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload equipment")
		return err
	}
	if err = s.changes.InsertMany(ctx, tx, audit.Diff(before, audit.EquipmentSnapshot(updated), actorID(actor))); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write change records")
		return err
	}
	if err = s.tracker.Decommission(ctx, tx, equipmentAsset(updated)); err != nil {
		return err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit equipment decommission")
		return err
	}
	return nil
}

// Export renders the scoped inventory as CSV or PDF.
func (s *EquipmentService) Export(ctx context.Context, actor authz.Actor, filter models.EquipmentFilter, format string) ([]byte, string, error) {
	filter.Page = 1
	filter.PageSize = 100

	items, _, err := s.List(ctx, actor, filter)
	if err != nil {
		return nil, "", err
	}

	dataset := export.Dataset{
		Headers: []string{"Serial", "Nombre", "Marca", "Estado", "Disponibilidad", "Sede", "Empleado asignado", "Proximo mantenimiento"},
	}
	for i := range items {
		item := &items[i]
		row := map[string]string{
			"Serial":         item.Serial,
			"Nombre":         item.Name,
			"Estado":         string(item.State),
			"Disponibilidad": string(item.Availability),
		}
		if item.Brand != nil {
			row["Marca"] = *item.Brand
		}
		if item.SiteName != nil {
			row["Sede"] = *item.SiteName
		}
		if item.AssignedEmployee != nil {
			row["Empleado asignado"] = *item.AssignedEmployee
		}
		if item.NextMaintenanceAt != nil {
			row["Proximo mantenimiento"] = item.NextMaintenanceAt.Format(models.DateLayout)
		}
		dataset.Rows = append(dataset.Rows, row)
	}

	switch format {
	case "pdf":
		payload, err := s.pdf.Render(dataset, "Inventario de equipos")
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render pdf export")
		}
		return payload, "application/pdf", nil
	case "", "csv":
		payload, err := s.csv.Render(dataset)
		if err != nil {
			return nil, "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render csv export")
		}
		return payload, "text/csv", nil
	default:
		return nil, "", appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("unsupported export format %q", format))
	}
}

func (s *EquipmentService) resolveHolder(ctx context.Context, exec sqlx.ExtContext, employeeID string, siteID *string) (*HolderRef, error) {
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
	if employee.SiteID != nil && siteID != nil && *employee.SiteID != *siteID {
		return nil, appErrors.Clone(appErrors.ErrValidation, "employee belongs to another site")
	}
	return &HolderRef{ID: employee.ID, Label: employee.FullName}, nil
}

func equipmentAsset(item *models.Equipment) AssetRef {
	return AssetRef{
		Type:   models.AssetEquipment,
		ID:     item.ID,
		Label:  fmt.Sprintf("%s (%s)", item.Name, item.Serial),
		SiteID: item.SiteID,
	}
}

func currentHolder(item *models.Equipment) *HolderRef {
	if item.AssignedEmployeeID == nil {
		return nil
	}
	label := ""
	if item.AssignedEmployee != nil {
		label = *item.AssignedEmployee
	}
	return &HolderRef{ID: *item.AssignedEmployeeID, Label: label}
}
