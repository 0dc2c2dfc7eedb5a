package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/gestionequipos/activos-api/internal/audit"
	"github.com/gestionequipos/activos-api/internal/authz"
	"github.com/gestionequipos/activos-api/internal/models"
	"github.com/gestionequipos/activos-api/pkg/config"
	appErrors "github.com/gestionequipos/activos-api/pkg/errors"
	"github.com/gestionequipos/activos-api/pkg/storage"
)

// maintenanceInterval is how far ahead the next preventive maintenance
// is scheduled after one finishes.
const maintenanceInterval = 180 * 24 * time.Hour

// Maintenance lifecycle actions recorded in the action log.
const (
	MaintenanceActionCreate          = "CREATE"
	MaintenanceActionStart           = "START"
	MaintenanceActionFinish          = "FINISH"
	MaintenanceActionCancel          = "CANCEL"
	MaintenanceActionUpdate          = "UPDATE"
	MaintenanceActionEvidenceAdded   = "EVIDENCE_ADDED"
	MaintenanceActionEvidenceRemoved = "EVIDENCE_REMOVED"
)

type maintenanceRepository interface {
	List(ctx context.Context, filter models.MaintenanceFilter) ([]models.MaintenanceRecord, int, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.MaintenanceRecord, error)
	HasOpenForEquipment(ctx context.Context, exec sqlx.ExtContext, equipmentID string) (bool, error)
	Create(ctx context.Context, exec sqlx.ExtContext, record *models.MaintenanceRecord) error
	Update(ctx context.Context, exec sqlx.ExtContext, record *models.MaintenanceRecord) error
	Upcoming(ctx context.Context, siteID *string, until time.Time, limit int) ([]models.MaintenanceRecord, error)
	InsertEvidence(ctx context.Context, exec sqlx.ExtContext, evidence *models.MaintenanceEvidence) error
	FindEvidence(ctx context.Context, id string) (*models.MaintenanceEvidence, error)
	ListEvidence(ctx context.Context, maintenanceID string) ([]models.MaintenanceEvidence, error)
	CountEvidence(ctx context.Context, exec sqlx.ExtContext, maintenanceID string) (int, error)
	DeleteEvidence(ctx context.Context, id string) error
	InsertAction(ctx context.Context, exec sqlx.ExtContext, action *models.MaintenanceActionLog) error
	ListActions(ctx context.Context, maintenanceID string) ([]models.MaintenanceActionLog, error)
}

type maintenanceEquipmentRepository interface {
	FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Equipment, error)
	SetMaintenanceDates(ctx context.Context, exec sqlx.ExtContext, id string, last, next *time.Time) error
	SetAvailability(ctx context.Context, exec sqlx.ExtContext, id string, availability models.EquipmentAvailability) error
}

type changeWriter interface {
	InsertMany(ctx context.Context, exec sqlx.ExtContext, records []models.ChangeRecord) error
}

type evidenceStore interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
	Delete(filename string) error
}

type txProvider interface {
	BeginTxx(ctx context.Context, opts *sql.TxOptions) (*sqlx.Tx, error)
}

// CreateMaintenanceRequest represents payload for opening a maintenance.
// ScheduledStart defaults to today when omitted and cannot be changed
// afterwards.
type CreateMaintenanceRequest struct {
	EquipmentID    string     `json:"equipment_id" validate:"required"`
	Kind           string     `json:"kind" validate:"required,oneof=PREVENTIVE CORRECTIVE"`
	Description    string     `json:"description" validate:"required,max=2000"`
	Technician     *string    `json:"technician" validate:"omitempty,max=200"`
	ScheduledStart *time.Time `json:"scheduled_start"`
	ScheduledEnd   *time.Time `json:"scheduled_end"`
	Cost           *float64   `json:"cost" validate:"omitempty,gte=0"`
	Notes          *string    `json:"notes" validate:"omitempty,max=2000"`
}

// UpdateMaintenanceRequest represents payload for editing an open
// maintenance. Setting ActualCompletion promotes the record to
// FINISHED, subject to the same evidence requirement as Finish.
type UpdateMaintenanceRequest struct {
	Kind             *string    `json:"kind" validate:"omitempty,oneof=PREVENTIVE CORRECTIVE"`
	Description      *string    `json:"description" validate:"omitempty,max=2000"`
	Technician       *string    `json:"technician" validate:"omitempty,max=200"`
	ScheduledStart   *time.Time `json:"scheduled_start"`
	ScheduledEnd     *time.Time `json:"scheduled_end"`
	ActualCompletion *time.Time `json:"actual_completion"`
	Cost             *float64   `json:"cost" validate:"omitempty,gte=0"`
	Notes            *string    `json:"notes" validate:"omitempty,max=2000"`
}

// FinishMaintenanceRequest represents payload for closing a maintenance.
type FinishMaintenanceRequest struct {
	ActualCompletion *time.Time `json:"actual_completion"`
	Notes            *string    `json:"notes" validate:"omitempty,max=2000"`
}

// CancelMaintenanceRequest represents payload for cancelling a
// maintenance.
type CancelMaintenanceRequest struct {
	Reason *string `json:"reason" validate:"omitempty,max=500"`
}

// EvidenceUpload carries an uploaded evidence file.
type EvidenceUpload struct {
	FileName    string
	ContentType string
	Data        []byte
}

// MaintenanceService drives the maintenance lifecycle. Every mutation
// runs in one transaction that also carries the change records and the
// action log, so a failed write never leaves partial history behind.
type MaintenanceService struct {
	tx        txProvider
	repo      maintenanceRepository
	equipment maintenanceEquipmentRepository
	changes   changeWriter
	store     evidenceStore
	signer    *storage.SignedURLSigner
	cfg       config.EvidenceConfig
	validator *validator.Validate
	logger    *zap.Logger
}

// NewMaintenanceService constructs a MaintenanceService.
func NewMaintenanceService(
	tx txProvider,
	repo maintenanceRepository,
	equipment maintenanceEquipmentRepository,
	changes changeWriter,
	store evidenceStore,
	signer *storage.SignedURLSigner,
	cfg config.EvidenceConfig,
	validate *validator.Validate,
	logger *zap.Logger,
) *MaintenanceService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &MaintenanceService{
		tx:        tx,
		repo:      repo,
		equipment: equipment,
		changes:   changes,
		store:     store,
		signer:    signer,
		cfg:       cfg,
		validator: validate,
		logger:    logger,
	}
}

// List returns maintenance records within the actor's scope.
func (s *MaintenanceService) List(ctx context.Context, actor authz.Actor, filter models.MaintenanceFilter) ([]models.MaintenanceRecord, *models.Pagination, error) {
	scope := authz.ScopeFor(actor)
	if scope.Empty() {
		return []models.MaintenanceRecord{}, &models.Pagination{Page: 1, PageSize: filter.PageSize, TotalCount: 0}, nil
	}
	if !scope.All {
		filter.SiteID = scope.SiteID
	}

	records, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list maintenance records")
	}
	now := time.Now().UTC()
	for i := range records {
		records[i].RefreshOverdue(now)
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

// Get returns a maintenance record by id.
func (s *MaintenanceService) Get(ctx context.Context, actor authz.Actor, id string) (*models.MaintenanceRecord, error) {
	record, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "maintenance record not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load maintenance record")
	}
	if !actor.CanAccessSite(record.SiteID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "maintenance record belongs to another site")
	}
	record.RefreshOverdue(time.Now().UTC())
	return record, nil
}

// Upcoming lists open maintenance due within the coming days.
func (s *MaintenanceService) Upcoming(ctx context.Context, actor authz.Actor, days, limit int) ([]models.MaintenanceRecord, error) {
	scope := authz.ScopeFor(actor)
	if scope.Empty() {
		return []models.MaintenanceRecord{}, nil
	}
	if days <= 0 {
		days = 30
	}
	until := time.Now().UTC().AddDate(0, 0, days)

	records, err := s.repo.Upcoming(ctx, scope.SiteID, until, limit)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list upcoming maintenance")
	}
	now := time.Now().UTC()
	for i := range records {
		records[i].RefreshOverdue(now)
	}
	return records, nil
}

// History returns the action log of a maintenance record.
func (s *MaintenanceService) History(ctx context.Context, actor authz.Actor, id string) ([]models.MaintenanceActionLog, error) {
	if _, err := s.Get(ctx, actor, id); err != nil {
		return nil, err
	}
	actions, err := s.repo.ListActions(ctx, id)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load maintenance history")
	}
	return actions, nil
}

// Create opens a maintenance on a device. The equipment row is locked
// for the whole transaction so two concurrent openings cannot both see
// the device as free.
func (s *MaintenanceService) Create(ctx context.Context, actor authz.Actor, req CreateMaintenanceRequest) (*models.MaintenanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid maintenance payload")
	}

	start := time.Now().UTC()
	if req.ScheduledStart != nil {
		start = req.ScheduledStart.UTC()
	}
	if req.ScheduledEnd != nil && req.ScheduledEnd.Before(start) {
		return nil, appErrors.Clone(appErrors.ErrValidation, "planned completion date cannot precede the start date")
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

	equipment, err := s.equipment.FindByIDForUpdate(ctx, tx, req.EquipmentID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "equipment not found")
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock equipment")
		return nil, err
	}
	if !actor.CanAccessSite(equipment.SiteID) {
		err = appErrors.Clone(appErrors.ErrForbidden, "equipment belongs to another site")
		return nil, err
	}
	if equipment.Availability == models.EquipmentDecommissioned {
		err = appErrors.Clone(appErrors.ErrValidation, "equipment is decommissioned")
		return nil, err
	}

	open, err := s.repo.HasOpenForEquipment(ctx, tx, req.EquipmentID)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check open maintenance")
		return nil, err
	}
	if open {
		err = appErrors.Clone(appErrors.ErrConflict, "equipment already has an open maintenance")
		return nil, err
	}

	record := &models.MaintenanceRecord{
		EquipmentID:    req.EquipmentID,
		Kind:           models.MaintenanceKind(req.Kind),
		State:          models.MaintenancePending,
		Description:    req.Description,
		Technician:     req.Technician,
		ScheduledStart: start,
		ScheduledEnd:   req.ScheduledEnd,
		Cost:           req.Cost,
		Notes:          req.Notes,
		CreatedBy:      actorID(actor),
	}
	if err = s.repo.Create(ctx, tx, record); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create maintenance record")
		return nil, err
	}
	if err = s.equipment.SetAvailability(ctx, tx, equipment.ID, models.EquipmentInMaintenance); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to flag equipment in maintenance")
		return nil, err
	}

	created, err := s.repo.FindByID(ctx, tx, record.ID)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload maintenance record")
		return nil, err
	}

	if err = s.changes.InsertMany(ctx, tx, audit.Creation(audit.MaintenanceSnapshot(created), actorID(actor))); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write change records")
		return nil, err
	}
	if err = s.logAction(ctx, tx, created.ID, MaintenanceActionCreate, nil, actor); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit maintenance creation")
		return nil, err
	}
	created.RefreshOverdue(time.Now().UTC())
	return created, nil
}

// Start moves a pending maintenance to in progress.
func (s *MaintenanceService) Start(ctx context.Context, actor authz.Actor, id string) (*models.MaintenanceRecord, error) {
	return s.transition(ctx, actor, id, MaintenanceActionStart, nil, func(record *models.MaintenanceRecord) error {
		if record.State != models.MaintenancePending {
			return appErrors.Clone(appErrors.ErrInvalidTransition,
				fmt.Sprintf("cannot start a maintenance in state %s", record.State))
		}
		record.State = models.MaintenanceInProgress
		return nil
	}, nil)
}

// Finish closes a pending or in-progress maintenance. At least one
// evidence file must be attached, the completion date goes to
// ActualCompletion and the planned ScheduledEnd is left exactly as it
// was.
func (s *MaintenanceService) Finish(ctx context.Context, actor authz.Actor, id string, req FinishMaintenanceRequest) (*models.MaintenanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid finish payload")
	}

	completion := time.Now().UTC()
	if req.ActualCompletion != nil {
		completion = req.ActualCompletion.UTC()
	}

	return s.transition(ctx, actor, id, MaintenanceActionFinish, nil, func(record *models.MaintenanceRecord) error {
		if record.Terminal() {
			return appErrors.Clone(appErrors.ErrInvalidTransition,
				fmt.Sprintf("cannot finish a maintenance in state %s", record.State))
		}
		record.State = models.MaintenanceFinished
		record.ActualCompletion = &completion
		if req.Notes != nil {
			record.Notes = req.Notes
		}
		return nil
	}, &finishEffects{completion: completion})
}

// Cancel aborts a maintenance. Cancelling an already cancelled record
// is a no-op; cancelling a finished one is rejected.
func (s *MaintenanceService) Cancel(ctx context.Context, actor authz.Actor, id string, req CancelMaintenanceRequest) (*models.MaintenanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid cancel payload")
	}

	record, err := s.Get(ctx, actor, id)
	if err != nil {
		return nil, err
	}
	if record.State == models.MaintenanceCancelled {
		return record, nil
	}

	return s.transition(ctx, actor, id, MaintenanceActionCancel, req.Reason, func(record *models.MaintenanceRecord) error {
		if record.State == models.MaintenanceFinished {
			return appErrors.Clone(appErrors.ErrInvalidTransition, "cannot cancel a finished maintenance")
		}
		if record.State == models.MaintenanceCancelled {
			return nil
		}
		record.State = models.MaintenanceCancelled
		return nil
	}, &releaseEffects{})
}

// Update edits an open maintenance. Terminal records are immutable,
// the start date is fixed at creation, a planned completion date can
// be set once but never changed, and setting ActualCompletion promotes
// the record to FINISHED.
func (s *MaintenanceService) Update(ctx context.Context, actor authz.Actor, id string, req UpdateMaintenanceRequest) (*models.MaintenanceRecord, error) {
	if err := s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid maintenance payload")
	}

	var effects *finishEffects
	action := MaintenanceActionUpdate
	if req.ActualCompletion != nil {
		action = MaintenanceActionFinish
		effects = &finishEffects{completion: req.ActualCompletion.UTC()}
	}

	record, err := s.transition(ctx, actor, id, action, nil, func(record *models.MaintenanceRecord) error {
		if record.Terminal() {
			return appErrors.Clone(appErrors.ErrImmutableRecord,
				fmt.Sprintf("maintenance in state %s can no longer be modified", record.State))
		}
		if req.ScheduledStart != nil && !req.ScheduledStart.UTC().Equal(record.ScheduledStart) {
			return appErrors.Clone(appErrors.ErrValidation, "start date cannot be changed after creation")
		}
		if req.ScheduledEnd != nil && record.ScheduledEnd != nil && !req.ScheduledEnd.Equal(*record.ScheduledEnd) {
			return appErrors.Clone(appErrors.ErrValidation, "planned completion date cannot be changed once set")
		}
		if req.ScheduledEnd != nil && req.ScheduledEnd.Before(record.ScheduledStart) {
			return appErrors.Clone(appErrors.ErrValidation, "planned completion date cannot precede the start date")
		}

		if req.Kind != nil {
			record.Kind = models.MaintenanceKind(*req.Kind)
		}
		if req.Description != nil {
			record.Description = *req.Description
		}
		if req.Technician != nil {
			record.Technician = req.Technician
		}
		if req.ScheduledEnd != nil && record.ScheduledEnd == nil {
			end := req.ScheduledEnd.UTC()
			record.ScheduledEnd = &end
		}
		if req.Cost != nil {
			record.Cost = req.Cost
		}
		if req.Notes != nil {
			record.Notes = req.Notes
		}
		if req.ActualCompletion != nil {
			completion := req.ActualCompletion.UTC()
			record.State = models.MaintenanceFinished
			record.ActualCompletion = &completion
		}
		return nil
	}, effects)
	if err != nil {
		return nil, err
	}
	return record, nil
}

// finishEffects are the equipment-side updates applied when a
// maintenance reaches FINISHED.
type finishEffects struct {
	completion time.Time
}

// releaseEffects only releases the equipment from EN_MANTENIMIENTO.
type releaseEffects struct{}

// transition loads the record under its equipment lock, applies the
// mutation, and writes diff plus action log in the same transaction.
func (s *MaintenanceService) transition(
	ctx context.Context,
	actor authz.Actor,
	id string,
	action string,
	detail *string,
	mutate func(*models.MaintenanceRecord) error,
	effects interface{},
) (record *models.MaintenanceRecord, err error) {
	tx, err := s.tx.BeginTxx(ctx, nil)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to begin transaction")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	record, err = s.repo.FindByID(ctx, tx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "maintenance record not found")
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load maintenance record")
		return nil, err
	}
	if !actor.CanAccessSite(record.SiteID) {
		err = appErrors.Clone(appErrors.ErrForbidden, "maintenance record belongs to another site")
		return nil, err
	}

	equipment, err := s.equipment.FindByIDForUpdate(ctx, tx, record.EquipmentID)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to lock equipment")
		return nil, err
	}

	before := audit.MaintenanceSnapshot(record)
	if err = mutate(record); err != nil {
		return nil, err
	}

	if record.State == models.MaintenanceFinished {
		if err = s.requireEvidence(ctx, tx, record.ID); err != nil {
			return nil, err
		}
	}

	if err = s.repo.Update(ctx, tx, record); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update maintenance record")
		return nil, err
	}

	switch fx := effects.(type) {
	case *finishEffects:
		if fx != nil {
			next := fx.completion.Add(maintenanceInterval)
			if err = s.equipment.SetMaintenanceDates(ctx, tx, equipment.ID, &fx.completion, &next); err != nil {
				err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update equipment maintenance dates")
				return nil, err
			}
			if err = s.releaseEquipment(ctx, tx, equipment); err != nil {
				return nil, err
			}
		}
	case *releaseEffects:
		if fx != nil {
			if err = s.releaseEquipment(ctx, tx, equipment); err != nil {
				return nil, err
			}
		}
	}

	if err = s.changes.InsertMany(ctx, tx, audit.Diff(before, audit.MaintenanceSnapshot(record), actorID(actor))); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write change records")
		return nil, err
	}
	if err = s.logAction(ctx, tx, record.ID, action, detail, actor); err != nil {
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit maintenance transition")
		return nil, err
	}
	record.RefreshOverdue(time.Now().UTC())
	return record, nil
}

func (s *MaintenanceService) requireEvidence(ctx context.Context, exec sqlx.ExtContext, maintenanceID string) error {
	count, err := s.repo.CountEvidence(ctx, exec, maintenanceID)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count evidence")
	}
	if count == 0 {
		return appErrors.Clone(appErrors.ErrValidation, "finishing a maintenance requires at least one evidence file")
	}
	return nil
}

// releaseEquipment returns the device to its pre-maintenance
// availability once the record leaves EN_MANTENIMIENTO.
func (s *MaintenanceService) releaseEquipment(ctx context.Context, exec sqlx.ExtContext, equipment *models.Equipment) error {
	availability := models.EquipmentAvailable
	if equipment.AssignedEmployeeID != nil {
		availability = models.EquipmentAssigned
	}
	if !equipment.Active {
		availability = models.EquipmentDecommissioned
	}
	if err := s.equipment.SetAvailability(ctx, exec, equipment.ID, availability); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to release equipment")
	}
	return nil
}

func (s *MaintenanceService) logAction(ctx context.Context, exec sqlx.ExtContext, maintenanceID, action string, detail *string, actor authz.Actor) error {
	entry := &models.MaintenanceActionLog{
		MaintenanceID: maintenanceID,
		Action:        action,
		Detail:        detail,
		ActorID:       actorID(actor),
		ActorName:     actorName(actor),
	}
	if err := s.repo.InsertAction(ctx, exec, entry); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write maintenance action")
	}
	return nil
}

// AddEvidence attaches an uploaded file to the maintenance record.
func (s *MaintenanceService) AddEvidence(ctx context.Context, actor authz.Actor, maintenanceID string, upload EvidenceUpload) (*models.MaintenanceEvidence, error) {
	record, err := s.Get(ctx, actor, maintenanceID)
	if err != nil {
		return nil, err
	}
	if record.State == models.MaintenanceCancelled {
		return nil, appErrors.Clone(appErrors.ErrImmutableRecord, "cannot attach evidence to a cancelled maintenance")
	}
	if len(upload.Data) == 0 {
		return nil, appErrors.Clone(appErrors.ErrValidation, "evidence file is empty")
	}
	if s.cfg.MaxFileSizeBytes > 0 && int64(len(upload.Data)) > s.cfg.MaxFileSizeBytes {
		return nil, appErrors.Clone(appErrors.ErrValidation, "evidence file exceeds the size limit")
	}
	if !s.allowedMIME(upload.ContentType) {
		return nil, appErrors.Clone(appErrors.ErrValidation, fmt.Sprintf("content type %s is not allowed", upload.ContentType))
	}

	relPath := fmt.Sprintf("maintenance/%s/%s%s", maintenanceID, uuid.NewString(), filepath.Ext(upload.FileName))
	if _, err := s.store.Save(relPath, upload.Data); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store evidence file")
	}

	evidence := &models.MaintenanceEvidence{
		MaintenanceID: maintenanceID,
		FileName:      upload.FileName,
		StoragePath:   relPath,
		ContentType:   upload.ContentType,
		SizeBytes:     int64(len(upload.Data)),
		UploadedBy:    actorID(actor),
	}
	if err := s.repo.InsertEvidence(ctx, nil, evidence); err != nil {
		if cleanupErr := s.store.Delete(relPath); cleanupErr != nil {
			s.logger.Warn("failed to remove orphan evidence file", zap.String("path", relPath), zap.Error(cleanupErr))
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record evidence")
	}

	detail := upload.FileName
	if err := s.logAction(ctx, nil, maintenanceID, MaintenanceActionEvidenceAdded, &detail, actor); err != nil {
		s.logger.Warn("failed to log evidence upload", zap.String("maintenance_id", maintenanceID), zap.Error(err))
	}
	return evidence, nil
}

// ListEvidence returns the evidence attached to a maintenance record.
func (s *MaintenanceService) ListEvidence(ctx context.Context, actor authz.Actor, maintenanceID string) ([]models.MaintenanceEvidence, error) {
	if _, err := s.Get(ctx, actor, maintenanceID); err != nil {
		return nil, err
	}
	evidence, err := s.repo.ListEvidence(ctx, maintenanceID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list evidence")
	}
	return evidence, nil
}

// EvidenceDownloadURL issues a short-lived signed link for an evidence
// file.
func (s *MaintenanceService) EvidenceDownloadURL(ctx context.Context, actor authz.Actor, evidenceID string) (string, time.Time, error) {
	evidence, err := s.repo.FindEvidence(ctx, evidenceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", time.Time{}, appErrors.Clone(appErrors.ErrNotFound, "evidence not found")
		}
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evidence")
	}
	if _, err := s.Get(ctx, actor, evidence.MaintenanceID); err != nil {
		return "", time.Time{}, err
	}

	token, expiresAt, err := s.signer.Generate(evidence.ID, evidence.StoragePath)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign evidence url")
	}
	return token, expiresAt, nil
}

// OpenEvidenceByToken validates a signed download token and opens the
// underlying file. The token itself is the authorization.
func (s *MaintenanceService) OpenEvidenceByToken(ctx context.Context, token string) (*models.MaintenanceEvidence, *os.File, error) {
	evidenceID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}

	evidence, err := s.repo.FindEvidence(ctx, evidenceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "evidence not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evidence")
	}
	if evidence.StoragePath != relPath {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "token does not match the stored file")
	}

	file, err := s.store.Open(evidence.StoragePath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open evidence file")
	}
	return evidence, file, nil
}

// DeleteEvidence removes an evidence file from an open maintenance.
// Evidence backing a finished maintenance is immutable.
func (s *MaintenanceService) DeleteEvidence(ctx context.Context, actor authz.Actor, evidenceID string) error {
	evidence, err := s.repo.FindEvidence(ctx, evidenceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return appErrors.Clone(appErrors.ErrNotFound, "evidence not found")
		}
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load evidence")
	}
	record, err := s.Get(ctx, actor, evidence.MaintenanceID)
	if err != nil {
		return err
	}
	if record.State == models.MaintenanceFinished {
		return appErrors.Clone(appErrors.ErrImmutableRecord, "evidence of a finished maintenance cannot be removed")
	}

	if err := s.repo.DeleteEvidence(ctx, evidenceID); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete evidence")
	}
	if err := s.store.Delete(evidence.StoragePath); err != nil {
		s.logger.Warn("failed to delete evidence file", zap.String("path", evidence.StoragePath), zap.Error(err))
	}

	detail := evidence.FileName
	if err := s.logAction(ctx, nil, record.ID, MaintenanceActionEvidenceRemoved, &detail, actor); err != nil {
		s.logger.Warn("failed to log evidence removal", zap.String("maintenance_id", record.ID), zap.Error(err))
	}
	return nil
}

func (s *MaintenanceService) allowedMIME(contentType string) bool {
	if len(s.cfg.AllowedMIMEs) == 0 {
		return true
	}
	for _, allowed := range s.cfg.AllowedMIMEs {
		if allowed == contentType {
			return true
		}
	}
	return false
}

func actorID(actor authz.Actor) *string {
	if actor.UserID == "" {
		return nil
	}
	id := actor.UserID
	return &id
}

func actorName(actor authz.Actor) *string {
	if actor.FullName == "" {
		return nil
	}
	name := actor.FullName
	return &name
}
