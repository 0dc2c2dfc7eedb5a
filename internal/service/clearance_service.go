package service

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/gestionequipos/activos-api/internal/authz"
	"github.com/gestionequipos/activos-api/internal/models"
	"github.com/gestionequipos/activos-api/pkg/config"
	appErrors "github.com/gestionequipos/activos-api/pkg/errors"
	"github.com/gestionequipos/activos-api/pkg/export"
	"github.com/gestionequipos/activos-api/pkg/storage"
)

type clearanceRepository interface {
	Insert(ctx context.Context, clearance *models.Clearance) error
	FindByID(ctx context.Context, id string) (*models.Clearance, error)
	List(ctx context.Context, filter models.ClearanceFilter) ([]models.Clearance, int, error)
}

type clearanceEmployeeLookup interface {
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Employee, error)
}

type documentRenderer interface {
	RenderDocument(title string, sections []export.DocumentSection) ([]byte, error)
}

type documentStore interface {
	Save(filename string, data []byte) (string, error)
	Open(filename string) (*os.File, error)
}

// ClearanceService issues "paz y salvo" certificates. A clearance is
// granted only when the employee has no open assignments; otherwise a
// rejected record is stored with the pending count.
type ClearanceService struct {
	repo        clearanceRepository
	employees   clearanceEmployeeLookup
	assignments openAssignmentCounter
	renderer    documentRenderer
	store       documentStore
	signer      *storage.SignedURLSigner
	cfg         config.ClearanceConfig
	logger      *zap.Logger
}

// NewClearanceService constructs a ClearanceService.
func NewClearanceService(
	repo clearanceRepository,
	employees clearanceEmployeeLookup,
	assignments openAssignmentCounter,
	renderer documentRenderer,
	store documentStore,
	signer *storage.SignedURLSigner,
	cfg config.ClearanceConfig,
	logger *zap.Logger,
) *ClearanceService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ClearanceService{
		repo:        repo,
		employees:   employees,
		assignments: assignments,
		renderer:    renderer,
		store:       store,
		signer:      signer,
		cfg:         cfg,
		logger:      logger,
	}
}

// List returns clearances within the actor's scope.
func (s *ClearanceService) List(ctx context.Context, actor authz.Actor, filter models.ClearanceFilter) ([]models.Clearance, *models.Pagination, error) {
	scope := authz.ScopeFor(actor)
	if scope.Empty() {
		return []models.Clearance{}, &models.Pagination{Page: 1, PageSize: filter.PageSize, TotalCount: 0}, nil
	}
	if !scope.All {
		filter.SiteID = scope.SiteID
	}

	items, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list clearances")
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

// Get returns a single clearance.
func (s *ClearanceService) Get(ctx context.Context, actor authz.Actor, id string) (*models.Clearance, error) {
	item, err := s.repo.FindByID(ctx, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "clearance not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clearance")
	}
	if item.SiteID != nil && !actor.CanAccessSite(item.SiteID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "clearance belongs to another site")
	}
	return item, nil
}

// Request evaluates an employee and issues or rejects a clearance.
// Both outcomes are persisted so the decision is auditable later.
func (s *ClearanceService) Request(ctx context.Context, actor authz.Actor, employeeID string) (*models.Clearance, error) {
	employee, err := s.employees.FindByID(ctx, nil, employeeID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "employee not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load employee")
	}
	if employee.SiteID != nil && !actor.CanAccessSite(employee.SiteID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "employee belongs to another site")
	}

	pending, err := s.assignments.CountOpenByEmployee(ctx, employeeID)
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count open assignments")
	}

	clearance := &models.Clearance{
		ID:            uuid.NewString(),
		EmployeeID:    employee.ID,
		EmployeeLabel: employee.FullName,
		SiteID:        employee.SiteID,
		PendingAssets: pending,
		IssuedBy:      actorID(actor),
		IssuedByName:  actorName(actor),
		CreatedAt:     time.Now().UTC(),
	}

	if pending > 0 {
		clearance.Status = models.ClearanceRejected
	} else {
		clearance.Status = models.ClearanceIssued
		path, renderErr := s.renderCertificate(clearance, employee)
		if renderErr != nil {
			return nil, renderErr
		}
		clearance.DocumentPath = &path
	}

	if err := s.repo.Insert(ctx, clearance); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store clearance")
	}

	s.logger.Info("clearance evaluated",
		zap.String("clearance_id", clearance.ID),
		zap.String("employee_id", employee.ID),
		zap.String("status", string(clearance.Status)),
		zap.Int("pending_assets", pending))

	return clearance, nil
}

// DocumentURL returns a signed token for downloading the certificate of
// an issued clearance.
func (s *ClearanceService) DocumentURL(ctx context.Context, actor authz.Actor, id string) (string, time.Time, error) {
	clearance, err := s.Get(ctx, actor, id)
	if err != nil {
		return "", time.Time{}, err
	}
	if clearance.Status != models.ClearanceIssued || clearance.DocumentPath == nil {
		return "", time.Time{}, appErrors.Clone(appErrors.ErrValidation, "clearance has no certificate document")
	}
	token, expiresAt, err := s.signer.Generate(clearance.ID, *clearance.DocumentPath)
	if err != nil {
		return "", time.Time{}, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to sign document url")
	}
	return token, expiresAt, nil
}

// OpenDocumentByToken validates a signed download token and opens the
// certificate file.
func (s *ClearanceService) OpenDocumentByToken(ctx context.Context, token string) (*models.Clearance, *os.File, error) {
	clearanceID, relPath, _, err := s.signer.Parse(token, false)
	if err != nil {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "invalid or expired download token")
	}

	clearance, err := s.repo.FindByID(ctx, clearanceID)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, nil, appErrors.Clone(appErrors.ErrNotFound, "clearance not found")
		}
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load clearance")
	}
	if clearance.DocumentPath == nil || *clearance.DocumentPath != relPath {
		return nil, nil, appErrors.Clone(appErrors.ErrUnauthorized, "token does not match the stored file")
	}

	file, err := s.store.Open(relPath)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open certificate file")
	}
	return clearance, file, nil
}

func (s *ClearanceService) renderCertificate(clearance *models.Clearance, employee *models.Employee) (string, error) {
	issuedOn := clearance.CreatedAt.Format("02/01/2006")

	identity := export.DocumentSection{
		Heading: "Datos del empleado",
		Lines: []export.DocumentLine{
			{Label: "Nombre completo:", Value: employee.FullName},
			{Label: "Documento:", Value: employee.Document},
		},
	}
	if employee.Position != nil {
		identity.Lines = append(identity.Lines, export.DocumentLine{Label: "Cargo:", Value: *employee.Position})
	}
	if employee.SiteName != nil {
		identity.Lines = append(identity.Lines, export.DocumentLine{Label: "Sede:", Value: *employee.SiteName})
	}

	body := export.DocumentSection{
		Lines: []export.DocumentLine{
			{Value: fmt.Sprintf(
				"Se certifica que el empleado %s, identificado con documento %s, "+
					"no tiene equipos ni perifericos pendientes de devolucion a la fecha.",
				employee.FullName, employee.Document)},
			{Label: "Fecha de expedicion:", Value: issuedOn},
		},
	}
	if clearance.IssuedByName != nil {
		body.Lines = append(body.Lines, export.DocumentLine{Label: "Expedido por:", Value: *clearance.IssuedByName})
	}

	data, err := s.renderer.RenderDocument("Paz y Salvo", []export.DocumentSection{identity, body})
	if err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to render certificate")
	}

	path := fmt.Sprintf("clearances/%s/%s.pdf", clearance.CreatedAt.Format("2006/01"), clearance.ID)
	if _, err := s.store.Save(path, data); err != nil {
		return "", appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to store certificate")
	}
	return path, nil
}
