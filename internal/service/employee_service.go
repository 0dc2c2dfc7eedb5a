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

type employeeRepository interface {
	List(ctx context.Context, filter models.EmployeeFilter) ([]models.Employee, int, error)
	FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Employee, error)
	ExistsByDocument(ctx context.Context, document, excludeID string) (bool, error)
	Create(ctx context.Context, exec sqlx.ExtContext, employee *models.Employee) error
	Update(ctx context.Context, exec sqlx.ExtContext, employee *models.Employee) error
	Delete(ctx context.Context, exec sqlx.ExtContext, id string) error
}

type openAssignmentCounter interface {
	CountOpenByEmployee(ctx context.Context, employeeID string) (int, error)
}

// CreateEmployeeRequest represents payload for registering an employee.
type CreateEmployeeRequest struct {
	Document   string  `json:"document" validate:"required,max=50"`
	FullName   string  `json:"full_name" validate:"required,max=200"`
	Email      *string `json:"email" validate:"omitempty,email"`
	Phone      *string `json:"phone" validate:"omitempty,max=50"`
	Position   *string `json:"position" validate:"omitempty,max=200"`
	Department *string `json:"department" validate:"omitempty,max=200"`
	UserID     *string `json:"user_id"`
}

// UpdateEmployeeRequest represents payload for editing an employee.
type UpdateEmployeeRequest struct {
	Document   *string `json:"document" validate:"omitempty,max=50"`
	FullName   *string `json:"full_name" validate:"omitempty,max=200"`
	Email      *string `json:"email" validate:"omitempty,email"`
	Phone      *string `json:"phone" validate:"omitempty,max=50"`
	Position   *string `json:"position" validate:"omitempty,max=200"`
	Department *string `json:"department" validate:"omitempty,max=200"`
	UserID     *string `json:"user_id"`
	Active     *bool   `json:"active"`
}

// EmployeeService orchestrates employee records. An employee's site is
// whatever their linked user account says, so moving the user moves the
// employee's whole scope.
type EmployeeService struct {
	tx          txProvider
	repo        employeeRepository
	assignments openAssignmentCounter
	changes     changeWriter
	validator   *validator.Validate
	logger      *zap.Logger
}

// NewEmployeeService constructs an EmployeeService.
func NewEmployeeService(tx txProvider, repo employeeRepository, assignments openAssignmentCounter, changes changeWriter, validate *validator.Validate, logger *zap.Logger) *EmployeeService {
	if validate == nil {
		validate = validator.New()
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &EmployeeService{tx: tx, repo: repo, assignments: assignments, changes: changes, validator: validate, logger: logger}
}

// List returns employees within the actor's scope.
func (s *EmployeeService) List(ctx context.Context, actor authz.Actor, filter models.EmployeeFilter) ([]models.Employee, *models.Pagination, error) {
	scope := authz.ScopeFor(actor)
	if scope.Empty() {
		return []models.Employee{}, &models.Pagination{Page: 1, PageSize: filter.PageSize, TotalCount: 0}, nil
	}
	if !scope.All {
		filter.SiteID = scope.SiteID
	}

	employees, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to list employees")
	}
	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 {
		size = 20
	}
	return employees, &models.Pagination{Page: page, PageSize: size, TotalCount: total}, nil
}

// Get returns an employee by id.
func (s *EmployeeService) Get(ctx context.Context, actor authz.Actor, id string) (*models.Employee, error) {
	employee, err := s.repo.FindByID(ctx, nil, id)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, appErrors.Clone(appErrors.ErrNotFound, "employee not found")
		}
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load employee")
	}
	if !actor.CanAccessSite(employee.SiteID) {
		return nil, appErrors.Clone(appErrors.ErrForbidden, "employee belongs to another site")
	}
	return employee, nil
}

// Create registers an employee.
func (s *EmployeeService) Create(ctx context.Context, actor authz.Actor, req CreateEmployeeRequest) (employee *models.Employee, err error) {
	if err = s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid employee payload")
	}

	exists, err := s.repo.ExistsByDocument(ctx, req.Document, "")
	if err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check document")
	}
	if exists {
		return nil, appErrors.Clone(appErrors.ErrConflict, "document already registered")
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

	employee = &models.Employee{
		Document:   req.Document,
		FullName:   req.FullName,
		Email:      req.Email,
		Phone:      req.Phone,
		Position:   req.Position,
		Department: req.Department,
		UserID:     req.UserID,
		Active:     true,
	}
	if err = s.repo.Create(ctx, tx, employee); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to create employee")
		return nil, err
	}

	created, err := s.repo.FindByID(ctx, tx, employee.ID)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload employee")
		return nil, err
	}
	if !actor.CanAccessSite(created.SiteID) && created.SiteID != nil {
		err = appErrors.Clone(appErrors.ErrForbidden, "cannot create an employee in another site")
		return nil, err
	}

	if err = s.changes.InsertMany(ctx, tx, audit.Creation(audit.EmployeeSnapshot(created), actorID(actor))); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write change records")
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit employee creation")
		return nil, err
	}
	return created, nil
}

// Update edits an employee and audits the field changes.
func (s *EmployeeService) Update(ctx context.Context, actor authz.Actor, id string, req UpdateEmployeeRequest) (employee *models.Employee, err error) {
	if err = s.validator.Struct(req); err != nil {
		return nil, appErrors.Wrap(err, appErrors.ErrValidation.Code, appErrors.ErrValidation.Status, "invalid employee payload")
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
			err = appErrors.Clone(appErrors.ErrNotFound, "employee not found")
			return nil, err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to load employee")
		return nil, err
	}
	if !actor.CanAccessSite(current.SiteID) {
		err = appErrors.Clone(appErrors.ErrForbidden, "employee belongs to another site")
		return nil, err
	}

	before := audit.EmployeeSnapshot(current)

	if req.Document != nil && *req.Document != current.Document {
		var exists bool
		exists, err = s.repo.ExistsByDocument(ctx, *req.Document, current.ID)
		if err != nil {
			err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check document")
			return nil, err
		}
		if exists {
			err = appErrors.Clone(appErrors.ErrConflict, "document already registered")
			return nil, err
		}
		current.Document = *req.Document
	}
	if req.FullName != nil {
		current.FullName = *req.FullName
	}
	if req.Email != nil {
		current.Email = req.Email
	}
	if req.Phone != nil {
		current.Phone = req.Phone
	}
	if req.Position != nil {
		current.Position = req.Position
	}
	if req.Department != nil {
		current.Department = req.Department
	}
	if req.UserID != nil {
		current.UserID = req.UserID
	}
	if req.Active != nil {
		current.Active = *req.Active
	}

	if err = s.repo.Update(ctx, tx, current); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to update employee")
		return nil, err
	}

	updated, err := s.repo.FindByID(ctx, tx, id)
	if err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to reload employee")
		return nil, err
	}

	if err = s.changes.InsertMany(ctx, tx, audit.Diff(before, audit.EmployeeSnapshot(updated), actorID(actor))); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write change records")
		return nil, err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit employee update")
		return nil, err
	}
	return updated, nil
}

// Delete removes an employee who holds no assets. The change ledger
// keeps one DELETED record telling who disappeared.
func (s *EmployeeService) Delete(ctx context.Context, actor authz.Actor, id string) (err error) {
	current, err := s.Get(ctx, actor, id)
	if err != nil {
		return err
	}

	held, err := s.assignments.CountOpenByEmployee(ctx, id)
	if err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to count held assets")
	}
	if held > 0 {
		return appErrors.Clone(appErrors.ErrConflict, "employee still holds assets")
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

	snap := audit.EmployeeSnapshot(current)
	if err = s.repo.Delete(ctx, tx, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = appErrors.Clone(appErrors.ErrNotFound, "employee not found")
			return err
		}
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to delete employee")
		return err
	}

	notice := fmt.Sprintf("El empleado '%s' (ID: %s) fue eliminado.", current.FullName, current.ID)
	if err = s.changes.InsertMany(ctx, tx, []models.ChangeRecord{audit.Deletion(snap, notice, actorID(actor))}); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to write change records")
		return err
	}

	if err = tx.Commit(); err != nil {
		err = appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to commit employee deletion")
		return err
	}
	return nil
}
