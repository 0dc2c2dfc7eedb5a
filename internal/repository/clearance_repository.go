package repository

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gestionequipos/activos-api/internal/models"
)

// ClearanceRepository persists issued and rejected clearances.
type ClearanceRepository struct {
	db *sqlx.DB
}

// NewClearanceRepository constructs a ClearanceRepository.
func NewClearanceRepository(db *sqlx.DB) *ClearanceRepository {
	return &ClearanceRepository{db: db}
}

// Insert stores a clearance outcome.
func (r *ClearanceRepository) Insert(ctx context.Context, clearance *models.Clearance) error {
	if clearance.ID == "" {
		clearance.ID = uuid.NewString()
	}
	if clearance.CreatedAt.IsZero() {
		clearance.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO clearances (id, employee_id, employee_label, site_id, status, pending_assets,
		document_path, issued_by, issued_by_name, created_at)
		VALUES (:id, :employee_id, :employee_label, :site_id, :status, :pending_assets,
		:document_path, :issued_by, :issued_by_name, :created_at)`
	if _, err := r.db.NamedExecContext(ctx, query, clearance); err != nil {
		return fmt.Errorf("insert clearance: %w", err)
	}
	return nil
}

// FindByID fetches a clearance by ID.
func (r *ClearanceRepository) FindByID(ctx context.Context, id string) (*models.Clearance, error) {
	const query = `SELECT id, employee_id, employee_label, site_id, status, pending_assets, document_path,
		issued_by, issued_by_name, created_at FROM clearances WHERE id = $1`
	var clearance models.Clearance
	if err := r.db.GetContext(ctx, &clearance, query, id); err != nil {
		return nil, err
	}
	return &clearance, nil
}

// List returns clearances matching filters along with total count.
func (r *ClearanceRepository) List(ctx context.Context, filter models.ClearanceFilter) ([]models.Clearance, int, error) {
	base := "FROM clearances WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.EmployeeID != nil {
		conditions = append(conditions, fmt.Sprintf("employee_id = $%d", len(args)+1))
		args = append(args, *filter.EmployeeID)
	}
	if filter.Status != nil {
		conditions = append(conditions, fmt.Sprintf("status = $%d", len(args)+1))
		args = append(args, string(*filter.Status))
	}
	if filter.SiteID != nil {
		conditions = append(conditions, fmt.Sprintf("site_id = $%d", len(args)+1))
		args = append(args, *filter.SiteID)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "DESC"
	}

	page := filter.Page
	if page < 1 {
		page = 1
	}
	size := filter.PageSize
	if size <= 0 || size > 100 {
		size = 20
	}
	offset := (page - 1) * size

	query := fmt.Sprintf(`SELECT id, employee_id, employee_label, site_id, status, pending_assets, document_path,
		issued_by, issued_by_name, created_at %s ORDER BY created_at %s LIMIT %d OFFSET %d`, base, order, size, offset)
	var clearances []models.Clearance
	if err := r.db.SelectContext(ctx, &clearances, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list clearances: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count clearances: %w", err)
	}

	return clearances, total, nil
}
