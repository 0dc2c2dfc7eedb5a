package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/jmoiron/sqlx"

	"github.com/gestionequipos/activos-api/internal/models"
)

// peripheralColumns derives the peripheral's site from its linked
// equipment, matching how scope checks resolve it.
const peripheralColumns = `p.id, p.serial, p.name, p.type, p.brand, p.state, p.equipment_id,
	CASE WHEN e.id IS NULL THEN NULL ELSE e.name || ' (' || e.serial || ')' END AS equipment_label,
	p.assigned_employee_id, emp.full_name AS assigned_employee, e.site_id AS site_id, p.notes,
	p.created_at, p.updated_at`

const peripheralJoins = `FROM peripherals p
	LEFT JOIN equipment e ON e.id = p.equipment_id
	LEFT JOIN employees emp ON emp.id = p.assigned_employee_id`

// PeripheralRepository manages persistence for peripherals.
type PeripheralRepository struct {
	db *sqlx.DB
}

// NewPeripheralRepository constructs a PeripheralRepository.
func NewPeripheralRepository(db *sqlx.DB) *PeripheralRepository {
	return &PeripheralRepository{db: db}
}

func (r *PeripheralRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns peripherals matching filters along with total count.
func (r *PeripheralRepository) List(ctx context.Context, filter models.PeripheralFilter) ([]models.Peripheral, int, error) {
	base := peripheralJoins + " WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Type != nil {
		conditions = append(conditions, fmt.Sprintf("p.type = $%d", len(args)+1))
		args = append(args, string(*filter.Type))
	}
	if filter.EquipmentID != nil {
		conditions = append(conditions, fmt.Sprintf("p.equipment_id = $%d", len(args)+1))
		args = append(args, *filter.EquipmentID)
	}
	if filter.AssignedEmployeeID != nil {
		conditions = append(conditions, fmt.Sprintf("p.assigned_employee_id = $%d", len(args)+1))
		args = append(args, *filter.AssignedEmployeeID)
	}
	if filter.SiteID != nil {
		conditions = append(conditions, fmt.Sprintf("e.site_id = $%d", len(args)+1))
		args = append(args, *filter.SiteID)
	}
	if filter.Search != "" {
		search := "%" + strings.ToLower(filter.Search) + "%"
		conditions = append(conditions, fmt.Sprintf("(LOWER(p.name) LIKE $%d OR LOWER(COALESCE(p.serial, '')) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, search)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	allowedSorts := map[string]string{
		"name":       "p.name",
		"type":       "p.type",
		"state":      "p.state",
		"created_at": "p.created_at",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "p.created_at"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", peripheralColumns, base, column, order, size, offset)
	var items []models.Peripheral
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list peripherals: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count peripherals: %w", err)
	}

	return items, total, nil
}

// FindByID fetches a peripheral by ID.
func (r *PeripheralRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Peripheral, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE p.id = $1", peripheralColumns, peripheralJoins)
	var item models.Peripheral
	if err := sqlx.GetContext(ctx, r.exec(exec), &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// Create inserts a new peripheral record.
func (r *PeripheralRepository) Create(ctx context.Context, exec sqlx.ExtContext, item *models.Peripheral) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	const query = `INSERT INTO peripherals (id, serial, name, type, brand, state, equipment_id, assigned_employee_id, notes, created_at, updated_at)
		VALUES (:id, :serial, :name, :type, :brand, :state, :equipment_id, :assigned_employee_id, :notes, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, item); err != nil {
		return fmt.Errorf("create peripheral: %w", err)
	}
	return nil
}

// Update modifies an existing peripheral record.
func (r *PeripheralRepository) Update(ctx context.Context, exec sqlx.ExtContext, item *models.Peripheral) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE peripherals SET serial = :serial, name = :name, type = :type, brand = :brand, state = :state,
		equipment_id = :equipment_id, assigned_employee_id = :assigned_employee_id, notes = :notes, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, item); err != nil {
		return fmt.Errorf("update peripheral: %w", err)
	}
	return nil
}

// Delete removes a peripheral row. History survives in the change
// ledger and the assignment ledger.
func (r *PeripheralRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	res, err := r.exec(exec).ExecContext(ctx, `DELETE FROM peripherals WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete peripheral: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete peripheral rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// CountHeldByEmployee counts peripherals currently assigned to the
// employee, used by clearance checks.
func (r *PeripheralRepository) CountHeldByEmployee(ctx context.Context, employeeID string) (int, error) {
	const query = `SELECT COUNT(*) FROM peripherals WHERE assigned_employee_id = $1`
	var count int
	if err := r.db.GetContext(ctx, &count, query, employeeID); err != nil {
		return 0, fmt.Errorf("count peripherals held: %w", err)
	}
	return count, nil
}
