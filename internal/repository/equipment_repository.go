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

const equipmentColumns = `e.id, e.serial, e.inventory_tag, e.name, e.brand, e.model, e.category, e.state,
	e.availability, e.site_id, s.name AS site_name, e.assigned_employee_id, emp.full_name AS assigned_employee,
	e.purchase_date, e.warranty_until, e.last_maintenance_at, e.next_maintenance_at, e.notes, e.active,
	e.created_at, e.updated_at`

const equipmentJoins = `FROM equipment e
	LEFT JOIN sites s ON s.id = e.site_id
	LEFT JOIN employees emp ON emp.id = e.assigned_employee_id`

// EquipmentRepository manages persistence for equipment.
type EquipmentRepository struct {
	db *sqlx.DB
}

// NewEquipmentRepository constructs an EquipmentRepository.
func NewEquipmentRepository(db *sqlx.DB) *EquipmentRepository {
	return &EquipmentRepository{db: db}
}

func (r *EquipmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns equipment matching filters along with total count.
func (r *EquipmentRepository) List(ctx context.Context, filter models.EquipmentFilter) ([]models.Equipment, int, error) {
	base := equipmentJoins + " WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.Active != nil {
		conditions = append(conditions, fmt.Sprintf("e.active = $%d", len(args)+1))
		args = append(args, *filter.Active)
	}
	if filter.SiteID != nil {
		conditions = append(conditions, fmt.Sprintf("e.site_id = $%d", len(args)+1))
		args = append(args, *filter.SiteID)
	}
	if filter.State != nil {
		conditions = append(conditions, fmt.Sprintf("e.state = $%d", len(args)+1))
		args = append(args, string(*filter.State))
	}
	if filter.Availability != nil {
		conditions = append(conditions, fmt.Sprintf("e.availability = $%d", len(args)+1))
		args = append(args, string(*filter.Availability))
	}
	if filter.Category != nil {
		conditions = append(conditions, fmt.Sprintf("e.category = $%d", len(args)+1))
		args = append(args, *filter.Category)
	}
	if filter.AssignedEmployeeID != nil {
		conditions = append(conditions, fmt.Sprintf("e.assigned_employee_id = $%d", len(args)+1))
		args = append(args, *filter.AssignedEmployeeID)
	}
	if filter.MaintenanceDueBy != nil {
		conditions = append(conditions, fmt.Sprintf("e.next_maintenance_at IS NOT NULL AND e.next_maintenance_at < $%d", len(args)+1))
		args = append(args, *filter.MaintenanceDueBy)
	}
	switch filter.MaintenanceStatus {
	case models.MaintenanceStatusOverdue:
		conditions = append(conditions, fmt.Sprintf("e.next_maintenance_at IS NOT NULL AND e.next_maintenance_at < $%d", len(args)+1))
		args = append(args, time.Now().UTC())
	case models.MaintenanceStatusUpcoming:
		now := time.Now().UTC()
		conditions = append(conditions, fmt.Sprintf("e.next_maintenance_at IS NOT NULL AND e.next_maintenance_at >= $%d AND e.next_maintenance_at <= $%d", len(args)+1, len(args)+2))
		args = append(args, now, now.AddDate(0, 0, 30))
	}
	if filter.Search != "" {
		search := "%" + strings.ToLower(filter.Search) + "%"
		conditions = append(conditions, fmt.Sprintf("(LOWER(e.name) LIKE $%d OR LOWER(e.serial) LIKE $%d OR LOWER(COALESCE(e.inventory_tag, '')) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
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
		"name":                "e.name",
		"serial":              "e.serial",
		"state":               "e.state",
		"availability":        "e.availability",
		"next_maintenance_at": "e.next_maintenance_at",
		"created_at":          "e.created_at",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "e.created_at"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", equipmentColumns, base, column, order, size, offset)
	var items []models.Equipment
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list equipment: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count equipment: %w", err)
	}

	return items, total, nil
}

// FindByID fetches a piece of equipment by ID.
func (r *EquipmentRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Equipment, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE e.id = $1", equipmentColumns, equipmentJoins)
	var item models.Equipment
	if err := sqlx.GetContext(ctx, r.exec(exec), &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// FindByIDForUpdate locks the equipment row for the remainder of the
// transaction. Used to serialize maintenance openings on the same
// device.
func (r *EquipmentRepository) FindByIDForUpdate(ctx context.Context, exec sqlx.ExtContext, id string) (*models.Equipment, error) {
	const query = `SELECT id, serial, inventory_tag, name, brand, model, category, state, availability,
		site_id, assigned_employee_id, purchase_date, warranty_until, last_maintenance_at, next_maintenance_at,
		notes, active, created_at, updated_at
		FROM equipment WHERE id = $1 FOR UPDATE`
	var item models.Equipment
	if err := sqlx.GetContext(ctx, r.exec(exec), &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// ExistsBySerial checks if another device uses the same serial.
func (r *EquipmentRepository) ExistsBySerial(ctx context.Context, serial string, excludeID string) (bool, error) {
	query := "SELECT 1 FROM equipment WHERE LOWER(serial) = LOWER($1)"
	args := []interface{}{serial}
	if excludeID != "" {
		query += " AND id <> $2"
		args = append(args, excludeID)
	}
	var exists int
	if err := r.db.GetContext(ctx, &exists, query+" LIMIT 1", args...); err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check equipment serial: %w", err)
	}
	return true, nil
}

// Create inserts a new equipment record.
func (r *EquipmentRepository) Create(ctx context.Context, exec sqlx.ExtContext, item *models.Equipment) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	const query = `INSERT INTO equipment (id, serial, inventory_tag, name, brand, model, category, state, availability,
		site_id, assigned_employee_id, purchase_date, warranty_until, last_maintenance_at, next_maintenance_at, notes,
		active, created_at, updated_at)
		VALUES (:id, :serial, :inventory_tag, :name, :brand, :model, :category, :state, :availability,
		:site_id, :assigned_employee_id, :purchase_date, :warranty_until, :last_maintenance_at, :next_maintenance_at, :notes,
		:active, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, item); err != nil {
		return fmt.Errorf("create equipment: %w", err)
	}
	return nil
}

// Update modifies an existing equipment record.
func (r *EquipmentRepository) Update(ctx context.Context, exec sqlx.ExtContext, item *models.Equipment) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE equipment SET serial = :serial, inventory_tag = :inventory_tag, name = :name, brand = :brand,
		model = :model, category = :category, state = :state, availability = :availability, site_id = :site_id,
		assigned_employee_id = :assigned_employee_id, purchase_date = :purchase_date, warranty_until = :warranty_until,
		last_maintenance_at = :last_maintenance_at, next_maintenance_at = :next_maintenance_at, notes = :notes,
		active = :active, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, item); err != nil {
		return fmt.Errorf("update equipment: %w", err)
	}
	return nil
}

// SetMaintenanceDates refreshes the denormalized maintenance cache on
// the equipment row after a maintenance finishes.
func (r *EquipmentRepository) SetMaintenanceDates(ctx context.Context, exec sqlx.ExtContext, id string, last, next *time.Time) error {
	const query = `UPDATE equipment SET last_maintenance_at = $2, next_maintenance_at = $3, updated_at = $4 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, last, next, time.Now().UTC()); err != nil {
		return fmt.Errorf("set equipment maintenance dates: %w", err)
	}
	return nil
}

// SetAvailability updates only the availability column.
func (r *EquipmentRepository) SetAvailability(ctx context.Context, exec sqlx.ExtContext, id string, availability models.EquipmentAvailability) error {
	const query = `UPDATE equipment SET availability = $2, updated_at = $3 WHERE id = $1`
	if _, err := r.exec(exec).ExecContext(ctx, query, id, string(availability), time.Now().UTC()); err != nil {
		return fmt.Errorf("set equipment availability: %w", err)
	}
	return nil
}
