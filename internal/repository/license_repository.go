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

const licenseColumns = `l.id, l.software, l.license_key, l.vendor, l.seats, l.equipment_id,
	CASE WHEN e.id IS NULL THEN NULL ELSE e.name || ' (' || e.serial || ')' END AS equipment_label,
	e.site_id AS site_id, l.purchased_at, l.expires_at, l.notes, l.created_at, l.updated_at`

const licenseJoins = `FROM licenses l
	LEFT JOIN equipment e ON e.id = l.equipment_id`

// LicenseRepository manages persistence for software licenses.
type LicenseRepository struct {
	db *sqlx.DB
}

// NewLicenseRepository constructs a LicenseRepository.
func NewLicenseRepository(db *sqlx.DB) *LicenseRepository {
	return &LicenseRepository{db: db}
}

func (r *LicenseRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns licenses matching filters along with total count.
func (r *LicenseRepository) List(ctx context.Context, filter models.LicenseFilter) ([]models.License, int, error) {
	base := licenseJoins + " WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.EquipmentID != nil {
		conditions = append(conditions, fmt.Sprintf("l.equipment_id = $%d", len(args)+1))
		args = append(args, *filter.EquipmentID)
	}
	if filter.SiteID != nil {
		conditions = append(conditions, fmt.Sprintf("e.site_id = $%d", len(args)+1))
		args = append(args, *filter.SiteID)
	}
	if filter.ExpiredOnly {
		conditions = append(conditions, fmt.Sprintf("l.expires_at IS NOT NULL AND l.expires_at < $%d", len(args)+1))
		args = append(args, time.Now().UTC())
	}
	if filter.Search != "" {
		search := "%" + strings.ToLower(filter.Search) + "%"
		conditions = append(conditions, fmt.Sprintf("(LOWER(l.software) LIKE $%d OR LOWER(COALESCE(l.vendor, '')) LIKE $%d)", len(args)+1, len(args)+1))
		args = append(args, search)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "software"
	}
	allowedSorts := map[string]string{
		"software":   "l.software",
		"vendor":     "l.vendor",
		"expires_at": "l.expires_at",
		"created_at": "l.created_at",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "l.software"
	}

	order := strings.ToUpper(filter.SortOrder)
	if order != "ASC" && order != "DESC" {
		order = "ASC"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", licenseColumns, base, column, order, size, offset)
	var items []models.License
	if err := r.db.SelectContext(ctx, &items, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list licenses: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count licenses: %w", err)
	}

	return items, total, nil
}

// FindByID fetches a license by ID.
func (r *LicenseRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.License, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE l.id = $1", licenseColumns, licenseJoins)
	var item models.License
	if err := sqlx.GetContext(ctx, r.exec(exec), &item, query, id); err != nil {
		return nil, err
	}
	return &item, nil
}

// Create inserts a new license record.
func (r *LicenseRepository) Create(ctx context.Context, exec sqlx.ExtContext, item *models.License) error {
	if item.ID == "" {
		item.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if item.CreatedAt.IsZero() {
		item.CreatedAt = now
	}
	item.UpdatedAt = now

	const query = `INSERT INTO licenses (id, software, license_key, vendor, seats, equipment_id, purchased_at, expires_at, notes, created_at, updated_at)
		VALUES (:id, :software, :license_key, :vendor, :seats, :equipment_id, :purchased_at, :expires_at, :notes, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, item); err != nil {
		return fmt.Errorf("create license: %w", err)
	}
	return nil
}

// Update modifies an existing license record.
func (r *LicenseRepository) Update(ctx context.Context, exec sqlx.ExtContext, item *models.License) error {
	item.UpdatedAt = time.Now().UTC()
	const query = `UPDATE licenses SET software = :software, license_key = :license_key, vendor = :vendor, seats = :seats,
		equipment_id = :equipment_id, purchased_at = :purchased_at, expires_at = :expires_at, notes = :notes, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, item); err != nil {
		return fmt.Errorf("update license: %w", err)
	}
	return nil
}

// Delete removes a license row.
func (r *LicenseRepository) Delete(ctx context.Context, exec sqlx.ExtContext, id string) error {
	res, err := r.exec(exec).ExecContext(ctx, `DELETE FROM licenses WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete license: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete license rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}
