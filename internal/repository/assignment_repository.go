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

// AssignmentRepository persists the asset custody ledger.
type AssignmentRepository struct {
	db *sqlx.DB
}

// NewAssignmentRepository constructs an AssignmentRepository.
func NewAssignmentRepository(db *sqlx.DB) *AssignmentRepository {
	return &AssignmentRepository{db: db}
}

func (r *AssignmentRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// FindOpen returns the open custody period for the asset, or
// sql.ErrNoRows when none exists.
func (r *AssignmentRepository) FindOpen(ctx context.Context, exec sqlx.ExtContext, assetType models.AssetType, assetID string) (*models.AssignmentRecord, error) {
	const query = `SELECT id, asset_type, asset_id, asset_label, employee_id, employee_label, site_id,
		started_at, ended_at, end_reason, decommission, decommissioned_at, created_at
		FROM assignment_records WHERE asset_type = $1 AND asset_id = $2 AND ended_at IS NULL`
	var record models.AssignmentRecord
	if err := sqlx.GetContext(ctx, r.exec(exec), &record, query, string(assetType), assetID); err != nil {
		return nil, err
	}
	return &record, nil
}

// CloseOpen ends the asset's open custody period with the given reason.
// Returns the number of periods closed, which is at most one.
func (r *AssignmentRepository) CloseOpen(ctx context.Context, exec sqlx.ExtContext, assetType models.AssetType, assetID, reason string, endedAt time.Time) (int, error) {
	const query = `UPDATE assignment_records SET ended_at = $3, end_reason = $4
		WHERE asset_type = $1 AND asset_id = $2 AND ended_at IS NULL`
	res, err := r.exec(exec).ExecContext(ctx, query, string(assetType), assetID, endedAt, reason)
	if err != nil {
		return 0, fmt.Errorf("close assignment: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("close assignment rows affected: %w", err)
	}
	return int(affected), nil
}

// Insert opens a new custody period.
func (r *AssignmentRepository) Insert(ctx context.Context, exec sqlx.ExtContext, record *models.AssignmentRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.StartedAt.IsZero() {
		record.StartedAt = now
	}
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}

	const query = `INSERT INTO assignment_records (id, asset_type, asset_id, asset_label, employee_id, employee_label,
		site_id, started_at, ended_at, end_reason, decommission, decommissioned_at, created_at)
		VALUES (:id, :asset_type, :asset_id, :asset_label, :employee_id, :employee_label,
		:site_id, :started_at, :ended_at, :end_reason, :decommission, :decommissioned_at, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, record); err != nil {
		return fmt.Errorf("insert assignment: %w", err)
	}
	return nil
}

// CountOpenByEmployee counts custody periods the employee still holds,
// used by clearance checks.
func (r *AssignmentRepository) CountOpenByEmployee(ctx context.Context, employeeID string) (int, error) {
	const query = `SELECT COUNT(*) FROM assignment_records WHERE employee_id = $1 AND ended_at IS NULL`
	var count int
	if err := r.db.GetContext(ctx, &count, query, employeeID); err != nil {
		return 0, fmt.Errorf("count open assignments: %w", err)
	}
	return count, nil
}

// CountOpenPerAsset reports assets holding more than one open custody
// period, which the ledger forbids. Used by the consistency report.
func (r *AssignmentRepository) CountOpenPerAsset(ctx context.Context) (map[string]int, error) {
	const query = `SELECT asset_type || ':' || asset_id AS asset, COUNT(*) AS open_count
		FROM assignment_records WHERE ended_at IS NULL
		GROUP BY asset_type, asset_id HAVING COUNT(*) > 1`
	rows, err := r.db.QueryxContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("count open assignments per asset: %w", err)
	}
	defer rows.Close()

	result := make(map[string]int)
	for rows.Next() {
		var asset string
		var count int
		if err := rows.Scan(&asset, &count); err != nil {
			return nil, fmt.Errorf("scan open assignment count: %w", err)
		}
		result[asset] = count
	}
	return result, rows.Err()
}

// List returns custody periods matching filters along with total count.
func (r *AssignmentRepository) List(ctx context.Context, filter models.AssignmentFilter) ([]models.AssignmentRecord, int, error) {
	base := "FROM assignment_records WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.AssetType != nil {
		conditions = append(conditions, fmt.Sprintf("asset_type = $%d", len(args)+1))
		args = append(args, string(*filter.AssetType))
	}
	if filter.AssetID != nil {
		conditions = append(conditions, fmt.Sprintf("asset_id = $%d", len(args)+1))
		args = append(args, *filter.AssetID)
	}
	if filter.EmployeeID != nil {
		conditions = append(conditions, fmt.Sprintf("employee_id = $%d", len(args)+1))
		args = append(args, *filter.EmployeeID)
	}
	if filter.SiteID != nil {
		conditions = append(conditions, fmt.Sprintf("site_id = $%d", len(args)+1))
		args = append(args, *filter.SiteID)
	}
	if filter.OpenOnly {
		conditions = append(conditions, "ended_at IS NULL")
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "started_at"
	}
	allowedSorts := map[string]string{
		"started_at": "started_at",
		"ended_at":   "ended_at",
		"created_at": "created_at",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "started_at"
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

	query := fmt.Sprintf(`SELECT id, asset_type, asset_id, asset_label, employee_id, employee_label, site_id,
		started_at, ended_at, end_reason, decommission, decommissioned_at, created_at %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)
	var records []models.AssignmentRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list assignments: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count assignments: %w", err)
	}

	return records, total, nil
}
