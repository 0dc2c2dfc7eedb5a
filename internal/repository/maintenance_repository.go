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

const maintenanceColumns = `m.id, m.equipment_id, e.name || ' (' || e.serial || ')' AS equipment_label,
	e.serial AS equipment_serial, e.site_id AS site_id, m.kind, m.state, m.description, m.technician,
	m.scheduled_start, m.scheduled_end, m.actual_completion, m.cost, m.notes, m.created_by,
	m.created_at, m.updated_at`

const maintenanceJoins = `FROM maintenance_records m
	JOIN equipment e ON e.id = m.equipment_id`

// MaintenanceRepository manages persistence for maintenance records,
// their evidence files and their action log.
type MaintenanceRepository struct {
	db *sqlx.DB
}

// NewMaintenanceRepository constructs a MaintenanceRepository.
func NewMaintenanceRepository(db *sqlx.DB) *MaintenanceRepository {
	return &MaintenanceRepository{db: db}
}

func (r *MaintenanceRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// List returns maintenance records matching filters along with total
// count.
func (r *MaintenanceRepository) List(ctx context.Context, filter models.MaintenanceFilter) ([]models.MaintenanceRecord, int, error) {
	base := maintenanceJoins + " WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.EquipmentID != nil {
		conditions = append(conditions, fmt.Sprintf("m.equipment_id = $%d", len(args)+1))
		args = append(args, *filter.EquipmentID)
	}
	if filter.SiteID != nil {
		conditions = append(conditions, fmt.Sprintf("e.site_id = $%d", len(args)+1))
		args = append(args, *filter.SiteID)
	}
	if filter.State != nil {
		conditions = append(conditions, fmt.Sprintf("m.state = $%d", len(args)+1))
		args = append(args, string(*filter.State))
	}
	if filter.Kind != nil {
		conditions = append(conditions, fmt.Sprintf("m.kind = $%d", len(args)+1))
		args = append(args, string(*filter.Kind))
	}
	if filter.FromDate != nil {
		conditions = append(conditions, fmt.Sprintf("m.scheduled_start >= $%d", len(args)+1))
		args = append(args, *filter.FromDate)
	}
	if filter.ToDate != nil {
		conditions = append(conditions, fmt.Sprintf("m.scheduled_start <= $%d", len(args)+1))
		args = append(args, *filter.ToDate)
	}
	if filter.Search != "" {
		search := "%" + strings.ToLower(filter.Search) + "%"
		conditions = append(conditions, fmt.Sprintf("(LOWER(m.description) LIKE $%d OR LOWER(COALESCE(m.technician, '')) LIKE $%d OR LOWER(e.serial) LIKE $%d)", len(args)+1, len(args)+1, len(args)+1))
		args = append(args, search)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "scheduled_start"
	}
	allowedSorts := map[string]string{
		"scheduled_start": "m.scheduled_start",
		"scheduled_end":   "m.scheduled_end",
		"state":           "m.state",
		"kind":            "m.kind",
		"created_at":      "m.created_at",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "m.scheduled_start"
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

	query := fmt.Sprintf("SELECT %s %s ORDER BY %s %s LIMIT %d OFFSET %d", maintenanceColumns, base, column, order, size, offset)
	var records []models.MaintenanceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list maintenance records: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count maintenance records: %w", err)
	}

	return records, total, nil
}

// FindByID fetches a maintenance record by ID.
func (r *MaintenanceRepository) FindByID(ctx context.Context, exec sqlx.ExtContext, id string) (*models.MaintenanceRecord, error) {
	query := fmt.Sprintf("SELECT %s %s WHERE m.id = $1", maintenanceColumns, maintenanceJoins)
	var record models.MaintenanceRecord
	if err := sqlx.GetContext(ctx, r.exec(exec), &record, query, id); err != nil {
		return nil, err
	}
	return &record, nil
}

// HasOpenForEquipment reports whether the equipment already has a
// pending or in-progress maintenance. Callers must hold the equipment
// row lock so two concurrent openings cannot both pass this check.
func (r *MaintenanceRepository) HasOpenForEquipment(ctx context.Context, exec sqlx.ExtContext, equipmentID string) (bool, error) {
	const query = `SELECT 1 FROM maintenance_records WHERE equipment_id = $1 AND state IN ($2, $3) LIMIT 1`
	var exists int
	err := sqlx.GetContext(ctx, r.exec(exec), &exists, query, equipmentID,
		string(models.MaintenancePending), string(models.MaintenanceInProgress))
	if err != nil {
		if err == sql.ErrNoRows {
			return false, nil
		}
		return false, fmt.Errorf("check open maintenance: %w", err)
	}
	return true, nil
}

// Create inserts a new maintenance record.
func (r *MaintenanceRepository) Create(ctx context.Context, exec sqlx.ExtContext, record *models.MaintenanceRecord) error {
	if record.ID == "" {
		record.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	if record.CreatedAt.IsZero() {
		record.CreatedAt = now
	}
	record.UpdatedAt = now

	const query = `INSERT INTO maintenance_records (id, equipment_id, kind, state, description, technician,
		scheduled_start, scheduled_end, actual_completion, cost, notes, created_by, created_at, updated_at)
		VALUES (:id, :equipment_id, :kind, :state, :description, :technician,
		:scheduled_start, :scheduled_end, :actual_completion, :cost, :notes, :created_by, :created_at, :updated_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, record); err != nil {
		return fmt.Errorf("create maintenance record: %w", err)
	}
	return nil
}

// Update modifies an existing maintenance record.
func (r *MaintenanceRepository) Update(ctx context.Context, exec sqlx.ExtContext, record *models.MaintenanceRecord) error {
	record.UpdatedAt = time.Now().UTC()
	const query = `UPDATE maintenance_records SET kind = :kind, state = :state, description = :description,
		technician = :technician, scheduled_start = :scheduled_start, scheduled_end = :scheduled_end,
		actual_completion = :actual_completion, cost = :cost, notes = :notes, updated_at = :updated_at WHERE id = :id`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, record); err != nil {
		return fmt.Errorf("update maintenance record: %w", err)
	}
	return nil
}

// Upcoming lists open maintenance whose planned completion falls inside
// the window, optionally restricted to a site.
func (r *MaintenanceRepository) Upcoming(ctx context.Context, siteID *string, until time.Time, limit int) ([]models.MaintenanceRecord, error) {
	base := maintenanceJoins + ` WHERE m.state IN ($1, $2) AND m.scheduled_end IS NOT NULL AND m.scheduled_end <= $3`
	args := []interface{}{string(models.MaintenancePending), string(models.MaintenanceInProgress), until}
	if siteID != nil {
		base += " AND e.site_id = $4"
		args = append(args, *siteID)
	}
	if limit <= 0 || limit > 100 {
		limit = 20
	}

	query := fmt.Sprintf("SELECT %s %s ORDER BY m.scheduled_end ASC LIMIT %d", maintenanceColumns, base, limit)
	var records []models.MaintenanceRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, fmt.Errorf("list upcoming maintenance: %w", err)
	}
	return records, nil
}

// ListInconsistent returns open records whose dates contradict their
// state, for the consistency report.
func (r *MaintenanceRepository) ListInconsistent(ctx context.Context) ([]models.MaintenanceRecord, error) {
	query := fmt.Sprintf(`SELECT %s %s
		WHERE (m.state IN ($1, $2) AND m.actual_completion IS NOT NULL)
		   OR (m.state = $3 AND m.actual_completion IS NULL)`, maintenanceColumns, maintenanceJoins)
	var records []models.MaintenanceRecord
	err := r.db.SelectContext(ctx, &records, query,
		string(models.MaintenancePending), string(models.MaintenanceInProgress), string(models.MaintenanceFinished))
	if err != nil {
		return nil, fmt.Errorf("list inconsistent maintenance: %w", err)
	}
	return records, nil
}

// ListDateDivergences returns equipment whose denormalized last
// maintenance date disagrees with the newest finished record in the
// ledger, for the consistency report.
func (r *MaintenanceRepository) ListDateDivergences(ctx context.Context) ([]models.MaintenanceDateDivergence, error) {
	const query = `SELECT e.id AS equipment_id,
			e.name || ' (' || e.serial || ')' AS equipment_label,
			e.last_maintenance_at, e.next_maintenance_at,
			led.completion AS ledger_completion
		FROM equipment e
		LEFT JOIN LATERAL (
			SELECT MAX(m.actual_completion) AS completion
			FROM maintenance_records m
			WHERE m.equipment_id = e.id AND m.state = $1
		) led ON TRUE
		WHERE e.last_maintenance_at IS DISTINCT FROM led.completion`
	var divergences []models.MaintenanceDateDivergence
	if err := r.db.SelectContext(ctx, &divergences, query, string(models.MaintenanceFinished)); err != nil {
		return nil, fmt.Errorf("list maintenance date divergences: %w", err)
	}
	return divergences, nil
}

// InsertEvidence stores an evidence file reference.
func (r *MaintenanceRepository) InsertEvidence(ctx context.Context, exec sqlx.ExtContext, evidence *models.MaintenanceEvidence) error {
	if evidence.ID == "" {
		evidence.ID = uuid.NewString()
	}
	if evidence.CreatedAt.IsZero() {
		evidence.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO maintenance_evidence (id, maintenance_id, file_name, storage_path, content_type, size_bytes, uploaded_by, created_at)
		VALUES (:id, :maintenance_id, :file_name, :storage_path, :content_type, :size_bytes, :uploaded_by, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, evidence); err != nil {
		return fmt.Errorf("insert maintenance evidence: %w", err)
	}
	return nil
}

// FindEvidence fetches one evidence row.
func (r *MaintenanceRepository) FindEvidence(ctx context.Context, id string) (*models.MaintenanceEvidence, error) {
	const query = `SELECT id, maintenance_id, file_name, storage_path, content_type, size_bytes, uploaded_by, created_at
		FROM maintenance_evidence WHERE id = $1`
	var evidence models.MaintenanceEvidence
	if err := r.db.GetContext(ctx, &evidence, query, id); err != nil {
		return nil, err
	}
	return &evidence, nil
}

// ListEvidence returns all evidence attached to a maintenance record.
func (r *MaintenanceRepository) ListEvidence(ctx context.Context, maintenanceID string) ([]models.MaintenanceEvidence, error) {
	const query = `SELECT id, maintenance_id, file_name, storage_path, content_type, size_bytes, uploaded_by, created_at
		FROM maintenance_evidence WHERE maintenance_id = $1 ORDER BY created_at ASC`
	var evidence []models.MaintenanceEvidence
	if err := r.db.SelectContext(ctx, &evidence, query, maintenanceID); err != nil {
		return nil, fmt.Errorf("list maintenance evidence: %w", err)
	}
	return evidence, nil
}

// CountEvidence counts evidence files attached to a maintenance record.
func (r *MaintenanceRepository) CountEvidence(ctx context.Context, exec sqlx.ExtContext, maintenanceID string) (int, error) {
	const query = `SELECT COUNT(*) FROM maintenance_evidence WHERE maintenance_id = $1`
	var count int
	if err := sqlx.GetContext(ctx, r.exec(exec), &count, query, maintenanceID); err != nil {
		return 0, fmt.Errorf("count maintenance evidence: %w", err)
	}
	return count, nil
}

// DeleteEvidence removes one evidence row.
func (r *MaintenanceRepository) DeleteEvidence(ctx context.Context, id string) error {
	res, err := r.db.ExecContext(ctx, `DELETE FROM maintenance_evidence WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete maintenance evidence: %w", err)
	}
	affected, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("delete maintenance evidence rows affected: %w", err)
	}
	if affected == 0 {
		return sql.ErrNoRows
	}
	return nil
}

// InsertAction appends a lifecycle action to the record's log.
func (r *MaintenanceRepository) InsertAction(ctx context.Context, exec sqlx.ExtContext, action *models.MaintenanceActionLog) error {
	if action.ID == "" {
		action.ID = uuid.NewString()
	}
	if action.CreatedAt.IsZero() {
		action.CreatedAt = time.Now().UTC()
	}

	const query = `INSERT INTO maintenance_actions (id, maintenance_id, action, detail, actor_id, actor_name, created_at)
		VALUES (:id, :maintenance_id, :action, :detail, :actor_id, :actor_name, :created_at)`
	if _, err := sqlx.NamedExecContext(ctx, r.exec(exec), query, action); err != nil {
		return fmt.Errorf("insert maintenance action: %w", err)
	}
	return nil
}

// ListActions returns the action log of a maintenance record, oldest
// first.
func (r *MaintenanceRepository) ListActions(ctx context.Context, maintenanceID string) ([]models.MaintenanceActionLog, error) {
	const query = `SELECT id, maintenance_id, action, detail, actor_id, actor_name, created_at
		FROM maintenance_actions WHERE maintenance_id = $1 ORDER BY created_at ASC`
	var actions []models.MaintenanceActionLog
	if err := r.db.SelectContext(ctx, &actions, query, maintenanceID); err != nil {
		return nil, fmt.Errorf("list maintenance actions: %w", err)
	}
	return actions, nil
}
