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

// AuditRepository persists the field-level change ledger.
type AuditRepository struct {
	db *sqlx.DB
}

// NewAuditRepository constructs an AuditRepository.
func NewAuditRepository(db *sqlx.DB) *AuditRepository {
	return &AuditRepository{db: db}
}

func (r *AuditRepository) exec(exec sqlx.ExtContext) sqlx.ExtContext {
	if exec != nil {
		return exec
	}
	return r.db
}

// InsertMany writes a batch of change records, normally inside the same
// transaction as the mutation they describe.
func (r *AuditRepository) InsertMany(ctx context.Context, exec sqlx.ExtContext, records []models.ChangeRecord) error {
	if len(records) == 0 {
		return nil
	}
	target := r.exec(exec)
	now := time.Now().UTC()

	const query = `INSERT INTO change_records (id, entity_type, entity_id, entity_label, site_id, action,
		field_name, field_label, old_value, new_value, actor_id, actor_name, created_at)
		VALUES (:id, :entity_type, :entity_id, :entity_label, :site_id, :action,
		:field_name, :field_label, :old_value, :new_value, :actor_id, :actor_name, :created_at)`
	for i := range records {
		if records[i].ID == "" {
			records[i].ID = uuid.NewString()
		}
		if records[i].CreatedAt.IsZero() {
			records[i].CreatedAt = now
		}
		if _, err := sqlx.NamedExecContext(ctx, target, query, &records[i]); err != nil {
			return fmt.Errorf("insert change record: %w", err)
		}
	}
	return nil
}

// List returns change records matching filters along with total count,
// newest first by default.
func (r *AuditRepository) List(ctx context.Context, filter models.ChangeRecordFilter) ([]models.ChangeRecord, int, error) {
	base := "FROM change_records WHERE 1=1"
	var conditions []string
	var args []interface{}

	if filter.EntityType != nil {
		conditions = append(conditions, fmt.Sprintf("entity_type = $%d", len(args)+1))
		args = append(args, *filter.EntityType)
	}
	if filter.EntityID != nil {
		conditions = append(conditions, fmt.Sprintf("entity_id = $%d", len(args)+1))
		args = append(args, *filter.EntityID)
	}
	if filter.Action != nil {
		conditions = append(conditions, fmt.Sprintf("action = $%d", len(args)+1))
		args = append(args, string(*filter.Action))
	}
	if filter.ActorID != nil {
		conditions = append(conditions, fmt.Sprintf("actor_id = $%d", len(args)+1))
		args = append(args, *filter.ActorID)
	}
	if filter.SiteID != nil {
		conditions = append(conditions, fmt.Sprintf("site_id = $%d", len(args)+1))
		args = append(args, *filter.SiteID)
	}
	if filter.FromDate != nil {
		conditions = append(conditions, fmt.Sprintf("created_at >= $%d", len(args)+1))
		args = append(args, *filter.FromDate)
	}
	if filter.ToDate != nil {
		conditions = append(conditions, fmt.Sprintf("created_at <= $%d", len(args)+1))
		args = append(args, *filter.ToDate)
	}

	if len(conditions) > 0 {
		base += " AND " + strings.Join(conditions, " AND ")
	}

	sortBy := filter.SortBy
	if sortBy == "" {
		sortBy = "created_at"
	}
	allowedSorts := map[string]string{
		"created_at":  "created_at",
		"entity_type": "entity_type",
		"action":      "action",
	}
	column, ok := allowedSorts[sortBy]
	if !ok {
		column = "created_at"
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

	query := fmt.Sprintf(`SELECT id, entity_type, entity_id, entity_label, site_id, action, field_name, field_label,
		old_value, new_value, actor_id, actor_name, created_at %s ORDER BY %s %s LIMIT %d OFFSET %d`, base, column, order, size, offset)
	var records []models.ChangeRecord
	if err := r.db.SelectContext(ctx, &records, query, args...); err != nil {
		return nil, 0, fmt.Errorf("list change records: %w", err)
	}

	countQuery := fmt.Sprintf("SELECT COUNT(*) %s", base)
	var total int
	if err := r.db.GetContext(ctx, &total, countQuery, args...); err != nil {
		return nil, 0, fmt.Errorf("count change records: %w", err)
	}

	return records, total, nil
}
