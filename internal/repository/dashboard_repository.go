package repository

import (
	"context"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/gestionequipos/activos-api/internal/models"
)

// DashboardRepository computes the aggregate counters for the landing
// page. Every query takes an optional site to honor scope.
type DashboardRepository struct {
	db *sqlx.DB
}

// NewDashboardRepository constructs a DashboardRepository.
func NewDashboardRepository(db *sqlx.DB) *DashboardRepository {
	return &DashboardRepository{db: db}
}

// Summary gathers all dashboard counters in one pass.
func (r *DashboardRepository) Summary(ctx context.Context, siteID *string, now time.Time) (*models.DashboardSummary, error) {
	summary := &models.DashboardSummary{GeneratedAt: now}

	if err := r.equipmentCounters(ctx, siteID, &summary.Equipment); err != nil {
		return nil, err
	}

	var err error
	if summary.Peripherals, err = r.scopedCount(ctx, siteID,
		`SELECT COUNT(*) FROM peripherals p LEFT JOIN equipment e ON e.id = p.equipment_id WHERE 1=1`, "e.site_id"); err != nil {
		return nil, fmt.Errorf("count peripherals: %w", err)
	}
	if summary.Employees, err = r.scopedCount(ctx, siteID,
		`SELECT COUNT(*) FROM employees emp LEFT JOIN users u ON u.id = emp.user_id WHERE emp.active = TRUE`, "u.site_id"); err != nil {
		return nil, fmt.Errorf("count employees: %w", err)
	}
	if summary.Licenses, err = r.scopedCount(ctx, siteID,
		`SELECT COUNT(*) FROM licenses l LEFT JOIN equipment e ON e.id = l.equipment_id WHERE 1=1`, "e.site_id"); err != nil {
		return nil, fmt.Errorf("count licenses: %w", err)
	}

	if summary.LicensesExpiring, err = r.countLicensesExpiring(ctx, siteID, now); err != nil {
		return nil, err
	}
	if summary.MaintenanceOpen, summary.MaintenanceOverdue, err = r.maintenanceCounters(ctx, siteID, now); err != nil {
		return nil, err
	}
	if summary.MaintenanceDue, err = r.countMaintenanceDue(ctx, siteID, now); err != nil {
		return nil, err
	}

	return summary, nil
}

func (r *DashboardRepository) equipmentCounters(ctx context.Context, siteID *string, counters *models.EquipmentCounters) error {
	query := `SELECT availability, COUNT(*) FROM equipment WHERE 1=1`
	var args []interface{}
	if siteID != nil {
		query += " AND site_id = $1"
		args = append(args, *siteID)
	}
	query += " GROUP BY availability"

	rows, err := r.db.QueryxContext(ctx, query, args...)
	if err != nil {
		return fmt.Errorf("count equipment by availability: %w", err)
	}
	defer rows.Close()

	for rows.Next() {
		var availability string
		var count int
		if err := rows.Scan(&availability, &count); err != nil {
			return fmt.Errorf("scan equipment counter: %w", err)
		}
		counters.Total += count
		switch models.EquipmentAvailability(availability) {
		case models.EquipmentAvailable:
			counters.Available = count
		case models.EquipmentAssigned:
			counters.Assigned = count
		case models.EquipmentInMaintenance:
			counters.InMaintenance = count
		case models.EquipmentDecommissioned:
			counters.Decommissioned = count
		}
	}
	return rows.Err()
}

func (r *DashboardRepository) scopedCount(ctx context.Context, siteID *string, base, siteColumn string) (int, error) {
	query := base
	var args []interface{}
	if siteID != nil {
		query += fmt.Sprintf(" AND %s = $1", siteColumn)
		args = append(args, *siteID)
	}
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, err
	}
	return count, nil
}

func (r *DashboardRepository) countLicensesExpiring(ctx context.Context, siteID *string, now time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM licenses l LEFT JOIN equipment e ON e.id = l.equipment_id
		WHERE l.expires_at IS NOT NULL AND l.expires_at BETWEEN $1 AND $2`
	args := []interface{}{now, now.AddDate(0, 1, 0)}
	if siteID != nil {
		query += " AND e.site_id = $3"
		args = append(args, *siteID)
	}
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count expiring licenses: %w", err)
	}
	return count, nil
}

func (r *DashboardRepository) maintenanceCounters(ctx context.Context, siteID *string, now time.Time) (open int, overdue int, err error) {
	query := `SELECT COUNT(*) AS open_count,
		COUNT(*) FILTER (WHERE m.scheduled_end IS NOT NULL AND m.scheduled_end < $1) AS overdue_count
		FROM maintenance_records m JOIN equipment e ON e.id = m.equipment_id
		WHERE m.state IN ($2, $3)`
	args := []interface{}{now, string(models.MaintenancePending), string(models.MaintenanceInProgress)}
	if siteID != nil {
		query += " AND e.site_id = $4"
		args = append(args, *siteID)
	}

	row := r.db.QueryRowxContext(ctx, query, args...)
	if err := row.Scan(&open, &overdue); err != nil {
		return 0, 0, fmt.Errorf("count open maintenance: %w", err)
	}
	return open, overdue, nil
}

func (r *DashboardRepository) countMaintenanceDue(ctx context.Context, siteID *string, now time.Time) (int, error) {
	query := `SELECT COUNT(*) FROM equipment
		WHERE active = TRUE AND next_maintenance_at IS NOT NULL AND next_maintenance_at < $1`
	args := []interface{}{now}
	if siteID != nil {
		query += " AND site_id = $2"
		args = append(args, *siteID)
	}
	var count int
	if err := r.db.GetContext(ctx, &count, query, args...); err != nil {
		return 0, fmt.Errorf("count maintenance due equipment: %w", err)
	}
	return count, nil
}
