package service

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/jmoiron/sqlx"
	"go.uber.org/zap"

	"github.com/gestionequipos/activos-api/internal/models"
	appErrors "github.com/gestionequipos/activos-api/pkg/errors"
)

type trackerAssignmentRepository interface {
	FindOpen(ctx context.Context, exec sqlx.ExtContext, assetType models.AssetType, assetID string) (*models.AssignmentRecord, error)
	CloseOpen(ctx context.Context, exec sqlx.ExtContext, assetType models.AssetType, assetID, reason string, endedAt time.Time) (int, error)
	Insert(ctx context.Context, exec sqlx.ExtContext, record *models.AssignmentRecord) error
}

// AssetRef identifies an asset inside the custody ledger.
type AssetRef struct {
	Type   models.AssetType
	ID     string
	Label  string
	SiteID *string
}

// HolderRef identifies the employee holding an asset.
type HolderRef struct {
	ID    string
	Label string
}

// AssignmentTracker maintains the custody ledger as a side effect of
// asset writes. It never exposes direct create or close endpoints: the
// ledger always mirrors what the asset rows say, closing the previous
// period before opening the next one inside the caller's transaction.
type AssignmentTracker struct {
	repo   trackerAssignmentRepository
	logger *zap.Logger
}

// NewAssignmentTracker constructs an AssignmentTracker.
func NewAssignmentTracker(repo trackerAssignmentRepository, logger *zap.Logger) *AssignmentTracker {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &AssignmentTracker{repo: repo, logger: logger}
}

// Observe reconciles the ledger after the asset's holder possibly
// changed. Must run inside the same transaction as the asset write.
func (t *AssignmentTracker) Observe(ctx context.Context, exec sqlx.ExtContext, asset AssetRef, before, after *HolderRef) error {
	if sameHolder(before, after) {
		return nil
	}
	now := time.Now().UTC()

	if before != nil {
		reason := models.AssignmentEndReturned
		if after != nil {
			reason = models.AssignmentEndReassigned
		}
		closed, err := t.repo.CloseOpen(ctx, exec, asset.Type, asset.ID, reason, now)
		if err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close assignment")
		}
		if closed == 0 {
			t.logger.Warn("no open assignment to close",
				zap.String("asset_type", string(asset.Type)),
				zap.String("asset_id", asset.ID))
		}
	}

	if after != nil {
		record := &models.AssignmentRecord{
			AssetType:     asset.Type,
			AssetID:       asset.ID,
			AssetLabel:    asset.Label,
			EmployeeID:    &after.ID,
			EmployeeLabel: after.Label,
			SiteID:        asset.SiteID,
			StartedAt:     now,
		}
		if err := t.repo.Insert(ctx, exec, record); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to open assignment")
		}
	}

	return nil
}

// Decommission closes any open custody period and appends the terminal
// decommission row that ends the asset's ledger. Must run inside the
// same transaction as the asset write.
func (t *AssignmentTracker) Decommission(ctx context.Context, exec sqlx.ExtContext, asset AssetRef) error {
	now := time.Now().UTC()

	open, err := t.repo.FindOpen(ctx, exec, asset.Type, asset.ID)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to check open assignment")
	}
	if open != nil {
		if _, err := t.repo.CloseOpen(ctx, exec, asset.Type, asset.ID, models.AssignmentEndDecommissioned, now); err != nil {
			return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to close assignment")
		}
	}

	reason := models.AssignmentEndDecommissioned
	terminal := &models.AssignmentRecord{
		AssetType:        asset.Type,
		AssetID:          asset.ID,
		AssetLabel:       asset.Label,
		SiteID:           asset.SiteID,
		StartedAt:        now,
		EndedAt:          &now,
		EndReason:        &reason,
		Decommission:     true,
		DecommissionedAt: &now,
	}
	if open != nil {
		terminal.EmployeeID = open.EmployeeID
		terminal.EmployeeLabel = open.EmployeeLabel
	}
	if err := t.repo.Insert(ctx, exec, terminal); err != nil {
		return appErrors.Wrap(err, appErrors.ErrInternal.Code, appErrors.ErrInternal.Status, "failed to record decommission")
	}
	return nil
}

func sameHolder(a, b *HolderRef) bool {
	if a == nil && b == nil {
		return true
	}
	if a == nil || b == nil {
		return false
	}
	return a.ID == b.ID
}
