package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/jmoiron/sqlx"

	"github.com/noah-isme/class-roster-api/internal/models"
)

const entitlementColumns = `id, owner_customer_id, tier_id, remaining_uses, expiry_date, created_at`

// EntitlementRepository persists membership entitlements.
type EntitlementRepository struct {
	db *sqlx.DB
}

// NewEntitlementRepository constructs the repository.
func NewEntitlementRepository(db *sqlx.DB) *EntitlementRepository {
	return &EntitlementRepository{db: db}
}

// FindByID returns an entitlement or sql.ErrNoRows.
func (r *EntitlementRepository) FindByID(ctx context.Context, id string) (*models.Entitlement, error) {
	query := `SELECT ` + entitlementColumns + ` FROM entitlements WHERE id = $1`
	var ent models.Entitlement
	if err := r.db.GetContext(ctx, &ent, query, id); err != nil {
		return nil, err
	}
	return &ent, nil
}

// FindByIDs returns the entitlements that exist among ids.
func (r *EntitlementRepository) FindByIDs(ctx context.Context, ids []string) ([]models.Entitlement, error) {
	if len(ids) == 0 {
		return []models.Entitlement{}, nil
	}
	query, args, err := sqlx.In(`SELECT `+entitlementColumns+` FROM entitlements WHERE id IN (?)`, ids)
	if err != nil {
		return nil, fmt.Errorf("build entitlement lookup: %w", err)
	}
	ents := []models.Entitlement{}
	if err := r.db.SelectContext(ctx, &ents, r.db.Rebind(query), args...); err != nil {
		return nil, fmt.Errorf("find entitlements: %w", err)
	}
	return ents, nil
}

// ListByOwner returns a customer's consumable entitlements on the given day.
func (r *EntitlementRepository) ListByOwner(ctx context.Context, customerID string, today time.Time) ([]models.Entitlement, error) {
	query := `SELECT ` + entitlementColumns + ` FROM entitlements
WHERE owner_customer_id = $1
  AND (remaining_uses IS NULL OR remaining_uses > 0)
  AND (expiry_date IS NULL OR expiry_date >= $2)`
	ents := []models.Entitlement{}
	if err := r.db.SelectContext(ctx, &ents, query, customerID, models.CivilDate(today)); err != nil {
		return nil, fmt.Errorf("list customer entitlements: %w", err)
	}
	return ents, nil
}

// Consume takes one use in a single conditional statement, so concurrent
// callers on the same row are serialized by the row lock.
func (r *EntitlementRepository) Consume(ctx context.Context, id string, today time.Time) (*models.Entitlement, error) {
	query := `UPDATE entitlements
SET remaining_uses = CASE WHEN remaining_uses IS NULL THEN NULL ELSE remaining_uses - 1 END
WHERE id = $1
  AND (remaining_uses IS NULL OR remaining_uses > 0)
  AND (expiry_date IS NULL OR expiry_date >= $2)
RETURNING ` + entitlementColumns
	var ent models.Entitlement
	err := r.db.GetContext(ctx, &ent, query, id, models.CivilDate(today))
	if err == nil {
		return &ent, nil
	}
	if !errors.Is(err, sql.ErrNoRows) {
		return nil, fmt.Errorf("consume entitlement: %w", err)
	}

	current, findErr := r.FindByID(ctx, id)
	if findErr != nil {
		return nil, findErr
	}
	if current.Exhausted() {
		return nil, ErrEntitlementExhausted
	}
	if current.ExpiredOn(today) {
		return nil, ErrEntitlementExpired
	}
	return nil, fmt.Errorf("consume entitlement %s: no row updated", id)
}

// Refund returns one use. Unlimited grants are left untouched.
func (r *EntitlementRepository) Refund(ctx context.Context, id string) (*models.Entitlement, error) {
	query := `UPDATE entitlements SET remaining_uses = remaining_uses + 1 WHERE id = $1 RETURNING ` + entitlementColumns
	var ent models.Entitlement
	if err := r.db.GetContext(ctx, &ent, query, id); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, err
		}
		return nil, fmt.Errorf("refund entitlement: %w", err)
	}
	return &ent, nil
}
