package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/jmoiron/sqlx"
)

// TierRepository reads membership tier labels.
type TierRepository struct {
	db *sqlx.DB
}

// NewTierRepository constructs the repository.
func NewTierRepository(db *sqlx.DB) *TierRepository {
	return &TierRepository{db: db}
}

// GetTierName returns the display name of a tier, or an empty string if the
// tier is unknown.
func (r *TierRepository) GetTierName(ctx context.Context, tierID string) (string, error) {
	var name string
	if err := r.db.GetContext(ctx, &name, `SELECT name FROM membership_tiers WHERE id = $1`, tierID); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return "", nil
		}
		return "", fmt.Errorf("get tier name: %w", err)
	}
	return name, nil
}
