package repository

import (
	"context"

	"github.com/jackc/pgx/v5"

	"github.com/pesio-ai/be-payroll-review/internal/database"
	"github.com/pesio-ai/be-payroll-review/internal/errors"
	"github.com/pesio-ai/be-payroll-review/internal/rules"
)

// OrganizationTierRepository reads and sets the subscription tier that
// gates which rules apply to an organization.
type OrganizationTierRepository struct {
	db          *database.DB
	defaultTier rules.Tier
}

// NewOrganizationTierRepository creates a new OrganizationTierRepository.
// Organizations with no row get defaultTier.
func NewOrganizationTierRepository(db *database.DB, defaultTier rules.Tier) *OrganizationTierRepository {
	if defaultTier == "" {
		defaultTier = rules.TierStarter
	}
	return &OrganizationTierRepository{db: db, defaultTier: defaultTier}
}

// GetTier returns the organization's tier.
func (r *OrganizationTierRepository) GetTier(ctx context.Context, organizationID string) (rules.Tier, error) {
	var tier string
	err := r.db.QueryRow(ctx,
		`SELECT tier FROM organization_tier WHERE organization_id = $1`,
		organizationID,
	).Scan(&tier)
	if err == pgx.ErrNoRows {
		return r.defaultTier, nil
	}
	if err != nil {
		return "", errors.Wrap(err, errors.ErrCodeInternal, "failed to get organization tier")
	}
	return rules.Tier(tier), nil
}

// SetTier upserts the organization's tier.
func (r *OrganizationTierRepository) SetTier(ctx context.Context, organizationID string, tier rules.Tier) error {
	_, err := r.db.Exec(ctx, `
		INSERT INTO organization_tier (organization_id, tier)
		VALUES ($1, $2)
		ON CONFLICT (organization_id) DO UPDATE
		SET tier = EXCLUDED.tier, updated_at = NOW()
	`, organizationID, string(tier))
	if err != nil {
		return errors.Wrap(err, errors.ErrCodeInternal, "failed to set organization tier")
	}
	return nil
}
