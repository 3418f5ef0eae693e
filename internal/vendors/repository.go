package vendors

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgtype"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/settleflow/settleflow/internal/shared"
)

// Repository provides read-side access to vendor profiles.
type Repository interface {
	GetVendorProfile(ctx context.Context, vendorID int64) (VendorProfile, error)
}

type pgRepository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a PostgreSQL backed vendor repository.
func NewRepository(pool *pgxpool.Pool) Repository {
	return &pgRepository{pool: pool}
}

func (r *pgRepository) GetVendorProfile(ctx context.Context, vendorID int64) (VendorProfile, error) {
	const query = `
		SELECT id, business_id, code, name,
			is_on_hold, hold_reason, is_blacklisted, blacklist_reason,
			credit_term_id, credit_limit, created_at, updated_at
		FROM vendor_profiles
		WHERE id = $1`

	var v VendorProfile
	var holdReason, blacklistReason pgtype.Text
	var creditTermID pgtype.Int8

	err := r.pool.QueryRow(ctx, query, vendorID).Scan(
		&v.ID, &v.BusinessID, &v.Code, &v.Name,
		&v.IsOnHold, &holdReason, &v.IsBlacklisted, &blacklistReason,
		&creditTermID, &v.CreditLimit, &v.CreatedAt, &v.UpdatedAt,
	)
	if errors.Is(err, pgx.ErrNoRows) {
		return VendorProfile{}, fmt.Errorf("vendors: vendor %d: %w", vendorID, shared.ErrNotFound)
	}
	if err != nil {
		return VendorProfile{}, err
	}

	if holdReason.Valid {
		v.HoldReason = &holdReason.String
	}
	if blacklistReason.Valid {
		v.BlacklistReason = &blacklistReason.String
	}
	if creditTermID.Valid {
		v.CreditTermID = &creditTermID.Int64
	}
	return v, nil
}
