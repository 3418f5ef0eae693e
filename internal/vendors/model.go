package vendors

import (
	"time"

	"github.com/shopspring/decimal"
)

// VendorProfile is the per-vendor AP metadata the settlement engine consults.
// The engine only reads this entity; hold and blacklist flags are maintained
// by vendor management.
type VendorProfile struct {
	ID              int64
	BusinessID      int64
	Code            string
	Name            string
	IsOnHold        bool
	HoldReason      *string
	IsBlacklisted   bool
	BlacklistReason *string
	CreditTermID    *int64
	CreditLimit     decimal.Decimal
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Decision is the outcome of a guard check before new payment activity.
type Decision struct {
	Allowed bool
	Reason  string
}
