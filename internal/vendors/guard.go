package vendors

import (
	"context"
	"fmt"

	"golang.org/x/sync/singleflight"
)

// Guard answers whether a vendor may receive new payment activity. It is a
// pure read-side check; it never mutates vendor state.
type Guard struct {
	repo  Repository
	group singleflight.Group
}

// NewGuard constructs a Guard over the vendor repository.
func NewGuard(repo Repository) *Guard {
	return &Guard{repo: repo}
}

// Check loads the vendor's hold/blacklist flags and returns the decision with
// the active reason text. Concurrent checks for the same vendor share one
// lookup.
func (g *Guard) Check(ctx context.Context, vendorID int64) (Decision, error) {
	v, err, _ := g.group.Do(fmt.Sprintf("vendor:%d", vendorID), func() (any, error) {
		return g.repo.GetVendorProfile(ctx, vendorID)
	})
	if err != nil {
		return Decision{}, err
	}
	profile := v.(VendorProfile)

	if profile.IsBlacklisted {
		return Decision{Allowed: false, Reason: reasonOrDefault(profile.BlacklistReason, "vendor is blacklisted")}, nil
	}
	if profile.IsOnHold {
		return Decision{Allowed: false, Reason: reasonOrDefault(profile.HoldReason, "vendor is on hold")}, nil
	}
	return Decision{Allowed: true}, nil
}

func reasonOrDefault(reason *string, fallback string) string {
	if reason != nil && *reason != "" {
		return *reason
	}
	return fallback
}
