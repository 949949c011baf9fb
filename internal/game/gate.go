package game

import (
	"context"
	"fmt"

	"github.com/iliyamo/numbers-lottery/internal/model"
)

// Denial reasons returned by the gate.
const (
	ReasonNoUser       = "no_user"
	ReasonInactive     = "inactive_subscription"
	ReasonTierTooLow   = "tier_too_low"
	ReasonBadDigits    = "unsupported_digit_length"
	ReasonLookupFailed = "entitlement_lookup_failed"
)

// Decision is the gate's answer for one (user, digit length) pair.
type Decision struct {
	Allowed bool   `json:"allowed"`
	Reason  string `json:"reason,omitempty"`
}

// Evaluate is the pure predicate over an entitlement snapshot.
func Evaluate(ent model.Entitlement, digits int) Decision {
	switch {
	case !model.ValidDigitLength(digits):
		return Decision{Reason: ReasonBadDigits}
	case !ent.Active:
		return Decision{Reason: ReasonInactive}
	case digits > ent.MaxDigitLength:
		return Decision{Reason: ReasonTierTooLow}
	}
	return Decision{Allowed: true}
}

// Gate answers whether a user may reserve in a round of a digit length.
type Gate struct {
	source EntitlementSource
}

// NewGate returns a gate backed by the given snapshot source.
func NewGate(source EntitlementSource) *Gate { return &Gate{source: source} }

// Authorize looks up the user's snapshot and evaluates it.  A zero user id
// is a guest and is always denied.
func (g *Gate) Authorize(ctx context.Context, userID uint64, digits int) (Decision, error) {
	if userID == 0 {
		return Decision{Reason: ReasonNoUser}, nil
	}
	ent, err := g.source.GetEntitlement(ctx, userID)
	if err != nil {
		return Decision{Reason: ReasonLookupFailed}, fmt.Errorf("entitlement lookup: %w", err)
	}
	return Evaluate(ent, digits), nil
}

// Active reports whether the user has any active entitlement.
func (g *Gate) Active(ctx context.Context, userID uint64) (bool, error) {
	if userID == 0 {
		return false, nil
	}
	ent, err := g.source.GetEntitlement(ctx, userID)
	if err != nil {
		return false, fmt.Errorf("entitlement lookup: %w", err)
	}
	return ent.Active, nil
}
