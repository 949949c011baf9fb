package repository

import (
	"context"
	"database/sql"
	"errors"
	"time"

	"github.com/iliyamo/numbers-lottery/internal/game"
	"github.com/iliyamo/numbers-lottery/internal/model"
)

// SubscriptionRepo reads the billing subsystem's subscriptions table and
// serves it to the gate as an entitlement snapshot.
type SubscriptionRepo struct {
	DB  *sql.DB
	Now func() time.Time
}

func NewSubscriptionRepo(db *sql.DB) *SubscriptionRepo {
	return &SubscriptionRepo{DB: db, Now: func() time.Time { return time.Now().UTC() }}
}

var _ game.EntitlementSource = (*SubscriptionRepo)(nil)

// Get loads the subscription row for a user.
func (r *SubscriptionRepo) Get(ctx context.Context, userID uint64) (model.Subscription, error) {
	var s model.Subscription
	err := r.DB.QueryRowContext(ctx,
		"SELECT user_id, status, max_digits, current_period_end FROM subscriptions WHERE user_id=? LIMIT 1",
		userID).Scan(&s.UserID, &s.Status, &s.MaxDigits, &s.CurrentPeriodEnd)
	return s, translate(err)
}

// GetEntitlement returns the snapshot for a user.  A user without a
// subscription row is inactive.
func (r *SubscriptionRepo) GetEntitlement(ctx context.Context, userID uint64) (model.Entitlement, error) {
	s, err := r.Get(ctx, userID)
	if errors.Is(err, ErrNotFound) {
		return model.Entitlement{MaxDigitLength: 3}, nil
	}
	if err != nil {
		return model.Entitlement{}, err
	}
	return s.EntitlementAt(r.Now()), nil
}

// Upsert writes a subscription row.  It exists for seeding and tests; the
// billing subsystem owns this table in production.
func (r *SubscriptionRepo) Upsert(ctx context.Context, s model.Subscription) error {
	_, err := r.DB.ExecContext(ctx,
		`INSERT INTO subscriptions (user_id, status, max_digits, current_period_end) VALUES (?,?,?,?)
		 ON DUPLICATE KEY UPDATE status=VALUES(status), max_digits=VALUES(max_digits), current_period_end=VALUES(current_period_end)`,
		s.UserID, s.Status, s.MaxDigits, s.CurrentPeriodEnd)
	return translate(err)
}
