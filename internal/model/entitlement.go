package model

import (
    "strings"
    "time"
)

// Subscription mirrors the subscriptions table owned by the billing
// subsystem.  The lottery only reads it.
type Subscription struct {
    UserID           uint64    // subscriptions.user_id
    Status           string    // subscriptions.status
    MaxDigits        int       // subscriptions.max_digits
    CurrentPeriodEnd time.Time // subscriptions.current_period_end
}

// Entitlement is the snapshot the gate evaluates.
type Entitlement struct {
    Active         bool `json:"active"`
    MaxDigitLength int  `json:"max_digit_length"`
}

// accessStatuses keep access until the paid period ends.
var accessStatuses = map[string]bool{
    "active":   true,
    "canceled": true,
    "grace":    true,
    "on_hold":  true,
    "paused":   true,
}

// EntitlementAt derives the snapshot for the instant now.
func (s Subscription) EntitlementAt(now time.Time) Entitlement {
    max := s.MaxDigits
    if !ValidDigitLength(max) {
        max = 3
    }
    active := s.CurrentPeriodEnd.After(now) && accessStatuses[strings.ToLower(strings.TrimSpace(s.Status))]
    return Entitlement{Active: active, MaxDigitLength: max}
}
