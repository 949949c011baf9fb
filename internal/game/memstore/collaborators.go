package memstore

import (
	"context"
	"sync"

	"github.com/iliyamo/numbers-lottery/internal/game"
	"github.com/iliyamo/numbers-lottery/internal/model"
)

// Entitlements is a fixed entitlement table.  Unknown users are inactive.
type Entitlements struct {
	mu   sync.Mutex
	ents map[uint64]model.Entitlement
	Err  error
}

func NewEntitlements() *Entitlements {
	return &Entitlements{ents: make(map[uint64]model.Entitlement)}
}

// Set grants userID an active entitlement up to maxDigits.
func (e *Entitlements) Set(userID uint64, maxDigits int) {
	e.mu.Lock()
	e.ents[userID] = model.Entitlement{Active: true, MaxDigitLength: maxDigits}
	e.mu.Unlock()
}

// Revoke marks userID inactive.
func (e *Entitlements) Revoke(userID uint64) {
	e.mu.Lock()
	delete(e.ents, userID)
	e.mu.Unlock()
}

func (e *Entitlements) GetEntitlement(_ context.Context, userID uint64) (model.Entitlement, error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.Err != nil {
		return model.Entitlement{}, e.Err
	}
	return e.ents[userID], nil
}

// Sink records every intent it accepts.  It fails FailTimes calls with Err
// before accepting.
type Sink struct {
	mu        sync.Mutex
	Intents   []model.NotificationIntent
	Calls     int
	FailTimes int
	Err       error
}

func (k *Sink) Enqueue(_ context.Context, intents ...model.NotificationIntent) error {
	k.mu.Lock()
	defer k.mu.Unlock()
	k.Calls++
	if k.FailTimes > 0 {
		k.FailTimes--
		return k.Err
	}
	k.Intents = append(k.Intents, intents...)
	return nil
}

// Snapshot returns a copy of the accepted intents.
func (k *Sink) Snapshot() []model.NotificationIntent {
	k.mu.Lock()
	defer k.mu.Unlock()
	return append([]model.NotificationIntent(nil), k.Intents...)
}

var (
	_ game.EntitlementSource = (*Entitlements)(nil)
	_ game.NotificationSink  = (*Sink)(nil)
)
