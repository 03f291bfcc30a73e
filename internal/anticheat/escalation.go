package anticheat

import (
	"context"
	"fmt"
	"time"

	"quiz-battle-service/internal/domain"
)

// FlagStore persists flagged matches per player across matches (the external audit store).
type FlagStore interface {
	RecordFlag(ctx context.Context, playerID, matchID string, at time.Time) error
	CountFlags(ctx context.Context, playerID string, since time.Time) (int, error)
	ClearFlags(ctx context.Context, playerID string) error
}

// EscalationConfig bounds how many flagged matches a player may accumulate.
type EscalationConfig struct {
	FlaggedMatchLimit int
	Window            time.Duration
}

func DefaultEscalationConfig() EscalationConfig {
	return EscalationConfig{FlaggedMatchLimit: 3, Window: 24 * time.Hour}
}

// Escalator turns recorded flags into suspensions.
type Escalator struct {
	store  FlagStore
	config EscalationConfig
	now    func() time.Time
}

func NewEscalator(store FlagStore, config EscalationConfig) *Escalator {
	return NewEscalatorWithClock(store, config, time.Now)
}

// NewEscalatorWithClock allows deterministic windows in tests.
func NewEscalatorWithClock(store FlagStore, config EscalationConfig, now func() time.Time) *Escalator {
	return &Escalator{store: store, config: config, now: now}
}

// Flag records a flagged match and reports whether the player is now suspended.
func (e *Escalator) Flag(ctx context.Context, playerID, matchID string) (bool, error) {
	if err := e.store.RecordFlag(ctx, playerID, matchID, e.now()); err != nil {
		return false, fmt.Errorf("record flag: %w", err)
	}
	return e.Suspended(ctx, playerID)
}

// Suspended counts flagged matches inside the rolling window.
func (e *Escalator) Suspended(ctx context.Context, playerID string) (bool, error) {
	if e.config.FlaggedMatchLimit <= 0 {
		return false, nil
	}
	count, err := e.store.CountFlags(ctx, playerID, e.now().Add(-e.config.Window))
	if err != nil {
		return false, fmt.Errorf("count flags: %w", err)
	}
	return count >= e.config.FlaggedMatchLimit, nil
}

// Guard fails closed: a store error refuses the player just like an active suspension.
func (e *Escalator) Guard(ctx context.Context, playerID string) error {
	suspended, err := e.Suspended(ctx, playerID)
	if err != nil {
		return fmt.Errorf("%w: %s: %v", domain.ErrSuspensionActive, playerID, err)
	}
	if suspended {
		return fmt.Errorf("%w: %s", domain.ErrSuspensionActive, playerID)
	}
	return nil
}

// Clear lifts a suspension by dropping the player's flag history.
func (e *Escalator) Clear(ctx context.Context, playerID string) error {
	return e.store.ClearFlags(ctx, playerID)
}
