package anticheat

import (
	"context"
	"fmt"
)

// Signal kinds shared by several accounts.
const (
	SignalIP          = "ip"
	SignalFingerprint = "fingerprint"
)

// SignalStore links accounts to a join signal and returns the number of distinct accounts seen for it.
type SignalStore interface {
	Link(ctx context.Context, kind, value, accountID string) (int, error)
}

// SignalConfig holds the accounts-per-signal thresholds.
type SignalConfig struct {
	MaxAccountsPerIP          int
	MaxAccountsPerFingerprint int
}

func DefaultSignalConfig() SignalConfig {
	return SignalConfig{MaxAccountsPerIP: 3, MaxAccountsPerFingerprint: 2}
}

// Finding is the outcome of a join-time check.
type Finding struct {
	Suspicious bool
	Detail     string
}

// SignalChecker evaluates multi-account heuristics when a player joins a session.
type SignalChecker struct {
	store  SignalStore
	config SignalConfig
}

func NewSignalChecker(store SignalStore, config SignalConfig) *SignalChecker {
	return &SignalChecker{store: store, config: config}
}

// Observe links the account to its ip and fingerprint. Empty signals are ignored.
func (c *SignalChecker) Observe(ctx context.Context, accountID, ip, fingerprint string) (Finding, error) {
	var finding Finding
	checks := []struct {
		kind  string
		value string
		limit int
	}{
		{SignalIP, ip, c.config.MaxAccountsPerIP},
		{SignalFingerprint, fingerprint, c.config.MaxAccountsPerFingerprint},
	}
	for _, chk := range checks {
		if chk.value == "" {
			continue
		}
		count, err := c.store.Link(ctx, chk.kind, chk.value, accountID)
		if err != nil {
			return Finding{}, fmt.Errorf("link %s: %w", chk.kind, err)
		}
		if chk.limit > 0 && count > chk.limit {
			finding.Suspicious = true
			if finding.Detail != "" {
				finding.Detail += "; "
			}
			finding.Detail += fmt.Sprintf("%d accounts share %s %s", count, chk.kind, chk.value)
		}
	}
	return finding, nil
}
