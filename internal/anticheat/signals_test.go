package anticheat_test

import (
	"context"
	"errors"
	"strings"
	"testing"

	"quiz-battle-service/internal/anticheat"
	"quiz-battle-service/internal/infra/memory"
)

func TestSignalCheckerFlagsSharedFingerprint(t *testing.T) {
	ctx := context.Background()
	checker := anticheat.NewSignalChecker(memory.NewSignalStore(), anticheat.SignalConfig{
		MaxAccountsPerIP:          3,
		MaxAccountsPerFingerprint: 1,
	})

	for i := 0; i < 2; i++ {
		// rejoining with the same account is not a new link
		finding, err := checker.Observe(ctx, "alice", "10.0.0.1", "device-1")
		if err != nil {
			t.Fatalf("observe alice: %v", err)
		}
		if finding.Suspicious {
			t.Fatalf("join %d: unexpected finding %+v", i, finding)
		}
	}

	finding, err := checker.Observe(ctx, "bob", "10.0.0.1", "device-1")
	if err != nil {
		t.Fatalf("observe bob: %v", err)
	}
	if !finding.Suspicious || !strings.Contains(finding.Detail, anticheat.SignalFingerprint) {
		t.Fatalf("expected fingerprint finding, got %+v", finding)
	}
	if strings.Contains(finding.Detail, anticheat.SignalIP+" ") {
		t.Fatalf("ip is below its limit, got %q", finding.Detail)
	}
}

func TestSignalCheckerIgnoresEmptySignals(t *testing.T) {
	checker := anticheat.NewSignalChecker(memory.NewSignalStore(), anticheat.SignalConfig{MaxAccountsPerIP: 1, MaxAccountsPerFingerprint: 1})
	for _, p := range []string{"a", "b", "c"} {
		finding, err := checker.Observe(context.Background(), p, "", "")
		if err != nil {
			t.Fatalf("observe %s: %v", p, err)
		}
		if finding.Suspicious {
			t.Fatalf("empty signals must not link accounts, got %+v", finding)
		}
	}
}

type brokenSignals struct{}

func (brokenSignals) Link(context.Context, string, string, string) (int, error) {
	return 0, errors.New("store down")
}

func TestSignalCheckerWrapsStoreErrors(t *testing.T) {
	checker := anticheat.NewSignalChecker(brokenSignals{}, anticheat.DefaultSignalConfig())
	_, err := checker.Observe(context.Background(), "alice", "10.0.0.1", "")
	if err == nil || !strings.Contains(err.Error(), "link ip") {
		t.Fatalf("expected wrapped link error, got %v", err)
	}
}
