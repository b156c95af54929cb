package proxy

import (
	"testing"
	"time"
)

func TestRateLimiterAllowWithinBurst(t *testing.T) {
	rl := newRateLimiter(1, 2)

	if !rl.allow("10.0.0.1") {
		t.Errorf("allow() = false for first request, want true")
	}
	if !rl.allow("10.0.0.1") {
		t.Errorf("allow() = false within burst, want true")
	}
	if rl.allow("10.0.0.1") {
		t.Errorf("allow() = true past burst, want false")
	}

	// Budgets are per client
	if !rl.allow("10.0.0.2") {
		t.Errorf("allow() = false for a fresh client, want true")
	}
}

func TestRateLimiterPrunesIdleClients(t *testing.T) {
	rl := newRateLimiter(1, 1)

	rl.allow("10.0.0.1")
	rl.allow("10.0.0.2")

	rl.mu.Lock()
	rl.clients["10.0.0.1"].lastSeen = time.Now().Add(-2 * clientIdleTimeout)
	rl.mu.Unlock()

	// A new client triggers the sweep; the idle limiter goes away
	rl.allow("10.0.0.3")

	rl.mu.Lock()
	defer rl.mu.Unlock()
	if _, ok := rl.clients["10.0.0.1"]; ok {
		t.Errorf("idle client limiter retained after sweep")
	}
	if _, ok := rl.clients["10.0.0.2"]; !ok {
		t.Errorf("active client limiter dropped by sweep")
	}
	if _, ok := rl.clients["10.0.0.3"]; !ok {
		t.Errorf("new client limiter missing after sweep")
	}
}
