package application

import (
	"testing"
	"time"

	"github.com/Jack-cpu666/rdp-signaling-server/middleware/ratelimit/domain"
)

type fakeLimiter struct {
	allow       bool
	checks      int
	blacklisted []domain.Key
	stats       domain.LimiterStats
}

func (f *fakeLimiter) Check(domain.Key, bool) domain.Decision {
	f.checks++
	if f.allow {
		return domain.Decision{Allowed: true, Remaining: 1}
	}
	return domain.Decision{Allowed: false, RetryAfter: time.Minute}
}

func (f *fakeLimiter) Blacklist(key domain.Key, _ time.Duration) {
	f.blacklisted = append(f.blacklisted, key)
}

func (f *fakeLimiter) Stats() domain.LimiterStats { return f.stats }

func TestScopedService_RoutesToEventLimiter(t *testing.T) {
	global := &fakeLimiter{allow: true}
	strict := &fakeLimiter{allow: false}

	svc := NewScopedService(global)
	svc.RegisterEvent("session-create", strict)

	dec := svc.CheckEvent("c1", "session-create")
	if dec.Allowed {
		t.Fatalf("expected strict event limiter to deny")
	}
	if strict.checks != 1 || global.checks != 0 {
		t.Fatalf("expected only the event limiter to be consulted, strict=%d global=%d", strict.checks, global.checks)
	}
}

func TestScopedService_FallsBackToGlobal(t *testing.T) {
	global := &fakeLimiter{allow: true}
	svc := NewScopedService(global)

	dec := svc.CheckEvent("c1", "unregistered-event")
	if !dec.Allowed {
		t.Fatalf("expected global fallback to allow")
	}
	if global.checks != 1 {
		t.Fatalf("expected global limiter to be consulted once, got %d", global.checks)
	}
}

func TestScopedService_AllowsWhenNoLimiters(t *testing.T) {
	svc := NewScopedService(nil)
	dec := svc.CheckEvent("c1", "anything")
	if !dec.Allowed {
		t.Fatalf("expected allow when no limiter is configured")
	}
}

func TestScopedService_BlacklistPropagates(t *testing.T) {
	global := &fakeLimiter{allow: true}
	a := &fakeLimiter{allow: true}
	b := &fakeLimiter{allow: true}

	svc := NewScopedService(global)
	svc.RegisterEvent("a", a)
	svc.RegisterEvent("b", b)

	svc.BlacklistIdentity("c1", time.Hour)

	for name, lim := range map[string]*fakeLimiter{"global": global, "a": a, "b": b} {
		if len(lim.blacklisted) != 1 || lim.blacklisted[0] != "c1" {
			t.Fatalf("expected blacklist to reach %s limiter, got %v", name, lim.blacklisted)
		}
	}
}

func TestScopedService_StatsAggregatesAllLimiters(t *testing.T) {
	global := &fakeLimiter{stats: domain.LimiterStats{Clients: 3}}
	ev := &fakeLimiter{stats: domain.LimiterStats{Clients: 1, Blocked: 1}}

	svc := NewScopedService(global)
	svc.RegisterEvent("session-create", ev)

	st := svc.Stats()
	if st["global"].Clients != 3 {
		t.Fatalf("expected global stats, got %+v", st["global"])
	}
	if st["session-create"].Blocked != 1 {
		t.Fatalf("expected event stats, got %+v", st["session-create"])
	}
}
