package infra

import (
	"testing"
	"time"

	"github.com/Jack-cpu666/rdp-signaling-server/middleware/ratelimit/domain"

	"github.com/jonboulle/clockwork"
)

func newTestStore(cfg domain.Config) (*WindowStore, clockwork.FakeClock) {
	fc := clockwork.NewFakeClockAt(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	return NewWindowStore(cfg, WithClock(fc)), fc
}

func TestWindowStore_AllowsUpToMaxThenBlocks(t *testing.T) {
	s, _ := newTestStore(domain.Config{Window: time.Minute, Max: 3})

	for i, want := range []int{2, 1, 0} {
		dec := s.Check("c1", true)
		if !dec.Allowed {
			t.Fatalf("expected request %d to be allowed", i+1)
		}
		if dec.Remaining != want {
			t.Fatalf("expected remaining=%d on request %d, got %d", want, i+1, dec.Remaining)
		}
	}

	dec := s.Check("c1", true)
	if dec.Allowed {
		t.Fatalf("expected 4th request to be denied")
	}
	if dec.RetryAfter != time.Minute {
		t.Fatalf("expected first penalty of 1m, got %s", dec.RetryAfter)
	}
}

func TestWindowStore_RetryAfterNeverIncreasesWhileBlocked(t *testing.T) {
	s, fc := newTestStore(domain.Config{Window: time.Minute, Max: 1})

	s.Check("c1", true)
	first := s.Check("c1", true)
	if first.Allowed {
		t.Fatalf("expected block")
	}

	prev := first.RetryAfter
	for i := 0; i < 5; i++ {
		fc.Advance(5 * time.Second)
		dec := s.Check("c1", true)
		if dec.Allowed {
			t.Fatalf("expected deny while block active (iteration %d)", i)
		}
		if dec.RetryAfter > prev {
			t.Fatalf("expected non-increasing retry-after, got %s after %s", dec.RetryAfter, prev)
		}
		prev = dec.RetryAfter
	}
}

func TestWindowStore_LazyUnblockResetsHistory(t *testing.T) {
	s, fc := newTestStore(domain.Config{Window: time.Minute, Max: 2})

	s.Check("c1", true)
	s.Check("c1", true)
	if dec := s.Check("c1", true); dec.Allowed {
		t.Fatalf("expected block on 3rd request")
	}

	// ninguém desbloqueia por timer: a próxima checagem após a expiração limpa
	fc.Advance(time.Minute + time.Second)
	dec := s.Check("c1", true)
	if !dec.Allowed {
		t.Fatalf("expected allow after block expiry, retry-after=%s", dec.RetryAfter)
	}
	if dec.Remaining != 1 {
		t.Fatalf("expected fresh window after unblock, remaining=%d", dec.Remaining)
	}
}

func TestWindowStore_PenaltyEscalatesOnRepeatOffense(t *testing.T) {
	s, fc := newTestStore(domain.Config{Window: time.Minute, Max: 1})

	s.Check("c1", true)
	first := s.Check("c1", true)
	if first.Allowed || first.RetryAfter != time.Minute {
		t.Fatalf("expected first block of 1m, got %+v", first)
	}

	fc.Advance(first.RetryAfter + time.Second)
	s.Check("c1", true)
	second := s.Check("c1", true)
	if second.Allowed {
		t.Fatalf("expected second block")
	}
	if second.RetryAfter <= first.RetryAfter {
		t.Fatalf("expected escalating penalty, got %s then %s", first.RetryAfter, second.RetryAfter)
	}
}

func TestWindowStore_SuspicionDoublesPenaltyOnRelapse(t *testing.T) {
	s, fc := newTestStore(domain.Config{Window: time.Minute, Max: 10})

	// 10 requisições instantâneas: rajada acima de 80% do limite em 10s
	for i := 0; i < 10; i++ {
		s.Check("c1", true)
	}
	first := s.Check("c1", true)
	if first.Allowed {
		t.Fatalf("expected block at the limit")
	}
	if first.RetryAfter != time.Minute {
		t.Fatalf("expected base penalty on first block, got %s", first.RetryAfter)
	}

	st, ok := s.ClientStats("c1")
	if !ok || !st.Suspicious {
		t.Fatalf("expected client flagged as suspicious, got %+v", st)
	}

	// reincidência com a marca de suspeita: 2m da escalada, dobrado
	fc.Advance(first.RetryAfter + time.Second)
	for i := 0; i < 10; i++ {
		s.Check("c1", true)
	}
	second := s.Check("c1", true)
	if second.Allowed {
		t.Fatalf("expected second block")
	}
	if second.RetryAfter != 4*time.Minute {
		t.Fatalf("expected doubled escalated penalty, got %s", second.RetryAfter)
	}
}

func TestWindowStore_SkipSuccessfulDoesNotCount(t *testing.T) {
	s, _ := newTestStore(domain.Config{Window: time.Minute, Max: 2, SkipSuccessful: true})

	for i := 0; i < 10; i++ {
		if dec := s.Check("c1", true); !dec.Allowed {
			t.Fatalf("expected successful outcomes to bypass counting (iteration %d)", i)
		}
	}

	// falhas continuam contando
	s.Check("c1", false)
	s.Check("c1", false)
	if dec := s.Check("c1", false); dec.Allowed {
		t.Fatalf("expected failures to hit the limit")
	}
}

func TestWindowStore_BlacklistBlocksWithoutHistory(t *testing.T) {
	s, fc := newTestStore(domain.Config{Window: time.Minute, Max: 100})

	s.Blacklist("c1", 10*time.Minute)
	if !s.IsBlocked("c1") {
		t.Fatalf("expected blacklisted client to be blocked")
	}
	dec := s.Check("c1", true)
	if dec.Allowed {
		t.Fatalf("expected deny for blacklisted client")
	}
	if dec.RetryAfter != 10*time.Minute {
		t.Fatalf("expected retry-after of the forced block, got %s", dec.RetryAfter)
	}

	fc.Advance(11 * time.Minute)
	if dec := s.Check("c1", true); !dec.Allowed {
		t.Fatalf("expected allow after forced block expiry")
	}
}

func TestWindowStore_WhitelistClearsEverything(t *testing.T) {
	s, _ := newTestStore(domain.Config{Window: time.Minute, Max: 1})

	s.Check("c1", true)
	s.Check("c1", true) // bloqueia
	s.Whitelist("c1")

	if s.IsBlocked("c1") {
		t.Fatalf("expected whitelist to clear the block")
	}
	if _, ok := s.ClientStats("c1"); ok {
		t.Fatalf("expected client record to be dropped")
	}
	if dec := s.Check("c1", true); !dec.Allowed {
		t.Fatalf("expected fresh client after whitelist")
	}
}

func TestWindowStore_CleanupEvictsIdleClients(t *testing.T) {
	s, fc := newTestStore(domain.Config{Window: time.Minute, Max: 5})

	s.Check("idle", true)
	s.Check("active", true)

	fc.Advance(4 * time.Minute)
	s.Check("active", true)
	s.Cleanup()

	if _, ok := s.ClientStats("idle"); ok {
		t.Fatalf("expected idle client to be evicted after 3 windows")
	}
	if _, ok := s.ClientStats("active"); !ok {
		t.Fatalf("expected active client to survive cleanup")
	}
}

func TestWindowStore_CleanupKeepsBlockedClients(t *testing.T) {
	s, fc := newTestStore(domain.Config{Window: time.Minute, Max: 1})

	s.Check("c1", true)
	s.Check("c1", true) // bloqueia por 1m

	fc.Advance(30 * time.Second)
	s.Cleanup()
	if !s.IsBlocked("c1") {
		t.Fatalf("expected blocked client to survive cleanup while block is active")
	}

	// após expirar, o cleanup desbloqueia de forma oportunista
	fc.Advance(time.Minute)
	s.Cleanup()
	if s.IsBlocked("c1") {
		t.Fatalf("expected opportunistic unblock after expiry")
	}
}

func TestWindowStore_StatsAggregates(t *testing.T) {
	s, _ := newTestStore(domain.Config{Window: time.Minute, Max: 1})

	s.Check("a", true)
	s.Check("a", true) // bloqueia a
	s.Check("b", true)

	st := s.Stats()
	if st.Clients != 2 {
		t.Fatalf("expected 2 clients, got %d", st.Clients)
	}
	if st.Blocked != 1 {
		t.Fatalf("expected 1 blocked client, got %d", st.Blocked)
	}
	if st.TotalRequests != 3 {
		t.Fatalf("expected 3 total requests, got %d", st.TotalRequests)
	}
}
