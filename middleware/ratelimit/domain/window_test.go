package domain

import (
	"testing"
	"time"
)

func TestClientWindow_PruneKeepsOnlyCurrentWindow(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w := &ClientWindow{Requests: []time.Time{
		now.Add(-90 * time.Second),
		now.Add(-61 * time.Second),
		now.Add(-30 * time.Second),
		now.Add(-1 * time.Second),
	}}

	w.Prune(now, time.Minute)

	if len(w.Requests) != 2 {
		t.Fatalf("expected 2 requests after prune, got %d", len(w.Requests))
	}
	if w.Requests[0] != now.Add(-30*time.Second) {
		t.Fatalf("expected oldest surviving request at now-30s, got %v", w.Requests[0])
	}
}

func TestClientWindow_RecentCountOnlySeesSpan(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	w := &ClientWindow{Requests: []time.Time{
		now.Add(-50 * time.Second),
		now.Add(-9 * time.Second),
		now.Add(-2 * time.Second),
	}}

	if got := w.RecentCount(now, 10*time.Second); got != 2 {
		t.Fatalf("expected 2 recent requests, got %d", got)
	}
}

func TestClientWindow_DetectSuspicion_Burst(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cfg := Config{Window: time.Minute, Max: 10}

	w := &ClientWindow{}
	for i := 0; i < 9; i++ {
		w.Requests = append(w.Requests, now.Add(-time.Duration(9-i)*time.Second))
	}

	w.DetectSuspicion(now, cfg)
	if !w.Suspicious {
		t.Fatalf("expected suspicion after 9 requests in 10s with max=10")
	}
}

func TestClientWindow_DetectSuspicion_IsSticky(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	cfg := Config{Window: time.Minute, Max: 10}

	w := &ClientWindow{Suspicious: true}
	w.DetectSuspicion(now, cfg)
	if !w.Suspicious {
		t.Fatalf("expected suspicion to stay set")
	}
}

func TestPenaltyDuration_FirstBlockIsBase(t *testing.T) {
	if got := PenaltyDuration(0, false); got != time.Minute {
		t.Fatalf("expected 1m for first block, got %s", got)
	}
}

func TestPenaltyDuration_MonotonicInWarnings(t *testing.T) {
	prev := time.Duration(0)
	for warnings := 0; warnings <= 12; warnings++ {
		got := PenaltyDuration(warnings, false)
		if got < prev {
			t.Fatalf("expected non-decreasing penalty, got %s after %s (warnings=%d)", got, prev, warnings)
		}
		prev = got
	}
}

func TestPenaltyDuration_CapsAt32x(t *testing.T) {
	if got := PenaltyDuration(9, false); got != 32*time.Minute {
		t.Fatalf("expected cap of 32m, got %s", got)
	}
}

func TestPenaltyDuration_SuspicionDoublesForRepeatOffenders(t *testing.T) {
	for warnings := 1; warnings <= 6; warnings++ {
		plain := PenaltyDuration(warnings, false)
		susp := PenaltyDuration(warnings, true)
		if susp != 2*plain {
			t.Fatalf("expected doubled penalty under suspicion (warnings=%d): %s vs %s", warnings, plain, susp)
		}
	}
}

func TestPenaltyDuration_FirstBlockIgnoresSuspicion(t *testing.T) {
	if got := PenaltyDuration(0, true); got != time.Minute {
		t.Fatalf("expected base penalty on first block even when suspicious, got %s", got)
	}
}
