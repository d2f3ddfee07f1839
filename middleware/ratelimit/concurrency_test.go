package ratelimit

import (
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"
)

// heldForward simula o encaminhamento de um pareamento que ocupa a vaga até
// o teste liberar.
type heldForward struct {
	entered chan struct{}
	release chan struct{}
	once    sync.Once
}

func newHeldForward() *heldForward {
	return &heldForward{entered: make(chan struct{}), release: make(chan struct{})}
}

func (f *heldForward) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.once.Do(func() { close(f.entered) })
	<-f.release
	w.WriteHeader(http.StatusOK)
}

func forwardSignal(h http.Handler) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	h.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "http://gateway/signal", nil))
	return w
}

func TestConcurrencyMiddleware_RejectsPairingWhenPoolExhausted(t *testing.T) {
	forward := newHeldForward()
	h := ConcurrencyMiddleware(ConcurrencyOptions{
		Max:            1,
		AcquireTimeout: 25 * time.Millisecond,
	})(forward)

	firstDone := make(chan *httptest.ResponseRecorder, 1)
	go func() { firstDone <- forwardSignal(h) }()

	select {
	case <-forward.entered:
	case <-time.After(200 * time.Millisecond):
		close(forward.release)
		t.Fatalf("timeout waiting the first pairing to occupy the slot")
	}

	// segundo pareamento com a única vaga ocupada: rejeitado no status padrão
	if w := forwardSignal(h); w.Code != http.StatusServiceUnavailable {
		close(forward.release)
		t.Fatalf("expected 503 while the pool is exhausted, got %d", w.Code)
	}

	close(forward.release)
	if w := <-firstDone; w.Code != http.StatusOK {
		t.Fatalf("expected held pairing to complete with 200, got %d", w.Code)
	}
}

func TestConcurrencyMiddleware_SlotFreedAfterPairingCompletes(t *testing.T) {
	forward := newHeldForward()
	h := ConcurrencyMiddleware(ConcurrencyOptions{
		Max:            1,
		AcquireTimeout: 25 * time.Millisecond,
	})(forward)

	firstDone := make(chan *httptest.ResponseRecorder, 1)
	go func() { firstDone <- forwardSignal(h) }()

	select {
	case <-forward.entered:
	case <-time.After(200 * time.Millisecond):
		close(forward.release)
		t.Fatalf("timeout waiting the first pairing to occupy the slot")
	}
	close(forward.release)
	<-firstDone

	// a vaga voltou ao pool: o próximo pareamento entra direto
	if w := forwardSignal(h); w.Code != http.StatusOK {
		t.Fatalf("expected freed slot to admit the next pairing, got %d", w.Code)
	}
}

func TestConcurrencyMiddleware_CustomRejectStatus(t *testing.T) {
	forward := newHeldForward()
	h := ConcurrencyMiddleware(ConcurrencyOptions{
		Max:            1,
		RejectStatus:   http.StatusTooManyRequests,
		AcquireTimeout: 10 * time.Millisecond,
	})(forward)

	firstDone := make(chan *httptest.ResponseRecorder, 1)
	go func() { firstDone <- forwardSignal(h) }()
	<-forward.entered

	if w := forwardSignal(h); w.Code != http.StatusTooManyRequests {
		close(forward.release)
		t.Fatalf("expected configured reject status, got %d", w.Code)
	}

	close(forward.release)
	<-firstDone
}

func TestConcurrencyMiddleware_ZeroMaxDisablesTheCap(t *testing.T) {
	next := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
	})
	h := ConcurrencyMiddleware(ConcurrencyOptions{Max: 0})(next)

	for i := 0; i < 3; i++ {
		if w := forwardSignal(h); w.Code != http.StatusOK {
			t.Fatalf("expected passthrough without a cap, got %d", w.Code)
		}
	}
}
