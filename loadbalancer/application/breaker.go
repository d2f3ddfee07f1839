package application

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
)

// Estado do circuit breaker de um nó. Independente do estado de saúde: o
// breaker reage a falhas de despacho, o health check a probes.
type BreakerState int

const (
	BreakerClosed BreakerState = iota
	BreakerOpen
	BreakerHalfOpen
)

func (s BreakerState) String() string {
	switch s {
	case BreakerOpen:
		return "open"
	case BreakerHalfOpen:
		return "half-open"
	default:
		return "closed"
	}
}

const (
	DefaultFailureThreshold = 5
	DefaultCooldown         = 60 * time.Second
)

type breakerEntry struct {
	failures    int
	lastFailure time.Time
	state       BreakerState
}

// BreakerTable mantém um breaker por nó, com ciclo
// closed -> open (threshold) -> half-open (cooldown) -> closed (sucesso).
//
// Os métodos devolvem a transição ocorrida em vez de notificar diretamente;
// quem emite as notificações é o Balancer.
type BreakerTable struct {
	mu        sync.Mutex
	clock     clockwork.Clock
	threshold int
	cooldown  time.Duration
	entries   map[string]*breakerEntry
}

type BreakerOption func(*BreakerTable)

func WithBreakerClock(c clockwork.Clock) BreakerOption {
	return func(t *BreakerTable) { t.clock = c }
}

func WithFailureThreshold(n int) BreakerOption {
	return func(t *BreakerTable) { t.threshold = n }
}

func WithCooldown(d time.Duration) BreakerOption {
	return func(t *BreakerTable) { t.cooldown = d }
}

func NewBreakerTable(opts ...BreakerOption) *BreakerTable {
	t := &BreakerTable{
		clock:     clockwork.NewRealClock(),
		threshold: DefaultFailureThreshold,
		cooldown:  DefaultCooldown,
		entries:   make(map[string]*breakerEntry),
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// RecordFailure registra uma falha de despacho no nó. Retorna se esta falha
// abriu o breaker e o total acumulado.
func (t *BreakerTable) RecordFailure(id string) (opened bool, failures int) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e := t.entry(id)
	e.lastFailure = t.clock.Now()

	switch e.state {
	case BreakerHalfOpen:
		// qualquer falha em half-open reabre; a contagem recomeça nesta falha
		e.state = BreakerOpen
		e.failures = 1
		return true, e.failures
	case BreakerClosed:
		e.failures++
		if e.failures >= t.threshold {
			e.state = BreakerOpen
			return true, e.failures
		}
		return false, e.failures
	default: // já aberto
		e.failures++
		return false, e.failures
	}
}

// RecordSuccess fecha o breaker quando em half-open; em closed/open não tem
// efeito. Retorna se houve transição para closed.
func (t *BreakerTable) RecordSuccess(id string) (closed bool) {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok || e.state != BreakerHalfOpen {
		return false
	}
	e.state = BreakerClosed
	e.failures = 0
	return true
}

// IsOpen diz se o nó deve ficar fora de rota agora. A própria consulta faz a
// transição open -> half-open após o cooldown sem novas falhas.
func (t *BreakerTable) IsOpen(id string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return false
	}
	if e.state == BreakerOpen && t.clock.Now().Sub(e.lastFailure) >= t.cooldown {
		e.state = BreakerHalfOpen
		e.failures = 0
	}
	return e.state == BreakerOpen
}

// State expõe o estado atual sem disparar transições (visão administrativa).
func (t *BreakerTable) State(id string) BreakerState {
	t.mu.Lock()
	defer t.mu.Unlock()

	e, ok := t.entries[id]
	if !ok {
		return BreakerClosed
	}
	return e.state
}

func (t *BreakerTable) entry(id string) *breakerEntry {
	e, ok := t.entries[id]
	if !ok {
		e = &breakerEntry{}
		t.entries[id] = e
	}
	return e
}
