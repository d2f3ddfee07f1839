package infra

import (
	"sync"
	"time"

	"github.com/Jack-cpu666/rdp-signaling-server/middleware/ratelimit/domain"

	"github.com/jonboulle/clockwork"
)

// WindowStore é a implementação de infra do rate limit por janela deslizante,
// com penalidades progressivas, cache por chave e limpeza periódica.
//
// O relógio é injetável (clockwork) para que bloqueio/penalidade sejam
// testáveis sem sleep.
type WindowStore struct {
	mu           sync.Mutex
	cfg          domain.Config
	clock        clockwork.Clock
	entries      map[domain.Key]*domain.ClientWindow
	cleanupEvery time.Duration
}

type WindowStoreOption func(*WindowStore)

func WithClock(c clockwork.Clock) WindowStoreOption {
	return func(s *WindowStore) { s.clock = c }
}

func WithCleanupEvery(d time.Duration) WindowStoreOption {
	return func(s *WindowStore) { s.cleanupEvery = d }
}

func NewWindowStore(cfg domain.Config, opts ...WindowStoreOption) *WindowStore {
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.Max <= 0 {
		cfg.Max = 100
	}
	s := &WindowStore{
		cfg:          cfg,
		clock:        clockwork.NewRealClock(),
		entries:      make(map[domain.Key]*domain.ClientWindow),
		cleanupEvery: cfg.Window,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *WindowStore) Window() time.Duration       { return s.cfg.Window }
func (s *WindowStore) Max() int                    { return s.cfg.Max }
func (s *WindowStore) CleanupEvery() time.Duration { return s.cleanupEvery }

// Check implementa domain.Limiter.
//
// Sequência: desbloqueio preguiçoso -> skip por classe de resultado -> poda da
// janela -> detecção de suspeita -> decisão. O desbloqueio é avaliado aqui
// (na próxima checagem), não por timer.
func (s *WindowStore) Check(key domain.Key, success bool) domain.Decision {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	w := s.window(key, now)
	w.LastSeen = now

	if w.Blocked {
		if now.Before(w.BlockedUntil) {
			return domain.Decision{Allowed: false, RetryAfter: w.BlockedUntil.Sub(now)}
		}
		// bloqueio expirou: limpa e recomeça a janela do zero
		w.Blocked = false
		w.BlockedUntil = time.Time{}
		w.Requests = w.Requests[:0]
	}

	if (s.cfg.SkipSuccessful && success) || (s.cfg.SkipFailed && !success) {
		w.Prune(now, s.cfg.Window)
		return domain.Decision{Allowed: true, Remaining: s.cfg.Max - len(w.Requests)}
	}

	w.Prune(now, s.cfg.Window)
	w.TotalRequests++
	w.DetectSuspicion(now, s.cfg)

	if len(w.Requests) >= s.cfg.Max {
		// penalidade calculada com o histórico anterior a este bloqueio
		d := domain.PenaltyDuration(w.Warnings, w.Suspicious)
		w.Blocked = true
		w.BlockedUntil = now.Add(d)
		w.Warnings++
		return domain.Decision{Allowed: false, RetryAfter: d}
	}

	w.Requests = append(w.Requests, now)
	return domain.Decision{Allowed: true, Remaining: s.cfg.Max - len(w.Requests)}
}

// Blacklist força um bloqueio pela duração dada, ignorando o histórico.
// O cliente também fica marcado como suspeito até um whitelist explícito.
func (s *WindowStore) Blacklist(key domain.Key, d time.Duration) {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	w := s.window(key, now)
	w.Blocked = true
	w.BlockedUntil = now.Add(d)
	w.Suspicious = true
	w.LastSeen = now
}

// Whitelist descarta todo o estado do cliente: bloqueio, warnings, suspeita
// e histórico de requisições.
func (s *WindowStore) Whitelist(key domain.Key) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.entries, key)
}

func (s *WindowStore) IsBlocked(key domain.Key) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.entries[key]
	if !ok {
		return false
	}
	return w.Blocked && s.clock.Now().Before(w.BlockedUntil)
}

func (s *WindowStore) ClientStats(key domain.Key) (domain.ClientStats, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()

	w, ok := s.entries[key]
	if !ok {
		return domain.ClientStats{}, false
	}
	return domain.ClientStats{
		Requests:      len(w.Requests),
		Blocked:       w.Blocked,
		BlockedUntil:  w.BlockedUntil,
		Warnings:      w.Warnings,
		TotalRequests: w.TotalRequests,
		Suspicious:    w.Suspicious,
	}, true
}

func (s *WindowStore) Stats() domain.LimiterStats {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	st := domain.LimiterStats{Clients: len(s.entries)}
	for _, w := range s.entries {
		if w.Blocked && now.Before(w.BlockedUntil) {
			st.Blocked++
		}
		if w.Suspicious {
			st.Suspicious++
		}
		st.TotalRequests += w.TotalRequests
	}
	return st
}

// Cleanup remove clientes ociosos há mais de três janelas (e não bloqueados).
// Bloqueios já expirados são desfeitos de forma oportunista.
func (s *WindowStore) Cleanup() {
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.clock.Now()
	idleCutoff := now.Add(-3 * s.cfg.Window)
	for key, w := range s.entries {
		if w.Blocked && !now.Before(w.BlockedUntil) {
			w.Blocked = false
			w.BlockedUntil = time.Time{}
			w.Requests = w.Requests[:0]
		}
		if !w.Blocked && w.LastSeen.Before(idleCutoff) {
			delete(s.entries, key)
		}
	}
}

// StartJanitor inicia uma goroutine que limpa clientes inativos periodicamente.
// Pare cancelando o contexto.
func (s *WindowStore) StartJanitor(ctx DoneContext) {
	if s.cleanupEvery <= 0 {
		return
	}

	t := time.NewTicker(s.cleanupEvery)
	go func() {
		defer t.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-t.C:
				s.Cleanup()
			}
		}
	}()
}

// window retorna o registro da chave, criando-o de forma preguiçosa na
// primeira observação do cliente.
func (s *WindowStore) window(key domain.Key, now time.Time) *domain.ClientWindow {
	w, ok := s.entries[key]
	if !ok {
		w = &domain.ClientWindow{LastSeen: now}
		s.entries[key] = w
	}
	return w
}

// DoneContext é o mínimo necessário para aceitar context.Context sem importar context aqui.
// (Permite reuso em libs sem acoplar.)
type DoneContext interface {
	Done() <-chan struct{}
}
