package application

import (
	"sync"
	"time"

	"github.com/Jack-cpu666/rdp-signaling-server/middleware/ratelimit/domain"
)

// ScopedService compõe um limiter global com limiters dedicados por evento de
// sinalização (ex: uma política mais estrita para "session-create").
//
// Ele não sabe nada sobre HTTP (headers/status), apenas retorna decisões.
// Todos os caminhos usam a mesma identidade derivada do cliente, então o
// mesmo cliente físico é reconhecido em qualquer evento.
type ScopedService struct {
	Global domain.Limiter

	mu     sync.Mutex
	events map[string]domain.Limiter
}

func NewScopedService(global domain.Limiter) *ScopedService {
	return &ScopedService{
		Global: global,
		events: make(map[string]domain.Limiter),
	}
}

// RegisterEvent associa um limiter dedicado a um nome de evento.
// Eventos sem limiter registrado caem no global.
func (s *ScopedService) RegisterEvent(event string, lim domain.Limiter) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events[event] = lim
}

// CheckEvent decide a admissão de um evento para a identidade dada.
func (s *ScopedService) CheckEvent(key domain.Key, event string) domain.Decision {
	return s.CheckEventOutcome(key, event, true)
}

// CheckEventOutcome é CheckEvent com a classe de resultado explícita, para
// políticas que configuram SkipSuccessful/SkipFailed.
func (s *ScopedService) CheckEventOutcome(key domain.Key, event string, success bool) domain.Decision {
	lim := s.limiterFor(event)
	if lim == nil {
		return domain.Decision{Allowed: true}
	}
	return lim.Check(key, success)
}

// BlacklistIdentity propaga o bloqueio forçado para o global e para todos os
// limiters de evento.
func (s *ScopedService) BlacklistIdentity(key domain.Key, d time.Duration) {
	if s.Global != nil {
		s.Global.Blacklist(key, d)
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for _, lim := range s.events {
		lim.Blacklist(key, d)
	}
}

// Stats agrega as estatísticas de todos os limiters, com o global sob a
// chave "global".
func (s *ScopedService) Stats() map[string]domain.LimiterStats {
	out := make(map[string]domain.LimiterStats)
	if s.Global != nil {
		out["global"] = s.Global.Stats()
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	for event, lim := range s.events {
		out[event] = lim.Stats()
	}
	return out
}

func (s *ScopedService) limiterFor(event string) domain.Limiter {
	s.mu.Lock()
	defer s.mu.Unlock()
	if lim, ok := s.events[event]; ok {
		return lim
	}
	return s.Global
}
