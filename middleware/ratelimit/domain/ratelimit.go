package domain

// Camada de domínio do rate limit.
//
// Regras e contratos (interfaces/tipos) sem dependência de net/http.

import "time"

type Key string

// Config descreve uma política nomeada de janela deslizante.
//
// Max é o número de requisições aceitas dentro de Window. Os flags Skip*
// permitem não contabilizar uma classe de resultado (ex: contar apenas
// tentativas que falharam, ignorando as bem-sucedidas).
type Config struct {
	Window time.Duration
	Max    int

	SkipSuccessful bool
	SkipFailed     bool
}

// Limiter representa algo que pode decidir se uma ação é permitida agora.
//
// success indica a classe de resultado da ação; só é consultado quando a
// política configura SkipSuccessful/SkipFailed.
type Limiter interface {
	Check(key Key, success bool) Decision
	Blacklist(key Key, d time.Duration)
	Stats() LimiterStats
}

type Decision struct {
	Allowed bool
	// Remaining é quantas requisições ainda cabem na janela atual.
	Remaining int
	// RetryAfter é o valor a ser retornado em Retry-After quando bloquear.
	// Se 0, não há recomendação.
	RetryAfter time.Duration
}

// ClientStats é a visão administrativa de um cliente específico.
type ClientStats struct {
	Requests      int
	Blocked       bool
	BlockedUntil  time.Time
	Warnings      int
	TotalRequests int64
	Suspicious    bool
}

// LimiterStats agrega o estado de um limiter inteiro.
type LimiterStats struct {
	Clients       int
	Blocked       int
	Suspicious    int
	TotalRequests int64
}
