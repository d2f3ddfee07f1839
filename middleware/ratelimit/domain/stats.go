package domain

import (
	"context"
	"time"
)

// StatsEvent representa uma decisão de admissão tomada pelo rate limit.
//
// Event é o nome da operação de sinalização (ex: "session-create"), ou vazio
// quando a decisão veio do limiter global.
//
// Observação: cuidado com cardinalidade (ex.: salvar Key sem controle pode
// explodir o número de chaves em uma base como Redis).
type StatsEvent struct {
	Key     Key
	Allowed bool

	Event string

	At time.Time
}

// StatsStore é a estratégia de persistência para estatísticas de admissão.
//
// Implementações podem armazenar em Redis, memória, etc.
// O middleware deve tratar erro como best-effort (não derrubar request).
type StatsStore interface {
	Record(ctx context.Context, ev StatsEvent) error
}
