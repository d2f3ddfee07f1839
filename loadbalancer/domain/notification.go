package domain

import "time"

// Conjunto fechado de notificações do balanceador. Consumidores fazem
// type-switch sobre as variantes em vez de comparar nomes de evento.

type Notification interface {
	notification()
}

// ServerHealthChanged é emitida apenas em transição de estado de saúde
// (saudável -> não-saudável ou vice-versa), não a cada probe.
type ServerHealthChanged struct {
	ServerID     string
	Healthy      bool
	ResponseTime time.Duration
	At           time.Time
}

// CircuitOpened: o breaker do nó atingiu o limite de falhas.
type CircuitOpened struct {
	ServerID string
	Failures int
}

// CircuitClosed: um sucesso em half-open fechou o breaker.
type CircuitClosed struct {
	ServerID string
}

// NoServerAvailable: a estratégia ativa não encontrou nó selecionável.
// O chamador deve tratar como exaustão de capacidade (retryable), não como
// erro de nó.
type NoServerAvailable struct {
	Strategy string
}

func (ServerHealthChanged) notification() {}
func (CircuitOpened) notification()       {}
func (CircuitClosed) notification()       {}
func (NoServerAvailable) notification()   {}

// Listener recebe as notificações. nil é aceito em toda a API (descarta).
type Listener func(Notification)
