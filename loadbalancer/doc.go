// Package loadbalancer distribui pareamentos de sinalização entre um pool
// dinâmico de backends.
//
// A fachada Balancer amarra as camadas: registro de nós e varredura de saúde
// (este pacote), circuit breakers e afinidade de sessão (application), e o
// conjunto fechado de estratégias de seleção (infra).
//
// Fluxo de seleção por requisição:
//
//	afinidade de sessão -> filtro selecionável+breaker -> estratégia ativa
//
// Um retorno nil de SelectServer significa exaustão de capacidade do pool
// (o chamador deve responder retryable), nunca falha de um nó específico.
package loadbalancer
