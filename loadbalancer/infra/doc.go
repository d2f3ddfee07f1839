// Package infra contém implementações concretas (infraestrutura) para os
// contratos definidos no pacote domain do balanceador.
//
// Exemplos:
//   - RoundRobin / LeastConnections / WeightedRoundRobin / PerformanceBased:
//     o conjunto fechado de estratégias de seleção
//   - HTTPProber: checagem de saúde com timeout e pacing de saída
package infra
