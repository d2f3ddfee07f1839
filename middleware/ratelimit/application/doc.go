// Package application contém os casos de uso (regras de aplicação) para o
// controle de admissão: decisão por evento com fallback global, propagação de
// blacklist e limite de concorrência.
//
// Ele depende apenas do pacote domain e não conhece net/http.
// Ex.: ScopedService.CheckEvent(key, event) retorna uma Decision (allow/deny + retry-after).
package application
