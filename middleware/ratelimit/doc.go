// Package ratelimit fornece adapters HTTP (net/http) para a admissão de
// tráfego do gateway de sinalização: rate limit por janela deslizante com
// penalidades progressivas e limite de concorrência.
//
// Visão geral (camadas):
//
//   - domain: contratos e tipos do domínio (sem dependência de net/http)
//   - application: casos de uso (decisão por evento com fallback global,
//     propagação de blacklist, acquire/timeout) sem net/http
//   - infra: implementações concretas (janela deslizante, semáforo,
//     persistência de estatísticas), detalhes de infraestrutura
//   - ratelimit (este pacote): middlewares HTTP + derivação de identidade +
//     tradução para status/headers
//
// Fluxo no gateway:
//
//  1. Deriva a identidade do cliente (origem de rede + hash do descritor)
//  2. Resolve o evento de sinalização e chama a camada application
//  3. Se bloqueado, responde 429 com Retry-After em segundos
//  4. Se permitido, chama o próximo handler (seleção de backend + proxy)
//
// Variáveis de ambiente do binário gateway (cmd/gateway) controlam o
// comportamento, como RATE_WINDOW, RATE_MAX, CONCURRENCY_MAX e os limites
// por evento via RATE_EVENTS (ex: RATE_EVENTS="session_create=10").
package ratelimit
