package domain

import "time"

// Penalidades progressivas aplicadas quando um cliente estoura a janela.
//
// A base dobra a cada bloqueio anterior (warnings), com teto de 32x, e dobra
// de novo quando o cliente já foi marcado como suspeito.
const (
	PenaltyBase = time.Minute

	// janela curta usada pela detecção de rajada
	suspicionSpan = 10 * time.Second

	suspicionBurstRatio  = 0.8
	suspicionWindowRatio = 0.9
)

// ClientWindow é o registro por cliente de uma janela deslizante: timestamps
// recentes, estado de bloqueio e histórico de punições.
//
// É dado puro; quem serializa o acesso é o dono (a store da camada infra).
type ClientWindow struct {
	// Requests mantém os timestamps dentro da janela atual, em ordem
	// estritamente crescente.
	Requests []time.Time

	Blocked      bool
	BlockedUntil time.Time

	// Warnings conta quantas vezes o cliente já foi bloqueado. Nunca decresce,
	// exceto por whitelist explícito (que descarta o registro inteiro).
	Warnings int

	// TotalRequests nunca é zerado pela limpeza periódica.
	TotalRequests int64

	// Suspicious é pegajoso: uma vez marcado, só whitelist limpa.
	Suspicious bool

	LastSeen time.Time
}

// Prune descarta os timestamps fora de [now-window, now].
func (w *ClientWindow) Prune(now time.Time, window time.Duration) {
	cutoff := now.Add(-window)
	i := 0
	for i < len(w.Requests) && !w.Requests[i].After(cutoff) {
		i++
	}
	if i > 0 {
		w.Requests = append(w.Requests[:0], w.Requests[i:]...)
	}
}

// RecentCount conta os timestamps dentro de [now-span, now].
func (w *ClientWindow) RecentCount(now time.Time, span time.Duration) int {
	cutoff := now.Add(-span)
	n := 0
	for i := len(w.Requests) - 1; i >= 0; i-- {
		if !w.Requests[i].After(cutoff) {
			break
		}
		n++
	}
	return n
}

// DetectSuspicion marca o cliente como suspeito quando o comportamento indica
// rajada (mais de 80% do limite em 10s) ou saturação da janela (mais de 90%
// do limite). A marca nunca é limpa por este caminho.
func (w *ClientWindow) DetectSuspicion(now time.Time, cfg Config) {
	if w.Suspicious {
		return
	}
	if float64(w.RecentCount(now, suspicionSpan)) > suspicionBurstRatio*float64(cfg.Max) {
		w.Suspicious = true
		return
	}
	if float64(len(w.Requests)) > suspicionWindowRatio*float64(cfg.Max) {
		w.Suspicious = true
	}
}

// PenaltyDuration calcula o tempo de bloqueio para um cliente com o histórico
// dado. Cresce exponencialmente com warnings (teto 32x a base) e dobra quando
// um reincidente já está marcado como suspeito.
//
// O primeiro bloqueio (warnings=0) é sempre a base: a marca de suspeita só
// pesa a partir da reincidência.
func PenaltyDuration(warnings int, suspicious bool) time.Duration {
	m := warnings
	if m > 5 {
		m = 5
	}
	d := PenaltyBase << uint(m)
	if suspicious && warnings > 0 {
		d *= 2
	}
	return d
}
