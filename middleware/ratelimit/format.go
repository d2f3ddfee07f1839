// utilitário pequeno para formatação rápida/consistente de valores em headers.
//    Evita puxar fmt (que é mais “pesado” e genérico) só para formatação simples
//    e padroniza a truncagem do hash de identidade.

package ratelimit

import (
	"strconv"
	"time"
)

func formatInt(v int) string { return strconv.Itoa(v) }

// retryAfterSeconds arredonda para cima, nunca abaixo de 1s: um Retry-After
// de 0 faria o cliente tentar de novo imediatamente.
func retryAfterSeconds(d time.Duration) int {
	if d <= 0 {
		return 1
	}
	s := int((d + time.Second - 1) / time.Second)
	if s < 1 {
		return 1
	}
	return s
}

// formatHash trunca o hash de 64 bits para 8 caracteres hexadecimais:
// suficiente para distinguir descritores sem guardar o valor bruto.
func formatHash(v uint64) string {
	s := strconv.FormatUint(v, 16)
	if len(s) > 8 {
		s = s[:8]
	}
	return s
}
