package ratelimit

import (
	"net"
	"net/http"
	"strings"

	"github.com/Jack-cpu666/rdp-signaling-server/middleware/ratelimit/domain"

	"github.com/cespare/xxhash/v2"
)

type IdentityFunc func(r *http.Request) domain.Key

// DefaultIdentityFunc deriva uma identidade estável do cliente: origem de rede
// + hash truncado de um descritor fornecido pelo cliente (por padrão o
// User-Agent). O descritor bruto nunca é armazenado; o hash mantém a
// identidade consistente entre requisições do mesmo cliente físico.
func DefaultIdentityFunc(descriptorHeader string, trustXFF bool) IdentityFunc {
	if descriptorHeader == "" {
		descriptorHeader = "User-Agent"
	}

	return func(r *http.Request) domain.Key {
		origin := clientOrigin(r, trustXFF)
		desc := strings.TrimSpace(r.Header.Get(descriptorHeader))
		return domain.Key(origin + "#" + formatHash(xxhash.Sum64String(desc)))
	}
}

func clientOrigin(r *http.Request, trustXFF bool) string {
	if trustXFF {
		// pega o primeiro IP do X-Forwarded-For (cliente original)
		if xff := r.Header.Get("X-Forwarded-For"); xff != "" {
			parts := strings.Split(xff, ",")
			if len(parts) > 0 {
				ip := strings.TrimSpace(parts[0])
				if ip != "" {
					return ip
				}
			}
		}
	}

	// fallback: RemoteAddr
	host, _, err := net.SplitHostPort(strings.TrimSpace(r.RemoteAddr))
	if err == nil && host != "" {
		return host
	}
	if r.RemoteAddr != "" {
		return r.RemoteAddr
	}
	return "unknown"
}
