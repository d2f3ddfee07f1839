package ratelimit

import (
	"net/http"
	"strings"
	"time"

	"github.com/Jack-cpu666/rdp-signaling-server/middleware/ratelimit/application"
	"github.com/Jack-cpu666/rdp-signaling-server/middleware/ratelimit/domain"
)

// EventFunc extrai o nome do evento de sinalização da requisição.
type EventFunc func(r *http.Request) string

type Options struct {
	Service             *application.ScopedService
	Stats               domain.StatsStore
	IdentityFn          IdentityFunc
	DescriptorHeader    string
	TrustXForwardedFor  bool
	EventFn             EventFunc
	EventHeader         string
	RejectStatus        int
	AddRateLimitHeaders bool
}

// DefaultEventFunc lê o nome do evento de um header; vazio cai no limiter global.
func DefaultEventFunc(eventHeader string) EventFunc {
	return func(r *http.Request) string {
		return strings.TrimSpace(r.Header.Get(eventHeader))
	}
}

// Middleware traduz as decisões de admissão para HTTP: 429 + Retry-After ao
// negar, passagem ao próximo handler ao admitir.
func Middleware(opts Options) func(next http.Handler) http.Handler {
	if opts.RejectStatus == 0 {
		opts.RejectStatus = http.StatusTooManyRequests
	}
	if opts.EventHeader == "" {
		opts.EventHeader = "X-Signal-Event"
	}
	if opts.IdentityFn == nil {
		opts.IdentityFn = DefaultIdentityFunc(opts.DescriptorHeader, opts.TrustXForwardedFor)
	}
	if opts.EventFn == nil {
		opts.EventFn = DefaultEventFunc(opts.EventHeader)
	}

	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if opts.Service == nil {
				next.ServeHTTP(w, r)
				return
			}

			key := opts.IdentityFn(r)
			event := opts.EventFn(r)

			dec := opts.Service.CheckEvent(key, event)
			if opts.Stats != nil {
				_ = opts.Stats.Record(r.Context(), domain.StatsEvent{
					Key:     key,
					Allowed: dec.Allowed,
					Event:   event,
					At:      time.Now(),
				})
			}

			if opts.AddRateLimitHeaders {
				w.Header().Set("X-RateLimit-Identity", string(key))
				if dec.Allowed {
					w.Header().Set("X-RateLimit-Remaining", formatInt(dec.Remaining))
				}
			}

			if !dec.Allowed {
				w.Header().Set("Retry-After", formatInt(retryAfterSeconds(dec.RetryAfter)))
				http.Error(w, http.StatusText(opts.RejectStatus), opts.RejectStatus)
				return
			}

			next.ServeHTTP(w, r)
		})
	}
}
