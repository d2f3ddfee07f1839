package infra

import (
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// HTTPProber checa a alcançabilidade de um backend via GET no endpoint de
// saúde. Qualquer resposta não-2xx ou timeout conta igualmente como falha.
//
// O pacer (token bucket) limita a vazão de probes de saída, para que uma
// varredura com muitos nós não chegue como rajada no pool de backends.
type HTTPProber struct {
	client *http.Client
	path   string
	pacer  *rate.Limiter
}

type ProberOption func(*HTTPProber)

func WithProbePath(path string) ProberOption {
	return func(p *HTTPProber) { p.path = path }
}

// WithProbePacing limita os probes de saída a rps com a rajada dada.
func WithProbePacing(rps float64, burst int) ProberOption {
	return func(p *HTTPProber) { p.pacer = rate.NewLimiter(rate.Limit(rps), burst) }
}

// NewHTTPProber cria um prober com o timeout dado (obrigatório: um probe
// nunca pode segurar a varredura indefinidamente).
func NewHTTPProber(timeout time.Duration, opts ...ProberOption) *HTTPProber {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	p := &HTTPProber{
		client: &http.Client{Timeout: timeout},
		path:   "/healthz",
	}
	for _, opt := range opts {
		opt(p)
	}
	return p
}

// Probe mede o tempo de resposta do endpoint de saúde de addr (host:porta).
// Retorna o tempo decorrido mesmo em falha, para registro.
func (p *HTTPProber) Probe(ctx context.Context, addr string) (time.Duration, error) {
	if p.pacer != nil {
		if err := p.pacer.Wait(ctx); err != nil {
			return 0, err
		}
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, "http://"+addr+p.path, nil)
	if err != nil {
		return 0, err
	}

	start := time.Now()
	resp, err := p.client.Do(req)
	elapsed := time.Since(start)
	if err != nil {
		return elapsed, err
	}
	defer func() {
		_, _ = io.Copy(io.Discard, resp.Body)
		_ = resp.Body.Close()
	}()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		return elapsed, errors.New("health probe: unexpected status " + resp.Status)
	}
	return elapsed, nil
}
