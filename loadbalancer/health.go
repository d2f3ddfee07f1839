package loadbalancer

import (
	"context"
	"sync"
	"time"

	"github.com/Jack-cpu666/rdp-signaling-server/loadbalancer/domain"

	"go.uber.org/zap"
)

// StartHealthChecks dispara a varredura periódica de saúde em background.
// Encerra quando o contexto é cancelado.
func (b *Balancer) StartHealthChecks(ctx context.Context) {
	go func() {
		ticker := time.NewTicker(b.interval)
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				return
			case <-ticker.C:
				b.CheckAllServers(ctx)
			}
		}
	}()
}

// CheckAllServers sonda todos os nós registrados em paralelo (uma goroutine
// por nó, cada uma com seu próprio timeout) e espera a varredura completar.
// Nós removidos durante a varredura têm o resultado descartado.
func (b *Balancer) CheckAllServers(ctx context.Context) {
	type target struct {
		id   string
		addr string
	}

	b.mu.Lock()
	targets := make([]target, 0, len(b.order))
	for _, id := range b.order {
		targets = append(targets, target{id: id, addr: b.nodes[id].Addr()})
	}
	b.mu.Unlock()

	var wg sync.WaitGroup
	for _, t := range targets {
		wg.Add(1)
		go func(id, addr string) {
			defer wg.Done()
			pctx, cancel := context.WithTimeout(ctx, b.probeTimeout)
			defer cancel()
			rt, err := b.prober.Probe(pctx, addr)
			b.applyProbe(id, rt, err == nil)
		}(t.id, t.addr)
	}
	wg.Wait()
}

// applyProbe aplica o resultado de um probe sob o lock do registro e emite
// ServerHealthChanged apenas em transição de estado.
func (b *Balancer) applyProbe(id string, rt time.Duration, healthy bool) {
	b.mu.Lock()
	n, ok := b.nodes[id]
	if !ok {
		b.mu.Unlock()
		return
	}
	transitioned := n.Healthy != healthy
	n.Healthy = healthy
	n.LastHealthCheck = b.clock.Now()
	if rt > 0 {
		n.ResponseTime = rt
	}
	b.mu.Unlock()

	if transitioned {
		b.log.Info("server health changed",
			zap.String("server", id),
			zap.Bool("healthy", healthy),
			zap.Duration("responseTime", rt))
		b.emit(domain.ServerHealthChanged{
			ServerID:     id,
			Healthy:      healthy,
			ResponseTime: rt,
			At:           b.clock.Now(),
		})
	}
}

// ServerStatus particiona os nós registrados por saúde.
type ServerStatus struct {
	Healthy   []string
	Unhealthy []string
	Total     int
}

func (b *Balancer) GetServerStatus() ServerStatus {
	b.mu.Lock()
	defer b.mu.Unlock()

	st := ServerStatus{Total: len(b.order)}
	for _, id := range b.order {
		if b.nodes[id].Healthy {
			st.Healthy = append(st.Healthy, id)
		} else {
			st.Unhealthy = append(st.Unhealthy, id)
		}
	}
	return st
}

// Stats é a visão agregada do balanceador para observabilidade.
type Stats struct {
	Strategy               string
	TotalServers           int
	HealthyServers         int
	TotalActiveConnections int
	// AverageLoad é conexões ativas totais / nós saudáveis; zero sem nós
	// saudáveis.
	AverageLoad    float64
	StickySessions int
}

func (b *Balancer) GetLoadBalancingStats() Stats {
	b.mu.Lock()
	st := Stats{
		Strategy:     b.strategy.Name(),
		TotalServers: len(b.order),
	}
	for _, id := range b.order {
		n := b.nodes[id]
		st.TotalActiveConnections += n.ActiveConnections
		if n.Healthy {
			st.HealthyServers++
		}
	}
	b.mu.Unlock()

	if st.HealthyServers > 0 {
		st.AverageLoad = float64(st.TotalActiveConnections) / float64(st.HealthyServers)
	}
	st.StickySessions = b.sticky.Len()
	return st
}
