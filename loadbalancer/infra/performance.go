package infra

import "github.com/Jack-cpu666/rdp-signaling-server/loadbalancer/domain"

// PerformanceBased calcula um score composto por nó selecionável (menor é
// melhor) e devolve o mínimo. Empates ficam com o primeiro encontrado.
type PerformanceBased struct{}

func NewPerformanceBased() *PerformanceBased { return &PerformanceBased{} }

func (s *PerformanceBased) Name() string { return "performance" }

func (s *PerformanceBased) SelectServer(nodes []*domain.Node) *domain.Node {
	var chosen *domain.Node
	var best float64
	for _, n := range nodes {
		if !n.Selectable() {
			continue
		}
		sc := Score(n)
		if chosen == nil || sc < best {
			chosen = n
			best = sc
		}
	}
	return chosen
}

// Score pondera CPU, memória, ocupação de conexões e tempo de resposta
// (saturado em 1s). CPU/memória em percentual [0..100].
func Score(n *domain.Node) float64 {
	occupancy := float64(n.ActiveConnections) / float64(n.MaxConnections)
	rt := n.ResponseTime.Seconds()
	if rt > 1 {
		rt = 1
	}
	return 0.3*n.CPUUsage + 0.3*n.MemoryUsage + 0.2*100*occupancy + 0.2*100*rt
}
