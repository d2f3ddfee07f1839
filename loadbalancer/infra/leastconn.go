package infra

import "github.com/Jack-cpu666/rdp-signaling-server/loadbalancer/domain"

// LeastConnections devolve o nó selecionável com menos conexões ativas.
// Empates ficam com o primeiro encontrado na ordem da lista.
type LeastConnections struct{}

func NewLeastConnections() *LeastConnections { return &LeastConnections{} }

func (s *LeastConnections) Name() string { return "least-connections" }

func (s *LeastConnections) SelectServer(nodes []*domain.Node) *domain.Node {
	var chosen *domain.Node
	for _, n := range nodes {
		if !n.Selectable() {
			continue
		}
		if chosen == nil || n.ActiveConnections < chosen.ActiveConnections {
			chosen = n
		}
	}
	return chosen
}
