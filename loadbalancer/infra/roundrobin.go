package infra

import (
	"sync"

	"github.com/Jack-cpu666/rdp-signaling-server/loadbalancer/domain"
)

// RoundRobin cicla um contador de posição sobre a lista filtrada de nós
// selecionáveis.
//
// O contador é relativo à ordem da lista filtrada, que muda de forma quando
// nós entram/saem ou mudam de saúde: uma alteração de membership pode pular
// ou repetir um nó uma vez. Isso é uma escolha de implementação, não um
// contrato de rotação.
type RoundRobin struct {
	mu   sync.Mutex
	next int
}

func NewRoundRobin() *RoundRobin { return &RoundRobin{} }

func (s *RoundRobin) Name() string { return "round-robin" }

func (s *RoundRobin) SelectServer(nodes []*domain.Node) *domain.Node {
	candidates := selectable(nodes)
	if len(candidates) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	n := candidates[s.next%len(candidates)]
	s.next++
	return n
}

// selectable filtra os nós aptos a receber trabalho, preservando a ordem.
func selectable(nodes []*domain.Node) []*domain.Node {
	out := make([]*domain.Node, 0, len(nodes))
	for _, n := range nodes {
		if n.Selectable() {
			out = append(out, n)
		}
	}
	return out
}
