package infra

import (
	"sync"

	"github.com/Jack-cpu666/rdp-signaling-server/loadbalancer/domain"
)

type wrrEntry struct {
	node      *domain.Node
	remaining int
}

// WeightedRoundRobin mantém uma fila interna de {nó, peso restante},
// reconciliada a cada chamada contra o conjunto selecionável vivo: entradas
// obsoletas saem, nós novos entram com remaining = weight, entradas
// existentes são atualizadas com os dados mais recentes do nó.
//
// Dentro de um ciclo completo (soma dos pesos chamadas), cada nó é escolhido
// exatamente weight vezes.
type WeightedRoundRobin struct {
	mu      sync.Mutex
	entries []wrrEntry
}

func NewWeightedRoundRobin() *WeightedRoundRobin { return &WeightedRoundRobin{} }

func (s *WeightedRoundRobin) Name() string { return "weighted-round-robin" }

func (s *WeightedRoundRobin) SelectServer(nodes []*domain.Node) *domain.Node {
	candidates := selectable(nodes)
	if len(candidates) == 0 {
		return nil
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	s.reconcile(candidates)
	if len(s.entries) == 0 {
		return nil
	}

	for i := range s.entries {
		if s.entries[i].remaining > 0 {
			s.entries[i].remaining--
			return s.entries[i].node
		}
	}

	// ciclo esgotado: recarrega todos os pesos e recomeça pela primeira entrada
	for i := range s.entries {
		s.entries[i].remaining = s.entries[i].node.Weight
	}
	s.entries[0].remaining--
	return s.entries[0].node
}

// reconcile alinha a fila com o conjunto selecionável atual, preservando o
// peso restante de quem continua presente.
func (s *WeightedRoundRobin) reconcile(candidates []*domain.Node) {
	byID := make(map[string]*domain.Node, len(candidates))
	for _, n := range candidates {
		byID[n.ID] = n
	}

	kept := s.entries[:0]
	seen := make(map[string]struct{}, len(candidates))
	for _, e := range s.entries {
		n, ok := byID[e.node.ID]
		if !ok {
			continue
		}
		e.node = n
		kept = append(kept, e)
		seen[n.ID] = struct{}{}
	}

	for _, n := range candidates {
		if _, ok := seen[n.ID]; ok {
			continue
		}
		kept = append(kept, wrrEntry{node: n, remaining: n.Weight})
	}
	s.entries = kept
}
