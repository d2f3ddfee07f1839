package application

import "sync"

// StickyTable mantém a afinidade sessão -> nó. As entradas são ponteiros
// consultivos, não posse: quem decide se o alvo ainda serve (e remove a
// entrada obsoleta) é o Balancer.
type StickyTable struct {
	mu       sync.Mutex
	sessions map[string]string
}

func NewStickyTable() *StickyTable {
	return &StickyTable{sessions: make(map[string]string)}
}

// Assign registra (ou sobrescreve) a afinidade da sessão.
func (t *StickyTable) Assign(sessionID, serverID string) {
	t.mu.Lock()
	defer t.mu.Unlock()
	t.sessions[sessionID] = serverID
}

// Lookup retorna o nó associado, se houver.
func (t *StickyTable) Lookup(sessionID string) (string, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	id, ok := t.sessions[sessionID]
	return id, ok
}

// Evict remove a afinidade da sessão. Retorna false se não existia.
func (t *StickyTable) Evict(sessionID string) bool {
	t.mu.Lock()
	defer t.mu.Unlock()
	if _, ok := t.sessions[sessionID]; !ok {
		return false
	}
	delete(t.sessions, sessionID)
	return true
}

func (t *StickyTable) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return len(t.sessions)
}
