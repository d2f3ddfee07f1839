package loadbalancer

import (
	"context"
	"sync"
	"time"

	"github.com/Jack-cpu666/rdp-signaling-server/loadbalancer/application"
	"github.com/Jack-cpu666/rdp-signaling-server/loadbalancer/domain"
	"github.com/Jack-cpu666/rdp-signaling-server/loadbalancer/infra"

	"github.com/jonboulle/clockwork"
	"go.uber.org/zap"
)

// Prober é a checagem de alcançabilidade de um backend. Implementação padrão:
// infra.HTTPProber.
type Prober interface {
	Probe(ctx context.Context, addr string) (time.Duration, error)
}

// Balancer é a fachada do balanceamento: registro de nós, estratégia ativa,
// circuit breakers, afinidade de sessão e a varredura periódica de saúde.
//
// Toda mutação de registro passa pelo mutex interno (disciplina de escritor
// único); os probes são o único ponto genuinamente concorrente.
type Balancer struct {
	mu       sync.Mutex
	nodes    map[string]*domain.Node
	order    []string // ordem de registro, para iteração determinística
	strategy domain.Strategy

	breakers *application.BreakerTable
	sticky   *application.StickyTable

	prober       Prober
	interval     time.Duration
	probeTimeout time.Duration

	clock    clockwork.Clock
	log      *zap.Logger
	listener domain.Listener
}

type Option func(*Balancer)

func WithStrategy(s domain.Strategy) Option {
	return func(b *Balancer) { b.strategy = s }
}

func WithProber(p Prober) Option {
	return func(b *Balancer) { b.prober = p }
}

func WithHealthInterval(d time.Duration) Option {
	return func(b *Balancer) { b.interval = d }
}

func WithProbeTimeout(d time.Duration) Option {
	return func(b *Balancer) { b.probeTimeout = d }
}

func WithClock(c clockwork.Clock) Option {
	return func(b *Balancer) { b.clock = c }
}

func WithLogger(log *zap.Logger) Option {
	return func(b *Balancer) { b.log = log }
}

// WithListener registra o callback que recebe o conjunto fechado de
// notificações (domain.Notification).
func WithListener(l domain.Listener) Option {
	return func(b *Balancer) { b.listener = l }
}

// WithBreakerTable injeta uma tabela de breakers configurada (thresholds e
// relógio próprios).
func WithBreakerTable(t *application.BreakerTable) Option {
	return func(b *Balancer) { b.breakers = t }
}

func New(opts ...Option) *Balancer {
	b := &Balancer{
		nodes:        make(map[string]*domain.Node),
		strategy:     infra.NewRoundRobin(),
		sticky:       application.NewStickyTable(),
		interval:     30 * time.Second,
		probeTimeout: 5 * time.Second,
		clock:        clockwork.NewRealClock(),
		log:          zap.NewNop(),
	}
	for _, opt := range opts {
		opt(b)
	}
	if b.prober == nil {
		b.prober = infra.NewHTTPProber(b.probeTimeout)
	}
	if b.breakers == nil {
		b.breakers = application.NewBreakerTable(application.WithBreakerClock(b.clock))
	}
	return b
}

// AddServer registra um backend. O nó nasce não-saudável e com zero conexões;
// um probe assíncrono é disparado imediatamente para não esperar a próxima
// varredura. Retorna false para id vazio ou duplicado.
func (b *Balancer) AddServer(cfg domain.NodeConfig) bool {
	if cfg.ID == "" {
		return false
	}

	b.mu.Lock()
	if _, exists := b.nodes[cfg.ID]; exists {
		b.mu.Unlock()
		return false
	}
	n := domain.NewNode(cfg)
	b.nodes[cfg.ID] = n
	b.order = append(b.order, cfg.ID)
	addr := n.Addr()
	b.mu.Unlock()

	b.log.Info("server registered", zap.String("server", cfg.ID), zap.String("addr", addr))

	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), b.probeTimeout)
		defer cancel()
		rt, err := b.prober.Probe(ctx, addr)
		b.applyProbe(cfg.ID, rt, err == nil)
	}()
	return true
}

// RemoveServer desregistra o nó. Silencioso para id desconhecido. Breaker e
// afinidades continuam chaveados separadamente e apenas ficam inalcançáveis
// (afinidades obsoletas são removidas de forma preguiçosa no lookup).
func (b *Balancer) RemoveServer(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	if _, ok := b.nodes[id]; !ok {
		return false
	}
	delete(b.nodes, id)
	for i, other := range b.order {
		if other == id {
			b.order = append(b.order[:i], b.order[i+1:]...)
			break
		}
	}
	return true
}

// UpdateServerStats faz merge parcial de métricas. No-op para id desconhecido.
func (b *Balancer) UpdateServerStats(id string, update domain.StatsUpdate) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	n, ok := b.nodes[id]
	if !ok {
		return false
	}
	update.Apply(n)
	return true
}

// SelectServer tira um snapshot dos nós admissíveis (selecionáveis e com
// breaker fechado) e delega à estratégia ativa. A estratégia recebe CÓPIAS
// dos nós, tiradas sob o lock: os campos vivos seguem sendo mutados por
// probes e atualizações de métricas enquanto ela executa, então nenhum
// ponteiro do registro escapa do mutex. Um retorno nil é exaustão de
// capacidade (retryable), nunca erro de nó.
func (b *Balancer) SelectServer() *domain.Node {
	b.mu.Lock()
	eligible := make([]*domain.Node, 0, len(b.order))
	for _, id := range b.order {
		n := b.nodes[id]
		if !n.Selectable() {
			continue
		}
		if b.breakers.IsOpen(id) {
			continue
		}
		view := *n
		eligible = append(eligible, &view)
	}
	strat := b.strategy
	b.mu.Unlock()

	n := strat.SelectServer(eligible)
	if n == nil {
		b.log.Warn("no server available", zap.String("strategy", strat.Name()))
		b.emit(domain.NoServerAvailable{Strategy: strat.Name()})
		return nil
	}
	return n
}

func (b *Balancer) IncrementConnection(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	n, ok := b.nodes[id]
	if !ok {
		return false
	}
	n.ActiveConnections++
	return true
}

// DecrementConnection nunca deixa o contador negativo (defesa contra
// decremento duplo).
func (b *Balancer) DecrementConnection(id string) bool {
	b.mu.Lock()
	defer b.mu.Unlock()

	n, ok := b.nodes[id]
	if !ok {
		return false
	}
	if n.ActiveConnections > 0 {
		n.ActiveConnections--
	}
	return true
}

// SetStrategy troca o algoritmo a quente. Seleções em andamento não são
// afetadas: cada chamada lê a referência da estratégia sob o lock.
func (b *Balancer) SetStrategy(s domain.Strategy) {
	if s == nil {
		return
	}
	b.mu.Lock()
	b.strategy = s
	b.mu.Unlock()
}

func (b *Balancer) StrategyName() string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return b.strategy.Name()
}

// Server devolve uma cópia do nó pelo id (visão administrativa, legível sem
// o lock do registro).
func (b *Balancer) Server(id string) (*domain.Node, bool) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n, ok := b.nodes[id]
	if !ok {
		return nil, false
	}
	view := *n
	return &view, true
}

// RecordFailure alimenta o circuit breaker do nó; emite CircuitOpened quando
// esta falha atinge o limite.
func (b *Balancer) RecordFailure(id string) {
	opened, failures := b.breakers.RecordFailure(id)
	if opened {
		b.log.Warn("circuit opened", zap.String("server", id), zap.Int("failures", failures))
		b.emit(domain.CircuitOpened{ServerID: id, Failures: failures})
	}
}

// RecordSuccess fecha o breaker quando em half-open; emite CircuitClosed na
// transição.
func (b *Balancer) RecordSuccess(id string) {
	if b.breakers.RecordSuccess(id) {
		b.log.Info("circuit closed", zap.String("server", id))
		b.emit(domain.CircuitClosed{ServerID: id})
	}
}

// IsCircuitOpen diz se o nó está fora de rota agora. Distinto de exaustão de
// capacidade: significa "não rotear para cá", não erro.
func (b *Balancer) IsCircuitOpen(id string) bool {
	return b.breakers.IsOpen(id)
}

func (b *Balancer) CircuitState(id string) application.BreakerState {
	return b.breakers.State(id)
}

// AssignStickySession registra a afinidade sessão -> nó. Exige nó conhecido.
func (b *Balancer) AssignStickySession(sessionID, serverID string) bool {
	if sessionID == "" {
		return false
	}
	b.mu.Lock()
	_, ok := b.nodes[serverID]
	b.mu.Unlock()
	if !ok {
		return false
	}
	b.sticky.Assign(sessionID, serverID)
	return true
}

// GetStickyServer devolve o nó da sessão apenas se ele ainda for selecionável;
// caso contrário remove a afinidade obsoleta e devolve nil. Afinidade é
// melhor-esforço, não sobrevive à queda do nó.
func (b *Balancer) GetStickyServer(sessionID string) *domain.Node {
	id, ok := b.sticky.Lookup(sessionID)
	if !ok {
		return nil
	}

	b.mu.Lock()
	n, exists := b.nodes[id]
	usable := exists && n.Selectable()
	var view domain.Node
	if usable {
		view = *n
	}
	b.mu.Unlock()

	if !usable {
		b.sticky.Evict(sessionID)
		return nil
	}
	return &view
}

func (b *Balancer) RemoveStickySession(sessionID string) bool {
	return b.sticky.Evict(sessionID)
}

func (b *Balancer) emit(n domain.Notification) {
	if b.listener != nil {
		b.listener(n)
	}
}
