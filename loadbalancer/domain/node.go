package domain

import (
	"strconv"
	"time"
)

// NodeConfig é a parte imutável/configurada de um backend registrado.
type NodeConfig struct {
	ID   string
	Host string
	Port int

	Weight         int
	MaxConnections int
}

// Node representa um backend no registro do balanceador.
//
// Identidade (ID/Host/Port) é imutável após o registro; o estado vivo é
// mutado por probes de saúde, atualizações de métricas e pelo bracketing de
// conexões. Quem serializa o acesso é o Balancer: fora do seu lock circulam
// apenas cópias do nó, nunca o ponteiro do registro.
type Node struct {
	ID   string
	Host string
	Port int

	Weight         int
	MaxConnections int

	Healthy         bool
	LastHealthCheck time.Time

	ActiveConnections int
	CPUUsage          float64
	MemoryUsage       float64
	ResponseTime      time.Duration
}

// NewNode cria um nó a partir da configuração. Todo nó nasce não-saudável:
// só o primeiro probe bem-sucedido o torna selecionável.
func NewNode(cfg NodeConfig) *Node {
	if cfg.Weight <= 0 {
		cfg.Weight = 1
	}
	if cfg.MaxConnections <= 0 {
		cfg.MaxConnections = 100
	}
	return &Node{
		ID:             cfg.ID,
		Host:           cfg.Host,
		Port:           cfg.Port,
		Weight:         cfg.Weight,
		MaxConnections: cfg.MaxConnections,
	}
}

// Selectable diz se o nó pode receber trabalho agora: saudável e abaixo da
// capacidade de conexões.
func (n *Node) Selectable() bool {
	return n.Healthy && n.ActiveConnections < n.MaxConnections
}

func (n *Node) Addr() string {
	return n.Host + ":" + strconv.Itoa(n.Port)
}

// StatsUpdate é um merge parcial de métricas: campos nil são preservados.
type StatsUpdate struct {
	CPUUsage          *float64
	MemoryUsage       *float64
	ResponseTime      *time.Duration
	ActiveConnections *int
}

// Apply copia os campos presentes para o nó.
func (u StatsUpdate) Apply(n *Node) {
	if u.CPUUsage != nil {
		n.CPUUsage = *u.CPUUsage
	}
	if u.MemoryUsage != nil {
		n.MemoryUsage = *u.MemoryUsage
	}
	if u.ResponseTime != nil {
		n.ResponseTime = *u.ResponseTime
	}
	if u.ActiveConnections != nil {
		n.ActiveConnections = *u.ActiveConnections
		if n.ActiveConnections < 0 {
			n.ActiveConnections = 0
		}
	}
}
