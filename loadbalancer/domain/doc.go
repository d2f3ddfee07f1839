// Package domain define os contratos e tipos do balanceamento de carga:
// o modelo de nó backend, o contrato das estratégias de seleção e o conjunto
// fechado de notificações.
//
// Este pacote não depende de net/http nem de implementações concretas.
package domain
