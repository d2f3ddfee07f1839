// Package application contém as regras de aplicação do balanceador que não
// dependem de rede: a máquina de estados do circuit breaker por nó e a tabela
// de afinidade de sessão.
//
// Ele depende apenas do pacote domain (e de um relógio injetável) para que as
// transições sejam testáveis sem sleep.
package application
