package domain

// Strategy é o contrato comum dos algoritmos de seleção.
//
// SelectServer recebe o snapshot atual de nós e devolve o escolhido, ou nil
// quando nenhum se qualifica (nunca erro: exaustão de capacidade não é
// falha). Implementações jamais retornam nó não-saudável ou no limite de
// conexões, mesmo que o chamador não tenha filtrado antes.
//
// O conjunto de estratégias é fechado e enumerável: round robin, least
// connections, weighted round robin e performance score (pacote infra).
type Strategy interface {
	Name() string
	SelectServer(nodes []*Node) *Node
}
