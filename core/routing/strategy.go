package routing

import "fmt"

// Algorithm selects the frontier discipline of a search.
type Algorithm string

const (
	AStar       Algorithm = "astar"
	Greedy      Algorithm = "greedy"
	UniformCost Algorithm = "uniform_cost"
	BFS         Algorithm = "bfs"
	DFS         Algorithm = "dfs"
)

// ParseAlgorithm converts a string into an Algorithm.
func ParseAlgorithm(s string) (Algorithm, error) {
	switch Algorithm(s) {
	case AStar, Greedy, UniformCost, BFS, DFS:
		return Algorithm(s), nil
	}
	return "", fmt.Errorf("unknown algorithm %q", s)
}

type order int

const (
	orderPriority order = iota
	orderFIFO
	orderLIFO
)

// Strategy is an (ordering, priority key) pair. The expansion loop is
// written once against this configuration; adding an algorithm means adding
// a pair here, not a new traversal.
type Strategy struct {
	order order
	key   func(g, h float64) float64
}

// strategyFor maps each algorithm onto its frontier configuration.
func strategyFor(a Algorithm) (Strategy, error) {
	switch a {
	case AStar:
		return Strategy{order: orderPriority, key: func(g, h float64) float64 { return g + h }}, nil
	case Greedy:
		return Strategy{order: orderPriority, key: func(_, h float64) float64 { return h }}, nil
	case UniformCost:
		return Strategy{order: orderPriority, key: func(g, _ float64) float64 { return g }}, nil
	case BFS:
		return Strategy{order: orderFIFO}, nil
	case DFS:
		return Strategy{order: orderLIFO}, nil
	}
	return Strategy{}, fmt.Errorf("unknown algorithm %q", a)
}

// usesHeuristic reports whether the strategy's key reads h, so the engine
// can skip heuristic evaluation for uninformed searches.
func (s Strategy) usesHeuristic() bool {
	if s.key == nil {
		return false
	}
	return s.key(0, 1) != 0
}
