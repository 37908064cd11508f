package graph

import (
	"fmt"
	"math"
	"sort"
	"sync"
)

// NodeID identifies an intersection in the road network.
type NodeID int

// NodeKind tags a node with its role in the city.
type NodeKind string

const (
	KindGeneric  NodeKind = "generic"
	KindPickup   NodeKind = "pickup"
	KindDepot    NodeKind = "depot"
	KindFuel     NodeKind = "fuel"
	KindCharging NodeKind = "charging"
)

// Node is an intersection. Immutable after Build.
type Node struct {
	ID   NodeID
	Pos  Position
	Kind NodeKind
}

// Edge is a directed road segment. Static attributes only; the dynamic
// traffic and weather factors live in the owning Graph.
type Edge struct {
	ID           string
	From, To     NodeID
	LengthM      float64
	BaseSpeedKMH float64
}

// CostInputs are the per-edge values consumed by the cost model.
// SpeedKMH already includes the traffic and weather factors.
type CostInputs struct {
	LengthM      float64
	BaseSpeedKMH float64
	SpeedKMH     float64
}

type edgeState struct {
	traffic  float64
	weather  float64
	closures int
}

// Graph is the weighted road network. Topology is immutable after Build;
// only the per-edge factors change, and only through the event scheduler.
type Graph struct {
	mu       sync.RWMutex
	nodes    map[NodeID]*Node
	sorted   []*Node
	out      map[NodeID][]*Edge
	edges    map[string]*Edge
	state    map[string]*edgeState
	minF     float64
	maxSpeed float64
}

// Build assembles a graph from node and edge lists. minFactor is the floor
// applied to the combined traffic×weather factor so traversal cost stays
// positive and bounded.
func Build(nodes []Node, edges []Edge, minFactor float64) (*Graph, error) {
	if minFactor <= 0 || minFactor > 1 {
		return nil, fmt.Errorf("min factor must be in (0,1], got %v", minFactor)
	}
	g := &Graph{
		nodes: make(map[NodeID]*Node, len(nodes)),
		out:   make(map[NodeID][]*Edge),
		edges: make(map[string]*Edge, len(edges)),
		state: make(map[string]*edgeState, len(edges)),
		minF:  minFactor,
	}
	for i := range nodes {
		n := nodes[i]
		if n.Kind == "" {
			n.Kind = KindGeneric
		}
		if _, ok := g.nodes[n.ID]; ok {
			return nil, fmt.Errorf("duplicate node %d", n.ID)
		}
		g.nodes[n.ID] = &n
		g.sorted = append(g.sorted, &n)
	}
	sort.Slice(g.sorted, func(i, j int) bool { return g.sorted[i].ID < g.sorted[j].ID })
	for i := range edges {
		e := edges[i]
		if _, ok := g.nodes[e.From]; !ok {
			return nil, fmt.Errorf("edge %s: unknown source node %d", e.ID, e.From)
		}
		if _, ok := g.nodes[e.To]; !ok {
			return nil, fmt.Errorf("edge %s: unknown target node %d", e.ID, e.To)
		}
		if e.LengthM <= 0 || e.BaseSpeedKMH <= 0 {
			return nil, fmt.Errorf("edge %s: length and base speed must be positive", e.ID)
		}
		if _, ok := g.edges[e.ID]; ok {
			return nil, fmt.Errorf("duplicate edge %s", e.ID)
		}
		g.edges[e.ID] = &e
		g.state[e.ID] = &edgeState{traffic: 1, weather: 1}
		g.out[e.From] = append(g.out[e.From], &e)
		if e.BaseSpeedKMH > g.maxSpeed {
			g.maxSpeed = e.BaseSpeedKMH
		}
	}
	for id := range g.out {
		es := g.out[id]
		sort.Slice(es, func(i, j int) bool {
			if es[i].To != es[j].To {
				return es[i].To < es[j].To
			}
			return es[i].ID < es[j].ID
		})
	}
	return g, nil
}

// Node returns the node with the given id.
func (g *Graph) Node(id NodeID) (*Node, bool) {
	n, ok := g.nodes[id]
	return n, ok
}

// Nodes returns all nodes ordered by id.
func (g *Graph) Nodes() []*Node { return g.sorted }

// HasEdge reports whether the edge id exists.
func (g *Graph) HasEdge(id string) bool {
	_, ok := g.edges[id]
	return ok
}

// Edge returns the edge with the given id.
func (g *Graph) Edge(id string) (*Edge, bool) {
	e, ok := g.edges[id]
	return e, ok
}

// OutEdges returns the outgoing edges of a node, ordered by target id.
func (g *Graph) OutEdges(id NodeID) []*Edge { return g.out[id] }

// MaxBaseSpeed is the highest free-flow speed in the network.
func (g *Graph) MaxBaseSpeed() float64 { return g.maxSpeed }

// MinFactor returns the configured factor floor.
func (g *Graph) MinFactor() float64 { return g.minF }

// ClosestNode returns the node nearest to p, ties broken by lower id.
func (g *Graph) ClosestNode(p Position) (*Node, bool) {
	var best *Node
	min := math.Inf(1)
	for _, n := range g.sorted {
		if d := p.DistanceTo(n.Pos); d < min {
			min = d
			best = n
		}
	}
	return best, best != nil
}

// NearestOfKind returns the node of the given kind nearest to p.
func (g *Graph) NearestOfKind(p Position, kind NodeKind) (*Node, bool) {
	var best *Node
	min := math.Inf(1)
	for _, n := range g.sorted {
		if n.Kind != kind {
			continue
		}
		if d := p.DistanceTo(n.Pos); d < min {
			min = d
			best = n
		}
	}
	return best, best != nil
}

// ScaleTraffic multiplies the edge's traffic factor by f. The raw product is
// stored unclamped so that dividing the same f back out restores the previous
// value exactly; the floor is applied when speeds are read.
func (g *Graph) ScaleTraffic(edgeID string, f float64) error {
	return g.ScaleTrafficMany([]string{edgeID}, f)
}

// ScaleWeather multiplies the edge's weather factor by f.
func (g *Graph) ScaleWeather(edgeID string, f float64) error {
	return g.ScaleWeatherMany([]string{edgeID}, f)
}

// ScaleTrafficMany multiplies the traffic factor of every listed edge by f
// under one write-lock hold, so a concurrent Snapshot sees either all of the
// edges scaled or none of them.
func (g *Graph) ScaleTrafficMany(edgeIDs []string, f float64) error {
	return g.scaleMany(edgeIDs, f, func(st *edgeState) *float64 { return &st.traffic })
}

// ScaleWeatherMany multiplies the weather factor of every listed edge by f
// under one write-lock hold.
func (g *Graph) ScaleWeatherMany(edgeIDs []string, f float64) error {
	return g.scaleMany(edgeIDs, f, func(st *edgeState) *float64 { return &st.weather })
}

func (g *Graph) scaleMany(edgeIDs []string, f float64, field func(*edgeState) *float64) error {
	if f <= 0 {
		return fmt.Errorf("factor must be positive, got %v", f)
	}
	g.mu.Lock()
	defer g.mu.Unlock()
	states, err := g.lookupLocked(edgeIDs)
	if err != nil {
		return err
	}
	for _, st := range states {
		*field(st) *= f
	}
	return nil
}

// Close marks an edge closed. Closures nest: an edge reopens only when every
// closure has been lifted.
func (g *Graph) Close(edgeID string) error {
	return g.CloseMany([]string{edgeID})
}

// Reopen lifts one closure from the edge.
func (g *Graph) Reopen(edgeID string) error {
	return g.ReopenMany([]string{edgeID})
}

// CloseMany closes every listed edge under one write-lock hold.
func (g *Graph) CloseMany(edgeIDs []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	states, err := g.lookupLocked(edgeIDs)
	if err != nil {
		return err
	}
	for _, st := range states {
		st.closures++
	}
	return nil
}

// ReopenMany lifts one closure from every listed edge under one write-lock
// hold.
func (g *Graph) ReopenMany(edgeIDs []string) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	states, err := g.lookupLocked(edgeIDs)
	if err != nil {
		return err
	}
	for _, st := range states {
		if st.closures > 0 {
			st.closures--
		}
	}
	return nil
}

// lookupLocked resolves every id before anything is mutated, so a bad id
// leaves the graph untouched. Caller holds the write lock.
func (g *Graph) lookupLocked(edgeIDs []string) ([]*edgeState, error) {
	states := make([]*edgeState, 0, len(edgeIDs))
	for _, id := range edgeIDs {
		st, ok := g.state[id]
		if !ok {
			return nil, fmt.Errorf("unknown edge %s", id)
		}
		states = append(states, st)
	}
	return states, nil
}

// Factors returns the raw traffic and weather factors of an edge.
func (g *Graph) Factors(edgeID string) (traffic, weather float64, ok bool) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	st, found := g.state[edgeID]
	if !found {
		return 0, 0, false
	}
	return st.traffic, st.weather, true
}

// Snapshot copies the dynamic factors under the lock so a search sees a
// frozen, consistent view while events keep mutating the live graph.
func (g *Graph) Snapshot() *Snapshot {
	g.mu.RLock()
	defer g.mu.RUnlock()
	s := &Snapshot{
		g:       g,
		factors: make(map[string]float64, len(g.state)),
		closed:  make(map[string]bool),
	}
	for id, st := range g.state {
		s.factors[id] = st.traffic * st.weather
		if st.closures > 0 {
			s.closed[id] = true
		}
	}
	return s
}

// Snapshot is a read-only view of the graph with frozen factors.
type Snapshot struct {
	g       *Graph
	factors map[string]float64
	closed  map[string]bool
}

// Neighbors returns the outgoing edges of a node, ordered by target id.
func (s *Snapshot) Neighbors(id NodeID) []*Edge { return s.g.out[id] }

// Node returns the node with the given id.
func (s *Snapshot) Node(id NodeID) (*Node, bool) { return s.g.Node(id) }

// Open reports whether the edge is traversable in this snapshot.
func (s *Snapshot) Open(e *Edge) bool { return !s.closed[e.ID] }

// CostInputs returns the static attributes of the edge together with the
// current speed under the frozen factors, floored at the configured minimum.
func (s *Snapshot) CostInputs(e *Edge) CostInputs {
	f := s.factors[e.ID]
	if f == 0 {
		f = 1
	}
	if f < s.g.minF {
		f = s.g.minF
	}
	if f > 1 {
		f = 1
	}
	return CostInputs{
		LengthM:      e.LengthM,
		BaseSpeedKMH: e.BaseSpeedKMH,
		SpeedKMH:     e.BaseSpeedKMH * f,
	}
}

// MaxBaseSpeed is the highest free-flow speed in the network.
func (s *Snapshot) MaxBaseSpeed() float64 { return s.g.maxSpeed }

// NearestOfKind returns the node of the given kind nearest to p.
func (s *Snapshot) NearestOfKind(p Position, kind NodeKind) (*Node, bool) {
	return s.g.NearestOfKind(p, kind)
}
