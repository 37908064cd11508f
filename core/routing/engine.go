package routing

import (
	"context"
	"fmt"
	"time"

	"github.com/uberum/fleetsim/core/cost"
	"github.com/uberum/fleetsim/core/energy"
	"github.com/uberum/fleetsim/core/graph"
	"github.com/uberum/fleetsim/core/logger"
	"github.com/uberum/fleetsim/core/metrics"
	"github.com/uberum/fleetsim/core/model"
)

// Config defines engine parameters loaded from configuration.
type Config struct {
	// Algorithm is the default frontier discipline; requests may override it.
	Algorithm string `json:"algorithm" yaml:"algorithm"`
	// MinFactor floors the combined traffic×weather factor of every edge.
	MinFactor float64 `json:"min_factor" yaml:"min_factor"`
	// ResourceBucketKM discretizes remaining range for search-state identity:
	// two arrivals at one node with different remaining fuel are distinct
	// states unless they land in the same bucket and one dominates.
	ResourceBucketKM float64 `json:"resource_bucket_km" yaml:"resource_bucket_km"`
	// MaxExpansions bounds a single search; 0 means unbounded.
	MaxExpansions int `json:"max_expansions" yaml:"max_expansions"`
	// DetourSpeedKMH prices the off-graph leg of a spliced refuelling stop.
	DetourSpeedKMH float64 `json:"detour_speed_kmh" yaml:"detour_speed_kmh"`
}

// SetDefaults applies sane defaults.
func (c *Config) SetDefaults() {
	if c.Algorithm == "" {
		c.Algorithm = string(AStar)
	}
	if c.MinFactor == 0 {
		c.MinFactor = 0.05
	}
	if c.ResourceBucketKM == 0 {
		c.ResourceBucketKM = 10
	}
	if c.MaxExpansions == 0 {
		c.MaxExpansions = 1_000_000
	}
	if c.DetourSpeedKMH == 0 {
		c.DetourSpeedKMH = 50
	}
}

// Validate checks the engine parameters.
func (c Config) Validate() error {
	if _, err := ParseAlgorithm(c.Algorithm); err != nil {
		return err
	}
	if c.MinFactor <= 0 || c.MinFactor > 1 {
		return fmt.Errorf("min factor must be in (0,1], got %v", c.MinFactor)
	}
	if c.ResourceBucketKM <= 0 {
		return fmt.Errorf("resource bucket must be positive, got %v", c.ResourceBucketKM)
	}
	if c.DetourSpeedKMH <= 0 {
		return fmt.Errorf("detour speed must be positive, got %v", c.DetourSpeedKMH)
	}
	return nil
}

// Request is one search invocation: where to go, on behalf of which vehicle
// snapshot, under which weighting and algorithm.
type Request struct {
	Origin      graph.NodeID
	Destination graph.NodeID
	Vehicle     model.Vehicle
	Weights     cost.Weights
	// Algorithm overrides the engine default when non-empty.
	Algorithm Algorithm
}

// Engine is the multi-algorithm pathfinder. A single Engine serves many
// concurrent searches; each invocation works on its own graph snapshot.
type Engine struct {
	g      *graph.Graph
	costs  *cost.Model
	energy *energy.Model
	cfg    Config
	log    logger.Logger
	sink   metrics.Sink
}

// New builds an Engine. A nil sink disables metrics.
func New(g *graph.Graph, costs *cost.Model, en *energy.Model, cfg Config, log logger.Logger, sink metrics.Sink) (*Engine, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	return &Engine{g: g, costs: costs, energy: en, cfg: cfg, log: log, sink: sink}, nil
}

// searchNode is the engine's unit of expansion. Resource state is part of
// the identity: two paths reaching the same graph node with different
// remaining fuel are not interchangeable.
type searchNode struct {
	node   graph.NodeID
	state  model.ResourceState
	vec    cost.Vector
	g      float64
	parent *searchNode
	via    *graph.Edge
	stop   *Stop
}

type stateKey struct {
	node   graph.NodeID
	bucket int
}

type record struct {
	g       float64
	rangeKM float64
}

// Search runs one invocation to completion. It returns a Route on success,
// ErrNoRoute when the frontier exhausts, or ErrInvalidRequest for malformed
// input. Cancelling the context abandons the frontier.
func (e *Engine) Search(ctx context.Context, req Request) (*Route, error) {
	started := time.Now()
	alg := req.Algorithm
	if alg == "" {
		alg = Algorithm(e.cfg.Algorithm)
	}
	strat, err := strategyFor(alg)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := e.validate(req); err != nil {
		e.record(alg, "invalid", 0, 0, started)
		return nil, err
	}

	sn := e.g.Snapshot()
	if req.Origin == req.Destination {
		r := &Route{Nodes: []graph.NodeID{req.Origin}, Algorithm: alg}
		e.record(alg, "found", 0, 0, started)
		return r, nil
	}
	dest, _ := sn.Node(req.Destination)

	start := &searchNode{node: req.Origin, state: req.Vehicle.State}
	front := newFrontier(strat)
	front.push(start, e.priority(strat, sn, start, dest, req))

	best := map[stateKey]record{
		e.key(req.Vehicle.Class, start): {g: 0, rangeKM: e.energy.RangeKM(req.Vehicle.Class, start.state)},
	}

	expansions := 0
	for !front.empty() {
		if expansions&63 == 0 && ctx.Err() != nil {
			e.record(alg, "cancelled", expansions, 0, started)
			return nil, ctx.Err()
		}
		cur := front.pop()
		if cur.node == req.Destination {
			r := e.reconstruct(cur, alg, expansions)
			e.record(alg, "found", expansions, cur.g, started)
			e.log.Debugw("route found", map[string]any{
				"algorithm":  string(alg),
				"nodes":      len(r.Nodes),
				"stops":      len(r.Stops),
				"combined":   r.Combined,
				"expansions": expansions,
			})
			return r, nil
		}
		expansions++
		if e.cfg.MaxExpansions > 0 && expansions > e.cfg.MaxExpansions {
			break
		}
		for _, edge := range sn.Neighbors(cur.node) {
			if !sn.Open(edge) {
				continue
			}
			succ, ok := e.step(sn, cur, edge, req)
			if !ok {
				continue
			}
			k := e.key(req.Vehicle.Class, succ)
			rng := e.energy.RangeKM(req.Vehicle.Class, succ.state)
			if rec, seen := best[k]; seen {
				if rec.g <= succ.g && rec.rangeKM >= rng {
					continue
				}
				if succ.g < rec.g {
					rec.g = succ.g
				}
				if rng > rec.rangeKM {
					rec.rangeKM = rng
				}
				best[k] = rec
			} else {
				best[k] = record{g: succ.g, rangeKM: rng}
			}
			front.push(succ, e.priority(strat, sn, succ, dest, req))
		}
	}

	e.record(alg, "no_route", expansions, 0, started)
	e.log.Infof("no feasible route %d->%d for vehicle %s", req.Origin, req.Destination, req.Vehicle.ID)
	return nil, fmt.Errorf("%w: %d->%d", ErrNoRoute, req.Origin, req.Destination)
}

func (e *Engine) validate(req Request) error {
	if _, ok := e.g.Node(req.Origin); !ok {
		return fmt.Errorf("%w: unknown origin %d", ErrInvalidRequest, req.Origin)
	}
	if _, ok := e.g.Node(req.Destination); !ok {
		return fmt.Errorf("%w: unknown destination %d", ErrInvalidRequest, req.Destination)
	}
	if err := req.Weights.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	if err := req.Vehicle.Validate(); err != nil {
		return fmt.Errorf("%w: %v", ErrInvalidRequest, err)
	}
	return nil
}

func (e *Engine) key(class model.VehicleClass, n *searchNode) stateKey {
	return stateKey{
		node:   n.node,
		bucket: int(e.energy.RangeKM(class, n.state) / e.cfg.ResourceBucketKM),
	}
}

func (e *Engine) priority(strat Strategy, sn *graph.Snapshot, n *searchNode, dest *graph.Node, req Request) float64 {
	if strat.key == nil {
		return 0
	}
	h := 0.0
	if strat.usesHeuristic() {
		from, _ := sn.Node(n.node)
		h = e.costs.Heuristic(sn, from.Pos, dest.Pos, req.Vehicle.Class, req.Weights)
	}
	return strat.key(n.g, h)
}

// step expands cur across edge, splicing a refuelling detour when the edge
// is infeasible on the remaining resource. A false return discards the
// branch; that is normal pruning, not an error.
func (e *Engine) step(sn *graph.Snapshot, cur *searchNode, edge *graph.Edge, req Request) (*searchNode, bool) {
	in := sn.CostInputs(edge)
	st := cur.state
	veh := req.Vehicle
	var stop *Stop
	var detour cost.Vector

	if !e.energy.CanTraverse(in, veh.Class, st) {
		var ok bool
		st, stop, detour, ok = e.spliceRefuel(sn, cur, req)
		if !ok {
			return nil, false
		}
		if !e.energy.CanTraverse(in, veh.Class, st) {
			// Edge longer than a full tank: dead end, not an error.
			return nil, false
		}
	}

	use := e.energy.Consumption(in, veh.Class, st)
	edgeVec := e.costs.EdgeCost(in, veh.Class, st)
	stepVec := detour.Add(edgeVec)

	return &searchNode{
		node:   edge.To,
		state:  e.energy.Apply(st, use),
		vec:    cur.vec.Add(stepVec),
		g:      cur.g + e.costs.Combine(stepVec, req.Weights),
		parent: cur,
		via:    edge,
		stop:   stop,
	}, true
}

// spliceRefuel builds the hypothetical state after a detour to the nearest
// reachable station: drive there, refill the station's resource, drive back.
// Real vehicle state is untouched; the simulation loop replays committed
// stops.
func (e *Engine) spliceRefuel(sn *graph.Snapshot, cur *searchNode, req Request) (model.ResourceState, *Stop, cost.Vector, bool) {
	veh := req.Vehicle
	veh.State = cur.state
	here, _ := sn.Node(cur.node)

	station, ok := e.energy.NearestStation(sn, here.Pos, veh)
	if !ok {
		return model.ResourceState{}, nil, cost.Vector{}, false
	}
	legKM := here.Pos.DistanceTo(station.Pos) / 1000
	if !e.energy.CanCoverKM(legKM, veh.Class, cur.state) {
		return model.ResourceState{}, nil, cost.Vector{}, false
	}
	kind := e.energy.StationKind(veh)

	leg := graph.CostInputs{
		LengthM:      legKM * 1000,
		BaseSpeedKMH: e.cfg.DetourSpeedKMH,
		SpeedKMH:     e.cfg.DetourSpeedKMH,
	}
	outUse := e.energy.Consumption(leg, veh.Class, cur.state)
	atStation := e.energy.Apply(cur.state, outUse)
	minutes, eur := e.energy.StopPenalty(veh, atStation, kind)
	filled := e.energy.Refill(veh, atStation, kind)
	backUse := e.energy.Consumption(leg, veh.Class, filled)
	returned := e.energy.Apply(filled, backUse)

	stop := &Stop{
		AtNode:         cur.node,
		Station:        station.ID,
		Kind:           kind,
		DetourKM:       2 * legKM,
		DetourMinutes:  2 * (legKM / e.cfg.DetourSpeedKMH * 60),
		DetourCostEUR:  e.energy.EnergyCostEUR(outUse) + e.energy.EnergyCostEUR(backUse),
		DetourCO2Grams: e.energy.EmissionsG(veh.Class, outUse) + e.energy.EmissionsG(veh.Class, backUse),
		Minutes:        minutes,
		CostEUR:        eur,
	}
	vec := cost.Vector{
		TimeMin:  stop.DetourMinutes + stop.Minutes,
		CostEUR:  stop.CostEUR + stop.DetourCostEUR,
		CO2Grams: stop.DetourCO2Grams,
	}
	return returned, stop, vec, true
}

func (e *Engine) reconstruct(goal *searchNode, alg Algorithm, expansions int) *Route {
	var nodes []graph.NodeID
	var edges []string
	var stops []Stop
	for n := goal; n != nil; n = n.parent {
		nodes = append(nodes, n.node)
		if n.via != nil {
			edges = append(edges, n.via.ID)
		}
		if n.stop != nil {
			stops = append(stops, *n.stop)
		}
	}
	reverse(nodes)
	reverse(edges)
	reverse(stops)
	return &Route{
		Nodes:      nodes,
		Edges:      edges,
		Stops:      stops,
		Cost:       goal.vec,
		Combined:   goal.g,
		Algorithm:  alg,
		Expansions: expansions,
	}
}

func reverse[T any](s []T) {
	for i, j := 0, len(s)-1; i < j; i, j = i+1, j-1 {
		s[i], s[j] = s[j], s[i]
	}
}

func (e *Engine) record(alg Algorithm, outcome string, expansions int, combined float64, started time.Time) {
	res := metrics.SearchResult{
		Algorithm:  string(alg),
		Outcome:    outcome,
		Expansions: expansions,
		Combined:   combined,
		Duration:   time.Since(started),
	}
	if err := e.sink.RecordSearch(res); err != nil {
		e.log.Warnf("record search: %v", err)
	}
}
