package routing

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"github.com/uberum/fleetsim/core/cost"
	"github.com/uberum/fleetsim/core/energy"
	"github.com/uberum/fleetsim/core/events"
	"github.com/uberum/fleetsim/core/graph"
	"github.com/uberum/fleetsim/core/model"
	"github.com/uberum/fleetsim/infra/logger"
)

// diamond builds 1 -> {2,3} -> 4 plus a long direct edge 1 -> 4 and an
// unreachable node 5. The path through 2 is the fastest.
func diamond(t *testing.T) *graph.Graph {
	t.Helper()
	g, err := graph.Build(
		[]graph.Node{
			{ID: 1, Pos: graph.Position{X: 0, Y: 0}},
			{ID: 2, Pos: graph.Position{X: 1000, Y: 1000}},
			{ID: 3, Pos: graph.Position{X: 1000, Y: -1000}},
			{ID: 4, Pos: graph.Position{X: 2000, Y: 0}},
			{ID: 5, Pos: graph.Position{X: 9000, Y: 9000}},
		},
		[]graph.Edge{
			{ID: "e12", From: 1, To: 2, LengthM: 1500, BaseSpeedKMH: 50},
			{ID: "e24", From: 2, To: 4, LengthM: 1500, BaseSpeedKMH: 50},
			{ID: "e13", From: 1, To: 3, LengthM: 2000, BaseSpeedKMH: 50},
			{ID: "e34", From: 3, To: 4, LengthM: 2000, BaseSpeedKMH: 50},
			{ID: "e14", From: 1, To: 4, LengthM: 6000, BaseSpeedKMH: 50},
		},
		0.05,
	)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return g
}

func newEngine(t *testing.T, g *graph.Graph) (*Engine, *energy.Model) {
	t.Helper()
	en, err := energy.NewModel(energy.Config{})
	if err != nil {
		t.Fatalf("energy: %v", err)
	}
	costs := cost.NewModel(cost.Config{}, en)
	e, err := New(g, costs, en, Config{}, logger.NopLogger{}, nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	return e, en
}

func electric() model.Vehicle {
	v := model.Vehicle{ID: "ev1", Class: model.ClassElectric, Node: 1, BatteryCapacityKWh: 60}
	v.State = v.Full()
	return v
}

func wantNodes(t *testing.T, r *Route, want ...graph.NodeID) {
	t.Helper()
	if !reflect.DeepEqual(r.Nodes, want) {
		t.Fatalf("route = %v, want %v", r.Nodes, want)
	}
}

func TestAStarPicksFastestPath(t *testing.T) {
	e, _ := newEngine(t, diamond(t))
	r, err := e.Search(context.Background(), Request{
		Origin: 1, Destination: 4, Vehicle: electric(), Weights: cost.TimeOnly(),
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	wantNodes(t, r, 1, 2, 4)
	if r.Algorithm != AStar {
		t.Fatalf("algorithm = %v", r.Algorithm)
	}
}

func TestTrafficEventFlipsRoute(t *testing.T) {
	g := diamond(t)
	e, _ := newEngine(t, g)
	sched := events.NewScheduler(g, logger.NopLogger{})
	t0 := time.Now()
	if err := sched.Submit(events.Event{
		ID: "jam", Kind: events.KindTraffic, Edges: []string{"e24"},
		Magnitude: 0.3, Start: t0, Duration: time.Hour,
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	sched.Advance(t0)

	r, err := e.Search(context.Background(), Request{
		Origin: 1, Destination: 4, Vehicle: electric(), Weights: cost.TimeOnly(),
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	wantNodes(t, r, 1, 3, 4)

	// After the jam ends the original path wins again.
	sched.Advance(t0.Add(2 * time.Hour))
	r, err = e.Search(context.Background(), Request{
		Origin: 1, Destination: 4, Vehicle: electric(), Weights: cost.TimeOnly(),
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	wantNodes(t, r, 1, 2, 4)
}

func TestClosureForcesDetourThenNoRoute(t *testing.T) {
	g := diamond(t)
	e, _ := newEngine(t, g)
	_ = g.Close("e24")
	_ = g.Close("e14")
	r, err := e.Search(context.Background(), Request{
		Origin: 1, Destination: 4, Vehicle: electric(), Weights: cost.TimeOnly(),
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	wantNodes(t, r, 1, 3, 4)

	_ = g.Close("e34")
	_, err = e.Search(context.Background(), Request{
		Origin: 1, Destination: 4, Vehicle: electric(), Weights: cost.TimeOnly(),
	})
	if !errors.Is(err, ErrNoRoute) {
		t.Fatalf("err = %v, want ErrNoRoute", err)
	}
}

func TestNoRouteToIsolatedNode(t *testing.T) {
	e, _ := newEngine(t, diamond(t))
	_, err := e.Search(context.Background(), Request{
		Origin: 1, Destination: 5, Vehicle: electric(), Weights: cost.TimeOnly(),
	})
	if !errors.Is(err, ErrNoRoute) {
		t.Fatalf("err = %v, want ErrNoRoute", err)
	}
}

func TestOriginEqualsDestination(t *testing.T) {
	e, _ := newEngine(t, diamond(t))
	r, err := e.Search(context.Background(), Request{
		Origin: 1, Destination: 1, Vehicle: electric(), Weights: cost.TimeOnly(),
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	wantNodes(t, r, 1)
	if r.Combined != 0 || len(r.Edges) != 0 {
		t.Fatalf("zero route has cost %v, edges %v", r.Combined, r.Edges)
	}
}

func TestInvalidRequests(t *testing.T) {
	e, _ := newEngine(t, diamond(t))
	cases := []struct {
		name string
		req  Request
	}{
		{"unknown origin", Request{Origin: 99, Destination: 4, Vehicle: electric(), Weights: cost.TimeOnly()}},
		{"unknown destination", Request{Origin: 1, Destination: 99, Vehicle: electric(), Weights: cost.TimeOnly()}},
		{"bad weights", Request{Origin: 1, Destination: 4, Vehicle: electric(), Weights: cost.Weights{Time: 2}}},
		{"bad vehicle", Request{Origin: 1, Destination: 4, Vehicle: model.Vehicle{Class: "rocket"}, Weights: cost.TimeOnly()}},
		{"bad algorithm", Request{Origin: 1, Destination: 4, Vehicle: electric(), Weights: cost.TimeOnly(), Algorithm: "dijkstra"}},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			if _, err := e.Search(context.Background(), tc.req); !errors.Is(err, ErrInvalidRequest) {
				t.Fatalf("err = %v, want ErrInvalidRequest", err)
			}
		})
	}
}

func TestCancelledContext(t *testing.T) {
	e, _ := newEngine(t, diamond(t))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err := e.Search(ctx, Request{
		Origin: 1, Destination: 4, Vehicle: electric(), Weights: cost.TimeOnly(),
	})
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("err = %v, want context.Canceled", err)
	}
}

func TestBFSMinimizesHops(t *testing.T) {
	e, _ := newEngine(t, diamond(t))
	r, err := e.Search(context.Background(), Request{
		Origin: 1, Destination: 4, Vehicle: electric(), Weights: cost.TimeOnly(), Algorithm: BFS,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	// The direct edge is slower but has the fewest hops.
	wantNodes(t, r, 1, 4)
}

func TestEveryAlgorithmFindsARoute(t *testing.T) {
	e, _ := newEngine(t, diamond(t))
	for _, alg := range []Algorithm{AStar, Greedy, UniformCost, BFS, DFS} {
		r, err := e.Search(context.Background(), Request{
			Origin: 1, Destination: 4, Vehicle: electric(), Weights: cost.DefaultWeights(), Algorithm: alg,
		})
		if err != nil {
			t.Fatalf("%s: %v", alg, err)
		}
		if len(r.Nodes) < 2 || r.Nodes[0] != 1 || r.Nodes[len(r.Nodes)-1] != 4 {
			t.Fatalf("%s returned %v", alg, r.Nodes)
		}
	}
}

func TestAStarMatchesUniformCost(t *testing.T) {
	e, _ := newEngine(t, diamond(t))
	req := Request{Origin: 1, Destination: 4, Vehicle: electric(), Weights: cost.DefaultWeights()}

	req.Algorithm = AStar
	a, err := e.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("astar: %v", err)
	}
	req.Algorithm = UniformCost
	u, err := e.Search(context.Background(), req)
	if err != nil {
		t.Fatalf("ucs: %v", err)
	}
	if a.Combined != u.Combined {
		t.Fatalf("astar %v != ucs %v", a.Combined, u.Combined)
	}
	if a.Expansions > u.Expansions {
		t.Fatalf("astar expanded %d nodes, ucs only %d", a.Expansions, u.Expansions)
	}
}

func TestAStarMatchesExhaustiveMinimum(t *testing.T) {
	g := diamond(t)
	e, en := newEngine(t, g)
	costs := cost.NewModel(cost.Config{}, en)
	v := electric()
	w := cost.DefaultWeights()

	// Every simple path from 1 to 4, by edge IDs.
	paths := [][]string{
		{"e12", "e24"},
		{"e13", "e34"},
		{"e14"},
	}
	sn := g.Snapshot()
	best := -1.0
	for _, p := range paths {
		var total cost.Vector
		st := v.State
		for _, id := range p {
			edge, ok := g.Edge(id)
			if !ok {
				t.Fatalf("edge %s missing", id)
			}
			in := sn.CostInputs(edge)
			total = total.Add(costs.EdgeCost(in, v.Class, st))
			st = en.Apply(st, en.Consumption(in, v.Class, st))
		}
		if c := costs.Combine(total, w); best < 0 || c < best {
			best = c
		}
	}

	r, err := e.Search(context.Background(), Request{
		Origin: 1, Destination: 4, Vehicle: v, Weights: w,
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	if diff := r.Combined - best; diff > 1e-9 || diff < -1e-9 {
		t.Fatalf("astar combined %v, exhaustive minimum %v", r.Combined, best)
	}
}

func TestRoutePrefixesStayFeasible(t *testing.T) {
	g, err := graph.Build(
		[]graph.Node{
			{ID: 1, Pos: graph.Position{X: 0, Y: 0}},
			{ID: 2, Pos: graph.Position{X: 30000, Y: 0}},
			{ID: 3, Pos: graph.Position{X: 60000, Y: 0}},
			{ID: 4, Pos: graph.Position{X: 90000, Y: 0}},
			{ID: 9, Pos: graph.Position{X: 30000, Y: 2000}, Kind: graph.KindCharging},
			{ID: 10, Pos: graph.Position{X: 60000, Y: 2000}, Kind: graph.KindCharging},
		},
		[]graph.Edge{
			{ID: "e12", From: 1, To: 2, LengthM: 30000, BaseSpeedKMH: 50},
			{ID: "e23", From: 2, To: 3, LengthM: 30000, BaseSpeedKMH: 50},
			{ID: "e34", From: 3, To: 4, LengthM: 30000, BaseSpeedKMH: 50},
		},
		0.05,
	)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	e, en := newEngine(t, g)

	v := model.Vehicle{ID: "ev4", Class: model.ClassElectric, Node: 1, BatteryCapacityKWh: 10}
	v.State = model.ResourceState{BatteryKWh: 6}

	r, err := e.Search(context.Background(), Request{
		Origin: 1, Destination: 4, Vehicle: v, Weights: cost.TimeOnly(),
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}

	// Replay the route edge by edge, executing the planned stops, and check
	// that each traversal was feasible at departure and the state never
	// drops below zero.
	sn := g.Snapshot()
	st := v.State
	stops := r.Stops
	for i, id := range r.Edges {
		at := r.Nodes[i]
		for len(stops) > 0 && stops[0].AtNode == at {
			st = en.Refill(v, st, stops[0].Kind)
			stops = stops[1:]
		}
		edge, ok := g.Edge(id)
		if !ok {
			t.Fatalf("edge %s missing", id)
		}
		in := sn.CostInputs(edge)
		if !en.CanTraverse(in, v.Class, st) {
			t.Fatalf("edge %s infeasible at %+v", id, st)
		}
		st = en.Apply(st, en.Consumption(in, v.Class, st))
		if st.BatteryKWh < 0 || st.FuelL < 0 {
			t.Fatalf("state went negative after %s: %+v", id, st)
		}
	}
	if len(stops) != 0 {
		t.Fatalf("unexecuted stops: %+v", stops)
	}
}

func TestSearchIsDeterministic(t *testing.T) {
	for _, alg := range []Algorithm{AStar, Greedy, UniformCost, BFS, DFS} {
		e, _ := newEngine(t, diamond(t))
		req := Request{Origin: 1, Destination: 4, Vehicle: electric(), Weights: cost.DefaultWeights(), Algorithm: alg}
		first, err := e.Search(context.Background(), req)
		if err != nil {
			t.Fatalf("%s: %v", alg, err)
		}
		second, err := e.Search(context.Background(), req)
		if err != nil {
			t.Fatalf("%s: %v", alg, err)
		}
		if !reflect.DeepEqual(first, second) {
			t.Fatalf("%s not deterministic:\n%+v\n%+v", alg, first, second)
		}
	}
}

func TestRefuelSpliced(t *testing.T) {
	g, err := graph.Build(
		[]graph.Node{
			{ID: 1, Pos: graph.Position{X: 0, Y: 0}},
			{ID: 2, Pos: graph.Position{X: 30000, Y: 0}},
			{ID: 3, Pos: graph.Position{X: 60000, Y: 0}},
			{ID: 9, Pos: graph.Position{X: 30000, Y: 2000}, Kind: graph.KindCharging},
		},
		[]graph.Edge{
			{ID: "e12", From: 1, To: 2, LengthM: 30000, BaseSpeedKMH: 50},
			{ID: "e23", From: 2, To: 3, LengthM: 30000, BaseSpeedKMH: 50},
		},
		0.05,
	)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	e, en := newEngine(t, g)

	// 6 kWh covers the first edge with margin but not the second.
	v := model.Vehicle{ID: "ev2", Class: model.ClassElectric, Node: 1, BatteryCapacityKWh: 10}
	v.State = model.ResourceState{BatteryKWh: 6}

	r, err := e.Search(context.Background(), Request{
		Origin: 1, Destination: 3, Vehicle: v, Weights: cost.TimeOnly(),
	})
	if err != nil {
		t.Fatalf("search: %v", err)
	}
	wantNodes(t, r, 1, 2, 3)
	if len(r.Stops) != 1 {
		t.Fatalf("stops = %+v, want one", r.Stops)
	}
	stop := r.Stops[0]
	if stop.AtNode != 2 || stop.Station != 9 || stop.Kind != graph.KindCharging {
		t.Fatalf("stop = %+v", stop)
	}
	if stop.Minutes != en.Config().RechargeMinutes {
		t.Fatalf("stop minutes = %v", stop.Minutes)
	}
	// Station 9 is 2 km off node 2: 4 km of detour driving at the detour
	// speed of 50, costing 0.32 kWh each way at 0.15 EUR/kWh.
	if stop.DetourKM != 4 {
		t.Fatalf("detour km = %v, want 4", stop.DetourKM)
	}
	if math.Abs(stop.DetourMinutes-4.8) > 1e-9 {
		t.Fatalf("detour minutes = %v, want 4.8", stop.DetourMinutes)
	}
	if math.Abs(stop.DetourCostEUR-0.096) > 1e-9 {
		t.Fatalf("detour cost = %v, want 0.096", stop.DetourCostEUR)
	}
	if stop.DetourCO2Grams != 0 {
		t.Fatalf("electric detour emitted %v g", stop.DetourCO2Grams)
	}
	if r.Cost.TimeMin <= 30+stop.DetourMinutes {
		t.Fatalf("route time %v should include the recharge wait and the detour drive", r.Cost.TimeMin)
	}
}

func TestNoStationMeansNoRoute(t *testing.T) {
	g, err := graph.Build(
		[]graph.Node{
			{ID: 1, Pos: graph.Position{X: 0, Y: 0}},
			{ID: 2, Pos: graph.Position{X: 30000, Y: 0}},
			{ID: 3, Pos: graph.Position{X: 60000, Y: 0}},
		},
		[]graph.Edge{
			{ID: "e12", From: 1, To: 2, LengthM: 30000, BaseSpeedKMH: 50},
			{ID: "e23", From: 2, To: 3, LengthM: 30000, BaseSpeedKMH: 50},
		},
		0.05,
	)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	e, _ := newEngine(t, g)
	v := model.Vehicle{ID: "ev3", Class: model.ClassElectric, Node: 1, BatteryCapacityKWh: 10}
	v.State = model.ResourceState{BatteryKWh: 6}
	_, err = e.Search(context.Background(), Request{
		Origin: 1, Destination: 3, Vehicle: v, Weights: cost.TimeOnly(),
	})
	if !errors.Is(err, ErrNoRoute) {
		t.Fatalf("err = %v, want ErrNoRoute", err)
	}
}

func TestParseAlgorithm(t *testing.T) {
	for _, s := range []string{"astar", "greedy", "uniform_cost", "bfs", "dfs"} {
		if _, err := ParseAlgorithm(s); err != nil {
			t.Fatalf("%s rejected: %v", s, err)
		}
	}
	if _, err := ParseAlgorithm("dijkstra"); err == nil {
		t.Fatalf("unknown algorithm accepted")
	}
}
