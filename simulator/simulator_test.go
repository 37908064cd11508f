package simulator

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/uberum/fleetsim/core/cost"
	"github.com/uberum/fleetsim/core/energy"
	"github.com/uberum/fleetsim/core/events"
	"github.com/uberum/fleetsim/core/graph"
	coremetrics "github.com/uberum/fleetsim/core/metrics"
	"github.com/uberum/fleetsim/core/model"
	"github.com/uberum/fleetsim/core/routing"
	"github.com/uberum/fleetsim/infra/logger"
)

type captureSink struct {
	mu     sync.Mutex
	trips  []coremetrics.TripResult
	events []coremetrics.AppliedEvent
}

func (s *captureSink) RecordSearch(coremetrics.SearchResult) error { return nil }

func (s *captureSink) RecordTrip(r coremetrics.TripResult) error {
	s.mu.Lock()
	s.trips = append(s.trips, r)
	s.mu.Unlock()
	return nil
}

func (s *captureSink) RecordEvent(r coremetrics.AppliedEvent) error {
	s.mu.Lock()
	s.events = append(s.events, r)
	s.mu.Unlock()
	return nil
}

// world is a bidirectional diamond 1 <-> {2,3} <-> 4 with a charging node.
func world(t *testing.T) *graph.Graph {
	t.Helper()
	nodes := []graph.Node{
		{ID: 1, Pos: graph.Position{X: 0, Y: 0}},
		{ID: 2, Pos: graph.Position{X: 1000, Y: 1000}},
		{ID: 3, Pos: graph.Position{X: 1000, Y: -1000}},
		{ID: 4, Pos: graph.Position{X: 2000, Y: 0}},
		{ID: 9, Pos: graph.Position{X: 1000, Y: 1500}, Kind: graph.KindCharging},
	}
	var edges []graph.Edge
	add := func(id string, from, to graph.NodeID, lenM float64) {
		edges = append(edges,
			graph.Edge{ID: id, From: from, To: to, LengthM: lenM, BaseSpeedKMH: 60},
			graph.Edge{ID: id + "-r", From: to, To: from, LengthM: lenM, BaseSpeedKMH: 60},
		)
	}
	add("e12", 1, 2, 1500)
	add("e24", 2, 4, 1500)
	add("e13", 1, 3, 2000)
	add("e34", 3, 4, 2000)
	g, err := graph.Build(nodes, edges, 0.05)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	return g
}

func newSim(t *testing.T, g *graph.Graph, fleet []model.Vehicle, sink coremetrics.Sink) (*Simulator, *events.Scheduler, time.Time) {
	t.Helper()
	en, err := energy.NewModel(energy.Config{})
	if err != nil {
		t.Fatalf("energy: %v", err)
	}
	costs := cost.NewModel(cost.Config{}, en)
	engine, err := routing.New(g, costs, en, routing.Config{}, logger.NopLogger{}, nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	sched := events.NewScheduler(g, logger.NopLogger{})
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)
	sim, err := New(Config{TickMinutes: 1, DurationMinutes: 60}, g, engine, sched, en,
		fleet, start, logger.NopLogger{}, sink, nil)
	if err != nil {
		t.Fatalf("simulator: %v", err)
	}
	return sim, sched, start
}

func taxi(id string, node graph.NodeID) model.Vehicle {
	v := model.Vehicle{ID: id, Class: model.ClassElectric, Node: node, BatteryCapacityKWh: 60}
	v.State = v.Full()
	return v
}

func TestTripCompletes(t *testing.T) {
	sink := &captureSink{}
	g := world(t)
	sim, _, start := newSim(t, g, []model.Vehicle{taxi("taxi0001", 1)}, sink)

	req := model.NewRequest(graph.Position{X: 2000, Y: 0}, graph.Position{X: 0, Y: 0}, start)
	sim.SubmitRequest(req)

	stats, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Completed != 1 || stats.Unservable != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(sink.trips) != 1 {
		t.Fatalf("trips recorded = %d", len(sink.trips))
	}
	trip := sink.trips[0]
	if trip.VehicleID != "taxi0001" || trip.Class != "electric" {
		t.Fatalf("trip = %+v", trip)
	}
	// Out to the pickup at node 4 and back: at least 6 km.
	if trip.DistanceKM < 5.9 {
		t.Fatalf("trip distance = %v km", trip.DistanceKM)
	}
	if trip.TimeMin <= 0 || trip.CostEUR <= 0 {
		t.Fatalf("trip = %+v", trip)
	}
}

func TestUnreachablePickupIsUnservable(t *testing.T) {
	nodes := []graph.Node{
		{ID: 1, Pos: graph.Position{X: 0, Y: 0}},
		{ID: 2, Pos: graph.Position{X: 1000, Y: 0}},
		{ID: 7, Pos: graph.Position{X: 50000, Y: 0}}, // island
	}
	edges := []graph.Edge{
		{ID: "e12", From: 1, To: 2, LengthM: 1000, BaseSpeedKMH: 60},
		{ID: "e21", From: 2, To: 1, LengthM: 1000, BaseSpeedKMH: 60},
	}
	g, err := graph.Build(nodes, edges, 0.05)
	if err != nil {
		t.Fatalf("build: %v", err)
	}
	sink := &captureSink{}
	sim, _, start := newSim(t, g, []model.Vehicle{taxi("taxi0001", 1)}, sink)

	sim.SubmitRequest(model.NewRequest(graph.Position{X: 50000, Y: 0}, graph.Position{X: 0, Y: 0}, start))
	stats, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Unservable != 1 || stats.Completed != 0 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(sink.trips) != 0 {
		t.Fatalf("no trip should be recorded, got %d", len(sink.trips))
	}
}

func TestClosureTriggersReplanAndTripStillCompletes(t *testing.T) {
	sink := &captureSink{}
	g := world(t)
	sim, sched, start := newSim(t, g, []model.Vehicle{taxi("taxi0001", 1)}, sink)

	// Close the fast upper path shortly after departure; the vehicle must
	// reroute through node 3.
	if err := sched.Submit(events.Event{
		ID: "block", Kind: events.KindClosure, Edges: []string{"e24"},
		Start: start.Add(1 * time.Minute), Duration: 50 * time.Minute,
	}); err != nil {
		t.Fatalf("submit: %v", err)
	}
	sim.SubmitRequest(model.NewRequest(graph.Position{X: 2000, Y: 0}, graph.Position{X: 0, Y: 0}, start))

	stats, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Completed != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if stats.Replans == 0 {
		t.Fatalf("closure mid-route should force a replan")
	}
	if len(sink.events) == 0 {
		t.Fatalf("applied event not recorded")
	}
}

func TestVehicleStateNeverNegative(t *testing.T) {
	sink := &captureSink{}
	g := world(t)
	fleet := []model.Vehicle{taxi("taxi0001", 1), taxi("taxi0002", 3)}
	sim, _, start := newSim(t, g, fleet, sink)
	for i := 0; i < 4; i++ {
		sim.SubmitRequest(model.NewRequest(
			graph.Position{X: 2000, Y: 0}, graph.Position{X: 0, Y: 0},
			start.Add(time.Duration(i*5)*time.Minute)))
	}
	if _, err := sim.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	for _, v := range sim.fleet {
		if v.State.BatteryKWh < 0 || v.State.FuelL < 0 {
			t.Fatalf("vehicle %s state negative: %+v", v.ID, v.State)
		}
	}
}

func TestTripAccountsForRefuelDetour(t *testing.T) {
	// A 60 km line the taxi cannot finish on 6 kWh, with a charging station
	// 2 km off the midpoint.
	nodes := []graph.Node{
		{ID: 1, Pos: graph.Position{X: 0, Y: 0}},
		{ID: 2, Pos: graph.Position{X: 30000, Y: 0}},
		{ID: 3, Pos: graph.Position{X: 60000, Y: 0}},
		{ID: 9, Pos: graph.Position{X: 30000, Y: 2000}, Kind: graph.KindCharging},
	}
	edges := []graph.Edge{
		{ID: "e12", From: 1, To: 2, LengthM: 30000, BaseSpeedKMH: 50},
		{ID: "e23", From: 2, To: 3, LengthM: 30000, BaseSpeedKMH: 50},
	}
	g, err := graph.Build(nodes, edges, 0.05)
	if err != nil {
		t.Fatalf("build: %v", err)
	}

	en, err := energy.NewModel(energy.Config{})
	if err != nil {
		t.Fatalf("energy: %v", err)
	}
	costs := cost.NewModel(cost.Config{}, en)
	engine, err := routing.New(g, costs, en, routing.Config{}, logger.NopLogger{}, nil)
	if err != nil {
		t.Fatalf("engine: %v", err)
	}
	sched := events.NewScheduler(g, logger.NopLogger{})
	start := time.Date(2025, 6, 1, 8, 0, 0, 0, time.UTC)

	v := model.Vehicle{ID: "taxi0001", Class: model.ClassElectric, Node: 1, BatteryCapacityKWh: 10}
	v.State = model.ResourceState{BatteryKWh: 6}

	sink := &captureSink{}
	sim, err := New(Config{TickMinutes: 1, DurationMinutes: 200}, g, engine, sched, en,
		[]model.Vehicle{v}, start, logger.NopLogger{}, sink, nil)
	if err != nil {
		t.Fatalf("simulator: %v", err)
	}

	sim.SubmitRequest(model.NewRequest(graph.Position{X: 0, Y: 0}, graph.Position{X: 60000, Y: 0}, start))
	stats, err := sim.Run(context.Background())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if stats.Completed != 1 || stats.RefuelStops != 1 {
		t.Fatalf("stats = %+v", stats)
	}
	if len(sink.trips) != 1 {
		t.Fatalf("trips recorded = %d", len(sink.trips))
	}
	trip := sink.trips[0]
	if trip.Refuels != 1 {
		t.Fatalf("trip refuels = %d", trip.Refuels)
	}
	// 60 km of route at 50 km/h is 72 min; the detour adds 4 km of driving
	// (4.8 min) on top of the 30 min recharge.
	if trip.DistanceKM < 63.9 {
		t.Fatalf("trip distance = %v km, want route plus detour", trip.DistanceKM)
	}
	if trip.TimeMin < 106.8-1e-6 {
		t.Fatalf("trip time = %v min, want at least 106.8", trip.TimeMin)
	}
	// Driving energy 9.6 kWh plus the detour legs and the recharge payment.
	if trip.CostEUR < 2.9 {
		t.Fatalf("trip cost = %v, want recharge and detour included", trip.CostEUR)
	}
}

func TestBusPublishesLifecycle(t *testing.T) {
	sink := &captureSink{}
	g := world(t)
	sim, _, start := newSim(t, g, []model.Vehicle{taxi("taxi0001", 1)}, sink)
	sub := sim.Bus().Subscribe(64)

	sim.SubmitRequest(model.NewRequest(graph.Position{X: 2000, Y: 0}, graph.Position{X: 0, Y: 0}, start))
	if _, err := sim.Run(context.Background()); err != nil {
		t.Fatalf("run: %v", err)
	}
	sim.Bus().Close()

	seen := map[EventKind]bool{}
	for ev := range sub {
		seen[ev.Kind] = true
	}
	for _, want := range []EventKind{EventAssigned, EventPickup, EventCompleted} {
		if !seen[want] {
			t.Fatalf("missing %s on the bus, saw %v", want, seen)
		}
	}
}
