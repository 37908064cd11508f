// Package simulator runs the fleet over simulated time: requests arrive,
// vehicles are dispatched over routes from the search engine, events hit the
// road network and active trips replan around them.
package simulator

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/uberum/fleetsim/core/cost"
	"github.com/uberum/fleetsim/core/energy"
	"github.com/uberum/fleetsim/core/events"
	"github.com/uberum/fleetsim/core/graph"
	"github.com/uberum/fleetsim/core/logger"
	"github.com/uberum/fleetsim/core/metrics"
	"github.com/uberum/fleetsim/core/model"
	"github.com/uberum/fleetsim/core/routing"
	"github.com/uberum/fleetsim/internal/eventbus"
)

// Config drives the simulation clock and the synthetic workload.
type Config struct {
	TickMinutes     float64 `json:"tick_minutes" yaml:"tick_minutes"`
	DurationMinutes float64 `json:"duration_minutes" yaml:"duration_minutes"`
	Seed            int64   `json:"seed" yaml:"seed"`
	// Scenario is the path to the YAML scenario file.
	Scenario string `json:"scenario" yaml:"scenario"`
	// PaceMS slows the loop down to PaceMS wall-clock milliseconds per tick
	// for live observation; 0 runs flat out.
	PaceMS  int          `json:"pace_ms" yaml:"pace_ms"`
	Fleet   FleetConfig  `json:"fleet" yaml:"fleet"`
	Weights cost.Weights `json:"weights" yaml:"weights"`
}

// SetDefaults applies standard simulation parameters.
func (c *Config) SetDefaults() {
	if c.TickMinutes == 0 {
		c.TickMinutes = 1
	}
	if c.DurationMinutes == 0 {
		c.DurationMinutes = 480
	}
	if c.Seed == 0 {
		c.Seed = 42
	}
	if c.Weights == (cost.Weights{}) {
		c.Weights = cost.DefaultWeights()
	}
	c.Fleet.SetDefaults()
}

// Validate checks the simulation parameters.
func (c Config) Validate() error {
	if c.TickMinutes <= 0 || c.DurationMinutes <= 0 {
		return fmt.Errorf("tick and duration must be positive")
	}
	if err := c.Weights.Validate(); err != nil {
		return err
	}
	return c.Fleet.Validate()
}

// EventKind classifies simulation events published on the bus.
type EventKind string

const (
	EventAssigned    EventKind = "request_assigned"
	EventUnservable  EventKind = "request_unservable"
	EventPickup      EventKind = "pickup"
	EventCompleted   EventKind = "trip_completed"
	EventRefuel      EventKind = "refuel_stop"
	EventReplanned   EventKind = "replanned"
	EventGraphChange EventKind = "graph_change"
)

// SimEvent is a simulation observation published on the bus.
type SimEvent struct {
	Kind      EventKind `json:"kind"`
	Time      time.Time `json:"time"`
	VehicleID string    `json:"vehicle_id,omitempty"`
	RequestID string    `json:"request_id,omitempty"`
	Detail    string    `json:"detail,omitempty"`
}

// Stats summarises a finished simulation run.
type Stats struct {
	Ticks       int
	Completed   int
	Unservable  int
	Replans     int
	RefuelStops int
}

// plan is the execution state of one active trip.
type plan struct {
	veh   *model.Vehicle
	req   *model.Request
	route *routing.Route
	// leg 0 drives to the pickup, leg 1 to the drop-off.
	leg          int
	edgeIdx      int
	cur          *graph.Edge
	remM         float64
	stopWait     float64
	stopKind     graph.NodeKind
	pendingStops []routing.Stop
	needsReplan  bool
	trip         metrics.TripResult
}

// Simulator advances the world tick by tick. All mutation happens on the Run
// goroutine; SubmitRequest is the only concurrent entry point.
type Simulator struct {
	cfg    Config
	g      *graph.Graph
	engine *routing.Engine
	sched  *events.Scheduler
	en     *energy.Model
	log    logger.Logger
	sink   metrics.Sink
	bus    *eventbus.Bus[SimEvent]

	mu    sync.Mutex
	queue []*model.Request

	clock time.Time
	fleet []*model.Vehicle
	plans map[string]*plan
	dirty bool
	stats Stats
}

// New wires a simulator over an already built world.
func New(cfg Config, g *graph.Graph, engine *routing.Engine, sched *events.Scheduler,
	en *energy.Model, fleet []model.Vehicle, start time.Time,
	log logger.Logger, sink metrics.Sink, bus *eventbus.Bus[SimEvent]) (*Simulator, error) {

	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if sink == nil {
		sink = metrics.NopSink{}
	}
	if bus == nil {
		bus = eventbus.New[SimEvent]()
	}
	s := &Simulator{
		cfg:    cfg,
		g:      g,
		engine: engine,
		sched:  sched,
		en:     en,
		log:    log,
		sink:   sink,
		bus:    bus,
		clock:  start,
		plans:  make(map[string]*plan),
	}
	for i := range fleet {
		v := fleet[i]
		s.fleet = append(s.fleet, &v)
	}
	sched.OnApply(func(ap events.Applied) {
		s.dirty = true
		if err := s.sink.RecordEvent(metrics.AppliedEvent{
			Kind:  string(ap.Event.Kind),
			Edges: len(ap.Edges),
			Time:  s.clock,
		}); err != nil {
			s.log.Warnf("record event: %v", err)
		}
		s.bus.Publish(SimEvent{
			Kind:   EventGraphChange,
			Time:   s.clock,
			Detail: fmt.Sprintf("%s %s on %d edges", ap.Event.Kind, ap.Event.ID, len(ap.Edges)),
		})
	})
	return s, nil
}

// Bus exposes the simulation event bus for observers.
func (s *Simulator) Bus() *eventbus.Bus[SimEvent] { return s.bus }

// Clock returns the current simulated time.
func (s *Simulator) Clock() time.Time { return s.clock }

// SubmitRequest queues a trip request. Safe to call from other goroutines.
func (s *Simulator) SubmitRequest(req model.Request) {
	s.mu.Lock()
	s.queue = append(s.queue, &req)
	s.mu.Unlock()
}

// Run executes the whole simulation, or stops early when the context is
// cancelled. It returns the run statistics.
func (s *Simulator) Run(ctx context.Context) (Stats, error) {
	ticks := int(s.cfg.DurationMinutes / s.cfg.TickMinutes)
	for i := 0; i < ticks; i++ {
		select {
		case <-ctx.Done():
			return s.stats, ctx.Err()
		default:
		}
		s.Tick(ctx)
		if s.cfg.PaceMS > 0 {
			select {
			case <-ctx.Done():
				return s.stats, ctx.Err()
			case <-time.After(time.Duration(s.cfg.PaceMS) * time.Millisecond):
			}
		}
	}
	s.log.Infof("simulation finished: %d trips completed, %d unservable, %d replans",
		s.stats.Completed, s.stats.Unservable, s.stats.Replans)
	return s.stats, nil
}

// Tick advances the world by one step: events, replanning, dispatch, driving.
func (s *Simulator) Tick(ctx context.Context) {
	s.sched.Advance(s.clock)
	if s.dirty {
		for _, p := range s.plans {
			p.needsReplan = true
		}
		s.dirty = false
	}
	s.assign(ctx)
	sn := s.g.Snapshot()
	for _, v := range s.fleet {
		if p, ok := s.plans[v.ID]; ok {
			s.drive(ctx, sn, p)
		}
	}
	s.clock = s.clock.Add(time.Duration(s.cfg.TickMinutes * float64(time.Minute)))
	s.stats.Ticks++
}

// assign matches due pending requests to the nearest idle vehicle that can
// reach both the pickup and the destination.
func (s *Simulator) assign(ctx context.Context) {
	s.mu.Lock()
	due := make([]*model.Request, 0)
	rest := s.queue[:0]
	for _, r := range s.queue {
		if r.Status == model.RequestPending && !r.Requested.After(s.clock) {
			due = append(due, r)
		} else {
			rest = append(rest, r)
		}
	}
	s.queue = rest
	s.mu.Unlock()

	for _, req := range due {
		pickup, ok1 := s.g.ClosestNode(req.Pickup)
		drop, ok2 := s.g.ClosestNode(req.Dropoff)
		if !ok1 || !ok2 {
			s.unservable(req, "no node near pickup or drop-off")
			continue
		}

		idle := make([]*model.Vehicle, 0, len(s.fleet))
		for _, v := range s.fleet {
			if !v.Busy {
				idle = append(idle, v)
			}
		}
		sort.Slice(idle, func(i, j int) bool {
			ni, _ := s.g.Node(idle[i].Node)
			nj, _ := s.g.Node(idle[j].Node)
			di := req.Pickup.DistanceTo(ni.Pos)
			dj := req.Pickup.DistanceTo(nj.Pos)
			if di != dj {
				return di < dj
			}
			return idle[i].ID < idle[j].ID
		})

		assigned := false
		for _, v := range idle {
			toPickup, err := s.search(ctx, v, v.Node, pickup.ID)
			if err != nil {
				continue
			}
			// Feasibility only; the drop-off leg is searched again at pickup
			// time with the then-current network and resource state.
			if _, err := s.search(ctx, v, pickup.ID, drop.ID); err != nil {
				continue
			}
			v.Busy = true
			req.Status = model.RequestAssigned
			req.VehicleID = v.ID
			s.plans[v.ID] = &plan{
				veh:          v,
				req:          req,
				route:        toPickup,
				pendingStops: append([]routing.Stop(nil), toPickup.Stops...),
				trip: metrics.TripResult{
					VehicleID: v.ID,
					Class:     string(v.Class),
				},
			}
			s.bus.Publish(SimEvent{
				Kind: EventAssigned, Time: s.clock,
				VehicleID: v.ID, RequestID: req.ID,
			})
			s.log.Debugf("request %s assigned to %s (%d nodes to pickup)", req.ID, v.ID, len(toPickup.Nodes))
			assigned = true
			break
		}
		if !assigned {
			s.unservable(req, "no vehicle can serve")
		}
	}
}

func (s *Simulator) search(ctx context.Context, v *model.Vehicle, from, to graph.NodeID) (*routing.Route, error) {
	return s.engine.Search(ctx, routing.Request{
		Origin:      from,
		Destination: to,
		Vehicle:     *v,
		Weights:     s.cfg.Weights,
	})
}

// drive moves one vehicle through its plan for a full tick worth of minutes.
func (s *Simulator) drive(ctx context.Context, sn *graph.Snapshot, p *plan) {
	budget := s.cfg.TickMinutes
	for budget > 0 {
		if p.stopWait > 0 {
			wait := p.stopWait
			if wait > budget {
				wait = budget
			}
			p.stopWait -= wait
			budget -= wait
			p.trip.TimeMin += wait
			if p.stopWait == 0 {
				s.finishStop(p)
			}
			continue
		}
		if p.cur == nil {
			// beginEdge may start a stop or swap the route instead of
			// producing an edge; loop until it does or the plan ends.
			if !s.beginEdge(ctx, sn, p) {
				return
			}
			continue
		}
		in := sn.CostInputs(p.cur)
		if in.SpeedKMH <= 0 {
			return
		}
		need := p.remM / 1000 / in.SpeedKMH * 60
		dt := need
		if dt > budget {
			dt = budget
		}
		travelled := in.SpeedKMH * 1000 / 60 * dt
		if travelled > p.remM {
			travelled = p.remM
		}
		part := in
		part.LengthM = travelled
		use := s.en.Consumption(part, p.veh.Class, p.veh.State)
		p.veh.State = s.en.Apply(p.veh.State, use)

		p.trip.DistanceKM += travelled / 1000
		p.trip.TimeMin += dt
		p.trip.CostEUR += s.en.EnergyCostEUR(use)
		p.trip.CO2Grams += s.en.EmissionsG(p.veh.Class, use)

		p.remM -= travelled
		budget -= dt
		if p.remM <= 1e-9 {
			p.veh.Node = p.cur.To
			p.cur = nil
			p.edgeIdx++
		}
	}
}

// beginEdge sets up the next edge of the plan, executing stops, leg
// transitions and replanning at node boundaries. A false return means the
// plan is gone (trip completed or abandoned).
func (s *Simulator) beginEdge(ctx context.Context, sn *graph.Snapshot, p *plan) bool {
	// A spliced stop fires before the vehicle leaves its node.
	if len(p.pendingStops) > 0 && p.pendingStops[0].AtNode == p.veh.Node {
		stop := p.pendingStops[0]
		p.pendingStops = p.pendingStops[1:]
		// The vehicle is off the route for the detour drive plus the stop
		// itself; both count against the tick budget and the trip clock.
		p.stopWait = stop.Minutes + stop.DetourMinutes
		p.trip.DistanceKM += stop.DetourKM
		p.trip.CostEUR += stop.CostEUR + stop.DetourCostEUR
		p.trip.CO2Grams += stop.DetourCO2Grams
		p.stopKind = stop.Kind
		return true
	}
	if p.needsReplan && p.edgeIdx < len(p.route.Edges) {
		p.needsReplan = false
		target := p.route.Nodes[len(p.route.Nodes)-1]
		if r, err := s.search(ctx, p.veh, p.veh.Node, target); err == nil {
			p.route = r
			p.edgeIdx = 0
			p.pendingStops = append([]routing.Stop(nil), r.Stops...)
			s.stats.Replans++
			s.bus.Publish(SimEvent{
				Kind: EventReplanned, Time: s.clock,
				VehicleID: p.veh.ID, RequestID: p.req.ID,
			})
		} else if errors.Is(err, routing.ErrNoRoute) {
			s.abandon(p, "no route after network change")
			return false
		}
	}
	if p.edgeIdx >= len(p.route.Edges) {
		return s.finishLeg(ctx, p)
	}
	edge, ok := s.g.Edge(p.route.Edges[p.edgeIdx])
	if !ok {
		s.abandon(p, "planned edge vanished")
		return false
	}
	in := sn.CostInputs(edge)
	if !s.en.CanTraverse(in, p.veh.Class, p.veh.State) {
		// Resource drifted below plan; search again from here, the engine
		// splices a refuelling stop if one is reachable.
		if r, err := s.search(ctx, p.veh, p.veh.Node, p.route.Nodes[len(p.route.Nodes)-1]); err == nil {
			p.route = r
			p.edgeIdx = 0
			p.pendingStops = append([]routing.Stop(nil), r.Stops...)
			s.stats.Replans++
			return true
		}
		s.abandon(p, "out of range mid-trip")
		return false
	}
	p.cur = edge
	p.remM = edge.LengthM
	return true
}

// finishStop refills the vehicle once the waiting time has elapsed.
func (s *Simulator) finishStop(p *plan) {
	p.veh.State = s.en.Refill(*p.veh, p.veh.State, p.stopKind)
	p.trip.Refuels++
	s.stats.RefuelStops++
	s.bus.Publish(SimEvent{
		Kind: EventRefuel, Time: s.clock,
		VehicleID: p.veh.ID, RequestID: p.req.ID,
		Detail: string(p.stopKind),
	})
}

// finishLeg handles arrival at the end of the current route: pickup reached
// or trip completed.
func (s *Simulator) finishLeg(ctx context.Context, p *plan) bool {
	if p.leg == 0 {
		p.req.Status = model.RequestPickedUp
		s.bus.Publish(SimEvent{
			Kind: EventPickup, Time: s.clock,
			VehicleID: p.veh.ID, RequestID: p.req.ID,
		})
		drop, ok := s.g.ClosestNode(p.req.Dropoff)
		if !ok {
			s.abandon(p, "no node near drop-off")
			return false
		}
		r, err := s.search(ctx, p.veh, p.veh.Node, drop.ID)
		if err != nil {
			s.abandon(p, "no route to drop-off")
			return false
		}
		p.leg = 1
		p.route = r
		p.edgeIdx = 0
		p.pendingStops = append([]routing.Stop(nil), r.Stops...)
		return true
	}

	p.req.Status = model.RequestCompleted
	p.veh.Busy = false
	p.trip.Time = s.clock
	if err := s.sink.RecordTrip(p.trip); err != nil {
		s.log.Warnf("record trip: %v", err)
	}
	s.stats.Completed++
	s.bus.Publish(SimEvent{
		Kind: EventCompleted, Time: s.clock,
		VehicleID: p.veh.ID, RequestID: p.req.ID,
		Detail: fmt.Sprintf("%.1f km in %.1f min", p.trip.DistanceKM, p.trip.TimeMin),
	})
	s.log.Infof("trip %s completed by %s: %.1f km, %.1f min, %.2f EUR",
		p.req.ID, p.veh.ID, p.trip.DistanceKM, p.trip.TimeMin, p.trip.CostEUR)
	delete(s.plans, p.veh.ID)
	return false
}

// abandon releases the vehicle and marks the request unservable.
func (s *Simulator) abandon(p *plan, why string) {
	p.veh.Busy = false
	delete(s.plans, p.veh.ID)
	s.unservable(p.req, why)
}

func (s *Simulator) unservable(req *model.Request, why string) {
	req.Status = model.RequestUnservable
	req.VehicleID = ""
	s.stats.Unservable++
	s.log.Infof("request %s unservable: %s", req.ID, why)
	s.bus.Publish(SimEvent{
		Kind: EventUnservable, Time: s.clock,
		RequestID: req.ID, Detail: why,
	})
}
