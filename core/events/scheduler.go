package events

import (
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/uberum/fleetsim/core/graph"
	"github.com/uberum/fleetsim/core/logger"
)

// Applied describes an event that has been applied to the graph, together
// with the concrete edges it touched.
type Applied struct {
	Event Event
	Edges []string
}

// Scheduler owns every mutation of the graph's dynamic factors. Events are
// submitted up front, applied when the simulation clock passes their start
// and reverted when it passes their end. Overlapping events on one edge
// compose multiplicatively; reverting divides the event's own factor back
// out, so the remaining events keep their exact contribution.
type Scheduler struct {
	mu      sync.Mutex
	g       *graph.Graph
	log     logger.Logger
	pending []Event
	active  map[string]Applied
	onApply func(Applied)
}

// NewScheduler creates a scheduler bound to the graph.
func NewScheduler(g *graph.Graph, log logger.Logger) *Scheduler {
	return &Scheduler{g: g, log: log, active: make(map[string]Applied)}
}

// OnApply registers a hook invoked after each successful application.
func (s *Scheduler) OnApply(fn func(Applied)) {
	s.mu.Lock()
	s.onApply = fn
	s.mu.Unlock()
}

// Submit queues an event. Events with an explicit edge list are checked
// against the graph immediately; a reference to an unknown edge rejects the
// whole event with ErrEventOutOfRange.
//
// Application happens on Advance, so an event whose whole window falls
// between two Advance calls never takes effect. Durations should be at
// least one clock interval.
func (s *Scheduler) Submit(ev Event) error {
	if err := ev.Validate(); err != nil {
		return err
	}
	for _, id := range ev.Edges {
		if !s.g.HasEdge(id) {
			return fmt.Errorf("%w: edge %s", ErrEventOutOfRange, id)
		}
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.pending = append(s.pending, ev)
	sort.SliceStable(s.pending, func(i, j int) bool { return s.pending[i].Start.Before(s.pending[j].Start) })
	return nil
}

// Advance moves the scheduler clock to now: events whose window has been
// entered are applied, events whose window has passed are reverted. An event
// that resolves to no edges is logged and dropped.
func (s *Scheduler) Advance(now time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for id, ap := range s.active {
		if !ap.Event.End().After(now) {
			s.revert(ap)
			delete(s.active, id)
		}
	}

	var rest []Event
	for _, ev := range s.pending {
		if ev.Start.After(now) {
			rest = append(rest, ev)
			continue
		}
		if ev.End().After(now) {
			s.apply(ev)
		} else {
			// The whole window fell between two Advance calls.
			s.log.Warnf("event %s expired before it could apply, dropped", ev.ID)
		}
	}
	s.pending = rest
}

// ActiveAt lists the events acting at t, both applied and still queued.
func (s *Scheduler) ActiveAt(t time.Time) []Event {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []Event
	for _, ap := range s.active {
		if !ap.Event.Start.After(t) && ap.Event.End().After(t) {
			out = append(out, ap.Event)
		}
	}
	for _, ev := range s.pending {
		if !ev.Start.After(t) && ev.End().After(t) {
			out = append(out, ev)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

func (s *Scheduler) apply(ev Event) {
	edges := s.resolve(ev)
	if len(edges) == 0 {
		s.log.Warnf("event %s resolves to no edges, dropped", ev.ID)
		return
	}
	// All edges of one event change under a single lock hold, so a search
	// snapshotting concurrently sees the event either fully applied or not
	// at all.
	var err error
	switch ev.Kind {
	case KindWeather:
		err = s.g.ScaleWeatherMany(edges, ev.Magnitude)
	case KindTraffic:
		err = s.g.ScaleTrafficMany(edges, ev.Magnitude)
	case KindClosure:
		err = s.g.CloseMany(edges)
	}
	if err != nil {
		s.log.Errorf("event %s: %v", ev.ID, err)
		return
	}
	ap := Applied{Event: ev, Edges: edges}
	s.active[ev.ID] = ap
	s.log.Infof("event %s (%s) applied to %d edges", ev.ID, ev.Kind, len(edges))
	if s.onApply != nil {
		s.onApply(ap)
	}
}

func (s *Scheduler) revert(ap Applied) {
	var err error
	switch ap.Event.Kind {
	case KindWeather:
		err = s.g.ScaleWeatherMany(ap.Edges, 1/ap.Event.Magnitude)
	case KindTraffic:
		err = s.g.ScaleTrafficMany(ap.Edges, 1/ap.Event.Magnitude)
	case KindClosure:
		err = s.g.ReopenMany(ap.Edges)
	}
	if err != nil {
		s.log.Errorf("revert %s: %v", ap.Event.ID, err)
		return
	}
	s.log.Infof("event %s reverted", ap.Event.ID)
}

// resolve maps the event's region to concrete edge ids. Explicit lists were
// validated at Submit time. A radius affects every edge leaving a node whose
// position falls inside the circle.
func (s *Scheduler) resolve(ev Event) []string {
	if len(ev.Edges) > 0 {
		return ev.Edges
	}
	var out []string
	for _, n := range s.g.Nodes() {
		if ev.Center.DistanceTo(n.Pos) > ev.RadiusM {
			continue
		}
		for _, e := range s.g.OutEdges(n.ID) {
			out = append(out, e.ID)
		}
	}
	return out
}
