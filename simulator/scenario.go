package simulator

import (
	"fmt"
	"io"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/uberum/fleetsim/core/events"
	"github.com/uberum/fleetsim/core/graph"
	"github.com/uberum/fleetsim/core/model"
)

// NodeDef describes a graph node in a scenario file.
type NodeDef struct {
	ID   int     `yaml:"id" json:"id"`
	X    float64 `yaml:"x" json:"x"`
	Y    float64 `yaml:"y" json:"y"`
	Kind string  `yaml:"kind,omitempty" json:"kind,omitempty"`
}

// EdgeDef describes a directed road segment. When Bidirectional is set a
// reverse edge with the suffix "-r" is added as well.
type EdgeDef struct {
	ID            string  `yaml:"id" json:"id"`
	From          int     `yaml:"from" json:"from"`
	To            int     `yaml:"to" json:"to"`
	LengthM       float64 `yaml:"length_m" json:"length_m"`
	BaseSpeedKMH  float64 `yaml:"base_speed_kmh" json:"base_speed_kmh"`
	Bidirectional bool    `yaml:"bidirectional,omitempty" json:"bidirectional,omitempty"`
}

// EventDef schedules an event relative to the simulation start.
type EventDef struct {
	ID          string   `yaml:"id" json:"id"`
	Kind        string   `yaml:"kind" json:"kind"`
	Edges       []string `yaml:"edges,omitempty" json:"edges,omitempty"`
	CenterX     float64  `yaml:"center_x,omitempty" json:"center_x,omitempty"`
	CenterY     float64  `yaml:"center_y,omitempty" json:"center_y,omitempty"`
	RadiusM     float64  `yaml:"radius_m,omitempty" json:"radius_m,omitempty"`
	Magnitude   float64  `yaml:"magnitude" json:"magnitude"`
	StartMin    int      `yaml:"start_min" json:"start_min"`
	DurationMin int      `yaml:"duration_min" json:"duration_min"`
}

// RequestDef schedules a trip request relative to the simulation start.
type RequestDef struct {
	PickupX  float64 `yaml:"pickup_x" json:"pickup_x"`
	PickupY  float64 `yaml:"pickup_y" json:"pickup_y"`
	DropoffX float64 `yaml:"dropoff_x" json:"dropoff_x"`
	DropoffY float64 `yaml:"dropoff_y" json:"dropoff_y"`
	AtMin    int     `yaml:"at_min" json:"at_min"`
}

// Scenario is a full simulation input: network, fleet, events and requests.
// The fleet section is optional; an empty one is generated from FleetConfig.
type Scenario struct {
	Nodes    []NodeDef       `yaml:"nodes" json:"nodes"`
	Edges    []EdgeDef       `yaml:"edges" json:"edges"`
	Fleet    []model.Vehicle `yaml:"fleet,omitempty" json:"fleet,omitempty"`
	Events   []EventDef      `yaml:"events,omitempty" json:"events,omitempty"`
	Requests []RequestDef    `yaml:"requests,omitempty" json:"requests,omitempty"`
}

// LoadScenario reads a scenario from a YAML file.
func LoadScenario(path string) (*Scenario, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer func() { _ = f.Close() }()
	return DecodeScenario(f)
}

// DecodeScenario reads a YAML scenario from r.
func DecodeScenario(r io.Reader) (*Scenario, error) {
	var sc Scenario
	dec := yaml.NewDecoder(r)
	if err := dec.Decode(&sc); err != nil {
		return nil, fmt.Errorf("decode scenario: %w", err)
	}
	if len(sc.Nodes) == 0 || len(sc.Edges) == 0 {
		return nil, fmt.Errorf("scenario needs nodes and edges")
	}
	return &sc, nil
}

// BuildGraph assembles the scenario's road network.
func (sc *Scenario) BuildGraph(minFactor float64) (*graph.Graph, error) {
	nodes := make([]graph.Node, 0, len(sc.Nodes))
	for _, n := range sc.Nodes {
		kind := graph.NodeKind(n.Kind)
		if kind == "" {
			kind = graph.KindGeneric
		}
		nodes = append(nodes, graph.Node{
			ID:   graph.NodeID(n.ID),
			Pos:  graph.Position{X: n.X, Y: n.Y},
			Kind: kind,
		})
	}
	edges := make([]graph.Edge, 0, len(sc.Edges))
	for _, e := range sc.Edges {
		edges = append(edges, graph.Edge{
			ID:           e.ID,
			From:         graph.NodeID(e.From),
			To:           graph.NodeID(e.To),
			LengthM:      e.LengthM,
			BaseSpeedKMH: e.BaseSpeedKMH,
		})
		if e.Bidirectional {
			edges = append(edges, graph.Edge{
				ID:           e.ID + "-r",
				From:         graph.NodeID(e.To),
				To:           graph.NodeID(e.From),
				LengthM:      e.LengthM,
				BaseSpeedKMH: e.BaseSpeedKMH,
			})
		}
	}
	return graph.Build(nodes, edges, minFactor)
}

// Event converts the definition into a scheduler event anchored at start.
func (d EventDef) Event(start time.Time) events.Event {
	ev := events.Event{
		ID:        d.ID,
		Kind:      events.Kind(d.Kind),
		Edges:     d.Edges,
		Magnitude: d.Magnitude,
		Start:     start.Add(time.Duration(d.StartMin) * time.Minute),
		Duration:  time.Duration(d.DurationMin) * time.Minute,
	}
	if d.RadiusM > 0 {
		ev.Center = &graph.Position{X: d.CenterX, Y: d.CenterY}
		ev.RadiusM = d.RadiusM
	}
	return ev
}

// Request converts the definition into a pending trip request.
func (d RequestDef) Request(start time.Time) model.Request {
	return model.NewRequest(
		graph.Position{X: d.PickupX, Y: d.PickupY},
		graph.Position{X: d.DropoffX, Y: d.DropoffY},
		start.Add(time.Duration(d.AtMin)*time.Minute),
	)
}
