package events

import (
	"errors"
	"fmt"
	"time"

	"github.com/uberum/fleetsim/core/graph"
)

// Kind discriminates event types.
type Kind string

const (
	KindWeather Kind = "weather"
	KindTraffic Kind = "traffic"
	KindClosure Kind = "closure"
)

// ErrEventOutOfRange marks an event that references edges or regions absent
// from the graph. Such events are dropped, never partially applied.
var ErrEventOutOfRange = errors.New("event out of graph range")

// Event is a time-bounded perturbation of edge factors. It affects either an
// explicit edge list or every edge leaving a node within RadiusM of Center.
type Event struct {
	ID        string          `json:"id" yaml:"id"`
	Kind      Kind            `json:"kind" yaml:"kind"`
	Edges     []string        `json:"edges,omitempty" yaml:"edges,omitempty"`
	Center    *graph.Position `json:"center,omitempty" yaml:"center,omitempty"`
	RadiusM   float64         `json:"radius_m,omitempty" yaml:"radius_m,omitempty"`
	Magnitude float64         `json:"magnitude" yaml:"magnitude"`
	Start     time.Time       `json:"start" yaml:"start"`
	Duration  time.Duration   `json:"duration" yaml:"duration"`
}

// End returns the instant the event stops acting.
func (e Event) End() time.Time { return e.Start.Add(e.Duration) }

// Validate checks structural soundness independent of any graph.
func (e Event) Validate() error {
	switch e.Kind {
	case KindWeather, KindTraffic:
		if e.Magnitude <= 0 || e.Magnitude > 1 {
			return fmt.Errorf("magnitude must be in (0,1], got %v", e.Magnitude)
		}
	case KindClosure:
	default:
		return fmt.Errorf("unknown event kind %q", e.Kind)
	}
	if len(e.Edges) == 0 && (e.Center == nil || e.RadiusM <= 0) {
		return errors.New("event needs either an edge list or a center with radius")
	}
	if e.Duration <= 0 {
		return errors.New("duration must be positive")
	}
	return nil
}
