// Package cost turns edge traversals into multi-dimensional cost vectors and
// combines them under a configurable convex weighting.
package cost

import (
	"fmt"
	"math"

	"github.com/uberum/fleetsim/core/energy"
	"github.com/uberum/fleetsim/core/graph"
	"github.com/uberum/fleetsim/core/model"
)

// Vector is the cost of a traversal split per optimization dimension.
type Vector struct {
	TimeMin        float64 `json:"time_min"`
	CostEUR        float64 `json:"cost_eur"`
	CO2Grams       float64 `json:"co2_g"`
	TrafficPenalty float64 `json:"traffic_penalty"`
}

// Add returns the element-wise sum of two vectors.
func (v Vector) Add(o Vector) Vector {
	return Vector{
		TimeMin:        v.TimeMin + o.TimeMin,
		CostEUR:        v.CostEUR + o.CostEUR,
		CO2Grams:       v.CO2Grams + o.CO2Grams,
		TrafficPenalty: v.TrafficPenalty + o.TrafficPenalty,
	}
}

// Weights is a convex weighting over the cost dimensions: each weight is
// non-negative and they sum to one.
type Weights struct {
	Time    float64 `json:"time" yaml:"time"`
	Cost    float64 `json:"cost" yaml:"cost"`
	CO2     float64 `json:"co2" yaml:"co2"`
	Traffic float64 `json:"traffic" yaml:"traffic"`
}

// Validate checks the convexity constraint.
func (w Weights) Validate() error {
	for _, v := range []float64{w.Time, w.Cost, w.CO2, w.Traffic} {
		if v < 0 {
			return fmt.Errorf("weights must be non-negative, got %v", v)
		}
	}
	sum := w.Time + w.Cost + w.CO2 + w.Traffic
	if math.Abs(sum-1) > 1e-6 {
		return fmt.Errorf("weights must sum to 1, got %v", sum)
	}
	return nil
}

// TimeOnly optimizes travel time exclusively.
func TimeOnly() Weights { return Weights{Time: 1} }

// DefaultWeights balances response time, operating cost and emissions.
func DefaultWeights() Weights { return Weights{Time: 0.35, Cost: 0.50, CO2: 0.15} }

// Config normalizes the money and emission dimensions so they are comparable
// with minutes when combined.
type Config struct {
	// CostBaseEUR is the typical operating cost of one km, used to scale the
	// money dimension.
	CostBaseEUR float64 `json:"cost_base_eur" yaml:"cost_base_eur"`
	// CO2BaseG is the typical per-km emission of a mixed fleet.
	CO2BaseG float64 `json:"co2_base_g" yaml:"co2_base_g"`
}

// SetDefaults applies the normalization bases of an average fleet.
func (c *Config) SetDefaults() {
	if c.CostBaseEUR == 0 {
		c.CostBaseEUR = 0.15
	}
	if c.CO2BaseG == 0 {
		c.CO2BaseG = 60
	}
}

// Model prices edges for a given vehicle class.
type Model struct {
	cfg    Config
	energy *energy.Model
}

// NewModel builds a cost model on top of the energy model's rates.
func NewModel(cfg Config, en *energy.Model) *Model {
	cfg.SetDefaults()
	return &Model{cfg: cfg, energy: en}
}

// EdgeCost prices a traversal of the edge for the class, starting from the
// given resource state (the state matters for hybrids, whose battery/fuel
// split changes money and emissions).
func (m *Model) EdgeCost(in graph.CostInputs, class model.VehicleClass, st model.ResourceState) Vector {
	km := in.LengthM / 1000
	use := m.energy.Consumption(in, class, st)
	v := Vector{
		TimeMin:  km / in.SpeedKMH * 60,
		CostEUR:  m.energy.EnergyCostEUR(use),
		CO2Grams: m.energy.EmissionsG(class, use),
	}
	if in.SpeedKMH < in.BaseSpeedKMH {
		v.TrafficPenalty = (in.BaseSpeedKMH/in.SpeedKMH - 1) * km
	}
	return v
}

// Combine reduces a vector to a scalar under the weights. Money and CO2 are
// divided by their per-km bases so all dimensions share a scale.
func (m *Model) Combine(v Vector, w Weights) float64 {
	return w.Time*v.TimeMin +
		w.Cost*v.CostEUR/m.cfg.CostBaseEUR +
		w.CO2*v.CO2Grams/m.cfg.CO2BaseG +
		w.Traffic*v.TrafficPenalty
}
