package simulator

import (
	"fmt"
	"math/rand"

	"github.com/uberum/fleetsim/core/graph"
	"github.com/uberum/fleetsim/core/model"
)

// FleetConfig drives random fleet generation when a scenario carries no
// explicit fleet section.
type FleetConfig struct {
	Size               int     `json:"size" yaml:"size"`
	ElectricPct        float64 `json:"electric_pct" yaml:"electric_pct"`
	HybridPct          float64 `json:"hybrid_pct" yaml:"hybrid_pct"`
	BatteryCapacityKWh float64 `json:"battery_capacity_kwh" yaml:"battery_capacity_kwh"`
	FuelCapacityL      float64 `json:"fuel_capacity_l" yaml:"fuel_capacity_l"`
	MinLevelPct        float64 `json:"min_level_pct" yaml:"min_level_pct"`
}

// SetDefaults fills zero fields with standard fleet parameters.
func (c *FleetConfig) SetDefaults() {
	if c.Size == 0 {
		c.Size = 20
	}
	if c.ElectricPct == 0 {
		c.ElectricPct = 0.4
	}
	if c.HybridPct == 0 {
		c.HybridPct = 0.2
	}
	if c.BatteryCapacityKWh == 0 {
		c.BatteryCapacityKWh = 60
	}
	if c.FuelCapacityL == 0 {
		c.FuelCapacityL = 50
	}
	if c.MinLevelPct == 0 {
		c.MinLevelPct = 0.5
	}
}

// Validate checks the class mix and capacities.
func (c FleetConfig) Validate() error {
	if c.Size <= 0 {
		return fmt.Errorf("fleet size must be positive")
	}
	if c.ElectricPct < 0 || c.HybridPct < 0 || c.ElectricPct+c.HybridPct > 1 {
		return fmt.Errorf("class percentages must be non-negative and sum to at most 1")
	}
	if c.MinLevelPct <= 0 || c.MinLevelPct > 1 {
		return fmt.Errorf("min level pct must be in (0, 1]")
	}
	return nil
}

// GenerateFleet builds a random fleet spread over the given nodes. The same
// seed always produces the same fleet.
func GenerateFleet(cfg FleetConfig, nodes []graph.NodeID, rng *rand.Rand) ([]model.Vehicle, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if len(nodes) == 0 {
		return nil, fmt.Errorf("no nodes to place vehicles on")
	}
	fleet := make([]model.Vehicle, 0, cfg.Size)
	for i := 0; i < cfg.Size; i++ {
		v := model.Vehicle{
			ID:   fmt.Sprintf("taxi%04d", i+1),
			Node: nodes[rng.Intn(len(nodes))],
		}
		switch r := rng.Float64(); {
		case r < cfg.ElectricPct:
			v.Class = model.ClassElectric
			v.BatteryCapacityKWh = cfg.BatteryCapacityKWh
		case r < cfg.ElectricPct+cfg.HybridPct:
			v.Class = model.ClassHybrid
			// Hybrids carry a small battery next to a slightly smaller tank.
			v.BatteryCapacityKWh = cfg.BatteryCapacityKWh * 0.22
			v.FuelCapacityL = cfg.FuelCapacityL * 0.9
		default:
			v.Class = model.ClassCombustion
			v.FuelCapacityL = cfg.FuelCapacityL
		}
		// Start levels somewhere between MinLevelPct and full.
		level := cfg.MinLevelPct + rng.Float64()*(1-cfg.MinLevelPct)
		v.State = model.ResourceState{
			BatteryKWh: v.BatteryCapacityKWh * level,
			FuelL:      v.FuelCapacityL * level,
		}
		if err := v.Validate(); err != nil {
			return nil, err
		}
		fleet = append(fleet, v)
	}
	return fleet, nil
}
