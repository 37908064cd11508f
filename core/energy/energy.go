// Package energy models per-class resource consumption of the fleet and the
// refuelling policy used to splice charging stops into routes.
package energy

import (
	"errors"
	"fmt"

	"github.com/uberum/fleetsim/core/graph"
	"github.com/uberum/fleetsim/core/model"
)

// ClassRate describes how one resource is consumed by a vehicle class.
type ClassRate struct {
	// Per100KM is the free-flow consumption in kWh or litres per 100 km.
	Per100KM float64 `json:"per_100km" yaml:"per_100km"`
	// CongestionFactor scales the extra burn when the current speed drops
	// below free flow. Combustion engines suffer more than electric motors,
	// so the factor is configured per class.
	CongestionFactor float64 `json:"congestion_factor" yaml:"congestion_factor"`
	// EmissionsGPerKM is the CO2 emitted per km driven on this resource.
	EmissionsGPerKM float64 `json:"emissions_g_per_km" yaml:"emissions_g_per_km"`
}

// Config holds energy prices, consumption rates and the refuelling policy.
type Config struct {
	BatteryEURPerKWh float64 `json:"battery_eur_per_kwh" yaml:"battery_eur_per_kwh"`
	FuelEURPerLiter  float64 `json:"fuel_eur_per_liter" yaml:"fuel_eur_per_liter"`

	RefuelMinutes   float64 `json:"refuel_minutes" yaml:"refuel_minutes"`
	RechargeMinutes float64 `json:"recharge_minutes" yaml:"recharge_minutes"`
	// SafetyMargin widens feasibility checks so a vehicle never plans a leg
	// it can only just finish.
	SafetyMargin float64 `json:"safety_margin" yaml:"safety_margin"`

	Electric      ClassRate `json:"electric" yaml:"electric"`
	Combustion    ClassRate `json:"combustion" yaml:"combustion"`
	HybridBattery ClassRate `json:"hybrid_battery" yaml:"hybrid_battery"`
	HybridFuel    ClassRate `json:"hybrid_fuel" yaml:"hybrid_fuel"`
}

// SetDefaults applies rates observed on an average urban fleet.
func (c *Config) SetDefaults() {
	if c.BatteryEURPerKWh == 0 {
		c.BatteryEURPerKWh = 0.15
	}
	if c.FuelEURPerLiter == 0 {
		c.FuelEURPerLiter = 1.80
	}
	if c.RefuelMinutes == 0 {
		c.RefuelMinutes = 5
	}
	if c.RechargeMinutes == 0 {
		c.RechargeMinutes = 30
	}
	if c.SafetyMargin == 0 {
		c.SafetyMargin = 0.15
	}
	if c.Electric.Per100KM == 0 {
		c.Electric = ClassRate{Per100KM: 16, CongestionFactor: 0.10}
	}
	if c.Combustion.Per100KM == 0 {
		c.Combustion = ClassRate{Per100KM: 7, CongestionFactor: 0.35, EmissionsGPerKM: 120}
	}
	if c.HybridBattery.Per100KM == 0 {
		c.HybridBattery = ClassRate{Per100KM: 18, CongestionFactor: 0.10}
	}
	if c.HybridFuel.Per100KM == 0 {
		c.HybridFuel = ClassRate{Per100KM: 5, CongestionFactor: 0.30, EmissionsGPerKM: 90}
	}
}

// Validate rejects configurations that would break feasibility checks.
func (c Config) Validate() error {
	if c.SafetyMargin < 0 || c.SafetyMargin >= 1 {
		return fmt.Errorf("safety margin must be in [0,1), got %v", c.SafetyMargin)
	}
	for _, r := range []ClassRate{c.Electric, c.Combustion, c.HybridBattery, c.HybridFuel} {
		if r.Per100KM <= 0 {
			return errors.New("consumption rates must be positive")
		}
		if r.CongestionFactor < 0 {
			return errors.New("congestion factors must be non-negative")
		}
	}
	return nil
}

// Use is the resource spent on a traversal, split per resource. The KM
// fields record how the distance was covered, which drives emissions.
type Use struct {
	BatteryKWh float64
	FuelL      float64
	BatteryKM  float64
	FuelKM     float64
}

// Model evaluates consumption and refuelling for the configured fleet.
type Model struct {
	cfg Config
}

// NewModel validates the config and builds a Model.
func NewModel(cfg Config) (*Model, error) {
	cfg.SetDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return &Model{cfg: cfg}, nil
}

// Config returns the effective configuration.
func (m *Model) Config() Config { return m.cfg }

func (r ClassRate) perKM(in graph.CostInputs) float64 {
	mult := 1.0
	if in.SpeedKMH > 0 && in.SpeedKMH < in.BaseSpeedKMH {
		mult += r.CongestionFactor * (in.BaseSpeedKMH/in.SpeedKMH - 1)
	}
	return r.Per100KM / 100 * mult
}

// Consumption returns the resource spent traversing the edge from the given
// state. Hybrids drain the battery first and fall back to fuel.
func (m *Model) Consumption(in graph.CostInputs, class model.VehicleClass, st model.ResourceState) Use {
	km := in.LengthM / 1000
	switch class {
	case model.ClassElectric:
		return Use{BatteryKWh: m.cfg.Electric.perKM(in) * km, BatteryKM: km}
	case model.ClassCombustion:
		return Use{FuelL: m.cfg.Combustion.perKM(in) * km, FuelKM: km}
	case model.ClassHybrid:
		bPerKM := m.cfg.HybridBattery.perKM(in)
		battKM := km
		if need := bPerKM * km; need > st.BatteryKWh {
			battKM = st.BatteryKWh / bPerKM
		}
		fuelKM := km - battKM
		return Use{
			BatteryKWh: bPerKM * battKM,
			FuelL:      m.cfg.HybridFuel.perKM(in) * fuelKM,
			BatteryKM:  battKM,
			FuelKM:     fuelKM,
		}
	}
	return Use{}
}

// CanTraverse reports whether the state covers the edge with the safety
// margin applied.
func (m *Model) CanTraverse(in graph.CostInputs, class model.VehicleClass, st model.ResourceState) bool {
	padded := in
	padded.LengthM *= 1 + m.cfg.SafetyMargin
	use := m.Consumption(padded, class, st)
	return st.BatteryKWh >= use.BatteryKWh && st.FuelL >= use.FuelL
}

// Apply debits the use from the state, clamping at empty.
func (m *Model) Apply(st model.ResourceState, use Use) model.ResourceState {
	st.BatteryKWh -= use.BatteryKWh
	st.FuelL -= use.FuelL
	if st.BatteryKWh < 0 {
		st.BatteryKWh = 0
	}
	if st.FuelL < 0 {
		st.FuelL = 0
	}
	return st
}

// RangeKM estimates the free-flow distance the state still covers.
func (m *Model) RangeKM(class model.VehicleClass, st model.ResourceState) float64 {
	switch class {
	case model.ClassElectric:
		return st.BatteryKWh / (m.cfg.Electric.Per100KM / 100)
	case model.ClassCombustion:
		return st.FuelL / (m.cfg.Combustion.Per100KM / 100)
	case model.ClassHybrid:
		return st.BatteryKWh/(m.cfg.HybridBattery.Per100KM/100) +
			st.FuelL/(m.cfg.HybridFuel.Per100KM/100)
	}
	return 0
}

// CanCoverKM reports whether the state covers km of free-flow driving with
// the safety margin applied.
func (m *Model) CanCoverKM(km float64, class model.VehicleClass, st model.ResourceState) bool {
	return m.RangeKM(class, st) >= km*(1+m.cfg.SafetyMargin)
}

// EmissionsG converts a Use into grams of CO2.
func (m *Model) EmissionsG(class model.VehicleClass, use Use) float64 {
	switch class {
	case model.ClassCombustion:
		return m.cfg.Combustion.EmissionsGPerKM * use.FuelKM
	case model.ClassHybrid:
		return m.cfg.HybridFuel.EmissionsGPerKM * use.FuelKM
	}
	return 0
}

// EnergyCostEUR prices a Use at the configured tariffs.
func (m *Model) EnergyCostEUR(use Use) float64 {
	return use.BatteryKWh*m.cfg.BatteryEURPerKWh + use.FuelL*m.cfg.FuelEURPerLiter
}

// MoneyFloorPerKM is the cheapest possible per-km cost for a class, used by
// admissible heuristics. It assumes free flow; congestion only raises cost.
func (m *Model) MoneyFloorPerKM(class model.VehicleClass) float64 {
	switch class {
	case model.ClassElectric:
		return m.cfg.Electric.Per100KM / 100 * m.cfg.BatteryEURPerKWh
	case model.ClassCombustion:
		return m.cfg.Combustion.Per100KM / 100 * m.cfg.FuelEURPerLiter
	case model.ClassHybrid:
		batt := m.cfg.HybridBattery.Per100KM / 100 * m.cfg.BatteryEURPerKWh
		fuel := m.cfg.HybridFuel.Per100KM / 100 * m.cfg.FuelEURPerLiter
		if batt < fuel {
			return batt
		}
		return fuel
	}
	return 0
}

// EmissionsFloorPerKM is the lowest per-km CO2 a class can achieve. Electric
// and hybrid floors are zero: a hybrid may ride its battery the whole way.
func (m *Model) EmissionsFloorPerKM(class model.VehicleClass) float64 {
	if class == model.ClassCombustion {
		return m.cfg.Combustion.EmissionsGPerKM
	}
	return 0
}
