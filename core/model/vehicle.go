package model

import (
	"fmt"

	"github.com/uberum/fleetsim/core/graph"
)

// VehicleClass identifies the drivetrain of a taxi.
type VehicleClass string

const (
	ClassElectric   VehicleClass = "electric"
	ClassCombustion VehicleClass = "combustion"
	ClassHybrid     VehicleClass = "hybrid"
)

// ParseClass converts a string into a VehicleClass.
func ParseClass(s string) (VehicleClass, error) {
	switch VehicleClass(s) {
	case ClassElectric, ClassCombustion, ClassHybrid:
		return VehicleClass(s), nil
	}
	return "", fmt.Errorf("unknown vehicle class %q", s)
}

// ResourceState is the remaining fuel and charge of a vehicle. Electric
// vehicles use only BatteryKWh, combustion only FuelL, hybrids both.
type ResourceState struct {
	BatteryKWh float64 `json:"battery_kwh" yaml:"battery_kwh"`
	FuelL      float64 `json:"fuel_l" yaml:"fuel_l"`
}

// Vehicle represents a taxi of the fleet. The search engine reads vehicles
// as value snapshots; only the simulation loop mutates the real state.
type Vehicle struct {
	ID                 string        `json:"id" yaml:"id"`
	Class              VehicleClass  `json:"class" yaml:"class"`
	Node               graph.NodeID  `json:"node" yaml:"node"`
	BatteryCapacityKWh float64       `json:"battery_capacity_kwh" yaml:"battery_capacity_kwh"`
	FuelCapacityL      float64       `json:"fuel_capacity_l" yaml:"fuel_capacity_l"`
	State              ResourceState `json:"state" yaml:"state"`
	Busy               bool          `json:"-" yaml:"-"`
}

// Validate checks that capacities match the vehicle class.
func (v Vehicle) Validate() error {
	switch v.Class {
	case ClassElectric:
		if v.BatteryCapacityKWh <= 0 {
			return fmt.Errorf("vehicle %s: battery capacity must be positive", v.ID)
		}
	case ClassCombustion:
		if v.FuelCapacityL <= 0 {
			return fmt.Errorf("vehicle %s: fuel capacity must be positive", v.ID)
		}
	case ClassHybrid:
		if v.BatteryCapacityKWh <= 0 || v.FuelCapacityL <= 0 {
			return fmt.Errorf("vehicle %s: hybrid needs both capacities", v.ID)
		}
	default:
		return fmt.Errorf("vehicle %s: unknown class %q", v.ID, v.Class)
	}
	if v.State.BatteryKWh < 0 || v.State.BatteryKWh > v.BatteryCapacityKWh {
		return fmt.Errorf("vehicle %s: battery level out of [0, capacity]", v.ID)
	}
	if v.State.FuelL < 0 || v.State.FuelL > v.FuelCapacityL {
		return fmt.Errorf("vehicle %s: fuel level out of [0, capacity]", v.ID)
	}
	return nil
}

// BatteryPct returns the charge level as a percentage of capacity.
func (v Vehicle) BatteryPct() float64 {
	if v.BatteryCapacityKWh == 0 {
		return 0
	}
	return v.State.BatteryKWh / v.BatteryCapacityKWh * 100
}

// FuelPct returns the fuel level as a percentage of capacity.
func (v Vehicle) FuelPct() float64 {
	if v.FuelCapacityL == 0 {
		return 0
	}
	return v.State.FuelL / v.FuelCapacityL * 100
}

// Full returns the state with every tank and battery at capacity.
func (v Vehicle) Full() ResourceState {
	return ResourceState{BatteryKWh: v.BatteryCapacityKWh, FuelL: v.FuelCapacityL}
}
