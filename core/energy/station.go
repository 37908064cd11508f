package energy

import (
	"github.com/uberum/fleetsim/core/graph"
	"github.com/uberum/fleetsim/core/model"
)

// StationKind returns the station type the vehicle should visit. Hybrids
// head for whichever resource is lower, preferring fuel when both are low
// because filling up is faster than a full recharge.
func (m *Model) StationKind(v model.Vehicle) graph.NodeKind {
	switch v.Class {
	case model.ClassElectric:
		return graph.KindCharging
	case model.ClassCombustion:
		return graph.KindFuel
	case model.ClassHybrid:
		battPct, fuelPct := v.BatteryPct(), v.FuelPct()
		if fuelPct < 30 && battPct < 30 {
			return graph.KindFuel
		}
		if fuelPct < battPct {
			return graph.KindFuel
		}
		return graph.KindCharging
	}
	return graph.KindFuel
}

// NearestStation finds the closest refuelling point for the vehicle by
// straight-line distance, or reports that none exists.
func (m *Model) NearestStation(sn *graph.Snapshot, from graph.Position, v model.Vehicle) (*graph.Node, bool) {
	return sn.NearestOfKind(from, m.StationKind(v))
}

// StopPenalty returns the time and money cost of a refuelling stop that
// brings the vehicle from st back to full capacity at a station of the
// given kind.
func (m *Model) StopPenalty(v model.Vehicle, st model.ResourceState, kind graph.NodeKind) (minutes, eur float64) {
	// Stations refill only their own resource.
	if kind == graph.KindCharging {
		return m.cfg.RechargeMinutes, (v.BatteryCapacityKWh - st.BatteryKWh) * m.cfg.BatteryEURPerKWh
	}
	return m.cfg.RefuelMinutes, (v.FuelCapacityL - st.FuelL) * m.cfg.FuelEURPerLiter
}

// Refill returns the state after a stop at a station of the given kind.
// Only the station's own resource is reset to capacity.
func (m *Model) Refill(v model.Vehicle, st model.ResourceState, kind graph.NodeKind) model.ResourceState {
	if kind == graph.KindCharging {
		st.BatteryKWh = v.BatteryCapacityKWh
	} else {
		st.FuelL = v.FuelCapacityL
	}
	return st
}
