package cost

import (
	"github.com/uberum/fleetsim/core/graph"
	"github.com/uberum/fleetsim/core/model"
)

// Heuristic estimates the remaining combined cost from a position to the
// destination. It is admissible by construction: every dimension is bounded
// below using the straight-line distance, the network's fastest free-flow
// speed and the cheapest per-km rates of the class, and Combine is linear
// with non-negative weights. A* optimality depends on this bound.
func (m *Model) Heuristic(sn *graph.Snapshot, from, to graph.Position, class model.VehicleClass, w Weights) float64 {
	km := from.DistanceTo(to) / 1000
	if km == 0 {
		return 0
	}
	floor := Vector{
		TimeMin:  km / sn.MaxBaseSpeed() * 60,
		CostEUR:  km * m.energy.MoneyFloorPerKM(class),
		CO2Grams: km * m.energy.EmissionsFloorPerKM(class),
		// Traffic penalty is zero on an unimpeded path.
	}
	return m.Combine(floor, w)
}
