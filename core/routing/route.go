package routing

import (
	"github.com/uberum/fleetsim/core/cost"
	"github.com/uberum/fleetsim/core/graph"
)

// Stop is a refuelling detour spliced into a route. Minutes and CostEUR
// cover the stop itself; the Detour fields price the drive to the station
// and back.
type Stop struct {
	// AtNode is the node the vehicle detours from; Station is where it
	// refuels before resuming the route.
	AtNode         graph.NodeID   `json:"at_node"`
	Station        graph.NodeID   `json:"station"`
	Kind           graph.NodeKind `json:"kind"`
	DetourKM       float64        `json:"detour_km"`
	DetourMinutes  float64        `json:"detour_minutes"`
	DetourCostEUR  float64        `json:"detour_cost_eur"`
	DetourCO2Grams float64        `json:"detour_co2_grams"`
	Minutes        float64        `json:"minutes"`
	CostEUR        float64        `json:"cost_eur"`
}

// Route is the immutable result of a successful search.
type Route struct {
	Nodes      []graph.NodeID `json:"nodes"`
	Edges      []string       `json:"edges"`
	Stops      []Stop         `json:"stops,omitempty"`
	Cost       cost.Vector    `json:"cost"`
	Combined   float64        `json:"combined"`
	Algorithm  Algorithm      `json:"algorithm"`
	Expansions int            `json:"expansions"`
}

// DistanceKM sums the edge lengths of the route, detours included.
func (r *Route) DistanceKM(g *graph.Graph) float64 {
	km := 0.0
	for _, s := range r.Stops {
		km += s.DetourKM
	}
	for i := 0; i+1 < len(r.Nodes); i++ {
		for _, e := range g.OutEdges(r.Nodes[i]) {
			if e.To == r.Nodes[i+1] {
				km += e.LengthM / 1000
				break
			}
		}
	}
	return km
}
