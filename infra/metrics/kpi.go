package metrics

import (
	"sort"
	"sync"

	"gonum.org/v1/gonum/stat"

	coremetrics "github.com/uberum/fleetsim/core/metrics"
)

// KPISink accumulates trip results in memory and produces an aggregate
// report at the end of a simulation run.
type KPISink struct {
	mu    sync.Mutex
	trips []coremetrics.TripResult
}

// NewKPISink creates an empty sink.
func NewKPISink() *KPISink { return &KPISink{} }

func (s *KPISink) RecordSearch(coremetrics.SearchResult) error { return nil }

func (s *KPISink) RecordTrip(r coremetrics.TripResult) error {
	s.mu.Lock()
	s.trips = append(s.trips, r)
	s.mu.Unlock()
	return nil
}

func (s *KPISink) RecordEvent(coremetrics.AppliedEvent) error { return nil }

// Report aggregates the fleet's performance over the collected trips.
type Report struct {
	Trips           int     `json:"trips"`
	TotalDistanceKM float64 `json:"total_distance_km"`
	TotalCO2Grams   float64 `json:"total_co2_g"`
	TotalRefuels    int     `json:"total_refuels"`
	MeanTimeMin     float64 `json:"mean_time_min"`
	StdDevTimeMin   float64 `json:"stddev_time_min"`
	MedianCostEUR   float64 `json:"median_cost_eur"`
	P90CostEUR      float64 `json:"p90_cost_eur"`
}

// Report computes the aggregate over everything recorded so far.
func (s *KPISink) Report() Report {
	s.mu.Lock()
	defer s.mu.Unlock()
	rep := Report{Trips: len(s.trips)}
	if len(s.trips) == 0 {
		return rep
	}
	times := make([]float64, 0, len(s.trips))
	costs := make([]float64, 0, len(s.trips))
	for _, t := range s.trips {
		rep.TotalDistanceKM += t.DistanceKM
		rep.TotalCO2Grams += t.CO2Grams
		rep.TotalRefuels += t.Refuels
		times = append(times, t.TimeMin)
		costs = append(costs, t.CostEUR)
	}
	sort.Float64s(costs)
	rep.MeanTimeMin, rep.StdDevTimeMin = stat.MeanStdDev(times, nil)
	rep.MedianCostEUR = stat.Quantile(0.5, stat.Empirical, costs, nil)
	rep.P90CostEUR = stat.Quantile(0.9, stat.Empirical, costs, nil)
	return rep
}
