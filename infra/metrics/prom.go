package metrics

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"

	coremetrics "github.com/uberum/fleetsim/core/metrics"
)

// PromSink records engine and simulation events in Prometheus metrics.
type PromSink struct {
	searches   *prometheus.CounterVec
	expansions *prometheus.HistogramVec
	combined   *prometheus.HistogramVec
	trips      *prometheus.CounterVec
	tripCO2    prometheus.Counter
	events     *prometheus.CounterVec
}

// NewPromSink registers metrics on the default Prometheus registerer. The
// Prometheus server should be started separately using cfg.PrometheusPort.
func NewPromSink(cfg coremetrics.Config) (coremetrics.Sink, error) {
	return NewPromSinkWithRegistry(cfg, prometheus.DefaultRegisterer)
}

// NewPromSinkWithRegistry registers metrics on the provided registerer.
// A nil registerer defaults to the global Prometheus registerer.
func NewPromSinkWithRegistry(_ coremetrics.Config, reg prometheus.Registerer) (coremetrics.Sink, error) {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	s := &PromSink{
		searches: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "routing_searches_total",
			Help: "Total number of route searches by algorithm and outcome",
		}, []string{"algorithm", "outcome"}),
		expansions: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "routing_search_expansions",
			Help:    "Number of frontier expansions per search",
			Buckets: prometheus.ExponentialBuckets(1, 4, 10),
		}, []string{"algorithm"}),
		combined: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "routing_route_combined_cost",
			Help:    "Combined cost of returned routes",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 12),
		}, []string{"algorithm"}),
		trips: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "fleet_trips_total",
			Help: "Completed trips by vehicle class and refuel count",
		}, []string{"class", "refuels"}),
		tripCO2: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "fleet_trip_co2_grams_total",
			Help: "CO2 emitted by completed trips",
		}),
		events: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "graph_events_applied_total",
			Help: "Events applied to the road network by kind",
		}, []string{"kind"}),
	}
	for _, c := range []prometheus.Collector{s.searches, s.expansions, s.combined, s.trips, s.tripCO2, s.events} {
		if err := reg.Register(c); err != nil {
			if _, ok := err.(prometheus.AlreadyRegisteredError); !ok {
				return nil, err
			}
		}
	}
	return s, nil
}

// RecordSearch counts the invocation and observes its size and cost.
func (s *PromSink) RecordSearch(r coremetrics.SearchResult) error {
	s.searches.WithLabelValues(r.Algorithm, r.Outcome).Inc()
	s.expansions.WithLabelValues(r.Algorithm).Observe(float64(r.Expansions))
	if r.Outcome == "found" {
		s.combined.WithLabelValues(r.Algorithm).Observe(r.Combined)
	}
	return nil
}

// RecordTrip counts the trip and accumulates its emissions.
func (s *PromSink) RecordTrip(r coremetrics.TripResult) error {
	s.trips.WithLabelValues(r.Class, strconv.Itoa(r.Refuels)).Inc()
	s.tripCO2.Add(r.CO2Grams)
	return nil
}

// RecordEvent counts one applied event.
func (s *PromSink) RecordEvent(r coremetrics.AppliedEvent) error {
	s.events.WithLabelValues(r.Kind).Inc()
	return nil
}
