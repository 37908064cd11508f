// Package metrics defines the sink interface through which the engine and
// the simulation loop report what happened. Implementations live under
// infra/metrics.
package metrics

import "time"

// SearchResult summarises one search invocation.
type SearchResult struct {
	Algorithm  string
	Outcome    string // "found", "no_route", "invalid", "cancelled"
	Expansions int
	Combined   float64
	Duration   time.Duration
}

// TripResult summarises a completed (or abandoned) trip.
type TripResult struct {
	VehicleID  string
	Class      string
	DistanceKM float64
	TimeMin    float64
	CostEUR    float64
	CO2Grams   float64
	Refuels    int
	Time       time.Time
}

// AppliedEvent records an event taking effect on the graph.
type AppliedEvent struct {
	Kind  string
	Edges int
	Time  time.Time
}

// Sink receives engine and simulation measurements.
type Sink interface {
	RecordSearch(SearchResult) error
	RecordTrip(TripResult) error
	RecordEvent(AppliedEvent) error
}

// NopSink discards every measurement.
type NopSink struct{}

func (NopSink) RecordSearch(SearchResult) error { return nil }
func (NopSink) RecordTrip(TripResult) error     { return nil }
func (NopSink) RecordEvent(AppliedEvent) error  { return nil }

// Config selects the enabled sinks.
type Config struct {
	PrometheusEnabled bool   `json:"prometheus_enabled" yaml:"prometheus_enabled"`
	PrometheusPort    string `json:"prometheus_port" yaml:"prometheus_port"`
	InfluxEnabled     bool   `json:"influx_enabled" yaml:"influx_enabled"`
	InfluxURL         string `json:"influx_url" yaml:"influx_url"`
	InfluxToken       string `json:"influx_token" yaml:"influx_token"`
	InfluxOrg         string `json:"influx_org" yaml:"influx_org"`
	InfluxBucket      string `json:"influx_bucket" yaml:"influx_bucket"`
}
