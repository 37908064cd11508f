package metrics

import (
	"context"
	"math"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/uberum/fleetsim/core/metrics"
	"github.com/uberum/fleetsim/infra/logger"
)

// InfluxSink writes simulation KPIs to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink for the given InfluxDB endpoint.
func NewInfluxSink(cfg coremetrics.Config) *InfluxSink {
	client := influxdb2.NewClient(cfg.InfluxURL, cfg.InfluxToken)
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(cfg.InfluxOrg, cfg.InfluxBucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopSink if the health check fails.
func NewInfluxSinkWithFallback(cfg coremetrics.Config) coremetrics.Sink {
	sink := NewInfluxSink(cfg)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordSearch writes one search invocation.
func (s *InfluxSink) RecordSearch(r coremetrics.SearchResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("route_search").
		AddTag("algorithm", r.Algorithm).
		AddTag("outcome", r.Outcome).
		AddField("expansions", r.Expansions).
		AddField("combined", round3(r.Combined)).
		AddField("duration_ms", r.Duration.Milliseconds()).
		SetTime(time.Now())
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordTrip writes one completed trip.
func (s *InfluxSink) RecordTrip(r coremetrics.TripResult) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("fleet_trip").
		AddTag("vehicle_id", r.VehicleID).
		AddTag("class", r.Class).
		AddField("distance_km", round3(r.DistanceKM)).
		AddField("time_min", round3(r.TimeMin)).
		AddField("cost_eur", round3(r.CostEUR)).
		AddField("co2_g", round3(r.CO2Grams)).
		AddField("refuels", r.Refuels).
		SetTime(r.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordEvent writes one applied network event.
func (s *InfluxSink) RecordEvent(r coremetrics.AppliedEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("graph_event").
		AddTag("kind", r.Kind).
		AddField("edges", r.Edges).
		SetTime(r.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the underlying client.
func (s *InfluxSink) Close() { s.client.Close() }

func round3(v float64) float64 { return math.Round(v*1000) / 1000 }
