// Package app assembles the whole service from configuration: road network,
// models, search engine, event scheduler, metrics and the simulation loop.
package app

import (
	"context"
	"encoding/json"
	"fmt"
	"math/rand"
	"time"

	"github.com/uberum/fleetsim/config"
	"github.com/uberum/fleetsim/core/cost"
	"github.com/uberum/fleetsim/core/energy"
	"github.com/uberum/fleetsim/core/events"
	"github.com/uberum/fleetsim/core/graph"
	coremetrics "github.com/uberum/fleetsim/core/metrics"
	"github.com/uberum/fleetsim/core/model"
	"github.com/uberum/fleetsim/core/routing"
	"github.com/uberum/fleetsim/infra/logger"
	"github.com/uberum/fleetsim/infra/metrics"
	"github.com/uberum/fleetsim/infra/mqtt"
	"github.com/uberum/fleetsim/simulator"
)

// Service owns every long-lived component of a simulation run.
type Service struct {
	Graph     *graph.Graph
	Engine    *routing.Engine
	Scheduler *events.Scheduler
	Sim       *simulator.Simulator

	cfg  *config.Config
	log  logger.Logger
	kpi  *metrics.KPISink
	feed *mqtt.EventFeed
}

// New creates a Service from the configuration.
func New(cfg *config.Config) (*Service, error) {
	cfg.Logging.Apply()
	logg := logger.New("service")

	sc, err := simulator.LoadScenario(cfg.Simulation.Scenario)
	if err != nil {
		return nil, fmt.Errorf("scenario: %w", err)
	}
	g, err := sc.BuildGraph(cfg.Engine.MinFactor)
	if err != nil {
		return nil, fmt.Errorf("graph: %w", err)
	}

	en, err := energy.NewModel(cfg.Energy)
	if err != nil {
		return nil, fmt.Errorf("energy model: %w", err)
	}
	costs := cost.NewModel(cfg.Cost, en)

	sink, err := metrics.FromConfig(cfg.Metrics)
	if err != nil {
		return nil, fmt.Errorf("metrics: %w", err)
	}
	kpi := metrics.NewKPISink()
	combined := coremetrics.Sink(metrics.NewMultiSink(sink, kpi))

	engine, err := routing.New(g, costs, en, cfg.Engine, logger.New("engine"), combined)
	if err != nil {
		return nil, fmt.Errorf("engine: %w", err)
	}
	sched := events.NewScheduler(g, logger.New("scheduler"))

	start := time.Now().Truncate(time.Minute)
	for _, d := range sc.Events {
		if err := sched.Submit(d.Event(start)); err != nil {
			return nil, fmt.Errorf("event %s: %w", d.ID, err)
		}
	}

	fleet := sc.Fleet
	if len(fleet) == 0 {
		ids := make([]graph.NodeID, 0, len(g.Nodes()))
		for _, n := range g.Nodes() {
			ids = append(ids, n.ID)
		}
		rng := rand.New(rand.NewSource(cfg.Simulation.Seed))
		fleet, err = simulator.GenerateFleet(cfg.Simulation.Fleet, ids, rng)
		if err != nil {
			return nil, fmt.Errorf("fleet: %w", err)
		}
	}
	for _, v := range fleet {
		if err := v.Validate(); err != nil {
			return nil, err
		}
	}

	sim, err := simulator.New(cfg.Simulation, g, engine, sched, en, fleet, start,
		logger.New("simulator"), combined, nil)
	if err != nil {
		return nil, fmt.Errorf("simulator: %w", err)
	}
	for _, d := range sc.Requests {
		sim.SubmitRequest(d.Request(start))
	}

	svc := &Service{
		Graph:     g,
		Engine:    engine,
		Scheduler: sched,
		Sim:       sim,
		cfg:       cfg,
		log:       logg,
		kpi:       kpi,
	}

	if cfg.Feed.Enabled {
		feed, err := mqtt.NewEventFeed(cfg.Feed, func(ev events.Event) {
			if err := sched.Submit(ev); err != nil {
				logg.Warnf("feed event %s rejected: %v", ev.ID, err)
			}
		})
		if err != nil {
			return nil, fmt.Errorf("event feed: %w", err)
		}
		svc.feed = feed
	}

	logg.Infof("service ready: %d nodes, %d vehicles, %d scripted events, %d scripted requests",
		len(g.Nodes()), len(fleet), len(sc.Events), len(sc.Requests))
	return svc, nil
}

// Run executes the simulation to completion and logs the aggregate report.
func (s *Service) Run(ctx context.Context) error {
	if s.cfg.Metrics.PrometheusEnabled {
		go func() {
			addr := ":" + s.cfg.Metrics.PrometheusPort
			if err := metrics.StartPromServer(ctx, addr); err != nil {
				s.log.Errorf("prometheus server: %v", err)
			}
		}()
	}

	stats, err := s.Sim.Run(ctx)
	if err != nil {
		return err
	}
	report := s.kpi.Report()
	out, _ := json.Marshal(report)
	s.log.Infof("run report: %s", out)
	s.log.Infof("ticks=%d completed=%d unservable=%d replans=%d refuel_stops=%d",
		stats.Ticks, stats.Completed, stats.Unservable, stats.Replans, stats.RefuelStops)
	return nil
}

// Close shuts down external connections.
func (s *Service) Close() error {
	if s.feed != nil {
		s.feed.Close()
	}
	s.Sim.Bus().Close()
	return nil
}

// SearchOnce runs a single search against the configured network without
// starting the simulation. Used by the route command.
func (s *Service) SearchOnce(ctx context.Context, from, to graph.NodeID, class model.VehicleClass, alg string) (*routing.Route, error) {
	v := model.Vehicle{ID: "probe", Class: class}
	switch class {
	case model.ClassElectric:
		v.BatteryCapacityKWh = 60
	case model.ClassCombustion:
		v.FuelCapacityL = 50
	case model.ClassHybrid:
		v.BatteryCapacityKWh = 13
		v.FuelCapacityL = 45
	}
	v.State = v.Full()
	return s.Engine.Search(ctx, routing.Request{
		Origin:      from,
		Destination: to,
		Vehicle:     v,
		Weights:     s.cfg.Simulation.Weights,
		Algorithm:   routing.Algorithm(alg),
	})
}
