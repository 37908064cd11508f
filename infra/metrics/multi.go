package metrics

import coremetrics "github.com/uberum/fleetsim/core/metrics"

// MultiSink fans records out to multiple sinks.
type MultiSink struct {
	Sinks []coremetrics.Sink
}

// NewMultiSink creates a MultiSink with the provided sinks.
func NewMultiSink(sinks ...coremetrics.Sink) *MultiSink {
	return &MultiSink{Sinks: sinks}
}

// RecordSearch forwards the record to all sinks, returning the first error encountered.
func (m *MultiSink) RecordSearch(r coremetrics.SearchResult) error {
	for _, s := range m.Sinks {
		if err := s.RecordSearch(r); err != nil {
			return err
		}
	}
	return nil
}

// RecordTrip forwards the record to all sinks.
func (m *MultiSink) RecordTrip(r coremetrics.TripResult) error {
	for _, s := range m.Sinks {
		if err := s.RecordTrip(r); err != nil {
			return err
		}
	}
	return nil
}

// RecordEvent forwards the record to all sinks.
func (m *MultiSink) RecordEvent(r coremetrics.AppliedEvent) error {
	for _, s := range m.Sinks {
		if err := s.RecordEvent(r); err != nil {
			return err
		}
	}
	return nil
}

// FromConfig assembles the configured sinks into a single Sink.
func FromConfig(cfg coremetrics.Config) (coremetrics.Sink, error) {
	var sinks []coremetrics.Sink
	if cfg.PrometheusEnabled {
		sink, err := NewPromSink(cfg)
		if err != nil {
			return nil, err
		}
		sinks = append(sinks, sink)
	}
	if cfg.InfluxEnabled {
		sinks = append(sinks, NewInfluxSinkWithFallback(cfg))
	}
	switch len(sinks) {
	case 0:
		return coremetrics.NopSink{}, nil
	case 1:
		return sinks[0], nil
	default:
		return NewMultiSink(sinks...), nil
	}
}
