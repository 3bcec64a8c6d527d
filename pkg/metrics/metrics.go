// Package metrics exposes Prometheus collectors for the transcript store and
// the interceptor.
//
// All methods are safe to call on a nil receiver, in which case they do
// nothing. This lets callers that did not configure a registry skip metrics
// without branching.
//
// Collectors already present in a registry are reused, so services sharing
// a registry also share their metrics.
package metrics

import (
	"errors"
	"fmt"

	"github.com/prometheus/client_golang/prometheus"
)

// Namespace prefixes every metric name.
const Namespace = "netdump"

// Store tracks disk store state.
//
// Metrics:
//   - netdump_store_entries: Current number of committed entries
//   - netdump_store_bytes: Current total size of committed entries
//   - netdump_store_evictions_total: Entries removed to honour the size bound
//   - netdump_store_commits_total: Successful commits
type Store struct {
	entries   prometheus.Gauge
	bytes     prometheus.Gauge
	evictions prometheus.Counter
	commits   prometheus.Counter
}

// NewStore creates and registers store metrics with the provided registry.
func NewStore(registry prometheus.Registerer) (*Store, error) {
	s := &Store{
		entries: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "store",
			Name:      "entries",
			Help:      "Current number of stored transcripts",
		}),
		bytes: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: Namespace,
			Subsystem: "store",
			Name:      "bytes",
			Help:      "Current total size of stored transcripts in bytes",
		}),
		evictions: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "store",
			Name:      "evictions_total",
			Help:      "Total number of transcripts evicted to stay within capacity",
		}),
		commits: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: Namespace,
			Subsystem: "store",
			Name:      "commits_total",
			Help:      "Total number of committed transcripts",
		}),
	}

	var err error
	if s.entries, err = register(registry, s.entries); err != nil {
		return nil, err
	}
	if s.bytes, err = register(registry, s.bytes); err != nil {
		return nil, err
	}
	if s.evictions, err = register(registry, s.evictions); err != nil {
		return nil, err
	}
	if s.commits, err = register(registry, s.commits); err != nil {
		return nil, err
	}
	return s, nil
}

// UpdateSize records the current entry count and byte total.
func (s *Store) UpdateSize(entries int, bytes int64) {
	if s == nil {
		return
	}
	s.entries.Set(float64(entries))
	s.bytes.Set(float64(bytes))
}

// RecordEviction records one evicted entry.
func (s *Store) RecordEviction() {
	if s == nil {
		return
	}
	s.evictions.Inc()
}

// RecordCommit records one successful commit.
func (s *Store) RecordCommit() {
	if s == nil {
		return
	}
	s.commits.Inc()
}

// Interceptor tracks intercepted exchanges.
//
// Metrics:
//   - netdump_exchanges_total{outcome}: "response", "failure" or "skipped"
//   - netdump_transcripts_dropped_total{reason}: transcripts that were rendered
//     but not stored, by reason ("busy", "invalid_key", "storage", "unavailable")
type Interceptor struct {
	exchanges *prometheus.CounterVec
	dropped   *prometheus.CounterVec
}

// NewInterceptor creates and registers interceptor metrics with the provided registry.
func NewInterceptor(registry prometheus.Registerer) (*Interceptor, error) {
	i := &Interceptor{
		exchanges: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "exchanges_total",
				Help:      "Total number of intercepted exchanges by outcome",
			},
			[]string{"outcome"},
		),
		dropped: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: Namespace,
				Name:      "transcripts_dropped_total",
				Help:      "Total number of transcripts that could not be stored",
			},
			[]string{"reason"},
		),
	}

	var err error
	if i.exchanges, err = register(registry, i.exchanges); err != nil {
		return nil, err
	}
	if i.dropped, err = register(registry, i.dropped); err != nil {
		return nil, err
	}
	return i, nil
}

// RecordExchange counts one exchange with the given outcome.
func (i *Interceptor) RecordExchange(outcome string) {
	if i == nil {
		return
	}
	i.exchanges.WithLabelValues(outcome).Inc()
}

// RecordDrop counts one transcript lost for the given reason.
func (i *Interceptor) RecordDrop(reason string) {
	if i == nil {
		return
	}
	i.dropped.WithLabelValues(reason).Inc()
}

// register adds c to registry. If an identical collector is already
// registered, that one is returned instead.
func register[C prometheus.Collector](registry prometheus.Registerer, c C) (C, error) {
	err := registry.Register(c)
	if err == nil {
		return c, nil
	}
	var are prometheus.AlreadyRegisteredError
	if errors.As(err, &are) {
		if existing, ok := are.ExistingCollector.(C); ok {
			return existing, nil
		}
	}
	return c, fmt.Errorf("metrics: register collector: %w", err)
}
