package store

import (
	"time"

	"github.com/heysubinoy/pyazgate/pkg/kv"
	"github.com/prometheus/client_golang/prometheus"
)

const (
	opGet = "get"
	opSet = "set"
)

// Metrics holds the collectors recorded by an InstrumentedStore.
type Metrics struct {
	Operations *prometheus.CounterVec
	Latency    *prometheus.HistogramVec
}

// NewMetrics creates the store collectors and registers them on reg.
// A nil reg leaves them unregistered.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		Operations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "pyazgate",
			Subsystem: "store",
			Name:      "operations_total",
			Help:      "Number of store operations by type.",
		}, []string{"op"}),
		Latency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "pyazgate",
			Subsystem: "store",
			Name:      "operation_duration_seconds",
			Help:      "Time spent inside the store per operation, including lock wait.",
			Buckets:   prometheus.ExponentialBuckets(1e-7, 4, 10),
		}, []string{"op"}),
	}
	if reg != nil {
		reg.MustRegister(m.Operations, m.Latency)
	}
	return m
}

// InstrumentedStore wraps any kv.Store implementation with timing metrics.
type InstrumentedStore struct {
	store   kv.Store
	metrics *Metrics
}

// Compile-time check to ensure InstrumentedStore implements kv.Store.
var _ kv.Store = (*InstrumentedStore)(nil)

// NewInstrumentedStore wraps a store with instrumentation.
func NewInstrumentedStore(store kv.Store, metrics *Metrics) *InstrumentedStore {
	return &InstrumentedStore{
		store:   store,
		metrics: metrics,
	}
}

// Get delegates to the wrapped store and records timing.
func (s *InstrumentedStore) Get(key string) (string, bool) {
	start := time.Now()
	value, found := s.store.Get(key)
	s.observe(opGet, start)

	return value, found
}

// Set delegates to the wrapped store and records timing.
func (s *InstrumentedStore) Set(key, value string) error {
	start := time.Now()
	err := s.store.Set(key, value)
	s.observe(opSet, start)

	return err
}

func (s *InstrumentedStore) observe(op string, start time.Time) {
	s.metrics.Operations.WithLabelValues(op).Inc()
	s.metrics.Latency.WithLabelValues(op).Observe(time.Since(start).Seconds())
}

// RegisterKeyGauge exposes the entry count of m as pyazgate_store_keys.
func RegisterKeyGauge(reg prometheus.Registerer, m *MemStore) error {
	return reg.Register(prometheus.NewGaugeFunc(prometheus.GaugeOpts{
		Namespace: "pyazgate",
		Subsystem: "store",
		Name:      "keys",
		Help:      "Number of entries held by the store.",
	}, func() float64 {
		return float64(m.Len())
	}))
}
