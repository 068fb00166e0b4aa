// Package promobserver exports atmcache operation events as Prometheus metrics.
package promobserver

import (
	"context"
	"errors"
	"time"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/goforj/atmcache"
)

// Config controls metric naming and registration.
type Config struct {
	// Registry receives the collectors. Defaults to prometheus.DefaultRegisterer.
	Registry prometheus.Registerer
	// Namespace prefixes metric names. Defaults to "atmcache".
	Namespace string
	// CacheName is attached as a constant "cache" label when set.
	CacheName string
	// Buckets overrides the duration histogram buckets.
	Buckets []float64
}

// Observer implements atmcache.Observer with a counter of operations by op and
// status, a counter of operation errors, and a latency histogram.
type Observer struct {
	ops      *prometheus.CounterVec
	errors   *prometheus.CounterVec
	duration *prometheus.HistogramVec
}

var _ atmcache.Observer = (*Observer)(nil)

// New builds and registers the collectors. Collectors already registered under
// the same names are reused, so New may be called once per cache.
func New(cfg Config) (*Observer, error) {
	if cfg.Registry == nil {
		cfg.Registry = prometheus.DefaultRegisterer
	}
	if cfg.Namespace == "" {
		cfg.Namespace = "atmcache"
	}
	if len(cfg.Buckets) == 0 {
		cfg.Buckets = prometheus.ExponentialBuckets(0.00001, 4, 10)
	}
	var constLabels prometheus.Labels
	if cfg.CacheName != "" {
		constLabels = prometheus.Labels{"cache": cfg.CacheName}
	}

	ops := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   cfg.Namespace,
		Name:        "operations_total",
		Help:        "Cache operations by op and status.",
		ConstLabels: constLabels,
	}, []string{"op", "status"})
	errs := prometheus.NewCounterVec(prometheus.CounterOpts{
		Namespace:   cfg.Namespace,
		Name:        "operation_errors_total",
		Help:        "Cache operations that reported an error, including producer failures.",
		ConstLabels: constLabels,
	}, []string{"op"})
	duration := prometheus.NewHistogramVec(prometheus.HistogramOpts{
		Namespace:   cfg.Namespace,
		Name:        "operation_duration_seconds",
		Help:        "Cache operation latency.",
		ConstLabels: constLabels,
		Buckets:     cfg.Buckets,
	}, []string{"op"})

	var err error
	if ops, err = register(cfg.Registry, ops); err != nil {
		return nil, err
	}
	if errs, err = register(cfg.Registry, errs); err != nil {
		return nil, err
	}
	if duration, err = register(cfg.Registry, duration); err != nil {
		return nil, err
	}
	return &Observer{ops: ops, errors: errs, duration: duration}, nil
}

// MustNew is New that panics on registration errors.
func MustNew(cfg Config) *Observer {
	o, err := New(cfg)
	if err != nil {
		panic(err)
	}
	return o
}

// OnCacheOp implements atmcache.Observer.
func (o *Observer) OnCacheOp(_ context.Context, op atmcache.Op, _ string, status atmcache.Status, err error, dur time.Duration) {
	o.ops.WithLabelValues(string(op), string(status)).Inc()
	if err != nil {
		o.errors.WithLabelValues(string(op)).Inc()
	}
	o.duration.WithLabelValues(string(op)).Observe(dur.Seconds())
}

func register[C prometheus.Collector](reg prometheus.Registerer, c C) (C, error) {
	if err := reg.Register(c); err != nil {
		var are prometheus.AlreadyRegisteredError
		if errors.As(err, &are) {
			if existing, ok := are.ExistingCollector.(C); ok {
				return existing, nil
			}
		}
		var zero C
		return zero, err
	}
	return c, nil
}
