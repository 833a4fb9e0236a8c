package middleware

import (
	"context"

	"github.com/prometheus/client_golang/prometheus"

	"dataplane-backend/internal/pipeline"
)

// Metrics counts operations, cache traffic, and retry signals.
type Metrics struct {
	ops         *prometheus.CounterVec
	cacheHits   prometheus.Counter
	cacheMisses prometheus.Counter
	retries     prometheus.Counter
	Disabled    bool
}

// NewMetrics registers the collectors on reg (use
// prometheus.DefaultRegisterer outside tests).
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		ops: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "dataplane_operations_total",
			Help: "Completed pipeline operations by entity, op, and status.",
		}, []string{"entity", "op", "status"}),
		cacheHits: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dataplane_cache_hits_total",
			Help: "Responses served from the response cache.",
		}),
		cacheMisses: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dataplane_cache_misses_total",
			Help: "Cacheable requests that missed the response cache.",
		}),
		retries: prometheus.NewCounter(prometheus.CounterOpts{
			Name: "dataplane_retries_total",
			Help: "Retry signals emitted by the retry middleware.",
		}),
	}
	reg.MustRegister(m.ops, m.cacheHits, m.cacheMisses, m.retries)
	return m
}

func (m *Metrics) Name() string  { return "metrics" }
func (m *Metrics) Enabled() bool { return !m.Disabled }

func (m *Metrics) After(ctx context.Context, rc *pipeline.RequestContext, resp *pipeline.Response) (*pipeline.Response, error) {
	status := "ok"
	if resp.Err != nil {
		status = "error"
	}
	m.ops.WithLabelValues(rc.Entity, string(rc.Op), status).Inc()

	if resp.Meta.CacheHit {
		m.cacheHits.Inc()
	} else if rc.Meta.CacheChecked {
		m.cacheMisses.Inc()
	}
	if resp.Meta.ShouldRetry {
		m.retries.Inc()
	}
	return nil, nil
}

func (m *Metrics) OnError(ctx context.Context, rc *pipeline.RequestContext, err error) (*pipeline.Response, error) {
	m.ops.WithLabelValues(rc.Entity, string(rc.Op), "error").Inc()
	return nil, nil
}
