// Package metrics exposes the agent pool's behavior as Prometheus metrics.
// Counters are driven by the pool's event bus; gauges are refreshed from the
// periodic health-check snapshot.
//
// Example:
//
//	observer := metrics.NewObserver(p)
//	defer observer.Stop()
//	http.Handle("/metrics", metrics.Handler())
package metrics

import (
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/qaforge/qaforge/pkg/pool"
)

var (
	// AcquisitionsTotal counts successful leases per agent type.
	AcquisitionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qaforge_pool_acquisitions_total",
			Help: "Total number of successful agent acquisitions",
		},
		[]string{"agent_type"},
	)

	// CreationsTotal counts agent instances created per type.
	CreationsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qaforge_pool_creations_total",
			Help: "Total number of agent instances created",
		},
		[]string{"agent_type"},
	)

	// DisposalsTotal counts disposals per agent type and reason.
	DisposalsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qaforge_pool_disposals_total",
			Help: "Total number of agent instances disposed",
		},
		[]string{"agent_type", "reason"},
	)

	// ExhaustionsTotal counts acquires that hit an exhausted sub-pool.
	ExhaustionsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qaforge_pool_exhaustions_total",
			Help: "Total number of acquisitions that found no free capacity",
		},
		[]string{"agent_type"},
	)

	// AgentErrorsTotal counts instance-level failures (initialization,
	// reset, dispose).
	AgentErrorsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "qaforge_pool_agent_errors_total",
			Help: "Total number of agent instance failures",
		},
		[]string{"agent_type"},
	)

	// PooledAgents tracks the entry count per agent type and lifecycle
	// state, refreshed on each health check.
	PooledAgents = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "qaforge_pool_agents",
			Help: "Current number of pooled agents by state",
		},
		[]string{"agent_type", "state"},
	)

	// WaitingRequests tracks queued acquire requests per agent type.
	WaitingRequests = promauto.NewGaugeVec(
		prometheus.GaugeOpts{
			Name: "qaforge_pool_waiting_requests",
			Help: "Current number of acquire requests waiting for capacity",
		},
		[]string{"agent_type"},
	)

	// HitRate is the pool-wide fraction of acquisitions served without
	// creating a new instance.
	HitRate = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "qaforge_pool_hit_rate",
			Help: "Fraction of acquisitions served from existing instances",
		},
	)

	// AcquireLatency tracks mean acquire latency in milliseconds as
	// reported by the pool's own accounting.
	AcquireLatency = promauto.NewGauge(
		prometheus.GaugeOpts{
			Name: "qaforge_pool_avg_acquire_time_milliseconds",
			Help: "Mean latency of successful acquisitions in milliseconds",
		},
	)

	// AcquireDuration is the per-acquisition latency distribution. Buckets
	// span the sub-millisecond fast path through multi-second queue waits.
	AcquireDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "qaforge_pool_acquire_duration_seconds",
			Help:    "Latency of successful agent acquisitions",
			Buckets: []float64{.0001, .0005, .001, .005, .01, .05, .1, .5, 1, 2.5, 5, 10},
		},
		[]string{"agent_type"},
	)
)

// Handler returns the HTTP handler serving the default Prometheus registry.
func Handler() http.Handler {
	return promhttp.Handler()
}

// Observer bridges the pool's event bus into the Prometheus metrics above.
// One observer per pool is enough; Stop detaches it from the bus.
type Observer struct {
	events <-chan pool.Event
	cancel func()
	done   chan struct{}
}

// NewObserver subscribes to the pool's events and starts consuming them.
func NewObserver(p *pool.Pool) *Observer {
	events, cancel := p.Events().Subscribe(256)
	o := &Observer{
		events: events,
		cancel: cancel,
		done:   make(chan struct{}),
	}
	go o.run()
	return o
}

func (o *Observer) run() {
	defer close(o.done)
	for ev := range o.events {
		switch ev.Type {
		case pool.EventAgentAcquired:
			AcquisitionsTotal.WithLabelValues(ev.AgentType).Inc()
			AcquireDuration.WithLabelValues(ev.AgentType).Observe(ev.Duration.Seconds())
		case pool.EventAgentCreated:
			CreationsTotal.WithLabelValues(ev.AgentType).Inc()
		case pool.EventAgentDisposed:
			DisposalsTotal.WithLabelValues(ev.AgentType, ev.Reason).Inc()
		case pool.EventPoolExhausted:
			ExhaustionsTotal.WithLabelValues(ev.AgentType).Inc()
		case pool.EventAgentError:
			AgentErrorsTotal.WithLabelValues(ev.AgentType).Inc()
		case pool.EventPoolHealthCheck:
			if ev.Stats != nil {
				applySnapshot(ev.Stats)
			}
		}
	}
}

// Stop detaches the observer from the event bus and waits for the consumer
// to drain.
func (o *Observer) Stop() {
	o.cancel()
	<-o.done
}

func applySnapshot(s *pool.Stats) {
	for agentType, ts := range s.Types {
		PooledAgents.WithLabelValues(agentType, string(pool.StateAvailable)).Set(float64(ts.Available))
		PooledAgents.WithLabelValues(agentType, string(pool.StateInUse)).Set(float64(ts.InUse))
		PooledAgents.WithLabelValues(agentType, string(pool.StateInitializing)).Set(float64(ts.Initializing))
		PooledAgents.WithLabelValues(agentType, string(pool.StateResetting)).Set(float64(ts.Resetting))
		WaitingRequests.WithLabelValues(agentType).Set(float64(ts.Waiting))
	}
	HitRate.Set(s.HitRate)
	AcquireLatency.Set(s.AvgAcquireTimeMs)
}

// Timer measures the duration of a single operation.
type Timer struct {
	start time.Time
}

// NewTimer starts timing immediately.
func NewTimer() *Timer {
	return &Timer{start: time.Now()}
}

// Stop returns the elapsed time since the timer started.
func (t *Timer) Stop() time.Duration {
	return time.Since(t.start)
}
