package corofleet

import (
	"context"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// Metrics manages Prometheus metrics for the coordinator.
type Metrics struct {
	registry *prometheus.Registry
	server   *http.Server
	cluster  string
	addr     string

	// Membership metrics
	MembersTotal  *prometheus.GaugeVec
	QuorumVotes   *prometheus.GaugeVec
	Quorate       *prometheus.GaugeVec
	QuorumBlocked *prometheus.CounterVec

	// Fleet operation metrics
	OpDuration *prometheus.HistogramVec
	OpTotal    *prometheus.CounterVec
	NodesTotal *prometheus.CounterVec

	// Convergence metrics
	WaitDuration *prometheus.HistogramVec
}

// NewMetrics creates a metrics manager for the named cluster, serving on
// addr when started.
func NewMetrics(cluster, addr string) *Metrics {
	registry := prometheus.NewRegistry()

	m := &Metrics{
		registry: registry,
		cluster:  cluster,
		addr:     addr,

		MembersTotal: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cf_members_total",
			Help: "Number of nodes in the cluster configuration",
		}, []string{"cluster"}),

		QuorumVotes: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cf_quorum_votes",
			Help: "Votes present according to the last quorum snapshot",
		}, []string{"cluster"}),

		Quorate: prometheus.NewGaugeVec(prometheus.GaugeOpts{
			Name: "cf_quorate",
			Help: "1 if the cluster reported itself quorate in the last snapshot",
		}, []string{"cluster"}),

		QuorumBlocked: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cf_quorum_blocked_total",
			Help: "Operations refused because they would lose the quorum",
		}, []string{"cluster", "op"}),

		OpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cf_op_duration_seconds",
			Help:    "Fleet operation duration in seconds",
			Buckets: prometheus.ExponentialBuckets(0.01, 2, 15),
		}, []string{"cluster", "op"}),

		OpTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cf_op_total",
			Help: "Total fleet operations",
		}, []string{"cluster", "op", "status"}),

		NodesTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Name: "cf_op_nodes_total",
			Help: "Per-node outcomes of fleet operations",
		}, []string{"cluster", "op", "status"}),

		WaitDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Name:    "cf_wait_duration_seconds",
			Help:    "Time spent waiting for nodes to converge",
			Buckets: prometheus.ExponentialBuckets(0.1, 2, 14),
		}, []string{"cluster", "op"}),
	}

	registry.MustRegister(
		m.MembersTotal,
		m.QuorumVotes,
		m.Quorate,
		m.QuorumBlocked,
		m.OpDuration,
		m.OpTotal,
		m.NodesTotal,
		m.WaitDuration,
	)

	registry.MustRegister(prometheus.NewGoCollector())
	registry.MustRegister(prometheus.NewProcessCollector(prometheus.ProcessCollectorOpts{}))

	return m
}

// Start begins serving the metrics endpoint.
func (m *Metrics) Start(ctx context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(m.registry, promhttp.HandlerOpts{}))

	m.server = &http.Server{
		Addr:    m.addr,
		Handler: mux,
	}

	go func() {
		_ = m.server.ListenAndServe()
	}()

	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.server.Shutdown(shutdownCtx)
	}()

	return nil
}

// Stop stops the metrics server.
func (m *Metrics) Stop() {
	if m.server != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		m.server.Shutdown(ctx)
	}
}

// SetMembersTotal updates the member count metric.
func (m *Metrics) SetMembersTotal(count int) {
	m.MembersTotal.WithLabelValues(m.cluster).Set(float64(count))
}

// ObserveQuorum records the state of a quorum snapshot.
func (m *Metrics) ObserveQuorum(votes int, quorate bool) {
	m.QuorumVotes.WithLabelValues(m.cluster).Set(float64(votes))
	val := 0.0
	if quorate {
		val = 1.0
	}
	m.Quorate.WithLabelValues(m.cluster).Set(val)
}

// IncQuorumBlocked counts an operation refused for quorum safety.
func (m *Metrics) IncQuorumBlocked(op string) {
	m.QuorumBlocked.WithLabelValues(m.cluster, op).Inc()
}

// ObserveOp records a fleet operation and its duration.
func (m *Metrics) ObserveOp(op string, duration time.Duration, err error) {
	m.OpDuration.WithLabelValues(m.cluster, op).Observe(duration.Seconds())
	status := "success"
	if err != nil {
		status = "error"
	}
	m.OpTotal.WithLabelValues(m.cluster, op, status).Inc()
}

// ObserveNodes records the per-node outcomes of a batch.
func (m *Metrics) ObserveNodes(op string, results Results) {
	for _, res := range results {
		status := "success"
		if !res.OK {
			status = "error"
		}
		m.NodesTotal.WithLabelValues(m.cluster, op, status).Inc()
	}
}

// ObserveWait records how long a convergence wait took.
func (m *Metrics) ObserveWait(op string, duration time.Duration) {
	m.WaitDuration.WithLabelValues(m.cluster, op).Observe(duration.Seconds())
}
