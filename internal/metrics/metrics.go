package metrics

import "github.com/prometheus/client_golang/prometheus"

// SchedulingMetrics exposes counters/histograms for booking, billing and notification flows.
// A nil *SchedulingMetrics is valid and records nothing.
type SchedulingMetrics struct {
	workflowTotal  *prometheus.CounterVec
	bulkBatchSize  prometheus.Histogram
	gatewayLatency *prometheus.HistogramVec
	notifyTotal    *prometheus.CounterVec
	expiredTotal   prometheus.Counter
	slotsGenerated prometheus.Counter
}

func NewSchedulingMetrics(reg prometheus.Registerer) *SchedulingMetrics {
	m := &SchedulingMetrics{
		workflowTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "scheduling",
			Name:      "workflow_total",
			Help:      "Workflow operations by operation and outcome kind",
		}, []string{"operation", "outcome"}),
		bulkBatchSize: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "dental",
			Subsystem: "scheduling",
			Name:      "bulk_batch_size",
			Help:      "Number of items per bulk scheduling request",
			Buckets:   []float64{1, 2, 5, 10, 25, 50, 100},
		}),
		gatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "dental",
			Subsystem: "billing",
			Name:      "gateway_latency_seconds",
			Help:      "Latency of payment gateway calls",
			Buckets:   prometheus.DefBuckets,
		}, []string{"operation", "status"}),
		notifyTotal: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "notify",
			Name:      "dispatch_total",
			Help:      "Notification dispatches by destination and status",
		}, []string{"destination", "status"}),
		expiredTotal: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "scheduling",
			Name:      "expired_appointments_total",
			Help:      "Pending appointments expired by the sweep",
		}),
		slotsGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "dental",
			Subsystem: "slots",
			Name:      "generated_total",
			Help:      "Slots created by the monthly generator",
		}),
	}
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	reg.MustRegister(m.workflowTotal, m.bulkBatchSize, m.gatewayLatency, m.notifyTotal, m.expiredTotal, m.slotsGenerated)
	return m
}

func (m *SchedulingMetrics) ObserveWorkflow(operation, outcome string) {
	if m == nil {
		return
	}
	m.workflowTotal.WithLabelValues(operation, outcome).Inc()
}

func (m *SchedulingMetrics) ObserveBulkBatch(size int) {
	if m == nil {
		return
	}
	m.bulkBatchSize.Observe(float64(size))
}

func (m *SchedulingMetrics) ObserveGateway(operation, status string, seconds float64) {
	if m == nil {
		return
	}
	m.gatewayLatency.WithLabelValues(operation, status).Observe(seconds)
}

func (m *SchedulingMetrics) ObserveNotification(destination, status string) {
	if m == nil {
		return
	}
	m.notifyTotal.WithLabelValues(destination, status).Inc()
}

func (m *SchedulingMetrics) AddExpired(n int) {
	if m == nil {
		return
	}
	m.expiredTotal.Add(float64(n))
}

func (m *SchedulingMetrics) AddSlotsGenerated(n int64) {
	if m == nil {
		return
	}
	m.slotsGenerated.Add(float64(n))
}
