package metrics

import "github.com/prometheus/client_golang/prometheus"

// Prometheus metrics for the reconciliation paths
var (
	ReconcileTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "reconcile_total",
			Help: "Reconciliation attempts by source and outcome",
		},
		[]string{"source", "outcome"},
	)

	WebhookRequestsTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "webhook_requests_total",
			Help: "Webhook deliveries by result",
		},
		[]string{"result"},
	)

	WebhookQueueDepth = prometheus.NewGauge(
		prometheus.GaugeOpts{
			Name: "webhook_queue_pending",
			Help: "Pending webhook events seen by the last consumer poll",
		},
	)

	SweepDuration = prometheus.NewHistogram(
		prometheus.HistogramOpts{
			Name:    "cron_sweep_duration_seconds",
			Help:    "Duration of one cron reconciliation sweep",
			Buckets: prometheus.DefBuckets,
		},
	)

	SweepOrdersTotal = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "cron_sweep_orders_total",
			Help: "Orders handled by cron sweeps by result",
		},
		[]string{"result"},
	)

	GatewayRequestDuration = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "gateway_request_duration_seconds",
			Help:    "Payment gateway call latency",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"operation"},
	)
)

// Register registers all Prometheus metrics
func Register() {
	prometheus.MustRegister(ReconcileTotal)
	prometheus.MustRegister(WebhookRequestsTotal)
	prometheus.MustRegister(WebhookQueueDepth)
	prometheus.MustRegister(SweepDuration)
	prometheus.MustRegister(SweepOrdersTotal)
	prometheus.MustRegister(GatewayRequestDuration)
}
