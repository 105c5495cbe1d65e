package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	PaymentsInitiated = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_initiated_total",
		Help: "Payments accepted for processing after fraud screening",
	})

	PaymentsCompleted = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_completed_total",
		Help: "Payments confirmed completed by poller or webhook",
	})

	PaymentsFailed = promauto.NewCounter(prometheus.CounterOpts{
		Name: "payments_failed_total",
		Help: "Payments that reached the failed status",
	})

	FraudRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "fraud_rejections_total",
		Help: "Payments rejected by fraud screening before submission",
	})

	FailoverActivations = promauto.NewCounter(prometheus.CounterOpts{
		Name: "failover_activations_total",
		Help: "Times the secondary payment channel was attempted",
	})

	ReconciliationPolls = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciliation_polls_total",
		Help: "Status-query poll attempts against the aggregator",
	})

	ReconciliationTimeouts = promauto.NewCounter(prometheus.CounterOpts{
		Name: "reconciliation_timeouts_total",
		Help: "Polling loops exhausted without a terminal status",
	})

	WebhookRejections = promauto.NewCounter(prometheus.CounterOpts{
		Name: "webhook_rejections_total",
		Help: "Inbound webhooks rejected for a bad signature",
	})

	AggregatorRequestDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Name:    "aggregator_request_duration_seconds",
		Help:    "Latency of outbound aggregator calls",
		Buckets: prometheus.DefBuckets,
	}, []string{"operation"})
)
