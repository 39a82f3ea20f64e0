// Package metrics exposes the Prometheus collectors of the service.
package metrics

import (
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	httpRequestsTotal = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "craft_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	httpRequestDuration = promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "craft_http_request_duration_seconds",
			Help:    "Duration of HTTP requests",
			Buckets: []float64{0.05, 0.1, 0.25, 0.5, 1, 2.5, 5, 10},
		},
		[]string{"method", "path", "status"},
	)

	orderOperations = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "craft_order_operations_total",
			Help: "Total number of order operations",
		},
		[]string{"operation", "status"},
	)

	payoutBatches = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "craft_payout_batches_total",
			Help: "Payout batches issued",
		},
	)

	payoutAmount = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: "craft_payout_amount_minor_total",
			Help: "Seller net amount included in issued payout batches, in minor units",
		},
	)

	webhookDuplicates = promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: "craft_payment_webhook_duplicates_total",
			Help: "Payment notifications ignored because they were already applied",
		},
		[]string{"provider"},
	)
)

func ObserveRequest(method, path, status string, d time.Duration) {
	httpRequestsTotal.WithLabelValues(method, path, status).Inc()
	httpRequestDuration.WithLabelValues(method, path, status).Observe(d.Seconds())
}

func RecordOrderOperation(operation string, success bool) {
	status := "success"
	if !success {
		status = "error"
	}
	orderOperations.WithLabelValues(operation, status).Inc()
}

func RecordPayoutBatch(amountMinor int64) {
	payoutBatches.Inc()
	payoutAmount.Add(float64(amountMinor))
}

func RecordDuplicateWebhook(provider string) {
	webhookDuplicates.WithLabelValues(provider).Inc()
}
