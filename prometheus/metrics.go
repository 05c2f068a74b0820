package prometheus

import (
	"inventory-service/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

var (
	// HTTP request metrics
	HttpRequestsTotal   prometheus.CounterVec
	HttpRequestDuration prometheus.HistogramVec

	// Ledger metrics
	TransactionsCounter prometheus.CounterVec

	// Alert metrics
	AlertsCreatedCounter prometheus.CounterVec

	// Forecast metrics
	ForecastsCounter        prometheus.CounterVec
	ForecastServiceDuration prometheus.Histogram

	// Retraining metrics
	RetrainOutcomeCounter prometheus.CounterVec
	RetrainQueueDropped   prometheus.Counter
)

// InitMetrics initializes Prometheus metrics with configuration
func InitMetrics(config *config.Config) {
	prefix := config.Metrics.Prefix

	HttpRequestsTotal = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	HttpRequestDuration = *promauto.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    prefix + "_http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	TransactionsCounter = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_transactions_total",
			Help: "Total number of recorded stock transactions",
		},
		[]string{"type"},
	)

	AlertsCreatedCounter = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_alerts_created_total",
			Help: "Total number of alerts created by the scan",
		},
		[]string{"type"},
	)

	ForecastsCounter = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_forecasts_total",
			Help: "Total number of persisted predictions by method",
		},
		[]string{"method"},
	)

	ForecastServiceDuration = promauto.NewHistogram(
		prometheus.HistogramOpts{
			Name:    prefix + "_forecast_service_duration_seconds",
			Help:    "Duration of external forecasting service calls",
			Buckets: prometheus.DefBuckets,
		},
	)

	RetrainOutcomeCounter = *promauto.NewCounterVec(
		prometheus.CounterOpts{
			Name: prefix + "_retrain_total",
			Help: "Total number of retrain attempts by outcome",
		},
		[]string{"outcome"},
	)

	RetrainQueueDropped = promauto.NewCounter(
		prometheus.CounterOpts{
			Name: prefix + "_retrain_queue_dropped_total",
			Help: "Total number of retrain requests dropped because the queue was full",
		},
	)
}
