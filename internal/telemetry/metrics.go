package telemetry

import (
	"strconv"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// Metrics holds all Prometheus metrics for the service.
type Metrics struct {
	QuotesTotal     *prometheus.CounterVec
	QuoteDuration   *prometheus.HistogramVec
	OptionsReturned prometheus.Histogram
	CarrierRequests *prometheus.CounterVec
	CarrierDuration *prometheus.HistogramVec
	CarrierErrors   *prometheus.CounterVec
}

// NewMetrics creates the service metrics and registers them with reg.
// A nil reg uses the default Prometheus registerer.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	if reg == nil {
		reg = prometheus.DefaultRegisterer
	}
	factory := promauto.With(reg)

	return &Metrics{
		QuotesTotal: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipquote_quotes_total",
				Help: "Total number of cart quotes by processing mode and outcome",
			},
			[]string{"mode", "status"},
		),
		QuoteDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shipquote_quote_duration_seconds",
				Help:    "Cart quote duration in seconds by processing mode",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"mode"},
		),
		OptionsReturned: factory.NewHistogram(
			prometheus.HistogramOpts{
				Name:    "shipquote_options_returned",
				Help:    "Number of shipping options returned per quote",
				Buckets: []float64{0, 1, 2, 3, 5, 8, 13},
			},
		),
		CarrierRequests: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipquote_carrier_requests_total",
				Help: "Total rate requests sent to carriers by carrier and status",
			},
			[]string{"carrier", "status"},
		),
		CarrierDuration: factory.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "shipquote_carrier_request_duration_seconds",
				Help:    "Carrier rate request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"carrier"},
		),
		CarrierErrors: factory.NewCounterVec(
			prometheus.CounterOpts{
				Name: "shipquote_carrier_errors_total",
				Help: "Total carrier errors by carrier, error type and whether a retry may succeed",
			},
			[]string{"carrier", "error_type", "retryable"},
		),
	}
}

// RecordQuote records a finished cart quote.
func (m *Metrics) RecordQuote(mode, status string, duration float64, options int) {
	if m == nil {
		return
	}
	m.QuotesTotal.WithLabelValues(mode, status).Inc()
	m.QuoteDuration.WithLabelValues(mode).Observe(duration)
	m.OptionsReturned.Observe(float64(options))
}

// RecordCarrierRequest records one rate request to a carrier.
func (m *Metrics) RecordCarrierRequest(carrier, status string, duration float64) {
	if m == nil {
		return
	}
	m.CarrierRequests.WithLabelValues(carrier, status).Inc()
	m.CarrierDuration.WithLabelValues(carrier).Observe(duration)
}

// RecordError records a carrier error metric.
func (m *Metrics) RecordError(carrier, errorType string, retryable bool) {
	if m == nil {
		return
	}
	m.CarrierErrors.WithLabelValues(carrier, errorType, strconv.FormatBool(retryable)).Inc()
}
