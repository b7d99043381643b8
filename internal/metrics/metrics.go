// Package metrics exposes Prometheus counters for the notification pipeline.
//
// All methods are nil-safe so components can run without metrics (tests).
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const namespace = "ordercast"

type Metrics struct {
	reg *prometheus.Registry

	webhookRequests *prometheus.CounterVec
	deliveries      *prometheus.CounterVec
	pollTicks       *prometheus.CounterVec
	ordersNotified  prometheus.Counter
	watermark       prometheus.Gauge
	httpDuration    *prometheus.HistogramVec
}

// New creates a private registry with the pipeline metrics plus Go/process collectors.
func New() *Metrics {
	m := &Metrics{
		reg: prometheus.NewRegistry(),
		webhookRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "webhook_requests_total",
			Help:      "Webhook requests by response status.",
		}, []string{"status"}),
		deliveries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "deliveries_total",
			Help:      "Per-destination delivery attempts by outcome.",
		}, []string{"outcome"}),
		pollTicks: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "poll_ticks_total",
			Help:      "Poller ticks by result.",
		}, []string{"result"}),
		ordersNotified: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "orders_notified_total",
			Help:      "Orders that went through the dispatch pipeline.",
		}),
		watermark: prometheus.NewGauge(prometheus.GaugeOpts{
			Namespace: namespace,
			Name:      "watermark",
			Help:      "Highest order id already notified (poll mode).",
		}),
		httpDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "HTTP request duration in seconds.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"handler", "method"}),
	}
	m.reg.MustRegister(
		m.webhookRequests, m.deliveries, m.pollTicks, m.ordersNotified, m.watermark, m.httpDuration,
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return m
}

func (m *Metrics) Registry() *prometheus.Registry {
	if m == nil {
		return nil
	}
	return m.reg
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.reg, promhttp.HandlerOpts{Registry: m.reg})
}

func (m *Metrics) WebhookRequest(status int) {
	if m == nil {
		return
	}
	m.webhookRequests.WithLabelValues(strconv.Itoa(status)).Inc()
}

func (m *Metrics) Delivery(outcome string) {
	if m == nil {
		return
	}
	m.deliveries.WithLabelValues(outcome).Inc()
}

func (m *Metrics) PollTick(result string) {
	if m == nil {
		return
	}
	m.pollTicks.WithLabelValues(result).Inc()
}

func (m *Metrics) OrderNotified() {
	if m == nil {
		return
	}
	m.ordersNotified.Inc()
}

func (m *Metrics) SetWatermark(id int64) {
	if m == nil {
		return
	}
	m.watermark.Set(float64(id))
}

func (m *Metrics) ObserveHTTP(handler, method string, d time.Duration) {
	if m == nil {
		return
	}
	m.httpDuration.WithLabelValues(handler, method).Observe(d.Seconds())
}
