// Package metrics holds the Prometheus collectors of the checkout service.
package metrics

import (
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
)

const namespace = "checkout"

// Metrics groups every collector the service records into.
type Metrics struct {
	GatewayRequests *prometheus.CounterVec
	GatewayLatency  *prometheus.HistogramVec
	TokenAcquired   *prometheus.CounterVec
	PaymentSessions *prometheus.CounterVec
	RateLimited     prometheus.Counter
	Reconciliations *prometheus.CounterVec
	OrdersUpserted  *prometheus.CounterVec
	HTTPDuration    *prometheus.HistogramVec
	EmailsSent      *prometheus.CounterVec
}

// New creates the collectors and registers them with reg. A nil reg leaves
// them unregistered, which suits tests.
func New(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		GatewayRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_requests_total",
			Help:      "Payment gateway requests by endpoint and HTTP status.",
		}, []string{"endpoint", "status"}),
		GatewayLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "gateway_request_duration_seconds",
			Help:      "Payment gateway request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"endpoint"}),
		TokenAcquired: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "gateway_token_acquisitions_total",
			Help:      "Gateway tokens obtained by method (cache, refresh, login) and result.",
		}, []string{"method", "result"}),
		PaymentSessions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_sessions_total",
			Help:      "Payment session requests by result.",
		}, []string{"result"}),
		RateLimited: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_rate_limited_total",
			Help:      "Payment session requests rejected by the per-IP limiter.",
		}),
		Reconciliations: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "payment_reconciliations_total",
			Help:      "Payment status reconciliations by deciding source and outcome.",
		}, []string{"source", "outcome"}),
		OrdersUpserted: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "guest_orders_total",
			Help:      "Guest checkouts by action (created, updated).",
		}, []string{"action"}),
		HTTPDuration: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: namespace,
			Name:      "http_request_duration_seconds",
			Help:      "Inbound HTTP request latency.",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route", "status"}),
		EmailsSent: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: namespace,
			Name:      "emails_sent_total",
			Help:      "Order confirmation emails by result.",
		}, []string{"result"}),
	}

	if reg != nil {
		reg.MustRegister(
			m.GatewayRequests,
			m.GatewayLatency,
			m.TokenAcquired,
			m.PaymentSessions,
			m.RateLimited,
			m.Reconciliations,
			m.OrdersUpserted,
			m.HTTPDuration,
			m.EmailsSent,
		)
	}
	return m
}

// NewRegistry returns a registry preloaded with the Go runtime and process
// collectors.
func NewRegistry() *prometheus.Registry {
	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	return reg
}

// ObserveGateway records one outbound gateway call. status is 0 when no
// response arrived.
func (m *Metrics) ObserveGateway(endpoint string, status int, started time.Time) {
	if m == nil {
		return
	}
	label := "error"
	if status > 0 {
		label = strconv.Itoa(status)
	}
	m.GatewayRequests.WithLabelValues(endpoint, label).Inc()
	m.GatewayLatency.WithLabelValues(endpoint).Observe(time.Since(started).Seconds())
}

func (m *Metrics) TokenAcquisition(method, result string) {
	if m == nil {
		return
	}
	m.TokenAcquired.WithLabelValues(method, result).Inc()
}

func (m *Metrics) PaymentSession(result string) {
	if m == nil {
		return
	}
	m.PaymentSessions.WithLabelValues(result).Inc()
}

func (m *Metrics) RateLimitRejected() {
	if m == nil {
		return
	}
	m.RateLimited.Inc()
}

func (m *Metrics) Reconciled(source, outcome string) {
	if m == nil {
		return
	}
	m.Reconciliations.WithLabelValues(source, outcome).Inc()
}

func (m *Metrics) GuestOrder(action string) {
	if m == nil {
		return
	}
	m.OrdersUpserted.WithLabelValues(action).Inc()
}

func (m *Metrics) Email(result string) {
	if m == nil {
		return
	}
	m.EmailsSent.WithLabelValues(result).Inc()
}

// Middleware records request latency per matched route.
func (m *Metrics) Middleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		if m == nil {
			return
		}
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		m.HTTPDuration.
			WithLabelValues(c.Request.Method, route, strconv.Itoa(c.Writer.Status())).
			Observe(time.Since(start).Seconds())
	}
}
