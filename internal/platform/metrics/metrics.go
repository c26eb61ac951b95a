// Package metrics exposes Prometheus counters for the booking and billing
// pipeline. All methods are nil-safe so services can run without metrics.
package metrics

import (
	"net/http"
	"strconv"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

type Metrics struct {
	gatherer prometheus.Gatherer

	appointmentsCreated *prometheus.CounterVec
	bookingConflicts    *prometheus.CounterVec
	statusTransitions   *prometheus.CounterVec
	txRetries           *prometheus.CounterVec
	invoicesGenerated   prometheus.Counter
	invoiceAmount       prometheus.Histogram
	paymentsRecorded    *prometheus.CounterVec
	httpRequests        *prometheus.CounterVec
	httpLatency         *prometheus.HistogramVec
}

// New registers the clinic metrics on reg. A nil reg uses a fresh registry.
func New(reg *prometheus.Registry) *Metrics {
	if reg == nil {
		reg = prometheus.NewRegistry()
	}
	m := &Metrics{
		gatherer: reg,
		appointmentsCreated: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "appointments_created_total",
			Help:      "Appointments created, by initial status",
		}, []string{"status"}),
		bookingConflicts: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "conflicts_total",
			Help:      "Booking requests rejected because the slot was taken",
		}, []string{"reason"}),
		statusTransitions: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "booking",
			Name:      "status_transitions_total",
			Help:      "Appointment status transitions",
		}, []string{"from", "to"}),
		txRetries: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "db",
			Name:      "tx_retries_total",
			Help:      "Transaction re-executions, by reason",
		}, []string{"reason"}),
		invoicesGenerated: prometheus.NewCounter(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "billing",
			Name:      "invoices_generated_total",
			Help:      "Invoices generated on encounter completion",
		}),
		invoiceAmount: prometheus.NewHistogram(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "billing",
			Name:      "invoice_total_amount",
			Help:      "Distribution of generated invoice totals",
			Buckets:   prometheus.ExponentialBuckets(50_000, 2, 10),
		}),
		paymentsRecorded: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "billing",
			Name:      "payments_total",
			Help:      "Payments recorded, by method and resulting invoice status",
		}, []string{"method", "status"}),
		httpRequests: prometheus.NewCounterVec(prometheus.CounterOpts{
			Namespace: "clinic",
			Subsystem: "http",
			Name:      "requests_total",
			Help:      "HTTP requests, by route and status code",
		}, []string{"method", "route", "code"}),
		httpLatency: prometheus.NewHistogramVec(prometheus.HistogramOpts{
			Namespace: "clinic",
			Subsystem: "http",
			Name:      "request_duration_seconds",
			Help:      "HTTP request latency",
			Buckets:   prometheus.DefBuckets,
		}, []string{"method", "route"}),
	}
	reg.MustRegister(
		m.appointmentsCreated, m.bookingConflicts, m.statusTransitions, m.txRetries,
		m.invoicesGenerated, m.invoiceAmount, m.paymentsRecorded,
		m.httpRequests, m.httpLatency,
	)
	return m
}

func (m *Metrics) AppointmentCreated(status string) {
	if m == nil {
		return
	}
	m.appointmentsCreated.WithLabelValues(status).Inc()
}

func (m *Metrics) BookingConflict(reason string) {
	if m == nil {
		return
	}
	m.bookingConflicts.WithLabelValues(reason).Inc()
}

func (m *Metrics) StatusTransition(from, to string) {
	if m == nil {
		return
	}
	m.statusTransitions.WithLabelValues(from, to).Inc()
}

// TxRetry matches the db.WithRetryObserver callback signature.
func (m *Metrics) TxRetry(reason string) {
	if m == nil {
		return
	}
	m.txRetries.WithLabelValues(reason).Inc()
}

func (m *Metrics) InvoiceGenerated(total float64) {
	if m == nil {
		return
	}
	m.invoicesGenerated.Inc()
	m.invoiceAmount.Observe(total)
}

func (m *Metrics) PaymentRecorded(method, status string) {
	if m == nil {
		return
	}
	m.paymentsRecorded.WithLabelValues(method, status).Inc()
}

// Middleware records request counts and latency per matched route.
func (m *Metrics) Middleware() echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			if m == nil {
				return next(c)
			}
			start := time.Now()
			err := next(c)

			status := c.Response().Status
			if err != nil {
				if he, ok := err.(*echo.HTTPError); ok {
					status = he.Code
				}
			}
			route := c.Path()
			if route == "" {
				route = "unmatched"
			}
			m.httpRequests.WithLabelValues(c.Request().Method, route, strconv.Itoa(status)).Inc()
			m.httpLatency.WithLabelValues(c.Request().Method, route).Observe(time.Since(start).Seconds())
			return err
		}
	}
}

// Handler serves the registry in the Prometheus exposition format.
func (m *Metrics) Handler() http.Handler {
	if m == nil {
		return http.NotFoundHandler()
	}
	return promhttp.HandlerFor(m.gatherer, promhttp.HandlerOpts{})
}
