package metrics

import (
	"strconv"
	"sync"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/gofiber/fiber/v2/middleware/adaptor"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

var (
	RequestCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_requests_total",
			Help: "Total number of HTTP requests",
		},
		[]string{"method", "path", "status"},
	)

	RequestDurationHistogram = prometheus.NewHistogramVec(
		prometheus.HistogramOpts{
			Name:    "http_request_duration_seconds",
			Help:    "Duration of HTTP requests in seconds",
			Buckets: prometheus.DefBuckets,
		},
		[]string{"method", "path", "status"},
	)

	StatusCategoryCounter = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "http_status_category_total",
			Help: "Total number of responses by status category (2xx, 4xx, 5xx)",
		},
		[]string{"category"},
	)

	InvoicesPaid = prometheus.NewCounter(
		prometheus.CounterOpts{
			Name: "invoices_paid_total",
			Help: "Invoices moved to PAID",
		},
	)

	// LedgerWrites counts writes issued inside the caller's transaction, so
	// a write whose transaction is rolled back afterwards is still counted.
	LedgerWrites = prometheus.NewCounterVec(
		prometheus.CounterOpts{
			Name: "ledger_entry_writes_total",
			Help: "Ledger entry writes attempted, by source type and outcome, including rolled back ones",
		},
		[]string{"source_type", "outcome"},
	)
)

var registerOnce sync.Once

// Register adds the collectors to the default registry. Safe to call more
// than once, which matters when tests build several apps.
func Register() {
	registerOnce.Do(func() {
		prometheus.MustRegister(
			RequestCounter,
			RequestDurationHistogram,
			StatusCategoryCounter,
			InvoicesPaid,
			LedgerWrites,
		)
	})
}

func category(status int) string {
	switch {
	case status >= 200 && status < 300:
		return "2xx"
	case status >= 300 && status < 400:
		return "3xx"
	case status >= 400 && status < 500:
		return "4xx"
	case status >= 500:
		return "5xx"
	}
	return ""
}

// Middleware records request count and latency keyed by route pattern, so
// /api/invoices/12 and /api/invoices/13 share one series.
func Middleware() fiber.Handler {
	return func(c *fiber.Ctx) error {
		start := time.Now()
		err := c.Next()

		status := c.Response().StatusCode()
		if e, ok := err.(*fiber.Error); ok {
			status = e.Code
		} else if err != nil {
			status = fiber.StatusInternalServerError
		}

		path := c.Route().Path
		statusStr := strconv.Itoa(status)
		RequestCounter.WithLabelValues(c.Method(), path, statusStr).Inc()
		RequestDurationHistogram.WithLabelValues(c.Method(), path, statusStr).Observe(time.Since(start).Seconds())
		if cat := category(status); cat != "" {
			StatusCategoryCounter.WithLabelValues(cat).Inc()
		}
		return err
	}
}

// Handler exposes the default registry in the Prometheus text format.
func Handler() fiber.Handler {
	return adaptor.HTTPHandler(promhttp.Handler())
}
