// Package metrics exposes Prometheus collectors for the invoice bridge.
package metrics

import (
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"

	"github.com/rezonia/erp-invoicer/internal/model"
)

const namespace = "erp_invoicer"

var (
	// RPCCallsTotal counts XML-RPC calls by method and outcome.
	RPCCallsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "xmlrpc",
		Name:      "calls_total",
		Help:      "XML-RPC calls to the ERP by method and outcome.",
	}, []string{"method", "outcome"})

	// RPCCallDuration tracks XML-RPC round-trip latency.
	RPCCallDuration = promauto.NewHistogramVec(prometheus.HistogramOpts{
		Namespace: namespace,
		Subsystem: "xmlrpc",
		Name:      "call_duration_seconds",
		Help:      "XML-RPC round-trip duration in seconds.",
		Buckets:   prometheus.DefBuckets,
	}, []string{"method"})

	// InvoicesTotal counts workflow runs by outcome and domesticity.
	InvoicesTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "invoices_total",
		Help:      "Invoice workflow runs by outcome (issued, warning, failed) and customer domesticity.",
	}, []string{"outcome", "domestic"})

	// WorkflowFailuresTotal counts fatal failures by the stage reached and error code.
	WorkflowFailuresTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "workflow",
		Name:      "failures_total",
		Help:      "Fatal invoice workflow failures by stage reached and error code.",
	}, []string{"stage", "code"})

	// QRBackfillTotal counts QR backfill results.
	QRBackfillTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "qr",
		Name:      "backfill_total",
		Help:      "QR backfill attempts by result.",
	}, []string{"result"})

	// HTTPRequestsTotal counts API requests by route and status.
	HTTPRequestsTotal = promauto.NewCounterVec(prometheus.CounterOpts{
		Namespace: namespace,
		Subsystem: "http",
		Name:      "requests_total",
		Help:      "HTTP API requests by route and status.",
	}, []string{"route", "status"})
)

// ObserveRPC records one XML-RPC call. Its signature matches the transport
// observer hook.
func ObserveRPC(method string, d time.Duration, err error) {
	outcome := "ok"
	if err != nil {
		outcome = strings.ToLower(string(model.Classify(err)))
	}
	RPCCallsTotal.WithLabelValues(method, outcome).Inc()
	RPCCallDuration.WithLabelValues(method).Observe(d.Seconds())
}

// ObserveInvoice records a finished workflow run
func ObserveInvoice(outcome string, domestic bool) {
	InvoicesTotal.WithLabelValues(outcome, strconv.FormatBool(domestic)).Inc()
}

// ObserveFailure records a fatal workflow failure
func ObserveFailure(stage model.Stage, code model.ErrorCode) {
	WorkflowFailuresTotal.WithLabelValues(string(stage), string(code)).Inc()
}

// ObserveQR records a QR backfill result
func ObserveQR(result string) {
	QRBackfillTotal.WithLabelValues(result).Inc()
}

// GinMiddleware counts requests by matched route
func GinMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		HTTPRequestsTotal.WithLabelValues(route, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
