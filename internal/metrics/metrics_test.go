package metrics_test

import (
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"

	"github.com/rezonia/erp-invoicer/internal/metrics"
	"github.com/rezonia/erp-invoicer/internal/model"
	"github.com/rezonia/erp-invoicer/internal/xmlrpc"
)

func TestObserveRPC(t *testing.T) {
	okBefore := testutil.ToFloat64(metrics.RPCCallsTotal.WithLabelValues("test_ok", "ok"))
	metrics.ObserveRPC("test_ok", 10*time.Millisecond, nil)
	assert.Equal(t, okBefore+1, testutil.ToFloat64(metrics.RPCCallsTotal.WithLabelValues("test_ok", "ok")))

	metrics.ObserveRPC("test_fault", time.Millisecond, &xmlrpc.Fault{Message: "x"})
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RPCCallsTotal.WithLabelValues("test_fault", "rpc_fault")))

	metrics.ObserveRPC("test_transport", time.Millisecond, fmt.Errorf("%w: refused", xmlrpc.ErrTransport))
	assert.Equal(t, 1.0, testutil.ToFloat64(metrics.RPCCallsTotal.WithLabelValues("test_transport", "transport")))
}

func TestObserveWorkflow(t *testing.T) {
	before := testutil.ToFloat64(metrics.InvoicesTotal.WithLabelValues("issued", "true"))
	metrics.ObserveInvoice("issued", true)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.InvoicesTotal.WithLabelValues("issued", "true")))

	before = testutil.ToFloat64(metrics.WorkflowFailuresTotal.WithLabelValues("header_created", "RPC_FAULT"))
	metrics.ObserveFailure(model.StageHeaderCreated, model.ErrCodeRPCFault)
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.WorkflowFailuresTotal.WithLabelValues("header_created", "RPC_FAULT")))

	before = testutil.ToFloat64(metrics.QRBackfillTotal.WithLabelValues("erp"))
	metrics.ObserveQR("erp")
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.QRBackfillTotal.WithLabelValues("erp")))
}

func TestGinMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.Use(metrics.GinMiddleware())
	router.GET("/probe/:id", func(c *gin.Context) { c.Status(http.StatusNoContent) })

	before := testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("/probe/:id", "204"))
	router.ServeHTTP(httptest.NewRecorder(), httptest.NewRequest(http.MethodGet, "/probe/1", nil))
	assert.Equal(t, before+1, testutil.ToFloat64(metrics.HTTPRequestsTotal.WithLabelValues("/probe/:id", "204")))
}
