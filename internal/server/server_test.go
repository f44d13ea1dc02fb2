package server_test

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rezonia/erp-invoicer/internal/config"
	"github.com/rezonia/erp-invoicer/internal/document"
	"github.com/rezonia/erp-invoicer/internal/erp"
	"github.com/rezonia/erp-invoicer/internal/erp/erptest"
	"github.com/rezonia/erp-invoicer/internal/model"
	"github.com/rezonia/erp-invoicer/internal/processor"
	"github.com/rezonia/erp-invoicer/internal/server"
	"github.com/rezonia/erp-invoicer/internal/store"
)

type testEnv struct {
	srv   *server.Server
	erp   *erptest.Server
	store *store.Store
}

func newTestServer(t *testing.T) *testEnv {
	t.Helper()

	fake := erptest.NewServer(t)
	creds := fake.Credentials()
	settings := config.ERPConfig{
		URL:       creds.URL,
		Database:  creds.Database,
		Username:  creds.Username,
		APIKey:    creds.APIKey,
		CompanyID: 1,
		JournalID: 7,
		VATTaxID:  15,
		Products: map[model.PurchaseKind]int64{
			model.PurchaseSubscriptionMonthly: 201,
			model.PurchaseSubscriptionAnnual:  202,
			model.PurchaseCreditsPack:         203,
		},
	}
	for _, tmpl := range settings.Products {
		fake.AddProduct(tmpl)
	}

	db, err := store.Open(store.DriverSQLite, "file:"+uuid.NewString()+"?mode=memory&cache=shared", nil, "silent")
	require.NoError(t, err)
	sqlDB, err := db.DB()
	require.NoError(t, err)
	sqlDB.SetMaxOpenConns(1)
	t.Cleanup(func() { _ = sqlDB.Close() })

	s := store.New(db)
	require.NoError(t, s.AutoMigrate(context.Background()))
	require.NoError(t, s.UpsertProfile(context.Background(), model.Profile{
		UserID:      "u1",
		DisplayName: "Sara",
		Email:       "sara@example.com",
		Phone:       "+966501234567",
	}))

	pipeline := processor.NewPipeline(erp.NewGateway(settings.Credentials(), nil), s, settings,
		processor.WithClock(func() time.Time { return time.Date(2026, 3, 14, 0, 0, 0, 0, time.UTC) }))

	renderer := document.NewRenderer(document.WithSeller("Seller Co", "300000000000003"))
	cfg := &server.Config{Address: ":0", ERPConfigured: settings.Configured()}
	return &testEnv{
		srv:   server.NewServer(cfg, pipeline, s, document.NewService(pipeline, s, renderer), nil),
		erp:   fake,
		store: s,
	}
}

func (e *testEnv) do(t *testing.T, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	w := httptest.NewRecorder()
	e.srv.Handler().ServeHTTP(w, req)
	return w
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) server.ErrorResponse {
	t.Helper()
	var resp server.ErrorResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	assert.False(t, resp.Success)
	assert.NotEmpty(t, resp.Error)
	return resp
}

func TestHealthEndpoint(t *testing.T) {
	env := newTestServer(t)

	w := env.do(t, http.MethodGet, "/health", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	var response server.HealthResponse
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &response))
	assert.Equal(t, "ok", response.Status)
	assert.Equal(t, "ok", response.Database)
	assert.Equal(t, "configured", response.ERP)
	assert.NotEmpty(t, response.Time)
}

func TestMetricsEndpoint(t *testing.T) {
	env := newTestServer(t)
	env.do(t, http.MethodGet, "/health", "")

	w := env.do(t, http.MethodGet, "/metrics", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "erp_invoicer_http_requests_total")
}

func TestIssueEndpoint(t *testing.T) {
	env := newTestServer(t)

	w := env.do(t, http.MethodPost, "/api/v1/invoices",
		`{"userId":"u1","purchaseKind":"creditsPack","grossAmount":57.50,"description":"Credits pack"}`)
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())

	var raw map[string]any
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &raw))
	for _, key := range []string{"success", "isDomestic", "vatApplied", "remoteInvoice", "remotePartnerId", "taxBreakdown"} {
		assert.Contains(t, raw, key)
	}

	var result model.IssueResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &result))
	assert.True(t, result.Success)
	assert.True(t, result.IsDomestic)
	assert.True(t, result.TaxBreakdown.VATAmount.Equal(decimal.RequireFromString("7.50")))
	assert.Equal(t, "INV/2026/00001", result.RemoteInvoice.DocumentNumber)
	assert.NotEmpty(t, result.RemoteInvoice.QRPayload)
	assert.NotEmpty(t, result.LocalInvoiceID)
}

func TestIssueEndpoint_Errors(t *testing.T) {
	tests := []struct {
		name   string
		body   string
		status int
		code   model.ErrorCode
	}{
		{"invalid json", `{"userId":`, http.StatusBadRequest, model.ErrCodeValidation},
		{"unknown kind", `{"userId":"u1","purchaseKind":"weekly","grossAmount":10}`, http.StatusBadRequest, model.ErrCodeValidation},
		{"missing amount", `{"userId":"u1","purchaseKind":"credits_pack"}`, http.StatusBadRequest, model.ErrCodeValidation},
		{"unknown user", `{"userId":"ghost","purchaseKind":"credits_pack","grossAmount":"10"}`, http.StatusNotFound, model.ErrCodeLookup},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			env := newTestServer(t)

			w := env.do(t, http.MethodPost, "/api/v1/invoices", tt.body)
			assert.Equal(t, tt.status, w.Code)
			resp := decodeError(t, w)
			assert.Equal(t, tt.code, resp.Code)
			if resp.RemoteEffect != "" {
				assert.Equal(t, model.RemoteEffectNone, resp.RemoteEffect)
			}
			assert.Empty(t, env.erp.Calls())
		})
	}
}

func TestIssueEndpoint_PostFailureReportsRemoteEffect(t *testing.T) {
	env := newTestServer(t)
	env.erp.FailOn(erp.ModelMove, "action_post", "Sequence locked")

	w := env.do(t, http.MethodPost, "/api/v1/invoices",
		`{"userId":"u1","purchaseKind":"subscription_monthly","grossAmount":"115"}`)
	assert.Equal(t, http.StatusBadGateway, w.Code)

	resp := decodeError(t, w)
	assert.Equal(t, model.ErrCodeRPCFault, resp.Code)
	assert.Equal(t, model.RemoteEffectInvoiceMayExist, resp.RemoteEffect)
	assert.Equal(t, processor.StepPostInvoice, resp.Step)
	assert.NotZero(t, resp.RemoteInvoiceID)
	require.NotNil(t, resp.RetrySafe)
	assert.False(t, *resp.RetrySafe)
}

func TestBackfillQREndpoint(t *testing.T) {
	env := newTestServer(t)

	w := env.do(t, http.MethodPost, "/api/v1/invoices/missing/qr", "")
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = env.do(t, http.MethodPost, "/api/v1/invoices",
		`{"userId":"u1","purchaseKind":"credits_pack","grossAmount":"57.50"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var issued model.IssueResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issued))

	w = env.do(t, http.MethodPost, "/api/v1/invoices/"+issued.LocalInvoiceID+"/qr", "")
	require.Equal(t, http.StatusOK, w.Code)

	var qr model.QRResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &qr))
	assert.True(t, qr.Found)
	assert.Equal(t, model.QRSourceLocal, qr.Source)
}

func TestDocumentEndpoint(t *testing.T) {
	env := newTestServer(t)

	w := env.do(t, http.MethodPost, "/api/v1/invoices",
		`{"userId":"u1","purchaseKind":"credits_pack","grossAmount":"57.50"}`)
	require.Equal(t, http.StatusOK, w.Code)
	var issued model.IssueResult
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &issued))

	// the document is still delivered when the erp is down
	env.erp.Close()

	w = env.do(t, http.MethodGet, "/api/v1/invoices/"+issued.LocalInvoiceID+"/document", "")
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	assert.Equal(t, "application/pdf", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("%PDF")))

	w = env.do(t, http.MethodGet, "/api/v1/invoices/missing/document", "")
	assert.Equal(t, http.StatusNotFound, w.Code)
}
