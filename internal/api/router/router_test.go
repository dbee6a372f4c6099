package router

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wolfman30/previsit/internal/clipboard"
	"github.com/wolfman30/previsit/internal/http/handlers"
	httpmiddleware "github.com/wolfman30/previsit/internal/http/middleware"
	"github.com/wolfman30/previsit/internal/observability/metrics"
	"github.com/wolfman30/previsit/internal/prepnote"
	"github.com/wolfman30/previsit/internal/scheduling"
	"github.com/wolfman30/previsit/internal/workflow"
	"github.com/wolfman30/previsit/pkg/logging"
)

func newTestRouter(t *testing.T, limiter *httpmiddleware.RateLimiter) http.Handler {
	t.Helper()
	backend := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/patients":
			_, _ = w.Write([]byte(`[]`))
		case "/intake/structure":
			_, _ = w.Write([]byte(`{"reason_for_visit":"Cough"}`))
		default:
			w.WriteHeader(http.StatusNotFound)
			_, _ = w.Write([]byte(`{"detail":"Not Found"}`))
		}
	}))
	t.Cleanup(backend.Close)

	logger := logging.New("error")
	reg := prometheus.NewRegistry()
	m := metrics.New(reg)
	client, err := scheduling.New(scheduling.Config{BaseURL: backend.URL, Logger: logger, Metrics: m})
	require.NoError(t, err)
	panel := prepnote.NewPanel(clipboard.NewMemory(), "router-test", logger, m)
	wf := workflow.New(client, panel, workflow.WithLogger(logger), workflow.WithMetrics(m))

	return New(&Config{
		Logger:             logger,
		Session:            handlers.NewSessionHandler(wf, client, logger),
		Note:               handlers.NewNoteHandler(panel),
		Stream:             handlers.NewStreamHub(nil, logger),
		MetricsHandler:     promhttp.HandlerFor(reg, promhttp.HandlerOpts{}),
		CORSAllowedOrigins: []string{"http://localhost:5173"},
		RateLimiter:        limiter,
	})
}

func serve(h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, bytes.NewBufferString(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestRouterHealthEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := serve(router, http.MethodGet, "/health", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var resp map[string]string
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&resp))
	assert.Equal(t, "ok", resp["status"])
	assert.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRouterSessionRoutes(t *testing.T) {
	router := newTestRouter(t, nil)

	rec := serve(router, http.MethodGet, "/session", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"state":"no_patient"`)

	rec = serve(router, http.MethodPut, "/session/patient", `{"patient":{"id":9}}`)
	require.Equal(t, http.StatusOK, rec.Code)

	rec = serve(router, http.MethodPost, "/session/intake", `{"narrative":"cough"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"reason_for_visit":"Cough"`)

	rec = serve(router, http.MethodPost, "/session/booked/toggle", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"error":"Not Found"`)

	rec = serve(router, http.MethodGet, "/note", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"has_summary":false`)

	rec = serve(router, http.MethodGet, "/patients", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.JSONEq(t, `{"patients":[]}`, rec.Body.String())
}

func TestRouterMetricsEndpoint(t *testing.T) {
	router := newTestRouter(t, nil)
	serve(router, http.MethodPut, "/session/patient", `{"patient":{"id":9}}`)
	serve(router, http.MethodPost, "/session/intake", `{"narrative":"cough"}`)

	rec := serve(router, http.MethodGet, "/metrics", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), "previsit_backend_requests_total")
	assert.Contains(t, rec.Body.String(), `previsit_workflow_operations_total{operation="run_intake",outcome="success"} 1`)
}

func TestRouterRateLimitsBackendRoutes(t *testing.T) {
	router := newTestRouter(t, httpmiddleware.NewRateLimiter(0.01, 1))
	serve(router, http.MethodPut, "/session/patient", `{"patient":{"id":9}}`)

	assert.Equal(t, http.StatusOK, serve(router, http.MethodPost, "/session/intake", `{"narrative":"cough"}`).Code)
	assert.Equal(t, http.StatusTooManyRequests, serve(router, http.MethodPost, "/session/intake", `{"narrative":"cough"}`).Code)
	// Local edits are not limited.
	assert.Equal(t, http.StatusOK, serve(router, http.MethodPut, "/session/reason", `{"text":"x"}`).Code)
}

func TestRouterCORSPreflight(t *testing.T) {
	router := newTestRouter(t, nil)
	req := httptest.NewRequest(http.MethodOptions, "/session/patient", nil)
	req.Header.Set("Origin", "http://localhost:5173")
	req.Header.Set("Access-Control-Request-Method", http.MethodPut)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Equal(t, "http://localhost:5173", rec.Header().Get("Access-Control-Allow-Origin"))
}
