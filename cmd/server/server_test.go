package main

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aysenursarun/ChurnGuard-AI/internal/config"
	"github.com/aysenursarun/ChurnGuard-AI/internal/features"
	"github.com/aysenursarun/ChurnGuard-AI/internal/frontend"
	"github.com/aysenursarun/ChurnGuard-AI/internal/model"
	"github.com/aysenursarun/ChurnGuard-AI/internal/monitoring"
	"github.com/aysenursarun/ChurnGuard-AI/internal/ratelimit"
	"github.com/aysenursarun/ChurnGuard-AI/internal/scoring"
	"github.com/aysenursarun/ChurnGuard-AI/internal/session"
)

const portfolioCSV = `customerID,tenure,MonthlyCharges,TotalCharges,Contract,InternetService,TechSupport,PaymentMethod,Churn
h1,1,95,95,Month-to-month,Fiber optic,No,Electronic check,Yes
l1,70,20,1400,Two year,DSL,Yes,Mailed check,No
m1,30,50,1500,One year,DSL,No,Bank transfer (automatic),No
h2,2,90,180,Month-to-month,Fiber optic,No,Electronic check,Yes
bad,,70,,Month-to-month,DSL,No,Electronic check,No
`

var testSchema = features.MustSchema(
	"tenure",
	"MonthlyCharges",
	"TotalCharges",
	"Contract_Month-to-month",
	"Contract_One year",
	"InternetService_Fiber optic",
	"TechSupport_No",
	"TechSupport_Yes",
	"PaymentMethod_Electronic check",
)

func init() {
	gin.SetMode(gin.TestMode)
}

func stubEngine(t *testing.T) *scoring.Engine {
	t.Helper()
	clf := &model.Logistic{
		Intercept: -1,
		Weights:   []float64{-0.05, 0.02, 0, 1.5, -1.0, 0.8, 0.4, -0.6, 0.5},
	}
	a, err := model.NewArtifacts(model.Info{Name: "stub", Version: "0.1", Kind: "logistic"}, testSchema, clf)
	require.NoError(t, err)
	return scoring.NewEngine(a)
}

func testConfig() *config.Config {
	return &config.Config{
		Port:            "0",
		GinMode:         gin.TestMode,
		ModelPath:       "unused.json",
		DefaultDataset:  "does-not-exist.csv",
		SessionTTL:      time.Minute,
		MaxUploadBytes:  1 << 20,
		RateLimitPerMin: 1000,
		ScanLimitPerMin: 1000,
		CORSOrigins:     []string{"*"},
	}
}

type testServer struct {
	router  *gin.Engine
	metrics *monitoring.Metrics
}

func newTestServer(t *testing.T, cfg *config.Config, engine *scoring.Engine) *testServer {
	t.Helper()

	metrics := monitoring.NewMetrics()
	logger := monitoring.NewLoggerWithWriter(io.Discard, slog.LevelError)

	sessions := session.NewStore(cfg.SessionTTL, 0)
	t.Cleanup(sessions.Close)

	limiter := ratelimit.NewRateLimiter(nil, ratelimit.Config{
		IPLimit:   cfg.RateLimitPerMin,
		ScanLimit: cfg.ScanLimitPerMin,
	}, metrics)
	t.Cleanup(limiter.Close)

	dashboard, err := frontend.GetDistFS()
	require.NoError(t, err)

	srv, err := NewServer(cfg, engine, sessions, limiter, metrics, logger, dashboard)
	require.NoError(t, err)
	t.Cleanup(srv.Close)

	return &testServer{router: srv.Router(), metrics: metrics}
}

func (ts *testServer) do(t *testing.T, req *http.Request) *httptest.ResponseRecorder {
	t.Helper()
	w := httptest.NewRecorder()
	ts.router.ServeHTTP(w, req)
	return w
}

func (ts *testServer) get(t *testing.T, path string) *httptest.ResponseRecorder {
	return ts.do(t, httptest.NewRequest(http.MethodGet, path, nil))
}

func (ts *testServer) postJSON(t *testing.T, path string, body interface{}) *httptest.ResponseRecorder {
	t.Helper()
	raw, err := json.Marshal(body)
	require.NoError(t, err)
	req := httptest.NewRequest(http.MethodPost, path, bytes.NewReader(raw))
	req.Header.Set("Content-Type", "application/json")
	return ts.do(t, req)
}

func (ts *testServer) upload(t *testing.T, field, filename, content string) *httptest.ResponseRecorder {
	t.Helper()
	var body bytes.Buffer
	mw := multipart.NewWriter(&body)
	if field != "" {
		part, err := mw.CreateFormFile(field, filename)
		require.NoError(t, err)
		_, err = part.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, mw.Close())

	req := httptest.NewRequest(http.MethodPost, "/api/datasets", &body)
	req.Header.Set("Content-Type", mw.FormDataContentType())
	return ts.do(t, req)
}

func decode(t *testing.T, w *httptest.ResponseRecorder) map[string]interface{} {
	t.Helper()
	var out map[string]interface{}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &out), w.Body.String())
	return out
}

func sessionID(t *testing.T, w *httptest.ResponseRecorder) string {
	t.Helper()
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	sess := decode(t, w)["session"].(map[string]interface{})
	return sess["id"].(string)
}

func highRiskCustomer() map[string]interface{} {
	return map[string]interface{}{
		"tenure":          1,
		"MonthlyCharges":  95,
		"Contract":        "Month-to-month",
		"InternetService": "Fiber optic",
		"TechSupport":     "No",
		"PaymentMethod":   "Electronic check",
	}
}

func TestHealthAndModel(t *testing.T) {
	tests := []struct {
		name        string
		engine      *scoring.Engine
		status      string
		modelStatus int
	}{
		{name: "model loaded", engine: stubEngine(t), status: "ok", modelStatus: http.StatusOK},
		{name: "model missing", engine: scoring.Unavailable(errors.New("open churn_model.json: no such file")), status: "degraded", modelStatus: http.StatusServiceUnavailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, testConfig(), tt.engine)

			w := ts.get(t, "/health")
			require.Equal(t, http.StatusOK, w.Code)
			health := decode(t, w)
			assert.Equal(t, tt.status, health["status"])
			assert.Equal(t, "memory", health["rate_limiter"].(map[string]interface{})["backend"])

			w = ts.get(t, "/api/model")
			require.Equal(t, tt.modelStatus, w.Code)
			body := decode(t, w)
			if tt.modelStatus == http.StatusOK {
				assert.Equal(t, "stub", body["info"].(map[string]interface{})["name"])
				assert.Len(t, body["features"], testSchema.Len())
				assert.Equal(t, 0.5, body["decision_threshold"])
			} else {
				assert.Equal(t, "model_unavailable", body["category"])
			}
		})
	}
}

func TestDatasetFlow(t *testing.T) {
	ts := newTestServer(t, testConfig(), stubEngine(t))

	w := ts.upload(t, "file", "portfolio.csv", portfolioCSV)
	id := sessionID(t, w)
	created := decode(t, w)
	assert.Equal(t, float64(5), created["rows"])
	problems := created["session"].(map[string]interface{})["validation"].(map[string]interface{})["problems"].([]interface{})
	require.Len(t, problems, 1)
	assert.Equal(t, "warning", problems[0].(map[string]interface{})["severity"])

	w = ts.get(t, "/api/datasets/"+id)
	require.Equal(t, http.StatusOK, w.Code)

	w = ts.get(t, "/api/datasets/"+id+"/analytics")
	require.Equal(t, http.StatusOK, w.Code)
	overview := decode(t, w)["overview"].(map[string]interface{})
	assert.Equal(t, float64(5), overview["total_customers"])
	assert.Equal(t, float64(2), overview["churned_customers"])
	assert.Equal(t, "Month-to-month", overview["riskiest_contract"])

	w = ts.get(t, "/api/datasets/"+id+"/analytics")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "HIT", w.Header().Get("X-Cache"))
	assert.Equal(t, int64(1), ts.metrics.CacheHits)

	w = ts.get(t, "/api/datasets/"+id+"/strategy")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, float64(185), decode(t, w)["revenue_at_risk"])

	w = ts.get(t, "/api/datasets/"+id+"/charts/contracts")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "image/png", w.Header().Get("Content-Type"))
	assert.True(t, bytes.HasPrefix(w.Body.Bytes(), []byte("\x89PNG")))

	w = ts.do(t, httptest.NewRequest(http.MethodPost, "/api/datasets/"+id+"/scan", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	scan := decode(t, w)
	assert.Equal(t, float64(4), scan["scored"])
	assert.Equal(t, float64(2), scan["at_risk_count"])
	atRisk := scan["at_risk"].([]interface{})
	assert.Equal(t, "h1", atRisk[0].(map[string]interface{})["customer_id"])
	assert.Equal(t, "h2", atRisk[1].(map[string]interface{})["customer_id"])
	failures := scan["failures"].([]interface{})
	require.Len(t, failures, 1)
	assert.Equal(t, "tenure", failures[0].(map[string]interface{})["field"])

	w = ts.get(t, "/api/datasets/"+id+"/report.csv")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Header().Get("Content-Disposition"), "churn_risk_report.csv")
	lines := strings.Split(strings.TrimSpace(w.Body.String()), "\n")
	require.Len(t, lines, 3)
	assert.Equal(t, "customerID,tenure,Contract,InternetService,TechSupport,PaymentMethod,MonthlyCharges,RiskScore", lines[0])
	assert.True(t, strings.HasPrefix(lines[1], "h1,1,Month-to-month,"))

	w = ts.postJSON(t, "/api/predict", map[string]interface{}{"customer": highRiskCustomer(), "session_id": id})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	baseline := decode(t, w)["baseline"].(map[string]interface{})
	assert.Equal(t, float64(92.5), baseline["critical_threshold"])

	assert.Equal(t, int64(1), ts.metrics.DatasetsAccepted)
	assert.Equal(t, int64(2), ts.metrics.ScansRun)
	assert.Equal(t, int64(1), ts.metrics.Predictions)
	assert.Equal(t, int64(1), ts.metrics.ReportsExported)
}

func TestUploadErrors(t *testing.T) {
	tests := []struct {
		name     string
		field    string
		content  string
		status   int
		category string
	}{
		{name: "missing file field", status: http.StatusBadRequest, category: "validation"},
		{name: "empty file", field: "file", content: "", status: http.StatusBadRequest, category: "validation"},
		{name: "ragged rows", field: "file", content: "a,b\n1,2,3\n", status: http.StatusBadRequest, category: "validation"},
		{
			name:     "missing required columns",
			field:    "file",
			content:  "customerID,tenure\nx,1\n",
			status:   http.StatusUnprocessableEntity,
			category: "schema",
		},
		{
			name:     "non numeric tenure",
			field:    "file",
			content:  strings.Replace(portfolioCSV, "h1,1,", "h1,one,", 1),
			status:   http.StatusUnprocessableEntity,
			category: "schema",
		},
		{
			name:     "infinite tenure",
			field:    "file",
			content:  strings.Replace(portfolioCSV, "h1,1,", "h1,Inf,", 1),
			status:   http.StatusUnprocessableEntity,
			category: "schema",
		},
		{
			name:     "negative tenure",
			field:    "file",
			content:  strings.Replace(portfolioCSV, "h1,1,", "h1,-1,", 1),
			status:   http.StatusUnprocessableEntity,
			category: "schema",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ts := newTestServer(t, testConfig(), stubEngine(t))

			w := ts.upload(t, tt.field, "upload.csv", tt.content)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.category, decode(t, w)["category"])
		})
	}
}

func TestScanReportsNaNRows(t *testing.T) {
	ts := newTestServer(t, testConfig(), stubEngine(t))

	w := ts.upload(t, "file", "portfolio.csv", strings.Replace(portfolioCSV, "h2,2,90", "h2,NaN,90", 1))
	id := sessionID(t, w)

	w = ts.do(t, httptest.NewRequest(http.MethodPost, "/api/datasets/"+id+"/scan", nil))
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	scan := decode(t, w)
	assert.Equal(t, float64(3), scan["scored"])
	assert.Equal(t, float64(1), scan["at_risk_count"])

	failures := scan["failures"].([]interface{})
	require.Len(t, failures, 2)
	for _, f := range failures {
		assert.Equal(t, "tenure", f.(map[string]interface{})["field"])
	}
}

func TestUploadTooLarge(t *testing.T) {
	cfg := testConfig()
	cfg.MaxUploadBytes = 64
	ts := newTestServer(t, cfg, stubEngine(t))

	w := ts.upload(t, "file", "big.csv", portfolioCSV)
	require.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
	assert.Equal(t, "64", decode(t, w)["details"].(map[string]interface{})["max_bytes"])
}

func TestLoadDefaultDataset(t *testing.T) {
	cfg := testConfig()
	ts := newTestServer(t, cfg, stubEngine(t))

	w := ts.do(t, httptest.NewRequest(http.MethodPost, "/api/datasets/default", nil))
	require.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "not_found", decode(t, w)["category"])

	path := filepath.Join(t.TempDir(), "telco.csv")
	require.NoError(t, os.WriteFile(path, []byte(portfolioCSV), 0o600))
	cfg = testConfig()
	cfg.DefaultDataset = path
	ts = newTestServer(t, cfg, stubEngine(t))

	w = ts.do(t, httptest.NewRequest(http.MethodPost, "/api/datasets/default", nil))
	sessionID(t, w)
	assert.Equal(t, "telco.csv", decode(t, w)["session"].(map[string]interface{})["source"])
}

func TestNotFound(t *testing.T) {
	ts := newTestServer(t, testConfig(), stubEngine(t))
	id := sessionID(t, ts.upload(t, "file", "p.csv", portfolioCSV))

	tests := []struct {
		name   string
		method string
		path   string
	}{
		{name: "unknown session", method: http.MethodGet, path: "/api/datasets/nope"},
		{name: "unknown session analytics", method: http.MethodGet, path: "/api/datasets/nope/analytics"},
		{name: "unknown session scan", method: http.MethodPost, path: "/api/datasets/nope/scan"},
		{name: "unknown chart", method: http.MethodGet, path: "/api/datasets/" + id + "/charts/pie"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := ts.do(t, httptest.NewRequest(tt.method, tt.path, nil))
			require.Equal(t, http.StatusNotFound, w.Code)
			assert.Equal(t, "not_found", decode(t, w)["category"])
		})
	}
}

func TestPredict(t *testing.T) {
	ts := newTestServer(t, testConfig(), stubEngine(t))

	w := ts.postJSON(t, "/api/predict", map[string]interface{}{"customer": highRiskCustomer()})
	require.Equal(t, http.StatusOK, w.Code, w.Body.String())
	body := decode(t, w)

	sim := body["simulation"].(map[string]interface{})
	baseline := sim["baseline"].(map[string]interface{})
	assert.Equal(t, true, baseline["churn"])
	assert.Greater(t, baseline["probability"].(float64), 0.9)

	scenarios := sim["scenarios"].([]interface{})
	require.Len(t, scenarios, 3)
	assert.Equal(t, scoring.CommitmentOffer.Name, scenarios[0].(map[string]interface{})["name"])
	assert.Equal(t, 80.75, scenarios[1].(map[string]interface{})["new_price"])

	insight := body["insight"].(map[string]interface{})
	assert.Equal(t, "critical", insight["priority"])
	assert.NotEmpty(t, insight["outreach"])
	assert.Equal(t, 79.65, body["baseline"].(map[string]interface{})["critical_threshold"])
}

func TestPredictErrors(t *testing.T) {
	noTenure := highRiskCustomer()
	delete(noTenure, "tenure")

	badType := highRiskCustomer()
	badType["tenure"] = []int{1}

	negative := highRiskCustomer()
	negative["MonthlyCharges"] = -5

	nanTenure := highRiskCustomer()
	nanTenure["tenure"] = "NaN"

	infTenure := highRiskCustomer()
	infTenure["tenure"] = "Inf"

	tests := []struct {
		name     string
		engine   *scoring.Engine
		body     interface{}
		status   int
		category string
	}{
		{name: "missing field", body: map[string]interface{}{"customer": noTenure}, status: http.StatusUnprocessableEntity, category: "missing_field"},
		{name: "empty customer", body: map[string]interface{}{"customer": map[string]interface{}{}}, status: http.StatusBadRequest, category: "validation"},
		{name: "no customer", body: map[string]interface{}{}, status: http.StatusBadRequest, category: "validation"},
		{name: "bad attribute type", body: map[string]interface{}{"customer": badType}, status: http.StatusBadRequest, category: "validation"},
		{name: "negative charge", body: map[string]interface{}{"customer": negative}, status: http.StatusBadRequest, category: "validation"},
		{name: "NaN tenure", body: map[string]interface{}{"customer": nanTenure}, status: http.StatusUnprocessableEntity, category: "missing_field"},
		{name: "infinite tenure", body: map[string]interface{}{"customer": infTenure}, status: http.StatusUnprocessableEntity, category: "missing_field"},
		{name: "unknown session", body: map[string]interface{}{"customer": highRiskCustomer(), "session_id": "gone"}, status: http.StatusNotFound, category: "not_found"},
		{
			name:     "model unavailable",
			engine:   scoring.Unavailable(errors.New("missing")),
			body:     map[string]interface{}{"customer": highRiskCustomer()},
			status:   http.StatusServiceUnavailable,
			category: "model_unavailable",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			engine := tt.engine
			if engine == nil {
				engine = stubEngine(t)
			}
			ts := newTestServer(t, testConfig(), engine)

			w := ts.postJSON(t, "/api/predict", tt.body)
			require.Equal(t, tt.status, w.Code, w.Body.String())
			assert.Equal(t, tt.category, decode(t, w)["category"])
		})
	}
}

func TestScoringRateLimit(t *testing.T) {
	cfg := testConfig()
	cfg.ScanLimitPerMin = 1
	ts := newTestServer(t, cfg, stubEngine(t))

	body := map[string]interface{}{"customer": highRiskCustomer()}
	require.Equal(t, http.StatusOK, ts.postJSON(t, "/api/predict", body).Code)

	w := ts.postJSON(t, "/api/predict", body)
	require.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, "rate_limit", decode(t, w)["category"])
	assert.NotEmpty(t, w.Header().Get("Retry-After"))
}

func TestDashboardAndMiddleware(t *testing.T) {
	ts := newTestServer(t, testConfig(), stubEngine(t))

	w := ts.get(t, "/")
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "Model stub v0.1")
	assert.NotEmpty(t, w.Header().Get("Content-Security-Policy"))
	assert.Equal(t, "DENY", w.Header().Get("X-Frame-Options"))
	assert.NotEmpty(t, w.Header().Get(monitoring.RequestIDHeader))

	req := httptest.NewRequest(http.MethodPost, "/api/predict", strings.NewReader("<xml/>"))
	req.Header.Set("Content-Type", "application/xml")
	w = ts.do(t, req)
	assert.Equal(t, http.StatusUnsupportedMediaType, w.Code)

	w = ts.get(t, "/metrics")
	require.Equal(t, http.StatusOK, w.Code)
	stats := decode(t, w)
	assert.Contains(t, stats, "sessions")
	assert.Contains(t, stats, "rate_limiter")
	assert.Contains(t, stats, "compression")
	assert.GreaterOrEqual(t, stats["total_requests"].(float64), float64(2))
}
