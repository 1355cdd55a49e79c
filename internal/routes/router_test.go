package routes

import (
	"bytes"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"pulse/internal/controllers"
	"pulse/internal/models"
	"pulse/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "0123456789abcdef0123456789abcdef"

func init() {
	gin.SetMode(gin.TestMode)
}

type fixture struct {
	engine *services.Engine
	router *gin.Engine
}

func newFixture(t *testing.T, auth *services.AuthService) *fixture {
	t.Helper()
	logger := logrus.New()
	logger.SetOutput(io.Discard)

	registry := prometheus.NewRegistry()
	engine := services.NewEngine(services.EngineConfig{
		BufferCapacity: 1000,
		SnapshotSize:   10,
		AlertRetention: time.Minute,
		QueueSize:      64,
	}, services.EngineDeps{
		Telemetry: services.NewTelemetry(registry),
		Logger:    logger,
	})
	t.Cleanup(engine.Close)

	router := NewRouter(Handlers{
		Metrics:    controllers.NewMetricsController(engine, nil),
		Samples:    controllers.NewSamplesController(engine),
		Executions: controllers.NewExecutionsController(engine),
		Alerts:     controllers.NewAlertsController(engine, logger),
		WebSocket:  controllers.NewWebSocketController(engine, nil, logger, nil),
	}, Options{
		Auth:     auth,
		Gatherer: registry,
	})
	return &fixture{engine: engine, router: router}
}

func (f *fixture) do(method, path string, body any, header http.Header) *httptest.ResponseRecorder {
	var r io.Reader
	if body != nil {
		raw, _ := json.Marshal(body)
		r = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, path, r)
	req.Header.Set("Content-Type", "application/json")
	for k, v := range header {
		req.Header[k] = v
	}
	w := httptest.NewRecorder()
	f.router.ServeHTTP(w, req)
	return w
}

func decode[T any](t *testing.T, w *httptest.ResponseRecorder) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &v), w.Body.String())
	return v
}

func TestHealth(t *testing.T) {
	f := newFixture(t, nil)
	w := f.do(http.MethodGet, "/health", nil, nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), "healthy")
}

func TestExecutionsFeedMetrics(t *testing.T) {
	f := newFixture(t, nil)

	for i, ok := range []bool{true, true, true, false} {
		w := f.do(http.MethodPost, "/api/v1/executions/task?tenant=acme", gin.H{
			"id": "task-" + string(rune('a'+i)), "duration_ms": 100, "success": ok,
		}, nil)
		require.Equal(t, http.StatusAccepted, w.Code, w.Body.String())
	}

	w := f.do(http.MethodGet, "/api/v1/metrics?tenant=acme&window=1h", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	m := decode[models.SystemMetrics](t, w)
	assert.Equal(t, "acme", m.Tenant)
	assert.InDelta(t, 0.75, m.Reliability.SuccessRate, 1e-9)
	assert.Equal(t, 4.0, m.Business.TasksExecuted)

	w = f.do(http.MethodGet, "/api/v1/metrics?tenant=globex", nil, nil)
	assert.Equal(t, 1.0, decode[models.SystemMetrics](t, w).Reliability.SuccessRate)
}

func TestExecutionValidation(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/v1/executions/deploy", gin.H{"id": "x", "duration_ms": 1, "success": true}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodPost, "/api/v1/executions/task", gin.H{"id": "x", "success": true}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/v1/executions/task", gin.H{"id": "x", "duration_ms": -1, "success": true}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/v1/executions/integration", gin.H{
		"id": "slack", "duration_ms": 12, "success": true, "status_code": 201,
	}, nil)
	assert.Equal(t, http.StatusAccepted, w.Code)
	assert.Len(t, f.engine.RecentSamples("", "integration.response.status", ""), 1)
}

func TestSamplesRoundTrip(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/v1/samples?tenant=acme", gin.H{
		"metric": "queue.depth", "value": 12, "labels": gin.H{"tenant": "globex", "queue": "mail"},
	}, nil)
	require.Equal(t, http.StatusAccepted, w.Code)

	w = f.do(http.MethodPost, "/api/v1/samples", gin.H{"metric": "m", "value": 1, "kind": "meter"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPost, "/api/v1/samples", gin.H{"metric": "m"}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodGet, "/api/v1/samples?tenant=acme&metric=queue.depth", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	body := decode[struct {
		Window  string          `json:"window"`
		Count   int             `json:"count"`
		Samples []models.Sample `json:"samples"`
	}](t, w)
	assert.Equal(t, "1h", body.Window)
	require.Equal(t, 1, body.Count)
	assert.Equal(t, "acme", body.Samples[0].Tenant(), "caller tenant overrides the label")
	assert.Equal(t, models.KindGauge, body.Samples[0].Kind)
}

func TestAlertRuleLifecycle(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/v1/alerts/rules", gin.H{
		"name": "cpu", "metric": "system.cpu.usage", "condition": "gt", "threshold": 80,
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code, w.Body.String())
	rule := decode[models.AlertRule](t, w)
	assert.Equal(t, models.SeverityWarning, rule.Severity)

	f.do(http.MethodPost, "/api/v1/samples", gin.H{"metric": "system.cpu.usage", "value": 92}, nil)

	w = f.do(http.MethodGet, "/api/v1/alerts", nil, nil)
	alerts := decode[struct {
		Alerts []models.Alert `json:"alerts"`
	}](t, w).Alerts
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertFiring, alerts[0].Status)
	assert.Equal(t, 92.0, alerts[0].Value)

	w = f.do(http.MethodPatch, "/api/v1/alerts/rules/"+rule.ID, gin.H{"enabled": false}, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode[models.AlertRule](t, w).Enabled)

	w = f.do(http.MethodGet, "/api/v1/alerts", nil, nil)
	alerts = decode[struct {
		Alerts []models.Alert `json:"alerts"`
	}](t, w).Alerts
	require.Len(t, alerts, 1)
	assert.Equal(t, models.AlertResolved, alerts[0].Status)
}

func TestAlertRuleErrors(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/v1/alerts/rules", gin.H{"name": "x", "metric": "m", "condition": "approx", "threshold": 1}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = f.do(http.MethodPatch, "/api/v1/alerts/rules/nope", gin.H{"enabled": true}, nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = f.do(http.MethodPatch, "/api/v1/alerts/rules/nope", gin.H{}, nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestTenantScopedRules(t *testing.T) {
	f := newFixture(t, nil)

	w := f.do(http.MethodPost, "/api/v1/alerts/rules", gin.H{
		"name": "global", "metric": "m", "condition": "gt", "threshold": 1,
	}, nil)
	global := decode[models.AlertRule](t, w)

	w = f.do(http.MethodPost, "/api/v1/alerts/rules?tenant=acme", gin.H{
		"name": "mine", "metric": "m", "condition": "gt", "threshold": 1, "recipients": []string{"globex"},
	}, nil)
	require.Equal(t, http.StatusCreated, w.Code)
	mine := decode[models.AlertRule](t, w)
	assert.Equal(t, []string{"acme"}, mine.Recipients)

	rulesFor := func(tenant string) int {
		w := f.do(http.MethodGet, "/api/v1/alerts/rules?tenant="+tenant, nil, nil)
		return len(decode[struct {
			Rules []models.AlertRule `json:"rules"`
		}](t, w).Rules)
	}
	assert.Equal(t, 2, rulesFor("acme"))
	assert.Equal(t, 1, rulesFor("globex"))

	assert.Equal(t, http.StatusForbidden, f.do(http.MethodPatch, "/api/v1/alerts/rules/"+global.ID+"?tenant=acme", gin.H{"enabled": false}, nil).Code)
	assert.Equal(t, http.StatusNotFound, f.do(http.MethodPatch, "/api/v1/alerts/rules/"+mine.ID+"?tenant=globex", gin.H{"enabled": false}, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodPatch, "/api/v1/alerts/rules/"+mine.ID+"?tenant=acme", gin.H{"enabled": false}, nil).Code)
}

func TestSystemWithoutSampler(t *testing.T) {
	f := newFixture(t, nil)
	assert.Equal(t, http.StatusServiceUnavailable, f.do(http.MethodGet, "/api/v1/system", nil, nil).Code)
}

func TestPrometheusEndpoint(t *testing.T) {
	f := newFixture(t, nil)
	f.do(http.MethodPost, "/api/v1/samples", gin.H{"metric": "m", "value": 1}, nil)

	w := f.do(http.MethodGet, "/metrics", nil, nil)
	require.Equal(t, http.StatusOK, w.Code)
	assert.Contains(t, w.Body.String(), `pulse_samples_recorded_total{kind="gauge"} 1`)
}

func TestAuthRequiredWhenEnabled(t *testing.T) {
	auth, err := services.NewAuthService(testSecret, time.Hour)
	require.NoError(t, err)
	f := newFixture(t, auth)

	assert.Equal(t, http.StatusUnauthorized, f.do(http.MethodGet, "/api/v1/metrics", nil, nil).Code)
	assert.Equal(t, http.StatusOK, f.do(http.MethodGet, "/health", nil, nil).Code)

	token, err := auth.GenerateToken("acme")
	require.NoError(t, err)
	w := f.do(http.MethodGet, "/api/v1/metrics", nil, http.Header{"Authorization": {"Bearer " + token}})
	require.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "acme", decode[models.SystemMetrics](t, w).Tenant)
}

func TestWebSocketStream(t *testing.T) {
	f := newFixture(t, nil)
	f.engine.RecordMetric("m", 1, map[string]string{"tenant": "acme"}, models.KindGauge)

	srv := httptest.NewServer(f.router)
	defer srv.Close()

	url := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws?tenant=acme"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()
	assert.Equal(t, http.StatusSwitchingProtocols, resp.StatusCode)

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))

	var ev models.Event
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.EventSnapshot, ev.Type)
	require.NotNil(t, ev.Snapshot)
	assert.Len(t, ev.Snapshot.RecentSamples, 1)

	f.engine.RecordMetric("m", 2, map[string]string{"tenant": "globex"}, models.KindGauge)
	f.engine.RecordMetric("m", 3, map[string]string{"tenant": "acme"}, models.KindGauge)

	ev = models.Event{}
	require.NoError(t, conn.ReadJSON(&ev))
	assert.Equal(t, models.EventMetricUpdate, ev.Type)
	require.NotNil(t, ev.Sample)
	assert.Equal(t, 3.0, ev.Sample.Value)

	require.NoError(t, conn.WriteJSON(gin.H{"type": "ping"}))
	var pong struct {
		Type string `json:"type"`
	}
	require.NoError(t, conn.ReadJSON(&pong))
	assert.Equal(t, "pong", pong.Type)

	require.NoError(t, conn.WriteJSON(gin.H{"type": "unsubscribe"}))
	assert.Eventually(t, func() bool { return f.engine.SubscriberCount() == 0 }, 2*time.Second, 10*time.Millisecond)
}

func TestWebSocketRequiresTokenWhenAuthEnabled(t *testing.T) {
	auth, err := services.NewAuthService(testSecret, time.Hour)
	require.NoError(t, err)
	f := newFixture(t, auth)

	srv := httptest.NewServer(f.router)
	defer srv.Close()
	base := "ws" + strings.TrimPrefix(srv.URL, "http") + "/ws"

	_, resp, err := websocket.DefaultDialer.Dial(base, nil)
	require.Error(t, err)
	assert.Equal(t, http.StatusUnauthorized, resp.StatusCode)

	token, err := auth.GenerateToken("acme")
	require.NoError(t, err)
	conn, _, err := websocket.DefaultDialer.Dial(base+"?token="+token, nil)
	require.NoError(t, err)
	conn.Close()
}
