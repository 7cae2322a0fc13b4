package routers

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/okieraised/greenhouse-agent/internal/agent/alert_evaluator"
	"github.com/okieraised/greenhouse-agent/internal/agent/calibration"
	"github.com/okieraised/greenhouse-agent/internal/agent/mqtt_logger"
	"github.com/okieraised/greenhouse-agent/internal/cerrors"
	"github.com/okieraised/greenhouse-agent/internal/infrastructure/store"
	"github.com/okieraised/greenhouse-agent/internal/models"
	"github.com/okieraised/greenhouse-agent/internal/server/rest_server"
	"github.com/okieraised/greenhouse-agent/internal/server/rest_server/services/v1/restful"
	"github.com/pkg/errors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type fakeChecker struct {
	topic     string
	value     float64
	result    alert_evaluator.Result
	err       error
	refreshes int
}

func (f *fakeChecker) CheckReading(_ context.Context, topic string, value float64) (alert_evaluator.Result, error) {
	f.topic, f.value = topic, value
	return f.result, f.err
}

func (f *fakeChecker) SignalRefresh() { f.refreshes++ }

type fakeResolver struct {
	resolved []int
	err      error
}

func (f *fakeResolver) ResolveAlert(_ context.Context, id int) error {
	if f.err != nil {
		return f.err
	}
	f.resolved = append(f.resolved, id)
	return nil
}

type fakeConfigs []alert_evaluator.AlertConfig

func (f fakeConfigs) Snapshot() []alert_evaluator.AlertConfig {
	return append([]alert_evaluator.AlertConfig(nil), f...)
}

type fakeEngine []calibration.State

func (f fakeEngine) Snapshot() []calibration.State { return f }

type fakeStatus mqtt_logger.Status

func (f fakeStatus) Status() mqtt_logger.Status { return mqtt_logger.Status(f) }

type apiResponse struct {
	Code    string          `json:"code"`
	Message string          `json:"message"`
	Count   int             `json:"count"`
	Data    json.RawMessage `json:"data"`
}

type fixture struct {
	engine   *gin.Engine
	checker  *fakeChecker
	resolver *fakeResolver
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	gin.SetMode(gin.TestMode)

	f := &fixture{checker: &fakeChecker{}, resolver: &fakeResolver{}}
	configs := fakeConfigs{
		{AlertID: 9, SensorID: 3, ThresholdRange: "0-10"},
		{AlertID: 4, SensorID: 1, ThresholdRange: "15-30"},
	}
	states := fakeEngine{
		{SensorID: 2, SensorType: models.SensorTypeCO2, ConversionFactor: 1},
		{SensorID: 1, SensorType: models.SensorTypeTemperature, ConversionFactor: 0.001, IsCalibrated: true},
	}

	v1 := NewV1RestState()
	v1.SetHealthcheckService(restful.NewHealthcheckService(
		restful.WithStatusProvider(fakeStatus{Connected: false, Subscriptions: 2}),
	))
	v1.SetAlertService(restful.NewAlertService(
		restful.WithReadingChecker(f.checker),
		restful.WithAlertResolver(f.resolver),
		restful.WithConfigSnapshotter(configs),
	))
	v1.SetCalibrationService(restful.NewCalibrationService(restful.WithCalibrationEngine(states)))

	state := NewAppState()
	state.SetV1RestState(v1)
	f.engine = rest_server.NewEngine(NewRootRouter(state).InitRouters)
	return f
}

func (f *fixture) do(t *testing.T, method, path string, body any) (int, apiResponse) {
	t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	f.engine.ServeHTTP(rec, req)

	var resp apiResponse
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &resp), rec.Body.String())
	return rec.Code, resp
}

func TestEvaluateReading(t *testing.T) {
	f := newFixture(t)
	f.checker.result = alert_evaluator.Result{
		Outcome:        alert_evaluator.OutcomeCreated,
		SensorID:       1,
		Value:          35,
		ThresholdRange: "15-30",
	}

	status, resp := f.do(t, http.MethodPost, "/api/v1/readings/evaluate", map[string]any{
		"topic": "gh1/temp",
		"value": 35,
	})
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, cerrors.OK.Code, resp.Code)
	assert.Equal(t, "gh1/temp", f.checker.topic)
	assert.Equal(t, 35.0, f.checker.value)

	var result alert_evaluator.Result
	require.NoError(t, json.Unmarshal(resp.Data, &result))
	assert.Equal(t, alert_evaluator.OutcomeCreated, result.Outcome)
	assert.Equal(t, "15-30", result.ThresholdRange)
}

func TestEvaluateReadingWithoutConfig(t *testing.T) {
	f := newFixture(t)
	f.checker.result = alert_evaluator.Result{Outcome: alert_evaluator.OutcomeNoConfig, SensorID: 1}

	status, resp := f.do(t, http.MethodPost, "/api/v1/readings/evaluate", map[string]any{
		"topic": "gh1/temp",
		"value": 0,
	})
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, cerrors.ErrNoAlertConfiguration.Code, resp.Code)
}

func TestEvaluateReadingErrors(t *testing.T) {
	tests := []struct {
		name   string
		body   map[string]any
		err    error
		status int
		code   string
	}{
		{
			name:   "missing value",
			body:   map[string]any{"topic": "gh1/temp"},
			status: http.StatusBadRequest,
			code:   cerrors.ErrGenericBadRequest.Code,
		},
		{
			name:   "blank topic",
			body:   map[string]any{"topic": "  ", "value": 1},
			status: http.StatusBadRequest,
			code:   cerrors.ErrMissingSensorTopic.Code,
		},
		{
			name:   "unknown sensor",
			body:   map[string]any{"topic": "gh9/none", "value": 1},
			err:    errors.Wrap(store.ErrNotFound, "no sensor registered for topic gh9/none"),
			status: http.StatusNotFound,
			code:   cerrors.ErrSensorNotFound.Code,
		},
		{
			name:   "store down",
			body:   map[string]any{"topic": "gh1/temp", "value": 1},
			err:    cerrors.Transient(errors.New("connection refused")),
			status: http.StatusServiceUnavailable,
			code:   cerrors.ErrStoreUnavailable.Code,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			f.checker.err = tt.err
			status, resp := f.do(t, http.MethodPost, "/api/v1/readings/evaluate", tt.body)
			assert.Equal(t, tt.status, status)
			assert.Equal(t, tt.code, resp.Code)
		})
	}
}

func TestResolveAlert(t *testing.T) {
	f := newFixture(t)

	status, _ := f.do(t, http.MethodPost, "/api/v1/alerts/7/resolve", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, []int{7}, f.resolver.resolved)

	status, resp := f.do(t, http.MethodPost, "/api/v1/alerts/abc/resolve", nil)
	assert.Equal(t, http.StatusBadRequest, status)
	assert.Equal(t, cerrors.ErrGenericBadRequest.Code, resp.Code)

	f.resolver.err = store.ErrNotFound
	status, resp = f.do(t, http.MethodPost, "/api/v1/alerts/8/resolve", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, cerrors.ErrAlertNotFound.Code, resp.Code)
}

func TestRefreshSignalsPipeline(t *testing.T) {
	f := newFixture(t)
	status, _ := f.do(t, http.MethodPost, "/api/v1/alerts/refresh", nil)
	assert.Equal(t, http.StatusOK, status)
	assert.Equal(t, 1, f.checker.refreshes)
}

func TestListAlertConfigsSorted(t *testing.T) {
	f := newFixture(t)
	status, resp := f.do(t, http.MethodGet, "/api/v1/alerts/configs", nil)
	require.Equal(t, http.StatusOK, status)
	assert.Equal(t, 2, resp.Count)

	var configs []alert_evaluator.AlertConfig
	require.NoError(t, json.Unmarshal(resp.Data, &configs))
	require.Len(t, configs, 2)
	assert.Equal(t, 1, configs[0].SensorID)
	assert.Equal(t, 3, configs[1].SensorID)
}

func TestDefaultThresholds(t *testing.T) {
	f := newFixture(t)
	status, resp := f.do(t, http.MethodGet, "/api/v1/alerts/default-thresholds", nil)
	require.Equal(t, http.StatusOK, status)

	var out []restful.DefaultThreshold
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	require.Len(t, out, 4)
	assert.Equal(t, models.SensorTypeBrightness.DefaultThreshold(), out[2].Threshold)
}

func TestCalibrationStates(t *testing.T) {
	f := newFixture(t)

	status, resp := f.do(t, http.MethodGet, "/api/v1/calibration", nil)
	require.Equal(t, http.StatusOK, status)
	var states []calibration.State
	require.NoError(t, json.Unmarshal(resp.Data, &states))
	require.Len(t, states, 2)
	assert.Equal(t, 1, states[0].SensorID)

	status, resp = f.do(t, http.MethodGet, "/api/v1/calibration?calibrated=true", nil)
	require.Equal(t, http.StatusOK, status)
	require.NoError(t, json.Unmarshal(resp.Data, &states))
	require.Len(t, states, 1)
	assert.True(t, states[0].IsCalibrated)

	status, _ = f.do(t, http.MethodGet, "/api/v1/calibration?calibrated=maybe", nil)
	assert.Equal(t, http.StatusBadRequest, status)
}

func TestHealthReportsDegradedPipeline(t *testing.T) {
	f := newFixture(t)
	status, resp := f.do(t, http.MethodGet, "/api/v1/health", nil)
	require.Equal(t, http.StatusOK, status)

	var out restful.HealthcheckOutput
	require.NoError(t, json.Unmarshal(resp.Data, &out))
	assert.Equal(t, "degraded", out.Status)
	require.NotNil(t, out.Pipeline)
	assert.Equal(t, 2, out.Pipeline.Subscriptions)
}

func TestUnknownPath(t *testing.T) {
	f := newFixture(t)
	status, resp := f.do(t, http.MethodGet, "/api/v1/nope", nil)
	assert.Equal(t, http.StatusNotFound, status)
	assert.Equal(t, cerrors.ErrGenericUnknownAPIPath.Code, resp.Code)
}
