package sync

import (
	"context"
	"encoding/json"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"
)

func TestHealthCheck_OneEntryPerEndpoint(t *testing.T) {
	srv := newRecordingServer(t, map[string]http.HandlerFunc{
		"/accounts": jsonResponse(http.StatusOK, ``),
		"/entities": hangUp,
		"/payroll":  jsonResponse(http.StatusMethodNotAllowed, ``),
	})
	s, _ := testSession(testConfig(srv.URL))

	health := s.HealthCheck(context.Background())

	require.Len(t, health, 3)

	assert.Equal(t, ProbeHealthy, health["accounts"].Status)
	assert.Equal(t, http.StatusOK, health["accounts"].StatusCode)
	require.NotNil(t, health["accounts"].ResponseTime)
	assert.GreaterOrEqual(t, *health["accounts"].ResponseTime, 0.0)

	assert.Equal(t, ProbeUnhealthy, health["entities"].Status)
	assert.NotEmpty(t, health["entities"].Error)
	assert.Zero(t, health["entities"].StatusCode)

	// any HTTP response means the endpoint is reachable
	assert.Equal(t, ProbeHealthy, health["payroll"].Status)
	assert.Equal(t, http.StatusMethodNotAllowed, health["payroll"].StatusCode)

	for _, r := range srv.Requests() {
		assert.Equal(t, http.MethodOptions, r.Method)
		assert.Equal(t, "client-1", r.Header.Get("x-client-id"))
	}
}

func TestHealthCheck_AllUnreachable(t *testing.T) {
	srv := newRecordingServer(t, nil)
	cfg := testConfig(srv.URL)
	srv.Close()
	s, _ := testSession(cfg)

	health := s.HealthCheck(context.Background())

	require.Len(t, health, 3)
	for kind, probe := range health {
		assert.Equal(t, ProbeUnhealthy, probe.Status, kind)
		assert.NotEmpty(t, probe.Error, kind)
	}
}

func TestHealthCheck_NoEndpoints(t *testing.T) {
	cfg := testConfig("http://localhost")
	cfg.API.Endpoints = nil
	s, _ := testSession(cfg)

	assert.Empty(t, s.HealthCheck(context.Background()))
}

func TestHealthCheck_InstantResponseKeepsResponseTime(t *testing.T) {
	srv := newRecordingServer(t, map[string]http.HandlerFunc{
		"/accounts": jsonResponse(http.StatusOK, ``),
		"/entities": hangUp,
		"/payroll":  jsonResponse(http.StatusOK, ``),
	})
	s, _ := testSession(testConfig(srv.URL))

	out, err := json.Marshal(s.HealthCheck(context.Background()))
	require.NoError(t, err)

	assert.JSONEq(t, `{"status":"healthy","response_time":0,"status_code":200}`, gjson.GetBytes(out, "accounts").Raw)
	assert.False(t, gjson.GetBytes(out, "entities.response_time").Exists())
	assert.Equal(t, "unhealthy", gjson.GetBytes(out, "entities.status").String())
}
