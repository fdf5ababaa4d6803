package api

import (
	"context"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestClient_Status_DecodesResponse(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/status", r.URL.Path)
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"scheduler":{"mode":"automatic","requested_mode":"automatic","status_updated":"2026-01-01T00:00:00Z","schedule":[]},"enclosure":{"mode":"automatic","status":"open","has_window":false,"window":null},"health":{"cpu_percent":1.5,"memory_percent":2.5,"disk_percent":3.5,"host_uptime":100,"process_uptime":50,"collected_at":"2026-01-01T00:00:00Z"},"observed_at":"2026-01-01T00:00:01Z"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	status, err := client.Status(context.Background())
	require.NoError(t, err)
	assert.Equal(t, "automatic", status.Scheduler.Mode)
	assert.Equal(t, "open", status.Enclosure.Status)
	assert.Equal(t, 1.5, status.Health.CPUPercent)
}

func TestClient_SubmitSchedule_ReturnsOkOnSuccess(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		w.WriteHeader(http.StatusOK)
		w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	ok, failure, err := client.SubmitSchedule(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Empty(t, failure.Code)
}

func TestClient_SubmitSchedule_ReturnsFailureCodeOnRejection(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"error":"DomeNotAutomatic","message":"enclosure is not in automatic mode"}`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	ok, failure, err := client.SubmitSchedule(context.Background(), []byte(`{}`))
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, "DomeNotAutomatic", failure.Code)
}

func TestClient_RecentLogs_DecodesEntries(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "/v1/logs/recent", r.URL.Path)
		assert.Equal(t, "25", r.URL.Query().Get("limit"))
		w.Write([]byte(`[{"id":1,"timestamp":"2026-01-01T00:00:00Z","event_type":"EnclosureModeChanged","module":"enclosure","data":"{}"}]`))
	}))
	defer srv.Close()

	client := NewClient(srv.URL)
	entries, err := client.RecentLogs(context.Background(), 25)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	assert.Equal(t, "EnclosureModeChanged", entries[0].EventType)
}
