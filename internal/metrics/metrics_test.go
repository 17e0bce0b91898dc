package metrics

import (
	"encoding/json"
	"net/http/httptest"
	"testing"
	"time"
)

func healthBody(t *testing.T, h *HealthStatus) map[string]any {
	t.Helper()
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest("GET", "/healthz", nil))
	var body map[string]any
	if err := json.NewDecoder(rec.Body).Decode(&body); err != nil {
		t.Fatalf("decode health: %v", err)
	}
	return body
}

func TestHealthStatus_SettersReflectedInResponse(t *testing.T) {
	h := NewHealthStatus()

	h.SetStreamConnected(true)
	h.SetLinkUp(true)
	h.SetRedisConnected(true)
	h.SetPositionState("LONG")
	h.SetLastBarTime(time.Now())

	body := healthBody(t, h)
	if body["status"] != "healthy" {
		t.Errorf("status = %v, want healthy", body["status"])
	}
	if body["redis_connected"] != true {
		t.Error("redis_connected not reflected")
	}
	if body["position_state"] != "LONG" {
		t.Errorf("position_state = %v, want LONG", body["position_state"])
	}

	h.SetRedisConnected(false)
	if body := healthBody(t, h); body["redis_connected"] != false {
		t.Error("redis_connected not cleared")
	}
}

func TestHealthStatus_DegradedWhenLinkDown(t *testing.T) {
	h := NewHealthStatus()
	h.SetStreamConnected(true)
	h.SetLinkUp(false)

	if body := healthBody(t, h); body["status"] != "degraded" {
		t.Errorf("status = %v, want degraded", body["status"])
	}
}
