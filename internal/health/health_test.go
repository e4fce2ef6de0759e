package health

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
)

func TestHandlerHealthy(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.Register("db", NewCheckFunc("db", func(context.Context) error {
		return nil
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}

	var report Report
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if report.Status != StatusHealthy {
		t.Errorf("expected status healthy, got %s", report.Status)
	}
	if report.Version != "v1.0.0" {
		t.Errorf("expected version v1.0.0, got %s", report.Version)
	}
	if len(report.Checks) != 1 {
		t.Errorf("expected 1 check, got %d", len(report.Checks))
	}
}

func TestHandlerUnhealthy(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.Register("db", NewCheckFunc("db", func(context.Context) error {
		return errors.New("connection refused")
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}

	var report Report
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}

	if report.Status != StatusUnhealthy {
		t.Errorf("expected status unhealthy, got %s", report.Status)
	}
	if report.Checks["db"].Message != "connection refused" {
		t.Errorf("unexpected check message: %q", report.Checks["db"].Message)
	}
}

func TestHandlerDegraded(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.Register("outbox", checkerFunc(func(context.Context) Check {
		return Check{Name: "outbox", Status: StatusDegraded, Message: "backlog growing"}
	}))

	req := httptest.NewRequest(http.MethodGet, "/healthz", nil)
	w := httptest.NewRecorder()

	handler.ServeHTTP(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200 for degraded, got %d", w.Code)
	}

	var report Report
	if err := json.NewDecoder(w.Body).Decode(&report); err != nil {
		t.Fatalf("failed to decode response: %v", err)
	}
	if report.Status != StatusDegraded {
		t.Errorf("expected status degraded, got %s", report.Status)
	}
}

func TestLivenessHandler(t *testing.T) {
	req := httptest.NewRequest(http.MethodGet, "/livez", nil)
	w := httptest.NewRecorder()

	LivenessHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "ok" {
		t.Errorf("expected body 'ok', got %s", w.Body.String())
	}
}

func TestReadinessHandler(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.Register("db", NewCheckFunc("db", func(context.Context) error {
		return nil
	}))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	handler.ReadinessHandler(w, req)

	if w.Code != http.StatusOK {
		t.Errorf("expected status 200, got %d", w.Code)
	}
	if w.Body.String() != "ready" {
		t.Errorf("expected body 'ready', got %s", w.Body.String())
	}
}

func TestReadinessHandlerNotReady(t *testing.T) {
	handler := NewHandler("v1.0.0")
	handler.Register("db", NewCheckFunc("db", func(context.Context) error {
		return errors.New("down")
	}))

	req := httptest.NewRequest(http.MethodGet, "/readyz", nil)
	w := httptest.NewRecorder()

	handler.ReadinessHandler(w, req)

	if w.Code != http.StatusServiceUnavailable {
		t.Errorf("expected status 503, got %d", w.Code)
	}
	if w.Body.String() != "not ready" {
		t.Errorf("expected body 'not ready', got %s", w.Body.String())
	}
}

func TestCheckFuncError(t *testing.T) {
	checker := NewCheckFunc("db", func(context.Context) error {
		return errors.New("test error")
	})

	check := checker.Check(context.Background())

	if check.Status != StatusUnhealthy {
		t.Errorf("expected status unhealthy, got %s", check.Status)
	}
	if check.Message != "test error" {
		t.Errorf("expected message 'test error', got %s", check.Message)
	}
}

type checkerFunc func(ctx context.Context) Check

func (f checkerFunc) Check(ctx context.Context) Check { return f(ctx) }
