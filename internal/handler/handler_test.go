package handler

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/gin-gonic/gin"

	"ridedispatch/internal/logger"
	"ridedispatch/internal/notify"
	"ridedispatch/internal/repository"
	"ridedispatch/internal/service"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestMapError(t *testing.T) {
	testCases := []struct {
		name       string
		err        error
		wantStatus int
		wantCode   string
	}{
		{"not found", repository.ErrNotFound, http.StatusNotFound, CodeNotFound},
		{"wrapped not found", fmt.Errorf("get ride: %w", repository.ErrNotFound), http.StatusNotFound, CodeNotFound},
		{"validation", service.ErrInvalidPickupLocation, http.StatusBadRequest, CodeInvalidInput},
		{"bad version token", service.ErrInvalidVersion, http.StatusBadRequest, CodeInvalidInput},
		{"lost the race", service.ErrConflict, http.StatusConflict, CodeRideTaken},
		{"stale", fmt.Errorf("%w: %w", service.ErrStaleVersion, repository.ErrVersionMismatch), http.StatusConflict, CodeStaleVersion},
		{"invalid transition", service.ErrInvalidTransition, http.StatusConflict, CodeInvalidTransition},
		{"duplicate", repository.ErrDuplicate, http.StatusConflict, CodeDuplicate},
		{"prerequisite", service.ErrPrerequisite, http.StatusPreconditionFailed, CodePrerequisite},
		{"unknown", errors.New("connection reset"), http.StatusInternalServerError, CodeInternal},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			status, code := mapError(tc.err)
			if status != tc.wantStatus || code != tc.wantCode {
				t.Errorf("expected %d/%s, got %d/%s", tc.wantStatus, tc.wantCode, status, code)
			}
		})
	}
}

func TestRespondError_Messages(t *testing.T) {
	testCases := []struct {
		name    string
		err     error
		wantMsg string
		wantCtx int
	}{
		{"internal error is not echoed", errors.New("pq: password authentication failed"), "internal server error", 1},
		{"race loser sees a uniform message", service.ErrConflict, rideUnavailableMessage, 0},
		{"stale version sees the same message", service.ErrStaleVersion, rideUnavailableMessage, 0},
		{"prerequisite keeps its message", service.ErrPrerequisite, service.ErrPrerequisite.Error(), 0},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			w := httptest.NewRecorder()
			c, _ := gin.CreateTestContext(w)

			respondError(c, tc.err)

			var body ErrorResponse
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Error != tc.wantMsg {
				t.Errorf("expected message %q, got %q", tc.wantMsg, body.Error)
			}
			if len(c.Errors) != tc.wantCtx {
				t.Errorf("expected %d context errors, got %d", tc.wantCtx, len(c.Errors))
			}
		})
	}
}

func TestWSHandler_RequiresChannel(t *testing.T) {
	router := gin.New()
	router.GET("/v1/ws", NewWSHandler(notify.NewHub(logger.Discard())).Subscribe)

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/v1/ws?channel=%20,", nil))

	if w.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", w.Code)
	}
	if !strings.Contains(w.Body.String(), CodeInvalidInput) {
		t.Errorf("expected %s in body, got %s", CodeInvalidInput, w.Body.String())
	}
}

func TestHealthHandler(t *testing.T) {
	ok := func(context.Context) error { return nil }
	down := func(context.Context) error { return errors.New("dial tcp: refused") }

	testCases := []struct {
		name       string
		checks     map[string]HealthCheck
		wantStatus int
		wantState  string
	}{
		{"all up", map[string]HealthCheck{"postgres": ok, "redis": ok}, http.StatusOK, "ok"},
		{"redis down", map[string]HealthCheck{"postgres": ok, "redis": down}, http.StatusServiceUnavailable, "degraded"},
		{"no checks", nil, http.StatusOK, "ok"},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			router := gin.New()
			router.GET("/health", NewHealthHandler(tc.checks).Health)

			w := httptest.NewRecorder()
			router.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/health", nil))

			if w.Code != tc.wantStatus {
				t.Fatalf("expected %d, got %d", tc.wantStatus, w.Code)
			}
			var body struct {
				Status     string            `json:"status"`
				Components map[string]string `json:"components"`
			}
			if err := json.Unmarshal(w.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode body: %v", err)
			}
			if body.Status != tc.wantState {
				t.Errorf("expected %q, got %q", tc.wantState, body.Status)
			}
			if len(body.Components) != len(tc.checks) {
				t.Errorf("expected %d components, got %v", len(tc.checks), body.Components)
			}
		})
	}
}
