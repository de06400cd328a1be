package middleware

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

func init() {
	gin.SetMode(gin.TestMode)
}

func TestIdempotencyMiddleware_ReplaysPerRoute(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	var calls int32
	router := gin.New()
	router.Use(IdempotencyMiddleware(client))
	handler := func(c *gin.Context) {
		n := atomic.AddInt32(&calls, 1)
		c.JSON(http.StatusCreated, gin.H{"call": n})
	}
	router.POST("/v1/rides", handler)
	router.POST("/v1/rides/:id/cancel", handler)

	do := func(path, key string) *httptest.ResponseRecorder {
		req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`))
		if key != "" {
			req.Header.Set(idempotencyHeader, key)
		}
		w := httptest.NewRecorder()
		router.ServeHTTP(w, req)
		return w
	}

	first := do("/v1/rides", "key-1")
	replay := do("/v1/rides", "key-1")
	if first.Body.String() != replay.Body.String() || replay.Code != http.StatusCreated {
		t.Errorf("expected replay of %q, got %d %q", first.Body.String(), replay.Code, replay.Body.String())
	}
	if calls != 1 {
		t.Fatalf("handler ran %d times for a replayed key", calls)
	}

	other := do("/v1/rides/r1/cancel", "key-1")
	if calls != 2 || other.Body.String() == first.Body.String() {
		t.Errorf("key reused on another route was replayed: %q", other.Body.String())
	}

	do("/v1/rides", "")
	do("/v1/rides", "")
	if calls != 4 {
		t.Errorf("requests without a key must not be cached, handler ran %d times", calls)
	}
}

func newIdempotentRouter(t *testing.T) (*miniredis.Miniredis, *gin.Engine) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	router := gin.New()
	router.Use(IdempotencyMiddleware(client))
	return mr, router
}

func postWithKey(router *gin.Engine, path, key string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, path, strings.NewReader(`{}`))
	req.Header.Set(idempotencyHeader, key)
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestIdempotencyMiddleware_OnlySettledOutcomesReplay(t *testing.T) {
	testCases := []struct {
		name       string
		statuses   []int
		wantCalls  int32
		wantSecond int
	}{
		{"created is replayed", []int{http.StatusCreated, http.StatusOK}, 1, http.StatusCreated},
		{"bad request is replayed", []int{http.StatusBadRequest, http.StatusOK}, 1, http.StatusBadRequest},
		{"lost accept race is retried", []int{http.StatusConflict, http.StatusOK}, 2, http.StatusOK},
		{"failed precondition is retried", []int{http.StatusPreconditionFailed, http.StatusOK}, 2, http.StatusOK},
		{"server error is retried", []int{http.StatusInternalServerError, http.StatusOK}, 2, http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			_, router := newIdempotentRouter(t)
			var calls int32
			router.POST("/v1/drivers/:id/rides/:rideId/accept", func(c *gin.Context) {
				n := atomic.AddInt32(&calls, 1)
				c.JSON(tc.statuses[n-1], gin.H{"call": n})
			})

			path := "/v1/drivers/d1/rides/r1/accept"
			postWithKey(router, path, "accept-1")
			second := postWithKey(router, path, "accept-1")

			if got := atomic.LoadInt32(&calls); got != tc.wantCalls {
				t.Errorf("expected handler to run %d times, ran %d", tc.wantCalls, got)
			}
			if second.Code != tc.wantSecond {
				t.Errorf("expected second response %d, got %d", tc.wantSecond, second.Code)
			}
			replayed := second.Header().Get(replayedHeader) == "true"
			if replayed != (tc.wantCalls == 1) {
				t.Errorf("unexpected %s header %q", replayedHeader, second.Header().Get(replayedHeader))
			}
		})
	}
}

func TestIdempotencyMiddleware_InFlightDuplicateIsRejected(t *testing.T) {
	mr, router := newIdempotentRouter(t)
	var calls int32
	router.POST("/v1/rides", func(c *gin.Context) {
		atomic.AddInt32(&calls, 1)
		c.JSON(http.StatusCreated, gin.H{"id": "ride-1"})
	})

	marker := idempotencyKey(http.MethodPost, "/v1/rides", "create-1") + ":inflight"
	if err := mr.Set(marker, "1"); err != nil {
		t.Fatalf("seed marker: %v", err)
	}

	w := postWithKey(router, "/v1/rides", "create-1")
	if w.Code != http.StatusConflict || !strings.Contains(w.Body.String(), codeRequestInProgress) {
		t.Fatalf("expected 409 %s, got %d %s", codeRequestInProgress, w.Code, w.Body.String())
	}
	if calls != 0 {
		t.Errorf("duplicate reached the handler")
	}

	mr.Del(marker)
	if w := postWithKey(router, "/v1/rides", "create-1"); w.Code != http.StatusCreated {
		t.Errorf("expected 201 once the first request finished, got %d", w.Code)
	}
	if mr.Exists(marker) {
		t.Error("in-flight marker left behind after the request completed")
	}
}

func TestIdempotencyMiddleware_RedisDownPassesThrough(t *testing.T) {
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr(), MaxRetries: -1})
	t.Cleanup(func() { _ = client.Close() })
	mr.Close()

	router := gin.New()
	router.Use(IdempotencyMiddleware(client))
	router.POST("/v1/rides", func(c *gin.Context) { c.Status(http.StatusCreated) })

	req := httptest.NewRequest(http.MethodPost, "/v1/rides", nil)
	req.Header.Set(idempotencyHeader, "key-1")
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)

	if w.Code != http.StatusCreated {
		t.Errorf("expected request to proceed, got %d", w.Code)
	}
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	router := gin.New()
	router.Use(CORSMiddleware())
	router.POST("/v1/rides", func(c *gin.Context) { c.Status(http.StatusCreated) })

	w := httptest.NewRecorder()
	router.ServeHTTP(w, httptest.NewRequest(http.MethodOptions, "/v1/rides", nil))

	if w.Code != http.StatusNoContent {
		t.Errorf("expected 204, got %d", w.Code)
	}
	if w.Header().Get("Access-Control-Allow-Origin") != "*" {
		t.Error("missing allow-origin header")
	}
}
