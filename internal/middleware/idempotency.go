package middleware

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"
)

const (
	idempotencyHeader = "Idempotency-Key"
	replayedHeader    = "Idempotent-Replayed"

	idempotencyTTL = 24 * time.Hour
	// inFlightTTL bounds how long a crashed request can block its key.
	inFlightTTL = 30 * time.Second

	codeRequestInProgress = "REQUEST_IN_PROGRESS"
)

// storedOutcome is a settled response kept for replay.
type storedOutcome struct {
	Status      int    `json:"status"`
	ContentType string `json:"content_type,omitempty"`
	Body        []byte `json:"body"`
}

// replayable reports whether a response is final for its request. Conflicts
// and failed preconditions depend on ride state that moves on (another driver
// won, the client holds an old version, the driver finished their trip), so a
// retry under the same key must reach the handler again. Server errors are
// never stored.
func replayable(status int) bool {
	switch {
	case status >= 200 && status < 300:
		return true
	case status == http.StatusBadRequest, status == http.StatusNotFound:
		return true
	default:
		return false
	}
}

// outcomeStore keeps settled outcomes and in-flight markers per key.
type outcomeStore struct {
	client redis.Cmdable
}

func (s outcomeStore) load(ctx context.Context, key string) (*storedOutcome, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}
	var out storedOutcome
	if err := json.Unmarshal(data, &out); err != nil {
		return nil, err
	}
	return &out, nil
}

func (s outcomeStore) save(ctx context.Context, key string, out storedOutcome) error {
	data, err := json.Marshal(out)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, idempotencyTTL).Err()
}

// claim marks key as being processed. It fails when another request holds it.
func (s outcomeStore) claim(ctx context.Context, key string) (bool, error) {
	return s.client.SetNX(ctx, key+":inflight", "1", inFlightTTL).Result()
}

func (s outcomeStore) release(ctx context.Context, key string) {
	_ = s.client.Del(ctx, key+":inflight").Err()
}

// capturingWriter tees the response body so it can be stored.
type capturingWriter struct {
	gin.ResponseWriter
	body bytes.Buffer
}

func (w *capturingWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware makes POSTs carrying an Idempotency-Key safe to
// retry. A settled outcome is replayed with Idempotent-Replayed: true; a
// duplicate arriving while the first is still running gets 409
// REQUEST_IN_PROGRESS. Keys are scoped to method and path. When Redis is
// unreachable requests go through unprotected.
func IdempotencyMiddleware(redisClient redis.Cmdable) gin.HandlerFunc {
	store := outcomeStore{client: redisClient}

	return func(c *gin.Context) {
		key := c.GetHeader(idempotencyHeader)
		if key == "" || c.Request.Method != http.MethodPost {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		storeKey := idempotencyKey(c.Request.Method, c.Request.URL.Path, key)

		prior, err := store.load(ctx, storeKey)
		switch {
		case err == nil:
			c.Header(replayedHeader, "true")
			c.Data(prior.Status, prior.ContentType, prior.Body)
			c.Abort()
			return
		case err != redis.Nil:
			c.Next()
			return
		}

		claimed, err := store.claim(ctx, storeKey)
		if err != nil {
			c.Next()
			return
		}
		if !claimed {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"error": "a request with this idempotency key is in progress",
				"code":  codeRequestInProgress,
			})
			return
		}
		// The marker must go even if the client hung up.
		defer store.release(context.WithoutCancel(ctx), storeKey)

		w := &capturingWriter{ResponseWriter: c.Writer}
		c.Writer = w
		c.Next()

		if status := w.Status(); replayable(status) {
			_ = store.save(context.WithoutCancel(ctx), storeKey, storedOutcome{
				Status:      status,
				ContentType: w.Header().Get("Content-Type"),
				Body:        w.body.Bytes(),
			})
		}
	}
}

func idempotencyKey(method, path, key string) string {
	return "idempotency:" + method + ":" + path + ":" + key
}
