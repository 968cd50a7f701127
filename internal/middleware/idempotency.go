package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"ridehail/internal/redis"
)

const (
	idempotencyHeader  = "Idempotency-Key"
	idempotencyTTL     = 24 * time.Hour
	idempotencyLockTTL = 30 * time.Second
)

// cachedResponse stores the response for idempotent requests.
type cachedResponse struct {
	StatusCode  int             `json:"status_code"`
	Body        json.RawMessage `json:"body"`
	Headers     http.Header     `json:"headers"`
	RequestHash string          `json:"request_hash"`
}

// responseWriter wraps gin.ResponseWriter to capture the response.
type responseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *responseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// IdempotencyMiddleware replays the stored response of a mutating request
// that repeats an Idempotency-Key, and rejects a repeat that arrives while
// the first request is still running. Keys are scoped to the caller and route;
// reusing a key with a different request body is rejected with 422.
func IdempotencyMiddleware(store redis.IdempotencyStoreInterface, locks redis.LockStoreInterface, logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		if !isMutating(c.Request.Method) {
			c.Next()
			return
		}

		key := c.GetHeader(idempotencyHeader)
		if key == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		scoped := scopeKey(c, key)

		fingerprint, err := bodyFingerprint(c)
		if err != nil {
			abort(c, http.StatusBadRequest, "could not read request body")
			return
		}

		data, err := store.Get(ctx, scoped)
		if err != nil {
			logger.WarnContext(ctx, "idempotency lookup failed", "error", err)
			c.Next()
			return
		}
		if data != nil {
			var cached cachedResponse
			if err := json.Unmarshal(data, &cached); err == nil {
				if cached.RequestHash != fingerprint {
					abort(c, http.StatusUnprocessableEntity, "idempotency key was already used with a different request body")
					return
				}
				replay(c, &cached)
				return
			}
		}

		acquired, err := locks.Acquire(ctx, scoped, idempotencyLockTTL)
		if err != nil {
			logger.WarnContext(ctx, "idempotency lock failed", "error", err)
			c.Next()
			return
		}
		if !acquired {
			abort(c, http.StatusConflict, "a request with this idempotency key is already in progress")
			return
		}
		// The outcome is recorded even if the client has gone away.
		ctx = context.WithoutCancel(ctx)
		defer func() {
			if err := locks.Release(ctx, scoped); err != nil {
				logger.WarnContext(ctx, "idempotency unlock failed", "error", err)
			}
		}()

		w := &responseWriter{
			ResponseWriter: c.Writer,
			body:           &bytes.Buffer{},
		}
		c.Writer = w

		c.Next()

		status := c.Writer.Status()
		if status < 200 || status >= 500 {
			return
		}

		response := cachedResponse{
			StatusCode:  status,
			Body:        w.body.Bytes(),
			Headers:     extractResponseHeaders(c),
			RequestHash: fingerprint,
		}
		encoded, err := json.Marshal(response)
		if err != nil {
			return
		}
		if err := store.Set(ctx, scoped, encoded, idempotencyTTL); err != nil {
			logger.WarnContext(ctx, "idempotency store failed", "error", err)
		}
	}
}

func isMutating(method string) bool {
	switch method {
	case http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete:
		return true
	}
	return false
}

// scopeKey binds the client key to the caller and request target so that two
// users cannot replay each other's responses.
func scopeKey(c *gin.Context, key string) string {
	var user string
	if actor, ok := ActorFrom(c); ok {
		user = actor.ID
	}
	sum := sha256.Sum256([]byte(user + "\x00" + c.Request.Method + "\x00" + c.Request.URL.Path + "\x00" + key))
	return hex.EncodeToString(sum[:])
}

// bodyFingerprint hashes the request body and restores it for the handler.
func bodyFingerprint(c *gin.Context) (string, error) {
	if c.Request.Body == nil {
		sum := sha256.Sum256(nil)
		return hex.EncodeToString(sum[:]), nil
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return "", err
	}
	c.Request.Body = io.NopCloser(bytes.NewReader(body))
	sum := sha256.Sum256(body)
	return hex.EncodeToString(sum[:]), nil
}

func replay(c *gin.Context, cached *cachedResponse) {
	for k, v := range cached.Headers {
		for _, val := range v {
			c.Header(k, val)
		}
	}
	c.Header("Idempotent-Replayed", "true")
	c.Data(cached.StatusCode, "application/json", cached.Body)
	c.Abort()
}

// extractResponseHeaders extracts headers to cache.
func extractResponseHeaders(c *gin.Context) http.Header {
	headers := make(http.Header)
	if ct := c.Writer.Header().Get("Content-Type"); ct != "" {
		headers.Set("Content-Type", ct)
	}
	return headers
}
