package middleware_test

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ridehail/internal/auth"
	"ridehail/internal/domain"
	"ridehail/internal/middleware"
	"ridehail/internal/service"
	"ridehail/internal/tests"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type stubAuthenticator struct {
	actors map[string]domain.Actor
	err    error
}

func (s stubAuthenticator) Authenticate(ctx context.Context, token string) (*auth.Claims, domain.Actor, error) {
	if s.err != nil {
		return nil, domain.Actor{}, s.err
	}
	actor, ok := s.actors[token]
	if !ok {
		return nil, domain.Actor{}, service.ErrUnauthenticated
	}
	return &auth.Claims{UserID: actor.ID, Role: string(actor.Role)}, actor, nil
}

func discard() *slog.Logger {
	return slog.New(slog.NewTextHandler(&bytes.Buffer{}, nil))
}

func serve(r *gin.Engine, req *http.Request) *httptest.ResponseRecorder {
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware(t *testing.T) {
	authn := stubAuthenticator{actors: map[string]domain.Actor{
		"p-token": {ID: "p1", Role: domain.RolePassenger},
		"d-token": {ID: "d1", Role: domain.RoleDriver},
	}}

	r := gin.New()
	r.GET("/me", middleware.AuthMiddleware(authn, discard()), func(c *gin.Context) {
		actor, _ := middleware.ActorFrom(c)
		_, hasClaims := middleware.ClaimsFrom(c)
		c.JSON(http.StatusOK, gin.H{"id": actor.ID, "claims": hasClaims})
	})
	r.GET("/drivers", middleware.AuthMiddleware(authn, discard()), middleware.RequireRole(domain.RoleDriver), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	testCases := []struct {
		name    string
		path    string
		headers map[string]string
		want    int
	}{
		{name: "no header", path: "/me", want: http.StatusUnauthorized},
		{name: "wrong scheme", path: "/me", headers: map[string]string{"Authorization": "Basic p-token"}, want: http.StatusUnauthorized},
		{name: "unknown token", path: "/me", headers: map[string]string{"Authorization": "Bearer nope"}, want: http.StatusUnauthorized},
		{name: "valid token", path: "/me", headers: map[string]string{"Authorization": "Bearer p-token"}, want: http.StatusOK},
		{name: "query token ignored without upgrade", path: "/me?token=p-token", want: http.StatusUnauthorized},
		{name: "query token on upgrade", path: "/me?token=p-token", headers: map[string]string{"Upgrade": "websocket"}, want: http.StatusOK},
		{name: "wrong role", path: "/drivers", headers: map[string]string{"Authorization": "Bearer p-token"}, want: http.StatusForbidden},
		{name: "right role", path: "/drivers", headers: map[string]string{"Authorization": "Bearer d-token"}, want: http.StatusOK},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tc.path, nil)
			for k, v := range tc.headers {
				req.Header.Set(k, v)
			}
			w := serve(r, req)
			assert.Equal(t, tc.want, w.Code, w.Body.String())
			if tc.want != http.StatusOK {
				assert.Contains(t, w.Body.String(), `"error"`)
			}
		})
	}
}

func TestAuthMiddleware_BackendFailureIs500(t *testing.T) {
	r := gin.New()
	r.GET("/me", middleware.AuthMiddleware(stubAuthenticator{err: errors.New("redis down")}, discard()), func(c *gin.Context) {
		c.Status(http.StatusOK)
	})

	req := httptest.NewRequest(http.MethodGet, "/me", nil)
	req.Header.Set("Authorization", "Bearer anything")
	w := serve(r, req)
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.NotContains(t, w.Body.String(), "redis")
}

func TestRequireRole_WithoutActor(t *testing.T) {
	r := gin.New()
	r.GET("/x", middleware.RequireRole(domain.RoleDriver), func(c *gin.Context) { c.Status(http.StatusOK) })

	w := serve(r, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestIdempotencyMiddleware_InFlightDuplicateConflicts(t *testing.T) {
	store := tests.NewMockIdempotencyStore()
	locks := tests.NewMockLockStore()

	entered := make(chan struct{})
	release := make(chan struct{})

	r := gin.New()
	r.Use(middleware.IdempotencyMiddleware(store, locks, discard()))
	r.POST("/slow", func(c *gin.Context) {
		close(entered)
		<-release
		c.JSON(http.StatusCreated, gin.H{"ok": true})
	})

	newReq := func() *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/slow", nil)
		req.Header.Set("Idempotency-Key", "abc")
		return req
	}

	done := make(chan *httptest.ResponseRecorder)
	go func() { done <- serve(r, newReq()) }()
	<-entered

	w := serve(r, newReq())
	assert.Equal(t, http.StatusConflict, w.Code)

	close(release)
	first := <-done
	require.Equal(t, http.StatusCreated, first.Code)

	replayed := serve(r, newReq())
	assert.Equal(t, http.StatusCreated, replayed.Code)
	assert.Equal(t, "true", replayed.Header().Get("Idempotent-Replayed"))
	assert.JSONEq(t, first.Body.String(), replayed.Body.String())
}

func TestIdempotencyMiddleware_KeyReusedWithDifferentBody(t *testing.T) {
	store := tests.NewMockIdempotencyStore()
	calls := 0

	r := gin.New()
	r.Use(middleware.IdempotencyMiddleware(store, tests.NewMockLockStore(), discard()))
	r.POST("/echo", func(c *gin.Context) {
		calls++
		var body map[string]any
		require.NoError(t, c.ShouldBindJSON(&body))
		c.JSON(http.StatusCreated, body)
	})

	newReq := func(body string) *http.Request {
		req := httptest.NewRequest(http.MethodPost, "/echo", bytes.NewBufferString(body))
		req.Header.Set("Content-Type", "application/json")
		req.Header.Set("Idempotency-Key", "k")
		return req
	}

	first := serve(r, newReq(`{"email":"a@example.com"}`))
	require.Equal(t, http.StatusCreated, first.Code)
	assert.JSONEq(t, `{"email":"a@example.com"}`, first.Body.String())

	replayed := serve(r, newReq(`{"email":"a@example.com"}`))
	assert.Equal(t, http.StatusCreated, replayed.Code)
	assert.Equal(t, "true", replayed.Header().Get("Idempotent-Replayed"))

	w := serve(r, newReq(`{"email":"b@example.com"}`))
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
	assert.Empty(t, w.Header().Get("Idempotent-Replayed"))
	assert.NotContains(t, w.Body.String(), "a@example.com")
	assert.Equal(t, 1, calls)
}

func TestIdempotencyMiddleware_SkipsReadsAndServerErrors(t *testing.T) {
	store := tests.NewMockIdempotencyStore()
	calls := 0

	r := gin.New()
	r.Use(middleware.IdempotencyMiddleware(store, tests.NewMockLockStore(), discard()))
	r.GET("/read", func(c *gin.Context) {
		calls++
		c.Status(http.StatusOK)
	})
	r.POST("/fail", func(c *gin.Context) {
		calls++
		c.Status(http.StatusInternalServerError)
	})

	for i := 0; i < 2; i++ {
		req := httptest.NewRequest(http.MethodGet, "/read", nil)
		req.Header.Set("Idempotency-Key", "k")
		serve(r, req)

		req = httptest.NewRequest(http.MethodPost, "/fail", nil)
		req.Header.Set("Idempotency-Key", "k")
		assert.Equal(t, http.StatusInternalServerError, serve(r, req).Code)
	}
	assert.Equal(t, 4, calls)
}

func TestSlogLogger_WritesStructuredLine(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewJSONHandler(&buf, nil))

	r := gin.New()
	r.Use(middleware.RequestID(), middleware.SlogLogger(logger))
	r.GET("/trips/:id", func(c *gin.Context) {
		middleware.SetActor(c, domain.Actor{ID: "u1", Role: domain.RolePassenger}, nil)
		c.Status(http.StatusTeapot)
	})

	req := httptest.NewRequest(http.MethodGet, "/trips/42", nil)
	req.Header.Set("X-Request-ID", "req-1")
	w := serve(r, req)
	assert.Equal(t, "req-1", w.Header().Get("X-Request-ID"))

	var line map[string]any
	require.NoError(t, json.Unmarshal(buf.Bytes(), &line))
	assert.Equal(t, "request", line["msg"])
	assert.Equal(t, "/trips/:id", line["route"])
	assert.Equal(t, "/trips/42", line["path"])
	assert.EqualValues(t, http.StatusTeapot, line["status"])
	assert.Equal(t, "req-1", line["request_id"])
	assert.Equal(t, "u1", line["user_id"])
}

func TestCORSMiddleware_Preflight(t *testing.T) {
	r := gin.New()
	r.Use(middleware.CORSMiddleware())
	r.POST("/v1/trips", func(c *gin.Context) { c.Status(http.StatusCreated) })

	req := httptest.NewRequest(http.MethodOptions, "/v1/trips", nil)
	req.Header.Set("Origin", "https://app.example.com")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "Authorization, Idempotency-Key")
	w := serve(r, req)

	assert.Less(t, w.Code, 300)
	assert.Equal(t, "*", w.Header().Get("Access-Control-Allow-Origin"))
}
