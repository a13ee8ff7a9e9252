package httpx

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
	"go.uber.org/zap/zaptest/observer"

	"github.com/MikeMC777/bikerhub/internal/auth"
)

func init() { gin.SetMode(gin.TestMode) }

func newEngine(production bool, translate Translator) *gin.Engine {
	r := gin.New()
	r.Use(RequestID(), Recovery(zap.NewNop(), production), ErrorHandler(ErrorConfig{
		Logger:     zap.NewNop(),
		Production: production,
		Translate:  translate,
	}))
	r.NoRoute(NoRoute())
	return r
}

func decodeError(t *testing.T, w *httptest.ResponseRecorder) ErrorBody {
	t.Helper()
	var body ErrorBody
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	return body
}

func TestResolve(t *testing.T) {
	type payload struct {
		Name string `validate:"required"`
	}
	verr := validator.New().Struct(payload{})

	tests := []struct {
		name   string
		err    error
		status int
		msg    string
	}{
		{"not found", fmt.Errorf("get: %w", ErrNotFound), 404, "Resource not found"},
		{"duplicate", &pgconn.PgError{Code: "23505", Detail: "Key (email)=(a@b.c) already exists."}, 400,
			"Duplicate field value: email. Please use another value."},
		{"bad uuid", &pgconn.PgError{Code: "22P02"}, 404, "Resource not found"},
		{"validation", verr, 400, "Name is required"},
		{"expired", auth.ErrExpiredToken, 401, "Token expired. Please log in again."},
		{"invalid", auth.ErrInvalidToken, 401, "Invalid token. Please log in again."},
		{"inactive", auth.ErrAccountInactive, 401, "Account is deactivated"},
		{"credentials", auth.ErrInvalidCredentials, 401, "Invalid credentials"},
		{"app error", Conflict("nope"), 409, "nope"},
		{"unknown", errors.New("boom"), 500, "Internal Server Error"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Resolve(tt.err, nil)
			assert.Equal(t, tt.status, got.Status)
			assert.Equal(t, tt.msg, got.Message)
		})
	}
}

func TestResolve_Translator(t *testing.T) {
	errDomain := errors.New("domain")
	tr := func(err error) *AppError {
		if errors.Is(err, errDomain) {
			return BadRequest("translated")
		}
		return nil
	}
	assert.Equal(t, "translated", Resolve(errDomain, tr).Message)
	assert.Equal(t, 500, Resolve(errors.New("x"), tr).Status)
}

func TestErrorHandler_HidesInternalsInProduction(t *testing.T) {
	for _, prod := range []bool{true, false} {
		r := newEngine(prod, nil)
		r.GET("/x", func(c *gin.Context) { Fail(c, errors.New("db exploded")) })

		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))

		require.Equal(t, http.StatusInternalServerError, w.Code)
		body := decodeError(t, w)
		assert.False(t, body.Success)
		assert.Equal(t, 500, body.StatusCode)
		assert.NotEmpty(t, body.Timestamp)
		if prod {
			assert.Equal(t, "Internal Server Error", body.Message)
			assert.Empty(t, body.Stack)
		} else {
			assert.Equal(t, "db exploded", body.Message)
		}
	}
}

func TestNoRoute(t *testing.T) {
	r := newEngine(true, nil)
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/api/nope", nil))

	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.Equal(t, "Route /api/nope not found", decodeError(t, w).Message)
}

func TestRecovery(t *testing.T) {
	r := newEngine(true, nil)
	r.GET("/panic", func(c *gin.Context) { panic("kaboom") })
	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/panic", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Equal(t, "Internal Server Error", decodeError(t, w).Message)
}

func TestRequestID(t *testing.T) {
	r := newEngine(true, nil)
	r.GET("/id", func(c *gin.Context) { c.String(200, GetRequestID(c)) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodGet, "/id", nil)
	req.Header.Set("X-Request-ID", "abc")
	r.ServeHTTP(w, req)
	assert.Equal(t, "abc", w.Body.String())
	assert.Equal(t, "abc", w.Header().Get("X-Request-ID"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/id", nil))
	assert.Len(t, w.Body.String(), 36)
}

func TestLogger_RedactsCredentials(t *testing.T) {
	core, logs := observer.New(zapcore.InfoLevel)
	r := gin.New()
	r.Use(RequestID(), Logger(zap.New(core)))
	r.GET("/verify", func(c *gin.Context) { c.Status(http.StatusOK) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/verify?token=eyJhbGciOi.secret.sig&page=2&refresh_token=r1&API_KEY=k", nil))
	require.Equal(t, http.StatusOK, w.Code)

	entries := logs.FilterMessage("http request").All()
	require.Len(t, entries, 1)
	query := entries[0].ContextMap()["query"].(string)
	assert.NotContains(t, query, "eyJhbGciOi")
	assert.NotContains(t, query, "r1")
	assert.Contains(t, query, "token=REDACTED")
	assert.Contains(t, query, "API_KEY=REDACTED")
	assert.Contains(t, query, "page=2")
}

func TestBodyLimit_PathOverride(t *testing.T) {
	r := newEngine(true, nil)
	r.Use(BodyLimit(8, PathLimit{Prefix: "/big", Limit: 64}))
	read := func(c *gin.Context) {
		b, err := io.ReadAll(c.Request.Body)
		if err != nil {
			c.Status(http.StatusRequestEntityTooLarge)
			return
		}
		c.String(http.StatusOK, "%d", len(b))
	}
	r.POST("/small", read)
	r.POST("/big", read)
	body := strings.Repeat("x", 32)

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/small", strings.NewReader(body)))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/big", strings.NewReader(body)))
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, "32", w.Body.String())

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodPost, "/big", strings.NewReader(body+body+"x")))
	assert.Equal(t, http.StatusRequestEntityTooLarge, w.Code)
}

type stubAuthenticator struct {
	principals map[string]*auth.Principal
	errs       map[string]error
}

func (s stubAuthenticator) Authenticate(_ context.Context, token string) (*auth.Principal, error) {
	if err, ok := s.errs[token]; ok {
		return nil, err
	}
	if p, ok := s.principals[token]; ok {
		return p, nil
	}
	return nil, auth.ErrInvalidToken
}

func TestAuthAndRoles(t *testing.T) {
	a := stubAuthenticator{
		principals: map[string]*auth.Principal{
			"admin": {UserID: "1", Role: auth.RoleAdmin},
			"user":  {UserID: "2", Role: auth.RoleUser},
		},
		errs: map[string]error{
			"expired":  auth.ErrExpiredToken,
			"inactive": auth.ErrAccountInactive,
		},
	}
	r := newEngine(true, nil)
	r.GET("/me", Auth(a), func(c *gin.Context) { c.String(200, CurrentPrincipal(c).UserID) })
	r.GET("/admin", Auth(a), AdminOnly(), func(c *gin.Context) { c.Status(204) })
	r.GET("/own/:owner", Auth(a), func(c *gin.Context) {
		if err := OwnerOrAdmin(c, c.Param("owner")); err != nil {
			Fail(c, err)
			return
		}
		c.Status(204)
	})

	do := func(path string, mutate func(*http.Request)) *httptest.ResponseRecorder {
		w := httptest.NewRecorder()
		req := httptest.NewRequest(http.MethodGet, path, nil)
		if mutate != nil {
			mutate(req)
		}
		r.ServeHTTP(w, req)
		return w
	}
	bearer := func(tok string) func(*http.Request) {
		return func(r *http.Request) { r.Header.Set("Authorization", "Bearer "+tok) }
	}

	w := do("/me", nil)
	assert.Equal(t, 401, w.Code)
	assert.Equal(t, "No token, authorization denied", decodeError(t, w).Message)

	w = do("/me", bearer("user"))
	assert.Equal(t, "2", w.Body.String())

	w = do("/me", func(r *http.Request) { r.AddCookie(&http.Cookie{Name: "token", Value: "admin"}) })
	assert.Equal(t, "1", w.Body.String())

	w = do("/me?token=user", nil)
	assert.Equal(t, "2", w.Body.String())

	w = do("/me", bearer("expired"))
	assert.Equal(t, "Token expired. Please log in again.", decodeError(t, w).Message)

	w = do("/me", bearer("inactive"))
	assert.Equal(t, 401, w.Code)
	assert.Equal(t, "Account is deactivated", decodeError(t, w).Message)

	assert.Equal(t, 403, do("/admin", bearer("user")).Code)
	assert.Equal(t, 204, do("/admin", bearer("admin")).Code)

	assert.Equal(t, 204, do("/own/2", bearer("user")).Code)
	assert.Equal(t, 403, do("/own/3", bearer("user")).Code)
	assert.Equal(t, 204, do("/own/3", bearer("admin")).Code)
}

func TestMemoryLimiter(t *testing.T) {
	l := NewMemoryLimiter(2, time.Minute)
	ctx := context.Background()

	rem, ok, _ := l.Allow(ctx, "ip")
	assert.True(t, ok)
	assert.Equal(t, 1, rem)
	_, ok, _ = l.Allow(ctx, "ip")
	assert.True(t, ok)
	_, ok, _ = l.Allow(ctx, "ip")
	assert.False(t, ok)

	_, ok, _ = l.Allow(ctx, "other")
	assert.True(t, ok)

	l.now = func() time.Time { return time.Now().Add(2 * time.Minute) }
	_, ok, _ = l.Allow(ctx, "ip")
	assert.True(t, ok)
}

func TestRateLimitMiddleware(t *testing.T) {
	r := newEngine(true, nil)
	r.Use(RateLimit(NewMemoryLimiter(1, time.Minute)))
	r.GET("/x", func(c *gin.Context) { c.Status(204) })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, 204, w.Code)
	assert.Equal(t, "1", w.Header().Get("X-RateLimit-Limit"))

	w = httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/x", nil))
	assert.Equal(t, http.StatusTooManyRequests, w.Code)
	assert.Equal(t, rateLimitMessage, decodeError(t, w).Message)
}

func TestCORS(t *testing.T) {
	r := gin.New()
	r.Use(CORS(DefaultCORSConfig([]string{"http://localhost:3000"})))
	r.GET("/x", func(c *gin.Context) { c.Status(204) })

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodOptions, "/x", nil)
	req.Header.Set("Origin", "http://localhost:3000")
	r.ServeHTTP(w, req)
	assert.Equal(t, http.StatusNoContent, w.Code)
	assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	assert.Equal(t, "true", w.Header().Get("Access-Control-Allow-Credentials"))

	w = httptest.NewRecorder()
	req = httptest.NewRequest(http.MethodGet, "/x", nil)
	req.Header.Set("Origin", "http://evil.example")
	r.ServeHTTP(w, req)
	assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}

func TestPagination(t *testing.T) {
	p := NewPagination(2, 10, 25)
	assert.Equal(t, 3, p.Pages)
	assert.Equal(t, 0, NewPagination(1, 10, 0).Pages)
}

func TestSetupValidator_UsesJSONNames(t *testing.T) {
	SetupValidator()
	r := newEngine(false, nil)
	r.POST("/signup", func(c *gin.Context) {
		var in struct {
			Username string `json:"username" binding:"required"`
		}
		if err := c.ShouldBindJSON(&in); err != nil {
			Fail(c, err)
			return
		}
		OK(c, "ok", nil)
	})

	w := httptest.NewRecorder()
	req := httptest.NewRequest(http.MethodPost, "/signup", strings.NewReader(`{}`))
	req.Header.Set("Content-Type", "application/json")
	r.ServeHTTP(w, req)

	require.Equal(t, http.StatusBadRequest, w.Code)
	body := decodeError(t, w)
	require.Len(t, body.Errors, 1)
	assert.Equal(t, "username", body.Errors[0].Field)
	assert.Equal(t, "username is required", body.Message)
}
