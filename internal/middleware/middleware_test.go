package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"

	"friendclub-backend/internal/database"
	"friendclub-backend/pkg/jwt"
)

func init() {
	gin.SetMode(gin.TestMode)
}

type MockRevocationChecker struct {
	mock.Mock
}

func (m *MockRevocationChecker) IsTokenRevoked(ctx context.Context, tokenString string) (bool, error) {
	args := m.Called(ctx, tokenString)
	return args.Bool(0), args.Error(1)
}

func newTestRouter(mw ...gin.HandlerFunc) *gin.Engine {
	r := gin.New()
	r.Use(mw...)
	r.GET("/whoami", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"user_id":  c.GetString("username"),
			"has_user": c.GetString("username") != "",
		})
	})
	return r
}

func testToken(t *testing.T, m *jwt.JWTManager) string {
	t.Helper()
	token, err := m.GenerateAccessToken(uuid.New(), "alice", "user")
	require.NoError(t, err)
	return token
}

func TestAuthMiddleware(t *testing.T) {
	manager := jwt.NewJWTManager("test-secret-key-at-least-32-bytes!!", "friendclub", time.Hour)
	token := testToken(t, manager)

	tests := []struct {
		name   string
		header string
		status int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"wrong scheme", "Basic " + token, http.StatusUnauthorized},
		{"garbage token", "Bearer nope", http.StatusUnauthorized},
		{"valid token", "Bearer " + token, http.StatusOK},
	}

	r := newTestRouter(AuthMiddleware(manager, nil))
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			assert.Equal(t, tt.status, w.Code)
		})
	}
}

func TestAuthMiddleware_Revocation(t *testing.T) {
	manager := jwt.NewJWTManager("test-secret-key-at-least-32-bytes!!", "", time.Hour)
	token := testToken(t, manager)

	t.Run("revoked token is rejected", func(t *testing.T) {
		checker := new(MockRevocationChecker)
		checker.On("IsTokenRevoked", mock.Anything, token).Return(true, nil)

		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		newTestRouter(AuthMiddleware(manager, checker)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Contains(t, w.Body.String(), "Token revoked")
		checker.AssertExpectations(t)
	})

	t.Run("checker failure fails open", func(t *testing.T) {
		checker := new(MockRevocationChecker)
		checker.On("IsTokenRevoked", mock.Anything, token).Return(false, errors.New("redis down"))

		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		w := httptest.NewRecorder()
		newTestRouter(AuthMiddleware(manager, checker)).ServeHTTP(w, req)

		assert.Equal(t, http.StatusOK, w.Code)
	})
}

func TestOptionalAuth(t *testing.T) {
	manager := jwt.NewJWTManager("test-secret-key-at-least-32-bytes!!", "", time.Hour)
	token := testToken(t, manager)
	r := newTestRouter(OptionalAuth(manager, nil))

	t.Run("anonymous passes through", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"has_user":false`)
	})

	t.Run("query token attaches principal", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami?token="+token, nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Contains(t, w.Body.String(), `"user_id":"alice"`)
	})

	t.Run("bad token is rejected", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami?token=bad", nil))
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})
}

func TestCORSMiddleware(t *testing.T) {
	r := newTestRouter(CORSMiddleware([]string{"http://localhost:3000"}))

	t.Run("allowed origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Origin", "http://localhost:3000")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Equal(t, "http://localhost:3000", w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("foreign origin", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
		req.Header.Set("Origin", "http://evil.example")
		w := httptest.NewRecorder()
		r.ServeHTTP(w, req)
		assert.Equal(t, http.StatusForbidden, w.Code)
	})

	t.Run("no origin", func(t *testing.T) {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
	})

	t.Run("wildcard", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodOptions, "/whoami", nil)
		req.Header.Set("Origin", "http://anything.example")
		w := httptest.NewRecorder()
		newTestRouter(CORSMiddleware([]string{"*"})).ServeHTTP(w, req)
		assert.Equal(t, http.StatusNoContent, w.Code)
	})
}

func TestRequestLogger_SetsRequestID(t *testing.T) {
	r := newTestRouter(RequestLogger())

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
	assert.NotEmpty(t, w.Header().Get("X-Request-ID"))

	req := httptest.NewRequest(http.MethodGet, "/whoami", nil)
	req.Header.Set("X-Request-ID", "req-123")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	assert.Equal(t, "req-123", w.Header().Get("X-Request-ID"))
}

func TestRecovery(t *testing.T) {
	r := gin.New()
	r.Use(Recovery())
	r.GET("/boom", func(c *gin.Context) { panic("boom") })

	w := httptest.NewRecorder()
	r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/boom", nil))
	assert.Equal(t, http.StatusInternalServerError, w.Code)
	assert.Contains(t, w.Body.String(), "INTERNAL_ERROR")
}

func TestRateLimiter_FailsOpenWithoutRedis(t *testing.T) {
	client := database.NewRedisClientFrom(redis.NewClient(&redis.Options{
		Addr:        "127.0.0.1:1",
		DialTimeout: 50 * time.Millisecond,
		MaxRetries:  -1,
	}))
	defer client.Close()

	rl := NewRateLimiter(client, 1, time.Minute)
	r := newTestRouter(rl.Middleware())

	for i := 0; i < 3; i++ {
		w := httptest.NewRecorder()
		r.ServeHTTP(w, httptest.NewRequest(http.MethodGet, "/whoami", nil))
		assert.Equal(t, http.StatusOK, w.Code)
		assert.Empty(t, w.Header().Get("X-RateLimit-Limit"))
	}
}

func TestRedisRevocationChecker_RejectsGarbage(t *testing.T) {
	client := database.NewRedisClientFrom(redis.NewClient(&redis.Options{Addr: "127.0.0.1:1"}))
	defer client.Close()

	_, err := NewRedisRevocationChecker(client).IsTokenRevoked(context.Background(), "not-a-token")
	assert.Error(t, err)
}
