package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"examcast/internal/core/services"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newGuardedRouter(t *testing.T, authService services.AuthService) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/exams", AuthMiddleware(authService), RequireRole("examiner"), func(c *gin.Context) {
		c.JSON(http.StatusCreated, gin.H{"name": c.GetString("name")})
	})
	return router
}

func doAuthed(router *gin.Engine, token string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/exams", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddlewareRejectsMissingAndMalformedHeaders(t *testing.T) {
	authService := services.NewAuthService("test-secret", time.Minute)
	router := newGuardedRouter(t, authService)

	w := doAuthed(router, "")
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	req := httptest.NewRequest(http.MethodPost, "/exams", nil)
	req.Header.Set("Authorization", "Token abc")
	w = httptest.NewRecorder()
	router.ServeHTTP(w, req)
	assert.Equal(t, http.StatusUnauthorized, w.Code)

	w = doAuthed(router, "not-a-jwt")
	assert.Equal(t, http.StatusUnauthorized, w.Code)
}

func TestRequireRoleGatesByClaimRole(t *testing.T) {
	authService := services.NewAuthService("test-secret", time.Minute)
	router := newGuardedRouter(t, authService)

	examiner, err := authService.GenerateToken("alice", "examiner")
	require.NoError(t, err)
	w := doAuthed(router, examiner)
	assert.Equal(t, http.StatusCreated, w.Code)
	assert.Contains(t, w.Body.String(), "alice")

	candidate, err := authService.GenerateToken("bob", "candidate")
	require.NoError(t, err)
	w = doAuthed(router, candidate)
	assert.Equal(t, http.StatusForbidden, w.Code)
}
