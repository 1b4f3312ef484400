package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func authRouter(am *AuthMiddleware) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	group := router.Group("/users/:user_id", am.RequireAuth(), RequireOwner("user_id"))
	group.GET("/summary", func(c *gin.Context) {
		userID, _ := AuthenticatedUserID(c)
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})
	return router
}

func get(router http.Handler, path, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuthMiddleware_RequireAuth(t *testing.T) {
	am := NewAuthMiddleware(testSecret)
	router := authRouter(am)

	token, err := am.GenerateToken("u1", time.Hour)
	require.NoError(t, err)

	w := get(router, "/users/u1/summary", "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"user_id":"u1"}`, w.Body.String())

	// scheme is case-insensitive
	w = get(router, "/users/u1/summary", "bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuthMiddleware_Rejects(t *testing.T) {
	am := NewAuthMiddleware(testSecret)
	router := authRouter(am)

	expired, err := am.GenerateToken("u1", -time.Minute)
	require.NoError(t, err)
	foreign, err := NewAuthMiddleware("other-secret").GenerateToken("u1", time.Hour)
	require.NoError(t, err)
	own, err := am.GenerateToken("u1", time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		path   string
		header string
		code   int
		body   string
	}{
		{"missing header", "/users/u1/summary", "", http.StatusUnauthorized, "Authorization header required"},
		{"wrong scheme", "/users/u1/summary", "Basic abc", http.StatusUnauthorized, "Invalid authorization header format"},
		{"empty token", "/users/u1/summary", "Bearer ", http.StatusUnauthorized, "Invalid authorization header format"},
		{"expired", "/users/u1/summary", "Bearer " + expired, http.StatusUnauthorized, "Token expired"},
		{"wrong secret", "/users/u1/summary", "Bearer " + foreign, http.StatusUnauthorized, "Invalid token"},
		{"other user", "/users/u2/summary", "Bearer " + own, http.StatusForbidden, "not allowed"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := get(router, tt.path, tt.header)
			assert.Equal(t, tt.code, w.Code)
			assert.Contains(t, w.Body.String(), tt.body)
		})
	}
}

func TestAuthMiddleware_ValidateToken(t *testing.T) {
	am := NewAuthMiddleware(testSecret)

	// subject is accepted when user_id is absent
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{
		Subject:   "u9",
		ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
	})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	claims, err := am.ValidateToken(signed)
	require.NoError(t, err)
	assert.Equal(t, "u9", claims.UserID)

	// no user at all
	token = jwt.NewWithClaims(jwt.SigningMethodHS256, jwt.RegisteredClaims{})
	signed, err = token.SignedString([]byte(testSecret))
	require.NoError(t, err)
	_, err = am.ValidateToken(signed)
	assert.Error(t, err)

	// non-HMAC algorithm
	token = jwt.NewWithClaims(jwt.SigningMethodNone, jwt.RegisteredClaims{Subject: "u1"})
	signed, err = token.SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = am.ValidateToken(signed)
	assert.Error(t, err)
}

func TestCanAccessUser(t *testing.T) {
	gin.SetMode(gin.TestMode)

	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	assert.True(t, CanAccessUser(c, "anyone"))

	c.Set(contextUserIDKey, "u1")
	assert.True(t, CanAccessUser(c, "u1"))
	assert.False(t, CanAccessUser(c, "u2"))

	c.Set(contextUserIDKey, "")
	assert.False(t, CanAccessUser(c, ""))
}
