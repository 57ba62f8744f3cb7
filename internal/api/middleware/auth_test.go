package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/qs3c/vendor_portal_server/internal/model"
	"github.com/qs3c/vendor_portal_server/internal/pkg/jwt"
	"github.com/qs3c/vendor_portal_server/internal/pkg/response"
)

func init() {
	gin.SetMode(gin.TestMode)
}

const testJWTSecret = "test-secret-key-for-middleware"

func parseResponse(t *testing.T, w *httptest.ResponseRecorder) response.Response {
	var resp response.Response
	err := json.Unmarshal(w.Body.Bytes(), &resp)
	require.NoError(t, err)
	return resp
}

func authRouter(handlers ...gin.HandlerFunc) *gin.Engine {
	router := gin.New()
	router.Use(Auth(testJWTSecret))
	router.GET("/test", append(handlers, func(c *gin.Context) {
		c.JSON(http.StatusOK, response.Response{Code: response.CodeSuccess})
	})...)
	return router
}

func doAuth(router *gin.Engine, header string) *httptest.ResponseRecorder {
	req := httptest.NewRequest("GET", "/test", nil)
	if header != "" {
		req.Header.Set("Authorization", header)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAuth_Success(t *testing.T) {
	router := gin.New()
	router.Use(Auth(testJWTSecret))
	router.GET("/test", func(c *gin.Context) {
		userID, ok := GetUserID(c)
		assert.True(t, ok)
		assert.Equal(t, int64(123), userID)

		role, ok := GetRole(c)
		assert.True(t, ok)
		assert.Equal(t, model.RoleReviewer, role)
		c.JSON(http.StatusOK, gin.H{"user_id": userID})
	})

	token, err := jwt.GenerateToken(123, "reviewer", testJWTSecret, 24)
	require.NoError(t, err)

	w := doAuth(router, "Bearer "+token)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestAuth_Rejections(t *testing.T) {
	wrong, err := jwt.GenerateToken(1, "vendor", "other-secret", 24)
	require.NoError(t, err)
	expired, err := jwt.GenerateToken(1, "vendor", testJWTSecret, -1)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
	}{
		{"missing header", ""},
		{"no bearer prefix", "some-token-without-bearer"},
		{"empty bearer", "Bearer "},
		{"garbage token", "Bearer invalid.token.here"},
		{"wrong secret", "Bearer " + wrong},
		{"expired", "Bearer " + expired},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doAuth(authRouter(), tt.header)
			assert.Equal(t, http.StatusOK, w.Code)
			assert.Equal(t, response.CodeAuthFailed, parseResponse(t, w).Code)
		})
	}
}

func TestRequireRole(t *testing.T) {
	router := authRouter(RequireRole(model.RoleReviewer, model.RoleAdmin))

	tests := []struct {
		role string
		code int
	}{
		{"reviewer", response.CodeSuccess},
		{"admin", response.CodeSuccess},
		{"vendor", response.CodePermissionDenied},
	}
	for _, tt := range tests {
		t.Run(tt.role, func(t *testing.T) {
			token, err := jwt.GenerateToken(7, tt.role, testJWTSecret, 1)
			require.NoError(t, err)
			w := doAuth(router, "Bearer "+token)
			assert.Equal(t, tt.code, parseResponse(t, w).Code)
		})
	}
}

func TestGetUserID_NotSet(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())

	_, ok := GetUserID(c)
	assert.False(t, ok)
	_, ok = GetRole(c)
	assert.False(t, ok)
}

func TestGetUserID_WrongType(t *testing.T) {
	c, _ := gin.CreateTestContext(httptest.NewRecorder())
	c.Set(UserIDKey, "123")
	c.Set(RoleKey, "admin")

	_, ok := GetUserID(c)
	assert.False(t, ok)
	_, ok = GetRole(c)
	assert.False(t, ok)
}
