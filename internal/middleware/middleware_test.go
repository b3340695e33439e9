package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/require"

	"github.com/xxxsen/mfolio/internal/pkg/jwt"
)

func newAdminRouter(secret []byte) *gin.Engine {
	gin.SetMode(gin.TestMode)
	r := gin.New()
	r.Use(CORS([]string{"https://portfolio.example/"}))
	r.POST("/admin", AdminAuth(secret), func(c *gin.Context) {
		c.String(http.StatusOK, c.GetString(ContextSubjectKey))
	})
	return r
}

func TestAdminAuth(t *testing.T) {
	secret := []byte("admin-secret")
	r := newAdminRouter(secret)

	adminToken, err := jwt.GenerateToken("ops", jwt.RoleAdmin, secret, time.Hour)
	require.NoError(t, err)
	viewerToken, err := jwt.GenerateToken("visitor", "viewer", secret, time.Hour)
	require.NoError(t, err)
	foreignToken, err := jwt.GenerateToken("ops", jwt.RoleAdmin, []byte("other"), time.Hour)
	require.NoError(t, err)

	tests := []struct {
		name   string
		header string
		passed bool
	}{
		{name: "admin", header: "Bearer " + adminToken, passed: true},
		{name: "missing header"},
		{name: "wrong scheme", header: "Basic " + adminToken},
		{name: "wrong role", header: "Bearer " + viewerToken},
		{name: "wrong secret", header: "Bearer " + foreignToken},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodPost, "/admin", nil)
			if tt.header != "" {
				req.Header.Set("Authorization", tt.header)
			}
			w := httptest.NewRecorder()
			r.ServeHTTP(w, req)
			if tt.passed {
				require.Equal(t, "ops", w.Body.String())
				return
			}
			require.NotEqual(t, "ops", w.Body.String())
			require.Contains(t, w.Body.String(), "code")
		})
	}
}

func TestCORS(t *testing.T) {
	r := newAdminRouter(nil)

	req := httptest.NewRequest(http.MethodOptions, "/admin", nil)
	req.Header.Set("Origin", "https://portfolio.example")
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Equal(t, http.StatusNoContent, w.Code)
	require.Equal(t, "https://portfolio.example", w.Header().Get("Access-Control-Allow-Origin"))

	req = httptest.NewRequest(http.MethodOptions, "/admin", nil)
	req.Header.Set("Origin", "https://evil.example")
	w = httptest.NewRecorder()
	r.ServeHTTP(w, req)
	require.Empty(t, w.Header().Get("Access-Control-Allow-Origin"))
}
