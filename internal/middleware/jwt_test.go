package middleware

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/testutil"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/internal/resputil"
	"github.com/monkeybits/edilcloud-back-sub000/internal/util"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/config"
)

func newEngine() *gin.Engine {
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{}
	cfg.Auth.AccessTokenSecret = "test-secret"
	cfg.Auth.AccessTokenExpiryHour = 1
	cfg.Auth.RefreshTokenExpiryHour = 2
	config.SetConfig(cfg)

	r := gin.New()
	r.Use(Metrics())
	protected := r.Group("/api/v1", AuthProtected())
	protected.GET("/me", func(c *gin.Context) {
		resputil.Success(c, util.GetToken(c))
	})
	admin := r.Group("/api/v1/admin", AuthProtected(), AuthAdmin())
	admin.GET("/users", func(c *gin.Context) { resputil.Success(c, "ok") })
	return r
}

func decode(t *testing.T, w *httptest.ResponseRecorder) resputil.Response[json.RawMessage] {
	var resp resputil.Response[json.RawMessage]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func do(r *gin.Engine, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func TestAuthProtected(t *testing.T) {
	r := newEngine()
	access, _, err := util.GetTokenMgr().CreateTokens(&util.JWTMessage{
		UserID: 1, Username: "mario", RolePlatform: model.PlatformUser,
		Profile: &util.ProfileClaim{ID: 5, CompanyID: 2, Role: model.RoleLevel1},
	})
	require.NoError(t, err)

	t.Run("missing header", func(t *testing.T) {
		w := do(r, "/api/v1/me", "")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, resputil.TokenInvalid, decode(t, w).Code)
	})

	t.Run("malformed header", func(t *testing.T) {
		w := do(r, "/api/v1/me", "Token abc")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		w := do(r, "/api/v1/me", "Bearer abc.def.ghi")
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, resputil.TokenInvalid, decode(t, w).Code)
	})

	t.Run("expired token", func(t *testing.T) {
		expired, _, err := util.NewTokenManager("test-secret", -1, -1).CreateTokens(&util.JWTMessage{UserID: 1})
		require.NoError(t, err)
		w := do(r, "/api/v1/me", "Bearer "+expired)
		assert.Equal(t, http.StatusUnauthorized, w.Code)
		assert.Equal(t, resputil.TokenExpired, decode(t, w).Code)
	})

	t.Run("valid token on GET exposes the acting profile", func(t *testing.T) {
		w := do(r, "/api/v1/me", "Bearer "+access)
		require.Equal(t, http.StatusOK, w.Code)
		var msg util.JWTMessage
		require.NoError(t, json.Unmarshal(decode(t, w).Data, &msg))
		assert.Equal(t, uint(5), msg.Profile.ID)
		assert.Equal(t, uint(2), msg.Profile.CompanyID)
	})

	t.Run("token in query for GET", func(t *testing.T) {
		w := do(r, "/api/v1/me?token="+access, "")
		assert.Equal(t, http.StatusOK, w.Code)
	})

	t.Run("non admin is rejected from admin routes", func(t *testing.T) {
		w := do(r, "/api/v1/admin/users", "Bearer "+access)
		assert.Equal(t, http.StatusForbidden, w.Code)
		assert.Equal(t, resputil.UserNotAllowed, decode(t, w).Code)
	})

	t.Run("requests are counted", func(t *testing.T) {
		before := testutil.ToFloat64(RequestsTotal.WithLabelValues("/api/v1/me", http.MethodGet, "200"))
		do(r, "/api/v1/me", "Bearer "+access)
		after := testutil.ToFloat64(RequestsTotal.WithLabelValues("/api/v1/me", http.MethodGet, "200"))
		assert.Equal(t, before+1, after)
	})
}
