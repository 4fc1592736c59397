package internal

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/internal/handler"
	"github.com/monkeybits/edilcloud-back-sub000/internal/resputil"
	"github.com/monkeybits/edilcloud-back-sub000/internal/util"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/config"
)

// newBackend builds the full router without backing clients; only requests that are rejected
// before touching the database may be sent to it.
func newBackend(t *testing.T) *gin.Engine {
	t.Helper()
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{}
	cfg.Auth.AccessTokenSecret = "route-test-secret"
	cfg.Auth.AccessTokenExpiryHour = 1
	cfg.Auth.RefreshTokenExpiryHour = 2
	config.SetConfig(cfg)
	return Register(&handler.RegisterConfig{})
}

func token(t *testing.T, role model.PlatformRole, profile *util.ProfileClaim) string {
	t.Helper()
	access, _, err := util.GetTokenMgr().CreateTokens(&util.JWTMessage{
		UserID: 7, Username: "giulia", RolePlatform: role, Profile: profile,
	})
	require.NoError(t, err)
	return "Bearer " + access
}

func get(r *gin.Engine, path, auth string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodGet, path, http.NoBody)
	if auth != "" {
		req.Header.Set("Authorization", auth)
	}
	w := httptest.NewRecorder()
	r.ServeHTTP(w, req)
	return w
}

func codeOf(t *testing.T, w *httptest.ResponseRecorder) resputil.ErrorCode {
	t.Helper()
	var resp resputil.Response[json.RawMessage]
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp.Code
}

func TestHealthz(t *testing.T) {
	r := newBackend(t)
	w := get(r, "/api/healthz", "")
	assert.Equal(t, http.StatusOK, w.Code)
	assert.JSONEq(t, `{"message":"ok"}`, w.Body.String())
}

func TestProtectedRoutesNeedToken(t *testing.T) {
	r := newBackend(t)
	for _, path := range []string{
		"/api/v1/tasks/mine",
		"/api/v1/notifications",
		"/api/v1/talks",
		"/api/v1/ws",
		"/api/v1/admin/users",
		"/api/v1/admin/operations/cronjob",
	} {
		w := get(r, path, "")
		assert.Equal(t, http.StatusUnauthorized, w.Code, path)
		assert.Equal(t, resputil.TokenInvalid, codeOf(t, w), path)
	}
}

func TestActingProfileRequired(t *testing.T) {
	r := newBackend(t)
	auth := token(t, model.PlatformUser, nil)
	for _, path := range []string{
		"/api/v1/tasks/mine",
		"/api/v1/activities/mine",
		"/api/v1/notifications?page_index=0&page_size=10",
		"/api/v1/boms?page_index=0&page_size=10",
		"/api/v1/talks",
		"/api/v1/ws",
	} {
		w := get(r, path, auth)
		assert.Equal(t, http.StatusForbidden, w.Code, path)
		assert.Equal(t, resputil.ProfileNotActive, codeOf(t, w), path)
	}
}

func TestRequestValidation(t *testing.T) {
	r := newBackend(t)
	auth := token(t, model.PlatformUser, &util.ProfileClaim{ID: 3, CompanyID: 1, Role: model.RoleLevel1})

	cases := map[string]string{
		"invalid path id":     "/api/v1/tasks/abc",
		"zero path id":        "/api/v1/activities/0",
		"missing pagination":  "/api/v1/notifications",
		"page size too large": "/api/v1/notifications?page_index=0&page_size=1000",
	}
	for name, path := range cases {
		w := get(r, path, auth)
		assert.Equal(t, http.StatusBadRequest, w.Code, name)
		assert.Equal(t, resputil.InvalidRequest, codeOf(t, w), name)
	}

	w := get(r, "/api/offers", "")
	assert.Equal(t, http.StatusBadRequest, w.Code, "public offers need pagination")
}

func TestAdminRoutes(t *testing.T) {
	r := newBackend(t)

	w := get(r, "/api/v1/admin/users?page_index=0&page_size=10",
		token(t, model.PlatformUser, &util.ProfileClaim{ID: 3, CompanyID: 1, Role: model.RoleOwner}))
	assert.Equal(t, http.StatusForbidden, w.Code)
	assert.Equal(t, resputil.UserNotAllowed, codeOf(t, w))

	admin := token(t, model.PlatformAdmin, nil)
	w = get(r, "/api/v1/admin/users", admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = get(r, "/api/v1/admin/operations/cronjob/records?status=bogus", admin)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = get(r, "/api/v1/admin/projects?page_index=0&page_size=10&typology=mixed", admin)
	assert.Equal(t, http.StatusBadRequest, w.Code, "unknown typology")
}

func TestProjectTypologyFilter(t *testing.T) {
	r := newBackend(t)
	auth := token(t, model.PlatformUser, &util.ProfileClaim{ID: 3, CompanyID: 1, Role: model.RoleLevel1})
	w := get(r, "/api/v1/projects?page_index=0&page_size=10&typology=bogus", auth)
	assert.Equal(t, http.StatusBadRequest, w.Code)
	assert.Equal(t, resputil.InvalidRequest, codeOf(t, w))
}

func TestLocalOrigin(t *testing.T) {
	for origin, want := range map[string]bool{
		"http://localhost:3000":    true,
		"https://localhost":        true,
		"http://127.0.0.1:8080":    true,
		"http://[::1]:5173":        true,
		"https://app.edilcloud.io": false,
		"http://localhost.evil.io": false,
		"file://localhost":         false,
		"null":                     false,
	} {
		assert.Equal(t, want, localOrigin(origin), origin)
	}
}

func TestUnknownRoute(t *testing.T) {
	r := newBackend(t)
	w := get(r, "/api/v1/unknown", token(t, model.PlatformUser, nil))
	assert.Equal(t, http.StatusNotFound, w.Code)
}
