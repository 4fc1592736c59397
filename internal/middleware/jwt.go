package middleware

import (
	"errors"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	jwt "github.com/golang-jwt/jwt/v5"
	"gorm.io/gorm"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/internal/resputil"
	"github.com/monkeybits/edilcloud-back-sub000/internal/util"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/cache"
)

// cachedProfile is what the middleware needs to re-validate the acting profile.
type cachedProfile struct {
	UserID    uint         `json:"userID"`
	CompanyID uint         `json:"companyID"`
	Role      model.Role   `json:"role"`
	Status    model.Status `json:"status"`
}

// bearerToken reads the Authorization header. Websocket clients cannot set headers from the
// browser, so a GET may carry the token in the "token" query parameter.
func bearerToken(c *gin.Context) (string, bool) {
	authHeader := c.Request.Header.Get("Authorization")
	if authHeader != "" {
		t := strings.Split(authHeader, " ")
		if len(t) < 2 || t[0] != "Bearer" {
			return "", false
		}
		return t[1], true
	}
	if c.Request.Method == http.MethodGet {
		if q := c.Query("token"); q != "" {
			return q, true
		}
	}
	return "", false
}

func AuthProtected() gin.HandlerFunc {
	return func(c *gin.Context) {
		authToken, ok := bearerToken(c)
		if !ok {
			resputil.HTTPError(c, http.StatusUnauthorized, "Invalid token", resputil.TokenInvalid)
			c.Abort()
			return
		}

		token, err := util.GetTokenMgr().CheckToken(authToken)
		if err != nil {
			code := resputil.TokenInvalid
			if errors.Is(err, jwt.ErrTokenExpired) {
				code = resputil.TokenExpired
			}
			resputil.HTTPError(c, http.StatusUnauthorized, err.Error(), code)
			c.Abort()
			return
		}

		// Writes are checked against the database, reads trust the token.
		if c.Request.Method != http.MethodGet {
			if httpCode, code, msg := validateToken(c, &token); code != resputil.OK {
				resputil.HTTPError(c, httpCode, msg, code)
				c.Abort()
				return
			}
		}

		util.SetJWTContext(c, token)
		c.Next()
	}
}

func validateToken(c *gin.Context, token *util.JWTMessage) (int, resputil.ErrorCode, string) {
	db := getDB()
	var user model.User
	if err := db.WithContext(c).Select("id", "role", "status").First(&user, token.UserID).Error; err != nil {
		return http.StatusUnauthorized, resputil.TokenInvalid, "User not found"
	}
	if user.Status != model.StatusActive {
		return http.StatusUnauthorized, resputil.UserNotActive, "User is not active"
	}
	if user.Role != token.RolePlatform {
		return http.StatusUnauthorized, resputil.TokenExpired, "Platform token not match"
	}
	if !token.HasProfile() {
		return http.StatusOK, resputil.OK, ""
	}

	profile, err := loadProfile(c, db, token.Profile.ID)
	if err != nil {
		return http.StatusUnauthorized, resputil.ProfileNotActive, "Profile not found"
	}
	if profile.UserID != token.UserID || profile.CompanyID != token.Profile.CompanyID {
		return http.StatusUnauthorized, resputil.ProfileNotActive, "Profile does not belong to user"
	}
	if profile.Status != model.StatusActive {
		return http.StatusUnauthorized, resputil.ProfileNotActive, "Profile is not active"
	}
	if profile.Role != token.Profile.Role {
		return http.StatusUnauthorized, resputil.TokenExpired, "Profile role not match"
	}
	return http.StatusOK, resputil.OK, ""
}

func loadProfile(c *gin.Context, db *gorm.DB, profileID uint) (*cachedProfile, error) {
	cc := cache.GetCache()
	key := cache.ProfileKey(profileID)
	var cp cachedProfile
	if err := cc.GetJSON(c, key, &cp); err == nil {
		return &cp, nil
	}

	var p model.Profile
	if err := db.WithContext(c).Select("id", "user_id", "company_id", "role", "status").
		First(&p, profileID).Error; err != nil {
		return nil, err
	}
	cp = cachedProfile{CompanyID: p.CompanyID, Role: p.Role, Status: p.Status}
	if p.UserID != nil {
		cp.UserID = *p.UserID
	}
	cc.SetJSON(c, key, cp)
	return &cp, nil
}

func AuthAdmin() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := util.GetToken(c)
		if token.RolePlatform != model.PlatformAdmin {
			resputil.HTTPError(c, http.StatusForbidden, "Not Admin", resputil.UserNotAllowed)
			c.Abort()
			return
		}
		c.Next()
	}
}
