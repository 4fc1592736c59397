package util

import (
	"errors"
	"sync"
	"time"

	jwt "github.com/golang-jwt/jwt/v5"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/config"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/logutils"
)

const (
	tokenTypeAccess  = "access"
	tokenTypeRefresh = "refresh"
)

var ErrWrongTokenType = errors.New("wrong token type")

type (
	// ProfileClaim is the acting company profile carried in the "extra.profile" claim.
	ProfileClaim struct {
		ID        uint       `json:"id"`
		CompanyID uint       `json:"company_id"`
		Role      model.Role `json:"role"`
	}

	Extra struct {
		Profile *ProfileClaim `json:"profile,omitempty"`
	}

	JWTClaims struct {
		UserID       uint               `json:"ui"`
		Username     string             `json:"un"`
		RolePlatform model.PlatformRole `json:"rp"`
		Type         string             `json:"tt"`
		Extra        Extra              `json:"extra"`
		jwt.RegisteredClaims
	}

	JWTMessage struct {
		UserID       uint               `json:"userID"`       // User ID
		Username     string             `json:"username"`     // Username
		RolePlatform model.PlatformRole `json:"rolePlatform"` // Role in platform (user, admin)
		Profile      *ProfileClaim      `json:"profile"`      // Acting profile, nil before one is selected
	}
)

// HasProfile reports whether an acting profile was selected.
func (m *JWTMessage) HasProfile() bool {
	return m.Profile != nil && m.Profile.ID != 0
}

type TokenManager struct {
	secretKey       string
	accessTokenTTL  int
	refreshTokenTTL int
}

var (
	once     sync.Once
	tokenMgr *TokenManager
)

func GetTokenMgr() *TokenManager {
	once.Do(func() {
		tokenConfig := config.NewTokenConf()
		tokenMgr = NewTokenManager(tokenConfig.AccessTokenSecret,
			tokenConfig.AccessTokenExpiryHour,
			tokenConfig.RefreshTokenExpiryHour,
		)
	})
	return tokenMgr
}

func NewTokenManager(secretKey string, accessTokenTTL, refreshTokenTTL int) *TokenManager {
	return &TokenManager{
		secretKey,
		accessTokenTTL,
		refreshTokenTTL,
	}
}

func (tm *TokenManager) createToken(msg *JWTMessage, tokenType string, ttl int) (string, error) {
	now := time.Now()
	claims := &JWTClaims{
		UserID:       msg.UserID,
		Username:     msg.Username,
		RolePlatform: msg.RolePlatform,
		Type:         tokenType,
		Extra:        Extra{Profile: msg.Profile},
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour * time.Duration(ttl))),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(tm.secretKey))
}

// CreateTokens creates a new access token and a new refresh token
func (tm *TokenManager) CreateTokens(msg *JWTMessage) (
	accessToken string, refreshToken string, err error) {
	accessToken, err = tm.createToken(msg, tokenTypeAccess, tm.accessTokenTTL)
	if err != nil {
		logutils.Log.Error(err)
		return "", "", err
	}
	refreshToken, err = tm.createToken(msg, tokenTypeRefresh, tm.refreshTokenTTL)
	if err != nil {
		logutils.Log.Error(err)
		return "", "", err
	}
	return accessToken, refreshToken, nil
}

func (tm *TokenManager) parse(requestToken, tokenType string) (JWTMessage, error) {
	claims := JWTClaims{}
	_, err := jwt.ParseWithClaims(requestToken, &claims, func(_ *jwt.Token) (any, error) {
		return []byte(tm.secretKey), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	msg := JWTMessage{
		UserID:       claims.UserID,
		Username:     claims.Username,
		RolePlatform: claims.RolePlatform,
		Profile:      claims.Extra.Profile,
	}
	if err == nil && claims.Type != tokenType {
		err = ErrWrongTokenType
	}
	return msg, err
}

// CheckToken validates an access token.
func (tm *TokenManager) CheckToken(requestToken string) (JWTMessage, error) {
	return tm.parse(requestToken, tokenTypeAccess)
}

// CheckRefreshToken validates a refresh token.
func (tm *TokenManager) CheckRefreshToken(requestToken string) (JWTMessage, error) {
	return tm.parse(requestToken, tokenTypeRefresh)
}
