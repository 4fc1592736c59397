package handler

import (
	"errors"
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	ldap "github.com/go-ldap/ldap/v3"
	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/internal/resputil"
	"github.com/monkeybits/edilcloud-back-sub000/internal/util"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/cache"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/config"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/logutils"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewAuthMgr)
}

type AuthMgr struct {
	name     string
	db       *gorm.DB
	tokenMgr *util.TokenManager
	cache    *cache.Cache
}

func NewAuthMgr(conf *RegisterConfig) Manager {
	return &AuthMgr{
		name:     "auth",
		db:       conf.DB,
		tokenMgr: conf.TokenMgr,
		cache:    conf.Cache,
	}
}

func (mgr *AuthMgr) GetName() string { return mgr.name }

func (mgr *AuthMgr) RegisterPublic(g *gin.RouterGroup) {
	g.POST("/register", mgr.Register)
	g.POST("/login", mgr.Login)
	g.POST("/refresh", mgr.RefreshToken)
}

func (mgr *AuthMgr) RegisterProtected(g *gin.RouterGroup) {
	g.POST("/switch", mgr.SwitchProfile)
	g.GET("/me", mgr.Me)
}

func (mgr *AuthMgr) RegisterAdmin(_ *gin.RouterGroup) {}

const (
	AuthMethodNormal = "normal"
	AuthMethodLDAP   = "ldap"
)

var (
	errWrongPassword = errors.New("wrong username or password")
	errNoPassword    = errors.New("user does not have a password")
)

type (
	RegisterCompanyReq struct {
		Name      string  `json:"name" binding:"required,max=128"`
		VATNumber *string `json:"vatNumber" binding:"omitempty,vat"`
	}

	RegisterReq struct {
		Username  string              `json:"username" binding:"required,min=3,max=64"`
		Email     string              `json:"email" binding:"required,email"`
		Password  string              `json:"password" binding:"required,min=8"`
		FirstName string              `json:"firstName" binding:"required"`
		LastName  string              `json:"lastName" binding:"required"`
		Language  string              `json:"language" binding:"omitempty,len=2"`
		Company   *RegisterCompanyReq `json:"company"`
	}

	LoginReq struct {
		Username   string `json:"username" binding:"required"` // username or email
		Password   string `json:"password" binding:"required"`
		AuthMethod string `json:"auth" binding:"required,oneof=normal ldap"`
	}

	LoginResp struct {
		AccessToken  string      `json:"accessToken"`
		RefreshToken string      `json:"refreshToken"`
		Context      UserContext `json:"context"`
	}

	UserContext struct {
		RolePlatform model.PlatformRole `json:"rolePlatform"`
		Profile      *util.ProfileClaim `json:"profile"` // Acting profile, nil when the user has none
	}
)

// Register godoc
// @Summary Register a new user
// @Description Create a user account and, optionally, a first company owned by the user
// @Tags Auth
// @Accept json
// @Produce json
// @Param data body RegisterReq true "user and company"
// @Success 200 {object} resputil.Response[LoginResp] "tokens of the new user"
// @Failure 400 {object} resputil.Response[any] "Request parameter error"
// @Failure 409 {object} resputil.Response[any] "Username or email already taken"
// @Router /auth/register [post]
func (mgr *AuthMgr) Register(c *gin.Context) {
	var req RegisterReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(req.Password), bcrypt.DefaultCost)
	if err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}
	password := string(hash)
	language := lo.Ternary(req.Language != "", req.Language, "it")

	user := model.User{
		Username: req.Username,
		Email:    strings.ToLower(req.Email),
		Password: &password,
		Role:     model.PlatformUser,
		Status:   model.StatusActive,
		Attributes: datatypes.NewJSONType(model.UserAttribute{
			FirstName: req.FirstName,
			LastName:  req.LastName,
			Language:  language,
		}),
	}

	var owner *model.Profile
	err = mgr.db.WithContext(c).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		// pending invitations sent to this address become the user's profiles
		if err := tx.Model(&model.Profile{}).
			Where("user_id IS NULL AND email = ?", user.Email).
			Update("user_id", user.ID).Error; err != nil {
			return err
		}
		if req.Company == nil {
			return nil
		}
		company := model.Company{
			Name:      req.Company.Name,
			VATNumber: req.Company.VATNumber,
			Email:     &user.Email,
			Status:    model.StatusActive,
			CreatorID: user.ID,
		}
		var err error
		owner, err = createCompanyWithOwner(tx, &company, &user, true)
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}
	logutils.Log.Infof("user %s registered", user.Username)

	mgr.issueTokens(c, &user, owner)
}

// Login godoc
// @Summary Login
// @Description Check the credentials and issue tokens acting as the main profile of the user
// @Tags Auth
// @Accept json
// @Produce json
// @Param data body LoginReq true "credentials"
// @Success 200 {object} resputil.Response[LoginResp] "tokens"
// @Failure 400 {object} resputil.Response[any] "Request parameter error"
// @Failure 401 {object} resputil.Response[any] "Invalid credentials"
// @Router /auth/login [post]
func (mgr *AuthMgr) Login(c *gin.Context) {
	var req LoginReq
	if err := c.ShouldBind(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	l := logutils.Log.WithFields(logutils.Fields{
		"username": req.Username,
		"auth":     req.AuthMethod,
	})

	var user *model.User
	var err error
	switch req.AuthMethod {
	case AuthMethodLDAP:
		if err = mgr.ldapAuth(req.Username, req.Password); err == nil {
			user, err = mgr.findOrCreateDirectoryUser(c, req.Username)
		}
	default:
		user, err = mgr.normalAuth(c, req.Username, req.Password)
	}
	if err != nil {
		l.Error("invalid credentials: ", err)
		resputil.HTTPError(c, http.StatusUnauthorized, "Invalid credentials", resputil.InvalidCredentials)
		return
	}
	if user.Status != model.StatusActive {
		l.Error("user is not active")
		resputil.HTTPError(c, http.StatusUnauthorized, "User is not active", resputil.UserNotActive)
		return
	}

	profile, err := mgr.defaultProfile(c, user.ID)
	if err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}
	mgr.issueTokens(c, user, profile)
}

func (mgr *AuthMgr) issueTokens(c *gin.Context, user *model.User, profile *model.Profile) {
	msg := util.JWTMessage{
		UserID:       user.ID,
		Username:     user.Username,
		RolePlatform: user.Role,
		Profile:      claimOf(profile),
	}
	accessToken, refreshToken, err := mgr.tokenMgr.CreateTokens(&msg)
	if err != nil {
		resputil.HTTPError(c, http.StatusInternalServerError, err.Error(), resputil.NotSpecified)
		return
	}
	resputil.Success(c, LoginResp{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
		Context: UserContext{
			RolePlatform: user.Role,
			Profile:      msg.Profile,
		},
	})
}

func claimOf(p *model.Profile) *util.ProfileClaim {
	if p == nil {
		return nil
	}
	return &util.ProfileClaim{ID: p.ID, CompanyID: p.CompanyID, Role: p.Role}
}

// defaultProfile picks the main active profile of a user, then the oldest active one.
func (mgr *AuthMgr) defaultProfile(c *gin.Context, userID uint) (*model.Profile, error) {
	var p model.Profile
	err := mgr.db.WithContext(c).
		Where("user_id = ? AND status = ?", userID, model.StatusActive).
		Order("is_main DESC, id ASC").
		Take(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (mgr *AuthMgr) normalAuth(c *gin.Context, username, password string) (*model.User, error) {
	var user model.User
	err := mgr.db.WithContext(c).
		Where("username = ? OR email = ?", username, strings.ToLower(username)).
		Take(&user).Error
	if err != nil {
		return nil, fmt.Errorf("user not found")
	}
	if user.Password == nil {
		return nil, errNoPassword
	}
	if bcrypt.CompareHashAndPassword([]byte(*user.Password), []byte(password)) != nil {
		return nil, errWrongPassword
	}
	return &user, nil
}

func (mgr *AuthMgr) ldapAuth(username, password string) error {
	authConfig := config.GetConfig().LDAP
	if !authConfig.Enable {
		return fmt.Errorf("ldap login is disabled")
	}
	l, err := ldap.DialURL(authConfig.Address)
	if err != nil {
		return err
	}
	defer l.Close()

	if err = l.Bind(authConfig.UserName, authConfig.Password); err != nil {
		return err
	}

	searchRequest := ldap.NewSearchRequest(
		authConfig.SearchDN,
		ldap.ScopeWholeSubtree, ldap.NeverDerefAliases, 0, 0, false,
		fmt.Sprintf("(sAMAccountName=%s)", ldap.EscapeFilter(username)),
		[]string{"dn"},
		nil,
	)
	searchResult, err := l.Search(searchRequest)
	if err != nil {
		return err
	}
	if len(searchResult.Entries) != 1 {
		return fmt.Errorf("user not found or too many entries returned")
	}

	return l.Bind(searchResult.Entries[0].DN, password)
}

// findOrCreateDirectoryUser provisions users that exist in the directory but not in the database.
func (mgr *AuthMgr) findOrCreateDirectoryUser(c *gin.Context, username string) (*model.User, error) {
	var user model.User
	err := mgr.db.WithContext(c).Where("username = ?", username).Take(&user).Error
	if err == nil {
		return &user, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, err
	}
	user = model.User{
		Username: username,
		Email:    username + "@directory.local",
		Role:     model.PlatformUser,
		Status:   model.StatusActive,
		Attributes: datatypes.NewJSONType(model.UserAttribute{
			FirstName: username,
			Language:  "it",
		}),
	}
	if err := mgr.db.WithContext(c).Create(&user).Error; err != nil {
		return nil, err
	}
	logutils.Log.Infof("directory user %s provisioned", username)
	return &user, nil
}

type (
	RefreshReq struct {
		RefreshToken string `json:"refreshToken" binding:"required"` // without the "Bearer " prefix
	}

	RefreshResp struct {
		AccessToken  string `json:"accessToken"`
		RefreshToken string `json:"refreshToken"`
	}
)

// RefreshToken godoc
// @Summary Refresh tokens
// @Description Issue a new token pair with the claims of a valid refresh token
// @Tags Auth
// @Accept json
// @Produce json
// @Param data body RefreshReq true "refresh token"
// @Success 200 {object} resputil.Response[RefreshResp] "new tokens"
// @Failure 401 {object} resputil.Response[any] "Invalid refresh token"
// @Router /auth/refresh [post]
func (mgr *AuthMgr) RefreshToken(c *gin.Context) {
	var request RefreshReq
	if err := c.ShouldBind(&request); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	claims, err := mgr.tokenMgr.CheckRefreshToken(request.RefreshToken)
	if err != nil {
		resputil.HTTPError(c, http.StatusUnauthorized, err.Error(), resputil.TokenInvalid)
		return
	}

	accessToken, refreshToken, err := mgr.tokenMgr.CreateTokens(&claims)
	if err != nil {
		resputil.HTTPError(c, http.StatusInternalServerError, err.Error(), resputil.NotSpecified)
		return
	}
	resputil.Success(c, RefreshResp{
		AccessToken:  accessToken,
		RefreshToken: refreshToken,
	})
}

type SwitchProfileReq struct {
	ProfileID uint `json:"profileID" binding:"required"`
}

// SwitchProfile godoc
// @Summary Select the acting profile
// @Description Issue a new token pair whose extra.profile claim is one of the user's active profiles
// @Tags Auth
// @Accept json
// @Produce json
// @Security Bearer
// @Param data body SwitchProfileReq true "profile id"
// @Success 200 {object} resputil.Response[LoginResp] "new tokens"
// @Failure 400 {object} resputil.Response[any] "Request parameter error"
// @Failure 403 {object} resputil.Response[any] "Profile not active or not owned"
// @Router /v1/auth/switch [post]
func (mgr *AuthMgr) SwitchProfile(c *gin.Context) {
	var req SwitchProfileReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	token := util.GetToken(c)

	var profile model.Profile
	if err := mgr.db.WithContext(c).
		Where("id = ? AND user_id = ?", req.ProfileID, token.UserID).
		Take(&profile).Error; err != nil {
		respondError(c, err)
		return
	}
	if profile.Status != model.StatusActive {
		resputil.HTTPError(c, http.StatusForbidden, "Profile is not active", resputil.ProfileNotActive)
		return
	}
	mgr.cache.Delete(c, cache.ProfileKey(profile.ID))

	var user model.User
	if err := mgr.db.WithContext(c).First(&user, token.UserID).Error; err != nil {
		respondError(c, err)
		return
	}
	mgr.issueTokens(c, &user, &profile)
}

type MeResp struct {
	ID         uint                `json:"id"`
	Username   string              `json:"username"`
	Email      string              `json:"email"`
	Role       model.PlatformRole  `json:"role"`
	Attributes model.UserAttribute `json:"attributes"`
	Profiles   []ProfileResp       `json:"profiles"`
	Acting     *util.ProfileClaim  `json:"acting"`
}

// Me godoc
// @Summary Current user
// @Description The user of the token, all its profiles with their company and the acting profile
// @Tags Auth
// @Produce json
// @Security Bearer
// @Success 200 {object} resputil.Response[MeResp] "user context"
// @Router /v1/auth/me [get]
func (mgr *AuthMgr) Me(c *gin.Context) {
	token := util.GetToken(c)

	var user model.User
	if err := mgr.db.WithContext(c).
		Preload("Profiles", func(db *gorm.DB) *gorm.DB { return db.Order("id") }).
		Preload("Profiles.Company").
		First(&user, token.UserID).Error; err != nil {
		respondError(c, err)
		return
	}

	profiles := make([]ProfileResp, 0, len(user.Profiles))
	for i := range user.Profiles {
		profiles = append(profiles, toProfileResp(&user.Profiles[i]))
	}
	resputil.Success(c, MeResp{
		ID:         user.ID,
		Username:   user.Username,
		Email:      user.Email,
		Role:       user.Role,
		Attributes: user.Attributes.Data(),
		Profiles:   profiles,
		Acting:     token.Profile,
	})
}
