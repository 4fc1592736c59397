package handler

import (
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/dao/query"
	"github.com/monkeybits/edilcloud-back-sub000/internal/payload"
	"github.com/monkeybits/edilcloud-back-sub000/internal/resputil"
	"github.com/monkeybits/edilcloud-back-sub000/internal/util"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/cache"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/logutils"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewUserMgr)
}

type UserMgr struct {
	name  string
	db    *gorm.DB
	cache *cache.Cache
}

func NewUserMgr(conf *RegisterConfig) Manager {
	return &UserMgr{
		name:  "users",
		db:    conf.DB,
		cache: conf.Cache,
	}
}

func (mgr *UserMgr) GetName() string { return mgr.name }

func (mgr *UserMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *UserMgr) RegisterProtected(g *gin.RouterGroup) {
	g.PUT("/me/password", mgr.ChangePassword)
}

func (mgr *UserMgr) RegisterAdmin(g *gin.RouterGroup) {
	g.GET("", mgr.ListUser)
	g.GET("/:id", mgr.GetUser)
	g.PUT("/:id/status", mgr.UpdateStatus)
	g.PUT("/:id/role", mgr.UpdateRole)
	g.PUT("/:id/password", mgr.ResetPassword)
	g.DELETE("/:id", mgr.DeleteUser)
}

var errSelfAdmin = errors.New("administrators cannot demote, disable or delete themselves")

type UserResp struct {
	ID         uint                                    `json:"id"`
	Username   string                                  `json:"username"`
	Email      string                                  `json:"email"`
	Role       model.PlatformRole                      `json:"role"`
	Status     model.Status                            `json:"status"`
	Attributes datatypes.JSONType[model.UserAttribute] `json:"attributes"`
	CreatedAt  time.Time                               `json:"createdAt"`
}

type UserDetailResp struct {
	UserResp
	Profiles []ProfileSummary `json:"profiles"`
}

type ProfileSummary struct {
	ID          uint         `json:"id"`
	CompanyID   uint         `json:"companyID"`
	CompanyName string       `json:"companyName"`
	Role        model.Role   `json:"role"`
	Status      model.Status `json:"status"`
	IsMain      bool         `json:"isMain"`
}

func toUserResp(u *model.User) UserResp {
	return UserResp{
		ID:         u.ID,
		Username:   u.Username,
		Email:      u.Email,
		Role:       u.Role,
		Status:     u.Status,
		Attributes: u.Attributes,
		CreatedAt:  u.CreatedAt,
	}
}

type ListUserReq struct {
	PageIndex *int          `form:"page_index" binding:"required,min=0"`
	PageSize  *int          `form:"page_size" binding:"required,min=1,max=200"`
	NameLike  string        `form:"nameLike"`
	Status    *model.Status `form:"status" binding:"omitempty,min=1,max=3"`
}

// ListUser godoc
// @Summary List users
// @Description Paged list of every account, filtered by username and status
// @Tags User
// @Produce json
// @Security Bearer
// @Param page_index query int true "page index"
// @Param page_size query int true "page size"
// @Param nameLike query string false "username contains"
// @Param status query int false "1 pending, 2 active, 3 disabled"
// @Success 200 {object} resputil.Response[payload.ListResp[UserResp]] "users"
// @Failure 400 {object} resputil.Response[any] "Request parameter error"
// @Router /v1/admin/users [get]
func (mgr *UserMgr) ListUser(c *gin.Context) {
	var req ListUserReq
	if err := c.ShouldBindQuery(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	tx := mgr.db.WithContext(c).Model(&model.User{}).Scopes(query.NameLike("username", req.NameLike))
	if req.Status != nil {
		tx = tx.Where("status = ?", *req.Status)
	}
	var count int64
	if err := tx.Count(&count).Error; err != nil {
		respondError(c, err)
		return
	}
	var users []model.User
	if err := tx.Scopes(query.Paginate(*req.PageIndex, *req.PageSize)).Order("id").Find(&users).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, payload.ListResp[UserResp]{
		Rows:  lo.Map(users, func(u model.User, _ int) UserResp { return toUserResp(&u) }),
		Count: count,
	})
}

func (mgr *UserMgr) load(c *gin.Context) (*model.User, bool) {
	id, ok := uintParam(c, "id")
	if !ok {
		return nil, false
	}
	var user model.User
	if err := mgr.db.WithContext(c).First(&user, id).Error; err != nil {
		respondError(c, err)
		return nil, false
	}
	return &user, true
}

// GetUser godoc
// @Summary Get a user with its profiles
// @Tags User
// @Produce json
// @Security Bearer
// @Param id path int true "user id"
// @Success 200 {object} resputil.Response[UserDetailResp] "user"
// @Failure 404 {object} resputil.Response[any] "User not found"
// @Router /v1/admin/users/{id} [get]
func (mgr *UserMgr) GetUser(c *gin.Context) {
	user, ok := mgr.load(c)
	if !ok {
		return
	}
	var profiles []model.Profile
	if err := mgr.db.WithContext(c).Preload("Company").Where("user_id = ?", user.ID).
		Order("id").Find(&profiles).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, UserDetailResp{
		UserResp: toUserResp(user),
		Profiles: lo.Map(profiles, func(p model.Profile, _ int) ProfileSummary {
			return ProfileSummary{
				ID:          p.ID,
				CompanyID:   p.CompanyID,
				CompanyName: p.Company.Name,
				Role:        p.Role,
				Status:      p.Status,
				IsMain:      p.IsMain,
			}
		}),
	})
}

// isSelf rejects admin operations targeting the caller's own account.
func isSelf(c *gin.Context, userID uint) bool {
	if util.GetToken(c).UserID != userID {
		return false
	}
	respondError(c, badRequest(errSelfAdmin))
	return true
}

type UpdateStatusReq struct {
	Status model.Status `json:"status" binding:"required,min=1,max=3"`
}

// UpdateStatus godoc
// @Summary Activate or disable a user
// @Description A disabled user cannot write with its existing tokens and cannot login
// @Tags User
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "user id"
// @Param data body UpdateStatusReq true "new status"
// @Success 200 {object} resputil.Response[UserResp] "user"
// @Router /v1/admin/users/{id}/status [put]
func (mgr *UserMgr) UpdateStatus(c *gin.Context) {
	user, ok := mgr.load(c)
	if !ok {
		return
	}
	var req UpdateStatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	if isSelf(c, user.ID) {
		return
	}
	if err := mgr.db.WithContext(c).Model(user).Update("status", req.Status).Error; err != nil {
		respondError(c, err)
		return
	}
	logutils.Log.Infof("user %s status set to %d", user.Username, req.Status)
	resputil.Success(c, toUserResp(user))
}

type UpdateRoleReq struct {
	Role model.PlatformRole `json:"role" binding:"required,min=1,max=2"`
}

// UpdateRole godoc
// @Summary Change the platform role of a user
// @Tags User
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "user id"
// @Param data body UpdateRoleReq true "1 user, 2 admin"
// @Success 200 {object} resputil.Response[UserResp] "user"
// @Router /v1/admin/users/{id}/role [put]
func (mgr *UserMgr) UpdateRole(c *gin.Context) {
	user, ok := mgr.load(c)
	if !ok {
		return
	}
	var req UpdateRoleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	if isSelf(c, user.ID) {
		return
	}
	if err := mgr.db.WithContext(c).Model(user).Update("role", req.Role).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, toUserResp(user))
}

type PasswordReq struct {
	Password string `json:"password" binding:"required,min=8"`
}

func hashPassword(password string) (string, error) {
	hashed, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return "", err
	}
	return string(hashed), nil
}

// ResetPassword godoc
// @Summary Set a new password for a user
// @Tags User
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "user id"
// @Param data body PasswordReq true "new password"
// @Success 200 {object} resputil.Response[string] "Success"
// @Router /v1/admin/users/{id}/password [put]
func (mgr *UserMgr) ResetPassword(c *gin.Context) {
	user, ok := mgr.load(c)
	if !ok {
		return
	}
	var req PasswordReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	hashed, err := hashPassword(req.Password)
	if err == nil {
		err = mgr.db.WithContext(c).Model(user).Update("password", hashed).Error
	}
	if err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, "")
}

type ChangePasswordReq struct {
	OldPassword string `json:"oldPassword" binding:"required"`
	NewPassword string `json:"newPassword" binding:"required,min=8,nefield=OldPassword"`
}

// ChangePassword godoc
// @Summary Change the password of the logged user
// @Tags User
// @Accept json
// @Produce json
// @Security Bearer
// @Param data body ChangePasswordReq true "old and new password"
// @Success 200 {object} resputil.Response[string] "Success"
// @Failure 401 {object} resputil.Response[any] "Old password does not match"
// @Router /v1/users/me/password [put]
func (mgr *UserMgr) ChangePassword(c *gin.Context) {
	var req ChangePasswordReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	var user model.User
	if err := mgr.db.WithContext(c).First(&user, util.GetToken(c).UserID).Error; err != nil {
		respondError(c, err)
		return
	}
	if user.Password == nil ||
		bcrypt.CompareHashAndPassword([]byte(*user.Password), []byte(req.OldPassword)) != nil {
		resputil.HTTPError(c, http.StatusUnauthorized, errWrongPassword.Error(), resputil.InvalidCredentials)
		return
	}
	hashed, err := hashPassword(req.NewPassword)
	if err == nil {
		err = mgr.db.WithContext(c).Model(&user).Update("password", hashed).Error
	}
	if err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, "")
}

// DeleteUser godoc
// @Summary Delete a user
// @Description Soft-deletes the account and disables its profiles; authored content keeps its author
// @Tags User
// @Produce json
// @Security Bearer
// @Param id path int true "user id"
// @Success 200 {object} resputil.Response[string] "Success"
// @Router /v1/admin/users/{id} [delete]
func (mgr *UserMgr) DeleteUser(c *gin.Context) {
	user, ok := mgr.load(c)
	if !ok {
		return
	}
	if isSelf(c, user.ID) {
		return
	}
	var profileIDs []uint
	err := mgr.db.WithContext(c).Transaction(func(tx *gorm.DB) error {
		if err := tx.Model(&model.Profile{}).Where("user_id = ?", user.ID).
			Pluck("id", &profileIDs).Error; err != nil {
			return err
		}
		if err := tx.Model(&model.Profile{}).Where("user_id = ?", user.ID).
			Update("status", model.StatusDisabled).Error; err != nil {
			return err
		}
		return tx.Delete(user).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}
	mgr.cache.Delete(c, lo.Map(profileIDs, func(id uint, _ int) string { return cache.ProfileKey(id) })...)
	logutils.Log.Infof("user %s deleted", user.Username)
	resputil.Success(c, "")
}
