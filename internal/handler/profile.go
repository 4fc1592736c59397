package handler

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/internal/resputil"
	"github.com/monkeybits/edilcloud-back-sub000/internal/util"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/alert"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/cache"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/logutils"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/notify"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/permission"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewProfileMgr)
}

type ProfileMgr struct {
	name     string
	db       *gorm.DB
	cache    *cache.Cache
	alert    alert.AlertInterface
	notifier notify.Notifier
}

func NewProfileMgr(conf *RegisterConfig) Manager {
	return &ProfileMgr{
		name:     "profiles",
		db:       conf.DB,
		cache:    conf.Cache,
		alert:    conf.Alert,
		notifier: conf.Notifier,
	}
}

func (mgr *ProfileMgr) GetName() string { return mgr.name }

func (mgr *ProfileMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *ProfileMgr) RegisterProtected(g *gin.RouterGroup) {
	g.POST("/invite", mgr.Invite)
	g.POST("/accept", mgr.Accept)
	g.GET("/me", mgr.GetMine)
	g.PUT("/me", mgr.UpdateMine)
	g.GET("/me/settings", mgr.GetSettings)
	g.PUT("/me/settings", mgr.UpdateSettings)
	g.GET("/:id", mgr.Get)
	g.PUT("/:id/role", mgr.ChangeRole)
	g.PUT("/:id/disable", mgr.Disable)
	g.PUT("/:id/enable", mgr.Enable)
	g.DELETE("/:id", mgr.DeletePending)
}

func (mgr *ProfileMgr) RegisterAdmin(_ *gin.RouterGroup) {}

type ProfileResp struct {
	ID        uint         `json:"id"`
	UserID    *uint        `json:"userID"`
	CompanyID uint         `json:"companyID"`
	Company   *CompanyResp `json:"company,omitempty"`
	Email     string       `json:"email"`
	FirstName string       `json:"firstName"`
	LastName  string       `json:"lastName"`
	Phone     *string      `json:"phone"`
	Position  *string      `json:"position"`
	Photo     *string      `json:"photo"`
	Language  string       `json:"language"`
	Role      model.Role   `json:"role"`
	Status    model.Status `json:"status"`
	IsMain    bool         `json:"isMain"`
	CreatedAt time.Time    `json:"createdAt"`
}

func toProfileResp(p *model.Profile) ProfileResp {
	resp := ProfileResp{
		ID:        p.ID,
		UserID:    p.UserID,
		CompanyID: p.CompanyID,
		Email:     p.Email,
		FirstName: p.FirstName,
		LastName:  p.LastName,
		Phone:     p.Phone,
		Position:  p.Position,
		Photo:     p.Photo,
		Language:  p.Language,
		Role:      p.Role,
		Status:    p.Status,
		IsMain:    p.IsMain,
		CreatedAt: p.CreatedAt,
	}
	if p.Company.ID != 0 {
		company := toCompanyResp(&p.Company)
		resp.Company = &company
	}
	return resp
}

type InviteReq struct {
	Email     string     `json:"email" binding:"required,email"`
	FirstName string     `json:"firstName" binding:"required,max=64"`
	LastName  string     `json:"lastName" binding:"required,max=64"`
	Position  *string    `json:"position" binding:"omitempty,max=64"`
	Language  string     `json:"language" binding:"omitempty,len=2"`
	Role      model.Role `json:"role" binding:"required,profilerole"`
}

// Invite godoc
// @Summary Invite a profile
// @Description Create a pending profile in the acting company and mail the invitation link
// @Tags Profile
// @Accept json
// @Produce json
// @Security Bearer
// @Param data body InviteReq true "invited person"
// @Success 200 {object} resputil.Response[ProfileResp] "pending profile"
// @Failure 403 {object} resputil.Response[any] "Only owners and delegates may invite"
// @Failure 409 {object} resputil.Response[any] "Email already invited in this company"
// @Router /v1/profiles/invite [post]
func (mgr *ProfileMgr) Invite(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	var req InviteReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	if err := permission.CanManageProfiles(a); err != nil {
		respondError(c, err)
		return
	}
	if req.Role.AtLeast(model.RoleDelegate) && a.Role != model.RoleOwner {
		respondError(c, permission.ErrRoleEscalation)
		return
	}

	email := strings.ToLower(req.Email)
	invitation := uuid.New().String()
	profile := model.Profile{
		CompanyID:       a.CompanyID,
		Email:           email,
		FirstName:       req.FirstName,
		LastName:        req.LastName,
		Position:        req.Position,
		Language:        lo.Ternary(req.Language != "", req.Language, "it"),
		Role:            req.Role,
		Status:          model.StatusPending,
		InvitationToken: &invitation,
	}

	var user model.User
	err := mgr.db.WithContext(c).Where("email = ?", email).Take(&user).Error
	switch {
	case err == nil:
		profile.UserID = &user.ID
	case !errors.Is(err, gorm.ErrRecordNotFound):
		respondError(c, err)
		return
	}

	if err := mgr.db.WithContext(c).Create(&profile).Error; err != nil {
		respondError(c, err)
		return
	}

	var company model.Company
	if err := mgr.db.WithContext(c).First(&company, a.CompanyID).Error; err != nil {
		respondError(c, err)
		return
	}
	link := fmt.Sprintf("/invitations/%s", invitation)
	if err := mgr.alert.SendInvitation(c, &profile, &company, link); err != nil {
		logutils.Log.WithFields(logutils.Fields{"profile": profile.ID}).Warnf("invitation mail: %v", err)
	}
	if profile.UserID != nil {
		mgr.notifyInvited(c, a, &profile, &company)
	}

	logutils.Log.Infof("profile %d invited %s into company %d", a.ProfileID, email, a.CompanyID)
	resputil.Success(c, toProfileResp(&profile))
}

// notifyInvited tells the active profiles the invited user already has.
func (mgr *ProfileMgr) notifyInvited(ctx context.Context, a permission.Actor, p *model.Profile, company *model.Company) {
	var ids []uint
	if err := mgr.db.WithContext(ctx).Model(&model.Profile{}).
		Where("user_id = ? AND status = ?", *p.UserID, model.StatusActive).
		Pluck("id", &ids).Error; err != nil {
		logutils.Log.Error(err)
		return
	}
	notify.Safe(ctx, mgr.notifier, notify.Event{
		Kind:       notify.KindProfileInvited,
		SenderID:   &a.ProfileID,
		Subject:    fmt.Sprintf("You have been invited to join %s", company.Name),
		OwnerType:  model.OwnerCompany,
		OwnerID:    company.ID,
		Payload:    gin.H{"profileID": p.ID, "token": p.InvitationToken},
		Recipients: ids,
	})
}

type AcceptReq struct {
	Token string `json:"token" binding:"required"`
}

// Accept godoc
// @Summary Accept an invitation
// @Description Link the pending profile of the invitation token to the current user and activate it
// @Tags Profile
// @Accept json
// @Produce json
// @Security Bearer
// @Param data body AcceptReq true "invitation token"
// @Success 200 {object} resputil.Response[ProfileResp] "active profile"
// @Failure 404 {object} resputil.Response[any] "Unknown invitation"
// @Router /v1/profiles/accept [post]
func (mgr *ProfileMgr) Accept(c *gin.Context) {
	var req AcceptReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	token := util.GetToken(c)

	var profile model.Profile
	err := mgr.db.WithContext(c).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("invitation_token = ? AND status = ?", req.Token, model.StatusPending).
			Take(&profile).Error; err != nil {
			return err
		}
		if profile.UserID != nil && *profile.UserID != token.UserID {
			return permission.ErrForbidden
		}
		var mains int64
		if err := tx.Model(&model.Profile{}).
			Where("user_id = ? AND is_main = ?", token.UserID, true).
			Count(&mains).Error; err != nil {
			return err
		}
		profile.UserID = &token.UserID
		profile.Status = model.StatusActive
		profile.InvitationToken = nil
		profile.IsMain = mains == 0
		return tx.Select("user_id", "status", "invitation_token", "is_main").Save(&profile).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}
	mgr.cache.Delete(c, cache.ProfileKey(profile.ID))
	logutils.Log.Infof("user %d accepted profile %d", token.UserID, profile.ID)
	resputil.Success(c, toProfileResp(&profile))
}

// GetMine godoc
// @Summary Acting profile
// @Tags Profile
// @Produce json
// @Security Bearer
// @Success 200 {object} resputil.Response[ProfileResp] "profile with company"
// @Router /v1/profiles/me [get]
func (mgr *ProfileMgr) GetMine(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	var p model.Profile
	if err := mgr.db.WithContext(c).Preload("Company").First(&p, a.ProfileID).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, toProfileResp(&p))
}

type UpdateProfileReq struct {
	FirstName string  `json:"firstName" binding:"required,max=64"`
	LastName  string  `json:"lastName" binding:"required,max=64"`
	Phone     *string `json:"phone" binding:"omitempty,max=32"`
	Position  *string `json:"position" binding:"omitempty,max=64"`
	Photo     *string `json:"photo" binding:"omitempty,max=512"`
	Language  string  `json:"language" binding:"omitempty,len=2"`
	IsMain    bool    `json:"isMain"`
}

// UpdateMine godoc
// @Summary Update the acting profile
// @Tags Profile
// @Accept json
// @Produce json
// @Security Bearer
// @Param data body UpdateProfileReq true "profile"
// @Success 200 {object} resputil.Response[ProfileResp] "profile"
// @Router /v1/profiles/me [put]
func (mgr *ProfileMgr) UpdateMine(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	var req UpdateProfileReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	token := util.GetToken(c)

	var p model.Profile
	err := mgr.db.WithContext(c).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&p, a.ProfileID).Error; err != nil {
			return err
		}
		p.FirstName = req.FirstName
		p.LastName = req.LastName
		p.Phone = req.Phone
		p.Position = req.Position
		p.Photo = req.Photo
		if req.Language != "" {
			p.Language = req.Language
		}
		if req.IsMain && !p.IsMain {
			if err := tx.Model(&model.Profile{}).Where("user_id = ?", token.UserID).
				Update("is_main", false).Error; err != nil {
				return err
			}
			p.IsMain = true
		}
		return tx.Save(&p).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, toProfileResp(&p))
}

// GetSettings godoc
// @Summary Notification settings of the acting profile
// @Tags Profile
// @Produce json
// @Security Bearer
// @Success 200 {object} resputil.Response[model.NotificationSettings] "settings"
// @Router /v1/profiles/me/settings [get]
func (mgr *ProfileMgr) GetSettings(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	var p model.Profile
	if err := mgr.db.WithContext(c).Select("id", "settings").First(&p, a.ProfileID).Error; err != nil {
		respondError(c, err)
		return
	}
	settings := p.Settings.Data()
	if settings.EmailDisabled == nil {
		settings.EmailDisabled = []string{}
	}
	resputil.Success(c, settings)
}

// UpdateSettings godoc
// @Summary Update notification settings
// @Description emailDisabled lists the notification kinds that are not mailed, "*" disables all
// @Tags Profile
// @Accept json
// @Produce json
// @Security Bearer
// @Param data body model.NotificationSettings true "settings"
// @Success 200 {object} resputil.Response[model.NotificationSettings] "settings"
// @Router /v1/profiles/me/settings [put]
func (mgr *ProfileMgr) UpdateSettings(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	var req model.NotificationSettings
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	req.EmailDisabled = lo.Uniq(lo.Compact(req.EmailDisabled))
	if err := mgr.db.WithContext(c).Model(&model.Profile{}).Where("id = ?", a.ProfileID).
		Update("settings", datatypes.NewJSONType(req)).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, req)
}

// Get godoc
// @Summary Get a profile
// @Tags Profile
// @Produce json
// @Security Bearer
// @Param id path int true "profile id"
// @Success 200 {object} resputil.Response[ProfileResp] "profile"
// @Router /v1/profiles/{id} [get]
func (mgr *ProfileMgr) Get(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var p model.Profile
	if err := mgr.db.WithContext(c).Preload("Company").First(&p, id).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, toProfileResp(&p))
}

type ChangeRoleReq struct {
	Role model.Role `json:"role" binding:"required,profilerole"`
}

// ChangeRole godoc
// @Summary Change the role of a profile
// @Description Owners and delegates only; only an owner grants owner or delegate; the last owner keeps the role
// @Tags Profile
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "profile id"
// @Param data body ChangeRoleReq true "new role"
// @Success 200 {object} resputil.Response[ProfileResp] "profile"
// @Failure 403 {object} resputil.Response[any] "Not allowed"
// @Failure 409 {object} resputil.Response[any] "Last owner"
// @Router /v1/profiles/{id}/role [put]
func (mgr *ProfileMgr) ChangeRole(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req ChangeRoleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	var p model.Profile
	err := mgr.db.WithContext(c).Transaction(func(tx *gorm.DB) error {
		if err := tx.First(&p, id).Error; err != nil {
			return err
		}
		var owners int64
		if err := tx.Model(&model.Profile{}).
			Where("company_id = ? AND role = ? AND status = ?", p.CompanyID, model.RoleOwner, model.StatusActive).
			Count(&owners).Error; err != nil {
			return err
		}
		if err := permission.CanChangeRole(a, &p, req.Role, owners); err != nil {
			return err
		}
		p.Role = req.Role
		return tx.Model(&p).Update("role", req.Role).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}
	mgr.cache.Delete(c, cache.ProfileKey(p.ID))
	logutils.Log.Infof("profile %d role set to %s by %d", p.ID, p.Role, a.ProfileID)
	resputil.Success(c, toProfileResp(&p))
}

// Disable godoc
// @Summary Disable a profile
// @Description Owners and delegates of the company; never the acting profile itself nor an owner
// @Tags Profile
// @Produce json
// @Security Bearer
// @Param id path int true "profile id"
// @Success 200 {object} resputil.Response[ProfileResp] "profile"
// @Router /v1/profiles/{id}/disable [put]
func (mgr *ProfileMgr) Disable(c *gin.Context) {
	mgr.setStatus(c, model.StatusDisabled, permission.CanDisableProfile)
}

// Enable godoc
// @Summary Enable a disabled profile
// @Tags Profile
// @Produce json
// @Security Bearer
// @Param id path int true "profile id"
// @Success 200 {object} resputil.Response[ProfileResp] "profile"
// @Router /v1/profiles/{id}/enable [put]
func (mgr *ProfileMgr) Enable(c *gin.Context) {
	mgr.setStatus(c, model.StatusActive, func(a permission.Actor, target *model.Profile) error {
		if err := permission.CanManageProfiles(a); err != nil {
			return err
		}
		if target.CompanyID != a.CompanyID {
			return permission.ErrOtherCompany
		}
		if target.Status != model.StatusDisabled {
			return badRequest(errors.New("profile is not disabled"))
		}
		return nil
	})
}

func (mgr *ProfileMgr) setStatus(c *gin.Context, status model.Status, check func(permission.Actor, *model.Profile) error) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var p model.Profile
	if err := mgr.db.WithContext(c).First(&p, id).Error; err != nil {
		respondError(c, err)
		return
	}
	if err := check(a, &p); err != nil {
		respondError(c, err)
		return
	}
	if err := mgr.db.WithContext(c).Model(&p).Update("status", status).Error; err != nil {
		respondError(c, err)
		return
	}
	mgr.cache.Delete(c, cache.ProfileKey(p.ID))
	logutils.Log.Infof("profile %d status set to %d by %d", p.ID, status, a.ProfileID)
	resputil.Success(c, toProfileResp(&p))
}

// DeletePending godoc
// @Summary Withdraw an invitation
// @Description Delete a profile that is still pending
// @Tags Profile
// @Produce json
// @Security Bearer
// @Param id path int true "profile id"
// @Success 200 {object} resputil.Response[string] "Success"
// @Failure 400 {object} resputil.Response[any] "Profile is not pending"
// @Router /v1/profiles/{id} [delete]
func (mgr *ProfileMgr) DeletePending(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	if err := permission.CanManageProfiles(a); err != nil {
		respondError(c, err)
		return
	}
	var p model.Profile
	if err := mgr.db.WithContext(c).Where("company_id = ?", a.CompanyID).First(&p, id).Error; err != nil {
		respondError(c, err)
		return
	}
	if p.Status != model.StatusPending {
		resputil.HTTPError(c, http.StatusBadRequest, "only pending profiles can be deleted", resputil.InvalidRequest)
		return
	}
	if err := mgr.db.WithContext(c).Unscoped().Delete(&p).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, "")
}
