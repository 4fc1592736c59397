package handler

import (
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/internal/resputil"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/logutils"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/notify"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/permission"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewTeamMgr)
}

type TeamMgr struct {
	name     string
	db       *gorm.DB
	notifier notify.Notifier
}

func NewTeamMgr(conf *RegisterConfig) Manager {
	return &TeamMgr{
		name:     "teams",
		db:       conf.DB,
		notifier: conf.Notifier,
	}
}

func (mgr *TeamMgr) GetName() string { return mgr.name }

func (mgr *TeamMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *TeamMgr) RegisterProtected(g *gin.RouterGroup) {
	g.GET("/project/:projectID", mgr.List)
	g.POST("/project/:projectID", mgr.Add)
	g.PUT("/:id/approve", mgr.Approve)
	g.PUT("/:id/refuse", mgr.Refuse)
	g.PUT("/:id/role", mgr.ChangeRole)
	g.PUT("/:id/disable", mgr.SetDisabled)
	g.DELETE("/:id", mgr.Remove)
}

func (mgr *TeamMgr) RegisterAdmin(_ *gin.RouterGroup) {}

type TeamMemberResp struct {
	ID        uint             `json:"id"`
	ProjectID uint             `json:"projectID"`
	Profile   ProfileResp      `json:"profile"`
	Role      model.Role       `json:"role"`
	Status    model.TeamStatus `json:"status"`
	Disabled  bool             `json:"disabled"`
	CreatedAt time.Time        `json:"createdAt"`
}

func toTeamMemberResp(m *model.TeamMember) TeamMemberResp {
	return TeamMemberResp{
		ID:        m.ID,
		ProjectID: m.ProjectID,
		Profile:   toProfileResp(&m.Profile),
		Role:      m.Role,
		Status:    m.Status,
		Disabled:  m.Disabled,
		CreatedAt: m.CreatedAt,
	}
}

// List godoc
// @Summary Team of a project
// @Tags Team
// @Produce json
// @Security Bearer
// @Param projectID path int true "project id"
// @Success 200 {object} resputil.Response[[]TeamMemberResp] "members"
// @Router /v1/teams/project/{projectID} [get]
func (mgr *TeamMgr) List(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	projectID, ok := uintParam(c, "projectID")
	if !ok {
		return
	}
	if _, err := viewProject(c, mgr.db, a, projectID); err != nil {
		respondError(c, err)
		return
	}
	var members []model.TeamMember
	if err := mgr.db.WithContext(c).Preload("Profile.Company").
		Where("project_id = ?", projectID).
		Order("role, id").
		Find(&members).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, lo.Map(members, func(m model.TeamMember, _ int) TeamMemberResp { return toTeamMemberResp(&m) }))
}

type AddMemberReq struct {
	ProfileID uint       `json:"profileID" binding:"required"`
	Role      model.Role `json:"role" binding:"required,profilerole"`
}

// Add godoc
// @Summary Add a team member
// @Description Add a profile of any company to the team; the membership waits for the profile's approval
// @Tags Team
// @Accept json
// @Produce json
// @Security Bearer
// @Param projectID path int true "project id"
// @Param data body AddMemberReq true "member"
// @Success 200 {object} resputil.Response[TeamMemberResp] "member"
// @Failure 409 {object} resputil.Response[any] "Already in the team"
// @Router /v1/teams/project/{projectID} [post]
func (mgr *TeamMgr) Add(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	projectID, ok := uintParam(c, "projectID")
	if !ok {
		return
	}
	var req AddMemberReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	pa, err := loadProjectAccess(c, mgr.db, a, projectID)
	if err == nil {
		err = permission.CanGrantTeamRole(a, pa.Project, pa.Member, nil, req.Role)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	var profile model.Profile
	if err := mgr.db.WithContext(c).Preload("Company").First(&profile, req.ProfileID).Error; err != nil {
		respondError(c, err)
		return
	}
	if profile.Status != model.StatusActive {
		respondError(c, permission.ErrProfileInactive)
		return
	}

	member := model.TeamMember{
		ProjectID: projectID,
		ProfileID: profile.ID,
		Role:      req.Role,
		Status:    model.TeamWaiting,
	}
	// the actor adding itself needs no approval
	if profile.ID == a.ProfileID {
		member.Status = model.TeamApproved
	}
	if err := mgr.db.WithContext(c).Create(&member).Error; err != nil {
		respondError(c, err)
		return
	}
	member.Profile = profile

	notify.Safe(c, mgr.notifier, notify.Event{
		Kind:       notify.KindTeamAdded,
		SenderID:   &a.ProfileID,
		Subject:    fmt.Sprintf("You have been added to project %s", pa.Project.Name),
		OwnerType:  model.OwnerProject,
		OwnerID:    projectID,
		Payload:    gin.H{"memberID": member.ID, "role": member.Role},
		Recipients: []uint{profile.ID},
	})
	resputil.Success(c, toTeamMemberResp(&member))
}

// loadMember loads the membership of the path with the actor's access to its project.
func (mgr *TeamMgr) loadMember(c *gin.Context) (*model.TeamMember, *projectAccess, bool) {
	a, ok := actorOf(c)
	if !ok {
		return nil, nil, false
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return nil, nil, false
	}
	var member model.TeamMember
	if err := mgr.db.WithContext(c).Preload("Profile").First(&member, id).Error; err != nil {
		respondError(c, err)
		return nil, nil, false
	}
	pa, err := loadProjectAccess(c, mgr.db, a, member.ProjectID)
	if err != nil {
		respondError(c, err)
		return nil, nil, false
	}
	return &member, pa, true
}

// Approve godoc
// @Summary Approve a team invitation
// @Description Only the invited profile answers its own invitation
// @Tags Team
// @Produce json
// @Security Bearer
// @Param id path int true "member id"
// @Success 200 {object} resputil.Response[TeamMemberResp] "member"
// @Router /v1/teams/{id}/approve [put]
func (mgr *TeamMgr) Approve(c *gin.Context) {
	mgr.answer(c, model.TeamApproved, notify.KindTeamApproved, "accepted")
}

// Refuse godoc
// @Summary Refuse a team invitation
// @Tags Team
// @Produce json
// @Security Bearer
// @Param id path int true "member id"
// @Success 200 {object} resputil.Response[TeamMemberResp] "member"
// @Router /v1/teams/{id}/refuse [put]
func (mgr *TeamMgr) Refuse(c *gin.Context) {
	mgr.answer(c, model.TeamRefused, notify.KindTeamRefused, "refused")
}

func (mgr *TeamMgr) answer(c *gin.Context, status model.TeamStatus, kind, verb string) {
	member, pa, ok := mgr.loadMember(c)
	if !ok {
		return
	}
	if member.ProfileID != pa.Actor.ProfileID {
		respondError(c, permission.ErrForbidden)
		return
	}
	if member.Status != model.TeamWaiting {
		resputil.ConflictError(c, "invitation already answered")
		return
	}
	if err := mgr.db.WithContext(c).Model(member).Update("status", status).Error; err != nil {
		respondError(c, err)
		return
	}

	var managers []uint
	if err := mgr.db.WithContext(c).Model(&model.TeamMember{}).
		Where("project_id = ? AND status = ? AND disabled = ? AND role IN ?", member.ProjectID,
			model.TeamApproved, false, []model.Role{model.RoleOwner, model.RoleDelegate}).
		Pluck("profile_id", &managers).Error; err != nil {
		logutils.Log.Error(err)
	}
	notify.Safe(c, mgr.notifier, notify.Event{
		Kind:     kind,
		SenderID: &pa.Actor.ProfileID,
		Subject: fmt.Sprintf("%s %s %s the invitation to project %s",
			member.Profile.FirstName, member.Profile.LastName, verb, pa.Project.Name),
		OwnerType:  model.OwnerProject,
		OwnerID:    member.ProjectID,
		Recipients: managers,
	})
	resputil.Success(c, toTeamMemberResp(member))
}

// ChangeRole godoc
// @Summary Change the role of a team member
// @Tags Team
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "member id"
// @Param data body ChangeRoleReq true "role"
// @Success 200 {object} resputil.Response[TeamMemberResp] "member"
// @Router /v1/teams/{id}/role [put]
func (mgr *TeamMgr) ChangeRole(c *gin.Context) {
	member, pa, ok := mgr.loadMember(c)
	if !ok {
		return
	}
	var req ChangeRoleReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	if err := permission.CanGrantTeamRole(pa.Actor, pa.Project, pa.Member, &member.Role, req.Role); err != nil {
		respondError(c, err)
		return
	}
	if member.Role == model.RoleOwner && req.Role != model.RoleOwner {
		if err := mgr.checkOtherOwner(c, member); err != nil {
			respondError(c, err)
			return
		}
	}
	if err := mgr.db.WithContext(c).Model(member).Update("role", req.Role).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, toTeamMemberResp(member))
}

// checkOtherOwner fails when member is the last approved owner of its project.
func (mgr *TeamMgr) checkOtherOwner(c *gin.Context, member *model.TeamMember) error {
	var owners int64
	if err := mgr.db.WithContext(c).Model(&model.TeamMember{}).
		Where("project_id = ? AND role = ? AND status = ? AND disabled = ?",
			member.ProjectID, model.RoleOwner, model.TeamApproved, false).
		Count(&owners).Error; err != nil {
		return err
	}
	if owners <= 1 {
		return permission.ErrLastOwner
	}
	return nil
}

type DisableMemberReq struct {
	Disabled bool `json:"disabled"`
}

// SetDisabled godoc
// @Summary Disable or enable a team member
// @Tags Team
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "member id"
// @Param data body DisableMemberReq true "disabled flag"
// @Success 200 {object} resputil.Response[TeamMemberResp] "member"
// @Router /v1/teams/{id}/disable [put]
func (mgr *TeamMgr) SetDisabled(c *gin.Context) {
	member, pa, ok := mgr.loadMember(c)
	if !ok {
		return
	}
	var req DisableMemberReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	if err := permission.CanManageTeam(pa.Actor, pa.Project, pa.Member); err != nil {
		respondError(c, err)
		return
	}
	if req.Disabled && member.ProfileID == pa.Actor.ProfileID {
		respondError(c, permission.ErrSelfDisable)
		return
	}
	if req.Disabled && member.Role == model.RoleOwner {
		if err := mgr.checkOtherOwner(c, member); err != nil {
			respondError(c, err)
			return
		}
	}
	if err := mgr.db.WithContext(c).Model(member).Update("disabled", req.Disabled).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, toTeamMemberResp(member))
}

// Remove godoc
// @Summary Remove a team member
// @Description Project editors remove anybody but the last owner; a member may leave by itself
// @Tags Team
// @Produce json
// @Security Bearer
// @Param id path int true "member id"
// @Success 200 {object} resputil.Response[string] "Success"
// @Router /v1/teams/{id} [delete]
func (mgr *TeamMgr) Remove(c *gin.Context) {
	member, pa, ok := mgr.loadMember(c)
	if !ok {
		return
	}
	if member.ProfileID != pa.Actor.ProfileID {
		if err := permission.CanManageTeam(pa.Actor, pa.Project, pa.Member); err != nil {
			respondError(c, err)
			return
		}
	}
	if member.Role == model.RoleOwner && member.Status == model.TeamApproved {
		if err := mgr.checkOtherOwner(c, member); err != nil {
			respondError(c, err)
			return
		}
	}
	if err := mgr.db.WithContext(c).Unscoped().Delete(member).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, "")
}
