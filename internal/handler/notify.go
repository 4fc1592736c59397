package handler

import (
	"encoding/json"
	"errors"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/dao/query"
	"github.com/monkeybits/edilcloud-back-sub000/internal/payload"
	"github.com/monkeybits/edilcloud-back-sub000/internal/resputil"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/cache"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/logutils"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewNotificationMgr)
}

type NotificationMgr struct {
	name  string
	db    *gorm.DB
	cache *cache.Cache
}

func NewNotificationMgr(conf *RegisterConfig) Manager {
	return &NotificationMgr{
		name:  "notifications",
		db:    conf.DB,
		cache: conf.Cache,
	}
}

func (mgr *NotificationMgr) GetName() string { return mgr.name }

func (mgr *NotificationMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *NotificationMgr) RegisterProtected(g *gin.RouterGroup) {
	g.GET("", mgr.List)
	g.GET("/unread", mgr.UnreadCount)
	g.PUT("/read", mgr.ReadAll)
	g.PUT("/:id/read", mgr.Read)
	g.DELETE("/:id", mgr.Delete)
}

func (mgr *NotificationMgr) RegisterAdmin(_ *gin.RouterGroup) {}

type NotificationResp struct {
	ID        uint            `json:"id"`
	Kind      string          `json:"kind"`
	Subject   string          `json:"subject"`
	Body      string          `json:"body"`
	OwnerType model.OwnerType `json:"ownerType"`
	OwnerID   uint            `json:"ownerID"`
	Payload   json.RawMessage `json:"payload" swaggertype:"object"`
	Sender    *AuthorResp     `json:"sender"`
	IsRead    bool            `json:"isRead"`
	ReadAt    *time.Time      `json:"readAt"`
	CreatedAt time.Time       `json:"createdAt"`
}

func toNotificationResp(r *model.NotificationRecipient) NotificationResp {
	n := &r.Notify
	resp := NotificationResp{
		ID:        n.ID,
		Kind:      n.Kind,
		Subject:   n.Subject,
		Body:      n.Body,
		OwnerType: n.OwnerType,
		OwnerID:   n.OwnerID,
		Payload:   json.RawMessage(n.Payload),
		IsRead:    r.IsRead,
		ReadAt:    r.ReadAt,
		CreatedAt: n.CreatedAt,
	}
	if len(resp.Payload) == 0 {
		resp.Payload = json.RawMessage("null")
	}
	if n.Sender != nil {
		sender := toAuthorResp(n.Sender)
		resp.Sender = &sender
	}
	return resp
}

type ListNotificationsReq struct {
	PageIndex *int `form:"page_index" binding:"required,min=0"`
	PageSize  *int `form:"page_size" binding:"required,min=1,max=200"`
	Unread    bool `form:"unread"`
}

// List godoc
// @Summary Notifications of the acting profile
// @Description Newest first
// @Tags Notification
// @Produce json
// @Security Bearer
// @Param page_index query int true "page index"
// @Param page_size query int true "page size"
// @Param unread query bool false "only unread"
// @Success 200 {object} resputil.Response[payload.ListResp[NotificationResp]] "notifications"
// @Router /v1/notifications [get]
func (mgr *NotificationMgr) List(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	var req ListNotificationsReq
	if err := c.ShouldBindQuery(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	tx := mgr.db.WithContext(c).Model(&model.NotificationRecipient{}).Where("profile_id = ?", a.ProfileID)
	if req.Unread {
		tx = tx.Where("is_read = ?", false)
	}
	var count int64
	if err := tx.Count(&count).Error; err != nil {
		respondError(c, err)
		return
	}
	var rows []model.NotificationRecipient
	if err := tx.Preload("Notify.Sender").
		Scopes(query.Paginate(*req.PageIndex, *req.PageSize)).
		Order("id DESC").Find(&rows).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, payload.ListResp[NotificationResp]{
		Rows:  lo.Map(rows, func(r model.NotificationRecipient, _ int) NotificationResp { return toNotificationResp(&r) }),
		Count: count,
	})
}

type UnreadResp struct {
	Count int64 `json:"count"`
}

// UnreadCount godoc
// @Summary Number of unread notifications
// @Tags Notification
// @Produce json
// @Security Bearer
// @Success 200 {object} resputil.Response[UnreadResp] "count"
// @Router /v1/notifications/unread [get]
func (mgr *NotificationMgr) UnreadCount(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	key := cache.UnreadKey(a.ProfileID)
	var resp UnreadResp
	err := mgr.cache.GetJSON(c, key, &resp)
	if err == nil {
		resputil.Success(c, resp)
		return
	}
	if !errors.Is(err, cache.ErrMiss) {
		logutils.Log.Warnf("unread count cache: %v", err)
	}
	if err := mgr.db.WithContext(c).Model(&model.NotificationRecipient{}).
		Where("profile_id = ? AND is_read = ?", a.ProfileID, false).
		Count(&resp.Count).Error; err != nil {
		respondError(c, err)
		return
	}
	mgr.cache.SetJSON(c, key, resp)
	resputil.Success(c, resp)
}

// Read godoc
// @Summary Mark a notification read
// @Tags Notification
// @Produce json
// @Security Bearer
// @Param id path int true "notification id"
// @Success 200 {object} resputil.Response[string] "Success"
// @Router /v1/notifications/{id}/read [put]
func (mgr *NotificationMgr) Read(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	res := mgr.db.WithContext(c).Model(&model.NotificationRecipient{}).
		Where("notify_id = ? AND profile_id = ?", id, a.ProfileID).
		Updates(map[string]any{"is_read": true, "read_at": time.Now()})
	if res.Error != nil {
		respondError(c, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		respondError(c, gorm.ErrRecordNotFound)
		return
	}
	mgr.cache.Delete(c, cache.UnreadKey(a.ProfileID))
	resputil.Success(c, "")
}

// ReadAll godoc
// @Summary Mark every notification read
// @Tags Notification
// @Produce json
// @Security Bearer
// @Success 200 {object} resputil.Response[string] "Success"
// @Router /v1/notifications/read [put]
func (mgr *NotificationMgr) ReadAll(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	if err := mgr.db.WithContext(c).Model(&model.NotificationRecipient{}).
		Where("profile_id = ? AND is_read = ?", a.ProfileID, false).
		Updates(map[string]any{"is_read": true, "read_at": time.Now()}).Error; err != nil {
		respondError(c, err)
		return
	}
	mgr.cache.Delete(c, cache.UnreadKey(a.ProfileID))
	resputil.Success(c, "")
}

// Delete godoc
// @Summary Remove a notification from the acting profile's list
// @Tags Notification
// @Produce json
// @Security Bearer
// @Param id path int true "notification id"
// @Success 200 {object} resputil.Response[string] "Success"
// @Router /v1/notifications/{id} [delete]
func (mgr *NotificationMgr) Delete(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	res := mgr.db.WithContext(c).Where("notify_id = ? AND profile_id = ?", id, a.ProfileID).
		Delete(&model.NotificationRecipient{})
	if res.Error != nil {
		respondError(c, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		respondError(c, gorm.ErrRecordNotFound)
		return
	}
	mgr.cache.Delete(c, cache.UnreadKey(a.ProfileID))
	resputil.Success(c, "")
}
