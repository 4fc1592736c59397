package handler

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/dao/query"
	"github.com/monkeybits/edilcloud-back-sub000/internal/resputil"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/logutils"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/notify"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/permission"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/realtime"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewTalkMgr)
}

// MessageEvent is the websocket event name of a new talk message.
const MessageEvent = "message"

var (
	errEmptyMessage = errors.New("a message needs a body or a media file")
	errSelfTalk     = errors.New("cannot open a talk with yourself")
)

func projectTalkCode(projectID uint) string { return fmt.Sprintf("project-%d", projectID) }

func companyTalkCode(companyID uint) string { return fmt.Sprintf("company-%d", companyID) }

// profileTalkCode names the talk between two profiles; the lower id comes first.
func profileTalkCode(a, b uint) string {
	if a > b {
		a, b = b, a
	}
	return fmt.Sprintf("profile-%d-%d", a, b)
}

// ensureTalk returns the talk with the given code, creating it on first use.
func ensureTalk(tx *gorm.DB, code string, ownerType model.OwnerType, ownerID uint) (*model.Talk, error) {
	var talk model.Talk
	err := tx.Where(model.Talk{Code: code}).
		Attrs(model.Talk{OwnerType: ownerType, OwnerID: ownerID}).
		FirstOrCreate(&talk).Error
	if err != nil {
		return nil, err
	}
	return &talk, nil
}

// talkParticipants lists the profiles that read and write in a talk.
func talkParticipants(ctx context.Context, db *gorm.DB, talk *model.Talk) ([]uint, error) {
	switch talk.OwnerType {
	case model.OwnerProject:
		return notify.ProjectTeam(ctx, db, talk.OwnerID)
	case model.OwnerCompany:
		var ids []uint
		err := db.WithContext(ctx).Model(&model.Profile{}).Scopes(query.ActiveProfiles).
			Where("company_id = ?", talk.OwnerID).Pluck("id", &ids).Error
		return ids, err
	case model.OwnerProfile:
		var a, b uint
		if _, err := fmt.Sscanf(talk.Code, "profile-%d-%d", &a, &b); err != nil {
			return nil, fmt.Errorf("talk %d: %w", talk.ID, err)
		}
		return []uint{a, b}, nil
	default:
		return nil, fmt.Errorf("talk %d: unknown owner %s", talk.ID, talk.OwnerType)
	}
}

// canJoinTalk checks that the actor participates in the talk.
func canJoinTalk(c *gin.Context, db *gorm.DB, a permission.Actor, talk *model.Talk) error {
	switch talk.OwnerType {
	case model.OwnerProject:
		_, err := viewProject(c, db, a, talk.OwnerID)
		return err
	case model.OwnerCompany:
		if a.CompanyID != talk.OwnerID {
			return permission.ErrOtherCompany
		}
		return nil
	default:
		ids, err := talkParticipants(c, db, talk)
		if err != nil {
			return err
		}
		if !lo.Contains(ids, a.ProfileID) {
			return permission.ErrForbidden
		}
		return nil
	}
}

type TalkMgr struct {
	name     string
	db       *gorm.DB
	hub      realtime.Publisher
	notifier notify.Notifier
}

func NewTalkMgr(conf *RegisterConfig) Manager {
	mgr := &TalkMgr{
		name:     "talks",
		db:       conf.DB,
		notifier: conf.Notifier,
	}
	if conf.Hub != nil {
		mgr.hub = conf.Hub
	}
	return mgr
}

func (mgr *TalkMgr) GetName() string { return mgr.name }

func (mgr *TalkMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *TalkMgr) RegisterProtected(g *gin.RouterGroup) {
	g.GET("", mgr.ListMine)
	g.POST("/project/:projectID", mgr.OpenProject)
	g.POST("/company", mgr.OpenCompany)
	g.POST("/profile/:profileID", mgr.OpenProfile)
	g.GET("/:id/messages", mgr.ListMessages)
	g.POST("/:id/messages", mgr.PostMessage)
	g.PUT("/:id/read", mgr.MarkRead)
}

func (mgr *TalkMgr) RegisterAdmin(_ *gin.RouterGroup) {}

type MessageResp struct {
	ID        uint       `json:"id"`
	TalkID    uint       `json:"talkID"`
	Sender    AuthorResp `json:"sender"`
	Body      string     `json:"body"`
	MediaID   *uint      `json:"mediaID"`
	Media     *MediaResp `json:"media,omitempty"`
	CreatedAt time.Time  `json:"createdAt"`
}

func toMessageResp(m *model.Message) MessageResp {
	resp := MessageResp{
		ID:        m.ID,
		TalkID:    m.TalkID,
		Sender:    toAuthorResp(&m.Sender),
		Body:      m.Body,
		MediaID:   m.MediaID,
		CreatedAt: m.CreatedAt,
	}
	if m.Media != nil {
		media := toMediaResp(m.Media)
		resp.Media = &media
	}
	return resp
}

type TalkResp struct {
	ID          uint            `json:"id"`
	Code        string          `json:"code"`
	OwnerType   model.OwnerType `json:"ownerType"`
	OwnerID     uint            `json:"ownerID"`
	LastMessage *MessageResp    `json:"lastMessage"`
	Unread      int64           `json:"unread"`
}

// ListMine godoc
// @Summary Talks of the acting profile
// @Description Project talks of the profile's projects, the company talk and one-to-one talks,
// @Description each with its last message and the number of unread messages
// @Tags Talk
// @Produce json
// @Security Bearer
// @Success 200 {object} resputil.Response[[]TalkResp] "talks"
// @Router /v1/talks [get]
func (mgr *TalkMgr) ListMine(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	db := mgr.db.WithContext(c)

	var projectIDs []uint
	if err := db.Model(&model.Project{}).Scopes(query.ProjectsOfProfile(a.ProfileID)).
		Pluck("projects.id", &projectIDs).Error; err != nil {
		respondError(c, err)
		return
	}
	codes := append(lo.Map(projectIDs, func(id uint, _ int) string { return projectTalkCode(id) }),
		companyTalkCode(a.CompanyID))

	var talks []model.Talk
	if err := db.Where("code IN ?", codes).
		Or("owner_type = ? AND (code LIKE ? OR code LIKE ?)", model.OwnerProfile,
			fmt.Sprintf("profile-%d-%%", a.ProfileID), fmt.Sprintf("profile-%%-%d", a.ProfileID)).
		Find(&talks).Error; err != nil {
		respondError(c, err)
		return
	}
	if len(talks) == 0 {
		resputil.Success(c, []TalkResp{})
		return
	}
	talkIDs := lo.Map(talks, func(t model.Talk, _ int) uint { return t.ID })

	var last []model.Message
	if err := db.Preload("Sender").Preload("Media").
		Select("DISTINCT ON (talk_id) *").
		Where("talk_id IN ?", talkIDs).
		Order("talk_id, id DESC").
		Find(&last).Error; err != nil {
		respondError(c, err)
		return
	}
	lastByTalk := lo.KeyBy(last, func(m model.Message) uint { return m.TalkID })

	type unreadRow struct {
		TalkID uint
		Count  int64
	}
	var unread []unreadRow
	if err := db.Table("messages AS m").
		Select("m.talk_id, COUNT(*) AS count").
		Joins("LEFT JOIN message_reads r ON r.talk_id = m.talk_id AND r.profile_id = ?", a.ProfileID).
		Where("m.talk_id IN ? AND m.deleted_at IS NULL AND m.sender_id <> ?", talkIDs, a.ProfileID).
		Where("m.id > COALESCE(r.last_message_id, 0)").
		Group("m.talk_id").
		Scan(&unread).Error; err != nil {
		respondError(c, err)
		return
	}
	unreadByTalk := lo.SliceToMap(unread, func(r unreadRow) (uint, int64) { return r.TalkID, r.Count })

	resp := lo.Map(talks, func(t model.Talk, _ int) TalkResp {
		tr := TalkResp{ID: t.ID, Code: t.Code, OwnerType: t.OwnerType, OwnerID: t.OwnerID, Unread: unreadByTalk[t.ID]}
		if m, ok := lastByTalk[t.ID]; ok {
			mr := toMessageResp(&m)
			tr.LastMessage = &mr
		}
		return tr
	})
	// most recent conversation first
	resp = sortTalks(resp)
	resputil.Success(c, resp)
}

func sortTalks(talks []TalkResp) []TalkResp {
	sort.SliceStable(talks, func(i, j int) bool {
		li, lj := talks[i].LastMessage, talks[j].LastMessage
		if li == nil || lj == nil {
			return lj == nil && li != nil
		}
		return li.ID > lj.ID
	})
	return talks
}

func toTalkResp(t *model.Talk) TalkResp {
	return TalkResp{ID: t.ID, Code: t.Code, OwnerType: t.OwnerType, OwnerID: t.OwnerID}
}

// OpenProject godoc
// @Summary Get or create the talk of a project
// @Tags Talk
// @Produce json
// @Security Bearer
// @Param projectID path int true "project id"
// @Success 200 {object} resputil.Response[TalkResp] "talk"
// @Router /v1/talks/project/{projectID} [post]
func (mgr *TalkMgr) OpenProject(c *gin.Context) {
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
	talk, err := ensureTalk(mgr.db.WithContext(c), projectTalkCode(projectID), model.OwnerProject, projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, toTalkResp(talk))
}

// OpenCompany godoc
// @Summary Get or create the talk of the acting company
// @Tags Talk
// @Produce json
// @Security Bearer
// @Success 200 {object} resputil.Response[TalkResp] "talk"
// @Router /v1/talks/company [post]
func (mgr *TalkMgr) OpenCompany(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	talk, err := ensureTalk(mgr.db.WithContext(c), companyTalkCode(a.CompanyID), model.OwnerCompany, a.CompanyID)
	if err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, toTalkResp(talk))
}

// OpenProfile godoc
// @Summary Get or create a one-to-one talk
// @Tags Talk
// @Produce json
// @Security Bearer
// @Param profileID path int true "the other profile"
// @Success 200 {object} resputil.Response[TalkResp] "talk"
// @Router /v1/talks/profile/{profileID} [post]
func (mgr *TalkMgr) OpenProfile(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	other, ok := uintParam(c, "profileID")
	if !ok {
		return
	}
	if other == a.ProfileID {
		respondError(c, badRequest(errSelfTalk))
		return
	}
	var target model.Profile
	if err := mgr.db.WithContext(c).Scopes(query.ActiveProfiles).First(&target, other).Error; err != nil {
		respondError(c, err)
		return
	}
	talk, err := ensureTalk(mgr.db.WithContext(c), profileTalkCode(a.ProfileID, other),
		model.OwnerProfile, min(a.ProfileID, other))
	if err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, toTalkResp(talk))
}

// joinedTalk loads the talk of the path when the actor participates in it.
func (mgr *TalkMgr) joinedTalk(c *gin.Context) (*model.Talk, permission.Actor, bool) {
	a, ok := actorOf(c)
	if !ok {
		return nil, a, false
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return nil, a, false
	}
	var talk model.Talk
	if err := mgr.db.WithContext(c).First(&talk, id).Error; err != nil {
		respondError(c, err)
		return nil, a, false
	}
	if err := canJoinTalk(c, mgr.db, a, &talk); err != nil {
		respondError(c, err)
		return nil, a, false
	}
	return &talk, a, true
}

type ListMessagesReq struct {
	PageIndex *int `form:"page_index" binding:"required,min=0"`
	PageSize  *int `form:"page_size" binding:"required,min=1,max=200"`
}

// ListMessages godoc
// @Summary Messages of a talk
// @Description Page 0 is the most recent window; messages of a page are ordered oldest to newest
// @Tags Talk
// @Produce json
// @Security Bearer
// @Param id path int true "talk id"
// @Param page_index query int true "page index"
// @Param page_size query int true "page size"
// @Success 200 {object} resputil.Response[[]MessageResp] "messages"
// @Router /v1/talks/{id}/messages [get]
func (mgr *TalkMgr) ListMessages(c *gin.Context) {
	talk, _, ok := mgr.joinedTalk(c)
	if !ok {
		return
	}
	var req ListMessagesReq
	if err := c.ShouldBindQuery(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	var messages []model.Message
	if err := mgr.db.WithContext(c).Preload("Sender").Preload("Media").
		Where("talk_id = ?", talk.ID).
		Order("id DESC").
		Scopes(query.Paginate(*req.PageIndex, *req.PageSize)).
		Find(&messages).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, lo.Map(lo.Reverse(messages), func(m model.Message, _ int) MessageResp { return toMessageResp(&m) }))
}

type MessageReq struct {
	Body    string `json:"body"`
	MediaID *uint  `json:"mediaID"`
}

// PostMessage godoc
// @Summary Write in a talk
// @Description The message is pushed to the connected participants
// @Tags Talk
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "talk id"
// @Param data body MessageReq true "message"
// @Success 200 {object} resputil.Response[MessageResp] "message"
// @Router /v1/talks/{id}/messages [post]
func (mgr *TalkMgr) PostMessage(c *gin.Context) {
	talk, a, ok := mgr.joinedTalk(c)
	if !ok {
		return
	}
	var req MessageReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	if req.Body == "" && req.MediaID == nil {
		respondError(c, badRequest(errEmptyMessage))
		return
	}
	msg := model.Message{TalkID: talk.ID, SenderID: a.ProfileID, Body: req.Body, MediaID: req.MediaID}
	if req.MediaID != nil {
		var media model.Media
		if err := mgr.db.WithContext(c).First(&media, *req.MediaID).Error; err != nil {
			respondError(c, err)
			return
		}
		if err := ownerAccess(c, mgr.db, a, media.OwnerType, media.OwnerID, false); err != nil {
			respondError(c, err)
			return
		}
		msg.Media = &media
	}
	if err := mgr.db.WithContext(c).Omit("Media", "Sender").Create(&msg).Error; err != nil {
		respondError(c, err)
		return
	}
	if err := mgr.db.WithContext(c).First(&msg.Sender, a.ProfileID).Error; err != nil {
		respondError(c, err)
		return
	}
	if err := mgr.markRead(c, talk.ID, a.ProfileID, msg.ID); err != nil {
		logutils.Log.Warnf("mark talk %d read: %v", talk.ID, err)
	}

	participants, err := talkParticipants(c, mgr.db, talk)
	if err != nil {
		respondError(c, err)
		return
	}
	resp := toMessageResp(&msg)
	if mgr.hub != nil {
		mgr.hub.SendToProfiles(participants, realtime.NewEvent(MessageEvent, resp))
	}
	if talk.OwnerType == model.OwnerProfile {
		notify.Safe(c, mgr.notifier, notify.Event{
			Kind:       notify.KindMessage,
			SenderID:   &a.ProfileID,
			Subject:    fmt.Sprintf("New message from %s %s", msg.Sender.FirstName, msg.Sender.LastName),
			Body:       msg.Body,
			OwnerType:  model.OwnerProfile,
			OwnerID:    a.ProfileID,
			Payload:    gin.H{"talkID": talk.ID, "messageID": msg.ID},
			Recipients: participants,
		})
	}
	resputil.Success(c, resp)
}

// markRead moves the read marker forward, never backwards.
func (mgr *TalkMgr) markRead(ctx context.Context, talkID, profileID, messageID uint) error {
	return mgr.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "talk_id"}, {Name: "profile_id"}},
		DoUpdates: clause.Set{
			{Column: clause.Column{Name: "last_message_id"},
				Value: gorm.Expr("GREATEST(message_reads.last_message_id, excluded.last_message_id)")},
			{Column: clause.Column{Name: "read_at"}, Value: gorm.Expr("excluded.read_at")},
		},
	}).Create(&model.MessageRead{
		TalkID:        talkID,
		ProfileID:     profileID,
		LastMessageID: messageID,
		ReadAt:        time.Now(),
	}).Error
}

// MarkRead godoc
// @Summary Mark a talk as read
// @Tags Talk
// @Produce json
// @Security Bearer
// @Param id path int true "talk id"
// @Success 200 {object} resputil.Response[string] "Success"
// @Router /v1/talks/{id}/read [put]
func (mgr *TalkMgr) MarkRead(c *gin.Context) {
	talk, a, ok := mgr.joinedTalk(c)
	if !ok {
		return
	}
	var lastID uint
	if err := mgr.db.WithContext(c).Model(&model.Message{}).Where("talk_id = ?", talk.ID).
		Select("COALESCE(MAX(id), 0)").Scan(&lastID).Error; err != nil {
		respondError(c, err)
		return
	}
	if lastID > 0 {
		if err := mgr.markRead(c, talk.ID, a.ProfileID, lastID); err != nil {
			respondError(c, err)
			return
		}
	}
	resputil.Success(c, "")
}
