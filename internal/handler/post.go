package handler

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/dao/query"
	"github.com/monkeybits/edilcloud-back-sub000/internal/payload"
	"github.com/monkeybits/edilcloud-back-sub000/internal/resputil"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/notify"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/permission"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewPostMgr, NewCommentMgr)
}

var errPostOwner = errors.New("posts belong to a project, a task or an activity")

// projectOfOwner resolves the project a post owner belongs to.
func projectOfOwner(ctx context.Context, db *gorm.DB, ownerType model.OwnerType, ownerID uint) (uint, error) {
	var projectID uint
	switch ownerType {
	case model.OwnerProject:
		var p model.Project
		if err := db.WithContext(ctx).Select("id").First(&p, ownerID).Error; err != nil {
			return 0, err
		}
		projectID = p.ID
	case model.OwnerTask:
		var t model.Task
		if err := db.WithContext(ctx).Select("id", "project_id").First(&t, ownerID).Error; err != nil {
			return 0, err
		}
		projectID = t.ProjectID
	case model.OwnerActivity:
		err := db.WithContext(ctx).Model(&model.Activity{}).
			Joins("JOIN tasks ON tasks.id = activities.task_id AND tasks.deleted_at IS NULL").
			Where("activities.id = ?", ownerID).
			Pluck("tasks.project_id", &projectID).Error
		if err != nil {
			return 0, err
		}
		if projectID == 0 {
			return 0, gorm.ErrRecordNotFound
		}
	default:
		return 0, badRequest(errPostOwner)
	}
	return projectID, nil
}

type PostMgr struct {
	name     string
	db       *gorm.DB
	notifier notify.Notifier
}

func NewPostMgr(conf *RegisterConfig) Manager {
	return &PostMgr{
		name:     "posts",
		db:       conf.DB,
		notifier: conf.Notifier,
	}
}

func (mgr *PostMgr) GetName() string { return mgr.name }

func (mgr *PostMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *PostMgr) RegisterProtected(g *gin.RouterGroup) {
	g.GET("", mgr.List)
	g.POST("", mgr.Create)
	g.GET("/alerts/project/:projectID", mgr.ListAlerts)
	g.GET("/:id", mgr.Get)
	g.PUT("/:id", mgr.Update)
	g.DELETE("/:id", mgr.Delete)
}

func (mgr *PostMgr) RegisterAdmin(_ *gin.RouterGroup) {}

type AuthorResp struct {
	ID        uint    `json:"id"`
	FirstName string  `json:"firstName"`
	LastName  string  `json:"lastName"`
	Photo     *string `json:"photo"`
	CompanyID uint    `json:"companyID"`
}

func toAuthorResp(p *model.Profile) AuthorResp {
	return AuthorResp{ID: p.ID, FirstName: p.FirstName, LastName: p.LastName, Photo: p.Photo, CompanyID: p.CompanyID}
}

type CommentResp struct {
	ID        uint       `json:"id"`
	PostID    uint       `json:"postID"`
	ParentID  *uint      `json:"parentID"`
	Author    AuthorResp `json:"author"`
	Text      string     `json:"text"`
	CreatedAt time.Time  `json:"createdAt"`
}

func toCommentResp(cm *model.Comment) CommentResp {
	return CommentResp{
		ID:        cm.ID,
		PostID:    cm.PostID,
		ParentID:  cm.ParentID,
		Author:    toAuthorResp(&cm.Author),
		Text:      cm.Text,
		CreatedAt: cm.CreatedAt,
	}
}

type PostResp struct {
	ID        uint            `json:"id"`
	OwnerType model.OwnerType `json:"ownerType"`
	OwnerID   uint            `json:"ownerID"`
	ProjectID uint            `json:"projectID"`
	Author    AuthorResp      `json:"author"`
	Text      string          `json:"text"`
	Alert     bool            `json:"alert"`
	IsPublic  bool            `json:"isPublic"`
	CreatedAt time.Time       `json:"createdAt"`
	Comments  []CommentResp   `json:"comments,omitempty"`
}

func toPostResp(p *model.Post) PostResp {
	return PostResp{
		ID:        p.ID,
		OwnerType: p.OwnerType,
		OwnerID:   p.OwnerID,
		ProjectID: p.ProjectID,
		Author:    toAuthorResp(&p.Author),
		Text:      p.Text,
		Alert:     p.Alert,
		IsPublic:  p.IsPublic,
		CreatedAt: p.CreatedAt,
		Comments:  lo.Map(p.Comments, func(cm model.Comment, _ int) CommentResp { return toCommentResp(&cm) }),
	}
}

type ListPostsReq struct {
	PageIndex *int            `form:"page_index" binding:"required,min=0"`
	PageSize  *int            `form:"page_size" binding:"required,min=1,max=200"`
	OwnerType model.OwnerType `form:"ownerType" binding:"required,oneof=projects tasks activities"`
	OwnerID   uint            `form:"ownerID" binding:"required"`
}

// List godoc
// @Summary Posts of a project, task or activity
// @Description Newest first
// @Tags Post
// @Produce json
// @Security Bearer
// @Param ownerType query string true "projects, tasks or activities"
// @Param ownerID query int true "owner id"
// @Param page_index query int true "page index"
// @Param page_size query int true "page size"
// @Success 200 {object} resputil.Response[payload.ListResp[PostResp]] "posts"
// @Router /v1/posts [get]
func (mgr *PostMgr) List(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	var req ListPostsReq
	if err := c.ShouldBindQuery(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	projectID, err := projectOfOwner(c, mgr.db, req.OwnerType, req.OwnerID)
	if err == nil {
		_, err = viewProject(c, mgr.db, a, projectID)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	tx := mgr.db.WithContext(c).Model(&model.Post{}).Scopes(query.OwnedBy(req.OwnerType, req.OwnerID))
	var count int64
	if err := tx.Count(&count).Error; err != nil {
		respondError(c, err)
		return
	}
	var posts []model.Post
	if err := tx.Preload("Author").Preload("Comments", func(db *gorm.DB) *gorm.DB {
		return db.Order("comments.created_at")
	}).Preload("Comments.Author").
		Scopes(query.Paginate(*req.PageIndex, *req.PageSize)).
		Order("created_at DESC, id DESC").
		Find(&posts).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, payload.ListResp[PostResp]{
		Rows:  lo.Map(posts, func(p model.Post, _ int) PostResp { return toPostResp(&p) }),
		Count: count,
	})
}

// ListAlerts godoc
// @Summary Alert posts of a project
// @Description Alert posts of the project and of its tasks and activities, newest first
// @Tags Post
// @Produce json
// @Security Bearer
// @Param projectID path int true "project id"
// @Success 200 {object} resputil.Response[[]PostResp] "posts"
// @Router /v1/posts/alerts/project/{projectID} [get]
func (mgr *PostMgr) ListAlerts(c *gin.Context) {
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
	var posts []model.Post
	if err := mgr.db.WithContext(c).Preload("Author").
		Where("project_id = ? AND alert = ?", projectID, true).
		Order("created_at DESC, id DESC").
		Find(&posts).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, lo.Map(posts, func(p model.Post, _ int) PostResp { return toPostResp(&p) }))
}

type CreatePostReq struct {
	OwnerType model.OwnerType `json:"ownerType" binding:"required,oneof=projects tasks activities"`
	OwnerID   uint            `json:"ownerID" binding:"required"`
	Text      string          `json:"text" binding:"required"`
	Alert     bool            `json:"alert"`
	IsPublic  *bool           `json:"isPublic"`
}

// Create godoc
// @Summary Publish a post
// @Description The project team is notified
// @Tags Post
// @Accept json
// @Produce json
// @Security Bearer
// @Param data body CreatePostReq true "post"
// @Success 200 {object} resputil.Response[PostResp] "post"
// @Router /v1/posts [post]
func (mgr *PostMgr) Create(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	var req CreatePostReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	projectID, err := projectOfOwner(c, mgr.db, req.OwnerType, req.OwnerID)
	if err == nil {
		_, err = viewProject(c, mgr.db, a, projectID)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	post := model.Post{
		OwnerType: req.OwnerType,
		OwnerID:   req.OwnerID,
		ProjectID: projectID,
		AuthorID:  a.ProfileID,
		Text:      req.Text,
		Alert:     req.Alert,
		IsPublic:  lo.FromPtrOr(req.IsPublic, true),
	}
	if err := mgr.db.WithContext(c).Create(&post).Error; err != nil {
		respondError(c, err)
		return
	}
	if err := mgr.db.WithContext(c).First(&post.Author, a.ProfileID).Error; err != nil {
		respondError(c, err)
		return
	}

	team, err := notify.ProjectTeam(c, mgr.db, projectID)
	if err != nil {
		respondError(c, err)
		return
	}
	notify.Safe(c, mgr.notifier, notify.Event{
		Kind:       notify.KindPostCreated,
		SenderID:   &a.ProfileID,
		Subject:    fmt.Sprintf("%s %s published a new post", post.Author.FirstName, post.Author.LastName),
		Body:       post.Text,
		OwnerType:  model.OwnerPost,
		OwnerID:    post.ID,
		Payload:    gin.H{"projectID": projectID, "ownerType": post.OwnerType, "ownerID": post.OwnerID, "alert": post.Alert},
		Recipients: team,
	})
	resputil.Success(c, toPostResp(&post))
}

// loadPost loads the post of the path with its author. The actor must see the project.
func (mgr *PostMgr) loadPost(c *gin.Context) (*model.Post, permission.Actor, bool) {
	a, ok := actorOf(c)
	if !ok {
		return nil, a, false
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return nil, a, false
	}
	var post model.Post
	if err := mgr.db.WithContext(c).Preload("Author").First(&post, id).Error; err != nil {
		respondError(c, err)
		return nil, a, false
	}
	if _, err := viewProject(c, mgr.db, a, post.ProjectID); err != nil {
		respondError(c, err)
		return nil, a, false
	}
	return &post, a, true
}

// Get godoc
// @Summary Get a post with its comments
// @Tags Post
// @Produce json
// @Security Bearer
// @Param id path int true "post id"
// @Success 200 {object} resputil.Response[PostResp] "post"
// @Router /v1/posts/{id} [get]
func (mgr *PostMgr) Get(c *gin.Context) {
	post, _, ok := mgr.loadPost(c)
	if !ok {
		return
	}
	if err := mgr.db.WithContext(c).Preload("Author").Where("post_id = ?", post.ID).
		Order("created_at").Find(&post.Comments).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, toPostResp(post))
}

type UpdatePostReq struct {
	Text     string `json:"text" binding:"required"`
	Alert    bool   `json:"alert"`
	IsPublic *bool  `json:"isPublic"`
}

// Update godoc
// @Summary Edit a post
// @Description The author, or an owner or delegate of the author's company
// @Tags Post
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "post id"
// @Param data body UpdatePostReq true "post"
// @Success 200 {object} resputil.Response[PostResp] "post"
// @Router /v1/posts/{id} [put]
func (mgr *PostMgr) Update(c *gin.Context) {
	post, a, ok := mgr.loadPost(c)
	if !ok {
		return
	}
	var req UpdatePostReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	if err := permission.CanEditOwnContent(a, post.AuthorID, post.Author.CompanyID); err != nil {
		respondError(c, err)
		return
	}
	post.Text = req.Text
	post.Alert = req.Alert
	post.IsPublic = lo.FromPtrOr(req.IsPublic, post.IsPublic)
	if err := mgr.db.WithContext(c).Model(&model.Post{}).Where("id = ?", post.ID).
		Updates(map[string]any{"text": post.Text, "alert": post.Alert, "is_public": post.IsPublic}).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, toPostResp(post))
}

// Delete godoc
// @Summary Delete a post and its comments
// @Tags Post
// @Produce json
// @Security Bearer
// @Param id path int true "post id"
// @Success 200 {object} resputil.Response[string] "Success"
// @Router /v1/posts/{id} [delete]
func (mgr *PostMgr) Delete(c *gin.Context) {
	post, a, ok := mgr.loadPost(c)
	if !ok {
		return
	}
	if err := permission.CanEditOwnContent(a, post.AuthorID, post.Author.CompanyID); err != nil {
		respondError(c, err)
		return
	}
	err := mgr.db.WithContext(c).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("post_id = ?", post.ID).Delete(&model.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Post{}, post.ID).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, "")
}

type CommentMgr struct {
	name     string
	db       *gorm.DB
	notifier notify.Notifier
}

func NewCommentMgr(conf *RegisterConfig) Manager {
	return &CommentMgr{
		name:     "comments",
		db:       conf.DB,
		notifier: conf.Notifier,
	}
}

func (mgr *CommentMgr) GetName() string { return mgr.name }

func (mgr *CommentMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *CommentMgr) RegisterProtected(g *gin.RouterGroup) {
	g.GET("/post/:postID", mgr.List)
	g.POST("/post/:postID", mgr.Create)
	g.PUT("/:id", mgr.Update)
	g.DELETE("/:id", mgr.Delete)
}

func (mgr *CommentMgr) RegisterAdmin(_ *gin.RouterGroup) {}

// visiblePost loads a post whose project the actor may see.
func (mgr *CommentMgr) visiblePost(c *gin.Context, a permission.Actor, postID uint) (*model.Post, error) {
	var post model.Post
	if err := mgr.db.WithContext(c).First(&post, postID).Error; err != nil {
		return nil, err
	}
	if _, err := viewProject(c, mgr.db, a, post.ProjectID); err != nil {
		return nil, err
	}
	return &post, nil
}

// List godoc
// @Summary Comments of a post
// @Description Oldest first; answers carry the parent comment id
// @Tags Comment
// @Produce json
// @Security Bearer
// @Param postID path int true "post id"
// @Success 200 {object} resputil.Response[[]CommentResp] "comments"
// @Router /v1/comments/post/{postID} [get]
func (mgr *CommentMgr) List(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	postID, ok := uintParam(c, "postID")
	if !ok {
		return
	}
	if _, err := mgr.visiblePost(c, a, postID); err != nil {
		respondError(c, err)
		return
	}
	var comments []model.Comment
	if err := mgr.db.WithContext(c).Preload("Author").Where("post_id = ?", postID).
		Order("created_at, id").Find(&comments).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, lo.Map(comments, func(cm model.Comment, _ int) CommentResp { return toCommentResp(&cm) }))
}

type CommentReq struct {
	Text     string `json:"text" binding:"required"`
	ParentID *uint  `json:"parentID"`
}

// Create godoc
// @Summary Comment a post
// @Description The post author and the author of the answered comment are notified
// @Tags Comment
// @Accept json
// @Produce json
// @Security Bearer
// @Param postID path int true "post id"
// @Param data body CommentReq true "comment"
// @Success 200 {object} resputil.Response[CommentResp] "comment"
// @Router /v1/comments/post/{postID} [post]
func (mgr *CommentMgr) Create(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	postID, ok := uintParam(c, "postID")
	if !ok {
		return
	}
	var req CommentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	post, err := mgr.visiblePost(c, a, postID)
	if err != nil {
		respondError(c, err)
		return
	}
	recipients := []uint{post.AuthorID}
	if req.ParentID != nil {
		var parent model.Comment
		if err := mgr.db.WithContext(c).Where("post_id = ?", postID).First(&parent, *req.ParentID).Error; err != nil {
			respondError(c, err)
			return
		}
		recipients = append(recipients, parent.AuthorID)
	}

	comment := model.Comment{PostID: postID, ParentID: req.ParentID, AuthorID: a.ProfileID, Text: req.Text}
	if err := mgr.db.WithContext(c).Create(&comment).Error; err != nil {
		respondError(c, err)
		return
	}
	if err := mgr.db.WithContext(c).First(&comment.Author, a.ProfileID).Error; err != nil {
		respondError(c, err)
		return
	}
	notify.Safe(c, mgr.notifier, notify.Event{
		Kind:       notify.KindCommentCreated,
		SenderID:   &a.ProfileID,
		Subject:    fmt.Sprintf("%s %s commented a post", comment.Author.FirstName, comment.Author.LastName),
		Body:       comment.Text,
		OwnerType:  model.OwnerPost,
		OwnerID:    post.ID,
		Payload:    gin.H{"projectID": post.ProjectID, "postID": post.ID, "commentID": comment.ID},
		Recipients: recipients,
	})
	resputil.Success(c, toCommentResp(&comment))
}

func (mgr *CommentMgr) loadOwnComment(c *gin.Context) (*model.Comment, bool) {
	a, ok := actorOf(c)
	if !ok {
		return nil, false
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return nil, false
	}
	var comment model.Comment
	if err := mgr.db.WithContext(c).Preload("Author").First(&comment, id).Error; err != nil {
		respondError(c, err)
		return nil, false
	}
	if err := permission.CanEditOwnContent(a, comment.AuthorID, comment.Author.CompanyID); err != nil {
		respondError(c, err)
		return nil, false
	}
	return &comment, true
}

type UpdateCommentReq struct {
	Text string `json:"text" binding:"required"`
}

// Update godoc
// @Summary Edit a comment
// @Tags Comment
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "comment id"
// @Param data body UpdateCommentReq true "comment"
// @Success 200 {object} resputil.Response[CommentResp] "comment"
// @Router /v1/comments/{id} [put]
func (mgr *CommentMgr) Update(c *gin.Context) {
	var req UpdateCommentReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	comment, ok := mgr.loadOwnComment(c)
	if !ok {
		return
	}
	comment.Text = req.Text
	if err := mgr.db.WithContext(c).Model(&model.Comment{}).Where("id = ?", comment.ID).
		Update("text", req.Text).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, toCommentResp(comment))
}

// Delete godoc
// @Summary Delete a comment
// @Description Answers to the comment are deleted too
// @Tags Comment
// @Produce json
// @Security Bearer
// @Param id path int true "comment id"
// @Success 200 {object} resputil.Response[string] "Success"
// @Router /v1/comments/{id} [delete]
func (mgr *CommentMgr) Delete(c *gin.Context) {
	comment, ok := mgr.loadOwnComment(c)
	if !ok {
		return
	}
	err := mgr.db.WithContext(c).Transaction(func(tx *gorm.DB) error {
		if err := tx.Where("parent_id = ?", comment.ID).Delete(&model.Comment{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Comment{}, comment.ID).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, "")
}
