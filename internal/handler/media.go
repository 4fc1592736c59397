package handler

import (
	"context"
	"errors"
	"mime/multipart"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/dao/query"
	"github.com/monkeybits/edilcloud-back-sub000/internal/payload"
	"github.com/monkeybits/edilcloud-back-sub000/internal/resputil"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/logutils"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/mediapath"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/permission"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/storage"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewFolderMgr, NewMediaMgr)
}

var (
	errMediaOwner   = errors.New("files belong to a company or a project")
	errFolderOwner  = errors.New("folder belongs to another owner")
	errFolderExists = errors.New("a folder with this name already exists here")
)

// ownerAccess checks that the actor may read, or with write set change, the files of an owner.
// Company files are shared by the company profiles, project files by the project team.
func ownerAccess(c *gin.Context, db *gorm.DB, a permission.Actor, ownerType model.OwnerType, ownerID uint, write bool) error {
	switch ownerType {
	case model.OwnerCompany:
		if write {
			return permission.CanEditCompany(a, ownerID)
		}
		if a.CompanyID != ownerID {
			return permission.ErrOtherCompany
		}
		return nil
	case model.OwnerProject:
		pa, err := loadProjectAccess(c, db, a, ownerID)
		if err != nil {
			return err
		}
		if write {
			return permission.CanEditTasks(a, pa.Project, pa.Member)
		}
		return permission.CanViewProject(a, pa.Project, pa.Member)
	default:
		return badRequest(errMediaOwner)
	}
}

// folderOf loads a folder of the given owner; nil id means the owner root.
func folderOf(ctx context.Context, db *gorm.DB, ownerType model.OwnerType, ownerID uint, id *uint) (*model.Folder, error) {
	if id == nil {
		return nil, nil
	}
	var f model.Folder
	if err := db.WithContext(ctx).First(&f, *id).Error; err != nil {
		return nil, err
	}
	if f.OwnerType != ownerType || f.OwnerID != ownerID {
		return nil, badRequest(errFolderOwner)
	}
	return &f, nil
}

func folderPath(f *model.Folder) string {
	if f == nil {
		return ""
	}
	return f.Path
}

// subtreeScope selects a folder and all its descendants.
func subtreeScope(f *model.Folder) func(db *gorm.DB) *gorm.DB {
	return func(db *gorm.DB) *gorm.DB {
		return db.Scopes(query.OwnedBy(f.OwnerType, f.OwnerID)).
			Where("(path = ? OR path LIKE ?)", f.Path, escapeLike(f.Path)+"/%")
	}
}

func escapeLike(s string) string {
	return strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`).Replace(s)
}

type FolderMgr struct {
	name  string
	db    *gorm.DB
	store storage.ObjectStore
}

func NewFolderMgr(conf *RegisterConfig) Manager {
	return &FolderMgr{
		name:  "folders",
		db:    conf.DB,
		store: conf.Store,
	}
}

func (mgr *FolderMgr) GetName() string { return mgr.name }

func (mgr *FolderMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *FolderMgr) RegisterProtected(g *gin.RouterGroup) {
	g.GET("", mgr.List)
	g.POST("", mgr.Create)
	g.PUT("/:id/rename", mgr.Rename)
	g.PUT("/:id/move", mgr.Move)
	g.DELETE("/:id", mgr.Delete)
}

func (mgr *FolderMgr) RegisterAdmin(_ *gin.RouterGroup) {}

type FolderResp struct {
	ID        uint            `json:"id"`
	OwnerType model.OwnerType `json:"ownerType"`
	OwnerID   uint            `json:"ownerID"`
	Name      string          `json:"name"`
	Path      string          `json:"path"`
	ParentID  *uint           `json:"parentID"`
	IsPublic  bool            `json:"isPublic"`
}

func toFolderResp(f *model.Folder) FolderResp {
	return FolderResp{
		ID:        f.ID,
		OwnerType: f.OwnerType,
		OwnerID:   f.OwnerID,
		Name:      f.Name,
		Path:      f.Path,
		ParentID:  f.ParentID,
		IsPublic:  f.IsPublic,
	}
}

type OwnerReq struct {
	OwnerType model.OwnerType `form:"ownerType" json:"ownerType" binding:"required,oneof=companies projects"`
	OwnerID   uint            `form:"ownerID" json:"ownerID" binding:"required"`
}

// List godoc
// @Summary Folders of a company or project
// @Description Ordered by path, so parents come before their children
// @Tags Folder
// @Produce json
// @Security Bearer
// @Param ownerType query string true "companies or projects"
// @Param ownerID query int true "owner id"
// @Success 200 {object} resputil.Response[[]FolderResp] "folders"
// @Router /v1/folders [get]
func (mgr *FolderMgr) List(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	var req OwnerReq
	if err := c.ShouldBindQuery(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	if err := ownerAccess(c, mgr.db, a, req.OwnerType, req.OwnerID, false); err != nil {
		respondError(c, err)
		return
	}
	var folders []model.Folder
	if err := mgr.db.WithContext(c).Scopes(query.OwnedBy(req.OwnerType, req.OwnerID)).
		Order("path").Find(&folders).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, lo.Map(folders, func(f model.Folder, _ int) FolderResp { return toFolderResp(&f) }))
}

type CreateFolderReq struct {
	OwnerReq
	Name     string `json:"name" binding:"required"`
	ParentID *uint  `json:"parentID"`
	IsPublic bool   `json:"isPublic"`
}

// Create godoc
// @Summary Create a folder
// @Description Folders nest at most three levels deep
// @Tags Folder
// @Accept json
// @Produce json
// @Security Bearer
// @Param data body CreateFolderReq true "folder"
// @Success 200 {object} resputil.Response[FolderResp] "folder"
// @Failure 409 {object} resputil.Response[any] "Name already used"
// @Failure 422 {object} resputil.Response[any] "Depth limit reached"
// @Router /v1/folders [post]
func (mgr *FolderMgr) Create(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	var req CreateFolderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	err := ownerAccess(c, mgr.db, a, req.OwnerType, req.OwnerID, true)
	var parent *model.Folder
	if err == nil {
		parent, err = folderOf(c, mgr.db, req.OwnerType, req.OwnerID, req.ParentID)
	}
	var p string
	if err == nil {
		p, err = mediapath.Join(folderPath(parent), req.Name)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	folder := model.Folder{
		OwnerType: req.OwnerType,
		OwnerID:   req.OwnerID,
		Name:      mediapath.Base(p),
		Path:      p,
		ParentID:  req.ParentID,
		IsPublic:  req.IsPublic,
	}
	if err := mgr.db.WithContext(c).Create(&folder).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			resputil.ConflictError(c, errFolderExists.Error())
			return
		}
		respondError(c, err)
		return
	}
	resputil.Success(c, toFolderResp(&folder))
}

// writableFolder loads the folder of the path when the actor may change its owner's files.
func (mgr *FolderMgr) writableFolder(c *gin.Context) (*model.Folder, permission.Actor, bool) {
	a, ok := actorOf(c)
	if !ok {
		return nil, a, false
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return nil, a, false
	}
	var folder model.Folder
	if err := mgr.db.WithContext(c).First(&folder, id).Error; err != nil {
		respondError(c, err)
		return nil, a, false
	}
	if err := ownerAccess(c, mgr.db, a, folder.OwnerType, folder.OwnerID, true); err != nil {
		respondError(c, err)
		return nil, a, false
	}
	return &folder, a, true
}

type RenameFolderReq struct {
	Name string `json:"name" binding:"required"`
}

// Rename godoc
// @Summary Rename a folder
// @Description Paths of sub folders and storage keys of contained files follow the new name
// @Tags Folder
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "folder id"
// @Param data body RenameFolderReq true "new name"
// @Success 200 {object} resputil.Response[FolderResp] "folder"
// @Router /v1/folders/{id}/rename [put]
func (mgr *FolderMgr) Rename(c *gin.Context) {
	folder, _, ok := mgr.writableFolder(c)
	if !ok {
		return
	}
	var req RenameFolderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	dst, err := mediapath.Rename(folder.Path, req.Name)
	if err != nil {
		respondError(c, err)
		return
	}
	mgr.relocate(c, folder, dst, folder.ParentID)
}

type MoveFolderReq struct {
	ParentID *uint `json:"parentID"` // nil moves the folder to the root
}

// Move godoc
// @Summary Move a folder
// @Description The whole sub tree moves; it must still fit in three levels
// @Tags Folder
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "folder id"
// @Param data body MoveFolderReq true "new parent"
// @Success 200 {object} resputil.Response[FolderResp] "folder"
// @Router /v1/folders/{id}/move [put]
func (mgr *FolderMgr) Move(c *gin.Context) {
	folder, _, ok := mgr.writableFolder(c)
	if !ok {
		return
	}
	var req MoveFolderReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	parent, err := folderOf(c, mgr.db, folder.OwnerType, folder.OwnerID, req.ParentID)
	if err != nil {
		respondError(c, err)
		return
	}
	var subtree []string
	if err := mgr.db.WithContext(c).Model(&model.Folder{}).Scopes(subtreeScope(folder)).
		Pluck("path", &subtree).Error; err != nil {
		respondError(c, err)
		return
	}
	dst, err := mediapath.CheckMove(folder.Path, folderPath(parent), subtree)
	if err != nil {
		respondError(c, err)
		return
	}
	mgr.relocate(c, folder, dst, req.ParentID)
}

// relocate gives folder the path dst below parentID, rebasing its descendants and the storage
// keys of every file inside. Objects are copied before the rows change and the old objects are
// removed once the rows are committed.
func (mgr *FolderMgr) relocate(c *gin.Context, folder *model.Folder, dst string, parentID *uint) {
	src := folder.Path
	if dst == src && lo.FromPtr(parentID) == lo.FromPtr(folder.ParentID) {
		resputil.Success(c, toFolderResp(folder))
		return
	}
	var taken int64
	if err := mgr.db.WithContext(c).Model(&model.Folder{}).
		Scopes(query.OwnedBy(folder.OwnerType, folder.OwnerID)).
		Where("path = ? AND id <> ?", dst, folder.ID).Count(&taken).Error; err != nil {
		respondError(c, err)
		return
	}
	if taken > 0 {
		resputil.ConflictError(c, errFolderExists.Error())
		return
	}

	var folders []model.Folder
	if err := mgr.db.WithContext(c).Scopes(subtreeScope(folder)).Find(&folders).Error; err != nil {
		respondError(c, err)
		return
	}
	newPaths := make(map[uint]string, len(folders))
	for _, f := range folders {
		p, _ := mediapath.Rebase(f.Path, src, dst)
		newPaths[f.ID] = p
	}
	var files []model.Media
	if err := mgr.db.WithContext(c).Where("folder_id IN ?", lo.Keys(newPaths)).Find(&files).Error; err != nil {
		respondError(c, err)
		return
	}
	moves := make([]storage.Move, len(files))
	for i, m := range files {
		moves[i] = storage.Move{
			From: m.ObjectKey,
			To:   mediapath.RekeyObject(m.ObjectKey, m.OwnerType, m.OwnerID, m.Kind, newPaths[*m.FolderID], m.FileName),
		}
	}
	if err := storage.CopyAll(c, mgr.store, moves); err != nil {
		respondError(c, err)
		return
	}

	err := mgr.db.WithContext(c).Transaction(func(tx *gorm.DB) error {
		for _, f := range folders {
			updates := map[string]any{"path": newPaths[f.ID], "name": mediapath.Base(newPaths[f.ID])}
			if f.ID == folder.ID {
				updates["parent_id"] = parentID
			}
			if err := tx.Model(&model.Folder{}).Where("id = ?", f.ID).Updates(updates).Error; err != nil {
				return err
			}
		}
		for i := range files {
			if err := tx.Model(&model.Media{}).Where("id = ?", files[i].ID).
				Update("object_key", moves[i].To).Error; err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		storage.RemoveAll(c, mgr.store, lo.Map(moves, func(m storage.Move, _ int) string { return m.To }))
		respondError(c, err)
		return
	}
	storage.RemoveAll(c, mgr.store, storage.Sources(moves))
	folder.Path = dst
	folder.Name = mediapath.Base(dst)
	folder.ParentID = parentID
	resputil.Success(c, toFolderResp(folder))
}

// Delete godoc
// @Summary Delete a folder
// @Description Sub folders and contained files are deleted too
// @Tags Folder
// @Produce json
// @Security Bearer
// @Param id path int true "folder id"
// @Success 200 {object} resputil.Response[string] "Success"
// @Router /v1/folders/{id} [delete]
func (mgr *FolderMgr) Delete(c *gin.Context) {
	folder, _, ok := mgr.writableFolder(c)
	if !ok {
		return
	}
	var ids []uint
	if err := mgr.db.WithContext(c).Model(&model.Folder{}).Scopes(subtreeScope(folder)).
		Pluck("id", &ids).Error; err != nil {
		respondError(c, err)
		return
	}
	var files []model.Media
	if err := mgr.db.WithContext(c).Where("folder_id IN ?", ids).Find(&files).Error; err != nil {
		respondError(c, err)
		return
	}
	err := mgr.db.WithContext(c).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("folder_id IN ?", ids).Delete(&model.Media{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Where("id IN ?", ids).Delete(&model.Folder{}).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}
	storage.RemoveAll(c, mgr.store, lo.Map(files, func(m model.Media, _ int) string { return m.ObjectKey }))
	resputil.Success(c, "")
}

type MediaMgr struct {
	name  string
	db    *gorm.DB
	store storage.ObjectStore
}

func NewMediaMgr(conf *RegisterConfig) Manager {
	return &MediaMgr{
		name:  "media",
		db:    conf.DB,
		store: conf.Store,
	}
}

func (mgr *MediaMgr) GetName() string { return mgr.name }

func (mgr *MediaMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *MediaMgr) RegisterProtected(g *gin.RouterGroup) {
	g.GET("", mgr.List)
	g.POST("", mgr.Upload)
	g.GET("/:id", mgr.Get)
	g.GET("/:id/download", mgr.Download)
	g.PUT("/:id", mgr.Update)
	g.DELETE("/:id", mgr.Delete)
}

func (mgr *MediaMgr) RegisterAdmin(_ *gin.RouterGroup) {}

type MediaResp struct {
	ID          uint            `json:"id"`
	OwnerType   model.OwnerType `json:"ownerType"`
	OwnerID     uint            `json:"ownerID"`
	Kind        model.MediaKind `json:"kind"`
	FolderID    *uint           `json:"folderID"`
	Title       string          `json:"title"`
	Description *string         `json:"description"`
	FileName    string          `json:"fileName"`
	Size        int64           `json:"size"`
	Extension   string          `json:"extension"`
	ContentType string          `json:"contentType"`
	IsPublic    bool            `json:"isPublic"`
	CreatorID   uint            `json:"creatorID"`
	CreatedAt   time.Time       `json:"createdAt"`
}

func toMediaResp(m *model.Media) MediaResp {
	return MediaResp{
		ID:          m.ID,
		OwnerType:   m.OwnerType,
		OwnerID:     m.OwnerID,
		Kind:        m.Kind,
		FolderID:    m.FolderID,
		Title:       m.Title,
		Description: m.Description,
		FileName:    m.FileName,
		Size:        m.Size,
		Extension:   m.Extension,
		ContentType: m.ContentType,
		IsPublic:    m.IsPublic,
		CreatorID:   m.CreatorID,
		CreatedAt:   m.CreatedAt,
	}
}

type ListMediaReq struct {
	PageIndex *int            `form:"page_index" binding:"required,min=0"`
	PageSize  *int            `form:"page_size" binding:"required,min=1,max=200"`
	OwnerType model.OwnerType `form:"ownerType" binding:"required,oneof=companies projects"`
	OwnerID   uint            `form:"ownerID" binding:"required"`
	FolderID  *uint           `form:"folderID"` // absent lists the root
	Kind      model.MediaKind `form:"kind" binding:"omitempty,oneof=document photo video"`
	All       bool            `form:"all"` // every folder
}

// List godoc
// @Summary Files of a company or project
// @Tags Media
// @Produce json
// @Security Bearer
// @Param ownerType query string true "companies or projects"
// @Param ownerID query int true "owner id"
// @Param folderID query int false "folder, root when absent"
// @Param kind query string false "document, photo or video"
// @Param all query bool false "files of every folder"
// @Param page_index query int true "page index"
// @Param page_size query int true "page size"
// @Success 200 {object} resputil.Response[payload.ListResp[MediaResp]] "files"
// @Router /v1/media [get]
func (mgr *MediaMgr) List(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	var req ListMediaReq
	if err := c.ShouldBindQuery(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	if err := ownerAccess(c, mgr.db, a, req.OwnerType, req.OwnerID, false); err != nil {
		respondError(c, err)
		return
	}
	tx := mgr.db.WithContext(c).Model(&model.Media{}).Scopes(query.OwnedBy(req.OwnerType, req.OwnerID))
	switch {
	case req.All:
	case req.FolderID != nil:
		tx = tx.Where("folder_id = ?", *req.FolderID)
	default:
		tx = tx.Where("folder_id IS NULL")
	}
	if req.Kind != "" {
		tx = tx.Where("kind = ?", req.Kind)
	}
	var count int64
	if err := tx.Count(&count).Error; err != nil {
		respondError(c, err)
		return
	}
	var files []model.Media
	if err := tx.Scopes(query.Paginate(*req.PageIndex, *req.PageSize)).
		Order("created_at DESC, id DESC").Find(&files).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, payload.ListResp[MediaResp]{
		Rows:  lo.Map(files, func(m model.Media, _ int) MediaResp { return toMediaResp(&m) }),
		Count: count,
	})
}

type UploadReq struct {
	OwnerType   model.OwnerType       `form:"ownerType" binding:"required,oneof=companies projects"`
	OwnerID     uint                  `form:"ownerID" binding:"required"`
	FolderID    *uint                 `form:"folderID"`
	Kind        model.MediaKind       `form:"kind" binding:"omitempty,oneof=document photo video"`
	Title       string                `form:"title" binding:"max=256"`
	Description *string               `form:"description"`
	IsPublic    bool                  `form:"isPublic"`
	File        *multipart.FileHeader `form:"file" binding:"required"`
}

// Upload godoc
// @Summary Upload a file
// @Description The kind is inferred from the extension when not given
// @Tags Media
// @Accept mpfd
// @Produce json
// @Security Bearer
// @Param ownerType formData string true "companies or projects"
// @Param ownerID formData int true "owner id"
// @Param folderID formData int false "folder"
// @Param kind formData string false "document, photo or video"
// @Param title formData string false "title, the file name when empty"
// @Param file formData file true "content"
// @Success 200 {object} resputil.Response[MediaResp] "file"
// @Router /v1/media [post]
func (mgr *MediaMgr) Upload(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	var req UploadReq
	if err := c.ShouldBind(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	err := ownerAccess(c, mgr.db, a, req.OwnerType, req.OwnerID, true)
	var folder *model.Folder
	if err == nil {
		folder, err = folderOf(c, mgr.db, req.OwnerType, req.OwnerID, req.FolderID)
	}
	if err != nil {
		respondError(c, err)
		return
	}

	fileName := mediapath.SanitizeFileName(req.File.Filename)
	kind := lo.Ternary(req.Kind == "", mediapath.KindOf(fileName), req.Kind)
	contentType := req.File.Header.Get("Content-Type")
	media := model.Media{
		OwnerType:   req.OwnerType,
		OwnerID:     req.OwnerID,
		Kind:        kind,
		FolderID:    req.FolderID,
		Title:       lo.Ternary(req.Title == "", fileName, req.Title),
		Description: req.Description,
		FileName:    fileName,
		ObjectKey:   mediapath.ObjectKey(req.OwnerType, req.OwnerID, kind, folderPath(folder), fileName),
		Size:        req.File.Size,
		Extension:   mediapath.Extension(fileName),
		ContentType: contentType,
		IsPublic:    req.IsPublic,
		CreatorID:   a.ProfileID,
	}

	src, err := req.File.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer src.Close()
	if err := mgr.store.Put(c, media.ObjectKey, src, media.Size, contentType); err != nil {
		respondError(c, err)
		return
	}
	if err := mgr.db.WithContext(c).Omit("Folder").Create(&media).Error; err != nil {
		if rmErr := mgr.store.Remove(c, media.ObjectKey); rmErr != nil {
			logutils.Log.Warnf("remove orphan object %s: %v", media.ObjectKey, rmErr)
		}
		respondError(c, err)
		return
	}
	resputil.Success(c, toMediaResp(&media))
}

// readableMedia loads the file of the path when the actor may see it, or change it with write.
func (mgr *MediaMgr) readableMedia(c *gin.Context, write bool) (*model.Media, bool) {
	a, ok := actorOf(c)
	if !ok {
		return nil, false
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return nil, false
	}
	var media model.Media
	if err := mgr.db.WithContext(c).Preload("Folder").First(&media, id).Error; err != nil {
		respondError(c, err)
		return nil, false
	}
	if err := ownerAccess(c, mgr.db, a, media.OwnerType, media.OwnerID, write); err != nil {
		respondError(c, err)
		return nil, false
	}
	return &media, true
}

// Get godoc
// @Summary File metadata
// @Tags Media
// @Produce json
// @Security Bearer
// @Param id path int true "media id"
// @Success 200 {object} resputil.Response[MediaResp] "file"
// @Router /v1/media/{id} [get]
func (mgr *MediaMgr) Get(c *gin.Context) {
	media, ok := mgr.readableMedia(c, false)
	if !ok {
		return
	}
	resputil.Success(c, toMediaResp(media))
}

type DownloadResp struct {
	URL string `json:"url"`
}

// Download godoc
// @Summary Temporary download link of a file
// @Tags Media
// @Produce json
// @Security Bearer
// @Param id path int true "media id"
// @Success 200 {object} resputil.Response[DownloadResp] "presigned url"
// @Router /v1/media/{id}/download [get]
func (mgr *MediaMgr) Download(c *gin.Context) {
	media, ok := mgr.readableMedia(c, false)
	if !ok {
		return
	}
	url, err := mgr.store.PresignedURL(c, media.ObjectKey, media.FileName)
	if err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, DownloadResp{URL: url})
}

type UpdateMediaReq struct {
	Title       string  `json:"title" binding:"required,max=256"`
	Description *string `json:"description"`
	FileName    string  `json:"fileName"`
	FolderID    *uint   `json:"folderID"` // nil moves the file to the root
	IsPublic    bool    `json:"isPublic"`
}

// Update godoc
// @Summary Edit, rename or move a file
// @Description A new file name or folder rewrites the storage key with a server side copy
// @Tags Media
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "media id"
// @Param data body UpdateMediaReq true "file"
// @Success 200 {object} resputil.Response[MediaResp] "file"
// @Router /v1/media/{id} [put]
func (mgr *MediaMgr) Update(c *gin.Context) {
	media, ok := mgr.readableMedia(c, true)
	if !ok {
		return
	}
	var req UpdateMediaReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	folder, err := folderOf(c, mgr.db, media.OwnerType, media.OwnerID, req.FolderID)
	if err != nil {
		respondError(c, err)
		return
	}
	fileName := media.FileName
	if req.FileName != "" {
		fileName = mediapath.SanitizeFileName(req.FileName)
	}

	oldKey := media.ObjectKey
	newKey := mediapath.RekeyObject(oldKey, media.OwnerType, media.OwnerID, media.Kind, folderPath(folder), fileName)
	if newKey != oldKey {
		if err := mgr.store.Copy(c, oldKey, newKey); err != nil {
			respondError(c, err)
			return
		}
	}
	media.Title = req.Title
	media.Description = req.Description
	media.FileName = fileName
	media.Extension = mediapath.Extension(fileName)
	media.FolderID = req.FolderID
	media.Folder = nil
	media.ObjectKey = newKey
	media.IsPublic = req.IsPublic
	if err := mgr.db.WithContext(c).Model(&model.Media{}).Where("id = ?", media.ID).Updates(map[string]any{
		"title":       media.Title,
		"description": media.Description,
		"file_name":   media.FileName,
		"extension":   media.Extension,
		"folder_id":   media.FolderID,
		"object_key":  media.ObjectKey,
		"is_public":   media.IsPublic,
	}).Error; err != nil {
		if newKey != oldKey {
			if rmErr := mgr.store.Remove(c, newKey); rmErr != nil {
				logutils.Log.Warnf("remove object %s: %v", newKey, rmErr)
			}
		}
		respondError(c, err)
		return
	}
	if newKey != oldKey {
		if err := mgr.store.Remove(c, oldKey); err != nil {
			logutils.Log.Warnf("remove object %s: %v", oldKey, err)
		}
	}
	resputil.Success(c, toMediaResp(media))
}

// Delete godoc
// @Summary Delete a file
// @Tags Media
// @Produce json
// @Security Bearer
// @Param id path int true "media id"
// @Success 200 {object} resputil.Response[string] "Success"
// @Router /v1/media/{id} [delete]
func (mgr *MediaMgr) Delete(c *gin.Context) {
	media, ok := mgr.readableMedia(c, true)
	if !ok {
		return
	}
	if err := mgr.store.Remove(c, media.ObjectKey); err != nil {
		respondError(c, err)
		return
	}
	if err := mgr.db.WithContext(c).Unscoped().Delete(&model.Media{}, media.ID).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, "")
}
