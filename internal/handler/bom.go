package handler

import (
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"github.com/xuri/excelize/v2"
	"gorm.io/gorm"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/dao/query"
	"github.com/monkeybits/edilcloud-back-sub000/internal/payload"
	"github.com/monkeybits/edilcloud-back-sub000/internal/resputil"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/export"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/logutils"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/notify"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/permission"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/procurement"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewBomMgr)
}

var (
	errBomLocked     = errors.New("bill of materials was already sent, rows can no longer change")
	errNoSuppliers   = errors.New("choose at least one supplier company")
	errSelfRecipient = errors.New("a company cannot send a bill of materials to itself")
)

type BomMgr struct {
	name     string
	db       *gorm.DB
	notifier notify.Notifier
}

func NewBomMgr(conf *RegisterConfig) Manager {
	return &BomMgr{
		name:     "boms",
		db:       conf.DB,
		notifier: conf.Notifier,
	}
}

func (mgr *BomMgr) GetName() string { return mgr.name }

func (mgr *BomMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *BomMgr) RegisterProtected(g *gin.RouterGroup) {
	g.GET("", mgr.ListMine)
	g.POST("", mgr.Create)
	g.GET("/received", mgr.ListReceived)
	g.GET("/:id", mgr.Get)
	g.PUT("/:id", mgr.Update)
	g.PUT("/:id/rows", mgr.SetRows)
	g.POST("/:id/import", mgr.ImportRows)
	g.POST("/:id/send", mgr.Send)
	g.PUT("/:id/close", mgr.Close)
	g.GET("/:id/export", mgr.Export)
	g.GET("/:id/comparison", mgr.Comparison)
	g.GET("/:id/comparison/export", mgr.ExportComparison)
	g.DELETE("/:id", mgr.Delete)
}

func (mgr *BomMgr) RegisterAdmin(_ *gin.RouterGroup) {}

type BomRowReq struct {
	Name        string  `json:"name" binding:"required,max=128"`
	Description *string `json:"description"`
	Unit        string  `json:"unit" binding:"required,max=16"`
	Quantity    float64 `json:"quantity" binding:"gt=0"`
}

type BomRowResp struct {
	ID          uint    `json:"id"`
	Position    int     `json:"position"`
	Name        string  `json:"name"`
	Description *string `json:"description"`
	Unit        string  `json:"unit"`
	Quantity    float64 `json:"quantity"`
}

type BomResp struct {
	ID          uint            `json:"id"`
	CompanyID   uint            `json:"companyID"`
	CompanyName string          `json:"companyName"`
	ProjectID   *uint           `json:"projectID"`
	Title       string          `json:"title"`
	Description *string         `json:"description"`
	Deadline    *time.Time      `json:"deadline"`
	Status      model.BomStatus `json:"status"`
	CreatorID   uint            `json:"creatorID"`
	CreatedAt   time.Time       `json:"createdAt"`
	Rows        []BomRowResp    `json:"rows,omitempty"`
	Recipients  []uint          `json:"recipients,omitempty"`
}

func toBomResp(b *model.Bom) BomResp {
	return BomResp{
		ID:          b.ID,
		CompanyID:   b.CompanyID,
		CompanyName: b.Company.Name,
		ProjectID:   b.ProjectID,
		Title:       b.Title,
		Description: b.Description,
		Deadline:    b.Deadline,
		Status:      b.Status,
		CreatorID:   b.CreatorID,
		CreatedAt:   b.CreatedAt,
		Rows: lo.Map(b.Rows, func(r model.BomRow, _ int) BomRowResp {
			return BomRowResp{ID: r.ID, Position: r.Position, Name: r.Name, Description: r.Description, Unit: r.Unit, Quantity: r.Quantity}
		}),
		Recipients: lo.Map(b.Recipients, func(r model.BomRecipient, _ int) uint { return r.CompanyID }),
	}
}

func rowsOf(req []BomRowReq) []model.BomRow {
	return lo.Map(req, func(r BomRowReq, i int) model.BomRow {
		return model.BomRow{Position: i, Name: r.Name, Description: r.Description, Unit: r.Unit, Quantity: r.Quantity}
	})
}

type ListBomsReq struct {
	PageIndex *int            `form:"page_index" binding:"required,min=0"`
	PageSize  *int            `form:"page_size" binding:"required,min=1,max=200"`
	Status    model.BomStatus `form:"status" binding:"omitempty,oneof=1 2 3"`
	ProjectID *uint           `form:"projectID"`
}

func (mgr *BomMgr) list(c *gin.Context, tx *gorm.DB, req *ListBomsReq) {
	if req.Status != 0 {
		tx = tx.Where("boms.status = ?", req.Status)
	}
	if req.ProjectID != nil {
		tx = tx.Where("boms.project_id = ?", *req.ProjectID)
	}
	var count int64
	if err := tx.Count(&count).Error; err != nil {
		respondError(c, err)
		return
	}
	var boms []model.Bom
	if err := tx.Preload("Company").Scopes(query.Paginate(*req.PageIndex, *req.PageSize)).
		Order("boms.created_at DESC").Find(&boms).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, payload.ListResp[BomResp]{
		Rows:  lo.Map(boms, func(b model.Bom, _ int) BomResp { return toBomResp(&b) }),
		Count: count,
	})
}

// ListMine godoc
// @Summary Bills of materials of the acting company
// @Tags Bom
// @Produce json
// @Security Bearer
// @Param page_index query int true "page index"
// @Param page_size query int true "page size"
// @Param status query int false "1 draft, 2 sent, 3 closed"
// @Param projectID query int false "project"
// @Success 200 {object} resputil.Response[payload.ListResp[BomResp]] "boms"
// @Router /v1/boms [get]
func (mgr *BomMgr) ListMine(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	var req ListBomsReq
	if err := c.ShouldBindQuery(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	mgr.list(c, mgr.db.WithContext(c).Model(&model.Bom{}).Where("boms.company_id = ?", a.CompanyID), &req)
}

// ListReceived godoc
// @Summary Bills of materials sent to the acting company
// @Tags Bom
// @Produce json
// @Security Bearer
// @Param page_index query int true "page index"
// @Param page_size query int true "page size"
// @Param status query int false "2 sent, 3 closed"
// @Success 200 {object} resputil.Response[payload.ListResp[BomResp]] "boms"
// @Router /v1/boms/received [get]
func (mgr *BomMgr) ListReceived(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	var req ListBomsReq
	if err := c.ShouldBindQuery(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	tx := mgr.db.WithContext(c).Model(&model.Bom{}).
		Joins("JOIN bom_recipients ON bom_recipients.bom_id = boms.id AND bom_recipients.company_id = ?", a.CompanyID).
		Where("boms.status <> ?", model.BomDraft)
	mgr.list(c, tx, &req)
}

type BomReq struct {
	ProjectID   *uint       `json:"projectID"`
	Title       string      `json:"title" binding:"required,max=128"`
	Description *string     `json:"description"`
	Deadline    *time.Time  `json:"deadline"`
	Rows        []BomRowReq `json:"rows" binding:"dive"`
}

// Create godoc
// @Summary Create a bill of materials
// @Tags Bom
// @Accept json
// @Produce json
// @Security Bearer
// @Param data body BomReq true "bom"
// @Success 200 {object} resputil.Response[BomResp] "bom"
// @Router /v1/boms [post]
func (mgr *BomMgr) Create(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	var req BomReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	err := permission.CanEditCompany(a, a.CompanyID)
	if err == nil && req.ProjectID != nil {
		_, err = viewProject(c, mgr.db, a, *req.ProjectID)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	bom := model.Bom{
		CompanyID:   a.CompanyID,
		ProjectID:   req.ProjectID,
		Title:       req.Title,
		Description: req.Description,
		Deadline:    req.Deadline,
		Status:      model.BomDraft,
		CreatorID:   a.ProfileID,
		Rows:        rowsOf(req.Rows),
	}
	if err := mgr.db.WithContext(c).Omit("Company").Create(&bom).Error; err != nil {
		respondError(c, err)
		return
	}
	mgr.respondBom(c, bom.ID)
}

func (mgr *BomMgr) respondBom(c *gin.Context, id uint) {
	var bom model.Bom
	if err := mgr.db.WithContext(c).Preload("Company").
		Preload("Rows", func(db *gorm.DB) *gorm.DB { return db.Order("position, id") }).
		Preload("Recipients").
		First(&bom, id).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, toBomResp(&bom))
}

// loadBom loads the bom of the path with its rows. The actor's company owns it, or received it
// when received is set.
func (mgr *BomMgr) loadBom(c *gin.Context, received bool) (*model.Bom, permission.Actor, bool) {
	a, ok := actorOf(c)
	if !ok {
		return nil, a, false
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return nil, a, false
	}
	var bom model.Bom
	if err := mgr.db.WithContext(c).Preload("Company").
		Preload("Rows", func(db *gorm.DB) *gorm.DB { return db.Order("position, id") }).
		Preload("Recipients").
		First(&bom, id).Error; err != nil {
		respondError(c, err)
		return nil, a, false
	}
	if bom.CompanyID == a.CompanyID {
		return &bom, a, true
	}
	recipient := lo.ContainsBy(bom.Recipients, func(r model.BomRecipient) bool { return r.CompanyID == a.CompanyID })
	if received && recipient && bom.Status != model.BomDraft {
		return &bom, a, true
	}
	respondError(c, procurement.ErrNotRecipient)
	return nil, a, false
}

// editableBom loads a bom of the actor's company the actor may edit.
func (mgr *BomMgr) editableBom(c *gin.Context) (*model.Bom, permission.Actor, bool) {
	bom, a, ok := mgr.loadBom(c, false)
	if !ok {
		return nil, a, false
	}
	if err := permission.CanEditCompany(a, bom.CompanyID); err != nil {
		respondError(c, err)
		return nil, a, false
	}
	return bom, a, true
}

// Get godoc
// @Summary Get a bill of materials
// @Description Visible to the owning company and, once sent, to the recipients
// @Tags Bom
// @Produce json
// @Security Bearer
// @Param id path int true "bom id"
// @Success 200 {object} resputil.Response[BomResp] "bom"
// @Router /v1/boms/{id} [get]
func (mgr *BomMgr) Get(c *gin.Context) {
	bom, a, ok := mgr.loadBom(c, true)
	if !ok {
		return
	}
	resp := toBomResp(bom)
	if bom.CompanyID != a.CompanyID {
		// suppliers do not see each other
		resp.Recipients = nil
	}
	resputil.Success(c, resp)
}

type UpdateBomReq struct {
	Title       string     `json:"title" binding:"required,max=128"`
	Description *string    `json:"description"`
	Deadline    *time.Time `json:"deadline"`
}

// Update godoc
// @Summary Update a bill of materials
// @Tags Bom
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "bom id"
// @Param data body UpdateBomReq true "bom"
// @Success 200 {object} resputil.Response[BomResp] "bom"
// @Router /v1/boms/{id} [put]
func (mgr *BomMgr) Update(c *gin.Context) {
	bom, _, ok := mgr.editableBom(c)
	if !ok {
		return
	}
	var req UpdateBomReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	if bom.Status == model.BomClosed {
		respondError(c, procurement.ErrBomClosed)
		return
	}
	if err := mgr.db.WithContext(c).Model(&model.Bom{}).Where("id = ?", bom.ID).Updates(map[string]any{
		"title":       req.Title,
		"description": req.Description,
		"deadline":    req.Deadline,
	}).Error; err != nil {
		respondError(c, err)
		return
	}
	mgr.respondBom(c, bom.ID)
}

func (mgr *BomMgr) replaceRows(c *gin.Context, bom *model.Bom, rows []model.BomRow) {
	if bom.Status != model.BomDraft {
		resputil.ConflictError(c, errBomLocked.Error())
		return
	}
	err := mgr.db.WithContext(c).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("bom_id = ?", bom.ID).Delete(&model.BomRow{}).Error; err != nil {
			return err
		}
		if len(rows) == 0 {
			return nil
		}
		for i := range rows {
			rows[i].BomID = bom.ID
		}
		return tx.Create(&rows).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}
	mgr.respondBom(c, bom.ID)
}

type BomRowsReq struct {
	Rows []BomRowReq `json:"rows" binding:"dive"`
}

// SetRows godoc
// @Summary Replace the rows of a draft bill of materials
// @Tags Bom
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "bom id"
// @Param data body BomRowsReq true "rows in order"
// @Success 200 {object} resputil.Response[BomResp] "bom"
// @Router /v1/boms/{id}/rows [put]
func (mgr *BomMgr) SetRows(c *gin.Context) {
	bom, _, ok := mgr.editableBom(c)
	if !ok {
		return
	}
	var req BomRowsReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	mgr.replaceRows(c, bom, rowsOf(req.Rows))
}

// ImportRows godoc
// @Summary Replace the rows of a draft bill of materials from a spreadsheet
// @Description The sheet uses the export layout: #, name, description, unit, quantity
// @Tags Bom
// @Accept mpfd
// @Produce json
// @Security Bearer
// @Param id path int true "bom id"
// @Param file formData file true "xlsx workbook"
// @Success 200 {object} resputil.Response[BomResp] "bom"
// @Router /v1/boms/{id}/import [post]
func (mgr *BomMgr) ImportRows(c *gin.Context) {
	bom, _, ok := mgr.editableBom(c)
	if !ok {
		return
	}
	fh, err := c.FormFile("file")
	if err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	src, err := fh.Open()
	if err != nil {
		respondError(c, err)
		return
	}
	defer src.Close()
	f, err := excelize.OpenReader(src)
	if err != nil {
		resputil.BadRequestError(c, fmt.Sprintf("read workbook: %v", err))
		return
	}
	defer f.Close()
	rows, err := export.ParseBomRows(f)
	if err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	mgr.replaceRows(c, bom, rows)
}

type SendBomReq struct {
	CompanyIDs []uint `json:"companyIDs" binding:"required"`
}

// Send godoc
// @Summary Send a bill of materials to suppliers
// @Description A draft becomes sent; a sent bom may be sent to more suppliers. Every new
// @Description recipient's owners and delegates are notified.
// @Tags Bom
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "bom id"
// @Param data body SendBomReq true "supplier companies"
// @Success 200 {object} resputil.Response[BomResp] "bom"
// @Router /v1/boms/{id}/send [post]
func (mgr *BomMgr) Send(c *gin.Context) {
	bom, a, ok := mgr.editableBom(c)
	if !ok {
		return
	}
	var req SendBomReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	ids := lo.Uniq(req.CompanyIDs)
	switch {
	case bom.Status == model.BomClosed:
		respondError(c, procurement.ErrBomClosed)
		return
	case len(bom.Rows) == 0:
		respondError(c, procurement.ErrNoRows)
		return
	case len(ids) == 0:
		respondError(c, badRequest(errNoSuppliers))
		return
	case lo.Contains(ids, bom.CompanyID):
		respondError(c, badRequest(errSelfRecipient))
		return
	}
	var found int64
	if err := mgr.db.WithContext(c).Model(&model.Company{}).
		Where("id IN ? AND status = ?", ids, model.StatusActive).Count(&found).Error; err != nil {
		respondError(c, err)
		return
	}
	if int(found) != len(ids) {
		respondError(c, gorm.ErrRecordNotFound)
		return
	}

	already := lo.Map(bom.Recipients, func(r model.BomRecipient, _ int) uint { return r.CompanyID })
	added, _ := lo.Difference(ids, already)
	err := mgr.db.WithContext(c).Transaction(func(tx *gorm.DB) error {
		if len(added) > 0 {
			recipients := lo.Map(added, func(id uint, _ int) model.BomRecipient {
				return model.BomRecipient{BomID: bom.ID, CompanyID: id}
			})
			if err := tx.Omit("Company").Create(&recipients).Error; err != nil {
				return err
			}
		}
		return tx.Model(&model.Bom{}).Where("id = ?", bom.ID).Update("status", model.BomSent).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}

	for _, companyID := range added {
		managers, err := notify.CompanyManagers(c, mgr.db, companyID)
		if err != nil {
			logutils.Log.Error(err)
			continue
		}
		notify.Safe(c, mgr.notifier, notify.Event{
			Kind:       notify.KindBomSent,
			SenderID:   &a.ProfileID,
			Subject:    fmt.Sprintf("%s asks you a quotation for %s", bom.Company.Name, bom.Title),
			OwnerType:  model.OwnerBom,
			OwnerID:    bom.ID,
			Payload:    gin.H{"bomID": bom.ID, "companyID": bom.CompanyID},
			Recipients: managers,
		})
	}
	mgr.respondBom(c, bom.ID)
}

// Close godoc
// @Summary Close a bill of materials
// @Description No quotation can be created or submitted afterwards
// @Tags Bom
// @Produce json
// @Security Bearer
// @Param id path int true "bom id"
// @Success 200 {object} resputil.Response[BomResp] "bom"
// @Router /v1/boms/{id}/close [put]
func (mgr *BomMgr) Close(c *gin.Context) {
	bom, _, ok := mgr.editableBom(c)
	if !ok {
		return
	}
	if err := mgr.db.WithContext(c).Model(&model.Bom{}).Where("id = ?", bom.ID).
		Update("status", model.BomClosed).Error; err != nil {
		respondError(c, err)
		return
	}
	mgr.respondBom(c, bom.ID)
}

// writeWorkbook streams f as an attachment.
func writeWorkbook(c *gin.Context, f *excelize.File, name string) {
	defer f.Close()
	c.Header("Content-Disposition", fmt.Sprintf("attachment; filename*=UTF-8''%s", url.PathEscape(name)))
	c.Header("Content-Type", export.ContentType)
	c.Status(http.StatusOK)
	if err := f.Write(c.Writer); err != nil {
		logutils.Log.Errorf("write workbook %s: %v", name, err)
	}
}

// Export godoc
// @Summary Download a bill of materials as a spreadsheet
// @Tags Bom
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security Bearer
// @Param id path int true "bom id"
// @Success 200 {file} file "xlsx workbook"
// @Router /v1/boms/{id}/export [get]
func (mgr *BomMgr) Export(c *gin.Context) {
	bom, _, ok := mgr.loadBom(c, true)
	if !ok {
		return
	}
	f, name, err := export.Bom(bom)
	if err != nil {
		respondError(c, err)
		return
	}
	writeWorkbook(c, f, name)
}

func (mgr *BomMgr) compare(c *gin.Context) (*model.Bom, *procurement.Comparison, bool) {
	bom, _, ok := mgr.editableBom(c)
	if !ok {
		return nil, nil, false
	}
	var quotations []model.Quotation
	if err := mgr.db.WithContext(c).Preload("Company").Preload("Rows").
		Where("bom_id = ? AND status IN ?", bom.ID, []model.QuotationStatus{model.QuotationSubmitted, model.QuotationAccepted}).
		Find(&quotations).Error; err != nil {
		respondError(c, err)
		return nil, nil, false
	}
	cmp := procurement.Compare(bom.Rows, quotations)
	return bom, &cmp, true
}

// Comparison godoc
// @Summary Compare the quotations of a bill of materials
// @Description For each row the offers by unit price, best first, and the totals of each quotation
// @Tags Bom
// @Produce json
// @Security Bearer
// @Param id path int true "bom id"
// @Success 200 {object} resputil.Response[procurement.Comparison] "comparison"
// @Router /v1/boms/{id}/comparison [get]
func (mgr *BomMgr) Comparison(c *gin.Context) {
	_, cmp, ok := mgr.compare(c)
	if !ok {
		return
	}
	resputil.Success(c, cmp)
}

// ExportComparison godoc
// @Summary Download the quotation comparison as a spreadsheet
// @Tags Bom
// @Produce application/vnd.openxmlformats-officedocument.spreadsheetml.sheet
// @Security Bearer
// @Param id path int true "bom id"
// @Success 200 {file} file "xlsx workbook"
// @Router /v1/boms/{id}/comparison/export [get]
func (mgr *BomMgr) ExportComparison(c *gin.Context) {
	bom, cmp, ok := mgr.compare(c)
	if !ok {
		return
	}
	f, name, err := export.Comparison(bom, *cmp)
	if err != nil {
		respondError(c, err)
		return
	}
	writeWorkbook(c, f, name)
}

// Delete godoc
// @Summary Delete a bill of materials with its quotations
// @Tags Bom
// @Produce json
// @Security Bearer
// @Param id path int true "bom id"
// @Success 200 {object} resputil.Response[string] "Success"
// @Router /v1/boms/{id} [delete]
func (mgr *BomMgr) Delete(c *gin.Context) {
	bom, _, ok := mgr.editableBom(c)
	if !ok {
		return
	}
	err := mgr.db.WithContext(c).Transaction(func(tx *gorm.DB) error {
		quotations := tx.Model(&model.Quotation{}).Select("id").Where("bom_id = ?", bom.ID)
		if err := tx.Unscoped().Where("quotation_id IN (?)", quotations).Delete(&model.QuotationRow{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("bom_id = ?", bom.ID).Delete(&model.Quotation{}).Error; err != nil {
			return err
		}
		if err := tx.Where("bom_id = ?", bom.ID).Delete(&model.BomRecipient{}).Error; err != nil {
			return err
		}
		if err := tx.Unscoped().Where("bom_id = ?", bom.ID).Delete(&model.BomRow{}).Error; err != nil {
			return err
		}
		return tx.Delete(&model.Bom{}, bom.ID).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, "")
}
