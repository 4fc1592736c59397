package handler

import (
	"context"
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
	"github.com/monkeybits/edilcloud-back-sub000/pkg/procurement"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewQuotationMgr)
}

type QuotationMgr struct {
	name     string
	db       *gorm.DB
	notifier notify.Notifier
}

func NewQuotationMgr(conf *RegisterConfig) Manager {
	return &QuotationMgr{
		name:     "quotations",
		db:       conf.DB,
		notifier: conf.Notifier,
	}
}

func (mgr *QuotationMgr) GetName() string { return mgr.name }

func (mgr *QuotationMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *QuotationMgr) RegisterProtected(g *gin.RouterGroup) {
	g.GET("/bom/:bomID", mgr.ListOfBom)
	g.POST("/bom/:bomID", mgr.Create)
	g.GET("/:id", mgr.Get)
	g.PUT("/:id", mgr.Update)
	g.POST("/:id/submit", mgr.Submit)
	g.POST("/:id/accept", mgr.Accept)
	g.DELETE("/:id", mgr.Delete)
}

func (mgr *QuotationMgr) RegisterAdmin(_ *gin.RouterGroup) {}

type QuotationRowResp struct {
	ID        uint    `json:"id"`
	BomRowID  uint    `json:"bomRowID"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  float64 `json:"quantity"`
	Total     float64 `json:"total"`
	Note      *string `json:"note"`
}

type QuotationResp struct {
	ID          uint                  `json:"id"`
	BomID       uint                  `json:"bomID"`
	CompanyID   uint                  `json:"companyID"`
	CompanyName string                `json:"companyName"`
	Title       string                `json:"title"`
	Description *string               `json:"description"`
	Status      model.QuotationStatus `json:"status"`
	Total       float64               `json:"total"`
	SubmittedAt *time.Time            `json:"submittedAt"`
	CreatorID   uint                  `json:"creatorID"`
	Rows        []QuotationRowResp    `json:"rows"`
}

func toQuotationResp(q *model.Quotation) QuotationResp {
	return QuotationResp{
		ID:          q.ID,
		BomID:       q.BomID,
		CompanyID:   q.CompanyID,
		CompanyName: q.Company.Name,
		Title:       q.Title,
		Description: q.Description,
		Status:      q.Status,
		Total:       q.Total,
		SubmittedAt: q.SubmittedAt,
		CreatorID:   q.CreatorID,
		Rows: lo.Map(q.Rows, func(r model.QuotationRow, _ int) QuotationRowResp {
			return QuotationRowResp{
				ID:        r.ID,
				BomRowID:  r.BomRowID,
				UnitPrice: r.UnitPrice,
				Quantity:  r.Quantity,
				Total:     procurement.LineTotal(&r),
				Note:      r.Note,
			}
		}),
	}
}

// receivedBom loads a bom for the supplier side: it must be sent to the actor's company.
func receivedBom(ctx context.Context, db *gorm.DB, a permission.Actor, bomID uint) (*model.Bom, error) {
	var bom model.Bom
	if err := db.WithContext(ctx).Preload("Company").Preload("Rows").First(&bom, bomID).Error; err != nil {
		return nil, err
	}
	var n int64
	if err := db.WithContext(ctx).Model(&model.BomRecipient{}).
		Where("bom_id = ? AND company_id = ?", bomID, a.CompanyID).Count(&n).Error; err != nil {
		return nil, err
	}
	switch {
	case n == 0:
		return nil, procurement.ErrNotRecipient
	case bom.Status == model.BomDraft:
		return nil, procurement.ErrBomNotSent
	case bom.Status == model.BomClosed:
		return nil, procurement.ErrBomClosed
	}
	return &bom, nil
}

// ListOfBom godoc
// @Summary Quotations of a bill of materials
// @Description The owning company sees every submitted quotation, a supplier only its own
// @Tags Quotation
// @Produce json
// @Security Bearer
// @Param bomID path int true "bom id"
// @Success 200 {object} resputil.Response[[]QuotationResp] "quotations"
// @Router /v1/quotations/bom/{bomID} [get]
func (mgr *QuotationMgr) ListOfBom(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	bomID, ok := uintParam(c, "bomID")
	if !ok {
		return
	}
	var bom model.Bom
	if err := mgr.db.WithContext(c).First(&bom, bomID).Error; err != nil {
		respondError(c, err)
		return
	}
	tx := mgr.db.WithContext(c).Preload("Company").Preload("Rows").Where("bom_id = ?", bomID)
	if bom.CompanyID == a.CompanyID {
		tx = tx.Where("status <> ?", model.QuotationDraft)
	} else {
		tx = tx.Where("company_id = ?", a.CompanyID)
	}
	var quotations []model.Quotation
	if err := tx.Order("total, id").Find(&quotations).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, lo.Map(quotations, func(q model.Quotation, _ int) QuotationResp { return toQuotationResp(&q) }))
}

type CreateQuotationReq struct {
	Title       string  `json:"title" binding:"required,max=128"`
	Description *string `json:"description"`
}

// Create godoc
// @Summary Start the quotation of the acting company
// @Description One quotation per supplier and bill of materials
// @Tags Quotation
// @Accept json
// @Produce json
// @Security Bearer
// @Param bomID path int true "bom id"
// @Param data body CreateQuotationReq true "quotation"
// @Success 200 {object} resputil.Response[QuotationResp] "quotation"
// @Failure 409 {object} resputil.Response[any] "Already quoted or bom closed"
// @Router /v1/quotations/bom/{bomID} [post]
func (mgr *QuotationMgr) Create(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	bomID, ok := uintParam(c, "bomID")
	if !ok {
		return
	}
	var req CreateQuotationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	err := permission.CanEditCompany(a, a.CompanyID)
	if err == nil {
		_, err = receivedBom(c, mgr.db, a, bomID)
	}
	if err != nil {
		respondError(c, err)
		return
	}
	q := model.Quotation{
		BomID:       bomID,
		CompanyID:   a.CompanyID,
		Title:       req.Title,
		Description: req.Description,
		Status:      model.QuotationDraft,
		CreatorID:   a.ProfileID,
	}
	if err := mgr.db.WithContext(c).Omit("Bom", "Company").Create(&q).Error; err != nil {
		respondError(c, err)
		return
	}
	mgr.respond(c, q.ID)
}

func (mgr *QuotationMgr) respond(c *gin.Context, id uint) {
	var q model.Quotation
	if err := mgr.db.WithContext(c).Preload("Company").Preload("Rows").First(&q, id).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, toQuotationResp(&q))
}

// loadQuotation loads the quotation of the path with its bom. The actor's company must be the
// supplier, or the bom owner for quotations past the draft stage.
func (mgr *QuotationMgr) loadQuotation(c *gin.Context) (*model.Quotation, permission.Actor, bool) {
	a, ok := actorOf(c)
	if !ok {
		return nil, a, false
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return nil, a, false
	}
	var q model.Quotation
	if err := mgr.db.WithContext(c).Preload("Company").Preload("Rows").Preload("Bom.Company").
		First(&q, id).Error; err != nil {
		respondError(c, err)
		return nil, a, false
	}
	if q.CompanyID == a.CompanyID || (q.Bom.CompanyID == a.CompanyID && q.Status != model.QuotationDraft) {
		return &q, a, true
	}
	respondError(c, permission.ErrForbidden)
	return nil, a, false
}

// Get godoc
// @Summary Get a quotation
// @Tags Quotation
// @Produce json
// @Security Bearer
// @Param id path int true "quotation id"
// @Success 200 {object} resputil.Response[QuotationResp] "quotation"
// @Router /v1/quotations/{id} [get]
func (mgr *QuotationMgr) Get(c *gin.Context) {
	q, _, ok := mgr.loadQuotation(c)
	if !ok {
		return
	}
	resputil.Success(c, toQuotationResp(q))
}

// supplierDraft loads a draft quotation the actor may edit for its company.
func (mgr *QuotationMgr) supplierDraft(c *gin.Context) (*model.Quotation, permission.Actor, bool) {
	q, a, ok := mgr.loadQuotation(c)
	if !ok {
		return nil, a, false
	}
	if err := permission.CanEditCompany(a, q.CompanyID); err != nil {
		respondError(c, err)
		return nil, a, false
	}
	if q.Status != model.QuotationDraft {
		respondError(c, procurement.ErrQuotationSubmitted)
		return nil, a, false
	}
	if q.Bom.Status == model.BomClosed {
		respondError(c, procurement.ErrBomClosed)
		return nil, a, false
	}
	return q, a, true
}

type QuotationRowReq struct {
	BomRowID  uint    `json:"bomRowID" binding:"required"`
	UnitPrice float64 `json:"unitPrice"`
	Quantity  float64 `json:"quantity"` // 0 quotes the bom quantity
	Note      *string `json:"note"`
}

type UpdateQuotationReq struct {
	Title       string            `json:"title" binding:"required,max=128"`
	Description *string           `json:"description"`
	Rows        []QuotationRowReq `json:"rows" binding:"dive"`
}

// Update godoc
// @Summary Edit a draft quotation
// @Description Rows reference rows of the bill of materials; the total is recomputed
// @Tags Quotation
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "quotation id"
// @Param data body UpdateQuotationReq true "quotation"
// @Success 200 {object} resputil.Response[QuotationResp] "quotation"
// @Router /v1/quotations/{id} [put]
func (mgr *QuotationMgr) Update(c *gin.Context) {
	q, _, ok := mgr.supplierDraft(c)
	if !ok {
		return
	}
	var req UpdateQuotationReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	var bomRows []model.BomRow
	if err := mgr.db.WithContext(c).Where("bom_id = ?", q.BomID).Find(&bomRows).Error; err != nil {
		respondError(c, err)
		return
	}
	rows := lo.Map(lo.UniqBy(req.Rows, func(r QuotationRowReq) uint { return r.BomRowID }),
		func(r QuotationRowReq, _ int) model.QuotationRow {
			return model.QuotationRow{QuotationID: q.ID, BomRowID: r.BomRowID, UnitPrice: r.UnitPrice, Quantity: r.Quantity, Note: r.Note}
		})
	if err := procurement.ValidateRows(bomRows, rows); err != nil {
		respondError(c, err)
		return
	}
	total := procurement.Total(rows)
	err := mgr.db.WithContext(c).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("quotation_id = ?", q.ID).Delete(&model.QuotationRow{}).Error; err != nil {
			return err
		}
		if len(rows) > 0 {
			if err := tx.Omit("BomRow").Create(&rows).Error; err != nil {
				return err
			}
		}
		return tx.Model(&model.Quotation{}).Where("id = ?", q.ID).Updates(map[string]any{
			"title":       req.Title,
			"description": req.Description,
			"total":       total,
		}).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}
	mgr.respond(c, q.ID)
}

// Submit godoc
// @Summary Submit a quotation to the bom owner
// @Description The owners and delegates of the bom company are notified
// @Tags Quotation
// @Produce json
// @Security Bearer
// @Param id path int true "quotation id"
// @Success 200 {object} resputil.Response[QuotationResp] "quotation"
// @Router /v1/quotations/{id}/submit [post]
func (mgr *QuotationMgr) Submit(c *gin.Context) {
	q, a, ok := mgr.supplierDraft(c)
	if !ok {
		return
	}
	if len(q.Rows) == 0 {
		respondError(c, procurement.ErrNoRows)
		return
	}
	now := time.Now()
	if err := mgr.db.WithContext(c).Model(&model.Quotation{}).Where("id = ?", q.ID).Updates(map[string]any{
		"status":       model.QuotationSubmitted,
		"submitted_at": now,
	}).Error; err != nil {
		respondError(c, err)
		return
	}
	mgr.notifyCompany(c, a, q.Bom.CompanyID, notify.KindQuotationSubmitted,
		fmt.Sprintf("%s submitted a quotation for %s", q.Company.Name, q.Bom.Title), q)
	mgr.respond(c, q.ID)
}

func (mgr *QuotationMgr) notifyCompany(ctx context.Context, a permission.Actor, companyID uint, kind, subject string, q *model.Quotation) {
	managers, err := notify.CompanyManagers(ctx, mgr.db, companyID)
	if err != nil {
		logutils.Log.Error(err)
		return
	}
	notify.Safe(ctx, mgr.notifier, notify.Event{
		Kind:       kind,
		SenderID:   &a.ProfileID,
		Subject:    subject,
		OwnerType:  model.OwnerQuote,
		OwnerID:    q.ID,
		Payload:    gin.H{"bomID": q.BomID, "quotationID": q.ID, "total": q.Total},
		Recipients: managers,
	})
}

// Accept godoc
// @Summary Accept a quotation
// @Description The other submitted quotations of the bom are rejected and the bom is closed
// @Tags Quotation
// @Produce json
// @Security Bearer
// @Param id path int true "quotation id"
// @Success 200 {object} resputil.Response[QuotationResp] "quotation"
// @Router /v1/quotations/{id}/accept [post]
func (mgr *QuotationMgr) Accept(c *gin.Context) {
	q, a, ok := mgr.loadQuotation(c)
	if !ok {
		return
	}
	if err := permission.CanEditCompany(a, q.Bom.CompanyID); err != nil {
		respondError(c, err)
		return
	}
	if q.Status != model.QuotationSubmitted {
		respondError(c, procurement.ErrQuotationNotReady)
		return
	}
	if q.Bom.Status == model.BomClosed {
		respondError(c, procurement.ErrBomClosed)
		return
	}

	var rejected []model.Quotation
	err := mgr.db.WithContext(c).Transaction(func(tx *gorm.DB) error {
		var err error
		rejected, err = acceptQuotation(tx.WithContext(c), q)
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}

	mgr.notifyCompany(c, a, q.CompanyID, notify.KindQuotationAccepted,
		fmt.Sprintf("%s accepted your quotation for %s", q.Bom.Company.Name, q.Bom.Title), q)
	for i := range rejected {
		mgr.notifyCompany(c, a, rejected[i].CompanyID, notify.KindQuotationRejected,
			fmt.Sprintf("%s chose another quotation for %s", q.Bom.Company.Name, q.Bom.Title), &rejected[i])
	}
	mgr.respond(c, q.ID)
}

// acceptQuotation accepts q, rejects the other submitted quotations of its bom and closes the bom.
// Closing the bom is the guard: of two concurrent accepts only the first finds it open, the second
// gets ErrBomClosed.
func acceptQuotation(tx *gorm.DB, q *model.Quotation) ([]model.Quotation, error) {
	res := tx.Model(&model.Bom{}).Where("id = ? AND status <> ?", q.BomID, model.BomClosed).
		Update("status", model.BomClosed)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, procurement.ErrBomClosed
	}
	res = tx.Model(&model.Quotation{}).Where("id = ? AND status = ?", q.ID, model.QuotationSubmitted).
		Update("status", model.QuotationAccepted)
	if res.Error != nil {
		return nil, res.Error
	}
	if res.RowsAffected == 0 {
		return nil, procurement.ErrQuotationNotReady
	}

	var rejected []model.Quotation
	if err := tx.Preload("Company").
		Where("bom_id = ? AND id <> ? AND status = ?", q.BomID, q.ID, model.QuotationSubmitted).
		Find(&rejected).Error; err != nil {
		return nil, err
	}
	if len(rejected) > 0 {
		if err := tx.Model(&model.Quotation{}).
			Where("id IN ?", lo.Map(rejected, func(r model.Quotation, _ int) uint { return r.ID })).
			Update("status", model.QuotationRejected).Error; err != nil {
			return nil, err
		}
	}
	return rejected, nil
}

// Delete godoc
// @Summary Delete a draft quotation
// @Tags Quotation
// @Produce json
// @Security Bearer
// @Param id path int true "quotation id"
// @Success 200 {object} resputil.Response[string] "Success"
// @Router /v1/quotations/{id} [delete]
func (mgr *QuotationMgr) Delete(c *gin.Context) {
	q, _, ok := mgr.supplierDraft(c)
	if !ok {
		return
	}
	err := mgr.db.WithContext(c).Transaction(func(tx *gorm.DB) error {
		if err := tx.Unscoped().Where("quotation_id = ?", q.ID).Delete(&model.QuotationRow{}).Error; err != nil {
			return err
		}
		return tx.Unscoped().Delete(&model.Quotation{}, q.ID).Error
	})
	if err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, "")
}
