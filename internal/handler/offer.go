package handler

import (
	"time"

	"github.com/gin-gonic/gin"
	"github.com/samber/lo"
	"gorm.io/gorm"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/dao/query"
	"github.com/monkeybits/edilcloud-back-sub000/internal/payload"
	"github.com/monkeybits/edilcloud-back-sub000/internal/resputil"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/permission"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewOfferMgr)
}

type OfferMgr struct {
	name string
	db   *gorm.DB
}

func NewOfferMgr(conf *RegisterConfig) Manager {
	return &OfferMgr{
		name: "offers",
		db:   conf.DB,
	}
}

func (mgr *OfferMgr) GetName() string { return mgr.name }

func (mgr *OfferMgr) RegisterPublic(g *gin.RouterGroup) {
	g.GET("", mgr.ListActive)
}

func (mgr *OfferMgr) RegisterProtected(g *gin.RouterGroup) {
	g.GET("/mine", mgr.ListMine)
	g.POST("", mgr.Create)
	g.GET("/:id", mgr.Get)
	g.PUT("/:id", mgr.Update)
	g.DELETE("/:id", mgr.Delete)
}

func (mgr *OfferMgr) RegisterAdmin(_ *gin.RouterGroup) {}

type OfferResp struct {
	ID          uint      `json:"id"`
	CompanyID   uint      `json:"companyID"`
	CompanyName string    `json:"companyName"`
	Title       string    `json:"title"`
	Description *string   `json:"description"`
	Price       *float64  `json:"price"`
	Tags        *string   `json:"tags"`
	StartDate   time.Time `json:"startDate"`
	Deadline    time.Time `json:"deadline"`
	CreatorID   uint      `json:"creatorID"`
}

func toOfferResp(o *model.Offer) OfferResp {
	return OfferResp{
		ID:          o.ID,
		CompanyID:   o.CompanyID,
		CompanyName: o.Company.Name,
		Title:       o.Title,
		Description: o.Description,
		Price:       o.Price,
		Tags:        o.Tags,
		StartDate:   o.StartDate,
		Deadline:    o.Deadline,
		CreatorID:   o.CreatorID,
	}
}

type ListOffersReq struct {
	PageIndex *int   `form:"page_index" binding:"required,min=0"`
	PageSize  *int   `form:"page_size" binding:"required,min=1,max=200"`
	NameLike  string `form:"nameLike"`
	CompanyID *uint  `form:"companyID"`
}

func (mgr *OfferMgr) list(c *gin.Context, tx *gorm.DB, req *ListOffersReq) {
	tx = tx.Scopes(query.NameLike("offers.title", req.NameLike))
	if req.CompanyID != nil {
		tx = tx.Where("offers.company_id = ?", *req.CompanyID)
	}
	var count int64
	if err := tx.Count(&count).Error; err != nil {
		respondError(c, err)
		return
	}
	var offers []model.Offer
	if err := tx.Preload("Company").Scopes(query.Paginate(*req.PageIndex, *req.PageSize)).
		Order("offers.deadline, offers.id").Find(&offers).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, payload.ListResp[OfferResp]{
		Rows:  lo.Map(offers, func(o model.Offer, _ int) OfferResp { return toOfferResp(&o) }),
		Count: count,
	})
}

// ListActive godoc
// @Summary Active offers
// @Description Offers of active companies whose validity window includes now
// @Tags Offer
// @Produce json
// @Param page_index query int true "page index"
// @Param page_size query int true "page size"
// @Param nameLike query string false "title contains"
// @Param companyID query int false "company"
// @Success 200 {object} resputil.Response[payload.ListResp[OfferResp]] "offers"
// @Router /offers [get]
func (mgr *OfferMgr) ListActive(c *gin.Context) {
	var req ListOffersReq
	if err := c.ShouldBindQuery(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	now := time.Now()
	tx := mgr.db.WithContext(c).Model(&model.Offer{}).
		Joins("JOIN companies ON companies.id = offers.company_id AND companies.status = ?", model.StatusActive).
		Where("offers.start_date <= ? AND offers.deadline >= ?", now, now)
	mgr.list(c, tx, &req)
}

// ListMine godoc
// @Summary Offers of the acting company
// @Tags Offer
// @Produce json
// @Security Bearer
// @Param page_index query int true "page index"
// @Param page_size query int true "page size"
// @Success 200 {object} resputil.Response[payload.ListResp[OfferResp]] "offers"
// @Router /v1/offers/mine [get]
func (mgr *OfferMgr) ListMine(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	var req ListOffersReq
	if err := c.ShouldBindQuery(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	req.CompanyID = &a.CompanyID
	mgr.list(c, mgr.db.WithContext(c).Model(&model.Offer{}), &req)
}

type OfferReq struct {
	Title       string    `json:"title" binding:"required,max=128"`
	Description *string   `json:"description"`
	Price       *float64  `json:"price" binding:"omitempty,gte=0"`
	Tags        *string   `json:"tags" binding:"omitempty,max=256"`
	StartDate   time.Time `json:"startDate" binding:"required"`
	Deadline    time.Time `json:"deadline" binding:"required"`
}

func (req *OfferReq) apply(o *model.Offer) error {
	if err := checkDates(req.StartDate, req.Deadline); err != nil {
		return err
	}
	o.Title = req.Title
	o.Description = req.Description
	o.Price = req.Price
	o.Tags = req.Tags
	o.StartDate = req.StartDate
	o.Deadline = req.Deadline
	return nil
}

// Create godoc
// @Summary Publish an offer of the acting company
// @Tags Offer
// @Accept json
// @Produce json
// @Security Bearer
// @Param data body OfferReq true "offer"
// @Success 200 {object} resputil.Response[OfferResp] "offer"
// @Router /v1/offers [post]
func (mgr *OfferMgr) Create(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	var req OfferReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	offer := model.Offer{CompanyID: a.CompanyID, CreatorID: a.ProfileID}
	err := permission.CanEditCompany(a, a.CompanyID)
	if err == nil {
		err = req.apply(&offer)
	}
	if err == nil {
		err = mgr.db.WithContext(c).Omit("Company").Create(&offer).Error
	}
	if err == nil {
		err = mgr.db.WithContext(c).First(&offer.Company, a.CompanyID).Error
	}
	if err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, toOfferResp(&offer))
}

func (mgr *OfferMgr) load(c *gin.Context) (*model.Offer, permission.Actor, bool) {
	a, ok := actorOf(c)
	if !ok {
		return nil, a, false
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return nil, a, false
	}
	var offer model.Offer
	if err := mgr.db.WithContext(c).Preload("Company").First(&offer, id).Error; err != nil {
		respondError(c, err)
		return nil, a, false
	}
	return &offer, a, true
}

// Get godoc
// @Summary Get an offer
// @Tags Offer
// @Produce json
// @Security Bearer
// @Param id path int true "offer id"
// @Success 200 {object} resputil.Response[OfferResp] "offer"
// @Router /v1/offers/{id} [get]
func (mgr *OfferMgr) Get(c *gin.Context) {
	offer, _, ok := mgr.load(c)
	if !ok {
		return
	}
	resputil.Success(c, toOfferResp(offer))
}

// Update godoc
// @Summary Update an offer
// @Tags Offer
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "offer id"
// @Param data body OfferReq true "offer"
// @Success 200 {object} resputil.Response[OfferResp] "offer"
// @Router /v1/offers/{id} [put]
func (mgr *OfferMgr) Update(c *gin.Context) {
	offer, a, ok := mgr.load(c)
	if !ok {
		return
	}
	var req OfferReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	err := permission.CanEditCompany(a, offer.CompanyID)
	if err == nil {
		err = req.apply(offer)
	}
	if err == nil {
		err = mgr.db.WithContext(c).Omit("Company").Save(offer).Error
	}
	if err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, toOfferResp(offer))
}

// Delete godoc
// @Summary Delete an offer
// @Tags Offer
// @Produce json
// @Security Bearer
// @Param id path int true "offer id"
// @Success 200 {object} resputil.Response[string] "Success"
// @Router /v1/offers/{id} [delete]
func (mgr *OfferMgr) Delete(c *gin.Context) {
	offer, a, ok := mgr.load(c)
	if !ok {
		return
	}
	if err := permission.CanEditCompany(a, offer.CompanyID); err != nil {
		respondError(c, err)
		return
	}
	if err := mgr.db.WithContext(c).Delete(&model.Offer{}, offer.ID).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, "")
}
