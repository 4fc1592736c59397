package handler

import (
	"encoding/json"
	"regexp"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/dao/query"
	"github.com/monkeybits/edilcloud-back-sub000/internal/payload"
	"github.com/monkeybits/edilcloud-back-sub000/internal/resputil"
	"github.com/monkeybits/edilcloud-back-sub000/internal/util"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/logutils"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/permission"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewCompanyMgr)
}

type CompanyMgr struct {
	name string
	db   *gorm.DB
}

func NewCompanyMgr(conf *RegisterConfig) Manager {
	return &CompanyMgr{
		name: "companies",
		db:   conf.DB,
	}
}

func (mgr *CompanyMgr) GetName() string { return mgr.name }

func (mgr *CompanyMgr) RegisterPublic(_ *gin.RouterGroup) {}

func (mgr *CompanyMgr) RegisterProtected(g *gin.RouterGroup) {
	g.GET("", mgr.ListMine)
	g.POST("", mgr.Create)
	g.GET("/public", mgr.ListPublic)
	g.GET("/:id", mgr.Get)
	g.PUT("/:id", mgr.Update)
	g.GET("/:id/staff", mgr.Staff)
}

func (mgr *CompanyMgr) RegisterAdmin(g *gin.RouterGroup) {
	g.GET("", mgr.ListAll)
	g.PUT("/:id/status", mgr.UpdateStatus)
}

type CompanyResp struct {
	ID         uint         `json:"id"`
	Name       string       `json:"name"`
	Slug       string       `json:"slug"`
	Email      *string      `json:"email"`
	Phone      *string      `json:"phone"`
	VATNumber  *string      `json:"vatNumber"`
	TaxCode    *string      `json:"taxCode"`
	URL        *string      `json:"url"`
	Address    *string      `json:"address"`
	Logo       *string      `json:"logo"`
	Categories []string     `json:"categories"`
	IsPublic   bool         `json:"isPublic"`
	Status     model.Status `json:"status"`
	CreatedAt  time.Time    `json:"createdAt"`
}

func toCompanyResp(c *model.Company) CompanyResp {
	var categories []string
	if len(c.Categories) > 0 {
		_ = json.Unmarshal(c.Categories, &categories)
	}
	return CompanyResp{
		ID:         c.ID,
		Name:       c.Name,
		Slug:       c.Slug,
		Email:      c.Email,
		Phone:      c.Phone,
		VATNumber:  c.VATNumber,
		TaxCode:    c.TaxCode,
		URL:        c.URL,
		Address:    c.Address,
		Logo:       c.Logo,
		Categories: lo.Ternary(categories == nil, []string{}, categories),
		IsPublic:   c.IsPublic,
		Status:     c.Status,
		CreatedAt:  c.CreatedAt,
	}
}

var slugUnsafe = regexp.MustCompile(`[^a-z0-9]+`)

// Slugify lowercases name and joins its alphanumeric runs with dashes.
func Slugify(name string) string {
	s := strings.Trim(slugUnsafe.ReplaceAllString(strings.ToLower(name), "-"), "-")
	if s == "" {
		s = "company"
	}
	return s
}

// uniqueSlug returns the slug of name, suffixed when it is already taken.
func uniqueSlug(tx *gorm.DB, name string) (string, error) {
	slug := Slugify(name)
	var count int64
	if err := tx.Model(&model.Company{}).Unscoped().Where("slug = ?", slug).Count(&count).Error; err != nil {
		return "", err
	}
	if count == 0 {
		return slug, nil
	}
	return slug + "-" + uuid.New().String()[:6], nil
}

// createCompanyWithOwner creates the company and an active owner profile of user in it.
func createCompanyWithOwner(tx *gorm.DB, company *model.Company, user *model.User, isMain bool) (*model.Profile, error) {
	slug, err := uniqueSlug(tx, company.Name)
	if err != nil {
		return nil, err
	}
	company.Slug = slug
	if company.Status == 0 {
		company.Status = model.StatusActive
	}
	if err := tx.Create(company).Error; err != nil {
		return nil, err
	}

	attrs := user.Attributes.Data()
	owner := model.Profile{
		UserID:    &user.ID,
		CompanyID: company.ID,
		Email:     user.Email,
		FirstName: attrs.FirstName,
		LastName:  attrs.LastName,
		Language:  lo.Ternary(attrs.Language != "", attrs.Language, "it"),
		Role:      model.RoleOwner,
		Status:    model.StatusActive,
		IsMain:    isMain,
	}
	if err := tx.Create(&owner).Error; err != nil {
		return nil, err
	}
	return &owner, nil
}

type CompanyReq struct {
	Name       string   `json:"name" binding:"required,max=128"`
	Email      *string  `json:"email" binding:"omitempty,email"`
	Phone      *string  `json:"phone" binding:"omitempty,max=32"`
	VATNumber  *string  `json:"vatNumber" binding:"omitempty,vat"`
	TaxCode    *string  `json:"taxCode" binding:"omitempty,max=32"`
	URL        *string  `json:"url" binding:"omitempty,url"`
	Address    *string  `json:"address" binding:"omitempty,max=256"`
	Categories []string `json:"categories"`
	IsPublic   *bool    `json:"isPublic"`
}

func (req *CompanyReq) apply(c *model.Company) error {
	c.Name = req.Name
	c.Email = req.Email
	c.Phone = req.Phone
	c.VATNumber = req.VATNumber
	c.TaxCode = req.TaxCode
	c.URL = req.URL
	c.Address = req.Address
	if req.IsPublic != nil {
		c.IsPublic = *req.IsPublic
	}
	if req.Categories != nil {
		raw, err := json.Marshal(req.Categories)
		if err != nil {
			return err
		}
		c.Categories = datatypes.JSON(raw)
	}
	return nil
}

// Create godoc
// @Summary Create a company
// @Description Create a company; the current user gets an owner profile in it
// @Tags Company
// @Accept json
// @Produce json
// @Security Bearer
// @Param data body CompanyReq true "company"
// @Success 200 {object} resputil.Response[ProfileResp] "owner profile of the new company"
// @Failure 400 {object} resputil.Response[any] "Request parameter error"
// @Router /v1/companies [post]
func (mgr *CompanyMgr) Create(c *gin.Context) {
	var req CompanyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	token := util.GetToken(c)

	company := model.Company{IsPublic: true, CreatorID: token.UserID}
	if err := req.apply(&company); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	var owner *model.Profile
	err := mgr.db.WithContext(c).Transaction(func(tx *gorm.DB) error {
		var user model.User
		if err := tx.First(&user, token.UserID).Error; err != nil {
			return err
		}
		var main int64
		if err := tx.Model(&model.Profile{}).Where("user_id = ? AND is_main = ?", user.ID, true).
			Count(&main).Error; err != nil {
			return err
		}
		var err error
		owner, err = createCompanyWithOwner(tx, &company, &user, main == 0)
		return err
	})
	if err != nil {
		respondError(c, err)
		return
	}
	owner.Company = company
	logutils.Log.Infof("company %s created by user %d", company.Slug, token.UserID)
	resputil.Success(c, toProfileResp(owner))
}

// ListMine godoc
// @Summary Companies of the current user
// @Description Companies where the user has an active profile
// @Tags Company
// @Produce json
// @Security Bearer
// @Success 200 {object} resputil.Response[[]CompanyResp] "companies"
// @Router /v1/companies [get]
func (mgr *CompanyMgr) ListMine(c *gin.Context) {
	token := util.GetToken(c)
	var companies []model.Company
	err := mgr.db.WithContext(c).
		Where("id IN (?)", mgr.db.Model(&model.Profile{}).Select("company_id").
			Where("user_id = ? AND status = ?", token.UserID, model.StatusActive)).
		Order("name").
		Find(&companies).Error
	if err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, lo.Map(companies, func(co model.Company, _ int) CompanyResp { return toCompanyResp(&co) }))
}

type ListPublicReq struct {
	PageIndex *int    `form:"page_index" binding:"required,min=0"`
	PageSize  *int    `form:"page_size" binding:"required,min=1,max=200"`
	NameLike  string  `form:"name_like"`
	Category  *string `form:"category"`
}

// ListPublic godoc
// @Summary Public company directory
// @Description Active public companies, searchable by name and trade category
// @Tags Company
// @Produce json
// @Security Bearer
// @Param page query ListPublicReq true "filters"
// @Success 200 {object} resputil.Response[payload.ListResp[CompanyResp]] "companies"
// @Router /v1/companies/public [get]
func (mgr *CompanyMgr) ListPublic(c *gin.Context) {
	var req ListPublicReq
	if err := c.ShouldBindQuery(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}

	tx := mgr.db.WithContext(c).Model(&model.Company{}).
		Where("is_public = ? AND status = ?", true, model.StatusActive).
		Scopes(query.NameLike("name", req.NameLike))
	if req.Category != nil {
		raw, _ := json.Marshal([]string{*req.Category})
		tx = tx.Where("categories @> ?", string(raw))
	}
	mgr.page(c, tx, *req.PageIndex, *req.PageSize)
}

func (mgr *CompanyMgr) page(c *gin.Context, tx *gorm.DB, index, size int) {
	var count int64
	if err := tx.Count(&count).Error; err != nil {
		respondError(c, err)
		return
	}
	var companies []model.Company
	if err := tx.Scopes(query.Paginate(index, size)).Order("name").Find(&companies).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, payload.ListResp[CompanyResp]{
		Rows:  lo.Map(companies, func(co model.Company, _ int) CompanyResp { return toCompanyResp(&co) }),
		Count: count,
	})
}

// Get godoc
// @Summary Get a company
// @Tags Company
// @Produce json
// @Security Bearer
// @Param id path int true "company id"
// @Success 200 {object} resputil.Response[CompanyResp] "company"
// @Failure 404 {object} resputil.Response[any] "Not found"
// @Router /v1/companies/{id} [get]
func (mgr *CompanyMgr) Get(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var company model.Company
	if err := mgr.db.WithContext(c).First(&company, id).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, toCompanyResp(&company))
}

// Update godoc
// @Summary Update a company
// @Description Owners, delegates and level1 profiles of the company may edit it
// @Tags Company
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "company id"
// @Param data body CompanyReq true "company"
// @Success 200 {object} resputil.Response[CompanyResp] "company"
// @Failure 403 {object} resputil.Response[any] "Not allowed"
// @Router /v1/companies/{id} [put]
func (mgr *CompanyMgr) Update(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req CompanyReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	if err := permission.CanEditCompany(a, id); err != nil {
		respondError(c, err)
		return
	}

	var company model.Company
	if err := mgr.db.WithContext(c).First(&company, id).Error; err != nil {
		respondError(c, err)
		return
	}
	if err := req.apply(&company); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	if err := mgr.db.WithContext(c).Save(&company).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, toCompanyResp(&company))
}

// Staff godoc
// @Summary Company staff
// @Description Active profiles of a company; members of the company also see pending and disabled ones
// @Tags Company
// @Produce json
// @Security Bearer
// @Param id path int true "company id"
// @Success 200 {object} resputil.Response[[]ProfileResp] "profiles"
// @Router /v1/companies/{id}/staff [get]
func (mgr *CompanyMgr) Staff(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	token := util.GetToken(c)

	tx := mgr.db.WithContext(c).Where("company_id = ?", id)
	if !token.HasProfile() || token.Profile.CompanyID != id {
		tx = tx.Where("status = ?", model.StatusActive)
	}
	var profiles []model.Profile
	if err := tx.Order("role, last_name, first_name").Find(&profiles).Error; err != nil {
		respondError(c, err)
		return
	}
	resputil.Success(c, lo.Map(profiles, func(p model.Profile, _ int) ProfileResp { return toProfileResp(&p) }))
}

// ListAll godoc
// @Summary List every company
// @Tags Company
// @Produce json
// @Security Bearer
// @Param page query ListPublicReq true "filters"
// @Success 200 {object} resputil.Response[payload.ListResp[CompanyResp]] "companies"
// @Router /v1/admin/companies [get]
func (mgr *CompanyMgr) ListAll(c *gin.Context) {
	var req ListPublicReq
	if err := c.ShouldBindQuery(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	tx := mgr.db.WithContext(c).Model(&model.Company{}).Scopes(query.NameLike("name", req.NameLike))
	mgr.page(c, tx, *req.PageIndex, *req.PageSize)
}

type StatusReq struct {
	Status model.Status `json:"status" binding:"required,oneof=2 3"`
}

// UpdateStatus godoc
// @Summary Activate or deactivate a company
// @Tags Company
// @Accept json
// @Produce json
// @Security Bearer
// @Param id path int true "company id"
// @Param data body StatusReq true "2 active, 3 disabled"
// @Success 200 {object} resputil.Response[string] "Success"
// @Router /v1/admin/companies/{id}/status [put]
func (mgr *CompanyMgr) UpdateStatus(c *gin.Context) {
	id, ok := uintParam(c, "id")
	if !ok {
		return
	}
	var req StatusReq
	if err := c.ShouldBindJSON(&req); err != nil {
		resputil.BadRequestError(c, err.Error())
		return
	}
	res := mgr.db.WithContext(c).Model(&model.Company{}).Where("id = ?", id).Update("status", req.Status)
	if res.Error != nil {
		respondError(c, res.Error)
		return
	}
	if res.RowsAffected == 0 {
		respondError(c, gorm.ErrRecordNotFound)
		return
	}
	logutils.Log.Infof("company %d status set to %d", id, req.Status)
	resputil.Success(c, "")
}
