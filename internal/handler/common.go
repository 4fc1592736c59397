package handler

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/internal/resputil"
	"github.com/monkeybits/edilcloud-back-sub000/internal/util"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/logutils"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/mediapath"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/permission"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/procurement"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/storage"
)

var (
	errNoProfile    = errors.New("select a company profile first")
	errInvalidDates = errors.New("start date must not be after end date")
	errOutOfRange   = errors.New("dates are outside of the parent range")
)

// invalidRequest marks domain validation failures that answer 400.
type invalidRequest struct{ error }

func badRequest(err error) error { return invalidRequest{err} }

// actorOf returns the acting profile of the request. It answers 403 and returns false when the
// token carries no profile.
func actorOf(c *gin.Context) (permission.Actor, bool) {
	token := util.GetToken(c)
	if !token.HasProfile() {
		resputil.HTTPError(c, http.StatusForbidden, errNoProfile.Error(), resputil.ProfileNotActive)
		return permission.Actor{}, false
	}
	return permission.Actor{
		ProfileID: token.Profile.ID,
		CompanyID: token.Profile.CompanyID,
		Role:      token.Profile.Role,
	}, true
}

// uintParam parses the path parameter name. It answers 400 and returns false on failure.
func uintParam(c *gin.Context, name string) (uint, bool) {
	v, err := strconv.ParseUint(c.Param(name), 10, 64)
	if err != nil || v == 0 {
		resputil.BadRequestError(c, "invalid "+name)
		return 0, false
	}
	return uint(v), true
}

// respondError maps domain errors to status codes.
func respondError(c *gin.Context, err error) {
	var ir invalidRequest
	switch {
	case errors.As(err, &ir):
		resputil.BadRequestError(c, err.Error())
	case errors.Is(err, gorm.ErrRecordNotFound):
		resputil.NotFoundError(c, "not found")
	case errors.Is(err, gorm.ErrDuplicatedKey):
		resputil.ConflictError(c, "already exists")
	case errors.Is(err, permission.ErrInvalidRole):
		resputil.BadRequestError(c, err.Error())
	case errors.Is(err, permission.ErrLastOwner):
		resputil.ConflictError(c, err.Error())
	case errors.Is(err, permission.ErrForbidden),
		errors.Is(err, permission.ErrSelfDisable),
		errors.Is(err, permission.ErrOwnerProtected),
		errors.Is(err, permission.ErrRoleEscalation),
		errors.Is(err, permission.ErrOtherCompany),
		errors.Is(err, permission.ErrProfileInactive),
		errors.Is(err, procurement.ErrNotRecipient):
		resputil.Forbidden(c, err.Error())
	case errors.Is(err, mediapath.ErrMaxDepth):
		resputil.HTTPError(c, http.StatusUnprocessableEntity, err.Error(), resputil.MaxDepthExceeded)
	case errors.Is(err, mediapath.ErrInvalidName),
		errors.Is(err, mediapath.ErrMoveIntoSelf),
		errors.Is(err, procurement.ErrUnknownRow),
		errors.Is(err, procurement.ErrNegativePrice),
		errors.Is(err, procurement.ErrNoRows):
		resputil.BadRequestError(c, err.Error())
	case errors.Is(err, procurement.ErrBomNotSent),
		errors.Is(err, procurement.ErrBomClosed),
		errors.Is(err, procurement.ErrQuotationSubmitted),
		errors.Is(err, procurement.ErrQuotationNotReady):
		resputil.ConflictError(c, err.Error())
	case errors.Is(err, storage.ErrNotConfigured):
		resputil.HTTPError(c, http.StatusServiceUnavailable, err.Error(), resputil.ServiceError)
	default:
		logutils.Log.WithFields(logutils.Fields{
			"path":   c.FullPath(),
			"method": c.Request.Method,
		}).Error(err)
		resputil.Error(c, err.Error(), resputil.NotSpecified)
	}
}

// memberOf loads the team membership of a profile in a project, nil when absent.
func memberOf(c *gin.Context, db *gorm.DB, projectID, profileID uint) (*permission.Member, error) {
	var tm model.TeamMember
	err := db.WithContext(c).
		Where("project_id = ? AND profile_id = ?", projectID, profileID).
		Take(&tm).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &permission.Member{Role: tm.Role, Status: tm.Status, Disabled: tm.Disabled}, nil
}

// projectAccess is the project a request works on together with the actor's membership in it.
type projectAccess struct {
	Actor   permission.Actor
	Project *model.Project
	Member  *permission.Member
}

func loadProjectAccess(c *gin.Context, db *gorm.DB, a permission.Actor, projectID uint) (*projectAccess, error) {
	var p model.Project
	if err := db.WithContext(c).First(&p, projectID).Error; err != nil {
		return nil, err
	}
	m, err := memberOf(c, db, projectID, a.ProfileID)
	if err != nil {
		return nil, err
	}
	return &projectAccess{Actor: a, Project: &p, Member: m}, nil
}

// viewProject loads a project the actor may see.
func viewProject(c *gin.Context, db *gorm.DB, a permission.Actor, projectID uint) (*projectAccess, error) {
	pa, err := loadProjectAccess(c, db, a, projectID)
	if err != nil {
		return nil, err
	}
	if err := permission.CanViewProject(a, pa.Project, pa.Member); err != nil {
		return nil, err
	}
	return pa, nil
}

func checkDates(start, end time.Time) error {
	if start.After(end) {
		return badRequest(errInvalidDates)
	}
	return nil
}
