package internal

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/dao/query"
	"github.com/monkeybits/edilcloud-back-sub000/internal/handler"
	"github.com/monkeybits/edilcloud-back-sub000/internal/resputil"
	"github.com/monkeybits/edilcloud-back-sub000/internal/testutil"
	"github.com/monkeybits/edilcloud-back-sub000/internal/util"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/alert"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/cache"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/config"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/mediapath"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/notify"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/realtime"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/storage"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/typology"
)

type client struct {
	t     *testing.T
	r     *gin.Engine
	db    *gorm.DB
	store *storage.MemoryStore
	auth  string
}

func newClient(t *testing.T) *client {
	t.Helper()
	db := testutil.OpenDB(t)
	gin.SetMode(gin.TestMode)
	cfg := &config.Config{}
	cfg.Auth.AccessTokenSecret = "flow-test-secret"
	cfg.Auth.AccessTokenExpiryHour = 1
	cfg.Auth.RefreshTokenExpiryHour = 2
	config.SetConfig(cfg)
	query.SetDB(db)

	c := cache.New(nil, time.Minute)
	hub := realtime.NewHub()
	store := storage.NewMemoryStore()
	r := Register(&handler.RegisterConfig{
		DB:       db,
		Store:    store,
		Cache:    c,
		Hub:      hub,
		Notifier: notify.NewService(db, hub, c),
		Alert:    alert.NewAlertMgrWith("Edilcloud", "http://localhost"),
		TokenMgr: util.GetTokenMgr(),
	})
	return &client{t: t, r: r, db: db, store: store}
}

// register signs up a user owning a new company and returns its login.
func (c *client) register(username, company string) handler.LoginResp {
	c.t.Helper()
	var login handler.LoginResp
	code, _ := c.do(http.MethodPost, "/api/auth/register", map[string]any{
		"username":  username,
		"email":     username + "@example.it",
		"password":  "password123",
		"firstName": username,
		"lastName":  "Test",
		"company":   map[string]any{"name": company},
	}, &login)
	require.Equal(c.t, http.StatusOK, code, username)
	require.NotNil(c.t, login.Context.Profile, username)
	return login
}

// as switches the acting user of the following requests.
func (c *client) as(login handler.LoginResp) *client {
	c.auth = "Bearer " + login.AccessToken
	return c
}

// do sends a JSON request and decodes the data of the response into out when it is not nil.
func (c *client) do(method, path string, body any, out any) (int, resputil.ErrorCode) {
	c.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(c.t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")
	if c.auth != "" {
		req.Header.Set("Authorization", c.auth)
	}
	w := httptest.NewRecorder()
	c.r.ServeHTTP(w, req)

	var resp resputil.Response[json.RawMessage]
	require.NoError(c.t, json.Unmarshal(w.Body.Bytes(), &resp), w.Body.String())
	if out != nil && w.Code == http.StatusOK {
		require.NoError(c.t, json.Unmarshal(resp.Data, out))
	}
	return w.Code, resp.Code
}

type idResp struct {
	ID uint `json:"id"`
}

func TestProjectFlow(t *testing.T) {
	c := newClient(t)

	var login handler.LoginResp
	code, _ := c.do(http.MethodPost, "/api/auth/register", map[string]any{
		"username":  "mrossi",
		"email":     "mario@rossi.it",
		"password":  "password123",
		"firstName": "Mario",
		"lastName":  "Rossi",
		"company":   map[string]any{"name": "Rossi Costruzioni"},
	}, &login)
	require.Equal(t, http.StatusOK, code)
	require.NotNil(t, login.Context.Profile)
	c.auth = "Bearer " + login.AccessToken

	var project idResp
	code, _ = c.do(http.MethodPost, "/api/v1/projects", map[string]any{
		"name":      "Villa Bianchi",
		"dateStart": "2024-03-01T00:00:00Z",
		"dateEnd":   "2024-09-30T00:00:00Z",
	}, &project)
	require.Equal(t, http.StatusOK, code)
	require.NotZero(t, project.ID)

	code, _ = c.do(http.MethodPost, fmt.Sprintf("/api/v1/tasks/project/%d", project.ID), map[string]any{
		"name":      "Scavi",
		"dateStart": "2024-02-01T00:00:00Z",
		"dateEnd":   "2024-03-10T00:00:00Z",
	}, nil)
	assert.Equal(t, http.StatusBadRequest, code, "task starting before the project")

	var task idResp
	code, _ = c.do(http.MethodPost, fmt.Sprintf("/api/v1/tasks/project/%d", project.ID), map[string]any{
		"name":      "Fondazioni",
		"dateStart": "2024-03-04T00:00:00Z",
		"dateEnd":   "2024-03-29T00:00:00Z",
	}, &task)
	require.Equal(t, http.StatusOK, code)

	var progressed struct {
		Progress      int        `json:"progress"`
		DateCompleted *time.Time `json:"dateCompleted"`
	}
	code, _ = c.do(http.MethodPut, fmt.Sprintf("/api/v1/tasks/%d/progress", task.ID),
		map[string]any{"progress": 100}, &progressed)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, 100, progressed.Progress)
	assert.NotNil(t, progressed.DateCompleted)

	code, _ = c.do(http.MethodPut, fmt.Sprintf("/api/v1/tasks/%d/progress", task.ID),
		map[string]any{"progress": 101}, nil)
	assert.Equal(t, http.StatusBadRequest, code)
}

func TestFolderDepth(t *testing.T) {
	c := newClient(t)

	var login handler.LoginResp
	code, _ := c.do(http.MethodPost, "/api/auth/register", map[string]any{
		"username":  "lverdi",
		"email":     "luca@verdi.it",
		"password":  "password123",
		"firstName": "Luca",
		"lastName":  "Verdi",
		"company":   map[string]any{"name": "Verdi Impianti"},
	}, &login)
	require.Equal(t, http.StatusOK, code)
	c.auth = "Bearer " + login.AccessToken
	companyID := login.Context.Profile.CompanyID

	var parent *uint
	for _, name := range []string{"Documenti", "Contratti", "2024"} {
		var folder idResp
		code, _ = c.do(http.MethodPost, "/api/v1/folders", map[string]any{
			"ownerType": "companies",
			"ownerID":   companyID,
			"name":      name,
			"parentID":  parent,
		}, &folder)
		require.Equal(t, http.StatusOK, code, name)
		parent = &folder.ID
	}

	code, errCode := c.do(http.MethodPost, "/api/v1/folders", map[string]any{
		"ownerType": "companies",
		"ownerID":   companyID,
		"name":      "Marzo",
		"parentID":  parent,
	}, nil)
	assert.Equal(t, http.StatusUnprocessableEntity, code)
	assert.Equal(t, resputil.MaxDepthExceeded, errCode)

	code, _ = c.do(http.MethodPost, "/api/v1/folders", map[string]any{
		"ownerType": "companies",
		"ownerID":   companyID,
		"name":      "Documenti",
	}, nil)
	assert.Equal(t, http.StatusConflict, code, "duplicate root folder")
}

func TestSharedProjectFlow(t *testing.T) {
	c := newClient(t)
	owner := c.register("gbianchi", "Bianchi Edilizia")
	sub := c.register("fneri", "Neri Serramenti")
	subCompany := sub.Context.Profile.CompanyID

	var project, empty idResp
	code, _ := c.as(owner).do(http.MethodPost, "/api/v1/projects", map[string]any{"name": "Condominio Aurora"}, &project)
	require.Equal(t, http.StatusOK, code)
	code, _ = c.do(http.MethodPost, "/api/v1/projects", map[string]any{"name": "Magazzino"}, &empty)
	require.Equal(t, http.StatusOK, code)

	var windows, doors idResp
	code, _ = c.do(http.MethodPost, fmt.Sprintf("/api/v1/tasks/project/%d", project.ID), map[string]any{
		"name":              "Finestre",
		"assignedCompanyID": subCompany,
		"dateStart":         "2024-04-01T00:00:00Z",
		"dateEnd":           "2024-04-30T00:00:00Z",
	}, &windows)
	require.Equal(t, http.StatusOK, code)
	code, _ = c.do(http.MethodPost, fmt.Sprintf("/api/v1/tasks/project/%d", project.ID), map[string]any{
		"name":              "Porte",
		"assignedCompanyID": subCompany,
		"dateStart":         "2024-05-01T00:00:00Z",
		"dateEnd":           "2024-05-31T00:00:00Z",
	}, &doors)
	require.Equal(t, http.StatusOK, code)

	var clones []model.Project
	require.NoError(t, c.db.Where("shared_project_id = ?", project.ID).Find(&clones).Error)
	require.Len(t, clones, 1, "one clone per assignee company")
	clone := clones[0]
	assert.Equal(t, subCompany, clone.CompanyID)
	assert.Equal(t, "Condominio Aurora", clone.Name)

	var mirror model.Task
	require.NoError(t, c.db.Where("shared_task_id = ?", windows.ID).Take(&mirror).Error)
	assert.Equal(t, clone.ID, mirror.ProjectID)
	var mirrors int64
	require.NoError(t, c.db.Model(&model.Task{}).Where("project_id = ?", clone.ID).Count(&mirrors).Error)
	assert.EqualValues(t, 2, mirrors)

	// the assignee is not in the origin team but may report progress on its task
	code, _ = c.as(sub).do(http.MethodPut, fmt.Sprintf("/api/v1/tasks/%d/progress", windows.ID),
		map[string]any{"progress": 40}, nil)
	require.Equal(t, http.StatusOK, code)
	require.NoError(t, c.db.First(&mirror, mirror.ID).Error)
	assert.Equal(t, 40, mirror.Progress)

	code, _ = c.do(http.MethodPut, fmt.Sprintf("/api/v1/tasks/%d/progress", mirror.ID),
		map[string]any{"progress": 100}, nil)
	require.Equal(t, http.StatusOK, code)
	var origin model.Task
	require.NoError(t, c.db.First(&origin, windows.ID).Error)
	assert.Equal(t, 100, origin.Progress)
	assert.NotNil(t, origin.DateCompleted)

	code, _ = c.do(http.MethodPut, fmt.Sprintf("/api/v1/tasks/%d", windows.ID), map[string]any{
		"name":      "Finestre",
		"dateStart": "2024-04-01T00:00:00Z",
		"dateEnd":   "2024-04-30T00:00:00Z",
	}, nil)
	assert.Equal(t, http.StatusForbidden, code, "the assignee cannot edit the origin task")

	ids := []uint{project.ID, clone.ID, empty.ID}
	types, err := typology.Load(context.Background(), c.db, ids)
	require.NoError(t, err)
	assert.Equal(t, typology.Shared, types[project.ID])
	assert.Equal(t, typology.Internal, types[clone.ID])
	assert.Equal(t, typology.Generic, types[empty.ID])

	code, _ = c.as(owner).do(http.MethodPost, fmt.Sprintf("/api/v1/tasks/project/%d", project.ID), map[string]any{
		"name":      "Intonaco",
		"dateStart": "2024-06-01T00:00:00Z",
		"dateEnd":   "2024-06-30T00:00:00Z",
	}, nil)
	require.Equal(t, http.StatusOK, code)
	types, err = typology.Load(context.Background(), c.db, ids)
	require.NoError(t, err)
	assert.Equal(t, typology.InternalShared, types[project.ID])

	onOrigin := model.Activity{TaskID: windows.ID, Title: "Posa", DateTimeStart: time.Now(), DateTimeEnd: time.Now()}
	onMirror := model.Activity{TaskID: mirror.ID, Title: "Sopralluogo", DateTimeStart: time.Now(), DateTimeEnd: time.Now()}
	require.NoError(t, c.db.Create(&onOrigin).Error)
	require.NoError(t, c.db.Create(&onMirror).Error)

	code, _ = c.do(http.MethodDelete, fmt.Sprintf("/api/v1/projects/%d", project.ID), nil, nil)
	require.Equal(t, http.StatusOK, code)

	var left int64
	require.NoError(t, c.db.Model(&model.Project{}).Where("id IN ?", []uint{project.ID, clone.ID}).Count(&left).Error)
	assert.Zero(t, left, "origin and clone are deleted")
	require.NoError(t, c.db.Model(&model.Task{}).Where("project_id IN ?", []uint{project.ID, clone.ID}).Count(&left).Error)
	assert.Zero(t, left, "tasks and mirrors are deleted")
	require.NoError(t, c.db.Model(&model.Activity{}).Where("id IN ?", []uint{onOrigin.ID, onMirror.ID}).Count(&left).Error)
	assert.Zero(t, left, "activities are deleted")
	require.NoError(t, c.db.Model(&model.TeamMember{}).Where("project_id = ?", clone.ID).Count(&left).Error)
	assert.Zero(t, left, "clone team is deleted")
	require.NoError(t, c.db.Model(&model.Project{}).Where("id = ?", empty.ID).Count(&left).Error)
	assert.EqualValues(t, 1, left, "unrelated projects survive")
}

func TestMessageMediaAccess(t *testing.T) {
	c := newClient(t)
	sender := c.register("aconti", "Conti Impianti")
	other := c.register("pgallo", "Gallo Coperture")

	seedMedia := func(companyID uint, name string) model.Media {
		m := model.Media{
			OwnerType: model.OwnerCompany,
			OwnerID:   companyID,
			Kind:      model.MediaDocument,
			Title:     name,
			FileName:  name,
			ObjectKey: mediapath.ObjectKey(model.OwnerCompany, companyID, model.MediaDocument, "", name),
			Size:      10,
		}
		require.NoError(t, c.db.Create(&m).Error)
		return m
	}
	foreign := seedMedia(other.Context.Profile.CompanyID, "offerta.pdf")
	own := seedMedia(sender.Context.Profile.CompanyID, "preventivo.pdf")

	var talk idResp
	code, _ := c.as(sender).do(http.MethodPost, fmt.Sprintf("/api/v1/talks/profile/%d", other.Context.Profile.ID), nil, &talk)
	require.Equal(t, http.StatusOK, code)

	code, _ = c.do(http.MethodPost, fmt.Sprintf("/api/v1/talks/%d/messages", talk.ID),
		map[string]any{"body": "guarda", "mediaID": foreign.ID}, nil)
	assert.Equal(t, http.StatusForbidden, code, "media of another company")

	code, _ = c.do(http.MethodPost, fmt.Sprintf("/api/v1/talks/%d/messages", talk.ID),
		map[string]any{"body": "guarda", "mediaID": own.ID}, nil)
	assert.Equal(t, http.StatusOK, code)

	var attached int64
	require.NoError(t, c.db.Model(&model.Message{}).Where("talk_id = ? AND media_id IS NOT NULL", talk.ID).Count(&attached).Error)
	assert.EqualValues(t, 1, attached)
}

func TestFolderRelocate(t *testing.T) {
	c := newClient(t)
	login := c.register("smarino", "Marino Geometri")
	companyID := login.Context.Profile.CompanyID
	c.as(login)

	var docs, contracts idResp
	code, _ := c.do(http.MethodPost, "/api/v1/folders", map[string]any{
		"ownerType": "companies", "ownerID": companyID, "name": "Documenti",
	}, &docs)
	require.Equal(t, http.StatusOK, code)
	code, _ = c.do(http.MethodPost, "/api/v1/folders", map[string]any{
		"ownerType": "companies", "ownerID": companyID, "name": "Contratti", "parentID": docs.ID,
	}, &contracts)
	require.Equal(t, http.StatusOK, code)

	key := mediapath.ObjectKey(model.OwnerCompany, companyID, model.MediaDocument, "Documenti/Contratti", "appalto.pdf")
	require.NoError(t, c.store.Put(context.Background(), key, bytes.NewReader([]byte("pdf")), 3, "application/pdf"))
	file := model.Media{
		OwnerType: model.OwnerCompany,
		OwnerID:   companyID,
		Kind:      model.MediaDocument,
		FolderID:  &contracts.ID,
		Title:     "Appalto",
		FileName:  "appalto.pdf",
		ObjectKey: key,
		Size:      3,
	}
	require.NoError(t, c.db.Create(&file).Error)

	keyOf := func() string {
		var m model.Media
		require.NoError(t, c.db.First(&m, file.ID).Error)
		return m.ObjectKey
	}
	pathOf := func(id uint) string {
		var f model.Folder
		require.NoError(t, c.db.First(&f, id).Error)
		return f.Path
	}

	code, _ = c.do(http.MethodPut, fmt.Sprintf("/api/v1/folders/%d/rename", docs.ID), map[string]any{"name": "Archivio"}, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Archivio", pathOf(docs.ID))
	assert.Equal(t, "Archivio/Contratti", pathOf(contracts.ID))
	renamed := keyOf()
	assert.Contains(t, renamed, "/Archivio/Contratti/")
	assert.True(t, c.store.Has(renamed))
	assert.False(t, c.store.Has(key), "old object is removed")

	code, _ = c.do(http.MethodPut, fmt.Sprintf("/api/v1/folders/%d/move", contracts.ID), map[string]any{"parentID": nil}, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Contratti", pathOf(contracts.ID))
	moved := keyOf()
	assert.Equal(t, mediapath.RekeyObject(renamed, model.OwnerCompany, companyID, model.MediaDocument, "Contratti", "appalto.pdf"), moved)
	assert.True(t, c.store.Has(moved))
	assert.False(t, c.store.Has(renamed))

	code, _ = c.do(http.MethodPut, fmt.Sprintf("/api/v1/folders/%d/move", docs.ID), map[string]any{"parentID": contracts.ID}, nil)
	require.Equal(t, http.StatusOK, code)
	assert.Equal(t, "Contratti/Archivio", pathOf(docs.ID))
}

func TestQuotationAccept(t *testing.T) {
	c := newClient(t)
	buyer := c.register("rferri", "Ferri Costruzioni")
	first := c.register("mlonghi", "Longhi Laterizi")
	second := c.register("dsala", "Sala Ferramenta")

	bom := model.Bom{CompanyID: buyer.Context.Profile.CompanyID, Title: "Mattoni", Status: model.BomSent}
	require.NoError(t, c.db.Create(&bom).Error)
	now := time.Now()
	quote := func(companyID uint) model.Quotation {
		q := model.Quotation{BomID: bom.ID, CompanyID: companyID, Title: "Offerta", Status: model.QuotationSubmitted, SubmittedAt: &now}
		require.NoError(t, c.db.Create(&q).Error)
		return q
	}
	winner := quote(first.Context.Profile.CompanyID)
	loser := quote(second.Context.Profile.CompanyID)

	code, _ := c.as(first).do(http.MethodPost, fmt.Sprintf("/api/v1/quotations/%d/accept", winner.ID), nil, nil)
	assert.Equal(t, http.StatusForbidden, code, "suppliers cannot accept")

	code, _ = c.as(buyer).do(http.MethodPost, fmt.Sprintf("/api/v1/quotations/%d/accept", winner.ID), nil, nil)
	require.Equal(t, http.StatusOK, code)

	require.NoError(t, c.db.First(&winner, winner.ID).Error)
	require.NoError(t, c.db.First(&loser, loser.ID).Error)
	require.NoError(t, c.db.First(&bom, bom.ID).Error)
	assert.Equal(t, model.QuotationAccepted, winner.Status)
	assert.Equal(t, model.QuotationRejected, loser.Status)
	assert.Equal(t, model.BomClosed, bom.Status)

	code, _ = c.do(http.MethodPost, fmt.Sprintf("/api/v1/quotations/%d/accept", loser.ID), nil, nil)
	assert.Equal(t, http.StatusConflict, code)
	code, _ = c.do(http.MethodPost, fmt.Sprintf("/api/v1/quotations/%d/accept", winner.ID), nil, nil)
	assert.Equal(t, http.StatusConflict, code)
}
