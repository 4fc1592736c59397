package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/websocket"

	"github.com/monkeybits/edilcloud-back-sub000/pkg/config"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/logutils"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/realtime"
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewWebsocketMgr)
}

type WebsocketMgr struct {
	name string
	hub  *realtime.Hub
}

func NewWebsocketMgr(conf *RegisterConfig) Manager {
	hub := conf.Hub
	if hub == nil {
		hub = realtime.GetHub()
	}
	return &WebsocketMgr{
		name: "ws",
		hub:  hub,
	}
}

func (mgr *WebsocketMgr) GetName() string { return mgr.name }

func (mgr *WebsocketMgr) RegisterPublic(_ *gin.RouterGroup) {}
func (mgr *WebsocketMgr) RegisterAdmin(_ *gin.RouterGroup)  {}

func (mgr *WebsocketMgr) RegisterProtected(g *gin.RouterGroup) {
	g.GET("", mgr.Connect)
}

// originAllowed accepts same-host requests, configured CORS origins, and anything in debug mode.
func originAllowed(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" || config.IsDebugMode() {
		return true
	}
	for _, o := range config.GetConfig().CORS.AllowOrigins {
		if o == "*" || o == origin {
			return true
		}
	}
	return origin == "http://"+r.Host || origin == "https://"+r.Host
}

// Connect godoc
// @Summary Realtime events of the acting profile
// @Description Upgrades to a websocket that receives JSON frames {event, data}: notifications and
// @Description talk messages. The token may be passed in the token query parameter.
// @Tags Realtime
// @Security Bearer
// @Param token query string false "access token"
// @Success 101 {string} string "Switching Protocols"
// @Router /v1/ws [get]
func (mgr *WebsocketMgr) Connect(c *gin.Context) {
	a, ok := actorOf(c)
	if !ok {
		return
	}
	upgrade := websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     originAllowed,
	}
	ws, err := upgrade.Upgrade(c.Writer, c.Request, nil)
	if err != nil {
		// Upgrade has already answered with an HTTP error.
		logutils.Log.Warnf("websocket upgrade: %v", err)
		return
	}
	client := realtime.NewClient(a.ProfileID)
	logutils.Log.WithFields(logutils.Fields{"profile": a.ProfileID, "client": client.ID}).Info("websocket connected")
	mgr.hub.Serve(ws, client)
	logutils.Log.WithFields(logutils.Fields{"profile": a.ProfileID, "client": client.ID}).Info("websocket closed")
}
