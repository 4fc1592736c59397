package internal

import (
	"net"
	"net/http"
	"net/url"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/monkeybits/edilcloud-back-sub000/docs"
	"github.com/monkeybits/edilcloud-back-sub000/internal/handler"
	"github.com/monkeybits/edilcloud-back-sub000/internal/middleware"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/config"
)

const (
	APIPrefix      = "/api"
	APIPrefixV1    = APIPrefix + "/v1"
	APIPrefixAdmin = APIPrefixV1 + "/admin"
	corsMaxAge     = 12 * time.Hour
)

// Register builds the gin engine with every manager mounted.
func Register(registerConfig *handler.RegisterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), gin.Logger(), middleware.Metrics())
	if c := corsConfig(); c != nil {
		r.Use(cors.New(*c))
	}

	r.GET(APIPrefix+"/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"message": "ok",
		})
	})

	docs.SwaggerInfo.BasePath = APIPrefix
	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	registerRoutes(r, registerManagers(registerConfig))
	return r
}

// corsConfig allows the configured origins, or any localhost origin in debug mode.
func corsConfig() *cors.Config {
	origins := config.GetConfig().CORS.AllowOrigins
	if len(origins) == 0 && !config.IsDebugMode() {
		return nil
	}
	c := cors.DefaultConfig()
	if len(origins) > 0 {
		c.AllowOrigins = origins
	} else {
		c.AllowOriginFunc = localOrigin
	}
	c.AddAllowHeaders("Authorization")
	c.AllowCredentials = true
	c.MaxAge = corsMaxAge
	return &c
}

// localOrigin accepts http(s) origins served from localhost or a loopback address.
func localOrigin(origin string) bool {
	u, err := url.Parse(origin)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") {
		return false
	}
	host := u.Hostname()
	if host == "localhost" {
		return true
	}
	ip := net.ParseIP(host)
	return ip != nil && ip.IsLoopback()
}

func registerRoutes(r *gin.Engine, managers []handler.Manager) {
	///////////////////////////////////////
	//// Public routers, no need login ////
	///////////////////////////////////////

	publicRouter := r.Group(APIPrefix)
	for _, mgr := range managers {
		mgr.RegisterPublic(publicRouter.Group(mgr.GetName()))
	}

	///////////////////////////////////////
	//// Protected routers, need login ////
	///////////////////////////////////////

	protectedRouter := r.Group(APIPrefixV1)
	protectedRouter.Use(middleware.AuthProtected())
	for _, mgr := range managers {
		mgr.RegisterProtected(protectedRouter.Group(mgr.GetName()))
	}

	///////////////////////////////////////
	//// Admin routers, need admin role ///
	///////////////////////////////////////

	adminRouter := r.Group(APIPrefixAdmin)
	adminRouter.Use(middleware.AuthProtected(), middleware.AuthAdmin())
	for _, mgr := range managers {
		mgr.RegisterAdmin(adminRouter.Group(mgr.GetName()))
	}
}
