package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	versioncollector "github.com/prometheus/client_golang/prometheus/collectors/version"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"gorm.io/gorm"

	"github.com/monkeybits/edilcloud-back-sub000/dao/model"
	"github.com/monkeybits/edilcloud-back-sub000/internal/middleware"
	"github.com/monkeybits/edilcloud-back-sub000/internal/resputil"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/notify"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/realtime"
	"github.com/monkeybits/edilcloud-back-sub000/pkg/typology"
)

type MetricsMgr struct {
	name string
	db   *gorm.DB
}

func NewMetricsMgr(conf *RegisterConfig) Manager {
	return &MetricsMgr{
		name: "metrics",
		db:   conf.DB,
	}
}

func (mgr *MetricsMgr) GetName() string { return mgr.name }

func (mgr *MetricsMgr) RegisterPublic(metrics *gin.RouterGroup) {
	metrics.GET("", mgr.GetMetrics)
}

func (mgr *MetricsMgr) RegisterProtected(_ *gin.RouterGroup) {}

func (mgr *MetricsMgr) RegisterAdmin(_ *gin.RouterGroup) {}

var registry *prometheus.Registry

var promHTTPHandler http.Handler

// Open projects by typology, refreshed on every scrape.
var projectsGauge = prometheus.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "edilcloud_projects",
		Help: "Number of open projects by typology",
	},
	[]string{"typology"},
)

var connectionsGauge = prometheus.NewGaugeFunc(
	prometheus.GaugeOpts{
		Name: "edilcloud_realtime_profiles",
		Help: "Number of profiles with an open websocket",
	},
	func() float64 { return float64(realtime.GetHub().Profiles()) },
)

//nolint:gochecknoinits // This is the standard way to register a gin handler.
func init() {
	Registers = append(Registers, NewMetricsMgr)
	registry = prometheus.NewRegistry()
	promHTTPHandler = promhttp.HandlerFor(registry, promhttp.HandlerOpts{Registry: registry})
	registry.MustRegister(projectsGauge)
	registry.MustRegister(connectionsGauge)
	registry.MustRegister(middleware.RequestsTotal)
	registry.MustRegister(notify.CreatedTotal)
	registry.MustRegister(versioncollector.NewCollector("edilcloud"))
}

// GetMetrics godoc
// @Summary Prometheus metrics
// @Description Request counters, notifications sent and open projects by typology
// @Tags Metrics
// @Produce plain
// @Success 200 {string} string "Prometheus exposition"
// @Failure 500 {object} resputil.Response[any] "Other errors"
// @Router /metrics [get]
func (mgr *MetricsMgr) GetMetrics(c *gin.Context) {
	var ids []uint
	if err := mgr.db.WithContext(c).Model(&model.Project{}).
		Where("status = ?", model.ProjectOpen).Pluck("id", &ids).Error; err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}
	typologies, err := typology.Load(c, mgr.db, ids)
	if err != nil {
		resputil.Error(c, err.Error(), resputil.NotSpecified)
		return
	}
	setProjectCounts(typologies)
	promHTTPHandler.ServeHTTP(c.Writer, c.Request)
}

func setProjectCounts(typologies map[uint]typology.Typology) {
	counts := make(map[typology.Typology]int, len(typology.All()))
	for _, t := range typologies {
		counts[t]++
	}
	for _, t := range typology.All() {
		projectsGauge.WithLabelValues(string(t)).Set(float64(counts[t]))
	}
}
