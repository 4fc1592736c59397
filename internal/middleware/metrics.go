package middleware

import (
	"strconv"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
)

// RequestsTotal counts served requests by route template, method and status.
var RequestsTotal = prometheus.NewCounterVec(prometheus.CounterOpts{
	Name: "edilcloud_http_requests_total",
	Help: "Number of HTTP requests served",
}, []string{"route", "method", "status"})

func Metrics() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		route := c.FullPath()
		if route == "" {
			route = "unmatched"
		}
		RequestsTotal.WithLabelValues(route, c.Request.Method, strconv.Itoa(c.Writer.Status())).Inc()
	}
}
