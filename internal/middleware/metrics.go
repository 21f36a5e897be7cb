package middleware

import (
	"time"

	"github.com/gin-gonic/gin"

	"github.com/noah-isme/sitecms-api/internal/service"
)

const otherAction = "other"

// Metrics records request metrics. Only actions in knownActions become label
// values; anything else is reported as "other".
func Metrics(metricsSvc *service.MetricsService, knownActions ...string) gin.HandlerFunc {
	known := make(map[string]struct{}, len(knownActions))
	for _, action := range knownActions {
		known[action] = struct{}{}
	}
	return func(c *gin.Context) {
		if metricsSvc == nil {
			c.Next()
			return
		}
		start := time.Now()
		c.Next()

		path := c.FullPath()
		if path == "" {
			path = "unmatched"
		}
		action := c.Query("action")
		if _, ok := known[action]; !ok && action != "" {
			action = otherAction
		}
		metricsSvc.ObserveHTTPRequest(c.Request.Method, path, action, c.Writer.Status(), time.Since(start))
	}
}
