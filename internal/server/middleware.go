package server

import (
	"time"

	"auction-engine/utils"

	"github.com/gin-gonic/gin"
)

// RequestLoggerMiddleware logs incoming requests with timing
func RequestLoggerMiddleware(c *gin.Context) {
	start := time.Now()

	c.Next() // process request

	fields := map[string]any{
		"method":  c.Request.Method,
		"path":    c.Request.URL.Path,
		"status":  c.Writer.Status(),
		"latency": time.Since(start).String(),
	}
	if route := c.FullPath(); route != "" {
		fields["route"] = route
	}
	utils.Info("HTTP Request", fields)
}
