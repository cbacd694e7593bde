package middleware

import (
	"time"

	"neuroscreen-go/pkg/log"

	"github.com/gin-gonic/gin"
)

// RequestLogger logs one structured line per request. Bodies are not logged:
// chunk uploads and dataset payloads are large and binary.
func RequestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		startTime := time.Now()

		c.Next()

		log.Infow("HTTP Request Log",
			"statusCode", c.Writer.Status(),
			"latency", time.Since(startTime).String(),
			"clientIP", c.ClientIP(),
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"responseSize", c.Writer.Size(),
		)
	}
}
