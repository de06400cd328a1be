package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/newrelic/go-agent/v3/newrelic"

	"ridedispatch/internal/logger"
)

// ErrorReporter logs errors that handlers attached with c.Error and records
// them on the request's New Relic transaction, if any.
func ErrorReporter(log logger.Logger) gin.HandlerFunc {
	log = log.Action("http")
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		txn := newrelic.FromContext(c.Request.Context())
		for _, e := range c.Errors {
			txn.NoticeError(e.Err)
			log.Error("request failed", e.Err,
				"method", c.Request.Method,
				"route", c.FullPath(),
				"status", c.Writer.Status(),
			)
		}
	}
}
