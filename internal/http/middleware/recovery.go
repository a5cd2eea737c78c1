package middleware

import (
	"net/http"
	"runtime/debug"

	"github.com/gin-gonic/gin"
)

// errorBody mirrors the handlers error envelope. It is duplicated here because
// handlers imports this package.
type errorBody struct {
	RequestID string `json:"request_id"`
	Code      string `json:"code"`
	Message   string `json:"message"`
}

// Recovery converts a panic into a 500. The JSON envelope is written only if
// the handler had not started its response.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			rec := recover()
			if rec == nil {
				return
			}
			LoggerFrom(c).Error().
				Interface("panic", rec).
				Bytes("stack", debug.Stack()).
				Msg("panic recovered")

			if c.Writer.Written() {
				c.AbortWithStatus(http.StatusInternalServerError)
				return
			}
			rid := GetRequestID(c)
			c.Header(requestIDHeader, rid)
			c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{
				RequestID: rid,
				Code:      "internal_error",
				Message:   "internal server error",
			})
		}()
		c.Next()
	}
}
