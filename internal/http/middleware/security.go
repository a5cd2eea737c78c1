package middleware

import (
	"strings"

	"github.com/gin-gonic/gin"
)

// OpsHeaders sets baseline hardening headers for the ops API. Responses carry
// live sweep state, so they are marked uncacheable.
func OpsHeaders() gin.HandlerFunc {
	return func(c *gin.Context) {
		h := c.Writer.Header()
		h.Set("X-Content-Type-Options", "nosniff")
		h.Set("X-Frame-Options", "DENY")
		h.Set("Referrer-Policy", "no-referrer")
		h.Set("Cache-Control", "no-store")

		// Let browser dashboards read the correlation id.
		const expose = "Access-Control-Expose-Headers"
		if cur := h.Get(expose); cur == "" {
			h.Set(expose, requestIDHeader)
		} else if !strings.Contains(cur, requestIDHeader) {
			h.Set(expose, cur+", "+requestIDHeader)
		}
		c.Next()
	}
}
