// Package middleware contains the Gin middleware used by the ops HTTP surface.
//
// Install RequestID first, then Logger, then Recovery, so panics are logged
// with the request's correlation id.
package middleware

import (
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

const (
	requestIDKey    = "requestID"
	requestIDHeader = "X-Request-ID"

	maxRequestIDLength = 128
)

// RequestID reuses a well-formed inbound X-Request-ID and otherwise mints a
// UUIDv4. The id is echoed on the response.
func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader(requestIDHeader)
		if !validRequestID(rid) {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set(requestIDHeader, rid)
		c.Next()
	}
}

// GetRequestID returns the id stored by RequestID, or "".
func GetRequestID(c *gin.Context) string {
	if v, ok := c.Get(requestIDKey); ok {
		if s, ok := v.(string); ok {
			return s
		}
	}
	return ""
}

// validRequestID accepts short tokens of letters, digits and ".-_:". Anything
// else is replaced so log lines and headers never carry caller-controlled junk.
func validRequestID(s string) bool {
	if s == "" || len(s) > maxRequestIDLength {
		return false
	}
	for i := 0; i < len(s); i++ {
		switch b := s[i]; {
		case b >= 'a' && b <= 'z', b >= 'A' && b <= 'Z', b >= '0' && b <= '9':
		case b == '-', b == '_', b == '.', b == ':':
		default:
			return false
		}
	}
	return true
}
