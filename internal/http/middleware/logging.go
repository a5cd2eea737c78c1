package middleware

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

const (
	loggerKey         = "logger"
	maxQueryLogLength = 512
)

// Logger scopes a child of base to each request and emits one access line
// when the handler chain returns. Successful hits on quiet paths (probes and
// scrapes) are not logged.
func Logger(base zerolog.Logger, quiet ...string) gin.HandlerFunc {
	quietSet := make(map[string]bool, len(quiet))
	for _, p := range quiet {
		quietSet[p] = true
	}

	return func(c *gin.Context) {
		began := time.Now()
		route := routeOf(c)

		reqLog := base.With().
			Str("request_id", GetRequestID(c)).
			Str("method", c.Request.Method).
			Str("path", route).
			Str("remote_ip", c.ClientIP()).
			Str("user_agent", c.Request.UserAgent()).
			Str("query", truncate(c.Request.URL.RawQuery, maxQueryLogLength)).
			Logger()
		c.Set(loggerKey, &reqLog)

		c.Next()

		code := c.Writer.Status()
		if quietSet[route] && code < http.StatusBadRequest {
			return
		}

		ev := reqLog.WithLevel(accessLevel(code, len(c.Errors) > 0)).
			Int("status", code).
			Dur("latency", time.Since(began)).
			Int("bytes_out", c.Writer.Size())
		if len(c.Errors) > 0 {
			ev = ev.Str("errors", c.Errors.String())
		}
		ev.Msg("request")
	}
}

// LoggerFrom returns the logger Logger stored on c. Without it, the global
// logger is tagged with the request id instead.
func LoggerFrom(c *gin.Context) *zerolog.Logger {
	if v, ok := c.Get(loggerKey); ok {
		if lg, ok := v.(*zerolog.Logger); ok {
			return lg
		}
	}
	l := log.With().Str("request_id", GetRequestID(c)).Logger()
	return &l
}

func accessLevel(status int, handlerErrors bool) zerolog.Level {
	switch {
	case handlerErrors, status >= http.StatusInternalServerError:
		return zerolog.ErrorLevel
	case status >= http.StatusBadRequest:
		return zerolog.WarnLevel
	}
	return zerolog.InfoLevel
}

// routeOf prefers the route template so ids do not fan out in logs.
func routeOf(c *gin.Context) string {
	if r := c.FullPath(); r != "" {
		return r
	}
	return c.Request.URL.Path
}

// truncate caps s at max bytes. A max <= 0 disables truncation.
func truncate(s string, max int) string {
	if max <= 0 || len(s) <= max {
		return s
	}
	return s[:max] + "…"
}
