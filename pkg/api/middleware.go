package api

import (
	"net/http"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/volstore/volstore/pkg/errors"
)

const (
	// RequestIDHeader carries the request id in both directions.
	RequestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
)

// requestID tags the request with the caller's X-Request-ID or a new UUID.
func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(RequestIDHeader)
		if id == "" {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Header(RequestIDHeader, id)
		c.Next()
	}
}

func (s *Server) accessLog() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		s.logger.Debug().
			Str("request_id", c.GetString(requestIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("Request processed")
	}
}

func (s *Server) recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if p := recover(); p != nil {
				s.logger.Error().
					Interface("panic", p).
					Str("request_id", c.GetString(requestIDKey)).
					Str("path", c.Request.URL.Path).
					Msg("Recovered from panic")
				c.AbortWithStatusJSON(http.StatusInternalServerError, gin.H{
					"error":      "internal error",
					"code":       errors.ErrCodePanicRecovered,
					"request_id": c.GetString(requestIDKey),
				})
			}
		}()
		c.Next()
	}
}

func corsConfig(origins []string) (cors.Config, bool) {
	if len(origins) == 0 {
		return cors.Config{}, false
	}
	c := cors.DefaultConfig()
	c.AllowMethods = []string{http.MethodGet, http.MethodHead, http.MethodDelete, http.MethodOptions}
	c.AllowHeaders = []string{"Origin", "Content-Type", RequestIDHeader}
	c.ExposeHeaders = []string{RequestIDHeader}
	for _, o := range origins {
		if o == "*" {
			c.AllowAllOrigins = true
			return c, true
		}
	}
	c.AllowOrigins = origins
	return c, true
}
