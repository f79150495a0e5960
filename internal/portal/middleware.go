package portal

import (
	"log/slog"
	"net/http"
	"net/url"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/kilimopesa/internal/guard"
)

const (
	requestIDHeader = "X-Request-ID"
	requestIDKey    = "request_id"
	// retryAfterSeconds is sent while the session is still being restored
	retryAfterSeconds = "1"
)

// securityHeadersMiddleware adds security-related HTTP headers
func securityHeadersMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		// Prevent MIME type sniffing
		c.Writer.Header().Set("X-Content-Type-Options", "nosniff")
		// Prevent clickjacking
		c.Writer.Header().Set("X-Frame-Options", "DENY")
		c.Writer.Header().Set("Referrer-Policy", "strict-origin-when-cross-origin")
		// HSTS (only if using HTTPS)
		if c.Request.TLS != nil {
			c.Writer.Header().Set("Strict-Transport-Security", "max-age=31536000; includeSubDomains")
		}

		c.Next()
	}
}

// cacheControlMiddleware keeps session-dependent answers out of caches
func cacheControlMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		if !strings.HasPrefix(c.Request.URL.Path, "/assets/") {
			c.Writer.Header().Set("Cache-Control", "no-cache, no-store, must-revalidate")
			c.Writer.Header().Set("Pragma", "no-cache")
			c.Writer.Header().Set("Expires", "0")
		}
		c.Next()
	}
}

// requestIDMiddleware tags each request, reusing a caller supplied id
func requestIDMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := c.GetHeader(requestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Set(requestIDKey, id)
		c.Writer.Header().Set(requestIDHeader, id)
		c.Next()
	}
}

// jsonBodyLimitMiddleware limits the size of JSON request bodies
func jsonBodyLimitMiddleware(maxBytes int64) gin.HandlerFunc {
	return func(c *gin.Context) {
		if c.Request.Method != http.MethodGet && c.Request.Method != http.MethodHead && c.Request.Method != http.MethodOptions {
			if strings.Contains(c.GetHeader("Content-Type"), "application/json") {
				if c.Request.ContentLength > maxBytes {
					c.AbortWithStatusJSON(http.StatusRequestEntityTooLarge, ErrorResponse{
						Error: "Request body too large",
					})
					return
				}
				c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, maxBytes)
			}
		}
		c.Next()
	}
}

// loggerMiddleware logs HTTP requests
func loggerMiddleware(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		logger.InfoContext(c.Request.Context(), "HTTP request",
			"method", c.Request.Method,
			"path", c.Request.URL.Path,
			"status", c.Writer.Status(),
			"request_id", c.GetString(requestIDKey),
			"remote_addr", c.Request.RemoteAddr,
		)
	}
}

// requirePolicy gates a page with the route guard
func (s *Server) requirePolicy(policy guard.Policy) gin.HandlerFunc {
	return func(c *gin.Context) {
		decision := guard.Decide(s.store.Snapshot(), policy)

		switch decision {
		case guard.Allow:
			c.Next()
		case guard.Wait:
			c.Header("Retry-After", retryAfterSeconds)
			c.AbortWithStatusJSON(http.StatusServiceUnavailable, ErrorResponse{
				Error: "Session is still loading",
				Code:  decision.String(),
			})
		default:
			target, _ := guard.Target(decision, s.paths)
			c.Redirect(http.StatusFound, withNext(target, c.Request.URL.RequestURI()))
			c.Abort()
		}
	}
}

// withNext appends the page to return to after the redirect, query
// string included
func withNext(target, next string) string {
	return target + "?next=" + url.QueryEscape(next)
}

// safeNext accepts only local absolute paths as redirect targets
func safeNext(next, fallback string) string {
	if !strings.HasPrefix(next, "/") || strings.HasPrefix(next, "//") || strings.HasPrefix(next, "/\\") {
		return fallback
	}
	return next
}
