package httpx

import (
	"fmt"
	"net/http"
	"net/url"
	"runtime/debug"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/MikeMC777/bikerhub/internal/logger"
)

const requestIDKey = "rid"

func RequestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		rid := c.GetHeader("X-Request-ID")
		if rid == "" {
			rid = uuid.NewString()
		}
		c.Set(requestIDKey, rid)
		c.Writer.Header().Set("X-Request-ID", rid)
		c.Next()
	}
}

// GetRequestID returns the id assigned by RequestID, if any.
func GetRequestID(c *gin.Context) string {
	return c.GetString(requestIDKey)
}

// Logger attaches a request scoped zap logger to the request context and
// writes one access line per request.
func Logger(base *zap.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		path := c.Request.URL.Path
		query := redactQuery(c.Request.URL.RawQuery)

		reqLogger := base.With(
			zap.String("request_id", GetRequestID(c)),
			zap.String("method", c.Request.Method),
			zap.String("path", path),
		)
		c.Request = c.Request.WithContext(logger.WithContext(c.Request.Context(), reqLogger))

		c.Next()

		status := c.Writer.Status()
		fields := []zap.Field{
			zap.Int("status", status),
			zap.Duration("latency", time.Since(start)),
			zap.String("client_ip", c.ClientIP()),
			zap.String("user_agent", c.Request.UserAgent()),
			zap.Int("body_size", c.Writer.Size()),
		}
		if query != "" {
			fields = append(fields, zap.String("query", query))
		}
		if len(c.Errors) > 0 {
			fields = append(fields, zap.Strings("errors", c.Errors.Errors()))
		}

		switch {
		case status >= 500:
			reqLogger.Error("http request", fields...)
		case status >= 400:
			reqLogger.Warn("http request", fields...)
		default:
			reqLogger.Info("http request", fields...)
		}
	}
}

// sensitiveParams are query keys whose values never reach the access log.
var sensitiveParams = []string{"token", "secret", "password", "passwd", "credential", "api_key", "apikey", "signature", "code"}

const redacted = "REDACTED"

func isSensitiveParam(key string) bool {
	key = strings.ToLower(key)
	for _, s := range sensitiveParams {
		if strings.Contains(key, s) {
			return true
		}
	}
	return false
}

// redactQuery masks the values of credential like parameters.
func redactQuery(raw string) string {
	if raw == "" {
		return ""
	}
	values, err := url.ParseQuery(raw)
	if err != nil {
		return "[unparsable query]"
	}
	for k, vs := range values {
		if isSensitiveParam(k) {
			for i := range vs {
				vs[i] = redacted
			}
		}
	}
	return values.Encode()
}

// Recovery turns a panic into a 500 envelope.
func Recovery(log *zap.Logger, production bool) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if rec := recover(); rec != nil {
				stack := string(debug.Stack())
				log.Error("panic recovered",
					zap.String("request_id", GetRequestID(c)),
					zap.Any("panic", rec),
					zap.String("stack", stack),
				)
				body := newErrorBody(c, http.StatusInternalServerError, "Internal Server Error")
				if !production {
					body.Message = fmt.Sprint(rec)
					body.Stack = stack
				}
				c.AbortWithStatusJSON(http.StatusInternalServerError, body)
			}
		}()
		c.Next()
	}
}

// PathLimit overrides the body limit for requests under Prefix.
type PathLimit struct {
	Prefix string
	Limit  int64
}

// BodyLimit caps the request body size at n, or at the limit of the first
// matching override.
func BodyLimit(n int64, overrides ...PathLimit) gin.HandlerFunc {
	return func(c *gin.Context) {
		limit := n
		for _, o := range overrides {
			if strings.HasPrefix(c.Request.URL.Path, o.Prefix) {
				limit = o.Limit
				break
			}
		}
		if limit > 0 && c.Request.Body != nil {
			c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, limit)
		}
		c.Next()
	}
}

// NoRoute answers unknown paths.
func NoRoute() gin.HandlerFunc {
	return func(c *gin.Context) {
		Fail(c, NotFound(fmt.Sprintf("Route %s not found", c.Request.URL.Path)))
	}
}
