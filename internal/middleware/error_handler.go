package middleware

import (
	"net/http"
	"time"

	"blendcloud/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
)

// ErrorHandler converts errors attached with c.Error into the standard
// envelope. Only INTERNAL causes are logged; the client never sees them.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 || c.Writer.Written() {
			return
		}

		err := c.Errors.Last().Err
		code := apierror.CodeOf(err)
		if code == apierror.CodeInternal {
			zerolog.Ctx(c.Request.Context()).Error().
				Str("path", c.FullPath()).
				Str("method", c.Request.Method).
				Err(err).
				Msg("unhandled error")
		}
		c.AbortWithStatusJSON(apierror.HTTPStatus(code), apierror.FromError(err))
	}
}

// Recovery handles panics and converts them into 500 responses.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				zerolog.Ctx(c.Request.Context()).Error().
					Interface("panic", r).
					Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, apierror.New(apierror.CodeInternal, "Error interno del servidor"))
			}
		}()
		c.Next()
	}
}

// Logger logs each request with method, path, status and latency through the
// request-scoped logger.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ev := zerolog.Ctx(c.Request.Context()).Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = zerolog.Ctx(c.Request.Context()).Warn()
		}
		ev.Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Dur("latency", time.Since(start)).
			Msg("request")
	}
}
