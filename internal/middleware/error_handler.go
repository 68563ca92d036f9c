package middleware

import (
	"net/http"
	"time"

	"github.com/PnGunchai/MAinventory-sub000/internal/apierror"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

// ErrorHandler logs the errors handlers attach with c.Error. Domain errors are
// logged with their kind and identifiers at a level matching their severity;
// anything else is an unhandled error. When the handler wrote nothing, the
// last error decides the response envelope.
func ErrorHandler() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if len(c.Errors) == 0 {
			return
		}
		for _, ge := range c.Errors {
			logRequestError(c, ge.Err)
		}

		if c.Writer.Written() {
			return
		}
		status, body := apierror.FromError(c.Errors.Last().Err)
		c.AbortWithStatusJSON(status, body)
	}
}

func logRequestError(c *gin.Context, err error) {
	e, ok := apierror.As(err)
	if !ok {
		requestEvent(log.Error(), c).Err(err).Msg("unhandled error")
		return
	}

	var ev *zerolog.Event
	switch e.Kind {
	case apierror.KindInconsistentState, apierror.KindInternal:
		ev = log.Error()
	case apierror.KindConcurrencyConflict:
		ev = log.Warn()
	default:
		ev = log.Debug()
	}
	ev = requestEvent(ev, c).
		Str("kind", string(e.Kind)).
		Bool("retryable", e.Retryable())
	if e.Barcode != "" {
		ev = ev.Str("barcode", e.Barcode)
	}
	if e.Box != "" {
		ev = ev.Str("box", e.Box)
	}
	if e.OrderID != "" {
		ev = ev.Str("order_id", e.OrderID)
	}
	ev.Err(e.Err).Msg(e.Message)
}

func requestEvent(ev *zerolog.Event, c *gin.Context) *zerolog.Event {
	return ev.
		Str("request_id", c.GetString(RequestIDKey)).
		Str("method", c.Request.Method).
		Str("route", c.FullPath())
}

// Recovery turns a panic into the generic 500 envelope.
func Recovery() gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				requestEvent(log.Error(), c).Interface("panic", r).Msg("panic recovered")
				c.AbortWithStatusJSON(http.StatusInternalServerError, apierror.New(apierror.KindInternal, "internal server error"))
			}
		}()
		c.Next()
	}
}

// Logger writes one line per request. Failed requests carry the error kind.
func Logger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()

		ev := log.Info()
		if c.Writer.Status() >= http.StatusInternalServerError {
			ev = log.Warn()
		}
		ev = ev.
			Str("request_id", c.GetString(RequestIDKey)).
			Str("method", c.Request.Method).
			Str("path", c.Request.URL.Path).
			Int("status", c.Writer.Status()).
			Int("bytes", c.Writer.Size()).
			Dur("latency", time.Since(start))
		if last := c.Errors.Last(); last != nil {
			ev = ev.Str("kind", string(apierror.KindOf(last.Err)))
		}
		ev.Msg("request")
	}
}
