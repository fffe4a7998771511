package api

import (
	"net/http"
	"strconv"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"faimport/internal/logger"
	"faimport/internal/metrics"
)

// RequestIDHeader is echoed on every response.
const RequestIDHeader = "X-Request-ID"

// NewRouter mounts the controller on "/", plus /healthz and /metrics.
func NewRouter(ctl *Controller) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger())

	r.GET("/", ctl.Handle)
	r.POST("/", ctl.Handle)
	r.GET("/healthz", ctl.Health)
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))
	return r
}

// requestLogger tags the request context with a request-scoped logger and records metrics.
func requestLogger() gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()

		id := c.GetHeader(RequestIDHeader)
		if _, err := uuid.Parse(id); err != nil {
			id = uuid.NewString()
		}
		c.Header(RequestIDHeader, id)

		l := logger.WithRequestID(id).With().Str("component", "api").Logger()
		c.Request = c.Request.WithContext(logger.IntoContext(c.Request.Context(), l))

		c.Next()

		action := c.FullPath()
		switch action {
		case "/":
			action = actionOf(c)
		case "":
			action = "unmatched"
		}
		status := c.Writer.Status()
		elapsed := time.Since(start)

		metrics.HTTPRequests.WithLabelValues(c.Request.Method, action, strconv.Itoa(status)).Inc()
		metrics.HTTPRequestDuration.WithLabelValues(action).Observe(elapsed.Seconds())

		event := l.Info()
		if status >= http.StatusInternalServerError {
			event = l.Error()
		}
		event.Str("method", c.Request.Method).
			Str("action", action).
			Int("status", status).
			Dur("duration", elapsed).
			Msg("Request handled")
	}
}
