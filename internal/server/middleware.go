package server

import (
	"fmt"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/ape/internal/common"
)

const (
	headerUserID    = "X-User-ID"
	headerRequestID = "X-Request-ID"
	ctxUserID       = "ape.user_id"
)

func requestID() gin.HandlerFunc {
	return func(c *gin.Context) {
		id := strings.TrimSpace(c.GetHeader(headerRequestID))
		if id == "" {
			id = uuid.NewString()
		}
		c.Header(headerRequestID, id)
		c.Request = c.Request.WithContext(common.WithRequestID(c.Request.Context(), id))
		c.Next()
	}
}

func requestLogger(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		status := c.Writer.Status()
		attrs := []any{
			"method", c.Request.Method,
			"path", c.FullPath(),
			"status", status,
			"elapsed_ms", time.Since(start).Milliseconds(),
			"request_id", common.RequestIDFromContext(c.Request.Context()),
		}
		if uid := common.UserIDFromContext(c.Request.Context()); uid != "" {
			attrs = append(attrs, "user_id", uid)
		}
		switch {
		case status >= 500:
			logger.Error("http.request", attrs...)
		case status >= 400:
			logger.Warn("http.request", attrs...)
		default:
			logger.Debug("http.request", attrs...)
		}
	}
}

func recovery(logger *slog.Logger) gin.HandlerFunc {
	return func(c *gin.Context) {
		defer func() {
			if r := recover(); r != nil {
				logger.Error("http.panic", "path", c.Request.URL.Path, "panic", fmt.Sprint(r))
				c.AbortWithStatusJSON(http.StatusInternalServerError, errorBody{Error: errorDetail{Code: "INTERNAL", Message: "internal error"}})
			}
		}()
		c.Next()
	}
}

// requireUser parses X-User-ID into the request context. Authentication is
// handled upstream; this only establishes ownership.
func requireUser() gin.HandlerFunc {
	return func(c *gin.Context) {
		raw := strings.TrimSpace(c.GetHeader(headerUserID))
		if raw == "" {
			writeError(c, common.NewAppError("UNAUTHORIZED", "X-User-ID header is required", common.ErrUnauthorized))
			c.Abort()
			return
		}
		if err := common.NewValidator().Field(headerUserID, raw, common.UUID).Error(); err != nil {
			writeError(c, err)
			c.Abort()
			return
		}
		id := uuid.MustParse(raw)
		c.Set(ctxUserID, id)
		c.Request = c.Request.WithContext(common.WithUserID(c.Request.Context(), id.String()))
		c.Next()
	}
}

func userID(c *gin.Context) uuid.UUID {
	v, _ := c.Get(ctxUserID)
	id, _ := v.(uuid.UUID)
	return id
}
