package server

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/ape/internal/cost"
)

const healthTimeout = 2 * time.Second

type SystemServer struct {
	providers Providers
	costs     *cost.Tracker
	db        Pinger
	logger    *slog.Logger
}

// Health answers 200 when the database responds, 503 otherwise.
func (s *SystemServer) Health(c *gin.Context) {
	body := gin.H{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)}
	if s.db != nil {
		if err := s.db.HealthCheck(c.Request.Context(), healthTimeout); err != nil {
			s.logger.Warn("health.db.failed", "error", err)
			body["status"] = "degraded"
			body["database"] = "unavailable"
			c.JSON(http.StatusServiceUnavailable, body)
			return
		}
		body["database"] = "ok"
	}
	c.JSON(http.StatusOK, body)
}

func (s *SystemServer) ListProviders(c *gin.Context) {
	names := []string{}
	if s.providers != nil {
		names = s.providers.Providers()
	}
	c.JSON(http.StatusOK, gin.H{"providers": names, "count": len(names)})
}

func (s *SystemServer) Costs(c *gin.Context) {
	c.JSON(http.StatusOK, s.costs.Session())
}

func (s *SystemServer) MonthlyCosts(c *gin.Context) {
	c.JSON(http.StatusOK, s.costs.MonthlyEstimate())
}
