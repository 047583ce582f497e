package server

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/ape/internal/common"
	"github.com/joseph-ayodele/ape/internal/jobs"
)

type JobsServer struct {
	tracker *jobs.Tracker
	logger  *slog.Logger
}

func NewJobsServer(tracker *jobs.Tracker, logger *slog.Logger) *JobsServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &JobsServer{tracker: tracker, logger: logger}
}

func (s *JobsServer) List(c *gin.Context) {
	all := s.tracker.List()
	active := 0
	for _, j := range all {
		if j.Status.IsActive() {
			active++
		}
	}
	c.JSON(http.StatusOK, gin.H{
		"jobs":        jobs.Views(all),
		"total_jobs":  len(all),
		"active_jobs": active,
	})
}

func (s *JobsServer) ListActive(c *gin.Context) {
	active := s.tracker.ListActive()
	c.JSON(http.StatusOK, gin.H{"active_jobs": jobs.Views(active), "count": len(active)})
}

func (s *JobsServer) Get(c *gin.Context) {
	id := c.Param("id")
	j, ok := s.tracker.Get(id)
	if !ok {
		writeError(c, common.NotFoundf("processing job %s not found", id))
		return
	}
	c.JSON(http.StatusOK, j.View())
}

// Cancel marks a queued or processing job failed. Terminal jobs answer 400.
func (s *JobsServer) Cancel(c *gin.Context) {
	id := c.Param("id")
	if err := s.tracker.Cancel(id); err != nil {
		if errors.Is(err, jobs.ErrIllegalTransition) {
			j, _ := s.tracker.Get(id)
			writeError(c, common.InvalidInputf("cannot cancel job with status: %s", j.Status))
			return
		}
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "processing job " + id + " cancelled", "job_id": id})
}
