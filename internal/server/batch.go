package server

import (
	"fmt"
	"log/slog"
	"math"
	"mime/multipart"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/ape/constants"
	"github.com/joseph-ayodele/ape/internal/batch"
	"github.com/joseph-ayodele/ape/internal/common"
	"github.com/joseph-ayodele/ape/internal/export"
)

const (
	defaultBatchPriority = 1
	defaultListLimit     = 20
	maxListLimit         = 100
	xlsxContentType      = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"
)

type BatchServer struct {
	batches  *batch.Controller
	pool     *batch.Pool
	queue    *batch.PriorityQueue
	exporter *export.Service
	logger   *slog.Logger
}

func NewBatchServer(batches *batch.Controller, pool *batch.Pool, queue *batch.PriorityQueue, exporter *export.Service, logger *slog.Logger) *BatchServer {
	if logger == nil {
		logger = slog.Default()
	}
	return &BatchServer{batches: batches, pool: pool, queue: queue, exporter: exporter, logger: logger}
}

type batchSummary struct {
	ID             string  `json:"id"`
	Name           string  `json:"name"`
	Status         string  `json:"status"`
	Priority       int     `json:"priority"`
	Progress       float64 `json:"progress"`
	TotalFiles     int     `json:"total_files"`
	ProcessedFiles int     `json:"processed_files"`
	FailedFiles    int     `json:"failed_files"`
	CreatedAt      string  `json:"created_at"`
}

// Upload accepts 1..10 files, persists the batch and queues it.
func (s *BatchServer) Upload(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, constants.MaxBatchFiles*constants.MaxUploadBytes+(1<<20))
	form, err := c.MultipartForm()
	if err != nil {
		writeError(c, common.InvalidInputf("multipart form with files is required"))
		return
	}
	name := strings.TrimSpace(firstValue(form, "batch_name"))
	priority := defaultBatchPriority
	if raw := firstValue(form, "priority"); raw != "" {
		if priority, err = strconv.Atoi(raw); err != nil {
			writeError(c, common.InvalidInputf("priority must be an integer"))
			return
		}
	}

	headers := form.File["files"]
	uploads := make([]batch.Upload, 0, len(headers))
	var totalSize int64
	defer func() {
		for _, u := range uploads {
			if f, ok := u.Body.(multipart.File); ok {
				f.Close()
			}
		}
	}()
	for _, fh := range headers {
		f, err := fh.Open()
		if err != nil {
			writeError(c, common.InvalidInputf("cannot read upload %s", fh.Filename))
			return
		}
		uploads = append(uploads, batch.Upload{
			FileName:    fh.Filename,
			ContentType: fh.Header.Get("Content-Type"),
			Size:        fh.Size,
			Body:        f,
		})
		totalSize += fh.Size
	}

	job, err := s.batches.Create(c.Request.Context(), userID(c), name, priority, uploads)
	if err != nil {
		writeError(c, err)
		return
	}
	if err := s.pool.Submit(job.ID, priority); err != nil {
		s.logger.Error("batch.submit.failed", "batch_id", job.ID, "error", err)
		writeError(c, err)
		return
	}

	c.JSON(http.StatusAccepted, gin.H{
		"message":        fmt.Sprintf("Batch job '%s' created with %d files", job.Name, len(job.Files)),
		"batch_job_id":   job.ID.String(),
		"status":         job.Status,
		"files_count":    len(job.Files),
		"total_size_mb":  math.Round(float64(totalSize)/(1<<20)*100) / 100,
		"estimated_cost": job.EstimatedCost,
		"status_url":     "/api/v1/batch/status/" + job.ID.String(),
	})
}

func firstValue(form *multipart.Form, key string) string {
	if vs := form.Value[key]; len(vs) > 0 {
		return vs[0]
	}
	return ""
}

func (s *BatchServer) Status(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}
	job, err := s.batches.Get(c.Request.Context(), id, userID(c))
	if err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, job)
}

func (s *BatchServer) List(c *gin.Context) {
	limit, err := intQuery(c, "limit", defaultListLimit)
	if err != nil {
		writeError(c, err)
		return
	}
	offset, err := intQuery(c, "offset", 0)
	if err != nil {
		writeError(c, err)
		return
	}
	if limit == 0 || limit > maxListLimit {
		limit = defaultListLimit
	}

	list, err := s.batches.List(c.Request.Context(), userID(c), limit, offset)
	if err != nil {
		writeError(c, err)
		return
	}
	out := make([]batchSummary, len(list))
	for i, j := range list {
		out[i] = batchSummary{
			ID:             j.ID.String(),
			Name:           j.Name,
			Status:         string(j.Status),
			Priority:       j.Priority,
			Progress:       j.Progress,
			TotalFiles:     j.TotalFiles,
			ProcessedFiles: j.ProcessedFiles,
			FailedFiles:    j.FailedFiles,
			CreatedAt:      j.CreatedAt.UTC().Format("2006-01-02T15:04:05.000000Z07:00"),
		}
	}
	c.JSON(http.StatusOK, gin.H{"batch_jobs": out, "total": len(out), "limit": limit, "offset": offset})
}

func (s *BatchServer) Delete(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}
	if err := s.batches.Delete(c.Request.Context(), id, userID(c)); err != nil {
		writeError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"message": "batch job " + id.String() + " deleted"})
}

func (s *BatchServer) Export(c *gin.Context) {
	id, err := uuidParam(c, "id")
	if err != nil {
		writeError(c, err)
		return
	}
	data, err := s.exporter.ExportBatchXLSX(c.Request.Context(), id, userID(c))
	if err != nil {
		s.logger.Error("export.xlsx.failed", "batch_id", id, "error", err)
		writeError(c, err)
		return
	}
	c.Header("Content-Disposition", fmt.Sprintf(`attachment; filename="batch-%s.xlsx"`, id))
	c.Data(http.StatusOK, xlsxContentType, data)
}

// Queue lists pending batches in dequeue order.
func (s *BatchServer) Queue(c *gin.Context) {
	pending := s.queue.Pending()
	c.JSON(http.StatusOK, gin.H{"pending": pending, "count": len(pending)})
}
