// Package batch runs multi-file uploads through the extraction dispatcher
// with bounded concurrency and per-file error isolation.
package batch

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/google/uuid"
	"golang.org/x/sync/semaphore"

	"github.com/joseph-ayodele/ape/constants"
	"github.com/joseph-ayodele/ape/internal/common"
	"github.com/joseph-ayodele/ape/internal/cost"
	"github.com/joseph-ayodele/ape/internal/entity"
	"github.com/joseph-ayodele/ape/internal/extract"
	"github.com/joseph-ayodele/ape/internal/jobs"
	"github.com/joseph-ayodele/ape/internal/metrics"
	"github.com/joseph-ayodele/ape/internal/repository"
	"github.com/joseph-ayodele/ape/internal/storage"
)

// DefaultConcurrency bounds simultaneous extractions within one batch.
const DefaultConcurrency = 3

const maxNameLength = 255

// Extractor is satisfied by *extract.Dispatcher.
type Extractor interface {
	Extract(ctx context.Context, path string, jobID string) extract.Result
}

// JobTracker is satisfied by *jobs.Tracker.
type JobTracker interface {
	Create(fileName string, size int64) string
	Get(id string) (jobs.Job, bool)
}

// Upload is one file accepted for a new batch.
type Upload struct {
	FileName    string
	ContentType string
	Size        int64
	Body        io.Reader
}

type Controller struct {
	repo      repository.BatchRepository
	store     storage.Store
	extractor Extractor
	tracker   JobTracker
	queue     *PriorityQueue
	width     int64
	enhanced  bool
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

type Option func(*Controller)

func WithConcurrency(n int) Option {
	return func(c *Controller) {
		if n > 0 {
			c.width = int64(n)
		}
	}
}

// WithQueue lets Delete drop batches that are still pending.
func WithQueue(q *PriorityQueue) Option { return func(c *Controller) { c.queue = q } }

// WithEnhancedEstimates prices new batches as if the enhanced backend will run.
func WithEnhancedEstimates(on bool) Option { return func(c *Controller) { c.enhanced = on } }

func WithMetrics(m *metrics.Metrics) Option { return func(c *Controller) { c.metrics = m } }

func NewController(repo repository.BatchRepository, store storage.Store, extractor Extractor, tracker JobTracker, logger *slog.Logger, opts ...Option) *Controller {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Controller{
		repo:      repo,
		store:     store,
		extractor: extractor,
		tracker:   tracker,
		width:     DefaultConcurrency,
		logger:    logger,
	}
	for _, o := range opts {
		o(c)
	}
	return c
}

func validateCreate(name string, uploads []Upload) error {
	v := common.NewValidator().
		Field("batch_name", name, common.Required, common.MaxLength(maxNameLength)).
		Field("files", len(uploads), common.CountBetween(1, constants.MaxBatchFiles))
	for i, u := range uploads {
		field := fmt.Sprintf("files[%d]", i)
		v.Field(field+".filename", u.FileName, common.Required)
		v.Field(field+".size", u.Size, common.MaxInt64(constants.MaxUploadBytes))
		if !constants.IsAllowedContentType(u.ContentType, u.FileName) {
			v.Field(field+".content_type", u.ContentType, func(f string, val interface{}) *common.ValidationError {
				return &common.ValidationError{Field: f, Value: val, Message: "unsupported file type"}
			})
		}
	}
	return v.Error()
}

// Create stores every upload and persists the batch with its files, all
// queued. Nothing is persisted when validation fails.
func (c *Controller) Create(ctx context.Context, userID uuid.UUID, name string, priority int, uploads []Upload) (*entity.BatchJob, error) {
	if err := validateCreate(name, uploads); err != nil {
		return nil, err
	}

	job := &entity.BatchJob{
		ID:       uuid.New(),
		UserID:   userID,
		Name:     name,
		Status:   constants.BatchStatusQueued,
		Priority: priority,
		Files:    make([]entity.BatchFile, 0, len(uploads)),
	}
	var stored []string
	cleanup := func() {
		for _, key := range stored {
			if err := c.store.Delete(context.WithoutCancel(ctx), key); err != nil {
				c.logger.Warn("batch.cleanup.failed", "batch_id", job.ID, "key", key, "error", err)
			}
		}
	}

	for _, u := range uploads {
		f := entity.BatchFile{
			ID:           uuid.New(),
			FileName:     filepath.Base(u.FileName),
			FileSize:     u.Size,
			ContentType:  u.ContentType,
			Status:       constants.JobStatusQueued,
			ServicesUsed: []string{},
		}
		f.StorageKey = storage.Key(job.ID, f.ID, f.FileName)
		if err := c.store.Put(ctx, f.StorageKey, u.Body, u.Size, u.ContentType); err != nil {
			cleanup()
			c.logger.Error("batch.store.failed", "batch_id", job.ID, "filename", f.FileName, "error", err)
			return nil, common.NewAppError("STORAGE_ERROR", "failed to store upload "+f.FileName, err)
		}
		stored = append(stored, f.StorageKey)
		job.EstimatedCost += cost.EstimateFile(constants.MapExtToFormat(filepath.Ext(f.FileName)), u.Size, c.enhanced)
		job.Files = append(job.Files, f)
	}
	job.EstimatedCost = jobs.Round4(job.EstimatedCost)

	if err := c.repo.Create(ctx, job); err != nil {
		cleanup()
		return nil, err
	}
	c.logger.Info("batch.created", "batch_id", job.ID, "user_id", userID, "files", len(job.Files), "priority", priority)
	return job, nil
}

// Process extracts every file of a queued batch, at most width at a time,
// then derives the batch status from the file outcomes. A failing file never
// stops its siblings; only a missing or already started batch is an error.
func (c *Controller) Process(ctx context.Context, batchID uuid.UUID) error {
	job, err := c.repo.Get(ctx, batchID)
	if err != nil {
		return err
	}
	if job.Status != constants.BatchStatusQueued {
		return common.NewAppError("CONFLICT", fmt.Sprintf("batch %s is %s", batchID, job.Status), common.ErrConflict)
	}
	log := c.logger.With("batch_id", batchID)

	if err := c.repo.SetStatus(ctx, batchID, constants.BatchStatusProcessing); err != nil {
		return err
	}
	job.Status = constants.BatchStatusProcessing
	c.metrics.BatchStarted()
	defer c.metrics.BatchFinished()
	log.Info("batch.process.start", "files", len(job.Files), "width", c.width)
	start := time.Now()

	sem := semaphore.NewWeighted(c.width)
	done := make(chan struct{}, len(job.Files))
	launched := 0
	for i := range job.Files {
		f := &job.Files[i]
		if err := sem.Acquire(ctx, 1); err != nil {
			c.failFile(ctx, log, f, fmt.Sprintf("not started: %v", err))
			continue
		}
		launched++
		go func() {
			defer func() { done <- struct{}{} }()
			defer sem.Release(1)
			c.processFile(ctx, log, f)
		}()
	}
	for ; launched > 0; launched-- {
		<-done
	}

	// the outcome is persisted even when ctx was cancelled mid-batch
	persistCtx := context.WithoutCancel(ctx)
	completed, failed := job.Counts()
	job.Status, job.Progress = Aggregate(len(job.Files), completed, failed)
	job.ProcessedFiles, job.FailedFiles = completed, failed
	job.ActualCost = 0
	for _, f := range job.Files {
		job.ActualCost += f.CostEstimate
	}
	job.ActualCost = jobs.Round4(job.ActualCost)
	if err := c.repo.SaveAggregate(persistCtx, job); err != nil {
		log.Error("batch.aggregate.save_failed", "error", err)
		return err
	}

	log.Info("batch.process.done",
		"status", job.Status,
		"processed", completed,
		"failed", failed,
		"actual_cost", job.ActualCost,
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	return nil
}

// Aggregate derives batch status and progress from file outcomes.
func Aggregate(total, completed, failed int) (constants.BatchStatus, float64) {
	var progress float64
	if total > 0 {
		progress = float64(completed+failed) / float64(total) * 100
	}
	switch {
	case failed > 0:
		return constants.BatchStatusCompletedWithErrors, progress
	case completed == total:
		return constants.BatchStatusCompleted, progress
	default:
		return constants.BatchStatusProcessing, progress
	}
}

func (c *Controller) processFile(ctx context.Context, log *slog.Logger, f *entity.BatchFile) {
	log = log.With("file_id", f.ID, "filename", f.FileName)
	defer func() {
		if r := recover(); r != nil {
			log.Error("batch.file.panic", "panic", r)
			c.failFile(ctx, log, f, fmt.Sprintf("panic: %v", r))
		}
	}()

	f.Status = constants.JobStatusProcessing
	f.CurrentStep = ptr("Initializing")
	c.saveFile(ctx, log, f)

	path, cleanup, err := c.store.Open(ctx, f.StorageKey)
	if err != nil {
		c.failFile(ctx, log, f, fmt.Sprintf("open stored file: %v", err))
		return
	}
	defer cleanup()

	trackID := c.tracker.Create(f.FileName, f.FileSize)
	res := c.extractor.Extract(ctx, path, trackID)
	if tj, ok := c.tracker.Get(trackID); ok {
		f.ServicesUsed = append([]string{}, tj.Services...)
		f.CostEstimate = jobs.Round4(tj.Cost)
	}

	if res.Failed() {
		msg := res.Error
		if msg == "" {
			msg = res.Text
		}
		c.failFile(ctx, log, f, msg)
		return
	}

	payload, err := json.Marshal(res)
	if err != nil {
		c.failFile(ctx, log, f, fmt.Sprintf("encode result: %v", err))
		return
	}
	f.Status = constants.JobStatusCompleted
	f.Progress = 100
	f.CurrentStep = ptr("Completed")
	f.Result = payload
	f.Error = nil
	c.saveFile(ctx, log, f)
	c.metrics.BatchFile(string(f.Status))
	log.Info("batch.file.completed", "kind", res.Kind, "method", res.Metadata.Method)
}

func (c *Controller) failFile(ctx context.Context, log *slog.Logger, f *entity.BatchFile, msg string) {
	f.Status = constants.JobStatusFailed
	f.CurrentStep = ptr("Failed")
	f.Error = &msg
	c.saveFile(ctx, log, f)
	c.metrics.BatchFile(string(f.Status))
	log.Warn("batch.file.failed", "error", msg)
}

// saveFile persists file state; a write failure is logged and the in-memory
// state still counts toward the aggregate.
func (c *Controller) saveFile(ctx context.Context, log *slog.Logger, f *entity.BatchFile) {
	if err := c.repo.UpdateFile(context.WithoutCancel(ctx), f); err != nil {
		log.Error("batch.file.save_failed", "status", f.Status, "error", err)
	}
}

// Get returns a batch owned by userID. Batches of other users are reported
// as not found.
func (c *Controller) Get(ctx context.Context, batchID, userID uuid.UUID) (*entity.BatchJob, error) {
	job, err := c.repo.Get(ctx, batchID)
	if err != nil {
		return nil, err
	}
	if job.UserID != userID {
		return nil, common.NotFoundf("batch job %s not found", batchID)
	}
	return job, nil
}

func (c *Controller) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.BatchJob, error) {
	return c.repo.List(ctx, userID, limit, offset)
}

// Delete removes a batch that is not being processed, its files and the
// stored uploads.
func (c *Controller) Delete(ctx context.Context, batchID, userID uuid.UUID) error {
	job, err := c.Get(ctx, batchID, userID)
	if err != nil {
		return err
	}
	if job.Status == constants.BatchStatusProcessing {
		return common.NewAppError("CONFLICT", "batch is being processed", common.ErrConflict)
	}
	if c.queue != nil && c.queue.Remove(batchID) {
		c.logger.Info("batch.dequeued", "batch_id", batchID, "reason", "deleted")
	}
	if err := c.repo.Delete(ctx, batchID); err != nil {
		return err
	}
	for _, f := range job.Files {
		if err := c.store.Delete(ctx, f.StorageKey); err != nil {
			c.logger.Warn("batch.cleanup.failed", "batch_id", batchID, "key", f.StorageKey, "error", err)
		}
	}
	c.logger.Info("batch.deleted", "batch_id", batchID, "files", len(job.Files))
	return nil
}

func ptr[T any](v T) *T { return &v }
