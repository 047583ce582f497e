// Package jobs tracks in-flight extraction jobs in memory.
package jobs

import (
	"fmt"
	"log/slog"
	"slices"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/hashicorp/golang-lru/v2/simplelru"

	"github.com/joseph-ayodele/ape/constants"
	"github.com/joseph-ayodele/ape/internal/common"
)

// DefaultCapacity is how many jobs are retained before the oldest is evicted.
const DefaultCapacity = 100

// ErrIllegalTransition is returned when a terminal job is mutated.
var ErrIllegalTransition = fmt.Errorf("illegal job state transition: %w", common.ErrConflict)

// Job is one tracked extraction. Values returned by the Tracker are copies.
type Job struct {
	ID          string
	FileName    string
	FileSize    int64
	Status      constants.JobStatus
	Progress    int
	CurrentStep string
	StartTime   time.Time
	EndTime     *time.Time
	Result      any
	Error       string
	Services    []string
	Cost        float64
}

func (j *Job) clone() Job {
	c := *j
	c.Services = slices.Clone(j.Services)
	if j.EndTime != nil {
		t := *j.EndTime
		c.EndTime = &t
	}
	return c
}

// Tracker is a bounded, concurrency-safe registry of jobs. Insertion order is
// start-time order, and reads never refresh recency, so the LRU's eviction
// victim is always the oldest job.
type Tracker struct {
	mu     sync.Mutex
	jobs   *simplelru.LRU[string, *Job]
	now    func() time.Time
	logger *slog.Logger
}

type Option func(*trackerOptions)

type trackerOptions struct {
	capacity int
	now      func() time.Time
}

func WithCapacity(n int) Option {
	return func(o *trackerOptions) {
		if n > 0 {
			o.capacity = n
		}
	}
}

// WithClock overrides time.Now, for tests.
func WithClock(now func() time.Time) Option {
	return func(o *trackerOptions) {
		if now != nil {
			o.now = now
		}
	}
}

func NewTracker(logger *slog.Logger, opts ...Option) *Tracker {
	if logger == nil {
		logger = slog.Default()
	}
	o := trackerOptions{capacity: DefaultCapacity, now: time.Now}
	for _, fn := range opts {
		fn(&o)
	}
	t := &Tracker{now: o.now, logger: logger}
	// capacity is validated above, so NewLRU cannot fail
	t.jobs, _ = simplelru.NewLRU[string, *Job](o.capacity, func(id string, j *Job) {
		t.logger.Debug("jobs.evicted", "job_id", id, "status", j.Status, "start_time", j.StartTime)
	})
	return t
}

// Create registers a queued job and returns its id.
func (t *Tracker) Create(fileName string, size int64) string {
	id := uuid.New().String()
	j := &Job{
		ID:        id,
		FileName:  fileName,
		FileSize:  size,
		Status:    constants.JobStatusQueued,
		StartTime: t.now(),
	}

	t.mu.Lock()
	t.jobs.Add(id, j)
	t.mu.Unlock()

	t.logger.Debug("jobs.created", "job_id", id, "file_name", fileName, "file_size", size)
	return id
}

// Update moves a job to processing. Unknown ids are ignored. Progress is
// clamped to [0,100] and never goes backwards.
func (t *Tracker) Update(id string, progress int, step, service string, costDelta float64) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	j, ok := t.jobs.Peek(id)
	if !ok {
		return nil
	}
	if j.Status.IsTerminal() {
		return t.reject(j, "update")
	}

	j.Status = constants.JobStatusProcessing
	progress = min(max(progress, 0), 100)
	if progress > j.Progress {
		j.Progress = progress
	}
	if step != "" {
		j.CurrentStep = step
	}
	if service != "" && !slices.Contains(j.Services, service) {
		j.Services = append(j.Services, service)
	}
	if costDelta > 0 {
		j.Cost += costDelta
	}
	return nil
}

// Complete marks a job done with its result.
func (t *Tracker) Complete(id string, result any) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	j, ok := t.jobs.Peek(id)
	if !ok {
		return nil
	}
	if j.Status.IsTerminal() {
		return t.reject(j, "complete")
	}
	end := t.now()
	j.Status = constants.JobStatusCompleted
	j.Progress = 100
	j.CurrentStep = "completed"
	j.EndTime = &end
	j.Result = result
	return nil
}

// Fail marks a job failed with msg.
func (t *Tracker) Fail(id string, msg string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	j, ok := t.jobs.Peek(id)
	if !ok {
		return nil
	}
	if j.Status.IsTerminal() {
		return t.reject(j, "fail")
	}
	t.fail(j, msg)
	return nil
}

// Cancel fails a queued or processing job with constants.CancelledByUser.
// In-flight extraction is not interrupted; its later reports are rejected.
func (t *Tracker) Cancel(id string) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	j, ok := t.jobs.Peek(id)
	if !ok {
		return common.NotFoundf("job %s not found", id)
	}
	if !j.Status.IsActive() {
		return t.reject(j, "cancel")
	}
	t.fail(j, constants.CancelledByUser)
	t.logger.Info("jobs.cancelled", "job_id", id)
	return nil
}

func (t *Tracker) fail(j *Job, msg string) {
	end := t.now()
	j.Status = constants.JobStatusFailed
	j.CurrentStep = "failed"
	j.EndTime = &end
	j.Error = msg
}

func (t *Tracker) reject(j *Job, op string) error {
	t.logger.Warn("jobs.transition.rejected", "job_id", j.ID, "op", op, "status", j.Status)
	return fmt.Errorf("%s on %s job %s: %w", op, j.Status, j.ID, ErrIllegalTransition)
}

// Get returns a snapshot of one job.
func (t *Tracker) Get(id string) (Job, bool) {
	t.mu.Lock()
	defer t.mu.Unlock()
	j, ok := t.jobs.Peek(id)
	if !ok {
		return Job{}, false
	}
	return j.clone(), true
}

// List returns every retained job, oldest first.
func (t *Tracker) List() []Job {
	return t.collect(func(*Job) bool { return true })
}

// ListActive returns queued and processing jobs, oldest first.
func (t *Tracker) ListActive() []Job {
	return t.collect(func(j *Job) bool { return j.Status.IsActive() })
}

func (t *Tracker) collect(keep func(*Job) bool) []Job {
	t.mu.Lock()
	defer t.mu.Unlock()
	out := make([]Job, 0, t.jobs.Len())
	for _, j := range t.jobs.Values() {
		if keep(j) {
			out = append(out, j.clone())
		}
	}
	slices.SortStableFunc(out, func(a, b Job) int { return a.StartTime.Compare(b.StartTime) })
	return out
}

// Len is the number of retained jobs.
func (t *Tracker) Len() int {
	t.mu.Lock()
	defer t.mu.Unlock()
	return t.jobs.Len()
}
