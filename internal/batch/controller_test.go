package batch

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"path/filepath"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/joseph-ayodele/ape/constants"
	"github.com/joseph-ayodele/ape/internal/common"
	"github.com/joseph-ayodele/ape/internal/extract"
	"github.com/joseph-ayodele/ape/internal/jobs"
	"github.com/joseph-ayodele/ape/internal/repository"
	"github.com/joseph-ayodele/ape/internal/storage"
)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fixture struct {
	repo    repository.BatchRepository
	store   *storage.FSStore
	tracker *jobs.Tracker
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	ctx := context.Background()
	db, err := repository.Open(ctx, repository.Config{InMemory: true}, discard())
	require.NoError(t, err)
	t.Cleanup(db.Close)
	require.NoError(t, db.Migrate(ctx))

	store, err := storage.NewFSStore(t.TempDir(), discard())
	require.NoError(t, err)
	return fixture{
		repo:    repository.NewBatchRepository(db, discard()),
		store:   store,
		tracker: jobs.NewTracker(discard()),
	}
}

func textUpload(name, body string) Upload {
	ct := "text/plain"
	switch strings.ToLower(filepath.Ext(name)) {
	case ".csv":
		ct = "text/csv"
	case ".pdf":
		ct = "application/pdf"
	}
	return Upload{FileName: name, ContentType: ct, Size: int64(len(body)), Body: strings.NewReader(body)}
}

// brokenPDF makes every local PDF parse fail.
type brokenPDF struct{}

func (brokenPDF) Run(context.Context, string, ...string) ([]byte, []byte, error) {
	return nil, []byte("Syntax Error: Couldn't find trailer dictionary"), errors.New("exit status 1")
}

func TestController_DemoBatch(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	dispatcher := extract.NewDispatcher(extract.Config{}, fx.tracker, discard(), extract.WithRunner(brokenPDF{}))
	defer dispatcher.Close()
	c := NewController(fx.repo, fx.store, dispatcher, fx.tracker, discard())

	user := uuid.New()
	job, err := c.Create(ctx, user, "demo", 1, []Upload{
		textUpload("ok.txt", "hello world"),
		textUpload("corrupt.pdf", "%PDF-1.4 garbage"),
		textUpload("ok.csv", "name,qty\nwidget,3\n"),
	})
	require.NoError(t, err)
	assert.Equal(t, constants.BatchStatusQueued, job.Status)

	require.NoError(t, c.Process(ctx, job.ID))

	got, err := c.Get(ctx, job.ID, user)
	require.NoError(t, err)
	assert.Equal(t, constants.BatchStatusCompletedWithErrors, got.Status)
	assert.Equal(t, 2, got.ProcessedFiles)
	assert.Equal(t, 1, got.FailedFiles)
	assert.InDelta(t, 100, got.Progress, 1e-9)

	byName := map[string]int{}
	for i, f := range got.Files {
		byName[f.FileName] = i
	}
	txt := got.Files[byName["ok.txt"]]
	assert.Equal(t, constants.JobStatusCompleted, txt.Status)
	assert.Nil(t, txt.Error)
	var res extract.Result
	require.NoError(t, json.Unmarshal(txt.Result, &res))
	assert.Equal(t, "hello world", res.Text)

	pdf := got.Files[byName["corrupt.pdf"]]
	assert.Equal(t, constants.JobStatusFailed, pdf.Status)
	require.NotNil(t, pdf.Error)
	assert.NotEmpty(t, *pdf.Error)
	assert.Nil(t, pdf.Result)

	csv := got.Files[byName["ok.csv"]]
	assert.Equal(t, constants.JobStatusCompleted, csv.Status)
	require.NoError(t, json.Unmarshal(csv.Result, &res))
	require.Len(t, res.Tables, 1)
	assert.Len(t, res.Tables[0].Rows, 1)

	assert.ErrorIs(t, c.Process(ctx, job.ID), common.ErrConflict, "a finished batch is not processed again")
}

// gauge records the peak number of concurrent Extract calls.
type gauge struct {
	active, peak atomic.Int32
	calls        atomic.Int32
	fail         map[string]bool
}

func (g *gauge) Extract(_ context.Context, path string, jobID string) extract.Result {
	g.calls.Add(1)
	n := g.active.Add(1)
	for {
		p := g.peak.Load()
		if n <= p || g.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(15 * time.Millisecond)
	g.active.Add(-1)
	if g.fail[filepath.Ext(path)] {
		return extract.Result{Kind: extract.KindError, Error: "engineered failure", JobID: jobID}
	}
	return extract.Result{Kind: extract.KindText, Text: "ok", JobID: jobID}
}

func TestController_BoundedConcurrency(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	g := &gauge{}
	c := NewController(fx.repo, fx.store, g, fx.tracker, discard())

	var uploads []Upload
	for i := 0; i < constants.MaxBatchFiles; i++ {
		uploads = append(uploads, textUpload("f"+string(rune('a'+i))+".txt", "x"))
	}
	user := uuid.New()
	job, err := c.Create(ctx, user, "wide", 0, uploads)
	require.NoError(t, err)
	require.NoError(t, c.Process(ctx, job.ID))

	assert.EqualValues(t, constants.MaxBatchFiles, g.calls.Load())
	assert.LessOrEqual(t, g.peak.Load(), int32(DefaultConcurrency))
	assert.GreaterOrEqual(t, g.peak.Load(), int32(1))

	got, err := c.Get(ctx, job.ID, user)
	require.NoError(t, err)
	assert.Equal(t, constants.BatchStatusCompleted, got.Status)
	assert.Equal(t, constants.MaxBatchFiles, got.ProcessedFiles)
	assert.Equal(t, 0, got.FailedFiles)
}

func TestController_FailuresAreIsolated(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	g := &gauge{fail: map[string]bool{".pdf": true}}
	c := NewController(fx.repo, fx.store, g, fx.tracker, discard())

	user := uuid.New()
	job, err := c.Create(ctx, user, "mixed", 0, []Upload{
		textUpload("a.pdf", "x"), textUpload("b.txt", "x"), textUpload("c.pdf", "x"), textUpload("d.txt", "x"),
	})
	require.NoError(t, err)
	require.NoError(t, c.Process(ctx, job.ID))

	got, err := c.Get(ctx, job.ID, user)
	require.NoError(t, err)
	assert.Equal(t, constants.BatchStatusCompletedWithErrors, got.Status)
	assert.Equal(t, 2, got.ProcessedFiles)
	assert.Equal(t, 2, got.FailedFiles)
	assert.Equal(t, got.TotalFiles, got.ProcessedFiles+got.FailedFiles)
	for _, f := range got.Files {
		if filepath.Ext(f.FileName) == ".pdf" {
			require.NotNil(t, f.Error)
			assert.Equal(t, "engineered failure", *f.Error)
		}
	}
}

func TestController_CreateValidation(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	c := NewController(fx.repo, fx.store, &gauge{}, fx.tracker, discard())
	user := uuid.New()

	_, err := c.Create(ctx, user, "empty", 0, nil)
	assert.ErrorIs(t, err, common.ErrValidation)

	var eleven []Upload
	for i := 0; i < constants.MaxBatchFiles+1; i++ {
		eleven = append(eleven, textUpload("a.txt", "x"))
	}
	_, err = c.Create(ctx, user, "too many", 0, eleven)
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = c.Create(ctx, user, "  ", 0, []Upload{textUpload("a.txt", "x")})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = c.Create(ctx, user, "exe", 0, []Upload{{FileName: "a.exe", ContentType: "application/x-msdownload", Body: strings.NewReader("MZ")}})
	assert.ErrorIs(t, err, common.ErrValidation)

	_, err = c.Create(ctx, user, "big", 0, []Upload{{FileName: "a.txt", ContentType: "text/plain", Size: constants.MaxUploadBytes + 1, Body: strings.NewReader("")}})
	assert.ErrorIs(t, err, common.ErrValidation)

	octet, err := c.Create(ctx, user, "octet csv", 0, []Upload{{FileName: "data.csv", ContentType: "application/octet-stream", Size: 4, Body: strings.NewReader("a,b\n")}})
	require.NoError(t, err)
	assert.Len(t, octet.Files, 1)

	list, err := c.List(ctx, user, 10, 0)
	require.NoError(t, err)
	assert.Len(t, list, 1, "rejected batches leave nothing behind")
}

func TestController_OwnershipAndDelete(t *testing.T) {
	ctx := context.Background()
	fx := newFixture(t)
	q := NewPriorityQueue()
	c := NewController(fx.repo, fx.store, &gauge{}, fx.tracker, discard(), WithQueue(q))
	owner, stranger := uuid.New(), uuid.New()

	job, err := c.Create(ctx, owner, "mine", 0, []Upload{textUpload("a.txt", "hello")})
	require.NoError(t, err)
	q.Enqueue(job.ID, 1)

	_, err = c.Get(ctx, job.ID, stranger)
	assert.ErrorIs(t, err, common.ErrNotFound)
	assert.ErrorIs(t, c.Delete(ctx, job.ID, stranger), common.ErrNotFound)

	key := job.Files[0].StorageKey
	_, cleanup, err := fx.store.Open(ctx, key)
	require.NoError(t, err)
	cleanup()

	require.NoError(t, c.Delete(ctx, job.ID, owner))
	assert.Equal(t, 0, q.Len())
	_, err = c.Get(ctx, job.ID, owner)
	assert.ErrorIs(t, err, common.ErrNotFound)
	_, _, err = fx.store.Open(ctx, key)
	assert.ErrorIs(t, err, common.ErrNotFound)
}

func TestAggregate(t *testing.T) {
	tests := []struct {
		total, completed, failed int
		status                   constants.BatchStatus
		progress                 float64
	}{
		{3, 3, 0, constants.BatchStatusCompleted, 100},
		{3, 2, 1, constants.BatchStatusCompletedWithErrors, 100},
		{3, 0, 3, constants.BatchStatusCompletedWithErrors, 100},
		{4, 1, 0, constants.BatchStatusProcessing, 25},
		{0, 0, 0, constants.BatchStatusCompleted, 0},
	}
	for _, tt := range tests {
		status, progress := Aggregate(tt.total, tt.completed, tt.failed)
		assert.Equal(t, tt.status, status)
		assert.InDelta(t, tt.progress, progress, 1e-9)
	}
}

type recordingProcessor struct {
	mu   sync.Mutex
	seen []uuid.UUID
	done chan struct{}
}

func (r *recordingProcessor) Process(_ context.Context, id uuid.UUID) error {
	r.mu.Lock()
	r.seen = append(r.seen, id)
	n := len(r.seen)
	r.mu.Unlock()
	if n == 3 {
		close(r.done)
	}
	return nil
}

func TestPool_DrainsByPriority(t *testing.T) {
	q := NewPriorityQueue()
	proc := &recordingProcessor{done: make(chan struct{})}
	pool := NewPool(proc, q, discard(), WithWorkers(1))

	low, mid, high := uuid.New(), uuid.New(), uuid.New()
	require.NoError(t, pool.Submit(low, 0))
	require.NoError(t, pool.Submit(mid, 1))
	require.NoError(t, pool.Submit(high, 9))

	pool.Start(context.Background())
	select {
	case <-proc.done:
	case <-time.After(2 * time.Second):
		t.Fatal("workers did not drain the queue")
	}

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()
	pool.Shutdown(ctx)

	proc.mu.Lock()
	defer proc.mu.Unlock()
	assert.Equal(t, []uuid.UUID{high, mid, low}, proc.seen)
	assert.ErrorIs(t, pool.Submit(uuid.New(), 0), common.ErrConflict)
}
