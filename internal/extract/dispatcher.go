// Package extract turns uploaded documents into normalized text, tables and
// form fields, reporting progress to the job tracker as it goes.
package extract

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/joseph-ayodele/ape/constants"
	"github.com/joseph-ayodele/ape/internal/metrics"
)

// document is what every strategy receives.
type document struct {
	path   string
	data   []byte
	ext    string
	format constants.Format
	jobID  string
}

type strategy func(ctx context.Context, doc document) (Result, error)

// Config for the Dispatcher. Zero values are usable.
type Config struct {
	Pdftotext string        // binary name or absolute path; default "pdftotext"
	CacheTTL  time.Duration // 0 disables the result cache
}

// Dispatcher routes a file to its format strategy. It is safe for
// concurrent use.
type Dispatcher struct {
	cfg        Config
	backend    Backend
	analyzer   Analyzer
	runner     Runner
	progress   Progress
	pricer     Pricer
	cache      *resultCache
	metrics    *metrics.Metrics
	logger     *slog.Logger
	strategies map[constants.Format]strategy
}

type Option func(*Dispatcher)

func WithBackend(b Backend) Option   { return func(d *Dispatcher) { d.backend = b } }
func WithAnalyzer(a Analyzer) Option { return func(d *Dispatcher) { d.analyzer = a } }
func WithRunner(r Runner) Option     { return func(d *Dispatcher) { d.runner = r } }
func WithPricer(p Pricer) Option     { return func(d *Dispatcher) { d.pricer = p } }
func WithMetrics(m *metrics.Metrics) Option {
	return func(d *Dispatcher) { d.metrics = m }
}

func NewDispatcher(cfg Config, progress Progress, logger *slog.Logger, opts ...Option) *Dispatcher {
	if logger == nil {
		logger = slog.Default()
	}
	if cfg.Pdftotext == "" {
		cfg.Pdftotext = "pdftotext"
	}
	d := &Dispatcher{
		cfg:      cfg,
		progress: progress,
		logger:   logger,
	}
	for _, o := range opts {
		o(d)
	}
	if d.runner == nil {
		d.runner = execRunner{logger: logger}
	}
	if d.pricer == nil {
		d.pricer = noPricer{}
	}
	if d.progress == nil {
		d.progress = noProgress{}
	}
	if cfg.CacheTTL > 0 {
		d.cache = newResultCache(cfg.CacheTTL)
	}
	d.strategies = map[constants.Format]strategy{
		constants.TEXT:  d.extractText,
		constants.PDF:   d.extractPDF,
		constants.DOCX:  d.extractDOCX,
		constants.CSV:   d.extractCSV,
		constants.IMAGE: d.extractImage,
		constants.XLSX:  d.extractXLSX,
	}
	return d
}

// Close stops the cache janitor.
func (d *Dispatcher) Close() {
	if d.cache != nil {
		d.cache.stop()
	}
}

// HasBackend reports whether an enhanced backend is configured.
func (d *Dispatcher) HasBackend() bool { return d.backend != nil }

// Extract never returns an error: failures come back as a KindError result
// and the job is marked failed. An empty jobID creates a new job.
func (d *Dispatcher) Extract(ctx context.Context, path string, jobID string) Result {
	start := time.Now()
	ext := constants.NormalizeExt(filepath.Ext(path))
	format := constants.MapExtToFormat(ext)

	if jobID == "" {
		var size int64
		if fi, err := os.Stat(path); err == nil {
			size = fi.Size()
		}
		jobID = d.progress.Create(filepath.Base(path), size)
	}
	log := d.logger.With("job_id", jobID, "path", path, "ext", ext)

	d.report(jobID, 10, "Analyzing file type", "", 0)

	fn, ok := d.strategies[format]
	if !ok {
		log.Warn("extract.unsupported")
		res := unsupportedResult(ext, jobID)
		d.fail(jobID, res.Error)
		d.metrics.Extraction("unsupported", "none", true, time.Since(start))
		return res
	}

	d.report(jobID, 25, fmt.Sprintf("Processing %s file", strings.ToUpper(ext)), "", 0)

	data, err := os.ReadFile(path)
	if err != nil {
		return d.errorResult(log, format, jobID, newExtractionError(string(format), err), start)
	}

	doc := document{path: path, data: data, ext: ext, format: format, jobID: jobID}

	if cached, ok := d.cache.get(data, format); ok {
		log.Debug("extract.cache.hit")
		cached.JobID = jobID
		d.finish(jobID, cached)
		d.metrics.Extraction(string(format), cached.Metadata.Method, false, time.Since(start))
		return cached
	}

	res, err := fn(ctx, doc)
	if err != nil {
		return d.errorResult(log, format, jobID, err, start)
	}

	res.JobID = jobID
	res.Metadata.Format = ext
	if res.Metadata.Characters == 0 {
		res.Metadata.Characters = len(res.Text)
	}
	if res.Tables == nil {
		res.Tables = []Table{}
	}
	if res.Forms == nil {
		res.Forms = map[string]string{}
	}

	if res.Kind != KindUnavailable {
		d.cache.put(data, format, res)
	}
	d.finish(jobID, res)

	log.Info("extract.done",
		"kind", res.Kind,
		"method", res.Metadata.Method,
		"backend", res.Metadata.Backend,
		"fallback", res.Metadata.Fallback,
		"tables", len(res.Tables),
		"elapsed_ms", time.Since(start).Milliseconds(),
	)
	d.metrics.Extraction(string(format), res.Metadata.Method, false, time.Since(start))
	return res
}

func (d *Dispatcher) finish(jobID string, res Result) {
	d.report(jobID, 95, "Finalizing results", "", 0)
	if err := d.progress.Complete(jobID, res); err != nil {
		d.logger.Warn("extract.job.complete_rejected", "job_id", jobID, "error", err)
	}
}

func (d *Dispatcher) fail(jobID, msg string) {
	if err := d.progress.Fail(jobID, msg); err != nil {
		d.logger.Warn("extract.job.fail_rejected", "job_id", jobID, "error", err)
	}
}

// report forwards a milestone. A rejected update means the job was cancelled
// or evicted; extraction carries on regardless.
func (d *Dispatcher) report(jobID string, pct int, step, service string, cost float64) {
	if err := d.progress.Update(jobID, pct, step, service, cost); err != nil {
		d.logger.Debug("extract.progress.rejected", "job_id", jobID, "step", step, "error", err)
	}
}

func (d *Dispatcher) errorResult(log *slog.Logger, format constants.Format, jobID string, err error, start time.Time) Result {
	log.Error("extract.failed", "format", format, "error", err)
	d.fail(jobID, err.Error())
	d.metrics.Extraction(string(format), "none", true, time.Since(start))
	return Result{
		Kind:     KindError,
		Text:     fmt.Sprintf("Error extracting data: %v", err),
		Tables:   []Table{},
		Forms:    map[string]string{},
		Metadata: Metadata{Backend: BackendNone, Method: "none", Extras: map[string]any{"error": err.Error()}},
		Note:     "Data extraction failed - check file format and try again",
		Error:    err.Error(),
		JobID:    jobID,
	}
}

func unsupportedResult(ext, jobID string) Result {
	return Result{
		Kind:     KindError,
		Text:     fmt.Sprintf("Unsupported file format: .%s", ext),
		Tables:   []Table{},
		Forms:    map[string]string{},
		Metadata: Metadata{Format: ext, Backend: BackendNone, Method: "none"},
		Note:     fmt.Sprintf("Supported formats: %s", strings.Join(constants.SupportedExtensions(), ", ")),
		Error:    "unsupported_format",
		JobID:    jobID,
	}
}

type noPricer struct{}

func (noPricer) Textract(string, int) float64     { return 0 }
func (noPricer) Comprehend([]string, int) float64 { return 0 }

type noProgress struct{}

func (noProgress) Create(string, int64) string                       { return "" }
func (noProgress) Update(string, int, string, string, float64) error { return nil }
func (noProgress) Complete(string, any) error                        { return nil }
func (noProgress) Fail(string, string) error                         { return nil }
