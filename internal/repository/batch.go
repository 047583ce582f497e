package repository

import (
	"context"
	"database/sql"
	"database/sql/driver"
	"encoding/json"
	"fmt"
	"log/slog"
	"time"

	"entgo.io/ent/dialect"
	entsql "entgo.io/ent/dialect/sql"
	"github.com/google/uuid"

	"github.com/joseph-ayodele/ape/constants"
	"github.com/joseph-ayodele/ape/internal/common"
	"github.com/joseph-ayodele/ape/internal/entity"
)

const (
	tableBatchJobs  = "batch_jobs"
	tableBatchFiles = "batch_files"
)

var (
	jobColumns = []string{
		"id", "user_id", "name", "status", "priority", "total_files", "processed_files",
		"failed_files", "progress", "estimated_cost", "actual_cost", "created_at", "updated_at",
	}
	fileColumns = []string{
		"id", "batch_id", "filename", "file_size", "content_type", "storage_key", "status",
		"progress", "current_step", "result", "error", "aws_services_used", "cost_estimate",
		"created_at", "updated_at",
	}
)

type BatchRepository interface {
	// Create inserts the batch and its files in one transaction.
	Create(ctx context.Context, job *entity.BatchJob) error
	Get(ctx context.Context, id uuid.UUID) (*entity.BatchJob, error)
	List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.BatchJob, error)
	SetStatus(ctx context.Context, id uuid.UUID, status constants.BatchStatus) error
	UpdateFile(ctx context.Context, f *entity.BatchFile) error
	SaveAggregate(ctx context.Context, job *entity.BatchJob) error
	// Delete removes the batch and its files.
	Delete(ctx context.Context, id uuid.UUID) error
}

type batchRepo struct {
	drv    *entsql.Driver
	now    func() time.Time
	logger *slog.Logger
}

func NewBatchRepository(db *DB, logger *slog.Logger) BatchRepository {
	if logger == nil {
		logger = slog.Default()
	}
	return &batchRepo{drv: db.Driver(), now: time.Now, logger: logger}
}

func (r *batchRepo) builder() *entsql.DialectBuilder {
	return entsql.Dialect(r.drv.Dialect())
}

func (r *batchRepo) Create(ctx context.Context, job *entity.BatchJob) (err error) {
	now := r.now().UTC()
	if job.ID == uuid.Nil {
		job.ID = uuid.New()
	}
	if job.Status == "" {
		job.Status = constants.BatchStatusQueued
	}
	job.TotalFiles = len(job.Files)
	job.CreatedAt, job.UpdatedAt = now, now

	tx, err := r.drv.Tx(ctx)
	if err != nil {
		r.logger.Error("failed to begin batch create", "error", err)
		return fmt.Errorf("%w: begin: %v", common.ErrDatabase, err)
	}
	defer func() {
		if err != nil {
			if rerr := tx.Rollback(); rerr != nil {
				r.logger.Warn("rollback failed", "batch_id", job.ID, "error", rerr)
			}
		}
	}()

	query, args := r.builder().Insert(tableBatchJobs).
		Columns(jobColumns...).
		Values(job.ID.String(), job.UserID.String(), job.Name, string(job.Status), job.Priority,
			job.TotalFiles, job.ProcessedFiles, job.FailedFiles, job.Progress,
			job.EstimatedCost, job.ActualCost, now, now).
		Query()
	if err = tx.Exec(ctx, query, args, nil); err != nil {
		r.logger.Error("failed to insert batch job", "batch_id", job.ID, "error", err)
		return fmt.Errorf("%w: insert batch: %v", common.ErrDatabase, err)
	}

	for i := range job.Files {
		f := &job.Files[i]
		if f.ID == uuid.Nil {
			f.ID = uuid.New()
		}
		f.BatchID = job.ID
		if f.Status == "" {
			f.Status = constants.JobStatusQueued
		}
		f.CreatedAt, f.UpdatedAt = now, now
		services, _ := json.Marshal(nonNil(f.ServicesUsed))

		query, args := r.builder().Insert(tableBatchFiles).
			Columns(append([]string{"seq"}, fileColumns...)...).
			Values(i, f.ID.String(), job.ID.String(), f.FileName, f.FileSize, f.ContentType, f.StorageKey,
				string(f.Status), f.Progress, f.CurrentStep, nullRaw(f.Result), f.Error,
				string(services), f.CostEstimate, now, now).
			Query()
		if err = tx.Exec(ctx, query, args, nil); err != nil {
			r.logger.Error("failed to insert batch file", "batch_id", job.ID, "filename", f.FileName, "error", err)
			return fmt.Errorf("%w: insert batch file: %v", common.ErrDatabase, err)
		}
	}

	if err = tx.Commit(); err != nil {
		r.logger.Error("failed to commit batch create", "batch_id", job.ID, "error", err)
		return fmt.Errorf("%w: commit: %v", common.ErrDatabase, err)
	}
	r.logger.Info("batch job created", "batch_id", job.ID, "files", job.TotalFiles)
	return nil
}

func (r *batchRepo) Get(ctx context.Context, id uuid.UUID) (*entity.BatchJob, error) {
	query, args := r.builder().Select(jobColumns...).
		From(entsql.Table(tableBatchJobs)).
		Where(entsql.EQ("id", id.String())).
		Query()
	jobs, err := r.queryJobs(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if len(jobs) == 0 {
		return nil, common.NotFoundf("batch job %s not found", id)
	}
	if err := r.attachFiles(ctx, jobs); err != nil {
		return nil, err
	}
	return jobs[0], nil
}

func (r *batchRepo) List(ctx context.Context, userID uuid.UUID, limit, offset int) ([]*entity.BatchJob, error) {
	if limit <= 0 {
		limit = 50
	}
	if offset < 0 {
		offset = 0
	}
	query, args := r.builder().Select(jobColumns...).
		From(entsql.Table(tableBatchJobs)).
		Where(entsql.EQ("user_id", userID.String())).
		OrderBy(entsql.Desc("created_at")).
		Limit(limit).
		Offset(offset).
		Query()
	jobs, err := r.queryJobs(ctx, query, args)
	if err != nil {
		return nil, err
	}
	if err := r.attachFiles(ctx, jobs); err != nil {
		return nil, err
	}
	return jobs, nil
}

func (r *batchRepo) SetStatus(ctx context.Context, id uuid.UUID, status constants.BatchStatus) error {
	query, args := r.builder().Update(tableBatchJobs).
		Set("status", string(status)).
		Set("updated_at", r.now().UTC()).
		Where(entsql.EQ("id", id.String())).
		Query()
	return r.execOne(ctx, query, args, "batch job", id)
}

func (r *batchRepo) UpdateFile(ctx context.Context, f *entity.BatchFile) error {
	services, _ := json.Marshal(nonNil(f.ServicesUsed))
	f.UpdatedAt = r.now().UTC()
	query, args := r.builder().Update(tableBatchFiles).
		Set("status", string(f.Status)).
		Set("progress", f.Progress).
		Set("current_step", f.CurrentStep).
		Set("result", nullRaw(f.Result)).
		Set("error", f.Error).
		Set("aws_services_used", string(services)).
		Set("cost_estimate", f.CostEstimate).
		Set("updated_at", f.UpdatedAt).
		Where(entsql.EQ("id", f.ID.String())).
		Query()
	return r.execOne(ctx, query, args, "batch file", f.ID)
}

func (r *batchRepo) SaveAggregate(ctx context.Context, job *entity.BatchJob) error {
	job.UpdatedAt = r.now().UTC()
	query, args := r.builder().Update(tableBatchJobs).
		Set("status", string(job.Status)).
		Set("processed_files", job.ProcessedFiles).
		Set("failed_files", job.FailedFiles).
		Set("progress", job.Progress).
		Set("actual_cost", job.ActualCost).
		Set("updated_at", job.UpdatedAt).
		Where(entsql.EQ("id", job.ID.String())).
		Query()
	return r.execOne(ctx, query, args, "batch job", job.ID)
}

func (r *batchRepo) Delete(ctx context.Context, id uuid.UUID) (err error) {
	tx, err := r.drv.Tx(ctx)
	if err != nil {
		return fmt.Errorf("%w: begin: %v", common.ErrDatabase, err)
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	// children first: foreign key enforcement is optional on SQLite
	query, args := r.builder().Delete(tableBatchFiles).Where(entsql.EQ("batch_id", id.String())).Query()
	if err = tx.Exec(ctx, query, args, nil); err != nil {
		return fmt.Errorf("%w: delete files: %v", common.ErrDatabase, err)
	}
	var res sql.Result
	query, args = r.builder().Delete(tableBatchJobs).Where(entsql.EQ("id", id.String())).Query()
	if err = tx.Exec(ctx, query, args, &res); err != nil {
		return fmt.Errorf("%w: delete batch: %v", common.ErrDatabase, err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = common.NotFoundf("batch job %s not found", id)
		return err
	}
	if err = tx.Commit(); err != nil {
		return fmt.Errorf("%w: commit: %v", common.ErrDatabase, err)
	}
	r.logger.Info("batch job deleted", "batch_id", id)
	return nil
}

func (r *batchRepo) execOne(ctx context.Context, query string, args []any, what string, id uuid.UUID) error {
	var res sql.Result
	if err := r.drv.Exec(ctx, query, args, &res); err != nil {
		r.logger.Error("update failed", "entity", what, "id", id, "error", err)
		return fmt.Errorf("%w: update %s: %v", common.ErrDatabase, what, err)
	}
	if n, err := res.RowsAffected(); err == nil && n == 0 {
		return common.NotFoundf("%s %s not found", what, id)
	}
	return nil
}

func (r *batchRepo) queryJobs(ctx context.Context, query string, args []any) ([]*entity.BatchJob, error) {
	var rows entsql.Rows
	if err := r.drv.Query(ctx, query, args, &rows); err != nil {
		r.logger.Error("failed to query batch jobs", "error", err)
		return nil, fmt.Errorf("%w: query batch jobs: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	var out []*entity.BatchJob
	for rows.Next() {
		var (
			j                entity.BatchJob
			status           string
			created, updated dbTime
		)
		if err := rows.Scan(&j.ID, &j.UserID, &j.Name, &status, &j.Priority, &j.TotalFiles,
			&j.ProcessedFiles, &j.FailedFiles, &j.Progress, &j.EstimatedCost, &j.ActualCost,
			&created, &updated); err != nil {
			return nil, fmt.Errorf("%w: scan batch job: %v", common.ErrDatabase, err)
		}
		j.Status = constants.BatchStatus(status)
		j.CreatedAt, j.UpdatedAt = created.Time, updated.Time
		j.Files = []entity.BatchFile{}
		out = append(out, &j)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("%w: iterate batch jobs: %v", common.ErrDatabase, err)
	}
	return out, nil
}

func (r *batchRepo) attachFiles(ctx context.Context, jobs []*entity.BatchJob) error {
	if len(jobs) == 0 {
		return nil
	}
	byID := make(map[uuid.UUID]*entity.BatchJob, len(jobs))
	ids := make([]any, 0, len(jobs))
	for _, j := range jobs {
		byID[j.ID] = j
		ids = append(ids, j.ID.String())
	}

	query, args := r.builder().Select(fileColumns...).
		From(entsql.Table(tableBatchFiles)).
		Where(entsql.In("batch_id", ids...)).
		OrderBy("batch_id", "seq").
		Query()
	var rows entsql.Rows
	if err := r.drv.Query(ctx, query, args, &rows); err != nil {
		r.logger.Error("failed to query batch files", "error", err)
		return fmt.Errorf("%w: query batch files: %v", common.ErrDatabase, err)
	}
	defer rows.Close()

	for rows.Next() {
		var (
			f                 entity.BatchFile
			status, services  string
			step, result, msg sql.NullString
			created, updated  dbTime
		)
		if err := rows.Scan(&f.ID, &f.BatchID, &f.FileName, &f.FileSize, &f.ContentType, &f.StorageKey,
			&status, &f.Progress, &step, &result, &msg, &services, &f.CostEstimate,
			&created, &updated); err != nil {
			return fmt.Errorf("%w: scan batch file: %v", common.ErrDatabase, err)
		}
		f.Status = constants.JobStatus(status)
		f.CurrentStep = nullString(step)
		f.Error = nullString(msg)
		if result.Valid {
			f.Result = json.RawMessage(result.String)
		}
		if err := json.Unmarshal([]byte(services), &f.ServicesUsed); err != nil || f.ServicesUsed == nil {
			f.ServicesUsed = []string{}
		}
		f.CreatedAt, f.UpdatedAt = created.Time, updated.Time
		if j, ok := byID[f.BatchID]; ok {
			j.Files = append(j.Files, f)
		}
	}
	if err := rows.Err(); err != nil {
		return fmt.Errorf("%w: iterate batch files: %v", common.ErrDatabase, err)
	}
	return nil
}

// dbTime scans timestamps from both drivers: pgx yields time.Time, SQLite
// may hand back text.
type dbTime struct{ time.Time }

var timeLayouts = []string{
	time.RFC3339Nano,
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999Z07:00",
	"2006-01-02 15:04:05.999999999",
	"2006-01-02 15:04:05",
}

func (t *dbTime) Scan(src any) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v.UTC()
		return nil
	case int64:
		t.Time = time.Unix(v, 0).UTC()
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	}
	return fmt.Errorf("unsupported timestamp type %T", src)
}

func (t *dbTime) parse(s string) error {
	for _, layout := range timeLayouts {
		if ts, err := time.Parse(layout, s); err == nil {
			t.Time = ts.UTC()
			return nil
		}
	}
	return fmt.Errorf("unparseable timestamp %q", s)
}

func nullString(ns sql.NullString) *string {
	if !ns.Valid {
		return nil
	}
	s := ns.String
	return &s
}

// nullRaw stores an absent result as SQL NULL.
func nullRaw(b json.RawMessage) driver.Value {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

func nonNil(s []string) []string {
	if s == nil {
		return []string{}
	}
	return s
}

// IsSQLite reports whether the handle uses the SQLite dialect.
func (d *DB) IsSQLite() bool { return d.drv.Dialect() == dialect.SQLite }
