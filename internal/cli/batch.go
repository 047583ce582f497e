package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"

	"github.com/google/uuid"
	"github.com/hashicorp/go-multierror"
	"github.com/spf13/cobra"

	"github.com/joseph-ayodele/ape/constants"
	"github.com/joseph-ayodele/ape/internal/app"
	"github.com/joseph-ayodele/ape/internal/batch"
	"github.com/joseph-ayodele/ape/internal/entity"
	"github.com/joseph-ayodele/ape/internal/ingest"
)

var (
	batchName          string
	batchOut           string
	batchIncludeHidden bool
)

var batchCmd = &cobra.Command{
	Use:   "batch <dir>",
	Short: "Extract every supported file under a directory",
	Long: `Walk a directory, extract every supported file and write an XLSX report.

Files are grouped into batches of at most 10. Identical files are processed
once and files over 10 MB are skipped.

Examples:
  ape batch ./invoices
  ape batch ./invoices --out report.xlsx --name "Q3 invoices"`,
	Args: cobra.ExactArgs(1),
	RunE: runBatch,
}

func init() {
	batchCmd.Flags().StringVar(&batchName, "name", "", "batch name (defaults to the directory name)")
	batchCmd.Flags().StringVarP(&batchOut, "out", "o", "", "output XLSX path (defaults to <dir>/../<name>.xlsx)")
	batchCmd.Flags().BoolVar(&batchIncludeHidden, "include-hidden", false, "include hidden files and directories")
}

func runBatch(cmd *cobra.Command, args []string) error {
	dir := args[0]
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	candidates, stats, err := ingest.Collect(dir, !batchIncludeHidden, logger)
	if err != nil {
		return fmt.Errorf("scan %s: %w", dir, err)
	}
	fmt.Printf("Scanned %d files: %d matched, %d duplicates, %d oversized, %d unreadable\n",
		stats.Scanned, stats.Matched, stats.Deduplicated, stats.Oversized, stats.Failed)
	if len(candidates) == 0 {
		fmt.Println("Nothing to extract.")
		return nil
	}

	a, err := build(ctx, false)
	if err != nil {
		return err
	}
	defer a.Close()

	name := batchName
	if name == "" {
		name = filepath.Base(filepath.Clean(dir))
	}
	out := batchOut
	if out == "" {
		out = filepath.Join(filepath.Dir(filepath.Clean(dir)), name+".xlsx")
	}

	user := uuid.New()
	var errs *multierror.Error
	for start, part := 0, 1; start < len(candidates); start, part = start+constants.MaxBatchFiles, part+1 {
		end := min(start+constants.MaxBatchFiles, len(candidates))
		chunkName := name
		if len(candidates) > constants.MaxBatchFiles {
			chunkName = fmt.Sprintf("%s (%d)", name, part)
		}
		job, err := runChunk(ctx, a, user, chunkName, candidates[start:end])
		if err != nil {
			errs = multierror.Append(errs, err)
			continue
		}
		printBatch(job)

		path := out
		if len(candidates) > constants.MaxBatchFiles {
			path = fmt.Sprintf("%s-%d%s", trimExt(out), part, filepath.Ext(out))
		}
		data, err := a.Exporter.ExportBatchXLSX(ctx, job.ID, user)
		if err != nil {
			errs = multierror.Append(errs, fmt.Errorf("export %s: %w", chunkName, err))
			continue
		}
		if err := os.WriteFile(path, data, 0o644); err != nil {
			errs = multierror.Append(errs, fmt.Errorf("write %s: %w", path, err))
			continue
		}
		fmt.Printf("- Output: %s\n", path)
	}
	return errs.ErrorOrNil()
}

func runChunk(ctx context.Context, a *app.App, user uuid.UUID, name string, files []ingest.Candidate) (*entity.BatchJob, error) {
	uploads := make([]batch.Upload, 0, len(files))
	var opened []*os.File
	defer func() {
		for _, f := range opened {
			f.Close()
		}
	}()
	for _, c := range files {
		f, err := os.Open(c.Path)
		if err != nil {
			return nil, err
		}
		opened = append(opened, f)
		uploads = append(uploads, batch.Upload{
			FileName:    filepath.Base(c.Path),
			ContentType: constants.ContentTypeForExt(c.Ext),
			Size:        c.Size,
			Body:        f,
		})
	}

	job, err := a.Batches.Create(ctx, user, name, 1, uploads)
	if err != nil {
		return nil, err
	}
	if err := a.Batches.Process(ctx, job.ID); err != nil {
		return nil, err
	}
	return a.Batches.Get(ctx, job.ID, user)
}

func printBatch(job *entity.BatchJob) {
	fmt.Printf("Batch %q: %s\n", job.Name, job.Status)
	fmt.Printf("- Files processed: %d\n", job.ProcessedFiles)
	fmt.Printf("- Failures: %d\n", job.FailedFiles)
	for _, f := range job.Files {
		if f.Error != nil {
			fmt.Printf("  x %s: %s\n", f.FileName, *f.Error)
		}
	}
	if job.ActualCost > 0 {
		fmt.Printf("- Cost: $%.4f\n", job.ActualCost)
	}
}

func trimExt(p string) string {
	return p[:len(p)-len(filepath.Ext(p))]
}

