package server

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"mime/multipart"
	"net/http"
	"os"
	"path/filepath"
	"strings"

	"github.com/gin-gonic/gin"

	"github.com/joseph-ayodele/ape/constants"
	"github.com/joseph-ayodele/ape/internal/common"
	"github.com/joseph-ayodele/ape/internal/extract"
	"github.com/joseph-ayodele/ape/internal/jobs"
)

// Extractor is satisfied by *extract.Dispatcher.
type Extractor interface {
	Extract(ctx context.Context, path string, jobID string) extract.Result
}

type ExtractServer struct {
	extractor Extractor
	tracker   *jobs.Tracker
	tempDir   string
	maxBody   int64
	logger    *slog.Logger
}

func NewExtractServer(extractor Extractor, tracker *jobs.Tracker, tempDir string, logger *slog.Logger) *ExtractServer {
	if logger == nil {
		logger = slog.Default()
	}
	if tempDir == "" {
		tempDir = os.TempDir()
	}
	return &ExtractServer{
		extractor: extractor,
		tracker:   tracker,
		tempDir:   tempDir,
		maxBody:   constants.MaxUploadBytes + (1 << 20),
		logger:    logger,
	}
}

// Extract runs one uploaded file through the dispatcher synchronously. The
// job stays in the tracker afterwards for polling.
func (s *ExtractServer) Extract(c *gin.Context) {
	c.Request.Body = http.MaxBytesReader(c.Writer, c.Request.Body, s.maxBody)
	form, err := c.MultipartForm()
	if err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			writeError(c, common.InvalidInputf("upload exceeds %d bytes", tooLarge.Limit))
			return
		}
		writeError(c, common.InvalidInputf("multipart form with a file field is required"))
		return
	}
	files := form.File["file"]
	if len(files) != 1 {
		writeError(c, common.InvalidInputf("exactly one file is required"))
		return
	}
	fh := files[0]
	if err := validateUpload(fh); err != nil {
		writeError(c, err)
		return
	}

	path, cleanup, err := s.spool(fh)
	if err != nil {
		s.logger.Error("extract.upload.spool_failed", "file", fh.Filename, "error", err)
		writeError(c, common.WrapError(err, "store upload"))
		return
	}
	defer cleanup()

	jobID := s.tracker.Create(fh.Filename, fh.Size)
	res := s.extractor.Extract(c.Request.Context(), path, jobID)
	res.JobID = jobID
	status := http.StatusOK
	if res.Failed() {
		status = http.StatusUnprocessableEntity
	}
	c.JSON(status, res)
}

// spool copies the upload to a temp file that keeps the original extension,
// since the dispatcher routes on it.
func (s *ExtractServer) spool(fh *multipart.FileHeader) (string, func(), error) {
	src, err := fh.Open()
	if err != nil {
		return "", nil, err
	}
	defer src.Close()

	ext := strings.ToLower(filepath.Ext(fh.Filename))
	dst, err := os.CreateTemp(s.tempDir, "upload-*"+ext)
	if err != nil {
		return "", nil, err
	}
	cleanup := func() { _ = os.Remove(dst.Name()) }
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		cleanup()
		return "", nil, err
	}
	if err := dst.Close(); err != nil {
		cleanup()
		return "", nil, err
	}
	return dst.Name(), cleanup, nil
}

func validateUpload(fh *multipart.FileHeader) error {
	ct := fh.Header.Get("Content-Type")
	v := common.NewValidator().
		Field("filename", fh.Filename, common.Required).
		Field("size", fh.Size, common.MaxInt64(constants.MaxUploadBytes))
	if !constants.IsAllowedContentType(ct, fh.Filename) {
		v.Field("content_type", ct, func(f string, val interface{}) *common.ValidationError {
			return &common.ValidationError{Field: f, Value: val, Message: "unsupported file type for '" + fh.Filename + "'"}
		})
	}
	return v.Error()
}
