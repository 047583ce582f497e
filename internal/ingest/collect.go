// Package ingest discovers local files to feed into extraction: a one-shot
// directory walk and a debounced watcher.
package ingest

import (
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/joseph-ayodele/ape/constants"
)

// Candidate is a file accepted for extraction.
type Candidate struct {
	Path    string
	Size    int64
	Ext     string
	HashHex string
}

// DirStats summarizes a directory walk.
type DirStats struct {
	Scanned      uint32
	Matched      uint32
	Deduplicated uint32
	Oversized    uint32
	Failed       uint32
}

// Collect walks root and returns extractable files in walk order. Files with
// identical content are returned once; files over constants.MaxUploadBytes
// are skipped.
func Collect(root string, skipHidden bool, logger *slog.Logger) ([]Candidate, DirStats, error) {
	if logger == nil {
		logger = slog.Default()
	}
	if strings.TrimSpace(root) == "" {
		return nil, DirStats{}, errors.New("root path is required")
	}

	var (
		out   []Candidate
		stats DirStats
		seen  = map[string]struct{}{}
	)
	err := filepath.WalkDir(root, func(path string, d fs.DirEntry, walkErr error) error {
		stats.Scanned++
		if walkErr != nil {
			logger.Warn("ingest.walk.error", "path", path, "error", walkErr)
			stats.Failed++
			return nil
		}
		if skipHidden && path != root && IsHidden(path) {
			if d.IsDir() {
				return filepath.SkipDir
			}
			return nil
		}
		if d.IsDir() {
			return nil
		}
		ext := constants.NormalizeExt(filepath.Ext(path))
		if !constants.IsAllowedExt(ext) {
			return nil
		}
		stats.Matched++

		c, err := inspect(path, ext)
		if err != nil {
			logger.Warn("ingest.inspect.error", "path", path, "error", err)
			stats.Failed++
			return nil
		}
		if c.Size > constants.MaxUploadBytes {
			logger.Warn("ingest.skip.oversized", "path", path, "size", c.Size)
			stats.Oversized++
			return nil
		}
		if _, dup := seen[c.HashHex]; dup {
			logger.Info("ingest.skip.duplicate", "path", path, "hash", c.HashHex)
			stats.Deduplicated++
			return nil
		}
		seen[c.HashHex] = struct{}{}
		out = append(out, c)
		return nil
	})
	if err != nil {
		return out, stats, fmt.Errorf("walk: %w", err)
	}
	return out, stats, nil
}

func inspect(path, ext string) (Candidate, error) {
	f, err := os.Open(path)
	if err != nil {
		return Candidate{}, fmt.Errorf("open: %w", err)
	}
	defer f.Close()

	h := sha256.New()
	n, err := io.Copy(h, f)
	if err != nil {
		return Candidate{}, fmt.Errorf("hash: %w", err)
	}
	return Candidate{Path: path, Size: n, Ext: ext, HashHex: hex.EncodeToString(h.Sum(nil))}, nil
}

// IsHidden checks if a file or directory is hidden (starts with '.').
func IsHidden(path string) bool {
	return strings.HasPrefix(filepath.Base(path), ".")
}
