// Package storage keeps uploaded files until their batch is deleted.
package storage

import (
	"context"
	"io"
	"path/filepath"
	"strings"

	"github.com/google/uuid"
)

// Store persists uploaded content under opaque keys.
type Store interface {
	Put(ctx context.Context, key string, r io.Reader, size int64, contentType string) error
	// Open materializes the object as a local file. The returned cleanup must
	// be called once the caller is done with the path.
	Open(ctx context.Context, key string) (path string, cleanup func(), err error)
	Delete(ctx context.Context, key string) error
}

// Key builds a storage key for a batch upload. The original extension is
// kept so the dispatcher can pick a strategy from the local path.
func Key(batchID, fileID uuid.UUID, fileName string) string {
	ext := strings.ToLower(filepath.Ext(fileName))
	return batchID.String() + "/" + fileID.String() + ext
}
