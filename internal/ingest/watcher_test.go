package ingest

import (
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestWatch_InitialScanAndNewFiles(t *testing.T) {
	root := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(root, "existing.txt"), []byte("x"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(root, "skip.exe"), []byte("MZ"), 0o600))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	paths, _, err := Watch(ctx, WatchConfig{Roots: []string{root}, InitialScan: true, Debounce: 20 * time.Millisecond}, nil)
	require.NoError(t, err)

	select {
	case p := <-paths:
		assert.Equal(t, "existing.txt", filepath.Base(p))
	case <-time.After(2 * time.Second):
		t.Fatal("initial scan did not emit")
	}

	fresh := filepath.Join(root, "fresh.csv")
	require.NoError(t, os.WriteFile(fresh, []byte("a,b\n1,2\n"), 0o600))

	deadline := time.After(5 * time.Second)
	for {
		select {
		case p := <-paths:
			if p == fresh {
				cancel()
				return
			}
		case <-deadline:
			t.Fatal("new file was not emitted")
		}
	}
}

func TestWatch_ClosesOnCancel(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	paths, errs, err := Watch(ctx, WatchConfig{Roots: []string{t.TempDir()}}, nil)
	require.NoError(t, err)
	cancel()

	assert.Eventually(t, func() bool {
		select {
		case _, ok := <-paths:
			return !ok
		default:
			return false
		}
	}, 2*time.Second, 10*time.Millisecond)
	_, ok := <-errs
	assert.False(t, ok)
}

func TestWatch_NoRoots(t *testing.T) {
	_, _, err := Watch(context.Background(), WatchConfig{}, nil)
	assert.Error(t, err)
}
