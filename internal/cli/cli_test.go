package cli

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
)

func isolateEnv(t *testing.T) {
	t.Helper()
	for _, k := range []string{"GROQ_API_KEY", "OPENAI_API_KEY", "ANTHROPIC_API_KEY", "OLLAMA_HOST", "APE_PROVIDERS_FILE", "DB_URL"} {
		t.Setenv(k, "")
	}
	t.Setenv("APE_AWS_ENABLED", "false")
	t.Setenv("STORAGE_BACKEND", "fs")
	t.Setenv("STORAGE_DIR", t.TempDir())
	t.Setenv("LOG_LEVEL", "ERROR")
}

func TestBatchCommand(t *testing.T) {
	isolateEnv(t)
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "notes.txt"), []byte("quarterly notes"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "totals.csv"), []byte("item,amount\npaper,12\n"), 0o600))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "skip.exe"), []byte("MZ"), 0o600))
	out := filepath.Join(t.TempDir(), "report.xlsx")

	rootCmd.SetArgs([]string{"batch", dir, "--out", out, "--name", "docs"})
	require.NoError(t, Execute())

	f, err := excelize.OpenFile(out)
	require.NoError(t, err)
	defer f.Close()
	assert.NotEmpty(t, f.GetSheetList())
}

func TestBatchCommand_EmptyDir(t *testing.T) {
	isolateEnv(t)
	out := filepath.Join(t.TempDir(), "none.xlsx")

	rootCmd.SetArgs([]string{"batch", t.TempDir(), "--out", out})
	require.NoError(t, Execute())

	_, err := os.Stat(out)
	assert.True(t, os.IsNotExist(err))
}

func TestPromptCommand_NoProviders(t *testing.T) {
	isolateEnv(t)

	rootCmd.SetArgs([]string{"prompt", "hello"})
	err := Execute()
	require.Error(t, err)
	assert.ErrorIs(t, err, errNoProviders)
}

func TestPromptCommand_EmptyText(t *testing.T) {
	isolateEnv(t)

	rootCmd.SetArgs([]string{"prompt", "   "})
	err := Execute()
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty")
}
