package runner

import (
	"os"
	"path/filepath"
	"testing"

	"judgeworker/internal/judge/sandbox/result"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStatusLabel_CleanRun(t *testing.T) {
	assert.Equal(t, "", statusLabel(result.Run{}))
}

func TestStatusLabel_NonCleanRun(t *testing.T) {
	status := result.StatusTimedOut
	assert.Equal(t, "TimedOut", statusLabel(result.Run{Status: &status}))
}

func TestReadExitCode(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "grader.ret")
	require.NoError(t, os.WriteFile(path, []byte("7\n"), 0o644))

	code, ok := readExitCode(path)
	require.True(t, ok)
	assert.Equal(t, 7, code)
}

func TestReadExitCode_MissingFile(t *testing.T) {
	_, ok := readExitCode(filepath.Join(t.TempDir(), "missing"))
	assert.False(t, ok)
}

func TestWriteBoxScript(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, writeBoxScript(dir, "exec.sh", "#!/bin/bash\necho hi\n"))

	data, err := os.ReadFile(filepath.Join(dir, "exec.sh"))
	require.NoError(t, err)
	assert.Contains(t, string(data), "echo hi")
}

func TestSandboxTempPath_RewritesUnderTempRoot(t *testing.T) {
	got, err := sandboxTempPath("/scratch/job-1", "/scratch/job-1/main")
	require.NoError(t, err)
	assert.Equal(t, "/temp/main", got)
}

func TestSandboxTempPath_RewritesNestedArtifact(t *testing.T) {
	got, err := sandboxTempPath("/scratch/job-1", "/scratch/job-1/grader-xyz/a.out")
	require.NoError(t, err)
	assert.Equal(t, "/temp/grader-xyz/a.out", got)
}

func TestSandboxTempPath_RejectsPathOutsideTempDir(t *testing.T) {
	_, err := sandboxTempPath("/scratch/job-1", "/scratch/job-2/main")
	assert.Error(t, err)
}
