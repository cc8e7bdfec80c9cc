package compiler

import (
	"archive/tar"
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"

	"judgeworker/internal/judge/langregistry"

	"github.com/andybalholm/brotli"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func shellLanguage() langregistry.Language {
	return langregistry.Language{
		UUID:        uuid.New(),
		Name:        "bash",
		ExecCmd:     "bash {file}",
		CompileExec: "cp",
		CompileArgs: "{infile} {outfile}",
		EntrySource: "main.sh",
	}
}

func TestCompileSingleFile_Success(t *testing.T) {
	dir := t.TempDir()
	c := New(nil)

	result, err := c.CompileSingleFile(context.Background(), dir, shellLanguage(), []byte("echo hi"))
	require.NoError(t, err)
	assert.True(t, result.Success)

	data, err := os.ReadFile(filepath.Join(dir, "main.sh.out"))
	require.NoError(t, err)
	assert.Equal(t, "echo hi", string(data))
}

func TestCompileSingleFile_RejectsIncompleteDescriptor(t *testing.T) {
	c := New(nil)
	lang := shellLanguage()
	lang.EntrySource = ""

	_, err := c.CompileSingleFile(context.Background(), t.TempDir(), lang, []byte("x"))
	assert.Error(t, err)
}

func TestCompileSingleFile_NonZeroExit(t *testing.T) {
	dir := t.TempDir()
	c := New(nil)
	lang := shellLanguage()
	lang.CompileExec = "false"

	result, err := c.CompileSingleFile(context.Background(), dir, lang, []byte("x"))
	require.NoError(t, err)
	assert.False(t, result.Success)
}

func buildBrotliTar(t *testing.T, files map[string]string) []byte {
	t.Helper()
	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	for name, content := range files {
		require.NoError(t, tw.WriteHeader(&tar.Header{
			Name: name,
			Mode: 0o644,
			Size: int64(len(content)),
		}))
		_, err := tw.Write([]byte(content))
		require.NoError(t, err)
	}
	require.NoError(t, tw.Close())

	var brBuf bytes.Buffer
	bw := brotli.NewWriter(&brBuf)
	_, err := bw.Write(tarBuf.Bytes())
	require.NoError(t, err)
	require.NoError(t, bw.Close())
	return brBuf.Bytes()
}

func TestCompileGrader_Success(t *testing.T) {
	archive := buildBrotliTar(t, map[string]string{
		"Makefile": "all:\n\tcp main.sh main.out\n",
	})

	c := New(nil)
	lang := shellLanguage()
	lang.CompileExec = "make"
	lang.CompileArgs = "-j{threads}"

	outcome, err := c.CompileGrader(context.Background(), t.TempDir(), GraderCompileRequest{
		GraderArchive: archive,
		Source:        []byte("echo grader"),
		Lang:          lang,
		MainPath:      "main.sh",
		ObjectPath:    "main.out",
	})
	require.NoError(t, err)
	assert.True(t, outcome.Success)

	data, err := os.ReadFile(outcome.ArtifactPath)
	require.NoError(t, err)
	assert.Equal(t, "echo grader", string(data))
}

func TestCompileGrader_MissingArtifactIsFailure(t *testing.T) {
	archive := buildBrotliTar(t, map[string]string{
		"Makefile": "all:\n\ttrue\n",
	})

	c := New(nil)
	lang := shellLanguage()
	lang.CompileExec = "make"
	lang.CompileArgs = ""

	outcome, err := c.CompileGrader(context.Background(), t.TempDir(), GraderCompileRequest{
		GraderArchive: archive,
		Source:        []byte("echo grader"),
		Lang:          lang,
		MainPath:      "main.sh",
		ObjectPath:    "main.out",
	})
	require.NoError(t, err)
	assert.False(t, outcome.Success)
}

func TestUnpackGraderArchive_RejectsPathEscape(t *testing.T) {
	var tarBuf bytes.Buffer
	tw := tar.NewWriter(&tarBuf)
	_ = tw.WriteHeader(&tar.Header{Name: "../evil", Mode: 0o644, Size: 1})
	_, _ = tw.Write([]byte("x"))
	_ = tw.Close()

	var brBuf bytes.Buffer
	bw := brotli.NewWriter(&brBuf)
	_, _ = bw.Write(tarBuf.Bytes())
	_ = bw.Close()

	err := unpackGraderArchive(brBuf.Bytes(), t.TempDir())
	assert.Error(t, err)
}

func TestCompileSimple_RunsConcurrently(t *testing.T) {
	c := New(nil)
	checkerDir, mainDir := t.TempDir(), t.TempDir()

	job, err := c.CompileSimple(context.Background(), checkerDir, mainDir, shellLanguage(), shellLanguage(), []byte("checker"), []byte("main"))
	require.NoError(t, err)
	assert.True(t, job.Checker.Success)
	assert.True(t, job.Main.Success)
}
