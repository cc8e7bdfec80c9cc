package compiler

import (
	"bytes"
	"context"
	"encoding/gob"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestCache(t *testing.T) *Cache {
	t.Helper()
	mr, err := miniredis.Run()
	require.NoError(t, err)
	t.Cleanup(mr.Close)

	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	return NewCacheWithClient(client, time.Hour)
}

func TestCache_MissThenHit(t *testing.T) {
	cache := newTestCache(t)
	c := New(cache)

	archive := []byte("grader-tree-bytes")
	source := []byte("user-source")
	dir := t.TempDir()
	artifactPath := filepath.Join(dir, "main.out")

	_, hit := c.tryCache(context.Background(), GraderCompileRequest{GraderArchive: archive, Source: source}, artifactPath)
	assert.False(t, hit)

	require.NoError(t, os.WriteFile(artifactPath, []byte("compiled-bytes"), 0o755))
	c.storeCacheAsync(GraderCompileRequest{GraderArchive: archive, Source: source}, artifactPath, Result{Success: true, Stdout: "built"})

	require.NoError(t, os.Remove(artifactPath))

	outcome, hit := c.tryCache(context.Background(), GraderCompileRequest{GraderArchive: archive, Source: source}, artifactPath)
	require.True(t, hit)
	assert.True(t, outcome.Success)
	assert.Equal(t, "built", outcome.Stdout)

	data, err := os.ReadFile(artifactPath)
	require.NoError(t, err)
	assert.Equal(t, "compiled-bytes", string(data))
}

func TestCache_DifferentSourceIsDifferentKey(t *testing.T) {
	assert.NotEqual(t, cacheKey([]byte("a"), []byte("b")), cacheKey([]byte("a"), []byte("c")))
}

func TestCache_LargePayloadRoundTripsCompressed(t *testing.T) {
	large := make([]byte, zstdThresholdBytes*4)
	for i := range large {
		large[i] = byte(i % 251)
	}

	encoded, err := encodeCacheRecord(cacheRecord{Success: true, ArtifactData: large})
	require.NoError(t, err)

	var stored cacheRecord
	require.NoError(t, gob.NewDecoder(bytes.NewReader(encoded)).Decode(&stored))
	assert.True(t, stored.Compressed)

	decoded, err := decodeCacheRecord(encoded)
	require.NoError(t, err)
	assert.Equal(t, large, decoded.ArtifactData)
	assert.False(t, decoded.Compressed)
}

func TestCache_SmallPayloadStoredUncompressed(t *testing.T) {
	encoded, err := encodeCacheRecord(cacheRecord{Success: true, ArtifactData: []byte("tiny")})
	require.NoError(t, err)

	var stored cacheRecord
	require.NoError(t, gob.NewDecoder(bytes.NewReader(encoded)).Decode(&stored))
	assert.False(t, stored.Compressed)

	decoded, err := decodeCacheRecord(encoded)
	require.NoError(t, err)
	assert.Equal(t, []byte("tiny"), decoded.ArtifactData)
}

func TestCache_CorruptRecordDecodeFails(t *testing.T) {
	_, err := decodeCacheRecord([]byte("not a gob stream"))
	assert.Error(t, err)
}
