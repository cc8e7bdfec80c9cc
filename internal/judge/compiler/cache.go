package compiler

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/gob"
	"encoding/hex"
	"os"
	"time"

	judgeerrors "judgeworker/pkg/errors"
	"judgeworker/pkg/utils/logger"

	"github.com/klauspost/compress/zstd"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

// zstdThresholdBytes is the payload size above which cached records are
// zstd-compressed before being written to Redis.
const zstdThresholdBytes = 4096

// cacheRecord is the gob-encoded value stored per grader build.
type cacheRecord struct {
	Success      bool
	Stdout       string
	Stderr       string
	ArtifactData []byte
	Compressed   bool
}

// CacheConfig configures the optional grader-compile Redis cache.
type CacheConfig struct {
	Addr     string
	Password string
	DB       int
	TTL      time.Duration
}

// Cache is a Redis-backed store of grader compile results, keyed by the
// content hash of the grader archive plus the user source. It never affects
// correctness: a cache miss, or the cache being unreachable, simply falls
// back to running the build.
type Cache struct {
	client *redis.Client
	ttl    time.Duration
}

// NewCache dials Redis with cfg. The returned Cache is usable even if Redis
// is briefly unreachable; individual operations degrade to cache misses.
func NewCache(cfg CacheConfig) *Cache {
	ttl := cfg.TTL
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	return &Cache{client: client, ttl: ttl}
}

// NewCacheWithClient wraps an existing client, used by tests against
// miniredis.
func NewCacheWithClient(client *redis.Client, ttl time.Duration) *Cache {
	if ttl <= 0 {
		ttl = 24 * time.Hour
	}
	return &Cache{client: client, ttl: ttl}
}

func cacheKey(archive, source []byte) string {
	archiveSum := sha256.Sum256(archive)
	sourceSum := sha256.Sum256(source)
	return "judgeworker:grader-compile:" + hex.EncodeToString(archiveSum[:]) + hex.EncodeToString(sourceSum[:])
}

// tryCache looks up a prior build result. On hit it writes the cached
// artifact bytes back to artifactPath and reports the stored outcome.
func (c *Compiler) tryCache(ctx context.Context, req GraderCompileRequest, artifactPath string) (GraderCompileOutcome, bool) {
	raw, err := c.cache.client.Get(ctx, cacheKey(req.GraderArchive, req.Source)).Bytes()
	if err != nil {
		return GraderCompileOutcome{}, false
	}

	record, err := decodeCacheRecord(raw)
	if err != nil {
		logger.Warn(ctx, "grader compile cache decode failed, treating as miss", zap.Error(err))
		return GraderCompileOutcome{}, false
	}

	if record.Success && len(record.ArtifactData) > 0 {
		if err := os.WriteFile(artifactPath, record.ArtifactData, 0o755); err != nil {
			logger.Warn(ctx, "grader compile cache artifact restore failed, treating as miss", zap.Error(err))
			return GraderCompileOutcome{}, false
		}
	}

	return GraderCompileOutcome{
		Result:       Result{Success: record.Success, Stdout: record.Stdout, Stderr: record.Stderr},
		ArtifactPath: artifactPath,
	}, true
}

// storeCacheAsync persists a build outcome. It runs off the hot path and
// never blocks or fails the caller's result.
func (c *Compiler) storeCacheAsync(req GraderCompileRequest, artifactPath string, result Result) {
	ctx := context.Background()

	var artifactData []byte
	if result.Success {
		if data, err := os.ReadFile(artifactPath); err == nil {
			artifactData = data
		}
	}

	record := cacheRecord{
		Success:      result.Success,
		Stdout:       result.Stdout,
		Stderr:       result.Stderr,
		ArtifactData: artifactData,
	}

	encoded, err := encodeCacheRecord(record)
	if err != nil {
		logger.Warn(ctx, "grader compile cache encode failed", zap.Error(err))
		return
	}

	if err := c.cache.client.Set(ctx, cacheKey(req.GraderArchive, req.Source), encoded, c.cache.ttl).Err(); err != nil {
		logger.Warn(ctx, "grader compile cache write failed", zap.Error(err))
	}
}

func encodeCacheRecord(record cacheRecord) ([]byte, error) {
	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(record); err != nil {
		return nil, judgeerrors.Wrap(err, judgeerrors.CacheCorrupt)
	}
	if raw.Len() <= zstdThresholdBytes {
		return raw.Bytes(), nil
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		return nil, judgeerrors.Wrap(err, judgeerrors.CacheCorrupt)
	}
	defer enc.Close()

	compressed := cacheRecord{
		Success:    record.Success,
		Stdout:     record.Stdout,
		Stderr:     record.Stderr,
		Compressed: true,
	}
	compressed.ArtifactData = enc.EncodeAll(record.ArtifactData, nil)

	var framed bytes.Buffer
	if err := gob.NewEncoder(&framed).Encode(compressed); err != nil {
		return nil, judgeerrors.Wrap(err, judgeerrors.CacheCorrupt)
	}
	return framed.Bytes(), nil
}

func decodeCacheRecord(raw []byte) (cacheRecord, error) {
	var record cacheRecord
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&record); err != nil {
		return cacheRecord{}, judgeerrors.Wrap(err, judgeerrors.CacheCorrupt)
	}
	if !record.Compressed {
		return record, nil
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		return cacheRecord{}, judgeerrors.Wrap(err, judgeerrors.CacheCorrupt)
	}
	defer dec.Close()

	plain, err := dec.DecodeAll(record.ArtifactData, nil)
	if err != nil {
		return cacheRecord{}, judgeerrors.Wrap(err, judgeerrors.CacheCorrupt)
	}
	record.ArtifactData = plain
	record.Compressed = false
	return record, nil
}
