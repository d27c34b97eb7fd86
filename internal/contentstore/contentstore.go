// Package contentstore implements Meridian's content-addressed blob store
// (C1): every piece of file content is stored once, keyed by the SHA-256 of
// its bytes, and referenced by vnodes rather than copied. Grounded on the
// content-hash patterns used throughout the teacher's internal/store (chunks
// and files are always looked up by a derived hash) and the original
// cortex-vfs ContentStore.
package contentstore

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"

	"github.com/meridian-dev/meridian/internal/merrors"
	"github.com/meridian-dev/meridian/internal/storage"
)

// Hash is a content-addressed identifier: hex-encoded SHA-256 of the bytes.
type Hash string

// ComputeHash hashes content the way every blob in the store is keyed.
func ComputeHash(content []byte) Hash {
	sum := sha256.Sum256(content)
	return Hash(hex.EncodeToString(sum[:]))
}

// Store is the content-addressed blob store backed by the SQLite document
// database. Content is immutable once written: Put is idempotent and Get
// never needs to worry about torn writes from concurrent callers.
type Store struct {
	pool  *storage.Pool
	cache *lru.Cache[Hash, []byte]
}

// New creates a Store. cacheEntries bounds the in-process read cache
// (mirrors the teacher's use of hashicorp/golang-lru/v2 to front a slower
// backing store).
func New(pool *storage.Pool, cacheEntries int) (*Store, error) {
	if cacheEntries <= 0 {
		cacheEntries = 512
	}
	cache, err := lru.New[Hash, []byte](cacheEntries)
	if err != nil {
		return nil, merrors.Fatal(merrors.ErrCodeInternal, "failed to create content cache", err)
	}
	return &Store{pool: pool, cache: cache}, nil
}

// Put stores content, returning its hash. Duplicate content is deduplicated
// by incrementing ref_count rather than writing new rows.
func (s *Store) Put(ctx context.Context, content []byte) (Hash, error) {
	hash := ComputeHash(content)
	now := time.Now().UTC().Format(time.RFC3339Nano)

	_, execErr := s.pool.DB().ExecContext(ctx, `
		INSERT INTO blobs (hash, size, ref_count, content, created_at)
		VALUES (?, ?, 1, ?, ?)
		ON CONFLICT(hash) DO UPDATE SET ref_count = ref_count + 1
	`, string(hash), len(content), content, now)
	if execErr != nil {
		return "", merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to store content", execErr)
	}

	s.cache.Add(hash, content)
	return hash, nil
}

// Get retrieves content by hash.
func (s *Store) Get(ctx context.Context, hash Hash) ([]byte, error) {
	if content, ok := s.cache.Get(hash); ok {
		return content, nil
	}

	var content []byte
	row := s.pool.DB().QueryRowContext(ctx, `SELECT content FROM blobs WHERE hash = ?`, string(hash))
	if err := row.Scan(&content); err != nil {
		return nil, merrors.NotFound(merrors.ErrCodeBlobNotFound, "content not found for hash "+string(hash))
	}

	s.cache.Add(hash, content)
	return content, nil
}

// Release decrements the reference count for hash; when it reaches zero the
// blob is deleted. Content is otherwise immutable and never garbage
// collected proactively, matching spec.md's "no GC needed yet" scope.
func (s *Store) Release(ctx context.Context, hash Hash) error {
	_, err := s.pool.DB().ExecContext(ctx, `
		UPDATE blobs SET ref_count = ref_count - 1 WHERE hash = ?
	`, string(hash))
	if err != nil {
		return merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to release content", err)
	}
	_, err = s.pool.DB().ExecContext(ctx, `DELETE FROM blobs WHERE hash = ? AND ref_count <= 0`, string(hash))
	if err != nil {
		return merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to prune released content", err)
	}
	s.cache.Remove(hash)
	return nil
}

// Contains reports whether hash is already stored, without fetching content.
func (s *Store) Contains(ctx context.Context, hash Hash) (bool, error) {
	if s.cache.Contains(hash) {
		return true, nil
	}
	var exists int
	row := s.pool.DB().QueryRowContext(ctx, `SELECT 1 FROM blobs WHERE hash = ?`, string(hash))
	if err := row.Scan(&exists); err != nil {
		return false, nil
	}
	return true, nil
}
