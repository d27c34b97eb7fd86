package daemon

import (
	"context"
	"fmt"
	"path/filepath"

	"github.com/meridian-dev/meridian/internal/contentstore"
	"github.com/meridian-dev/meridian/internal/embedding"
	"github.com/meridian-dev/meridian/internal/fork"
	"github.com/meridian-dev/meridian/internal/ingest"
	"github.com/meridian-dev/meridian/internal/mcpserver"
	"github.com/meridian-dev/meridian/internal/semantic"
	"github.com/meridian-dev/meridian/internal/storage"
	"github.com/meridian-dev/meridian/internal/syncwatch"
	"github.com/meridian-dev/meridian/internal/vectorindex"
	"github.com/meridian-dev/meridian/internal/vfs"
)

// indexBasename is the vector index's on-disk file stem under DataDir.
const indexBasename = "vectors"

// EngineOptions configures the components an Engine wires together.
type EngineOptions struct {
	// DataDir holds the SQLite database and vector index files.
	DataDir string
	// EmbeddingProvider selects the embedding backend (ollama or static).
	EmbeddingProvider embedding.Provider
	// EmbeddingModel overrides the provider's default model, if non-empty.
	EmbeddingModel string
}

// Engine holds every long-lived component a meridiand process runs:
// storage, the content-addressed VFS, the semantic graph, the vector
// index, the ingestion pipeline, the fork manager, and the filesystem
// sync watcher — everything the MCP server surfaces to an assistant.
// Grounded on the teacher's cmd/amanmcp smart-default wiring (root.go),
// generalized from a single project root into a named data directory
// holding multiple workspaces.
type Engine struct {
	DataDir  string
	Pool     *storage.Pool
	Content  *contentstore.Store
	VFS      *vfs.VFS
	Semantic *semantic.Store
	Index    *vectorindex.Index
	Embedder embedding.Embedder
	Pipeline *ingest.Pipeline
	ForkMgr  *fork.Manager
	Sync     *syncwatch.SyncManager
	MCP      *mcpserver.Server

	lock *InstanceLock
}

// NewEngine opens storage under opts.DataDir, loads a persisted vector
// index if one exists, and wires every core component together. Callers
// must call Close to flush the index and release the instance lock.
func NewEngine(ctx context.Context, opts EngineOptions) (*Engine, error) {
	lock := NewInstanceLock(opts.DataDir)
	acquired, err := lock.TryLock()
	if err != nil {
		return nil, fmt.Errorf("checking instance lock: %w", err)
	}
	if !acquired {
		return nil, fmt.Errorf("another meridiand instance already holds the lock at %s", lock.Path())
	}

	dbPath := filepath.Join(opts.DataDir, "meridian.db")
	pool, err := storage.Open(ctx, dbPath)
	if err != nil {
		lock.Unlock()
		return nil, fmt.Errorf("opening storage: %w", err)
	}

	content, err := contentstore.New(pool, 256)
	if err != nil {
		pool.Close()
		lock.Unlock()
		return nil, fmt.Errorf("opening content store: %w", err)
	}

	v := vfs.New(pool, content)
	store := semantic.New(pool)
	if err := store.EnableFullText(); err != nil {
		pool.Close()
		lock.Unlock()
		return nil, fmt.Errorf("opening full-text index: %w", err)
	}
	embedder := embedding.New(ctx, opts.EmbeddingProvider, opts.EmbeddingModel)

	idx, err := vectorindex.Load(opts.DataDir, indexBasename)
	if err != nil {
		idx = vectorindex.New(vectorindex.DefaultConfig(embedder.Dimensions()))
	}

	pipeline := ingest.New(v, store, embedder, idx)
	forkMgr := fork.New(v)
	syncMgr := syncwatch.New(pipeline, syncwatch.DefaultOptions())
	mcp := mcpserver.New(v, store, idx, embedder, pipeline, forkMgr)

	return &Engine{
		DataDir:  opts.DataDir,
		Pool:     pool,
		Content:  content,
		VFS:      v,
		Semantic: store,
		Index:    idx,
		Embedder: embedder,
		Pipeline: pipeline,
		ForkMgr:  forkMgr,
		Sync:     syncMgr,
		MCP:      mcp,
		lock:     lock,
	}, nil
}

// Close persists the vector index, releases the instance lock, and closes
// storage. Errors are collected; the first one is returned after every
// component has had a chance to release its resources.
func (e *Engine) Close() error {
	var firstErr error
	record := func(err error) {
		if err != nil && firstErr == nil {
			firstErr = err
		}
	}

	e.Sync.Stop()
	record(e.Index.Save(e.DataDir, indexBasename))
	e.Pipeline.Close()
	record(e.Semantic.Close())
	record(e.Embedder.Close())
	record(e.Pool.Close())
	record(e.lock.Unlock())
	return firstErr
}
