// Package ingest implements the IngestionPipeline (C6): a four-phase
// discover/enqueue/work/collect pipeline that walks a workspace's configured
// root paths, parses each file into CodeUnits, stores them in the
// SemanticStore, embeds them, and indexes the vectors — spec.md §4.6.
// Discovery is generalized from the teacher's internal/scanner.Scanner
// (single-root os.DirFS walk) to spec.md's multi-root, workspace-scoped
// contract; the worker pool, retry policy, and stats shape are grounded on
// cortex-code-analysis's concurrent/producer_consumer.rs.
package ingest

import (
	"time"
)

// Config tunes one ingestion run. Zero values fall back to the defaults
// producer_consumer.rs documents for ProducerConsumerConfig.
type Config struct {
	// Roots are host filesystem directories to walk; their contents are
	// mirrored into the workspace at the same relative paths.
	Roots []string

	IncludePatterns []string
	ExcludePatterns []string
	RespectGitignore bool

	// Workers is the pool size; 0 means runtime.GOMAXPROCS(0).
	Workers int

	// ChannelCapacity bounds the job queue; 0 means DefaultChannelCapacity.
	ChannelCapacity int

	// MaxRetries is how many times a failed job is retried; 0 means
	// DefaultMaxRetries.
	MaxRetries int

	// RetryDelay is the pause between a job's attempts; 0 means
	// DefaultRetryDelay.
	RetryDelay time.Duration

	// DisableRetry turns off the retry loop entirely: a job that fails once
	// is recorded as failed immediately. The zero value keeps retries on,
	// matching producer_consumer.rs's graceful_errors=true default.
	DisableRetry bool

	// MaxFileSize skips files larger than this many bytes; 0 means
	// DefaultMaxFileSize.
	MaxFileSize int64

	// EmbeddingModel is passed through to Embedder.Embed/EmbedBatch.
	EmbeddingModel string

	// ProgressFunc, if set, is called after every processed file.
	ProgressFunc func(Stats)

	// CompactionOrphanThreshold is the orphan ratio that makes Run compact
	// the vector index afterward; 0 means DefaultCompactionOrphanThreshold.
	CompactionOrphanThreshold float64

	// CompactionMinOrphanCount is the minimum orphan count before Run
	// considers compaction; 0 means DefaultCompactionMinOrphanCount.
	CompactionMinOrphanCount int
}

const (
	DefaultChannelCapacity = 1000
	DefaultMaxRetries      = 2
	DefaultRetryDelay      = 100 * time.Millisecond
	DefaultMaxFileSize     = 10 * 1024 * 1024

	// DefaultCompactionOrphanThreshold and DefaultCompactionMinOrphanCount
	// mirror the teacher's CompactionConfig defaults (internal/config):
	// compact once orphans exceed 20% of the graph and there are at least
	// 100 of them, so small indexes don't churn on every run.
	DefaultCompactionOrphanThreshold = 0.2
	DefaultCompactionMinOrphanCount  = 100
)

func (c Config) withDefaults() Config {
	if c.ChannelCapacity <= 0 {
		c.ChannelCapacity = DefaultChannelCapacity
	}
	if c.MaxRetries <= 0 {
		c.MaxRetries = DefaultMaxRetries
	}
	if c.RetryDelay <= 0 {
		c.RetryDelay = DefaultRetryDelay
	}
	if c.MaxFileSize <= 0 {
		c.MaxFileSize = DefaultMaxFileSize
	}
	if c.CompactionOrphanThreshold <= 0 {
		c.CompactionOrphanThreshold = DefaultCompactionOrphanThreshold
	}
	if c.CompactionMinOrphanCount <= 0 {
		c.CompactionMinOrphanCount = DefaultCompactionMinOrphanCount
	}
	return c
}

// DiscoveredFile is one file found during the discovery phase, relative to
// its root and ready to be enqueued as a Job.
type DiscoveredFile struct {
	// Path is the workspace-relative path (always "/"-rooted, matching
	// vfs.NormalizePath).
	Path string
	// AbsPath is the absolute host filesystem path to read bytes from.
	AbsPath string
	Size    int64
	ModTime time.Time
}

// job is one unit of enqueued work, mirroring producer_consumer.rs's Job<C>.
type job struct {
	file       DiscoveredFile
	retryCount int
}

// FileResult is one worker's outcome for a single file, mirroring
// producer_consumer.rs's FileResult.
type FileResult struct {
	Path    string
	Success bool
	Size    int64
	Error   error
}

// Stats aggregates one ingestion run's outcome, mirroring
// producer_consumer.rs's ProcessingStats.
type Stats struct {
	FilesDiscovered int
	FilesProcessed  int
	FilesFailed     int
	BytesProcessed  int64
	Duration        time.Duration

	// ThroughputFPS and ThroughputMBPS are computed by finish().
	ThroughputFPS  float64
	ThroughputMBPS float64

	Errors []FileResult
}

func (s *Stats) finish(d time.Duration) {
	s.Duration = d
	secs := d.Seconds()
	if secs <= 0 {
		return
	}
	s.ThroughputFPS = float64(s.FilesProcessed) / secs
	s.ThroughputMBPS = float64(s.BytesProcessed) / (1024 * 1024) / secs
}

// SuccessRate returns the fraction of discovered files that were processed
// successfully, in [0, 1]. An empty run reports 1.
func (s *Stats) SuccessRate() float64 {
	if s.FilesDiscovered == 0 {
		return 1
	}
	return float64(s.FilesProcessed) / float64(s.FilesDiscovered)
}
