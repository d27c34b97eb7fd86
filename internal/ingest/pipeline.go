package ingest

import (
	"context"
	"log/slog"
	"regexp"
	"runtime"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-dev/meridian/internal/codeparser"
	"github.com/meridian-dev/meridian/internal/embedding"
	"github.com/meridian-dev/meridian/internal/semantic"
	"github.com/meridian-dev/meridian/internal/vectorindex"
	"github.com/meridian-dev/meridian/internal/vfs"
)

// Pipeline wires Discovery, the worker pool, and the per-file ingest
// protocol (spec.md §4.6 steps 1-5) over one workspace. Grounded on
// producer_consumer.rs's channel-based fan-out/fan-in shape: Run enqueues
// jobs onto a bounded channel, a pool of workers pulls from it, and Run
// itself folds the FileResults into Stats as they arrive.
type Pipeline struct {
	vfs       *vfs.VFS
	parser    *codeparser.Parser
	extractor *codeparser.Extractor
	store     *semantic.Store
	embedder  embedding.Embedder
	index     *vectorindex.Index
}

// New builds a Pipeline over the given workspace's components.
func New(v *vfs.VFS, store *semantic.Store, embedder embedding.Embedder, index *vectorindex.Index) *Pipeline {
	return &Pipeline{
		vfs:       v,
		parser:    codeparser.NewParser(),
		extractor: codeparser.NewExtractor(),
		store:     store,
		embedder:  embedder,
		index:     index,
	}
}

// Close releases the pipeline's parser resources. It does not close the
// embedder or index, which the caller owns.
func (p *Pipeline) Close() {
	p.parser.Close()
}

// Run executes the full pipeline for workspaceID: discover, enqueue, work,
// collect. It blocks until every discovered file has been processed (with
// retries exhausted) or ctx is cancelled.
func (p *Pipeline) Run(ctx context.Context, workspaceID string, cfg Config) (Stats, error) {
	cfg = cfg.withDefaults()

	files, err := Discover(ctx, cfg)
	if err != nil {
		return Stats{}, err
	}

	stats := Stats{FilesDiscovered: len(files)}
	if len(files) == 0 {
		return stats, nil
	}

	workers := cfg.Workers
	if workers <= 0 {
		workers = runtime.GOMAXPROCS(0)
	}

	jobs := make(chan job, cfg.ChannelCapacity)
	results := make(chan FileResult, cfg.ChannelCapacity)

	var wg sync.WaitGroup
	wg.Add(workers)
	for i := 0; i < workers; i++ {
		go func() {
			defer wg.Done()
			p.worker(ctx, workspaceID, cfg, jobs, results)
		}()
	}

	go func() {
		defer close(jobs)
		for _, f := range files {
			select {
			case jobs <- job{file: f}:
			case <-ctx.Done():
				return
			}
		}
	}()

	go func() {
		wg.Wait()
		close(results)
	}()

	start := now()
	var mu sync.Mutex
	for r := range results {
		mu.Lock()
		if r.Success {
			stats.FilesProcessed++
			stats.BytesProcessed += r.Size
		} else {
			stats.FilesFailed++
			stats.Errors = append(stats.Errors, r)
		}
		if cfg.ProgressFunc != nil {
			snapshot := stats
			cfg.ProgressFunc(snapshot)
		}
		mu.Unlock()
	}
	stats.finish(now().Sub(start))

	if err := ctx.Err(); err != nil {
		return stats, err
	}

	if _, err := p.index.CompactIfNeeded(cfg.CompactionOrphanThreshold, cfg.CompactionMinOrphanCount); err != nil {
		slog.Warn("vector index compaction skipped", slog.String("error", err.Error()))
	}

	return stats, nil
}

func now() time.Time { return time.Now() }

// worker pulls jobs until the channel closes, processing each with the
// retry policy Config names and publishing one FileResult per job.
func (p *Pipeline) worker(ctx context.Context, workspaceID string, cfg Config, jobs <-chan job, results chan<- FileResult) {
	for j := range jobs {
		var lastErr error
		attempts := 1
		if !cfg.DisableRetry {
			attempts += cfg.MaxRetries
		}

		for attempt := 0; attempt < attempts; attempt++ {
			if attempt > 0 {
				select {
				case <-time.After(cfg.RetryDelay):
				case <-ctx.Done():
					results <- FileResult{Path: j.file.Path, Error: ctx.Err()}
					return
				}
			}

			err := p.ingestFile(ctx, workspaceID, cfg, j.file)
			if err == nil {
				results <- FileResult{Path: j.file.Path, Success: true, Size: j.file.Size}
				lastErr = nil
				break
			}
			lastErr = err
			j.retryCount = attempt + 1
		}

		if lastErr != nil {
			results <- FileResult{Path: j.file.Path, Success: false, Size: j.file.Size, Error: lastErr}
		}

		select {
		case <-ctx.Done():
			return
		default:
		}
	}
}

// ingestFile runs the five-step per-file protocol spec.md §4.6 names.
func (p *Pipeline) ingestFile(ctx context.Context, workspaceID string, cfg Config, file DiscoveredFile) error {
	raw, err := readHostFile(file.AbsPath)
	if err != nil {
		return err
	}

	if _, err := p.vfs.WriteFile(ctx, workspaceID, file.Path, raw); err != nil {
		return err
	}

	// Step 1: read the file back through the VFS, so parsing always runs
	// against the content the VFS actually committed.
	content, err := p.vfs.ReadFile(ctx, workspaceID, file.Path)
	if err != nil {
		return err
	}

	language, err := p.parser.ResolveLanguage(file.Path, "")
	if err != nil {
		// Unrecognized languages are not an ingestion failure: the file is
		// stored in the VFS but contributes no CodeUnits.
		return nil
	}

	// Step 2: parse and extract.
	tree, err := p.parser.Parse(ctx, content, language)
	if err != nil {
		return err
	}
	units := p.extractor.Extract(tree, workspaceID, file.Path)
	for _, u := range units {
		u.ID = uuid.NewString()
	}
	deps := inferSameFileDependencies(units)

	// Step 3: atomically replace this file's units and their dependencies.
	if err := p.store.ReplaceFileUnits(ctx, workspaceID, file.Path, units, deps); err != nil {
		return err
	}

	// Step 4: embed each unit and index the vector. A unit's embedding
	// failure does not fail the file — spec.md §4.6 only requires the
	// embedding step to run "on success", implying embedding is best-effort
	// relative to storage.
	for _, u := range units {
		text := embeddingText(u)
		if text == "" {
			continue
		}
		vec, err := p.embedder.Embed(ctx, text, cfg.EmbeddingModel)
		if err != nil {
			continue
		}
		_ = p.index.Add(u.ID, vec)
	}

	// Step 5: record units_count/last_indexed_at on the vnode.
	return p.vfs.UpdateIndexMetadata(ctx, workspaceID, file.Path, len(units), now())
}

func embeddingText(u *semantic.CodeUnit) string {
	var b strings.Builder
	b.WriteString(u.Signature)
	if u.Docstring != "" {
		b.WriteString("\n")
		b.WriteString(u.Docstring)
	}
	return b.String()
}

var identifierPattern = regexp.MustCompile(`[A-Za-z_][A-Za-z0-9_]*`)

// inferSameFileDependencies builds "calls" edges between units in the same
// file by textually matching each unit's name as a whole identifier inside
// every other unit's body. No example repo or original_source file performs
// call-graph extraction for this language set, so this is a deliberate
// simplification documented in DESIGN.md: precise cross-file call resolution
// is out of scope, and even this same-file heuristic will both miss calls
// (through aliases, interfaces) and over-match (shadowed names).
func inferSameFileDependencies(units []*semantic.CodeUnit) []*semantic.Dependency {
	if len(units) < 2 {
		return nil
	}
	var deps []*semantic.Dependency
	for _, caller := range units {
		names := identifierPattern.FindAllString(caller.Body, -1)
		seen := make(map[string]struct{}, len(names))
		for _, n := range names {
			seen[n] = struct{}{}
		}
		for _, callee := range units {
			if caller == callee || callee.Name == "" {
				continue
			}
			if _, ok := seen[callee.Name]; !ok {
				continue
			}
			deps = append(deps, &semantic.Dependency{
				SourceID:   caller.ID,
				TargetID:   callee.ID,
				Type:       semantic.DepCalls,
				IsDirect:   true,
				Confidence: 0.5,
			})
		}
	}
	return deps
}

func readHostFile(path string) ([]byte, error) {
	return readFile(path)
}
