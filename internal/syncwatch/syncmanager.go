package syncwatch

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/meridian-dev/meridian/internal/ingest"
)

// Direction is which way a sync moved data.
type Direction string

const (
	// DirectionPush re-ingests local (VFS) content into the queryable
	// SemanticStore/VectorIndex side.
	DirectionPush Direction = "push"
	// DirectionPull would bring external changes into the local VFS. Left
	// unimplemented: this engine has no distributed global store to pull
	// from (see PullSync).
	DirectionPull Direction = "pull"
)

// Result reports the outcome of one sync operation.
type Result struct {
	Direction   Direction
	WorkspaceID string
	FilesSynced int
	Errors      []string
	Duration    time.Duration
	StartedAt   time.Time
}

// Success reports whether the sync completed with no errors.
func (r Result) Success() bool { return len(r.Errors) == 0 }

// PendingChange is a debounced file event waiting to be folded into the next
// sync pass.
type PendingChange struct {
	Path        string
	Operation   Operation
	WorkspaceID string
	QueuedAt    time.Time
}

// Stats summarizes the SyncManager's lifetime activity.
type Stats struct {
	PendingChanges  int
	TotalPushes     int
	TotalPulls      int
	LastPushAt      time.Time
	LastPullAt      time.Time
	CacheInvalidations int
}

// Options configures a SyncManager.
type Options struct {
	DebounceWindow time.Duration
	PeriodicPeriod time.Duration
}

// DefaultOptions returns sync.rs's defaults: a 500ms debounce window and a
// 5 minute periodic push.
func DefaultOptions() Options {
	return Options{
		DebounceWindow: 500 * time.Millisecond,
		PeriodicPeriod: 5 * time.Minute,
	}
}

// SyncManager coalesces watched file changes into periodic push passes
// through the ingestion pipeline, and tracks sync statistics. Grounded on
// original_source/cortex/src/global/sync.rs's SyncManager: the pending-change
// table, the dual debounce-timer/periodic-timer loop, and the
// push_sync/pull_sync/SyncResult vocabulary.
//
// cortex's SyncManager bridged a local cache and a separate global store;
// this engine has no second store to pull from, so PullSync is an honest
// stub (mirroring sync.rs's own push_sync/pull_sync, which were themselves
// left as TODOs pending indexer integration) rather than a fabricated one.
type SyncManager struct {
	opts     Options
	pipeline *ingest.Pipeline

	mu            sync.Mutex
	pending       map[string]PendingChange // keyed by workspaceID+":"+path
	roots         map[string][]string      // workspaceID -> host roots to re-walk on push
	stats         Stats
	debounceTimer *time.Timer
	stopCh        chan struct{}
	stopped       bool
	stopOnce      sync.Once
	wg            sync.WaitGroup
}

// New builds a SyncManager over the given ingestion pipeline.
func New(pipeline *ingest.Pipeline, opts Options) *SyncManager {
	if opts.DebounceWindow <= 0 {
		opts.DebounceWindow = DefaultOptions().DebounceWindow
	}
	if opts.PeriodicPeriod <= 0 {
		opts.PeriodicPeriod = DefaultOptions().PeriodicPeriod
	}
	return &SyncManager{
		opts:     opts,
		pipeline: pipeline,
		pending:  make(map[string]PendingChange),
		roots:    make(map[string][]string),
		stopCh:   make(chan struct{}),
	}
}

// WatchRoots registers the host filesystem roots a workspace was populated
// from, so PushSync knows what to re-walk.
func (s *SyncManager) WatchRoots(workspaceID string, roots []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.roots[workspaceID] = roots
}

// HandleFileChange records a debounced file event as a pending change and
// (re)starts the debounce timer toward the next push.
func (s *SyncManager) HandleFileChange(event FileEvent) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.stopped {
		return
	}

	key := event.WorkspaceID + ":" + event.Path
	s.pending[key] = PendingChange{
		Path:        event.Path,
		Operation:   event.Operation,
		WorkspaceID: event.WorkspaceID,
		QueuedAt:    time.Now(),
	}

	if s.debounceTimer != nil {
		s.debounceTimer.Stop()
	}
	s.debounceTimer = time.AfterFunc(s.opts.DebounceWindow, func() {
		if _, err := s.PushSync(context.Background(), event.WorkspaceID); err != nil {
			slog.Warn("debounced push sync failed", slog.String("workspace_id", event.WorkspaceID), slog.String("error", err.Error()))
		}
	})
}

// InvalidateCache drops a workspace's pending changes without syncing them,
// e.g. when a workspace is deleted out from under the watcher.
func (s *SyncManager) InvalidateCache(workspaceID string) {
	s.mu.Lock()
	defer s.mu.Unlock()

	for key, pc := range s.pending {
		if pc.WorkspaceID == workspaceID {
			delete(s.pending, key)
		}
	}
	s.stats.CacheInvalidations++
}

// PushSync re-ingests workspaceID's registered roots through the pipeline,
// folding any pending changes for it into the run and clearing them on
// completion.
func (s *SyncManager) PushSync(ctx context.Context, workspaceID string) (Result, error) {
	start := time.Now()

	s.mu.Lock()
	roots := append([]string(nil), s.roots[workspaceID]...)
	var changed int
	for key, pc := range s.pending {
		if pc.WorkspaceID == workspaceID {
			changed++
			delete(s.pending, key)
		}
	}
	s.mu.Unlock()

	if len(roots) == 0 {
		return Result{}, fmt.Errorf("no registered roots for workspace %s", workspaceID)
	}

	stats, err := s.pipeline.Run(ctx, workspaceID, ingest.Config{Roots: roots})

	result := Result{
		Direction:   DirectionPush,
		WorkspaceID: workspaceID,
		FilesSynced: stats.FilesProcessed,
		StartedAt:   start,
		Duration:    time.Since(start),
	}
	for _, fr := range stats.Errors {
		result.Errors = append(result.Errors, fr.Path+": "+fr.Error.Error())
	}

	s.mu.Lock()
	s.stats.TotalPushes++
	s.stats.LastPushAt = result.StartedAt
	s.mu.Unlock()

	if err != nil {
		return result, err
	}
	return result, nil
}

// PullSync would bring changes from a remote/global store into the local
// VFS. No such store exists in this engine (see type doc); it returns a
// Result recording that nothing was pulled rather than fabricating one.
func (s *SyncManager) PullSync(ctx context.Context, workspaceID string) (Result, error) {
	s.mu.Lock()
	s.stats.TotalPulls++
	s.stats.LastPullAt = time.Now()
	s.mu.Unlock()

	return Result{
		Direction:   DirectionPull,
		WorkspaceID: workspaceID,
		Errors:      []string{"pull sync has no remote store to pull from"},
		StartedAt:   time.Now(),
	}, nil
}

// StartPeriodicSync runs PushSync for workspaceID on opts.PeriodicPeriod
// until ctx is cancelled or Stop is called.
func (s *SyncManager) StartPeriodicSync(ctx context.Context, workspaceID string) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()

		ticker := time.NewTicker(s.opts.PeriodicPeriod)
		defer ticker.Stop()

		for {
			select {
			case <-ctx.Done():
				return
			case <-s.stopCh:
				return
			case <-ticker.C:
				if _, err := s.PushSync(ctx, workspaceID); err != nil {
					slog.Warn("periodic push sync failed", slog.String("workspace_id", workspaceID), slog.String("error", err.Error()))
				}
			}
		}
	}()
}

// Stop stops all periodic sync loops and the pending debounce timer. Safe
// to call multiple times.
func (s *SyncManager) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		s.stopped = true
		if s.debounceTimer != nil {
			s.debounceTimer.Stop()
		}
		s.mu.Unlock()

		close(s.stopCh)
		s.wg.Wait()
	})
}

// GetStats returns a snapshot of the manager's sync activity.
func (s *SyncManager) GetStats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()

	snapshot := s.stats
	snapshot.PendingChanges = len(s.pending)
	return snapshot
}
