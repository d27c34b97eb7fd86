// Package syncwatch implements the SyncManager and Watcher capability (C9):
// a debounced filesystem watcher that coalesces raw OS events into
// workspace-level invalidations, plus a push/pull sync loop on a periodic
// timer. Grounded on the teacher's internal/watcher package (event model,
// coalescing table, fsnotify/polling hybrid) and
// original_source/cortex/src/global/sync.rs (pending-change table, dual
// debounce/periodic timer loop, SyncResult vocabulary).
package syncwatch

import (
	"context"
	"time"
)

// Operation represents a file system operation type.
type Operation int

const (
	// OpCreate indicates a new file or directory was created.
	OpCreate Operation = iota
	// OpModify indicates an existing file was modified.
	OpModify
	// OpDelete indicates a file or directory was deleted.
	OpDelete
	// OpRename indicates a file or directory was renamed.
	OpRename
	// OpGitignoreChange indicates a .gitignore file was modified, triggering
	// index reconciliation over the affected workspace.
	OpGitignoreChange
	// OpConfigChange indicates a .meridian.yaml/.yml config file was
	// modified, triggering a reload of exclude patterns.
	OpConfigChange
)

// String returns a human-readable representation of the operation.
func (op Operation) String() string {
	switch op {
	case OpCreate:
		return "CREATE"
	case OpModify:
		return "MODIFY"
	case OpDelete:
		return "DELETE"
	case OpRename:
		return "RENAME"
	case OpGitignoreChange:
		return "GITIGNORE_CHANGE"
	case OpConfigChange:
		return "CONFIG_CHANGE"
	default:
		return "UNKNOWN"
	}
}

// FileEvent represents a file system event, scoped to the workspace that
// owns the watched root (spec.md §4.9: "(path, kind, project_id?)").
type FileEvent struct {
	Path        string
	OldPath     string // previous path for rename events; empty otherwise
	Operation   Operation
	IsDir       bool
	WorkspaceID string
	Timestamp   time.Time
}

// Watcher is the file-system watching capability consumed by SyncManager.
type Watcher interface {
	Start(ctx context.Context, path string) error
	Stop() error
	Events() <-chan []FileEvent
	Errors() <-chan error
}

// WatcherOptions configures watcher behavior.
type WatcherOptions struct {
	DebounceWindow  time.Duration
	PollInterval    time.Duration
	EventBufferSize int
	IgnorePatterns  []string
	WorkspaceID     string
}

// DefaultWatcherOptions returns the default watcher options.
func DefaultWatcherOptions() WatcherOptions {
	return WatcherOptions{
		DebounceWindow:  200 * time.Millisecond,
		PollInterval:    5 * time.Second,
		EventBufferSize: 1000,
	}
}

// WithDefaults returns opts with defaults applied to zero-value fields.
func (o WatcherOptions) WithDefaults() WatcherOptions {
	d := DefaultWatcherOptions()
	if o.DebounceWindow == 0 {
		o.DebounceWindow = d.DebounceWindow
	}
	if o.PollInterval == 0 {
		o.PollInterval = d.PollInterval
	}
	if o.EventBufferSize == 0 {
		o.EventBufferSize = d.EventBufferSize
	}
	return o
}
