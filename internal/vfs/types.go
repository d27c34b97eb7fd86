// Package vfs implements Meridian's Virtual File System (C2): workspaces,
// vnodes and path-addressed reads/writes over the content-addressed blob
// store, with no host filesystem involved. Path normalization and the
// write/read/delete contract are grounded on spec.md §4.2; the workspace and
// vnode shapes follow spec.md §3, generalized from the path-normalization
// idiom used throughout the teacher's internal/scanner.
package vfs

import (
	"time"

	"github.com/meridian-dev/meridian/internal/contentstore"
)

// WorkspaceType distinguishes code workspaces from plain document trees.
type WorkspaceType string

const (
	WorkspaceTypeCode      WorkspaceType = "code"
	WorkspaceTypeDocuments WorkspaceType = "documents"
)

// WorkspaceSource records where a workspace's content originates.
type WorkspaceSource string

const (
	WorkspaceSourceLocal  WorkspaceSource = "local"
	WorkspaceSourceRemote WorkspaceSource = "remote"
)

// ForkMetadata is present only on workspaces created by ForkManager.
type ForkMetadata struct {
	SourceID  string
	ForkPoint time.Time
}

// Workspace is the logical root for files and code units.
type Workspace struct {
	ID             string
	Name           string
	Namespace      string
	Type           WorkspaceType
	Source         WorkspaceSource
	ReadOnly       bool
	ParentWorkspace string // empty if not a fork
	Fork           *ForkMetadata
	Metadata       map[string]string
	SyncSources    []string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}

// IsFork reports whether this workspace is a fork of another.
func (w *Workspace) IsFork() bool {
	return w.ParentWorkspace != ""
}

// VNodeKind distinguishes files, directories and symlinks.
type VNodeKind string

const (
	VNodeFile    VNodeKind = "file"
	VNodeDir     VNodeKind = "dir"
	VNodeSymlink VNodeKind = "symlink"
)

// VNode is a file, directory, or symlink inside a workspace.
type VNode struct {
	ID          string
	WorkspaceID string
	Path        string
	Kind        VNodeKind
	ContentHash contentstore.Hash // empty for directories
	Target      string            // symlink target; empty otherwise
	SizeBytes   int64
	Version     int
	ReadOnly    bool
	CreatedAt   time.Time
	UpdatedAt   time.Time

	// UnitsCount and LastIndexedAt are updated by the ingestion pipeline
	// (spec.md §4.6 step 5) once a file's CodeUnits have been extracted,
	// stored, and embedded. Zero/nil means the vnode has never been indexed.
	UnitsCount    int
	LastIndexedAt *time.Time
}

// VNodeMeta is the metadata-only projection returned by list/metadata calls.
type VNodeMeta struct {
	Path      string
	Kind      VNodeKind
	SizeBytes int64
	Version   int
	UpdatedAt time.Time
}

func (v *VNode) Meta() VNodeMeta {
	return VNodeMeta{Path: v.Path, Kind: v.Kind, SizeBytes: v.SizeBytes, Version: v.Version, UpdatedAt: v.UpdatedAt}
}

// ChangeType enumerates the kinds of vnode mutation recorded in the change
// log that ForkManager.Merge replays.
type ChangeType string

const (
	ChangeCreated  ChangeType = "created"
	ChangeModified ChangeType = "modified"
	ChangeDeleted  ChangeType = "deleted"
	ChangeRenamed  ChangeType = "renamed"
)

// Change is a persisted log entry describing one vnode mutation, used by
// ForkManager to replay fork-side edits during merge. Rename is
// "copy-to-new-path" only (spec.md §9): deletion of the old path, if it
// happens, is a separate Change.
type Change struct {
	ID          string
	WorkspaceID string
	VNodeID     string
	Path        string
	Type        ChangeType
	Timestamp   time.Time
	BeforeHash  contentstore.Hash
	AfterHash   contentstore.Hash
}
