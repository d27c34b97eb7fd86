// Package fork implements ForkManager (C8): editable deep copies of a
// workspace, and three-way merge back into a target. Grounded directly on
// original_source/cortex/cortex-vfs/src/fork_manager.rs — namespace naming,
// vnode deep-copy without blob copy, the change-log-since-fork-point merge
// algorithm, per-change-type conflict rules, and the four merge strategies
// carry over unchanged.
package fork

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-dev/meridian/internal/merrors"
	"github.com/meridian-dev/meridian/internal/vfs"
)

func now() time.Time { return time.Now().UTC() }

// Strategy selects how merge conflicts are resolved.
type Strategy string

const (
	StrategyManual       Strategy = "manual"
	StrategyAuto         Strategy = "auto"
	StrategyPreferFork   Strategy = "prefer_fork"
	StrategyPreferTarget Strategy = "prefer_target"
)

// Conflict is one path where fork and target both changed since the fork
// point. Resolution is nil until a strategy (or the caller, under Manual)
// fills it in.
type Conflict struct {
	Path          string
	ForkContent   string
	TargetContent string
	Resolution    *string
}

// Report summarizes the outcome of a merge.
type Report struct {
	ChangesApplied int
	ConflictsCount int
	AutoResolved   int
	Errors         []string
	Conflicts      []*Conflict
}

// Manager creates and merges workspace forks.
type Manager struct {
	vfs *vfs.VFS
}

// New builds a Manager over the given VFS.
func New(v *vfs.VFS) *Manager {
	return &Manager{vfs: v}
}

// CreateFork validates the source workspace, allocates a new editable
// workspace namespaced "{src}_{forkName}_fork_{uuid}", and deep-copies every
// vnode into it without copying blobs (content is shared via ContentStore).
func (m *Manager) CreateFork(ctx context.Context, sourceWorkspaceID, forkName string) (*vfs.Workspace, error) {
	source, err := m.vfs.GetWorkspace(ctx, sourceWorkspaceID)
	if err != nil {
		return nil, err
	}

	forkNamespace := source.Namespace + "_" + strings.ReplaceAll(forkName, " ", "_") + "_fork_" + uuid.NewString()
	ts := now()

	meta := make(map[string]string, len(source.Metadata)+2)
	for k, v := range source.Metadata {
		meta[k] = v
	}
	meta["is_fork"] = "true"
	meta["source_workspace_id"] = sourceWorkspaceID

	forkWS := &vfs.Workspace{
		ID:              uuid.NewString(),
		Name:            forkName,
		Namespace:       forkNamespace,
		Type:            source.Type,
		Source:          source.Source,
		ReadOnly:        false,
		ParentWorkspace: sourceWorkspaceID,
		Fork: &vfs.ForkMetadata{
			SourceID:  sourceWorkspaceID,
			ForkPoint: ts,
		},
		Metadata:    meta,
		SyncSources: nil, // a fork does not inherit sync sources
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}

	if err := m.vfs.PersistWorkspace(ctx, forkWS); err != nil {
		return nil, err
	}
	if err := m.copyVNodes(ctx, sourceWorkspaceID, forkWS.ID); err != nil {
		return nil, err
	}
	return forkWS, nil
}

// copyVNodes deep-copies every vnode from source into fork: new id, new
// workspace_id, read_only reset to false, refreshed timestamps. The root
// directory vnode is copied like any other — VFS.CreateWorkspace does not
// need to be called since PersistWorkspace only writes the workspace row.
func (m *Manager) copyVNodes(ctx context.Context, sourceWorkspaceID, forkWorkspaceID string) error {
	nodes, err := m.vfs.AllVNodes(ctx, sourceWorkspaceID)
	if err != nil {
		return err
	}
	for _, src := range nodes {
		ts := now()
		clone := &vfs.VNode{
			ID:          uuid.NewString(),
			WorkspaceID: forkWorkspaceID,
			Path:        src.Path,
			Kind:        src.Kind,
			ContentHash: src.ContentHash,
			Target:      src.Target,
			SizeBytes:   src.SizeBytes,
			Version:     src.Version,
			ReadOnly:    false,
			UnitsCount:  src.UnitsCount,
			CreatedAt:   ts,
			UpdatedAt:   ts,
		}
		if err := m.vfs.InsertVNode(ctx, clone); err != nil {
			return err
		}
	}
	return nil
}

// Merge applies every change recorded in the fork's change log since its
// fork point into target, using strategy to resolve conflicts. Refuses if
// target is read-only.
func (m *Manager) Merge(ctx context.Context, forkID, targetID string, strategy Strategy) (*Report, error) {
	forkWS, err := m.vfs.GetWorkspace(ctx, forkID)
	if err != nil {
		return nil, err
	}
	target, err := m.vfs.GetWorkspace(ctx, targetID)
	if err != nil {
		return nil, err
	}
	if target.ReadOnly {
		return nil, merrors.ReadOnly(merrors.ErrCodeReadOnlyWorkspace, "cannot merge into read-only workspace: "+targetID)
	}
	if forkWS.Fork == nil {
		return nil, merrors.Invalid(merrors.ErrCodeInvalidInput, "not a fork workspace: "+forkID)
	}

	changes, err := m.vfs.ChangesSince(ctx, forkID, forkWS.Fork.ForkPoint)
	if err != nil {
		return nil, err
	}

	report := &Report{}
	for _, change := range changes {
		conflict, err := m.applyChange(ctx, change, target)
		if err != nil {
			report.Errors = append(report.Errors, "failed to apply change: "+err.Error())
			continue
		}
		if conflict != nil {
			report.Conflicts = append(report.Conflicts, conflict)
			continue
		}
		report.ChangesApplied++
	}

	if len(report.Conflicts) > 0 {
		report.ConflictsCount = len(report.Conflicts)
		m.resolveConflicts(report, strategy)

		for _, conflict := range report.Conflicts {
			if conflict.Resolution == nil {
				continue
			}
			if _, err := m.vfs.WriteFile(ctx, targetID, conflict.Path, []byte(*conflict.Resolution)); err != nil {
				report.Errors = append(report.Errors, "failed to apply resolution for "+conflict.Path+": "+err.Error())
			} else {
				report.ChangesApplied++
			}
		}
	}

	return report, nil
}

func (m *Manager) resolveConflicts(report *Report, strategy Strategy) {
	for _, conflict := range report.Conflicts {
		switch strategy {
		case StrategyManual:
			// left unresolved for the caller.
		case StrategyAuto:
			merged := threeWayMerge(conflict)
			conflict.Resolution = &merged
			report.AutoResolved++
		case StrategyPreferFork:
			content := conflict.ForkContent
			conflict.Resolution = &content
			report.AutoResolved++
		case StrategyPreferTarget:
			content := conflict.TargetContent
			conflict.Resolution = &content
			report.AutoResolved++
		}
	}
}

// applyChange replays one fork-side change into target, returning a
// *Conflict when structural detection (path presence + version counter)
// finds the target also changed.
func (m *Manager) applyChange(ctx context.Context, change vfs.Change, target *vfs.Workspace) (*Conflict, error) {
	targetMeta, targetErr := m.vfs.Metadata(ctx, target.ID, change.Path)
	targetExists := targetErr == nil

	switch change.Type {
	case vfs.ChangeCreated:
		if targetExists {
			return m.buildConflict(ctx, change, target)
		}
		return nil, m.copyVNodeToWorkspace(ctx, change.WorkspaceID, change.VNodeID, target.ID)

	case vfs.ChangeModified:
		if !targetExists {
			return m.buildConflict(ctx, change, target)
		}
		if targetMeta.Version > 1 {
			return m.buildConflict(ctx, change, target)
		}
		return nil, m.copyVNodeToWorkspace(ctx, change.WorkspaceID, change.VNodeID, target.ID)

	case vfs.ChangeDeleted:
		if targetExists {
			return nil, m.vfs.Delete(ctx, target.ID, change.Path, false)
		}
		return nil, nil

	case vfs.ChangeRenamed:
		// The change log records rename as a copy-to-new-path; the old path's
		// deletion, if any, arrives as its own ChangeDeleted entry.
		return nil, m.copyVNodeToWorkspace(ctx, change.WorkspaceID, change.VNodeID, target.ID)

	default:
		return nil, merrors.Invalid(merrors.ErrCodeInvalidInput, "unknown change type: "+string(change.Type))
	}
}

func (m *Manager) buildConflict(ctx context.Context, change vfs.Change, target *vfs.Workspace) (*Conflict, error) {
	forkContent, err := m.contentAt(ctx, change.WorkspaceID, change.VNodeID)
	if err != nil {
		return nil, err
	}
	targetContent, err := m.contentAtPath(ctx, target.ID, change.Path)
	if err != nil {
		return nil, err
	}
	return &Conflict{Path: change.Path, ForkContent: forkContent, TargetContent: targetContent}, nil
}

func (m *Manager) contentAt(ctx context.Context, workspaceID, vnodeID string) (string, error) {
	vn, err := m.vfs.VNodeByID(ctx, workspaceID, vnodeID)
	if err != nil {
		return "", nil //nolint:nilerr // a vanished fork vnode conflicts with empty fork content, not a hard error
	}
	if vn.ContentHash == "" {
		return "", nil
	}
	b, err := m.vfs.ContentStore().Get(ctx, vn.ContentHash)
	if err != nil {
		return "", err
	}
	return string(b), nil
}

func (m *Manager) contentAtPath(ctx context.Context, workspaceID, path string) (string, error) {
	b, err := m.vfs.ReadFile(ctx, workspaceID, path)
	if err != nil {
		return "", nil //nolint:nilerr // target side missing/deleted reads as empty content, not a hard error
	}
	return string(b), nil
}

func (m *Manager) copyVNodeToWorkspace(ctx context.Context, sourceWorkspaceID, vnodeID, targetWorkspaceID string) error {
	src, err := m.vfs.VNodeByID(ctx, sourceWorkspaceID, vnodeID)
	if err != nil {
		return err
	}
	ts := now()
	clone := &vfs.VNode{
		ID:          uuid.NewString(),
		WorkspaceID: targetWorkspaceID,
		Path:        src.Path,
		Kind:        src.Kind,
		ContentHash: src.ContentHash,
		Target:      src.Target,
		SizeBytes:   src.SizeBytes,
		Version:     src.Version,
		ReadOnly:    false,
		UnitsCount:  src.UnitsCount,
		CreatedAt:   ts,
		UpdatedAt:   ts,
	}
	return m.vfs.InsertVNode(ctx, clone)
}

// threeWayMerge is an intentional placeholder, grounded on fork_manager.rs's
// own `three_way_merge`: it never actually merges line-by-line, it wraps both
// sides in standard conflict markers. A real diff3 is out of scope.
func threeWayMerge(c *Conflict) string {
	var b strings.Builder
	b.WriteString("<<<<<<< FORK\n")
	b.WriteString(c.ForkContent)
	b.WriteString("\n=======\n")
	b.WriteString(c.TargetContent)
	b.WriteString("\n>>>>>>> TARGET\n")
	return b.String()
}
