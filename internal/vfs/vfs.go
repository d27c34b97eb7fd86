package vfs

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-dev/meridian/internal/contentstore"
	"github.com/meridian-dev/meridian/internal/merrors"
	"github.com/meridian-dev/meridian/internal/storage"
)

// VFS is the Virtual File System: workspaces, vnodes, and path-addressed
// reads/writes over the content store. All state is persisted through the
// storage pool; there is no host-filesystem involvement.
type VFS struct {
	pool    *storage.Pool
	content *contentstore.Store
}

// New creates a VFS over the given storage pool and content store.
func New(pool *storage.Pool, content *contentstore.Store) *VFS {
	return &VFS{pool: pool, content: content}
}

func now() time.Time { return time.Now().UTC() }

// CreateWorkspace creates and persists a new workspace.
func (v *VFS) CreateWorkspace(ctx context.Context, name string, wsType WorkspaceType, readOnly bool) (*Workspace, error) {
	id := uuid.NewString()
	ts := now()
	ws := &Workspace{
		ID:        id,
		Name:      name,
		Namespace: id,
		Type:      wsType,
		Source:    WorkspaceSourceLocal,
		ReadOnly:  readOnly,
		Metadata:  map[string]string{},
		CreatedAt: ts,
		UpdatedAt: ts,
	}
	if err := v.persistWorkspace(ctx, ws); err != nil {
		return nil, err
	}
	// The root directory always exists implicitly.
	if err := v.createVNode(ctx, ws.ID, "/", VNodeDir, "", 0, readOnly); err != nil {
		return nil, err
	}
	return ws, nil
}

func (v *VFS) persistWorkspace(ctx context.Context, ws *Workspace) error {
	metaJSON, _ := json.Marshal(ws.Metadata)
	syncJSON, _ := json.Marshal(ws.SyncSources)
	var forkJSON []byte
	if ws.Fork != nil {
		forkJSON, _ = json.Marshal(ws.Fork)
	}
	roInt := 0
	if ws.ReadOnly {
		roInt = 1
	}
	_, err := v.pool.DB().ExecContext(ctx, `
		INSERT INTO workspaces (id, name, parent_id, read_only, metadata, sync_sources, fork_metadata, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(id) DO UPDATE SET
			name=excluded.name, read_only=excluded.read_only, metadata=excluded.metadata,
			sync_sources=excluded.sync_sources, fork_metadata=excluded.fork_metadata, updated_at=excluded.updated_at
	`, ws.ID, ws.Name, nullableString(ws.ParentWorkspace), roInt, string(metaJSON), string(syncJSON), nullableBytes(forkJSON), ws.CreatedAt.Format(time.RFC3339Nano), ws.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to persist workspace", err)
	}
	return nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

func nullableBytes(b []byte) interface{} {
	if len(b) == 0 {
		return nil
	}
	return string(b)
}

// GetWorkspace loads a workspace by id.
func (v *VFS) GetWorkspace(ctx context.Context, id string) (*Workspace, error) {
	row := v.pool.DB().QueryRowContext(ctx, `
		SELECT id, name, parent_id, read_only, metadata, sync_sources, fork_metadata, created_at, updated_at
		FROM workspaces WHERE id = ?
	`, id)
	return scanWorkspace(row, id)
}

// GetWorkspaceByName loads a workspace by its display name. Names are not
// unique across forks, so this returns the most recently created match.
func (v *VFS) GetWorkspaceByName(ctx context.Context, name string) (*Workspace, error) {
	row := v.pool.DB().QueryRowContext(ctx, `
		SELECT id, name, parent_id, read_only, metadata, sync_sources, fork_metadata, created_at, updated_at
		FROM workspaces WHERE name = ? ORDER BY created_at DESC LIMIT 1
	`, name)
	return scanWorkspace(row, "")
}

func scanWorkspace(row *sql.Row, fallbackID string) (*Workspace, error) {
	var (
		id, nameVal                          string
		parentID, metaStr, syncStr, forkStr sql.NullString
		roInt                                int
		createdStr, updatedStr               string
	)
	if err := row.Scan(&id, &nameVal, &parentID, &roInt, &metaStr, &syncStr, &forkStr, &createdStr, &updatedStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, merrors.NotFound(merrors.ErrCodeWorkspaceNotFound, "workspace not found: "+fallbackID)
		}
		return nil, merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to load workspace", err)
	}

	ws := &Workspace{ID: id, Name: nameVal}
	ws.ParentWorkspace = parentID.String
	ws.ReadOnly = roInt != 0
	ws.Namespace = id
	ws.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	ws.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
	ws.Metadata = map[string]string{}
	if metaStr.Valid {
		_ = json.Unmarshal([]byte(metaStr.String), &ws.Metadata)
	}
	if syncStr.Valid {
		_ = json.Unmarshal([]byte(syncStr.String), &ws.SyncSources)
	}
	if forkStr.Valid {
		var fm ForkMetadata
		if err := json.Unmarshal([]byte(forkStr.String), &fm); err == nil {
			ws.Fork = &fm
		}
	}
	return ws, nil
}

// DeleteWorkspace deletes a workspace, refusing if any other workspace forks
// from it (spec.md §3: "deleted only when no forks reference them").
func (v *VFS) DeleteWorkspace(ctx context.Context, id string) error {
	var forkCount int
	row := v.pool.DB().QueryRowContext(ctx, `SELECT COUNT(*) FROM workspaces WHERE parent_id = ?`, id)
	if err := row.Scan(&forkCount); err != nil {
		return merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to check forks", err)
	}
	if forkCount > 0 {
		return merrors.Conflict(merrors.ErrCodeVersionConflict, "cannot delete workspace with existing forks")
	}
	_, err := v.pool.DB().ExecContext(ctx, `DELETE FROM workspaces WHERE id = ?`, id)
	if err != nil {
		return merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to delete workspace", err)
	}
	return nil
}

// WriteFile writes bytes at path in workspace ws, computing the content
// hash, storing the blob, and upserting the vnode. Fails ReadOnly if the
// workspace is read-only.
func (v *VFS) WriteFile(ctx context.Context, wsID, path string, content []byte) (*VNode, error) {
	norm, err := NormalizePath(path)
	if err != nil {
		return nil, err
	}

	ws, err := v.GetWorkspace(ctx, wsID)
	if err != nil {
		return nil, err
	}
	if ws.ReadOnly {
		return nil, merrors.ReadOnly(merrors.ErrCodeReadOnlyWorkspace, "workspace is read-only: "+wsID)
	}

	parent := ParentPath(norm)
	if parent != "/" {
		if _, err := v.getVNode(ctx, wsID, parent); err != nil {
			return nil, merrors.Invalid(merrors.ErrCodeInvalidPath, "parent directory does not exist: "+parent)
		}
	}
	if existing, err := v.getVNode(ctx, wsID, norm); err == nil && existing.Kind == VNodeDir {
		return nil, merrors.Conflict(merrors.ErrCodePathExists, "path is a directory: "+norm)
	}

	hash, err := v.content.Put(ctx, content)
	if err != nil {
		return nil, err
	}

	existing, existsErr := v.getVNode(ctx, wsID, norm)
	version := 1
	changeType := ChangeCreated
	var beforeHash contentstore.Hash
	if existsErr == nil {
		version = existing.Version + 1
		changeType = ChangeModified
		beforeHash = existing.ContentHash
	}

	vnode := &VNode{
		ID:          uuidOrReuse(existing, existsErr),
		WorkspaceID: wsID,
		Path:        norm,
		Kind:        VNodeFile,
		ContentHash: hash,
		SizeBytes:   int64(len(content)),
		Version:     version,
		UpdatedAt:   now(),
	}
	if existsErr != nil {
		vnode.CreatedAt = vnode.UpdatedAt
	} else {
		vnode.CreatedAt = existing.CreatedAt
		vnode.ReadOnly = existing.ReadOnly
		vnode.UnitsCount = existing.UnitsCount
		vnode.LastIndexedAt = existing.LastIndexedAt
	}

	if err := v.upsertVNode(ctx, vnode); err != nil {
		return nil, err
	}
	if err := v.recordChange(ctx, wsID, vnode.ID, norm, changeType, beforeHash, hash); err != nil {
		return nil, err
	}
	return vnode, nil
}

func uuidOrReuse(existing *VNode, err error) string {
	if err == nil {
		return existing.ID
	}
	return uuid.NewString()
}

// ReadFile resolves the vnode at path and fetches its blob.
func (v *VFS) ReadFile(ctx context.Context, wsID, path string) ([]byte, error) {
	norm, err := NormalizePath(path)
	if err != nil {
		return nil, err
	}
	vnode, err := v.getVNode(ctx, wsID, norm)
	if err != nil {
		return nil, merrors.NotFound(merrors.ErrCodeVNodeNotFound, "file not found: "+norm)
	}
	if vnode.Kind != VNodeFile {
		return nil, merrors.Invalid(merrors.ErrCodeInvalidInput, "path is not a file: "+norm)
	}
	return v.content.Get(ctx, vnode.ContentHash)
}

// CreateDirectory creates a directory; missing ancestors are created iff
// recursive, otherwise it fails AlreadyExists-wise per spec.md §4.2 when the
// parent is missing (modeled as InvalidInput here since the distinction is
// "ancestor missing", not "path exists").
func (v *VFS) CreateDirectory(ctx context.Context, wsID, path string, recursive bool) error {
	norm, err := NormalizePath(path)
	if err != nil {
		return err
	}
	if _, err := v.getVNode(ctx, wsID, norm); err == nil {
		return merrors.Conflict(merrors.ErrCodePathExists, "directory already exists: "+norm)
	}

	ws, err := v.GetWorkspace(ctx, wsID)
	if err != nil {
		return err
	}
	if ws.ReadOnly {
		return merrors.ReadOnly(merrors.ErrCodeReadOnlyWorkspace, "workspace is read-only: "+wsID)
	}

	segments := strings.Split(strings.TrimPrefix(norm, "/"), "/")
	cur := ""
	for i, seg := range segments {
		cur = cur + "/" + seg
		if _, err := v.getVNode(ctx, wsID, cur); err == nil {
			continue
		}
		if !recursive && i < len(segments)-1 {
			return merrors.Invalid(merrors.ErrCodeInvalidPath, "missing ancestor directory: "+cur)
		}
		if err := v.createVNode(ctx, wsID, cur, VNodeDir, "", 0, false); err != nil {
			return err
		}
	}
	return nil
}

// Delete removes the vnode at path. Directories require recursive=true
// unless empty.
func (v *VFS) Delete(ctx context.Context, wsID, path string, recursive bool) error {
	norm, err := NormalizePath(path)
	if err != nil {
		return err
	}
	ws, err := v.GetWorkspace(ctx, wsID)
	if err != nil {
		return err
	}
	if ws.ReadOnly {
		return merrors.ReadOnly(merrors.ErrCodeReadOnlyWorkspace, "workspace is read-only: "+wsID)
	}

	vnode, err := v.getVNode(ctx, wsID, norm)
	if err != nil {
		return merrors.NotFound(merrors.ErrCodeVNodeNotFound, "path not found: "+norm)
	}

	if vnode.Kind == VNodeDir {
		children, err := v.ListDirectory(ctx, wsID, norm, true)
		if err != nil {
			return err
		}
		if len(children) > 0 && !recursive {
			return merrors.Invalid(merrors.ErrCodeInvalidInput, "directory not empty: "+norm)
		}
		for _, child := range children {
			if err := v.deleteVNode(ctx, wsID, child.Path); err != nil {
				return err
			}
			if err := v.recordChange(ctx, wsID, "", child.Path, ChangeDeleted, "", ""); err != nil {
				return err
			}
		}
	}

	if err := v.deleteVNode(ctx, wsID, norm); err != nil {
		return err
	}
	return v.recordChange(ctx, wsID, vnode.ID, norm, ChangeDeleted, vnode.ContentHash, "")
}

// ListDirectory lists vnodes under path, lexicographically by path.
func (v *VFS) ListDirectory(ctx context.Context, wsID, path string, recursive bool) ([]VNodeMeta, error) {
	norm, err := NormalizePath(path)
	if err != nil {
		return nil, err
	}
	prefix := norm
	if prefix != "/" {
		prefix += "/"
	}

	rows, err := v.pool.DB().QueryContext(ctx, `
		SELECT path, kind, version, created_at, updated_at FROM vnodes
		WHERE workspace_id = ? AND deleted = 0 AND path != ?
		ORDER BY path ASC
	`, wsID, norm)
	if err != nil {
		return nil, merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to list directory", err)
	}
	defer rows.Close()

	var out []VNodeMeta
	for rows.Next() {
		var p, kind, createdStr, updatedStr string
		var version int
		if err := rows.Scan(&p, &kind, &version, &createdStr, &updatedStr); err != nil {
			return nil, merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to scan vnode row", err)
		}
		if prefix != "/" && !strings.HasPrefix(p, prefix) {
			continue
		}
		if prefix == "/" && p == "/" {
			continue
		}
		rel := strings.TrimPrefix(p, prefix)
		if !recursive && strings.Contains(rel, "/") {
			continue
		}
		updated, _ := time.Parse(time.RFC3339Nano, updatedStr)
		out = append(out, VNodeMeta{Path: p, Kind: VNodeKind(kind), Version: version, UpdatedAt: updated})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Path < out[j].Path })
	return out, nil
}

// Metadata returns the VNodeMeta for path.
func (v *VFS) Metadata(ctx context.Context, wsID, path string) (VNodeMeta, error) {
	norm, err := NormalizePath(path)
	if err != nil {
		return VNodeMeta{}, err
	}
	vnode, err := v.getVNode(ctx, wsID, norm)
	if err != nil {
		return VNodeMeta{}, merrors.NotFound(merrors.ErrCodeVNodeNotFound, "path not found: "+norm)
	}
	return vnode.Meta(), nil
}

// Exists reports whether path resolves to a live vnode.
func (v *VFS) Exists(ctx context.Context, wsID, path string) (bool, error) {
	norm, err := NormalizePath(path)
	if err != nil {
		return false, err
	}
	_, err = v.getVNode(ctx, wsID, norm)
	if err != nil {
		if merrors.IsKind(err, merrors.KindNotFound) {
			return false, nil
		}
		return false, err
	}
	return true, nil
}

func (v *VFS) createVNode(ctx context.Context, wsID, path string, kind VNodeKind, hash contentstore.Hash, size int64, readOnly bool) error {
	ts := now()
	return v.upsertVNode(ctx, &VNode{
		ID: uuid.NewString(), WorkspaceID: wsID, Path: path, Kind: kind,
		ContentHash: hash, SizeBytes: size, Version: 1, ReadOnly: readOnly,
		CreatedAt: ts, UpdatedAt: ts,
	})
}

func (v *VFS) upsertVNode(ctx context.Context, vn *VNode) error {
	ro := 0
	if vn.ReadOnly {
		ro = 1
	}
	var lastIndexed sql.NullString
	if vn.LastIndexedAt != nil {
		lastIndexed = sql.NullString{String: vn.LastIndexedAt.Format(time.RFC3339Nano), Valid: true}
	}
	_, err := v.pool.DB().ExecContext(ctx, `
		INSERT INTO vnodes (id, workspace_id, path, kind, content_hash, target, size_bytes, read_only, version, deleted, units_count, last_indexed_at, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, 0, ?, ?, ?, ?)
		ON CONFLICT(workspace_id, path) DO UPDATE SET
			content_hash=excluded.content_hash, target=excluded.target, size_bytes=excluded.size_bytes,
			read_only=excluded.read_only, version=excluded.version, deleted=0,
			units_count=excluded.units_count, last_indexed_at=excluded.last_indexed_at,
			updated_at=excluded.updated_at
	`, vn.ID, vn.WorkspaceID, vn.Path, string(vn.Kind), nullableString(string(vn.ContentHash)), nullableString(vn.Target),
		vn.SizeBytes, ro, vn.Version, vn.UnitsCount, lastIndexed, vn.CreatedAt.Format(time.RFC3339Nano), vn.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to upsert vnode", err)
	}
	return nil
}

func (v *VFS) getVNode(ctx context.Context, wsID, path string) (*VNode, error) {
	row := v.pool.DB().QueryRowContext(ctx, `
		SELECT id, kind, content_hash, target, size_bytes, read_only, version, units_count, last_indexed_at, created_at, updated_at
		FROM vnodes WHERE workspace_id = ? AND path = ? AND deleted = 0
	`, wsID, path)

	var id, kind, createdStr, updatedStr string
	var hashStr, targetStr, lastIndexedStr sql.NullString
	var version, unitsCount, roInt int
	var sizeBytes int64
	if err := row.Scan(&id, &kind, &hashStr, &targetStr, &sizeBytes, &roInt, &version, &unitsCount, &lastIndexedStr, &createdStr, &updatedStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, merrors.NotFound(merrors.ErrCodeVNodeNotFound, "vnode not found: "+path)
		}
		return nil, merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to load vnode", err)
	}
	created, _ := time.Parse(time.RFC3339Nano, createdStr)
	updated, _ := time.Parse(time.RFC3339Nano, updatedStr)
	var lastIndexed *time.Time
	if lastIndexedStr.Valid {
		t, _ := time.Parse(time.RFC3339Nano, lastIndexedStr.String)
		lastIndexed = &t
	}
	return &VNode{
		ID: id, WorkspaceID: wsID, Path: path, Kind: VNodeKind(kind),
		ContentHash: contentstore.Hash(hashStr.String), Target: targetStr.String,
		SizeBytes: sizeBytes, ReadOnly: roInt != 0, Version: version,
		UnitsCount: unitsCount, LastIndexedAt: lastIndexed,
		CreatedAt: created, UpdatedAt: updated,
	}, nil
}

// UpdateIndexMetadata records the outcome of indexing one vnode's content
// (spec.md §4.6 step 5), called by the ingestion pipeline after a file's
// CodeUnits have been extracted, stored, and embedded.
func (v *VFS) UpdateIndexMetadata(ctx context.Context, wsID, path string, unitsCount int, indexedAt time.Time) error {
	_, err := v.pool.DB().ExecContext(ctx, `
		UPDATE vnodes SET units_count = ?, last_indexed_at = ? WHERE workspace_id = ? AND path = ? AND deleted = 0
	`, unitsCount, indexedAt.Format(time.RFC3339Nano), wsID, path)
	if err != nil {
		return merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to update vnode index metadata", err)
	}
	return nil
}

func (v *VFS) deleteVNode(ctx context.Context, wsID, path string) error {
	_, err := v.pool.DB().ExecContext(ctx, `UPDATE vnodes SET deleted = 1 WHERE workspace_id = ? AND path = ?`, wsID, path)
	if err != nil {
		return merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to delete vnode", err)
	}
	return nil
}

func (v *VFS) recordChange(ctx context.Context, wsID, vnodeID, path string, kind ChangeType, before, after contentstore.Hash) error {
	_, err := v.pool.DB().ExecContext(ctx, `
		INSERT INTO changes (id, workspace_id, vnode_id, path, change_type, timestamp, before_hash, after_hash)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?)
	`, uuid.NewString(), wsID, vnodeID, path, string(kind), now().Format(time.RFC3339Nano), nullableString(string(before)), nullableString(string(after)))
	if err != nil {
		return merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to record change", err)
	}
	return nil
}

// ChangesSince returns all changes in workspace wsID with timestamp >= since,
// ordered by timestamp. Used by ForkManager to replay fork-side edits.
func (v *VFS) ChangesSince(ctx context.Context, wsID string, since time.Time) ([]Change, error) {
	rows, err := v.pool.DB().QueryContext(ctx, `
		SELECT id, vnode_id, path, change_type, timestamp, before_hash, after_hash
		FROM changes WHERE workspace_id = ? AND timestamp >= ?
		ORDER BY timestamp ASC
	`, wsID, since.Format(time.RFC3339Nano))
	if err != nil {
		return nil, merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to query changes", err)
	}
	defer rows.Close()

	var out []Change
	for rows.Next() {
		var c Change
		var tsStr string
		var before, after sql.NullString
		if err := rows.Scan(&c.ID, &c.VNodeID, &c.Path, &c.Type, &tsStr, &before, &after); err != nil {
			return nil, merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to scan change row", err)
		}
		c.WorkspaceID = wsID
		c.Timestamp, _ = time.Parse(time.RFC3339Nano, tsStr)
		c.BeforeHash = contentstore.Hash(before.String)
		c.AfterHash = contentstore.Hash(after.String)
		out = append(out, c)
	}
	return out, nil
}

// VNodeByID loads a vnode by its id for packages (ForkManager) that already
// hold a vnode reference from the change log.
func (v *VFS) VNodeByID(ctx context.Context, wsID, id string) (*VNode, error) {
	row := v.pool.DB().QueryRowContext(ctx, `
		SELECT path, kind, content_hash, target, size_bytes, read_only, version, units_count, last_indexed_at, created_at, updated_at
		FROM vnodes WHERE workspace_id = ? AND id = ? AND deleted = 0
	`, wsID, id)
	var path, kind, createdStr, updatedStr string
	var hashStr, targetStr, lastIndexedStr sql.NullString
	var version, unitsCount, roInt int
	var sizeBytes int64
	if err := row.Scan(&path, &kind, &hashStr, &targetStr, &sizeBytes, &roInt, &version, &unitsCount, &lastIndexedStr, &createdStr, &updatedStr); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, merrors.NotFound(merrors.ErrCodeVNodeNotFound, "vnode not found: "+id)
		}
		return nil, merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to load vnode", err)
	}
	created, _ := time.Parse(time.RFC3339Nano, createdStr)
	updated, _ := time.Parse(time.RFC3339Nano, updatedStr)
	var lastIndexed *time.Time
	if lastIndexedStr.Valid {
		t, _ := time.Parse(time.RFC3339Nano, lastIndexedStr.String)
		lastIndexed = &t
	}
	return &VNode{
		ID: id, WorkspaceID: wsID, Path: path, Kind: VNodeKind(kind),
		ContentHash: contentstore.Hash(hashStr.String), Target: targetStr.String,
		SizeBytes: sizeBytes, ReadOnly: roInt != 0, Version: version,
		UnitsCount: unitsCount, LastIndexedAt: lastIndexed,
		CreatedAt: created, UpdatedAt: updated,
	}, nil
}

// AllVNodes returns every live vnode in a workspace (used by ForkManager to
// clone a workspace's vnode set).
func (v *VFS) AllVNodes(ctx context.Context, wsID string) ([]*VNode, error) {
	rows, err := v.pool.DB().QueryContext(ctx, `
		SELECT id, path, kind, content_hash, target, size_bytes, read_only, version, units_count, last_indexed_at, created_at, updated_at
		FROM vnodes WHERE workspace_id = ? AND deleted = 0
	`, wsID)
	if err != nil {
		return nil, merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to list vnodes", err)
	}
	defer rows.Close()

	var out []*VNode
	for rows.Next() {
		var id, path, kind, createdStr, updatedStr string
		var hashStr, targetStr, lastIndexedStr sql.NullString
		var version, unitsCount, roInt int
		var sizeBytes int64
		if err := rows.Scan(&id, &path, &kind, &hashStr, &targetStr, &sizeBytes, &roInt, &version, &unitsCount, &lastIndexedStr, &createdStr, &updatedStr); err != nil {
			return nil, merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to scan vnode", err)
		}
		created, _ := time.Parse(time.RFC3339Nano, createdStr)
		updated, _ := time.Parse(time.RFC3339Nano, updatedStr)
		var lastIndexed *time.Time
		if lastIndexedStr.Valid {
			t, _ := time.Parse(time.RFC3339Nano, lastIndexedStr.String)
			lastIndexed = &t
		}
		out = append(out, &VNode{
			ID: id, WorkspaceID: wsID, Path: path, Kind: VNodeKind(kind),
			ContentHash: contentstore.Hash(hashStr.String), Target: targetStr.String,
			SizeBytes: sizeBytes, ReadOnly: roInt != 0, Version: version,
			UnitsCount: unitsCount, LastIndexedAt: lastIndexed,
			CreatedAt: created, UpdatedAt: updated,
		})
	}
	return out, nil
}

// PersistWorkspace is the exported form used by ForkManager to write a newly
// allocated fork workspace.
func (v *VFS) PersistWorkspace(ctx context.Context, ws *Workspace) error {
	return v.persistWorkspace(ctx, ws)
}

// InsertVNode is the exported form used by ForkManager to clone a vnode into
// a new workspace without creating a Change log entry (a fork is not itself
// a "change").
func (v *VFS) InsertVNode(ctx context.Context, vn *VNode) error {
	return v.upsertVNode(ctx, vn)
}

// ContentStore exposes the underlying content store for components (fork
// manager, merge) that need direct blob access.
func (v *VFS) ContentStore() *contentstore.Store {
	return v.content
}
