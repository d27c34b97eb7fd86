package semantic

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"math"
	"sort"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-dev/meridian/internal/merrors"
	"github.com/meridian-dev/meridian/internal/storage"
)

// Store is the SemanticStore: CodeUnits and Dependencies over a transactional
// document database.
type Store struct {
	pool     *storage.Pool
	fulltext *FullTextIndex
}

// New wraps pool as a SemanticStore.
func New(pool *storage.Pool) *Store {
	return &Store{pool: pool}
}

// EnableFullText turns on the in-memory keyword-search path (SearchText),
// built lazily so a caller that never wants it pays nothing for Bleve.
func (s *Store) EnableFullText() error {
	fx, err := NewFullTextIndex()
	if err != nil {
		return err
	}
	s.fulltext = fx
	return nil
}

// SearchText runs a keyword query over every unit's name/signature/docstring
// via the full-text index, if EnableFullText was called. Returns an empty
// slice, not an error, when full text is disabled — callers that always want
// vector search as the primary path shouldn't have to special-case this.
func (s *Store) SearchText(ctx context.Context, workspaceID, query string, limit int) ([]FullTextResult, error) {
	if s.fulltext == nil {
		return []FullTextResult{}, nil
	}
	return s.fulltext.Search(ctx, workspaceID, query, limit)
}

// Close releases the full-text index, if EnableFullText was called. The
// underlying storage.Pool is owned by the caller, not by Store.
func (s *Store) Close() error {
	if s.fulltext == nil {
		return nil
	}
	return s.fulltext.Close()
}

func boolToInt(b bool) int {
	if b {
		return 1
	}
	return 0
}

func marshalStrings(ss []string) string {
	if len(ss) == 0 {
		return "[]"
	}
	b, _ := json.Marshal(ss)
	return string(b)
}

func unmarshalStrings(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	_ = json.Unmarshal([]byte(s), &out)
	return out
}

func marshalEmbedding(v []float32) []byte {
	if len(v) == 0 {
		return nil
	}
	b, _ := json.Marshal(v)
	return b
}

func unmarshalEmbedding(b []byte) []float32 {
	if len(b) == 0 {
		return nil
	}
	var out []float32
	_ = json.Unmarshal(b, &out)
	return out
}

// StoreUnit upserts unit by id, maintaining the secondary indexes spec.md
// §4.3 names: (workspace, file_path), qualified_name, unit_type, visibility,
// is_exported, complexity.cyclomatic.
func (s *Store) StoreUnit(ctx context.Context, u *CodeUnit) error {
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	ts := time.Now().UTC()
	if u.CreatedAt.IsZero() {
		u.CreatedAt = ts
	}
	u.UpdatedAt = ts

	_, err := s.pool.DB().ExecContext(ctx, `
		INSERT INTO code_units (
			id, workspace_id, unit_type, name, qualified_name, file_path, language,
			start_byte, end_byte, start_line, end_line, start_col, end_col,
			signature, body, doc_comment, return_type, parameters, visibility, modifiers,
			is_exported, complexity_cyclomatic, complexity_cognitive, complexity_nesting,
			complexity_lines, complexity_parameters, complexity_returns,
			is_async, is_unsafe, has_documentation, has_tests,
			embedding, embedding_model, version, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?, ?,?,?,?,?,?, ?,?,?,?,?,?,?, ?,?,?,?, ?,?,?, ?,?,?,?, ?,?,?,?,?)
		ON CONFLICT(id) DO UPDATE SET
			unit_type=excluded.unit_type, name=excluded.name, qualified_name=excluded.qualified_name,
			file_path=excluded.file_path, language=excluded.language,
			start_byte=excluded.start_byte, end_byte=excluded.end_byte,
			start_line=excluded.start_line, end_line=excluded.end_line,
			start_col=excluded.start_col, end_col=excluded.end_col,
			signature=excluded.signature, body=excluded.body, doc_comment=excluded.doc_comment,
			return_type=excluded.return_type, parameters=excluded.parameters,
			visibility=excluded.visibility, modifiers=excluded.modifiers,
			is_exported=excluded.is_exported,
			complexity_cyclomatic=excluded.complexity_cyclomatic, complexity_cognitive=excluded.complexity_cognitive,
			complexity_nesting=excluded.complexity_nesting, complexity_lines=excluded.complexity_lines,
			complexity_parameters=excluded.complexity_parameters, complexity_returns=excluded.complexity_returns,
			is_async=excluded.is_async, is_unsafe=excluded.is_unsafe,
			has_documentation=excluded.has_documentation, has_tests=excluded.has_tests,
			embedding=excluded.embedding, embedding_model=excluded.embedding_model,
			version=excluded.version, updated_at=excluded.updated_at
	`,
		u.ID, u.WorkspaceID, string(u.UnitType), u.Name, u.QualifiedName, u.FilePath, u.Language,
		u.StartByte, u.EndByte, u.StartLine, u.EndLine, u.StartCol, u.EndCol,
		nullableString(u.Signature), nullableString(u.Body), nullableString(u.Docstring),
		nullableString(u.ReturnType), marshalStrings(u.Parameters), string(u.Visibility), marshalStrings(u.Modifiers),
		boolToInt(u.IsExported), u.Complexity.Cyclomatic, u.Complexity.Cognitive, u.Complexity.Nesting,
		u.Complexity.Lines, u.Complexity.Parameters, u.Complexity.Returns,
		boolToInt(u.Flags.IsAsync), boolToInt(u.Flags.IsUnsafe), boolToInt(u.Flags.HasDocumentation), boolToInt(u.Flags.HasTests),
		marshalEmbedding(u.Embedding), nullableString(u.EmbeddingModel), u.Version, u.CreatedAt.Format(time.RFC3339Nano), u.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to store code unit", err)
	}
	return nil
}

func nullableString(s string) interface{} {
	if s == "" {
		return nil
	}
	return s
}

const unitSelectColumns = `
	id, workspace_id, unit_type, name, qualified_name, file_path, language,
	start_byte, end_byte, start_line, end_line, start_col, end_col,
	signature, body, doc_comment, return_type, parameters, visibility, modifiers,
	is_exported, complexity_cyclomatic, complexity_cognitive, complexity_nesting,
	complexity_lines, complexity_parameters, complexity_returns,
	is_async, is_unsafe, has_documentation, has_tests,
	embedding, embedding_model, version, created_at, updated_at`

func scanUnit(row interface {
	Scan(dest ...interface{}) error
}) (*CodeUnit, error) {
	var u CodeUnit
	var signature, body, doc, returnType, embeddingModel sql.NullString
	var params, modifiers string
	var embedding []byte
	var createdStr, updatedStr string

	err := row.Scan(
		&u.ID, &u.WorkspaceID, &u.UnitType, &u.Name, &u.QualifiedName, &u.FilePath, &u.Language,
		&u.StartByte, &u.EndByte, &u.StartLine, &u.EndLine, &u.StartCol, &u.EndCol,
		&signature, &body, &doc, &returnType, &params, &u.Visibility, &modifiers,
		&u.IsExported, &u.Complexity.Cyclomatic, &u.Complexity.Cognitive, &u.Complexity.Nesting,
		&u.Complexity.Lines, &u.Complexity.Parameters, &u.Complexity.Returns,
		&u.Flags.IsAsync, &u.Flags.IsUnsafe, &u.Flags.HasDocumentation, &u.Flags.HasTests,
		&embedding, &embeddingModel, &u.Version, &createdStr, &updatedStr,
	)
	if err != nil {
		return nil, err
	}
	u.Signature = signature.String
	u.Body = body.String
	u.Docstring = doc.String
	u.ReturnType = returnType.String
	u.EmbeddingModel = embeddingModel.String
	u.Parameters = unmarshalStrings(params)
	u.Modifiers = unmarshalStrings(modifiers)
	u.Embedding = unmarshalEmbedding(embedding)
	u.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	u.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
	return &u, nil
}

// GetUnit returns the unit with the given id, or NotFound.
func (s *Store) GetUnit(ctx context.Context, id string) (*CodeUnit, error) {
	row := s.pool.DB().QueryRowContext(ctx, "SELECT "+unitSelectColumns+" FROM code_units WHERE id = ?", id)
	u, err := scanUnit(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, merrors.NotFound(merrors.ErrCodeUnitNotFound, "code unit not found: "+id)
		}
		return nil, merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to load code unit", err)
	}
	return u, nil
}

// FindByQualifiedName resolves the unique unit for (workspace, qualified_name).
// When multiple units share a qualified_name across languages, (language,
// file_path, start_line) is the lexicographic tiebreak, per spec.md §4.3.
func (s *Store) FindByQualifiedName(ctx context.Context, workspaceID, qualifiedName string) (*CodeUnit, error) {
	rows, err := s.pool.DB().QueryContext(ctx, `
		SELECT `+unitSelectColumns+` FROM code_units
		WHERE workspace_id = ? AND qualified_name = ?
		ORDER BY language ASC, file_path ASC, start_line ASC
	`, workspaceID, qualifiedName)
	if err != nil {
		return nil, merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to query qualified name", err)
	}
	defer rows.Close()

	if !rows.Next() {
		return nil, merrors.NotFound(merrors.ErrCodeUnitNotFound, "no unit with qualified name: "+qualifiedName)
	}
	return scanUnit(rows)
}

// GetUnitsInFile returns all units attached to (workspace, path), ordered by
// start_line.
func (s *Store) GetUnitsInFile(ctx context.Context, workspaceID, path string) ([]*CodeUnit, error) {
	rows, err := s.pool.DB().QueryContext(ctx, `
		SELECT `+unitSelectColumns+` FROM code_units
		WHERE workspace_id = ? AND file_path = ?
		ORDER BY start_line ASC
	`, workspaceID, path)
	if err != nil {
		return nil, merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to query units in file", err)
	}
	defer rows.Close()

	var out []*CodeUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to scan unit row", err)
		}
		out = append(out, u)
	}
	return out, nil
}

// FindComplexUnits returns units with cyclomatic complexity >= threshold,
// sorted descending by cyclomatic, then cognitive, then lines.
func (s *Store) FindComplexUnits(ctx context.Context, workspaceID string, threshold int) ([]*CodeUnit, error) {
	rows, err := s.pool.DB().QueryContext(ctx, `
		SELECT `+unitSelectColumns+` FROM code_units
		WHERE workspace_id = ? AND complexity_cyclomatic >= ?
		ORDER BY complexity_cyclomatic DESC, complexity_cognitive DESC, complexity_lines DESC
	`, workspaceID, threshold)
	if err != nil {
		return nil, merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to query complex units", err)
	}
	defer rows.Close()

	var out []*CodeUnit
	for rows.Next() {
		u, err := scanUnit(rows)
		if err != nil {
			return nil, merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to scan unit row", err)
		}
		out = append(out, u)
	}
	return out, nil
}

// StoreDependency upserts dep by (source_id, target_id, type). Both
// endpoints must already resolve to existing CodeUnits.
func (s *Store) StoreDependency(ctx context.Context, dep *Dependency) error {
	if _, err := s.GetUnit(ctx, dep.SourceID); err != nil {
		return merrors.Invalid(merrors.ErrCodeInvalidInput, "dependency source does not resolve to a code unit")
	}
	if _, err := s.GetUnit(ctx, dep.TargetID); err != nil {
		return merrors.Invalid(merrors.ErrCodeInvalidInput, "dependency target does not resolve to a code unit")
	}

	if dep.ID == "" {
		dep.ID = uuid.NewString()
	}
	ts := time.Now().UTC()
	if dep.CreatedAt.IsZero() {
		dep.CreatedAt = ts
	}
	dep.UpdatedAt = ts
	if dep.Confidence == 0 {
		dep.Confidence = 1.0
	}

	_, err := s.pool.DB().ExecContext(ctx, `
		INSERT INTO dependencies (id, workspace_id, source_id, target_id, dependency_type, is_direct, is_runtime, confidence, context, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(source_id, target_id, dependency_type) DO UPDATE SET
			is_direct=excluded.is_direct, is_runtime=excluded.is_runtime,
			confidence=excluded.confidence, context=excluded.context, updated_at=excluded.updated_at
	`, dep.ID, dep.WorkspaceID, dep.SourceID, dep.TargetID, string(dep.Type),
		boolToInt(dep.IsDirect), boolToInt(dep.IsRuntime), dep.Confidence, nullableString(dep.Context),
		dep.CreatedAt.Format(time.RFC3339Nano), dep.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to store dependency", err)
	}
	return nil
}

const depSelectColumns = `id, workspace_id, source_id, target_id, dependency_type, is_direct, is_runtime, confidence, context, created_at, updated_at`

func scanDependency(row interface {
	Scan(dest ...interface{}) error
}) (*Dependency, error) {
	var d Dependency
	var ctxStr sql.NullString
	var createdStr, updatedStr string
	err := row.Scan(&d.ID, &d.WorkspaceID, &d.SourceID, &d.TargetID, &d.Type, &d.IsDirect, &d.IsRuntime, &d.Confidence, &ctxStr, &createdStr, &updatedStr)
	if err != nil {
		return nil, err
	}
	d.Context = ctxStr.String
	d.CreatedAt, _ = time.Parse(time.RFC3339Nano, createdStr)
	d.UpdatedAt, _ = time.Parse(time.RFC3339Nano, updatedStr)
	return &d, nil
}

// GetDependencies returns outbound edges from id.
func (s *Store) GetDependencies(ctx context.Context, id string) ([]*Dependency, error) {
	return s.queryDeps(ctx, "source_id", id)
}

// GetDependents returns inbound edges to id.
func (s *Store) GetDependents(ctx context.Context, id string) ([]*Dependency, error) {
	return s.queryDeps(ctx, "target_id", id)
}

func (s *Store) queryDeps(ctx context.Context, column, id string) ([]*Dependency, error) {
	query := "SELECT " + depSelectColumns + " FROM dependencies WHERE " + column + " = ?"
	rows, err := s.pool.DB().QueryContext(ctx, query, id)
	if err != nil {
		return nil, merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to query dependencies", err)
	}
	defer rows.Close()

	var out []*Dependency
	for rows.Next() {
		d, err := scanDependency(rows)
		if err != nil {
			return nil, merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to scan dependency row", err)
		}
		out = append(out, d)
	}
	return out, nil
}

// FindReferences returns the deduplicated source_id of every dependency whose
// target_id = id.
func (s *Store) FindReferences(ctx context.Context, id string) ([]string, error) {
	deps, err := s.GetDependents(ctx, id)
	if err != nil {
		return nil, err
	}
	seen := make(map[string]struct{}, len(deps))
	var out []string
	for _, d := range deps {
		if _, ok := seen[d.SourceID]; ok {
			continue
		}
		seen[d.SourceID] = struct{}{}
		out = append(out, d.SourceID)
	}
	sort.Strings(out)
	return out, nil
}

// ReplaceFileUnits transactionally replaces all code units attached to
// (workspace, path) and their outbound dependencies with newUnits and
// newDeps. Inbound dependencies to surviving ids are preserved; dependencies
// to vanished ids are dropped. Any sub-operation failure rolls back the
// entire call.
func (s *Store) ReplaceFileUnits(ctx context.Context, workspaceID, path string, newUnits []*CodeUnit, newDeps []*Dependency) error {
	var staleIDs []string
	surviving := make(map[string]struct{}, len(newUnits))
	for _, u := range newUnits {
		if u.ID != "" {
			surviving[u.ID] = struct{}{}
		}
	}
	err := s.pool.WithTx(ctx, func(tx *sql.Tx) error {
		rows, err := tx.QueryContext(ctx, `SELECT id FROM code_units WHERE workspace_id = ? AND file_path = ?`, workspaceID, path)
		if err != nil {
			return merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to enumerate existing units", err)
		}
		for rows.Next() {
			var id string
			if err := rows.Scan(&id); err != nil {
				rows.Close()
				return merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to scan existing unit id", err)
			}
			staleIDs = append(staleIDs, id)
		}
		rows.Close()

		for _, id := range staleIDs {
			if _, err := tx.ExecContext(ctx, `DELETE FROM dependencies WHERE source_id = ?`, id); err != nil {
				return merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to drop outbound dependencies", err)
			}
			// Edges pointing at ids that reappear in newUnits are kept. Any
			// other id is vanishing, so an edge still pointing at it (from any
			// file) would dangle; drop it.
			if _, ok := surviving[id]; ok {
				continue
			}
			if _, err := tx.ExecContext(ctx, `DELETE FROM dependencies WHERE target_id = ?`, id); err != nil {
				return merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to drop dependencies to vanished unit", err)
			}
		}
		if _, err := tx.ExecContext(ctx, `DELETE FROM code_units WHERE workspace_id = ? AND file_path = ?`, workspaceID, path); err != nil {
			return merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to delete stale units", err)
		}

		for _, u := range newUnits {
			if u.ID == "" {
				u.ID = uuid.NewString()
			}
			u.WorkspaceID = workspaceID
			u.FilePath = path
			ts := time.Now().UTC()
			if u.CreatedAt.IsZero() {
				u.CreatedAt = ts
			}
			u.UpdatedAt = ts
			if err := insertUnitTx(ctx, tx, u); err != nil {
				return err
			}
		}
		for _, d := range newDeps {
			if d.ID == "" {
				d.ID = uuid.NewString()
			}
			d.WorkspaceID = workspaceID
			ts := time.Now().UTC()
			if d.CreatedAt.IsZero() {
				d.CreatedAt = ts
			}
			d.UpdatedAt = ts
			if d.Confidence == 0 {
				d.Confidence = 1.0
			}
			if err := insertDepTx(ctx, tx, d); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		return err
	}

	if s.fulltext != nil {
		if err := s.fulltext.DeleteUnits(ctx, staleIDs); err != nil {
			return err
		}
		if err := s.fulltext.IndexUnits(ctx, newUnits); err != nil {
			return err
		}
	}
	return nil
}

func insertUnitTx(ctx context.Context, tx *sql.Tx, u *CodeUnit) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO code_units (
			id, workspace_id, unit_type, name, qualified_name, file_path, language,
			start_byte, end_byte, start_line, end_line, start_col, end_col,
			signature, body, doc_comment, return_type, parameters, visibility, modifiers,
			is_exported, complexity_cyclomatic, complexity_cognitive, complexity_nesting,
			complexity_lines, complexity_parameters, complexity_returns,
			is_async, is_unsafe, has_documentation, has_tests,
			embedding, embedding_model, version, created_at, updated_at
		) VALUES (?,?,?,?,?,?,?, ?,?,?,?,?,?, ?,?,?,?,?,?,?, ?,?,?,?, ?,?,?, ?,?,?,?, ?,?,?,?,?)
	`,
		u.ID, u.WorkspaceID, string(u.UnitType), u.Name, u.QualifiedName, u.FilePath, u.Language,
		u.StartByte, u.EndByte, u.StartLine, u.EndLine, u.StartCol, u.EndCol,
		nullableString(u.Signature), nullableString(u.Body), nullableString(u.Docstring),
		nullableString(u.ReturnType), marshalStrings(u.Parameters), string(u.Visibility), marshalStrings(u.Modifiers),
		boolToInt(u.IsExported), u.Complexity.Cyclomatic, u.Complexity.Cognitive, u.Complexity.Nesting,
		u.Complexity.Lines, u.Complexity.Parameters, u.Complexity.Returns,
		boolToInt(u.Flags.IsAsync), boolToInt(u.Flags.IsUnsafe), boolToInt(u.Flags.HasDocumentation), boolToInt(u.Flags.HasTests),
		marshalEmbedding(u.Embedding), nullableString(u.EmbeddingModel), u.Version, u.CreatedAt.Format(time.RFC3339Nano), u.UpdatedAt.Format(time.RFC3339Nano),
	)
	if err != nil {
		return merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to insert code unit", err)
	}
	return nil
}

func insertDepTx(ctx context.Context, tx *sql.Tx, d *Dependency) error {
	_, err := tx.ExecContext(ctx, `
		INSERT INTO dependencies (id, workspace_id, source_id, target_id, dependency_type, is_direct, is_runtime, confidence, context, created_at, updated_at)
		VALUES (?,?,?,?,?,?,?,?,?,?,?)
		ON CONFLICT(source_id, target_id, dependency_type) DO UPDATE SET
			is_direct=excluded.is_direct, is_runtime=excluded.is_runtime,
			confidence=excluded.confidence, context=excluded.context, updated_at=excluded.updated_at
	`, d.ID, d.WorkspaceID, d.SourceID, d.TargetID, string(d.Type),
		boolToInt(d.IsDirect), boolToInt(d.IsRuntime), d.Confidence, nullableString(d.Context),
		d.CreatedAt.Format(time.RFC3339Nano), d.UpdatedAt.Format(time.RFC3339Nano))
	if err != nil {
		return merrors.Transient(merrors.ErrCodeStorageTimeout, "failed to insert dependency", err)
	}
	return nil
}

// CosineSimilarity is a small helper shared with the embedding and
// vector-index packages for computing similarity between two raw vectors
// without routing through the ANN index.
func CosineSimilarity(a, b []float32) float64 {
	if len(a) != len(b) || len(a) == 0 {
		return 0
	}
	var dot, normA, normB float64
	for i := range a {
		dot += float64(a[i]) * float64(b[i])
		normA += float64(a[i]) * float64(a[i])
		normB += float64(b[i]) * float64(b[i])
	}
	if normA == 0 || normB == 0 {
		return 0
	}
	return dot / (math.Sqrt(normA) * math.Sqrt(normB))
}
