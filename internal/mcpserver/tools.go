package mcpserver

// GetSymbolsInput is the input schema for the get_symbols tool.
type GetSymbolsInput struct {
	WorkspaceID string `json:"workspace_id" jsonschema:"the workspace to read from"`
	FilePath    string `json:"file_path" jsonschema:"workspace-relative file path, e.g. /internal/foo/bar.go"`
}

// SymbolSummary is one CodeUnit surfaced to an assistant: enough to locate
// and identify the symbol without shipping its full body.
type SymbolSummary struct {
	ID            string `json:"id"`
	QualifiedName string `json:"qualified_name"`
	Name          string `json:"name"`
	UnitType      string `json:"unit_type"`
	Signature     string `json:"signature,omitempty"`
	StartLine     int    `json:"start_line"`
	EndLine       int    `json:"end_line"`
	IsExported    bool   `json:"is_exported"`
}

// GetSymbolsOutput is the output schema for the get_symbols tool.
type GetSymbolsOutput struct {
	Symbols []SymbolSummary `json:"symbols"`
}

// FindReferencesInput is the input schema for the find_references tool.
type FindReferencesInput struct {
	UnitID string `json:"unit_id" jsonschema:"the CodeUnit id to find references to"`
}

// FindReferencesOutput is the output schema for the find_references tool.
type FindReferencesOutput struct {
	ReferencingUnitIDs []string `json:"referencing_unit_ids"`
}

// FindSimilarInput is the input schema for the find_similar tool.
type FindSimilarInput struct {
	Query   string `json:"query" jsonschema:"natural-language or code snippet to search for"`
	ModelID string `json:"model_id,omitempty" jsonschema:"embedding model id; defaults to the server's configured model"`
	Limit   int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// SimilarMatch is one vector search hit resolved back to its CodeUnit.
type SimilarMatch struct {
	UnitID        string  `json:"unit_id"`
	QualifiedName string  `json:"qualified_name,omitempty"`
	FilePath      string  `json:"file_path,omitempty"`
	Score         float32 `json:"score"`
}

// FindSimilarOutput is the output schema for the find_similar tool.
type FindSimilarOutput struct {
	Matches []SimilarMatch `json:"matches"`
}

// SearchTextInput is the input schema for the search_text tool.
type SearchTextInput struct {
	WorkspaceID string `json:"workspace_id" jsonschema:"the workspace to search"`
	Query       string `json:"query" jsonschema:"keyword query to match against unit names, signatures, and doc comments"`
	Limit       int    `json:"limit,omitempty" jsonschema:"maximum number of results, default 10"`
}

// TextMatch is one keyword-search hit resolved back to its CodeUnit.
type TextMatch struct {
	UnitID        string   `json:"unit_id"`
	QualifiedName string   `json:"qualified_name,omitempty"`
	FilePath      string   `json:"file_path,omitempty"`
	Score         float64  `json:"score"`
	MatchedTerms  []string `json:"matched_terms,omitempty"`
}

// SearchTextOutput is the output schema for the search_text tool.
type SearchTextOutput struct {
	Matches []TextMatch `json:"matches"`
}

// IngestWorkspaceInput is the input schema for the ingest_workspace tool.
type IngestWorkspaceInput struct {
	WorkspaceID string   `json:"workspace_id" jsonschema:"the workspace to ingest into"`
	Roots       []string `json:"roots" jsonschema:"host filesystem directories to walk and mirror into the workspace"`
}

// IngestWorkspaceOutput is the output schema for the ingest_workspace tool.
type IngestWorkspaceOutput struct {
	FilesDiscovered int      `json:"files_discovered"`
	FilesProcessed  int      `json:"files_processed"`
	FilesFailed     int      `json:"files_failed"`
	Errors          []string `json:"errors,omitempty"`
}

// ForkWorkspaceInput is the input schema for the fork_workspace tool.
type ForkWorkspaceInput struct {
	SourceWorkspaceID string `json:"source_workspace_id" jsonschema:"the workspace to fork"`
	ForkName          string `json:"fork_name" jsonschema:"a human-readable name for the fork"`
}

// ForkWorkspaceOutput is the output schema for the fork_workspace tool.
type ForkWorkspaceOutput struct {
	ForkWorkspaceID string `json:"fork_workspace_id"`
	Namespace       string `json:"namespace"`
}

// MergeForkInput is the input schema for the merge_fork tool.
type MergeForkInput struct {
	ForkWorkspaceID   string `json:"fork_workspace_id" jsonschema:"the fork to merge"`
	TargetWorkspaceID string `json:"target_workspace_id" jsonschema:"the workspace to merge into"`
	Strategy          string `json:"strategy,omitempty" jsonschema:"manual, auto, prefer_fork, or prefer_target; default manual"`
}

// MergeForkOutput is the output schema for the merge_fork tool.
type MergeForkOutput struct {
	ChangesApplied int      `json:"changes_applied"`
	ConflictsCount int      `json:"conflicts_count"`
	AutoResolved   int      `json:"auto_resolved"`
	ConflictPaths  []string `json:"conflict_paths,omitempty"`
	Errors         []string `json:"errors,omitempty"`
}
