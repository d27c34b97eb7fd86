package mcpserver

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/meridian-dev/meridian/internal/embedding"
	"github.com/meridian-dev/meridian/internal/fork"
	"github.com/meridian-dev/meridian/internal/ingest"
	"github.com/meridian-dev/meridian/internal/semantic"
	"github.com/meridian-dev/meridian/internal/vectorindex"
	"github.com/meridian-dev/meridian/internal/vfs"
	"github.com/meridian-dev/meridian/pkg/version"
)

// Server is the MCP server bridging an AI assistant to Meridian's core:
// workspace navigation, vector search, ingestion, and forking, grounded on
// the teacher's internal/mcp.Server shape (a thin adapter holding component
// references, registering tools once at construction).
type Server struct {
	mcp      *mcp.Server
	vfs      *vfs.VFS
	semantic *semantic.Store
	index    *vectorindex.Index
	embedder embedding.Embedder
	pipeline *ingest.Pipeline
	forkMgr  *fork.Manager
	logger   *slog.Logger
}

// New builds a Server over the engine's core components.
func New(v *vfs.VFS, store *semantic.Store, index *vectorindex.Index, embedder embedding.Embedder, pipeline *ingest.Pipeline, forkMgr *fork.Manager) *Server {
	s := &Server{
		vfs:      v,
		semantic: store,
		index:    index,
		embedder: embedder,
		pipeline: pipeline,
		forkMgr:  forkMgr,
		logger:   slog.Default(),
	}

	s.mcp = mcp.NewServer(
		&mcp.Implementation{Name: "meridian", Version: version.Version},
		nil,
	)
	s.registerTools()
	return s
}

// MCPServer returns the underlying MCP SDK server instance.
func (s *Server) MCPServer() *mcp.Server {
	return s.mcp
}

// registerTools registers seven tools: get_symbols, find_references,
// find_similar, search_text, ingest_workspace, fork_workspace, merge_fork.
func (s *Server) registerTools() {
	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "get_symbols",
		Description: "List the CodeUnits (functions, types, methods) defined in one file of a workspace.",
	}, s.handleGetSymbols)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "find_references",
		Description: "Find every CodeUnit that depends on (calls, extends, implements, uses, imports) the given unit.",
	}, s.handleFindReferences)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "find_similar",
		Description: "Vector search over the workspace's indexed CodeUnits by meaning rather than keyword.",
	}, s.handleFindSimilar)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "search_text",
		Description: "Keyword search over the workspace's indexed CodeUnits by name, signature, and doc comment.",
	}, s.handleSearchText)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "ingest_workspace",
		Description: "Walk host filesystem roots into a workspace, parsing, storing, and indexing every file.",
	}, s.handleIngestWorkspace)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "fork_workspace",
		Description: "Create an editable deep copy of a workspace for speculative changes.",
	}, s.handleForkWorkspace)

	mcp.AddTool(s.mcp, &mcp.Tool{
		Name:        "merge_fork",
		Description: "Merge a fork's changes back into its target workspace, resolving conflicts per the chosen strategy.",
	}, s.handleMergeFork)

	s.logger.Info("mcp tools registered", slog.Int("count", 7))
}

func (s *Server) handleGetSymbols(ctx context.Context, _ *mcp.CallToolRequest, input GetSymbolsInput) (*mcp.CallToolResult, GetSymbolsOutput, error) {
	if input.WorkspaceID == "" || input.FilePath == "" {
		return nil, GetSymbolsOutput{}, NewInvalidParamsError("workspace_id and file_path are required")
	}

	units, err := s.semantic.GetUnitsInFile(ctx, input.WorkspaceID, input.FilePath)
	if err != nil {
		return nil, GetSymbolsOutput{}, MapError(err)
	}

	out := GetSymbolsOutput{Symbols: make([]SymbolSummary, 0, len(units))}
	for _, u := range units {
		out.Symbols = append(out.Symbols, SymbolSummary{
			ID:            u.ID,
			QualifiedName: u.QualifiedName,
			Name:          u.Name,
			UnitType:      string(u.UnitType),
			Signature:     u.Signature,
			StartLine:     u.StartLine,
			EndLine:       u.EndLine,
			IsExported:    u.IsExported,
		})
	}
	return nil, out, nil
}

func (s *Server) handleFindReferences(ctx context.Context, _ *mcp.CallToolRequest, input FindReferencesInput) (*mcp.CallToolResult, FindReferencesOutput, error) {
	if input.UnitID == "" {
		return nil, FindReferencesOutput{}, NewInvalidParamsError("unit_id is required")
	}

	refs, err := s.semantic.FindReferences(ctx, input.UnitID)
	if err != nil {
		return nil, FindReferencesOutput{}, MapError(err)
	}
	return nil, FindReferencesOutput{ReferencingUnitIDs: refs}, nil
}

func (s *Server) handleFindSimilar(ctx context.Context, _ *mcp.CallToolRequest, input FindSimilarInput) (*mcp.CallToolResult, FindSimilarOutput, error) {
	if input.Query == "" {
		return nil, FindSimilarOutput{}, NewInvalidParamsError("query is required")
	}
	if s.embedder == nil {
		return nil, FindSimilarOutput{}, NewInvalidParamsError("no embedder configured")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	vector, err := s.embedder.Embed(ctx, input.Query, input.ModelID)
	if err != nil {
		return nil, FindSimilarOutput{}, MapError(err)
	}

	matches, err := s.index.Search(vector, limit)
	if err != nil {
		return nil, FindSimilarOutput{}, MapError(err)
	}

	out := FindSimilarOutput{Matches: make([]SimilarMatch, 0, len(matches))}
	for _, m := range matches {
		sm := SimilarMatch{UnitID: m.ExternalID, Score: float32(m.Similarity)}
		if unit, err := s.semantic.GetUnit(ctx, m.ExternalID); err == nil {
			sm.QualifiedName = unit.QualifiedName
			sm.FilePath = unit.FilePath
		}
		out.Matches = append(out.Matches, sm)
	}
	return nil, out, nil
}

func (s *Server) handleSearchText(ctx context.Context, _ *mcp.CallToolRequest, input SearchTextInput) (*mcp.CallToolResult, SearchTextOutput, error) {
	if input.WorkspaceID == "" || input.Query == "" {
		return nil, SearchTextOutput{}, NewInvalidParamsError("workspace_id and query are required")
	}

	limit := input.Limit
	if limit <= 0 {
		limit = 10
	}

	hits, err := s.semantic.SearchText(ctx, input.WorkspaceID, input.Query, limit)
	if err != nil {
		return nil, SearchTextOutput{}, MapError(err)
	}

	out := SearchTextOutput{Matches: make([]TextMatch, 0, len(hits))}
	for _, h := range hits {
		tm := TextMatch{UnitID: h.UnitID, Score: h.Score, MatchedTerms: h.MatchedTerms}
		if unit, err := s.semantic.GetUnit(ctx, h.UnitID); err == nil {
			tm.QualifiedName = unit.QualifiedName
			tm.FilePath = unit.FilePath
		}
		out.Matches = append(out.Matches, tm)
	}
	return nil, out, nil
}

func (s *Server) handleIngestWorkspace(ctx context.Context, _ *mcp.CallToolRequest, input IngestWorkspaceInput) (*mcp.CallToolResult, IngestWorkspaceOutput, error) {
	if input.WorkspaceID == "" || len(input.Roots) == 0 {
		return nil, IngestWorkspaceOutput{}, NewInvalidParamsError("workspace_id and at least one root are required")
	}

	stats, err := s.pipeline.Run(ctx, input.WorkspaceID, ingest.Config{Roots: input.Roots})
	out := IngestWorkspaceOutput{
		FilesDiscovered: stats.FilesDiscovered,
		FilesProcessed:  stats.FilesProcessed,
		FilesFailed:     stats.FilesFailed,
	}
	for _, fr := range stats.Errors {
		out.Errors = append(out.Errors, fmt.Sprintf("%s: %v", fr.Path, fr.Error))
	}
	if err != nil {
		return nil, out, MapError(err)
	}
	return nil, out, nil
}

func (s *Server) handleForkWorkspace(ctx context.Context, _ *mcp.CallToolRequest, input ForkWorkspaceInput) (*mcp.CallToolResult, ForkWorkspaceOutput, error) {
	if input.SourceWorkspaceID == "" || input.ForkName == "" {
		return nil, ForkWorkspaceOutput{}, NewInvalidParamsError("source_workspace_id and fork_name are required")
	}

	ws, err := s.forkMgr.CreateFork(ctx, input.SourceWorkspaceID, input.ForkName)
	if err != nil {
		return nil, ForkWorkspaceOutput{}, MapError(err)
	}
	return nil, ForkWorkspaceOutput{ForkWorkspaceID: ws.ID, Namespace: ws.Namespace}, nil
}

func (s *Server) handleMergeFork(ctx context.Context, _ *mcp.CallToolRequest, input MergeForkInput) (*mcp.CallToolResult, MergeForkOutput, error) {
	if input.ForkWorkspaceID == "" || input.TargetWorkspaceID == "" {
		return nil, MergeForkOutput{}, NewInvalidParamsError("fork_workspace_id and target_workspace_id are required")
	}

	strategy := fork.Strategy(input.Strategy)
	if strategy == "" {
		strategy = fork.StrategyManual
	}

	report, err := s.forkMgr.Merge(ctx, input.ForkWorkspaceID, input.TargetWorkspaceID, strategy)
	if err != nil {
		return nil, MergeForkOutput{}, MapError(err)
	}

	out := MergeForkOutput{
		ChangesApplied: report.ChangesApplied,
		ConflictsCount: report.ConflictsCount,
		AutoResolved:   report.AutoResolved,
		Errors:         report.Errors,
	}
	for _, c := range report.Conflicts {
		out.ConflictPaths = append(out.ConflictPaths, c.Path)
	}
	return nil, out, nil
}

// Serve starts the server over the given transport. Only "stdio" is
// supported — the thinnest possible binding to an assistant, per
// SPEC_FULL.md's explicit non-goal of a JSON-RPC/REST wire-format
// specification.
func (s *Server) Serve(ctx context.Context) error {
	s.logger.Info("starting mcp server", slog.String("transport", "stdio"))
	err := s.mcp.Run(ctx, &mcp.StdioTransport{})
	if err != nil && err != context.Canceled {
		s.logger.Error("mcp server stopped with error", slog.String("error", err.Error()))
		return err
	}
	s.logger.Info("mcp server stopped gracefully")
	return nil
}
