package semantic

import (
	"context"
	"strings"
	"sync"
	"unicode"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/custom"
	"github.com/blevesearch/bleve/v2/analysis/token/lowercase"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/registry"

	"github.com/meridian-dev/meridian/internal/merrors"
)

// fullTextAnalyzerName and friends are namespaced with a meridian_ prefix so
// they can't collide with another package's bleve registry.Register* calls
// if one ever ends up linked into the same binary.
const (
	fullTextTokenizerName = "meridian_code_tokenizer"
	fullTextStopName      = "meridian_code_stop"
	fullTextAnalyzerName  = "meridian_code_analyzer"
)

func init() {
	_ = registry.RegisterTokenizer(fullTextTokenizerName, newCodeTokenizer)
	_ = registry.RegisterTokenFilter(fullTextStopName, newCodeStopFilter)
}

// defaultStopWords filters common keywords/identifiers that would otherwise
// dominate every code search, mirroring the teacher's DefaultCodeStopWords.
var defaultStopWords = []string{
	"var", "let", "const", "func", "function", "def", "class",
	"return", "if", "else", "for", "while",
	"data", "result", "value", "item", "key", "err", "ctx", "tmp",
}

// FullTextResult is one keyword-search hit against the full-text index.
type FullTextResult struct {
	UnitID       string
	Score        float64
	MatchedTerms []string
}

// fullTextDoc is the document shape indexed per CodeUnit.
type fullTextDoc struct {
	Content     string `json:"content"`
	WorkspaceID string `json:"workspace_id"`
}

// FullTextIndex is an in-memory Bleve index over CodeUnit name/signature/
// docstring text, giving SemanticStore a keyword-search path alongside
// VectorIndex's embedding search (spec.md names only the latter; this is an
// addition grounded on the teacher's internal/store/bm25.go BleveBM25Index).
// It lives entirely in memory and is never saved: it starts empty and holds
// only the units written through ReplaceFileUnits after it was enabled.
// Units already persisted in SQLite are not loaded into it.
type FullTextIndex struct {
	mu    sync.RWMutex
	index bleve.Index
}

// NewFullTextIndex builds an empty in-memory full-text index.
func NewFullTextIndex() (*FullTextIndex, error) {
	im, err := fullTextMapping()
	if err != nil {
		return nil, merrors.Fatal(merrors.ErrCodeInternal, "failed to build full-text index mapping", err)
	}
	idx, err := bleve.NewMemOnly(im)
	if err != nil {
		return nil, merrors.Fatal(merrors.ErrCodeInternal, "failed to open full-text index", err)
	}
	return &FullTextIndex{index: idx}, nil
}

func fullTextMapping() (*mapping.IndexMappingImpl, error) {
	im := bleve.NewIndexMapping()
	if err := im.AddCustomAnalyzer(fullTextAnalyzerName, map[string]interface{}{
		"type":      custom.Name,
		"tokenizer": fullTextTokenizerName,
		"token_filters": []string{
			lowercase.Name,
			fullTextStopName,
		},
	}); err != nil {
		return nil, err
	}
	im.DefaultAnalyzer = fullTextAnalyzerName
	return im, nil
}

// unitContent joins the fields worth full-text matching: identifier, call
// signature, and doc comment. Body is deliberately excluded — it would bury
// the signal under implementation noise VectorIndex already covers better.
func unitContent(u *CodeUnit) string {
	var b strings.Builder
	b.WriteString(u.Name)
	b.WriteByte(' ')
	b.WriteString(u.QualifiedName)
	b.WriteByte(' ')
	b.WriteString(u.Signature)
	b.WriteByte(' ')
	b.WriteString(u.Docstring)
	return b.String()
}

// IndexUnits (re)indexes each unit's content, replacing any prior entry with
// the same ID.
func (fx *FullTextIndex) IndexUnits(ctx context.Context, units []*CodeUnit) error {
	if len(units) == 0 {
		return nil
	}
	fx.mu.Lock()
	defer fx.mu.Unlock()

	batch := fx.index.NewBatch()
	for _, u := range units {
		doc := fullTextDoc{Content: unitContent(u), WorkspaceID: u.WorkspaceID}
		if err := batch.Index(u.ID, doc); err != nil {
			return merrors.Fatal(merrors.ErrCodeInternal, "failed to index unit "+u.ID, err)
		}
	}
	return fx.index.Batch(batch)
}

// DeleteUnits removes units by id, e.g. when a file is re-ingested.
func (fx *FullTextIndex) DeleteUnits(ctx context.Context, ids []string) error {
	if len(ids) == 0 {
		return nil
	}
	fx.mu.Lock()
	defer fx.mu.Unlock()

	batch := fx.index.NewBatch()
	for _, id := range ids {
		batch.Delete(id)
	}
	return fx.index.Batch(batch)
}

// Search runs a BM25-scored keyword query scoped to one workspace.
func (fx *FullTextIndex) Search(ctx context.Context, workspaceID, queryStr string, limit int) ([]FullTextResult, error) {
	if strings.TrimSpace(queryStr) == "" {
		return []FullTextResult{}, nil
	}

	fx.mu.RLock()
	defer fx.mu.RUnlock()

	contentQuery := bleve.NewMatchQuery(queryStr)
	contentQuery.SetField("content")
	wsQuery := bleve.NewTermQuery(workspaceID)
	wsQuery.SetField("workspace_id")

	req := bleve.NewSearchRequest(bleve.NewConjunctionQuery(contentQuery, wsQuery))
	req.Size = limit
	req.IncludeLocations = true

	res, err := fx.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, merrors.Fatal(merrors.ErrCodeInternal, "full-text search failed", err)
	}

	out := make([]FullTextResult, 0, len(res.Hits))
	for _, hit := range res.Hits {
		terms := map[string]struct{}{}
		for field, locs := range hit.Locations {
			if field != "content" {
				continue
			}
			for term := range locs {
				terms[term] = struct{}{}
			}
		}
		matched := make([]string, 0, len(terms))
		for t := range terms {
			matched = append(matched, t)
		}
		out = append(out, FullTextResult{UnitID: hit.ID, Score: hit.Score, MatchedTerms: matched})
	}
	return out, nil
}

// Close releases the underlying Bleve index.
func (fx *FullTextIndex) Close() error {
	fx.mu.Lock()
	defer fx.mu.Unlock()
	return fx.index.Close()
}

// codeTokenizer splits on code-aware boundaries: camelCase, PascalCase, and
// snake_case, discarding tokens under two characters.
type codeTokenizer struct{}

func newCodeTokenizer(map[string]interface{}, *registry.Cache) (analysis.Tokenizer, error) {
	return &codeTokenizer{}, nil
}

func (t *codeTokenizer) Tokenize(input []byte) analysis.TokenStream {
	text := string(input)
	words := splitWords(text)

	out := make(analysis.TokenStream, 0, len(words))
	pos := 1
	offset := 0
	for _, w := range words {
		for _, sub := range splitIdentifier(w) {
			if len(sub) < 2 {
				continue
			}
			start := strings.Index(strings.ToLower(text[offset:]), strings.ToLower(sub))
			if start == -1 {
				start = offset
			} else {
				start += offset
			}
			end := start + len(sub)
			out = append(out, &analysis.Token{
				Term:     []byte(sub),
				Start:    start,
				End:      end,
				Position: pos,
				Type:     analysis.AlphaNumeric,
			})
			pos++
			if end <= len(text) {
				offset = end
			}
		}
	}
	return out
}

func splitWords(text string) []string {
	var words []string
	var cur strings.Builder
	for _, r := range text {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '_' {
			cur.WriteRune(r)
			continue
		}
		if cur.Len() > 0 {
			words = append(words, cur.String())
			cur.Reset()
		}
	}
	if cur.Len() > 0 {
		words = append(words, cur.String())
	}
	return words
}

// splitIdentifier breaks snake_case into parts, then each part on
// camelCase/PascalCase boundaries (so "parseHTTPRequest" -> parse, HTTP,
// Request).
func splitIdentifier(s string) []string {
	if strings.Contains(s, "_") {
		var out []string
		for _, part := range strings.Split(s, "_") {
			if part != "" {
				out = append(out, splitCamelCase(part)...)
			}
		}
		return out
	}
	return splitCamelCase(s)
}

func splitCamelCase(s string) []string {
	if s == "" {
		return nil
	}
	var out []string
	var cur strings.Builder
	runes := []rune(s)
	for i, r := range runes {
		if i > 0 && unicode.IsUpper(r) {
			prevLower := unicode.IsLower(runes[i-1])
			nextLower := i+1 < len(runes) && unicode.IsLower(runes[i+1])
			if prevLower || nextLower {
				if cur.Len() > 0 {
					out = append(out, cur.String())
					cur.Reset()
				}
			}
		}
		cur.WriteRune(r)
	}
	if cur.Len() > 0 {
		out = append(out, cur.String())
	}
	return out
}

type codeStopFilter struct {
	stopWords map[string]struct{}
}

func newCodeStopFilter(map[string]interface{}, *registry.Cache) (analysis.TokenFilter, error) {
	stop := make(map[string]struct{}, len(defaultStopWords))
	for _, w := range defaultStopWords {
		stop[w] = struct{}{}
	}
	return &codeStopFilter{stopWords: stop}, nil
}

func (f *codeStopFilter) Filter(input analysis.TokenStream) analysis.TokenStream {
	out := make(analysis.TokenStream, 0, len(input))
	for _, tok := range input {
		if _, isStop := f.stopWords[strings.ToLower(string(tok.Term))]; !isStop {
			out = append(out, tok)
		}
	}
	return out
}
