package codeparser

import (
	"context"
	"fmt"

	sitter "github.com/smacker/go-tree-sitter"

	"github.com/meridian-dev/meridian/internal/merrors"
)

// Parser wraps tree-sitter, converting its concrete node tree into the
// package's language-agnostic Node so unit extraction and comment analysis
// can share one walk implementation across languages.
type Parser struct {
	parser   *sitter.Parser
	registry *Registry
}

// NewParser builds a Parser over the default (package-wide) language registry.
func NewParser() *Parser {
	return &Parser{parser: sitter.NewParser(), registry: DefaultRegistry()}
}

// Close releases the underlying tree-sitter parser.
func (p *Parser) Close() {
	if p.parser != nil {
		p.parser.Close()
	}
}

// ResolveLanguage infers a language from path, or returns hint verbatim if
// non-empty and known to the registry.
func (p *Parser) ResolveLanguage(path, hint string) (string, error) {
	if hint != "" {
		if _, ok := p.registry.Config(hint); ok {
			return hint, nil
		}
		return "", merrors.Invalid(merrors.ErrCodeInvalidInput, "unsupported language hint: "+hint)
	}
	lang, ok := p.registry.LanguageForPath(path)
	if !ok {
		return "", merrors.Invalid(merrors.ErrCodeInvalidInput, "cannot infer language for path: "+path)
	}
	return lang, nil
}

// Parse parses source as language, returning the converted AST.
func (p *Parser) Parse(ctx context.Context, source []byte, language string) (*Tree, error) {
	tsLang, ok := p.registry.TreeSitterLanguage(language)
	if !ok {
		return nil, merrors.Invalid(merrors.ErrCodeInvalidInput, "unsupported language: "+language)
	}
	p.parser.SetLanguage(tsLang)

	tsTree, err := p.parser.ParseCtx(ctx, nil, source)
	if err != nil || tsTree == nil {
		return nil, merrors.Invalid(merrors.ErrCodeInvalidInput, fmt.Sprintf("failed to parse source as %s: %v", language, err))
	}

	return &Tree{Root: convertNode(tsTree.RootNode()), Source: source, Language: language}, nil
}

func convertNode(n *sitter.Node) *Node {
	if n == nil {
		return nil
	}
	out := &Node{
		Type:       n.Type(),
		StartByte:  n.StartByte(),
		EndByte:    n.EndByte(),
		StartPoint: Point{Row: n.StartPoint().Row, Column: n.StartPoint().Column},
		EndPoint:   Point{Row: n.EndPoint().Row, Column: n.EndPoint().Column},
		Children:   make([]*Node, 0, int(n.ChildCount())),
	}
	for i := 0; i < int(n.ChildCount()); i++ {
		if child := n.Child(i); child != nil {
			out.Children = append(out.Children, convertNode(child))
		}
	}
	return out
}
