package codeparser

import (
	"strings"

	"github.com/meridian-dev/meridian/internal/semantic"
)

// Extractor walks a parsed Tree and produces semantic.CodeUnits, grounded on
// the teacher's chunk.SymbolExtractor generalized from a flat Symbol list to
// first-class CodeUnits carrying visibility, modifiers, and complexity.
type Extractor struct {
	registry *Registry
}

func NewExtractor() *Extractor {
	return &Extractor{registry: DefaultRegistry()}
}

// Extract returns every CodeUnit found in tree, in document order.
func (e *Extractor) Extract(tree *Tree, workspaceID, filePath string) []*semantic.CodeUnit {
	if tree == nil || tree.Root == nil {
		return nil
	}
	cfg, ok := e.registry.Config(tree.Language)
	if !ok {
		return nil
	}

	var units []*semantic.CodeUnit
	tree.Root.Walk(func(n *Node) bool {
		if u := e.extractUnit(n, tree, cfg, workspaceID, filePath); u != nil {
			units = append(units, u)
		}
		return true
	})
	return units
}

func (e *Extractor) extractUnit(n *Node, tree *Tree, cfg *LanguageConfig, workspaceID, filePath string) *semantic.CodeUnit {
	unitType, found := classify(n.Type, cfg)
	if !found {
		return nil
	}

	name := extractName(n, tree.Source, tree.Language)
	if name == "" {
		return nil
	}

	complexity := computeComplexity(n, cfg)
	visibility := inferVisibility(name, tree.Language, n, tree.Source)
	doc := extractDocComment(n, tree.Source, cfg)
	signature := extractSignature(n, tree.Source)

	return &semantic.CodeUnit{
		WorkspaceID:   workspaceID,
		UnitType:      unitType,
		Name:          name,
		QualifiedName: name,
		FilePath:      filePath,
		Language:      tree.Language,
		StartByte:     int(n.StartByte),
		EndByte:       int(n.EndByte),
		StartLine:     int(n.StartPoint.Row) + 1,
		EndLine:       int(n.EndPoint.Row) + 1,
		StartCol:      int(n.StartPoint.Column),
		EndCol:        int(n.EndPoint.Column),
		Signature:     signature,
		Body:          n.Content(tree.Source),
		Docstring:     doc,
		Visibility:    visibility,
		IsExported:    visibility == semantic.VisibilityPublic,
		Complexity:    complexity,
		Flags: semantic.Flags{
			HasDocumentation: doc != "",
			IsAsync:          strings.Contains(n.Content(tree.Source), "async "),
		},
		Version: 1,
	}
}

func classify(nodeType string, cfg *LanguageConfig) (semantic.UnitType, bool) {
	checks := []struct {
		types []string
		unit  semantic.UnitType
	}{
		{cfg.Units.Function, semantic.UnitFunction},
		{cfg.Units.Method, semantic.UnitMethod},
		{cfg.Units.Class, semantic.UnitClass},
		{cfg.Units.Interface, semantic.UnitInterface},
		{cfg.Units.Struct, semantic.UnitStruct},
		{cfg.Units.Enum, semantic.UnitEnum},
		{cfg.Units.Trait, semantic.UnitTrait},
		{cfg.Units.TypeDef, semantic.UnitModule},
	}
	for _, c := range checks {
		for _, t := range c.types {
			if t == nodeType {
				return c.unit, true
			}
		}
	}
	return "", false
}

// extractName finds the identifier child that names n. Go, TypeScript and
// JavaScript get dedicated extraction (grounded on the teacher's
// per-language functions); every other language, Python included, falls back
// to the first identifier-shaped child, matching the teacher's own generic
// fallback.
func extractName(n *Node, source []byte, language string) string {
	switch language {
	case "go":
		return extractGoName(n, source)
	case "typescript", "tsx", "javascript", "jsx":
		return extractJSFamilyName(n, source)
	default:
		return firstIdentifier(n, source)
	}
}

func extractGoName(n *Node, source []byte) string {
	switch n.Type {
	case "function_declaration":
		if c := n.FindChildByType("identifier"); c != nil {
			return c.Content(source)
		}
	case "method_declaration":
		if c := n.FindChildByType("field_identifier"); c != nil {
			return c.Content(source)
		}
	case "type_declaration":
		for _, spec := range n.FindChildrenByType("type_spec") {
			if c := spec.FindChildByType("type_identifier"); c != nil {
				return c.Content(source)
			}
		}
	}
	return ""
}

func extractJSFamilyName(n *Node, source []byte) string {
	if n.Type == "lexical_declaration" || n.Type == "variable_declaration" {
		for _, decl := range n.FindChildrenByType("variable_declarator") {
			if c := decl.FindChildByType("identifier"); c != nil {
				return c.Content(source)
			}
		}
		return ""
	}
	if c := n.FindChildByType("identifier"); c != nil {
		return c.Content(source)
	}
	if c := n.FindChildByType("type_identifier"); c != nil {
		return c.Content(source)
	}
	return ""
}

func firstIdentifier(n *Node, source []byte) string {
	for _, c := range n.Children {
		if strings.Contains(c.Type, "identifier") {
			return c.Content(source)
		}
	}
	return ""
}

// computeComplexity is McCabe cyclomatic complexity: one plus the number of
// decision-point nodes in the unit's subtree.
func computeComplexity(n *Node, cfg *LanguageConfig) semantic.Complexity {
	decisions := 0
	lines := int(n.EndPoint.Row) - int(n.StartPoint.Row) + 1
	nesting := 0
	var walk func(node *Node, depth int)
	walk = func(node *Node, depth int) {
		for _, t := range cfg.DecisionNodes {
			if node.Type == t {
				decisions++
				if depth > nesting {
					nesting = depth
				}
				break
			}
		}
		for _, c := range node.Children {
			walk(c, depth+1)
		}
	}
	walk(n, 0)
	return semantic.Complexity{
		Cyclomatic: decisions + 1,
		Cognitive:  decisions,
		Nesting:    nesting,
		Lines:      lines,
	}
}

// inferVisibility uses Go's exported-identifier convention where applicable
// (capitalized name) and otherwise looks for an explicit "public"/"private"
// modifier keyword, defaulting to public.
func inferVisibility(name, language string, n *Node, source []byte) semantic.Visibility {
	if language == "go" {
		if name != "" && strings.ToUpper(name[:1]) == name[:1] {
			return semantic.VisibilityPublic
		}
		return semantic.VisibilityPrivate
	}
	content := n.Content(source)
	switch {
	case strings.Contains(content, "private "):
		return semantic.VisibilityPrivate
	case strings.Contains(content, "protected "):
		return semantic.VisibilityProtected
	default:
		return semantic.VisibilityPublic
	}
}

func extractSignature(n *Node, source []byte) string {
	content := n.Content(source)
	if content == "" {
		return ""
	}
	firstLine := strings.TrimSpace(strings.SplitN(content, "\n", 2)[0])
	if idx := strings.Index(firstLine, "{"); idx != -1 {
		return strings.TrimSpace(firstLine[:idx])
	}
	return firstLine
}

// extractDocComment looks at the raw source line immediately preceding n for
// a comment matching one of the language's doc-comment prefixes.
func extractDocComment(n *Node, source []byte, cfg *LanguageConfig) string {
	if n.StartPoint.Row == 0 {
		return ""
	}
	lineStart := int(n.StartByte)
	for lineStart > 0 && source[lineStart-1] != '\n' {
		lineStart--
	}
	if lineStart <= 1 {
		return ""
	}
	prevEnd := lineStart - 1
	prevStart := prevEnd - 1
	for prevStart > 0 && source[prevStart-1] != '\n' {
		prevStart--
	}
	prevLine := strings.TrimSpace(string(source[prevStart:prevEnd]))
	for _, prefix := range cfg.DocPrefixes {
		if strings.HasPrefix(prevLine, prefix) {
			return strings.TrimSpace(strings.TrimPrefix(prevLine, prefix))
		}
	}
	return ""
}
