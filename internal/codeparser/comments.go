package codeparser

import "strings"

// CommentKind classifies a comment by its role, mirroring the taxonomy in
// the original comment analyzer: Doc comments survive removal, everything
// else is stripped.
type CommentKind string

const (
	CommentDoc        CommentKind = "doc"
	CommentInline     CommentKind = "inline"
	CommentBlock      CommentKind = "block"
	CommentHeader     CommentKind = "header"
	CommentAnnotation CommentKind = "annotation"
)

// Comment is one comment node found in a Tree.
type Comment struct {
	Kind      CommentKind
	Text      string // delimiter-stripped
	StartByte uint32
	EndByte   uint32
	StartLine uint32 // 1-indexed
	EndLine   uint32
}

var annotationMarkers = []string{"TODO", "FIXME", "XXX", "HACK", "NOTE"}

// ExtractComments walks tree and returns every comment node, classified.
func ExtractComments(tree *Tree) []Comment {
	if tree == nil || tree.Root == nil {
		return nil
	}
	var out []Comment
	tree.Root.Walk(func(n *Node) bool {
		if !isCommentNode(n) {
			return true
		}
		raw := n.Content(tree.Source)
		out = append(out, Comment{
			Kind:      classifyComment(n, raw, tree.Language),
			Text:      stripDelimiters(raw, tree.Language),
			StartByte: n.StartByte,
			EndByte:   n.EndByte,
			StartLine: n.StartPoint.Row + 1,
			EndLine:   n.EndPoint.Row + 1,
		})
		return false // comment nodes have no named children worth descending into
	})
	return out
}

func isCommentNode(n *Node) bool {
	switch n.Type {
	case "comment", "line_comment", "block_comment", "doc_comment":
		return true
	}
	return strings.Contains(n.Type, "comment")
}

func classifyComment(n *Node, text, language string) CommentKind {
	for _, marker := range annotationMarkers {
		if strings.Contains(text, marker) {
			return CommentAnnotation
		}
	}
	if isDocComment(text, language) {
		return CommentDoc
	}
	if n.StartPoint.Row < 10 && (strings.Contains(text, "Copyright") || strings.Contains(text, "License") || strings.Contains(text, "SPDX") || len(text) > 100) {
		return CommentHeader
	}
	if n.EndPoint.Row > n.StartPoint.Row {
		return CommentBlock
	}
	return CommentInline
}

// isDocComment applies each language's doc-comment delimiter heuristic,
// grounded on the original analyzer's per-language match.
func isDocComment(text, language string) bool {
	trimmed := strings.TrimSpace(text)
	switch language {
	case "rust":
		return strings.HasPrefix(trimmed, "///") || strings.HasPrefix(trimmed, "//!") ||
			strings.HasPrefix(trimmed, "/**") || strings.HasPrefix(trimmed, "/*!")
	case "typescript", "tsx", "javascript", "jsx", "java", "kotlin":
		return strings.HasPrefix(trimmed, "/**")
	case "cpp":
		return strings.HasPrefix(trimmed, "///") || strings.HasPrefix(trimmed, "/**")
	default:
		return false
	}
}

func stripDelimiters(text, language string) string {
	trimmed := strings.TrimSpace(text)
	switch {
	case strings.HasPrefix(trimmed, "///"):
		return strings.TrimSpace(strings.TrimPrefix(trimmed, "///"))
	case strings.HasPrefix(trimmed, "//!"):
		return strings.TrimSpace(strings.TrimPrefix(trimmed, "//!"))
	case strings.HasPrefix(trimmed, "//"):
		return strings.TrimSpace(strings.TrimPrefix(trimmed, "//"))
	case strings.HasPrefix(trimmed, "/*") && strings.HasSuffix(trimmed, "*/"):
		inner := strings.TrimSuffix(strings.TrimPrefix(trimmed, "/*"), "*/")
		return strings.TrimSpace(inner)
	case language == "python" && strings.HasPrefix(trimmed, "#"):
		return strings.TrimSpace(strings.TrimPrefix(trimmed, "#"))
	default:
		return trimmed
	}
}

// isUsefulComment reports whether a comment should survive RemoveComments:
// doc comments, module-level pragmas, and the language-specific exceptions
// the original comment_removal module carves out (encoding lines, cbindgen/
// rustbindgen pragmas, eslint/prettier/ts directives).
func isUsefulComment(n *Node, source []byte, language string) bool {
	text := n.Content(source)
	if isDocComment(text, language) {
		return true
	}
	switch language {
	case "rust":
		return strings.Contains(text, "cbindgen:") || strings.Contains(text, "rustbindgen")
	case "python":
		return n.StartPoint.Row <= 1 && (strings.Contains(text, "coding:") || strings.Contains(text, "coding="))
	case "cpp":
		return strings.Contains(text, "rustbindgen")
	case "typescript", "tsx", "javascript", "jsx":
		return strings.Contains(text, "@ts-") || strings.Contains(text, "@type") ||
			strings.Contains(text, "eslint-") || strings.Contains(text, "prettier-")
	default:
		return false
	}
}

// RemoveComments strips every non-useful comment from source, replacing each
// stripped span with an equal number of newlines so line numbers in the
// remaining source are unaffected.
func RemoveComments(tree *Tree) []byte {
	if tree == nil || tree.Root == nil {
		return nil
	}

	type span struct {
		start, end uint32
		lines      uint32
	}
	var spans []span
	tree.Root.Walk(func(n *Node) bool {
		if !isCommentNode(n) {
			return true
		}
		if !isUsefulComment(n, tree.Source, tree.Language) {
			spans = append(spans, span{start: n.StartByte, end: n.EndByte, lines: n.EndPoint.Row - n.StartPoint.Row})
		}
		return false
	})

	if len(spans) == 0 {
		out := make([]byte, len(tree.Source))
		copy(out, tree.Source)
		return out
	}

	out := make([]byte, 0, len(tree.Source))
	var cursor uint32
	for _, sp := range spans {
		out = append(out, tree.Source[cursor:sp.start]...)
		for i := uint32(0); i < sp.lines; i++ {
			out = append(out, '\n')
		}
		cursor = sp.end
	}
	out = append(out, tree.Source[cursor:]...)
	return out
}
