package codeparser

import (
	"path/filepath"
	"strings"
	"sync"

	sitter "github.com/smacker/go-tree-sitter"
	"github.com/smacker/go-tree-sitter/cpp"
	"github.com/smacker/go-tree-sitter/golang"
	"github.com/smacker/go-tree-sitter/java"
	"github.com/smacker/go-tree-sitter/javascript"
	"github.com/smacker/go-tree-sitter/kotlin"
	"github.com/smacker/go-tree-sitter/python"
	"github.com/smacker/go-tree-sitter/rust"
	"github.com/smacker/go-tree-sitter/typescript/tsx"
	"github.com/smacker/go-tree-sitter/typescript/typescript"
)

// Registry maps languages to their tree-sitter bindings and node-type
// vocabularies.
type Registry struct {
	mu          sync.RWMutex
	configs     map[string]*LanguageConfig
	extToLang   map[string]string
	tsLanguages map[string]*sitter.Language
}

func NewRegistry() *Registry {
	r := &Registry{
		configs:     make(map[string]*LanguageConfig),
		extToLang:   make(map[string]string),
		tsLanguages: make(map[string]*sitter.Language),
	}
	r.registerGo()
	r.registerTypeScript()
	r.registerJavaScript()
	r.registerPython()
	r.registerRust()
	r.registerJava()
	r.registerKotlin()
	r.registerCpp()
	return r
}

var defaultRegistry = NewRegistry()

// DefaultRegistry returns the package-wide registry, built once at init.
func DefaultRegistry() *Registry { return defaultRegistry }

func (r *Registry) register(cfg *LanguageConfig, tsLang *sitter.Language) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.configs[cfg.Name] = cfg
	r.tsLanguages[cfg.Name] = tsLang
	for _, ext := range cfg.Extensions {
		r.extToLang[ext] = cfg.Name
	}
}

// LanguageForPath infers the language from a file extension.
func (r *Registry) LanguageForPath(path string) (string, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	ext := strings.ToLower(filepath.Ext(path))
	name, ok := r.extToLang[ext]
	return name, ok
}

func (r *Registry) Config(name string) (*LanguageConfig, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	c, ok := r.configs[name]
	return c, ok
}

func (r *Registry) TreeSitterLanguage(name string) (*sitter.Language, bool) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.tsLanguages[name]
	return l, ok
}

func (r *Registry) registerGo() {
	r.register(&LanguageConfig{
		Name:          "go",
		Extensions:    []string{".go"},
		Units:         UnitTypes{Function: []string{"function_declaration"}, Method: []string{"method_declaration"}, TypeDef: []string{"type_declaration"}},
		DecisionNodes: []string{"if_statement", "for_statement", "case_clause", "select_statement", "binary_expression"},
		DocPrefixes:   []string{"//"},
	}, golang.GetLanguage())
}

func (r *Registry) registerTypeScript() {
	shared := UnitTypes{
		Function:  []string{"function_declaration"},
		Method:    []string{"method_definition"},
		Class:     []string{"class_declaration"},
		Interface: []string{"interface_declaration"},
		TypeDef:   []string{"type_alias_declaration"},
	}
	decisions := []string{"if_statement", "for_statement", "for_in_statement", "while_statement", "case_clause", "catch_clause", "ternary_expression", "binary_expression"}
	r.register(&LanguageConfig{Name: "typescript", Extensions: []string{".ts"}, Units: shared, DecisionNodes: decisions, DocPrefixes: []string{"//", "/**"}}, typescript.GetLanguage())
	r.register(&LanguageConfig{Name: "tsx", Extensions: []string{".tsx"}, Units: shared, DecisionNodes: decisions, DocPrefixes: []string{"//", "/**"}}, tsx.GetLanguage())
}

func (r *Registry) registerJavaScript() {
	shared := UnitTypes{
		Function: []string{"function_declaration", "function"},
		Method:   []string{"method_definition"},
		Class:    []string{"class_declaration"},
	}
	decisions := []string{"if_statement", "for_statement", "for_in_statement", "while_statement", "case_clause", "catch_clause", "ternary_expression", "binary_expression"}
	r.register(&LanguageConfig{Name: "javascript", Extensions: []string{".js", ".mjs"}, Units: shared, DecisionNodes: decisions, DocPrefixes: []string{"//", "/**"}}, javascript.GetLanguage())
	r.register(&LanguageConfig{Name: "jsx", Extensions: []string{".jsx"}, Units: shared, DecisionNodes: decisions, DocPrefixes: []string{"//", "/**"}}, javascript.GetLanguage())
}

func (r *Registry) registerPython() {
	r.register(&LanguageConfig{
		Name:          "python",
		Extensions:    []string{".py"},
		Units:         UnitTypes{Function: []string{"function_definition"}, Class: []string{"class_definition"}},
		DecisionNodes: []string{"if_statement", "for_statement", "while_statement", "except_clause", "boolean_operator", "conditional_expression"},
		DocPrefixes:   []string{`"""`, "'''", "#"},
	}, python.GetLanguage())
}

func (r *Registry) registerRust() {
	r.register(&LanguageConfig{
		Name:       "rust",
		Extensions: []string{".rs"},
		Units: UnitTypes{
			Function: []string{"function_item"},
			Struct:   []string{"struct_item"},
			Enum:     []string{"enum_item"},
			Trait:    []string{"trait_item"},
			TypeDef:  []string{"type_item"},
		},
		DecisionNodes: []string{"if_expression", "for_expression", "while_expression", "match_arm", "binary_expression"},
		DocPrefixes:   []string{"///", "//!", "/**"},
	}, rust.GetLanguage())
}

func (r *Registry) registerJava() {
	r.register(&LanguageConfig{
		Name:       "java",
		Extensions: []string{".java"},
		Units: UnitTypes{
			Method:    []string{"method_declaration", "constructor_declaration"},
			Class:     []string{"class_declaration"},
			Interface: []string{"interface_declaration"},
			Enum:      []string{"enum_declaration"},
		},
		DecisionNodes: []string{"if_statement", "for_statement", "while_statement", "catch_clause", "switch_label", "ternary_expression", "binary_expression"},
		DocPrefixes:   []string{"/**", "//"},
	}, java.GetLanguage())
}

func (r *Registry) registerKotlin() {
	r.register(&LanguageConfig{
		Name:       "kotlin",
		Extensions: []string{".kt", ".kts"},
		Units: UnitTypes{
			Function: []string{"function_declaration"},
			Class:    []string{"class_declaration"},
			Interface: []string{"class_declaration"},
		},
		DecisionNodes: []string{"if_expression", "for_statement", "while_statement", "catch_block", "when_entry", "elvis_expression"},
		DocPrefixes:   []string{"/**", "//"},
	}, kotlin.GetLanguage())
}

func (r *Registry) registerCpp() {
	r.register(&LanguageConfig{
		Name:       "cpp",
		Extensions: []string{".cpp", ".cc", ".cxx", ".hpp", ".h", ".hh"},
		Units: UnitTypes{
			Function: []string{"function_definition"},
			Class:    []string{"class_specifier"},
			Struct:   []string{"struct_specifier"},
			Enum:     []string{"enum_specifier"},
		},
		DecisionNodes: []string{"if_statement", "for_statement", "while_statement", "case_statement", "catch_clause", "conditional_expression", "binary_expression"},
		DocPrefixes:   []string{"///", "/**", "//"},
	}, cpp.GetLanguage())
}
