// Package semantic implements the SemanticStore (C3): a typed graph of
// CodeUnits and Dependencies backed by the transactional document database,
// queryable by id, qualified name, file, complexity, and references. Grounded
// on the teacher's internal/store.Chunk/Symbol shape, generalized from a flat
// chunk-with-embedded-symbols model to first-class CodeUnit/Dependency rows
// with the indexes spec.md §4.3 names explicitly.
package semantic

import "time"

// UnitType enumerates the kinds of parsed construct a CodeUnit can represent.
type UnitType string

const (
	UnitFunction      UnitType = "function"
	UnitMethod        UnitType = "method"
	UnitStruct        UnitType = "struct"
	UnitEnum          UnitType = "enum"
	UnitTrait         UnitType = "trait"
	UnitClass         UnitType = "class"
	UnitInterface     UnitType = "interface"
	UnitAsyncFunction UnitType = "async_function"
	UnitModule        UnitType = "module"
)

// Visibility mirrors the source language's access modifier, normalized to a
// small common vocabulary.
type Visibility string

const (
	VisibilityPublic    Visibility = "public"
	VisibilityPrivate   Visibility = "private"
	VisibilityProtected Visibility = "protected"
	VisibilityInternal  Visibility = "internal"
)

// DependencyType enumerates the directed relationships between two CodeUnits.
type DependencyType string

const (
	DepCalls      DependencyType = "calls"
	DepExtends    DependencyType = "extends"
	DepImplements DependencyType = "implements"
	DepUses       DependencyType = "uses"
	DepImports    DependencyType = "imports"
)

// Complexity bundles the shallow static-analysis metrics computed per unit.
type Complexity struct {
	Cyclomatic int
	Cognitive  int
	Nesting    int
	Lines      int
	Parameters int
	Returns    int
}

// Flags are boolean unit attributes that don't warrant their own column set.
type Flags struct {
	IsAsync           bool
	IsUnsafe          bool
	HasDocumentation  bool
	HasTests          bool
}

// CodeUnit is a single parsed construct: a function, method, struct, class,
// and so on. qualified_name is unique within (workspace, language).
type CodeUnit struct {
	ID              string
	WorkspaceID     string
	UnitType        UnitType
	Name            string
	QualifiedName   string
	FilePath        string
	Language        string
	StartByte       int
	EndByte         int
	StartLine       int
	EndLine         int
	StartCol        int
	EndCol          int
	Signature       string
	Body            string
	Docstring       string
	ReturnType      string
	Parameters      []string
	Visibility      Visibility
	Modifiers       []string
	IsExported      bool
	Complexity      Complexity
	Flags           Flags
	Embedding       []float32
	EmbeddingModel  string
	Version         int
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// HasBody reports whether the unit carries a non-empty byte span, per
// spec.md §3's "(start_byte < end_byte) iff body exists" invariant.
func (c *CodeUnit) HasBody() bool {
	return c.Body != ""
}

// Dependency is a directed edge between two CodeUnits.
type Dependency struct {
	ID             string
	WorkspaceID    string
	SourceID       string
	TargetID       string
	Type           DependencyType
	IsDirect       bool
	IsRuntime      bool
	Confidence     float64
	Context        string
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
