package semantic

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func unitFor(ws, id, name, qualified, sig, doc string) *CodeUnit {
	return &CodeUnit{
		ID:            id,
		WorkspaceID:   ws,
		UnitType:      UnitFunction,
		Name:          name,
		QualifiedName: qualified,
		Signature:     sig,
		Docstring:     doc,
	}
}

func TestFullTextIndexSearchMatchesByIdentifierParts(t *testing.T) {
	fx, err := NewFullTextIndex()
	require.NoError(t, err)
	t.Cleanup(func() { _ = fx.Close() })

	ctx := context.Background()
	u := unitFor("ws1", "u1", "ParseHTTPRequest", "pkg.ParseHTTPRequest", "func ParseHTTPRequest(r *http.Request) error", "parses an incoming request")
	require.NoError(t, fx.IndexUnits(ctx, []*CodeUnit{u}))

	results, err := fx.Search(ctx, "ws1", "parse", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "u1", results[0].UnitID)
}

func TestFullTextIndexSearchScopesToWorkspace(t *testing.T) {
	fx, err := NewFullTextIndex()
	require.NoError(t, err)
	t.Cleanup(func() { _ = fx.Close() })

	ctx := context.Background()
	u1 := unitFor("ws1", "u1", "ParseConfig", "pkg.ParseConfig", "func ParseConfig()", "")
	u2 := unitFor("ws2", "u2", "ParseConfig", "pkg.ParseConfig", "func ParseConfig()", "")
	require.NoError(t, fx.IndexUnits(ctx, []*CodeUnit{u1, u2}))

	results, err := fx.Search(ctx, "ws1", "parse config", 10)
	require.NoError(t, err)
	require.Len(t, results, 1)
	assert.Equal(t, "u1", results[0].UnitID)
}

func TestFullTextIndexDeleteUnitsRemovesFromResults(t *testing.T) {
	fx, err := NewFullTextIndex()
	require.NoError(t, err)
	t.Cleanup(func() { _ = fx.Close() })

	ctx := context.Background()
	u := unitFor("ws1", "u1", "ParseConfig", "pkg.ParseConfig", "func ParseConfig()", "")
	require.NoError(t, fx.IndexUnits(ctx, []*CodeUnit{u}))
	require.NoError(t, fx.DeleteUnits(ctx, []string{"u1"}))

	results, err := fx.Search(ctx, "ws1", "parse config", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestFullTextIndexSearchEmptyQueryReturnsEmpty(t *testing.T) {
	fx, err := NewFullTextIndex()
	require.NoError(t, err)
	t.Cleanup(func() { _ = fx.Close() })

	results, err := fx.Search(context.Background(), "ws1", "  ", 10)
	require.NoError(t, err)
	assert.Empty(t, results)
}

func TestSplitIdentifierHandlesCamelAndSnakeCase(t *testing.T) {
	assert.Equal(t, []string{"parse", "HTTP", "Request"}, splitIdentifier("parseHTTPRequest"))
	assert.Equal(t, []string{"build", "stop", "word", "map"}, splitIdentifier("build_stop_word_map"))
}
