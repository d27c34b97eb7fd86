package vectorindex

import (
	"os"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/meridian-dev/meridian/internal/merrors"
)

func TestAddSearchFindsNearest(t *testing.T) {
	ix := New(DefaultConfig(3))
	require.NoError(t, ix.Add("a", []float32{1, 0, 0}))
	require.NoError(t, ix.Add("b", []float32{0, 1, 0}))
	require.NoError(t, ix.Add("c", []float32{0.9, 0.1, 0}))

	matches, err := ix.Search([]float32{1, 0, 0}, 2)
	require.NoError(t, err)
	require.Len(t, matches, 2)
	assert.Equal(t, "a", matches[0].ExternalID)
}

func TestAddRejectsDimensionMismatch(t *testing.T) {
	ix := New(DefaultConfig(3))
	err := ix.Add("a", []float32{1, 0})
	require.Error(t, err)
	assert.True(t, merrors.IsKind(err, merrors.KindInvalidInput))
}

func TestSearchEmptyIndexReturnsEmpty(t *testing.T) {
	ix := New(DefaultConfig(3))
	matches, err := ix.Search([]float32{1, 0, 0}, 5)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestSearchZeroKReturnsEmpty(t *testing.T) {
	ix := New(DefaultConfig(3))
	require.NoError(t, ix.Add("a", []float32{1, 0, 0}))
	matches, err := ix.Search([]float32{1, 0, 0}, 0)
	require.NoError(t, err)
	assert.Empty(t, matches)
}

func TestRemoveExcludesFromSearch(t *testing.T) {
	ix := New(DefaultConfig(3))
	require.NoError(t, ix.Add("a", []float32{1, 0, 0}))
	require.NoError(t, ix.Add("b", []float32{0, 1, 0}))
	ix.Remove("a")

	assert.False(t, ix.Contains("a"))
	assert.Equal(t, 1, ix.Len())

	matches, err := ix.Search([]float32{1, 0, 0}, 5)
	require.NoError(t, err)
	for _, m := range matches {
		assert.NotEqual(t, "a", m.ExternalID)
	}
}

func TestReAddOrphansPreviousEntry(t *testing.T) {
	ix := New(DefaultConfig(3))
	require.NoError(t, ix.Add("a", []float32{1, 0, 0}))
	require.NoError(t, ix.Add("a", []float32{0, 1, 0}))

	assert.Equal(t, 1, ix.Len())
	assert.Equal(t, 1, ix.OrphanCount())
}

func TestSaveLoadRoundTrip(t *testing.T) {
	ix := New(DefaultConfig(3))
	require.NoError(t, ix.Add("a", []float32{1, 0, 0}))
	require.NoError(t, ix.Add("b", []float32{0, 1, 0}))

	dir := t.TempDir()
	require.NoError(t, ix.Save(dir, "idx"))

	loaded, err := Load(dir, "idx")
	require.NoError(t, err)
	assert.Equal(t, 2, loaded.Len())
	assert.True(t, loaded.Contains("a"))

	matches, err := loaded.Search([]float32{1, 0, 0}, 1)
	require.NoError(t, err)
	require.Len(t, matches, 1)
	assert.Equal(t, "a", matches[0].ExternalID)

	_, err = os.Stat(dir + "/idx.hnsw.graph")
	require.NoError(t, err)
}

func TestLoadMissingReturnsNotFound(t *testing.T) {
	_, err := Load(t.TempDir(), "missing")
	require.Error(t, err)
	assert.True(t, merrors.IsKind(err, merrors.KindNotFound))
}

func TestRebuildDropsOrphans(t *testing.T) {
	ix := New(DefaultConfig(3))
	require.NoError(t, ix.Add("a", []float32{1, 0, 0}))
	require.NoError(t, ix.Add("a", []float32{0, 1, 0}))
	require.Equal(t, 1, ix.OrphanCount())

	require.NoError(t, ix.Rebuild(map[string][]float32{"a": {0, 1, 0}}))
	assert.Equal(t, 0, ix.OrphanCount())
	assert.Equal(t, 1, ix.Len())
}

func TestLiveVectorsCompleteAfterAdds(t *testing.T) {
	ix := New(DefaultConfig(3))
	require.NoError(t, ix.Add("a", []float32{1, 0, 0}))
	require.NoError(t, ix.Add("b", []float32{0, 1, 0}))

	vectors, complete := ix.LiveVectors()
	assert.True(t, complete)
	assert.Len(t, vectors, 2)
}

func TestLiveVectorsIncompleteAfterLoad(t *testing.T) {
	dir := t.TempDir()
	ix := New(DefaultConfig(3))
	require.NoError(t, ix.Add("a", []float32{1, 0, 0}))
	require.NoError(t, ix.Save(dir, "idx"))

	loaded, err := Load(dir, "idx")
	require.NoError(t, err)

	_, complete := loaded.LiveVectors()
	assert.False(t, complete)
}

func TestCompactIfNeededSkipsBelowThreshold(t *testing.T) {
	ix := New(DefaultConfig(3))
	require.NoError(t, ix.Add("a", []float32{1, 0, 0}))

	compacted, err := ix.CompactIfNeeded(0.5, 10)
	require.NoError(t, err)
	assert.False(t, compacted)
}

func TestCompactIfNeededRebuildsAboveThreshold(t *testing.T) {
	ix := New(DefaultConfig(3))
	require.NoError(t, ix.Add("a", []float32{1, 0, 0}))
	require.NoError(t, ix.Add("a", []float32{0, 1, 0}))
	require.Equal(t, 1, ix.OrphanCount())

	compacted, err := ix.CompactIfNeeded(0.1, 1)
	require.NoError(t, err)
	assert.True(t, compacted)
	assert.Equal(t, 0, ix.OrphanCount())
	assert.Equal(t, 1, ix.Len())
}

func TestCompactIfNeededRefusesAfterLoad(t *testing.T) {
	dir := t.TempDir()
	ix := New(DefaultConfig(3))
	require.NoError(t, ix.Add("a", []float32{1, 0, 0}))
	require.NoError(t, ix.Add("a", []float32{0, 1, 0}))
	require.NoError(t, ix.Save(dir, "idx"))

	loaded, err := Load(dir, "idx")
	require.NoError(t, err)

	_, err = loaded.CompactIfNeeded(0.1, 1)
	require.Error(t, err)
	assert.True(t, merrors.IsKind(err, merrors.KindFatal))
}
