package workingmemory

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseCapacity(t *testing.T) {
	wm, err := New("10MB")
	require.NoError(t, err)
	assert.Positive(t, wm.Capacity())

	wm2, err := New("500KB")
	require.NoError(t, err)
	assert.Positive(t, wm2.Capacity())
}

func TestAddSymbol(t *testing.T) {
	wm := NewWithCapacity(1000)
	assert.True(t, wm.AddSymbol("test_symbol", 100))
	assert.Contains(t, wm.ActiveSymbols(), "test_symbol")
	assert.Equal(t, 100, wm.CurrentUsage())
}

func TestEviction(t *testing.T) {
	wm := NewWithCapacity(300)

	wm.AddSymbol("sym1", 100)
	wm.AddSymbol("sym2", 100)
	wm.AddSymbol("sym3", 100)
	assert.Equal(t, 3, wm.GetActiveCount())

	wm.AddSymbol("sym4", 100)

	assert.Equal(t, 3, wm.GetActiveCount())
	assert.Contains(t, wm.ActiveSymbols(), "sym4")
}

func TestAttentionUpdate(t *testing.T) {
	wm := NewWithCapacity(1000)
	wm.AddSymbol("test_symbol", 100)

	wm.Update(AttentionPattern{FocusedSymbols: map[string]float32{"test_symbol": 0.8}})

	weight, ok := wm.GetAttentionWeight("test_symbol")
	require.True(t, ok)
	assert.Greater(t, weight, float32(0))
}

func TestPrefetchQueue(t *testing.T) {
	wm := NewWithCapacity(1000)
	wm.AddSymbol("existing", 100)

	wm.Update(AttentionPattern{PredictedNext: []string{"predicted"}})

	_, activeOK := wm.GetAttentionWeight("predicted")
	inQueue := false
	for _, s := range wm.prefetchQueue {
		if s == "predicted" {
			inQueue = true
		}
	}
	assert.True(t, activeOK || inQueue)
}

func TestCompactRepresentation(t *testing.T) {
	wm := NewWithCapacity(1000)
	wm.AddSymbol("sym1", 100)
	wm.AddSymbol("sym2", 150)

	wm.Update(AttentionPattern{FocusedSymbols: map[string]float32{
		"sym1": 0.5,
		"sym2": 0.9,
	}})

	ctx := wm.CompactRepresentation()
	require.Len(t, ctx.Symbols, 2)
	assert.Equal(t, "sym2", ctx.Symbols[0])
}

func TestClear(t *testing.T) {
	wm := NewWithCapacity(1000)
	wm.AddSymbol("test", 100)
	require.NotZero(t, wm.GetActiveCount())

	wm.Clear()

	assert.Zero(t, wm.GetActiveCount())
	assert.Zero(t, wm.CurrentUsage())
}

func TestStats(t *testing.T) {
	wm := NewWithCapacity(1000)
	wm.AddSymbol("test", 200)

	stats := wm.Stats()
	assert.Equal(t, 1, stats.ActiveSymbols)
	assert.Equal(t, 200, stats.CurrentUsage)
	assert.Equal(t, 1000, stats.Capacity)
	assert.InDelta(t, 0.2, stats.Utilization, 0.0001)
}

func TestAttentionDecay(t *testing.T) {
	wm := NewWithCapacity(1000)
	wm.AddSymbol("test", 100)

	wm.Update(AttentionPattern{FocusedSymbols: map[string]float32{"test": 1.0}})
	initial, ok := wm.GetAttentionWeight("test")
	require.True(t, ok)

	wm.Update(AttentionPattern{})
	decayed, ok := wm.GetAttentionWeight("test")
	require.True(t, ok)

	assert.Less(t, decayed, initial)
}

func TestEvictionHistoryCapped(t *testing.T) {
	wm := NewWithCapacity(100)
	for i := 0; i < 150; i++ {
		wm.AddSymbol(string(rune('a'+i%26))+"-sym", 100)
	}
	assert.LessOrEqual(t, len(wm.EvictionHistory()), evictionHistoryCap)
}

func TestUpdateTokenCostAdjustsUsage(t *testing.T) {
	wm := NewWithCapacity(1000)
	wm.AddSymbol("test", 100)
	wm.UpdateTokenCost("test", 50)
	assert.Equal(t, 50, wm.CurrentUsage())
}
