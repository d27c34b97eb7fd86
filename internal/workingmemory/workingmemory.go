// Package workingmemory implements the WorkingMemory cache (C7): an
// attention-weighted, token-budgeted LRU over CodeUnit ids. There is no
// direct teacher analogue — the teacher has no attention cache — so this is
// written in the idiom of the teacher's other in-memory structures (a single
// sync.Mutex guarding a plain map, the same discipline as
// internal/store/hnsw.go) while the scoring algorithm, decay factor, and
// eviction-history ring are carried over verbatim from
// original_source/cortex/src/memory/working.rs.
package workingmemory

import (
	"sort"
	"sync"
	"time"

	"github.com/meridian-dev/meridian/internal/config"
	"github.com/meridian-dev/meridian/internal/merrors"
)

const (
	recencyWeight     = 0.4
	attentionWeightK  = 0.4
	frequencyWeight   = 0.2
	frequencyDivisor  = 100.0
	recencyHalfLife   = 60.0 // seconds
	attentionDecay    = 0.95
	evictionHistoryCap = 100
	defaultEstimatedTokenCost = 100
)

// AttentionPattern is one attention-model update: a weight per symbol
// currently in focus, plus symbols the model predicts will be needed next.
type AttentionPattern struct {
	FocusedSymbols map[string]float32
	PredictedNext  []string
}

// Context is the compact, attention-ranked view of working memory handed to
// a prompt-building caller.
type Context struct {
	Symbols          []string
	AttentionWeights map[string]float32
	TotalTokens      int
}

// Stats summarizes the cache's current state.
type Stats struct {
	ActiveSymbols         int
	CurrentUsage          int
	Capacity              int
	Utilization           float32
	PrefetchQueueSize     int
	TotalAttentionWeight  float32
}

type entry struct {
	lastAccess      time.Time
	attentionWeight float32
	tokenCost       int
	accessCount     int
}

func newEntry(tokenCost int) *entry {
	return &entry{lastAccess: time.Now(), tokenCost: tokenCost, accessCount: 1}
}

func (e *entry) updateAccess(weight float32) {
	e.lastAccess = time.Now()
	e.attentionWeight += weight
	e.accessCount++
}

// score combines recency, attention, and access frequency into a single
// eviction priority (higher survives longer), exactly as working.rs's
// SymbolMetadata::score.
func (e *entry) score() float32 {
	age := float32(time.Since(e.lastAccess).Seconds())
	recency := 1.0 / (1.0 + age/recencyHalfLife)
	return recency*recencyWeight + e.attentionWeight*attentionWeightK + (float32(e.accessCount)/frequencyDivisor)*frequencyWeight
}

// Cache is the working-memory store: active symbol ids bounded by a token
// budget, evicted by combined recency/attention/frequency score.
type Cache struct {
	mu sync.Mutex

	capacity       int
	entries        map[string]*entry
	currentUsage   int
	prefetchQueue  []string
	evictionHistory []string
}

// New parses capacityStr ("N", "NKB", "NMB") via internal/config.ParseCapacity
// and builds an empty Cache.
func New(capacityStr string) (*Cache, error) {
	capacity, err := config.ParseCapacity(capacityStr)
	if err != nil {
		return nil, merrors.Invalid(merrors.ErrCodeInvalidConfig, "invalid working memory capacity: "+err.Error())
	}
	return NewWithCapacity(capacity), nil
}

// NewWithCapacity builds an empty Cache with a pre-parsed token budget.
func NewWithCapacity(capacity int) *Cache {
	return &Cache{
		capacity: capacity,
		entries:  make(map[string]*entry),
	}
}

// AddSymbol adds id with the given token cost, evicting lower-scored entries
// until there is room. Returns false if even a fully-evicted cache cannot
// fit id (tokenCost alone exceeds capacity).
func (c *Cache) AddSymbol(id string, tokenCost int) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.addSymbolLocked(id, tokenCost)
}

func (c *Cache) addSymbolLocked(id string, tokenCost int) bool {
	if e, ok := c.entries[id]; ok {
		e.updateAccess(0.1)
		return true
	}

	for c.currentUsage+tokenCost > c.capacity {
		if !c.evictOneLocked() {
			return false
		}
	}

	c.entries[id] = newEntry(tokenCost)
	c.currentUsage += tokenCost
	return true
}

// Update folds one AttentionPattern into the cache: focused symbols get
// their attention weight bumped (added to working memory on first sight),
// all weights decay, and predicted symbols are queued for prefetch.
func (c *Cache) Update(attention AttentionPattern) {
	c.mu.Lock()
	defer c.mu.Unlock()

	for symbol, weight := range attention.FocusedSymbols {
		if e, ok := c.entries[symbol]; ok {
			e.updateAccess(weight)
		} else {
			c.addSymbolLocked(symbol, defaultEstimatedTokenCost)
			if e, ok := c.entries[symbol]; ok {
				e.attentionWeight = weight
			}
		}
	}

	c.decayAttentionWeightsLocked()

	for _, symbol := range attention.PredictedNext {
		if _, active := c.entries[symbol]; active {
			continue
		}
		if containsString(c.prefetchQueue, symbol) {
			continue
		}
		c.prefetchQueue = append(c.prefetchQueue, symbol)
	}
	c.processPrefetchQueueLocked()
}

func (c *Cache) decayAttentionWeightsLocked() {
	for _, e := range c.entries {
		e.attentionWeight *= attentionDecay
	}
}

func (c *Cache) processPrefetchQueueLocked() {
	for len(c.prefetchQueue) > 0 {
		symbol := c.prefetchQueue[0]
		c.prefetchQueue = c.prefetchQueue[1:]
		if !c.addSymbolLocked(symbol, defaultEstimatedTokenCost) {
			break
		}
	}
}

func (c *Cache) evictOneLocked() bool {
	if len(c.entries) == 0 {
		return false
	}
	var (
		worstID    string
		worstScore float32 = 0
		found      bool
	)
	for id, e := range c.entries {
		s := e.score()
		if !found || s < worstScore {
			worstScore = s
			worstID = id
			found = true
		}
	}
	if !found {
		return false
	}
	c.evictLocked(worstID)
	return true
}

func (c *Cache) evictLocked(id string) {
	e, ok := c.entries[id]
	if !ok {
		return
	}
	delete(c.entries, id)
	c.currentUsage -= e.tokenCost
	if c.currentUsage < 0 {
		c.currentUsage = 0
	}

	c.evictionHistory = append(c.evictionHistory, id)
	if len(c.evictionHistory) > evictionHistoryCap {
		c.evictionHistory = c.evictionHistory[len(c.evictionHistory)-evictionHistoryCap:]
	}
}

// EvictIfNeeded evicts until current usage is within capacity, returning an
// error if the cache somehow cannot be brought within budget (empty but over
// capacity, which should not happen given AddSymbol's own budget check).
func (c *Cache) EvictIfNeeded() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	for c.currentUsage > c.capacity {
		if !c.evictOneLocked() {
			return merrors.Fatal(merrors.ErrCodeInternal, "failed to evict enough symbols to satisfy capacity", nil)
		}
	}
	return nil
}

// UpdateAttentionWeight bumps (or creates) id's attention weight directly,
// bypassing the batched AttentionPattern flow.
func (c *Cache) UpdateAttentionWeight(id string, weight float32) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if e, ok := c.entries[id]; ok {
		e.updateAccess(weight)
		return
	}
	c.addSymbolLocked(id, defaultEstimatedTokenCost)
	if e, ok := c.entries[id]; ok {
		e.attentionWeight = weight
	}
}

// UpdateTokenCost rewrites id's estimated cost, adjusting current usage by
// the delta.
func (c *Cache) UpdateTokenCost(id string, newCost int) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return
	}
	c.currentUsage = c.currentUsage - e.tokenCost + newCost
	if c.currentUsage < 0 {
		c.currentUsage = 0
	}
	e.tokenCost = newCost
}

// GetAttentionWeight returns id's current attention weight, if present.
func (c *Cache) GetAttentionWeight(id string) (float32, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	e, ok := c.entries[id]
	if !ok {
		return 0, false
	}
	return e.attentionWeight, true
}

// ActiveSymbols returns every id currently resident, sorted for determinism.
func (c *Cache) ActiveSymbols() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, 0, len(c.entries))
	for id := range c.entries {
		out = append(out, id)
	}
	sort.Strings(out)
	return out
}

// GetActiveCount returns the number of resident symbols.
func (c *Cache) GetActiveCount() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// CurrentUsage returns the total token cost of resident symbols.
func (c *Cache) CurrentUsage() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.currentUsage
}

// EstimateTokens is an alias for CurrentUsage, matching working.rs's naming.
func (c *Cache) EstimateTokens() int { return c.CurrentUsage() }

// Capacity returns the configured token budget.
func (c *Cache) Capacity() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.capacity
}

// EvictionHistory returns the most recent (up to 100) evicted ids, oldest
// first.
func (c *Cache) EvictionHistory() []string {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]string, len(c.evictionHistory))
	copy(out, c.evictionHistory)
	return out
}

// Clear empties the cache, including the prefetch queue. Eviction history is
// left intact, matching working.rs's clear().
func (c *Cache) Clear() {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.entries = make(map[string]*entry)
	c.currentUsage = 0
	c.prefetchQueue = nil
}

// CompactRepresentation returns the active symbols ranked by attention
// weight descending, for building a bounded prompt context.
func (c *Cache) CompactRepresentation() Context {
	c.mu.Lock()
	defer c.mu.Unlock()

	symbols := make([]string, 0, len(c.entries))
	weights := make(map[string]float32, len(c.entries))
	for id, e := range c.entries {
		symbols = append(symbols, id)
		weights[id] = e.attentionWeight
	}
	sort.SliceStable(symbols, func(i, j int) bool {
		return weights[symbols[i]] > weights[symbols[j]]
	})

	return Context{
		Symbols:          symbols,
		AttentionWeights: weights,
		TotalTokens:      c.currentUsage,
	}
}

// Stats reports the cache's current utilization.
func (c *Cache) Stats() Stats {
	c.mu.Lock()
	defer c.mu.Unlock()

	var totalAttention float32
	for _, e := range c.entries {
		totalAttention += e.attentionWeight
	}
	var utilization float32
	if c.capacity > 0 {
		utilization = float32(c.currentUsage) / float32(c.capacity)
	}
	return Stats{
		ActiveSymbols:        len(c.entries),
		CurrentUsage:         c.currentUsage,
		Capacity:             c.capacity,
		Utilization:          utilization,
		PrefetchQueueSize:    len(c.prefetchQueue),
		TotalAttentionWeight: totalAttention,
	}
}

func containsString(ss []string, s string) bool {
	for _, x := range ss {
		if x == s {
			return true
		}
	}
	return false
}
