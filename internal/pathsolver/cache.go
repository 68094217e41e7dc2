package pathsolver

import "fmt"

// CacheKey is the full key spec.md §4.11 requires: every field that
// changes compute_paths' numeric output. Omitting antenna pattern from
// the key was observed in integration testing to leak gains between
// runs and shift SINR by ~4 dB, misselecting MCS — so the key carries
// scene, both positions, both antenna descriptors, and both
// polarizations.
type CacheKey struct {
	SceneRef     string
	TxPos        Position
	RxPos        Position
	TxAntenna    string // pattern tag, or "gain:<dBi>" when explicit
	RxAntenna    string
	TxPolarization Polarization
	RxPolarization Polarization
}

func antennaKeyPart(a Antenna) string {
	if a.Kind == AntennaPattern {
		return a.Pattern
	}
	return fmt.Sprintf("gain:%.4f", a.GainDBi)
}

// NewCacheKey builds a CacheKey from two devices and the active scene.
func NewCacheKey(sceneRef string, tx, rx Device) CacheKey {
	return CacheKey{
		SceneRef:       sceneRef,
		TxPos:          tx.Position,
		RxPos:          rx.Position,
		TxAntenna:      antennaKeyPart(tx.Antenna),
		RxAntenna:      antennaKeyPart(rx.Antenna),
		TxPolarization: tx.Polarization,
		RxPolarization: rx.Polarization,
	}
}

// Cache memoizes PathResult by CacheKey. It is cleared wholesale on
// LoadScene and never evicted otherwise (spec.md §4.11: topologies are
// small, tens to low hundreds of interfaces).
type Cache struct {
	entries map[CacheKey]PathResult
}

// NewCache returns an empty Cache.
func NewCache() *Cache {
	return &Cache{entries: make(map[CacheKey]PathResult)}
}

// Get returns the cached result for key, if any.
func (c *Cache) Get(key CacheKey) (PathResult, bool) {
	r, ok := c.entries[key]
	return r, ok
}

// Put stores result under key.
func (c *Cache) Put(key CacheKey, result PathResult) {
	c.entries[key] = result
}

// Clear empties the cache; called on scene load.
func (c *Cache) Clear() {
	c.entries = make(map[CacheKey]PathResult)
}

// Len reports the number of cached entries, for diagnostics/tests.
func (c *Cache) Len() int { return len(c.entries) }

// CachedSolver wraps a PairSolver with a Cache, per spec.md §9: "Caching
// is layered outside the trait (cache the interface's output, not inside
// each implementation)". It also tracks the last-loaded scene key so
// callers can decide whether a reload is needed without re-querying the
// underlying solver (spec.md §4.7 step 2).
type CachedSolver struct {
	inner    PairSolver
	cache    *Cache
	sceneKey string
}

// NewCachedSolver wraps inner with an empty Cache.
func NewCachedSolver(inner PairSolver) *CachedSolver {
	return &CachedSolver{inner: inner, cache: NewCache()}
}

// SceneKey identifies the currently loaded scene as "ref|freq|bw"; used
// by the per-link pipeline to decide whether LoadScene must be called
// again before a batch (spec.md §4.7 step 2).
func SceneKey(sceneRef string, freqHz, bwHz float64) string {
	return fmt.Sprintf("%s|%.0f|%.0f", sceneRef, freqHz, bwHz)
}

// EnsureScene loads sceneRef/freqHz/bwHz into the underlying solver and
// clears the cache only if the scene key actually changed since the last
// call.
func (c *CachedSolver) EnsureScene(sceneRef string, freqHz, bwHz float64) error {
	key := SceneKey(sceneRef, freqHz, bwHz)
	if key == c.sceneKey {
		return nil
	}
	if err := c.inner.LoadScene(sceneRef, freqHz, bwHz); err != nil {
		return err
	}
	c.cache.Clear()
	c.sceneKey = key
	return nil
}

// ComputePair returns the cached PathResult for (tx, rx) under the
// active scene, computing and caching it on a miss.
func (c *CachedSolver) ComputePair(tx, rx Device, sceneRef string, freqHz, bwHz float64) (PathResult, error) {
	key := NewCacheKey(sceneRef, tx, rx)
	if cached, ok := c.cache.Get(key); ok {
		return cached, nil
	}
	result, err := c.inner.ComputePair(tx, rx, sceneRef, freqHz, bwHz)
	if err != nil {
		return PathResult{}, err
	}
	c.cache.Put(key, result)
	return result, nil
}

// Name delegates to the wrapped solver.
func (c *CachedSolver) Name() string { return c.inner.Name() }

// CacheLen reports the number of cached path entries, for diagnostics.
func (c *CachedSolver) CacheLen() int { return c.cache.Len() }
