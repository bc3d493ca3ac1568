// cache.go — the persistent cache backing the L3 external-analyzer layer.
//
// detectionCache is the cross-session cache of external-analyzer results,
// keyed by a content hash of the source text. Invoking the external
// analyzer is the most expensive step in the detection pipeline, and its
// inputs recur (the same clause, the same boilerplate paragraph, across
// many documents), so a hit avoids a full subprocess round trip.
//
// Two implementations are provided, matching the persistent-cache split
// used elsewhere in this codebase for recurring lookups:
//   - memoryCache — in-memory only, used in tests and when no path is configured.
//   - bboltCache  — embedded key-value store (bbolt), used in production.
// An S3-FIFO in-memory eviction layer sits in front of the bbolt store and
// bounds both its hot set and its on-disk size; the memory-only cache is
// unbounded.
package pii

import (
	"container/list"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"sync"

	bolt "go.etcd.io/bbolt"

	"legalcore/internal/errs"
)

func hashText(text string) [32]byte { return sha256.Sum256([]byte(text)) }

// detectionCache is the cross-session cache interface for L3 results.
// All implementations must be safe for concurrent use.
type detectionCache interface {
	// Get returns the cached candidates for key, if present.
	Get(key string) (candidates []Candidate, ok bool)
	// Set stores key → candidates. Overwrites any existing entry silently.
	Set(key string, candidates []Candidate)
	// Delete removes key, if present.
	Delete(key string)
	// Close releases any resources held by the cache.
	Close() error
}

// --- memoryCache ---------------------------------------------------------

type memoryCache struct {
	mu    sync.RWMutex
	store map[string][]Candidate
}

func newMemoryCache() detectionCache {
	return &memoryCache{store: make(map[string][]Candidate)}
}

func (c *memoryCache) Get(key string) ([]Candidate, bool) {
	c.mu.RLock()
	v, ok := c.store[key]
	c.mu.RUnlock()
	return v, ok
}

func (c *memoryCache) Set(key string, candidates []Candidate) {
	c.mu.Lock()
	c.store[key] = candidates
	c.mu.Unlock()
}

func (c *memoryCache) Delete(key string) {
	c.mu.Lock()
	delete(c.store, key)
	c.mu.Unlock()
}

func (c *memoryCache) Close() error { return nil }

// --- bboltCache ----------------------------------------------------------

const detectionBucket = "detection_cache"

// bboltCache is a detectionCache backed by an embedded bbolt database.
// Entries survive process restarts.
type bboltCache struct {
	db *bolt.DB
}

func newBboltCache(path string) (detectionCache, error) {
	db, err := bolt.Open(path, 0o600, nil)
	if err != nil {
		return nil, errs.Wrap(errs.Availability, "open detection cache "+path, err)
	}
	if err := db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists([]byte(detectionBucket))
		return err
	}); err != nil {
		db.Close() //nolint:errcheck // best-effort close on init failure
		return nil, errs.Wrap(errs.Availability, "create detection cache bucket", err)
	}
	return &bboltCache{db: db}, nil
}

func (c *bboltCache) Get(key string) ([]Candidate, bool) {
	var raw []byte
	_ = c.db.View(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(detectionBucket))
		if b == nil {
			return nil
		}
		v := b.Get([]byte(key))
		if v != nil {
			raw = append([]byte(nil), v...)
		}
		return nil
	})
	if raw == nil {
		return nil, false
	}
	var cands []Candidate
	if err := json.Unmarshal(raw, &cands); err != nil {
		return nil, false
	}
	return cands, true
}

func (c *bboltCache) Set(key string, candidates []Candidate) {
	data, err := json.Marshal(candidates)
	if err != nil {
		return
	}
	_ = c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(detectionBucket))
		if b == nil {
			return fmt.Errorf("bucket %q not found", detectionBucket)
		}
		return b.Put([]byte(key), data)
	})
}

func (c *bboltCache) Delete(key string) {
	_ = c.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket([]byte(detectionBucket))
		if b == nil {
			return nil
		}
		return b.Delete([]byte(key))
	})
}

func (c *bboltCache) Close() error {
	return c.db.Close()
}

// --- s3fifoCache: S3-FIFO eviction layer ---------------------------------
//
// S3-FIFO ("Simple, Scalable, FIFO-based cache eviction", Yang et al.,
// 2023) uses two FIFO queues and a bounded ghost set:
//
//   - S (small, ~10% of capacity): probationary queue. New keys land here.
//   - M (main, ~90% of capacity): protected queue. Keys promoted from S
//     after at least one access (freq > 0) land here.
//   - G (ghost): a bounded set of keys recently evicted from S. A key
//     found in G on insert bypasses S and goes directly to M.
//
// Entries evicted from either queue are deleted from the backing store so
// on-disk size stays bounded.

type s3fifoEntry struct {
	value []Candidate
	freq  uint8
	elem  *list.Element
	inM   bool
}

type s3fifoCache struct {
	mu sync.Mutex

	capacity int
	sTarget  int
	ghostCap int

	entries map[string]*s3fifoEntry
	sQueue  *list.List
	mQueue  *list.List

	ghostBuf   []string
	ghostSet   map[string]struct{}
	ghostHead  int
	ghostCount int

	backing detectionCache
}

func newS3FIFOCache(backing detectionCache, capacity int) detectionCache {
	if capacity < 2 {
		capacity = 2
	}
	sTarget := capacity / 10
	if sTarget < 1 {
		sTarget = 1
	}
	ghostCap := 2 * sTarget
	if ghostCap < 4 {
		ghostCap = 4
	}
	return &s3fifoCache{
		capacity: capacity,
		sTarget:  sTarget,
		ghostCap: ghostCap,
		entries:  make(map[string]*s3fifoEntry, capacity),
		sQueue:   list.New(),
		mQueue:   list.New(),
		ghostBuf: make([]string, ghostCap),
		ghostSet: make(map[string]struct{}, ghostCap),
		backing:  backing,
	}
}

func (c *s3fifoCache) Get(key string) ([]Candidate, bool) {
	c.mu.Lock()
	if e, ok := c.entries[key]; ok {
		if e.freq < 3 {
			e.freq++
		}
		v := e.value
		c.mu.Unlock()
		return v, true
	}
	c.mu.Unlock()

	cands, ok := c.backing.Get(key)
	if !ok {
		return nil, false
	}
	c.insertLocked(key, cands)
	return cands, true
}

func (c *s3fifoCache) Set(key string, candidates []Candidate) {
	c.insertLocked(key, candidates)
	c.backing.Set(key, candidates)
}

func (c *s3fifoCache) Delete(key string) {
	c.mu.Lock()
	c.removeFromMemory(key)
	c.mu.Unlock()
	c.backing.Delete(key)
}

func (c *s3fifoCache) Close() error {
	return c.backing.Close()
}

func (c *s3fifoCache) insertLocked(key string, value []Candidate) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if e, ok := c.entries[key]; ok {
		e.value = value
		return
	}

	inM := c.ghostContains(key)
	var elem *list.Element
	if inM {
		elem = c.mQueue.PushBack(key)
	} else {
		elem = c.sQueue.PushBack(key)
	}
	c.entries[key] = &s3fifoEntry{value: value, freq: 0, elem: elem, inM: inM}

	for c.sQueue.Len()+c.mQueue.Len() > c.capacity {
		c.evictOne()
	}
}

func (c *s3fifoCache) evictOne() {
	if c.sQueue.Len() > 0 {
		c.evictFromS()
		return
	}
	c.evictFromM()
}

func (c *s3fifoCache) evictFromS() {
	front := c.sQueue.Front()
	if front == nil {
		return
	}
	key, ok := front.Value.(string)
	if !ok {
		c.sQueue.Remove(front)
		return
	}
	c.sQueue.Remove(front)

	e, ok := c.entries[key]
	if !ok {
		return
	}

	if e.freq > 0 {
		e.freq = 0
		e.inM = true
		e.elem = c.mQueue.PushBack(key)
		mTarget := c.capacity - c.sTarget
		if c.mQueue.Len() > mTarget {
			c.evictFromM()
		}
	} else {
		delete(c.entries, key)
		c.ghostAdd(key)
		go c.backing.Delete(key) //nolint:errcheck // async, best-effort
	}
}

func (c *s3fifoCache) evictFromM() {
	front := c.mQueue.Front()
	if front == nil {
		return
	}
	key, ok := front.Value.(string)
	if !ok {
		c.mQueue.Remove(front)
		return
	}
	c.mQueue.Remove(front)
	delete(c.entries, key)
	go c.backing.Delete(key) //nolint:errcheck // async, best-effort
}

func (c *s3fifoCache) removeFromMemory(key string) {
	e, ok := c.entries[key]
	if !ok {
		return
	}
	if e.inM {
		c.mQueue.Remove(e.elem)
	} else {
		c.sQueue.Remove(e.elem)
	}
	delete(c.entries, key)
}

func (c *s3fifoCache) ghostContains(key string) bool {
	_, ok := c.ghostSet[key]
	return ok
}

func (c *s3fifoCache) ghostAdd(key string) {
	if _, exists := c.ghostSet[key]; exists {
		return
	}
	if c.ghostCount == c.ghostCap {
		oldest := c.ghostBuf[c.ghostHead]
		delete(c.ghostSet, oldest)
		c.ghostHead = (c.ghostHead + 1) % c.ghostCap
		c.ghostCount--
	}
	writeIdx := (c.ghostHead + c.ghostCount) % c.ghostCap
	c.ghostBuf[writeIdx] = key
	c.ghostSet[key] = struct{}{}
	c.ghostCount++
}

// defaultCacheCapacity bounds the number of content-hash entries kept in
// the S3-FIFO in-memory layer (and on disk via bbolt).
const defaultCacheCapacity = 10_000

// newDetectionCache opens the cache backing the L3 layer. An empty path
// uses an unbounded in-memory cache; a non-empty path opens bbolt wrapped
// in the S3-FIFO eviction layer.
func newDetectionCache(path string) detectionCache {
	if path == "" {
		return newMemoryCache()
	}
	backing, err := newBboltCache(path)
	if err != nil {
		return newMemoryCache()
	}
	return newS3FIFOCache(backing, defaultCacheCapacity)
}
