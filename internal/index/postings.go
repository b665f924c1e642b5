package index

import (
	"sync"

	"github.com/RoaringBitmap/roaring/v2"
)

const (
	shardBits  = 8
	shardCount = 1 << shardBits
)

// PostingMap is a concurrent map from key to posting bitmap. Keys are spread
// over independently locked shards, so insertions for different keys rarely
// contend and insertions for one key are linearized by its shard lock.
type PostingMap[K uint32 | uint64] struct {
	shards [shardCount]postingShard[K]
}

type postingShard[K uint32 | uint64] struct {
	mu   sync.Mutex
	sets map[K]*roaring.Bitmap
}

// NewPostingMap creates an empty PostingMap.
func NewPostingMap[K uint32 | uint64]() *PostingMap[K] {
	m := &PostingMap[K]{}
	for i := range m.shards {
		m.shards[i].sets = make(map[K]*roaring.Bitmap)
	}
	return m
}

// shardOf mixes the key so packed trigrams (low entropy in the low byte) spread evenly.
func shardOf[K uint32 | uint64](k K) int {
	return int((uint64(k) * 0x9E3779B97F4A7C15) >> (64 - shardBits))
}

// Add inserts id into the posting set of k. Adding an id twice is a no-op.
func (m *PostingMap[K]) Add(k K, id uint32) {
	s := &m.shards[shardOf(k)]
	s.mu.Lock()
	s.add(k, id)
	s.mu.Unlock()
}

func (s *postingShard[K]) add(k K, id uint32) {
	bm, ok := s.sets[k]
	if !ok {
		bm = roaring.New()
		s.sets[k] = bm
	}
	bm.Add(id)
}

// AddAll inserts id into the posting set of every key. Keys are grouped by
// shard first so each shard lock is taken at most once.
func (m *PostingMap[K]) AddAll(keys []K, id uint32) {
	if len(keys) == 0 {
		return
	}
	var buckets [shardCount][]K
	for _, k := range keys {
		i := shardOf(k)
		buckets[i] = append(buckets[i], k)
	}
	for i := range buckets {
		if len(buckets[i]) == 0 {
			continue
		}
		s := &m.shards[i]
		s.mu.Lock()
		for _, k := range buckets[i] {
			s.add(k, id)
		}
		s.mu.Unlock()
	}
}

// Len returns the number of distinct keys.
func (m *PostingMap[K]) Len() int {
	n := 0
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		n += len(s.sets)
		s.mu.Unlock()
	}
	return n
}

// Freeze merges all shards into one map and run-optimizes every bitmap.
// The PostingMap must not be used afterwards.
func (m *PostingMap[K]) Freeze() map[K]*roaring.Bitmap {
	out := make(map[K]*roaring.Bitmap, m.Len())
	for i := range m.shards {
		s := &m.shards[i]
		s.mu.Lock()
		for k, bm := range s.sets {
			bm.RunOptimize()
			out[k] = bm
		}
		s.sets = nil
		s.mu.Unlock()
	}
	return out
}
