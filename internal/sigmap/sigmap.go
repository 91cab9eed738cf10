// ABOUTME: Certified signature map of seed hashes to delegation hashes
// ABOUTME: Keeps a sorted index, an expiry queue and a lazily rebuilt hash tree

package sigmap

import (
	"bytes"
	"sort"
	"time"

	"github.com/google/btree"
)

// DefaultPruneBatch is how many expired entries one login removes at most.
const DefaultPruneBatch = 10

const btreeDegree = 16

type entry struct {
	key        Hash
	value      Hash
	seq        uint64
	expiration int64 // unix nanoseconds
}

func lessByKey(a, b *entry) bool {
	return bytes.Compare(a.key[:], b.key[:]) < 0
}

// lessByExpiry orders the queue oldest first, insertion order breaking ties.
func lessByExpiry(a, b *entry) bool {
	if a.expiration != b.expiration {
		return a.expiration < b.expiration
	}
	return a.seq < b.seq
}

// Map holds one delegation hash per key. It is not safe for concurrent use.
type Map struct {
	index *btree.BTreeG[*entry]
	queue *btree.BTreeG[*entry]
	seq   uint64

	dirty  bool
	keys   []Hash
	values []Hash
	tree   tree
}

// New creates an empty map.
func New() *Map {
	return &Map{
		index: btree.NewG(btreeDegree, lessByKey),
		queue: btree.NewG(btreeDegree, lessByExpiry),
	}
}

// Put inserts or replaces the value stored under key.
func (m *Map) Put(key, value Hash, expiration time.Time) {
	m.seq++
	e := &entry{
		key:        key,
		value:      value,
		seq:        m.seq,
		expiration: expiration.UnixNano(),
	}
	if old, replaced := m.index.ReplaceOrInsert(e); replaced {
		m.queue.Delete(old)
	}
	m.queue.ReplaceOrInsert(e)
	m.dirty = true
}

// Get returns the value stored under key.
func (m *Map) Get(key Hash) (Hash, bool) {
	e, ok := m.index.Get(&entry{key: key})
	if !ok {
		return Hash{}, false
	}
	return e.value, true
}

// Delete removes key and reports whether it was present.
func (m *Map) Delete(key Hash) bool {
	e, ok := m.index.Delete(&entry{key: key})
	if !ok {
		return false
	}
	m.queue.Delete(e)
	m.dirty = true
	return true
}

// PruneExpired removes up to limit entries whose expiration is at or before
// now, oldest first, and returns how many were removed.
func (m *Map) PruneExpired(now time.Time, limit int) int {
	cutoff := now.UnixNano()
	pruned := 0
	for pruned < limit {
		oldest, ok := m.queue.Min()
		if !ok || oldest.expiration > cutoff {
			break
		}
		m.queue.DeleteMin()
		m.index.Delete(oldest)
		pruned++
	}
	if pruned > 0 {
		m.dirty = true
	}
	return pruned
}

// Len returns the number of live entries.
func (m *Map) Len() int {
	return m.index.Len()
}

// Root returns the commitment over all live entries.
func (m *Map) Root() Hash {
	m.rebuild()
	return m.tree.root()
}

// Witness proves that key is or is not in the map under the current root.
func (m *Map) Witness(key Hash) *Witness {
	m.rebuild()

	w := &Witness{Key: key, Size: len(m.keys)}
	i := sort.Search(len(m.keys), func(i int) bool {
		return bytes.Compare(m.keys[i][:], key[:]) >= 0
	})

	if i < len(m.keys) && m.keys[i] == key {
		w.Member = m.proof(i)
		return w
	}
	if i > 0 {
		w.Left = m.proof(i - 1)
	}
	if i < len(m.keys) {
		w.Right = m.proof(i)
	}
	return w
}

func (m *Map) proof(i int) *Proof {
	return &Proof{
		Index:    i,
		Key:      m.keys[i],
		Value:    m.values[i],
		Siblings: m.tree.path(i),
	}
}

func (m *Map) rebuild() {
	if !m.dirty {
		return
	}
	n := m.index.Len()
	keys := make([]Hash, 0, n)
	values := make([]Hash, 0, n)
	leaves := make([]Hash, 0, n)
	m.index.Ascend(func(e *entry) bool {
		keys = append(keys, e.key)
		values = append(values, e.value)
		leaves = append(leaves, leafHash(e.key, e.value))
		return true
	})
	m.keys = keys
	m.values = values
	m.tree = buildTree(leaves)
	m.dirty = false
}
