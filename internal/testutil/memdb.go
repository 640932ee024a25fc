// Package testutil holds in-memory fakes for tests only. Never import this
// from production code.
package testutil

import (
	"bytes"
	"sort"
	"sync"

	"github.com/soliduschain/node/errs"
	"github.com/soliduschain/node/storage"
)

// MemDB is a thread-safe in-memory storage.DB, standing in for LevelDB in
// unit tests.
type MemDB struct {
	mu   sync.RWMutex
	data map[string][]byte
}

// NewMemDB returns an empty in-memory store.
func NewMemDB() *MemDB {
	return &MemDB{data: make(map[string][]byte)}
}

func (m *MemDB) Get(key []byte) ([]byte, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	v, ok := m.data[string(key)]
	if !ok {
		return nil, errs.NotFound("key %q", key)
	}
	out := make([]byte, len(v))
	copy(out, v)
	return out, nil
}

func (m *MemDB) Set(key, value []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	cp := make([]byte, len(value))
	copy(cp, value)
	m.data[string(key)] = cp
	return nil
}

func (m *MemDB) Delete(key []byte) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	delete(m.data, string(key))
	return nil
}

func (m *MemDB) NewIterator(prefix []byte) storage.Iterator {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var keys []string
	for k := range m.data {
		if bytes.HasPrefix([]byte(k), prefix) {
			keys = append(keys, k)
		}
	}
	sort.Strings(keys)
	return &memIterator{db: m, keys: keys, pos: -1}
}

func (m *MemDB) NewBatch() storage.Batch {
	return &memBatch{db: m}
}

func (m *MemDB) Close() error { return nil }

type memIterator struct {
	db   *MemDB
	keys []string
	pos  int
}

func (it *memIterator) Next() bool {
	it.pos++
	return it.pos < len(it.keys)
}

func (it *memIterator) Key() []byte {
	return []byte(it.keys[it.pos])
}

func (it *memIterator) Value() []byte {
	it.db.mu.RLock()
	defer it.db.mu.RUnlock()
	return it.db.data[it.keys[it.pos]]
}

func (it *memIterator) Release()     {}
func (it *memIterator) Error() error { return nil }

type memBatch struct {
	db      *MemDB
	sets    map[string][]byte
	deletes map[string]bool
	order   []string
}

func (b *memBatch) Set(key, value []byte) {
	if b.sets == nil {
		b.sets = make(map[string][]byte)
		b.deletes = make(map[string]bool)
	}
	cp := make([]byte, len(value))
	copy(cp, value)
	b.sets[string(key)] = cp
	delete(b.deletes, string(key))
	b.order = append(b.order, string(key))
}

func (b *memBatch) Delete(key []byte) {
	if b.deletes == nil {
		b.sets = make(map[string][]byte)
		b.deletes = make(map[string]bool)
	}
	b.deletes[string(key)] = true
	delete(b.sets, string(key))
	b.order = append(b.order, string(key))
}

func (b *memBatch) Reset() {
	b.sets = nil
	b.deletes = nil
	b.order = nil
}

func (b *memBatch) Write() error {
	b.db.mu.Lock()
	defer b.db.mu.Unlock()
	for _, k := range b.order {
		if b.deletes[k] {
			delete(b.db.data, k)
		} else if v, ok := b.sets[k]; ok {
			b.db.data[k] = v
		}
	}
	return nil
}

// NewDB is a convenience constructor matching the shape of storage
// implementations, for call sites that want a storage.DB value.
func NewDB() storage.DB { return NewMemDB() }
