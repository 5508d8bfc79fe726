package store

import (
	"bytes"

	"github.com/google/btree"
	"github.com/iov-one/weave-escrow/errors"
)

// freeListSize bounds the node free list shared by nested cache wraps.
const freeListSize = btree.DefaultFreeListSize

// BTreeCacheable gives any KVStore a btree backed CacheWrap.
type BTreeCacheable struct {
	KVStore
}

var _ CacheableKVStore = BTreeCacheable{}

// CacheWrap returns a layer that is written to this store on Write.
func (b BTreeCacheable) CacheWrap() KVCacheWrap {
	return NewBTreeCacheWrap(b.KVStore, b.NewBatch(), nil)
}

// MemStore returns an in-memory store with no persistence. Tests use it
// as the root of a cache wrap stack.
func MemStore() CacheableKVStore {
	e := EmptyKVStore{}
	return NewBTreeCacheWrap(e, e.NewBatch(), nil)
}

// BTreeCacheWrap buffers all writes in a btree on top of a read only
// parent. Pending writes are mirrored into batch and only reach the
// parent once Write is called.
type BTreeCacheWrap struct {
	bt    *btree.BTree
	free  *btree.FreeList
	back  ReadOnlyKVStore
	batch Batch
}

var _ KVCacheWrap = BTreeCacheWrap{}

// NewBTreeCacheWrap creates a cache over kv. All changes are collected
// in batch. free may be nil.
func NewBTreeCacheWrap(kv ReadOnlyKVStore, batch Batch, free *btree.FreeList) BTreeCacheWrap {
	if free == nil {
		free = btree.NewFreeList(freeListSize)
	}
	return BTreeCacheWrap{
		bt:    btree.NewWithFreeList(2, free),
		free:  free,
		back:  kv,
		batch: batch,
	}
}

// CacheWrap stacks another cache on top of this one. The free list is
// shared so nested layers recycle nodes.
func (b BTreeCacheWrap) CacheWrap() KVCacheWrap {
	return NewBTreeCacheWrap(b, b.NewBatch(), b.free)
}

// NewBatch returns a batch that writes into this cache.
func (b BTreeCacheWrap) NewBatch() Batch {
	return NewNonAtomicBatch(b)
}

// Write flushes all pending changes to the parent and resets the cache.
func (b BTreeCacheWrap) Write() error {
	err := b.batch.Write()
	b.Discard()
	return err
}

// Discard drops all pending changes. The batch is left untouched, so
// Discard must be the last call on a wrap that was never written.
func (b BTreeCacheWrap) Discard() {
	for b.bt.DeleteMin() != nil {
	}
}

func (b BTreeCacheWrap) Set(key, value []byte) error {
	if len(key) == 0 {
		return errors.Wrap(errors.ErrInput, "empty key")
	}
	b.bt.ReplaceOrInsert(item{key: key, value: value})
	return b.batch.Set(key, value)
}

func (b BTreeCacheWrap) Delete(key []byte) error {
	b.bt.ReplaceOrInsert(item{key: key, deleted: true})
	return b.batch.Delete(key)
}

func (b BTreeCacheWrap) Get(key []byte) ([]byte, error) {
	if it, ok := b.lookup(key); ok {
		if it.deleted {
			return nil, nil
		}
		return it.value, nil
	}
	return b.back.Get(key)
}

func (b BTreeCacheWrap) Has(key []byte) (bool, error) {
	if it, ok := b.lookup(key); ok {
		return !it.deleted, nil
	}
	return b.back.Has(key)
}

func (b BTreeCacheWrap) lookup(key []byte) (item, bool) {
	res := b.bt.Get(item{key: key})
	if res == nil {
		return item{}, false
	}
	return res.(item), true
}

// Iterator returns all keys in [start, end) in ascending order, merging
// the cached changes with the parent content.
func (b BTreeCacheWrap) Iterator(start, end []byte) (Iterator, error) {
	parent, err := b.back.Iterator(start, end)
	if err != nil {
		return nil, err
	}
	var pending []item
	collect := func(i btree.Item) bool {
		pending = append(pending, i.(item))
		return true
	}
	switch {
	case start == nil && end == nil:
		b.bt.Ascend(collect)
	case start == nil:
		b.bt.AscendLessThan(item{key: end}, collect)
	case end == nil:
		b.bt.AscendGreaterOrEqual(item{key: start}, collect)
	default:
		b.bt.AscendRange(item{key: start}, item{key: end}, collect)
	}
	return newMergeIterator(pending, parent, false)
}

// ReverseIterator returns all keys in [start, end) in descending order.
func (b BTreeCacheWrap) ReverseIterator(start, end []byte) (Iterator, error) {
	parent, err := b.back.ReverseIterator(start, end)
	if err != nil {
		return nil, err
	}
	var pending []item
	collect := func(i btree.Item) bool {
		it := i.(item)
		if start != nil && bytes.Compare(it.key, start) < 0 {
			return false
		}
		pending = append(pending, it)
		return true
	}
	if end == nil {
		b.bt.Descend(collect)
	} else {
		// DescendLessOrEqual includes end, which is exclusive here.
		b.bt.DescendLessOrEqual(item{key: end}, func(i btree.Item) bool {
			if bytes.Equal(i.(item).key, end) {
				return true
			}
			return collect(i)
		})
	}
	return newMergeIterator(pending, parent, true)
}

// item is a single cached change. A deleted item shadows the parent.
type item struct {
	key     []byte
	value   []byte
	deleted bool
}

var _ btree.Item = item{}

func (i item) Less(than btree.Item) bool {
	return bytes.Compare(i.key, than.(item).key) < 0
}

// mergeIterator walks a snapshot of cached items together with the
// parent iterator. On equal keys the cached item wins.
type mergeIterator struct {
	items   []item
	parent  Iterator
	reverse bool
}

var _ Iterator = (*mergeIterator)(nil)

func newMergeIterator(items []item, parent Iterator, reverse bool) (*mergeIterator, error) {
	it := &mergeIterator{items: items, parent: parent, reverse: reverse}
	if err := it.skipDeleted(); err != nil {
		it.Close()
		return nil, err
	}
	return it, nil
}

func (m *mergeIterator) Valid() bool {
	return len(m.items) > 0 || m.parent.Valid()
}

func (m *mergeIterator) Next() error {
	switch m.head() {
	case fromCache:
		m.items = m.items[1:]
	case fromBoth:
		m.items = m.items[1:]
		if err := m.parent.Next(); err != nil {
			return err
		}
	case fromParent:
		if err := m.parent.Next(); err != nil {
			return err
		}
	default:
		return errors.Wrap(errors.ErrDatabase, "iterator exhausted")
	}
	return m.skipDeleted()
}

func (m *mergeIterator) Key() []byte {
	switch m.head() {
	case fromCache, fromBoth:
		return m.items[0].key
	case fromParent:
		return m.parent.Key()
	}
	return nil
}

func (m *mergeIterator) Value() []byte {
	switch m.head() {
	case fromCache, fromBoth:
		return m.items[0].value
	case fromParent:
		return m.parent.Value()
	}
	return nil
}

func (m *mergeIterator) Close() {
	m.items = nil
	m.parent.Close()
}

// skipDeleted advances past deleted cache items and the parent entries
// they shadow.
func (m *mergeIterator) skipDeleted() error {
	for {
		src := m.head()
		if src != fromCache && src != fromBoth {
			return nil
		}
		if !m.items[0].deleted {
			return nil
		}
		m.items = m.items[1:]
		if src == fromBoth {
			if err := m.parent.Next(); err != nil {
				return err
			}
		}
	}
}

type source uint8

const (
	fromNone source = iota
	fromCache
	fromParent
	fromBoth
)

// head tells which side holds the next key in iteration order.
func (m *mergeIterator) head() source {
	hasCache, hasParent := len(m.items) > 0, m.parent.Valid()
	switch {
	case !hasCache && !hasParent:
		return fromNone
	case !hasParent:
		return fromCache
	case !hasCache:
		return fromParent
	}
	cmp := bytes.Compare(m.items[0].key, m.parent.Key())
	if m.reverse {
		cmp = -cmp
	}
	switch {
	case cmp < 0:
		return fromCache
	case cmp > 0:
		return fromParent
	default:
		return fromBoth
	}
}
