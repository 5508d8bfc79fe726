package store

import (
	"github.com/iov-one/weave-escrow/errors"
)

// SliceIterator iterates over an in-memory, already ordered list of models.
type SliceIterator struct {
	data []Model
	idx  int
}

var _ Iterator = (*SliceIterator)(nil)

func NewSliceIterator(data []Model) *SliceIterator {
	return &SliceIterator{data: data}
}

func (s *SliceIterator) Valid() bool {
	return s.idx < len(s.data)
}

func (s *SliceIterator) Next() error {
	if !s.Valid() {
		return errors.Wrap(errors.ErrDatabase, "iterator exhausted")
	}
	s.idx++
	return nil
}

func (s *SliceIterator) Key() []byte {
	if !s.Valid() {
		return nil
	}
	return s.data[s.idx].Key
}

func (s *SliceIterator) Value() []byte {
	if !s.Valid() {
		return nil
	}
	return s.data[s.idx].Value
}

func (s *SliceIterator) Close() {
	s.data = nil
}

// EmptyKVStore never holds any data. It is the bottom layer of MemStore.
type EmptyKVStore struct{}

var _ KVStore = EmptyKVStore{}

func (EmptyKVStore) Get(key []byte) ([]byte, error) { return nil, nil }

func (EmptyKVStore) Has(key []byte) (bool, error) { return false, nil }

func (EmptyKVStore) Set(key, value []byte) error { return nil }

func (EmptyKVStore) Delete(key []byte) error { return nil }

func (EmptyKVStore) Iterator(start, end []byte) (Iterator, error) {
	return NewSliceIterator(nil), nil
}

func (EmptyKVStore) ReverseIterator(start, end []byte) (Iterator, error) {
	return NewSliceIterator(nil), nil
}

func (e EmptyKVStore) NewBatch() Batch {
	return NewNonAtomicBatch(e)
}

// Op is a single recorded set or delete.
type Op struct {
	key    []byte
	value  []byte
	delete bool
}

// Apply replays the operation on out.
func (o Op) Apply(out SetDeleter) error {
	if o.delete {
		return out.Delete(o.key)
	}
	return out.Set(o.key, o.value)
}

func SetOp(key, value []byte) Op {
	return Op{key: key, value: value}
}

func DelOp(key []byte) Op {
	return Op{key: key, delete: true}
}

// NonAtomicBatch collects operations and replays them one by one on
// Write. A failure midway leaves out partially updated, so it must only
// back in-memory layers.
type NonAtomicBatch struct {
	out SetDeleter
	ops []Op
}

var _ Batch = (*NonAtomicBatch)(nil)

func NewNonAtomicBatch(out SetDeleter) *NonAtomicBatch {
	return &NonAtomicBatch{out: out}
}

func (b *NonAtomicBatch) Set(key, value []byte) error {
	b.ops = append(b.ops, SetOp(key, value))
	return nil
}

func (b *NonAtomicBatch) Delete(key []byte) error {
	b.ops = append(b.ops, DelOp(key))
	return nil
}

// Write applies all collected operations and resets the batch.
func (b *NonAtomicBatch) Write() error {
	ops := b.ops
	b.ops = nil
	for i, op := range ops {
		if err := op.Apply(b.out); err != nil {
			return errors.Wrapf(err, "op %d", i)
		}
	}
	return nil
}
