package store

import (
	"github.com/iov-one/weave-escrow/errors"
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/storage"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDBStore persists the ledger state in a goleveldb database.
// Cache wraps commit through a single leveldb batch, so a Write is
// applied to disk atomically.
type LevelDBStore struct {
	db *leveldb.DB
}

var (
	_ KVStore       = (*LevelDBStore)(nil)
	_ CommitKVStore = (*LevelDBStore)(nil)
)

// OpenLevelDB opens (or creates) a database in the given directory.
func OpenLevelDB(dir string) (*LevelDBStore, error) {
	db, err := leveldb.OpenFile(dir, nil)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "open %q: %s", dir, err)
	}
	return &LevelDBStore{db: db}, nil
}

// MemLevelDB returns a leveldb instance backed by memory only.
func MemLevelDB() (*LevelDBStore, error) {
	db, err := leveldb.Open(storage.NewMemStorage(), nil)
	if err != nil {
		return nil, errors.Wrapf(errors.ErrDatabase, "open memory db: %s", err)
	}
	return &LevelDBStore{db: db}, nil
}

func (s *LevelDBStore) Get(key []byte) ([]byte, error) {
	val, err := s.db.Get(key, nil)
	switch {
	case err == leveldb.ErrNotFound:
		return nil, nil
	case err != nil:
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return val, nil
}

func (s *LevelDBStore) Has(key []byte) (bool, error) {
	ok, err := s.db.Has(key, nil)
	if err != nil {
		return false, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return ok, nil
}

func (s *LevelDBStore) Set(key, value []byte) error {
	if err := s.db.Put(key, value, &opt.WriteOptions{Sync: true}); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

func (s *LevelDBStore) Delete(key []byte) error {
	if err := s.db.Delete(key, &opt.WriteOptions{Sync: true}); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

func (s *LevelDBStore) Iterator(start, end []byte) (Iterator, error) {
	it := s.db.NewIterator(&util.Range{Start: start, Limit: end}, nil)
	return newLevelIterator(it, it.First(), false)
}

func (s *LevelDBStore) ReverseIterator(start, end []byte) (Iterator, error) {
	it := s.db.NewIterator(&util.Range{Start: start, Limit: end}, nil)
	return newLevelIterator(it, it.Last(), true)
}

// NewBatch returns an atomic batch over the database.
func (s *LevelDBStore) NewBatch() Batch {
	return &levelBatch{db: s.db, batch: new(leveldb.Batch)}
}

// CacheWrap returns a scratch pad whose Write lands in one leveldb batch.
func (s *LevelDBStore) CacheWrap() KVCacheWrap {
	return NewBTreeCacheWrap(s, s.NewBatch(), nil)
}

func (s *LevelDBStore) Close() error {
	if err := s.db.Close(); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

type levelBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
}

func (b *levelBatch) Set(key, value []byte) error {
	b.batch.Put(key, value)
	return nil
}

func (b *levelBatch) Delete(key []byte) error {
	b.batch.Delete(key)
	return nil
}

func (b *levelBatch) Write() error {
	defer b.batch.Reset()
	if err := b.db.Write(b.batch, &opt.WriteOptions{Sync: true}); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

// levelIterator adapts a goleveldb iterator. goleveldb reuses its key
// and value buffers, so both are copied on read.
type levelIterator struct {
	it interface {
		Next() bool
		Prev() bool
		Key() []byte
		Value() []byte
		Release()
		Error() error
	}
	valid   bool
	reverse bool
}

func newLevelIterator(it interface {
	Next() bool
	Prev() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}, valid, reverse bool) (*levelIterator, error) {
	if err := it.Error(); err != nil {
		it.Release()
		return nil, errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return &levelIterator{it: it, valid: valid, reverse: reverse}, nil
}

func (l *levelIterator) Valid() bool {
	return l.valid
}

func (l *levelIterator) Next() error {
	if !l.valid {
		return errors.Wrap(errors.ErrDatabase, "iterator exhausted")
	}
	if l.reverse {
		l.valid = l.it.Prev()
	} else {
		l.valid = l.it.Next()
	}
	if err := l.it.Error(); err != nil {
		return errors.Wrap(errors.ErrDatabase, err.Error())
	}
	return nil
}

func (l *levelIterator) Key() []byte {
	if !l.valid {
		return nil
	}
	return append([]byte(nil), l.it.Key()...)
}

func (l *levelIterator) Value() []byte {
	if !l.valid {
		return nil
	}
	return append([]byte(nil), l.it.Value()...)
}

func (l *levelIterator) Close() {
	l.it.Release()
}
