package orm

import (
	"reflect"
	"regexp"

	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/errors"
)

// Model is implemented by any entity that can be stored using ModelBucket.
type Model interface {
	weave.Persistent
	Validate() error
}

// Indexer returns the value an entity is indexed under. Returning nil
// skips indexing for that entity.
type Indexer func(Model) ([]byte, error)

var isBucketName = regexp.MustCompile(`^[a-z_]{3,10}$`).MatchString

// ModelBucket stores models of a single type under a common key prefix.
type ModelBucket struct {
	name    string
	prefix  []byte
	model   reflect.Type
	indexes map[string]Indexer
}

// ModelBucketOption configures a ModelBucket at creation time.
type ModelBucketOption func(*ModelBucket)

// WithIndex adds a secondary index to the bucket.
func WithIndex(name string, idx Indexer) ModelBucketOption {
	return func(b *ModelBucket) {
		if _, ok := b.indexes[name]; ok {
			panic("index " + name + " declared twice")
		}
		b.indexes[name] = idx
	}
}

// NewModelBucket returns a bucket for models of the same type as example.
// The example is used only to learn the type that loaded entities are
// decoded into. It panics on an invalid name.
func NewModelBucket(name string, example Model, opts ...ModelBucketOption) ModelBucket {
	if !isBucketName(name) {
		panic("invalid bucket name: " + name)
	}
	t := reflect.TypeOf(example)
	if t.Kind() != reflect.Ptr {
		panic("model must be a pointer")
	}
	b := ModelBucket{
		name:    name,
		prefix:  []byte(name + ":"),
		model:   t.Elem(),
		indexes: make(map[string]Indexer),
	}
	for _, fn := range opts {
		fn(&b)
	}
	return b
}

// Name of the bucket.
func (b ModelBucket) Name() string {
	return b.name
}

// DBKey is the full key an entity is stored under.
func (b ModelBucket) DBKey(key []byte) []byte {
	return append(append([]byte(nil), b.prefix...), key...)
}

// One loads the entity stored under key into dest. ErrNotFound is returned
// if there is no such entity.
func (b ModelBucket) One(db weave.ReadOnlyKVStore, key []byte, dest Model) error {
	if len(key) == 0 {
		return errors.Wrap(errors.ErrEmpty, "key")
	}
	raw, err := db.Get(b.DBKey(key))
	if err != nil {
		return errors.Wrap(err, "cannot read from the database")
	}
	if raw == nil {
		return errors.Wrapf(errors.ErrNotFound, "%s %X", b.name, key)
	}
	if reflect.TypeOf(dest).Elem() != b.model {
		return errors.Wrapf(errors.ErrType, "%T cannot hold %s", dest, b.model)
	}
	if err := dest.Unmarshal(raw); err != nil {
		return errors.Wrapf(errors.ErrModel, "cannot unmarshal %s: %s", b.name, err)
	}
	return nil
}

// Has returns true if an entity exists under key.
func (b ModelBucket) Has(db weave.ReadOnlyKVStore, key []byte) (bool, error) {
	if len(key) == 0 {
		return false, errors.Wrap(errors.ErrEmpty, "key")
	}
	ok, err := db.Has(b.DBKey(key))
	if err != nil {
		return false, errors.Wrap(err, "cannot read from the database")
	}
	return ok, nil
}

// Put validates and stores m under key, replacing any previous entity and
// its index entries.
func (b ModelBucket) Put(db weave.KVStore, key []byte, m Model) error {
	if len(key) == 0 {
		return errors.Wrap(errors.ErrEmpty, "key")
	}
	if err := m.Validate(); err != nil {
		return errors.Wrap(err, "invalid model")
	}
	if err := b.dropIndexes(db, key); err != nil {
		return err
	}
	raw, err := m.Marshal()
	if err != nil {
		return errors.Wrap(err, "cannot marshal")
	}
	if err := db.Set(b.DBKey(key), raw); err != nil {
		return errors.Wrap(err, "cannot store in the database")
	}
	for name, idx := range b.indexes {
		val, err := idx(m)
		if err != nil {
			return errors.Wrapf(err, "index %s", name)
		}
		if val == nil {
			continue
		}
		if err := db.Set(b.indexKey(name, val, key), key); err != nil {
			return errors.Wrapf(err, "index %s", name)
		}
	}
	return nil
}

// Delete removes the entity stored under key together with its index
// entries. ErrNotFound is returned if there is no such entity.
func (b ModelBucket) Delete(db weave.KVStore, key []byte) error {
	ok, err := b.Has(db, key)
	if err != nil {
		return err
	}
	if !ok {
		return errors.Wrapf(errors.ErrNotFound, "%s %X", b.name, key)
	}
	if err := b.dropIndexes(db, key); err != nil {
		return err
	}
	return db.Delete(b.DBKey(key))
}

// dropIndexes removes all index entries of the entity currently stored
// under key, if any.
func (b ModelBucket) dropIndexes(db weave.KVStore, key []byte) error {
	if len(b.indexes) == 0 {
		return nil
	}
	old := reflect.New(b.model).Interface().(Model)
	switch err := b.One(db, key, old); {
	case errors.ErrNotFound.Is(err):
		return nil
	case err != nil:
		return err
	}
	for name, idx := range b.indexes {
		val, err := idx(old)
		if err != nil {
			return errors.Wrapf(err, "index %s", name)
		}
		if val == nil {
			continue
		}
		if err := db.Delete(b.indexKey(name, val, key)); err != nil {
			return errors.Wrapf(err, "index %s", name)
		}
	}
	return nil
}

// ByIndex returns the keys of all entities indexed under value, in key
// order.
func (b ModelBucket) ByIndex(db weave.ReadOnlyKVStore, index string, value []byte) ([][]byte, error) {
	if _, ok := b.indexes[index]; !ok {
		return nil, errors.Wrapf(errors.ErrInput, "unknown index %q", index)
	}
	models, err := prefixScan(db, b.indexPrefix(index, value))
	if err != nil {
		return nil, err
	}
	keys := make([][]byte, len(models))
	for i, m := range models {
		keys[i] = m.Value
	}
	return keys, nil
}

// indexKey is "_i.<bucket>_<index>:" followed by the length prefixed value
// and the primary key. The length prefix keeps values that are a prefix
// of another value apart.
func (b ModelBucket) indexKey(index string, value, key []byte) []byte {
	return append(b.indexPrefix(index, value), key...)
}

func (b ModelBucket) indexPrefix(index string, value []byte) []byte {
	res := []byte("_i." + b.name + "_" + index + ":")
	res = append(res, byte(len(value)))
	return append(res, value...)
}

// prefixScan loads all pairs whose key starts with prefix. The prefix is
// stripped from the returned keys.
func prefixScan(db weave.ReadOnlyKVStore, prefix []byte) ([]weave.Model, error) {
	start, end := prefixRange(prefix)
	iter, err := db.Iterator(start, end)
	if err != nil {
		return nil, errors.Wrap(err, "cannot iterate")
	}
	defer iter.Close()

	var res []weave.Model
	for iter.Valid() {
		key := iter.Key()
		res = append(res, weave.Pair(key[len(prefix):], iter.Value()))
		if err := iter.Next(); err != nil {
			return nil, errors.Wrap(err, "cannot iterate")
		}
	}
	return res, nil
}

// prefixRange returns the [start, end) range covering all keys with
// given prefix. end is nil if prefix consists of 0xFF bytes only.
func prefixRange(prefix []byte) ([]byte, []byte) {
	start := append([]byte(nil), prefix...)
	end := append([]byte(nil), prefix...)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] < 0xFF {
			end[i]++
			return start, end[:i+1]
		}
	}
	return start, nil
}
