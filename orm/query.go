package orm

import (
	"github.com/iov-one/weave-escrow"
	"github.com/iov-one/weave-escrow/errors"
)

// Register exposes the bucket under path. The plain path accepts a key
// (weave.KeyQueryMod) or a key prefix (weave.PrefixQueryMod). Every index
// is served at path/<index name> and looks up entities by index value.
func (b ModelBucket) Register(path string, r weave.QueryRouter) {
	r.Register(path, primaryQuery{b})
	for name := range b.indexes {
		r.Register(path+"/"+name, indexQuery{bucket: b, index: name})
	}
}

type primaryQuery struct {
	bucket ModelBucket
}

func (q primaryQuery) Query(db weave.ReadOnlyKVStore, mod string, data []byte) ([]weave.Model, error) {
	switch mod {
	case weave.KeyQueryMod:
		raw, err := db.Get(q.bucket.DBKey(data))
		if err != nil || raw == nil {
			return nil, err
		}
		return []weave.Model{weave.Pair(data, raw)}, nil
	case weave.PrefixQueryMod:
		return prefixScan(db, q.bucket.DBKey(data))
	default:
		return nil, errors.Wrapf(errors.ErrInput, "unknown mod: %s", mod)
	}
}

type indexQuery struct {
	bucket ModelBucket
	index  string
}

func (q indexQuery) Query(db weave.ReadOnlyKVStore, mod string, data []byte) ([]weave.Model, error) {
	if mod != weave.KeyQueryMod {
		return nil, errors.Wrapf(errors.ErrInput, "index query does not support %q", mod)
	}
	keys, err := q.bucket.ByIndex(db, q.index, data)
	if err != nil {
		return nil, err
	}
	res := make([]weave.Model, 0, len(keys))
	for _, key := range keys {
		raw, err := db.Get(q.bucket.DBKey(key))
		if err != nil {
			return nil, err
		}
		res = append(res, weave.Pair(key, raw))
	}
	return res, nil
}
