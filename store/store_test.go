package store

import (
	"bytes"
	"crypto/rand"
	"sort"
	"testing"

	"github.com/stretchr/testify/require"
)

type storeConstructor func(t testing.TB) CacheableKVStore

func backends() map[string]storeConstructor {
	return map[string]storeConstructor{
		"memory": func(testing.TB) CacheableKVStore {
			return MemStore()
		},
		"leveldb": func(t testing.TB) CacheableKVStore {
			db, err := MemLevelDB()
			require.NoError(t, err)
			if c, ok := t.(interface{ Cleanup(func()) }); ok {
				c.Cleanup(func() { db.Close() })
			}
			return db
		},
	}
}

func TestCacheWrapGetSet(t *testing.T) {
	for name, makeBase := range backends() {
		t.Run(name, func(t *testing.T) {
			base := makeBase(t)

			k, v := []byte("mint"), []byte("decimals")
			assertGetHas(t, base, k, nil, false)
			require.NoError(t, base.Set(k, v))
			assertGetHas(t, base, k, v, true)

			cache := base.CacheWrap()
			assertGetHas(t, cache, k, v, true)

			k2, v2 := []byte("vault"), []byte("balance")
			require.NoError(t, cache.Set(k2, v2))
			assertGetHas(t, cache, k2, v2, true)
			assertGetHas(t, base, k2, nil, false)

			require.NoError(t, cache.Write())
			assertGetHas(t, base, k2, v2, true)

			// discarded changes never reach the base
			k3 := []byte("escrow")
			discarded := base.CacheWrap()
			require.NoError(t, discarded.Set(k3, []byte("open")))
			require.NoError(t, discarded.Delete(k))
			discarded.Discard()
			assertGetHas(t, base, k3, nil, false)
			assertGetHas(t, base, k, v, true)

			written := base.CacheWrap()
			require.NoError(t, written.Delete(k))
			require.NoError(t, written.Write())
			assertGetHas(t, base, k, nil, false)
			assertGetHas(t, base, k2, v2, true)
		})
	}
}

func TestCacheWrapNested(t *testing.T) {
	for name, makeBase := range backends() {
		t.Run(name, func(t *testing.T) {
			base := makeBase(t)
			outer := base.CacheWrap()
			inner := outer.CacheWrap()

			require.NoError(t, inner.Set([]byte("a"), []byte("1")))
			assertGetHas(t, outer, []byte("a"), nil, false)
			require.NoError(t, inner.Write())
			assertGetHas(t, outer, []byte("a"), []byte("1"), true)
			assertGetHas(t, base, []byte("a"), nil, false)
			require.NoError(t, outer.Write())
			assertGetHas(t, base, []byte("a"), []byte("1"), true)
		})
	}
}

func TestCacheConflicts(t *testing.T) {
	ks := randKeys(4, 16)
	vs := randKeys(4, 40)

	for name, makeBase := range backends() {
		t.Run(name, func(t *testing.T) {
			parent := makeBase(t)
			applyAll(t, parent, SetOp(ks[1], vs[1]), SetOp(ks[2], vs[2]))

			child := parent.CacheWrap()
			applyAll(t, child, SetOp(ks[1], vs[3]), SetOp(ks[3], vs[0]), DelOp(ks[2]))

			assertGetHas(t, parent, ks[1], vs[1], true)
			assertGetHas(t, parent, ks[2], vs[2], true)
			assertGetHas(t, parent, ks[3], nil, false)

			assertGetHas(t, child, ks[1], vs[3], true)
			assertGetHas(t, child, ks[2], nil, false)
			assertGetHas(t, child, ks[3], vs[0], true)

			require.NoError(t, child.Write())
			assertGetHas(t, parent, ks[1], vs[3], true)
			assertGetHas(t, parent, ks[2], nil, false)
			assertGetHas(t, parent, ks[3], vs[0], true)
		})
	}
}

func TestIterator(t *testing.T) {
	ms := randModels(6, 20, 64)
	a, a2, b, b2, c, d := ms[0], ms[1], ms[2], ms[3], ms[4], ms[5]
	a2.Key = a.Key
	b2.Key = b.Key

	abc := sortModels([]Model{a, b, c})
	overwritten := sortModels([]Model{a2, b2, c, d})

	toSet := randModels(40, 8, 32)
	toDel := randModels(10, 8, 32)
	parentSet := randModels(40, 8, 32)
	merged := sortModels(append(append([]Model{}, toSet...), parentSet...))

	cases := map[string]struct {
		parent  []Op
		child   []Op
		queries []rangeQuery
	}{
		"child only": {
			child: setOps(a, b, c),
			queries: []rangeQuery{
				{nil, nil, false, abc},
				{abc[1].Key, abc[2].Key, false, abc[1:2]},
				{nil, nil, true, reverse(abc)},
			},
		},
		"parent only": {
			parent: setOps(a, b, c),
			queries: []rangeQuery{
				{nil, nil, false, abc},
				{abc[1].Key, nil, false, abc[1:]},
				{nil, abc[2].Key, true, reverse(abc[:2])},
			},
		},
		"child overwrites parent": {
			parent: setOps(a, b, c),
			child:  setOps(a2, b2, d),
			queries: []rangeQuery{
				{nil, nil, false, overwritten},
				{overwritten[1].Key, overwritten[3].Key, false, overwritten[1:3]},
				{nil, nil, true, reverse(overwritten)},
			},
		},
		"child deletes hide parent": {
			parent: setOps(a, c, d),
			child:  delOps(a, b, d),
			queries: []rangeQuery{
				{nil, nil, false, []Model{c}},
				{nil, c.Key, false, nil},
				{nil, nil, true, []Model{c}},
			},
		},
		"random merge": {
			parent: append(setOps(parentSet...), delOps(toDel...)...),
			child:  append(setOps(toSet...), delOps(toDel...)...),
			queries: []rangeQuery{
				{nil, nil, false, merged},
				{merged[10].Key, nil, false, merged[10:]},
				{nil, merged[70].Key, false, merged[:70]},
				{merged[17].Key, merged[28].Key, false, merged[17:28]},
				{nil, nil, true, reverse(merged)},
				{merged[34].Key, nil, true, reverse(merged[34:])},
				{merged[6].Key, merged[26].Key, true, reverse(merged[6:26])},
			},
		},
	}

	for name, makeBase := range backends() {
		for testName, tc := range cases {
			t.Run(name+"/"+testName, func(t *testing.T) {
				base := makeBase(t)
				applyAll(t, base, tc.parent...)
				child := base.CacheWrap()
				applyAll(t, child, tc.child...)

				for _, q := range tc.queries {
					q.verify(t, child)
				}
			})
		}
	}
}

func TestNonAtomicBatchDelaysWrites(t *testing.T) {
	base := MemStore()
	batch := NewNonAtomicBatch(base)
	require.NoError(t, batch.Set([]byte("k"), []byte("v")))
	assertGetHas(t, base, []byte("k"), nil, false)
	require.NoError(t, batch.Write())
	assertGetHas(t, base, []byte("k"), []byte("v"), true)
}

func TestSliceIteratorExhausted(t *testing.T) {
	it := NewSliceIterator([]Model{Pair([]byte("a"), []byte("1"))})
	require.True(t, it.Valid())
	require.NoError(t, it.Next())
	require.False(t, it.Valid())
	require.Nil(t, it.Key())
	require.Error(t, it.Next())
}

type rangeQuery struct {
	start    []byte
	end      []byte
	reverse  bool
	expected []Model
}

func (q rangeQuery) verify(t testing.TB, kv ReadOnlyKVStore) {
	t.Helper()
	var (
		iter Iterator
		err  error
	)
	if q.reverse {
		iter, err = kv.ReverseIterator(q.start, q.end)
	} else {
		iter, err = kv.Iterator(q.start, q.end)
	}
	require.NoError(t, err)
	defer iter.Close()

	var got []Model
	for ; iter.Valid(); require.NoError(t, iter.Next()) {
		got = append(got, Pair(iter.Key(), iter.Value()))
	}
	require.Equal(t, len(q.expected), len(got))
	for i := range q.expected {
		require.Equal(t, q.expected[i].Key, got[i].Key, "key %d", i)
		require.Equal(t, q.expected[i].Value, got[i].Value, "value %d", i)
	}
}

func assertGetHas(t testing.TB, kv ReadOnlyKVStore, key, val []byte, has bool) {
	t.Helper()
	got, err := kv.Get(key)
	require.NoError(t, err)
	require.Equal(t, val, got)
	exists, err := kv.Has(key)
	require.NoError(t, err)
	require.Equal(t, has, exists)
}

func applyAll(t testing.TB, out SetDeleter, ops ...Op) {
	t.Helper()
	for _, op := range ops {
		require.NoError(t, op.Apply(out))
	}
}

func randKeys(count, size int) [][]byte {
	res := make([][]byte, count)
	for i := range res {
		res[i] = make([]byte, size)
		_, _ = rand.Read(res[i])
	}
	return res
}

func randModels(count, keySize, valueSize int) []Model {
	keys := randKeys(count, keySize)
	values := randKeys(count, valueSize)
	models := make([]Model, count)
	for i := range models {
		models[i] = Pair(keys[i], values[i])
	}
	return models
}

func reverse(models []Model) []Model {
	res := make([]Model, len(models))
	for i, m := range models {
		res[len(models)-1-i] = m
	}
	return res
}

func sortModels(models []Model) []Model {
	res := append([]Model(nil), models...)
	sort.Slice(res, func(i, j int) bool {
		return bytes.Compare(res[i].Key, res[j].Key) < 0
	})
	return res
}

func setOps(ms ...Model) []Op {
	res := make([]Op, len(ms))
	for i, m := range ms {
		res[i] = SetOp(m.Key, m.Value)
	}
	return res
}

func delOps(ms ...Model) []Op {
	res := make([]Op, len(ms))
	for i, m := range ms {
		res[i] = DelOp(m.Key)
	}
	return res
}
