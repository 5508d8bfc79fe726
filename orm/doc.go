/*
Package orm maps ledger entities onto the KVStore.

Every entity type lives in its own bucket. A bucket owns a key prefix, so
entities of different types never collide, and may maintain any number of
secondary indexes that are kept up to date on every Put and Delete.

Entities are anything that can serialize itself and validate its own
state (see Model). The orm never interprets the serialized bytes.
*/
package orm
