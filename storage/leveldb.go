package storage

import (
	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/util"

	"github.com/soliduschain/node/errs"
)

// LevelDB is the DB implementation used in production, wrapping
// github.com/syndtr/goleveldb.
type LevelDB struct {
	db *leveldb.DB
}

// OpenLevelDB opens (creating if absent) a LevelDB at path.
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, errs.WrapStorage(err, "open leveldb at %s", path)
	}
	return &LevelDB{db: db}, nil
}

func (l *LevelDB) Get(key []byte) ([]byte, error) {
	v, err := l.db.Get(key, nil)
	if err == leveldb.ErrNotFound {
		return nil, errs.NotFound("key %q", key)
	}
	if err != nil {
		return nil, errs.WrapStorage(err, "get %q", key)
	}
	return v, nil
}

func (l *LevelDB) Set(key, value []byte) error {
	if err := l.db.Put(key, value, nil); err != nil {
		return errs.WrapStorage(err, "set %q", key)
	}
	return nil
}

func (l *LevelDB) Delete(key []byte) error {
	if err := l.db.Delete(key, nil); err != nil {
		return errs.WrapStorage(err, "delete %q", key)
	}
	return nil
}

func (l *LevelDB) NewIterator(prefix []byte) Iterator {
	return &levelIterator{it: l.db.NewIterator(util.BytesPrefix(prefix), nil)}
}

func (l *LevelDB) NewBatch() Batch {
	return &levelBatch{db: l.db, batch: new(leveldb.Batch)}
}

func (l *LevelDB) Close() error {
	if err := l.db.Close(); err != nil {
		return errs.WrapStorage(err, "close leveldb")
	}
	return nil
}

type levelIterator struct {
	it iterator
}

// iterator narrows *leveldb.Iterator to what we consume, so it can be faked
// in tests without importing goleveldb.
type iterator interface {
	Next() bool
	Key() []byte
	Value() []byte
	Release()
	Error() error
}

func (i *levelIterator) Next() bool      { return i.it.Next() }
func (i *levelIterator) Key() []byte     { return append([]byte(nil), i.it.Key()...) }
func (i *levelIterator) Value() []byte   { return append([]byte(nil), i.it.Value()...) }
func (i *levelIterator) Release()        { i.it.Release() }
func (i *levelIterator) Error() error    { return i.it.Error() }

type levelBatch struct {
	db    *leveldb.DB
	batch *leveldb.Batch
}

func (b *levelBatch) Set(key, value []byte) { b.batch.Put(key, value) }
func (b *levelBatch) Delete(key []byte)     { b.batch.Delete(key) }
func (b *levelBatch) Reset()                { b.batch.Reset() }

func (b *levelBatch) Write() error {
	if err := b.db.Write(b.batch, nil); err != nil {
		return errs.WrapStorage(err, "write batch")
	}
	return nil
}
