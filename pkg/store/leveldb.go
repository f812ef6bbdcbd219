package store

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/syndtr/goleveldb/leveldb"
	"github.com/syndtr/goleveldb/leveldb/iterator"
	"github.com/syndtr/goleveldb/leveldb/opt"
	"github.com/syndtr/goleveldb/leveldb/util"
)

// LevelDB is a durable Store backed by goleveldb. Updates run inside a
// leveldb transaction so the multi-key commit is atomic on disk; a mutex
// serializes writers on top, matching the Memory backend's semantics.
type LevelDB struct {
	mu sync.Mutex
	db *leveldb.DB
}

// OpenLevelDB opens (or creates) the store at path
func OpenLevelDB(path string) (*LevelDB, error) {
	db, err := leveldb.OpenFile(path, nil)
	if err != nil {
		return nil, fmt.Errorf("store: open leveldb at %s: %w", path, err)
	}
	return &LevelDB{db: db}, nil
}

// View runs fn against a consistent snapshot
func (l *LevelDB) View(fn func(Tx) error) error {
	snap, err := l.db.GetSnapshot()
	if err != nil {
		return fmt.Errorf("store: snapshot: %w", err)
	}
	defer snap.Release()
	return fn(&ldbTx{reader: snap})
}

// Update runs fn inside a leveldb transaction, committing only on nil
func (l *LevelDB) Update(fn func(Tx) error) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	tr, err := l.db.OpenTransaction()
	if err != nil {
		return fmt.Errorf("store: open transaction: %w", err)
	}

	if err := fn(&ldbTx{reader: tr, writer: tr}); err != nil {
		tr.Discard()
		return err
	}
	if err := tr.Commit(); err != nil {
		return fmt.Errorf("store: commit: %w", err)
	}
	return nil
}

// Close closes the underlying database
func (l *LevelDB) Close() error {
	return l.db.Close()
}

// ldbReader is the read surface shared by snapshots and open transactions.
type ldbReader interface {
	Get(key []byte, ro *opt.ReadOptions) ([]byte, error)
	Has(key []byte, ro *opt.ReadOptions) (bool, error)
	NewIterator(slice *util.Range, ro *opt.ReadOptions) iterator.Iterator
}

type ldbTx struct {
	reader ldbReader
	writer *leveldb.Transaction
}

func (t *ldbTx) Get(key string, into interface{}) error {
	raw, err := t.reader.Get([]byte(key), nil)
	if err == leveldb.ErrNotFound {
		return ErrKeyNotFound
	}
	if err != nil {
		return fmt.Errorf("store: get %q: %w", key, err)
	}
	return json.Unmarshal(raw, into)
}

func (t *ldbTx) Put(key string, value interface{}) error {
	if t.writer == nil {
		return fmt.Errorf("store: put %q in read-only transaction", key)
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("store: marshal %q: %w", key, err)
	}
	return t.writer.Put([]byte(key), raw, nil)
}

func (t *ldbTx) Has(key string) (bool, error) {
	ok, err := t.reader.Has([]byte(key), nil)
	if err != nil {
		return false, fmt.Errorf("store: has %q: %w", key, err)
	}
	return ok, nil
}

func (t *ldbTx) Scan(prefix string, fn func(key string, value []byte) error) error {
	iter := t.reader.NewIterator(util.BytesPrefix([]byte(prefix)), nil)
	defer iter.Release()
	for iter.Next() {
		key := string(iter.Key())
		value := append([]byte(nil), iter.Value()...)
		if err := fn(key, value); err != nil {
			return err
		}
	}
	return iter.Error()
}
