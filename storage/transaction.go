package storage

import (
	"bytes"

	"github.com/cockroachdb/pebble"

	"github.com/sinkdb/core/corerr"
)

// Transaction is a single atomic unit of work against an Environment. A
// read-write Transaction batches every Set/Delete in memory and applies
// them all at once on Commit; a read-only Transaction pins a consistent
// snapshot of the environment for the duration of the call that opened it.
//
// A Transaction may touch several Database handles from the same
// Environment; all of those writes land in the same underlying Pebble
// batch, so they commit - or fail to commit - together. This is how entity
// writes and secondary-index maintenance stay consistent with each other.
type Transaction struct {
	env      *Environment
	writable bool
	batch    *pebble.Batch
	snapshot *pebble.Snapshot
}

// Begin starts a new Transaction. A writable transaction must be ended with
// Commit or Rollback; a read-only transaction must be ended with Rollback
// (which, for a read-only transaction, only releases the snapshot).
func (e *Environment) Begin(writable bool) (*Transaction, error) {
	e.mu.Lock()
	pdb := e.db
	e.mu.Unlock()
	if pdb == nil {
		return nil, corerr.New(corerr.Internal, "transaction requested on closed environment")
	}

	t := &Transaction{env: e, writable: writable}
	if writable {
		t.batch = pdb.NewBatch()
	} else {
		t.snapshot = pdb.NewSnapshot()
	}
	return t, nil
}

// View runs fn within a read-only Transaction and always releases it
// afterwards, regardless of the error fn returns.
func (e *Environment) View(fn func(*Transaction) error) error {
	txn, err := e.Begin(false)
	if err != nil {
		return err
	}
	defer txn.Rollback()
	return fn(txn)
}

// Update runs fn within a read-write Transaction, committing on success and
// rolling back if fn returns an error.
func (e *Environment) Update(fn func(*Transaction) error) error {
	txn, err := e.Begin(true)
	if err != nil {
		return err
	}
	if err := fn(txn); err != nil {
		txn.Rollback()
		return err
	}
	return txn.Commit()
}

// Commit applies every write staged in the transaction. It is only valid
// for a writable transaction.
func (t *Transaction) Commit() error {
	if !t.writable {
		return corerr.New(corerr.Internal, "commit called on read-only transaction")
	}
	if err := t.batch.Commit(pebble.Sync); err != nil {
		return corerr.Wrap(corerr.Internal, "commit transaction", err)
	}
	return t.batch.Close()
}

// Rollback discards the transaction. It is always safe to call, including
// after Commit has already run, and is typically deferred.
func (t *Transaction) Rollback() {
	if t.writable && t.batch != nil {
		_ = t.batch.Close()
		t.batch = nil
		return
	}
	if t.snapshot != nil {
		_ = t.snapshot.Close()
		t.snapshot = nil
	}
}

// Get reads the value for key in db. The boolean result reports whether the
// key was found.
func (t *Transaction) Get(db *Database, key []byte) ([]byte, bool, error) {
	pk := dbPrefix(db.name, key)

	var value []byte
	var closer interface{ Close() error }
	var err error
	if t.writable {
		value, closer, err = t.batch.Get(pk)
	} else {
		value, closer, err = t.snapshot.Get(pk)
	}
	if err == pebble.ErrNotFound {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, corerr.Wrap(corerr.Internal, "get", err)
	}
	out := make([]byte, len(value))
	copy(out, value)
	_ = closer.Close()
	return out, true, nil
}

// Set writes key -> value in db. Only valid on a writable transaction.
func (t *Transaction) Set(db *Database, key, value []byte) error {
	if !t.writable {
		return corerr.New(corerr.Internal, "set called on read-only transaction")
	}
	if err := t.batch.Set(dbPrefix(db.name, key), value, nil); err != nil {
		return corerr.Wrap(corerr.Internal, "set", err)
	}
	return nil
}

// Delete removes key from db. Only valid on a writable transaction.
func (t *Transaction) Delete(db *Database, key []byte) error {
	if !t.writable {
		return corerr.New(corerr.Internal, "delete called on read-only transaction")
	}
	if err := t.batch.Delete(dbPrefix(db.name, key), nil); err != nil {
		return corerr.Wrap(corerr.Internal, "delete", err)
	}
	return nil
}

// Entry is one key/value pair yielded by Scan, with the db-relative key
// (the sub-database prefix already stripped off).
type Entry struct {
	Key   []byte
	Value []byte
}

// reader is satisfied by both pebble.Batch and pebble.Snapshot for the
// iterator construction Scan and FindLatest need.
type reader interface {
	NewIter(o *pebble.IterOptions) (*pebble.Iterator, error)
}

func (t *Transaction) reader() reader {
	if t.writable {
		return t.batch
	}
	return t.snapshot
}

// Scan iterates every key in db whose db-relative key has the given
// prefix, in ascending order, calling fn for each. Iteration stops early if
// fn returns false. The sub-database's __internal_dbname marker is skipped.
func (t *Transaction) Scan(db *Database, prefix []byte, fn func(Entry) bool) error {
	lower := dbPrefix(db.name, prefix)
	upper := append(append([]byte{}, lower...), 0xFF)

	it, err := t.reader().NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return corerr.Wrap(corerr.Internal, "scan", err)
	}
	defer it.Close()

	prefixLen := dbPrefixLen
	for it.SeekGE(lower); it.Valid(); it.Next() {
		k := it.Key()
		if !bytes.HasPrefix(k, lower) {
			break
		}
		if bytes.Equal(k[prefixLen:], []byte(internalDBNameMarker)) {
			continue
		}
		v := it.Value()
		entry := Entry{
			Key:   append([]byte{}, k[prefixLen:]...),
			Value: append([]byte{}, v...),
		}
		if !fn(entry) {
			break
		}
	}
	return it.Close()
}

// FindLatest scans every key under prefix in db and returns the
// lexicographically greatest one. Since this module always appends a
// fixed-width revision to a key's prefix, the lexicographically greatest
// key is also the most recent revision - this is how ReadLatest and
// MaxRevision avoid a full history scan. The sub-database's
// __internal_dbname marker is never returned.
func (t *Transaction) FindLatest(db *Database, prefix []byte) (Entry, bool, error) {
	lower := dbPrefix(db.name, prefix)
	upper := append(append([]byte{}, lower...), 0xFF)

	it, err := t.reader().NewIter(&pebble.IterOptions{LowerBound: lower, UpperBound: upper})
	if err != nil {
		return Entry{}, false, corerr.Wrap(corerr.Internal, "find latest", err)
	}
	defer it.Close()

	prefixLen := dbPrefixLen
	if !it.SeekLT(upper) || !bytes.HasPrefix(it.Key(), lower) {
		return Entry{}, false, nil
	}
	if bytes.Equal(it.Key()[prefixLen:], []byte(internalDBNameMarker)) {
		if !it.Prev() || !bytes.HasPrefix(it.Key(), lower) {
			return Entry{}, false, nil
		}
	}
	k := it.Key()
	v := it.Value()
	return Entry{
		Key:   append([]byte{}, k[prefixLen:]...),
		Value: append([]byte{}, v...),
	}, true, nil
}
