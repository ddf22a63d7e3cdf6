package storage

import (
	"encoding/binary"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/sinkdb/core/corelog"
	"github.com/sinkdb/core/corerr"
)

var log = corelog.Get("storage")

// Environment owns a single Pebble instance on disk and hands out
// Transactions and Databases over it. Exactly one Environment exists per
// data directory for the lifetime of a process; Open reuses an existing
// one and bumps its reference count rather than reopening the directory.
type Environment struct {
	path string
	db   *pebble.DB

	mu       sync.Mutex
	refCount int

	dbNames *xsync.MapOf[string, struct{}]
}

var environments = xsync.NewMapOf[string, *Environment]()

// Open returns the Environment for path, opening the underlying Pebble
// instance on first use. Every call must be matched by exactly one call to
// Close.
func Open(path string) (*Environment, error) {
	for {
		env, _ := environments.LoadOrCompute(path, func() *Environment {
			return &Environment{path: path}
		})

		env.mu.Lock()
		if env.db == nil && env.refCount == 0 {
			// We won the race to initialize this entry.
			pdb, err := pebble.Open(path, &pebble.Options{})
			if err != nil {
				env.mu.Unlock()
				environments.Delete(path)
				return nil, corerr.Wrap(corerr.Misconfiguration, "open pebble store at "+path, err)
			}
			env.db = pdb
			env.dbNames = xsync.NewMapOf[string, struct{}]()
			env.refCount = 1
			env.mu.Unlock()
			log.Infof("opened environment at %s", path)
			return env, nil
		}
		if env.db == nil {
			// Another goroutine is mid-initialization and lost, or is
			// mid-teardown; retry against the registry.
			env.mu.Unlock()
			continue
		}
		env.refCount++
		env.mu.Unlock()
		return env, nil
	}
}

// Close releases one reference to the Environment. Once the last reference
// is released the underlying Pebble instance is closed and the path may be
// reopened fresh by a later Open.
func (e *Environment) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	e.refCount--
	if e.refCount > 0 {
		return nil
	}

	err := e.db.Close()
	e.db = nil
	environments.Delete(e.path)
	if err != nil {
		return corerr.Wrap(corerr.Internal, "close pebble store", err)
	}
	log.Infof("closed environment at %s", e.path)
	return nil
}

// Database opens (or reopens) the named sub-database within this
// environment. Opening the same name twice returns equivalent handles over
// the same underlying prefix; Database itself carries no state beyond its
// name and a back-reference to the environment.
func (e *Environment) Database(name string) (*Database, error) {
	e.mu.Lock()
	pdb := e.db
	e.mu.Unlock()
	if pdb == nil {
		return nil, corerr.New(corerr.Internal, "database requested on closed environment")
	}

	e.dbNames.LoadOrStore(name, struct{}{})

	marker := dbPrefix(name, []byte(internalDBNameMarker))
	if value, closer, err := pdb.Get(marker); err == nil {
		stored := string(value)
		_ = closer.Close()
		if stored != name {
			return nil, corerr.New(corerr.Misconfiguration, fmt.Sprintf(
				"opened the wrong database: requested %q but its marker records %q", name, stored,
			))
		}
	} else if err == pebble.ErrNotFound {
		if werr := pdb.Set(marker, []byte(name), pebble.Sync); werr != nil {
			return nil, corerr.Wrap(corerr.Internal, "mark sub-database "+name, werr)
		}
	} else {
		return nil, corerr.Wrap(corerr.Internal, "probe sub-database "+name, err)
	}

	return &Database{name: name, env: e}, nil
}

// internalDBNameMarker is the reserved key suffix used to record that a
// sub-database name has been opened at least once.
const internalDBNameMarker = "__internal_dbname"

// dbPrefixLen is the fixed width, in bytes, of the hashed prefix dbPrefix
// derives from a sub-database name.
const dbPrefixLen = 8

// dbPrefix builds the physical key for logical key k inside sub-database
// name: hash(name) + k. The name itself is hashed to a fixed-width prefix
// rather than embedded literally, so every sub-database's keys occupy a
// constant-width slot regardless of how long its name is, and the
// __internal_dbname marker stored at that slot is checked against an
// identity (the hash) distinct from the value it is compared against (the
// name) - a collision between two different names hashing to the same
// prefix is exactly the "wrong database" condition Database is meant to
// detect.
func dbPrefix(name string, k []byte) []byte {
	out := make([]byte, 0, dbPrefixLen+len(k))
	var h [dbPrefixLen]byte
	binary.BigEndian.PutUint64(h[:], hashName(name))
	out = append(out, h[:]...)
	out = append(out, k...)
	return out
}

// hashName hashes a sub-database name to a uint64 using FNV-1a.
func hashName(name string) uint64 {
	const offset64 = 14695981039346656037
	const prime64 = 1099511628211

	h := uint64(offset64)
	for i := 0; i < len(name); i++ {
		h ^= uint64(name[i])
		h *= prime64
	}
	return h
}
