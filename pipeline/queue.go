package pipeline

import (
	"bytes"
	"encoding/binary"
	"encoding/gob"
	"io"
	"os"
	"sync"

	"github.com/sinkdb/core/corekey"
	"github.com/sinkdb/core/corerr"
	"github.com/sinkdb/core/entitystore"
)

// queuedCommand is the durable, on-disk representation of a Command. Only
// the fields needed to redo the write survive a restart; pipeline state and
// in-flight errors are runtime-only.
type queuedCommand struct {
	ID        corekey.Identifier
	Resource  string
	Type      string
	Operation entitystore.Operation
	Payload   []byte // the type's Adaptor.Encode of the payload after preprocessing
}

// DurableQueue is an append-only log of commands, framed the way a
// replicated log frames its entries: a fixed-width length prefix followed
// by the encoded record. Unlike an in-memory replicated log, entries here
// are written straight to a file. The pipeline appends each command inside
// the transaction that commits it, and records stay in the log, committed
// or not, until the next Truncate.
type DurableQueue struct {
	mu   sync.Mutex
	file *os.File
}

// OpenDurableQueue opens (creating if necessary) the append log at path.
func OpenDurableQueue(path string) (*DurableQueue, error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_RDWR|os.O_APPEND, 0o644)
	if err != nil {
		return nil, corerr.Wrap(corerr.Misconfiguration, "open durable queue at "+path, err)
	}
	return &DurableQueue{file: f}, nil
}

// Append writes cmd to the end of the log as one length-prefixed record.
func (q *DurableQueue) Append(cmd queuedCommand) error {
	var buf bytes.Buffer
	if err := gob.NewEncoder(&buf).Encode(cmd); err != nil {
		return corerr.Wrap(corerr.Internal, "encode queued command", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	var lenPrefix [4]byte
	binary.BigEndian.PutUint32(lenPrefix[:], uint32(buf.Len()))
	if _, err := q.file.Write(lenPrefix[:]); err != nil {
		return corerr.Wrap(corerr.Internal, "append queue length prefix", err)
	}
	if _, err := q.file.Write(buf.Bytes()); err != nil {
		return corerr.Wrap(corerr.Internal, "append queue record", err)
	}
	return nil
}

// Replay reads every record in the log from the beginning and calls fn for
// each, in the order they were appended. It is used at startup to redo
// every command still in the log, whether or not it reached Committed
// before the last shutdown.
func (q *DurableQueue) Replay(fn func(queuedCommand) error) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	if _, err := q.file.Seek(0, io.SeekStart); err != nil {
		return corerr.Wrap(corerr.Internal, "seek durable queue", err)
	}
	defer q.file.Seek(0, io.SeekEnd)

	for {
		var lenPrefix [4]byte
		_, err := io.ReadFull(q.file, lenPrefix[:])
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return corerr.Wrap(corerr.Corruption, "read durable queue length prefix", err)
		}
		size := binary.BigEndian.Uint32(lenPrefix[:])
		record := make([]byte, size)
		if _, err := io.ReadFull(q.file, record); err != nil {
			return corerr.Wrap(corerr.Corruption, "read durable queue record", err)
		}
		var cmd queuedCommand
		if err := gob.NewDecoder(bytes.NewReader(record)).Decode(&cmd); err != nil {
			return corerr.Wrap(corerr.Corruption, "decode durable queue record", err)
		}
		if err := fn(cmd); err != nil {
			return err
		}
	}
}

// Truncate discards every record currently in the log. Pipeline.ReplayQueue
// calls it once it has redone everything the log held at startup.
func (q *DurableQueue) Truncate() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	if err := q.file.Truncate(0); err != nil {
		return corerr.Wrap(corerr.Internal, "truncate durable queue", err)
	}
	_, err := q.file.Seek(0, io.SeekStart)
	if err != nil {
		return corerr.Wrap(corerr.Internal, "seek durable queue after truncate", err)
	}
	return nil
}

// Close closes the underlying file.
func (q *DurableQueue) Close() error {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.file.Close()
}
