// Package journal is the ordered, hash-chained command log that fixes the
// order in which ledger commands are applied. It is backed by pebble.
package journal

import (
	"bytes"
	"encoding/binary"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/vfs"
	"golang.org/x/crypto/blake2b"
)

var (
	ErrClosed  = errors.New("journal: closed")
	ErrCorrupt = errors.New("journal: hash chain broken")
	ErrEmpty   = errors.New("journal: empty command")
)

const (
	prefixEntry byte = iota + 1
	prefixMeta
)

var headKey = []byte{prefixMeta, 'h', 'e', 'a', 'd'}

type Hash [32]byte

func (h Hash) String() string { return hex.EncodeToString(h[:]) }

func (h Hash) MarshalText() ([]byte, error) { return []byte(h.String()), nil }

func (h *Hash) UnmarshalText(b []byte) error {
	if len(b) != hex.EncodedLen(len(h)) {
		return fmt.Errorf("journal: hash must be %d hex characters", hex.EncodedLen(len(h)))
	}
	_, err := hex.Decode(h[:], b)
	return err
}

// Entry is one journaled command. Hash commits to the previous hash, the
// sequence number and the command bytes.
type Entry struct {
	Seq      uint64          `json:"seq"`
	PrevHash Hash            `json:"prev_hash"`
	Hash     Hash            `json:"hash"`
	Command  json.RawMessage `json:"command"`
}

// Head is the position of the last appended entry. The zero Head is an
// empty journal.
type Head struct {
	Seq  uint64 `json:"seq"`
	Hash Hash   `json:"hash"`
}

type Journal struct {
	db     *pebble.DB
	mu     sync.Mutex
	head   Head
	closed bool
}

type options struct {
	fs vfs.FS
}

type Option func(*options)

// WithFS opens the journal on the given filesystem, e.g. vfs.NewMem() in
// tests.
func WithFS(fs vfs.FS) Option {
	return func(o *options) { o.fs = fs }
}

func Open(path string, opts ...Option) (*Journal, error) {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	pebbleOpts := &pebble.Options{
		Cache:        pebble.NewCache(16 * 1024 * 1024),
		MemTableSize: 8 * 1024 * 1024,
	}
	if o.fs != nil {
		pebbleOpts.FS = o.fs
	}
	defer pebbleOpts.Cache.Unref()

	db, err := pebble.Open(path, pebbleOpts)
	if err != nil {
		return nil, fmt.Errorf("journal: open %s: %w", path, err)
	}

	j := &Journal{db: db}
	head, err := j.loadHead()
	if err != nil {
		_ = db.Close()
		return nil, err
	}
	j.head = head
	return j, nil
}

func (j *Journal) loadHead() (Head, error) {
	value, closer, err := j.db.Get(headKey)
	if errors.Is(err, pebble.ErrNotFound) {
		return Head{}, nil
	}
	if err != nil {
		return Head{}, fmt.Errorf("journal: read head: %w", err)
	}
	defer closer.Close()

	var head Head
	if err := json.Unmarshal(value, &head); err != nil {
		return Head{}, fmt.Errorf("journal: decode head: %w", err)
	}
	return head, nil
}

func (j *Journal) Head() Head {
	j.mu.Lock()
	defer j.mu.Unlock()
	return j.head
}

// Append writes command as the next entry. The entry and the new head are
// committed in one synced batch.
func (j *Journal) Append(command []byte) (Entry, error) {
	if len(command) == 0 {
		return Entry{}, ErrEmpty
	}
	var compact bytes.Buffer
	if err := json.Compact(&compact, command); err != nil {
		return Entry{}, fmt.Errorf("journal: command is not JSON: %w", err)
	}

	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return Entry{}, ErrClosed
	}

	entry := Entry{
		Seq:      j.head.Seq + 1,
		PrevHash: j.head.Hash,
		Command:  json.RawMessage(compact.Bytes()),
	}
	entry.Hash = chainHash(entry.PrevHash, entry.Seq, entry.Command)

	value, err := json.Marshal(entry)
	if err != nil {
		return Entry{}, fmt.Errorf("journal: encode entry: %w", err)
	}
	head := Head{Seq: entry.Seq, Hash: entry.Hash}
	headValue, err := json.Marshal(head)
	if err != nil {
		return Entry{}, fmt.Errorf("journal: encode head: %w", err)
	}

	batch := j.db.NewBatch()
	defer batch.Close()
	if err := batch.Set(entryKey(entry.Seq), value, nil); err != nil {
		return Entry{}, err
	}
	if err := batch.Set(headKey, headValue, nil); err != nil {
		return Entry{}, err
	}
	if err := batch.Commit(pebble.Sync); err != nil {
		return Entry{}, fmt.Errorf("journal: commit entry %d: %w", entry.Seq, err)
	}

	j.head = head
	return entry, nil
}

// Replay calls fn for every entry in sequence order, verifying the hash
// chain as it goes. It stops at the first error.
func (j *Journal) Replay(fn func(Entry) error) error {
	j.mu.Lock()
	if j.closed {
		j.mu.Unlock()
		return ErrClosed
	}
	head := j.head
	j.mu.Unlock()

	iter, err := j.db.NewIter(&pebble.IterOptions{
		LowerBound: []byte{prefixEntry},
		UpperBound: []byte{prefixEntry + 1},
	})
	if err != nil {
		return fmt.Errorf("journal: iterator: %w", err)
	}
	defer iter.Close()

	var prev Head
	for iter.First(); iter.Valid(); iter.Next() {
		raw, err := iter.ValueAndErr()
		if err != nil {
			return fmt.Errorf("journal: read entry: %w", err)
		}
		var entry Entry
		if err := json.Unmarshal(raw, &entry); err != nil {
			return fmt.Errorf("journal: decode entry: %w", err)
		}
		if entry.Seq != prev.Seq+1 || entry.PrevHash != prev.Hash {
			return fmt.Errorf("%w: entry %d does not follow %d", ErrCorrupt, entry.Seq, prev.Seq)
		}
		if chainHash(entry.PrevHash, entry.Seq, entry.Command) != entry.Hash {
			return fmt.Errorf("%w: entry %d hash mismatch", ErrCorrupt, entry.Seq)
		}
		if err := fn(entry); err != nil {
			return err
		}
		prev = Head{Seq: entry.Seq, Hash: entry.Hash}
		if prev.Seq == head.Seq {
			break
		}
	}
	if prev != head {
		return fmt.Errorf("%w: replay ended at %d, head is %d", ErrCorrupt, prev.Seq, head.Seq)
	}
	return nil
}

// Verify walks the whole chain and returns the number of entries.
func (j *Journal) Verify() (uint64, error) {
	var n uint64
	err := j.Replay(func(Entry) error {
		n++
		return nil
	})
	return n, err
}

func (j *Journal) Close() error {
	j.mu.Lock()
	defer j.mu.Unlock()
	if j.closed {
		return nil
	}
	j.closed = true
	return j.db.Close()
}

func entryKey(seq uint64) []byte {
	key := make([]byte, 9)
	key[0] = prefixEntry
	binary.BigEndian.PutUint64(key[1:], seq)
	return key
}

func chainHash(prev Hash, seq uint64, command []byte) Hash {
	buf := make([]byte, 0, len(prev)+8+len(command))
	buf = append(buf, prev[:]...)
	buf = binary.BigEndian.AppendUint64(buf, seq)
	buf = append(buf, command...)
	return blake2b.Sum256(buf)
}
