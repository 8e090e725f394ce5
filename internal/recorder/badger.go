package recorder

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"

	"github.com/dgraph-io/badger/v4"

	"github.com/codex-k8s/command-router/internal/protocol"
)

var (
	badgerPrefix = []byte("interaction/")
	badgerSeqKey = []byte("seq/interaction")
)

// Badger is an embedded Store backed by BadgerDB.
type Badger struct {
	db  *badger.DB
	seq *badger.Sequence
}

// OpenBadger opens (or creates) a store at path. An empty path keeps data in memory.
func OpenBadger(path string) (*Badger, error) {
	opts := badger.DefaultOptions(path).WithLogger(nil)
	if path == "" {
		opts = opts.WithInMemory(true)
	}
	db, err := badger.Open(opts)
	if err != nil {
		return nil, fmt.Errorf("open badger: %w", err)
	}
	seq, err := db.GetSequence(badgerSeqKey, 100)
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("badger sequence: %w", err)
	}
	return &Badger{db: db, seq: seq}, nil
}

// Append implements Store.
func (b *Badger) Append(_ context.Context, rec protocol.Record) (uint64, error) {
	n, err := b.seq.Next()
	if err != nil {
		return 0, fmt.Errorf("next sequence: %w", err)
	}
	rec.Sequence = n + 1
	raw, err := json.Marshal(rec)
	if err != nil {
		return 0, fmt.Errorf("encode record: %w", err)
	}
	err = b.db.Update(func(txn *badger.Txn) error {
		return txn.Set(badgerKey(rec.Sequence), raw)
	})
	if err != nil {
		return 0, fmt.Errorf("write record: %w", err)
	}
	return rec.Sequence, nil
}

// History implements Store.
func (b *Badger) History(ctx context.Context, limit int) ([]protocol.Record, error) {
	out := make([]protocol.Record, 0, limit)
	err := b.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Reverse = true
		opts.Prefix = badgerPrefix
		it := txn.NewIterator(opts)
		defer it.Close()

		seek := append(append([]byte(nil), badgerPrefix...), 0xFF)
		for it.Seek(seek); it.ValidForPrefix(badgerPrefix) && len(out) < limit; it.Next() {
			if err := ctx.Err(); err != nil {
				return err
			}
			var rec protocol.Record
			if err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &rec)
			}); err != nil {
				return fmt.Errorf("decode record: %w", err)
			}
			out = append(out, rec)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

// Close releases the sequence lease and closes the database.
func (b *Badger) Close() error {
	releaseErr := b.seq.Release()
	if err := b.db.Close(); err != nil {
		return err
	}
	return releaseErr
}

func badgerKey(seq uint64) []byte {
	key := make([]byte, len(badgerPrefix)+8)
	copy(key, badgerPrefix)
	binary.BigEndian.PutUint64(key[len(badgerPrefix):], seq)
	return key
}
