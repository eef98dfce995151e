package journal

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	badger "github.com/dgraph-io/badger/v4"

	"github.com/mewdb/mew/pkg/mewerr"
	"github.com/mewdb/mew/pkg/values"
)

// BadgerJournal is the durable Journal implementation: each Effect is
// written under a monotonically increasing sequence key so Replay is a
// single forward badger iteration. One "effect log" keyspace suffices
// (instead of one keyspace per entity kind), since a journal has a single
// append-only access pattern rather than the point-lookup-by-id pattern
// the graph store itself needs.
type BadgerJournal struct {
	db  *badger.DB
	seq atomic.Uint64
}

const (
	effectPrefix     = byte('e')
	checkpointPrefix = byte('c')
	checkpointKey    = "checkpoint:last"
)

// OpenBadgerJournal opens (or creates) a durable journal at dir. Pass ""
// for an in-memory badger instance, which tests use.
func OpenBadgerJournal(dir string) (*BadgerJournal, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts = opts.WithLogger(nil)
	db, err := badger.Open(opts)
	if err != nil {
		return nil, mewerr.Internal(fmt.Sprintf("journal: opening badger store: %v", err))
	}
	j := &BadgerJournal{db: db}
	last, err := j.LastSequence(context.Background())
	if err != nil {
		db.Close()
		return nil, err
	}
	j.seq.Store(last)
	return j, nil
}

func effectKey(seq uint64) []byte {
	k := make([]byte, 9)
	k[0] = effectPrefix
	binary.BigEndian.PutUint64(k[1:], seq)
	return k
}

// wireEffect is the JSON-on-disk shape of an Effect; values.Value has no
// exported fields to marshal directly, so scalar payloads are re-expressed
// through values.FromLiteral-compatible (kind, raw) pairs on decode.
type wireEffect struct {
	Sequence  uint64     `json:"seq"`
	Timestamp time.Time  `json:"ts"`
	TxnID     uint64     `json:"txn"`
	Kind      EffectKind `json:"kind"`
	Glyph     uint64     `json:"glyph"`
	Attr      string     `json:"attr,omitempty"`
	ValueKind values.Kind `json:"value_kind,omitempty"`
	ValueRaw  any        `json:"value_raw,omitempty"`
	Payload   []byte     `json:"payload,omitempty"`
}

func toWire(e Effect) wireEffect {
	w := wireEffect{
		Sequence: e.Sequence, Timestamp: e.Timestamp, TxnID: e.TxnID,
		Kind: e.Kind, Glyph: uint64(e.Glyph), Attr: e.Attr, Payload: e.Payload,
	}
	if e.Kind == EffectAttrSet {
		w.ValueKind = e.Value.Kind()
		switch e.Value.Kind() {
		case values.KindString:
			w.ValueRaw = e.Value.AsString()
		case values.KindInt:
			w.ValueRaw = e.Value.AsInt()
		case values.KindFloat:
			w.ValueRaw = e.Value.AsFloat()
		case values.KindBool:
			w.ValueRaw = e.Value.AsBool()
		case values.KindTimestamp:
			w.ValueRaw = e.Value.AsTimestamp()
		case values.KindID:
			w.ValueRaw = uint64(e.Value.AsID())
		case values.KindHash:
			w.ValueRaw = e.Value.AsHashBytes()
		}
	}
	return w
}

func fromWire(w wireEffect) Effect {
	e := Effect{
		Sequence: w.Sequence, Timestamp: w.Timestamp, TxnID: w.TxnID,
		Kind: w.Kind, Glyph: values.GlyphId(w.Glyph), Attr: w.Attr, Payload: w.Payload,
	}
	if w.Kind == EffectAttrSet {
		switch w.ValueKind {
		case values.KindString:
			if s, ok := w.ValueRaw.(string); ok {
				e.Value = values.NewString(s)
			}
		case values.KindInt:
			if f, ok := w.ValueRaw.(float64); ok { // json numbers decode as float64
				e.Value = values.NewInt(int64(f))
			}
		case values.KindFloat:
			if f, ok := w.ValueRaw.(float64); ok {
				e.Value = values.NewFloat(f)
			}
		case values.KindBool:
			if b, ok := w.ValueRaw.(bool); ok {
				e.Value = values.NewBool(b)
			}
		case values.KindTimestamp:
			if s, ok := w.ValueRaw.(string); ok { // time.Time encodes as RFC 3339 text
				if t, err := time.Parse(time.RFC3339Nano, s); err == nil {
					e.Value = values.NewTimestamp(t)
				}
			}
		case values.KindID:
			if f, ok := w.ValueRaw.(float64); ok {
				e.Value = values.NewID(values.GlyphId(uint64(f)))
			}
		}
	}
	return e
}

// Append writes effects under sequentially assigned keys in one badger
// transaction, so a crash mid-commit never leaves a partial batch visible
// to Replay.
func (j *BadgerJournal) Append(ctx context.Context, effects []Effect) error {
	if len(effects) == 0 {
		return nil
	}
	return j.db.Update(func(txn *badger.Txn) error {
		for i := range effects {
			seq := j.seq.Add(1)
			effects[i].Sequence = seq
			data, err := json.Marshal(toWire(effects[i]))
			if err != nil {
				return mewerr.Internal(fmt.Sprintf("journal: encoding effect: %v", err))
			}
			if err := txn.Set(effectKey(seq), data); err != nil {
				return err
			}
		}
		return nil
	})
}

// Replay walks every effect key greater than since, in ascending sequence
// order.
func (j *BadgerJournal) Replay(ctx context.Context, since uint64, fn func(Effect) error) error {
	return j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{effectPrefix}
		it := txn.NewIterator(opts)
		defer it.Close()
		start := effectKey(since + 1)
		for it.Seek(start); it.ValidForPrefix([]byte{effectPrefix}); it.Next() {
			item := it.Item()
			var w wireEffect
			if err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &w)
			}); err != nil {
				return mewerr.Internal(fmt.Sprintf("journal: decoding effect: %v", err))
			}
			if err := fn(fromWire(w)); err != nil {
				return err
			}
		}
		return nil
	})
}

// Checkpoint records the current sequence as a recovery marker.
func (j *BadgerJournal) Checkpoint(ctx context.Context) (Snapshot, error) {
	snap := Snapshot{Sequence: j.seq.Load(), Timestamp: time.Now().UTC()}
	data, err := json.Marshal(snap)
	if err != nil {
		return Snapshot{}, mewerr.Internal(fmt.Sprintf("journal: encoding checkpoint: %v", err))
	}
	err = j.db.Update(func(txn *badger.Txn) error {
		return txn.Set([]byte{checkpointPrefix}, data)
	})
	return snap, err
}

// LastSequence returns the highest sequence number written, scanning the
// effect keyspace once on open (and reporting the in-memory counter
// afterward).
func (j *BadgerJournal) LastSequence(ctx context.Context) (uint64, error) {
	var last uint64
	err := j.db.View(func(txn *badger.Txn) error {
		opts := badger.DefaultIteratorOptions
		opts.Prefix = []byte{effectPrefix}
		opts.Reverse = true
		it := txn.NewIterator(opts)
		defer it.Close()
		it.Seek([]byte{effectPrefix, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF, 0xFF})
		if it.ValidForPrefix([]byte{effectPrefix}) {
			key := it.Item().Key()
			last = binary.BigEndian.Uint64(key[1:])
		}
		return nil
	})
	return last, err
}

// Close releases the underlying badger handle.
func (j *BadgerJournal) Close() error {
	return j.db.Close()
}
