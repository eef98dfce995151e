package journal

import "context"

// Journal records committed effects in sequence order. A Session holds one
// Journal; a txn.Txn commit (through its txn.Manager) appends every staged effect of a transaction
// that reaches commit (never effects from a rolled-back transaction).
type Journal interface {
	// Append writes effects atomically as one commit's worth of journal
	// entries, assigning them sequence numbers after the last one written.
	Append(ctx context.Context, effects []Effect) error

	// Replay calls fn for every effect with Sequence > since, in order,
	// used to rebuild graph state after a restart.
	Replay(ctx context.Context, since uint64, fn func(Effect) error) error

	// Checkpoint records a Snapshot marker at the current sequence, letting
	// a future Replay start from it instead of sequence 0.
	Checkpoint(ctx context.Context) (Snapshot, error)

	// LastSequence returns the highest sequence number durably recorded.
	LastSequence(ctx context.Context) (uint64, error)

	Close() error
}

// NoopJournal discards every effect; it is the default Session wiring for
// in-memory-only use where durability is not required.
type NoopJournal struct{}

// NewNoopJournal returns a Journal that records nothing.
func NewNoopJournal() *NoopJournal { return &NoopJournal{} }

func (*NoopJournal) Append(context.Context, []Effect) error { return nil }

func (*NoopJournal) Replay(context.Context, uint64, func(Effect) error) error { return nil }

func (*NoopJournal) Checkpoint(context.Context) (Snapshot, error) { return Snapshot{}, nil }

func (*NoopJournal) LastSequence(context.Context) (uint64, error) { return 0, nil }

func (*NoopJournal) Close() error { return nil }
