// Package kv defines the transactional KV contract every storage backend
// must honor (spec §4.1, "Transactable"). internal/kv/bolt is the one
// shipped implementation.
package kv

import "context"

// Version is a snapshot timestamp. Zero means "the current snapshot" —
// no version filtering is applied.
type Version uint64

// KeyValue is an ordered key/value pair as returned by scan/scanr.
type KeyValue struct {
	Key   []byte
	Value []byte
}

// Range is a half-open byte range [Begin, End); a nil End means "to the
// end of the keyspace".
type Range struct {
	Begin, End []byte
}

// State tracks how far a transaction's write-set has progressed, per
// spec §3: monotonically ReadsOnly -> HasDeletes|HasWrites.
type State int

const (
	StateReadsOnly State = iota
	StateHasDeletes
	StateHasWrites
)

// Durability selects how aggressively a backend fsyncs (spec §4.1).
type Durability int

const (
	// DurabilityEvery fsyncs every commit, optionally coalesced across
	// concurrent committers by a commit coordinator.
	DurabilityEvery Durability = iota
	// DurabilityInterval flushes the WAL on a fixed background interval.
	DurabilityInterval
	// DurabilityNever leaves fsync timing to the OS.
	DurabilityNever
)

// Transactable is the contract every backend exposes. All operations
// fail with kverrors.ErrTransactionFinished after Commit or Cancel.
type Transactable interface {
	// Exists reports whether k is live at the optional version.
	Exists(ctx context.Context, k []byte, version Version) (bool, error)
	// Get returns the value at k if live, or (nil, false) if absent.
	Get(ctx context.Context, k []byte, version Version) ([]byte, bool, error)
	// Getm batches Get, preserving input order; absent keys are nil.
	Getm(ctx context.Context, keys [][]byte, version Version) ([][]byte, error)

	// Set unconditionally writes k=v.
	Set(ctx context.Context, k, v []byte, version Version) error
	// Put writes k=v only if k is currently absent.
	Put(ctx context.Context, k, v []byte, version Version) error
	// Putc writes k=v only if the current value equals chk (nil chk
	// means "k must be absent").
	Putc(ctx context.Context, k, v, chk []byte) error

	// Del deletes k if present; idempotent.
	Del(ctx context.Context, k []byte) error
	// Delc deletes k only if its current value equals chk.
	Delc(ctx context.Context, k, chk []byte) error
	// Clr hard-deletes every version of k (versioned backends only).
	Clr(ctx context.Context, k []byte) error
	// Clrc hard-deletes every version of k if its current value equals chk.
	Clrc(ctx context.Context, k, chk []byte) error

	// Count returns the number of live keys in rng at the current snapshot.
	Count(ctx context.Context, rng Range) (int64, error)
	// Keys returns ordered keys in rng, ascending.
	Keys(ctx context.Context, rng Range, limit, skip int, version Version) ([][]byte, error)
	// Keysr returns ordered keys in rng, descending.
	Keysr(ctx context.Context, rng Range, limit, skip int, version Version) ([][]byte, error)
	// Scan returns key-value pairs in rng, ascending.
	Scan(ctx context.Context, rng Range, limit, skip int, version Version) ([]KeyValue, error)
	// Scanr returns key-value pairs in rng, descending.
	Scanr(ctx context.Context, rng Range, limit, skip int, version Version) ([]KeyValue, error)

	// NewSavePoint pushes a nested rollback marker.
	NewSavePoint() error
	// RollbackToSavePoint undoes every mutation since the last marker.
	RollbackToSavePoint() error
	// ReleaseLastSavePoint drops the last marker without rolling back.
	ReleaseLastSavePoint() error

	// Commit durably applies writes, or fails with a retryable conflict
	// error if another committed transaction wrote an overlapping range.
	Commit(ctx context.Context) error
	// Cancel rolls back all writes made by this transaction.
	Cancel(ctx context.Context) error

	// Writeable reports whether this transaction may write at all.
	Writeable() bool
	// State reports how far this transaction's write-set has progressed.
	State() State
	// Done reports whether Commit or Cancel has already been called.
	Done() bool
}

// Datastore opens transactions against a backend and owns shared state:
// the disk-space manager and the commit coordinator.
type Datastore interface {
	Begin(ctx context.Context, writeable bool) (Transactable, error)
	Close() error
}
