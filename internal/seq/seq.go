// Package seq implements the batched sequence allocator spec §4.8
// describes: each sequence is a single KV entry holding the current
// high-water mark, and one call consumes a contiguous range a writer
// hands out locally rather than re-reading the KV entry per id.
package seq

import (
	"context"
	"encoding/binary"

	"github.com/surrealkv/surqlcore/internal/keys"
	"github.com/surrealkv/surqlcore/internal/kv"
)

// Allocator hands out id ranges backed by a KV-resident high-water mark.
// It does not retry on conflict: per the Open Question decision spec §9
// leaves to the host, a commit-time conflict on the sequence key is
// surfaced to the caller verbatim, exactly like any other write conflict.
type Allocator struct{}

func NewAllocator() *Allocator { return &Allocator{} }

// Allocate consumes a batch of batchSize ids from the named sequence,
// returning the half-open range [low, high). The caller is responsible
// for retrying its own surrounding transaction if Commit later reports a
// conflict on the sequence key (spec §4.8's "callers must retry").
func (a *Allocator) Allocate(ctx context.Context, tx kv.Transactable, ns, db, name string, batchSize int64) (low, high int64, err error) {
	if batchSize <= 0 {
		batchSize = 1
	}
	key := keys.Sequence(ns, db, name)
	raw, ok, err := tx.Get(ctx, key, 0)
	if err != nil {
		return 0, 0, err
	}
	if ok {
		low = int64(binary.BigEndian.Uint64(raw))
	}
	high = low + batchSize
	var next [8]byte
	binary.BigEndian.PutUint64(next[:], uint64(high))
	if err := tx.Set(ctx, key, next[:], 0); err != nil {
		return 0, 0, err
	}
	return low, high, nil
}
