package bolt

import (
	"bytes"
	"context"
	"encoding/binary"
	"fmt"
	"sort"

	"github.com/surrealkv/surqlcore/internal/kv"
	"github.com/surrealkv/surqlcore/internal/kverrors"
	bboltlib "go.etcd.io/bbolt"
)

// pendingOp is a buffered mutation, applied to the real bbolt bucket only
// at Commit. Buffering writes this way makes savepoints a plain slice
// truncation instead of an undo-log replay against the live store.
type pendingOp struct {
	tombstone bool
	hard      bool // Clr/Clrc: remove every version, not just write a tombstone
	value     []byte
}

// Txn implements kv.Transactable.
type Txn struct {
	ds         *Datastore
	btx        *bboltlib.Tx // read-only snapshot pinned at Begin
	snapshotTS uint64
	writeable  bool

	pending     map[string]*pendingOp
	order       []string // insertion order of pending's keys, for savepoint truncation
	savepoints  []int    // indices into order marking each NewSavePoint call

	state kv.State
	done  bool
}

func (t *Txn) Writeable() bool  { return t.writeable }
func (t *Txn) State() kv.State  { return t.state }
func (t *Txn) Done() bool       { return t.done }

func (t *Txn) checkDone() error {
	if t.done {
		return kverrors.ErrTransactionFinished
	}
	return nil
}

func (t *Txn) checkWriteable() error {
	if err := t.checkDone(); err != nil {
		return err
	}
	if !t.writeable {
		return kverrors.ErrTransactionReadonly
	}
	if t.ds.diskSpace.gated() {
		return kverrors.ErrReadAndDeleteOnly
	}
	return nil
}

func (t *Txn) stageWrite(k []byte, op *pendingOp) {
	sk := string(k)
	if _, exists := t.pending[sk]; !exists {
		t.order = append(t.order, sk)
	}
	t.pending[sk] = op
}

// --- reads ---

func (t *Txn) Exists(ctx context.Context, k []byte, version kv.Version) (bool, error) {
	if err := t.checkDone(); err != nil {
		return false, err
	}
	_, ok, err := t.Get(ctx, k, version)
	return ok, err
}

func (t *Txn) Get(ctx context.Context, k []byte, version kv.Version) ([]byte, bool, error) {
	if err := t.checkDone(); err != nil {
		return nil, false, err
	}
	if version == 0 {
		if op, ok := t.pending[string(k)]; ok {
			if op.tombstone {
				return nil, false, nil
			}
			return op.value, true, nil
		}
	}
	return t.readCommitted(k, t.effectiveVersion(version))
}

func (t *Txn) Getm(ctx context.Context, keys [][]byte, version kv.Version) ([][]byte, error) {
	out := make([][]byte, len(keys))
	for i, k := range keys {
		v, ok, err := t.Get(ctx, k, version)
		if err != nil {
			return nil, err
		}
		if ok {
			out[i] = v
		}
	}
	return out, nil
}

func (t *Txn) effectiveVersion(requested kv.Version) uint64 {
	if requested == 0 {
		return t.snapshotTS
	}
	return uint64(requested)
}

// readCommitted finds the newest version of k that is <= at, by scanning
// the single-key range [k, k+0x00) -- the narrowest range that matches
// every version of exactly k and nothing else.
func (t *Txn) readCommitted(k []byte, at uint64) ([]byte, bool, error) {
	exactRange := kv.Range{Begin: k, End: append(append([]byte(nil), k...), 0x00)}
	results := t.scanCommitted(exactRange, at)
	if len(results) == 0 {
		return nil, false, nil
	}
	return results[0].Value, true, nil
}

const (
	liveFlag      byte = 1
	tombstoneFlag byte = 0
)

// --- writes ---

func (t *Txn) Set(ctx context.Context, k, v []byte, version kv.Version) error {
	if err := t.checkWriteable(); err != nil {
		return err
	}
	t.stageWrite(k, &pendingOp{value: append([]byte(nil), v...)})
	t.state = kv.StateHasWrites
	return nil
}

func (t *Txn) Put(ctx context.Context, k, v []byte, version kv.Version) error {
	if err := t.checkWriteable(); err != nil {
		return err
	}
	_, exists, err := t.Get(ctx, k, 0)
	if err != nil {
		return err
	}
	if exists {
		return kverrors.ErrTransactionKeyAlreadyExists
	}
	t.stageWrite(k, &pendingOp{value: append([]byte(nil), v...)})
	t.state = kv.StateHasWrites
	return nil
}

func (t *Txn) Putc(ctx context.Context, k, v, chk []byte) error {
	if err := t.checkWriteable(); err != nil {
		return err
	}
	cur, exists, err := t.Get(ctx, k, 0)
	if err != nil {
		return err
	}
	if chk == nil {
		if exists {
			return kverrors.ErrTransactionConditionNotMet
		}
	} else {
		if !exists || !bytes.Equal(cur, chk) {
			return kverrors.ErrTransactionConditionNotMet
		}
	}
	t.stageWrite(k, &pendingOp{value: append([]byte(nil), v...)})
	t.state = kv.StateHasWrites
	return nil
}

func (t *Txn) Del(ctx context.Context, k []byte) error {
	if err := t.checkDone(); err != nil {
		return err
	}
	if !t.writeable {
		return kverrors.ErrTransactionReadonly
	}
	t.stageWrite(k, &pendingOp{tombstone: true})
	if t.state == kv.StateReadsOnly {
		t.state = kv.StateHasDeletes
	}
	return nil
}

func (t *Txn) Delc(ctx context.Context, k, chk []byte) error {
	if err := t.checkDone(); err != nil {
		return err
	}
	if !t.writeable {
		return kverrors.ErrTransactionReadonly
	}
	cur, exists, err := t.Get(ctx, k, 0)
	if err != nil {
		return err
	}
	if !exists || !bytes.Equal(cur, chk) {
		return kverrors.ErrTransactionConditionNotMet
	}
	t.stageWrite(k, &pendingOp{tombstone: true})
	if t.state == kv.StateReadsOnly {
		t.state = kv.StateHasDeletes
	}
	return nil
}

func (t *Txn) Clr(ctx context.Context, k []byte) error {
	if err := t.checkDone(); err != nil {
		return err
	}
	if !t.writeable {
		return kverrors.ErrTransactionReadonly
	}
	t.stageWrite(k, &pendingOp{tombstone: true, hard: true})
	if t.state == kv.StateReadsOnly {
		t.state = kv.StateHasDeletes
	}
	return nil
}

func (t *Txn) Clrc(ctx context.Context, k, chk []byte) error {
	if err := t.checkDone(); err != nil {
		return err
	}
	if !t.writeable {
		return kverrors.ErrTransactionReadonly
	}
	cur, exists, err := t.Get(ctx, k, 0)
	if err != nil {
		return err
	}
	if !exists || !bytes.Equal(cur, chk) {
		return kverrors.ErrTransactionConditionNotMet
	}
	t.stageWrite(k, &pendingOp{tombstone: true, hard: true})
	if t.state == kv.StateReadsOnly {
		t.state = kv.StateHasDeletes
	}
	return nil
}

// --- range reads ---

func (t *Txn) Count(ctx context.Context, rng kv.Range) (int64, error) {
	kvs, err := t.Scan(ctx, rng, 0, 0, 0)
	if err != nil {
		return 0, err
	}
	return int64(len(kvs)), nil
}

func (t *Txn) Keys(ctx context.Context, rng kv.Range, limit, skip int, version kv.Version) ([][]byte, error) {
	kvs, err := t.scan(ctx, rng, limit, skip, version, false)
	if err != nil {
		return nil, err
	}
	keys := make([][]byte, len(kvs))
	for i, kv := range kvs {
		keys[i] = kv.Key
	}
	return keys, nil
}

func (t *Txn) Keysr(ctx context.Context, rng kv.Range, limit, skip int, version kv.Version) ([][]byte, error) {
	kvs, err := t.scan(ctx, rng, limit, skip, version, true)
	if err != nil {
		return nil, err
	}
	keys := make([][]byte, len(kvs))
	for i, kv := range kvs {
		keys[i] = kv.Key
	}
	return keys, nil
}

func (t *Txn) Scan(ctx context.Context, rng kv.Range, limit, skip int, version kv.Version) ([]kv.KeyValue, error) {
	return t.scan(ctx, rng, limit, skip, version, false)
}

func (t *Txn) Scanr(ctx context.Context, rng kv.Range, limit, skip int, version kv.Version) ([]kv.KeyValue, error) {
	return t.scan(ctx, rng, limit, skip, version, true)
}

func (t *Txn) scan(ctx context.Context, rng kv.Range, limit, skip int, version kv.Version, descending bool) ([]kv.KeyValue, error) {
	if err := t.checkDone(); err != nil {
		return nil, err
	}
	at := t.effectiveVersion(version)
	merged := t.scanCommitted(rng, at)

	if version == 0 {
		merged = t.overlayPending(merged, rng)
	}

	sort.Slice(merged, func(i, j int) bool { return bytes.Compare(merged[i].Key, merged[j].Key) < 0 })
	if descending {
		for i, j := 0, len(merged)-1; i < j; i, j = i+1, j-1 {
			merged[i], merged[j] = merged[j], merged[i]
		}
	}

	if skip > 0 {
		if skip >= len(merged) {
			return nil, nil
		}
		merged = merged[skip:]
	}
	if limit > 0 && limit < len(merged) {
		merged = merged[:limit]
	}
	return merged, nil
}

// scanCommitted walks the real versioned bucket, returning the newest
// live value <= at for each distinct user key in rng.
func (t *Txn) scanCommitted(rng kv.Range, at uint64) []kv.KeyValue {
	b := t.btx.Bucket(bucketData)
	c := b.Cursor()

	lowerComposite := encodeVersioned(rng.Begin, 0)
	var upperComposite []byte
	if rng.End != nil {
		upperComposite = encodeVersioned(rng.End, 0)
	}

	var results []kv.KeyValue
	var curUser []byte
	var bestVal []byte
	haveBest := false

	flush := func() {
		if haveBest && len(bestVal) > 0 && bestVal[0] == liveFlag {
			results = append(results, kv.KeyValue{
				Key:   append([]byte(nil), curUser...),
				Value: append([]byte(nil), bestVal[1:]...),
			})
		}
		haveBest = false
	}

	for ck, cv := c.Seek(lowerComposite); ck != nil; ck, cv = c.Next() {
		if upperComposite != nil && bytes.Compare(ck, upperComposite) >= 0 {
			break
		}
		userKey, ver, ok := decodeVersioned(ck)
		if !ok {
			continue
		}
		if ver > at {
			continue
		}
		if curUser == nil || !bytes.Equal(curUser, userKey) {
			flush()
			curUser = userKey
		}
		bestVal = cv
		haveBest = true
	}
	flush()
	return results
}

func (t *Txn) overlayPending(committed []kv.KeyValue, rng kv.Range) []kv.KeyValue {
	byKey := make(map[string]kv.KeyValue, len(committed))
	for _, kvpair := range committed {
		byKey[string(kvpair.Key)] = kvpair
	}
	for _, sk := range t.order {
		k := []byte(sk)
		if !inRange(k, rng) {
			continue
		}
		op := t.pending[sk]
		if op.tombstone {
			delete(byKey, sk)
			continue
		}
		byKey[sk] = kv.KeyValue{Key: k, Value: op.value}
	}
	out := make([]kv.KeyValue, 0, len(byKey))
	for _, v := range byKey {
		out = append(out, v)
	}
	return out
}

func inRange(k []byte, rng kv.Range) bool {
	if bytes.Compare(k, rng.Begin) < 0 {
		return false
	}
	if rng.End != nil && bytes.Compare(k, rng.End) >= 0 {
		return false
	}
	return true
}

// --- savepoints ---

func (t *Txn) NewSavePoint() error {
	if err := t.checkDone(); err != nil {
		return err
	}
	t.savepoints = append(t.savepoints, len(t.order))
	return nil
}

func (t *Txn) RollbackToSavePoint() error {
	if err := t.checkDone(); err != nil {
		return err
	}
	if len(t.savepoints) == 0 {
		return fmt.Errorf("bolt: no savepoint to roll back to")
	}
	marker := t.savepoints[len(t.savepoints)-1]
	t.savepoints = t.savepoints[:len(t.savepoints)-1]
	for _, sk := range t.order[marker:] {
		delete(t.pending, sk)
	}
	t.order = t.order[:marker]
	return nil
}

func (t *Txn) ReleaseLastSavePoint() error {
	if err := t.checkDone(); err != nil {
		return err
	}
	if len(t.savepoints) == 0 {
		return nil
	}
	t.savepoints = t.savepoints[:len(t.savepoints)-1]
	return nil
}

// --- commit / cancel ---

func (t *Txn) Commit(ctx context.Context) error {
	if err := t.checkDone(); err != nil {
		return err
	}
	defer t.finish()

	if !t.writeable {
		return kverrors.ErrTransactionReadonly
	}
	if len(t.order) == 0 {
		return nil
	}
	if t.ds.diskSpace.gated() && t.state == kv.StateHasWrites {
		return kverrors.ErrReadAndDeleteOnly
	}

	return t.ds.db.Update(func(wtx *bboltlib.Tx) error {
		meta := wtx.Bucket(bucketMeta)
		data := wtx.Bucket(bucketData)

		next := binary.BigEndian.Uint64(meta.Get(keyNextVersion))
		commitVersion := next

		for _, sk := range t.order {
			op := t.pending[sk]
			k := []byte(sk)
			if op.hard {
				if err := deleteAllVersions(data, k); err != nil {
					return err
				}
				continue
			}
			composite := encodeVersioned(k, commitVersion)
			if op.tombstone {
				if err := data.Put(composite, []byte{tombstoneFlag}); err != nil {
					return err
				}
			} else {
				v := append([]byte{liveFlag}, op.value...)
				if err := data.Put(composite, v); err != nil {
					return err
				}
			}
		}

		var nextBuf [8]byte
		binary.BigEndian.PutUint64(nextBuf[:], next+1)
		if err := meta.Put(keyNextVersion, nextBuf[:]); err != nil {
			return err
		}

		if t.state == kv.StateHasDeletes && t.ds.diskSpace.gated() {
			// compaction note: vanilla bbolt reclaims freed pages for
			// reuse automatically; no compaction runs here, and the
			// disk-space manager re-checks usage on its next gated() call.
		}
		return nil
	})
}

func deleteAllVersions(b *bboltlib.Bucket, userKey []byte) error {
	c := b.Cursor()
	lower := versionedPrefixLowerBound(userKey)
	upper := versionedPrefixUpperBound(userKey)
	var toDelete [][]byte
	for ck, _ := c.Seek(lower); ck != nil && bytes.Compare(ck, upper) < 0; ck, _ = c.Next() {
		toDelete = append(toDelete, append([]byte(nil), ck...))
	}
	for _, k := range toDelete {
		if err := b.Delete(k); err != nil {
			return err
		}
	}
	return nil
}

func (t *Txn) Cancel(ctx context.Context) error {
	if err := t.checkDone(); err != nil {
		return err
	}
	t.finish()
	return nil
}

func (t *Txn) finish() {
	if t.done {
		return
	}
	t.done = true
	t.btx.Rollback() // releases the read-only bbolt snapshot
	if t.writeable {
		t.ds.writeMu.Unlock()
	}
}
