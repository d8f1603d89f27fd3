package bolt_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/surrealkv/surqlcore/internal/kv"
	"github.com/surrealkv/surqlcore/internal/kv/bolt"
	"github.com/surrealkv/surqlcore/internal/kverrors"
)

func openTestStore(t *testing.T) *bolt.Datastore {
	t.Helper()
	ds, err := bolt.Open(bolt.Options{
		Path:       filepath.Join(t.TempDir(), "test.db"),
		Durability: kv.DurabilityEvery,
	})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

func TestSetCommitGet(t *testing.T) {
	ctx := context.Background()
	ds := openTestStore(t)

	tx, err := ds.Begin(ctx, true)
	require.NoError(t, err)
	require.NoError(t, tx.Set(ctx, []byte("a"), []byte("1"), 0))
	require.NoError(t, tx.Commit(ctx))

	rtx, err := ds.Begin(ctx, false)
	require.NoError(t, err)
	v, ok, err := rtx.Get(ctx, []byte("a"), 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)
	require.NoError(t, rtx.Cancel(ctx))
}

func TestDeleteMakesKeyAbsent(t *testing.T) {
	ctx := context.Background()
	ds := openTestStore(t)

	tx, _ := ds.Begin(ctx, true)
	require.NoError(t, tx.Set(ctx, []byte("a"), []byte("1"), 0))
	require.NoError(t, tx.Commit(ctx))

	tx2, _ := ds.Begin(ctx, true)
	require.NoError(t, tx2.Del(ctx, []byte("a")))
	require.NoError(t, tx2.Commit(ctx))

	tx3, _ := ds.Begin(ctx, false)
	_, ok, err := tx3.Get(ctx, []byte("a"), 0)
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestPutFailsIfExists(t *testing.T) {
	ctx := context.Background()
	ds := openTestStore(t)

	tx, _ := ds.Begin(ctx, true)
	require.NoError(t, tx.Put(ctx, []byte("a"), []byte("1"), 0))
	err := tx.Put(ctx, []byte("a"), []byte("2"), 0)
	assert.ErrorIs(t, err, kverrors.ErrTransactionKeyAlreadyExists)
	require.NoError(t, tx.Cancel(ctx))
}

func TestPutcConditionMismatch(t *testing.T) {
	ctx := context.Background()
	ds := openTestStore(t)

	tx, _ := ds.Begin(ctx, true)
	require.NoError(t, tx.Set(ctx, []byte("a"), []byte("1"), 0))
	err := tx.Putc(ctx, []byte("a"), []byte("2"), []byte("wrong"))
	assert.ErrorIs(t, err, kverrors.ErrTransactionConditionNotMet)
	require.NoError(t, tx.Cancel(ctx))
}

func TestOperationsFailAfterDone(t *testing.T) {
	ctx := context.Background()
	ds := openTestStore(t)

	tx, _ := ds.Begin(ctx, true)
	require.NoError(t, tx.Commit(ctx))

	_, _, err := tx.Get(ctx, []byte("a"), 0)
	assert.ErrorIs(t, err, kverrors.ErrTransactionFinished)
	assert.ErrorIs(t, tx.Set(ctx, []byte("a"), []byte("1"), 0), kverrors.ErrTransactionFinished)
}

func TestReadonlyTransactionRejectsWrites(t *testing.T) {
	ctx := context.Background()
	ds := openTestStore(t)

	tx, _ := ds.Begin(ctx, false)
	err := tx.Set(ctx, []byte("a"), []byte("1"), 0)
	assert.ErrorIs(t, err, kverrors.ErrTransactionReadonly)
}

func TestSavepointRollback(t *testing.T) {
	ctx := context.Background()
	ds := openTestStore(t)

	tx, _ := ds.Begin(ctx, true)
	require.NoError(t, tx.Set(ctx, []byte("a"), []byte("1"), 0))
	require.NoError(t, tx.NewSavePoint())
	require.NoError(t, tx.Set(ctx, []byte("b"), []byte("2"), 0))
	require.NoError(t, tx.RollbackToSavePoint())

	_, ok, _ := tx.Get(ctx, []byte("b"), 0)
	assert.False(t, ok)
	v, ok, _ := tx.Get(ctx, []byte("a"), 0)
	assert.True(t, ok)
	assert.Equal(t, []byte("1"), v)
	require.NoError(t, tx.Cancel(ctx))
}

func TestVersionedReadsSeeHistoricalValue(t *testing.T) {
	ctx := context.Background()
	ds := openTestStore(t)

	tx1, _ := ds.Begin(ctx, true)
	require.NoError(t, tx1.Set(ctx, []byte("a"), []byte("v1"), 0))
	require.NoError(t, tx1.Commit(ctx))

	rtx, _ := ds.Begin(ctx, false)
	v1ts, err := rtx.Count(ctx, kv.Range{Begin: []byte("a"), End: []byte("a\x00")})
	require.NoError(t, err)
	assert.Equal(t, int64(1), v1ts)
	require.NoError(t, rtx.Cancel(ctx))

	tx2, _ := ds.Begin(ctx, true)
	require.NoError(t, tx2.Set(ctx, []byte("a"), []byte("v2"), 0))
	require.NoError(t, tx2.Commit(ctx))

	rtx2, _ := ds.Begin(ctx, false)
	v, ok, err := rtx2.Get(ctx, []byte("a"), 0)
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v2"), v)

	// The first commit on a fresh store is stamped with version 1.
	old, ok, err := rtx2.Get(ctx, []byte("a"), kv.Version(1))
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, []byte("v1"), old)
	require.NoError(t, rtx2.Cancel(ctx))
}

func TestScanOrderingAscendingAndDescending(t *testing.T) {
	ctx := context.Background()
	ds := openTestStore(t)

	tx, _ := ds.Begin(ctx, true)
	for _, k := range []string{"a", "b", "c"} {
		require.NoError(t, tx.Set(ctx, []byte(k), []byte(k), 0))
	}
	require.NoError(t, tx.Commit(ctx))

	rtx, _ := ds.Begin(ctx, false)
	asc, err := rtx.Keys(ctx, kv.Range{Begin: []byte("a"), End: []byte("z")}, 0, 0, 0)
	require.NoError(t, err)
	require.Len(t, asc, 3)
	assert.Equal(t, []byte("a"), asc[0])
	assert.Equal(t, []byte("c"), asc[2])

	desc, err := rtx.Keysr(ctx, kv.Range{Begin: []byte("a"), End: []byte("z")}, 0, 0, 0)
	require.NoError(t, err)
	require.Len(t, desc, 3)
	assert.Equal(t, []byte("c"), desc[0])
	assert.Equal(t, []byte("a"), desc[2])
}
