package catalog_test

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/surrealkv/surqlcore/internal/catalog"
	"github.com/surrealkv/surqlcore/internal/kv"
	"github.com/surrealkv/surqlcore/internal/kv/bolt"
)

func openStore(t *testing.T) kv.Datastore {
	t.Helper()
	ds, err := bolt.Open(bolt.Options{Path: filepath.Join(t.TempDir(), "cat.db")})
	require.NoError(t, err)
	t.Cleanup(func() { _ = ds.Close() })
	return ds
}

func TestNamespaceRoundTrip(t *testing.T) {
	ctx := context.Background()
	ds := openStore(t)
	store := catalog.NewStore()

	tx, err := ds.Begin(ctx, true)
	require.NoError(t, err)
	require.NoError(t, store.PutNamespace(ctx, tx, catalog.NamespaceDef{ID: 1, Name: "test"}))
	require.NoError(t, tx.Commit(ctx))

	rtx, err := ds.Begin(ctx, false)
	require.NoError(t, err)
	def, ok, err := store.GetNamespace(ctx, rtx, "test")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, uint32(1), def.ID)
	require.Equal(t, "test", def.Name)
}

func TestTableAndFieldDefinitions(t *testing.T) {
	ctx := context.Background()
	ds := openStore(t)
	store := catalog.NewStore()

	tx, err := ds.Begin(ctx, true)
	require.NoError(t, err)
	require.NoError(t, store.PutTable(ctx, tx, "ns", "db", catalog.TableDef{ID: 1, Name: "data", Schemafull: true}))
	require.NoError(t, store.PutField(ctx, tx, "ns", "db", "data", catalog.FieldDef{
		Idiom:       "private",
		Permissions: catalog.CRUDPermissions{Select: catalog.Permission{Kind: catalog.PermNone}},
	}))
	require.NoError(t, store.PutField(ctx, tx, "ns", "db", "data", catalog.FieldDef{Idiom: "public"}))
	require.NoError(t, tx.Commit(ctx))

	rtx, err := ds.Begin(ctx, false)
	require.NoError(t, err)

	tbl, ok, err := store.GetTable(ctx, rtx, "ns", "db", "data")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, tbl.Schemafull)

	fields, err := store.Fields(ctx, rtx, "ns", "db", "data")
	require.NoError(t, err)
	require.Len(t, fields, 2)

	priv, ok, err := store.GetField(ctx, rtx, "ns", "db", "data", "private")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, catalog.PermNone, priv.Permissions.Select.Kind)

	pub, ok, err := store.GetField(ctx, rtx, "ns", "db", "data", "public")
	require.NoError(t, err)
	require.True(t, ok)
	require.Equal(t, catalog.PermFull, pub.Permissions.Select.Kind)
}

func TestFieldPermissionAllowsOwnerBypass(t *testing.T) {
	p := catalog.Permission{Kind: catalog.PermNone}
	require.True(t, p.Allows(nil, true))
	require.False(t, p.Allows(nil, false))
}
