package plan

import (
	"context"
	"fmt"

	"github.com/surrealkv/surqlcore/internal/catalog"
	"github.com/surrealkv/surqlcore/internal/codec"
	"github.com/surrealkv/surqlcore/internal/keys"
	"github.com/surrealkv/surqlcore/internal/kv"
	"github.com/surrealkv/surqlcore/internal/value"
)

// resolveTable looks up the numeric ids Record/RecordPrefix need to
// build a record key, per spec §3's "each carries a monotone numeric id
// used inside record and index keys to shorten them".
func resolveTable(ctx context.Context, cat *catalog.Store, tx kv.Transactable, ns, db, tb string) (nsID, dbID, tbID uint32, err error) {
	nsDef, ok, err := cat.GetNamespace(ctx, tx, ns)
	if err != nil {
		return 0, 0, 0, err
	}
	if !ok {
		return 0, 0, 0, fmt.Errorf("plan: namespace %q not defined", ns)
	}
	dbDef, ok, err := cat.GetDatabase(ctx, tx, ns, db)
	if err != nil {
		return 0, 0, 0, err
	}
	if !ok {
		return 0, 0, 0, fmt.Errorf("plan: database %q not defined", db)
	}
	tbDef, ok, err := cat.GetTable(ctx, tx, ns, db, tb)
	if err != nil {
		return 0, 0, 0, err
	}
	if !ok {
		return 0, 0, 0, fmt.Errorf("plan: table %q not defined", tb)
	}
	return nsDef.ID, dbDef.ID, tbDef.ID, nil
}

func decodeRecord(raw []byte) (map[string]value.Value, error) {
	var fields map[string]value.Value
	if err := codec.Decode(raw, &fields); err != nil {
		return nil, err
	}
	return fields, nil
}

func encodeRecord(fields map[string]value.Value) ([]byte, error) {
	return codec.Encode(fields)
}

// withRecordID returns fields with a synthetic "id" field set to rid, the
// convention idiom evaluation and graph traversal rely on to recover a
// row's identity.
func withRecordID(fields map[string]value.Value, rid *value.RecordID) value.Value {
	out := make(map[string]value.Value, len(fields)+1)
	for k, v := range fields {
		out[k] = v
	}
	out["id"] = value.RecordIDValue(rid)
	return value.Object(out)
}

func loadRecordByID(ctx context.Context, cat *catalog.Store, tx kv.Transactable, ns, db string, rid *value.RecordID, version kv.Version) (value.Value, bool, error) {
	nsID, dbID, tbID, err := resolveTable(ctx, cat, tx, ns, db, rid.Table)
	if err != nil {
		return value.None(), false, err
	}
	key := keys.Record(nsID, dbID, tbID, keys.EncodeRecordKey(rid.Key))
	raw, ok, err := tx.Get(ctx, key, version)
	if err != nil || !ok {
		return value.None(), false, err
	}
	fields, err := decodeRecord(raw)
	if err != nil {
		return value.None(), false, err
	}
	return withRecordID(fields, rid), true, nil
}
