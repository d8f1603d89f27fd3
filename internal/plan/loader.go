package plan

import (
	"context"

	"github.com/surrealkv/surqlcore/internal/catalog"
	"github.com/surrealkv/surqlcore/internal/expr"
	"github.com/surrealkv/surqlcore/internal/keys"
	"github.com/surrealkv/surqlcore/internal/kv"
	"github.com/surrealkv/surqlcore/internal/value"
)

// Loader is the concrete expr.RecordLoader backing every EvalContext the
// planner builds: record-id lookups resolve through the catalog and the
// current transaction, and graph traversal scans the named edge table for
// "in"/"out" endpoints, since no adjacency index is maintained (the same
// tradeoff IndexSeekOp documents for secondary indexes).
type Loader struct {
	Catalog *catalog.Store
}

func NewLoader(cat *catalog.Store) *Loader { return &Loader{Catalog: cat} }

func (l *Loader) LoadRecord(ctx *expr.EvalContext, rid *value.RecordID) (value.Value, bool, error) {
	tx := ctx.Session.Tx
	return loadRecordByID(context.Background(), l.Catalog, tx, ctx.Session.Namespace, ctx.Session.Database, rid, kv.Version(0))
}

func (l *Loader) LoadGraph(ctx *expr.EvalContext, from *value.RecordID, dir expr.GraphDirection, table string, filter *expr.Expr) ([]value.Value, error) {
	c := context.Background()
	tx := ctx.Session.Tx
	nsID, dbID, tbID, err := resolveTable(c, l.Catalog, tx, ctx.Session.Namespace, ctx.Session.Database, table)
	if err != nil {
		return nil, err
	}
	prefix := keys.RecordPrefix(nsID, dbID, tbID)
	rows, err := tx.Scan(c, kv.Range{Begin: prefix, End: keys.PrefixEnd(prefix)}, 0, 0, kv.Version(0))
	if err != nil {
		return nil, err
	}
	var out []value.Value
	for _, row := range rows {
		fields, err := decodeRecord(row.Value)
		if err != nil {
			return nil, err
		}
		edgeIn, hasIn := fields["in"]
		edgeOut, hasOut := fields["out"]
		if !hasIn || !hasOut {
			continue
		}
		var targetField value.Value
		switch dir {
		case expr.GraphOut:
			if !recordIDEquals(edgeIn, from) {
				continue
			}
			targetField = edgeOut
		case expr.GraphIn:
			if !recordIDEquals(edgeOut, from) {
				continue
			}
			targetField = edgeIn
		case expr.GraphBoth:
			if recordIDEquals(edgeIn, from) {
				targetField = edgeOut
			} else if recordIDEquals(edgeOut, from) {
				targetField = edgeIn
			} else {
				continue
			}
		}
		targetRid, ok := targetField.AsRecordID()
		if !ok {
			continue
		}
		node, found, err := l.LoadRecord(ctx, targetRid)
		if err != nil {
			return nil, err
		}
		if !found {
			continue
		}
		if filter != nil {
			fc := ctx.WithCurrent(node)
			r := filter.Evaluate(&fc)
			if !r.IsOk() || !r.Value.IsTruthy() {
				continue
			}
		}
		out = append(out, node)
	}
	return out, nil
}

func recordIDEquals(v value.Value, rid *value.RecordID) bool {
	other, ok := v.AsRecordID()
	if !ok || other == nil || rid == nil {
		return false
	}
	return other.Table == rid.Table && value.CompareRecordID(other, rid) == 0
}
