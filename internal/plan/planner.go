package plan

import (
	"fmt"

	"github.com/surrealkv/surqlcore/internal/agg"
	"github.com/surrealkv/surqlcore/internal/ast"
	"github.com/surrealkv/surqlcore/internal/expr"
	"github.com/surrealkv/surqlcore/internal/kverrors"
	"github.com/surrealkv/surqlcore/internal/value"
)

// Planner turns a parsed ast.Select into an Operator tree, applying
// clauses in the order spec §6 fixes: Split -> Filter -> Aggregate (only
// when grouping or aggregating) -> Omit -> Project/ProjectValue -> Sort ->
// Limit -> Fetch -> Timeout, over a table source wrapped in ComputeFields
// (and IndexSeek for WITH INDEX).
type Planner struct {
	Env *Env
}

func NewPlanner(env *Env) *Planner { return &Planner{Env: env} }

// PlanSelect builds the operator tree for one SELECT statement.
func (p *Planner) PlanSelect(s *ast.Select) (Operator, error) {
	if s.Only {
		return nil, &kverrors.Unimplemented{Feature: "SELECT ONLY (single-row unwrap)"}
	}
	if s.Explain || s.ExplainFull {
		return nil, &kverrors.Unimplemented{Feature: "EXPLAIN output"}
	}

	sources := make([]Operator, 0, len(s.From))
	tableName := ""
	for _, src := range s.From {
		op, name := p.planSource(src, s.Version)
		sources = append(sources, op)
		if tableName == "" && name != "" {
			tableName = name
		}
	}
	var op Operator
	switch len(sources) {
	case 0:
		return nil, fmt.Errorf("plan: SELECT has no FROM source")
	case 1:
		op = sources[0]
	default:
		op = &UnionOp{Inputs: sources}
	}

	if tableName != "" {
		op = &ComputeFieldsOp{Input: op, Table: tableName, Env: p.Env}
	}

	if len(s.WithIndex) > 0 && tableName != "" {
		op = &IndexSeekOp{Table: tableName, IndexName: s.WithIndex[0], Predicate: op, Env: p.Env}
	}

	if len(s.Split) > 0 {
		op = &SplitOp{Input: op, Idioms: s.Split, Env: p.Env}
	}

	if s.Where != nil {
		op = &FilterOp{Input: op, Predicate: s.Where, Env: p.Env}
	}

	selectorExprs, fieldNames := p.selectExprs(s)
	aggPlan, err := agg.Analyze(selectorExprs, s.GroupBy, true)
	if err != nil {
		return nil, &kverrors.AggregationSelectorError{Expr: err.Error()}
	}
	aggregating := len(s.GroupBy) > 0 || len(aggPlan.Accumulators) > 0

	if aggregating {
		op = &AggregateOp{Input: op, Plan: aggPlan, Env: p.Env}
		tableName = "" // synthetic group rows carry no table-field permissions
	}

	if len(s.Omit) > 0 {
		op = &OmitOp{Input: op, Idioms: s.Omit}
	}

	if s.Value {
		op = &ProjectValueOp{Input: op, Expr: selectorExprs[0], Env: p.Env}
	} else {
		fields := make([]SelectOutField, len(selectorExprs))
		for i, e := range selectorExprs {
			fields[i] = SelectOutField{Name: fieldNames[i], Expr: e}
		}
		op = &ProjectOp{Input: op, Table: tableName, Fields: fields, Env: p.Env}
	}

	if len(s.OrderBy) > 0 {
		keys := make([]SortKey, len(s.OrderBy))
		for i, o := range s.OrderBy {
			if o.Rand {
				keys[i] = SortKey{Rand: true}
				continue
			}
			keys[i] = SortKey{Idiom: o.Key, Desc: o.Desc, NullsLast: o.NullsLast}
		}
		op = &SortOp{Input: op, Keys: keys, Env: p.Env}
	}

	if s.Start != nil || s.Limit != nil {
		op = &LimitOp{Input: op, Start: s.Start, Limit: s.Limit, Env: p.Env}
	}

	if len(s.Fetch) > 0 {
		op = &FetchOp{Input: op, Idioms: s.Fetch, Env: p.Env}
	}

	if s.Timeout != nil {
		op = &TimeoutOp{Input: op, Duration: *s.Timeout}
	}

	return op, nil
}

// PlanMutation builds the operator for CREATE/UPDATE/UPSERT/DELETE, and
// for INSERT (kind == ast.KindInsert, whose single target names the
// destination table and whose Content is the array-of-objects to bulk
// insert rather than a per-target object).
func (p *Planner) PlanMutation(kind ast.StatementKind, m *ast.Mutation) (Operator, error) {
	switch kind {
	case ast.KindCreate:
		return &CreateOp{Mutation: m, Env: p.Env}, nil
	case ast.KindUpdate:
		return &UpdateOp{Mutation: m, Env: p.Env}, nil
	case ast.KindUpsert:
		return &UpsertOp{Mutation: m, Env: p.Env}, nil
	case ast.KindDelete:
		return &DeleteOp{Mutation: m, Env: p.Env}, nil
	case ast.KindInsert:
		if len(m.Targets) != 1 {
			return nil, fmt.Errorf("plan: INSERT takes exactly one target table")
		}
		table, ok := literalTableName(m.Targets[0])
		if !ok {
			return nil, &kverrors.Unimplemented{Feature: "INSERT INTO with a non-literal table target"}
		}
		return &InsertOp{Table: table, Rows: m.Content, Return: m.Return, Env: p.Env}, nil
	default:
		return nil, fmt.Errorf("plan: %v is not a mutation statement kind", kind)
	}
}

// PlanRelate builds the operator for RELATE from->edge->to.
func (p *Planner) PlanRelate(r *ast.Relate) (Operator, error) {
	return &RelateOp{Relate: r, Env: p.Env}, nil
}

// literalTableName accepts only a bare single-field idiom or a string
// literal as a table name resolvable at plan time, mirroring planSource's
// same restriction for FROM sources.
func literalTableName(e *expr.Expr) (string, bool) {
	switch e.Kind {
	case expr.KindIdiom:
		if e.Idiom.Base == nil && e.Idiom.Len() == 1 && e.Idiom.Parts[0].Kind == expr.PartField {
			return e.Idiom.Parts[0].Field, true
		}
	case expr.KindLiteral:
		if s, ok := e.Literal.AsString(); ok {
			return s, true
		}
	}
	return "", false
}

// planSource builds the source operator for one FROM entry, and returns
// the table name to use for permission checks when the source resolves
// to a bare table reference or a single record-id (spec §4.3's "derives
// the table name for permission checks: first FROM source that is a
// literal table, length-1 idiom, or record-id literal").
func (p *Planner) planSource(src *expr.Expr, version *expr.Expr) (Operator, string) {
	ver := resolveVersionLiteral(version)
	switch src.Kind {
	case expr.KindIdiom:
		if src.Idiom.Base == nil && src.Idiom.Len() == 1 && src.Idiom.Parts[0].Kind == expr.PartField {
			table := src.Idiom.Parts[0].Field
			return &ScanOp{Table: table, Version: ver, Env: p.Env}, table
		}
	case expr.KindRecordID:
		return &RecordIdLookupOp{RID: src.RecordID, Version: ver, Env: p.Env}, src.RecordID.Table
	}
	return &DynamicSourceOp{Expr: src, Env: p.Env}, ""
}

// resolveVersionLiteral accepts only a literal VERSION clause at plan
// time; a parameter- or expression-valued VERSION clause is ignored,
// since Scan/RecordIdLookup resolve their version bound once before any
// row context exists. Scan/RecordIdLookup use a numeric literal as a
// commit version (VERSION 123) and read current data for any other
// literal, including a datetime (VERSION d"...").
func resolveVersionLiteral(e *expr.Expr) *value.Value {
	if e == nil || e.Kind != expr.KindLiteral {
		return nil
	}
	return &e.Literal
}

// selectExprs flattens the statement's projected fields into parallel
// expression/name slices (a single entry for SELECT VALUE).
func (p *Planner) selectExprs(s *ast.Select) ([]*expr.Expr, []string) {
	if s.Value {
		if len(s.Fields) == 0 {
			return nil, nil
		}
		return []*expr.Expr{s.Fields[0].Expr}, []string{""}
	}
	exprs := make([]*expr.Expr, len(s.Fields))
	names := make([]string, len(s.Fields))
	for i, f := range s.Fields {
		exprs[i] = f.Expr
		if f.Alias != "" {
			names[i] = f.Alias
		} else {
			names[i] = deriveFieldName(f.Expr, i)
		}
	}
	return exprs, names
}

func deriveFieldName(e *expr.Expr, index int) string {
	switch e.Kind {
	case expr.KindIdiom:
		if name := lastFieldName(e.Idiom); name != "" {
			return name
		}
	case expr.KindCall:
		return e.Call.Name
	}
	return fmt.Sprintf("field_%d", index)
}
