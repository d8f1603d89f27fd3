// Package catalog implements the namespace/database/table/field/index/
// access-method/user definitions spec §2 and §6 describe: each is stored
// as a single KV entry under the hierarchical key prefixes internal/keys
// builds, serialized with internal/codec's revision-tagged byte layout.
package catalog

import (
	"context"
	"fmt"

	"github.com/surrealkv/surqlcore/internal/codec"
	"github.com/surrealkv/surqlcore/internal/expr"
	"github.com/surrealkv/surqlcore/internal/keys"
	"github.com/surrealkv/surqlcore/internal/kv"
	"github.com/surrealkv/surqlcore/internal/seq"
	"github.com/surrealkv/surqlcore/internal/value"
)

// PermissionKind discriminates a CRUD permission clause.
type PermissionKind int

const (
	PermFull PermissionKind = iota
	PermNone
	PermWhere
)

// Permission is one `FOR <op> <clause>` permission. The zero value is
// PermFull, matching the engine default for a field with no explicit
// PERMISSIONS clause.
type Permission struct {
	Kind      PermissionKind
	Condition *expr.Expr // set when Kind == PermWhere
}

// Allows reports whether row passes this permission's condition, given an
// owner override: owners bypass every permission per spec §7.
func (p Permission) Allows(ctx *expr.EvalContext, isOwner bool) bool {
	if isOwner {
		return true
	}
	switch p.Kind {
	case PermFull:
		return true
	case PermNone:
		return false
	case PermWhere:
		r := p.Condition.Evaluate(ctx)
		return r.IsOk() && r.Value.IsTruthy()
	default:
		return false
	}
}

// CRUDPermissions holds the four permission clauses DEFINE TABLE/FIELD
// can carry.
type CRUDPermissions struct {
	Select Permission
	Create Permission
	Update Permission
	Delete Permission
}

// NamespaceDef is the definition stored at /root/ns/<ns>.
type NamespaceDef struct {
	ID   uint32
	Name string
}

// DatabaseDef is the definition stored at /root/ns/<ns>/db/<db>.
type DatabaseDef struct {
	ID   uint32
	Name string
}

// TableDef is the definition stored at .../tb/<tb>.
type TableDef struct {
	ID          uint32
	Name        string
	Schemafull  bool
	Permissions CRUDPermissions
}

// FieldDef is the definition stored at .../tb/<tb>/fd/<idiom>.
type FieldDef struct {
	Idiom       string
	Kind        *value.Kind // nil means untyped
	Default     *expr.Expr  // nil means no default
	Computed    *expr.Expr  // VALUE clause; nil means stored, not computed
	Permissions CRUDPermissions
}

// IndexKind discriminates an index's matching strategy.
type IndexKind int

const (
	IndexStandard IndexKind = iota
	IndexUnique
	IndexFullText
)

// IndexDef is the definition stored at .../tb/<tb>/ix/<name>.
type IndexDef struct {
	Name   string
	Fields []string
	Kind   IndexKind
}

// AccessMethodKind discriminates the access-method variants spec §3's
// Access Grant body describes.
type AccessMethodKind int

const (
	AccessJWT AccessMethodKind = iota
	AccessRecord
	AccessBearer
)

// AccessMethodDef is the definition stored at /{base}/access/<name>.
type AccessMethodDef struct {
	Name           string
	Kind           AccessMethodKind
	AllowedBases   []keys.Base
	JWKSURL        string // JWT/Record variants verified against a remote JWKS
	TokenTTLSecs   int64
	RecordTable    string // Record variant: subject table
}

// UserDef is the definition stored at /{base}/user/<name>.
type UserDef struct {
	Name         string
	PasswordHash string
	Roles        []string
}

// Store wraps a transaction with catalog read/write helpers. It does not
// hold its own transaction; callers pass one per call so catalog
// mutations share the caller's commit/rollback boundary.
type Store struct{}

func NewStore() *Store { return &Store{} }

func (s *Store) PutNamespace(ctx context.Context, tx kv.Transactable, def NamespaceDef) error {
	return putDef(ctx, tx, keys.Namespace(def.Name), def)
}

func (s *Store) GetNamespace(ctx context.Context, tx kv.Transactable, ns string) (NamespaceDef, bool, error) {
	var def NamespaceDef
	ok, err := getDef(ctx, tx, keys.Namespace(ns), &def)
	return def, ok, err
}

func (s *Store) PutDatabase(ctx context.Context, tx kv.Transactable, ns string, def DatabaseDef) error {
	return putDef(ctx, tx, keys.Database(ns, def.Name), def)
}

func (s *Store) GetDatabase(ctx context.Context, tx kv.Transactable, ns, db string) (DatabaseDef, bool, error) {
	var def DatabaseDef
	ok, err := getDef(ctx, tx, keys.Database(ns, db), &def)
	return def, ok, err
}

// EnsureTable returns tb's definition, defining it with a freshly
// allocated id on first reference if it doesn't exist yet. Spec §7 notes
// this implicit-creation path is the dominant source of user-visible
// commit conflicts under parallel writers, and that callers SHOULD
// pre-define tables instead; EnsureTable is the fallback that makes an
// un-pre-defined CREATE/INSERT/UPSERT still work.
func (s *Store) EnsureTable(ctx context.Context, tx kv.Transactable, seqAlloc *seq.Allocator, ns, db, tb string) (TableDef, error) {
	def, ok, err := s.GetTable(ctx, tx, ns, db, tb)
	if err != nil || ok {
		return def, err
	}
	low, _, err := seqAlloc.Allocate(ctx, tx, ns, db, "__tables__", 1)
	if err != nil {
		return TableDef{}, err
	}
	def = TableDef{ID: uint32(low) + 1, Name: tb}
	if err := s.PutTable(ctx, tx, ns, db, def); err != nil {
		return TableDef{}, err
	}
	return def, nil
}

func (s *Store) PutTable(ctx context.Context, tx kv.Transactable, ns, db string, def TableDef) error {
	return putDef(ctx, tx, keys.Table(ns, db, def.Name), def)
}

func (s *Store) GetTable(ctx context.Context, tx kv.Transactable, ns, db, tb string) (TableDef, bool, error) {
	var def TableDef
	ok, err := getDef(ctx, tx, keys.Table(ns, db, tb), &def)
	return def, ok, err
}

func (s *Store) PutField(ctx context.Context, tx kv.Transactable, ns, db, tb string, def FieldDef) error {
	return putDef(ctx, tx, keys.Field(ns, db, tb, def.Idiom), def)
}

func (s *Store) GetField(ctx context.Context, tx kv.Transactable, ns, db, tb, idiom string) (FieldDef, bool, error) {
	var def FieldDef
	ok, err := getDef(ctx, tx, keys.Field(ns, db, tb, idiom), &def)
	return def, ok, err
}

// Fields lists every field definition on a table in ascending byte order
// of Idiom, the order of their keys under the table's field prefix.
func (s *Store) Fields(ctx context.Context, tx kv.Transactable, ns, db, tb string) ([]FieldDef, error) {
	prefix := keys.FieldPrefix(ns, db, tb)
	rows, err := tx.Scan(ctx, kv.Range{Begin: prefix, End: keys.PrefixEnd(prefix)}, 0, 0, 0)
	if err != nil {
		return nil, err
	}
	out := make([]FieldDef, 0, len(rows))
	for _, row := range rows {
		var def FieldDef
		if err := codec.Decode(row.Value, &def); err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

func (s *Store) PutIndex(ctx context.Context, tx kv.Transactable, ns, db, tb string, def IndexDef) error {
	return putDef(ctx, tx, keys.Index(ns, db, tb, def.Name), def)
}

func (s *Store) GetIndex(ctx context.Context, tx kv.Transactable, ns, db, tb, name string) (IndexDef, bool, error) {
	var def IndexDef
	ok, err := getDef(ctx, tx, keys.Index(ns, db, tb, name), &def)
	return def, ok, err
}

func (s *Store) Indexes(ctx context.Context, tx kv.Transactable, ns, db, tb string) ([]IndexDef, error) {
	prefix := keys.IndexPrefix(ns, db, tb)
	rows, err := tx.Scan(ctx, kv.Range{Begin: prefix, End: keys.PrefixEnd(prefix)}, 0, 0, 0)
	if err != nil {
		return nil, err
	}
	out := make([]IndexDef, 0, len(rows))
	for _, row := range rows {
		var def IndexDef
		if err := codec.Decode(row.Value, &def); err != nil {
			return nil, err
		}
		out = append(out, def)
	}
	return out, nil
}

func (s *Store) PutAccessMethod(ctx context.Context, tx kv.Transactable, base keys.Base, ns, db string, def AccessMethodDef) error {
	return putDef(ctx, tx, keys.AccessMethod(base, ns, db, def.Name), def)
}

func (s *Store) GetAccessMethod(ctx context.Context, tx kv.Transactable, base keys.Base, ns, db, name string) (AccessMethodDef, bool, error) {
	var def AccessMethodDef
	ok, err := getDef(ctx, tx, keys.AccessMethod(base, ns, db, name), &def)
	return def, ok, err
}

func (s *Store) PutUser(ctx context.Context, tx kv.Transactable, base keys.Base, ns, db string, def UserDef) error {
	return putDef(ctx, tx, keys.User(base, ns, db, def.Name), def)
}

func (s *Store) GetUser(ctx context.Context, tx kv.Transactable, base keys.Base, ns, db, name string) (UserDef, bool, error) {
	var def UserDef
	ok, err := getDef(ctx, tx, keys.User(base, ns, db, name), &def)
	return def, ok, err
}

func putDef(ctx context.Context, tx kv.Transactable, key []byte, def any) error {
	b, err := codec.Encode(def)
	if err != nil {
		return fmt.Errorf("catalog: encode: %w", err)
	}
	return tx.Set(ctx, key, b, 0)
}

func getDef(ctx context.Context, tx kv.Transactable, key []byte, out any) (bool, error) {
	b, ok, err := tx.Get(ctx, key, 0)
	if err != nil || !ok {
		return false, err
	}
	if err := codec.Decode(b, out); err != nil {
		return false, fmt.Errorf("catalog: decode: %w", err)
	}
	return true, nil
}
