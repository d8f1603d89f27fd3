// Package keys builds the ordered byte keys the KV layer stores
// everything under, following the logical layout in spec §6:
//
//	/root/ns/<ns>
//	/root/ns/<ns>/db/<db>
//	/root/ns/<ns>/db/<db>/tb/<tb>
//	/root/ns/<ns>/db/<db>/tb/<tb>/fd/<idiom>
//	/root/ns/<ns>/db/<db>/tb/<tb>/ix/<name>
//	/{root|ns|db}/access/<name>
//	/{root|ns|db}/access/<name>/gr/<id>
//
// Keys are built as NUL-separated segments so lexicographic byte order on
// the whole key matches the hierarchical order intended above: a NUL
// sorts before any printable byte, so "ns/a" sorts before "ns/a/db/b" and
// before "ns/ab", and no valid name (object/field/user/... names are
// required to be NUL-free per spec §3) can forge a spurious separator.
package keys

import "bytes"

const sep = 0x00

// Base identifies which level an access method or grant is attached to.
type Base int

const (
	BaseRoot Base = iota
	BaseNamespace
	BaseDatabase
)

func (b Base) String() string {
	switch b {
	case BaseRoot:
		return "root"
	case BaseNamespace:
		return "ns"
	case BaseDatabase:
		return "db"
	default:
		return "unknown"
	}
}

func build(parts ...string) []byte {
	var buf bytes.Buffer
	for i, p := range parts {
		if i > 0 {
			buf.WriteByte(sep)
		}
		buf.WriteString(p)
	}
	return buf.Bytes()
}

func Namespace(ns string) []byte { return build("root", "ns", ns) }

func Database(ns, db string) []byte { return build("root", "ns", ns, "db", db) }

func Table(ns, db, tb string) []byte { return build("root", "ns", ns, "db", db, "tb", tb) }

func Field(ns, db, tb, field string) []byte {
	return build("root", "ns", ns, "db", db, "tb", tb, "fd", field)
}

func Index(ns, db, tb, name string) []byte {
	return build("root", "ns", ns, "db", db, "tb", tb, "ix", name)
}

// NamespacePrefix/DatabasePrefix/TablePrefix etc. return the range prefix
// used to list children of a catalog level (e.g. all tables in a db).
func NamespacePrefix() []byte            { return build("root", "ns") }
func DatabasePrefix(ns string) []byte    { return build("root", "ns", ns, "db") }
func TablePrefix(ns, db string) []byte   { return build("root", "ns", ns, "db", db, "tb") }
func FieldPrefix(ns, db, tb string) []byte { return build("root", "ns", ns, "db", db, "tb", tb, "fd") }
func IndexPrefix(ns, db, tb string) []byte { return build("root", "ns", ns, "db", db, "tb", tb, "ix") }

// AccessMethod returns the key for the access method definition at base.
func AccessMethod(base Base, ns, db, name string) []byte {
	return append(basePrefix(base, ns, db), build("access", name)...)
}

// AccessGrant returns the key for a single grant under an access method.
func AccessGrant(base Base, ns, db, method, id string) []byte {
	return append(basePrefix(base, ns, db), build("access", method, "gr", id)...)
}

// AccessGrantPrefix returns the range prefix for all grants under method.
func AccessGrantPrefix(base Base, ns, db, method string) []byte {
	return append(basePrefix(base, ns, db), build("access", method, "gr")...)
}

func basePrefix(base Base, ns, db string) []byte {
	switch base {
	case BaseRoot:
		return append(build("root"), sep)
	case BaseNamespace:
		return append(Namespace(ns), sep)
	case BaseDatabase:
		return append(Database(ns, db), sep)
	}
	return nil
}

// User returns the key for a user definition at base.
func User(base Base, ns, db, name string) []byte {
	return append(basePrefix(base, ns, db), build("user", name)...)
}

// Sequence returns the key for a named sequence's high-water mark.
func Sequence(ns, db, name string) []byte {
	return build("root", "ns", ns, "db", db, "sq", name)
}

// Record returns the key a record's content is stored under. Keys are
// shortened by using the table and database's numeric ids rather than
// their names, per spec §3; callers resolve those ids via the catalog
// before calling Record.
func Record(nsID, dbID, tbID uint32, keyBytes []byte) []byte {
	buf := make([]byte, 0, 12+len(keyBytes))
	buf = appendUint32(buf, nsID)
	buf = appendUint32(buf, dbID)
	buf = appendUint32(buf, tbID)
	buf = append(buf, keyBytes...)
	return buf
}

// RecordPrefix returns the range prefix for every record in a table.
func RecordPrefix(nsID, dbID, tbID uint32) []byte {
	buf := make([]byte, 0, 12)
	buf = appendUint32(buf, nsID)
	buf = appendUint32(buf, dbID)
	buf = appendUint32(buf, tbID)
	return buf
}

func appendUint32(buf []byte, v uint32) []byte {
	return append(buf, byte(v>>24), byte(v>>16), byte(v>>8), byte(v))
}

// PrefixEnd returns the exclusive upper bound of the range covering every
// key with the given prefix: the prefix with its last non-0xFF byte
// incremented and everything after that byte dropped.
func PrefixEnd(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		if end[i] != 0xFF {
			end[i]++
			return end[:i+1]
		}
	}
	return append(end, 0xFF)
}
