package bolt

import (
	"sync"

	bboltlib "go.etcd.io/bbolt"
)

// commitCoordinator is the Datastore's hook for commit-time fsync
// handling. It holds no batching logic: under DurabilityEvery bbolt
// fsyncs on every db.Update, and since writable transactions are
// serialized through Datastore.writeMu, concurrent committers queue on
// that lock and each commit issues its own fsync rather than sharing one
// per batch.
type commitCoordinator struct {
	db *bboltlib.DB
	mu sync.Mutex
}

func newCommitCoordinator(db *bboltlib.DB) *commitCoordinator {
	return &commitCoordinator{db: db}
}
