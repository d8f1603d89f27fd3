// Package bolt implements internal/kv.Transactable over go.etcd.io/bbolt,
// the teacher's own storage backend (pkg/storage/boltdb.go), generalized
// from a bucket-per-resource layout to a single ordered keyspace with a
// version suffix per spec §4.1, plus the disk-space gate and durability
// modes spec §4.1 requires.
package bolt

import (
	"context"
	"encoding/binary"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/surrealkv/surqlcore/internal/kv"
	"github.com/surrealkv/surqlcore/internal/log"
	bboltlib "go.etcd.io/bbolt"
)

var (
	bucketData = []byte("data")
	bucketMeta = []byte("meta")
	keyNextVersion = []byte("next_version")
)

// Datastore opens transactions against a single bbolt file.
type Datastore struct {
	db   *bboltlib.DB
	path string

	writeMu sync.Mutex // serializes writable transactions, per spec §5

	diskSpace *diskSpaceManager
	commitCoord *commitCoordinator
	durability kv.Durability

	closeOnce sync.Once
	stopSync  chan struct{}
}

// Options configures a new Datastore.
type Options struct {
	Path              string
	DiskSpaceCapBytes int64
	Durability        kv.Durability
	SyncInterval      time.Duration
}

// Open opens (creating if absent) a bbolt-backed datastore at opts.Path.
func Open(opts Options) (*Datastore, error) {
	db, err := bboltlib.Open(opts.Path, 0600, nil)
	if err != nil {
		return nil, fmt.Errorf("bolt: open %s: %w", opts.Path, err)
	}

	err = db.Update(func(tx *bboltlib.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketData); err != nil {
			return err
		}
		b, err := tx.CreateBucketIfNotExists(bucketMeta)
		if err != nil {
			return err
		}
		if b.Get(keyNextVersion) == nil {
			var v [8]byte
			binary.BigEndian.PutUint64(v[:], 1)
			if err := b.Put(keyNextVersion, v[:]); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("bolt: init buckets: %w", err)
	}

	ds := &Datastore{
		db:          db,
		path:        opts.Path,
		diskSpace:   newDiskSpaceManager(opts.Path, opts.DiskSpaceCapBytes),
		commitCoord: newCommitCoordinator(db),
		durability:  opts.Durability,
		stopSync:    make(chan struct{}),
	}

	switch opts.Durability {
	case kv.DurabilityEvery:
		// db.NoSync defaults to false: every bbolt commit already fsyncs.
	case kv.DurabilityInterval:
		db.NoSync = true
		interval := opts.SyncInterval
		if interval <= 0 {
			interval = time.Second
		}
		go ds.runIntervalSync(interval)
	case kv.DurabilityNever:
		db.NoSync = true
	}

	return ds, nil
}

func (d *Datastore) runIntervalSync(interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	logger := log.WithComponent("bolt.durability")
	for {
		select {
		case <-ticker.C:
			if err := d.db.Sync(); err != nil {
				logger.Warn().Err(err).Msg("background fsync failed")
			}
		case <-d.stopSync:
			return
		}
	}
}

// Begin starts a new transaction. Writable transactions are serialized
// through writeMu, matching bbolt's own single-writer constraint and
// spec §5's "mutation operators acquire the inner transaction under a
// write lock".
func (d *Datastore) Begin(ctx context.Context, writeable bool) (kv.Transactable, error) {
	if writeable {
		d.writeMu.Lock()
	}

	btx, err := d.db.Begin(false) // always open bbolt's tx read-only; writes are buffered and flushed at Commit.
	if err != nil {
		if writeable {
			d.writeMu.Unlock()
		}
		return nil, fmt.Errorf("bolt: begin: %w", err)
	}

	snapshot, err := currentVersion(btx)
	if err != nil {
		btx.Rollback()
		if writeable {
			d.writeMu.Unlock()
		}
		return nil, err
	}

	return &Txn{
		ds:         d,
		btx:        btx,
		snapshotTS: snapshot,
		writeable:  writeable,
		pending:    map[string]*pendingOp{},
	}, nil
}

func currentVersion(btx *bboltlib.Tx) (uint64, error) {
	b := btx.Bucket(bucketMeta)
	v := b.Get(keyNextVersion)
	if v == nil {
		return 0, fmt.Errorf("bolt: missing next_version meta key")
	}
	return binary.BigEndian.Uint64(v) - 1, nil
}

// Close closes the underlying bbolt database.
func (d *Datastore) Close() error {
	var err error
	d.closeOnce.Do(func() {
		close(d.stopSync)
		err = d.db.Close()
	})
	return err
}

func dirSizeBytes(path string) (int64, error) {
	info, err := os.Stat(path)
	if err != nil {
		return 0, err
	}
	return info.Size(), nil
}
