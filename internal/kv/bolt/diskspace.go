package bolt

import (
	"sync/atomic"
)

// diskSpaceManager watches the backing file's size against a configured
// cap (spec §4.1 "Space gating"). When usage exceeds the cap, writable
// transactions may still read and delete, but any write that would grow
// usage fails with ErrReadAndDeleteOnly.
type diskSpaceManager struct {
	path string
	cap  int64 // 0 disables gating

	gatedFlag atomic.Bool
}

func newDiskSpaceManager(path string, capBytes int64) *diskSpaceManager {
	return &diskSpaceManager{path: path, cap: capBytes}
}

// gated reports whether the datastore is currently read-and-delete-only.
// It re-checks the backing file's size on every call rather than polling
// on a timer, so the gate lifts as soon as the file is back under the
// cap.
func (d *diskSpaceManager) gated() bool {
	if d.cap <= 0 {
		return false
	}
	size, err := dirSizeBytes(d.path)
	if err != nil {
		// Can't stat the file: keep the last observed gate state.
		return d.gatedFlag.Load()
	}
	gated := size > d.cap
	d.gatedFlag.Store(gated)
	return gated
}
