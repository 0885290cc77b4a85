// Package filelock provides the advisory file lock contract spec §4.5
// requires of the Listener Fan-Out: a mutex across a pool of processes so
// that only one of them blocks in accept() at a time.
//
// The teacher (gaio) and the rest of the retrieval pack carry no file
// locking dependency, so this wraps the real ecosystem library
// github.com/gofrs/flock -- named in DESIGN.md as an out-of-pack
// dependency, not pack-grounded.
package filelock

import "github.com/gofrs/flock"

// Lock is an advisory, cross-process, non-blocking file lock: the
// Go-native equivalent of the original's FileMtx (frame.h).
type Lock struct {
	f *flock.Flock
}

// Open returns a Lock bound to path. The file is created if it doesn't
// exist; it is not removed on Close (matching the original's
// /tmp/tinyco_lf_<pid> artifact, which is the one persisted artifact
// spec §6 names).
func Open(path string) (*Lock, error) {
	return &Lock{f: flock.New(path)}, nil
}

// TryLock attempts to acquire the lock without blocking. It returns
// (true, nil) on success, (false, nil) if another process currently
// holds it, and a non-nil error only on an unexpected OS failure.
func (l *Lock) TryLock() (bool, error) {
	return l.f.TryLock()
}

// Unlock releases the lock. Safe to call even if this process doesn't
// currently hold it (idempotent, matching the advisory-lock contract
// spec §4.5 relies on for "release immediately" semantics).
func (l *Lock) Unlock() error {
	if !l.f.Locked() {
		return nil
	}
	return l.f.Unlock()
}

// Close releases any held lock and closes the underlying file descriptor.
func (l *Lock) Close() error {
	return l.f.Close()
}
