package db

import "errors"

var (
	// ErrAddressConflict means the IP is actively held by a different
	// hardware address. Expected under concurrent assignment; the
	// caller decides whether to pick another address or give up.
	ErrAddressConflict = errors.New("store: address already leased")

	// ErrNotFound reports that no active lease exists for the given
	// key. The db layer itself returns (nil, nil) on a miss; callers
	// that prefer an error use this.
	ErrNotFound = errors.New("store: no active lease")

	// ErrStorage wraps failures of the underlying database: I/O
	// errors, operation deadlines, lock contention that outlived its
	// retries. Callers must not treat a lease change as applied once
	// they see it.
	ErrStorage = errors.New("store: storage failure")
)
