package db

import (
	"time"
)

type Database interface {
	// Lookup returns the active lease for the hardware address, or
	// (nil, nil) when it has none.
	Lookup(mac string) (*LeaseEntry, error)

	// LookupByIP returns the active lease holding the address, or
	// (nil, nil) when the address is free.
	LookupByIP(ip string) (*LeaseEntry, error)

	// Assign ensures mac holds an active lease on ip. Creating,
	// renewing and moving to a different address are all atomic; a
	// renewal refreshes expiry and hostname in place, a move retires
	// the old row and inserts a new one. Returns ErrAddressConflict
	// when ip is actively held by a different hardware address.
	Assign(mac, ip, hostname string, expiresAt *time.Time) (*LeaseEntry, error)

	// Release soft-deletes the active lease for mac and returns the
	// released row, or (nil, nil) when there was nothing to release.
	Release(mac string) (*LeaseEntry, error)

	// ActiveLeases iterates the active leases in id order. The
	// iterator fetches in pages; obtaining a new one restarts from
	// the beginning.
	ActiveLeases() *LeaseIter

	// History returns every row ever written for mac, released rows
	// included, in id order.
	History(mac string) ([]LeaseEntry, error)

	// ExpireLeases soft-deletes every active lease whose expiry time
	// is set and earlier than asOf, returning the rows it retired.
	ExpireLeases(asOf time.Time) ([]LeaseEntry, error)

	// Counts reports the number of active leases and of rows overall.
	Counts() (active int64, total int64, err error)
}
