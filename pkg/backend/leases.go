package backend

import (
	"errors"
	"fmt"
	"time"

	"github.com/juju/clock"
	"github.com/leasestore/leasestore/pkg/db"
	"github.com/leasestore/leasestore/pkg/model"
	"github.com/leasestore/leasestore/pkg/pool"
	"github.com/sirupsen/logrus"
)

type backend struct {
	db    db.Database
	pool  *pool.Pool
	ddns  Publisher
	clock clock.Clock

	leaseTTL      time.Duration
	sweepInterval time.Duration
}

func NewBackend(database db.Database, addrPool *pool.Pool, publisher Publisher, leaseTTL, sweepInterval time.Duration) (Backend, error) {
	if publisher == nil {
		publisher = NewNoopPublisher()
	}

	b := &backend{
		db:            database,
		pool:          addrPool,
		ddns:          publisher,
		clock:         clock.WallClock,
		leaseTTL:      leaseTTL,
		sweepInterval: sweepInterval,
	}

	if err := b.seedPool(); err != nil {
		return nil, err
	}
	return b, nil
}

// seedPool marks every address with an active lease as in use so that
// the pool and the store agree after a restart.
func (b *backend) seedPool() error {
	var seeded int
	it := b.db.ActiveLeases()
	for it.Next() {
		b.pool.MarkUsed(it.Lease().IPAddr)
		seeded++
	}
	if err := it.Err(); err != nil {
		return fmt.Errorf("failed to seed address pool: %v", err)
	}

	logrus.Infof("address pool %v: %v free, %v leased, %v reserved",
		b.pool.Network(), b.pool.Free(), seeded, len(b.pool.ReservedAddrs()))
	return nil
}

func (b *backend) Lookup(mac string) (*db.LeaseEntry, error) {
	mac, err := model.NormalizeMAC(mac)
	if err != nil {
		return nil, err
	}

	entry, err := b.db.Lookup(mac)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, db.ErrNotFound
	}
	return entry, nil
}

func (b *backend) LookupByIP(ip string) (*db.LeaseEntry, error) {
	ip, err := model.NormalizeIPv4(ip)
	if err != nil {
		return nil, err
	}

	entry, err := b.db.LookupByIP(ip)
	if err != nil {
		return nil, err
	}
	if entry == nil {
		return nil, db.ErrNotFound
	}
	return entry, nil
}

// Assign leases ip to mac, renewing in place when the client already
// holds that address and retiring its old lease when it moved.
func (b *backend) Assign(mac, ip, hostname string) (*db.LeaseEntry, error) {
	mac, err := model.NormalizeMAC(mac)
	if err != nil {
		return nil, err
	}
	ip, err = model.NormalizeIPv4(ip)
	if err != nil {
		return nil, err
	}

	prev, err := b.db.Lookup(mac)
	if err != nil {
		return nil, err
	}

	entry, err := b.db.Assign(mac, ip, hostname, b.expiry())
	if err != nil {
		return nil, err
	}

	b.pool.MarkUsed(entry.IPAddr)
	if prev != nil && prev.IPAddr != entry.IPAddr {
		b.pool.Release(prev.IPAddr)
		b.unpublish(prev)
	}
	b.publish(entry)

	logrus.Debugf("assigned %v to %v", entry.IPAddr, entry.MacAddr)
	return entry, nil
}

// Allocate picks an address for mac. An existing lease is renewed, a
// free requested address is honored, and otherwise the pool decides.
func (b *backend) Allocate(mac, requestedIP, hostname string) (*db.LeaseEntry, error) {
	mac, err := model.NormalizeMAC(mac)
	if err != nil {
		return nil, err
	}

	existing, err := b.db.Lookup(mac)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return b.Assign(mac, existing.IPAddr, hostname)
	}

	if requestedIP != "" {
		if ip, err := model.NormalizeIPv4(requestedIP); err == nil && b.pool.Claim(ip) {
			entry, err := b.Assign(mac, ip, hostname)
			switch {
			case err == nil:
				return entry, nil
			case errors.Is(err, db.ErrAddressConflict):
				// The store is the source of truth. The address stays
				// marked used and the pool picks another one below.
			default:
				b.pool.Release(ip)
				return nil, err
			}
		}
	}

	for {
		ip, err := b.pool.Acquire()
		if err != nil {
			return nil, err
		}

		entry, err := b.Assign(mac, ip, hostname)
		if err == nil {
			return entry, nil
		}
		if errors.Is(err, db.ErrAddressConflict) {
			continue
		}
		b.pool.Release(ip)
		return nil, err
	}
}

// Release retires the active lease for mac. Releasing a mac without an
// active lease is not an error and reports false.
func (b *backend) Release(mac string) (bool, error) {
	mac, err := model.NormalizeMAC(mac)
	if err != nil {
		return false, err
	}

	entry, err := b.db.Release(mac)
	if err != nil {
		return false, err
	}
	if entry == nil {
		return false, nil
	}

	b.pool.Release(entry.IPAddr)
	b.unpublish(entry)

	logrus.Debugf("released %v from %v", entry.IPAddr, entry.MacAddr)
	return true, nil
}

func (b *backend) ActiveLeases() *db.LeaseIter {
	return b.db.ActiveLeases()
}

func (b *backend) History(mac string) ([]db.LeaseEntry, error) {
	mac, err := model.NormalizeMAC(mac)
	if err != nil {
		return nil, err
	}
	return b.db.History(mac)
}

func (b *backend) Stats() (model.StatsResponse, error) {
	active, total, err := b.db.Counts()
	if err != nil {
		return model.StatsResponse{}, err
	}

	return model.StatsResponse{
		ActiveLeases:  active,
		TotalEntries:  total,
		FreeAddresses: b.pool.Free(),
	}, nil
}

func (b *backend) expiry() *time.Time {
	if b.leaseTTL <= 0 {
		return nil
	}
	t := b.clock.Now().Add(b.leaseTTL)
	return &t
}

func (b *backend) publish(entry *db.LeaseEntry) {
	if err := b.ddns.Publish(entry); err != nil {
		logrus.Errorf("problem publishing DNS record for %v: %v", entry.MacAddr, err)
	}
}

func (b *backend) unpublish(entry *db.LeaseEntry) {
	if err := b.ddns.Unpublish(entry); err != nil {
		logrus.Errorf("problem removing DNS record for %v: %v", entry.MacAddr, err)
	}
}
