package backend

import (
	"github.com/leasestore/leasestore/pkg/db"
	"github.com/leasestore/leasestore/pkg/model"
)

// Backend drives all lease bookkeeping. It validates input, keeps the
// address pool in sync with the store, and reclaims expired leases.
type Backend interface {
	Lookup(mac string) (*db.LeaseEntry, error)
	LookupByIP(ip string) (*db.LeaseEntry, error)
	Assign(mac, ip, hostname string) (*db.LeaseEntry, error)
	Allocate(mac, requestedIP, hostname string) (*db.LeaseEntry, error)
	Release(mac string) (bool, error)
	ActiveLeases() *db.LeaseIter
	History(mac string) ([]db.LeaseEntry, error)
	Stats() (model.StatsResponse, error)
	StartSweeperDaemon(done <-chan struct{})
}
