package backend

import (
	"github.com/sirupsen/logrus"
	"k8s.io/apimachinery/pkg/util/wait"
)

func (b *backend) StartSweeperDaemon(stopCh <-chan struct{}) {
	if b.leaseTTL <= 0 {
		logrus.Info("lease expiry disabled, not starting sweeper")
		return
	}

	logrus.Infof("starting sweeper daemon. Sweep interval: %v, lease ttl: %v",
		b.sweepInterval, b.leaseTTL)
	wait.JitterUntil(b.sweep, b.sweepInterval, .002, true, stopCh)
}

// sweep retires every lease whose expiry has passed and hands the
// addresses back to the pool.
func (b *backend) sweep() {
	expired, err := b.db.ExpireLeases(b.clock.Now())
	if err != nil {
		logrus.Errorf("problem expiring leases: %v", err)
		return
	}

	for i := range expired {
		entry := &expired[i]
		b.pool.Release(entry.IPAddr)
		b.unpublish(entry)
	}

	if len(expired) > 0 {
		logrus.Infof("Leases expired: %v", len(expired))
	}
}
