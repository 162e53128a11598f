package db

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/driver/mysql"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

const (
	defaultOpTimeout = 5 * time.Second

	// Bounded retries for transient engine errors (sqlite busy, mysql
	// deadlock) before the failure surfaces as ErrStorage.
	writeAttempts = 3
	retryDelay    = 25 * time.Millisecond
)

type database struct {
	db      *gorm.DB
	ctx     context.Context
	timeout time.Duration

	// mu serializes the check-then-write sequences of the mutating
	// operations. sqlite additionally enforces the active-uniqueness
	// invariants with partial indexes; mysql has no partial indexes,
	// so there the lock carries the invariant alone.
	mu sync.Mutex
}

// New creates a new database connection, migrates the lease_entries
// table and installs the active-uniqueness indexes. opTimeout bounds
// every store operation; zero selects the default.
func New(ctx context.Context, dialect string, dsn string, opTimeout time.Duration, config *gorm.Config) (Database, error) {
	if config == nil {
		config = &gorm.Config{
			Logger: logger.Default.LogMode(logger.Silent),
		}
	}
	if opTimeout <= 0 {
		opTimeout = defaultOpTimeout
	}

	var db *gorm.DB
	var err error

	switch dialect {
	case "sqlite":
		db, err = gorm.Open(sqlite.Open(dsn), config)
	case "mysql":
		db, err = gorm.Open(mysql.Open(dsn), config)
	default:
		return nil, fmt.Errorf("unsupported dialect: %s", dialect)
	}
	if err != nil {
		return nil, err
	}

	if err := db.WithContext(ctx).AutoMigrate(&LeaseEntry{}); err != nil {
		return nil, err
	}

	if dialect == "sqlite" {
		// Uniqueness over the active subset only. Deleted rows stay
		// behind as history and must not occupy the unique slot.
		for _, ddl := range []string{
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_lease_entries_active_mac ON lease_entries (mac_addr) WHERE deleted = 0`,
			`CREATE UNIQUE INDEX IF NOT EXISTS idx_lease_entries_active_ip ON lease_entries (ip_addr) WHERE deleted = 0`,
		} {
			if err := db.WithContext(ctx).Exec(ddl).Error; err != nil {
				return nil, err
			}
		}
	}

	d := &database{
		db:      db,
		ctx:     ctx,
		timeout: opTimeout,
	}
	return d, nil
}

func (d *database) Lookup(mac string) (*LeaseEntry, error) {
	ctx, cancel := d.opCtx()
	defer cancel()

	var entry LeaseEntry
	err := d.withRetry(func() error {
		entry = LeaseEntry{}
		return d.db.WithContext(ctx).Where("mac_addr = ? AND deleted = 0", mac).Limit(1).Find(&entry).Error
	})
	if err != nil {
		return nil, storageErr(err)
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

func (d *database) LookupByIP(ip string) (*LeaseEntry, error) {
	ctx, cancel := d.opCtx()
	defer cancel()

	var entry LeaseEntry
	err := d.withRetry(func() error {
		entry = LeaseEntry{}
		return d.db.WithContext(ctx).Where("ip_addr = ? AND deleted = 0", ip).Limit(1).Find(&entry).Error
	})
	if err != nil {
		return nil, storageErr(err)
	}
	if entry.ID == 0 {
		return nil, nil
	}
	return &entry, nil
}

func (d *database) Assign(mac, ip, hostname string, expiresAt *time.Time) (*LeaseEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.opCtx()
	defer cancel()

	var out LeaseEntry
	err := d.withRetry(func() error {
		return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var holder LeaseEntry
			if sql := tx.Where("ip_addr = ? AND deleted = 0", ip).Limit(1).Find(&holder); sql.Error != nil {
				return sql.Error
			}
			if holder.ID != 0 && holder.MacAddr != mac {
				return ErrAddressConflict
			}

			var current LeaseEntry
			if sql := tx.Where("mac_addr = ? AND deleted = 0", mac).Limit(1).Find(&current); sql.Error != nil {
				return sql.Error
			}

			if current.ID != 0 && current.IPAddr == ip {
				// Renewal. Same row, refreshed expiry.
				updates := map[string]interface{}{"expires_at": expiresAt}
				if hostname != "" {
					updates["hostname"] = hostname
				}
				if sql := tx.Model(&current).Updates(updates); sql.Error != nil {
					return sql.Error
				}
				out = current
				return nil
			}

			if current.ID != 0 {
				// Moving to a new address: the old binding is retired,
				// not rewritten, so it stays visible as history.
				if sql := tx.Model(&current).Update("deleted", true); sql.Error != nil {
					return sql.Error
				}
			}

			entry := LeaseEntry{
				MacAddr:   mac,
				IPAddr:    ip,
				Hostname:  hostname,
				ExpiresAt: expiresAt,
			}
			if sql := tx.Create(&entry); sql.Error != nil {
				return sql.Error
			}
			out = entry
			return nil
		})
	})
	if err != nil {
		if errors.Is(err, ErrAddressConflict) || isUniqueViolation(err) {
			return nil, ErrAddressConflict
		}
		return nil, storageErr(err)
	}
	return &out, nil
}

func (d *database) Release(mac string) (*LeaseEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.opCtx()
	defer cancel()

	var released *LeaseEntry
	err := d.withRetry(func() error {
		released = nil
		return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			var current LeaseEntry
			if sql := tx.Where("mac_addr = ? AND deleted = 0", mac).Limit(1).Find(&current); sql.Error != nil {
				return sql.Error
			}
			if current.ID == 0 {
				return nil
			}
			if sql := tx.Model(&current).Update("deleted", true); sql.Error != nil {
				return sql.Error
			}
			released = &current
			return nil
		})
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return released, nil
}

func (d *database) History(mac string) ([]LeaseEntry, error) {
	ctx, cancel := d.opCtx()
	defer cancel()

	var entries []LeaseEntry
	err := d.withRetry(func() error {
		entries = nil
		return d.db.WithContext(ctx).Where("mac_addr = ?", mac).Order("id").Find(&entries).Error
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return entries, nil
}

func (d *database) ExpireLeases(asOf time.Time) ([]LeaseEntry, error) {
	d.mu.Lock()
	defer d.mu.Unlock()

	ctx, cancel := d.opCtx()
	defer cancel()

	var expired []LeaseEntry
	err := d.withRetry(func() error {
		expired = nil
		return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if sql := tx.Where("deleted = 0 AND expires_at IS NOT NULL AND expires_at < ?", asOf).
				Order("id").Find(&expired); sql.Error != nil {
				return sql.Error
			}
			if len(expired) == 0 {
				return nil
			}
			ids := make([]uint, 0, len(expired))
			for _, e := range expired {
				ids = append(ids, e.ID)
			}
			sql := tx.Model(&LeaseEntry{}).Where("id IN ?", ids).Update("deleted", true)
			return sql.Error
		})
	})
	if err != nil {
		return nil, storageErr(err)
	}
	return expired, nil
}

func (d *database) Counts() (int64, int64, error) {
	ctx, cancel := d.opCtx()
	defer cancel()

	// Both counts in one transaction so the pair is a single snapshot.
	var active, total int64
	err := d.withRetry(func() error {
		return d.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
			if sql := tx.Model(&LeaseEntry{}).Where("deleted = 0").Count(&active); sql.Error != nil {
				return sql.Error
			}
			return tx.Model(&LeaseEntry{}).Count(&total).Error
		})
	})
	if err != nil {
		return 0, 0, storageErr(err)
	}
	return active, total, nil
}

func (d *database) opCtx() (context.Context, context.CancelFunc) {
	return context.WithTimeout(d.ctx, d.timeout)
}

func (d *database) withRetry(fn func() error) error {
	var err error
	for attempt := 1; ; attempt++ {
		err = fn()
		if err == nil || !isTransient(err) || attempt == writeAttempts {
			return err
		}
		time.Sleep(time.Duration(attempt) * retryDelay)
	}
}

func storageErr(err error) error {
	return fmt.Errorf("%w: %v", ErrStorage, err)
}

func isUniqueViolation(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return true
	}
	msg := err.Error()
	return strings.Contains(msg, "UNIQUE constraint failed") ||
		strings.Contains(msg, "Duplicate entry")
}

func isTransient(err error) bool {
	if err == nil {
		return false
	}
	msg := err.Error()
	return strings.Contains(msg, "database is locked") ||
		strings.Contains(msg, "database table is locked") ||
		strings.Contains(msg, "try restarting transaction")
}
