package db

import (
	"time"
)

// LeaseEntry is one row of the lease_entries table. Rows are never
// physically removed: a release flips Deleted, and a later assignment
// for the same hardware address inserts a fresh row, so the table
// doubles as the assignment history.
//
// The active subset (deleted = 0) is unique per mac_addr and per
// ip_addr. On sqlite that is enforced with partial unique indexes
// created in New; a blanket UNIQUE on mac_addr would pin every
// hardware address to its first-ever row and block re-leasing after a
// release.
type LeaseEntry struct {
	ID        uint       `gorm:"primarykey"`
	MacAddr   string     `gorm:"column:mac_addr;index;size:17;not null"`
	IPAddr    string     `gorm:"column:ip_addr;index;size:15;not null"`
	Hostname  string     `gorm:"size:253"`
	Deleted   bool       `gorm:"not null;default:0"`
	ExpiresAt *time.Time `gorm:"index"`
	CreatedAt time.Time
	UpdatedAt time.Time
}

// TableName keeps databases created from the original schema file
// readable without a rename.
func (LeaseEntry) TableName() string {
	return "lease_entries"
}
