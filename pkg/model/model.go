package model

import (
	"fmt"
	"net"
	"time"
)

// LeaseRequest is the body of POST /v1/leases. IP is optional: when
// empty the server picks an address from its pool.
type LeaseRequest struct {
	Mac      string `json:"mac,omitempty"`
	IP       string `json:"ip,omitempty"`
	Hostname string `json:"hostname,omitempty"`
}

type LeaseResponse struct {
	ID        uint       `json:"id,omitempty"`
	Mac       string     `json:"mac,omitempty"`
	IP        string     `json:"ip,omitempty"`
	Hostname  string     `json:"hostname,omitempty"`
	Deleted   bool       `json:"deleted,omitempty"`
	ExpiresAt *time.Time `json:"expiresAt,omitempty"`
	CreatedAt time.Time  `json:"createdAt,omitempty"`
}

type StatsResponse struct {
	ActiveLeases  int64 `json:"activeLeases"`
	TotalEntries  int64 `json:"totalEntries"`
	FreeAddresses int   `json:"freeAddresses"`
}

type ErrorResponse struct {
	Status  int         `json:"status,omitempty"`
	Message string      `json:"msg,omitempty"`
	Data    interface{} `json:"data,omitempty"`
}

// NormalizeMAC parses a hardware address in any form net.ParseMAC
// accepts and returns the canonical lowercase colon-separated form.
// Only 6-byte (EUI-48) addresses are valid lease keys.
func NormalizeMAC(s string) (string, error) {
	hw, err := net.ParseMAC(s)
	if err != nil {
		return "", fmt.Errorf("invalid mac address %q", s)
	}
	if len(hw) != 6 {
		return "", fmt.Errorf("mac address %q is not a 48-bit hardware address", s)
	}
	return hw.String(), nil
}

// NormalizeIPv4 parses and canonicalizes a dotted-quad IPv4 address.
func NormalizeIPv4(s string) (string, error) {
	ip := net.ParseIP(s)
	if ip == nil || ip.To4() == nil {
		return "", fmt.Errorf("invalid IPv4 address %q", s)
	}
	return ip.To4().String(), nil
}
