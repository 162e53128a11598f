package pool

import (
	"encoding/binary"
	"errors"
	"fmt"
	"net"
	"sort"
	"sync"

	"golang.org/x/exp/maps"
)

var ErrExhausted = errors.New("pool: no addresses available")

// Pool hands out IPv4 addresses from one subnet. The network and
// broadcast addresses are never handed out, nor are the reserved
// hosts (gateway, server identifier, DNS, ...). The pool tracks only
// membership; durability lives in the lease store, which reseeds the
// pool on startup.
type Pool struct {
	mu       sync.Mutex
	network  *net.IPNet
	first    uint32
	last     uint32
	reserved map[uint32]bool
	inUse    map[uint32]bool
}

// New builds a pool over the usable range of cidr minus the reserved
// addresses. Reserved addresses outside the subnet are accepted and
// ignored, matching how operators list the upstream DNS server along
// with in-subnet infrastructure.
func New(cidr string, reserved []string) (*Pool, error) {
	_, network, err := net.ParseCIDR(cidr)
	if err != nil {
		return nil, fmt.Errorf("invalid network cidr %q: %v", cidr, err)
	}
	ip4 := network.IP.To4()
	if ip4 == nil {
		return nil, fmt.Errorf("pool: %s is not an IPv4 network", cidr)
	}
	ones, bits := network.Mask.Size()
	if bits != 32 || ones > 30 {
		return nil, fmt.Errorf("pool: %s has no usable host addresses", cidr)
	}

	base := ipToUint(ip4)
	size := uint32(1) << (32 - ones)
	p := &Pool{
		network:  network,
		first:    base + 1,
		last:     base + size - 2,
		reserved: make(map[uint32]bool),
		inUse:    make(map[uint32]bool),
	}

	for _, r := range reserved {
		ip := net.ParseIP(r)
		if ip == nil || ip.To4() == nil {
			return nil, fmt.Errorf("invalid reserved address %q", r)
		}
		n := ipToUint(ip.To4())
		if n >= p.first && n <= p.last {
			p.reserved[n] = true
		}
	}

	return p, nil
}

// Acquire hands out the lowest free address.
func (p *Pool) Acquire() (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	for n := p.first; n <= p.last; n++ {
		if !p.reserved[n] && !p.inUse[n] {
			p.inUse[n] = true
			return uintToIP(n).String(), nil
		}
	}
	return "", ErrExhausted
}

// Claim takes a specific address out of the pool. It reports false
// when the address is outside the pool, reserved, or already in use.
func (p *Pool) Claim(ip string) bool {
	n, ok := p.parseMember(ip)
	if !ok {
		return false
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if p.reserved[n] || p.inUse[n] {
		return false
	}
	p.inUse[n] = true
	return true
}

// MarkUsed records an address as leased regardless of its current
// pool state. Used when seeding from the store and when an assignment
// arrives for an address the pool never handed out.
func (p *Pool) MarkUsed(ip string) {
	n, ok := p.parseMember(ip)
	if !ok {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	if !p.reserved[n] {
		p.inUse[n] = true
	}
}

// Release returns an address to the pool. Idempotent; addresses the
// pool does not manage are ignored.
func (p *Pool) Release(ip string) {
	n, ok := p.parseMember(ip)
	if !ok {
		return
	}

	p.mu.Lock()
	defer p.mu.Unlock()

	delete(p.inUse, n)
}

// Contains reports whether the pool manages the address.
func (p *Pool) Contains(ip string) bool {
	_, ok := p.parseMember(ip)
	return ok
}

// Free reports how many addresses are still available.
func (p *Pool) Free() int {
	p.mu.Lock()
	defer p.mu.Unlock()

	usable := int(p.last-p.first+1) - len(p.reserved)
	return usable - len(p.inUse)
}

// Network returns the subnet the pool serves.
func (p *Pool) Network() string {
	return p.network.String()
}

// ReservedAddrs lists the in-subnet reserved addresses in order.
func (p *Pool) ReservedAddrs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()

	keys := maps.Keys(p.reserved)
	sort.Slice(keys, func(i, j int) bool { return keys[i] < keys[j] })

	addrs := make([]string, 0, len(keys))
	for _, n := range keys {
		addrs = append(addrs, uintToIP(n).String())
	}
	return addrs
}

func (p *Pool) parseMember(ip string) (uint32, bool) {
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return 0, false
	}
	ip4 := parsed.To4()
	if ip4 == nil {
		return 0, false
	}
	n := ipToUint(ip4)
	if n < p.first || n > p.last || p.reserved[n] {
		return 0, false
	}
	return n, true
}

func ipToUint(ip net.IP) uint32 {
	return binary.BigEndian.Uint32(ip.To4())
}

func uintToIP(n uint32) net.IP {
	ip := make(net.IP, 4)
	binary.BigEndian.PutUint32(ip, n)
	return ip
}
