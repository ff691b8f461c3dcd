// Package routing answers "which device would this router use to reach an
// address" from a captured route list, by longest-prefix match. The engine
// uses it to check rule interface constraints under the assumption that
// routing is symmetric.
package routing

import (
	"bufio"
	"io"
	"net"
	"strings"
)

// Entry is one captured route: a destination ("default", a CIDR, or a bare
// host address) and the egress device.
type Entry struct {
	Destination string `json:"dst" yaml:"dst"`
	Device      string `json:"dev" yaml:"dev"`
}

// Table is a set of routes. Order only breaks prefix-length ties (first
// entry wins).
type Table struct {
	entries []Entry
}

// NewTable builds a table from captured entries. Malformed entries are kept
// but never match.
func NewTable(entries []Entry) *Table {
	return &Table{entries: append([]Entry(nil), entries...)}
}

// Add appends one route.
func (t *Table) Add(e Entry) {
	t.entries = append(t.entries, e)
}

// Entries returns the routes in insertion order.
func (t *Table) Entries() []Entry {
	return append([]Entry(nil), t.entries...)
}

// Len returns the number of routes.
func (t *Table) Len() int {
	return len(t.entries)
}

// BestDevice returns the egress device for an address by longest-prefix
// match, or "" when no route matches or the address does not parse.
// "default" matches everything at prefix length 0; a bare host destination
// matches only exactly, at full length.
func (t *Table) BestDevice(addr string) string {
	ip := net.ParseIP(strings.TrimSpace(addr))
	if ip == nil {
		return ""
	}

	best := -1
	device := ""
	for _, e := range t.entries {
		if e.Device == "" {
			continue
		}
		plen, ok := matchLen(e.Destination, ip)
		if ok && plen > best {
			best = plen
			device = e.Device
		}
	}
	return device
}

func matchLen(dst string, ip net.IP) (int, bool) {
	dst = strings.TrimSpace(dst)
	switch {
	case dst == "":
		return 0, false
	case dst == "default":
		return 0, true
	case strings.Contains(dst, "/"):
		_, ipnet, err := net.ParseCIDR(dst)
		if err != nil || !ipnet.Contains(ip) {
			return 0, false
		}
		ones, _ := ipnet.Mask.Size()
		return ones, true
	default:
		host := net.ParseIP(dst)
		if host == nil || !host.Equal(ip) {
			return 0, false
		}
		if ip.To4() != nil {
			return 32, true
		}
		return 128, true
	}
}

// ParseShow reads `ip route show` output. The destination is the first
// field; the device follows the "dev" keyword. Lines without both are
// skipped.
func ParseShow(r io.Reader) ([]Entry, error) {
	var entries []Entry

	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for sc.Scan() {
		fields := strings.Fields(sc.Text())
		if len(fields) < 2 {
			continue
		}
		e := Entry{Destination: fields[0]}
		for i := 1; i < len(fields)-1; i++ {
			if fields[i] == "dev" {
				e.Device = fields[i+1]
				break
			}
		}
		if e.Device != "" {
			entries = append(entries, e)
		}
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return entries, nil
}
