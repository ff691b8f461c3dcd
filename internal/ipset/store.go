// Package ipset holds parsed ipset contents and answers the membership
// questions rule evaluation asks: is this (ip, port, protocol) in set X,
// including the two-field set types indexed by packet direction.
package ipset

import (
	"net"
	"strings"

	"grimm.is/tsim/internal/logging"
)

// Entry is one set member. Port and Proto are "*" when the member does not
// constrain them.
type Entry struct {
	Addr  string
	Port  string
	Proto string
}

// Set is one named ipset with its declared type and members.
type Set struct {
	Name string
	Type string

	exact    map[Entry]struct{}
	networks []Entry
}

// NewSet creates an empty set of the given type.
func NewSet(name, typ string) *Set {
	return &Set{
		Name:  name,
		Type:  strings.TrimSpace(typ),
		exact: make(map[Entry]struct{}),
	}
}

// Add parses one member string and stores it. Members with a comma carry a
// port component ("ip,proto:port" or "ip,port"); bare members are an IP or
// CIDR.
func (s *Set) Add(member string) {
	e := ParseMember(member)
	if e.Addr == "" {
		return
	}
	if strings.Contains(e.Addr, "/") {
		s.networks = append(s.networks, e)
		return
	}
	s.exact[e] = struct{}{}
}

// ParseMember splits a member string into its entry triple.
func ParseMember(member string) Entry {
	member = strings.TrimSpace(member)
	e := Entry{Port: "*", Proto: "*"}
	if member == "" {
		return e
	}
	addr, rest, hasPort := strings.Cut(member, ",")
	e.Addr = strings.TrimSpace(addr)
	if !hasPort {
		return e
	}
	rest = strings.TrimSpace(rest)
	if proto, port, hasProto := strings.Cut(rest, ":"); hasProto {
		e.Proto = strings.ToLower(strings.TrimSpace(proto))
		e.Port = strings.TrimSpace(port)
	} else if rest != "" {
		e.Port = rest
	}
	return e
}

// Arity returns how many fields the set's declared type carries, e.g. 1 for
// hash:ip and 2 for hash:ip,port. Untyped sets count as single-field.
func (s *Set) Arity() int {
	_, fields, ok := strings.Cut(s.Type, ":")
	if !ok || fields == "" {
		return 1
	}
	return strings.Count(fields, ",") + 1
}

// compound reports whether the type is one of the two-field combinations
// the direction pairing is defined for.
func (s *Set) compound() bool {
	switch s.Type {
	case "hash:ip,port", "hash:net,port":
		return true
	}
	return false
}

// Contains answers a membership probe. Port defaults to "*" when the query
// carries none; protocol is lowercased, empty meaning "*". Exact entries
// are probed with wildcard fallbacks first, then network entries are
// scanned linearly for containment. A malformed address is never a member.
func (s *Set) Contains(ip, port, proto string) bool {
	ip = strings.TrimSpace(ip)
	parsed := net.ParseIP(ip)
	if parsed == nil {
		return false
	}
	if port = strings.TrimSpace(port); port == "" {
		port = "*"
	}
	proto = strings.ToLower(strings.TrimSpace(proto))
	if proto == "" || proto == "all" {
		proto = "*"
	}

	probes := []Entry{
		{Addr: ip, Port: port, Proto: proto},
		{Addr: ip, Port: "*", Proto: "*"},
		{Addr: ip, Port: port, Proto: "*"},
		{Addr: ip, Port: "*", Proto: proto},
	}
	for _, p := range probes {
		if _, ok := s.exact[p]; ok {
			return true
		}
	}

	for _, e := range s.networks {
		_, ipnet, err := net.ParseCIDR(e.Addr)
		if err != nil || !ipnet.Contains(parsed) {
			continue
		}
		if (e.Port == "*" || e.Port == port) && (e.Proto == "*" || e.Proto == proto) {
			return true
		}
	}
	return false
}

// Size returns the number of members.
func (s *Set) Size() int {
	return len(s.exact) + len(s.networks)
}

// Members returns the members in a rendered "addr[,proto:port]" form,
// networks last, for dumps and diffs.
func (s *Set) Members() []string {
	out := make([]string, 0, s.Size())
	for e := range s.exact {
		out = append(out, renderEntry(e))
	}
	for _, e := range s.networks {
		out = append(out, renderEntry(e))
	}
	return out
}

func renderEntry(e Entry) string {
	switch {
	case e.Port == "*" && e.Proto == "*":
		return e.Addr
	case e.Proto == "*":
		return e.Addr + "," + e.Port
	default:
		return e.Addr + "," + e.Proto + ":" + e.Port
	}
}

// Candidate is the packet's (ip, port) pair for one direction.
type Candidate struct {
	IP   string
	Port string
}

// Store is the collection of sets referenced by a ruleset.
type Store struct {
	sets  map[string]*Set
	order []string
}

// NewStore returns an empty store.
func NewStore() *Store {
	return &Store{sets: make(map[string]*Set)}
}

// Create declares a set, returning the existing one on redeclaration.
func (st *Store) Create(name, typ string) *Set {
	if s, ok := st.sets[name]; ok {
		return s
	}
	s := NewSet(name, typ)
	st.sets[name] = s
	st.order = append(st.order, name)
	return s
}

// Get looks up a set by name.
func (st *Store) Get(name string) (*Set, bool) {
	s, ok := st.sets[name]
	return s, ok
}

// Names returns set names in declaration order.
func (st *Store) Names() []string {
	return append([]string(nil), st.order...)
}

// Contains probes one set; a missing set is never a match.
func (st *Store) Contains(name, ip, port, proto string) bool {
	s, ok := st.sets[name]
	if !ok {
		return false
	}
	return s.Contains(ip, port, proto)
}

// Match evaluates one match-set clause. Single-direction clauses probe the
// chosen side of the packet; two-direction clauses on the supported
// compound types pick the ip from the first direction and the port from
// the second. Anything else is a diagnostic and a non-match, never a guess.
func (st *Store) Match(name string, directions []string, src, dst Candidate, proto string) bool {
	s, ok := st.sets[name]
	if !ok {
		logging.Debug("match-set references unknown set", "set", name)
		return false
	}

	pick := func(dir string) (Candidate, bool) {
		switch strings.ToLower(strings.TrimSpace(dir)) {
		case "src":
			return src, true
		case "dst":
			return dst, true
		}
		return Candidate{}, false
	}

	switch len(directions) {
	case 1:
		if s.Arity() != 1 {
			logging.Debug("match-set direction count does not fit set type",
				"set", name, "type", s.Type, "directions", strings.Join(directions, ","))
			return false
		}
		c, ok := pick(directions[0])
		if !ok {
			logging.Debug("match-set has unrecognized direction", "set", name, "direction", directions[0])
			return false
		}
		return s.Contains(c.IP, c.Port, proto)
	case 2:
		if !s.compound() {
			logging.Debug("match-set pairing unsupported for set type", "set", name, "type", s.Type)
			return false
		}
		first, ok1 := pick(directions[0])
		second, ok2 := pick(directions[1])
		if !ok1 || !ok2 {
			logging.Debug("match-set has unrecognized direction", "set", name, "directions", strings.Join(directions, ","))
			return false
		}
		return s.Contains(first.IP, second.Port, proto)
	default:
		logging.Debug("match-set direction count unsupported", "set", name, "count", len(directions))
		return false
	}
}
