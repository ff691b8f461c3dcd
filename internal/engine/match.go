package engine

import (
	"bytes"
	"net"
	"strconv"
	"strings"
)

// MatchIP tests an address against a rule criterion. The criterion is tried
// as a comma list (OR of items), then CIDR containment, then a dash range,
// and finally exact string equality. A branch that fails to parse is a
// non-match for that branch, never an error.
func MatchIP(criterion, addr string) bool {
	criterion = strings.TrimSpace(criterion)
	if criterion == "" {
		return true
	}
	if strings.Contains(criterion, ",") {
		for _, part := range strings.Split(criterion, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			if MatchIP(part, addr) {
				return true
			}
		}
		return false
	}

	ip := net.ParseIP(strings.TrimSpace(addr))

	if strings.Contains(criterion, "/") && ip != nil {
		if _, ipnet, err := net.ParseCIDR(criterion); err == nil && ipnet.Contains(ip) {
			return true
		}
	}

	// Dash ranges only when both sides parse and the string carries at
	// least three dots, so tokens like "icmp-host-prohibited" fall through
	// to the equality check instead.
	if ip != nil && strings.Contains(criterion, "-") && strings.Count(criterion, ".") >= 3 {
		parts := strings.SplitN(criterion, "-", 2)
		if len(parts) == 2 {
			start := net.ParseIP(strings.TrimSpace(parts[0]))
			end := net.ParseIP(strings.TrimSpace(parts[1]))
			if start != nil && end != nil && ipBetween(start, ip, end) {
				return true
			}
		}
	}

	return criterion == strings.TrimSpace(addr)
}

func ipBetween(start, ip, end net.IP) bool {
	s, i, e := start.To16(), ip.To16(), end.To16()
	if s == nil || i == nil || e == nil {
		return false
	}
	return bytes.Compare(s, i) <= 0 && bytes.Compare(i, e) <= 0
}

// MatchPort tests a port against a rule criterion: comma list, colon range,
// dash range, then exact integer equality.
func MatchPort(criterion string, port int) bool {
	criterion = strings.TrimSpace(criterion)
	if criterion == "" {
		return true
	}
	if strings.Contains(criterion, ",") {
		for _, part := range strings.Split(criterion, ",") {
			if part = strings.TrimSpace(part); part == "" {
				continue
			}
			if MatchPort(part, port) {
				return true
			}
		}
		return false
	}
	if strings.Contains(criterion, ":") {
		if lo, hi, ok := splitPortRange(criterion, ":"); ok {
			return lo <= port && port <= hi
		}
		return false
	}
	if strings.Contains(criterion, "-") {
		if lo, hi, ok := splitPortRange(criterion, "-"); ok {
			return lo <= port && port <= hi
		}
		return false
	}
	n, err := strconv.Atoi(criterion)
	if err != nil {
		return false
	}
	return n == port
}

func splitPortRange(s, sep string) (lo, hi int, ok bool) {
	parts := strings.SplitN(s, sep, 2)
	if len(parts) != 2 {
		return 0, 0, false
	}
	lo, err1 := strconv.Atoi(strings.TrimSpace(parts[0]))
	hi, err2 := strconv.Atoi(strings.TrimSpace(parts[1]))
	if err1 != nil || err2 != nil {
		return 0, 0, false
	}
	return lo, hi, true
}

// MatchState tests the query's connection state against the rule's allowed
// states, case-insensitively.
func MatchState(states []string, state string) bool {
	if len(states) == 0 {
		return true
	}
	for _, s := range states {
		if strings.EqualFold(s, state) {
			return true
		}
	}
	return false
}
