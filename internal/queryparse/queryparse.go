// Package queryparse narrows the CLI's address and port arguments to the
// single concrete values one evaluation uses: the first resolvable item of
// a comma list, the network address of a CIDR, the start of a range, or the
// first DNS answer for a hostname.
package queryparse

import (
	"errors"
	"fmt"
	"net"
	"strconv"
	"strings"

	"grimm.is/tsim/internal/engine"
)

// Resolver answers hostname lookups. A nil Resolver disables resolution,
// in which case hostname tokens are simply not resolvable.
type Resolver interface {
	LookupHost(name string) (string, error)
}

// FirstAddress picks the first resolvable address from an address spec.
func FirstAddress(spec string, r Resolver) (string, error) {
	spec = strings.TrimSpace(spec)
	if spec == "" {
		return "", errors.New("empty address")
	}

	var lastErr error
	for _, item := range strings.Split(spec, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		if ip := net.ParseIP(item); ip != nil {
			return ip.String(), nil
		}
		if strings.Contains(item, "/") {
			if _, ipnet, err := net.ParseCIDR(item); err == nil {
				return ipnet.IP.String(), nil
			}
			lastErr = fmt.Errorf("bad network %q", item)
			continue
		}
		// a dash item is a range only when its left side is an address;
		// hostnames carry dashes too
		if start, _, ok := strings.Cut(item, "-"); ok {
			if ip := net.ParseIP(start); ip != nil {
				return ip.String(), nil
			}
		}
		if r != nil {
			addr, err := r.LookupHost(item)
			if err == nil {
				return addr, nil
			}
			lastErr = err
			continue
		}
		lastErr = fmt.Errorf("unresolvable %q", item)
	}

	if lastErr != nil {
		return "", fmt.Errorf("no resolvable address in %q: %w", spec, lastErr)
	}
	return "", fmt.Errorf("no resolvable address in %q", spec)
}

// FirstPort picks the first concrete port from a port spec, taking the
// start of ranges.
func FirstPort(spec string) (int, error) {
	for _, item := range strings.Split(spec, ",") {
		item = strings.TrimSpace(item)
		if item == "" {
			continue
		}
		for _, sep := range []string{":", "-"} {
			if a, _, ok := strings.Cut(item, sep); ok {
				item = a
				break
			}
		}
		n, err := strconv.Atoi(item)
		if err != nil {
			continue
		}
		if n < 1 || n > 65535 {
			return 0, fmt.Errorf("port %d out of range", n)
		}
		return n, nil
	}
	return 0, fmt.Errorf("no usable port in %q", spec)
}

var queryProtocols = map[string]struct{}{
	"": {}, "tcp": {}, "udp": {}, "icmp": {},
}

var queryStates = map[string]struct{}{
	"NEW": {}, "ESTABLISHED": {}, "RELATED": {}, "INVALID": {},
	"UNTRACKED": {}, "SNAT": {}, "DNAT": {},
}

// BuildQuery narrows all query arguments at once. Source and destination
// are required; ports, protocol, and state are optional.
func BuildQuery(src, sport, dst, dport, proto, state string, r Resolver) (engine.Query, error) {
	var q engine.Query

	addr, err := FirstAddress(src, r)
	if err != nil {
		return q, fmt.Errorf("source: %w", err)
	}
	q.SrcIP = addr

	addr, err = FirstAddress(dst, r)
	if err != nil {
		return q, fmt.Errorf("destination: %w", err)
	}
	q.DstIP = addr

	if sport != "" {
		p, err := FirstPort(sport)
		if err != nil {
			return q, fmt.Errorf("source port: %w", err)
		}
		q.SrcPort = p
	}
	if dport != "" {
		p, err := FirstPort(dport)
		if err != nil {
			return q, fmt.Errorf("dest port: %w", err)
		}
		q.DstPort = p
	}

	p := engine.NormalizeProto(proto)
	if _, ok := queryProtocols[p]; !ok {
		return q, fmt.Errorf("protocol %q not supported (all, tcp, udp, icmp)", proto)
	}
	q.Protocol = p

	if state != "" {
		s := strings.ToUpper(strings.TrimSpace(state))
		if _, ok := queryStates[s]; !ok {
			return q, fmt.Errorf("connection state %q not recognized", state)
		}
		q.State = s
	}

	return q, nil
}
