package queryparse

import (
	"fmt"
	"net"
	"time"

	"github.com/miekg/dns"
)

const resolvConf = "/etc/resolv.conf"

// DNSResolver answers hostname lookups through the system's configured
// nameservers, asking for an A record first, then AAAA. The first answer
// wins.
type DNSResolver struct {
	servers []string
	client  *dns.Client
}

// NewDNSResolver reads the system resolver configuration.
func NewDNSResolver() (*DNSResolver, error) {
	conf, err := dns.ClientConfigFromFile(resolvConf)
	if err != nil {
		return nil, fmt.Errorf("read resolver config: %w", err)
	}
	c := new(dns.Client)
	c.Timeout = 2 * time.Second

	servers := make([]string, 0, len(conf.Servers))
	for _, s := range conf.Servers {
		servers = append(servers, net.JoinHostPort(s, conf.Port))
	}
	return &DNSResolver{servers: servers, client: c}, nil
}

// LookupHost resolves one hostname to an address string.
func (r *DNSResolver) LookupHost(name string) (string, error) {
	if len(r.servers) == 0 {
		return "", fmt.Errorf("no nameservers configured")
	}
	for _, qtype := range []uint16{dns.TypeA, dns.TypeAAAA} {
		m := new(dns.Msg)
		m.SetQuestion(dns.Fqdn(name), qtype)
		m.RecursionDesired = true

		for _, server := range r.servers {
			resp, _, err := r.client.Exchange(m, server)
			if err != nil || resp == nil {
				continue
			}
			for _, ans := range resp.Answer {
				switch rr := ans.(type) {
				case *dns.A:
					return rr.A.String(), nil
				case *dns.AAAA:
					return rr.AAAA.String(), nil
				}
			}
		}
	}
	return "", fmt.Errorf("no address for %s", name)
}
