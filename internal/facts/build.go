package facts

import (
	"fmt"
	"strings"

	"grimm.is/tsim/internal/engine"
	"grimm.is/tsim/internal/ipset"
	"grimm.is/tsim/internal/metrics"
	"grimm.is/tsim/internal/routing"
)

// ChainDump is one chain recovered from capture text, in capture order.
type ChainDump struct {
	Name   string
	Policy string
	Rules  []engine.Rule
}

// ParseIptablesText reads raw iptables capture text, either iptables-save
// output or an iptables listing with chain headers, and returns the filter
// chains. Rules that do not parse are kept with their parse-error marker.
func ParseIptablesText(text string) []ChainDump {
	var (
		dumps   []ChainDump
		index   = map[string]int{}
		current = -1
		table   = "filter"
	)

	chain := func(name string) int {
		if i, ok := index[name]; ok {
			return i
		}
		dumps = append(dumps, ChainDump{Name: name})
		index[name] = len(dumps) - 1
		return len(dumps) - 1
	}

	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		switch {
		case line == "" || line == "COMMIT" || strings.HasPrefix(line, "#"):
			continue

		case strings.HasPrefix(line, "*"):
			table = strings.TrimPrefix(line, "*")

		case strings.HasPrefix(line, ":"):
			// ":NAME POLICY [pkts:bytes]" save-form declaration
			if table != "filter" {
				continue
			}
			fields := strings.Fields(strings.TrimPrefix(line, ":"))
			if len(fields) == 0 {
				continue
			}
			i := chain(fields[0])
			if len(fields) > 1 && fields[1] != "-" {
				dumps[i].Policy = fields[1]
			}
			current = -1

		case strings.HasPrefix(line, "-A "):
			if table != "filter" {
				continue
			}
			fields := strings.Fields(line)
			if len(fields) < 2 {
				continue
			}
			i := chain(fields[1])
			dumps[i].Rules = append(dumps[i].Rules, engine.ParseRuleText(line, 0))

		case strings.HasPrefix(line, "Chain "):
			// "Chain NAME (policy ACCEPT ...)" listing header
			fields := strings.Fields(line)
			if len(fields) < 2 {
				continue
			}
			current = chain(fields[1])
			for j := 2; j < len(fields)-1; j++ {
				if strings.TrimPrefix(fields[j], "(") == "policy" {
					dumps[current].Policy = strings.Trim(fields[j+1], "(),")
					break
				}
			}

		case isListingHeader(line):
			continue

		default:
			if current < 0 {
				continue
			}
			row := stripCounters(line)
			if row == "" {
				continue
			}
			dumps[current].Rules = append(dumps[current].Rules, engine.ParseRuleText(row, 0))
		}
	}

	// number by position within each chain
	for i := range dumps {
		for j := range dumps[i].Rules {
			if dumps[i].Rules[j].Line == 0 {
				dumps[i].Rules[j].Line = j + 1
			}
		}
	}
	return dumps
}

// isListingHeader recognizes the column-name rows iptables listings print
// under each chain header.
func isListingHeader(line string) bool {
	switch strings.Fields(line)[0] {
	case "target", "num", "pkts":
		return true
	}
	return false
}

// stripCounters removes the leading numeric columns a verbose or
// line-numbered listing prefixes to each rule row. A numeric token directly
// before the "--" option column is a protocol number, not a counter, and
// stays.
func stripCounters(line string) string {
	fields := strings.Fields(line)
	i := 0
	for i < len(fields) && i < 3 && isCounter(fields[i]) {
		if i+1 < len(fields) && fields[i+1] == "--" {
			break
		}
		i++
	}
	return strings.Join(fields[i:], " ")
}

func isCounter(tok string) bool {
	if tok == "" {
		return false
	}
	body := strings.TrimRight(tok, "KMGT")
	if body == "" {
		return false
	}
	for _, r := range body {
		if r < '0' || r > '9' {
			return false
		}
	}
	return true
}

// FromCaptures assembles a facts document from raw capture text. An empty
// capture marks its section unavailable, which Validate treats as a
// configuration error, so a document built from nothing refuses to
// evaluate rather than silently allowing everything.
func FromCaptures(router, iptablesText, ipsetText, routesText string) (*Document, error) {
	d := &Document{
		SchemaVersion: SchemaVersion,
		Router:        router,
	}

	d.Firewall.Iptables.Available = avail(strings.TrimSpace(iptablesText) != "")
	for _, dump := range ParseIptablesText(iptablesText) {
		entries := make([]RuleEntry, 0, len(dump.Rules))
		for _, r := range dump.Rules {
			entries = append(entries, NewRuleEntry(r))
		}
		d.Firewall.Iptables.Filter = append(d.Firewall.Iptables.Filter,
			map[string][]RuleEntry{dump.Name: entries})
		if dump.Policy != "" {
			if d.Firewall.Iptables.Policies == nil {
				d.Firewall.Iptables.Policies = map[string]string{}
			}
			d.Firewall.Iptables.Policies[dump.Name] = dump.Policy
		}
	}

	d.Firewall.Ipset.Available = avail(strings.TrimSpace(ipsetText) != "")
	st, err := parseIpsetText(ipsetText)
	if err != nil {
		metrics.Get().ParseErrors.WithLabelValues("ipset").Inc()
		return nil, fmt.Errorf("parse ipset capture: %w", err)
	}
	for _, name := range st.Names() {
		s, _ := st.Get(name)
		d.Firewall.Ipset.Lists = append(d.Firewall.Ipset.Lists,
			map[string]SetDef{name: {Type: s.Type, Members: s.Members()}})
	}

	d.Routing.Available = avail(strings.TrimSpace(routesText) != "")
	entries, err := routing.ParseShow(strings.NewReader(routesText))
	if err != nil {
		metrics.Get().ParseErrors.WithLabelValues("route").Inc()
		return nil, fmt.Errorf("parse route capture: %w", err)
	}
	d.Routing.Tables = entries

	return d, nil
}

// parseIpsetText dispatches between `ipset save` and `ipset list` output
// on the first non-blank line.
func parseIpsetText(text string) (*ipset.Store, error) {
	for _, line := range strings.Split(text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		if strings.HasPrefix(line, "create ") || strings.HasPrefix(line, "add ") {
			return ipset.ParseSave(strings.NewReader(text))
		}
		break
	}
	return ipset.ParseList(strings.NewReader(text))
}
