package facts

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	"grimm.is/tsim/internal/engine"
)

// Render produces a stable text form of the document: canonical save-form
// rules, set members and custom chains sorted, routes sorted by
// destination. Two captures of the same state render identically, which is
// what diff compares.
func Render(d *Document) string {
	var b strings.Builder

	table := d.ChainTable()
	names := table.Names()
	if len(names) > 1 {
		rest := names[1:]
		sort.Strings(rest)
	}

	b.WriteString("# iptables filter\n")
	for _, name := range names {
		policy := "-"
		if name == engine.ChainForward {
			policy = table.DefaultPolicy()
		}
		fmt.Fprintf(&b, ":%s %s\n", name, policy)
	}
	for _, name := range names {
		ch, _ := table.Chain(name)
		for _, r := range ch.Rules {
			b.WriteString(SaveText(name, r))
			b.WriteByte('\n')
		}
	}

	b.WriteString("# ipset\n")
	st := d.IpsetStore()
	setNames := st.Names()
	sort.Strings(setNames)
	for _, name := range setNames {
		s, _ := st.Get(name)
		typ := s.Type
		if typ == "" {
			typ = "-"
		}
		fmt.Fprintf(&b, "create %s %s\n", name, typ)
		members := s.Members()
		sort.Strings(members)
		for _, m := range members {
			fmt.Fprintf(&b, "add %s %s\n", name, m)
		}
	}

	b.WriteString("# routes\n")
	entries := d.RoutingTable().Entries()
	sort.Slice(entries, func(i, j int) bool {
		if entries[i].Destination != entries[j].Destination {
			return entries[i].Destination < entries[j].Destination
		}
		return entries[i].Device < entries[j].Device
	})
	for _, e := range entries {
		fmt.Fprintf(&b, "%s dev %s\n", e.Destination, e.Device)
	}

	return b.String()
}

// SaveText renders one rule in canonical save form. Rules that did not
// parse keep their original text behind a comment marker.
func SaveText(chain string, r engine.Rule) string {
	if r.ParseErr {
		return "# unparsed: " + strings.TrimSpace(r.Raw)
	}
	c := r.Criteria
	parts := []string{"-A", chain}

	if c.Source != "" {
		parts = append(parts, "-s", c.Source)
	}
	if c.Destination != "" {
		parts = append(parts, "-d", c.Destination)
	}
	if c.InInterface != "" {
		parts = append(parts, "-i", c.InInterface)
	}
	if c.OutInterface != "" {
		parts = append(parts, "-o", c.OutInterface)
	}
	if c.Protocol != "" {
		parts = append(parts, "-p", c.Protocol)
	}
	if c.Fragments {
		parts = append(parts, "-f")
	}
	parts = appendPorts(parts, "--dports", "--dport", c.DestPorts)
	parts = appendPorts(parts, "--sports", "--sport", c.SourcePorts)
	if len(c.States) > 0 {
		parts = append(parts, "-m", "state", "--state", strings.Join(c.States, ","))
	}
	for _, ms := range c.MatchSets {
		parts = append(parts, "-m", "set", "--match-set", ms.Name, strings.Join(ms.Directions, ","))
	}
	parts = append(parts, c.Extensions...)
	if r.Comment != "" {
		parts = append(parts, "-m", "comment", "--comment", strconv.Quote(r.Comment))
	}
	if r.Target != "" {
		parts = append(parts, "-j", r.Target)
	}
	return strings.Join(parts, " ")
}

func appendPorts(parts []string, multi, single, spec string) []string {
	switch {
	case spec == "":
		return parts
	case strings.Contains(spec, ","):
		return append(parts, "-m", "multiport", multi, spec)
	default:
		return append(parts, single, spec)
	}
}
