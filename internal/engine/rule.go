// Package engine decides whether a router's FORWARD path would accept a
// packet, using only captured state: iptables rules, ipset contents, and the
// routing table. It reproduces netfilter's evaluation order in software and
// never talks to a kernel.
package engine

import "strings"

// KnownTargets is the fixed set of netfilter targets the evaluator
// understands. Anything else is either a custom chain or an unknown
// extension target, which is skipped without testing its criteria.
var KnownTargets = map[string]struct{}{
	"ACCEPT":     {},
	"DROP":       {},
	"REJECT":     {},
	"RETURN":     {},
	"DNAT":       {},
	"SNAT":       {},
	"MASQUERADE": {},
	"REDIRECT":   {},
	"LOG":        {},
	"CONNMARK":   {},
	"MARK":       {},
	"LIMIT":      {},
	"TOS":        {},
	"DSCP":       {},
	"ULOG":       {},
	"NFLOG":      {},
	"TCPMSS":     {},
	"TTL":        {},
	"HL":         {},
}

// nonTerminatingTargets match and then let evaluation continue with the
// next rule in the same chain.
var nonTerminatingTargets = map[string]struct{}{
	"LOG":      {},
	"ULOG":     {},
	"NFLOG":    {},
	"CONNMARK": {},
	"MARK":     {},
	"TOS":      {},
	"DSCP":     {},
	"TCPMSS":   {},
	"TTL":      {},
	"HL":       {},
	"LIMIT":    {},
}

// natTargets terminate evaluation with an accept; the packet is assumed to
// continue after translation. A simplification: the engine does not model
// the rewritten tuple.
var natTargets = map[string]struct{}{
	"DNAT":       {},
	"SNAT":       {},
	"MASQUERADE": {},
	"REDIRECT":   {},
}

// SetMatch is one "-m set --match-set NAME DIRS" clause. Directions name
// which packet fields, in order, index into the set's fields.
type SetMatch struct {
	Name       string   `json:"set_name" yaml:"set_name"`
	Directions []string `json:"directions" yaml:"directions"`
}

// Criteria holds the match conditions of one rule. The zero value of every
// field means "no constraint". Port criteria keep their textual form
// (exact, "a:b", "a-b", or comma list) and are interpreted at match time.
type Criteria struct {
	Protocol     string     `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	InInterface  string     `json:"in_interface,omitempty" yaml:"in_interface,omitempty"`
	OutInterface string     `json:"out_interface,omitempty" yaml:"out_interface,omitempty"`
	Source       string     `json:"source,omitempty" yaml:"source,omitempty"`
	Destination  string     `json:"destination,omitempty" yaml:"destination,omitempty"`
	SourcePorts  string     `json:"sport,omitempty" yaml:"sport,omitempty"`
	DestPorts    string     `json:"dport,omitempty" yaml:"dport,omitempty"`
	States       []string   `json:"states,omitempty" yaml:"states,omitempty"`
	MatchSets    []SetMatch `json:"match_sets,omitempty" yaml:"match_sets,omitempty"`
	Fragments    bool       `json:"fragments,omitempty" yaml:"fragments,omitempty"`

	// Extensions holds tokens the parser recognized as belonging to the
	// rule but could not interpret. They never constrain matching.
	Extensions []string `json:"extensions,omitempty" yaml:"extensions,omitempty"`
}

// Rule is one parsed firewall rule. Immutable once built.
type Rule struct {
	Line     int      `json:"number" yaml:"number"`
	Target   string   `json:"target" yaml:"target"`
	Criteria Criteria `json:"criteria" yaml:"criteria"`
	Comment  string   `json:"comment,omitempty" yaml:"comment,omitempty"`

	// ParseErr marks a rule whose text could not be recovered well enough
	// to match safely. Such rules are retained for rendering but never
	// match any packet.
	ParseErr bool `json:"parse_error,omitempty" yaml:"parse_error,omitempty"`

	// Raw preserves the original text for rules built from a dump line.
	Raw string `json:"-" yaml:"-"`
}

// Normalize canonicalizes criteria in place: catch-all markers become the
// empty (unconstrained) form, protocols lowercase, states uppercase, set
// directions lowercase.
func (c *Criteria) Normalize() {
	c.Protocol = NormalizeProto(c.Protocol)
	c.InInterface = NormalizeIface(c.InInterface)
	c.OutInterface = NormalizeIface(c.OutInterface)
	c.Source = NormalizeAddr(c.Source)
	c.Destination = NormalizeAddr(c.Destination)
	for i, s := range c.States {
		c.States[i] = strings.ToUpper(strings.TrimSpace(s))
	}
	for i := range c.MatchSets {
		for j, d := range c.MatchSets[i].Directions {
			c.MatchSets[i].Directions[j] = strings.ToLower(strings.TrimSpace(d))
		}
	}
}

// NormalizeAddr maps the various "match anything" address spellings to the
// empty string.
func NormalizeAddr(s string) string {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "any", "anywhere", "0.0.0.0/0", "::/0", "*":
		return ""
	}
	return strings.TrimSpace(s)
}

// NormalizeIface maps wildcard interface spellings to the empty string.
func NormalizeIface(s string) string {
	switch strings.TrimSpace(s) {
	case "", "*", "any", "+":
		return ""
	}
	return strings.TrimSpace(s)
}

// NormalizeProto lowercases a protocol name; "all"/"any" mean unconstrained.
func NormalizeProto(s string) string {
	p := strings.ToLower(strings.TrimSpace(s))
	if p == "all" || p == "any" {
		return ""
	}
	return p
}

// Unconstrained reports whether the criteria match every packet.
func (c *Criteria) Unconstrained() bool {
	return c.Protocol == "" && c.InInterface == "" && c.OutInterface == "" &&
		c.Source == "" && c.Destination == "" &&
		c.SourcePorts == "" && c.DestPorts == "" &&
		len(c.States) == 0 && len(c.MatchSets) == 0
}
