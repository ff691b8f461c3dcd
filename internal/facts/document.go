// Package facts reads and writes the per-router JSON documents the
// evaluation engine consumes: iptables filter chains, ipset contents, and
// the routing table, as captured from a live router. The package also
// builds documents from raw capture text and renders them in a stable text
// form for show and diff.
package facts

import (
	"bytes"
	"encoding/json"
	"fmt"
	"sort"
	"strings"

	"grimm.is/tsim/internal/engine"
	"grimm.is/tsim/internal/ipset"
	"grimm.is/tsim/internal/logging"
	"grimm.is/tsim/internal/metrics"
	"grimm.is/tsim/internal/routing"
)

// SchemaVersion is the current document schema.
const SchemaVersion = 1

// Document is one router's captured state.
type Document struct {
	SchemaVersion int      `json:"schema_version,omitempty"`
	Router        string   `json:"router,omitempty"`
	Firewall      Firewall `json:"firewall"`
	Routing       Routing  `json:"routing"`
}

// Firewall groups the iptables and ipset captures.
type Firewall struct {
	Iptables IptablesSection `json:"iptables"`
	Ipset    IpsetSection    `json:"ipset"`
}

// IptablesSection holds the filter-table chains. Available is a tristate:
// absent means the capture did not say, which counts as available.
type IptablesSection struct {
	Available *bool                    `json:"available,omitempty"`
	Policies  map[string]string        `json:"policies,omitempty"`
	Filter    []map[string][]RuleEntry `json:"filter,omitempty"`
}

// IpsetSection holds the captured sets.
type IpsetSection struct {
	Available *bool               `json:"available,omitempty"`
	Lists     []map[string]SetDef `json:"lists,omitempty"`
}

// SetDef is one set's declared type and members.
type SetDef struct {
	Type    string   `json:"type"`
	Members []string `json:"members"`
}

// Routing holds the captured route list.
type Routing struct {
	Available *bool           `json:"available,omitempty"`
	Tables    []routing.Entry `json:"tables,omitempty"`
}

// RuleEntry is one element of a chain's rule array: either a structured
// rule object or a raw rule string left for the text parser.
type RuleEntry struct {
	Raw  string
	Rule *StructuredRule
}

// StructuredRule is the producer-side rule shape. Every key is optional;
// absent keys mean no constraint.
type StructuredRule struct {
	Number       int         `json:"number,omitempty"`
	Target       string      `json:"target,omitempty"`
	Protocol     string      `json:"protocol,omitempty"`
	InInterface  string      `json:"in_interface,omitempty"`
	OutInterface string      `json:"out_interface,omitempty"`
	Source       string      `json:"source,omitempty"`
	Destination  string      `json:"destination,omitempty"`
	DPort        string      `json:"dport,omitempty"`
	DPorts       string      `json:"dports,omitempty"`
	SPort        string      `json:"sport,omitempty"`
	SPorts       string      `json:"sports,omitempty"`
	State        string      `json:"state,omitempty"`
	Comment      string      `json:"comment,omitempty"`
	Extensions   *Extensions `json:"extensions,omitempty"`
}

// Extensions carries the nested keys some producers emit.
type Extensions struct {
	State     string         `json:"state,omitempty"`
	MatchSets []MatchSetSpec `json:"match_sets,omitempty"`
}

// MatchSetSpec is one match-set reference; Direction is the comma-joined
// direction list, e.g. "dst,dst".
type MatchSetSpec struct {
	SetName   string `json:"set_name"`
	Direction string `json:"direction"`
}

func (e *RuleEntry) UnmarshalJSON(b []byte) error {
	trimmed := bytes.TrimSpace(b)
	if len(trimmed) > 0 && trimmed[0] == '"' {
		return json.Unmarshal(trimmed, &e.Raw)
	}
	e.Rule = &StructuredRule{}
	return json.Unmarshal(trimmed, e.Rule)
}

func (e RuleEntry) MarshalJSON() ([]byte, error) {
	if e.Rule != nil {
		return json.Marshal(e.Rule)
	}
	return json.Marshal(e.Raw)
}

// toRule converts one entry into the engine's rule form. Raw entries go
// through the text parser; structured entries map field by field.
func (e RuleEntry) toRule() engine.Rule {
	if e.Rule == nil {
		return engine.ParseRuleText(e.Raw, 0)
	}
	sr := e.Rule
	r := engine.Rule{
		Line:    sr.Number,
		Target:  sr.Target,
		Comment: sr.Comment,
	}
	c := &r.Criteria
	c.Protocol = sr.Protocol
	c.InInterface = sr.InInterface
	c.OutInterface = sr.OutInterface
	c.Source = sr.Source
	c.Destination = sr.Destination
	c.DestPorts = firstOf(sr.DPorts, sr.DPort)
	c.SourcePorts = firstOf(sr.SPorts, sr.SPort)

	state := sr.State
	if state == "" && sr.Extensions != nil {
		state = sr.Extensions.State
	}
	if state != "" {
		c.States = splitList(state)
	}
	if sr.Extensions != nil {
		for _, ms := range sr.Extensions.MatchSets {
			if ms.SetName == "" {
				continue
			}
			c.MatchSets = append(c.MatchSets, engine.SetMatch{
				Name:       ms.SetName,
				Directions: splitList(ms.Direction),
			})
		}
	}
	c.Normalize()
	return r
}

// NewRuleEntry converts an engine rule back into the document shape.
// Rules the structured form cannot carry faithfully (parse failures,
// fragment matches, opaque extension tokens) stay as their raw text.
func NewRuleEntry(r engine.Rule) RuleEntry {
	if r.ParseErr || r.Criteria.Fragments || len(r.Criteria.Extensions) > 0 {
		return RuleEntry{Raw: r.Raw}
	}
	c := r.Criteria
	sr := &StructuredRule{
		Number:       r.Line,
		Target:       r.Target,
		Protocol:     c.Protocol,
		InInterface:  c.InInterface,
		OutInterface: c.OutInterface,
		Source:       c.Source,
		Destination:  c.Destination,
		Comment:      r.Comment,
	}
	if strings.Contains(c.DestPorts, ",") {
		sr.DPorts = c.DestPorts
	} else {
		sr.DPort = c.DestPorts
	}
	if strings.Contains(c.SourcePorts, ",") {
		sr.SPorts = c.SourcePorts
	} else {
		sr.SPort = c.SourcePorts
	}
	if len(c.States) > 0 {
		sr.State = strings.Join(c.States, ",")
	}
	if len(c.MatchSets) > 0 {
		ext := &Extensions{}
		for _, ms := range c.MatchSets {
			ext.MatchSets = append(ext.MatchSets, MatchSetSpec{
				SetName:   ms.Name,
				Direction: strings.Join(ms.Directions, ","),
			})
		}
		sr.Extensions = ext
	}
	return RuleEntry{Rule: sr}
}

// Validate rejects documents the engine must not evaluate: unsupported
// schema versions and sections explicitly marked unavailable.
func (d *Document) Validate() error {
	if d.SchemaVersion > SchemaVersion {
		return fmt.Errorf("facts schema version %d not supported", d.SchemaVersion)
	}
	if off(d.Firewall.Iptables.Available) {
		return fmt.Errorf("%w: firewall.iptables", ErrFactsUnavailable)
	}
	if off(d.Firewall.Ipset.Available) {
		return fmt.Errorf("%w: firewall.ipset", ErrFactsUnavailable)
	}
	if off(d.Routing.Available) {
		return fmt.Errorf("%w: routing", ErrFactsUnavailable)
	}
	return nil
}

// ChainTable builds the chain table: chains in document order, rules
// numbered by position where the producer did not number them, and the
// FORWARD policy applied when the document carries one. Rules whose text
// could not be recovered are kept with their marker and counted.
func (d *Document) ChainTable() *engine.ChainTable {
	t := engine.NewChainTable()
	if p, ok := d.Firewall.Iptables.Policies[engine.ChainForward]; ok {
		t.SetDefaultPolicy(p)
	}
	for _, block := range d.Firewall.Iptables.Filter {
		for _, name := range sortedKeys(block) {
			if !t.Has(name) {
				t.AddChain(name, nil)
			}
			for _, e := range block[name] {
				r := e.toRule()
				if r.ParseErr {
					metrics.Get().ParseErrors.WithLabelValues("rule").Inc()
				}
				t.AppendRule(name, r)
			}
		}
	}
	return t
}

// IpsetStore builds the set store from the document.
func (d *Document) IpsetStore() *ipset.Store {
	st := ipset.NewStore()
	for _, block := range d.Firewall.Ipset.Lists {
		for _, name := range sortedKeys(block) {
			def := block[name]
			s := st.Create(name, def.Type)
			for _, m := range def.Members {
				s.Add(m)
			}
		}
	}
	return st
}

// RoutingTable builds the route table from the document.
func (d *Document) RoutingTable() *routing.Table {
	return routing.NewTable(d.Routing.Tables)
}

// Engine validates the document and constructs the evaluation engine
// for it.
func (d *Document) Engine(log *logging.Logger) (*engine.Engine, error) {
	if err := d.Validate(); err != nil {
		return nil, err
	}
	return engine.New(d.Router, d.ChainTable(), d.IpsetStore(), d.RoutingTable(), log)
}

func off(b *bool) bool { return b != nil && !*b }

func avail(ok bool) *bool { return &ok }

func firstOf(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func sortedKeys[V any](m map[string]V) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
