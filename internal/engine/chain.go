package engine

import (
	"errors"
	"fmt"
	"strings"
)

// ChainForward is the entry chain for forwarded traffic.
const ChainForward = "FORWARD"

// ErrChainCycle reports a custom-chain jump loop, which makes the ruleset
// unevaluable.
var ErrChainCycle = errors.New("chain jump cycle")

// Chain is one named, ordered rule list.
type Chain struct {
	Name  string `json:"name" yaml:"name"`
	Rules []Rule `json:"rules" yaml:"rules"`
}

// ChainTable holds the FORWARD chain, every custom chain, and the policy
// applied when FORWARD decides nothing.
type ChainTable struct {
	chains map[string]*Chain
	order  []string
	policy string
}

// NewChainTable returns an empty table with the ACCEPT default policy.
func NewChainTable() *ChainTable {
	return &ChainTable{
		chains: make(map[string]*Chain),
		policy: "ACCEPT",
	}
}

// SetDefaultPolicy overrides the FORWARD fallback policy. Anything but
// DROP or REJECT keeps the ACCEPT default.
func (t *ChainTable) SetDefaultPolicy(policy string) {
	switch strings.ToUpper(strings.TrimSpace(policy)) {
	case "DROP":
		t.policy = "DROP"
	case "REJECT":
		t.policy = "REJECT"
	default:
		t.policy = "ACCEPT"
	}
}

// DefaultPolicy returns the FORWARD fallback policy.
func (t *ChainTable) DefaultPolicy() string {
	return t.policy
}

// AddChain declares a chain, replacing any previous declaration of the same
// name. Rules without a line number are numbered by position.
func (t *ChainTable) AddChain(name string, rules []Rule) {
	for i := range rules {
		if rules[i].Line == 0 {
			rules[i].Line = i + 1
		}
	}
	if _, exists := t.chains[name]; !exists {
		t.order = append(t.order, name)
	}
	t.chains[name] = &Chain{Name: name, Rules: rules}
}

// AppendRule adds one rule to a chain, declaring the chain if needed.
func (t *ChainTable) AppendRule(name string, r Rule) {
	ch, ok := t.chains[name]
	if !ok {
		t.AddChain(name, nil)
		ch = t.chains[name]
	}
	if r.Line == 0 {
		r.Line = len(ch.Rules) + 1
	}
	ch.Rules = append(ch.Rules, r)
}

// Chain looks up a chain by its exact name.
func (t *ChainTable) Chain(name string) (*Chain, bool) {
	ch, ok := t.chains[name]
	return ch, ok
}

// Has reports whether a chain with that exact name is declared.
func (t *ChainTable) Has(name string) bool {
	_, ok := t.chains[name]
	return ok
}

// Names returns chain names in declaration order, FORWARD first.
func (t *ChainTable) Names() []string {
	names := make([]string, 0, len(t.order))
	if t.Has(ChainForward) {
		names = append(names, ChainForward)
	}
	for _, n := range t.order {
		if n != ChainForward {
			names = append(names, n)
		}
	}
	return names
}

// RuleCount returns the total number of rules across all chains.
func (t *ChainTable) RuleCount() int {
	n := 0
	for _, ch := range t.chains {
		n += len(ch.Rules)
	}
	return n
}

type targetKind int

const (
	targetUnknown targetKind = iota
	targetKeyword
	targetJump
)

// classify decides how a rule's target drives evaluation: fixed keywords
// compare case-insensitively and shadow chains, custom-chain names compare
// case-sensitively, everything else is unknown and skipped.
func (t *ChainTable) classify(target string) (targetKind, string) {
	upper := strings.ToUpper(strings.TrimSpace(target))
	if _, ok := KnownTargets[upper]; ok {
		return targetKeyword, upper
	}
	if t.Has(target) {
		return targetJump, target
	}
	return targetUnknown, target
}

// Validate ensures the table can be evaluated: FORWARD exists (created
// empty when the capture had none) and no jump cycle is reachable from it.
func (t *ChainTable) Validate() error {
	if !t.Has(ChainForward) {
		t.AddChain(ChainForward, nil)
	}
	const (
		white = 0
		grey  = 1
		black = 2
	)
	color := make(map[string]int, len(t.chains))

	var visit func(name string, path []string) error
	visit = func(name string, path []string) error {
		color[name] = grey
		path = append(path, name)
		for _, r := range t.chains[name].Rules {
			if r.ParseErr {
				continue
			}
			kind, next := t.classify(r.Target)
			if kind != targetJump {
				continue
			}
			switch color[next] {
			case grey:
				return fmt.Errorf("%w: %s -> %s", ErrChainCycle, strings.Join(path, " -> "), next)
			case white:
				if err := visit(next, path); err != nil {
					return err
				}
			}
		}
		color[name] = black
		return nil
	}
	return visit(ChainForward, nil)
}
