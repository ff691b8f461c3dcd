package engine

import (
	"fmt"
	"strconv"
	"strings"

	"grimm.is/tsim/internal/ipset"
	"grimm.is/tsim/internal/logging"
	"grimm.is/tsim/internal/routing"
)

const pathSep = " -> "

// Query is one packet to decide. Ports at zero mean "not supplied": port
// criteria are then not applicable rather than failed. Protocol "all" or
// empty matches any rule protocol. State defaults to NEW.
type Query struct {
	SrcIP    string `json:"src" yaml:"src"`
	SrcPort  int    `json:"sport,omitempty" yaml:"sport,omitempty"`
	DstIP    string `json:"dst" yaml:"dst"`
	DstPort  int    `json:"dport,omitempty" yaml:"dport,omitempty"`
	Protocol string `json:"protocol,omitempty" yaml:"protocol,omitempty"`
	State    string `json:"state,omitempty" yaml:"state,omitempty"`
}

func (q *Query) normalize() {
	q.SrcIP = strings.TrimSpace(q.SrcIP)
	q.DstIP = strings.TrimSpace(q.DstIP)
	q.Protocol = NormalizeProto(q.Protocol)
	q.State = strings.ToUpper(strings.TrimSpace(q.State))
	if q.State == "" {
		q.State = "NEW"
	}
}

// String renders the query the way the CLI prints it.
func (q Query) String() string {
	proto := q.Protocol
	if proto == "" {
		proto = "all"
	}
	src, dst := q.SrcIP, q.DstIP
	if q.SrcPort > 0 {
		src += ":" + strconv.Itoa(q.SrcPort)
	}
	if q.DstPort > 0 {
		dst += ":" + strconv.Itoa(q.DstPort)
	}
	return fmt.Sprintf("%s %s -> %s state %s", proto, src, dst, q.State)
}

// Result is the verdict for one query. Reason is stable: identical facts
// and query always produce the identical string.
type Result struct {
	Allowed     bool   `json:"allowed" yaml:"allowed"`
	Reason      string `json:"reason" yaml:"reason"`
	Target      string `json:"target" yaml:"target"`
	Chain       string `json:"chain" yaml:"chain"`
	Line        int    `json:"line" yaml:"line"`
	RulesTested int    `json:"rules_tested" yaml:"rules_tested"`
	Steps       []Step `json:"trace,omitempty" yaml:"trace,omitempty"`
}

// Engine evaluates queries against one router's captured state. It is
// immutable after New and safe to share across goroutines.
type Engine struct {
	router string
	table  *ChainTable
	sets   *ipset.Store
	routes *routing.Table
	log    *logging.Logger
}

// New builds an engine. The chain table is validated (FORWARD present, no
// jump cycles); nil sets or routes mean an empty store or table.
func New(router string, table *ChainTable, sets *ipset.Store, routes *routing.Table, log *logging.Logger) (*Engine, error) {
	if table == nil {
		table = NewChainTable()
	}
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if sets == nil {
		sets = ipset.NewStore()
	}
	if routes == nil {
		routes = routing.NewTable(nil)
	}
	if log == nil {
		log = logging.Default()
	}
	return &Engine{
		router: router,
		table:  table,
		sets:   sets,
		routes: routes,
		log:    log.WithComponent("engine"),
	}, nil
}

// Router returns the router name the engine was built for.
func (e *Engine) Router() string { return e.router }

// Table returns the chain table, for rendering and inspection.
func (e *Engine) Table() *ChainTable { return e.table }

// Sets returns the ipset store.
func (e *Engine) Sets() *ipset.Store { return e.sets }

// Routes returns the routing table.
func (e *Engine) Routes() *routing.Table { return e.routes }

// Evaluate decides one query. The only possible error is a chain-jump
// cycle that escaped construction-time validation.
func (e *Engine) Evaluate(q Query) (Result, error) {
	return e.run(q, nil)
}

// EvaluateTrace decides one query and records every evaluation step in
// Result.Steps. The verdict is identical to Evaluate's.
func (e *Engine) EvaluateTrace(q Query) (Result, error) {
	return e.run(q, &tracer{})
}

func (e *Engine) run(q Query, tr *tracer) (Result, error) {
	q.normalize()
	var res Result
	kind, err := e.walk(ChainForward, &q, nil, map[string]bool{}, &res, tr)
	if err != nil {
		return Result{}, err
	}
	res.Allowed = kind == kindAccept
	if tr != nil {
		res.Steps = tr.steps
	}
	e.log.Debug("query evaluated",
		"router", e.router,
		"query", q.String(),
		"allowed", res.Allowed,
		"rules_tested", res.RulesTested,
		"reason", res.Reason)
	return res, nil
}

type verdictKind int

const (
	kindNone verdictKind = iota
	kindAccept
	kindDeny
)

// walk evaluates one chain for the query. path holds the chains already
// entered; an empty path means the FORWARD frame, where the default policy
// applies on RETURN or exhaustion.
func (e *Engine) walk(name string, q *Query, path []string, visited map[string]bool, res *Result, tr *tracer) (verdictKind, error) {
	if visited[name] {
		return kindNone, fmt.Errorf("%w: %s%s%s", ErrChainCycle, strings.Join(path, pathSep), pathSep, name)
	}
	visited[name] = true
	defer delete(visited, name)

	chain, ok := e.table.Chain(name)
	if !ok {
		// classify only produces jumps to declared chains
		return kindNone, nil
	}

	chainPath := name
	if len(path) > 0 {
		chainPath = strings.Join(path, pathSep) + pathSep + name
	}
	top := len(path) == 0

	for i := range chain.Rules {
		rule := &chain.Rules[i]

		if rule.ParseErr {
			tr.add(Step{Chain: chainPath, Line: rule.Line, Target: rule.Target, Kind: StepSkip, Note: "parse error"})
			continue
		}
		kind, canonical := e.table.classify(rule.Target)
		if kind == targetUnknown {
			tr.add(Step{Chain: chainPath, Line: rule.Line, Target: rule.Target, Kind: StepSkip, Note: "unknown target"})
			continue
		}

		res.RulesTested++
		matched, failed := e.matches(rule, q)
		if !matched {
			tr.add(Step{Chain: chainPath, Line: rule.Line, Target: rule.Target, Kind: StepRule, Criterion: failed})
			continue
		}

		if kind == targetJump {
			tr.add(Step{Chain: chainPath, Line: rule.Line, Target: rule.Target, Kind: StepEnter, Matched: true})
			sub, err := e.walk(rule.Target, q, append(path, name), visited, res, tr)
			if err != nil {
				return kindNone, err
			}
			if sub != kindNone {
				return sub, nil
			}
			continue
		}

		switch canonical {
		case "ACCEPT":
			reason := fmt.Sprintf("allowed by rule %d in chain %s (target ACCEPT)", rule.Line, chainPath)
			e.decide(res, chainPath, rule.Line, canonical, reason)
			tr.add(Step{Chain: chainPath, Line: rule.Line, Target: rule.Target, Kind: StepVerdict, Matched: true, Note: reason})
			return kindAccept, nil

		case "DROP", "REJECT":
			reason := fmt.Sprintf("denied by rule %d in chain %s (target %s)", rule.Line, chainPath, canonical)
			e.decide(res, chainPath, rule.Line, canonical, reason)
			tr.add(Step{Chain: chainPath, Line: rule.Line, Target: rule.Target, Kind: StepVerdict, Matched: true, Note: reason})
			return kindDeny, nil

		case "RETURN":
			if top {
				policy := e.table.DefaultPolicy()
				reason := fmt.Sprintf("default policy %s applied by RETURN at rule %d in %s", policy, rule.Line, chainPath)
				k := e.applyPolicy(res, chainPath, reason)
				res.Line = rule.Line
				tr.add(Step{Chain: chainPath, Line: rule.Line, Target: rule.Target, Kind: StepVerdict, Matched: true, Note: reason})
				return k, nil
			}
			tr.add(Step{Chain: chainPath, Line: rule.Line, Target: rule.Target, Kind: StepExit, Matched: true, Note: "RETURN to caller"})
			return kindNone, nil

		default:
			if _, nat := natTargets[canonical]; nat {
				reason := fmt.Sprintf("allowed by rule %d in chain %s (target %s, assumed forwarded after translation)", rule.Line, chainPath, canonical)
				e.decide(res, chainPath, rule.Line, canonical, reason)
				tr.add(Step{Chain: chainPath, Line: rule.Line, Target: rule.Target, Kind: StepVerdict, Matched: true, Note: reason})
				return kindAccept, nil
			}
			// non-terminating target: matched, evaluation continues
			tr.add(Step{Chain: chainPath, Line: rule.Line, Target: rule.Target, Kind: StepRule, Matched: true, Note: "non-terminating"})
		}
	}

	if top {
		policy := e.table.DefaultPolicy()
		reason := fmt.Sprintf("no rule matched in %s, default policy %s", chainPath, policy)
		k := e.applyPolicy(res, chainPath, reason)
		tr.add(Step{Chain: chainPath, Kind: StepVerdict, Note: reason})
		return k, nil
	}
	tr.add(Step{Chain: chainPath, Kind: StepExit, Note: "chain exhausted"})
	return kindNone, nil
}

func (e *Engine) decide(res *Result, chainPath string, line int, target, reason string) {
	res.Chain = chainPath
	res.Line = line
	res.Target = target
	res.Reason = reason
}

func (e *Engine) applyPolicy(res *Result, chainPath, reason string) verdictKind {
	policy := e.table.DefaultPolicy()
	res.Chain = chainPath
	res.Line = 0
	res.Target = policy
	res.Reason = reason
	if policy == "ACCEPT" {
		return kindAccept
	}
	return kindDeny
}

// matches tests a rule's criteria in the fixed order, returning the first
// failing criterion's name on a miss.
func (e *Engine) matches(r *Rule, q *Query) (bool, string) {
	c := &r.Criteria

	for _, sm := range c.MatchSets {
		src := ipset.Candidate{IP: q.SrcIP, Port: portString(q.SrcPort)}
		dst := ipset.Candidate{IP: q.DstIP, Port: portString(q.DstPort)}
		if !e.sets.Match(sm.Name, sm.Directions, src, dst, protoOrStar(q.Protocol)) {
			return false, "match-set"
		}
	}
	if c.Source != "" && !MatchIP(c.Source, q.SrcIP) {
		return false, "source"
	}
	if c.Destination != "" && !MatchIP(c.Destination, q.DstIP) {
		return false, "destination"
	}
	if c.InInterface != "" {
		// symmetric-routing assumption: the device used to reach the
		// source stands in for the arrival interface; undeterminable
		// devices skip the constraint
		if dev := e.routes.BestDevice(q.SrcIP); dev != "" && dev != c.InInterface {
			return false, "in-interface"
		}
	}
	if c.OutInterface != "" {
		if dev := e.routes.BestDevice(q.DstIP); dev != "" && dev != c.OutInterface {
			return false, "out-interface"
		}
	}
	if c.Protocol != "" && q.Protocol != "" && !strings.EqualFold(c.Protocol, q.Protocol) {
		return false, "protocol"
	}
	if c.SourcePorts != "" && q.SrcPort > 0 && !MatchPort(c.SourcePorts, q.SrcPort) {
		return false, "source-port"
	}
	if c.DestPorts != "" && q.DstPort > 0 && !MatchPort(c.DestPorts, q.DstPort) {
		return false, "dest-port"
	}
	if len(c.States) > 0 && !MatchState(c.States, q.State) {
		return false, "state"
	}
	return true, ""
}

func portString(p int) string {
	if p <= 0 {
		return "*"
	}
	return strconv.Itoa(p)
}

func protoOrStar(p string) string {
	if p == "" {
		return "*"
	}
	return p
}
