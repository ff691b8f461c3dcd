package engine

import (
	"errors"
	"testing"
)

func TestClassifyTargets(t *testing.T) {
	table := NewChainTable()
	table.AddChain(ChainForward, nil)
	table.AddChain("dmz_in", nil)
	table.AddChain("reject", nil)

	tests := []struct {
		target string
		kind   targetKind
		name   string
	}{
		{"ACCEPT", targetKeyword, "ACCEPT"},
		{"accept", targetKeyword, "ACCEPT"},
		{"Drop", targetKeyword, "DROP"},
		{"dmz_in", targetJump, "dmz_in"},
		{"DMZ_IN", targetUnknown, "DMZ_IN"},
		{"reject", targetKeyword, "REJECT"},
		{"AUDIT_DROP", targetUnknown, "AUDIT_DROP"},
	}

	for _, tt := range tests {
		kind, name := table.classify(tt.target)
		if kind != tt.kind || name != tt.name {
			t.Errorf("classify(%q) = (%v, %q), want (%v, %q)", tt.target, kind, name, tt.kind, tt.name)
		}
	}
}

func TestValidateCreatesForward(t *testing.T) {
	table := NewChainTable()
	if err := table.Validate(); err != nil {
		t.Fatalf("Validate() = %v", err)
	}
	if !table.Has(ChainForward) {
		t.Error("Validate should declare an empty FORWARD chain")
	}
}

func TestValidateDetectsCycle(t *testing.T) {
	table := NewChainTable()
	table.AddChain(ChainForward, []Rule{{Target: "a"}})
	table.AddChain("a", []Rule{{Target: "b"}})
	table.AddChain("b", []Rule{{Target: "a"}})

	err := table.Validate()
	if !errors.Is(err, ErrChainCycle) {
		t.Fatalf("Validate() = %v, want ErrChainCycle", err)
	}
}

func TestValidateDetectsSelfLoop(t *testing.T) {
	table := NewChainTable()
	table.AddChain(ChainForward, []Rule{{Target: "loop"}})
	table.AddChain("loop", []Rule{{Target: "loop"}})

	if err := table.Validate(); !errors.Is(err, ErrChainCycle) {
		t.Fatalf("Validate() = %v, want ErrChainCycle", err)
	}
}

func TestValidateAllowsSharedChains(t *testing.T) {
	// Two jump paths into the same chain are not a cycle.
	table := NewChainTable()
	table.AddChain(ChainForward, []Rule{{Target: "left"}, {Target: "right"}})
	table.AddChain("left", []Rule{{Target: "common"}})
	table.AddChain("right", []Rule{{Target: "common"}})
	table.AddChain("common", []Rule{{Target: "ACCEPT"}})

	if err := table.Validate(); err != nil {
		t.Fatalf("Validate() = %v, want nil", err)
	}
}

func TestValidateSkipsBrokenRules(t *testing.T) {
	table := NewChainTable()
	table.AddChain(ChainForward, []Rule{{Target: "a"}})
	table.AddChain("a", []Rule{{Target: ChainForward, ParseErr: true}})

	if err := table.Validate(); err != nil {
		t.Fatalf("broken rules must not count as jump edges: %v", err)
	}
}

func TestRuleNumbering(t *testing.T) {
	table := NewChainTable()
	table.AddChain(ChainForward, []Rule{{Target: "ACCEPT"}, {Target: "DROP"}})
	table.AppendRule(ChainForward, Rule{Target: "REJECT"})

	ch, _ := table.Chain(ChainForward)
	for i, r := range ch.Rules {
		if r.Line != i+1 {
			t.Errorf("rule %d has line %d", i, r.Line)
		}
	}

	table.AppendRule("fresh", Rule{Target: "ACCEPT"})
	ch, ok := table.Chain("fresh")
	if !ok || len(ch.Rules) != 1 || ch.Rules[0].Line != 1 {
		t.Error("AppendRule should declare missing chains and number from 1")
	}
}

func TestNamesForwardFirst(t *testing.T) {
	table := NewChainTable()
	table.AddChain("zeta", nil)
	table.AddChain(ChainForward, nil)
	table.AddChain("alpha", nil)

	names := table.Names()
	want := []string{ChainForward, "zeta", "alpha"}
	if len(names) != len(want) {
		t.Fatalf("Names() = %v", names)
	}
	for i := range want {
		if names[i] != want[i] {
			t.Errorf("Names()[%d] = %q, want %q", i, names[i], want[i])
		}
	}
}

func TestDefaultPolicy(t *testing.T) {
	table := NewChainTable()
	if table.DefaultPolicy() != "ACCEPT" {
		t.Errorf("new table policy = %q", table.DefaultPolicy())
	}

	table.SetDefaultPolicy("drop")
	if table.DefaultPolicy() != "DROP" {
		t.Errorf("policy after drop = %q", table.DefaultPolicy())
	}

	table.SetDefaultPolicy("REJECT")
	if table.DefaultPolicy() != "REJECT" {
		t.Errorf("policy after REJECT = %q", table.DefaultPolicy())
	}

	table.SetDefaultPolicy("bogus")
	if table.DefaultPolicy() != "ACCEPT" {
		t.Errorf("unrecognized policy should fall back to ACCEPT, got %q", table.DefaultPolicy())
	}
}
