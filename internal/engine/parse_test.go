package engine

import (
	"reflect"
	"testing"
)

func TestParseListRuleFullRow(t *testing.T) {
	r := ParseRuleText("ACCEPT tcp -- eth0 * 10.1.0.0/16 0.0.0.0/0 tcp dpt:22", 1)

	if r.ParseErr {
		t.Fatal("row should parse cleanly")
	}
	if r.Target != "ACCEPT" {
		t.Errorf("Target = %q, want ACCEPT", r.Target)
	}
	if r.Criteria.Protocol != "tcp" {
		t.Errorf("Protocol = %q, want tcp", r.Criteria.Protocol)
	}
	if r.Criteria.InInterface != "eth0" {
		t.Errorf("InInterface = %q, want eth0", r.Criteria.InInterface)
	}
	if r.Criteria.OutInterface != "" {
		t.Errorf("OutInterface = %q, want unconstrained", r.Criteria.OutInterface)
	}
	if r.Criteria.Source != "10.1.0.0/16" {
		t.Errorf("Source = %q, want 10.1.0.0/16", r.Criteria.Source)
	}
	if r.Criteria.Destination != "" {
		t.Errorf("Destination = %q, want unconstrained", r.Criteria.Destination)
	}
	if r.Criteria.DestPorts != "22" {
		t.Errorf("DestPorts = %q, want 22", r.Criteria.DestPorts)
	}
}

func TestParseBothFormsAgree(t *testing.T) {
	// The same rule captured via -L and via -save must produce identical
	// criteria.
	list := ParseRuleText("ACCEPT tcp -- eth0 * 10.1.0.0/16 0.0.0.0/0 tcp dpt:22", 1)
	save := ParseRuleText("-A FORWARD -i eth0 -p tcp -s 10.1.0.0/16 -m tcp --dport 22 -j ACCEPT", 1)

	if list.Target != save.Target {
		t.Errorf("targets differ: %q vs %q", list.Target, save.Target)
	}
	if !reflect.DeepEqual(list.Criteria, save.Criteria) {
		t.Errorf("criteria differ:\n list: %+v\n save: %+v", list.Criteria, save.Criteria)
	}
}

func TestParseRuleTextFormDetection(t *testing.T) {
	tests := []struct {
		name   string
		text   string
		target string
		source string
	}{
		{"list body without target", "tcp -- eth0 * 10.1.0.0/16 0.0.0.0/0", "", "10.1.0.0/16"},
		{"list with target", "DROP all -- * * 172.16.0.0/12 0.0.0.0/0", "DROP", "172.16.0.0/12"},
		{"save form", "-A FORWARD -s 172.16.0.0/12 -j DROP", "DROP", "172.16.0.0/12"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := ParseRuleText(tt.text, 1)
			if r.ParseErr {
				t.Fatalf("unexpected parse error for %q", tt.text)
			}
			if r.Target != tt.target {
				t.Errorf("Target = %q, want %q", r.Target, tt.target)
			}
			if r.Criteria.Source != tt.source {
				t.Errorf("Source = %q, want %q", r.Criteria.Source, tt.source)
			}
		})
	}
}

func TestParseComments(t *testing.T) {
	r := ParseRuleText("ACCEPT all -- * * 10.9.0.1 0.0.0.0/0 /* office uplink */", 1)
	if r.Comment != "office uplink" {
		t.Errorf("Comment = %q, want %q", r.Comment, "office uplink")
	}
	if r.Criteria.Source != "10.9.0.1" {
		t.Errorf("Source = %q after comment strip", r.Criteria.Source)
	}

	r = ParseRuleText(`-A FORWARD -s 10.9.0.1 -m comment --comment "office uplink" -j ACCEPT`, 1)
	if r.Comment != "office uplink" {
		t.Errorf("save-form Comment = %q, want %q", r.Comment, "office uplink")
	}
	if r.Target != "ACCEPT" {
		t.Errorf("Target = %q after comment", r.Target)
	}
}

func TestParseMatchSets(t *testing.T) {
	list := ParseRuleText("DROP all -- * * 0.0.0.0/0 0.0.0.0/0 match-set blocklist src", 1)
	if len(list.Criteria.MatchSets) != 1 {
		t.Fatalf("list form: got %d match-sets, want 1", len(list.Criteria.MatchSets))
	}
	if ms := list.Criteria.MatchSets[0]; ms.Name != "blocklist" || len(ms.Directions) != 1 || ms.Directions[0] != "src" {
		t.Errorf("list form match-set = %+v", ms)
	}

	save := ParseRuleText("-A FORWARD -m set --match-set peers src,dst -j ACCEPT", 1)
	if len(save.Criteria.MatchSets) != 1 {
		t.Fatalf("save form: got %d match-sets, want 1", len(save.Criteria.MatchSets))
	}
	if ms := save.Criteria.MatchSets[0]; ms.Name != "peers" || len(ms.Directions) != 2 || ms.Directions[1] != "dst" {
		t.Errorf("save form match-set = %+v", ms)
	}
}

func TestParsePortVariants(t *testing.T) {
	tests := []struct {
		text  string
		dport string
		sport string
	}{
		{"ACCEPT tcp -- * * 0.0.0.0/0 0.0.0.0/0 tcp dpts:1000:2000", "1000:2000", ""},
		{"ACCEPT tcp -- * * 0.0.0.0/0 0.0.0.0/0 tcp spt:53", "", "53"},
		{"ACCEPT tcp -- * * 0.0.0.0/0 0.0.0.0/0 multiport dports 80,443", "80,443", ""},
		{"-A FORWARD -p tcp -m multiport --dports 80,443 -j ACCEPT", "80,443", ""},
		{"-A FORWARD -p udp --sport 123 -j ACCEPT", "", "123"},
	}

	for _, tt := range tests {
		r := ParseRuleText(tt.text, 1)
		if r.Criteria.DestPorts != tt.dport {
			t.Errorf("%q: DestPorts = %q, want %q", tt.text, r.Criteria.DestPorts, tt.dport)
		}
		if r.Criteria.SourcePorts != tt.sport {
			t.Errorf("%q: SourcePorts = %q, want %q", tt.text, r.Criteria.SourcePorts, tt.sport)
		}
	}
}

func TestParseStates(t *testing.T) {
	list := ParseRuleText("ACCEPT all -- * * 0.0.0.0/0 0.0.0.0/0 state RELATED,ESTABLISHED", 1)
	if len(list.Criteria.States) != 2 || list.Criteria.States[0] != "RELATED" {
		t.Errorf("list form states = %v", list.Criteria.States)
	}

	save := ParseRuleText("-A FORWARD -m conntrack --ctstate NEW,ESTABLISHED -j ACCEPT", 1)
	if len(save.Criteria.States) != 2 || save.Criteria.States[0] != "NEW" {
		t.Errorf("conntrack states = %v", save.Criteria.States)
	}

	save = ParseRuleText("-A FORWARD -m state --state INVALID -j DROP", 1)
	if len(save.Criteria.States) != 1 || save.Criteria.States[0] != "INVALID" {
		t.Errorf("state module states = %v", save.Criteria.States)
	}
}

func TestParseSourceIPRangePhrase(t *testing.T) {
	r := ParseRuleText("DROP all -- * * 0.0.0.0/0 0.0.0.0/0 source IP range 10.0.0.1-10.0.0.9", 1)
	if r.Criteria.Source != "10.0.0.1-10.0.0.9" {
		t.Errorf("Source = %q, want the range", r.Criteria.Source)
	}

	r = ParseRuleText("DROP all -- * * 0.0.0.0/0 0.0.0.0/0 destination IP range 10.2.0.1-10.2.0.9", 1)
	if r.Criteria.Destination != "10.2.0.1-10.2.0.9" {
		t.Errorf("Destination = %q, want the range", r.Criteria.Destination)
	}
}

func TestParseUnrecognizedExtensions(t *testing.T) {
	r := ParseRuleText("ACCEPT tcp -- * * 0.0.0.0/0 0.0.0.0/0 tcp dpt:22 limit: avg 5/min burst 5", 1)
	if r.ParseErr {
		t.Fatal("unrecognized extensions must not abort parsing")
	}
	if r.Criteria.DestPorts != "22" {
		t.Error("recognized fields must survive unrecognized neighbors")
	}
	if len(r.Criteria.Extensions) == 0 {
		t.Error("unrecognized tokens should be retained verbatim")
	}

	save := ParseRuleText("-A FORWARD -m limit --limit 5/min --limit-burst 5 -j LOG", 1)
	if save.ParseErr {
		t.Fatal("limit module must not abort parsing")
	}
	if save.Target != "LOG" {
		t.Errorf("Target = %q, want LOG after opaque module", save.Target)
	}
	if len(save.Criteria.Extensions) == 0 {
		t.Error("limit flags should be retained verbatim")
	}
}

func TestParseNegationKeptOpaque(t *testing.T) {
	r := ParseRuleText("-A FORWARD ! -s 10.0.0.0/8 -j DROP", 1)
	if r.ParseErr {
		t.Fatal("negation must not abort parsing")
	}
	if r.Criteria.Source != "" {
		t.Errorf("negated source must not become a positive constraint, got %q", r.Criteria.Source)
	}
	if r.Target != "DROP" {
		t.Errorf("Target = %q, want DROP", r.Target)
	}
	if len(r.Criteria.Extensions) < 2 {
		t.Errorf("negated clause should be kept verbatim, got %v", r.Criteria.Extensions)
	}
}

func TestParseSoftFailures(t *testing.T) {
	short := ParseRuleText("ACCEPT tcp", 1)
	if !short.ParseErr {
		t.Error("row with too few tokens must carry the parse-error marker")
	}

	dangling := ParseRuleText("-A FORWARD -p", 1)
	if !dangling.ParseErr {
		t.Error("dangling flag must carry the parse-error marker")
	}

	empty := ParseRuleText("   ", 3)
	if !empty.ParseErr {
		t.Error("empty rule text must carry the parse-error marker")
	}

	junk := ParseRuleText("garbage", 2)
	if !junk.ParseErr {
		t.Error("a single unrecognized token must carry the parse-error marker")
	}
	if junk.Raw != "garbage" {
		t.Errorf("Raw = %q, broken rules keep their original text", junk.Raw)
	}
	if junk.Target != "" {
		t.Errorf("Target = %q, want empty", junk.Target)
	}
}

func TestParseFragments(t *testing.T) {
	r := ParseRuleText("-f tcp -- eth0 * 10.0.0.0/8 0.0.0.0/0", 1)
	if !r.Criteria.Fragments {
		t.Error("leading -f should set the fragments flag")
	}
	if r.Criteria.Source != "10.0.0.0/8" {
		t.Errorf("Source = %q after -f", r.Criteria.Source)
	}

	r = ParseRuleText("-A FORWARD -f -s 10.0.0.0/8 -j ACCEPT", 1)
	if !r.Criteria.Fragments {
		t.Error("save-form -f should set the fragments flag")
	}
}

func TestParseSaveRuleWithoutJump(t *testing.T) {
	r := ParseRuleText("-A FORWARD -s 10.0.0.0/8", 1)
	if r.ParseErr {
		t.Error("a counting rule without -j is valid")
	}
	if r.Target != "" {
		t.Errorf("Target = %q, want empty", r.Target)
	}
}

func TestParseNormalization(t *testing.T) {
	r := ParseRuleText("ACCEPT all -- any any anywhere anywhere", 1)
	if !r.Criteria.Unconstrained() {
		t.Errorf("catch-all spellings should normalize to unconstrained: %+v", r.Criteria)
	}

	r = ParseRuleText("-A FORWARD -p ALL -i any -s 0.0.0.0/0 -j ACCEPT", 1)
	if !r.Criteria.Unconstrained() {
		t.Errorf("save-form catch-alls should normalize: %+v", r.Criteria)
	}
}
