package facts

import (
	"reflect"
	"strings"
	"testing"

	"grimm.is/tsim/internal/engine"
)

func TestRenderStable(t *testing.T) {
	d := loadSample(t)
	first := Render(d)
	if first != Render(d) {
		t.Error("rendering must be deterministic")
	}
	if !strings.Contains(first, ":FORWARD ACCEPT\n") {
		t.Errorf("missing policy line:\n%s", first)
	}
	if !strings.Contains(first, "create web_servers hash:ip,port\n") {
		t.Errorf("missing set header:\n%s", first)
	}
	if !strings.Contains(first, "add web_servers 10.2.0.5,tcp:443\n") {
		t.Errorf("missing member:\n%s", first)
	}
}

func TestRenderIgnoresMemberOrder(t *testing.T) {
	a, err := FromCaptures("r1",
		"*filter\n:FORWARD ACCEPT [0:0]\nCOMMIT\n",
		"create s hash:ip\nadd s 10.0.0.1\nadd s 10.0.0.2\n",
		"default dev eth0\n")
	if err != nil {
		t.Fatal(err)
	}
	b, err := FromCaptures("r1",
		"*filter\n:FORWARD ACCEPT [0:0]\nCOMMIT\n",
		"create s hash:ip\nadd s 10.0.0.2\nadd s 10.0.0.1\n",
		"default dev eth0\n")
	if err != nil {
		t.Fatal(err)
	}
	if Render(a) != Render(b) {
		t.Error("member order must not change the rendering")
	}
}

func TestSaveText(t *testing.T) {
	tests := []struct {
		name string
		text string
		want string
	}{
		{
			"plain",
			"-A FORWARD -s 10.0.0.0/8 -i eth0 -p tcp --dport 22 -j ACCEPT",
			"-A FORWARD -s 10.0.0.0/8 -i eth0 -p tcp --dport 22 -j ACCEPT",
		},
		{
			"multiport and states",
			"-A FORWARD -p tcp -m multiport --dports 80,443 -m conntrack --ctstate NEW -j ACCEPT",
			"-A FORWARD -p tcp -m multiport --dports 80,443 -m state --state NEW -j ACCEPT",
		},
		{
			"match set",
			"-A FORWARD -m set --match-set peers src,dst -j DROP",
			"-A FORWARD -m set --match-set peers src,dst -j DROP",
		},
		{
			"list form normalizes",
			"ACCEPT tcp -- eth0 * 10.1.0.0/16 0.0.0.0/0 tcp dpt:22",
			"-A FORWARD -s 10.1.0.0/16 -i eth0 -p tcp --dport 22 -j ACCEPT",
		},
		{
			"no jump",
			"-A FORWARD -s 10.0.0.0/8",
			"-A FORWARD -s 10.0.0.0/8",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := engine.ParseRuleText(tt.text, 1)
			if got := SaveText("FORWARD", r); got != tt.want {
				t.Errorf("SaveText = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestSaveTextUnparsed(t *testing.T) {
	r := engine.ParseRuleText("garbage", 1)
	got := SaveText("FORWARD", r)
	if !strings.HasPrefix(got, "# unparsed: ") || !strings.Contains(got, "garbage") {
		t.Errorf("SaveText = %q", got)
	}
}

func TestSaveTextRoundTrip(t *testing.T) {
	texts := []string{
		"-A FORWARD -s 10.0.0.0/8 -d 192.168.0.0/16 -i eth0 -o eth1 -p udp --sport 123 -j DROP",
		"-A FORWARD -p tcp -m multiport --dports 80,443,8080 -j ACCEPT",
		"-A FORWARD -m conntrack --ctstate RELATED,ESTABLISHED -j ACCEPT",
		"-A FORWARD -m set --match-set web_servers dst,dst -p tcp --dport 80 -j ACCEPT",
		`-A FORWARD -s 10.9.0.1 -m comment --comment "office uplink" -j ACCEPT`,
	}

	for _, text := range texts {
		orig := engine.ParseRuleText(text, 1)
		back := engine.ParseRuleText(SaveText("FORWARD", orig), 1)
		if back.ParseErr {
			t.Errorf("rendering of %q did not reparse", text)
			continue
		}
		if back.Target != orig.Target {
			t.Errorf("%q: target %q vs %q", text, back.Target, orig.Target)
		}
		if !reflect.DeepEqual(back.Criteria, orig.Criteria) {
			t.Errorf("%q: criteria changed:\n before %+v\n after  %+v", text, orig.Criteria, back.Criteria)
		}
		if back.Comment != orig.Comment {
			t.Errorf("%q: comment %q vs %q", text, back.Comment, orig.Comment)
		}
	}
}
